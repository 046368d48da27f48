package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestWebhookNotifySendsPayload(t *testing.T) {
	var received WebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh := NewWebhook(WebhookConfig{URL: srv.URL})

	payload := WebhookPayload{
		Event:     EventWatchPressure,
		Timestamp: time.Now(),
		Message:   "usage high",
	}
	if err := wh.Notify(context.Background(), payload); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	if received.Event != EventWatchPressure || received.Message != "usage high" {
		t.Errorf("received = %+v", received)
	}
}

func TestWebhookNotifyCustomHeaders(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	wh := NewWebhook(WebhookConfig{
		URL:     srv.URL,
		Headers: map[string]string{"Authorization": "Bearer token"},
	})

	if err := wh.Notify(context.Background(), WebhookPayload{Event: EventScanCompleted}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if got != "Bearer token" {
		t.Errorf("Authorization = %q", got)
	}
}

func TestWebhookNotifyErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	wh := NewWebhook(WebhookConfig{URL: srv.URL})

	err := wh.Notify(context.Background(), WebhookPayload{Event: EventScanCompleted})
	if err == nil {
		t.Error("expected error for 500 response")
	}
}

func TestWebhookEventFiltering(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
	}))
	defer srv.Close()

	wh := NewWebhook(WebhookConfig{
		URL:    srv.URL,
		Events: []EventType{EventWatchPressure},
	})

	ctx := context.Background()
	if err := wh.Notify(ctx, WebhookPayload{Event: EventScanCompleted}); err != nil {
		t.Fatalf("filtered Notify: %v", err)
	}
	if err := wh.Notify(ctx, WebhookPayload{Event: EventWatchPressure}); err != nil {
		t.Fatalf("matching Notify: %v", err)
	}

	if calls != 1 {
		t.Errorf("calls = %d, want 1 (only matching event delivered)", calls)
	}
}

type fakeNotifier struct {
	calls int
	err   error
}

func (f *fakeNotifier) Notify(_ context.Context, _ WebhookPayload) error {
	f.calls++
	return f.err
}

func TestMultiNotifierFansOut(t *testing.T) {
	a := &fakeNotifier{}
	b := &fakeNotifier{err: errors.New("down")}

	m := NewMultiNotifier(a, b)

	err := m.Notify(context.Background(), WebhookPayload{Event: EventScanCompleted})
	if err == nil {
		t.Error("expected aggregated error")
	}
	if a.calls != 1 || b.calls != 1 {
		t.Errorf("calls = %d, %d, want 1, 1", a.calls, b.calls)
	}
}

func TestPressurePayloadThreshold(t *testing.T) {
	summary := UsageSummary{
		TotalWatches:   9000,
		MaxUserWatches: 10000,
	}

	if _, fire := PressurePayload(summary, 0.95); fire {
		t.Error("fired below threshold")
	}

	payload, fire := PressurePayload(summary, 0.8)
	if !fire {
		t.Fatal("did not fire above threshold")
	}
	if payload.Event != EventWatchPressure {
		t.Errorf("event = %s", payload.Event)
	}
	if payload.Summary.UsedPct != 90 {
		t.Errorf("UsedPct = %v, want 90", payload.Summary.UsedPct)
	}
}

func TestPressurePayloadUnknownLimit(t *testing.T) {
	summary := UsageSummary{TotalWatches: 100, MaxUserWatches: -1}
	if _, fire := PressurePayload(summary, 0.5); fire {
		t.Error("fired with unknown limit")
	}
}

func TestSlackPayloadPressure(t *testing.T) {
	payload, _ := PressurePayload(UsageSummary{
		TotalWatches:   9000,
		TotalInstances: 12,
		MaxUserWatches: 10000,
		TopProcesses:   []ProcessUsage{{PID: 42, App: "goland", Watches: 8000}},
	}, 0.5)

	slack := SlackPayload(payload)
	attachments := slack["attachments"].([]map[string]interface{})
	if len(attachments) != 1 {
		t.Fatalf("attachments = %v", attachments)
	}
	if attachments[0]["color"] != "danger" {
		t.Errorf("color = %v", attachments[0]["color"])
	}
}
