// Package notifier delivers inotify usage alerts to HTTP endpoints.
// Its main job is warning before a user runs out of inotify watches.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Event types for notifications
type EventType string

const (
	EventMonitorStarted EventType = "monitor_started"
	EventMonitorStopped EventType = "monitor_stopped"
	EventScanCompleted  EventType = "scan_completed"
	EventWatchPressure  EventType = "watch_pressure"
)

// ProcessUsage identifies one inotify-heavy process in a summary.
type ProcessUsage struct {
	PID     int    `json:"pid"`
	App     string `json:"app"`
	Watches int    `json:"watches"`
}

// UsageSummary contains statistics from a collection run.
type UsageSummary struct {
	TotalWatches   int            `json:"total_watches"`
	TotalInstances int            `json:"total_instances"`
	MaxUserWatches int            `json:"max_user_watches"`
	UsedPct        float64        `json:"used_pct"`
	TopProcesses   []ProcessUsage `json:"top_processes,omitempty"`
	CollectedAt    time.Time      `json:"collected_at"`
}

// WebhookPayload is the JSON payload sent to webhook endpoints
type WebhookPayload struct {
	Event     EventType     `json:"event"`
	Timestamp time.Time     `json:"timestamp"`
	Hostname  string        `json:"hostname,omitempty"`
	Summary   *UsageSummary `json:"summary,omitempty"`
	Message   string        `json:"message,omitempty"`
}

// WebhookConfig configures a webhook notification endpoint
type WebhookConfig struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Events  []EventType       `yaml:"events,omitempty"` // Empty = all events
	Timeout time.Duration     `yaml:"timeout,omitempty"`
}

// Webhook sends notifications to HTTP endpoints
type Webhook struct {
	config WebhookConfig
	client *http.Client
}

// NewWebhook creates a new webhook notifier
func NewWebhook(cfg WebhookConfig) *Webhook {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &Webhook{
		config: cfg,
		client: &http.Client{Timeout: timeout},
	}
}

// Notify sends a notification to the webhook endpoint
func (w *Webhook) Notify(ctx context.Context, payload WebhookPayload) error {
	if !w.shouldNotify(payload.Event) {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "watch-sage/1.0")

	for k, v := range w.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

func (w *Webhook) shouldNotify(event EventType) bool {
	// Empty events list means notify for all events
	if len(w.config.Events) == 0 {
		return true
	}

	for _, e := range w.config.Events {
		if e == event {
			return true
		}
	}
	return false
}

// Notifier is the interface for sending notifications
type Notifier interface {
	Notify(ctx context.Context, payload WebhookPayload) error
}

// MultiNotifier sends notifications to multiple endpoints
type MultiNotifier struct {
	mu        sync.RWMutex
	notifiers []Notifier
}

// NewMultiNotifier creates a notifier that sends to multiple endpoints
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Notify sends to all configured notifiers, collecting errors
func (m *MultiNotifier) Notify(ctx context.Context, payload WebhookPayload) error {
	m.mu.RLock()
	notifiers := make([]Notifier, len(m.notifiers))
	copy(notifiers, m.notifiers)
	m.mu.RUnlock()

	var errs []error
	for _, n := range notifiers {
		if err := n.Notify(ctx, payload); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notification errors: %v", errs)
	}
	return nil
}

// Add adds a notifier to the multi-notifier
func (m *MultiNotifier) Add(n Notifier) {
	m.mu.Lock()
	m.notifiers = append(m.notifiers, n)
	m.mu.Unlock()
}

// NoopNotifier does nothing (for when notifications are disabled)
type NoopNotifier struct{}

func (n *NoopNotifier) Notify(ctx context.Context, payload WebhookPayload) error {
	return nil
}

// PressurePayload builds a watch_pressure payload when usage crosses the
// given fraction of the per-user watch limit. Returns false when usage is
// below the threshold or the limit is unknown.
func PressurePayload(summary UsageSummary, threshold float64) (WebhookPayload, bool) {
	if summary.MaxUserWatches <= 0 {
		return WebhookPayload{}, false
	}

	usedPct := float64(summary.TotalWatches) / float64(summary.MaxUserWatches) * 100
	if usedPct < threshold*100 {
		return WebhookPayload{}, false
	}

	summary.UsedPct = usedPct
	return WebhookPayload{
		Event:     EventWatchPressure,
		Timestamp: time.Now(),
		Summary:   &summary,
		Message: fmt.Sprintf("inotify watches at %.1f%% of max_user_watches (%d of %d)",
			usedPct, summary.TotalWatches, summary.MaxUserWatches),
	}, true
}

// SlackPayload formats a webhook payload for Slack
func SlackPayload(payload WebhookPayload) map[string]interface{} {
	var color, title string
	switch payload.Event {
	case EventWatchPressure:
		color = "danger"
		title = "Watch-Sage: inotify watch limit pressure"
	case EventScanCompleted:
		color = "good"
		title = "Watch-Sage: scan completed"
	case EventMonitorStarted:
		color = "#439FE0"
		title = "Watch-Sage: monitor started"
	default:
		color = "#808080"
		title = fmt.Sprintf("Watch-Sage: %s", payload.Event)
	}

	fields := []map[string]interface{}{}

	if payload.Summary != nil {
		fields = append(fields,
			map[string]interface{}{"title": "Watches", "value": fmt.Sprintf("%d", payload.Summary.TotalWatches), "short": true},
			map[string]interface{}{"title": "Instances", "value": fmt.Sprintf("%d", payload.Summary.TotalInstances), "short": true},
			map[string]interface{}{"title": "Limit", "value": fmt.Sprintf("%d", payload.Summary.MaxUserWatches), "short": true},
			map[string]interface{}{"title": "Used", "value": fmt.Sprintf("%.1f%%", payload.Summary.UsedPct), "short": true},
		)
		for _, p := range payload.Summary.TopProcesses {
			fields = append(fields,
				map[string]interface{}{"title": p.App, "value": fmt.Sprintf("pid %d, %d watches", p.PID, p.Watches), "short": true},
			)
		}
	}

	return map[string]interface{}{
		"attachments": []map[string]interface{}{
			{
				"color":  color,
				"title":  title,
				"text":   payload.Message,
				"fields": fields,
				"footer": "watch-sage",
				"ts":     payload.Timestamp.Unix(),
			},
		},
	}
}
