package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewServerDefaultAddr(t *testing.T) {
	s := NewServer("", nil)
	if s.Addr() != ":9090" {
		t.Errorf("Addr = %q, want :9090", s.Addr())
	}

	s = NewServer(":7070", nil)
	if s.Addr() != ":7070" {
		t.Errorf("Addr = %q, want :7070", s.Addr())
	}
}

func TestServerHealthEndpoint(t *testing.T) {
	s := NewServer(":0", nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}
	if body := rec.Body.String(); !strings.Contains(body, `"service":"watch-sage"`) {
		t.Errorf("body = %q", body)
	}
}

func TestServerMetricsEndpoint(t *testing.T) {
	s := NewServer(":0", nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestServerStartBadAddress(t *testing.T) {
	s := NewServer("256.256.256.256:99999", nil)

	if err := s.Start(); err == nil {
		t.Error("expected bind error for invalid address")
	}
}
