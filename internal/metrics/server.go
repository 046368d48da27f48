package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ChrisB0-2/watch-sage/internal/logger"
)

// Server exposes the metrics registry over HTTP so a scrape target exists
// while a scan or monitor pass is running. It serves the Prometheus
// exposition format on /metrics and a small JSON liveness document on
// /health.
type Server struct {
	addr   string
	log    logger.Logger
	server *http.Server
}

// NewServer builds a scrape endpoint on addr, or ":9090" when addr is
// empty. A nil log is replaced with a no-op logger.
func NewServer(addr string, log logger.Logger) *Server {
	if addr == "" {
		addr = ":9090"
	}
	if log == nil {
		log = logger.NewNop()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintln(w, `{"status":"ok","service":"watch-sage"}`)
	})

	return &Server{
		addr: addr,
		log:  log,
		server: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start binds the listen address and serves until Shutdown. A bind
// failure is reported from here, not swallowed by the serve loop, so the
// caller learns about a taken port immediately.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("metrics listen on %s: %w", s.addr, err)
	}

	s.log.Debug("metrics endpoint up", logger.F("addr", ln.Addr().String()))

	if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the scrape endpoint.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}
