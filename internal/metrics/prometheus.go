package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ChrisB0-2/watch-sage/internal/core"
)

// Prometheus implements core.Metrics using the Prometheus client.
type Prometheus struct {
	dirsScanned  prometheus.Counter
	matches      prometheus.Counter
	scanDuration prometheus.Histogram
	watches      prometheus.Gauge
	instances    prometheus.Gauge
}

// NewPrometheus creates a metrics collector registered with reg. If reg is
// nil, prometheus.DefaultRegisterer is used.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)

	return &Prometheus{
		dirsScanned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "watchsage",
			Subsystem: "scanner",
			Name:      "dirs_scanned_total",
			Help:      "Total number of directories opened and enumerated",
		}),

		matches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "watchsage",
			Subsystem: "scanner",
			Name:      "matches_total",
			Help:      "Total number of watched paths found",
		}),

		scanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "watchsage",
			Subsystem: "scanner",
			Name:      "scan_duration_seconds",
			Help:      "Wall-clock duration of the scan phase",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s to ~100s
		}),

		watches: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "watchsage",
			Subsystem: "procwatch",
			Name:      "inotify_watches",
			Help:      "Total inotify watches found in the process table",
		}),

		instances: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "watchsage",
			Subsystem: "procwatch",
			Name:      "inotify_instances",
			Help:      "Total inotify instances found in the process table",
		}),
	}
}

func (p *Prometheus) IncDirsScanned() {
	p.dirsScanned.Inc()
}

func (p *Prometheus) IncMatches() {
	p.matches.Inc()
}

func (p *Prometheus) ObserveScanDuration(d time.Duration) {
	p.scanDuration.Observe(d.Seconds())
}

func (p *Prometheus) SetWatches(n int) {
	p.watches.Set(float64(n))
}

func (p *Prometheus) SetInstances(n int) {
	p.instances.Set(float64(n))
}

// Ensure Prometheus implements core.Metrics
var _ core.Metrics = (*Prometheus)(nil)
