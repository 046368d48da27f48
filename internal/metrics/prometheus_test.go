package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersIncrement(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheus(reg)

	m.IncDirsScanned()
	m.IncDirsScanned()
	m.IncMatches()

	if got := testutil.ToFloat64(m.dirsScanned); got != 2 {
		t.Errorf("dirs_scanned_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.matches); got != 1 {
		t.Errorf("matches_total = %v, want 1", got)
	}
}

func TestGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheus(reg)

	m.SetWatches(28200)
	m.SetInstances(100)

	if got := testutil.ToFloat64(m.watches); got != 28200 {
		t.Errorf("inotify_watches = %v, want 28200", got)
	}
	if got := testutil.ToFloat64(m.instances); got != 100 {
		t.Errorf("inotify_instances = %v, want 100", got)
	}
}

func TestScanDurationObserved(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheus(reg)

	m.ObserveScanDuration(1500 * time.Millisecond)

	count := testutil.CollectAndCount(m.scanDuration)
	if count != 1 {
		t.Errorf("histogram metric families = %d, want 1", count)
	}
}
