package metrics

import (
	"time"

	"github.com/ChrisB0-2/watch-sage/internal/core"
)

// Noop discards all metrics. Used when metrics are disabled.
type Noop struct{}

// NewNoop creates a no-op metrics collector.
func NewNoop() *Noop {
	return &Noop{}
}

func (*Noop) IncDirsScanned()                     {}
func (*Noop) IncMatches()                         {}
func (*Noop) ObserveScanDuration(_ time.Duration) {}
func (*Noop) SetWatches(_ int)                    {}
func (*Noop) SetInstances(_ int)                  {}

var _ core.Metrics = (*Noop)(nil)
