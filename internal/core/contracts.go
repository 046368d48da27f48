package core

import (
	"context"
	"errors"
	"time"
)

// WatchRecord is one (process, watch) pair collected from the process table.
// It is the input the watched-inode index is folded from.
type WatchRecord struct {
	PID   int
	Inode uint64
	Dev   DevID
}

// FoundFile is a filesystem object whose (device, inode) pair is watched.
// Directory paths carry a trailing separator so a watched directory is
// distinguishable from a watched file of the same name.
type FoundFile struct {
	Dev   DevID
	Inode uint64
	Path  string
	IsDir bool
}

// ScanResult aggregates a completed scan phase. Matches are sorted by
// (device, inode, path) ascending.
type ScanResult struct {
	DirsScanned uint64
	Matches     []FoundFile
	Elapsed     time.Duration
}

var (
	// ErrEmptyIndex means there is nothing to search for; the scan phase
	// is skipped and zero results are reported. Not a process failure.
	ErrEmptyIndex = errors.New("watched-inode index is empty")

	// ErrUnsupportedPlatform is returned by the scanner on platforms
	// without the raw directory-enumeration backend.
	ErrUnsupportedPlatform = errors.New("scan not supported on this platform")
)

// Metrics defines the interface for collecting operational metrics.
type Metrics interface {
	IncDirsScanned()
	IncMatches()
	ObserveScanDuration(d time.Duration)
	SetWatches(n int)
	SetInstances(n int)
}

// Auditor records scan-history events.
type Auditor interface {
	Record(ctx context.Context, evt AuditEvent)
}

// AuditEvent is a single scan-history entry.
type AuditEvent struct {
	Time   time.Time
	Action string // "scan", "match", or "collect"
	Path   string
	Fields map[string]any
	Err    error
}

// NewScanAuditEvent summarizes a finished scan phase.
func NewScanAuditEvent(root string, res ScanResult) AuditEvent {
	return AuditEvent{
		Time:   time.Now(),
		Action: "scan",
		Path:   root,
		Fields: map[string]any{
			"dirs_scanned": res.DirsScanned,
			"matches":      len(res.Matches),
			"elapsed_ms":   res.Elapsed.Milliseconds(),
		},
	}
}

// NewMatchAuditEvent records a single watched path that was found.
func NewMatchAuditEvent(f FoundFile) AuditEvent {
	return AuditEvent{
		Time:   time.Now(),
		Action: "match",
		Path:   f.Path,
		Fields: map[string]any{
			"device": f.Dev.String(),
			"inode":  f.Inode,
			"is_dir": f.IsDir,
		},
	}
}
