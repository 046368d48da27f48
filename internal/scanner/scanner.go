// Package scanner walks a directory tree in parallel looking for paths
// whose (device, inode) pair is present in the watched-inode index.
//
// Each worker owns one queue in a lock-free pool and enqueues discovered
// subdirectories only onto its own queue; a worker whose queue runs dry
// steals from its peers. Completion is tracked with an outstanding-work
// counter: it is incremented on every enqueue and decremented only after
// an item has been fully processed, including all of its own enqueues, so
// a worker retires exactly when no queued or in-flight work remains.
package scanner

import (
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ChrisB0-2/watch-sage/internal/core"
	"github.com/ChrisB0-2/watch-sage/internal/lfqueue"
	"github.com/ChrisB0-2/watch-sage/internal/logger"
	"github.com/ChrisB0-2/watch-sage/internal/metrics"
	"github.com/ChrisB0-2/watch-sage/internal/watchindex"
)

const (
	// maxWorkers caps the default worker count; an explicit Options
	// value may exceed it.
	maxWorkers = 32

	// direntBufSize is the per-worker buffer handed to the bulk
	// directory-entry read.
	direntBufSize = 8 * 1024
)

// Options configures a scan. The zero value scans "/" with the default
// worker count and no ignore list.
type Options struct {
	Root       string   // directory the walk starts from; default "/"
	Workers    int      // 0 or negative selects min(num CPUs, 32)
	IgnoreDirs []string // absolute directory prefixes never entered
}

// Coordinator seeds the scan, drives the worker pool, and merges the
// per-worker results. A started scan always runs to completion; there is
// no cancellation or timeout.
type Coordinator struct {
	idx  *watchindex.Index
	opts Options
	log  logger.Logger
	m    core.Metrics
}

// New creates a coordinator with no-op logging and metrics.
func New(idx *watchindex.Index, opts Options) *Coordinator {
	return NewWithMetrics(idx, opts, nil, nil)
}

// NewWithMetrics creates a coordinator with the given logger and metrics.
func NewWithMetrics(idx *watchindex.Index, opts Options, log logger.Logger, m core.Metrics) *Coordinator {
	if log == nil {
		log = logger.NewNop()
	}
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Coordinator{idx: idx, opts: opts, log: log, m: m}
}

type worker struct {
	id      int
	pool    *lfqueue.Pool[string]
	idx     *watchindex.Index
	ignore  []string
	pending *atomic.Int64
	log     logger.Logger
	m       core.Metrics

	direntBuf []byte

	dirsScanned uint64
	matches     []core.FoundFile
}

// Run executes the scan and returns the merged result. It refuses to
// start on an empty index: with nothing to look for there is nothing to
// scan. An unreadable root yields zero results, not an error.
func (c *Coordinator) Run() (core.ScanResult, error) {
	if c.idx.Len() == 0 {
		return core.ScanResult{}, core.ErrEmptyIndex
	}
	if !platformSupported {
		return core.ScanResult{}, core.ErrUnsupportedPlatform
	}

	root := normalizeRoot(c.opts.Root)
	workers := WorkerCount(c.opts.Workers)
	ignore := normalizeIgnoreDirs(c.opts.IgnoreDirs)

	c.log.Debug("scan starting",
		logger.F("root", root),
		logger.F("workers", workers),
		logger.F("watched_inodes", c.idx.Len()),
	)

	start := time.Now()

	pool := lfqueue.NewPool[string](workers)
	defer pool.Destroy()

	var pending atomic.Int64

	ws := make([]*worker, workers)
	for i := range ws {
		ws[i] = &worker{
			id:        i,
			pool:      pool,
			idx:       c.idx,
			ignore:    ignore,
			pending:   &pending,
			log:       c.log,
			m:         c.m,
			direntBuf: make([]byte, direntBufSize),
		}
	}

	// The root itself may be watched.
	ws[0].checkRoot(root)

	// Seed worker 0 and process the first unit synchronously so peers
	// have material to steal the moment they start.
	pending.Add(1)
	pool.Enqueue(0, root)
	ws[0].processOne()

	var wg sync.WaitGroup
	for i := 1; i < workers; i++ {
		wg.Add(1)
		go func(w *worker) {
			defer wg.Done()
			w.loop()
		}(ws[i])
	}

	// The seeding goroutine joins the pool under the same retire rule.
	ws[0].loop()
	wg.Wait()

	var res core.ScanResult
	for _, w := range ws {
		res.DirsScanned += w.dirsScanned
		res.Matches = append(res.Matches, w.matches...)
	}
	sortMatches(res.Matches)
	res.Elapsed = time.Since(start)

	c.m.ObserveScanDuration(res.Elapsed)
	c.log.Debug("scan complete",
		logger.F("dirs_scanned", res.DirsScanned),
		logger.F("matches", len(res.Matches)),
		logger.F("elapsed", res.Elapsed.String()),
	)

	return res, nil
}

func (w *worker) loop() {
	for {
		path, ok := w.pool.Dequeue(w.id)
		if !ok {
			if w.pending.Load() == 0 {
				return
			}
			// Peers still hold in-flight items that may fan out;
			// yield and look again.
			runtime.Gosched()
			continue
		}
		w.scanDir(path)
		w.pending.Add(-1)
	}
}

// processOne handles a single queued item, if any.
func (w *worker) processOne() {
	path, ok := w.pool.Dequeue(w.id)
	if !ok {
		return
	}
	w.scanDir(path)
	w.pending.Add(-1)
}

// ignored reports whether path falls under one of the never-enter
// prefixes.
func (w *worker) ignored(path string) bool {
	for _, prefix := range w.ignore {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// WorkerCount resolves an Options.Workers value to the effective worker
// count: explicit positive values pass through, anything else selects
// one worker per CPU capped at 32.
func WorkerCount(n int) int {
	if n >= 1 {
		return n
	}
	n = runtime.NumCPU()
	if n > maxWorkers {
		n = maxWorkers
	}
	if n < 1 {
		n = 1
	}
	return n
}

// normalizeRoot cleans the root path and guarantees a trailing separator
// so child paths concatenate without a join.
func normalizeRoot(root string) string {
	if root == "" {
		root = "/"
	}
	root = filepath.Clean(root)
	if !strings.HasSuffix(root, "/") {
		root += "/"
	}
	return root
}

func normalizeIgnoreDirs(dirs []string) []string {
	out := make([]string, 0, len(dirs))
	for _, d := range dirs {
		if d == "" || !strings.HasPrefix(d, "/") {
			continue
		}
		d = filepath.Clean(d)
		if !strings.HasSuffix(d, "/") {
			d += "/"
		}
		out = append(out, d)
	}
	return out
}

// sortMatches orders by (device, inode) ascending, with path as the final
// tie-break so output is fully deterministic regardless of worker count.
func sortMatches(matches []core.FoundFile) {
	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Dev != b.Dev {
			return a.Dev < b.Dev
		}
		if a.Inode != b.Inode {
			return a.Inode < b.Inode
		}
		return a.Path < b.Path
	})
}
