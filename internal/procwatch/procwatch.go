// Package procwatch discovers inotify instances and watches by walking
// the /proc process table and parsing fdinfo entries.
package procwatch

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ChrisB0-2/watch-sage/internal/core"
	"github.com/ChrisB0-2/watch-sage/internal/logger"
)

// ProcInfo describes one process holding inotify instances.
type ProcInfo struct {
	PID        int
	UID        int
	Executable string
	AppName    string

	// Instances is the number of inotify file descriptors held.
	Instances int

	// Watches is the total watch count across all instances.
	Watches int

	// FDInfoPaths lists the fdinfo files the watches came from.
	FDInfoPaths []string

	// DevMap groups watched inode numbers by device.
	DevMap map[core.DevID]map[uint64]struct{}

	// Selected marks processes matched by user arguments.
	Selected bool
}

// Collector walks the process table looking for inotify users.
type Collector struct {
	procRoot string
	log      logger.Logger
}

// NewCollector creates a collector reading from /proc.
func NewCollector(log logger.Logger) *Collector {
	return NewCollectorAt("/proc", log)
}

// NewCollectorAt creates a collector reading from an alternate proc
// root. Used by tests.
func NewCollectorAt(procRoot string, log logger.Logger) *Collector {
	if log == nil {
		log = logger.NewNop()
	}
	return &Collector{procRoot: procRoot, log: log}
}

// Collect scans the process table and returns every process holding at
// least one inotify instance, sorted by watch count descending.
// Unreadable processes are skipped.
func (c *Collector) Collect() ([]*ProcInfo, error) {
	entries, err := os.ReadDir(c.procRoot)
	if err != nil {
		return nil, fmt.Errorf("read proc root: %w", err)
	}

	var procs []*ProcInfo

	for _, entry := range entries {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil || pid <= 0 {
			continue
		}

		info := c.collectPID(pid)
		if info == nil || info.Instances == 0 {
			continue
		}
		procs = append(procs, info)
	}

	sort.Slice(procs, func(i, j int) bool {
		if procs[i].Watches != procs[j].Watches {
			return procs[i].Watches > procs[j].Watches
		}
		return procs[i].PID < procs[j].PID
	})

	return procs, nil
}

func (c *Collector) collectPID(pid int) *ProcInfo {
	pidDir := filepath.Join(c.procRoot, strconv.Itoa(pid))

	fdDir := filepath.Join(pidDir, "fd")
	fds, err := os.ReadDir(fdDir)
	if err != nil {
		// permission denied for other users' processes, or the
		// process exited mid-walk
		return nil
	}

	info := &ProcInfo{
		PID:    pid,
		UID:    -1,
		DevMap: make(map[core.DevID]map[uint64]struct{}),
	}

	for _, fd := range fds {
		target, err := os.Readlink(filepath.Join(fdDir, fd.Name()))
		if err != nil {
			continue
		}
		if target != "anon_inode:inotify" && target != "inotify" {
			continue
		}

		info.Instances++

		fdinfoPath := filepath.Join(pidDir, "fdinfo", fd.Name())
		f, err := os.Open(fdinfoPath)
		if err != nil {
			c.log.Debug("fdinfo unreadable",
				logger.F("path", fdinfoPath), logger.F("error", err.Error()))
			continue
		}

		watches := parseFDInfo(f, info.DevMap)
		_ = f.Close()

		info.Watches += watches
		info.FDInfoPaths = append(info.FDInfoPaths, fdinfoPath)
	}

	if info.Instances == 0 {
		return nil
	}

	if exe, err := os.Readlink(filepath.Join(pidDir, "exe")); err == nil {
		info.Executable = exe
		info.AppName = filepath.Base(exe)
	}
	if info.AppName == "" {
		if comm, err := os.ReadFile(filepath.Join(pidDir, "comm")); err == nil {
			info.AppName = strings.TrimSpace(string(comm))
		}
	}

	info.UID = readUID(filepath.Join(pidDir, "status"))

	return info
}

// parseFDInfo reads one fdinfo file and accumulates watched inodes into
// devMap. Returns the number of watch lines seen.
//
// Watch lines look like:
//
//	inotify wd:3 ino:9f3 sdev:800011 mask:800afce ...
//
// where ino and sdev are hex. sdev packs the device major in the high
// bits above 20 and the minor in the low 20 bits.
func parseFDInfo(r io.Reader, devMap map[core.DevID]map[uint64]struct{}) int {
	watches := 0

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "inotify ") {
			continue
		}
		watches++

		var (
			ino    uint64
			sdev   uint64
			hasIno bool
			hasDev bool
		)
		for _, tok := range strings.Fields(line) {
			switch {
			case strings.HasPrefix(tok, "ino:"):
				if v, err := strconv.ParseUint(tok[len("ino:"):], 16, 64); err == nil {
					ino = v
					hasIno = true
				}
			case strings.HasPrefix(tok, "sdev:"):
				if v, err := strconv.ParseUint(tok[len("sdev:"):], 16, 64); err == nil {
					sdev = v
					hasDev = true
				}
			}
		}
		if !hasIno || !hasDev {
			continue
		}

		dev := core.DevFromSdev(sdev)
		inodes, ok := devMap[dev]
		if !ok {
			inodes = make(map[uint64]struct{})
			devMap[dev] = inodes
		}
		inodes[ino] = struct{}{}
	}

	return watches
}

func readUID(statusPath string) int {
	f, err := os.Open(statusPath)
	if err != nil {
		return -1
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "Uid:") {
			continue
		}
		fields := strings.Fields(line[len("Uid:"):])
		if len(fields) == 0 {
			return -1
		}
		uid, err := strconv.Atoi(fields[0])
		if err != nil {
			return -1
		}
		return uid
	}
	return -1
}

// Select marks processes matching the given arguments. Each argument is
// either a PID or a case-insensitive substring of the app name. Returns
// the number of processes selected.
func Select(procs []*ProcInfo, args []string) int {
	selected := 0

	for _, p := range procs {
		for _, arg := range args {
			if pid, err := strconv.Atoi(arg); err == nil {
				if p.PID == pid {
					p.Selected = true
				}
				continue
			}
			if strings.Contains(strings.ToLower(p.AppName), strings.ToLower(arg)) {
				p.Selected = true
			}
		}
		if p.Selected {
			selected++
		}
	}

	return selected
}

// Records flattens the watched inodes of all selected processes into
// watch records for index building.
func Records(procs []*ProcInfo) []core.WatchRecord {
	var records []core.WatchRecord

	for _, p := range procs {
		if !p.Selected {
			continue
		}
		for dev, inodes := range p.DevMap {
			for ino := range inodes {
				records = append(records, core.WatchRecord{
					PID:   p.PID,
					Inode: ino,
					Dev:   dev,
				})
			}
		}
	}

	return records
}

// Totals sums watches and instances across all processes.
func Totals(procs []*ProcInfo) (watches, instances int) {
	for _, p := range procs {
		watches += p.Watches
		instances += p.Instances
	}
	return watches, instances
}

// Limits holds the kernel's inotify resource limits.
type Limits struct {
	MaxQueuedEvents  int
	MaxUserInstances int
	MaxUserWatches   int
}

// ReadLimits reads the inotify sysctl limits. A limit that cannot be
// read is reported as -1.
func (c *Collector) ReadLimits() Limits {
	base := filepath.Join(c.procRoot, "sys", "fs", "inotify")
	return Limits{
		MaxQueuedEvents:  readIntFile(filepath.Join(base, "max_queued_events")),
		MaxUserInstances: readIntFile(filepath.Join(base, "max_user_instances")),
		MaxUserWatches:   readIntFile(filepath.Join(base, "max_user_watches")),
	}
}

func readIntFile(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return -1
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return -1
	}
	return n
}
