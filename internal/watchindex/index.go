// Package watchindex maps watched inode numbers to the devices they are
// watched on. The index is built once, by a single goroutine, before any
// scan worker starts; after that it is read-only and safe for concurrent
// lookup without locking.
package watchindex

import "github.com/ChrisB0-2/watch-sage/internal/core"

// Index holds inode -> set of device ids.
type Index struct {
	inodes map[uint64]map[core.DevID]struct{}
}

// Build folds watch records into an index. Records typically come from the
// process-table collector, restricted to the processes the caller selected.
func Build(records []core.WatchRecord) *Index {
	idx := &Index{inodes: make(map[uint64]map[core.DevID]struct{}, len(records))}
	for _, r := range records {
		devs, ok := idx.inodes[r.Inode]
		if !ok {
			devs = make(map[core.DevID]struct{}, 1)
			idx.inodes[r.Inode] = devs
		}
		devs[r.Dev] = struct{}{}
	}
	return idx
}

// Len reports the number of distinct watched inodes.
func (x *Index) Len() int {
	return len(x.inodes)
}

// Devices returns the device set a candidate inode must be verified
// against, and whether the inode is watched at all. Letting callers check
// the inode before paying for a stat call is the point of this two-step
// API: inode numbers are only unique within one device, so a hit here is
// necessary but not sufficient.
func (x *Index) Devices(ino uint64) (map[core.DevID]struct{}, bool) {
	devs, ok := x.inodes[ino]
	return devs, ok
}

// IsWatched reports whether the (inode, device) pair is watched. A bare
// inode match without the device match is rejected.
func (x *Index) IsWatched(ino uint64, dev core.DevID) bool {
	devs, ok := x.inodes[ino]
	if !ok {
		return false
	}
	_, ok = devs[dev]
	return ok
}
