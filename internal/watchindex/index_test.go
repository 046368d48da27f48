package watchindex_test

import (
	"testing"

	"github.com/ChrisB0-2/watch-sage/internal/core"
	"github.com/ChrisB0-2/watch-sage/internal/watchindex"
)

func TestBuildEmpty(t *testing.T) {
	idx := watchindex.Build(nil)
	if idx.Len() != 0 {
		t.Fatalf("empty build Len = %d, want 0", idx.Len())
	}
	if idx.IsWatched(42, core.MkDev(8, 1)) {
		t.Fatal("empty index reported a watch")
	}
}

// Two files can share an inode number on different devices; only the pair
// present in the index is a match.
func TestDeviceDisambiguation(t *testing.T) {
	devA := core.MkDev(8, 1)
	devB := core.MkDev(253, 0)

	idx := watchindex.Build([]core.WatchRecord{
		{PID: 100, Inode: 5865, Dev: devA},
	})

	if !idx.IsWatched(5865, devA) {
		t.Fatal("expected (5865, devA) to be watched")
	}
	if idx.IsWatched(5865, devB) {
		t.Fatal("inode match without device match must be rejected")
	}
	if idx.IsWatched(5866, devA) {
		t.Fatal("unwatched inode reported as watched")
	}
}

func TestDevicesSetAccumulates(t *testing.T) {
	devA := core.MkDev(8, 1)
	devB := core.MkDev(8, 2)

	idx := watchindex.Build([]core.WatchRecord{
		{PID: 1, Inode: 7, Dev: devA},
		{PID: 2, Inode: 7, Dev: devB},
		{PID: 2, Inode: 7, Dev: devA}, // duplicate record
	})

	if idx.Len() != 1 {
		t.Fatalf("Len = %d, want 1", idx.Len())
	}

	devs, ok := idx.Devices(7)
	if !ok {
		t.Fatal("inode 7 missing from index")
	}
	if len(devs) != 2 {
		t.Fatalf("device set size = %d, want 2", len(devs))
	}
}
