//go:build linux

package procwatch

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// KernelProvidesWatchInfo reports whether fdinfo files on this kernel
// expose per-watch inotify lines. Kernels built without fdinfo support
// still list instances but give no watch details, so the scan phase
// cannot run.
//
// The probe creates a throwaway inotify instance with one watch and
// checks its own fdinfo for a watch line.
func KernelProvidesWatchInfo() bool {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC)
	if err != nil {
		return false
	}
	defer unix.Close(fd)

	if _, err := unix.InotifyAddWatch(fd, "/", unix.IN_CREATE); err != nil {
		return false
	}

	f, err := os.Open("/proc/self/fdinfo/" + strconv.Itoa(fd))
	if err != nil {
		return false
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if strings.HasPrefix(sc.Text(), "inotify ") {
			return true
		}
	}
	return false
}
