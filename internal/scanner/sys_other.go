//go:build !linux

package scanner

// The scan depends on getdents64 and statx; on other platforms the
// coordinator reports core.ErrUnsupportedPlatform before any worker runs.

const platformSupported = false

func (w *worker) scanDir(path string) {}

func (w *worker) checkRoot(root string) {}
