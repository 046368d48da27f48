//go:build !linux

package procwatch

// KernelProvidesWatchInfo always reports false on platforms without
// inotify.
func KernelProvidesWatchInfo() bool {
	return false
}
