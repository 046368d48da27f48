//go:build linux

package scanner

// Linux backend: directory enumeration uses getdents64 via
// unix.ReadDirent, parsing raw linux_dirent64 records in place, and
// device/inode resolution prefers statx (which can fetch just the fields
// we need) with a one-way fallback to lstat when the kernel or seccomp
// policy refuses it.

import (
	"bytes"
	"encoding/binary"
	"strings"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/ChrisB0-2/watch-sage/internal/core"
	"github.com/ChrisB0-2/watch-sage/internal/logger"
)

const platformSupported = true

// linux_dirent64 layout (linux/dirent.h):
//
//	struct linux_dirent64 {
//	    ino64_t        d_ino;    // 8 bytes  (offset 0)
//	    off64_t        d_off;    // 8 bytes  (offset 8)
//	    unsigned short d_reclen; // 2 bytes  (offset 16)
//	    unsigned char  d_type;   // 1 byte   (offset 18)
//	    char           d_name[]; // variable (offset 19)
//	};
const (
	direntReclenOffset = 16
	direntTypeOffset   = 18
	direntNameOffset   = 19
)

// Superblock magic numbers from linux/magic.h. Proc and fuse mounts are
// never entered: synthetic trees can be enormous or non-terminating.
const (
	procSuperMagic = 0x9fa0
	fuseSuperMagic = 0x65735546
)

// scanDir opens path and processes every entry in it. All failures are
// soft: the directory is skipped or truncated and the scan continues.
func (w *worker) scanDir(path string) {
	if w.ignored(path) {
		w.log.Debug("ignoring directory", logger.F("path", path))
		return
	}

	fd, err := openDir(path)
	if err != nil {
		w.log.Debug("open failed", logger.F("path", path), logger.F("error", err.Error()))
		return
	}
	defer unix.Close(fd)

	w.dirsScanned++
	w.m.IncDirsScanned()

	for {
		n, err := readDirents(fd, w.direntBuf)
		if err != nil {
			// Keep everything already queued and recorded.
			if !suppressReadError(path, err) {
				w.log.Warn("directory read failed",
					logger.F("path", path),
					logger.F("error", err.Error()),
				)
			}
			return
		}
		if n == 0 {
			return
		}
		w.walkBatch(path, w.direntBuf[:n], fd)
	}
}

// walkBatch parses one getdents64 batch. path carries a trailing
// separator, so full paths are plain concatenations.
func (w *worker) walkBatch(path string, buf []byte, dirfd int) {
	for len(buf) >= direntNameOffset {
		reclen := int(binary.NativeEndian.Uint16(buf[direntReclenOffset:]))
		if reclen < direntNameOffset || reclen > len(buf) {
			// Malformed record; drop the rest of the batch.
			return
		}
		entry := buf[:reclen]
		buf = buf[reclen:]

		ino := binary.NativeEndian.Uint64(entry)
		typ := entry[direntTypeOffset]
		name := entry[direntNameOffset:]
		if i := bytes.IndexByte(name, 0); i >= 0 {
			name = name[:i]
		}
		if len(name) == 0 || isDotEntry(name) {
			continue
		}

		switch typ {
		case unix.DT_REG, unix.DT_LNK:
			w.check(ino, path+string(name), false)

		case unix.DT_DIR:
			w.enterDir(path, string(name), ino)

		case unix.DT_UNKNOWN:
			// Filesystem without d_type support; classify the entry
			// ourselves.
			kind, err := classifyAt(dirfd, string(name))
			if err != nil {
				continue
			}
			switch kind {
			case kindReg, kindSymlink:
				w.check(ino, path+string(name), false)
			case kindDir:
				w.enterDir(path, string(name), ino)
			}
		}
	}
}

// enterDir match-tests a subdirectory (directories can themselves be
// watched) and queues it for recursion unless it sits on a virtual mount.
func (w *worker) enterDir(path, name string, ino uint64) {
	child := path + name
	w.check(ino, child, true)
	if isVirtualMount(child) {
		w.log.Debug("skipping virtual mount", logger.F("path", child))
		return
	}
	w.pending.Add(1)
	w.pool.Enqueue(w.id, child+"/")
}

// check tests a candidate against the index. The inode is looked up first
// so the stat call is only paid for entries that can possibly match; the
// device then co-verifies the hit, since inode numbers are only unique
// within one filesystem.
func (w *worker) check(ino uint64, path string, isDir bool) {
	devs, ok := w.idx.Devices(ino)
	if !ok {
		return
	}
	dev, err := statDev(path)
	if err != nil {
		return
	}
	if _, ok := devs[dev]; !ok {
		return
	}
	if isDir {
		path += "/"
	}
	w.matches = append(w.matches, core.FoundFile{Dev: dev, Inode: ino, Path: path, IsDir: isDir})
	w.m.IncMatches()
}

// checkRoot match-tests the scan root itself before any worker starts.
func (w *worker) checkRoot(root string) {
	ino, dev, err := statInodeDev(root)
	if err != nil {
		return
	}
	if w.idx.IsWatched(ino, dev) {
		w.matches = append(w.matches, core.FoundFile{Dev: dev, Inode: ino, Path: root, IsDir: true})
		w.m.IncMatches()
	}
}

func isDotEntry(name []byte) bool {
	if len(name) == 1 && name[0] == '.' {
		return true
	}
	return len(name) == 2 && name[0] == '.' && name[1] == '.'
}

func openDir(path string) (int, error) {
	for {
		fd, err := unix.Open(path, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
		if err == unix.EINTR {
			continue
		}
		return fd, err
	}
}

func readDirents(fd int, buf []byte) (int, error) {
	for {
		n, err := unix.ReadDirent(fd, buf)
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}

// suppressReadError hides the EIO noise containers produce under
// /sys/kernel, where getdents can fail on restricted entries.
func suppressReadError(path string, err error) bool {
	return err == unix.EIO && strings.HasPrefix(path, "/sys/kernel/")
}

// statxSupported flips to false the first time statx comes back ENOSYS or
// EPERM; after that every probe goes straight to lstat.
var statxSupported atomic.Bool

func init() {
	statxSupported.Store(true)
}

const statxFlags = unix.AT_NO_AUTOMOUNT | unix.AT_SYMLINK_NOFOLLOW | unix.AT_STATX_DONT_SYNC

// statDev resolves the device a path lives on as a (major, minor) pair.
func statDev(path string) (core.DevID, error) {
	if statxSupported.Load() {
		var stx unix.Statx_t
		err := statxRetry(path, 0, &stx)
		if err == nil {
			return core.MkDev(stx.Dev_major, stx.Dev_minor), nil
		}
		if err != unix.ENOSYS && err != unix.EPERM {
			return 0, err
		}
		statxSupported.Store(false)
	}

	var st unix.Stat_t
	if err := lstatRetry(path, &st); err != nil {
		return 0, err
	}
	return core.DevID(st.Dev), nil
}

// statInodeDev resolves both the inode and device for a path.
func statInodeDev(path string) (uint64, core.DevID, error) {
	if statxSupported.Load() {
		var stx unix.Statx_t
		err := statxRetry(path, unix.STATX_INO, &stx)
		if err == nil {
			return stx.Ino, core.MkDev(stx.Dev_major, stx.Dev_minor), nil
		}
		if err != unix.ENOSYS && err != unix.EPERM {
			return 0, 0, err
		}
		statxSupported.Store(false)
	}

	var st unix.Stat_t
	if err := lstatRetry(path, &st); err != nil {
		return 0, 0, err
	}
	return st.Ino, core.DevID(st.Dev), nil
}

func statxRetry(path string, mask int, stx *unix.Statx_t) error {
	for {
		err := unix.Statx(unix.AT_FDCWD, path, statxFlags, mask, stx)
		if err == unix.EINTR {
			continue
		}
		return err
	}
}

func lstatRetry(path string, st *unix.Stat_t) error {
	for {
		err := unix.Lstat(path, st)
		if err == unix.EINTR {
			continue
		}
		return err
	}
}

// isVirtualMount probes the filesystem type under path. A statfs failure
// counts as "not virtual"; the later open decides whether the directory
// is usable at all.
func isVirtualMount(path string) bool {
	var sfs unix.Statfs_t
	if err := unix.Statfs(path, &sfs); err != nil {
		return false
	}
	switch sfs.Type {
	case procSuperMagic, fuseSuperMagic:
		return true
	}
	return false
}

type entryKind int

const (
	kindOther entryKind = iota
	kindReg
	kindDir
	kindSymlink
)

// classifyAt stats a directory entry relative to its parent fd. Only used
// when getdents reports DT_UNKNOWN.
func classifyAt(dirfd int, name string) (entryKind, error) {
	var st unix.Stat_t
	for {
		err := unix.Fstatat(dirfd, name, &st, unix.AT_SYMLINK_NOFOLLOW)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return kindOther, err
		}
		break
	}

	switch st.Mode & unix.S_IFMT {
	case unix.S_IFREG:
		return kindReg, nil
	case unix.S_IFDIR:
		return kindDir, nil
	case unix.S_IFLNK:
		return kindSymlink, nil
	}
	return kindOther, nil
}
