package core

import "fmt"

// DevID identifies the filesystem/volume an inode number is scoped to.
// It uses the Linux "huge" dev_t encoding (12-bit-plus major, 20-bit-plus
// minor, same layout as glibc makedev), so values built here compare equal
// to the st_dev field of a stat call on the same filesystem.
type DevID uint64

// MkDev combines a major and minor number into a DevID.
func MkDev(major, minor uint32) DevID {
	dev := uint64(major&0x00000fff) << 8
	dev |= uint64(major&0xfffff000) << 32
	dev |= uint64(minor & 0x000000ff)
	dev |= uint64(minor&0xffffff00) << 12
	return DevID(dev)
}

// Major extracts the major number.
func (d DevID) Major() uint32 {
	dev := uint64(d)
	return uint32((dev&0x00000000000fff00)>>8) | uint32((dev&0xfffff00000000000)>>32)
}

// Minor extracts the minor number.
func (d DevID) Minor() uint32 {
	dev := uint64(d)
	return uint32(dev&0x00000000000000ff) | uint32((dev&0x00000ffffff00000)>>12)
}

// DevFromSdev decodes the sdev field of an inotify fdinfo line.
// sdev packs the watched filesystem's device with 20 bits for the minor
// number: major is sdev>>20, minor is sdev&0xfffff.
func DevFromSdev(sdev uint64) DevID {
	return MkDev(uint32(sdev>>20), uint32(sdev&0xfffff))
}

// String renders the id as "major:minor".
func (d DevID) String() string {
	return fmt.Sprintf("%d:%d", d.Major(), d.Minor())
}
