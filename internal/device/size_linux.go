//go:build linux

package device

import (
	"os"

	"golang.org/x/sys/unix"
)

// probeSize determines the byte size of f: plain stat for regular files,
// the BLKGETSIZE64 ioctl for block devices. Returns -1 when unknown.
func probeSize(f *os.File) int64 {
	info, err := f.Stat()
	if err != nil {
		return -1
	}
	if info.Mode().IsRegular() {
		return info.Size()
	}
	if info.Mode()&os.ModeDevice != 0 {
		size, err := unix.IoctlGetInt(int(f.Fd()), unix.BLKGETSIZE64)
		if err == nil && size > 0 {
			return int64(size)
		}
	}
	return -1
}
