//go:build !linux

package device

import "os"

// probeSize determines the byte size of f from stat alone. Raw block
// devices on non-Linux platforms report -1 (unknown).
func probeSize(f *os.File) int64 {
	info, err := f.Stat()
	if err != nil {
		return -1
	}
	if info.Mode().IsRegular() {
		return info.Size()
	}
	return -1
}
