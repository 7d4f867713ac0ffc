//go:build linux

package filestore

import (
	"os"

	"golang.org/x/sys/unix"
)

// datasync flushes file data (not all metadata) to the device.
func datasync(f *os.File) error {
	if err := unix.Fdatasync(int(f.Fd())); err != nil {
		return os.NewSyscallError("fdatasync", err)
	}
	return nil
}
