//go:build linux

package bptfile

import (
	"os"

	"golang.org/x/sys/unix"
)

// fdatasync flushes written data without forcing a metadata sync.
func fdatasync(f *os.File) error {
	return unix.Fdatasync(int(f.Fd()))
}
