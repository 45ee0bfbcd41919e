//go:build !linux

package bptfile

import "os"

func fdatasync(f *os.File) error {
	return f.Sync()
}
