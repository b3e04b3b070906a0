//go:build unix

package ofile

import (
	"golang.org/x/sys/unix"
)

// An ID identifies a file independent of the path used to reach it.
type ID struct {
	Dev uint64
	Ino uint64
}

// Identify returns the device and inode of path, following symlinks.
func Identify(path string) (ID, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return ID{}, err
	}
	return ID{Dev: uint64(st.Dev), Ino: uint64(st.Ino)}, nil
}
