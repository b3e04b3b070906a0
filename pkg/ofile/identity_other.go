//go:build !unix

package ofile

import (
	"hash/fnv"
	"os"
	"path/filepath"
)

// An ID identifies a file independent of the path used to reach it.
type ID struct {
	Dev uint64
	Ino uint64
}

// Identify falls back to hashing the cleaned, symlink free path where there are no inodes.
func Identify(path string) (ID, error) {
	if _, err := os.Stat(path); err != nil {
		return ID{}, err
	}
	real, err := filepath.EvalSymlinks(path)
	if err != nil {
		return ID{}, err
	}
	abs, err := filepath.Abs(real)
	if err != nil {
		return ID{}, err
	}
	h := fnv.New64a()
	h.Write([]byte(abs))
	return ID{Ino: h.Sum64()}, nil
}
