// Package ofile loads thin and universal Mach-O files into memory and writes them back.
package ofile

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/apex/log"
	"github.com/blacktop/go-macho"
	"github.com/blacktop/go-macho/types"
	"github.com/pkg/errors"
)

// An Arch is one architecture slice of a file.
type Arch struct {
	CPU    types.CPU
	SubCPU types.CPUSubtype
	Offset uint32
	Size   uint32
}

func (a Arch) String() string {
	return a.SubCPU.String(a.CPU)
}

// A File is a Mach-O file read fully into memory.
type File struct {
	Path   string
	ID     ID
	Data   []byte
	Fat    bool
	Arches []Arch
	Mode   os.FileMode
}

// Open reads path and indexes its architecture slices.
func Open(path string) (*File, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	id, err := Identify(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	f, err := Load(path, data)
	if err != nil {
		return nil, err
	}
	f.ID = id
	f.Mode = fi.Mode().Perm()
	return f, nil
}

// Load indexes data, the contents of the file at path.
func Load(path string, data []byte) (*File, error) {
	f := &File{Path: path, Data: data, Mode: 0755}

	if len(data) < 12 {
		return nil, errors.Errorf("%s: file too small to be a mach-o", path)
	}
	var order binary.ByteOrder
	switch binary.BigEndian.Uint32(data) {
	case uint32(types.MagicFat):
		return loadFat(f)
	case uint32(types.Magic32), uint32(types.Magic64):
		order = binary.BigEndian
	case 0xcefaedfe, 0xcffaedfe:
		order = binary.LittleEndian
	default:
		return nil, errors.Errorf("%s: not a mach-o file", path)
	}
	f.Arches = []Arch{{
		CPU:    types.CPU(order.Uint32(data[4:])),
		SubCPU: types.CPUSubtype(order.Uint32(data[8:])),
		Size:   uint32(len(data)),
	}}
	return f, nil
}

func loadFat(f *File) (*File, error) {
	fat, err := macho.NewFatFile(bytes.NewReader(f.Data))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse universal file %s", f.Path)
	}
	defer fat.Close()
	f.Fat = true
	for _, farch := range fat.Arches {
		if uint64(farch.Offset)+uint64(farch.Size) > uint64(len(f.Data)) {
			return nil, errors.Errorf("%s: %s slice extends past end of file", f.Path, farch.SubCPU.String(farch.CPU))
		}
		f.Arches = append(f.Arches, Arch{
			CPU:    farch.CPU,
			SubCPU: farch.SubCPU,
			Offset: farch.Offset,
			Size:   farch.Size,
		})
	}
	return f, nil
}

// Slice returns the bytes of architecture i. The slice aliases the file data.
func (f *File) Slice(i int) []byte {
	a := f.Arches[i]
	return f.Data[a.Offset : a.Offset+a.Size]
}

// Find returns the index of the slice for cpu, preferring an exact subtype match.
func (f *File) Find(cpu types.CPU, sub types.CPUSubtype) (int, bool) {
	found := -1
	for i, a := range f.Arches {
		if a.CPU != cpu {
			continue
		}
		if a.SubCPU&^types.CPUSubtype(0xff000000) == sub&^types.CPUSubtype(0xff000000) {
			return i, true
		}
		if found < 0 {
			found = i
		}
	}
	return found, found >= 0
}

// Replace overwrites architecture i with data, which must be the same size.
func (f *File) Replace(i int, data []byte) error {
	a := f.Arches[i]
	if uint32(len(data)) != a.Size {
		return errors.Errorf("replacement for %s slice is %d bytes, want %d", a, len(data), a.Size)
	}
	copy(f.Data[a.Offset:], data)
	return nil
}

// Write writes the file to path through a temporary file in the same directory.
func (f *File) Write(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.Wrap(err, "failed to create temporary file")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(f.Data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "failed to write %s", tmp.Name())
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), f.Mode); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(err, "failed to rename %s to %s", tmp.Name(), path)
	}
	log.WithField("path", path).Debug("Wrote file")
	return nil
}
