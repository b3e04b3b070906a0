package macho

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

var (
	// ErrOutOfBounds is returned when a read or write falls outside of the underlying buffer.
	ErrOutOfBounds = errors.New("access out of bounds")
	// ErrMalformed is returned when a structure in the image is not self-consistent.
	ErrMalformed = errors.New("malformed mach-o")
)

// View is a byte-order aware window onto a buffer. Every accessor is bounds checked.
type View struct {
	buf   []byte
	order binary.ByteOrder
}

// NewView returns a View over b using byte order o.
func NewView(b []byte, o binary.ByteOrder) View {
	return View{buf: b, order: o}
}

func (v View) Len() uint32                 { return uint32(len(v.buf)) }
func (v View) Bytes() []byte               { return v.buf }
func (v View) ByteOrder() binary.ByteOrder { return v.order }

func (v View) check(off, size uint32) error {
	end := uint64(off) + uint64(size)
	if end > uint64(len(v.buf)) {
		return errors.Wrapf(ErrOutOfBounds, "offset %#x size %#x (buffer size %#x)", off, size, len(v.buf))
	}
	return nil
}

// Sub returns the sub-view [off, off+size).
func (v View) Sub(off, size uint32) (View, error) {
	if err := v.check(off, size); err != nil {
		return View{}, err
	}
	return View{buf: v.buf[off : off+size : off+size], order: v.order}, nil
}

// Slice returns the raw bytes [off, off+size). The returned slice aliases the view.
func (v View) Slice(off, size uint32) ([]byte, error) {
	if err := v.check(off, size); err != nil {
		return nil, err
	}
	return v.buf[off : off+size], nil
}

func (v View) Uint8(off uint32) (uint8, error) {
	if err := v.check(off, 1); err != nil {
		return 0, err
	}
	return v.buf[off], nil
}

func (v View) Uint16(off uint32) (uint16, error) {
	if err := v.check(off, 2); err != nil {
		return 0, err
	}
	return v.order.Uint16(v.buf[off:]), nil
}

func (v View) Uint32(off uint32) (uint32, error) {
	if err := v.check(off, 4); err != nil {
		return 0, err
	}
	return v.order.Uint32(v.buf[off:]), nil
}

func (v View) PutUint8(off uint32, val uint8) error {
	if err := v.check(off, 1); err != nil {
		return err
	}
	v.buf[off] = val
	return nil
}

func (v View) PutUint16(off uint32, val uint16) error {
	if err := v.check(off, 2); err != nil {
		return err
	}
	v.order.PutUint16(v.buf[off:], val)
	return nil
}

func (v View) PutUint32(off uint32, val uint32) error {
	if err := v.check(off, 4); err != nil {
		return err
	}
	v.order.PutUint32(v.buf[off:], val)
	return nil
}

// CString reads a NUL terminated string starting at off. The string must be terminated
// inside the view.
func (v View) CString(off uint32) (string, error) {
	if off >= uint32(len(v.buf)) {
		return "", errors.Wrapf(ErrOutOfBounds, "string offset %#x (buffer size %#x)", off, len(v.buf))
	}
	i := bytes.IndexByte(v.buf[off:], 0)
	if i < 0 {
		return "", errors.Wrapf(ErrMalformed, "string at offset %#x is not NUL terminated", off)
	}
	return string(v.buf[off : off+uint32(i)]), nil
}

// Uint32s decodes count consecutive words starting at off.
func (v View) Uint32s(off, count uint32) ([]uint32, error) {
	if uint64(count)*4 > uint64(len(v.buf)) {
		return nil, errors.Wrapf(ErrOutOfBounds, "%d words at offset %#x", count, off)
	}
	if err := v.check(off, count*4); err != nil {
		return nil, err
	}
	out := make([]uint32, count)
	for i := range out {
		out[i] = v.order.Uint32(v.buf[off+uint32(i)*4:])
	}
	return out, nil
}
