package prebind

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"

	"github.com/blacktop/go-macho/types"
	"github.com/blacktop/prebind/pkg/macho"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
)

const (
	machHeaderSize = 28

	segmentHeaderSize = 56
	sectionHeaderSize = 68

	preboundHeaderSize = 20
	minPreboundModules = 64
)

// rewriteLoadCommands updates the load commands and header for the new prebinding.
// Executables get one LC_PREBOUND_DYLIB per library, placed after all other commands.
func (c *Context) rewriteLoadCommands() error {
	img := c.img
	v := img.View
	o := v.ByteOrder()

	deps := make(map[uint32]*Library, len(img.Dylibs))
	for i, d := range img.Dylibs {
		if c.arch.Dependents != nil {
			deps[d.Offset] = c.arch.Dependents[i]
		}
	}
	prev := make(map[string]*macho.PreboundDylib, len(img.Prebound))
	for _, pb := range img.Prebound {
		prev[pb.Name] = pb
	}
	rebuild := img.IsExecutable() && c.mode == modeRedo

	var out bytes.Buffer
	ncmds := uint32(0)
	for _, l := range img.Loads {
		raw, err := v.Slice(l.Offset, l.Size)
		if err != nil {
			return err
		}
		if l.Cmd == types.LC_PREBOUND_DYLIB && rebuild {
			continue
		}
		cmd := append([]byte(nil), raw...)
		switch l.Cmd {
		case types.LC_SEGMENT:
			nsects := o.Uint32(cmd[48:])
			o.PutUint32(cmd[24:], o.Uint32(cmd[24:])+c.slide)
			for k := uint32(0); k < nsects; k++ {
				at := segmentHeaderSize + sectionHeaderSize*k + 32
				o.PutUint32(cmd[at:], o.Uint32(cmd[at:])+c.slide)
			}
		case types.LC_LOAD_DYLIB, types.LC_LOAD_WEAK_DYLIB, types.LC_REEXPORT_DYLIB:
			var ts uint32
			if lib := deps[l.Offset]; c.mode != modeUnprebind && lib != nil && !lib.weakMissing {
				ts = lib.Image.ID.Timestamp
			}
			o.PutUint32(cmd[12:], ts)
		case types.LC_ROUTINES:
			o.PutUint32(cmd[8:], o.Uint32(cmd[8:])+c.slide)
		case types.LC_PREBIND_CKSUM:
			switch {
			case c.mode == modeUnprebind:
				o.PutUint32(cmd[8:], 0)
			case o.Uint32(cmd[8:]) == 0:
				o.PutUint32(cmd[8:], crc32.ChecksumIEEE(c.orig))
			}
		case types.LC_PREBOUND_DYLIB:
			if bits := o.Uint32(cmd[16:]); bits < uint32(len(cmd)) {
				clear(cmd[bits:])
			}
		}
		out.Write(cmd)
		ncmds++
	}
	if rebuild {
		for _, lib := range c.libs {
			if lib.weakMissing || lib.self {
				continue
			}
			out.Write(c.preboundCommand(lib, prev[lib.Name], o))
			ncmds++
		}
	}

	limit := img.HeaderPadding()
	size := uint32(out.Len())
	if machHeaderSize+size > limit {
		return errors.Wrapf(ErrNeedsRelink, "%s: load commands need %d bytes, %d available",
			c.opts.Path, size, limit-machHeaderSize)
	}
	c.log.Debugf("%s of header padding left", humanize.Bytes(uint64(limit-machHeaderSize-size)))

	area, err := v.Slice(machHeaderSize, limit-machHeaderSize)
	if err != nil {
		return err
	}
	old := img.Header.SizeCommands
	copy(area, out.Bytes())
	if size < old && old <= uint32(len(area)) {
		clear(area[size:old])
	}

	flags := img.Header.Flags
	if c.mode == modeUnprebind {
		flags &^= types.Prebound | types.AllModsBound
		flags |= types.Prebindable | types.Canonical
	} else {
		flags |= types.Prebound
		flags &^= types.Prebindable | types.Canonical
		if img.IsExecutable() && c.allModulesLinked() {
			flags |= types.AllModsBound
		} else {
			flags &^= types.AllModsBound
		}
	}
	for _, f := range []struct {
		off, val uint32
	}{{16, ncmds}, {20, size}, {24, uint32(flags)}} {
		if err := v.PutUint32(f.off, f.val); err != nil {
			return err
		}
	}
	img.Header.NCommands, img.Header.SizeCommands, img.Header.Flags = ncmds, size, flags
	return nil
}

// preboundCommand builds lib's LC_PREBOUND_DYLIB, leaving room for the library to grow
// by a quarter of its modules, or reusing the size of the existing command if that fits.
func (c *Context) preboundCommand(lib *Library, prev *macho.PreboundDylib, o binary.ByteOrder) []byte {
	n := uint32(len(lib.Image.Modules))
	nameSize := uint32(len(lib.Name)) + 1
	need := round4(preboundHeaderSize + nameSize + (n+7)/8)
	size := round4(preboundHeaderSize + nameSize + (max(n+n/4, minPreboundModules)+7)/8)
	if prev != nil && prev.Size >= need {
		size = prev.Size
	}
	cmd := make([]byte, size)
	o.PutUint32(cmd[0:], uint32(types.LC_PREBOUND_DYLIB))
	o.PutUint32(cmd[4:], size)
	o.PutUint32(cmd[8:], preboundHeaderSize)
	o.PutUint32(cmd[12:], n)
	o.PutUint32(cmd[16:], preboundHeaderSize+nameSize)
	copy(cmd[preboundHeaderSize:], lib.Name)
	copy(cmd[preboundHeaderSize+nameSize:], linkedBits(lib, size-preboundHeaderSize-nameSize))
	c.log.Debugf("LC_PREBOUND_DYLIB for %s: %d modules in %d bytes", lib.Name, n, size)
	return cmd
}

func round4(n uint32) uint32 { return (n + 3) &^ 3 }
