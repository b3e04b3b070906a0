package prebind

import (
	"bytes"

	"github.com/blacktop/go-macho/types"
	"github.com/blacktop/prebind/pkg/macho"
	"github.com/pkg/errors"
)

const (
	i386StubSize = 5
	i386Jmp      = 0xe9
	i386Hlt      = 0xf4
)

// updateSymbolPointers rewrites the symbol pointer sections and the i386 self modifying
// stubs. Pointers to local symbols are covered by local relocation entries.
func (c *Context) updateSymbolPointers() error {
	img := c.img
	for _, s := range img.Sections {
		switch {
		case s.Flags.IsNonLazySymbolPointers(), s.Flags.IsLazySymbolPointers():
			if err := c.updatePointers(s, s.Flags.IsLazySymbolPointers()); err != nil {
				return errors.Wrapf(err, "section (%s,%s)", s.Seg, s.Name)
			}
		case s.Flags.IsSymbolStubs() && s.Flags.IsSelfModifyingCode() &&
			s.Reserved2 == i386StubSize && img.Header.CPU == types.CPUI386:
			if err := c.updateStubs(s); err != nil {
				return errors.Wrapf(err, "section (%s,%s)", s.Seg, s.Name)
			}
		}
	}
	return nil
}

func (c *Context) updatePointers(s *macho.Section, lazy bool) error {
	v := c.img.View
	for j := uint32(0); j < s.Size/4; j++ {
		isym := c.img.Indirect[s.Reserved1+j]
		if isym&(macho.INDIRECT_SYMBOL_LOCAL|macho.INDIRECT_SYMBOL_ABS) != 0 {
			continue
		}
		val := c.symbolValue(isym)
		if lazy && (c.mode == modeUnprebind || c.unbound(isym)) {
			unbound, ok := c.lazy[s.Addr+4*j]
			if !ok {
				continue
			}
			val = unbound
		}
		if err := v.PutUint32(s.FileOff+4*j, val); err != nil {
			return err
		}
	}
	return nil
}

func (c *Context) updateStubs(s *macho.Section) error {
	v := c.img.View
	for j := uint32(0); j < s.Size/i386StubSize; j++ {
		isym := c.img.Indirect[s.Reserved1+j]
		off := s.FileOff + i386StubSize*j
		stub, err := v.Slice(off, i386StubSize)
		if err != nil {
			return err
		}
		if isym&(macho.INDIRECT_SYMBOL_LOCAL|macho.INDIRECT_SYMBOL_ABS) != 0 {
			continue
		}
		if c.mode == modeUnprebind || c.unbound(isym) {
			copy(stub, bytes.Repeat([]byte{i386Hlt}, i386StubSize))
			continue
		}
		next := s.Addr + c.slide + i386StubSize*(j+1)
		stub[0] = i386Jmp
		if err := v.PutUint32(off+1, c.symbolValue(isym)-next); err != nil {
			return err
		}
	}
	return nil
}

// unbound reports whether isym is an undefined symbol left for the dynamic linker.
func (c *Context) unbound(isym uint32) bool {
	if !c.syms[isym].IsUndefined() {
		return false
	}
	d := c.defs[isym]
	return d == nil || d.Weak()
}
