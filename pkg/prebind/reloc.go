package prebind

import (
	"github.com/blacktop/go-macho/types"
	"github.com/blacktop/prebind/pkg/macho"
	"github.com/pkg/errors"
)

// relocStrategy knows one architecture family's relocation types and instruction fields.
type relocStrategy interface {
	// pairType is the family's PAIR relocation type.
	pairType() uint8
	// hasPair reports whether entries of type t are followed by a PAIR entry.
	hasPair(t uint8) bool
	// sectDiff reports whether t is the difference of two addresses.
	sectDiff(t uint8) bool
	// lazyPointer reports whether t is the prebound lazy pointer type.
	lazyPointer(t uint8) bool
	// absolutePair reports whether t keeps its value in the PAIR entry rather than in
	// the instruction, so the value moves even for pc relative entries.
	absolutePair(t uint8) bool
	// update adds delta to the value encoded by p.
	update(p *patch, delta uint32) error
}

func strategyFor(cpu types.CPU) (relocStrategy, error) {
	switch cpu {
	case types.CPUI386, macho.CPUMc680x0:
		return genericStrategy{}, nil
	case types.CPUPpc:
		return ppcStrategy{}, nil
	case macho.CPUSparc:
		return sparcStrategy{}, nil
	case macho.CPUHppa:
		return hppaStrategy{}, nil
	case types.CPUArm:
		return armStrategy{}, nil
	}
	return nil, errors.Wrapf(ErrUnsupportedCPU, "%s relocations can't be updated", macho.CPUName(cpu))
}

// A patch is one relocated field and the entries describing it.
type patch struct {
	v    macho.View
	off  uint32 // file offset of the field
	r    *macho.Reloc
	pair *macho.Reloc
}

func (p *patch) word() (uint32, error)  { return p.v.Uint32(p.off) }
func (p *patch) setWord(w uint32) error { return p.v.PutUint32(p.off, w) }

// errUnknown and overflow are returned by strategies and given their context by the
// caller.
var errUnknown = errors.New("unknown relocation type")

type overflow struct {
	value int64
}

func (o overflow) Error() string { return "relocation overflow" }

// updateVanilla adds delta to a 1, 2 or 4 byte field. The smaller fields must still
// hold the sign extended result.
func updateVanilla(p *patch, delta uint32) error {
	switch p.r.Len {
	case 0:
		b, err := p.v.Uint8(p.off)
		if err != nil {
			return err
		}
		val := uint32(int32(int8(b))) + delta
		if val&0xffffff80 != 0 && val&0xffffff80 != 0xffffff80 {
			return overflow{int64(int32(val))}
		}
		return p.v.PutUint8(p.off, uint8(val))
	case 1:
		h, err := p.v.Uint16(p.off)
		if err != nil {
			return err
		}
		val := uint32(int32(int16(h))) + delta
		if val&0xffff8000 != 0 && val&0xffff8000 != 0xffff8000 {
			return overflow{int64(int32(val))}
		}
		return p.v.PutUint16(p.off, uint16(val))
	case 2:
		w, err := p.word()
		if err != nil {
			return err
		}
		return p.setWord(w + delta)
	}
	return errors.Wrapf(macho.ErrMalformed, "relocation length %d", p.r.Len)
}

// fieldSize is the number of bytes r relocates.
func fieldSize(r *macho.Reloc) uint32 {
	if r.Type == 0 {
		return r.Size()
	}
	return 4
}

// updateRelocations moves every relocated field to account for the slide and the new
// symbol values. Local entries go first so lazy pointer values are known to the symbol
// pointer pass.
func (c *Context) updateRelocations() error {
	if err := c.updateRelocTable(c.img.LocRelocs, false); err != nil {
		return err
	}
	return c.updateRelocTable(c.img.ExtRelocs, true)
}

func (c *Context) updateRelocTable(relocs []macho.Reloc, external bool) error {
	s := c.strategy
	base := c.img.RelocBase()
	for i := 0; i < len(relocs); i++ {
		r := &relocs[i]
		index := i
		if r.Type == s.pairType() {
			return errors.Wrapf(macho.ErrMalformed, "%s relocation entry %d is a PAIR without a preceding entry", kind(external), index)
		}
		var pair *macho.Reloc
		if s.hasPair(r.Type) {
			if i+1 >= len(relocs) || relocs[i+1].Type != s.pairType() {
				return errors.Wrapf(macho.ErrMalformed, "%s relocation entry %d (type %d) is not followed by a PAIR", kind(external), index, r.Type)
			}
			i++
			pair = &relocs[i]
		}

		delta, ok, err := c.relocDelta(r, pair, base, external)
		if err != nil {
			return errors.Wrapf(err, "%s relocation entry %d", kind(external), index)
		}
		if !ok || delta == 0 {
			continue
		}
		off, err := c.img.AddrToOffset(base+r.Addr, fieldSize(r))
		if err != nil {
			return errors.Wrapf(err, "%s relocation entry %d", kind(external), index)
		}
		p := &patch{v: c.img.View, off: off, r: r, pair: pair}
		if err := s.update(p, delta); err != nil {
			var o overflow
			switch {
			case errors.As(err, &o):
				return &RelocOverflowError{File: c.opts.Path, Index: index, External: external, Type: r.Type, Value: o.value}
			case errors.Is(err, errUnknown):
				return &UnknownRelocError{File: c.opts.Path, Index: index, External: external, Type: r.Type}
			}
			return errors.Wrapf(err, "%s relocation entry %d", kind(external), index)
		}
	}
	return nil
}

// relocDelta updates the values kept in r and pair and returns the amount to add to the
// relocated field, if any.
func (c *Context) relocDelta(r, pair *macho.Reloc, base uint32, external bool) (uint32, bool, error) {
	s := c.strategy
	if s.lazyPointer(r.Type) {
		if r.Scattered {
			r.Value += c.slide
			c.lazy[base+r.Addr] = r.Value
		}
		return 0, false, nil
	}
	if r.Scattered {
		r.Value += c.slide
		if s.sectDiff(r.Type) {
			if pair != nil && pair.Scattered {
				pair.Value += c.slide
			}
			return 0, false, nil
		}
		if r.Pcrel && !s.absolutePair(r.Type) {
			return 0, false, nil
		}
		return c.slide, true, nil
	}
	if !r.Extern {
		if r.Symbolnum == macho.R_ABS || s.sectDiff(r.Type) {
			return 0, false, nil
		}
		if r.Pcrel && !s.absolutePair(r.Type) {
			return 0, false, nil
		}
		return c.slide, true, nil
	}
	if !external {
		return 0, false, errors.Wrap(macho.ErrMalformed, "external entry in the local relocation table")
	}
	old := c.syms[r.Symbolnum]
	if old.Kind() == types.N_INDR {
		return 0, false, errors.Errorf("relocation against indirect symbol %s can't be updated", c.img.Names[r.Symbolnum])
	}
	delta := c.symbolValue(r.Symbolnum) - old.Value
	if r.Pcrel && !s.absolutePair(r.Type) {
		delta -= c.slide
	}
	return delta, true, nil
}

// symbolValue is the value symbol isym of the architecture has after prebinding.
func (c *Context) symbolValue(isym uint32) uint32 {
	sym := c.syms[isym]
	if sym.IsUndefined() {
		if c.mode == modeUnprebind {
			return 0
		}
		if d := c.defs[isym]; d != nil {
			return c.value(d)
		}
		return 0
	}
	if sym.Kind() == types.N_SECT {
		return sym.Value + c.slide
	}
	return sym.Value
}

func kind(external bool) string {
	if external {
		return "external"
	}
	return "local"
}
