package prebind

import "github.com/blacktop/prebind/pkg/macho"

// armStrategy handles ARM. External entries may only be plain pointers; movw/movt pairs
// (ARM_RELOC_HALF) keep the other 16 bits in the PAIR entry.
type armStrategy struct{}

func (armStrategy) pairType() uint8 { return macho.ARM_RELOC_PAIR }

func (armStrategy) hasPair(t uint8) bool {
	switch t {
	case macho.ARM_RELOC_SECTDIFF, macho.ARM_RELOC_LOCAL_SECTDIFF,
		macho.ARM_RELOC_HALF, macho.ARM_RELOC_HALF_SECTDIFF:
		return true
	}
	return false
}

func (armStrategy) sectDiff(t uint8) bool {
	switch t {
	case macho.ARM_RELOC_SECTDIFF, macho.ARM_RELOC_LOCAL_SECTDIFF, macho.ARM_RELOC_HALF_SECTDIFF:
		return true
	}
	return false
}

func (armStrategy) lazyPointer(t uint8) bool { return t == macho.ARM_RELOC_PB_LA_PTR }

func (armStrategy) absolutePair(uint8) bool { return false }

func (armStrategy) update(p *patch, delta uint32) error {
	switch {
	case p.r.Type == macho.ARM_RELOC_VANILLA:
		return updateVanilla(p, delta)
	case p.r.Extern || p.r.Type != macho.ARM_RELOC_HALF:
		return errUnknown
	}
	w, err := p.word()
	if err != nil {
		return err
	}
	// r_length bit 1 selects Thumb, bit 0 the high half (movt)
	thumb, high := p.r.Len&2 != 0, p.r.Len&1 != 0
	var imm uint32
	if thumb {
		imm = thumbImm16(w)
	} else {
		imm = armImm16(w)
	}
	other := p.pair.Addr & 0xffff
	var val uint32
	if high {
		val = imm<<16 | other
	} else {
		val = other<<16 | imm
	}
	val += delta
	if high {
		imm, p.pair.Addr = val>>16, val&0xffff
	} else {
		imm, p.pair.Addr = val&0xffff, val>>16
	}
	if thumb {
		w = setThumbImm16(w, imm)
	} else {
		w = setArmImm16(w, imm)
	}
	return p.setWord(w)
}

// armImm16 decodes imm4:imm12 of an ARM movw/movt.
func armImm16(w uint32) uint32 { return (w>>16&0xf)<<12 | w&0xfff }

func setArmImm16(w, imm uint32) uint32 {
	return w&^0x000f0fff | (imm>>12&0xf)<<16 | imm&0xfff
}

// thumbImm16 decodes imm4:i:imm3:imm8 of a Thumb-2 movw/movt read as one little endian
// word, first halfword in the low 16 bits.
func thumbImm16(w uint32) uint32 {
	return (w&0xf)<<12 | (w>>10&1)<<11 | (w>>28&7)<<8 | w>>16&0xff
}

func setThumbImm16(w, imm uint32) uint32 {
	const mask = 0xf | 1<<10 | 7<<28 | 0xff<<16
	return w&^mask | imm>>12&0xf | (imm>>11&1)<<10 | (imm>>8&7)<<28 | (imm&0xff)<<16
}
