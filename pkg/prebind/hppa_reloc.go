package prebind

import "github.com/blacktop/prebind/pkg/macho"

// hppaStrategy handles HP-PA RISC. Addresses are split into a 21 bit left part and a 14
// or 17 bit right part; the PAIR entry holds whichever is not in the instruction.
type hppaStrategy struct{}

func (hppaStrategy) pairType() uint8 { return macho.HPPA_RELOC_PAIR }

func (hppaStrategy) hasPair(t uint8) bool {
	switch t {
	case macho.HPPA_RELOC_HI21, macho.HPPA_RELOC_LO14, macho.HPPA_RELOC_BR17,
		macho.HPPA_RELOC_JBSR, macho.HPPA_RELOC_SECTDIFF,
		macho.HPPA_RELOC_HI21_SECTDIFF, macho.HPPA_RELOC_LO14_SECTDIFF:
		return true
	}
	return false
}

func (hppaStrategy) sectDiff(t uint8) bool {
	switch t {
	case macho.HPPA_RELOC_SECTDIFF, macho.HPPA_RELOC_HI21_SECTDIFF, macho.HPPA_RELOC_LO14_SECTDIFF:
		return true
	}
	return false
}

func (hppaStrategy) lazyPointer(t uint8) bool { return t == macho.HPPA_RELOC_PB_LA_PTR }

func (hppaStrategy) absolutePair(t uint8) bool { return t == macho.HPPA_RELOC_JBSR }

const hppaBr17Mask = 0x001f1ffd

func (hppaStrategy) update(p *patch, delta uint32) error {
	if p.r.Type == macho.HPPA_RELOC_VANILLA {
		return updateVanilla(p, delta)
	}
	if p.r.Type == macho.HPPA_RELOC_JBSR {
		p.pair.Addr += delta
		return nil
	}
	w, err := p.word()
	if err != nil {
		return err
	}
	switch p.r.Type {
	case macho.HPPA_RELOC_HI21:
		right := signExtend(p.pair.Addr&0x3fff, 14)
		val := assemble21(w&0x1fffff)<<11 + uint32(right) + delta
		left, r := hiLo(val)
		w = w&^0x1fffff | disassemble21(left>>11)
		p.pair.Addr = uint32(r) & 0x3fff
	case macho.HPPA_RELOC_LO14:
		val := p.pair.Addr<<11 + uint32(lowSignExtend14(w&0x3fff)) + delta
		left, r := hiLo(val)
		w = w&^0x3fff | lowSignUnextend14(r)
		p.pair.Addr = left >> 11
	case macho.HPPA_RELOC_BR17:
		disp := signExtend(assemble17(w), 17) << 2
		val := p.pair.Addr<<11 + uint32(disp) + delta
		left, r := hiLo(val)
		if r&3 != 0 {
			return overflow{int64(r)}
		}
		w = w&^hppaBr17Mask | disassemble17(uint32(r>>2))
		p.pair.Addr = left >> 11
	case macho.HPPA_RELOC_BL17:
		disp := signExtend(assemble17(w), 17)<<2 + int32(delta)
		if disp&3 != 0 || disp < -0x40000 || disp > 0x3ffff {
			return overflow{int64(disp)}
		}
		w = w&^hppaBr17Mask | disassemble17(uint32(disp>>2))
	default:
		return errUnknown
	}
	return p.setWord(w)
}

// hiLo splits v into a left part with the low 13 bits clear and a signed right part
// in [-0x1000, 0xfff] the way the assembler's L% and R% field selectors do.
func hiLo(v uint32) (uint32, int32) {
	left := (v + 0x1000) & 0xffffe000
	return left, int32(v - left)
}

// assemble21 rebuilds the 21 bit immediate of ldil/addil from its scattered fields.
func assemble21(x uint32) uint32 {
	return (x&1)<<20 |
		(x>>1&0x7ff)<<9 |
		(x>>14&0x3)<<7 |
		(x>>16&0x1f)<<2 |
		(x>>12&0x3)
}

func disassemble21(v uint32) uint32 {
	return (v>>20)&1 |
		(v>>9&0x7ff)<<1 |
		(v>>7&0x3)<<14 |
		(v>>2&0x1f)<<16 |
		(v&0x3)<<12
}

// lowSignExtend14 decodes a 14 bit immediate whose sign is its lowest bit.
func lowSignExtend14(x uint32) int32 {
	v := int32(x >> 1)
	if x&1 != 0 {
		v -= 0x2000
	}
	return v
}

func lowSignUnextend14(v int32) uint32 {
	u := uint32(v) & 0x1fff
	if v < 0 {
		return u<<1 | 1
	}
	return u << 1
}

// assemble17 rebuilds the 17 bit word displacement of a branch from w1, w2 and w.
func assemble17(w uint32) uint32 {
	w1 := w >> 16 & 0x1f
	w2 := w >> 2 & 0x7ff
	s := w & 1
	return s<<16 | w1<<11 | (w2&1)<<10 | w2>>1
}

func disassemble17(v uint32) uint32 {
	s := v >> 16 & 1
	w1 := v >> 11 & 0x1f
	w2 := (v&0x3ff)<<1 | v>>10&1
	return w1<<16 | w2<<2 | s
}
