package prebind

import "github.com/blacktop/prebind/pkg/macho"

// sparcStrategy handles SPARC. sethi/or pairs split an address into 22 and 10 bits, the
// PAIR entry holding the half that is not in the instruction.
type sparcStrategy struct{}

func (sparcStrategy) pairType() uint8 { return macho.SPARC_RELOC_PAIR }

func (sparcStrategy) hasPair(t uint8) bool {
	switch t {
	case macho.SPARC_RELOC_HI22, macho.SPARC_RELOC_LO10, macho.SPARC_RELOC_SECTDIFF,
		macho.SPARC_RELOC_HI22_SECTDIFF, macho.SPARC_RELOC_LO10_SECTDIFF:
		return true
	}
	return false
}

func (sparcStrategy) sectDiff(t uint8) bool {
	switch t {
	case macho.SPARC_RELOC_SECTDIFF, macho.SPARC_RELOC_HI22_SECTDIFF, macho.SPARC_RELOC_LO10_SECTDIFF:
		return true
	}
	return false
}

func (sparcStrategy) lazyPointer(uint8) bool { return false }

func (sparcStrategy) absolutePair(uint8) bool { return false }

func (sparcStrategy) update(p *patch, delta uint32) error {
	if p.r.Type == macho.SPARC_RELOC_VANILLA {
		return updateVanilla(p, delta)
	}
	w, err := p.word()
	if err != nil {
		return err
	}
	switch p.r.Type {
	case macho.SPARC_RELOC_HI22:
		val := (w&0x3fffff)<<10 | p.pair.Addr&0x3ff
		val += delta
		w = w&^0x3fffff | val>>10
		p.pair.Addr = val & 0x3ff
	case macho.SPARC_RELOC_LO10:
		val := p.pair.Addr<<10 | w&0x3ff
		val += delta
		w = w&^0x3ff | val&0x3ff
		p.pair.Addr = val >> 10
	case macho.SPARC_RELOC_DISP22:
		disp := signExtend(w&0x3fffff, 22)<<2 + int32(delta)
		if disp&3 != 0 || disp < -0x800000 || disp > 0x7fffff {
			return overflow{int64(disp)}
		}
		w = w&^0x3fffff | uint32(disp>>2)&0x3fffff
	case macho.SPARC_RELOC_DISP30:
		disp := w<<2 + delta
		if disp&3 != 0 {
			return overflow{int64(int32(disp))}
		}
		w = w&^0x3fffffff | disp>>2
	default:
		return errUnknown
	}
	return p.setWord(w)
}
