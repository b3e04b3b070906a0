package prebind

import "github.com/blacktop/prebind/pkg/macho"

// ppcStrategy handles PowerPC. Addresses built from two 16 bit immediates keep the other
// half in the PAIR entry's r_address so the full value can be recomputed.
type ppcStrategy struct{}

func (ppcStrategy) pairType() uint8 { return macho.PPC_RELOC_PAIR }

func (ppcStrategy) hasPair(t uint8) bool {
	switch t {
	case macho.PPC_RELOC_HI16, macho.PPC_RELOC_LO16, macho.PPC_RELOC_HA16, macho.PPC_RELOC_LO14,
		macho.PPC_RELOC_SECTDIFF, macho.PPC_RELOC_LOCAL_SECTDIFF,
		macho.PPC_RELOC_HI16_SECTDIFF, macho.PPC_RELOC_LO16_SECTDIFF,
		macho.PPC_RELOC_HA16_SECTDIFF, macho.PPC_RELOC_LO14_SECTDIFF,
		macho.PPC_RELOC_JBSR:
		return true
	}
	return false
}

func (ppcStrategy) sectDiff(t uint8) bool {
	switch t {
	case macho.PPC_RELOC_SECTDIFF, macho.PPC_RELOC_LOCAL_SECTDIFF,
		macho.PPC_RELOC_HI16_SECTDIFF, macho.PPC_RELOC_LO16_SECTDIFF,
		macho.PPC_RELOC_HA16_SECTDIFF, macho.PPC_RELOC_LO14_SECTDIFF:
		return true
	}
	return false
}

func (ppcStrategy) lazyPointer(t uint8) bool { return t == macho.PPC_RELOC_PB_LA_PTR }

func (ppcStrategy) absolutePair(t uint8) bool { return t == macho.PPC_RELOC_JBSR }

func (ppcStrategy) update(p *patch, delta uint32) error {
	if p.r.Type == macho.PPC_RELOC_VANILLA {
		return updateVanilla(p, delta)
	}
	if p.r.Type == macho.PPC_RELOC_JBSR {
		// the branch goes to a stub; only the recorded target moves
		p.pair.Addr += delta
		return nil
	}
	w, err := p.word()
	if err != nil {
		return err
	}
	switch p.r.Type {
	case macho.PPC_RELOC_BR24:
		disp := signExtend(w&0x03fffffc, 26) + int32(delta)
		if disp&3 != 0 || disp < -0x2000000 || disp > 0x1ffffff {
			return overflow{int64(disp)}
		}
		w = w&^0x03fffffc | uint32(disp)&0x03fffffc
	case macho.PPC_RELOC_BR14:
		disp := signExtend(w&0xfffc, 16) + int32(delta)
		if disp&3 != 0 || disp < -0x8000 || disp > 0x7fff {
			return overflow{int64(disp)}
		}
		w = w&^0xfffc | uint32(disp)&0xfffc
	case macho.PPC_RELOC_HI16:
		val := (w&0xffff)<<16 | p.pair.Addr&0xffff
		val += delta
		w = w&^0xffff | val>>16
		p.pair.Addr = val & 0xffff
	case macho.PPC_RELOC_HA16:
		val := (w&0xffff)<<16 + uint32(int32(int16(p.pair.Addr)))
		val += delta
		w = w&^0xffff | ((val+0x8000)>>16)&0xffff
		p.pair.Addr = val & 0xffff
	case macho.PPC_RELOC_LO16:
		val := (p.pair.Addr&0xffff)<<16 | w&0xffff
		val += delta
		w = w&^0xffff | val&0xffff
		p.pair.Addr = val >> 16
	case macho.PPC_RELOC_LO14:
		val := (p.pair.Addr&0xffff)<<16 | w&0xfffc
		val += delta
		if val&3 != 0 {
			return overflow{int64(val)}
		}
		w = w&^0xfffc | val&0xfffc
		p.pair.Addr = val >> 16
	default:
		return errUnknown
	}
	return p.setWord(w)
}

// signExtend sign extends the low bits bits of v.
func signExtend(v uint32, bits uint) int32 {
	shift := 32 - bits
	return int32(v<<shift) >> shift
}
