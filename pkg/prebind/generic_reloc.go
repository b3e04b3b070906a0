package prebind

import "github.com/blacktop/prebind/pkg/macho"

// genericStrategy handles i386 and m68k. Only plain pointers are ever relocated; the
// section difference types slide through their r_value fields.
type genericStrategy struct{}

func (genericStrategy) pairType() uint8 { return macho.GENERIC_RELOC_PAIR }

func (genericStrategy) hasPair(t uint8) bool {
	return t == macho.GENERIC_RELOC_SECTDIFF || t == macho.GENERIC_RELOC_LOCAL_SECTDIFF
}

func (s genericStrategy) sectDiff(t uint8) bool { return s.hasPair(t) }

func (genericStrategy) lazyPointer(t uint8) bool { return t == macho.GENERIC_RELOC_PB_LA_PTR }

func (genericStrategy) absolutePair(uint8) bool { return false }

func (genericStrategy) update(p *patch, delta uint32) error {
	if p.r.Type != macho.GENERIC_RELOC_VANILLA {
		return errUnknown
	}
	return updateVanilla(p, delta)
}
