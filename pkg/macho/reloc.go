package macho

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// A Reloc is a decoded relocation_info or scattered_relocation_info entry.
//
// For scattered entries Value holds r_value and Symbolnum and Extern are unused.
type Reloc struct {
	Addr      uint32
	Symbolnum uint32
	Pcrel     bool
	Len       uint8
	Extern    bool
	Type      uint8
	Scattered bool
	Value     uint32
}

const (
	relocSize = 8

	rScattered = 0x80000000

	// R_ABS is the r_symbolnum of an absolute local relocation.
	R_ABS = 0
)

// Size returns the width in bytes of the relocated field (1, 2 or 4).
func (r Reloc) Size() uint32 { return 1 << r.Len }

// DecodeReloc decodes one 8 byte relocation entry. The bitfield layout of word 1 depends
// on the byte order of the image; scattered entries use the same layout in both.
func DecodeReloc(w0, w1 uint32, o binary.ByteOrder) Reloc {
	if w0&rScattered != 0 {
		return Reloc{
			Scattered: true,
			Pcrel:     (w0>>30)&1 != 0,
			Len:       uint8((w0 >> 28) & 3),
			Type:      uint8((w0 >> 24) & 0xf),
			Addr:      w0 & 0x00ffffff,
			Value:     w1,
		}
	}
	r := Reloc{Addr: w0}
	if o == binary.BigEndian {
		r.Symbolnum = w1 >> 8
		r.Pcrel = (w1>>7)&1 != 0
		r.Len = uint8((w1 >> 5) & 3)
		r.Extern = (w1>>4)&1 != 0
		r.Type = uint8(w1 & 0xf)
	} else {
		r.Symbolnum = w1 & 0x00ffffff
		r.Pcrel = (w1>>24)&1 != 0
		r.Len = uint8((w1 >> 25) & 3)
		r.Extern = (w1>>27)&1 != 0
		r.Type = uint8(w1 >> 28)
	}
	return r
}

// Encode is the inverse of DecodeReloc.
func (r Reloc) Encode(o binary.ByteOrder) (uint32, uint32, error) {
	if r.Scattered {
		if r.Addr > 0x00ffffff {
			return 0, 0, errors.Wrapf(ErrMalformed, "scattered relocation address %#x does not fit in 24 bits", r.Addr)
		}
		w0 := uint32(rScattered) | b2u(r.Pcrel)<<30 | uint32(r.Len&3)<<28 | uint32(r.Type&0xf)<<24 | r.Addr
		return w0, r.Value, nil
	}
	if r.Addr&rScattered != 0 {
		return 0, 0, errors.Wrapf(ErrMalformed, "relocation address %#x collides with the scattered bit", r.Addr)
	}
	if r.Symbolnum > 0x00ffffff {
		return 0, 0, errors.Wrapf(ErrMalformed, "relocation symbol number %d does not fit in 24 bits", r.Symbolnum)
	}
	var w1 uint32
	if o == binary.BigEndian {
		w1 = r.Symbolnum<<8 | b2u(r.Pcrel)<<7 | uint32(r.Len&3)<<5 | b2u(r.Extern)<<4 | uint32(r.Type&0xf)
	} else {
		w1 = r.Symbolnum | b2u(r.Pcrel)<<24 | uint32(r.Len&3)<<25 | b2u(r.Extern)<<27 | uint32(r.Type&0xf)<<28
	}
	return r.Addr, w1, nil
}

func b2u(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// GENERIC (i386, m68k) relocation types
const (
	GENERIC_RELOC_VANILLA        = 0 /* generic relocation as discribed above */
	GENERIC_RELOC_PAIR           = 1 /* Only follows a GENERIC_RELOC_SECTDIFF */
	GENERIC_RELOC_SECTDIFF       = 2
	GENERIC_RELOC_PB_LA_PTR      = 3 /* prebound lazy pointer */
	GENERIC_RELOC_LOCAL_SECTDIFF = 4
)

// PowerPC relocation types
const (
	PPC_RELOC_VANILLA        = 0 /* generic relocation as discribed above */
	PPC_RELOC_PAIR           = 1 /* the second relocation entry of a pair */
	PPC_RELOC_BR14           = 2 /* 14 bit branch displacement (to a word address) */
	PPC_RELOC_BR24           = 3 /* 24 bit branch displacement (to a word address) */
	PPC_RELOC_HI16           = 4 /* a PAIR follows with the low half */
	PPC_RELOC_LO16           = 5 /* a PAIR follows with the high half */
	PPC_RELOC_HA16           = 6 /* Same as the RELOC_HI16 except the low 16 bits and the high 16 bits are added together with the low 16 bits sign extened first */
	PPC_RELOC_LO14           = 7 /* Same as the LO16 except that the low 2 bits are not stored in the instruction and are always zero */
	PPC_RELOC_SECTDIFF       = 8 /* a PAIR follows with subtract symbol value */
	PPC_RELOC_PB_LA_PTR      = 9 /* prebound lazy pointer */
	PPC_RELOC_HI16_SECTDIFF  = 10
	PPC_RELOC_LO16_SECTDIFF  = 11
	PPC_RELOC_HA16_SECTDIFF  = 12
	PPC_RELOC_JBSR           = 13
	PPC_RELOC_LO14_SECTDIFF  = 14
	PPC_RELOC_LOCAL_SECTDIFF = 15 /* like PPC_RELOC_SECTDIFF, but the symbol referenced was local */
)

// SPARC relocation types
const (
	SPARC_RELOC_VANILLA       = 0 /* vanilla relocation */
	SPARC_RELOC_PAIR          = 1 /* the second relocation entry of a pair */
	SPARC_RELOC_HI22          = 2 /* a PAIR follows with the low half */
	SPARC_RELOC_LO10          = 3 /* a PAIR follows with the high half */
	SPARC_RELOC_DISP22        = 4
	SPARC_RELOC_DISP30        = 5
	SPARC_RELOC_SECTDIFF      = 6 /* a PAIR follows with subtract symbol value */
	SPARC_RELOC_HI22_SECTDIFF = 7
	SPARC_RELOC_LO10_SECTDIFF = 8
)

// HPPA relocation types
const (
	HPPA_RELOC_VANILLA       = 0  /* vanilla relocation */
	HPPA_RELOC_PAIR          = 1  /* the second relocation entry of a pair */
	HPPA_RELOC_HI21          = 2  /* a PAIR follows with the low part */
	HPPA_RELOC_LO14          = 3  /* a PAIR follows with the high part */
	HPPA_RELOC_BR17          = 4  /* 17 bit branch displacement (to a word address) a PAIR follows with the high part */
	HPPA_RELOC_BL17          = 5  /* 17 bit pc relative branch displacement */
	HPPA_RELOC_JBSR          = 6  /* a PAIR follows */
	HPPA_RELOC_SECTDIFF      = 7  /* a PAIR follows with subtract symbol value */
	HPPA_RELOC_HI21_SECTDIFF = 8  /* a PAIR follows with subtract symbol value */
	HPPA_RELOC_LO14_SECTDIFF = 9  /* a PAIR follows with subtract symbol value */
	HPPA_RELOC_PB_LA_PTR     = 10 /* prebound lazy pointer */
)

// ARM relocation types
const (
	ARM_RELOC_VANILLA        = 0 /* generic relocation as discribed above */
	ARM_RELOC_PAIR           = 1 /* the second relocation entry of a pair */
	ARM_RELOC_SECTDIFF       = 2 /* a PAIR follows with subtract symbol value */
	ARM_RELOC_LOCAL_SECTDIFF = 3 /* like ARM_RELOC_SECTDIFF, but the symbol referenced was local */
	ARM_RELOC_PB_LA_PTR      = 4 /* prebound lazy pointer */
	ARM_RELOC_BR24           = 5 /* 24 bit branch displacement (to a word address) */
	ARM_THUMB_RELOC_BR22     = 6 /* 22 bit branch displacement (to a half-word address) */
	ARM_THUMB_32BIT_BRANCH   = 7 /* obsolete - a thumb 32-bit branch instruction possibly needing page-spanning branch workaround */
	ARM_RELOC_HALF           = 8
	ARM_RELOC_HALF_SECTDIFF  = 9
)
