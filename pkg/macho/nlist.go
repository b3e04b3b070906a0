package macho

import "github.com/blacktop/go-macho/types"

// An Nlist is a decoded 32-bit symbol table entry.
type Nlist struct {
	Name  uint32 // index into the string table
	Type  types.NType
	Sect  uint8
	Desc  NDesc
	Value uint32
}

const nlistSize = 12

// Kind returns the N_TYPE bits of the entry.
func (n Nlist) Kind() types.NType { return n.Type & types.N_TYPE }

func (n Nlist) IsStab() bool      { return n.Type&types.N_STAB != 0 }
func (n Nlist) IsExternal() bool  { return n.Type&types.N_EXT != 0 }
func (n Nlist) IsUndefined() bool { return !n.IsStab() && (n.Kind() == types.N_UNDF || n.Kind() == types.N_PBUD) }

// NDesc is the n_desc field of a symbol table entry.
type NDesc uint16

const (
	/* types of references */
	REFERENCE_TYPE                            NDesc = 0x7
	REFERENCE_FLAG_UNDEFINED_NON_LAZY         NDesc = 0
	REFERENCE_FLAG_UNDEFINED_LAZY             NDesc = 1
	REFERENCE_FLAG_DEFINED                    NDesc = 2
	REFERENCE_FLAG_PRIVATE_DEFINED            NDesc = 3
	REFERENCE_FLAG_PRIVATE_UNDEFINED_NON_LAZY NDesc = 4
	REFERENCE_FLAG_PRIVATE_UNDEFINED_LAZY     NDesc = 5
)

const (
	SELF_LIBRARY_ORDINAL   = 0x0
	MAX_LIBRARY_ORDINAL    = 0xfd
	DYNAMIC_LOOKUP_ORDINAL = 0xfe
	EXECUTABLE_ORDINAL     = 0xff
)

const (
	/*
	 * The N_WEAK_REF bit of the n_desc field indicates to the dynamic linker that
	 * the undefined symbol is allowed to be missing and is to have the address of
	 * zero when missing.
	 */
	N_WEAK_REF NDesc = 0x0040 /* symbol is weak referenced */

	/*
	 * The N_WEAK_DEF bit of the n_desc field indicates to the static and dynamic
	 * linkers that the symbol definition is weak, allowing a non-weak symbol to
	 * also be used which causes the weak definition to be discared.
	 */
	N_WEAK_DEF NDesc = 0x0080 /* coalesed symbol is a weak definition */

	/*
	 * The N_ARM_THUMB_DEF bit of the n_desc field indicates that the symbol is
	 * a defintion of a Thumb function.
	 */
	N_ARM_THUMB_DEF NDesc = 0x0008 /* symbol is a Thumb function (ARM) */
)

// LibraryOrdinal returns the two-level namespace library ordinal of an undefined symbol.
func (d NDesc) LibraryOrdinal() uint8 { return uint8(d >> 8) }

// SetLibraryOrdinal returns d with its library ordinal replaced.
func (d NDesc) SetLibraryOrdinal(o uint8) NDesc { return d&0x00ff | NDesc(o)<<8 }

func (d NDesc) ReferenceType() NDesc { return d & REFERENCE_TYPE }
func (d NDesc) WeakRef() bool        { return d&N_WEAK_REF != 0 }
func (d NDesc) WeakDef() bool        { return d&N_WEAK_DEF != 0 }
func (d NDesc) ThumbDef() bool       { return d&N_ARM_THUMB_DEF != 0 }

// A dylib_reference flags value marking the referenced symbol as private undefined.
func (d NDesc) PrivateUndefined() bool {
	t := d.ReferenceType()
	return t == REFERENCE_FLAG_PRIVATE_UNDEFINED_NON_LAZY || t == REFERENCE_FLAG_PRIVATE_UNDEFINED_LAZY
}

func (d NDesc) Undefined() bool {
	t := d.ReferenceType()
	return t == REFERENCE_FLAG_UNDEFINED_NON_LAZY || t == REFERENCE_FLAG_UNDEFINED_LAZY
}

const (
	// INDIRECT_SYMBOL_LOCAL marks an indirect table entry for a local (non-external) symbol.
	INDIRECT_SYMBOL_LOCAL = 0x80000000
	// INDIRECT_SYMBOL_ABS marks an indirect table entry for an absolute symbol.
	INDIRECT_SYMBOL_ABS = 0x40000000
)
