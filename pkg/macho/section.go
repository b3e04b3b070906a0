package macho

import "strings"

// SectionFlag is the flags field of a 32-bit section header.
type SectionFlag uint32

const (
	/*
	 * The flags field of a section structure is separated into two parts a section
	 * type and section attributes.  The section types are mutually exclusive (it
	 * can only have one type) but the section attributes are not (it may have more
	 * than one attribute).
	 */
	SECTION_TYPE       SectionFlag = 0x000000ff /* 256 section types */
	SECTION_ATTRIBUTES SectionFlag = 0xffffff00 /*  24 section attributes */

	S_REGULAR  SectionFlag = 0x0 /* regular section */
	S_ZEROFILL SectionFlag = 0x1 /* zero fill on demand section */
	/*
	 * For the two types of symbol pointers sections and the symbol stubs section
	 * they have indirect symbol table entries.  For each of the entries in the
	 * section the indirect symbol table entries, in corresponding order in the
	 * indirect symbol table, start at the index stored in the reserved1 field
	 * of the section structure.  For symbol pointers sections the size of the entries
	 * in the section is 4 bytes and for symbol stubs sections the byte size of the
	 * stubs is stored in the reserved2 field of the section structure.
	 */
	S_NON_LAZY_SYMBOL_POINTERS SectionFlag = 0x6 /* section with only non-lazy symbol pointers */
	S_LAZY_SYMBOL_POINTERS     SectionFlag = 0x7 /* section with only lazy symbol pointers */
	S_SYMBOL_STUBS             SectionFlag = 0x8 /* section with only symbol stubs, byte size of stub in the reserved2 field */
	S_GB_ZEROFILL              SectionFlag = 0xc /* zero fill on demand section (that can be larger than 4 gigabytes) */

	S_ATTR_SELF_MODIFYING_CODE SectionFlag = 0x04000000 /* Used with i386 code stubs written on by dyld */
)

func (t SectionFlag) Type() SectionFlag { return t & SECTION_TYPE }

func (t SectionFlag) IsZerofill() bool {
	return t.Type() == S_ZEROFILL || t.Type() == S_GB_ZEROFILL
}

func (t SectionFlag) IsNonLazySymbolPointers() bool {
	return t.Type() == S_NON_LAZY_SYMBOL_POINTERS
}

func (t SectionFlag) IsLazySymbolPointers() bool {
	return t.Type() == S_LAZY_SYMBOL_POINTERS
}

func (t SectionFlag) IsSymbolStubs() bool {
	return t.Type() == S_SYMBOL_STUBS
}

func (t SectionFlag) IsSelfModifyingCode() bool {
	return t&S_ATTR_SELF_MODIFYING_CODE != 0
}

func (f SectionFlag) String() string {
	var fStr []string
	switch f.Type() {
	case S_ZEROFILL, S_GB_ZEROFILL:
		fStr = append(fStr, "Zerofill")
	case S_NON_LAZY_SYMBOL_POINTERS:
		fStr = append(fStr, "NonLazySymbolPointers")
	case S_LAZY_SYMBOL_POINTERS:
		fStr = append(fStr, "LazySymbolPointers")
	case S_SYMBOL_STUBS:
		fStr = append(fStr, "SymbolStubs")
	}
	if f.IsSelfModifyingCode() {
		fStr = append(fStr, "SelfModifyingCode")
	}
	return strings.Join(fStr, "|")
}

// A Section is a 32-bit section header. Offset is the file offset of the header itself.
type Section struct {
	Offset    uint32
	Name      string
	Seg       string
	Addr      uint32
	Size      uint32
	FileOff   uint32
	Align     uint32
	Reloff    uint32
	Nreloc    uint32
	Flags     SectionFlag
	Reserved1 uint32
	Reserved2 uint32
}

const sectionSize = 68

// A Segment is an LC_SEGMENT command and its sections.
type Segment struct {
	Offset   uint32 // file offset of the load command
	Name     string
	Addr     uint32
	Memsz    uint32
	FileOff  uint32
	Filesz   uint32
	Maxprot  uint32
	Initprot uint32
	Flags    uint32
	Sections []*Section
}

const (
	segmentSize = 56

	vmProtWrite = 0x2
)

// Writable reports whether the segment's initial protection allows writes.
func (s *Segment) Writable() bool { return s.Initprot&vmProtWrite != 0 }

// Contains reports whether addr falls in the segment's file-backed range.
func (s *Segment) Contains(addr uint32) bool {
	return addr >= s.Addr && addr-s.Addr < s.Filesz
}
