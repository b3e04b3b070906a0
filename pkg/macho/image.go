package macho

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/blacktop/go-macho/types"
	"github.com/pkg/errors"
)

// ErrNot32Bit is returned by Parse for anything but a thin 32-bit Mach-O.
var ErrNot32Bit = errors.New("not a 32-bit mach-o file")

const (
	magic32    = 0xfeedface
	magic32Rev = 0xcefaedfe
	magic64    = 0xfeedfacf
	magic64Rev = 0xcffaedfe

	headerSize = 28
)

// A Load is a load command's position in the image.
type Load struct {
	Cmd    types.LoadCmd
	Offset uint32
	Size   uint32
}

// A Dylib is an LC_ID_DYLIB, LC_LOAD_DYLIB, LC_LOAD_WEAK_DYLIB or LC_REEXPORT_DYLIB command.
type Dylib struct {
	Load
	Name           string
	Timestamp      uint32
	CurrentVersion uint32
	CompatVersion  uint32
}

func (d *Dylib) Weak() bool     { return d.Cmd == types.LC_LOAD_WEAK_DYLIB }
func (d *Dylib) Reexport() bool { return d.Cmd == types.LC_REEXPORT_DYLIB }

// A PreboundDylib is an LC_PREBOUND_DYLIB command. LinkedOff is the file offset of the
// linked module bit vector which is LinkedSize bytes long.
type PreboundDylib struct {
	Load
	Name       string
	NModules   uint32
	LinkedOff  uint32
	LinkedSize uint32
}

type Routines struct {
	Load
	InitAddress uint32
	InitModule  uint32
}

type Symtab struct {
	Load
	Symoff  uint32
	Nsyms   uint32
	Stroff  uint32
	Strsize uint32
}

type Dysymtab struct {
	Load
	Ilocalsym      uint32
	Nlocalsym      uint32
	Iextdefsym     uint32
	Nextdefsym     uint32
	Iundefsym      uint32
	Nundefsym      uint32
	Tocoff         uint32
	Ntoc           uint32
	Modtaboff      uint32
	Nmodtab        uint32
	Extrefsymoff   uint32
	Nextrefsyms    uint32
	Indirectsymoff uint32
	Nindirectsyms  uint32
	Extreloff      uint32
	Nextrel        uint32
	Locreloff      uint32
	Nlocrel        uint32
}

type TwolevelHints struct {
	Load
	HintOff uint32
	NHints  uint32
}

type PrebindCksum struct {
	Load
	Cksum uint32
}

// A TocEntry is a dylib_table_of_contents entry.
type TocEntry struct {
	SymbolIndex uint32
	ModuleIndex uint32
}

// A Module is a dylib_module entry.
type Module struct {
	Name               uint32
	Iextdefsym         uint32
	Nextdefsym         uint32
	Irefsym            uint32
	Nrefsym            uint32
	Ilocalsym          uint32
	Nlocalsym          uint32
	Iextrel            uint32
	Nextrel            uint32
	IinitIterm         uint32
	NinitNterm         uint32
	ObjcModuleInfoAddr uint32
	ObjcModuleInfoSize uint32
}

const moduleSize = 13 * 4

// A Reference is a dylib_reference entry.
type Reference struct {
	Isym  uint32
	Flags NDesc
}

// A Hint is a twolevel_hint entry. ISubImage is 0 for the primary library, otherwise a
// 1-based index into its sub-images; IToc indexes the defining library's table of contents.
type Hint struct {
	ISubImage uint8
	IToc      uint32
}

// Image is a parsed, mutable thin 32-bit Mach-O. Edits to the decoded tables are written
// back into View with Flush.
type Image struct {
	View   View
	Header types.FileHeader

	Loads    []Load
	Segments []*Segment
	Sections []*Section // section ordinal n is Sections[n-1]

	Symtab   *Symtab
	Dysymtab *Dysymtab
	Symbols  []Nlist
	Names    []string // decoded symbol names, parallel to Symbols
	Toc      []TocEntry
	Modules  []Module
	Refs     []Reference
	Indirect []uint32

	ExtRelocs []Reloc
	LocRelocs []Reloc

	Hints    []Hint
	HintsCmd *TwolevelHints

	ID           *Dylib
	Dylibs       []*Dylib // dependent libraries in load command order
	SubFramework string
	SubUmbrellas []string
	SubLibraries []string
	Routines     *Routines
	Prebound     []*PreboundDylib
	Cksum        *PrebindCksum

	strtab View
}

// Parse decodes a thin 32-bit Mach-O. The image aliases b.
func Parse(b []byte) (*Image, error) {
	if len(b) < headerSize {
		return nil, errors.Wrap(ErrNot32Bit, "file too small")
	}
	var order binary.ByteOrder
	switch binary.BigEndian.Uint32(b) {
	case magic32:
		order = binary.BigEndian
	case magic32Rev:
		order = binary.LittleEndian
	case magic64, magic64Rev:
		return nil, errors.Wrap(ErrNot32Bit, "64-bit mach-o files are never prebound")
	default:
		return nil, ErrNot32Bit
	}

	img := &Image{View: NewView(b, order)}
	img.Header = types.FileHeader{
		Magic:        types.Magic32,
		CPU:          types.CPU(order.Uint32(b[4:])),
		SubCPU:       types.CPUSubtype(order.Uint32(b[8:])),
		Type:         types.HeaderFileType(order.Uint32(b[12:])),
		NCommands:    order.Uint32(b[16:]),
		SizeCommands: order.Uint32(b[20:]),
		Flags:        types.HeaderFlag(order.Uint32(b[24:])),
	}

	if err := img.parseLoads(); err != nil {
		return nil, err
	}
	if err := img.parseLinkedit(); err != nil {
		return nil, err
	}
	if err := img.validate(); err != nil {
		return nil, err
	}
	return img, nil
}

// Order returns the byte order of the image.
func (img *Image) Order() binary.ByteOrder { return img.View.ByteOrder() }

func (img *Image) IsDylib() bool      { return img.Header.Type == types.MH_DYLIB }
func (img *Image) IsExecutable() bool { return img.Header.Type == types.MH_EXECUTE }
func (img *Image) TwoLevel() bool     { return img.Header.Flags&types.TwoLevel != 0 }

func fixedString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func (img *Image) lcStr(l Load, field uint32) (string, error) {
	off, err := img.View.Uint32(l.Offset + field)
	if err != nil {
		return "", err
	}
	if off >= l.Size {
		return "", errors.Wrapf(ErrMalformed, "%s string offset %d extends past cmdsize %d", l.Cmd, off, l.Size)
	}
	cmd, err := img.View.Sub(l.Offset, l.Size)
	if err != nil {
		return "", err
	}
	return cmd.CString(off)
}

func (img *Image) parseLoads() error {
	v := img.View
	end := uint64(headerSize) + uint64(img.Header.SizeCommands)
	if end > uint64(v.Len()) {
		return errors.Wrapf(ErrMalformed, "sizeofcmds %#x extends past end of file", img.Header.SizeCommands)
	}

	off := uint32(headerSize)
	for i := uint32(0); i < img.Header.NCommands; i++ {
		if uint64(off)+8 > end {
			return errors.Wrapf(ErrMalformed, "load command %d extends past sizeofcmds", i)
		}
		cmd, _ := v.Uint32(off)
		size, _ := v.Uint32(off + 4)
		if size < 8 || size%4 != 0 || uint64(off)+uint64(size) > end {
			return errors.Wrapf(ErrMalformed, "load command %d has bad cmdsize %d", i, size)
		}
		l := Load{Cmd: types.LoadCmd(cmd), Offset: off, Size: size}
		img.Loads = append(img.Loads, l)
		if err := img.parseLoad(l); err != nil {
			return errors.Wrapf(err, "load command %d (%s)", i, l.Cmd)
		}
		off += size
	}
	return nil
}

func (img *Image) words(l Load, n uint32) ([]uint32, error) {
	if l.Size < n*4 {
		return nil, errors.Wrapf(ErrMalformed, "cmdsize %d too small for %s", l.Size, l.Cmd)
	}
	return img.View.Uint32s(l.Offset, n)
}

func (img *Image) parseLoad(l Load) error {
	v := img.View
	switch l.Cmd {
	case types.LC_SEGMENT:
		w, err := img.words(l, segmentSize/4)
		if err != nil {
			return err
		}
		name, _ := v.Slice(l.Offset+8, 16)
		seg := &Segment{
			Offset:   l.Offset,
			Name:     fixedString(name),
			Addr:     w[6],
			Memsz:    w[7],
			FileOff:  w[8],
			Filesz:   w[9],
			Maxprot:  w[10],
			Initprot: w[11],
			Flags:    w[13],
		}
		nsects := w[12]
		if uint64(segmentSize)+uint64(nsects)*sectionSize > uint64(l.Size) {
			return errors.Wrapf(ErrMalformed, "segment %s has %d sections but cmdsize %d", seg.Name, nsects, l.Size)
		}
		for i := uint32(0); i < nsects; i++ {
			soff := l.Offset + segmentSize + i*sectionSize
			sw, err := v.Uint32s(soff+32, 9)
			if err != nil {
				return err
			}
			sname, _ := v.Slice(soff, 16)
			ssegname, _ := v.Slice(soff+16, 16)
			sect := &Section{
				Offset:    soff,
				Name:      fixedString(sname),
				Seg:       fixedString(ssegname),
				Addr:      sw[0],
				Size:      sw[1],
				FileOff:   sw[2],
				Align:     sw[3],
				Reloff:    sw[4],
				Nreloc:    sw[5],
				Flags:     SectionFlag(sw[6]),
				Reserved1: sw[7],
				Reserved2: sw[8],
			}
			seg.Sections = append(seg.Sections, sect)
			img.Sections = append(img.Sections, sect)
		}
		img.Segments = append(img.Segments, seg)

	case types.LC_SYMTAB:
		w, err := img.words(l, 6)
		if err != nil {
			return err
		}
		img.Symtab = &Symtab{Load: l, Symoff: w[2], Nsyms: w[3], Stroff: w[4], Strsize: w[5]}

	case types.LC_DYSYMTAB:
		w, err := img.words(l, 20)
		if err != nil {
			return err
		}
		img.Dysymtab = &Dysymtab{
			Load:           l,
			Ilocalsym:      w[2],
			Nlocalsym:      w[3],
			Iextdefsym:     w[4],
			Nextdefsym:     w[5],
			Iundefsym:      w[6],
			Nundefsym:      w[7],
			Tocoff:         w[8],
			Ntoc:           w[9],
			Modtaboff:      w[10],
			Nmodtab:        w[11],
			Extrefsymoff:   w[12],
			Nextrefsyms:    w[13],
			Indirectsymoff: w[14],
			Nindirectsyms:  w[15],
			Extreloff:      w[16],
			Nextrel:        w[17],
			Locreloff:      w[18],
			Nlocrel:        w[19],
		}

	case types.LC_ID_DYLIB, types.LC_LOAD_DYLIB, types.LC_LOAD_WEAK_DYLIB, types.LC_REEXPORT_DYLIB:
		w, err := img.words(l, 6)
		if err != nil {
			return err
		}
		name, err := img.lcStr(l, 8)
		if err != nil {
			return err
		}
		d := &Dylib{Load: l, Name: name, Timestamp: w[3], CurrentVersion: w[4], CompatVersion: w[5]}
		if l.Cmd == types.LC_ID_DYLIB {
			img.ID = d
		} else {
			img.Dylibs = append(img.Dylibs, d)
		}

	case types.LC_SUB_FRAMEWORK, types.LC_SUB_UMBRELLA, types.LC_SUB_LIBRARY:
		if _, err := img.words(l, 3); err != nil {
			return err
		}
		name, err := img.lcStr(l, 8)
		if err != nil {
			return err
		}
		switch l.Cmd {
		case types.LC_SUB_FRAMEWORK:
			img.SubFramework = name
		case types.LC_SUB_UMBRELLA:
			img.SubUmbrellas = append(img.SubUmbrellas, name)
		default:
			img.SubLibraries = append(img.SubLibraries, name)
		}

	case types.LC_ROUTINES:
		w, err := img.words(l, 4)
		if err != nil {
			return err
		}
		img.Routines = &Routines{Load: l, InitAddress: w[2], InitModule: w[3]}

	case types.LC_PREBOUND_DYLIB:
		w, err := img.words(l, 5)
		if err != nil {
			return err
		}
		name, err := img.lcStr(l, 8)
		if err != nil {
			return err
		}
		pb := &PreboundDylib{Load: l, Name: name, NModules: w[3], LinkedSize: (w[3] + 7) / 8}
		if w[4] >= l.Size || uint64(w[4])+uint64(pb.LinkedSize) > uint64(l.Size) {
			return errors.Wrapf(ErrMalformed, "linked modules bit vector for %s extends past cmdsize", name)
		}
		pb.LinkedOff = l.Offset + w[4]
		img.Prebound = append(img.Prebound, pb)

	case types.LC_TWOLEVEL_HINTS:
		w, err := img.words(l, 4)
		if err != nil {
			return err
		}
		img.HintsCmd = &TwolevelHints{Load: l, HintOff: w[2], NHints: w[3]}

	case types.LC_PREBIND_CKSUM:
		w, err := img.words(l, 3)
		if err != nil {
			return err
		}
		img.Cksum = &PrebindCksum{Load: l, Cksum: w[2]}
	}
	return nil
}

func (img *Image) parseLinkedit() error {
	v := img.View
	o := v.ByteOrder()

	if st := img.Symtab; st != nil {
		tab, err := v.Sub(st.Symoff, st.Nsyms*nlistSize)
		if err != nil || uint64(st.Nsyms)*nlistSize > uint64(v.Len()) {
			return errors.Wrapf(ErrMalformed, "symbol table (%d entries at %#x) extends past end of file", st.Nsyms, st.Symoff)
		}
		if img.strtab, err = v.Sub(st.Stroff, st.Strsize); err != nil {
			return errors.Wrap(err, "string table")
		}
		img.Symbols = make([]Nlist, st.Nsyms)
		img.Names = make([]string, st.Nsyms)
		for i := range img.Symbols {
			e := tab.buf[i*nlistSize:]
			n := Nlist{
				Name:  o.Uint32(e),
				Type:  types.NType(e[4]),
				Sect:  e[5],
				Desc:  NDesc(o.Uint16(e[6:])),
				Value: o.Uint32(e[8:]),
			}
			img.Symbols[i] = n
			if n.Name == 0 {
				continue
			}
			if img.Names[i], err = img.strtab.CString(n.Name); err != nil {
				return errors.Wrapf(err, "symbol %d name", i)
			}
		}
	}

	dt := img.Dysymtab
	if dt == nil {
		return nil
	}
	var err error
	if dt.Ntoc > 0 {
		w, err := v.Uint32s(dt.Tocoff, dt.Ntoc*2)
		if err != nil {
			return errors.Wrap(err, "table of contents")
		}
		img.Toc = make([]TocEntry, dt.Ntoc)
		for i := range img.Toc {
			img.Toc[i] = TocEntry{SymbolIndex: w[2*i], ModuleIndex: w[2*i+1]}
		}
	}
	if dt.Nmodtab > 0 {
		w, err := v.Uint32s(dt.Modtaboff, dt.Nmodtab*13)
		if err != nil {
			return errors.Wrap(err, "module table")
		}
		img.Modules = make([]Module, dt.Nmodtab)
		for i := range img.Modules {
			m := w[13*i:]
			img.Modules[i] = Module{m[0], m[1], m[2], m[3], m[4], m[5], m[6], m[7], m[8], m[9], m[10], m[11], m[12]}
		}
	}
	if dt.Nextrefsyms > 0 {
		w, err := v.Uint32s(dt.Extrefsymoff, dt.Nextrefsyms)
		if err != nil {
			return errors.Wrap(err, "reference table")
		}
		img.Refs = make([]Reference, len(w))
		for i, r := range w {
			img.Refs[i] = decodeReference(r, o)
		}
	}
	if dt.Nindirectsyms > 0 {
		if img.Indirect, err = v.Uint32s(dt.Indirectsymoff, dt.Nindirectsyms); err != nil {
			return errors.Wrap(err, "indirect symbol table")
		}
	}
	if img.ExtRelocs, err = img.readRelocs(dt.Extreloff, dt.Nextrel); err != nil {
		return errors.Wrap(err, "external relocations")
	}
	if img.LocRelocs, err = img.readRelocs(dt.Locreloff, dt.Nlocrel); err != nil {
		return errors.Wrap(err, "local relocations")
	}
	if h := img.HintsCmd; h != nil && h.NHints > 0 {
		w, err := v.Uint32s(h.HintOff, h.NHints)
		if err != nil {
			return errors.Wrap(err, "two-level hints")
		}
		img.Hints = make([]Hint, len(w))
		for i, hw := range w {
			img.Hints[i] = decodeHint(hw, o)
		}
	}
	return nil
}

func (img *Image) readRelocs(off, n uint32) ([]Reloc, error) {
	if n == 0 {
		return nil, nil
	}
	w, err := img.View.Uint32s(off, n*2)
	if err != nil {
		return nil, err
	}
	out := make([]Reloc, n)
	for i := range out {
		out[i] = DecodeReloc(w[2*i], w[2*i+1], img.Order())
	}
	return out, nil
}

func decodeReference(w uint32, o binary.ByteOrder) Reference {
	if o == binary.BigEndian {
		return Reference{Isym: w >> 8, Flags: NDesc(w & 0xff)}
	}
	return Reference{Isym: w & 0x00ffffff, Flags: NDesc(w >> 24)}
}

func encodeReference(r Reference, o binary.ByteOrder) uint32 {
	if o == binary.BigEndian {
		return r.Isym<<8 | uint32(r.Flags&0xff)
	}
	return r.Isym&0x00ffffff | uint32(r.Flags&0xff)<<24
}

func decodeHint(w uint32, o binary.ByteOrder) Hint {
	if o == binary.BigEndian {
		return Hint{ISubImage: uint8(w >> 24), IToc: w & 0x00ffffff}
	}
	return Hint{ISubImage: uint8(w), IToc: w >> 8}
}

func encodeHint(h Hint, o binary.ByteOrder) uint32 {
	if o == binary.BigEndian {
		return uint32(h.ISubImage)<<24 | h.IToc&0x00ffffff
	}
	return uint32(h.ISubImage) | h.IToc<<8
}

func inRange(i, n, limit uint32) bool {
	return uint64(i)+uint64(n) <= uint64(limit)
}

func (img *Image) validate() error {
	nsyms := uint32(len(img.Symbols))
	if dt := img.Dysymtab; dt != nil {
		if !inRange(dt.Ilocalsym, dt.Nlocalsym, nsyms) ||
			!inRange(dt.Iextdefsym, dt.Nextdefsym, nsyms) ||
			!inRange(dt.Iundefsym, dt.Nundefsym, nsyms) {
			return errors.Wrap(ErrMalformed, "dynamic symbol table ranges extend past the symbol table")
		}
	}
	for i, t := range img.Toc {
		if t.SymbolIndex >= nsyms || t.ModuleIndex >= uint32(len(img.Modules)) {
			return errors.Wrapf(ErrMalformed, "table of contents entry %d out of range", i)
		}
	}
	for i, m := range img.Modules {
		if !inRange(m.Iextdefsym, m.Nextdefsym, nsyms) ||
			!inRange(m.Ilocalsym, m.Nlocalsym, nsyms) ||
			!inRange(m.Irefsym, m.Nrefsym, uint32(len(img.Refs))) {
			return errors.Wrapf(ErrMalformed, "module %d ranges out of range", i)
		}
	}
	for i, r := range img.Refs {
		if r.Isym >= nsyms {
			return errors.Wrapf(ErrMalformed, "reference %d symbol index %d out of range", i, r.Isym)
		}
	}
	for i, s := range img.Indirect {
		if s&(INDIRECT_SYMBOL_LOCAL|INDIRECT_SYMBOL_ABS) == 0 && s >= nsyms {
			return errors.Wrapf(ErrMalformed, "indirect symbol %d index %d out of range", i, s)
		}
	}
	for _, s := range img.Sections {
		if !s.Flags.IsLazySymbolPointers() && !s.Flags.IsNonLazySymbolPointers() && !s.Flags.IsSymbolStubs() {
			continue
		}
		n := s.Size / 4
		if s.Flags.IsSymbolStubs() {
			if s.Reserved2 == 0 {
				continue
			}
			n = s.Size / s.Reserved2
		}
		if !inRange(s.Reserved1, n, uint32(len(img.Indirect))) {
			return errors.Wrapf(ErrMalformed, "section (%s,%s) indirect symbols extend past the indirect symbol table", s.Seg, s.Name)
		}
	}
	for i, r := range img.ExtRelocs {
		if !r.Scattered && r.Extern && r.Symbolnum >= nsyms {
			return errors.Wrapf(ErrMalformed, "external relocation %d symbol index %d out of range", i, r.Symbolnum)
		}
	}
	for i, r := range img.LocRelocs {
		if !r.Scattered && !r.Extern && r.Symbolnum > uint32(len(img.Sections)) {
			return errors.Wrapf(ErrMalformed, "local relocation %d section ordinal %d out of range", i, r.Symbolnum)
		}
	}
	if img.HintsCmd != nil && img.Dysymtab != nil && img.HintsCmd.NHints != img.Dysymtab.Nundefsym {
		return errors.Wrapf(ErrMalformed, "%d two-level hints for %d undefined symbols", img.HintsCmd.NHints, img.Dysymtab.Nundefsym)
	}
	return nil
}

// StringAt returns the string table entry at index strx.
func (img *Image) StringAt(strx uint32) (string, error) {
	return img.strtab.CString(strx)
}

// Extdefs returns the symbol index range [start, end) of the external definitions.
func (img *Image) Extdefs() (uint32, uint32) {
	if img.Dysymtab == nil {
		return 0, 0
	}
	return img.Dysymtab.Iextdefsym, img.Dysymtab.Iextdefsym + img.Dysymtab.Nextdefsym
}

// Undefs returns the symbol index range [start, end) of the undefined symbols.
func (img *Image) Undefs() (uint32, uint32) {
	if img.Dysymtab == nil {
		return 0, 0
	}
	return img.Dysymtab.Iundefsym, img.Dysymtab.Iundefsym + img.Dysymtab.Nundefsym
}

// LookupTOC binary searches the table of contents for name and returns the TOC index.
func (img *Image) LookupTOC(name string) (int, bool) {
	i := sort.Search(len(img.Toc), func(i int) bool {
		return img.Names[img.Toc[i].SymbolIndex] >= name
	})
	if i < len(img.Toc) && img.Names[img.Toc[i].SymbolIndex] == name {
		return i, true
	}
	return 0, false
}

// LookupExtdef binary searches the sorted external definitions for name.
func (img *Image) LookupExtdef(name string) (uint32, bool) {
	start, end := img.Extdefs()
	n := int(end - start)
	i := sort.Search(n, func(i int) bool {
		return img.Names[start+uint32(i)] >= name
	})
	if i < n && img.Names[start+uint32(i)] == name {
		return start + uint32(i), true
	}
	return 0, false
}

// LookupUndef returns the index of the undefined symbol called name.
func (img *Image) LookupUndef(name string) (uint32, bool) {
	start, end := img.Undefs()
	for i := start; i < end; i++ {
		if img.Names[i] == name {
			return i, true
		}
	}
	return 0, false
}

// RelocBase returns the address relocation r_address fields are relative to.
func (img *Image) RelocBase() uint32 {
	if img.Header.Flags&types.SplitSegs != 0 {
		for _, s := range img.Segments {
			if s.Writable() {
				return s.Addr
			}
		}
	}
	if len(img.Segments) > 0 {
		return img.Segments[0].Addr
	}
	return 0
}

// Seg1Addr returns the address of the first segment.
func (img *Image) Seg1Addr() uint32 {
	if len(img.Segments) == 0 {
		return 0
	}
	return img.Segments[0].Addr
}

// AddrToOffset maps a virtual address to a file offset. size bytes starting at addr must
// be backed by the file.
func (img *Image) AddrToOffset(addr, size uint32) (uint32, error) {
	for _, s := range img.Segments {
		if s.Contains(addr) && uint64(addr-s.Addr)+uint64(size) <= uint64(s.Filesz) {
			return s.FileOff + (addr - s.Addr), nil
		}
	}
	return 0, errors.Wrapf(ErrMalformed, "address %#x is not in any segment's file contents", addr)
}

// Section returns the section named (seg, sect) or nil.
func (img *Image) Section(seg, sect string) *Section {
	for _, s := range img.Sections {
		if s.Seg == seg && s.Name == sect {
			return s
		}
	}
	return nil
}

// HeaderPadding returns the offset of the first section's contents. Load commands may
// grow up to this offset.
func (img *Image) HeaderPadding() uint32 {
	limit := img.View.Len()
	for _, s := range img.Sections {
		if s.Size == 0 || s.Flags.IsZerofill() || s.FileOff == 0 {
			continue
		}
		if s.FileOff < limit {
			limit = s.FileOff
		}
	}
	return limit
}

// ModuleOfSymbol returns the index of the module whose local or external definition
// range contains isym.
func (img *Image) ModuleOfSymbol(isym uint32) (int, bool) {
	for i, m := range img.Modules {
		if (isym >= m.Ilocalsym && isym-m.Ilocalsym < m.Nlocalsym) ||
			(isym >= m.Iextdefsym && isym-m.Iextdefsym < m.Nextdefsym) {
			return i, true
		}
	}
	return 0, false
}

func (img *Image) String() string {
	name := "executable"
	if img.ID != nil {
		name = img.ID.Name
	}
	return fmt.Sprintf("%s (%s)", name, CPUName(img.Header.CPU))
}
