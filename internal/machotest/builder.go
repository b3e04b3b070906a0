// Package machotest builds small, fully linked 32-bit Mach-O images in memory for tests.
//
// Every image has the same layout relative to its first segment address:
//
//	__TEXT    fileoff 0x0000  __text at TextOffset, __jump_table at StubsOffset
//	__DATA    fileoff 0x2000  __data, __nl_symbol_ptr, __la_symbol_ptr, (__OBJC,__module_info)
//	__LINKEDIT fileoff 0x3000 relocations, symbols, indirect table, hints, toc, modules, strings
//
// Executables may additionally start with a __PAGEZERO segment mapped at 0.
package machotest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/blacktop/go-macho/types"
)

const (
	TextOffset     = 0x1000
	StubsOffset    = 0x1800
	DataOffset     = 0x2000
	NonLazyOffset  = 0x2800
	LazyOffset     = 0x2900
	ObjcOffset     = 0x2a00
	LinkeditOffset = 0x3000

	stubSize = 5

	// LenByte requests a 1 byte relocation field (r_length 0); a zero Len means 4 bytes.
	LenByte = 0xff
)

// Section ordinals.
const (
	SectText    = 1
	SectStubs   = 2
	SectData    = 3
	SectNonLazy = 4
	SectLazy    = 5
	SectObjc    = 6
)

type Dylib struct {
	Name      string
	Timestamp uint32
	Weak      bool
	Reexport  bool
}

// A Def is an external definition. Sect and Off place it; Abs makes it absolute with Value;
// Indr makes it an N_INDR symbol for the named symbol.
type Def struct {
	Name   string
	Sect   uint8
	Off    uint32
	Abs    bool
	Value  uint32
	Desc   uint16
	Module int
	Indr   string
}

// An Undef is an undefined external symbol. A non-zero Value makes it prebound (N_PBUD).
type Undef struct {
	Name    string
	Ordinal uint8
	Lazy    bool
	Weak    bool
	Value   uint32
}

type Local struct {
	Name   string
	Sect   uint8
	Off    uint32
	Abs    bool
	Value  uint32
	Module int
}

type Ref struct {
	Name  string
	Flags uint8
}

type Module struct {
	Name     string
	Refs     []Ref
	ObjcAddr uint32
	ObjcSize uint32
}

// Ptr is a symbol pointer. Local pointers use INDIRECT_SYMBOL_LOCAL.
type Ptr struct {
	Name  string
	Value uint32
	Local bool
}

// LazyPtr is a lazy symbol pointer with a PB_LA_PTR relocation whose r_value is Helper.
type LazyPtr struct {
	Name   string
	Value  uint32
	Helper uint32
}

type Stub struct {
	Name   string
	Target uint32 // bound target, 0 for an unbound (hlt) stub
}

type ExtReloc struct {
	Off   uint32 // offset in __data
	Name  string
	Len   uint8
	Pcrel bool
	Type  uint8
}

type LocReloc struct {
	Off       uint32 // offset in __data
	Sect      uint8
	Len       uint8
	Pcrel     bool
	Scattered bool
	Type      uint8
	Value     uint32
}

type Prebound struct {
	Name     string
	NModules uint32
	Bits     []byte
}

type Builder struct {
	CPU       types.CPU
	BigEndian bool
	Type      types.HeaderFileType
	Flags     types.HeaderFlag
	Addr      uint32
	PageZero  bool
	HeaderPad uint32 // offset of __text, defaults to TextOffset

	InstallName string
	Timestamp   uint32

	Dylibs       []Dylib
	SubFramework string
	SubUmbrellas []string
	SubLibraries []string

	Locals  []Local
	Defs    []Def
	Undefs  []Undef
	Modules []Module

	Text      map[uint32]uint32
	Data      map[uint32]uint32
	DataBytes map[uint32]byte
	NonLazy   []Ptr
	Lazy      []LazyPtr
	Stubs     []Stub

	ExtRelocs     []ExtReloc
	LocRelocs     []LocReloc
	LazyRelocType uint8

	Hints      bool
	Cksum      bool
	CksumValue uint32
	Prebound   []Prebound
	Routines   bool
	InitOff    uint32
	InitModule uint32
	ObjcSize   uint32
}

func (b *Builder) textOffset() uint32 {
	if b.HeaderPad != 0 {
		return b.HeaderPad
	}
	return TextOffset
}

// Address helpers for tests.
func (b *Builder) TextAddr(off uint32) uint32 { return b.Addr + b.textOffset() + off }
func (b *Builder) DataAddr(off uint32) uint32 { return b.Addr + DataOffset + off }
func (b *Builder) NonLazyAddr(i int) uint32   { return b.Addr + NonLazyOffset + uint32(i)*4 }
func (b *Builder) LazyAddr(i int) uint32      { return b.Addr + LazyOffset + uint32(i)*4 }
func (b *Builder) StubAddr(i int) uint32      { return b.Addr + StubsOffset + uint32(i)*stubSize }
func (b *Builder) SectAddr(sect uint8) uint32 { return b.Addr + sectOffset(sect, b.textOffset()) }

func (b *Builder) order() binary.ByteOrder {
	if b.BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func sectOffset(sect uint8, text uint32) uint32 {
	switch sect {
	case SectText:
		return text
	case SectStubs:
		return StubsOffset
	case SectData:
		return DataOffset
	case SectNonLazy:
		return NonLazyOffset
	case SectLazy:
		return LazyOffset
	case SectObjc:
		return ObjcOffset
	}
	return 0
}

type strtab struct {
	buf   bytes.Buffer
	index map[string]uint32
}

func newStrtab() *strtab {
	s := &strtab{index: make(map[string]uint32)}
	s.buf.Write([]byte{' ', 0, 0, 0})
	return s
}

func (s *strtab) add(name string) uint32 {
	if i, ok := s.index[name]; ok {
		return i
	}
	i := uint32(s.buf.Len())
	s.buf.WriteString(name)
	s.buf.WriteByte(0)
	s.index[name] = i
	return i
}

type nlist struct {
	name  string
	typ   uint8
	sect  uint8
	desc  uint16
	value uint32
	mod   int
}

// Build lays out and encodes the image. It panics on inconsistent input.
func (b *Builder) Build() []byte {
	o := b.order()
	if b.CPU == 0 {
		b.CPU = types.CPUI386
	}
	if b.Type == 0 {
		b.Type = types.MH_EXECUTE
	}
	dylib := b.Type == types.MH_DYLIB
	text := b.textOffset()
	if text >= StubsOffset || uint32(len(b.Stubs))*stubSize > DataOffset-StubsOffset {
		panic("machotest: text layout overflow")
	}

	// symbols: locals, extdefs, undefs
	var locals, defs, undefs []nlist
	for _, l := range b.Locals {
		n := nlist{name: l.Name, typ: uint8(types.N_SECT), sect: l.Sect, value: b.Addr + sectOffset(l.Sect, text) + l.Off, mod: l.Module}
		if l.Abs {
			n.typ, n.sect, n.value = uint8(types.N_ABS), 0, l.Value
		}
		locals = append(locals, n)
	}
	for _, d := range b.Defs {
		n := nlist{name: d.Name, typ: uint8(types.N_SECT | types.N_EXT), sect: d.Sect, desc: d.Desc, value: b.Addr + sectOffset(d.Sect, text) + d.Off, mod: d.Module}
		switch {
		case d.Indr != "":
			n.typ, n.sect, n.value = uint8(types.N_INDR|types.N_EXT), 0, 0
		case d.Abs:
			n.typ, n.sect, n.value = uint8(types.N_ABS|types.N_EXT), 0, d.Value
		}
		defs = append(defs, n)
	}
	for _, u := range b.Undefs {
		desc := uint16(u.Ordinal) << 8
		if u.Lazy {
			desc |= 1
		}
		if u.Weak {
			desc |= 0x40
		}
		n := nlist{name: u.Name, typ: uint8(types.N_UNDF | types.N_EXT), desc: desc, value: u.Value}
		if u.Value != 0 {
			n.typ = uint8(types.N_PBUD | types.N_EXT)
		}
		undefs = append(undefs, n)
	}
	sort.SliceStable(locals, func(i, j int) bool { return locals[i].mod < locals[j].mod })
	sort.SliceStable(defs, func(i, j int) bool {
		if dylib && defs[i].mod != defs[j].mod {
			return defs[i].mod < defs[j].mod
		}
		return defs[i].name < defs[j].name
	})
	sort.SliceStable(undefs, func(i, j int) bool { return undefs[i].name < undefs[j].name })

	syms := append(append(append([]nlist{}, locals...), defs...), undefs...)
	ilocal, iextdef, iundef := 0, len(locals), len(locals)+len(defs)
	symIndex := func(name string) uint32 {
		for i := len(syms) - 1; i >= 0; i-- {
			if syms[i].name == name {
				return uint32(i)
			}
		}
		panic(fmt.Sprintf("machotest: unknown symbol %q", name))
	}

	str := newStrtab()
	strx := make([]uint32, len(syms))
	for i, s := range syms {
		strx[i] = str.add(s.name)
	}
	for i, d := range defs {
		for _, bd := range b.Defs {
			if bd.Name == d.name && bd.Indr != "" {
				syms[iextdef+i].value = str.add(bd.Indr)
			}
		}
	}

	// module table, references and toc
	var modules [][13]uint32
	var refs []uint32
	var toc [][2]uint32
	if dylib {
		mods := b.Modules
		if len(mods) == 0 {
			mods = []Module{{Name: "a.o"}}
		}
		for m, mod := range mods {
			var e [13]uint32
			e[0] = str.add(mod.Name)
			e[1], e[2] = rangeOf(syms, iextdef, iundef, m)
			e[3] = uint32(len(refs))
			for _, r := range mod.Refs {
				isym := symIndex(r.Name)
				if o == binary.BigEndian {
					refs = append(refs, isym<<8|uint32(r.Flags))
				} else {
					refs = append(refs, isym|uint32(r.Flags)<<24)
				}
			}
			e[4] = uint32(len(mod.Refs))
			e[5], e[6] = rangeOf(syms, ilocal, iextdef, m)
			e[11], e[12] = mod.ObjcAddr, mod.ObjcSize
			modules = append(modules, e)
		}
		for i := iextdef; i < iundef; i++ {
			toc = append(toc, [2]uint32{uint32(i), uint32(syms[i].mod)})
		}
		sort.SliceStable(toc, func(i, j int) bool { return syms[toc[i][0]].name < syms[toc[j][0]].name })
	}

	// indirect symbols
	var indirect []uint32
	ptrIndex := func(name string, local bool) uint32 {
		if local {
			return 0x80000000
		}
		return symIndex(name)
	}
	for _, p := range b.NonLazy {
		indirect = append(indirect, ptrIndex(p.Name, p.Local))
	}
	for _, p := range b.Lazy {
		indirect = append(indirect, ptrIndex(p.Name, false))
	}
	for _, s := range b.Stubs {
		indirect = append(indirect, ptrIndex(s.Name, false))
	}

	// relocations
	relocBase := b.Addr
	if b.PageZero {
		relocBase = 0
	}
	rel := func(addr uint32) uint32 { return b.Addr + addr - relocBase }
	var extrel, locrel [][2]uint32
	for _, r := range b.ExtRelocs {
		l := r.Len
		if l == 0 {
			l = 2
		}
		if r.Len == LenByte {
			l = 0
		}
		extrel = append(extrel, [2]uint32{rel(DataOffset + r.Off), relocWord(o, symIndex(r.Name), r.Pcrel, l, true, r.Type)})
	}
	for _, r := range b.LocRelocs {
		l := r.Len
		if l == 0 {
			l = 2
		}
		if r.Len == LenByte {
			l = 0
		}
		if r.Scattered {
			locrel = append(locrel, [2]uint32{scatteredWord(rel(DataOffset+r.Off), r.Pcrel, l, r.Type), r.Value})
			continue
		}
		locrel = append(locrel, [2]uint32{rel(DataOffset + r.Off), relocWord(o, uint32(r.Sect), r.Pcrel, l, false, r.Type)})
	}
	lazyType := b.LazyRelocType
	if lazyType == 0 {
		lazyType = 3
	}
	for i, p := range b.Lazy {
		locrel = append(locrel, [2]uint32{scatteredWord(rel(LazyOffset+uint32(i)*4), false, 2, lazyType), p.Helper})
	}

	// __LINKEDIT
	var le bytes.Buffer
	put := func(ws ...uint32) {
		for _, w := range ws {
			binary.Write(&le, o, w)
		}
	}
	off := func() uint32 { return LinkeditOffset + uint32(le.Len()) }

	locreloff := off()
	for _, r := range locrel {
		put(r[0], r[1])
	}
	extreloff := off()
	for _, r := range extrel {
		put(r[0], r[1])
	}
	symoff := off()
	for i, s := range syms {
		put(strx[i])
		le.WriteByte(s.typ)
		le.WriteByte(s.sect)
		binary.Write(&le, o, s.desc)
		put(s.value)
	}
	indirectoff := off()
	put(indirect...)
	hintoff := off()
	if b.Hints {
		for range undefs {
			put(0)
		}
	}
	tocoff := off()
	for _, t := range toc {
		put(t[0], t[1])
	}
	modoff := off()
	for _, m := range modules {
		put(m[:]...)
	}
	refoff := off()
	put(refs...)
	stroff := off()
	for str.buf.Len()%4 != 0 {
		str.buf.WriteByte(0)
	}
	le.Write(str.buf.Bytes())
	linkeditSize := uint32(le.Len())

	// load commands
	var lc bytes.Buffer
	ncmds := 0
	cmd := func(c types.LoadCmd, body []byte) {
		size := uint32(8 + len(body))
		pad := (4 - size%4) % 4
		binary.Write(&lc, o, uint32(c))
		binary.Write(&lc, o, size+pad)
		lc.Write(body)
		lc.Write(make([]byte, pad))
		ncmds++
	}
	words := func(ws ...uint32) []byte {
		var w bytes.Buffer
		for _, x := range ws {
			binary.Write(&w, o, x)
		}
		return w.Bytes()
	}
	name16 := func(s string) []byte {
		n := make([]byte, 16)
		copy(n, s)
		return n
	}
	type sect struct {
		name, seg     string
		off, size     uint32
		flags, r1, r2 uint32
	}
	segment := func(name string, addr, vmsize, fileoff, filesize, prot uint32, sects []sect) {
		var body bytes.Buffer
		body.Write(name16(name))
		body.Write(words(addr, vmsize, fileoff, filesize, prot, prot, uint32(len(sects)), 0))
		for _, s := range sects {
			body.Write(name16(s.name))
			body.Write(name16(s.seg))
			fo := s.off
			if s.size == 0 {
				fo = 0
			}
			body.Write(words(b.Addr+s.off, s.size, fo, 2, 0, 0, s.flags, s.r1, s.r2))
		}
		cmd(types.LC_SEGMENT, body.Bytes())
	}
	lcstr := func(fixed []uint32, s string) []byte {
		body := words(append([]uint32{uint32(8 + 4*(len(fixed)+1))}, fixed...)...)
		return append(append(body, s...), 0)
	}

	if b.PageZero {
		segment("__PAGEZERO", 0, b.Addr, 0, 0, 0, nil)
	}
	segment("__TEXT", b.Addr, 0x2000, 0, 0x2000, 5, []sect{
		{"__text", "__TEXT", text, StubsOffset - text, 0x80000400, 0, 0},
		{"__jump_table", "__IMPORT", StubsOffset, uint32(len(b.Stubs)) * stubSize, 0x8 | 0x04000000, uint32(len(b.NonLazy) + len(b.Lazy)), stubSize},
	})
	dataSects := []sect{
		{"__data", "__DATA", DataOffset, NonLazyOffset - DataOffset, 0, 0, 0},
		{"__nl_symbol_ptr", "__DATA", NonLazyOffset, uint32(len(b.NonLazy)) * 4, 0x6, 0, 0},
		{"__la_symbol_ptr", "__DATA", LazyOffset, uint32(len(b.Lazy)) * 4, 0x7, uint32(len(b.NonLazy)), 0},
	}
	if b.ObjcSize != 0 {
		dataSects = append(dataSects, sect{"__module_info", "__OBJC", ObjcOffset, b.ObjcSize, 0x10000000, 0, 0})
	}
	segment("__DATA", b.Addr+DataOffset, 0x1000, DataOffset, 0x1000, 3, dataSects)
	segment("__LINKEDIT", b.Addr+LinkeditOffset, (linkeditSize+0xfff)&^0xfff, LinkeditOffset, linkeditSize, 1, nil)
	if dylib {
		cmd(types.LC_ID_DYLIB, lcstr([]uint32{b.Timestamp, 0x10000, 0x10000}, b.InstallName))
	}
	if b.SubFramework != "" {
		cmd(types.LC_SUB_FRAMEWORK, lcstr(nil, b.SubFramework))
	}
	for _, s := range b.SubUmbrellas {
		cmd(types.LC_SUB_UMBRELLA, lcstr(nil, s))
	}
	for _, s := range b.SubLibraries {
		cmd(types.LC_SUB_LIBRARY, lcstr(nil, s))
	}
	for _, d := range b.Dylibs {
		c := types.LC_LOAD_DYLIB
		switch {
		case d.Weak:
			c = types.LC_LOAD_WEAK_DYLIB
		case d.Reexport:
			c = types.LC_REEXPORT_DYLIB
		}
		cmd(c, lcstr([]uint32{d.Timestamp, 0x10000, 0x10000}, d.Name))
	}
	if b.Routines {
		cmd(types.LC_ROUTINES, words(b.TextAddr(b.InitOff), b.InitModule, 0, 0, 0, 0, 0, 0))
	}
	cmd(types.LC_SYMTAB, words(symoff, uint32(len(syms)), stroff, uint32(str.buf.Len())))
	cmd(types.LC_DYSYMTAB, words(
		uint32(ilocal), uint32(len(locals)), uint32(iextdef), uint32(len(defs)), uint32(iundef), uint32(len(undefs)),
		tocoff, uint32(len(toc)), modoff, uint32(len(modules)), refoff, uint32(len(refs)),
		indirectoff, uint32(len(indirect)), extreloff, uint32(len(extrel)), locreloff, uint32(len(locrel))))
	if b.Hints {
		cmd(types.LC_TWOLEVEL_HINTS, words(hintoff, uint32(len(undefs))))
	}
	for _, p := range b.Prebound {
		body := words(20, p.NModules, uint32(20+len(p.Name)+1))
		body = append(append(body, p.Name...), 0)
		bits := make([]byte, (p.NModules+7)/8)
		copy(bits, p.Bits)
		cmd(types.LC_PREBOUND_DYLIB, append(body, bits...))
	}
	if b.Cksum {
		cmd(types.LC_PREBIND_CKSUM, words(b.CksumValue))
	}

	if 28+uint32(lc.Len()) > text {
		panic("machotest: load commands do not fit before __text")
	}

	out := make([]byte, LinkeditOffset+linkeditSize)
	magic := uint32(0xfeedface)
	o.PutUint32(out[0:], magic)
	o.PutUint32(out[4:], uint32(b.CPU))
	o.PutUint32(out[8:], 3)
	o.PutUint32(out[12:], uint32(b.Type))
	o.PutUint32(out[16:], uint32(ncmds))
	o.PutUint32(out[20:], uint32(lc.Len()))
	o.PutUint32(out[24:], uint32(b.Flags))
	copy(out[28:], lc.Bytes())
	copy(out[LinkeditOffset:], le.Bytes())

	for off, w := range b.Text {
		o.PutUint32(out[text+off:], w)
	}
	for off, w := range b.Data {
		o.PutUint32(out[DataOffset+off:], w)
	}
	for off, v := range b.DataBytes {
		out[DataOffset+off] = v
	}
	for i, p := range b.NonLazy {
		o.PutUint32(out[NonLazyOffset+uint32(i)*4:], p.Value)
	}
	for i, p := range b.Lazy {
		o.PutUint32(out[LazyOffset+uint32(i)*4:], p.Value)
	}
	for i, s := range b.Stubs {
		at := StubsOffset + uint32(i)*stubSize
		if s.Target == 0 {
			copy(out[at:], bytes.Repeat([]byte{0xf4}, stubSize))
			continue
		}
		out[at] = 0xe9
		o.PutUint32(out[at+1:], s.Target-(b.StubAddr(i)+stubSize))
	}
	return out
}

func rangeOf(syms []nlist, start, end, mod int) (uint32, uint32) {
	first, n := -1, 0
	for i := start; i < end; i++ {
		if syms[i].mod == mod {
			if first < 0 {
				first = i
			}
			n++
		}
	}
	if first < 0 {
		return uint32(start), 0
	}
	return uint32(first), uint32(n)
}

func relocWord(o binary.ByteOrder, symbolnum uint32, pcrel bool, length uint8, extern bool, typ uint8) uint32 {
	p, e := uint32(0), uint32(0)
	if pcrel {
		p = 1
	}
	if extern {
		e = 1
	}
	if o == binary.BigEndian {
		return symbolnum<<8 | p<<7 | uint32(length)<<5 | e<<4 | uint32(typ)
	}
	return symbolnum | p<<24 | uint32(length)<<25 | e<<27 | uint32(typ)<<28
}

func scatteredWord(addr uint32, pcrel bool, length uint8, typ uint8) uint32 {
	w := uint32(0x80000000) | uint32(length)<<28 | uint32(typ)<<24 | addr&0xffffff
	if pcrel {
		w |= 1 << 30
	}
	return w
}
