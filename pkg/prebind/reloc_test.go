package prebind

import (
	"encoding/binary"
	"testing"

	"github.com/blacktop/prebind/pkg/macho"
	"github.com/pkg/errors"
)

func wordPatch(w uint32, r, pair *macho.Reloc) *patch {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, w)
	return &patch{v: macho.NewView(b, binary.BigEndian), r: r, pair: pair}
}

type relocCase struct {
	name     string
	typ      uint8
	len      uint8
	word     uint32
	pair     uint32
	delta    uint32
	wantWord uint32
	wantPair uint32
	overflow bool
}

func runRelocCases(t *testing.T, s relocStrategy, tests []relocCase) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &macho.Reloc{Type: tt.typ, Len: tt.len}
			var pair *macho.Reloc
			if s.hasPair(tt.typ) {
				pair = &macho.Reloc{Type: s.pairType(), Addr: tt.pair}
			}
			p := wordPatch(tt.word, r, pair)
			err := s.update(p, tt.delta)
			if tt.overflow {
				var o overflow
				if !errors.As(err, &o) {
					t.Fatalf("update() error = %v, want overflow", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("update() error = %v", err)
			}
			got, _ := p.word()
			if got != tt.wantWord {
				t.Errorf("word = %#08x, want %#08x", got, tt.wantWord)
			}
			if pair != nil && pair.Addr != tt.wantPair {
				t.Errorf("pair = %#x, want %#x", pair.Addr, tt.wantPair)
			}
		})
	}
}

func TestPPCRelocs(t *testing.T) {
	runRelocCases(t, ppcStrategy{}, []relocCase{
		{name: "vanilla", typ: macho.PPC_RELOC_VANILLA, len: 2, word: 0x1000, delta: 0x20, wantWord: 0x1020},
		{name: "ha16", typ: macho.PPC_RELOC_HA16, word: 0x3c601235, pair: 0x8000, delta: 0x10, wantWord: 0x3c601235, wantPair: 0x8010},
		{name: "ha16 carry", typ: macho.PPC_RELOC_HA16, word: 0x3c601235, pair: 0x7ff0, delta: 0x20, wantWord: 0x3c601236, wantPair: 0x8010},
		{name: "hi16", typ: macho.PPC_RELOC_HI16, word: 0x3c601234, pair: 0x5678, delta: 0x10000, wantWord: 0x3c601235, wantPair: 0x5678},
		{name: "lo16", typ: macho.PPC_RELOC_LO16, word: 0x38635678, pair: 0x1234, delta: 0xb000, wantWord: 0x38630678, wantPair: 0x1235},
		{name: "lo14", typ: macho.PPC_RELOC_LO14, word: 0xe8630010, pair: 0x1234, delta: 0x100, wantWord: 0xe8630110, wantPair: 0x1234},
		{name: "br24", typ: macho.PPC_RELOC_BR24, word: 0x48000101, delta: 0x100, wantWord: 0x48000201},
		{name: "br24 backwards", typ: macho.PPC_RELOC_BR24, word: 0x48000101, delta: 0xfffffe00, wantWord: 0x4bffff01},
		{name: "br24 overflow", typ: macho.PPC_RELOC_BR24, word: 0x48000101, delta: 0x2000000, overflow: true},
		{name: "br14", typ: macho.PPC_RELOC_BR14, word: 0x41820010, delta: 0x20, wantWord: 0x41820030},
		{name: "br14 overflow", typ: macho.PPC_RELOC_BR14, word: 0x41820010, delta: 0x8000, overflow: true},
		{name: "jbsr", typ: macho.PPC_RELOC_JBSR, word: 0x48000001, pair: 0x1000, delta: 0x20, wantWord: 0x48000001, wantPair: 0x1020},
	})
}

func TestSPARCRelocs(t *testing.T) {
	runRelocCases(t, sparcStrategy{}, []relocCase{
		{name: "hi22", typ: macho.SPARC_RELOC_HI22, word: 0x03048d15, pair: 0x278, delta: 0x400, wantWord: 0x03048d16, wantPair: 0x278},
		{name: "lo10", typ: macho.SPARC_RELOC_LO10, word: 0x82106278, pair: 0x48d15, delta: 0x200, wantWord: 0x82106078, wantPair: 0x48d16},
		{name: "disp22", typ: macho.SPARC_RELOC_DISP22, word: 0x10800004, delta: 0x10, wantWord: 0x10800008},
		{name: "disp22 overflow", typ: macho.SPARC_RELOC_DISP22, word: 0x10800004, delta: 0x800000, overflow: true},
		{name: "disp30", typ: macho.SPARC_RELOC_DISP30, word: 0x40000004, delta: 0x10, wantWord: 0x40000008},
	})
}

func TestARMRelocs(t *testing.T) {
	runRelocCases(t, armStrategy{}, []relocCase{
		{name: "movw", typ: macho.ARM_RELOC_HALF, len: 0, word: 0xe3050678, pair: 0x1234, delta: 0x10010, wantWord: 0xe3050688, wantPair: 0x1235},
		{name: "movt", typ: macho.ARM_RELOC_HALF, len: 1, word: 0xe3411234, pair: 0x5678, delta: 0x10010, wantWord: 0xe3411235, wantPair: 0x5688},
		{name: "thumb movw", typ: macho.ARM_RELOC_HALF, len: 2, word: 0x2034f241, pair: 0x0000, delta: 0x10, wantWord: 0x2044f241, wantPair: 0x0000},
	})

	p := wordPatch(0, &macho.Reloc{Type: macho.ARM_RELOC_HALF, Extern: true}, &macho.Reloc{})
	if err := (armStrategy{}).update(p, 4); !errors.Is(err, errUnknown) {
		t.Errorf("external ARM_RELOC_HALF error = %v, want errUnknown", err)
	}
}

func TestThumbImm16(t *testing.T) {
	const movw = 0x2034f241 // movw r0, #0x1234
	if got := thumbImm16(movw); got != 0x1234 {
		t.Fatalf("thumbImm16() = %#x, want 0x1234", got)
	}
	for _, imm := range []uint32{0, 0x1234, 0xabcd, 0xffff, 0x0800} {
		w := setThumbImm16(movw, imm)
		if got := thumbImm16(w); got != imm {
			t.Errorf("thumbImm16(setThumbImm16(%#x)) = %#x", imm, got)
		}
		if w&0x0f00fbf0 != movw&0x0f00fbf0 {
			t.Errorf("setThumbImm16(%#x) changed the opcode or register: %#08x", imm, w)
		}
	}
}

func TestGenericRelocs(t *testing.T) {
	runRelocCases(t, genericStrategy{}, []relocCase{
		{name: "long", typ: macho.GENERIC_RELOC_VANILLA, len: 2, word: 0x90001000, delta: 0x100, wantWord: 0x90001100},
		{name: "long wraps", typ: macho.GENERIC_RELOC_VANILLA, len: 2, word: 0x90001000, delta: 0x70000000, wantWord: 0x1000},
	})
	p := wordPatch(0, &macho.Reloc{Type: macho.GENERIC_RELOC_SECTDIFF}, nil)
	if err := (genericStrategy{}).update(p, 4); !errors.Is(err, errUnknown) {
		t.Errorf("update(SECTDIFF) error = %v, want errUnknown", err)
	}
}

func TestUpdateVanillaSmall(t *testing.T) {
	tests := []struct {
		name     string
		len      uint8
		val      uint32
		delta    uint32
		want     uint32
		overflow bool
	}{
		{"byte", 0, 0x10, 0x10, 0x20, false},
		{"byte negative", 0, 0xff, 1, 0x00, false},
		{"byte overflow", 0, 0x7f, 1, 0, true},
		{"byte underflow", 0, 0x80, 0xffffffff, 0, true},
		{"short", 1, 0x1000, 0x10, 0x1010, false},
		{"short overflow", 1, 0x7fff, 1, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := make([]byte, 2)
			v := macho.NewView(b, binary.LittleEndian)
			if tt.len == 0 {
				v.PutUint8(0, uint8(tt.val))
			} else {
				v.PutUint16(0, uint16(tt.val))
			}
			err := updateVanilla(&patch{v: v, r: &macho.Reloc{Len: tt.len}}, tt.delta)
			if tt.overflow {
				var o overflow
				if !errors.As(err, &o) {
					t.Fatalf("error = %v, want overflow", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			var got uint32
			if tt.len == 0 {
				b, _ := v.Uint8(0)
				got = uint32(b)
			} else {
				h, _ := v.Uint16(0)
				got = uint32(h)
			}
			if got != tt.want {
				t.Errorf("got %#x, want %#x", got, tt.want)
			}
		})
	}
}

func TestHPPAFields(t *testing.T) {
	for _, v := range []uint32{0, 1, 0x1fffff, 0x12345, 0x100000, 0x0aaaaa, 0x155555} {
		if got := assemble21(disassemble21(v)); got != v {
			t.Errorf("assemble21(disassemble21(%#x)) = %#x", v, got)
		}
	}
	for _, v := range []uint32{0, 1, 0x1ffff, 0x10000, 0x0aaaa, 0x15555, 0x400} {
		if got := assemble17(disassemble17(v)); got != v {
			t.Errorf("assemble17(disassemble17(%#x)) = %#x", v, got)
		}
		if disassemble17(v)&^hppaBr17Mask != 0 {
			t.Errorf("disassemble17(%#x) sets bits outside the branch fields", v)
		}
	}
	for _, r := range []int32{0, 1, -1, 0xfff, -0x1000, 0x1fff, -0x2000} {
		if got := lowSignExtend14(lowSignUnextend14(r)); got != r {
			t.Errorf("lowSignExtend14(lowSignUnextend14(%d)) = %d", r, got)
		}
	}
	for _, v := range []uint32{0, 0x1000, 0xfff, 0x12345678, 0xfffff000, 0xffffffff, 0x80000fff} {
		left, r := hiLo(v)
		if left&0x1fff != 0 || r < -0x1000 || r > 0xfff || left+uint32(r) != v {
			t.Errorf("hiLo(%#x) = %#x, %d", v, left, r)
		}
	}
}

// TestHPPARelocs encodes an address into each instruction form, moves it and decodes it
// again.
func TestHPPARelocs(t *testing.T) {
	const (
		ldil = 0x20200000
		ldo  = 0x34210000
		be   = 0xe0202000
		bl   = 0xe8000000
	)
	s := hppaStrategy{}
	for _, tt := range []struct {
		addr, delta uint32
	}{
		{0x12345678, 0x10},
		{0x12345ff0, 0x20},
		{0x90001000, 0xe0000000},
		{0x00000ffc, 0xfffff004},
	} {
		want := tt.addr + tt.delta
		left, right := hiLo(tt.addr)

		pair := &macho.Reloc{Addr: uint32(right) & 0x3fff}
		p := wordPatch(ldil|disassemble21(left>>11), &macho.Reloc{Type: macho.HPPA_RELOC_HI21}, pair)
		if err := s.update(p, tt.delta); err != nil {
			t.Fatal(err)
		}
		w, _ := p.word()
		if got := assemble21(w&0x1fffff)<<11 + uint32(signExtend(pair.Addr, 14)); got != want || w&^0x1fffff != ldil {
			t.Errorf("HI21 %#x+%#x = %#x (word %#08x)", tt.addr, tt.delta, got, w)
		}

		pair = &macho.Reloc{Addr: left >> 11}
		p = wordPatch(ldo|lowSignUnextend14(right), &macho.Reloc{Type: macho.HPPA_RELOC_LO14}, pair)
		if err := s.update(p, tt.delta); err != nil {
			t.Fatal(err)
		}
		w, _ = p.word()
		if got := pair.Addr<<11 + uint32(lowSignExtend14(w&0x3fff)); got != want || w&^0x3fff != ldo {
			t.Errorf("LO14 %#x+%#x = %#x (word %#08x)", tt.addr, tt.delta, got, w)
		}

		if tt.addr&3 == 0 {
			pair = &macho.Reloc{Addr: left >> 11}
			p = wordPatch(be|disassemble17(uint32(right>>2)), &macho.Reloc{Type: macho.HPPA_RELOC_BR17}, pair)
			if err := s.update(p, tt.delta); err != nil {
				t.Fatal(err)
			}
			w, _ = p.word()
			if got := pair.Addr<<11 + uint32(signExtend(assemble17(w), 17)<<2); got != want || w&^hppaBr17Mask != be {
				t.Errorf("BR17 %#x+%#x = %#x (word %#08x)", tt.addr, tt.delta, got, w)
			}
		}
	}

	p := wordPatch(bl|disassemble17(0x40), &macho.Reloc{Type: macho.HPPA_RELOC_BL17}, nil)
	if err := s.update(p, 0x20); err != nil {
		t.Fatal(err)
	}
	if w, _ := p.word(); signExtend(assemble17(w), 17)<<2 != 0x120 {
		t.Errorf("BL17 displacement = %#x, want 0x120", signExtend(assemble17(w), 17)<<2)
	}
	p = wordPatch(bl|disassemble17(0x40), &macho.Reloc{Type: macho.HPPA_RELOC_BL17}, nil)
	var o overflow
	if err := s.update(p, 0x40000); !errors.As(err, &o) {
		t.Errorf("BL17 overflow error = %v", err)
	}
}
