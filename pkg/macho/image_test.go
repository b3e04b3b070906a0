package macho

import (
	"bytes"
	"testing"

	"github.com/blacktop/go-macho/types"
	"github.com/blacktop/prebind/internal/machotest"
	"github.com/pkg/errors"
)

func testDylib(bigEndian bool) *machotest.Builder {
	cpu := types.CPUI386
	if bigEndian {
		cpu = types.CPUPpc
	}
	return &machotest.Builder{
		CPU:          cpu,
		BigEndian:    bigEndian,
		Type:         types.MH_DYLIB,
		Flags:        types.Prebound | types.TwoLevel | types.DyldLink,
		Addr:         0x90000000,
		InstallName:  "/usr/lib/libfoo.A.dylib",
		Timestamp:    0x4000,
		Dylibs:       []machotest.Dylib{{Name: "/usr/lib/libbar.dylib", Timestamp: 7}},
		SubLibraries: []string{"libbar"},
		Locals:       []machotest.Local{{Name: "_helper", Sect: machotest.SectText, Off: 0x40, Module: 1}},
		Defs: []machotest.Def{
			{Name: "_zeta", Sect: machotest.SectText, Off: 0x10, Module: 0},
			{Name: "_alpha", Sect: machotest.SectData, Off: 0x20, Module: 1},
			{Name: "_beta", Sect: machotest.SectText, Off: 0x30, Module: 1},
		},
		Undefs: []machotest.Undef{{Name: "_bar", Ordinal: 1, Lazy: true, Value: 0x91000000}},
		Modules: []machotest.Module{
			{Name: "zeta.o"},
			{Name: "ab.o", Refs: []machotest.Ref{{Name: "_bar", Flags: 1}, {Name: "_helper", Flags: 5}}},
		},
		Lazy:      []machotest.LazyPtr{{Name: "_bar", Value: 0x91000000, Helper: 0x90001100}},
		ExtRelocs: []machotest.ExtReloc{{Off: 0x8, Name: "_bar"}},
		Hints:     true,
		Cksum:     true,
		Routines:  true,
		InitOff:   0x10,
	}
}

func TestParse(t *testing.T) {
	for _, be := range []bool{false, true} {
		b := testDylib(be)
		img, err := Parse(b.Build())
		if err != nil {
			t.Fatalf("Parse(bigEndian=%v): %v", be, err)
		}
		if !img.IsDylib() || !img.TwoLevel() || img.ID == nil || img.ID.Name != "/usr/lib/libfoo.A.dylib" || img.ID.Timestamp != 0x4000 {
			t.Fatalf("bad header or id: %+v %+v", img.Header, img.ID)
		}
		if len(img.Segments) != 3 || img.Seg1Addr() != 0x90000000 || img.RelocBase() != 0x90000000 {
			t.Errorf("segments = %d, seg1addr = %#x", len(img.Segments), img.Seg1Addr())
		}
		if len(img.Dylibs) != 1 || img.Dylibs[0].Timestamp != 7 || len(img.SubLibraries) != 1 {
			t.Errorf("dylibs = %+v", img.Dylibs)
		}
		if img.Routines == nil || img.Routines.InitAddress != b.TextAddr(0x10) {
			t.Errorf("routines = %+v", img.Routines)
		}
		if img.Cksum == nil {
			t.Error("missing LC_PREBIND_CKSUM")
		}

		// module 0 holds _zeta, module 1 _alpha and _beta sorted
		start, end := img.Extdefs()
		if end-start != 3 || img.Names[start] != "_zeta" || img.Names[start+1] != "_alpha" {
			t.Errorf("extdefs = %v", img.Names[start:end])
		}
		i, ok := img.LookupTOC("_beta")
		if !ok || img.Toc[i].ModuleIndex != 1 || img.Names[img.Toc[i].SymbolIndex] != "_beta" {
			t.Errorf("LookupTOC(_beta) = %d, %v", i, ok)
		}
		if _, ok := img.LookupTOC("_gamma"); ok {
			t.Error("LookupTOC found a missing symbol")
		}
		if m := img.Modules[1]; m.Nrefsym != 2 || img.Refs[m.Irefsym+1].Flags != REFERENCE_FLAG_PRIVATE_UNDEFINED_LAZY {
			t.Errorf("module 1 refs = %+v", img.Refs)
		}
		if mod, ok := img.ModuleOfSymbol(0); !ok || mod != 1 {
			t.Errorf("ModuleOfSymbol(_helper) = %d, %v", mod, ok)
		}
		u, ok := img.LookupUndef("_bar")
		if !ok || img.Symbols[u].Kind() != types.N_PBUD || img.Symbols[u].Desc.LibraryOrdinal() != 1 {
			t.Errorf("undefined _bar = %+v", img.Symbols[u])
		}
		if len(img.ExtRelocs) != 1 || img.ExtRelocs[0].Symbolnum != u || !img.ExtRelocs[0].Extern {
			t.Errorf("external relocations = %+v", img.ExtRelocs)
		}
		if len(img.LocRelocs) != 1 || !img.LocRelocs[0].Scattered || img.LocRelocs[0].Value != 0x90001100 {
			t.Errorf("local relocations = %+v", img.LocRelocs)
		}
		if len(img.Hints) != 1 {
			t.Errorf("hints = %+v", img.Hints)
		}
		if got := img.HeaderPadding(); got != machotest.TextOffset {
			t.Errorf("HeaderPadding() = %#x", got)
		}
	}
}

func TestFlushRoundTrip(t *testing.T) {
	for _, be := range []bool{false, true} {
		raw := testDylib(be).Build()
		orig := append([]byte(nil), raw...)
		img, err := Parse(raw)
		if err != nil {
			t.Fatal(err)
		}
		if err := img.Flush(); err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(raw, orig) {
			t.Fatalf("Flush without edits changed the image (bigEndian=%v)", be)
		}

		img.Symbols[0].Value += 0x1000
		img.Hints[0] = Hint{ISubImage: 1, IToc: 3}
		img.LocRelocs[0].Value = 0x1234
		img.Modules[1].ObjcModuleInfoAddr = 0x5678
		if err := img.Flush(); err != nil {
			t.Fatal(err)
		}
		again, err := Parse(raw)
		if err != nil {
			t.Fatal(err)
		}
		if again.Symbols[0].Value != img.Symbols[0].Value || again.Hints[0] != img.Hints[0] ||
			again.LocRelocs[0].Value != 0x1234 || again.Modules[1].ObjcModuleInfoAddr != 0x5678 {
			t.Errorf("edits did not survive Flush (bigEndian=%v)", be)
		}
	}
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(b []byte)
		wantErr error
	}{
		{"not mach-o", func(b []byte) { copy(b, []byte{0x7f, 'E', 'L', 'F'}) }, ErrNot32Bit},
		{"64-bit", func(b []byte) { copy(b, []byte{0xcf, 0xfa, 0xed, 0xfe}) }, ErrNot32Bit},
		{"sizeofcmds past end", func(b []byte) { b[20], b[21], b[22], b[23] = 0xff, 0xff, 0xff, 0x0f }, ErrMalformed},
		{"zero cmdsize", func(b []byte) { b[32], b[33], b[34], b[35] = 0, 0, 0, 0 }, ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := testDylib(false).Build()
			tt.mutate(b)
			if _, err := Parse(b); !errors.Is(err, tt.wantErr) {
				t.Fatalf("Parse() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseBadSymbolIndex(t *testing.T) {
	raw := testDylib(false).Build()
	img, err := Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	// point the external relocation at a symbol past the end of the table
	img.ExtRelocs[0].Symbolnum = uint32(len(img.Symbols)) + 4
	if err := img.Flush(); err != nil {
		t.Fatal(err)
	}
	if _, err := Parse(raw); !errors.Is(err, ErrMalformed) {
		t.Fatalf("Parse() error = %v, want ErrMalformed", err)
	}
}
