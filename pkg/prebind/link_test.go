package prebind

import (
	"strings"
	"testing"

	"github.com/blacktop/go-macho/types"
	"github.com/blacktop/prebind/internal/machotest"
	"github.com/pkg/errors"
)

const umbrellaName = "/System/Library/Frameworks/Umb.framework/Versions/A/Umb"

func TestSubImages(t *testing.T) {
	tests := []struct {
		name     string
		umbrella func(*machotest.Builder)
		sub      func(*machotest.Builder)
	}{
		{
			name:     "reexport",
			umbrella: func(b *machotest.Builder) { b.Dylibs[0].Reexport = true },
		},
		{
			name: "sub framework",
			sub:  func(b *machotest.Builder) { b.SubFramework = "Umb" },
		},
		{
			name:     "sub library",
			umbrella: func(b *machotest.Builder) { b.SubLibraries = []string{"libsub"} },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newWorld(t)
			umbrella := &machotest.Builder{
				Type:        types.MH_DYLIB,
				Flags:       types.Prebound | types.DyldLink | types.TwoLevel,
				Addr:        0x92000000,
				InstallName: umbrellaName,
				Timestamp:   7,
				Dylibs:      []machotest.Dylib{{Name: "/usr/lib/libsub.dylib", Timestamp: 8}},
				Defs:        []machotest.Def{{Name: "_umb", Sect: machotest.SectText}},
			}
			sub := &machotest.Builder{
				Type:        types.MH_DYLIB,
				Flags:       types.Prebound | types.DyldLink | types.TwoLevel,
				Addr:        0x93000000,
				InstallName: "/usr/lib/libsub.dylib",
				Timestamp:   8,
				Defs:        []machotest.Def{{Name: "_sub", Sect: machotest.SectText, Off: 0x40}},
			}
			if tt.umbrella != nil {
				tt.umbrella(umbrella)
			}
			if tt.sub != nil {
				tt.sub(sub)
			}
			w.install(umbrella)
			w.install(sub)

			exe := &machotest.Builder{
				Flags:    types.Prebound | types.DyldLink | types.TwoLevel,
				Addr:     0x1000,
				PageZero: true,
				Dylibs:   []machotest.Dylib{{Name: umbrellaName, Timestamp: 7}},
				Defs:     []machotest.Def{{Name: "_main", Sect: machotest.SectText}},
				Undefs:   []machotest.Undef{{Name: "_sub", Ordinal: 1}},
				Hints:    true,
			}
			img := w.redo(exe.Build(), w.options())
			if got := symbol(t, img, "_sub").Value; got != 0x93001040 {
				t.Errorf("_sub = %#x, want 0x93001040", got)
			}
			if img.Hints[0].ISubImage != 1 || img.Hints[0].IToc != 0 {
				t.Errorf("hint = %+v, want sub-image 1 toc 0", img.Hints[0])
			}
		})
	}
}

func TestSubImageCycle(t *testing.T) {
	w := newWorld(t)
	for _, l := range []struct {
		name, other, sym string
		addr             uint32
	}{
		{"/usr/lib/liba.dylib", "/usr/lib/libb.dylib", "_fa", 0x90000000},
		{"/usr/lib/libb.dylib", "/usr/lib/liba.dylib", "_fb", 0x91000000},
	} {
		w.install(&machotest.Builder{
			Type:        types.MH_DYLIB,
			Flags:       types.Prebound | types.DyldLink | types.TwoLevel,
			Addr:        l.addr,
			InstallName: l.name,
			Timestamp:   1,
			Dylibs:      []machotest.Dylib{{Name: l.other, Timestamp: 1, Reexport: true}},
			Defs:        []machotest.Def{{Name: l.sym, Sect: machotest.SectText}},
		})
	}
	exe := &machotest.Builder{
		Flags:    types.Prebound | types.DyldLink | types.TwoLevel,
		Addr:     0x1000,
		PageZero: true,
		Dylibs:   []machotest.Dylib{{Name: "/usr/lib/liba.dylib", Timestamp: 1}},
		Defs:     []machotest.Def{{Name: "_main", Sect: machotest.SectText}},
	}
	_, err := Redo(exe.Build(), w.options())
	var e *SubImageCycleError
	if !errors.As(err, &e) {
		t.Fatalf("Redo() error = %v, want SubImageCycleError", err)
	}
	if len(e.Libraries) != 2 {
		t.Errorf("cycle = %v", e.Libraries)
	}
}

func TestIndirectSymbols(t *testing.T) {
	tests := []struct {
		name    string
		defs    []machotest.Def
		want    uint32
		wantErr error
	}{
		{
			name: "alias",
			defs: []machotest.Def{{Name: "_alias", Indr: "_foo"}},
			want: fooAddr,
		},
		{
			name:    "loop",
			defs:    []machotest.Def{{Name: "_alias", Indr: "_loop"}, {Name: "_loop", Indr: "_alias"}},
			wantErr: ErrIndirectLoop,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newWorld(t)
			lib := libFoo()
			lib.Defs = append(lib.Defs, tt.defs...)
			w.install(lib)
			exe := app()
			exe.Undefs = append(exe.Undefs, machotest.Undef{Name: "_alias", Ordinal: 1})
			res, err := Redo(exe.Build(), w.options())
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Redo() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got := symbol(t, parse(t, res.Data), "_alias").Value; got != tt.want {
				t.Errorf("_alias = %#x, want %#x", got, tt.want)
			}
		})
	}
}

// flatLibs installs two flat namespace libraries that both define _x.
func flatLibs(w *world) {
	for i, name := range []string{"/usr/lib/liba.dylib", "/usr/lib/libb.dylib"} {
		w.install(&machotest.Builder{
			Type:        types.MH_DYLIB,
			Flags:       types.Prebound | types.DyldLink,
			Addr:        0x90000000 + uint32(i)*0x01000000,
			InstallName: name,
			Timestamp:   1,
			Defs:        []machotest.Def{{Name: "_x", Sect: machotest.SectText, Off: 0x10}},
		})
	}
}

func TestFlatLookupOrder(t *testing.T) {
	tests := []struct {
		name  string
		order []string
		want  uint32
	}{
		{"a first", []string{"/usr/lib/liba.dylib", "/usr/lib/libb.dylib"}, 0x90001010},
		{"b first", []string{"/usr/lib/libb.dylib", "/usr/lib/liba.dylib"}, 0x91001010},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newWorld(t)
			flatLibs(w)
			exe := &machotest.Builder{
				Flags:    types.Prebound | types.DyldLink,
				Addr:     0x1000,
				PageZero: true,
				Defs:     []machotest.Def{{Name: "_main", Sect: machotest.SectText}},
				Undefs:   []machotest.Undef{{Name: "_x"}},
			}
			for _, name := range tt.order {
				exe.Dylibs = append(exe.Dylibs, machotest.Dylib{Name: name, Timestamp: 1})
			}
			data := exe.Build()
			for range 3 {
				img := w.redo(data, w.options())
				if got := symbol(t, img, "_x").Value; got != tt.want {
					t.Fatalf("_x = %#x, want %#x", got, tt.want)
				}
			}
		})
	}
}

// TestLinkFollowsReferences links a flat library module because a module linked before
// it references one of its symbols.
func TestLinkFollowsReferences(t *testing.T) {
	w := newWorld(t)
	w.install(&machotest.Builder{
		Type:        types.MH_DYLIB,
		Flags:       types.Prebound | types.DyldLink,
		Addr:        0x90000000,
		InstallName: "/usr/lib/liba.dylib",
		Timestamp:   1,
		Dylibs:      []machotest.Dylib{{Name: "/usr/lib/libb.dylib", Timestamp: 2}},
		Defs:        []machotest.Def{{Name: "_a", Sect: machotest.SectText}},
		Undefs:      []machotest.Undef{{Name: "_b", Value: 0x91001000}},
		Modules:     []machotest.Module{{Name: "a.o", Refs: []machotest.Ref{{Name: "_b"}}}},
	})
	w.install(&machotest.Builder{
		Type:        types.MH_DYLIB,
		Flags:       types.Prebound | types.DyldLink,
		Addr:        0x91000000,
		InstallName: "/usr/lib/libb.dylib",
		Timestamp:   2,
		Defs: []machotest.Def{
			{Name: "_c", Sect: machotest.SectText, Off: 0x10, Module: 0},
			{Name: "_b", Sect: machotest.SectText, Off: 0x20, Module: 1},
		},
		Modules: []machotest.Module{{Name: "c.o"}, {Name: "b.o"}},
	})
	exe := &machotest.Builder{
		Flags:    types.Prebound | types.DyldLink,
		Addr:     0x1000,
		PageZero: true,
		Dylibs:   []machotest.Dylib{{Name: "/usr/lib/liba.dylib", Timestamp: 1}},
		Defs:     []machotest.Def{{Name: "_main", Sect: machotest.SectText}},
		Undefs:   []machotest.Undef{{Name: "_a"}},
	}
	img := w.redo(exe.Build(), w.options())

	bits := map[string]byte{}
	for _, pb := range img.Prebound {
		b, err := img.View.Uint8(pb.LinkedOff)
		if err != nil {
			t.Fatal(err)
		}
		bits[pb.Name] = b
	}
	if bits["/usr/lib/liba.dylib"] != 0x01 || bits["/usr/lib/libb.dylib"] != 0x02 {
		t.Errorf("linked modules = %v, want liba 0x01 libb 0x02", bits)
	}
	if img.Header.Flags&types.AllModsBound != 0 {
		t.Error("MH_ALLMODSBOUND set with an unlinked module")
	}
}

func TestWorklist(t *testing.T) {
	var w worklist
	w.init()
	if !w.Push("_a", reference{name: "_a"}) || !w.Push("_b", reference{name: "_b"}) {
		t.Fatal("Push() of a new name = false")
	}
	if w.Push("_a", reference{name: "_a"}) {
		t.Error("Push() of a queued name = true")
	}
	if w.Len() != 2 {
		t.Errorf("Len() = %d, want 2", w.Len())
	}
	r, ok := w.Pop()
	if !ok || r.name != "_a" {
		t.Errorf("Pop() = %+v, %v", r, ok)
	}
	if w.Push("_a", reference{name: "_a"}) {
		t.Error("Push() of a popped name = true")
	}
}

func TestDylibOverride(t *testing.T) {
	tests := []struct {
		name     string
		refs     []machotest.Ref
		override bool
	}{
		{"referenced by dependent", []machotest.Ref{{Name: "_foo"}}, true},
		{"unreferenced", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newWorld(t)
			w.install(&machotest.Builder{
				Type:        types.MH_DYLIB,
				Flags:       types.Prebound | types.DyldLink,
				Addr:        0x91000000,
				InstallName: "/usr/lib/libb.dylib",
				Timestamp:   2,
				Defs: []machotest.Def{
					{Name: "_bfn", Sect: machotest.SectText, Off: 0x10, Module: 0},
					{Name: "_foo", Sect: machotest.SectText, Off: 0x20, Module: 1},
				},
				Modules: []machotest.Module{{Name: "b.o", Refs: tt.refs}, {Name: "foo.o"}},
			})
			liba := &machotest.Builder{
				Type:        types.MH_DYLIB,
				Flags:       types.Prebound | types.DyldLink,
				Addr:        0x90000000,
				InstallName: "/usr/lib/liba.dylib",
				Timestamp:   1,
				Dylibs:      []machotest.Dylib{{Name: "/usr/lib/libb.dylib", Timestamp: 2}},
				Defs:        []machotest.Def{{Name: "_foo", Sect: machotest.SectText}},
				Modules:     []machotest.Module{{Name: "a.o"}},
			}
			_, err := Redo(liba.Build(), w.options())
			var e *DylibOverrideError
			if got := errors.As(err, &e); got != tt.override {
				t.Fatalf("Redo() error = %v, want override %v", err, tt.override)
			}
			if tt.override {
				if e.Name != "_foo" || !strings.HasSuffix(e.Library, "/usr/lib/libb.dylib") {
					t.Errorf("error = %+v", e)
				}
				if StatusOf(err) != StatusFailure {
					t.Errorf("StatusOf() = %v", StatusOf(err))
				}
			}
		})
	}
}
