package prebind

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/blacktop/go-macho/types"
	"github.com/blacktop/prebind/internal/config"
	"github.com/blacktop/prebind/internal/machotest"
	"github.com/blacktop/prebind/pkg/macho"
	engine "github.com/blacktop/prebind/pkg/prebind"
)

const libName = "/usr/lib/libfoo.dylib"

// setup writes libfoo under a fake root and an executable bound to it whose recorded
// timestamp is stamp.
func setup(t *testing.T, stamp uint32) (root, exe string) {
	t.Helper()
	root = t.TempDir()
	lib := &machotest.Builder{
		Type:        types.MH_DYLIB,
		Flags:       types.Prebound | types.DyldLink | types.TwoLevel,
		Addr:        0x90000000,
		InstallName: libName,
		Timestamp:   100,
		Defs:        []machotest.Def{{Name: "_foo", Sect: machotest.SectText, Off: 0x10}},
	}
	libPath := filepath.Join(root, libName)
	if err := os.MkdirAll(filepath.Dir(libPath), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(libPath, lib.Build(), 0644); err != nil {
		t.Fatal(err)
	}
	app := &machotest.Builder{
		Flags:    types.Prebound | types.DyldLink | types.TwoLevel,
		Addr:     0x1000,
		PageZero: true,
		Dylibs:   []machotest.Dylib{{Name: libName, Timestamp: stamp}},
		Defs:     []machotest.Def{{Name: "_main", Sect: machotest.SectText}},
		Undefs:   []machotest.Undef{{Name: "_foo", Ordinal: 1, Value: 0x90001010}},
		Hints:    true,
	}
	exe = filepath.Join(root, "app")
	if err := os.WriteFile(exe, app.Build(), 0755); err != nil {
		t.Fatal(err)
	}
	return root, exe
}

func driver(t *testing.T, mode Mode, opts *config.Options) *Driver {
	t.Helper()
	d, err := New(&Config{Mode: mode, Options: opts})
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestProcessRedo(t *testing.T) {
	root, exe := setup(t, 1)
	before, err := os.Stat(exe)
	if err != nil {
		t.Fatal(err)
	}
	res := driver(t, ModeRedo, &config.Options{Root: root, Overwrite: true}).Process(exe)
	if res.Err != nil || res.Status != engine.StatusSuccess || res.Output != exe {
		t.Fatalf("Process() = %+v", res)
	}
	data, err := os.ReadFile(exe)
	if err != nil {
		t.Fatal(err)
	}
	img, err := macho.Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	if img.Dylibs[0].Timestamp != 100 {
		t.Errorf("timestamp = %d, want 100", img.Dylibs[0].Timestamp)
	}
	after, err := os.Stat(exe)
	if err != nil || after.Mode() != before.Mode() {
		t.Errorf("mode = %v, want %v (%v)", after.Mode(), before.Mode(), err)
	}
}

func TestProcessOutputDir(t *testing.T) {
	root, exe := setup(t, 1)
	orig, _ := os.ReadFile(exe)
	out := filepath.Join(t.TempDir(), "out")
	res := driver(t, ModeRedo, &config.Options{Root: root, Output: out}).Process(exe)
	if res.Err != nil || res.Output != filepath.Join(out, "app") {
		t.Fatalf("Process() = %+v", res)
	}
	if now, _ := os.ReadFile(exe); !bytes.Equal(now, orig) {
		t.Error("input file was modified")
	}
}

func TestProcessDeclined(t *testing.T) {
	root, exe := setup(t, 1)
	orig, _ := os.ReadFile(exe)
	asked := false
	d, err := New(&Config{
		Mode:    ModeRedo,
		Options: &config.Options{Root: root},
		Confirm: func(string) bool { asked = true; return false },
	})
	if err != nil {
		t.Fatal(err)
	}
	res := d.Process(exe)
	if !asked || res.Output != "" {
		t.Errorf("asked = %v, output = %q", asked, res.Output)
	}
	if now, _ := os.ReadFile(exe); !bytes.Equal(now, orig) {
		t.Error("file was overwritten after declining")
	}
}

func TestRunCheck(t *testing.T) {
	root, stale := setup(t, 1)
	_, current := setup(t, 100)
	// both executables resolve libfoo under the first root
	current2 := filepath.Join(root, "current")
	data, _ := os.ReadFile(current)
	if err := os.WriteFile(current2, data, 0755); err != nil {
		t.Fatal(err)
	}
	missing := filepath.Join(root, "missing")

	results, err := driver(t, ModeCheck, &config.Options{Root: root}).Run(context.Background(), []string{stale, current2, missing})
	if err != nil {
		t.Fatal(err)
	}
	want := []engine.Status{engine.StatusNeedsRedo, engine.StatusUpToDate, engine.StatusFailure}
	for i, r := range results {
		if r.Status != want[i] {
			t.Errorf("%s: status = %v, want %v (%v)", filepath.Base(r.Path), r.Status, want[i], r.Err)
		}
	}
}

func TestProcessNotMachO(t *testing.T) {
	path := filepath.Join(t.TempDir(), "text")
	if err := os.WriteFile(path, []byte("#!/bin/sh\necho hi\n"), 0755); err != nil {
		t.Fatal(err)
	}
	res := driver(t, ModeRedo, nil).Process(path)
	if res.Err == nil || res.Status != engine.StatusFailure {
		t.Errorf("Process() = %+v", res)
	}
}

func TestProcess64Bit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x86_64")
	if err := os.WriteFile(path, append([]byte{0xcf, 0xfa, 0xed, 0xfe}, make([]byte, 28)...), 0755); err != nil {
		t.Fatal(err)
	}
	res := driver(t, ModeRedo, nil).Process(path)
	if res.Err != nil || res.Status != engine.StatusSkipped || res.Output != "" {
		t.Errorf("Process() = %+v", res)
	}
}

func TestWorse(t *testing.T) {
	tests := []struct {
		a, b, want engine.Status
	}{
		{engine.StatusUpToDate, engine.StatusSuccess, engine.StatusSuccess},
		{engine.StatusSuccess, engine.StatusUpToDate, engine.StatusSuccess},
		{engine.StatusSuccess, engine.StatusSkipped, engine.StatusSkipped},
		{engine.StatusNeedsRedo, engine.StatusUpToDate, engine.StatusNeedsRedo},
		{engine.StatusInconsistent, engine.StatusFailure, engine.StatusFailure},
	}
	for _, tt := range tests {
		if got := Worse(tt.a, tt.b); got != tt.want {
			t.Errorf("Worse(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		status engine.Status
		want   int
	}{
		{engine.StatusSuccess, 0},
		{engine.StatusUpToDate, 0},
		{engine.StatusSkipped, 0},
		{engine.StatusNotPrebound, 0},
		{engine.StatusFailure, 1},
		{engine.StatusNeedsRedo, 2},
		{engine.StatusNeedsRebuild, 3},
		{engine.StatusInconsistent, 4},
	}
	for _, tt := range tests {
		if got := ExitCode(tt.status); got != tt.want {
			t.Errorf("ExitCode(%v) = %d, want %d", tt.status, got, tt.want)
		}
	}
}

func TestRunMovedLibraryFirst(t *testing.T) {
	root, exe := setup(t, 100)
	table := filepath.Join(t.TempDir(), "seg_addr_table")
	if err := os.WriteFile(table, []byte("0x92000000 "+libName+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	lib := filepath.Join(root, libName)
	opts := &config.Options{Root: root, SegAddrTable: table, Overwrite: true, Jobs: 4}
	for range 3 {
		results, err := driver(t, ModeRedo, opts).Run(context.Background(), []string{lib, exe})
		if err != nil {
			t.Fatal(err)
		}
		for _, r := range results {
			if r.Err != nil {
				t.Fatalf("%s: %v", r.Path, r.Err)
			}
		}
		data, err := os.ReadFile(exe)
		if err != nil {
			t.Fatal(err)
		}
		img, err := macho.Parse(data)
		if err != nil {
			t.Fatal(err)
		}
		for i, n := range img.Names {
			if n == "_foo" && img.Symbols[i].Value != 0x92001010 {
				t.Fatalf("_foo = %#x, want 0x92001010", img.Symbols[i].Value)
			}
		}
	}
}
