package prebind

import (
	"strings"

	"github.com/blacktop/go-macho/types"
	"github.com/blacktop/prebind/pkg/macho"
)

// rebuildSymbols gives undefined symbols their bound values, slides defined ones and
// rebuilds the two-level hints and the module table's Objective-C addresses.
func (c *Context) rebuildSymbols() error {
	img := c.img
	ustart, uend := img.Undefs()
	for i := range img.Symbols {
		s := &img.Symbols[i]
		isym := uint32(i)
		switch {
		case s.IsStab():
			if s.Sect != 0 {
				s.Value += c.slide
			}
		case isym >= ustart && isym < uend && s.IsUndefined():
			ext := s.Type &^ types.N_TYPE
			if c.unbound(isym) || c.mode == modeUnprebind {
				s.Type, s.Value = types.N_UNDF|ext, 0
				continue
			}
			s.Type, s.Value = types.N_PBUD|ext, c.value(c.defs[isym])
		case s.Kind() == types.N_SECT:
			s.Value += c.slide
		case s.Kind() == types.N_ABS && c.mode == modeUnprebind && toolchainAbsolute(img.Names[i]):
			s.Value = 0
		}
	}

	for i := range img.Hints {
		d := c.defs[ustart+uint32(i)]
		if c.mode == modeUnprebind || d == nil || d.Weak() {
			img.Hints[i] = macho.Hint{}
			continue
		}
		img.Hints[i] = d.Hint
	}

	c.slideModuleInfo()
	return nil
}

// toolchainAbsolute matches the absolute symbols old compilers emitted for Objective-C
// metadata and exception frames, which were wrongly slid along with the image.
func toolchainAbsolute(name string) bool {
	return strings.HasPrefix(name, ".objc") || strings.HasSuffix(name, ".eh")
}

// slideModuleInfo slides the modules' Objective-C module info addresses. When
// unprebinding, addresses that no longer point into __OBJC,__module_info were not slid
// when the library was last moved; the section address tells how far they are off.
func (c *Context) slideModuleInfo() {
	img := c.img
	slide := c.slide
	if c.mode == modeUnprebind {
		if s := img.Section("__OBJC", "__module_info"); s != nil {
			var lowest uint32
			for _, m := range img.Modules {
				if a := m.ObjcModuleInfoAddr; a != 0 && (lowest == 0 || a < lowest) {
					lowest = a
				}
			}
			if lowest != 0 && (lowest < s.Addr || lowest >= s.Addr+s.Size) {
				slide = s.Addr - lowest + c.slide
			}
		}
	}
	for i := range img.Modules {
		if img.Modules[i].ObjcModuleInfoAddr != 0 {
			img.Modules[i].ObjcModuleInfoAddr += slide
		}
	}
}
