package prebind

import (
	"sort"

	"github.com/blacktop/go-macho/types"
	"github.com/blacktop/prebind/pkg/macho"
)

// definer records which linked module first defined a flat namespace symbol.
type definer struct {
	lib    *Library
	module int
}

// link binds every undefined symbol of the architecture and links the modules of the
// dependent libraries the bindings need.
func (c *Context) link() error {
	img := c.img
	for i := range c.arch.modules {
		if err := c.linkModule(c.arch, i); err != nil {
			return err
		}
	}

	var unresolved []string
	start, end := img.Undefs()
	for i := start; i < end; i++ {
		sym := c.syms[i]
		primary, err := c.primaryLibrary(c.arch, sym)
		if err != nil {
			return err
		}
		d, err := c.lookupSymbol(img.Names[i], primary, sym.Desc.WeakRef())
		if err != nil {
			return err
		}
		if d == nil {
			unresolved = append(unresolved, img.Names[i])
			continue
		}
		c.defs[i] = d
		if err := c.linkModule(d.Owner, d.Module); err != nil {
			return err
		}
	}

	missing, err := c.linkNeededModules()
	if err != nil {
		return err
	}
	unresolved = append(unresolved, missing...)

	if img.IsExecutable() && c.twoLevel(c.arch) {
		// a two-level executable binds every module of its libraries
		for _, lib := range c.libs {
			for i := range lib.modules {
				lib.modules[i] = linked
			}
		}
	}

	if len(unresolved) > 0 {
		sort.Strings(unresolved)
		return &UnresolvedError{Names: dedupe(unresolved)}
	}
	return c.checkDylibOverrides()
}

// checkDylibOverrides fails when the architecture is a flat namespace dylib defining a
// symbol that a flat namespace dependent defines and references from one of its modules.
// Loading the dylib would rebind those references away from their prebound values.
func (c *Context) checkDylibOverrides() error {
	img := c.img
	if !img.IsDylib() || c.twoLevel(c.arch) {
		return nil
	}
	start, end := img.Extdefs()
	for i := start; i < end; i++ {
		sym := c.syms[i]
		if sym.Type&types.N_PEXT != 0 || sym.Desc.WeakDef() {
			continue
		}
		name := img.Names[i]
		for _, lib := range c.libs {
			if lib.weakMissing || lib.self || c.twoLevel(lib) {
				continue
			}
			if _, ok := lib.Image.LookupTOC(name); !ok {
				continue
			}
			if referencesSymbol(lib.Image, name) {
				return &DylibOverrideError{Name: name, Dylib: c.opts.Path, Library: displayPath(lib)}
			}
		}
	}
	return nil
}

// referencesSymbol reports whether a module of img refers to name through an undefined
// reference.
func referencesSymbol(img *macho.Image, name string) bool {
	for _, ref := range img.Refs {
		if ref.Flags.Undefined() && img.Names[ref.Isym] == name {
			return true
		}
	}
	return false
}

// linkNeededModules resolves queued references until the worklist is empty and returns
// the names it could not resolve.
func (c *Context) linkNeededModules() ([]string, error) {
	var unresolved []string
	c.log.WithField("queued", c.work.Len()).Debug("linking referenced modules")
	for {
		r, ok := c.work.Pop()
		if !ok {
			break
		}
		sym := r.from.Image.Symbols[r.isym]
		primary, err := c.primaryLibrary(r.from, sym)
		if err != nil {
			return nil, err
		}
		d, err := c.lookupSymbol(r.name, primary, sym.Desc.WeakRef())
		if err != nil {
			return nil, err
		}
		if d == nil {
			unresolved = append(unresolved, r.name)
			continue
		}
		if err := c.linkModule(d.Owner, d.Module); err != nil {
			return nil, err
		}
	}
	return unresolved, nil
}

// linkModule marks module m of lib linked and queues what it references.
func (c *Context) linkModule(lib *Library, m int) error {
	if lib.weakMissing || m < 0 || m >= len(lib.modules) || lib.modules[m] == linked {
		return nil
	}
	lib.modules[m] = linked
	img := lib.Image

	if !c.twoLevel(lib) {
		if err := c.defineModule(lib, m); err != nil {
			return err
		}
	}
	if len(img.Modules) == 0 {
		return nil
	}
	mod := img.Modules[m]
	for _, ref := range img.Refs[mod.Irefsym : mod.Irefsym+mod.Nrefsym] {
		switch {
		case ref.Flags.Undefined():
			r := reference{name: img.Names[ref.Isym], from: lib, isym: ref.Isym}
			c.work.Push(c.referenceKey(r), r)
		case ref.Flags.PrivateUndefined():
			if target, ok := img.ModuleOfSymbol(ref.Isym); ok {
				if err := c.linkModule(lib, target); err != nil {
					return err
				}
			}
		}
	}
	if img.Routines != nil {
		return c.linkModule(lib, int(img.Routines.InitModule))
	}
	return nil
}

// referenceKey identifies a reference for the worklist: by name in the flat namespace
// and by name and primary library in the two-level namespace.
func (c *Context) referenceKey(r reference) string {
	if !c.twoLevel(r.from) {
		return r.name
	}
	primary, err := c.primaryLibrary(r.from, r.from.Image.Symbols[r.isym])
	if err != nil || primary == nil {
		return r.name
	}
	return r.name + "\x00" + primary.Path
}

// defineModule records the external definitions of a flat namespace module and fails
// when another linked module already defines one of them.
func (c *Context) defineModule(lib *Library, m int) error {
	img := lib.Image
	start, end := img.Extdefs()
	if len(img.Modules) > 0 {
		mod := img.Modules[m]
		start, end = mod.Iextdefsym, mod.Iextdefsym+mod.Nextdefsym
	}
	for i := start; i < end; i++ {
		sym := img.Symbols[i]
		if sym.Desc.WeakDef() || sym.Type&types.N_PEXT != 0 {
			continue
		}
		name := img.Names[i]
		if prev, ok := c.linked[name]; ok {
			if prev.lib != lib || prev.module != m {
				return &MultiplyDefinedError{Name: name, First: displayPath(prev.lib), Second: displayPath(lib)}
			}
			continue
		}
		c.linked[name] = &definer{lib: lib, module: m}
	}
	return nil
}

func displayPath(lib *Library) string {
	if lib.Path != "" {
		return lib.Path
	}
	return lib.Name
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i == 0 || s != sorted[i-1] {
			out = append(out, s)
		}
	}
	return out
}

// allModulesLinked reports whether every module of every library is linked.
func (c *Context) allModulesLinked() bool {
	for _, lib := range c.libs {
		if lib.weakMissing || lib.self {
			continue
		}
		for _, s := range lib.modules {
			if s != linked {
				return false
			}
		}
	}
	return true
}

// linkedBits encodes the linked state of lib's modules as an LC_PREBOUND_DYLIB bit vector.
func linkedBits(lib *Library, size uint32) []byte {
	bits := make([]byte, size)
	for i, s := range lib.modules {
		if s == linked && uint32(i/8) < size {
			bits[i/8] |= 1 << (uint(i) % 8)
		}
	}
	return bits
}
