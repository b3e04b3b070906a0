package prebind

import (
	"strings"

	"github.com/blacktop/go-macho/types"
	"github.com/blacktop/prebind/pkg/macho"
	"github.com/pkg/errors"
)

// A Definition is where a symbol name was found.
type Definition struct {
	Name   string
	Symbol macho.Nlist
	Owner  *Library
	// Module is the index of the defining module in Owner, or -1 for a weak reference to
	// a symbol that does not exist.
	Module int
	Hint   macho.Hint
}

// Weak reports whether the definition stands in for a missing weak symbol.
func (d *Definition) Weak() bool { return d.Owner.weakMissing }

// value is the address the definition binds to once the architecture has moved.
func (c *Context) value(d *Definition) uint32 {
	if d.Weak() {
		return 0
	}
	v := d.Symbol.Value
	if d.Owner.self && d.Symbol.Kind() == types.N_SECT {
		v += c.slide
	}
	if d.Symbol.Desc.ThumbDef() {
		v |= 1
	}
	return v
}

// findIn looks name up among the external definitions of lib.
func findIn(lib *Library, name string) (*Definition, bool) {
	if lib.weakMissing {
		return nil, false
	}
	img := lib.Image
	if len(img.Toc) > 0 {
		i, ok := img.LookupTOC(name)
		if !ok {
			return nil, false
		}
		e := img.Toc[i]
		return &Definition{
			Name:   name,
			Symbol: img.Symbols[e.SymbolIndex],
			Owner:  lib,
			Module: int(e.ModuleIndex),
			Hint:   macho.Hint{IToc: uint32(i)},
		}, true
	}
	if img.IsDylib() {
		return nil, false
	}
	isym, ok := img.LookupExtdef(name)
	if !ok {
		return nil, false
	}
	return &Definition{Name: name, Symbol: img.Symbols[isym], Owner: lib}, true
}

func (c *Context) lookupFlat(name string) *Definition {
	if d, ok := findIn(c.arch, name); ok {
		return d
	}
	for _, lib := range c.libs {
		if d, ok := findIn(lib, name); ok {
			return d
		}
	}
	return nil
}

func lookupTwoLevel(name string, primary *Library) *Definition {
	if d, ok := findIn(primary, name); ok {
		return d
	}
	for i, lib := range primary.SubImages {
		if d, ok := findIn(lib, name); ok {
			d.Hint.ISubImage = uint8(i + 1)
			return d
		}
	}
	return nil
}

// lookupSymbol finds name in primary and its sub-images, or everywhere when primary is
// nil. A weak reference that cannot be found binds to the weak missing library. The
// result is nil when name is not defined.
func (c *Context) lookupSymbol(name string, primary *Library, weak bool) (*Definition, error) {
	return c.lookup(name, primary, weak, nil)
}

func (c *Context) lookup(name string, primary *Library, weak bool, chain []string) (*Definition, error) {
	var d *Definition
	if primary == nil {
		d = c.lookupFlat(name)
	} else {
		d = lookupTwoLevel(name, primary)
	}
	if d != nil && d.Symbol.Kind() == types.N_INDR {
		target, err := c.resolveIndirect(d, append(chain[:len(chain):len(chain)], name))
		if err != nil {
			return nil, err
		}
		if target == nil {
			if !weak {
				return nil, nil
			}
		} else {
			target.Hint = d.Hint
			return target, nil
		}
		d = nil
	}
	if d == nil && weak {
		return &Definition{Name: name, Owner: c.weakLibrary(), Module: -1}, nil
	}
	return d, nil
}

// resolveIndirect follows the N_INDR definition d to the symbol it aliases.
func (c *Context) resolveIndirect(d *Definition, chain []string) (*Definition, error) {
	owner := d.Owner
	target, err := owner.Image.StringAt(d.Symbol.Value)
	if err != nil {
		return nil, errors.Wrapf(err, "bad indirect name for %s in %s", d.Name, owner.Path)
	}
	for _, name := range chain {
		if name == target {
			return nil, errors.Wrapf(ErrIndirectLoop, "%s -> %s", strings.Join(chain, " -> "), target)
		}
	}
	primary, err := c.indirectLibrary(owner, target)
	if err != nil {
		return nil, err
	}
	return c.lookup(target, primary, false, chain)
}

// indirectLibrary picks where owner's alias for name is looked up. In a two-level image
// it is the library owner's own reference to name is bound to, or owner itself when it
// has no such reference.
func (c *Context) indirectLibrary(owner *Library, name string) (*Library, error) {
	if !c.twoLevel(owner) {
		return nil, nil
	}
	isym, ok := owner.Image.LookupUndef(name)
	if !ok {
		return owner, nil
	}
	return c.primaryLibrary(owner, owner.Image.Symbols[isym])
}

// primaryLibrary returns the library a two-level reference from lib is bound to, or nil
// for a flat lookup.
func (c *Context) primaryLibrary(lib *Library, sym macho.Nlist) (*Library, error) {
	if !c.twoLevel(lib) {
		return nil, nil
	}
	ord := sym.Desc.LibraryOrdinal()
	switch {
	case ord == macho.SELF_LIBRARY_ORDINAL:
		return lib, nil
	case ord == macho.EXECUTABLE_ORDINAL:
		if !c.img.IsExecutable() {
			return nil, errors.Wrapf(macho.ErrMalformed, "%s refers to the executable but no executable is being prebound", lib.Path)
		}
		return c.arch, nil
	case ord == macho.DYNAMIC_LOOKUP_ORDINAL && len(lib.Dependents) < macho.DYNAMIC_LOOKUP_ORDINAL:
		return nil, nil
	case int(ord) > len(lib.Dependents):
		return nil, errors.Wrapf(macho.ErrMalformed, "%s: library ordinal %d out of range (%d dependent libraries)", lib.Path, ord, len(lib.Dependents))
	}
	dep := lib.Dependents[ord-1]
	if dep == nil {
		return nil, errors.Wrapf(macho.ErrMalformed, "%s: library ordinal %d was not loaded", lib.Path, ord)
	}
	return dep, nil
}
