package prebind

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/blacktop/go-macho/types"
	"github.com/blacktop/prebind/pkg/macho"
	"github.com/pkg/errors"
)

type moduleState uint8

const (
	unlinked moduleState = iota
	linked
)

// A Library is a dependent dynamic library, the architecture being processed, or the
// stand-in for weak libraries that are not installed.
type Library struct {
	Name  string // install name
	Path  string
	Image *macho.Image

	// Dependents parallels Image.Dylibs; two-level library ordinals index it.
	Dependents []*Library
	// SubImages are the libraries whose symbols this one re-exports, flattened.
	SubImages []*Library

	modules     []moduleState
	subDone     bool
	weakMissing bool
	self        bool
	short       string
	framework   bool
}

func (c *Context) newLibrary(name, path string, img *macho.Image) *Library {
	lib := &Library{Name: name, Path: path, Image: img}
	n := len(img.Modules)
	if n == 0 {
		n = 1
	}
	lib.modules = make([]moduleState, n)
	lib.short, lib.framework = macho.ShortName(name)
	return lib
}

func (c *Context) weakLibrary() *Library {
	if c.weak == nil {
		c.weak = &Library{Name: "weak missing library", weakMissing: true}
	}
	return c.weak
}

// twoLevel reports whether references made by lib are bound in the two-level namespace.
func (c *Context) twoLevel(lib *Library) bool {
	return !c.flat && lib.Image != nil && lib.Image.TwoLevel()
}

// loadLibraries loads the architecture's dependent libraries breadth first, then theirs.
func (c *Context) loadLibraries() error {
	type pending struct {
		from *Library
		idx  int
	}
	var queue []pending
	enqueue := func(lib *Library) {
		lib.Dependents = make([]*Library, len(lib.Image.Dylibs))
		for i := range lib.Image.Dylibs {
			queue = append(queue, pending{lib, i})
		}
	}
	enqueue(c.arch)
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		lib, fresh, err := c.loadLibrary(p.from, p.from.Image.Dylibs[p.idx])
		if err != nil {
			return err
		}
		p.from.Dependents[p.idx] = lib
		if fresh {
			enqueue(lib)
		}
	}
	c.log.Debugf("loaded %d dependent libraries", len(c.libs))
	return nil
}

// loadLibrary returns the library d refers to, loading it if it is new.
func (c *Context) loadLibrary(from *Library, d *macho.Dylib) (*Library, bool, error) {
	path, err := c.resolvePath(d.Name)
	if err != nil {
		return nil, false, err
	}
	if _, err := os.Stat(path); err != nil {
		if d.Weak() && os.IsNotExist(err) {
			c.log.Warnf("weak library %s is not installed", path)
			return c.weakLibrary(), false, nil
		}
		return nil, false, errors.Wrapf(err, "can't open dependent library %s referenced from %s", path, from.Path)
	}
	f, err := c.opts.Cache.Open(path)
	if err != nil {
		return nil, false, errors.Wrapf(err, "can't load dependent library %s", path)
	}
	if c.haveSelf && f.ID == c.selfID {
		return c.arch, false, nil
	}
	if lib, ok := c.byID[f.ID]; ok {
		return lib, false, c.checkTimestamp(from, d, lib)
	}

	cpu := c.img.Header.CPU
	i, ok := f.Find(cpu, c.img.Header.SubCPU)
	if !ok {
		if c.opts.AllowMissingArchs && cpu != c.opts.RequiredCPU {
			return nil, false, errors.Wrapf(ErrMissingArch, "%s does not contain the %s architecture", path, macho.CPUName(cpu))
		}
		return nil, false, errors.Errorf("dependent library %s does not contain the %s architecture", path, macho.CPUName(cpu))
	}
	img, err := macho.Parse(f.Slice(i))
	if err != nil {
		return nil, false, errors.Wrapf(err, "failed to parse dependent library %s", path)
	}
	if !img.IsDylib() || img.ID == nil {
		return nil, false, errors.Errorf("dependent library %s is not a dynamic library", path)
	}
	if img.Header.Flags&types.Prebound == 0 {
		return nil, false, errors.Wrapf(ErrInconsistentLibraries, "dependent library %s is not prebound", path)
	}

	lib := c.newLibrary(img.ID.Name, path, img)
	c.byID[f.ID] = lib
	c.libs = append(c.libs, lib)
	c.log.Debugf("loaded %s", path)
	return lib, true, c.checkTimestamp(from, d, lib)
}

// checkTimestamp compares the timestamp from recorded for lib with lib's own. The
// architecture's direct dependents are allowed to differ since that is what redoing
// fixes; anywhere else a difference means the libraries are inconsistent.
func (c *Context) checkTimestamp(from *Library, d *macho.Dylib, lib *Library) error {
	if lib.weakMissing || lib.self || d.Timestamp == lib.Image.ID.Timestamp {
		return nil
	}
	if !from.self {
		return errors.Wrapf(ErrInconsistentLibraries, "%s was not prebound against the current version of %s", from.Path, lib.Path)
	}
	for _, name := range c.stale {
		if name == lib.Name {
			return nil
		}
	}
	c.stale = append(c.stale, lib.Name)
	return nil
}

func (c *Context) resolvePath(name string) (string, error) {
	const prefix = "@executable_path/"
	if strings.HasPrefix(name, prefix) {
		dir := c.opts.ExecutablePath
		if dir == "" {
			if !c.img.IsExecutable() || c.opts.Path == "" {
				return "", errors.Errorf("%s uses @executable_path but no executable path was given", name)
			}
			dir = filepath.Dir(c.opts.Path)
		}
		return filepath.Join(dir, strings.TrimPrefix(name, prefix)), nil
	}
	if c.opts.RootDir != "" && filepath.IsAbs(name) {
		return filepath.Join(c.opts.RootDir, name), nil
	}
	return name, nil
}
