// Package prebind redoes, checks and removes the prebinding of 32-bit Mach-O executables
// and dynamic libraries.
//
// Prebinding records, in a binary, the addresses its undefined symbols resolve to in the
// libraries it links against so the dynamic linker can skip binding at launch. When a
// library changes or moves, its dependents' prebinding goes stale; Redo recomputes it
// against the libraries currently on disk, optionally sliding a dynamic library to a new
// address first, and Unprebind turns a binary back into its canonical unprebound form.
package prebind

import (
	"github.com/blacktop/go-macho/types"
	"github.com/blacktop/prebind/pkg/macho"
	"github.com/blacktop/prebind/pkg/ofile"
	"github.com/blacktop/prebind/pkg/segaddr"
	"github.com/pkg/errors"
)

// Options controls how one architecture slice is processed.
type Options struct {
	// Path is the file the slice was read from. It names the file in messages and
	// locates @executable_path for executables.
	Path string
	// Unprebind removes the prebinding instead of redoing it.
	Unprebind bool
	// SlideTo moves a dynamic library so its first segment starts at this address.
	SlideTo *uint32
	// SegAddrTable supplies the new address of a dynamic library by install name when
	// SlideTo is not set.
	SegAddrTable *segaddr.Table
	// ExecutablePath is the directory substituted for @executable_path.
	ExecutablePath string
	// RootDir is prefixed to the absolute paths of dependent libraries.
	RootDir string
	// AllowMissingArchs skips a slice whose dependent libraries lack its architecture,
	// unless the architecture is RequiredCPU.
	AllowMissingArchs bool
	RequiredCPU       types.CPU
	// IgnoreNonPrebound reports files that are neither prebound nor prebindable as up to
	// date instead of failing.
	IgnoreNonPrebound bool
	// OnlyIfNeeded leaves a slice untouched when its prebinding is current and reports a
	// file that must be relinked with StatusNeedsRebuild instead of an error.
	OnlyIfNeeded bool
	// Cache shares dependent libraries between calls. It may be nil.
	Cache *ofile.Cache
}

// Result describes a processed slice.
type Result struct {
	Status Status
	// Data is the rewritten slice, the same size as the input. It is nil when nothing
	// changed.
	Data []byte
	// Libraries lists the paths of the libraries the slice was bound against in load order.
	Libraries []string
	// Slide is the amount the slice's addresses moved by.
	Slide uint32
}

// Redo redoes (or with opts.Unprebind removes) the prebinding of a thin 32-bit slice.
// slice is never modified; the rewritten image is returned in Result.Data.
func Redo(slice []byte, opts *Options) (*Result, error) {
	if opts == nil {
		opts = &Options{}
	}
	mode := modeRedo
	if opts.Unprebind {
		mode = modeUnprebind
	}
	c, res, err := newContext(slice, opts, mode)
	if c == nil {
		return res, err
	}
	return c.run()
}

// Unprebind is Redo with opts.Unprebind set.
func Unprebind(slice []byte, opts *Options) (*Result, error) {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	o.Unprebind = true
	return Redo(slice, &o)
}

// Check reports whether the prebinding of slice is current without changing anything.
// A stale slice is reported as StatusNeedsRedo with a nil error.
func Check(slice []byte, opts *Options) (Status, error) {
	if opts == nil {
		opts = &Options{}
	}
	c, res, err := newContext(slice, opts, modeCheck)
	if c == nil {
		if err != nil {
			return StatusOf(err), err
		}
		return res.Status, nil
	}
	return c.check()
}

// Prebound reports whether slice is a prebound 32-bit executable or dynamic library.
func Prebound(slice []byte) bool {
	img, err := macho.Parse(slice)
	if err != nil {
		return false
	}
	return (img.IsExecutable() || img.IsDylib()) && img.Header.Flags&types.Prebound != 0
}

func (c *Context) run() (*Result, error) {
	if c.mode != modeUnprebind {
		if err := c.loadLibraries(); err != nil {
			return nil, c.finish(err)
		}
		if err := c.computeAllSubImages(); err != nil {
			return nil, c.finish(err)
		}
		if err := c.checkOverlap(); err != nil {
			return nil, c.finish(err)
		}
		if c.opts.OnlyIfNeeded && c.slide == 0 && len(c.stale) == 0 && c.img.Header.Flags&types.Prebound != 0 {
			c.log.Debug("prebinding is up to date")
			return &Result{Status: StatusUpToDate, Libraries: c.libraryPaths()}, nil
		}
		if err := c.link(); err != nil {
			return nil, c.finish(err)
		}
	}

	steps := []func() error{
		c.updateRelocations,
		c.updateSymbolPointers,
		c.rebuildSymbols,
		c.img.Flush,
		c.rewriteLoadCommands,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			if c.opts.OnlyIfNeeded && errors.Is(err, ErrNeedsRelink) {
				c.log.WithError(err).Warn("file must be relinked to be prebound")
				return &Result{Status: StatusNeedsRebuild, Libraries: c.libraryPaths()}, nil
			}
			return nil, c.finish(err)
		}
	}
	c.log.WithField("slide", c.slide).Debug("prebinding done")
	return &Result{
		Status:    StatusSuccess,
		Data:      c.data,
		Libraries: c.libraryPaths(),
		Slide:     c.slide,
	}, nil
}

func (c *Context) check() (Status, error) {
	if err := c.loadLibraries(); err != nil {
		err = c.finish(err)
		return StatusOf(err), err
	}
	if err := c.computeAllSubImages(); err != nil {
		err = c.finish(err)
		return StatusOf(err), err
	}
	if len(c.stale) > 0 {
		c.log.WithField("libraries", c.stale).Info("dependent libraries changed")
		return StatusNeedsRedo, nil
	}
	if err := c.checkOverlap(); err != nil {
		c.log.WithError(err).Info("segments overlap")
		return StatusNeedsRedo, nil
	}
	return StatusUpToDate, nil
}

// finish adds the file and architecture to err.
func (c *Context) finish(err error) error {
	return errors.Wrapf(err, "%s (architecture %s)", c.opts.Path, macho.CPUName(c.img.Header.CPU))
}

func (c *Context) libraryPaths() []string {
	var paths []string
	for _, lib := range c.libs {
		if !lib.weakMissing && !lib.self {
			paths = append(paths, lib.Path)
		}
	}
	return paths
}
