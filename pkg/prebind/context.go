package prebind

import (
	"github.com/apex/log"
	"github.com/blacktop/go-macho/types"
	"github.com/blacktop/prebind/pkg/macho"
	"github.com/blacktop/prebind/pkg/ofile"
	"github.com/pkg/errors"
)

type mode int

const (
	modeRedo mode = iota
	modeUnprebind
	modeCheck
)

// Context is the state of processing one architecture slice. It owns a private copy of
// the slice; nothing reaches the caller unless every step succeeds.
type Context struct {
	opts *Options
	mode mode
	log  *log.Entry

	orig []byte
	data []byte
	img  *macho.Image
	syms []macho.Nlist // symbol table as read

	arch     *Library
	libs     []*Library // load order, the flat namespace search order
	byID     map[ofile.ID]*Library
	weak     *Library
	selfID   ofile.ID
	haveSelf bool

	slide    uint32
	strategy relocStrategy
	flat     bool

	defs   map[uint32]*Definition // undefined symbol index -> definition
	linked map[string]*definer
	work   worklist
	lazy   map[uint32]uint32 // lazy pointer address -> unbound value
	stale  []string
}

// newContext parses slice and decides whether there is anything to do. It returns a nil
// Context together with the final result when there is not.
func newContext(slice []byte, opts *Options, m mode) (*Context, *Result, error) {
	data := append([]byte(nil), slice...)
	img, err := macho.Parse(data)
	if err != nil {
		if errors.Is(err, macho.ErrNot32Bit) {
			return notPrebound(opts, errors.Wrap(err, opts.Path))
		}
		return nil, nil, errors.Wrapf(err, "failed to parse %s", opts.Path)
	}
	if !img.IsExecutable() && !img.IsDylib() {
		return notPrebound(opts, errors.Wrapf(ErrNotPrebound, "%s: only executables and dynamic libraries are prebound", opts.Path))
	}
	if img.IsDylib() && img.ID == nil {
		return nil, nil, errors.Wrapf(macho.ErrMalformed, "%s: dynamic library has no LC_ID_DYLIB", opts.Path)
	}
	if img.Symtab == nil || img.Dysymtab == nil {
		return notPrebound(opts, errors.Wrapf(ErrNotPrebound, "%s: no dynamic symbol table", opts.Path))
	}

	flags := img.Header.Flags
	switch {
	case m == modeUnprebind && flags&types.Prebound == 0:
		return nil, &Result{Status: StatusUpToDate}, nil
	case m == modeRedo && flags&(types.Prebound|types.Prebindable) == 0,
		m == modeCheck && flags&types.Prebound == 0:
		return notPrebound(opts, errors.Wrapf(ErrNotPrebound, "%s", opts.Path))
	}

	c := &Context{
		opts: opts,
		mode: m,
		log: log.WithFields(log.Fields{
			"file": opts.Path,
			"arch": macho.CPUName(img.Header.CPU),
		}),
		orig:   slice,
		data:   data,
		img:    img,
		syms:   append([]macho.Nlist(nil), img.Symbols...),
		byID:   make(map[ofile.ID]*Library),
		flat:   flags&types.ForceFlat != 0,
		defs:   make(map[uint32]*Definition),
		linked: make(map[string]*definer),
		lazy:   make(map[uint32]uint32),
	}
	c.work.init()
	if opts.Path != "" {
		if id, err := ofile.Identify(opts.Path); err == nil {
			c.selfID, c.haveSelf = id, true
		}
	}
	c.arch = c.newLibrary(c.installName(img), opts.Path, img)
	c.arch.self = true

	if c.strategy, err = strategyFor(img.Header.CPU); err != nil {
		return nil, nil, c.finish(err)
	}
	if m != modeCheck {
		if err := c.computeSlide(); err != nil {
			return nil, nil, c.finish(err)
		}
	}
	return c, nil, nil
}

func notPrebound(opts *Options, err error) (*Context, *Result, error) {
	if opts.IgnoreNonPrebound {
		return nil, &Result{Status: StatusNotPrebound}, nil
	}
	return nil, nil, err
}

func (c *Context) installName(img *macho.Image) string {
	if img.ID != nil {
		return img.ID.Name
	}
	return c.opts.Path
}

// computeSlide decides how far a dynamic library moves. Executables never move.
func (c *Context) computeSlide() error {
	img := c.img
	if !img.IsDylib() {
		if c.opts.SlideTo != nil {
			return errors.New("only dynamic libraries can be moved to a new address")
		}
		return nil
	}
	seg1 := img.Seg1Addr()
	switch {
	case c.mode == modeUnprebind:
		c.slide = -seg1
	case c.opts.SlideTo != nil:
		c.slide = *c.opts.SlideTo - seg1
	case c.opts.SegAddrTable != nil:
		e, ok := c.opts.SegAddrTable.Lookup(img.ID.Name)
		if !ok {
			c.log.Debugf("%s not in segment address table %s", img.ID.Name, c.opts.SegAddrTable.Name)
			return nil
		}
		if !e.Split {
			c.slide = e.Seg1Addr - seg1
			break
		}
		ro := e.SegsReadOnlyAddr - seg1
		rw := e.SegsReadWriteAddr - img.RelocBase()
		if ro != rw {
			return errors.Errorf("%s: read-only and read-write segments of %s must move by the same amount (line %d of %s)",
				c.opts.Path, img.ID.Name, e.Line, c.opts.SegAddrTable.Name)
		}
		c.slide = ro
	}
	if c.slide != 0 {
		c.log.Debugf("moving from %#x to %#x", seg1, seg1+c.slide)
	}
	return nil
}
