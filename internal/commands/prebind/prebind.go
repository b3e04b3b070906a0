// Package prebind runs the prebinding engine over whole files for the command line.
package prebind

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/apex/log"
	"github.com/blacktop/go-macho/types"
	"github.com/blacktop/prebind/internal/config"
	"github.com/blacktop/prebind/internal/magic"
	"github.com/blacktop/prebind/pkg/macho"
	"github.com/blacktop/prebind/pkg/ofile"
	engine "github.com/blacktop/prebind/pkg/prebind"
	"github.com/blacktop/prebind/pkg/segaddr"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Mode selects what is done to each file.
type Mode int

const (
	ModeRedo Mode = iota
	ModeUnprebind
	ModeCheck
)

func (m Mode) String() string {
	switch m {
	case ModeRedo:
		return "redo"
	case ModeUnprebind:
		return "unprebind"
	case ModeCheck:
		return "check"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

const cpuArchABI64 = 0x01000000

type Config struct {
	Mode    Mode
	Options *config.Options
	// Confirm is asked before a file is overwritten in place. A nil Confirm overwrites.
	Confirm func(path string) bool
}

// ArchResult is the outcome for one architecture of a file.
type ArchResult struct {
	Arch      string
	Status    engine.Status
	Libraries []string
	Slide     uint32
	Err       error
}

// FileResult is the outcome for one file.
type FileResult struct {
	Path   string
	Status engine.Status
	// Output is where the file was written, empty when nothing was written.
	Output string
	Arches []ArchResult
	Err    error
}

// Driver processes files with shared settings and a shared library cache.
type Driver struct {
	conf     *Config
	table    *segaddr.Table
	cache    *ofile.Cache
	required types.CPU
}

func New(conf *Config) (*Driver, error) {
	if conf.Options == nil {
		conf.Options = &config.Options{}
	}
	d := &Driver{conf: conf}
	o := conf.Options
	if o.SegAddrTable != "" {
		t, err := segaddr.Open(o.SegAddrTable)
		if err != nil {
			return nil, err
		}
		d.table = t
	}
	if o.RequiredArch != "" {
		cpu, ok := macho.ParseCPU(o.RequiredArch)
		if !ok {
			return nil, errors.Errorf("unknown architecture %s", o.RequiredArch)
		}
		d.required = cpu
	}
	cache, err := ofile.NewCache(o.CacheSize)
	if err != nil {
		return nil, err
	}
	d.cache = cache
	return d, nil
}

// Run processes paths concurrently and returns their results in the same order.
func (d *Driver) Run(ctx context.Context, paths []string) ([]*FileResult, error) {
	results := make([]*FileResult, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	jobs := d.conf.Options.Jobs
	if jobs == 0 {
		jobs = runtime.NumCPU()
	}
	if d.conf.Confirm != nil || d.rewritesLibraries(paths) {
		// prompts must not interleave and dependents must see libraries rewritten
		// earlier in the batch
		jobs = 1
	}
	g.SetLimit(jobs)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = d.Process(path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// rewritesLibraries reports whether the run writes a dynamic library other inputs may
// depend on. Such batches are processed one file at a time in argument order.
func (d *Driver) rewritesLibraries(paths []string) bool {
	if d.conf.Mode == ModeCheck || len(paths) < 2 {
		return false
	}
	for _, path := range paths {
		f, err := ofile.Open(path)
		if err != nil {
			continue
		}
		for i := range f.Arches {
			if img, err := macho.Parse(f.Slice(i)); err == nil && img.IsDylib() {
				return true
			}
		}
	}
	return false
}

// Process handles every architecture of the file at path and writes it back if any
// changed and none failed.
func (d *Driver) Process(path string) *FileResult {
	res := &FileResult{Path: path}
	fail := func(err error) *FileResult {
		res.Status, res.Err = engine.StatusFailure, err
		return res
	}
	if ok, err := magic.IsMachO(path); !ok {
		return fail(err)
	}
	if is64, err := magic.Is64Bit(path); err != nil {
		return fail(err)
	} else if is64 {
		log.WithField("file", path).Debug("Skipping 64-bit file")
		res.Status = engine.StatusSkipped
		return res
	}
	f, err := ofile.Open(path)
	if err != nil {
		return fail(err)
	}

	changed := false
	for i := range f.Arches {
		ar := d.processArch(path, f, i)
		res.Arches = append(res.Arches, ar)
		if i == 0 {
			res.Status = ar.Status
		} else {
			res.Status = Worse(res.Status, ar.Status)
		}
		if ar.Err != nil && !tolerated(ar.Status) {
			if ar.Status == engine.StatusNotPrebound {
				res.Status = engine.StatusFailure
			}
			res.Err = ar.Err
			return res
		}
		if ar.Err == nil && ar.Status == engine.StatusSuccess {
			changed = true
		}
	}
	if !changed || d.conf.Mode == ModeCheck {
		return res
	}

	out, err := d.output(path)
	if err != nil {
		return fail(err)
	}
	if out == "" {
		log.WithField("file", path).Warn("Not overwriting file")
		return res
	}
	if err := f.Write(out); err != nil {
		return fail(err)
	}
	d.cache.Forget(out)
	res.Output = out
	return res
}

func (d *Driver) processArch(path string, f *ofile.File, i int) ArchResult {
	a := f.Arches[i]
	ar := ArchResult{Arch: a.String()}
	ctx := log.WithFields(log.Fields{"file": path, "arch": ar.Arch})
	if a.CPU&cpuArchABI64 != 0 {
		ctx.Debug("Skipping 64-bit architecture")
		ar.Status = engine.StatusSkipped
		return ar
	}

	o := d.conf.Options
	opts := &engine.Options{
		Path:              path,
		Unprebind:         d.conf.Mode == ModeUnprebind,
		SlideTo:           o.SlideTo,
		SegAddrTable:      d.table,
		ExecutablePath:    o.ExecutablePath,
		RootDir:           o.Root,
		AllowMissingArchs: o.AllowMissingArchs,
		RequiredCPU:       d.required,
		IgnoreNonPrebound: o.IgnoreNonPrebound,
		OnlyIfNeeded:      o.OnlyIfNeeded,
		Cache:             d.cache,
	}

	if d.conf.Mode == ModeCheck {
		ar.Status, ar.Err = engine.Check(f.Slice(i), opts)
		ctx.WithField("status", ar.Status).Debug("Checked")
		return ar
	}

	var r *engine.Result
	var err error
	if d.conf.Mode == ModeUnprebind {
		r, err = engine.Unprebind(f.Slice(i), opts)
	} else {
		r, err = engine.Redo(f.Slice(i), opts)
	}
	if err != nil {
		ar.Status, ar.Err = engine.StatusOf(err), err
		if ar.Status == engine.StatusSkipped {
			ctx.WithError(err).Warn("Skipping architecture")
		}
		return ar
	}
	ar.Status, ar.Libraries, ar.Slide = r.Status, r.Libraries, r.Slide
	if r.Data != nil {
		if err := f.Replace(i, r.Data); err != nil {
			ar.Status, ar.Err = engine.StatusFailure, err
			return ar
		}
	}
	ctx.WithField("status", ar.Status).Debug("Processed")
	return ar
}

// output returns where the processed file goes, or "" when overwriting was declined.
func (d *Driver) output(path string) (string, error) {
	o := d.conf.Options
	if o.Output != "" {
		if err := os.MkdirAll(o.Output, 0o750); err != nil {
			return "", errors.Wrapf(err, "failed to create output directory %s", o.Output)
		}
		return filepath.Join(o.Output, filepath.Base(path)), nil
	}
	if o.Overwrite || d.conf.Confirm == nil || d.conf.Confirm(path) {
		return path, nil
	}
	return "", nil
}

// tolerated reports whether a slice with status s leaves the rest of the file writable.
func tolerated(s engine.Status) bool {
	switch s {
	case engine.StatusSkipped, engine.StatusUpToDate:
		return true
	}
	return false
}

var severity = map[engine.Status]int{
	engine.StatusSuccess:      0,
	engine.StatusUpToDate:     0,
	engine.StatusSkipped:      1,
	engine.StatusNotPrebound:  2,
	engine.StatusNeedsRedo:    3,
	engine.StatusNeedsRebuild: 4,
	engine.StatusInconsistent: 5,
	engine.StatusFailure:      6,
}

// Worse returns the more severe of a and b. Success is only kept over up to date when
// both are present so a file with one rewritten slice reports success.
func Worse(a, b engine.Status) engine.Status {
	if severity[b] > severity[a] || (severity[b] == severity[a] && b == engine.StatusSuccess) {
		return b
	}
	return a
}

// ExitCode maps the worst status of a run to the process exit status.
func ExitCode(s engine.Status) int {
	switch s {
	case engine.StatusNeedsRedo:
		return 2
	case engine.StatusNeedsRebuild:
		return 3
	case engine.StatusInconsistent:
		return 4
	case engine.StatusFailure:
		return 1
	}
	return 0
}
