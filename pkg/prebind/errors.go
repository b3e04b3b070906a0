package prebind

import (
	"fmt"
	"strings"

	"github.com/blacktop/prebind/pkg/macho"
	"github.com/pkg/errors"
)

var (
	// ErrNotPrebound is returned for files that are not (and cannot be) prebound.
	ErrNotPrebound = errors.New("file is not prebound")
	// ErrNeedsRelink is returned when the rewritten load commands no longer fit in the
	// header padding; the file has to be linked again to be prebound.
	ErrNeedsRelink = errors.New("load commands do not fit in the header padding")
	// ErrInconsistentLibraries is returned when the dependent libraries were not prebound
	// against each other.
	ErrInconsistentLibraries = errors.New("dependent libraries are not consistently prebound")
	// ErrMissingArch is returned when a dependent library lacks the architecture being
	// processed and missing architectures are allowed.
	ErrMissingArch = errors.New("dependent library does not contain the architecture")
	// ErrIndirectLoop is returned when N_INDR symbols refer to each other in a cycle.
	ErrIndirectLoop = errors.New("indirect symbol loop")
	// ErrUnsupportedCPU is returned for architectures whose relocations are not handled.
	ErrUnsupportedCPU = errors.New("unsupported architecture")
)

// MultiplyDefinedError is returned when two linked modules define the same symbol in the
// flat namespace.
type MultiplyDefinedError struct {
	Name   string
	First  string
	Second string
}

func (e *MultiplyDefinedError) Error() string {
	return fmt.Sprintf("symbol %s is multiply defined in %s and %s", e.Name, e.First, e.Second)
}

// UnresolvedError lists every symbol that could not be bound.
type UnresolvedError struct {
	Names []string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("%d undefined symbol(s): %s", len(e.Names), strings.Join(e.Names, ", "))
}

// RelocOverflowError is returned when an updated value does not fit in its field.
type RelocOverflowError struct {
	File     string
	Index    int
	External bool
	Type     uint8
	Value    int64
}

func (e *RelocOverflowError) Error() string {
	kind := "local"
	if e.External {
		kind = "external"
	}
	return fmt.Sprintf("%s: %s relocation entry %d (type %d) overflows its field with value %#x", e.File, kind, e.Index, e.Type, e.Value)
}

// UnknownRelocError is returned for relocation types an architecture does not define or
// that cannot be updated.
type UnknownRelocError struct {
	File     string
	Index    int
	External bool
	Type     uint8
}

func (e *UnknownRelocError) Error() string {
	kind := "local"
	if e.External {
		kind = "external"
	}
	return fmt.Sprintf("%s: %s relocation entry %d has unknown or unsupported type %d", e.File, kind, e.Index, e.Type)
}

// DylibOverrideError is returned when a flat namespace dylib defines a symbol that one of
// its flat namespace dependents defines and uses itself.
type DylibOverrideError struct {
	Name    string
	Dylib   string
	Library string
}

func (e *DylibOverrideError) Error() string {
	return fmt.Sprintf("prebinding can't be redone for %s because symbol %s overrides the definition used by dependent library %s",
		e.Dylib, e.Name, e.Library)
}

// SegmentOverlapError names two segments whose address ranges intersect.
type SegmentOverlapError struct {
	First, Second segmentRange
}

func (e *SegmentOverlapError) Error() string {
	return fmt.Sprintf("prebinding can't be redone because %s segment (address = %#x size = %#x) of %s overlaps with %s segment (address = %#x size = %#x) of %s",
		e.First.seg, e.First.start, e.First.end-e.First.start, e.First.file,
		e.Second.seg, e.Second.start, e.Second.end-e.Second.start, e.Second.file)
}

// SubImageCycleError is returned when re-exported libraries form a cycle.
type SubImageCycleError struct {
	Libraries []string
}

func (e *SubImageCycleError) Error() string {
	return "re-exported libraries form a cycle: " + strings.Join(e.Libraries, ", ")
}

// Status is the outcome of processing one architecture.
type Status int

const (
	StatusSuccess Status = iota
	StatusUpToDate
	StatusNotPrebound
	StatusNeedsRedo
	StatusNeedsRebuild
	StatusInconsistent
	StatusSkipped
	StatusFailure
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusUpToDate:
		return "up to date"
	case StatusNotPrebound:
		return "not prebound"
	case StatusNeedsRedo:
		return "needs redo"
	case StatusNeedsRebuild:
		return "needs rebuild"
	case StatusInconsistent:
		return "inconsistent libraries"
	case StatusSkipped:
		return "skipped"
	}
	return "failure"
}

// StatusOf maps an error returned by this package to a status.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, ErrNotPrebound), errors.Is(err, macho.ErrNot32Bit):
		return StatusNotPrebound
	case errors.Is(err, ErrNeedsRelink):
		return StatusNeedsRebuild
	case errors.Is(err, ErrInconsistentLibraries):
		return StatusInconsistent
	case errors.Is(err, ErrMissingArch):
		return StatusSkipped
	}
	return StatusFailure
}
