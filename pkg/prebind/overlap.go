package prebind

import (
	"sort"

	"github.com/blacktop/prebind/pkg/macho"
)

type segmentRange struct {
	file       string
	seg        string
	start, end uint64
}

// checkOverlap fails if any two segments of the architecture, after it moves, and its
// libraries share addresses.
func (c *Context) checkOverlap() error {
	var ranges []segmentRange
	add := func(file string, img *macho.Image, slide uint32) {
		for _, s := range img.Segments {
			if s.Memsz == 0 || s.Name == "__PAGEZERO" {
				continue
			}
			start := uint64(s.Addr + slide)
			ranges = append(ranges, segmentRange{file: file, seg: s.Name, start: start, end: start + uint64(s.Memsz)})
		}
	}
	add(c.opts.Path, c.img, c.slide)
	for _, lib := range c.libs {
		if !lib.weakMissing && !lib.self {
			add(lib.Path, lib.Image, 0)
		}
	}
	sort.SliceStable(ranges, func(i, j int) bool { return ranges[i].start < ranges[j].start })
	for i := 1; i < len(ranges); i++ {
		for j := i - 1; j >= 0; j-- {
			if ranges[j].end > ranges[i].start {
				return &SegmentOverlapError{First: ranges[j], Second: ranges[i]}
			}
		}
	}
	return nil
}
