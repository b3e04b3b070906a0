// Package colors provides the terminal colors used for run summaries.
//
// Colors are disabled when stdout is not a terminal. This is fatih/color's own
// detection; Init overrides it from the --color flag.
package colors

import (
	"github.com/blacktop/prebind/pkg/prebind"
	"github.com/fatih/color"
)

// Init overrides the auto-detected color setting. A nil forceColor keeps it.
func Init(forceColor *bool) {
	if forceColor != nil {
		color.NoColor = !*forceColor
	}
}

func Bold() *color.Color      { return color.New(color.Bold) }
func Faint() *color.Color     { return color.New(color.Faint) }
func BoldGreen() *color.Color { return color.New(color.Bold, color.FgGreen) }
func HiYellow() *color.Color  { return color.New(color.FgHiYellow) }
func HiMagenta() *color.Color { return color.New(color.FgHiMagenta) }
func BoldHiRed() *color.Color { return color.New(color.Bold, color.FgHiRed) }

// Status returns the color a status is printed in.
func Status(s prebind.Status) *color.Color {
	switch s {
	case prebind.StatusSuccess:
		return BoldGreen()
	case prebind.StatusUpToDate:
		return Faint()
	case prebind.StatusSkipped, prebind.StatusNotPrebound:
		return HiYellow()
	case prebind.StatusNeedsRedo, prebind.StatusNeedsRebuild, prebind.StatusInconsistent:
		return HiMagenta()
	}
	return BoldHiRed()
}
