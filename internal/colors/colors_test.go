package colors

import (
	"strings"
	"testing"

	"github.com/blacktop/prebind/pkg/prebind"
	"github.com/fatih/color"
)

func TestInit(t *testing.T) {
	orig := color.NoColor
	defer func() { color.NoColor = orig }()

	on, off := true, false
	tests := []struct {
		name  string
		start bool
		force *bool
		want  bool
	}{
		{"force on", true, &on, true},
		{"force off", false, &off, false},
		{"nil keeps enabled", false, nil, true},
		{"nil keeps disabled", true, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			color.NoColor = tt.start
			Init(tt.force)
			if enabled := !color.NoColor; enabled != tt.want {
				t.Errorf("colors enabled = %v, want %v", enabled, tt.want)
			}
		})
	}
}

func TestStatus(t *testing.T) {
	orig := color.NoColor
	defer func() { color.NoColor = orig }()

	color.NoColor = false
	for s := prebind.StatusSuccess; s <= prebind.StatusFailure; s++ {
		if out := Status(s).Sprint(s); !strings.Contains(out, "\x1b[") {
			t.Errorf("Status(%v) produced no ANSI codes: %q", s, out)
		}
	}

	color.NoColor = true
	if out := Status(prebind.StatusFailure).Sprint("failure"); out != "failure" {
		t.Errorf("expected plain output when disabled, got %q", out)
	}
}
