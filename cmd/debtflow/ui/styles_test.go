package ui

import (
	"strings"
	"testing"
)

func TestDetectTheme(t *testing.T) {
	t.Setenv("COLORFGBG", "")
	t.Setenv("DEBTFLOW_DARK_MODE", "1")
	if !DetectTheme().IsDark {
		t.Fatalf("expected dark theme when DEBTFLOW_DARK_MODE=1")
	}

	t.Setenv("DEBTFLOW_DARK_MODE", "")
	if DetectTheme().IsDark {
		t.Fatalf("expected light theme when nothing says otherwise")
	}

	t.Setenv("COLORFGBG", "15;0")
	if !DetectTheme().IsDark {
		t.Fatalf("expected dark theme for a black background")
	}
}

func TestRenderProgress(t *testing.T) {
	s := NewStyles(LightTheme())
	got := s.RenderProgress(2, 6)
	if strings.Count(got, "●") != 3 || strings.Count(got, "○") != 3 {
		t.Fatalf("expected 3 filled and 3 empty segments, got %q", got)
	}
}
