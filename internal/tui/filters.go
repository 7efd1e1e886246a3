package tui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/and161185/docdesk/internal/model"
)

func keyIs(msg tea.KeyMsg, b key.Binding) bool { return key.Matches(msg, b) }

// cycle advances through "" (All) followed by values, wrapping around.
// A selection that vanished from values restarts at All.
func cycle(values []string, cur string) string {
	if cur == "" {
		if len(values) == 0 {
			return ""
		}
		return values[0]
	}
	for i, v := range values {
		if v == cur {
			if i+1 < len(values) {
				return values[i+1]
			}
			return ""
		}
	}
	return ""
}

func cycleRange(cur model.DateRange) model.DateRange {
	for i, r := range model.DateRanges {
		if r == cur {
			return model.DateRanges[(i+1)%len(model.DateRanges)]
		}
	}
	return model.RangeAll
}

// rangeValues lists the selectable ranges; All is implied by render.Options.
func rangeValues() []string {
	out := make([]string, 0, len(model.DateRanges)-1)
	for _, r := range model.DateRanges {
		if r != model.RangeAll {
			out = append(out, string(r))
		}
	}
	return out
}

func rangeValue(r model.DateRange) string {
	if r == model.RangeAll || r == "" {
		return ""
	}
	return string(r)
}
