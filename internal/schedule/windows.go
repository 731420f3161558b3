package schedule

import (
	"fmt"
	"sort"

	"zapisnik/internal/model"
)

// InsertWindow adds w to a sorted, disjoint window list and normalizes the
// result: windows that overlap or touch w are coalesced into a single window.
func InsertWindow(existing []model.Window, w model.Window) ([]model.Window, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}

	merged := w
	out := make([]model.Window, 0, len(existing)+1)
	for _, e := range existing {
		if e.Touches(merged) {
			if e.Start < merged.Start {
				merged.Start = e.Start
			}
			if e.End > merged.End {
				merged.End = e.End
			}
			continue
		}
		out = append(out, e)
	}
	out = append(out, merged)
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out, nil
}

// RemoveWindowAt removes the window at the given position.
func RemoveWindowAt(existing []model.Window, index int) ([]model.Window, error) {
	if index < 0 || index >= len(existing) {
		return nil, &model.ValidationError{Field: "window", Reason: fmt.Sprintf("no window at position %d", index)}
	}
	out := make([]model.Window, 0, len(existing)-1)
	out = append(out, existing[:index]...)
	out = append(out, existing[index+1:]...)
	return out, nil
}
