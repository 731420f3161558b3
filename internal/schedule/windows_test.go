package schedule

import (
	"reflect"
	"testing"

	"zapisnik/internal/model"
)

func w(start, end int) model.Window {
	return model.Window{Start: start, End: end}
}

func TestInsertWindow(t *testing.T) {
	tests := []struct {
		name     string
		existing []model.Window
		insert   model.Window
		want     []model.Window
	}{
		{
			name:     "into empty",
			existing: nil,
			insert:   w(540, 600),
			want:     []model.Window{w(540, 600)},
		},
		{
			name:     "disjoint keeps order",
			existing: []model.Window{w(840, 900)},
			insert:   w(540, 600),
			want:     []model.Window{w(540, 600), w(840, 900)},
		},
		{
			name:     "touching coalesces",
			existing: []model.Window{w(540, 600)},
			insert:   w(600, 660),
			want:     []model.Window{w(540, 660)},
		},
		{
			name:     "overlap extends",
			existing: []model.Window{w(540, 620)},
			insert:   w(600, 700),
			want:     []model.Window{w(540, 700)},
		},
		{
			name:     "bridges two windows",
			existing: []model.Window{w(540, 600), w(660, 720)},
			insert:   w(590, 670),
			want:     []model.Window{w(540, 720)},
		},
		{
			name:     "contained is absorbed",
			existing: []model.Window{w(540, 720)},
			insert:   w(600, 660),
			want:     []model.Window{w(540, 720)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := InsertWindow(tt.existing, tt.insert)
			if err != nil {
				t.Fatalf("InsertWindow: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("InsertWindow = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInsertWindowInvalid(t *testing.T) {
	if _, err := InsertWindow(nil, w(600, 540)); err == nil {
		t.Error("expected error for inverted window")
	}
}

func TestRemoveWindowAt(t *testing.T) {
	existing := []model.Window{w(540, 600), w(660, 720), w(840, 900)}

	got, err := RemoveWindowAt(existing, 1)
	if err != nil {
		t.Fatalf("RemoveWindowAt: %v", err)
	}
	want := []model.Window{w(540, 600), w(840, 900)}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("RemoveWindowAt = %v, want %v", got, want)
	}

	if _, err := RemoveWindowAt(existing, 3); err == nil {
		t.Error("expected error for out-of-range index")
	}
	if _, err := RemoveWindowAt(existing, -1); err == nil {
		t.Error("expected error for negative index")
	}
}
