package timewindow

import (
	"testing"
	"time"
)

func at(hour, min int) time.Time {
	return time.Date(2025, 3, 10, hour, min, 0, 0, time.UTC)
}

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name                           string
		aStart, aEnd, bStart, bEnd     time.Time
		want                           bool
	}{
		{"disjoint before", at(9, 0), at(9, 30), at(10, 0), at(10, 30), false},
		{"disjoint after", at(11, 0), at(11, 30), at(10, 0), at(10, 30), false},
		{"touching at boundary", at(9, 0), at(9, 30), at(9, 30), at(10, 0), false},
		{"touching at boundary reversed", at(9, 30), at(10, 0), at(9, 0), at(9, 30), false},
		{"partial overlap", at(9, 0), at(9, 45), at(9, 30), at(10, 0), true},
		{"contained", at(9, 0), at(11, 0), at(9, 30), at(10, 0), true},
		{"containing", at(9, 30), at(10, 0), at(9, 0), at(11, 0), true},
		{"identical", at(9, 0), at(9, 30), at(9, 0), at(9, 30), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Overlaps(tt.aStart, tt.aEnd, tt.bStart, tt.bEnd); got != tt.want {
				t.Errorf("Overlaps() = %v, want %v", got, tt.want)
			}
			// The check must be symmetric in its arguments.
			if got := Overlaps(tt.bStart, tt.bEnd, tt.aStart, tt.aEnd); got != tt.want {
				t.Errorf("Overlaps() swapped = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSlice(t *testing.T) {
	t.Run("exact fit", func(t *testing.T) {
		got := Slice(at(9, 0), at(10, 0), 30*time.Minute)
		if len(got) != 2 {
			t.Fatalf("expected 2 intervals, got %d", len(got))
		}
		if !got[0].Start.Equal(at(9, 0)) || !got[0].End.Equal(at(9, 30)) {
			t.Errorf("first interval = %v", got[0])
		}
		if !got[1].Start.Equal(at(9, 30)) || !got[1].End.Equal(at(10, 0)) {
			t.Errorf("second interval = %v", got[1])
		}
	})

	t.Run("trailing partial dropped", func(t *testing.T) {
		got := Slice(at(9, 0), at(9, 50), 30*time.Minute)
		if len(got) != 1 {
			t.Fatalf("expected 1 interval, got %d", len(got))
		}
		if !got[0].End.Equal(at(9, 30)) {
			t.Errorf("interval end = %v, want 09:30", got[0].End)
		}
	})

	t.Run("window shorter than step", func(t *testing.T) {
		if got := Slice(at(9, 0), at(9, 20), 30*time.Minute); len(got) != 0 {
			t.Errorf("expected no intervals, got %d", len(got))
		}
	})

	t.Run("zero step", func(t *testing.T) {
		if got := Slice(at(9, 0), at(17, 0), 0); got != nil {
			t.Errorf("expected nil for zero step, got %d intervals", len(got))
		}
	})

	t.Run("negative step", func(t *testing.T) {
		if got := Slice(at(9, 0), at(17, 0), -15*time.Minute); got != nil {
			t.Errorf("expected nil for negative step, got %d intervals", len(got))
		}
	})

	t.Run("inverted window", func(t *testing.T) {
		if got := Slice(at(17, 0), at(9, 0), 30*time.Minute); got != nil {
			t.Errorf("expected nil for inverted window, got %d intervals", len(got))
		}
	})

	t.Run("intervals are contiguous and within window", func(t *testing.T) {
		start, end := at(8, 15), at(13, 40)
		step := 25 * time.Minute
		got := Slice(start, end, step)
		for i, iv := range got {
			if iv.Duration() != step {
				t.Errorf("interval %d has duration %v", i, iv.Duration())
			}
			if iv.Start.Before(start) || iv.End.After(end) {
				t.Errorf("interval %d escapes the window: %v", i, iv)
			}
			if i > 0 && !iv.Start.Equal(got[i-1].End) {
				t.Errorf("gap between interval %d and %d", i-1, i)
			}
		}
	})
}

func TestClampToDay(t *testing.T) {
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	iv := Interval{
		Start: time.Date(2025, 3, 9, 22, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 3, 10, 2, 0, 0, 0, time.UTC),
	}
	got := ClampToDay(iv, day)
	if !got.Start.Equal(day) {
		t.Errorf("clamped start = %v, want midnight", got.Start)
	}
	if !got.End.Equal(iv.End) {
		t.Errorf("clamped end = %v, want %v", got.End, iv.End)
	}

	outside := Interval{
		Start: time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC),
	}
	if got := ClampToDay(outside, day); !got.IsZero() {
		t.Errorf("interval outside the day should clamp to zero, got %v", got)
	}
}
