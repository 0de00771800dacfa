package engine

import (
	"fmt"
	"time"
)

// Window is a fixed-length slice of the uniform grid fed to the model.
type Window struct {
	Offset     int
	Sequence   []float64
	Mask       []bool
	Timestamps []time.Time
}

// Len returns the number of samples in the window.
func (w Window) Len() int {
	return len(w.Sequence)
}

// WindowSet holds the windows produced for one detection run, in offset order.
type WindowSet struct {
	Length  int
	Windows []Window
	// Dropped counts full-length windows rejected for missing data.
	Dropped int
}

// Len returns the number of kept windows.
func (ws WindowSet) Len() int {
	return len(ws.Windows)
}

// Timestamps concatenates the timestamps of all windows in offset order.
func (ws WindowSet) Timestamps() []time.Time {
	return concatTimestamps(ws.Windows)
}

func concatTimestamps(windows []Window) []time.Time {
	total := 0
	for _, w := range windows {
		total += len(w.Timestamps)
	}
	out := make([]time.Time, 0, total)
	for _, w := range windows {
		out = append(out, w.Timestamps...)
	}
	return out
}

// Segment cuts series into windows of length samples every stride samples. Only
// full-length windows are considered, so up to length-1 trailing points never reach the
// model. A window is kept when its missing fraction is at most missingRatioMax.
func Segment(series Series, length, stride int, missingRatioMax float64) (WindowSet, error) {
	if length <= 0 || stride <= 0 {
		return WindowSet{}, fmt.Errorf("%w: length %d, stride %d", ErrInvalidWindowing, length, stride)
	}
	if missingRatioMax < 0 || missingRatioMax > 1 {
		return WindowSet{}, fmt.Errorf("%w: missing ratio %.3f outside [0,1]", ErrInvalidWindowing, missingRatioMax)
	}

	set := WindowSet{Length: length}
	points := series.Points
	for offset := 0; offset+length <= len(points); offset += stride {
		slice := points[offset : offset+length]

		missing := 0
		for _, p := range slice {
			if p.Missing() {
				missing++
			}
		}
		if float64(missing)/float64(length) > missingRatioMax {
			set.Dropped++
			continue
		}

		w := Window{
			Offset:     offset,
			Sequence:   make([]float64, length),
			Mask:       make([]bool, length),
			Timestamps: make([]time.Time, length),
		}
		for i, p := range slice {
			w.Sequence[i] = p.Value
			w.Mask[i] = !p.Missing()
			w.Timestamps[i] = p.Timestamp
		}
		set.Windows = append(set.Windows, w)
	}
	return set, nil
}
