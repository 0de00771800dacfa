package models

import (
	"math"
	"time"
)

// Sample is a single raw heart-rate reading. A NaN Value marks a missing reading.
type Sample struct {
	SubjectID string
	Timestamp time.Time
	Value     float64
}

// Missing reports whether the sample carries no value.
func (s Sample) Missing() bool {
	return math.IsNaN(s.Value)
}

// MissingValue is the filler used for absent readings.
func MissingValue() float64 {
	return math.NaN()
}

// TimeRange bounds the readings considered for a detection run.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether ts falls in [Start, End). Zero bounds are open.
func (r TimeRange) Contains(ts time.Time) bool {
	if !r.Start.IsZero() && ts.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && !ts.Before(r.End) {
		return false
	}
	return true
}
