package models

import "time"

// DetectionOptions overrides pipeline knobs for a single call. Zero fields keep the
// configured defaults.
type DetectionOptions struct {
	Interval           time.Duration
	InterpolationLimit *int
	WindowLength       int
	Stride             int
	MissingRatioMax    *float64
	Threshold          *float64
}

// DetectRequest carries inline samples supplied by the caller.
type DetectRequest struct {
	SubjectID string
	Samples   []Sample
	Options   DetectionOptions
}

// SubjectRequest asks for detection over stored readings of one subject.
type SubjectRequest struct {
	SubjectID string
	Range     TimeRange
	Options   DetectionOptions
}
