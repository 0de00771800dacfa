package utils

import (
	"fmt"
	"strings"
	"time"
)

// FitbitLayout is the timestamp layout of Fitbit heart-rate exports.
const FitbitLayout = "1/2/2006 3:04:05 PM"

var timestampLayouts = []string{
	time.RFC3339Nano,
	FitbitLayout,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp accepts RFC3339, the Fitbit export layout, and plain date or datetime.
// Values without a zone are read as UTC.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse time %q: unsupported layout", value)
}
