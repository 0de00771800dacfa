package engine

import (
	"math"
	"sort"
	"time"

	"github.com/claudia-liauw/health-app/internal/models"
)

// Point is one slot of the uniform grid. NaN marks a missing value.
type Point struct {
	Timestamp time.Time
	Value     float64
}

// Missing reports whether the point has no value after interpolation.
func (p Point) Missing() bool {
	return math.IsNaN(p.Value)
}

// Series is a heart-rate stream projected onto a grid with a fixed interval.
type Series struct {
	Interval time.Duration
	Points   []Point
}

// Len returns the number of grid points.
func (s Series) Len() int {
	return len(s.Points)
}

// MissingCount returns how many grid points are still missing.
func (s Series) MissingCount() int {
	missing := 0
	for _, p := range s.Points {
		if p.Missing() {
			missing++
		}
	}
	return missing
}

// Resample projects samples onto a grid of step interval spanning [min, max] of their
// timestamps, then fills interior gaps of at most interpolationLimit points linearly.
//
// Each grid point takes the nearest sample within interval-1s; equidistant samples
// resolve to the later one. Duplicate timestamps keep the sample that came last in input
// order.
func Resample(samples []models.Sample, interval time.Duration, interpolationLimit int) (Series, error) {
	if len(samples) == 0 {
		return Series{}, ErrEmptyInput
	}
	if interval <= 0 {
		return Series{}, ErrInvalidInterval
	}
	if interpolationLimit < 0 {
		return Series{}, ErrInvalidInterpolationLimit
	}

	ordered := dedupeByTimestamp(samples)
	start := ordered[0].Timestamp
	end := ordered[len(ordered)-1].Timestamp
	size := int(end.Sub(start)/interval) + 1

	tolerance := interval - time.Second
	if tolerance < 0 {
		tolerance = 0
	}

	points := make([]Point, size)
	for i := range points {
		ts := start.Add(time.Duration(i) * interval)
		points[i] = Point{Timestamp: ts, Value: nearestValue(ordered, ts, tolerance)}
	}

	interpolate(points, interpolationLimit)
	return Series{Interval: interval, Points: points}, nil
}

// dedupeByTimestamp sorts a copy of samples by time and keeps the last input occurrence
// of every timestamp.
func dedupeByTimestamp(samples []models.Sample) []models.Sample {
	sorted := append([]models.Sample(nil), samples...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	unique := sorted[:0]
	for _, s := range sorted {
		if n := len(unique); n > 0 && unique[n-1].Timestamp.Equal(s.Timestamp) {
			unique[n-1] = s
			continue
		}
		unique = append(unique, s)
	}
	return unique
}

func nearestValue(ordered []models.Sample, ts time.Time, tolerance time.Duration) float64 {
	// right is the first sample at or after ts, left the last one before it.
	right := sort.Search(len(ordered), func(i int) bool {
		return !ordered[i].Timestamp.Before(ts)
	})
	left := right - 1

	best := -1
	var bestDist time.Duration
	if right < len(ordered) {
		best = right
		bestDist = ordered[right].Timestamp.Sub(ts)
	}
	if left >= 0 {
		dist := ts.Sub(ordered[left].Timestamp)
		if best < 0 || dist < bestDist {
			best = left
			bestDist = dist
		}
	}

	if best < 0 || bestDist > tolerance {
		return math.NaN()
	}
	return ordered[best].Value
}

// interpolate fills runs of missing points bounded by known values on both sides when the
// run is no longer than limit. Leading and trailing runs are left untouched.
func interpolate(points []Point, limit int) {
	if limit == 0 {
		return
	}
	i := 0
	for i < len(points) {
		if !points[i].Missing() {
			i++
			continue
		}
		runStart := i
		for i < len(points) && points[i].Missing() {
			i++
		}
		runEnd := i // exclusive

		if runStart == 0 || runEnd == len(points) || runEnd-runStart > limit {
			continue
		}

		before := points[runStart-1].Value
		after := points[runEnd].Value
		span := float64(runEnd - runStart + 1)
		for k := runStart; k < runEnd; k++ {
			frac := float64(k-runStart+1) / span
			points[k].Value = before + (after-before)*frac
		}
	}
}
