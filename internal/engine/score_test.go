package engine

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func windowsOf(vals ...float64) ([]Window, []time.Time) {
	set, err := Segment(gridSeries(vals...), len(vals), len(vals), 1)
	if err != nil {
		panic(err)
	}
	return set.Windows, set.Timestamps()
}

func recsOf(vals ...float64) []Reconstruction {
	return []Reconstruction{{Values: vals}}
}

func TestRelativeError(t *testing.T) {
	assert.InDelta(t, 20.0, RelativeError(120, 100), 1e-9)
	assert.InDelta(t, 20.0, RelativeError(80, 100), 1e-9)
	assert.True(t, math.IsInf(RelativeError(5, 0), 1))
	assert.True(t, math.IsNaN(RelativeError(0, 0)))
	assert.Less(t, RelativeError(5, -10), 0.0)
}

func TestRound1(t *testing.T) {
	assert.Equal(t, 184.7, Round1(184.68))
	assert.Equal(t, 0.2, Round1(0.25))
	assert.True(t, math.IsInf(Round1(math.Inf(1)), 1))
	assert.True(t, math.IsNaN(Round1(math.NaN())))
}

func TestScoreThresholdIsStrict(t *testing.T) {
	windows, ts := windowsOf(120, 120.1, 100, 79.9)
	records, scored := Score(windows, recsOf(100, 100, 100, 100), ts, 20)
	assert.Equal(t, 4, scored)

	// 120 vs 100 is exactly 20 and stays out; 120.1 and 79.9 round to 20.1.
	require.Len(t, records, 2)
	assert.Equal(t, ts[1], records[0].Timestamp)
	assert.Equal(t, 120.1, records[0].Recorded)
	assert.Equal(t, 100.0, records[0].Predicted)
	assert.Equal(t, 20.1, records[0].Score)
	assert.Equal(t, ts[3], records[1].Timestamp)
}

func TestScoreFiltersOnRoundedScore(t *testing.T) {
	// 120.04 vs 100 scores 20.04, which rounds to 20.0 and is not above 20.
	windows, ts := windowsOf(120.04)
	records, _ := Score(windows, recsOf(100), ts, 20)
	assert.Empty(t, records)
}

func TestScoreSpecialValues(t *testing.T) {
	nan := math.NaN()
	windows, ts := windowsOf(5, 0, nan, 50)
	records, _ := Score(windows, recsOf(0, 0, 70, -100), ts, 20)

	// Zero prediction reports +Inf, 0/0 and missing samples never pass, negative
	// predictions give negative scores.
	require.Len(t, records, 1)
	assert.True(t, math.IsInf(records[0].Score, 1))
	assert.Equal(t, ts[0], records[0].Timestamp)
}

func TestScoreTruncatesToShortestInput(t *testing.T) {
	windows, ts := windowsOf(200, 200, 200)
	records, scored := Score(windows, recsOf(100, 100, 100), ts[:2], 20)
	assert.Equal(t, 2, scored)
	assert.Len(t, records, 2)

	records, scored = Score(windows, recsOf(100), ts, 20)
	assert.Equal(t, 1, scored)
	assert.Len(t, records, 1)
}

func TestScoreThresholdOverride(t *testing.T) {
	windows, ts := windowsOf(110, 130, 160)
	records, _ := Score(windows, recsOf(100, 100, 100), ts, 50)
	require.Len(t, records, 1)
	assert.Equal(t, 60.0, records[0].Score)

	records, _ = Score(windows, recsOf(100, 100, 100), ts, 0)
	assert.Len(t, records, 3)
}

func TestScoreEmptyInput(t *testing.T) {
	records, scored := Score(nil, nil, nil, 20)
	assert.NotNil(t, records)
	assert.Empty(t, records)
	assert.Equal(t, 0, scored)
}

func TestScoreOverlappingWindowsReportPerWindow(t *testing.T) {
	vals := make([]float64, 16)
	for i := range vals {
		vals[i] = 70
	}
	vals[6] = 200

	set, err := Segment(gridSeries(vals...), 8, 4, 1)
	require.NoError(t, err)
	require.Equal(t, 3, set.Len())

	recs := make([]Reconstruction, set.Len())
	for i := range recs {
		recs[i] = Reconstruction{Values: []float64{70, 70, 70, 70, 70, 70, 70, 70}}
	}

	records, scored := Score(set.Windows, recs, set.Timestamps(), 20)
	assert.Equal(t, 24, scored)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.True(t, r.Timestamp.Equal(t0.Add(6*time.Second)), "got %v", r.Timestamp)
		assert.Equal(t, 200.0, r.Recorded)
		assert.Equal(t, 70.0, r.Predicted)
		assert.Equal(t, 185.7, r.Score)
	}
}
