package engine

import (
	"math"
	"time"

	"github.com/claudia-liauw/health-app/internal/models"
)

// DefaultThreshold is the anomaly score cut-off in percent.
const DefaultThreshold = 20.0

// RelativeError returns |recorded-predicted| / predicted * 100. The denominator is the
// prediction alone, so a zero prediction yields +Inf (NaN when recorded is also zero) and a
// negative prediction yields a negative score.
func RelativeError(recorded, predicted float64) float64 {
	return math.Abs(recorded-predicted) / predicted * 100
}

// Round1 rounds to one decimal place, halves to even.
func Round1(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return math.RoundToEven(v*10) / 10
}

// Score flattens windows and their reconstructions into one aligned sequence, scores every
// sample and keeps those whose rounded score is strictly above threshold. Timestamps are
// truncated to the flattened length. The second return value is the number of samples
// scored.
func Score(windows []Window, recs []Reconstruction, timestamps []time.Time, threshold float64) ([]models.AnomalyRecord, int) {
	recorded := flattenWindows(windows)
	predicted := flattenReconstructions(recs)

	n := len(recorded)
	if len(predicted) < n {
		n = len(predicted)
	}
	if len(timestamps) < n {
		n = len(timestamps)
	}

	records := make([]models.AnomalyRecord, 0)
	for i := 0; i < n; i++ {
		score := Round1(RelativeError(recorded[i], predicted[i]))
		// NaN never passes, so missing samples are never reported.
		if !(score > threshold) {
			continue
		}
		records = append(records, models.AnomalyRecord{
			Timestamp: timestamps[i],
			Recorded:  Round1(recorded[i]),
			Predicted: Round1(predicted[i]),
			Score:     score,
		})
	}
	return records, n
}

func flattenWindows(windows []Window) []float64 {
	out := make([]float64, 0, len(windows)*windowLen(windows))
	for _, w := range windows {
		out = append(out, w.Sequence...)
	}
	return out
}

func flattenReconstructions(recs []Reconstruction) []float64 {
	total := 0
	for _, r := range recs {
		total += len(r.Values)
	}
	out := make([]float64, 0, total)
	for _, r := range recs {
		out = append(out, r.Values...)
	}
	return out
}

func windowLen(windows []Window) int {
	if len(windows) == 0 {
		return 0
	}
	return windows[0].Len()
}
