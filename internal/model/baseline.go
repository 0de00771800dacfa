package model

import (
	"context"
	"math"
)

// BaselineReconstructor reconstructs every channel as the mean of its valid values.
// It stands in for a trained model in local development and tests.
type BaselineReconstructor struct{}

// Reconstruct implements Reconstructor.
func (BaselineReconstructor) Reconstruct(_ context.Context, batch Batch) (Output, error) {
	out := Output{Reconstruction: make([][][]float64, len(batch.Sequences))}
	for i, seq := range batch.Sequences {
		var mask []bool
		if i < len(batch.Masks) {
			mask = batch.Masks[i]
		}
		out.Reconstruction[i] = make([][]float64, len(seq))
		for c, channel := range seq {
			mean := maskedMean(channel, mask)
			values := make([]float64, len(channel))
			for k := range values {
				values[k] = mean
			}
			out.Reconstruction[i][c] = values
		}
	}
	return out, nil
}

func maskedMean(values []float64, mask []bool) float64 {
	sum, n := 0.0, 0
	for k, v := range values {
		if k < len(mask) && !mask[k] {
			continue
		}
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}
