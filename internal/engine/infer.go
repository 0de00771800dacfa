package engine

import (
	"context"
	"fmt"

	"github.com/claudia-liauw/health-app/internal/model"
)

// BatchPolicy selects which windows go into the single inference batch.
type BatchPolicy string

const (
	// BatchAll sends every window.
	BatchAll BatchPolicy = "all"
	// BatchDropLast sends all windows but the last one, so a single window leaves an
	// empty batch.
	BatchDropLast BatchPolicy = "drop-last"
)

// ParseBatchPolicy maps a config string to a BatchPolicy. Empty selects BatchAll.
func ParseBatchPolicy(value string) (BatchPolicy, error) {
	switch BatchPolicy(value) {
	case "", BatchAll:
		return BatchAll, nil
	case BatchDropLast:
		return BatchDropLast, nil
	default:
		return "", fmt.Errorf("unknown batch policy %q", value)
	}
}

// Reconstruction is the model output for one window, paired with the mask it was fed.
type Reconstruction struct {
	Values []float64
	Mask   []bool
}

// SelectBatch returns the windows that go through inference under policy.
func SelectBatch(set WindowSet, policy BatchPolicy) ([]Window, error) {
	windows := set.Windows
	if policy == BatchDropLast && len(windows) > 0 {
		windows = windows[:len(windows)-1]
	}
	if len(windows) == 0 {
		return nil, ErrInsufficientWindows
	}
	return windows, nil
}

// Infer runs all windows through rec in one call and unbatches the result.
// Any model failure is returned as *ModelInferenceError.
func Infer(ctx context.Context, windows []Window, rec model.Reconstructor) ([]Reconstruction, error) {
	if len(windows) == 0 {
		return nil, ErrInsufficientWindows
	}

	batch := model.Batch{
		Sequences: make([][][]float64, len(windows)),
		Masks:     make([][]bool, len(windows)),
	}
	for i, w := range windows {
		batch.Sequences[i] = [][]float64{w.Sequence}
		batch.Masks[i] = w.Mask
	}

	out, err := rec.Reconstruct(ctx, batch)
	if err != nil {
		return nil, &ModelInferenceError{Err: err}
	}
	if err := model.CheckShape(batch, out); err != nil {
		return nil, &ModelInferenceError{Err: err}
	}

	recs := make([]Reconstruction, len(windows))
	for i, w := range windows {
		recs[i] = Reconstruction{Values: out.Reconstruction[i][0], Mask: w.Mask}
	}
	return recs, nil
}
