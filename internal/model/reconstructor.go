// Package model adapts reconstruction models to the detection engine.
package model

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
)

// Batch is a model input of shape batch x channel x length plus a batch x length mask.
type Batch struct {
	Sequences [][][]float64
	Masks     [][]bool
}

// Size returns the number of sequences in the batch.
func (b Batch) Size() int {
	return len(b.Sequences)
}

// Output carries the reconstruction tensor returned by a model.
type Output struct {
	Reconstruction [][][]float64
}

// Reconstructor maps a batch of masked sequences to reconstructed sequences of the same shape.
type Reconstructor interface {
	Reconstruct(ctx context.Context, batch Batch) (Output, error)
}

// ReconstructorFunc adapts a function to the Reconstructor interface.
type ReconstructorFunc func(ctx context.Context, batch Batch) (Output, error)

// Reconstruct implements Reconstructor.
func (f ReconstructorFunc) Reconstruct(ctx context.Context, batch Batch) (Output, error) {
	return f(ctx, batch)
}

// CheckShape verifies that out has the same batch x channel x length shape as batch.
func CheckShape(batch Batch, out Output) error {
	if len(out.Reconstruction) != len(batch.Sequences) {
		return fmt.Errorf("reconstruction batch size %d, want %d", len(out.Reconstruction), len(batch.Sequences))
	}
	for i, seq := range batch.Sequences {
		got := out.Reconstruction[i]
		if len(got) != len(seq) {
			return fmt.Errorf("reconstruction %d has %d channels, want %d", i, len(got), len(seq))
		}
		for c := range seq {
			if len(got[c]) != len(seq[c]) {
				return fmt.Errorf("reconstruction %d channel %d has length %d, want %d", i, c, len(got[c]), len(seq[c]))
			}
		}
	}
	return nil
}

// wireFloat encodes NaN and infinities as JSON null.
type wireFloat float64

func (f wireFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

func (f *wireFloat) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = wireFloat(math.NaN())
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = wireFloat(v)
	return nil
}

// reconstructionRequest is the JSON body shared by the HTTP and SageMaker backends.
type reconstructionRequest struct {
	XEnc      [][][]wireFloat `json:"x_enc"`
	InputMask [][]bool        `json:"input_mask"`
}

type reconstructionResponse struct {
	Reconstruction [][][]wireFloat `json:"reconstruction"`
}

func encodeBatch(batch Batch) ([]byte, error) {
	req := reconstructionRequest{
		XEnc:      make([][][]wireFloat, len(batch.Sequences)),
		InputMask: batch.Masks,
	}
	for i, seq := range batch.Sequences {
		req.XEnc[i] = make([][]wireFloat, len(seq))
		for c, channel := range seq {
			values := make([]wireFloat, len(channel))
			for k, v := range channel {
				values[k] = wireFloat(v)
			}
			req.XEnc[i][c] = values
		}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal batch: %w", err)
	}
	return body, nil
}

func decodeOutput(data []byte) (Output, error) {
	var resp reconstructionResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return Output{}, fmt.Errorf("decode reconstruction: %w", err)
	}
	return fromWire(resp.Reconstruction), nil
}

func fromWire(in [][][]wireFloat) Output {
	out := Output{Reconstruction: make([][][]float64, len(in))}
	for i, seq := range in {
		out.Reconstruction[i] = make([][]float64, len(seq))
		for c, channel := range seq {
			values := make([]float64, len(channel))
			for k, v := range channel {
				values[k] = float64(v)
			}
			out.Reconstruction[i][c] = values
		}
	}
	return out
}
