package model

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// NewHandler exposes rec over the JSON reconstruction protocol spoken by HTTPReconstructor.
func NewHandler(logger *slog.Logger, rec Reconstructor) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		batch, err := decodeBatch(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		out, err := rec.Reconstruct(r.Context(), batch)
		if err != nil {
			logger.Error("reconstruction failed", slog.Int("batch", batch.Size()), slog.Any("error", err))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(toWire(out)); err != nil {
			logger.Warn("encode reconstruction", slog.Any("error", err))
		}
	})
}

func decodeBatch(r *http.Request) (Batch, error) {
	var req reconstructionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return Batch{}, fmt.Errorf("decode batch: %w", err)
	}
	if len(req.InputMask) != len(req.XEnc) {
		return Batch{}, fmt.Errorf("input_mask has %d rows, x_enc has %d", len(req.InputMask), len(req.XEnc))
	}
	return Batch{Sequences: fromWire(req.XEnc).Reconstruction, Masks: req.InputMask}, nil
}

func toWire(out Output) reconstructionResponse {
	resp := reconstructionResponse{Reconstruction: make([][][]wireFloat, len(out.Reconstruction))}
	for i, seq := range out.Reconstruction {
		resp.Reconstruction[i] = make([][]wireFloat, len(seq))
		for c, channel := range seq {
			values := make([]wireFloat, len(channel))
			for k, v := range channel {
				values[k] = wireFloat(v)
			}
			resp.Reconstruction[i][c] = values
		}
	}
	return resp
}
