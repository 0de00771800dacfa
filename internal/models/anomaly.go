package models

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// AnomalyRecord is one flagged sample of a detection report.
type AnomalyRecord struct {
	Timestamp time.Time `json:"time"`
	Recorded  float64   `json:"recorded"`
	Predicted float64   `json:"predicted"`
	Score     float64   `json:"anomaly_score"`
}

// MarshalJSON encodes non-finite values as strings ("+Inf", "NaN"), which plain JSON
// numbers cannot represent. A zero prediction scores +Inf.
func (r AnomalyRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Timestamp time.Time `json:"time"`
		Recorded  jsonFloat `json:"recorded"`
		Predicted jsonFloat `json:"predicted"`
		Score     jsonFloat `json:"anomaly_score"`
	}{r.Timestamp, jsonFloat(r.Recorded), jsonFloat(r.Predicted), jsonFloat(r.Score)})
}

// UnmarshalJSON accepts the encoding produced by MarshalJSON.
func (r *AnomalyRecord) UnmarshalJSON(data []byte) error {
	var wire struct {
		Timestamp time.Time `json:"time"`
		Recorded  jsonFloat `json:"recorded"`
		Predicted jsonFloat `json:"predicted"`
		Score     jsonFloat `json:"anomaly_score"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*r = AnomalyRecord{
		Timestamp: wire.Timestamp,
		Recorded:  float64(wire.Recorded),
		Predicted: float64(wire.Predicted),
		Score:     float64(wire.Score),
	}
	return nil
}

type jsonFloat float64

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return json.Marshal(strconv.FormatFloat(v, 'f', -1, 64))
	}
	return json.Marshal(v)
}

func (f *jsonFloat) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*f = jsonFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = jsonFloat(v)
	return nil
}

// DetectionStats summarises how much of the input reached the scorer.
type DetectionStats struct {
	RawSamples     int `json:"raw_samples"`
	GridPoints     int `json:"grid_points"`
	WindowsKept    int `json:"windows_kept"`
	WindowsDropped int `json:"windows_dropped"`
	SamplesScored  int `json:"samples_scored"`
}

// Report is the outcome of a detection run handed to the presentation layer.
type Report struct {
	SubjectID  string          `json:"subject_id,omitempty"`
	Range      TimeRange       `json:"range"`
	Threshold  float64         `json:"threshold"`
	Records    []AnomalyRecord `json:"records"`
	Stats      DetectionStats  `json:"stats"`
	DetectedAt time.Time       `json:"detected_at"`
}
