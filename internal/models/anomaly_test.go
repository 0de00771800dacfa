package models

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"
)

func TestAnomalyRecordJSONKeepsInfiniteScore(t *testing.T) {
	in := AnomalyRecord{
		Timestamp: time.Date(2016, 4, 12, 7, 21, 0, 0, time.UTC),
		Recorded:  88,
		Predicted: 0,
		Score:     math.Inf(1),
	}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if want := `"anomaly_score":"+Inf"`; !strings.Contains(string(data), want) {
		t.Fatalf("expected %s in %s", want, data)
	}

	var out AnomalyRecord
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !math.IsInf(out.Score, 1) || out.Recorded != 88 || !out.Timestamp.Equal(in.Timestamp) {
		t.Fatalf("unexpected round trip: %+v", out)
	}
}

func TestAnomalyRecordUnmarshalRejectsGarbage(t *testing.T) {
	var out AnomalyRecord
	if err := json.Unmarshal([]byte(`{"anomaly_score":"lots"}`), &out); err == nil {
		t.Fatalf("expected error for non-numeric score")
	}
}

func TestTimeRangeContains(t *testing.T) {
	start := time.Date(2016, 4, 12, 0, 0, 0, 0, time.UTC)
	rng := TimeRange{Start: start, End: start.Add(time.Hour)}
	if !rng.Contains(start) {
		t.Fatalf("start should be included")
	}
	if rng.Contains(start.Add(time.Hour)) {
		t.Fatalf("end should be excluded")
	}
	if !(TimeRange{}).Contains(start) {
		t.Fatalf("open range should contain everything")
	}
}
