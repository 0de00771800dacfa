package main

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claudia-liauw/health-app/internal/models"
)

func sampleReport() models.Report {
	return models.Report{
		SubjectID: "2022484408",
		Threshold: 20,
		Records: []models.AnomalyRecord{
			{Timestamp: time.Date(2016, 4, 12, 7, 21, 0, 0, time.UTC), Recorded: 200, Predicted: 70.3, Score: 184.7},
			{Timestamp: time.Date(2016, 4, 12, 7, 21, 5, 0, time.UTC), Recorded: 12, Predicted: 0, Score: math.Inf(1)},
		},
		Stats: models.DetectionStats{WindowsKept: 3, WindowsDropped: 1},
	}
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, "table", sampleReport()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, []string{"time", "recorded", "predicted", "anomaly_score"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"2016-04-12", "07:21:00", "200.00", "70.30", "184.7"}, strings.Fields(lines[1]))
	assert.Equal(t, "+Inf", strings.Fields(lines[2])[4])
	assert.Equal(t, "2 anomalies above 20.0% (3 windows scored, 1 dropped)", lines[4])
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, "json", sampleReport()))
	assert.Contains(t, buf.String(), `"anomaly_score": 184.7`)
	assert.Contains(t, buf.String(), `"anomaly_score": "+Inf"`)
	assert.Contains(t, buf.String(), `"subject_id": "2022484408"`)
}

func TestWriteReportRejectsUnknownFormat(t *testing.T) {
	assert.Error(t, writeReport(&bytes.Buffer{}, "xml", sampleReport()))
}

func TestParseRange(t *testing.T) {
	rng, err := parseRange("", "2016-04-20")
	require.NoError(t, err)
	assert.True(t, rng.Start.IsZero())
	assert.Equal(t, time.Date(2016, 4, 20, 0, 0, 0, 0, time.UTC), rng.End)

	_, err = parseRange("yesterday", "")
	assert.Error(t, err)
}

func TestOptionsToMap(t *testing.T) {
	threshold := 35.0
	out := optionsToMap(models.DetectionOptions{Interval: 10 * time.Second, WindowLength: 256, Threshold: &threshold})
	assert.Equal(t, map[string]any{"interval": "10s", "window_length": 256, "threshold": 35.0}, out)
}

func TestRootCommandWiring(t *testing.T) {
	cmd := newRootCommand()
	names := make([]string, 0)
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"detect", "import", "subjects"})
}
