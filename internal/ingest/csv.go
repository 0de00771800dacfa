// Package ingest reads heart-rate exports into samples.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/claudia-liauw/health-app/internal/models"
	"github.com/claudia-liauw/health-app/internal/utils"
)

// Filter restricts which rows of an export are returned.
type Filter struct {
	// SubjectID keeps rows of one subject. Empty keeps the first subject in the file.
	SubjectID string
	// AllSubjects disables subject filtering entirely.
	AllSubjects bool
	Range       models.TimeRange
}

// ReadCSV parses an Id,Time,Value export. Column order is taken from the header.
func ReadCSV(r io.Reader, filter Filter) ([]models.Sample, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("csv: missing header")
		}
		return nil, fmt.Errorf("csv header: %w", err)
	}
	idCol, timeCol, valueCol, err := columns(header)
	if err != nil {
		return nil, err
	}

	subject := filter.SubjectID
	samples := make([]models.Sample, 0)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv: %w", err)
		}
		line, _ := reader.FieldPos(0)

		id := strings.TrimSpace(record[idCol])
		if !filter.AllSubjects {
			if subject == "" {
				subject = id
			}
			if id != subject {
				continue
			}
		}

		ts, err := utils.ParseTimestamp(record[timeCol])
		if err != nil {
			return nil, utils.NewAppError("csv", fmt.Sprintf("line %d", line), err)
		}
		if !filter.Range.Contains(ts) {
			continue
		}

		value := models.MissingValue()
		if raw := strings.TrimSpace(record[valueCol]); raw != "" {
			value, err = strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, utils.NewAppError("csv", fmt.Sprintf("line %d: value %q", line, raw), err)
			}
		}
		samples = append(samples, models.Sample{SubjectID: id, Timestamp: ts, Value: value})
	}
	return samples, nil
}

func columns(header []string) (int, int, int, error) {
	idCol, timeCol, valueCol := -1, -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))) {
		case "id":
			idCol = i
		case "time":
			timeCol = i
		case "value":
			valueCol = i
		}
	}
	if idCol < 0 || timeCol < 0 || valueCol < 0 {
		return 0, 0, 0, fmt.Errorf("csv: header must contain Id, Time and Value, got %v", header)
	}
	return idCol, timeCol, valueCol, nil
}
