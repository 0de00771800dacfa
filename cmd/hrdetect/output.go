package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/claudia-liauw/health-app/internal/models"
)

func writeReport(w io.Writer, format string, report models.Report) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "table", "":
		return writeTable(w, report)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func writeTable(w io.Writer, report models.Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "time\trecorded\tpredicted\tanomaly_score")
	for _, r := range report.Records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			r.Timestamp.UTC().Format(time.DateTime),
			formatValue(r.Recorded),
			formatValue(r.Predicted),
			strconv.FormatFloat(r.Score, 'f', 1, 64),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d anomalies above %.1f%% (%d windows scored, %d dropped)\n",
		len(report.Records), report.Threshold, report.Stats.WindowsKept, report.Stats.WindowsDropped)
	return err
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
