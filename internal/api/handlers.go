package api

import (
	"context"
	"fmt"
	"math"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/claudia-liauw/health-app/internal/models"
	"github.com/claudia-liauw/health-app/internal/utils"
)

// Detector is the domain service behind the gRPC surface.
type Detector interface {
	Detect(ctx context.Context, req models.DetectRequest) (models.Report, error)
	DetectSubject(ctx context.Context, req models.SubjectRequest) (models.Report, error)
}

// Handler adapts a Detector to AnomalyDetectorServer.
type Handler struct {
	detector Detector
}

// NewHandler wraps detector for registration on a gRPC server.
func NewHandler(detector Detector) *Handler {
	return &Handler{detector: detector}
}

// Detect implements AnomalyDetectorServer.
func (h *Handler) Detect(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := FromStructDetectRequest(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	report, err := h.detector.Detect(ctx, req)
	if err != nil {
		return nil, err
	}
	return ToStructReport(report)
}

// DetectSubject implements AnomalyDetectorServer.
func (h *Handler) DetectSubject(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := FromStructSubjectRequest(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	report, err := h.detector.DetectSubject(ctx, req)
	if err != nil {
		return nil, err
	}
	return ToStructReport(report)
}

// FromStructDetectRequest maps {"subject_id", "samples": [{"time", "value"}], "options"} into a
// DetectRequest. A null or absent value marks a missing reading.
func FromStructDetectRequest(in *structpb.Struct) (models.DetectRequest, error) {
	if in == nil {
		return models.DetectRequest{}, fmt.Errorf("request is nil")
	}
	fields := in.GetFields()

	req := models.DetectRequest{SubjectID: fields["subject_id"].GetStringValue()}
	list := fields["samples"].GetListValue()
	if list == nil || len(list.GetValues()) == 0 {
		return models.DetectRequest{}, fmt.Errorf("samples are required")
	}

	req.Samples = make([]models.Sample, 0, len(list.GetValues()))
	for i, item := range list.GetValues() {
		entry := item.GetStructValue()
		if entry == nil {
			return models.DetectRequest{}, fmt.Errorf("samples[%d] must be an object", i)
		}
		sample, err := sampleFromFields(entry.GetFields())
		if err != nil {
			return models.DetectRequest{}, fmt.Errorf("samples[%d]: %w", i, err)
		}
		sample.SubjectID = req.SubjectID
		req.Samples = append(req.Samples, sample)
	}

	opts, err := optionsFromStruct(fields["options"].GetStructValue())
	if err != nil {
		return models.DetectRequest{}, err
	}
	req.Options = opts
	return req, nil
}

// FromStructSubjectRequest maps {"subject_id", "start", "end", "options"} into a SubjectRequest.
func FromStructSubjectRequest(in *structpb.Struct) (models.SubjectRequest, error) {
	if in == nil {
		return models.SubjectRequest{}, fmt.Errorf("request is nil")
	}
	fields := in.GetFields()

	req := models.SubjectRequest{SubjectID: fields["subject_id"].GetStringValue()}
	if v := fields["start"].GetStringValue(); v != "" {
		start, err := utils.ParseTimestamp(v)
		if err != nil {
			return models.SubjectRequest{}, fmt.Errorf("start: %w", err)
		}
		req.Range.Start = start
	}
	if v := fields["end"].GetStringValue(); v != "" {
		end, err := utils.ParseTimestamp(v)
		if err != nil {
			return models.SubjectRequest{}, fmt.Errorf("end: %w", err)
		}
		req.Range.End = end
	}

	opts, err := optionsFromStruct(fields["options"].GetStructValue())
	if err != nil {
		return models.SubjectRequest{}, err
	}
	req.Options = opts
	return req, nil
}

// ToStructReport converts a report into its struct representation.
func ToStructReport(report models.Report) (*structpb.Struct, error) {
	records := make([]any, 0, len(report.Records))
	for _, rec := range report.Records {
		records = append(records, map[string]any{
			"time":          rec.Timestamp.UTC().Format(time.RFC3339Nano),
			"recorded":      rec.Recorded,
			"predicted":     rec.Predicted,
			"anomaly_score": rec.Score,
		})
	}

	out := map[string]any{
		"subject_id":  report.SubjectID,
		"threshold":   report.Threshold,
		"records":     records,
		"detected_at": report.DetectedAt.UTC().Format(time.RFC3339Nano),
		"stats": map[string]any{
			"raw_samples":     report.Stats.RawSamples,
			"grid_points":     report.Stats.GridPoints,
			"windows_kept":    report.Stats.WindowsKept,
			"windows_dropped": report.Stats.WindowsDropped,
			"samples_scored":  report.Stats.SamplesScored,
		},
	}
	if !report.Range.Start.IsZero() {
		out["start"] = report.Range.Start.UTC().Format(time.RFC3339Nano)
	}
	if !report.Range.End.IsZero() {
		out["end"] = report.Range.End.UTC().Format(time.RFC3339Nano)
	}

	st, err := structpb.NewStruct(out)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode report: %v", err))
	}
	return st, nil
}

// FromStructReport decodes a report produced by ToStructReport.
func FromStructReport(in *structpb.Struct) (models.Report, error) {
	if in == nil {
		return models.Report{}, fmt.Errorf("report is nil")
	}
	fields := in.GetFields()
	report := models.Report{
		SubjectID: fields["subject_id"].GetStringValue(),
		Threshold: fields["threshold"].GetNumberValue(),
	}
	if v := fields["detected_at"].GetStringValue(); v != "" {
		ts, err := utils.ParseTimestamp(v)
		if err != nil {
			return models.Report{}, fmt.Errorf("detected_at: %w", err)
		}
		report.DetectedAt = ts
	}

	stats := fields["stats"].GetStructValue().GetFields()
	report.Stats = models.DetectionStats{
		RawSamples:     int(stats["raw_samples"].GetNumberValue()),
		GridPoints:     int(stats["grid_points"].GetNumberValue()),
		WindowsKept:    int(stats["windows_kept"].GetNumberValue()),
		WindowsDropped: int(stats["windows_dropped"].GetNumberValue()),
		SamplesScored:  int(stats["samples_scored"].GetNumberValue()),
	}

	for i, item := range fields["records"].GetListValue().GetValues() {
		rec := item.GetStructValue().GetFields()
		ts, err := utils.ParseTimestamp(rec["time"].GetStringValue())
		if err != nil {
			return models.Report{}, fmt.Errorf("records[%d]: %w", i, err)
		}
		report.Records = append(report.Records, models.AnomalyRecord{
			Timestamp: ts,
			Recorded:  rec["recorded"].GetNumberValue(),
			Predicted: rec["predicted"].GetNumberValue(),
			Score:     rec["anomaly_score"].GetNumberValue(),
		})
	}
	return report, nil
}

func sampleFromFields(fields map[string]*structpb.Value) (models.Sample, error) {
	ts, err := utils.ParseTimestamp(fields["time"].GetStringValue())
	if err != nil {
		return models.Sample{}, err
	}
	sample := models.Sample{Timestamp: ts, Value: models.MissingValue()}
	switch v := fields["value"].GetKind().(type) {
	case nil, *structpb.Value_NullValue:
	case *structpb.Value_NumberValue:
		sample.Value = v.NumberValue
	default:
		return models.Sample{}, fmt.Errorf("value must be a number or null")
	}
	return sample, nil
}

func optionsFromStruct(in *structpb.Struct) (models.DetectionOptions, error) {
	var opts models.DetectionOptions
	if in == nil {
		return opts, nil
	}
	fields := in.GetFields()

	if v, ok := fields["interval"]; ok {
		d, err := time.ParseDuration(v.GetStringValue())
		if err != nil {
			return opts, fmt.Errorf("options.interval: %w", err)
		}
		opts.Interval = d
	}
	if v, ok := fields["interpolation_limit"]; ok {
		n, err := wholeNumber(v, "options.interpolation_limit")
		if err != nil {
			return opts, err
		}
		opts.InterpolationLimit = &n
	}
	if v, ok := fields["window_length"]; ok {
		n, err := wholeNumber(v, "options.window_length")
		if err != nil {
			return opts, err
		}
		opts.WindowLength = n
	}
	if v, ok := fields["stride"]; ok {
		n, err := wholeNumber(v, "options.stride")
		if err != nil {
			return opts, err
		}
		opts.Stride = n
	}
	if v, ok := fields["missing_ratio_max"]; ok {
		f := v.GetNumberValue()
		opts.MissingRatioMax = &f
	}
	if v, ok := fields["threshold"]; ok {
		f := v.GetNumberValue()
		opts.Threshold = &f
	}
	return opts, nil
}

func wholeNumber(v *structpb.Value, name string) (int, error) {
	f := v.GetNumberValue()
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%s must be a whole number, got %v", name, f)
	}
	return int(f), nil
}
