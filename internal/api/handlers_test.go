package api

import (
	"context"
	"math"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/claudia-liauw/health-app/internal/models"
)

func TestFromStructDetectRequest(t *testing.T) {
	in, err := structpb.NewStruct(map[string]any{
		"subject_id": "2022484408",
		"samples": []any{
			map[string]any{"time": "2016-04-12T07:21:00Z", "value": 97.0},
			map[string]any{"time": "4/12/2016 7:21:05 AM", "value": nil},
			map[string]any{"time": "2016-04-12T07:21:10Z"},
		},
		"options": map[string]any{
			"interval":            "1s",
			"interpolation_limit": 0.0,
			"window_length":       64.0,
			"threshold":           15.0,
		},
	})
	if err != nil {
		t.Fatalf("build struct: %v", err)
	}

	req, err := FromStructDetectRequest(in)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if req.SubjectID != "2022484408" || len(req.Samples) != 3 {
		t.Fatalf("unexpected request: %+v", req)
	}
	if req.Samples[0].Value != 97 || req.Samples[0].SubjectID != "2022484408" {
		t.Fatalf("unexpected first sample: %+v", req.Samples[0])
	}
	if !req.Samples[1].Missing() || !req.Samples[2].Missing() {
		t.Fatalf("expected null and absent values to be missing")
	}
	if !req.Samples[1].Timestamp.Equal(time.Date(2016, 4, 12, 7, 21, 5, 0, time.UTC)) {
		t.Fatalf("unexpected timestamp: %s", req.Samples[1].Timestamp)
	}
	opts := req.Options
	if opts.Interval != time.Second || opts.WindowLength != 64 || opts.Stride != 0 {
		t.Fatalf("unexpected options: %+v", opts)
	}
	if opts.InterpolationLimit == nil || *opts.InterpolationLimit != 0 {
		t.Fatalf("expected explicit zero interpolation limit")
	}
	if opts.Threshold == nil || *opts.Threshold != 15 {
		t.Fatalf("expected threshold override")
	}
	if opts.MissingRatioMax != nil {
		t.Fatalf("expected missing ratio to keep default")
	}
}

func TestFromStructDetectRequestRejectsBadInput(t *testing.T) {
	cases := []map[string]any{
		{},
		{"samples": []any{"not-an-object"}},
		{"samples": []any{map[string]any{"time": "noon", "value": 1.0}}},
		{"samples": []any{map[string]any{"time": "2016-04-12T07:21:00Z", "value": "high"}}},
		{"samples": []any{map[string]any{"time": "2016-04-12T07:21:00Z"}}, "options": map[string]any{"stride": 2.5}},
		{"samples": []any{map[string]any{"time": "2016-04-12T07:21:00Z"}}, "options": map[string]any{"interval": "soon"}},
	}
	for i, fields := range cases {
		in, err := structpb.NewStruct(fields)
		if err != nil {
			t.Fatalf("case %d: build struct: %v", i, err)
		}
		if _, err := FromStructDetectRequest(in); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestReportStructRoundTrip(t *testing.T) {
	now := time.Date(2016, 4, 20, 0, 0, 0, 0, time.UTC)
	report := models.Report{
		SubjectID: "2022484408",
		Threshold: 20,
		Records: []models.AnomalyRecord{
			{Timestamp: now.Add(-time.Hour), Recorded: 200, Predicted: 70.3, Score: 184.7},
			{Timestamp: now.Add(-time.Minute), Recorded: 4, Predicted: 0, Score: math.Inf(1)},
		},
		Stats:      models.DetectionStats{RawSamples: 1000, GridPoints: 1000, WindowsKept: 1, SamplesScored: 512},
		DetectedAt: now,
	}

	st, err := ToStructReport(report)
	if err != nil {
		t.Fatalf("ToStructReport: %v", err)
	}
	decoded, err := FromStructReport(st)
	if err != nil {
		t.Fatalf("FromStructReport: %v", err)
	}
	if decoded.SubjectID != report.SubjectID || decoded.Stats != report.Stats {
		t.Fatalf("unexpected decoded report: %+v", decoded)
	}
	if len(decoded.Records) != 2 || decoded.Records[0].Score != 184.7 {
		t.Fatalf("unexpected records: %+v", decoded.Records)
	}
	if !math.IsInf(decoded.Records[1].Score, 1) {
		t.Fatalf("expected +Inf score to survive, got %v", decoded.Records[1].Score)
	}
	if !decoded.Records[0].Timestamp.Equal(report.Records[0].Timestamp) {
		t.Fatalf("timestamp mismatch: %s", decoded.Records[0].Timestamp)
	}
}

type detectorStub struct {
	subjectReq models.SubjectRequest
	err        error
}

func (d *detectorStub) Detect(ctx context.Context, req models.DetectRequest) (models.Report, error) {
	if d.err != nil {
		return models.Report{}, d.err
	}
	return models.Report{
		SubjectID: req.SubjectID,
		Threshold: 20,
		Records:   []models.AnomalyRecord{{Timestamp: req.Samples[0].Timestamp, Recorded: 200, Predicted: 70, Score: 185.7}},
	}, nil
}

func (d *detectorStub) DetectSubject(ctx context.Context, req models.SubjectRequest) (models.Report, error) {
	d.subjectReq = req
	return models.Report{SubjectID: req.SubjectID, Threshold: 20}, d.err
}

func dialStub(t *testing.T, detector Detector) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterAnomalyDetectorServer(srv, NewHandler(detector))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return NewClient(conn)
}

func TestServiceOverGRPC(t *testing.T) {
	detector := &detectorStub{}
	client := dialStub(t, detector)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	in, _ := structpb.NewStruct(map[string]any{
		"subject_id": "a",
		"samples":    []any{map[string]any{"time": "2016-04-12T07:21:00Z", "value": 200.0}},
	})
	out, err := client.Detect(ctx, in)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	report, err := FromStructReport(out)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.SubjectID != "a" || len(report.Records) != 1 || report.Records[0].Score != 185.7 {
		t.Fatalf("unexpected report: %+v", report)
	}

	subjectIn, _ := structpb.NewStruct(map[string]any{"subject_id": "b", "end": "2016-04-20"})
	if _, err := client.DetectSubject(ctx, subjectIn); err != nil {
		t.Fatalf("DetectSubject: %v", err)
	}
	if detector.subjectReq.SubjectID != "b" || !detector.subjectReq.Range.End.Equal(time.Date(2016, 4, 20, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected subject request: %+v", detector.subjectReq)
	}

	empty, _ := structpb.NewStruct(map[string]any{})
	if _, err := client.Detect(ctx, empty); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}

	detector.err = status.Error(codes.FailedPrecondition, "no windows left for inference")
	if _, err := client.Detect(ctx, in); status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected status to pass through, got %v", err)
	}
}
