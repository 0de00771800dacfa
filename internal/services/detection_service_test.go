package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/claudia-liauw/health-app/internal/cache"
	"github.com/claudia-liauw/health-app/internal/engine"
	"github.com/claudia-liauw/health-app/internal/model"
	"github.com/claudia-liauw/health-app/internal/models"
)

type readingStoreStub struct {
	samples   map[string][]models.Sample
	requested string
	rng       models.TimeRange
	err       error
}

func (r *readingStoreStub) FetchSamples(ctx context.Context, subjectID string, rng models.TimeRange) ([]models.Sample, error) {
	r.requested = subjectID
	r.rng = rng
	if r.err != nil {
		return nil, r.err
	}
	var out []models.Sample
	for _, s := range r.samples[subjectID] {
		if rng.Contains(s.Timestamp) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *readingStoreStub) Subjects(ctx context.Context) ([]string, error) {
	return []string{"2022484408", "2026352035"}, nil
}

type publisherStub struct {
	reports []models.Report
	err     error
}

func (p *publisherStub) PublishReport(ctx context.Context, report models.Report) error {
	p.reports = append(p.reports, report)
	return p.err
}

func (p *publisherStub) Close() {}

var base = time.Date(2016, 4, 12, 7, 0, 0, 0, time.UTC)

func spikeSeries(subjectID string, n, spikeAt int) []models.Sample {
	samples := make([]models.Sample, n)
	for i := range samples {
		value := 70.0
		if i == spikeAt {
			value = 200
		}
		samples[i] = models.Sample{SubjectID: subjectID, Timestamp: base.Add(time.Duration(i) * time.Second), Value: value}
	}
	return samples
}

func newTestPipeline(rec model.Reconstructor) *engine.Pipeline {
	cfg := engine.DefaultConfig()
	cfg.Interval = time.Second
	return engine.NewPipeline(nil, rec, cfg)
}

func TestDetectFlagsSpike(t *testing.T) {
	publisher := &publisherStub{}
	service := NewDetectionService(nil, newTestPipeline(model.BaselineReconstructor{}), nil, publisher)

	report, err := service.Detect(context.Background(), models.DetectRequest{
		SubjectID: "2022484408",
		Samples:   spikeSeries("2022484408", 1000, 500),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Records) != 1 {
		t.Fatalf("expected one anomaly, got %+v", report.Records)
	}
	rec := report.Records[0]
	if !rec.Timestamp.Equal(base.Add(500 * time.Second)) {
		t.Fatalf("unexpected anomaly time: %s", rec.Timestamp)
	}
	if rec.Score != 184.7 || rec.Recorded != 200 || rec.Predicted != 70.3 {
		t.Fatalf("unexpected anomaly record: %+v", rec)
	}
	if report.Stats.WindowsKept != 1 || report.Stats.SamplesScored != 512 {
		t.Fatalf("unexpected stats: %+v", report.Stats)
	}
	if len(publisher.reports) != 1 || publisher.reports[0].SubjectID != "2022484408" {
		t.Fatalf("expected report to be published, got %+v", publisher.reports)
	}
}

func TestDetectPublishFailureDoesNotFailRequest(t *testing.T) {
	publisher := &publisherStub{err: errors.New("nats down")}
	service := NewDetectionService(nil, newTestPipeline(model.BaselineReconstructor{}), nil, publisher)

	if _, err := service.Detect(context.Background(), models.DetectRequest{Samples: spikeSeries("a", 600, 10)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDetectErrorMapping(t *testing.T) {
	failing := model.ReconstructorFunc(func(ctx context.Context, batch model.Batch) (model.Output, error) {
		return model.Output{}, errors.New("connection refused")
	})
	negative := -1

	cases := []struct {
		name     string
		pipeline *engine.Pipeline
		req      models.DetectRequest
		code     codes.Code
	}{
		{
			name:     "no samples",
			pipeline: newTestPipeline(model.BaselineReconstructor{}),
			req:      models.DetectRequest{},
			code:     codes.InvalidArgument,
		},
		{
			name:     "bad interval",
			pipeline: newTestPipeline(model.BaselineReconstructor{}),
			req:      models.DetectRequest{Samples: spikeSeries("a", 10, -1), Options: models.DetectionOptions{Interval: -time.Second}},
			code:     codes.InvalidArgument,
		},
		{
			name:     "bad interpolation limit",
			pipeline: newTestPipeline(model.BaselineReconstructor{}),
			req:      models.DetectRequest{Samples: spikeSeries("a", 10, -1), Options: models.DetectionOptions{InterpolationLimit: &negative}},
			code:     codes.InvalidArgument,
		},
		{
			name:     "series shorter than a window",
			pipeline: newTestPipeline(model.BaselineReconstructor{}),
			req:      models.DetectRequest{Samples: spikeSeries("a", 100, -1)},
			code:     codes.FailedPrecondition,
		},
		{
			name:     "model failure",
			pipeline: newTestPipeline(failing),
			req:      models.DetectRequest{Samples: spikeSeries("a", 600, -1)},
			code:     codes.Unavailable,
		},
		{
			name: "pipeline missing",
			req:  models.DetectRequest{Samples: spikeSeries("a", 600, -1)},
			code: codes.FailedPrecondition,
		},
	}

	for _, tc := range cases {
		service := NewDetectionService(nil, tc.pipeline, nil, nil)
		_, err := service.Detect(context.Background(), tc.req)
		if status.Code(err) != tc.code {
			t.Fatalf("%s: expected %s, got %v", tc.name, tc.code, err)
		}
	}
}

func TestDetectSubjectLoadsStoredReadings(t *testing.T) {
	store := &readingStoreStub{samples: map[string][]models.Sample{
		"2022484408": spikeSeries("2022484408", 1000, 500),
	}}
	service := NewDetectionService(nil, newTestPipeline(model.BaselineReconstructor{}), store, nil)

	rng := models.TimeRange{End: base.Add(24 * time.Hour)}
	report, err := service.DetectSubject(context.Background(), models.SubjectRequest{Range: rng})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.requested != "2022484408" {
		t.Fatalf("expected first subject to be selected, got %q", store.requested)
	}
	if !store.rng.End.Equal(rng.End) {
		t.Fatalf("range not forwarded: %+v", store.rng)
	}
	if report.SubjectID != "2022484408" || len(report.Records) != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestDetectSubjectErrors(t *testing.T) {
	pipeline := newTestPipeline(model.BaselineReconstructor{})

	service := NewDetectionService(nil, pipeline, nil, nil)
	if _, err := service.DetectSubject(context.Background(), models.SubjectRequest{SubjectID: "a"}); status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected failed precondition without store, got %v", err)
	}

	store := &readingStoreStub{samples: map[string][]models.Sample{}}
	service = NewDetectionService(nil, pipeline, store, nil)
	if _, err := service.DetectSubject(context.Background(), models.SubjectRequest{SubjectID: "missing"}); status.Code(err) != codes.NotFound {
		t.Fatalf("expected not found, got %v", err)
	}

	bad := models.SubjectRequest{SubjectID: "a", Range: models.TimeRange{Start: base.Add(time.Hour), End: base}}
	if _, err := service.DetectSubject(context.Background(), bad); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected invalid argument for inverted range, got %v", err)
	}

	store.err = errors.New("disk full")
	if _, err := service.DetectSubject(context.Background(), models.SubjectRequest{SubjectID: "a"}); status.Code(err) != codes.Internal {
		t.Fatalf("expected internal error, got %v", err)
	}
}

func TestDetectSubjectServesCachedReport(t *testing.T) {
	store := &readingStoreStub{samples: map[string][]models.Sample{
		"2022484408": spikeSeries("2022484408", 1000, 500),
	}}
	publisher := &publisherStub{}
	reports := cache.NewReportCache(nil, cache.NewMemoryProvider(), time.Minute)
	service := NewDetectionService(nil, newTestPipeline(model.BaselineReconstructor{}), store, publisher).WithReportCache(reports)

	req := models.SubjectRequest{SubjectID: "2022484408"}
	first, err := service.DetectSubject(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	store.requested = ""
	second, err := service.DetectSubject(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.requested != "" {
		t.Fatalf("expected cached report, store was queried for %q", store.requested)
	}
	if len(second.Records) != len(first.Records) || second.Records[0].Score != first.Records[0].Score {
		t.Fatalf("cached report differs: %+v vs %+v", second, first)
	}
	if len(publisher.reports) != 1 {
		t.Fatalf("expected cached response not to be republished, got %d", len(publisher.reports))
	}

	threshold := 500.0
	req.Options.Threshold = &threshold
	if _, err := service.DetectSubject(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.requested != "2022484408" {
		t.Fatalf("different options must bypass the cached report")
	}
}
