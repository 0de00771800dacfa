package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/claudia-liauw/health-app/internal/cache"
	"github.com/claudia-liauw/health-app/internal/engine"
	"github.com/claudia-liauw/health-app/internal/metrics"
	"github.com/claudia-liauw/health-app/internal/models"
	"github.com/claudia-liauw/health-app/internal/queue"
	"github.com/claudia-liauw/health-app/internal/utils"
)

// ReadingSource defines the storage operations required to run detection on stored readings.
type ReadingSource interface {
	FetchSamples(ctx context.Context, subjectID string, rng models.TimeRange) ([]models.Sample, error)
	Subjects(ctx context.Context) ([]string, error)
}

// DetectionService runs the detection pipeline on behalf of API and CLI callers.
type DetectionService struct {
	logger    *slog.Logger
	pipeline  *engine.Pipeline
	store     ReadingSource
	publisher queue.Publisher
	reports   *cache.ReportCache
	latencies *utils.LatencyTracker
	now       func() time.Time
}

// NewDetectionService constructs the detection service facade. store and publisher are optional.
func NewDetectionService(logger *slog.Logger, pipeline *engine.Pipeline, store ReadingSource, publisher queue.Publisher) *DetectionService {
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = queue.NopPublisher{}
	}
	return &DetectionService{
		logger:    logger,
		pipeline:  pipeline,
		store:     store,
		publisher: publisher,
		latencies: utils.NewLatencyTracker(1024),
		now:       time.Now,
	}
}

// WithReportCache enables caching of DetectSubject reports. Inline-sample requests are never cached.
func (s *DetectionService) WithReportCache(reports *cache.ReportCache) *DetectionService {
	s.reports = reports
	return s
}

// Detect scores caller-supplied samples. Errors are gRPC status errors.
func (s *DetectionService) Detect(ctx context.Context, req models.DetectRequest) (models.Report, error) {
	if s.pipeline == nil {
		return models.Report{}, status.Error(codes.FailedPrecondition, "pipeline not configured")
	}
	if len(req.Samples) == 0 {
		return models.Report{}, status.Error(codes.InvalidArgument, "samples are required")
	}

	s.logger.Debug("Detect called", slog.String("subject_id", req.SubjectID), slog.Int("samples", len(req.Samples)))
	return s.run(ctx, req.SubjectID, models.TimeRange{}, req.Samples, req.Options)
}

// DetectSubject loads a subject's stored readings within the range and scores them.
// An empty subject id selects the subject whose readings were stored first.
func (s *DetectionService) DetectSubject(ctx context.Context, req models.SubjectRequest) (models.Report, error) {
	if s.pipeline == nil {
		return models.Report{}, status.Error(codes.FailedPrecondition, "pipeline not configured")
	}
	if s.store == nil {
		return models.Report{}, status.Error(codes.FailedPrecondition, "reading store not configured")
	}
	if !req.Range.Start.IsZero() && !req.Range.End.IsZero() && !req.Range.Start.Before(req.Range.End) {
		return models.Report{}, status.Error(codes.InvalidArgument, "range start must be before end")
	}

	subjectID := req.SubjectID
	if subjectID == "" {
		subjects, err := s.store.Subjects(ctx)
		if err != nil {
			s.logger.Error("list subjects failed", slog.Any("error", err))
			return models.Report{}, status.Error(codes.Internal, "failed to list subjects")
		}
		if len(subjects) == 0 {
			return models.Report{}, status.Error(codes.NotFound, "no stored readings")
		}
		subjectID = subjects[0]
	}

	key := cache.ReportKey(subjectID, req.Range, req.Options)
	if s.reports != nil {
		report, ok := s.reports.Get(ctx, key)
		metrics.ObserveCacheLookup(ok)
		if ok {
			s.logger.Debug("report served from cache", slog.String("subject_id", subjectID))
			return report, nil
		}
	}

	samples, err := s.store.FetchSamples(ctx, subjectID, req.Range)
	if err != nil {
		s.logger.Error("fetch samples failed", slog.String("subject_id", subjectID), slog.Any("error", err))
		return models.Report{}, status.Error(codes.Internal, "failed to load readings")
	}
	if len(samples) == 0 {
		return models.Report{}, status.Error(codes.NotFound, fmt.Sprintf("no readings for subject %s in range", subjectID))
	}

	s.logger.Debug("DetectSubject called", slog.String("subject_id", subjectID), slog.Int("samples", len(samples)))
	report, err := s.run(ctx, subjectID, req.Range, samples, req.Options)
	if err != nil {
		return models.Report{}, err
	}
	s.reports.Put(ctx, key, report)
	return report, nil
}

func (s *DetectionService) run(ctx context.Context, subjectID string, rng models.TimeRange, samples []models.Sample, opts models.DetectionOptions) (models.Report, error) {
	start := time.Now()
	result, err := s.pipeline.Detect(ctx, samples, opts)
	duration := time.Since(start)
	if err != nil {
		metrics.ObserveDetection(duration, metrics.OutcomeError)
		s.logger.Error("detection failed", slog.String("subject_id", subjectID), slog.Any("error", err))
		return models.Report{}, toStatus(err)
	}
	s.latencies.Observe(duration)
	metrics.ObserveDetection(duration, metrics.OutcomeSuccess)
	if total := s.latencies.Total(); total%20 == 0 {
		p95 := s.latencies.Percentile(95)
		s.logger.Info("detection latency", slog.Duration("p95", p95), slog.Int("samples", s.latencies.Count()))
	}

	report := models.Report{
		SubjectID:  subjectID,
		Range:      rng,
		Threshold:  result.Threshold,
		Records:    result.Records,
		Stats:      result.Stats,
		DetectedAt: s.now().UTC(),
	}
	s.logger.Info("detection completed",
		slog.String("subject_id", subjectID),
		slog.Int("anomalies", len(report.Records)),
		slog.Int("windows", report.Stats.WindowsKept),
		slog.Duration("duration", duration),
	)

	if err := s.publisher.PublishReport(ctx, report); err != nil {
		s.logger.Warn("publish report failed", slog.String("subject_id", subjectID), slog.Any("error", err))
	}
	return report, nil
}

// LatencyP95 returns the current p95 detection latency.
func (s *DetectionService) LatencyP95() time.Duration {
	if s.latencies == nil {
		return 0
	}
	return s.latencies.Percentile(95)
}

func toStatus(err error) error {
	var inferErr *engine.ModelInferenceError
	switch {
	case errors.Is(err, engine.ErrEmptyInput),
		errors.Is(err, engine.ErrInvalidInterval),
		errors.Is(err, engine.ErrInvalidInterpolationLimit),
		errors.Is(err, engine.ErrInvalidWindowing):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, engine.ErrInsufficientWindows):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.As(err, &inferErr):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, fmt.Sprintf("detection failed: %v", err))
	}
}
