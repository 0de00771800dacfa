package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/claudia-liauw/health-app/internal/config"
	"github.com/claudia-liauw/health-app/internal/metrics"
	"github.com/claudia-liauw/health-app/internal/model"
	"github.com/claudia-liauw/health-app/internal/models"
)

// Config holds the detection knobs. Zero values are replaced by DefaultConfig values in
// NewPipeline, except InterpolationLimit and MissingRatioMax where zero is meaningful.
type Config struct {
	Interval           time.Duration
	InterpolationLimit int
	WindowLength       int
	Stride             int
	MissingRatioMax    float64
	Threshold          float64
	BatchPolicy        BatchPolicy
}

// DefaultConfig returns the detection defaults: 5s grid, 11-point interpolation, 512-sample
// non-overlapping windows, at most half a window missing, 20% threshold.
func DefaultConfig() Config {
	return Config{
		Interval:           5 * time.Second,
		InterpolationLimit: 11,
		WindowLength:       512,
		Stride:             512,
		MissingRatioMax:    0.5,
		Threshold:          DefaultThreshold,
		BatchPolicy:        BatchAll,
	}
}

// Result is the output of one detection run.
type Result struct {
	Records   []models.AnomalyRecord
	Stats     models.DetectionStats
	Threshold float64
}

// Pipeline runs resample, segment, infer and score as one blocking call.
type Pipeline struct {
	logger *slog.Logger
	model  model.Reconstructor
	cfg    Config
}

// NewPipeline constructs a detection pipeline around a reconstruction model.
func NewPipeline(logger *slog.Logger, reconstructor model.Reconstructor, cfg Config) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultConfig()
	if cfg.Interval == 0 {
		cfg.Interval = defaults.Interval
	}
	if cfg.WindowLength == 0 {
		cfg.WindowLength = defaults.WindowLength
	}
	if cfg.Stride == 0 {
		cfg.Stride = cfg.WindowLength
	}
	if cfg.BatchPolicy == "" {
		cfg.BatchPolicy = defaults.BatchPolicy
	}
	return &Pipeline{logger: logger, model: reconstructor, cfg: cfg}
}

// Config returns the effective defaults of the pipeline.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Detect flags samples whose reconstruction error exceeds the threshold.
func (p *Pipeline) Detect(ctx context.Context, samples []models.Sample, opts models.DetectionOptions) (Result, error) {
	if p.model == nil {
		return Result{}, fmt.Errorf("reconstruction model not configured")
	}
	cfg := p.effective(opts)
	stats := models.DetectionStats{RawSamples: len(samples)}

	series, err := Resample(samples, cfg.Interval, cfg.InterpolationLimit)
	if err != nil {
		return Result{}, fmt.Errorf("resample: %w", err)
	}
	stats.GridPoints = series.Len()

	set, err := Segment(series, cfg.WindowLength, cfg.Stride, cfg.MissingRatioMax)
	if err != nil {
		return Result{}, fmt.Errorf("segment: %w", err)
	}
	stats.WindowsKept = set.Len()
	stats.WindowsDropped = set.Dropped
	metrics.ObserveWindows(set.Len(), set.Dropped)

	p.logger.Debug("windows built",
		slog.Int("grid_points", series.Len()),
		slog.Int("missing_points", series.MissingCount()),
		slog.Int("kept", set.Len()),
		slog.Int("dropped", set.Dropped),
	)

	batch, err := SelectBatch(set, cfg.BatchPolicy)
	if err != nil {
		return Result{}, err
	}

	start := time.Now()
	recs, err := Infer(ctx, batch, p.model)
	metrics.ObserveInference(time.Since(start))
	if err != nil {
		return Result{}, err
	}

	records, scored := Score(batch, recs, set.Timestamps(), cfg.Threshold)
	stats.SamplesScored = scored
	metrics.ObserveAnomalies(len(records))

	p.logger.Debug("samples scored",
		slog.Int("scored", scored),
		slog.Int("anomalies", len(records)),
		slog.Float64("threshold", cfg.Threshold),
	)

	return Result{Records: records, Stats: stats, Threshold: cfg.Threshold}, nil
}

func (p *Pipeline) effective(opts models.DetectionOptions) Config {
	cfg := p.cfg
	if opts.Interval != 0 {
		cfg.Interval = opts.Interval
	}
	if opts.InterpolationLimit != nil {
		cfg.InterpolationLimit = *opts.InterpolationLimit
	}
	if opts.WindowLength != 0 {
		cfg.WindowLength = opts.WindowLength
		if opts.Stride == 0 {
			cfg.Stride = opts.WindowLength
		}
	}
	if opts.Stride != 0 {
		cfg.Stride = opts.Stride
	}
	if opts.MissingRatioMax != nil {
		cfg.MissingRatioMax = *opts.MissingRatioMax
	}
	if opts.Threshold != nil {
		cfg.Threshold = *opts.Threshold
	}
	return cfg
}

// ConfigFromSettings converts loaded detection settings into a pipeline Config.
func ConfigFromSettings(d config.DetectionConfig) (Config, error) {
	policy, err := ParseBatchPolicy(d.BatchPolicy)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Interval:           d.Interval,
		InterpolationLimit: d.InterpolationLimit,
		WindowLength:       d.WindowLength,
		Stride:             d.Stride,
		MissingRatioMax:    d.MissingRatioMax,
		Threshold:          d.AnomalyThreshold,
		BatchPolicy:        policy,
	}, nil
}
