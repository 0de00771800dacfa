package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/claudia-liauw/health-app/internal/models"
)

const reportKeyPrefix = "hr-anomaly:report:"

// ReportCache stores detection reports for stored-subject requests.
type ReportCache struct {
	provider Provider
	ttl      time.Duration
	logger   *slog.Logger
}

// NewReportCache wraps provider. A nil provider disables caching.
func NewReportCache(logger *slog.Logger, provider Provider, ttl time.Duration) *ReportCache {
	if logger == nil {
		logger = slog.Default()
	}
	if provider == nil {
		provider = NoopProvider{}
	}
	return &ReportCache{provider: provider, ttl: ttl, logger: logger}
}

// ReportKey derives a stable cache key from the resolved subject, range and options.
func ReportKey(subjectID string, rng models.TimeRange, opts models.DetectionOptions) string {
	payload, _ := json.Marshal(struct {
		Start   int64                   `json:"start"`
		End     int64                   `json:"end"`
		Options models.DetectionOptions `json:"options"`
	}{rangeBound(rng.Start), rangeBound(rng.End), opts})
	sum := sha256.Sum256(payload)
	return reportKeyPrefix + subjectID + ":" + hex.EncodeToString(sum[:12])
}

func rangeBound(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

// Get returns the cached report for key. Provider errors are logged and reported as a miss.
func (c *ReportCache) Get(ctx context.Context, key string) (models.Report, bool) {
	if c == nil {
		return models.Report{}, false
	}
	data, err := c.provider.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			c.logger.Warn("report cache read failed", slog.String("key", key), slog.Any("error", err))
		}
		return models.Report{}, false
	}
	var report models.Report
	if err := json.Unmarshal(data, &report); err != nil {
		c.logger.Warn("report cache entry corrupt", slog.String("key", key), slog.Any("error", err))
		_ = c.provider.Del(ctx, key)
		return models.Report{}, false
	}
	return report, true
}

// Put stores report under key with the configured TTL.
func (c *ReportCache) Put(ctx context.Context, key string, report models.Report) {
	if c == nil {
		return
	}
	data, err := json.Marshal(report)
	if err != nil {
		c.logger.Warn("report cache encode failed", slog.String("key", key), slog.Any("error", err))
		return
	}
	if err := c.provider.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("report cache write failed", slog.String("key", key), slog.Any("error", err))
	}
}

// Close releases the underlying provider.
func (c *ReportCache) Close() error {
	if c == nil {
		return nil
	}
	return c.provider.Close()
}
