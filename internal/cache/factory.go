package cache

import (
	"context"
	"log/slog"

	"github.com/claudia-liauw/health-app/internal/config"
)

// Open builds the report cache described by cfg. It returns nil when caching is
// disabled, an in-process cache when no address is set, and Valkey otherwise.
func Open(ctx context.Context, logger *slog.Logger, cfg config.CacheConfig) (*ReportCache, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Addr == "" {
		logger.Info("report cache in memory", slog.Duration("ttl", cfg.ReportTTL))
		return NewReportCache(logger, NewMemoryProvider(), cfg.ReportTTL), nil
	}
	provider, err := NewValkeyProvider(ctx, ValkeyConfigFrom(cfg))
	if err != nil {
		return nil, err
	}
	logger.Info("report cache on valkey", slog.String("addr", cfg.Addr), slog.Duration("ttl", cfg.ReportTTL))
	return NewReportCache(logger, provider, cfg.ReportTTL), nil
}
