package model

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/claudia-liauw/health-app/internal/config"
)

// FromConfig builds the reconstruction backend selected by cfg.Backend.
func FromConfig(ctx context.Context, logger *slog.Logger, cfg config.ModelConfig) (Reconstructor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Backend {
	case "http":
		logger.Info("using http reconstruction model", slog.String("base_url", cfg.HTTP.BaseURL))
		return NewHTTPReconstructor(cfg.HTTP.BaseURL, cfg.HTTP.ReconstructPath, cfg.HTTP.Timeout), nil
	case "sagemaker":
		logger.Info("using sagemaker reconstruction model", slog.String("endpoint", cfg.SageMaker.Endpoint))
		return NewSageMakerReconstructor(ctx, SageMakerConfig{Endpoint: cfg.SageMaker.Endpoint, Region: cfg.SageMaker.Region})
	case "baseline", "":
		logger.Warn("using baseline reconstruction model; scores are not model based")
		return BaselineReconstructor{}, nil
	default:
		return nil, fmt.Errorf("unknown model backend %q", cfg.Backend)
	}
}
