package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the anomaly detection service.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Detection DetectionConfig `yaml:"detection"`
	Model     ModelConfig     `yaml:"model"`
	Store     StoreConfig     `yaml:"store"`
	Ingest    IngestConfig    `yaml:"ingest"`
	NATS      NATSConfig      `yaml:"nats"`
	Cache     CacheConfig     `yaml:"cache"`
}

// ServerConfig controls gRPC listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// DetectionConfig holds pipeline defaults. Requests may override all but the batch policy.
type DetectionConfig struct {
	Interval           time.Duration `yaml:"interval"`
	InterpolationLimit int           `yaml:"interpolationLimit"`
	WindowLength       int           `yaml:"windowLength"`
	Stride             int           `yaml:"stride"`
	MissingRatioMax    float64       `yaml:"missingRatioMax"`
	AnomalyThreshold   float64       `yaml:"anomalyThreshold"`
	BatchPolicy        string        `yaml:"batchPolicy"`
}

// ModelConfig selects the reconstruction backend.
type ModelConfig struct {
	// Backend is one of "http", "sagemaker" or "baseline".
	Backend   string          `yaml:"backend"`
	HTTP      HTTPModelConfig `yaml:"http"`
	SageMaker SageMakerConfig `yaml:"sagemaker"`
}

// HTTPModelConfig configures a model served over JSON/HTTP.
type HTTPModelConfig struct {
	BaseURL         string        `yaml:"baseURL"`
	ReconstructPath string        `yaml:"reconstructPath"`
	Timeout         time.Duration `yaml:"timeout"`
}

// SageMakerConfig configures a SageMaker inference endpoint.
type SageMakerConfig struct {
	Endpoint string `yaml:"endpoint"`
	Region   string `yaml:"region"`
}

// StoreConfig configures the heart-rate reading store.
type StoreConfig struct {
	// Driver is "sqlite" or "duckdb".
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// IngestConfig controls CSV imports.
type IngestConfig struct {
	S3 S3Config `yaml:"s3"`
}

// S3Config configures object storage reads for s3:// locations.
type S3Config struct {
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"usePathStyle"`
}

// NATSConfig controls publishing of anomaly reports.
type NATSConfig struct {
	Enabled       bool          `yaml:"enabled"`
	URL           string        `yaml:"url"`
	Stream        string        `yaml:"stream"`
	SubjectPrefix string        `yaml:"subjectPrefix"`
	Timeout       time.Duration `yaml:"timeout"`
}

// CacheConfig controls Valkey-backed caching of stored-subject reports.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	TLS          bool          `yaml:"tls"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	ReportTTL    time.Duration `yaml:"reportTTL"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("HR_ANOMALY_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the detection pipeline cannot run with.
func (c *Config) Validate() error {
	d := c.Detection
	if d.Interval <= 0 {
		return fmt.Errorf("detection.interval must be positive, got %s", d.Interval)
	}
	if d.InterpolationLimit < 0 {
		return fmt.Errorf("detection.interpolationLimit must be >= 0, got %d", d.InterpolationLimit)
	}
	if d.WindowLength <= 0 {
		return fmt.Errorf("detection.windowLength must be positive, got %d", d.WindowLength)
	}
	if d.Stride <= 0 {
		return fmt.Errorf("detection.stride must be positive, got %d", d.Stride)
	}
	if d.MissingRatioMax < 0 || d.MissingRatioMax > 1 {
		return fmt.Errorf("detection.missingRatioMax must be within [0,1], got %v", d.MissingRatioMax)
	}
	switch d.BatchPolicy {
	case "", "all", "drop-last":
	default:
		return fmt.Errorf("detection.batchPolicy %q not supported", d.BatchPolicy)
	}
	switch c.Model.Backend {
	case "baseline":
	case "http":
		if c.Model.HTTP.BaseURL == "" {
			return fmt.Errorf("model.http.baseURL required for http backend")
		}
	case "sagemaker":
		if c.Model.SageMaker.Endpoint == "" {
			return fmt.Errorf("model.sagemaker.endpoint required for sagemaker backend")
		}
	default:
		return fmt.Errorf("model.backend %q not supported", c.Model.Backend)
	}
	switch c.Store.Driver {
	case "sqlite", "duckdb":
	default:
		return fmt.Errorf("store.driver %q not supported", c.Store.Driver)
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("nats.url required when nats is enabled")
	}
	if c.Cache.ReportTTL < 0 {
		return fmt.Errorf("cache.reportTTL must not be negative")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50051",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Detection: DetectionConfig{
			Interval:           5 * time.Second,
			InterpolationLimit: 11,
			WindowLength:       512,
			Stride:             512,
			MissingRatioMax:    0.5,
			AnomalyThreshold:   20,
			BatchPolicy:        "all",
		},
		Model: ModelConfig{
			Backend: "baseline",
			HTTP: HTTPModelConfig{
				ReconstructPath: "/v1/reconstruct",
				Timeout:         10 * time.Second,
			},
		},
		Store: StoreConfig{Driver: "sqlite", DSN: "file:heart_rate.db"},
		NATS: NATSConfig{
			URL:           "nats://127.0.0.1:4222",
			Stream:        "HR_ANOMALIES",
			SubjectPrefix: "hr.anomalies",
			Timeout:       5 * time.Second,
		},
		Cache: CacheConfig{
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
			ReportTTL:    5 * time.Minute,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HR_ANOMALY_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("HR_ANOMALY_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("HR_ANOMALY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("HR_ANOMALY_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("HR_ANOMALY_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Detection.Interval = d
		}
	}
	if v := os.Getenv("HR_ANOMALY_INTERPOLATION_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Detection.InterpolationLimit = n
		}
	}
	if v := os.Getenv("HR_ANOMALY_WINDOW_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Detection.WindowLength = n
		}
	}
	if v := os.Getenv("HR_ANOMALY_STRIDE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Detection.Stride = n
		}
	}
	if v := os.Getenv("HR_ANOMALY_MISSING_RATIO_MAX"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Detection.MissingRatioMax = f
		}
	}
	if v := os.Getenv("HR_ANOMALY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Detection.AnomalyThreshold = f
		}
	}
	if v := os.Getenv("HR_ANOMALY_BATCH_POLICY"); v != "" {
		cfg.Detection.BatchPolicy = v
	}
	if v := os.Getenv("HR_ANOMALY_MODEL_BACKEND"); v != "" {
		cfg.Model.Backend = v
	}
	if v := os.Getenv("HR_ANOMALY_MODEL_URL"); v != "" {
		cfg.Model.HTTP.BaseURL = v
	}
	if v := os.Getenv("HR_ANOMALY_SAGEMAKER_ENDPOINT"); v != "" {
		cfg.Model.SageMaker.Endpoint = v
	}
	if v := os.Getenv("HR_ANOMALY_SAGEMAKER_REGION"); v != "" {
		cfg.Model.SageMaker.Region = v
	}
	if v := os.Getenv("HR_ANOMALY_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("HR_ANOMALY_STORE_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("HR_ANOMALY_S3_REGION"); v != "" {
		cfg.Ingest.S3.Region = v
	}
	if v := os.Getenv("HR_ANOMALY_S3_ENDPOINT"); v != "" {
		cfg.Ingest.S3.Endpoint = v
	}
	if v := os.Getenv("HR_ANOMALY_NATS_ENABLED"); v != "" {
		cfg.NATS.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("HR_ANOMALY_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("HR_ANOMALY_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("HR_ANOMALY_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("HR_ANOMALY_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("HR_ANOMALY_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.ReportTTL = d
		}
	}
}
