// Package queue publishes detection reports to downstream consumers.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/claudia-liauw/health-app/internal/models"
)

// Publisher hands finished reports to a message bus.
type Publisher interface {
	PublishReport(ctx context.Context, report models.Report) error
	Close()
}

// Config holds JetStream publisher settings.
type Config struct {
	URL           string
	Stream        string
	SubjectPrefix string
	Timeout       time.Duration
}

type streamPublisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// NATSPublisher writes reports to a JetStream stream, one subject per heart-rate subject.
type NATSPublisher struct {
	nc     *nats.Conn
	js     streamPublisher
	cfg    Config
	logger *slog.Logger
}

// NewNATSPublisher connects to NATS and ensures the report stream exists.
func NewNATSPublisher(ctx context.Context, logger *slog.Logger, cfg Config) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "hr.anomalies"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name("hr-anomaly"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(3),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	streamCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	_, err = js.CreateOrUpdateStream(streamCtx, jetstream.StreamConfig{
		Name:      cfg.Stream,
		Subjects:  []string{cfg.SubjectPrefix + ".>"},
		Retention: jetstream.LimitsPolicy,
		Storage:   jetstream.FileStorage,
		MaxAge:    7 * 24 * time.Hour,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create stream %s: %w", cfg.Stream, err)
	}

	return &NATSPublisher{nc: nc, js: js, cfg: cfg, logger: logger}, nil
}

// PublishReport encodes report as JSON and publishes it on <prefix>.<subject id>.
func (p *NATSPublisher) PublishReport(ctx context.Context, report models.Report) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	subject := SubjectFor(p.cfg.SubjectPrefix, report.SubjectID)

	pubCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()
	ack, err := p.js.Publish(pubCtx, subject, data)
	if err != nil {
		return fmt.Errorf("publish report to %s: %w", subject, err)
	}
	p.logger.Debug("report published",
		slog.String("subject", subject),
		slog.Uint64("sequence", ack.Sequence),
		slog.Int("records", len(report.Records)),
	)
	return nil
}

// Close closes the NATS connection.
func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}

// SubjectFor builds the publish subject. Characters NATS treats as tokens are replaced.
func SubjectFor(prefix, subjectID string) string {
	if subjectID == "" {
		subjectID = "unknown"
	}
	token := strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(subjectID)
	return prefix + "." + token
}

// NopPublisher discards reports.
type NopPublisher struct{}

// PublishReport implements Publisher.
func (NopPublisher) PublishReport(context.Context, models.Report) error { return nil }

// Close implements Publisher.
func (NopPublisher) Close() {}
