package repo

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	_ "modernc.org/sqlite"

	"github.com/claudia-liauw/health-app/internal/models"
)

const (
	// DriverSQLite selects the pure-Go SQLite driver.
	DriverSQLite = "sqlite"
	// DriverDuckDB selects the embedded DuckDB driver.
	DriverDuckDB = "duckdb"
)

// ReadingStore persists raw heart-rate samples per subject.
type ReadingStore interface {
	InitSchema(ctx context.Context) error
	InsertBatch(ctx context.Context, samples []models.Sample) (int, error)
	FetchSamples(ctx context.Context, subjectID string, rng models.TimeRange) ([]models.Sample, error)
	Subjects(ctx context.Context) ([]string, error)
	Close() error
}

// SQLReadingStore implements ReadingStore on database/sql. Timestamps are stored as unix
// nanoseconds and missing values as NULL, so the same statements run on both drivers.
type SQLReadingStore struct {
	db     *sql.DB
	driver string
	logger *slog.Logger
}

// OpenReadingStore opens the database and verifies connectivity.
func OpenReadingStore(ctx context.Context, logger *slog.Logger, driver, dsn string) (*SQLReadingStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch driver {
	case DriverSQLite, DriverDuckDB:
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// In-memory SQLite databases are per connection.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return &SQLReadingStore{db: db, driver: driver, logger: logger}, nil
}

// InitSchema creates the reading table and its lookup index.
func (s *SQLReadingStore) InitSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS heart_rate (
			subject_id TEXT NOT NULL,
			ts BIGINT NOT NULL,
			value DOUBLE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_heart_rate_subject_ts ON heart_rate(subject_id, ts)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// InsertBatch writes samples in a single transaction and returns the number written.
func (s *SQLReadingStore) InsertBatch(ctx context.Context, samples []models.Sample) (int, error) {
	if len(samples) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin insert: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO heart_rate (subject_id, ts, value) VALUES (?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, sample := range samples {
		if sample.SubjectID == "" {
			tx.Rollback()
			return 0, fmt.Errorf("sample %d: subject id required", i)
		}
		value := sql.NullFloat64{Float64: sample.Value, Valid: !sample.Missing()}
		if _, err := stmt.ExecContext(ctx, sample.SubjectID, sample.Timestamp.UnixNano(), value); err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("insert sample %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit insert: %w", err)
	}

	s.logger.Debug("readings stored",
		slog.String("driver", s.driver),
		slog.Int("count", len(samples)),
	)
	return len(samples), nil
}

// FetchSamples returns the subject's samples within rng ordered by time. Zero bounds are open.
func (s *SQLReadingStore) FetchSamples(ctx context.Context, subjectID string, rng models.TimeRange) ([]models.Sample, error) {
	if subjectID == "" {
		return nil, fmt.Errorf("subject id required")
	}
	start := int64(math.MinInt64)
	end := int64(math.MaxInt64)
	if !rng.Start.IsZero() {
		start = rng.Start.UnixNano()
	}
	if !rng.End.IsZero() {
		end = rng.End.UnixNano()
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, value FROM heart_rate WHERE subject_id = ? AND ts >= ? AND ts < ? ORDER BY ts`,
		subjectID, start, end,
	)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	samples := make([]models.Sample, 0)
	for rows.Next() {
		var (
			ts    int64
			value sql.NullFloat64
		)
		if err := rows.Scan(&ts, &value); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		sample := models.Sample{SubjectID: subjectID, Timestamp: time.Unix(0, ts).UTC(), Value: models.MissingValue()}
		if value.Valid {
			sample.Value = value.Float64
		}
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate samples: %w", err)
	}
	return samples, nil
}

// Subjects lists distinct subject ids in the order they were first inserted.
func (s *SQLReadingStore) Subjects(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT subject_id FROM heart_rate GROUP BY subject_id ORDER BY MIN(rowid)`)
	if err != nil {
		return nil, fmt.Errorf("query subjects: %w", err)
	}
	defer rows.Close()

	var subjects []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		subjects = append(subjects, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subjects: %w", err)
	}
	return subjects, nil
}

// Close releases the database handle.
func (s *SQLReadingStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
