package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/openrig/openrig/pkg/engine"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DefaultPath is the default journal location.
const DefaultPath = "/var/lib/openrig/rig.db"

// Config holds SQLite journal configuration.
type Config struct {
	// Path is the database file location.
	Path string

	// Platform and Backend label every recorded run.
	Platform string
	Backend  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// SQLiteStore is the run history journal. It implements engine.Journal.
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// NewSQLiteStore creates a journal instance. Call Init before use.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 4
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 2
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	return &SQLiteStore{cfg: cfg}, nil
}

// Init opens the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.cfg.Path), 0o755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", s.cfg.Path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// RecordRun appends a finished run and its step outcomes to the journal.
func (s *SQLiteStore) RecordRun(ctx context.Context, report *engine.RunReport) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	if report == nil {
		return fmt.Errorf("report is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ok, warnings, failed := report.Counts()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, state, platform, backend, started_at, completed_at, abort_reason, ok_count, warning_count, failed_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		report.RunID,
		string(report.State),
		s.cfg.Platform,
		s.cfg.Backend,
		report.StartedAt.UTC(),
		report.CompletedAt.UTC(),
		report.AbortReason,
		ok,
		warnings,
		failed,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", report.RunID, err)
	}

	for i, step := range report.Steps {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO step_results (id, run_id, position, name, status, error, error_class, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			uuid.New().String(),
			report.RunID,
			i,
			step.Name,
			string(step.Status),
			step.Error,
			string(step.ErrorClass),
			step.Duration.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert step result %s: %w", step.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, state, platform, backend, started_at, completed_at, abort_reason, ok_count, warning_count, failed_count
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.ID, &r.State, &r.Platform, &r.Backend, &r.StartedAt, &r.CompletedAt,
			&r.AbortReason, &r.OKCount, &r.WarningCount, &r.FailedCount); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns one run and its step outcomes in execution order.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*RunRecord, []StepRecord, error) {
	if s.db == nil {
		return nil, nil, fmt.Errorf("database not initialized")
	}

	var r RunRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT id, state, platform, backend, started_at, completed_at, abort_reason, ok_count, warning_count, failed_count
		FROM runs WHERE id = ?
	`, id).Scan(&r.ID, &r.State, &r.Platform, &r.Backend, &r.StartedAt, &r.CompletedAt,
		&r.AbortReason, &r.OKCount, &r.WarningCount, &r.FailedCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("run %s not found", id)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query run %s: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, position, name, status, error, error_class, duration_ms
		FROM step_results WHERE run_id = ?
		ORDER BY position ASC
	`, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query step results: %w", err)
	}
	defer rows.Close()

	var steps []StepRecord
	for rows.Next() {
		var st StepRecord
		var durationMS int64
		if err := rows.Scan(&st.ID, &st.RunID, &st.Position, &st.Name, &st.Status, &st.Error, &st.ErrorClass, &durationMS); err != nil {
			return nil, nil, fmt.Errorf("failed to scan step result: %w", err)
		}
		st.Duration = time.Duration(durationMS) * time.Millisecond
		steps = append(steps, st)
	}
	return &r, steps, rows.Err()
}
