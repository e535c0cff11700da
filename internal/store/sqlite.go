// Package store keeps a local history of evaluation reports in SQLite.
//
// The store uses modernc.org/sqlite, a pure Go driver, so the grader builds
// without CGO. The schema is managed through the embedded migrations in
// migrations/ and applied on open.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/ahrav/go-grader/internal/domain"
	"github.com/ahrav/go-grader/internal/store/migrations"
)

// ErrNotFound is returned when no report has the requested run id.
var ErrNotFound = errors.New("report not found")

// DefaultListLimit bounds List when no positive limit is given.
const DefaultListLimit = 20

// RunSummary is the listing view of a stored report.
type RunSummary struct {
	RunID             string    `json:"run_id"`
	CreatedAt         time.Time `json:"created_at"`
	Policy            string    `json:"policy"`
	Grade             string    `json:"grade"`
	OverallPercentage float64   `json:"overall_percentage"`
	TotalObtained     float64   `json:"total_obtained"`
	TotalMax          int       `json:"total_max"`
	Questions         int       `json:"questions"`
	APIRequests       int64     `json:"api_requests"`
}

// SQLite is the run-history store.
type SQLite struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// OpenSQLite opens (creating if needed) the database at path and applies
// pending migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("store path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s := &SQLite{
		db:     db,
		path:   path,
		logger: slog.Default().With("component", "store"),
	}
	if err := s.migrate(ctx, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *SQLite) Close() error { return s.db.Close() }

// Path returns the database file path.
func (s *SQLite) Path() string { return s.path }

func (s *SQLite) migrate(ctx context.Context, fsys fs.FS) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			applied_at INTEGER NOT NULL
		)`); err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations: %w", err)
	}
	var ups []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			ups = append(ups, e.Name())
		}
	}
	sort.Strings(ups)

	for _, name := range ups {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil || version <= current {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
			version, time.Now().UTC().UnixMilli()); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		s.logger.Debug("applied migration", "migration", name)
	}
	return nil
}

// Save stores the report, replacing any earlier report with the same run id.
func (s *SQLite) Save(ctx context.Context, r *domain.EvaluationReport) error {
	if r == nil || r.RunID == "" {
		return errors.New("report has no run id")
	}
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshalling report: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, created_at_ms, policy, grade, overall_percentage,
			total_obtained, total_max, questions, api_requests, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			created_at_ms = excluded.created_at_ms,
			policy = excluded.policy,
			grade = excluded.grade,
			overall_percentage = excluded.overall_percentage,
			total_obtained = excluded.total_obtained,
			total_max = excluded.total_max,
			questions = excluded.questions,
			api_requests = excluded.api_requests,
			report = excluded.report
	`, r.RunID, r.CreatedAt.UTC().UnixMilli(), r.Policy, r.Summary.Grade, r.Summary.OverallPercentage,
		r.Summary.TotalObtained, r.Summary.TotalMax, len(r.Results), r.Usage.APIRequests, string(body))
	if err != nil {
		return fmt.Errorf("saving report: %w", err)
	}
	s.logger.Debug("saved report", "run_id", r.RunID)
	return nil
}

// Get loads the full report of a run.
func (s *SQLite) Get(ctx context.Context, runID string) (*domain.EvaluationReport, error) {
	var body string
	err := s.db.QueryRowContext(ctx, "SELECT report FROM runs WHERE id = ?", runID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading report: %w", err)
	}
	var r domain.EvaluationReport
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return nil, fmt.Errorf("unmarshalling report %s: %w", runID, err)
	}
	return &r, nil
}

// List returns the most recent runs, newest first.
func (s *SQLite) List(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at_ms, policy, grade, overall_percentage,
			total_obtained, total_max, questions, api_requests
		FROM runs
		ORDER BY created_at_ms DESC, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var (
			r       RunSummary
			created int64
		)
		if err := rows.Scan(&r.RunID, &created, &r.Policy, &r.Grade, &r.OverallPercentage,
			&r.TotalObtained, &r.TotalMax, &r.Questions, &r.APIRequests); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return out, nil
}
