// Package storage archives simulation reports in SQLite.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/xid"
	_ "modernc.org/sqlite"

	"tabletop/internal/collector"
)

// ErrReportNotFound is returned by Get for an unknown run id.
var ErrReportNotFound = errors.New("report not found")

const schema = `
CREATE TABLE IF NOT EXISTS reports (
	run_id        TEXT PRIMARY KEY,
	simulation_id INTEGER NOT NULL,
	created_at    INTEGER NOT NULL,
	normal        INTEGER NOT NULL,
	exceptional   INTEGER NOT NULL,
	total         INTEGER NOT NULL,
	body          TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS reports_by_simulation ON reports (simulation_id, created_at);
`

// Report is one archived harvest of a simulation.
type Report struct {
	RunID        string                `json:"runId"`
	SimulationID int64                 `json:"simulationId"`
	CreatedAt    time.Time             `json:"createdAt"`
	Normal       int                   `json:"completedNormal"`
	Exceptional  int                   `json:"completedExceptionally"`
	Total        int                   `json:"total"`
	Summary      collector.JSONSummary `json:"summary"`
}

// Store persists reports in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save archives a summary under a new run id.
func (s *Store) Save(ctx context.Context, simulationID int64, summary *collector.Summary, thresholds *collector.ThresholdResults) (Report, error) {
	if summary == nil {
		return Report{}, fmt.Errorf("summary is required")
	}
	r := Report{
		RunID:        xid.New().String(),
		SimulationID: simulationID,
		CreatedAt:    fromMillis(toMillis(s.now())),
		Normal:       summary.CompletedNormal,
		Exceptional:  summary.CompletedExceptionally,
		Total:        summary.Total,
		Summary:      collector.ToJSON(summary, thresholds),
	}
	body, err := json.Marshal(r.Summary)
	if err != nil {
		return Report{}, fmt.Errorf("encode summary: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reports (run_id, simulation_id, created_at, normal, exceptional, total, body)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.SimulationID, toMillis(r.CreatedAt), r.Normal, r.Exceptional, r.Total, string(body),
	)
	if err != nil {
		return Report{}, fmt.Errorf("insert report: %w", err)
	}
	return r, nil
}

// Get loads one archived report.
func (s *Store) Get(ctx context.Context, runID string) (Report, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT run_id, simulation_id, created_at, normal, exceptional, total, body
		 FROM reports WHERE run_id = ?`, runID)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Report{}, fmt.Errorf("%w: %s", ErrReportNotFound, runID)
	}
	return r, err
}

// ListForSimulation returns the reports of a simulation, oldest first.
func (s *Store) ListForSimulation(ctx context.Context, simulationID int64) ([]Report, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, simulation_id, created_at, normal, exceptional, total, body
		 FROM reports WHERE simulation_id = ? ORDER BY created_at, run_id`, simulationID)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	var out []Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReport(sc scanner) (Report, error) {
	var (
		r         Report
		createdAt int64
		body      string
	)
	if err := sc.Scan(&r.RunID, &r.SimulationID, &createdAt, &r.Normal, &r.Exceptional, &r.Total, &body); err != nil {
		return Report{}, err
	}
	r.CreatedAt = fromMillis(createdAt)
	if err := json.Unmarshal([]byte(body), &r.Summary); err != nil {
		return Report{}, fmt.Errorf("decode report %s: %w", r.RunID, err)
	}
	return r, nil
}
