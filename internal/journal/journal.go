// Package journal keeps a sqlite record of every pipeline run and stage
// result, so unattended archive processing leaves an inspectable trail.
package journal

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Journal wraps the run-history database.
type Journal struct {
	*sql.DB
}

// Open opens (creating if needed) the journal database at path and brings its
// schema up to date.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}

	j := &Journal{db}
	if err := j.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

// migrateUp applies any pending schema migrations from the embedded set.
func (j *Journal) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load journal migrations: %w", err)
	}

	driver, err := migratesqlite.WithInstance(j.DB, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("prepare journal migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("prepare journal migrations: %w", err)
	}
	// Note: we don't close m because it would close the underlying DB connection.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("journal migration failed: %w", err)
	}
	return nil
}

// StageRecord is one recorded stage execution.
type StageRecord struct {
	Stage      string
	ExitCode   int
	Duration   time.Duration
	Outcome    string
	RecordedAt time.Time
}

// RunRecord is one recorded pipeline run.
type RunRecord struct {
	RunID   string
	BurstID string
	Status  string
}

// Stage outcome values.
const (
	OutcomeOK      = "ok"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// BeginRun records the start of a pipeline run and returns its id.
func (j *Journal) BeginRun(burstID string) (string, error) {
	runID := uuid.NewString()
	_, err := j.Exec("INSERT INTO runs (run_id, burst_id, status) VALUES (?, ?, 'Running')", runID, burstID)
	if err != nil {
		return "", fmt.Errorf("begin run for %s: %w", burstID, err)
	}
	return runID, nil
}

// RecordStage appends one stage result to a run.
func (j *Journal) RecordStage(runID, stage string, exitCode int, duration time.Duration, outcome string) error {
	_, err := j.Exec(
		"INSERT INTO stages (run_id, stage, exit_code, duration_ms, outcome) VALUES (?, ?, ?, ?, ?)",
		runID, stage, exitCode, duration.Milliseconds(), outcome,
	)
	if err != nil {
		return fmt.Errorf("record stage %s: %w", stage, err)
	}
	return nil
}

// FinishRun records the terminal status of a run.
func (j *Journal) FinishRun(runID, status string) error {
	_, err := j.Exec("UPDATE runs SET status = ?, finished_at = CURRENT_TIMESTAMP WHERE run_id = ?", status, runID)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	return nil
}

// Runs lists recorded runs, newest first.
func (j *Journal) Runs() ([]RunRecord, error) {
	rows, err := j.Query("SELECT run_id, burst_id, status FROM runs ORDER BY started_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.RunID, &r.BurstID, &r.Status); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Stages lists the stage records of one run in execution order.
func (j *Journal) Stages(runID string) ([]StageRecord, error) {
	rows, err := j.Query(
		"SELECT stage, exit_code, duration_ms, outcome, recorded_at FROM stages WHERE run_id = ? ORDER BY stage_id",
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stages []StageRecord
	for rows.Next() {
		var s StageRecord
		var ms int64
		if err := rows.Scan(&s.Stage, &s.ExitCode, &ms, &s.Outcome, &s.RecordedAt); err != nil {
			return nil, err
		}
		s.Duration = time.Duration(ms) * time.Millisecond
		stages = append(stages, s)
	}
	return stages, rows.Err()
}
