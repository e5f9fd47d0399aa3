package history

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aceteam-ai/triggerbench/internal/bench"
	"github.com/aceteam-ai/triggerbench/internal/stats"
	"github.com/aceteam-ai/triggerbench/internal/timing"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    target      TEXT NOT NULL DEFAULT '',
    executions  INTEGER NOT NULL,
    started_at  TEXT NOT NULL,
    elapsed_ms  INTEGER NOT NULL,
    hostname    TEXT NOT NULL DEFAULT '',
    created_at  TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE TABLE IF NOT EXISTS run_summaries (
    run_id   INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    series   TEXT NOT NULL,
    count    INTEGER NOT NULL,
    p50      REAL NOT NULL,
    p95      REAL NOT NULL,
    p99      REAL NOT NULL,
    min      REAL NOT NULL,
    max      REAL NOT NULL,
    mean     REAL NOT NULL,
    PRIMARY KEY (run_id, position)
);
CREATE TABLE IF NOT EXISTS run_trials (
    run_id      INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    trial_index INTEGER NOT NULL,
    trial_id    TEXT NOT NULL,
    stage_one   REAL NOT NULL,
    inter_stage REAL NOT NULL,
    stage_two   REAL NOT NULL,
    total       REAL NOT NULL,
    PRIMARY KEY (run_id, trial_index)
);
`

// Store provides SQLite-backed storage for benchmark runs.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) the history database at dbPath and runs migrations.
func OpenStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Save archives a report with its summaries and per-trial samples.
func (s *Store) Save(r *bench.Report) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		INSERT INTO runs (target, executions, started_at, elapsed_ms, hostname)
		VALUES (?, ?, ?, ?, ?)`,
		r.Target, r.Executions,
		r.StartedAt.UTC().Format(time.RFC3339Nano), r.Elapsed.Milliseconds(),
		r.Host.Hostname,
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("run id: %w", err)
	}

	for i, sm := range r.Summaries {
		if _, err := tx.Exec(`
			INSERT INTO run_summaries (run_id, position, series, count, p50, p95, p99, min, max, mean)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, i, sm.Name, sm.Count, sm.P50, sm.P95, sm.P99, sm.Min, sm.Max, sm.Mean,
		); err != nil {
			return 0, fmt.Errorf("insert summary %s: %w", sm.Name, err)
		}
	}

	for _, tr := range r.Trials {
		if _, err := tx.Exec(`
			INSERT INTO run_trials (run_id, trial_index, trial_id, stage_one, inter_stage, stage_two, total)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, tr.Index, tr.TrialID,
			tr.Durations.StageOne, tr.Durations.InterStage, tr.Durations.StageTwo, tr.Durations.Total,
		); err != nil {
			return 0, fmt.Errorf("insert trial %s: %w", tr.TrialID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit run: %w", err)
	}
	return runID, nil
}

// Recent returns up to limit runs, newest first, with their summaries.
func (s *Store) Recent(limit int) ([]Run, error) {
	rows, err := s.db.Query(`
		SELECT id, target, executions, started_at, elapsed_ms, hostname
		FROM runs
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}

	var runs []Run
	for rows.Next() {
		var r Run
		var startedAt string
		if err := rows.Scan(&r.ID, &r.Target, &r.Executions, &startedAt, &r.ElapsedMs, &r.Hostname); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, startedAt); err == nil {
			r.StartedAt = t
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range runs {
		summaries, err := s.summaries(runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Summaries = summaries
	}
	return runs, nil
}

func (s *Store) summaries(runID int64) ([]stats.Summary, error) {
	rows, err := s.db.Query(`
		SELECT series, count, p50, p95, p99, min, max, mean
		FROM run_summaries
		WHERE run_id = ?
		ORDER BY position ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer rows.Close()

	var out []stats.Summary
	for rows.Next() {
		var sm stats.Summary
		if err := rows.Scan(&sm.Name, &sm.Count, &sm.P50, &sm.P95, &sm.P99, &sm.Min, &sm.Max, &sm.Mean); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}

// Trials returns the per-trial samples of a run in trial order.
func (s *Store) Trials(runID int64) ([]bench.TrialSample, error) {
	rows, err := s.db.Query(`
		SELECT trial_index, trial_id, stage_one, inter_stage, stage_two, total
		FROM run_trials
		WHERE run_id = ?
		ORDER BY trial_index ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("query trials: %w", err)
	}
	defer rows.Close()

	var out []bench.TrialSample
	for rows.Next() {
		var tr bench.TrialSample
		var d timing.Durations
		if err := rows.Scan(&tr.Index, &tr.TrialID, &d.StageOne, &d.InterStage, &d.StageTwo, &d.Total); err != nil {
			return nil, fmt.Errorf("scan trial: %w", err)
		}
		tr.Durations = d
		out = append(out, tr)
	}
	return out, rows.Err()
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
