package db

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"speech-emotion/models"
	"speech-emotion/utils"

	_ "github.com/mattn/go-sqlite3" // SQLite driver registration
)

// SQLiteClient stores the inference run log. Only technical facts about each
// run are kept; uploads and predictions are never written.
type SQLiteClient struct {
	db *sql.DB
}

func NewSQLiteClient(dataSourceName string) (*SQLiteClient, error) {
	// Extract the file path before query parameters
	dbPath := dataSourceName
	if idx := strings.Index(dataSourceName, "?"); idx != -1 {
		dbPath = dataSourceName[:idx]
	}

	dbDir := filepath.Dir(dbPath)
	if dbDir != "." && dbDir != "" && !strings.HasPrefix(dbPath, ":memory:") && !strings.HasPrefix(dbPath, "file:") {
		if err := utils.CreateFolder(dbDir); err != nil {
			return nil, fmt.Errorf("error creating database directory: %w", err)
		}
	}

	// Add busy timeout param to DSN (milliseconds)
	if !strings.Contains(dataSourceName, "_busy_timeout") {
		if strings.Contains(dataSourceName, "?") {
			dataSourceName += "&_busy_timeout=5000"
		} else {
			dataSourceName += "?_busy_timeout=5000"
		}
	}

	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("error connecting to SQLite: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating tables: %w", err)
	}

	return &SQLiteClient{db: db}, nil
}

// createTables creates the required tables if they don't exist
func createTables(db *sql.DB) error {
	createRunsTable := `
    CREATE TABLE IF NOT EXISTS inference_runs (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
        source_format TEXT NOT NULL DEFAULT '',
        source_seconds REAL NOT NULL DEFAULT 0,
        source_rate INTEGER NOT NULL DEFAULT 0,
        channels INTEGER NOT NULL DEFAULT 0,
        outcome TEXT NOT NULL,
        latency_ms REAL NOT NULL DEFAULT 0
    );
    CREATE INDEX IF NOT EXISTS idx_inference_runs_created_at ON inference_runs(created_at);
    CREATE INDEX IF NOT EXISTS idx_inference_runs_outcome ON inference_runs(outcome);
    `

	if _, err := db.Exec(createRunsTable); err != nil {
		return fmt.Errorf("error creating inference_runs table: %w", err)
	}
	return nil
}

func (db *SQLiteClient) Close() error {
	if db.db != nil {
		return db.db.Close()
	}
	return nil
}

// RecordRun appends run to the log and returns its row id.
func (db *SQLiteClient) RecordRun(run models.InferenceRun) (int64, error) {
	if run.Outcome == "" {
		return 0, fmt.Errorf("run outcome is required")
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	res, err := db.db.Exec(`
		INSERT INTO inference_runs (
			created_at, source_format, source_seconds, source_rate,
			channels, outcome, latency_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.CreatedAt.UTC(),
		run.SourceFormat,
		run.SourceSeconds,
		run.SourceRate,
		run.Channels,
		string(run.Outcome),
		run.LatencyMs,
	)
	if err != nil {
		return 0, fmt.Errorf("error storing inference run: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("error reading inference run id: %w", err)
	}
	return id, nil
}

// RecentRuns returns up to limit runs, newest first.
func (db *SQLiteClient) RecentRuns(limit int) ([]models.InferenceRun, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.db.Query(`
		SELECT id, created_at, source_format, source_seconds, source_rate,
		       channels, outcome, latency_ms
		FROM inference_runs
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying inference runs: %w", err)
	}
	defer rows.Close()

	var runs []models.InferenceRun
	for rows.Next() {
		var r models.InferenceRun
		var outcome string
		err := rows.Scan(
			&r.ID,
			&r.CreatedAt,
			&r.SourceFormat,
			&r.SourceSeconds,
			&r.SourceRate,
			&r.Channels,
			&outcome,
			&r.LatencyMs,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning inference run: %w", err)
		}
		r.Outcome = models.Outcome(outcome)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating inference runs: %w", err)
	}

	return runs, nil
}

// OutcomeCounts returns how many runs ended in each outcome. Every known
// outcome is present, zero included.
func (db *SQLiteClient) OutcomeCounts() (map[models.Outcome]int, error) {
	counts := make(map[models.Outcome]int, len(models.Outcomes))
	for _, o := range models.Outcomes {
		counts[o] = 0
	}

	rows, err := db.db.Query("SELECT outcome, COUNT(*) FROM inference_runs GROUP BY outcome")
	if err != nil {
		return nil, fmt.Errorf("error counting inference runs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var outcome string
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, fmt.Errorf("error scanning outcome count: %w", err)
		}
		counts[models.Outcome(outcome)] = count
	}
	return counts, rows.Err()
}

// PruneRuns deletes runs created before cutoff and reports how many went.
func (db *SQLiteClient) PruneRuns(cutoff time.Time) (int64, error) {
	res, err := db.db.Exec("DELETE FROM inference_runs WHERE created_at < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune inference runs: %w", err)
	}
	return res.RowsAffected()
}
