// Package store persists per-request inference statistics to SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"scoringd/internal/common/fsutil"
	"scoringd/pkg/types"
)

// Entry is one scoring cycle and its results.
type Entry struct {
	RequestID string
	At        time.Time
	TaskType  types.TaskType
	Legacy    bool
	Params    map[string]any
	Outcome   string
	Error     string
	Duration  time.Duration
	Results   []types.InferenceResult
}

type DB struct {
	*sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS requests(
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts REAL,
	req_id TEXT,
	task_type TEXT,
	legacy INTEGER,
	params_json TEXT,
	outcome TEXT,
	error TEXT,
	dur_ms REAL
);
CREATE TABLE IF NOT EXISTS results(
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	req_id TEXT,
	prompt_index INTEGER,
	response_text TEXT,
	error TEXT,
	inference_time_ms REAL,
	time_per_token_ms REAL,
	tokens_generated INTEGER,
	tokens_in INTEGER,
	tokens_out INTEGER
);
CREATE INDEX IF NOT EXISTS results_req_id ON results(req_id);
`

// Open opens (or creates) the database at path, creating parent directories,
// and applies the schema.
func Open(path string) (*DB, error) {
	p, err := fsutil.EnsureParentDir(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", p)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &DB{db}, nil
}

// Record writes the request row and one row per result in a transaction.
// GeneratedTokens is stored only as a count.
func (db *DB) Record(ctx context.Context, e Entry) error {
	params := ""
	if e.Params != nil {
		b, _ := json.Marshal(e.Params)
		params = string(b)
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT INTO requests(ts, req_id, task_type, legacy, params_json, outcome, error, dur_ms)
		VALUES(?,?,?,?,?,?,?,?)`,
		float64(e.At.UnixNano())/1e9, e.RequestID, string(e.TaskType), boolInt(e.Legacy), params, e.Outcome, e.Error,
		float64(e.Duration.Microseconds())/1000); err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	for _, r := range e.Results {
		if _, err := tx.ExecContext(ctx, `INSERT INTO results(req_id, prompt_index, response_text, error, inference_time_ms, time_per_token_ms, tokens_generated, tokens_in, tokens_out)
			VALUES(?,?,?,?,?,?,?,?,?)`,
			e.RequestID, nullInt(r.PromptIndex), r.Text(), r.ErrorText(), nullFloat(r.InferenceTimeMs), nullFloat(r.TimePerTokenMs),
			len(r.GeneratedTokens), nullInt(r.PromptTokenCount), nullInt(r.CompletionTokenCount)); err != nil {
			return fmt.Errorf("insert result: %w", err)
		}
	}
	return tx.Commit()
}

// ResultCount returns how many result rows exist for a request id.
func (db *DB) ResultCount(ctx context.Context, reqID string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM results WHERE req_id = ?`, reqID).Scan(&n)
	return n, err
}

// Outcome returns the recorded outcome label for a request id.
func (db *DB) Outcome(ctx context.Context, reqID string) (string, error) {
	var s string
	err := db.QueryRowContext(ctx, `SELECT outcome FROM requests WHERE req_id = ?`, reqID).Scan(&s)
	return s, err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}
