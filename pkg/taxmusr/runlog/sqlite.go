package runlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/steuerlab/taxmusr/pkg/taxmusr/internalerr"
)

// sqliteStore implements Store on a SQLite database.
type sqliteStore struct {
	db *sql.DB
}

// OpenSQLite opens a SQLite-backed run log with WAL mode enabled, creating
// the schema if needed.
func OpenSQLite(ctx context.Context, path string) (Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", internalerr.ErrStoreUnavailable, err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", internalerr.ErrStoreUnavailable, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", internalerr.ErrStoreUnavailable, err)
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", internalerr.ErrStoreUnavailable, err)
	}
	return &sqliteStore{db: db}, nil
}

func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	domain TEXT,
	model TEXT,
	workflow TEXT,
	started_at TEXT NOT NULL,
	finished_at TEXT
);

CREATE TABLE IF NOT EXISTS samples (
	run_id TEXT NOT NULL,
	case_id TEXT NOT NULL,
	status TEXT NOT NULL,
	verdict TEXT,
	error TEXT,
	prompt_tokens INTEGER DEFAULT 0,
	completion_tokens INTEGER DEFAULT 0,
	total_tokens INTEGER DEFAULT 0,
	created_at TEXT NOT NULL,
	FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_samples_run ON samples(run_id);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

func (s *sqliteStore) CreateRun(ctx context.Context, r Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, kind, domain, model, workflow, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.Kind, r.Domain, r.Model, r.Workflow, r.StartedAt.UTC().Format(time.RFC3339Nano))
	return err
}

func (s *sqliteStore) FinishRun(ctx context.Context, id string, finishedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ? WHERE id = ?`,
		finishedAt.UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("runlog: run %s not found", id)
	}
	return nil
}

func (s *sqliteStore) GetRun(ctx context.Context, id string) (Run, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, kind, domain, model, workflow, started_at, finished_at FROM runs WHERE id = ?`, id)

	var r Run
	var started string
	var finished sql.NullString
	err := row.Scan(&r.ID, &r.Kind, &r.Domain, &r.Model, &r.Workflow, &started, &finished)
	if err == sql.ErrNoRows {
		return Run{}, false, nil
	}
	if err != nil {
		return Run{}, false, err
	}
	if r.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return Run{}, false, err
	}
	if finished.Valid {
		if r.FinishedAt, err = time.Parse(time.RFC3339Nano, finished.String); err != nil {
			return Run{}, false, err
		}
	}
	return r, true, nil
}

func (s *sqliteStore) RecordSample(ctx context.Context, sm Sample) error {
	if sm.CreatedAt.IsZero() {
		sm.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO samples (run_id, case_id, status, verdict, error, prompt_tokens, completion_tokens, total_tokens, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sm.RunID, sm.CaseID, sm.Status, sm.Verdict, sm.Error,
		sm.PromptTokens, sm.CompletionTokens, sm.TotalTokens,
		sm.CreatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

func (s *sqliteStore) SamplesForRun(ctx context.Context, runID string) ([]Sample, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, case_id, status, verdict, error, prompt_tokens, completion_tokens, total_tokens, created_at
		 FROM samples WHERE run_id = ? ORDER BY created_at, case_id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Sample
	for rows.Next() {
		var sm Sample
		var created string
		if err := rows.Scan(&sm.RunID, &sm.CaseID, &sm.Status, &sm.Verdict, &sm.Error,
			&sm.PromptTokens, &sm.CompletionTokens, &sm.TotalTokens, &created); err != nil {
			return nil, err
		}
		if sm.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, err
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}

func (s *sqliteStore) RunStats(ctx context.Context, runID string) (Stats, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(status = 'failed'), 0), COALESCE(SUM(total_tokens), 0)
		 FROM samples WHERE run_id = ?`, runID)
	var st Stats
	if err := row.Scan(&st.Samples, &st.Failed, &st.TotalTokens); err != nil {
		return Stats{}, err
	}
	return st, nil
}
