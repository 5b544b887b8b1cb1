// Package results persists finished game runs in SQLite so repeated runs
// with identical parameters can be served from cache.
package results

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/signalsfoundry/orbital-federates/internal/ofs"
)

// InMemory opens a private database that disappears on Close.
const InMemory = ":memory:"

// Run is one stored game execution.
type Run struct {
	ID        string
	Key       string
	Params    ofs.Params
	Results   []ofs.Result
	StartedAt time.Time
	Elapsed   time.Duration
}

// Store is a SQLite-backed run cache.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if path != InMemory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db, path != InMemory); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

func initPragmas(db *sql.DB, onDisk bool) error {
	pragmas := []string{
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	if onDisk {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL;", "PRAGMA synchronous=NORMAL;")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			params_key TEXT NOT NULL,
			params_json TEXT NOT NULL,
			started_at TEXT NOT NULL,
			elapsed_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS runs_params_key ON runs(params_key, started_at);`,
		`CREATE TABLE IF NOT EXISTS results (
			run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			federate TEXT NOT NULL,
			initial_cash REAL NOT NULL,
			final_cash REAL NOT NULL,
			PRIMARY KEY (run_id, position)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("sqlite schema: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Key is the cache key of p: the hex sha256 of its JSON encoding.
func Key(p ofs.Params) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// NewRunID returns a fresh run identifier.
func NewRunID() string { return uuid.New().String() }

// Save stores a finished run under id. An empty id is replaced by a new one;
// the stored id is returned.
func (s *Store) Save(ctx context.Context, id string, p ofs.Params, res []ofs.Result, elapsed time.Duration) (string, error) {
	key, err := Key(p)
	if err != nil {
		return "", err
	}
	paramsJSON, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	if id == "" {
		id = NewRunID()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs(run_id, params_key, params_json, started_at, elapsed_ms) VALUES(?,?,?,?,?)`,
		id, key, string(paramsJSON), s.now().UTC().Format(time.RFC3339Nano), elapsed.Milliseconds(),
	); err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	for i, r := range res {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO results(run_id, position, federate, initial_cash, final_cash) VALUES(?,?,?,?,?)`,
			id, i, r.Federate, r.InitialCash, r.FinalCash,
		); err != nil {
			return "", fmt.Errorf("insert result %s: %w", r.Federate, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// Lookup returns the most recent run stored for p. The boolean is false on a
// cache miss.
func (s *Store) Lookup(ctx context.Context, p ofs.Params) (*Run, bool, error) {
	key, err := Key(p)
	if err != nil {
		return nil, false, err
	}
	var id string
	err = s.db.QueryRowContext(ctx,
		`SELECT run_id FROM runs WHERE params_key = ? ORDER BY started_at DESC LIMIT 1`, key,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	run, err := s.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return run, true, nil
}

// Get loads a run by id.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	run := &Run{ID: id}
	var paramsJSON, started string
	var elapsedMS int64
	err := s.db.QueryRowContext(ctx,
		`SELECT params_key, params_json, started_at, elapsed_ms FROM runs WHERE run_id = ?`, id,
	).Scan(&run.Key, &paramsJSON, &started, &elapsedMS)
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(paramsJSON), &run.Params); err != nil {
		return nil, fmt.Errorf("decode params of run %s: %w", id, err)
	}
	if run.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return nil, fmt.Errorf("decode start of run %s: %w", id, err)
	}
	run.Elapsed = time.Duration(elapsedMS) * time.Millisecond

	rows, err := s.db.QueryContext(ctx,
		`SELECT federate, initial_cash, final_cash FROM results WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var r ofs.Result
		if err := rows.Scan(&r.Federate, &r.InitialCash, &r.FinalCash); err != nil {
			return nil, err
		}
		run.Results = append(run.Results, r)
	}
	return run, rows.Err()
}

// Count returns the number of stored runs.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&n)
	return n, err
}

// Executor runs games. *ofs.Game satisfies it.
type Executor interface {
	Execute(ctx context.Context, p ofs.Params) ([]ofs.Result, error)
}

// Cached executes p through exec unless a stored run already exists. The
// boolean reports a cache hit.
func (s *Store) Cached(ctx context.Context, exec Executor, p ofs.Params) (*Run, bool, error) {
	if run, ok, err := s.Lookup(ctx, p); err != nil || ok {
		return run, ok, err
	}
	start := s.now()
	res, err := exec.Execute(ctx, p)
	if err != nil {
		return nil, false, err
	}
	elapsed := s.now().Sub(start)
	id, err := s.Save(ctx, "", p, res, elapsed)
	if err != nil {
		return nil, false, err
	}
	key, _ := Key(p)
	return &Run{ID: id, Key: key, Params: p, Results: res, StartedAt: start, Elapsed: elapsed}, false, nil
}
