package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// ExternalPolicy decides what happens when an edge endpoint has no stored
// entity.
type ExternalPolicy string

const (
	// PolicyPlaceholder inserts an explicit external row and links to it.
	PolicyPlaceholder ExternalPolicy = "placeholder"
	// PolicyReject refuses the edge and reports it as unresolved.
	PolicyReject ExternalPolicy = "reject"
)

// Valid reports whether p names a known policy.
func (p ExternalPolicy) Valid() bool {
	return p == PolicyPlaceholder || p == PolicyReject
}

// Store is the SQLite graph store: functions, types, inheritance, call
// edges and their context stacks.
type Store struct {
	db     *sql.DB
	policy ExternalPolicy
}

// Option configures a Store.
type Option func(*Store)

// WithExternalPolicy sets how unresolved edge endpoints are handled.
func WithExternalPolicy(p ExternalPolicy) Option {
	return func(s *Store) { s.policy = p }
}

// NewStore opens a SQLite database at dbPath with WAL mode and foreign keys
// enabled.
func NewStore(dbPath string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db, policy: PolicyPlaceholder}
	for _, opt := range opts {
		opt(s)
	}
	if !s.policy.Valid() {
		db.Close()
		return nil, fmt.Errorf("unknown external policy %q", s.policy)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Policy returns the external policy in effect.
func (s *Store) Policy() ExternalPolicy {
	return s.policy
}

// EnsureSchema creates all tables and indexes. Idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS functions (
  id                  INTEGER PRIMARY KEY AUTOINCREMENT,
  qualified_name      TEXT NOT NULL,
  signature           TEXT NOT NULL DEFAULT '',
  name                TEXT NOT NULL,
  display_name        TEXT,
  kind                TEXT NOT NULL,
  return_type         TEXT,
  parameters          TEXT,
  file_path           TEXT,
  line                INTEGER,
  col                 INTEGER,
  is_definition       BOOLEAN NOT NULL DEFAULT 0,
  is_virtual          BOOLEAN NOT NULL DEFAULT 0,
  is_function_pointer BOOLEAN NOT NULL DEFAULT 0,
  pointer_level       INTEGER NOT NULL DEFAULT 0,
  is_external         BOOLEAN NOT NULL DEFAULT 0,
  UNIQUE (qualified_name, signature)
);

CREATE TABLE IF NOT EXISTS types (
  id              INTEGER PRIMARY KEY AUTOINCREMENT,
  qualified_name  TEXT NOT NULL UNIQUE,
  name            TEXT NOT NULL,
  kind            TEXT NOT NULL,
  file_path       TEXT,
  line            INTEGER,
  col             INTEGER,
  is_definition   BOOLEAN NOT NULL DEFAULT 0,
  is_external     BOOLEAN NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS inheritance (
  derived_id  INTEGER NOT NULL REFERENCES types(id),
  base_id     INTEGER NOT NULL REFERENCES types(id),
  ordinal     INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (derived_id, base_id)
);

CREATE TABLE IF NOT EXISTS calls (
  id                        INTEGER PRIMARY KEY AUTOINCREMENT,
  caller_id                 INTEGER NOT NULL REFERENCES functions(id),
  callee_id                 INTEGER NOT NULL REFERENCES functions(id),
  callee_identity           TEXT NOT NULL,
  file_path                 TEXT NOT NULL,
  line                      INTEGER NOT NULL,
  col                       INTEGER NOT NULL,
  unit_path                 TEXT,
  is_virtual                BOOLEAN NOT NULL DEFAULT 0,
  is_template_instantiation BOOLEAN NOT NULL DEFAULT 0,
  is_exception_path         BOOLEAN NOT NULL DEFAULT 0,
  is_macro_expansion        BOOLEAN NOT NULL DEFAULT 0,
  is_dynamic_cast           BOOLEAN NOT NULL DEFAULT 0,
  is_typeid                 BOOLEAN NOT NULL DEFAULT 0,
  is_function_pointer       BOOLEAN NOT NULL DEFAULT 0,
  is_async                  BOOLEAN NOT NULL DEFAULT 0,
  macro_file                TEXT,
  macro_line                INTEGER,
  run_id                    TEXT,
  UNIQUE (caller_id, callee_id, file_path, line, col)
);

CREATE TABLE IF NOT EXISTS call_contexts (
  call_id      INTEGER NOT NULL REFERENCES calls(id) ON DELETE CASCADE,
  function_id  INTEGER NOT NULL REFERENCES functions(id),
  depth        INTEGER NOT NULL,
  PRIMARY KEY (call_id, function_id)
);

CREATE TABLE IF NOT EXISTS call_candidates (
  call_id      INTEGER NOT NULL REFERENCES calls(id) ON DELETE CASCADE,
  function_id  INTEGER NOT NULL REFERENCES functions(id),
  rank         INTEGER NOT NULL,
  PRIMARY KEY (call_id, function_id)
);

CREATE TABLE IF NOT EXISTS runs (
  id              TEXT PRIMARY KEY,
  unit_path       TEXT NOT NULL,
  facts_hash      TEXT NOT NULL DEFAULT '',
  started_at      TIMESTAMP NOT NULL,
  finished_at     TIMESTAMP NOT NULL,
  functions       INTEGER NOT NULL DEFAULT 0,
  types           INTEGER NOT NULL DEFAULT 0,
  calls           INTEGER NOT NULL DEFAULT 0,
  rejected        INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_functions_name ON functions(name);
CREATE INDEX IF NOT EXISTS idx_calls_caller ON calls(caller_id);
CREATE INDEX IF NOT EXISTS idx_calls_callee ON calls(callee_id);
CREATE INDEX IF NOT EXISTS idx_calls_unit ON calls(unit_path);
CREATE INDEX IF NOT EXISTS idx_call_contexts_function ON call_contexts(function_id);
CREATE INDEX IF NOT EXISTS idx_call_candidates_function ON call_candidates(function_id);
CREATE INDEX IF NOT EXISTS idx_inheritance_base ON inheritance(base_id);
CREATE INDEX IF NOT EXISTS idx_runs_unit ON runs(unit_path, finished_at);
`
