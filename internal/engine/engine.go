// Package engine adapts SQLFlow's plan execution onto an embedded SQL
// engine. The embedded engine is SQLite via database/sql and go-sqlite3 —
// the only embedded driver carried by the example corpus — configured for
// WAL durability per spec §5. Profile documents still use the key name
// "engines.duckdb" for the section (spec.md's normative external interface);
// internally it addresses this SQLite-backed adapter (see DESIGN.md).
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/giaosudau/sqlflow-sub007/internal/ops"
)

// Mode selects whether the engine persists to disk or lives only in memory.
type Mode string

const (
	ModeMemory     Mode = "memory"
	ModePersistent Mode = "persistent"
)

// Config configures a new Engine.
type Config struct {
	Mode        Mode
	Path        string // required when Mode == ModePersistent
	MemoryLimit string // advisory; SQLite has no hard memory cap, logged only
	Logger      ops.Logger
}

// autocheckpointPages is the WAL auto-checkpoint threshold spec §5 requires.
const autocheckpointPages = 1000

// Engine is a single embedded-database handle. Only one Engine may run
// against a persistent Path at a time (see §5's EngineLocked requirement).
type Engine struct {
	db     *sql.DB
	log    ops.Logger
	lockFd *os.File // nil in memory mode
	path   string
	tables registered
}

// Open opens (or creates) the engine, applying WAL pragmas in persistent
// mode, and acquires an exclusive lock file alongside Path so a second
// executor instance against the same file fails fast with EngineLocked.
func Open(ctx context.Context, cfg Config) (*Engine, error) {
	log := cfg.Logger
	if log == nil {
		log = ops.Discard
	}

	var dsn string
	var lockFd *os.File
	switch cfg.Mode {
	case ModeMemory, "":
		dsn = "file::memory:?cache=shared"
	case ModePersistent:
		if cfg.Path == "" {
			return nil, &EngineInternal{Cause: fmt.Errorf("engine: persistent mode requires a path")}
		}
		fd, err := acquireLock(cfg.Path)
		if err != nil {
			return nil, err
		}
		lockFd = fd
		dsn = cfg.Path
	default:
		return nil, &EngineInternal{Cause: fmt.Errorf("engine: unknown mode %q", cfg.Mode)}
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		if lockFd != nil {
			releaseLock(lockFd, cfg.Path)
		}
		return nil, &EngineInternal{Cause: err}
	}
	db.SetMaxOpenConns(1) // single-writer engine handle, per §5 "only the executor mutates the engine"

	e := &Engine{db: db, log: log, lockFd: lockFd, path: cfg.Path}

	if cfg.Mode == ModePersistent {
		if err := e.applyWALPragmas(ctx); err != nil {
			e.Close()
			return nil, err
		}
	}

	if cfg.MemoryLimit != "" {
		log.Log(logrus.InfoLevel, nil, fmt.Sprintf("engine: memory_limit %q is advisory under the sqlite adapter and is not enforced", cfg.MemoryLimit))
	}

	return e, nil
}

func (e *Engine) applyWALPragmas(ctx context.Context) error {
	stmts := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		fmt.Sprintf("PRAGMA wal_autocheckpoint=%d", autocheckpointPages),
	}
	for _, s := range stmts {
		if _, err := e.db.ExecContext(ctx, s); err != nil {
			return &EngineInternal{Cause: fmt.Errorf("applying %q: %w", s, err)}
		}
	}
	return nil
}

// Checkpoint runs the WAL checkpoint primitive. It is a no-op (but not an
// error) in memory mode.
func (e *Engine) Checkpoint(ctx context.Context) error {
	if e.path == "" {
		return nil
	}
	if _, err := e.db.ExecContext(ctx, "PRAGMA wal_checkpoint(FULL)"); err != nil {
		return &EngineInternal{Cause: err}
	}
	return nil
}

// Begin starts a transaction. Callers must Commit or Rollback it.
func (e *Engine) Begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &EngineInternal{Cause: err}
	}
	return tx, nil
}

// Exec runs a parameterless statement outside of any explicit transaction
// (used for idempotent table/view registration, which SQLite auto-commits).
func (e *Engine) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := e.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, &EngineInternal{Cause: err}
	}
	return res, nil
}

// Query runs a SELECT outside of any explicit transaction.
func (e *Engine) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &EngineInternal{Cause: err}
	}
	return rows, nil
}

// Close releases the underlying handle and, in persistent mode, the lock
// file.
func (e *Engine) Close() error {
	err := e.db.Close()
	if e.lockFd != nil {
		releaseLock(e.lockFd, e.path)
	}
	if err != nil {
		return &EngineInternal{Cause: err}
	}
	return nil
}

func lockPath(dbPath string) string {
	return dbPath + ".lock"
}

// acquireLock implements the "file-lock or equivalent" requirement of §5
// with O_EXCL create, which is portable and needs no third-party library:
// a second Open against the same Path fails immediately with EngineLocked
// rather than corrupting the WAL file.
func acquireLock(dbPath string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil && !os.IsExist(err) {
		return nil, &EngineInternal{Cause: err}
	}
	fd, err := os.OpenFile(lockPath(dbPath), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, &EngineLocked{Path: dbPath}
		}
		return nil, &EngineInternal{Cause: err}
	}
	return fd, nil
}

func releaseLock(fd *os.File, dbPath string) {
	fd.Close()
	os.Remove(lockPath(dbPath))
}
