// internal/store/sqlite.go
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	json "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	// Registers the pure-Go "sqlite" driver.
	_ "modernc.org/sqlite"
)

// DefaultSQLitePath is where the CLI keeps its state when nothing else is configured.
const DefaultSQLitePath = "~/.erplogin/state.db"

const (
	sqliteSchema = `CREATE TABLE IF NOT EXISTS kv (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);`
	sqliteSelect = `SELECT value FROM kv WHERE key = ?`
	sqliteUpsert = `INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	sqliteDelete = `DELETE FROM kv WHERE key = ?`
)

// SQLite is a file-backed KV.
type SQLite struct {
	db   *sql.DB
	path string
	log  *zap.Logger
}

// OpenSQLite opens (creating if needed) the database file and its table.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*SQLite, error) {
	if path == "" {
		path = DefaultSQLitePath
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand store path %q: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}
	// One writer keeps SQLite from returning SQLITE_BUSY under concurrent commands.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize sqlite schema: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("store").With(zap.String("backend", BackendSQLite))
	log.Debug("SQLite store opened.", zap.String("path", expanded))
	return &SQLite{db: db, path: expanded, log: log}, nil
}

// Path returns the expanded database location.
func (s *SQLite) Path() string { return s.path }

func (s *SQLite) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if err := checkKey(key); err != nil {
		return false, err
	}
	var raw string
	err := s.db.QueryRowContext(ctx, sqliteSelect, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read key %q: %w", key, err)
	}
	if err := json.UnmarshalFromString(raw, dest); err != nil {
		return false, fmt.Errorf("failed to decode key %q: %w", key, err)
	}
	return true, nil
}

func (s *SQLite) Set(ctx context.Context, key string, value interface{}) error {
	if err := checkKey(key); err != nil {
		return err
	}
	raw, err := json.MarshalToString(value)
	if err != nil {
		return fmt.Errorf("failed to encode key %q: %w", key, err)
	}
	if _, err := s.db.ExecContext(ctx, sqliteUpsert, key, raw, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to write key %q: %w", key, err)
	}
	return nil
}

func (s *SQLite) Remove(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, sqliteDelete, key); err != nil {
		return fmt.Errorf("failed to remove key %q: %w", key, err)
	}
	return nil
}

func (s *SQLite) Close() error { return s.db.Close() }
