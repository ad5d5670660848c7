// internal/store/postgres.go
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
)

const (
	pgSchema = `
        CREATE TABLE IF NOT EXISTS erplogin_kv (
            key        TEXT PRIMARY KEY,
            value      JSONB NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL
        );
    `
	pgSelect = `SELECT value::text FROM erplogin_kv WHERE key = $1`
	pgUpsert = `
        INSERT INTO erplogin_kv (key, value, updated_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (key) DO UPDATE SET
            value = EXCLUDED.value,
            updated_at = EXCLUDED.updated_at;
    `
	pgDelete = `DELETE FROM erplogin_kv WHERE key = $1`
)

// DBPool abstracts pgxpool.Pool so the store can be driven by pgxmock in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// Postgres is a KV over a shared PostgreSQL database, for users who run the CLI from
// several machines.
type Postgres struct {
	pool DBPool
	log  *zap.Logger
}

// OpenPostgres connects to dsn and prepares the table.
func OpenPostgres(ctx context.Context, dsn string, logger *zap.Logger) (*Postgres, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres store requires a DSN")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	s, err := NewPostgres(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgres verifies the connection and ensures the schema exists.
func NewPostgres(ctx context.Context, pool DBPool, logger *zap.Logger) (*Postgres, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Postgres{
		pool: pool,
		log:  logger.Named("store").With(zap.String("backend", BackendPostgres)),
	}, nil
}

func (s *Postgres) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if err := checkKey(key); err != nil {
		return false, err
	}
	rows, err := s.pool.Query(ctx, pgSelect, key)
	if err != nil {
		return false, fmt.Errorf("failed to query key %q: %w", key, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return false, rows.Err()
	}
	var raw string
	if err := rows.Scan(&raw); err != nil {
		return false, fmt.Errorf("failed to scan key %q: %w", key, err)
	}
	if err := json.UnmarshalFromString(raw, dest); err != nil {
		return false, fmt.Errorf("failed to decode key %q: %w", key, err)
	}
	return true, nil
}

func (s *Postgres) Set(ctx context.Context, key string, value interface{}) error {
	if err := checkKey(key); err != nil {
		return err
	}
	raw, err := json.MarshalToString(value)
	if err != nil {
		return fmt.Errorf("failed to encode key %q: %w", key, err)
	}
	// UTC avoids ambiguity across client time zones.
	if _, err := s.pool.Exec(ctx, pgUpsert, key, raw, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to write key %q: %w", key, err)
	}
	return nil
}

func (s *Postgres) Remove(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, pgDelete, key)
	if err != nil {
		return fmt.Errorf("failed to remove key %q: %w", key, err)
	}
	s.log.Debug("Key removed.", zap.String("key", key), zap.Int64("rows", tag.RowsAffected()))
	return nil
}

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}
