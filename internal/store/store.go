// internal/store/store.go
// Description: Key-value persistence for credentials, mailbox authorization and sessions.
// Values are JSON documents; every backend speaks the same KV contract.

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// ErrEmptyKey is returned when a caller passes a blank key.
var ErrEmptyKey = errors.New("store: key must not be empty")

// KV is the storage collaborator. Get reports false when the key is absent.
type KV interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}) error
	Remove(ctx context.Context, key string) error
	Close() error
}

// Config selects and locates a backend.
type Config struct {
	Backend string
	// Path is the SQLite database file. A leading ~ is expanded.
	Path string
	// DSN is the PostgreSQL connection string.
	DSN string
}

// Open builds the configured backend.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (KV, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendSQLite:
		return OpenSQLite(ctx, cfg.Path, logger)
	case BackendMemory:
		return NewMemory(), nil
	case BackendPostgres:
		return OpenPostgres(ctx, cfg.DSN, logger)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func checkKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	return nil
}
