package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/BarkinBalci/behavior-telemetry/internal/store"
)

// KV implements store.KV on an on-device SQLite file
type KV struct {
	db  *sql.DB
	log *zap.Logger
}

// Open opens (or creates) the database at path and ensures the kv table
// exists. Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string, log *zap.Logger) (*KV, error) {
	log.Info("Opening SQLite store", zap.String("path", path))

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// A single connection keeps ":memory:" databases alive and serializes
	// writers at the driver level.
	db.SetMaxOpenConns(1)

	kv := &KV{db: db, log: log}
	if err := kv.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return kv, nil
}

func (k *KV) initSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	)`

	if _, err := k.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create kv table: %w", err)
	}
	if _, err := k.db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		k.log.Warn("Failed to enable WAL journal mode", zap.Error(err))
	}

	return nil
}

// Get returns the blob stored under key
func (k *KV) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := k.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite get %q: %w", key, err)
	}
	return value, nil
}

// Set upserts value under key
func (k *KV) Set(ctx context.Context, key string, value []byte) error {
	_, err := k.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlite set %q: %w", key, err)
	}
	return nil
}

func (k *KV) Delete(ctx context.Context, key string) error {
	if _, err := k.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("sqlite delete %q: %w", key, err)
	}
	return nil
}

func (k *KV) Ping(ctx context.Context) error {
	return k.db.PingContext(ctx)
}

// Close closes the database
func (k *KV) Close() error {
	k.log.Info("Closing SQLite store")
	return k.db.Close()
}
