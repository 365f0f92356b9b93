package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BarkinBalci/behavior-telemetry/internal/store"
)

// KV implements store.KV on a Redis instance. Keys are namespaced with a
// prefix so several engines can share one database.
type KV struct {
	client *goredis.Client
	prefix string
	log    *zap.Logger
}

// New connects to the Redis instance at url and verifies the connection
func New(ctx context.Context, url, prefix string, log *zap.Logger) (*KV, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := goredis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	log.Info("Redis store connected",
		zap.String("addr", opts.Addr),
		zap.Int("db", opts.DB),
		zap.String("prefix", prefix))

	return &KV{client: client, prefix: prefix, log: log}, nil
}

func (k *KV) key(key string) string {
	return k.prefix + key
}

// Get returns the blob stored under key
func (k *KV) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := k.client.Get(ctx, k.key(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return data, nil
}

// Set stores value under key without expiry; retention is enforced by the
// event store, not by key TTLs
func (k *KV) Set(ctx context.Context, key string, value []byte) error {
	if err := k.client.Set(ctx, k.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (k *KV) Delete(ctx context.Context, key string) error {
	if err := k.client.Del(ctx, k.key(key)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (k *KV) Ping(ctx context.Context) error {
	return k.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (k *KV) Close() error {
	return k.client.Close()
}
