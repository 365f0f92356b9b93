package main

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BarkinBalci/behavior-telemetry/internal/config"
	"github.com/BarkinBalci/behavior-telemetry/internal/sink"
	"github.com/BarkinBalci/behavior-telemetry/internal/sink/clickhouse"
	"github.com/BarkinBalci/behavior-telemetry/internal/sink/kafka"
	"github.com/BarkinBalci/behavior-telemetry/internal/sink/sqs"
	"github.com/BarkinBalci/behavior-telemetry/internal/store"
	"github.com/BarkinBalci/behavior-telemetry/internal/store/redis"
	"github.com/BarkinBalci/behavior-telemetry/internal/store/sqlite"
)

// openKV opens the configured persistent store backend
func openKV(ctx context.Context, cfg config.Store, log *zap.Logger) (store.KV, error) {
	switch strings.ToLower(cfg.Backend) {
	case "sqlite":
		return sqlite.Open(ctx, cfg.SQLitePath, log)
	case "redis":
		return redis.New(ctx, cfg.RedisURL, cfg.RedisPrefix, log)
	case "memory":
		log.Warn("Using in-memory store, events will not survive a restart")
		return store.NewMemoryKV(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q (supported: sqlite, redis, memory)", cfg.Backend)
	}
}

// buildSink connects every configured ingestion sink. It returns nil when
// none is configured, keeping events local only.
func buildSink(ctx context.Context, cfg *config.Config, log *zap.Logger) (sink.Sink, error) {
	var sinks []sink.Sink
	closeAll := func() {
		for _, s := range sinks {
			_ = s.Close()
		}
	}

	for _, name := range cfg.Ingestion.Sinks {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}

		var (
			s   sink.Sink
			err error
		)
		switch name {
		case "sqs":
			s, err = sqs.NewClient(ctx, cfg.SQS, log)
		case "clickhouse":
			s, err = newClickHouseSink(ctx, &cfg.ClickHouse, log)
		case "kafka":
			s, err = kafka.New(cfg.Kafka, log)
		default:
			err = fmt.Errorf("unknown ingestion sink %q (supported: sqs, clickhouse, kafka)", name)
		}
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("failed to create %s sink: %w", name, err)
		}

		log.Info("Ingestion sink configured", zap.String("sink", name))
		sinks = append(sinks, s)
	}

	switch len(sinks) {
	case 0:
		return nil, nil
	case 1:
		return sinks[0], nil
	default:
		return sink.NewMulti(log, sinks...), nil
	}
}

func newClickHouseSink(ctx context.Context, cfg *config.ClickHouse, log *zap.Logger) (sink.Sink, error) {
	client, err := clickhouse.NewClient(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	s := clickhouse.NewSink(client, log)
	if err := s.InitSchema(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	log.Info("Database schema initialized")
	return s, nil
}
