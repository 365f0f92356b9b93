package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BarkinBalci/behavior-telemetry/internal/config"
	"github.com/BarkinBalci/behavior-telemetry/internal/sink"
	"github.com/BarkinBalci/behavior-telemetry/internal/store"
)

func TestOpenKV_Backends(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	cases := []config.Store{
		{Backend: "memory"},
		{Backend: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "telemetry.db")},
		{Backend: "REDIS", RedisURL: "redis://" + mr.Addr() + "/0", RedisPrefix: "test:"},
	}

	for _, cfg := range cases {
		t.Run(cfg.Backend, func(t *testing.T) {
			kv, err := openKV(ctx, cfg, zap.NewNop())
			require.NoError(t, err)
			defer kv.Close()

			assert.NoError(t, kv.Set(ctx, store.EventsKey, []byte("[]")))
			value, err := kv.Get(ctx, store.EventsKey)
			assert.NoError(t, err)
			assert.Equal(t, []byte("[]"), value)
		})
	}
}

func TestOpenKV_UnknownBackend(t *testing.T) {
	_, err := openKV(context.Background(), config.Store{Backend: "etcd"}, zap.NewNop())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown store backend")
}

func TestBuildSink_NoneConfigured(t *testing.T) {
	s, err := buildSink(context.Background(), &config.Config{}, zap.NewNop())

	assert.NoError(t, err)
	assert.Nil(t, s)
}

func TestBuildSink_Kafka(t *testing.T) {
	cfg := &config.Config{
		Ingestion: config.Ingestion{Sinks: []string{" kafka "}},
		Kafka:     config.Kafka{Brokers: []string{"localhost:9092"}, Topic: "telemetry-events"},
	}

	s, err := buildSink(context.Background(), cfg, zap.NewNop())

	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, "kafka", s.Name())
}

func TestBuildSink_Multiple(t *testing.T) {
	cfg := &config.Config{
		Ingestion: config.Ingestion{Sinks: []string{"kafka", "sqs"}},
		Kafka:     config.Kafka{Brokers: []string{"localhost:9092"}, Topic: "telemetry-events"},
		SQS: config.SQS{
			Endpoint: "http://localhost:4566",
			QueueURL: "http://localhost:4566/000000000000/telemetry",
			Region:   "us-east-1",
		},
	}

	s, err := buildSink(context.Background(), cfg, zap.NewNop())

	require.NoError(t, err)
	defer s.Close()
	assert.IsType(t, &sink.Multi{}, s)
}

func TestBuildSink_Unknown(t *testing.T) {
	cfg := &config.Config{Ingestion: config.Ingestion{Sinks: []string{"kafka", "pubsub"}}}

	_, err := buildSink(context.Background(), cfg, zap.NewNop())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown ingestion sink")
}
