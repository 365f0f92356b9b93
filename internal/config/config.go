package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the root configuration, populated from the environment
type Config struct {
	Service    Service    `envconfig:"SERVICE"`
	Engine     Engine     `envconfig:"ENGINE"`
	Store      Store      `envconfig:"STORE"`
	Ingestion  Ingestion  `envconfig:"INGESTION"`
	App        App        `envconfig:"APP"`
	Device     Device     `envconfig:"DEVICE"`
	SQS        SQS        `envconfig:"SQS"`
	ClickHouse ClickHouse `envconfig:"CLICKHOUSE"`
	Kafka      Kafka      `envconfig:"KAFKA"`
}

type Service struct {
	Environment string `envconfig:"ENVIRONMENT" required:"true"`
	APIPort     string `envconfig:"API_PORT" default:"8080"`
	LogLevel    string `envconfig:"LOG_LEVEL"`
}

// Engine holds the capture, session and upload tuning knobs
type Engine struct {
	SessionTimeout      time.Duration `envconfig:"SESSION_TIMEOUT" default:"30m"`
	UploadInterval      time.Duration `envconfig:"UPLOAD_INTERVAL" default:"5m"`
	FlushThreshold      int           `envconfig:"FLUSH_THRESHOLD" default:"50"`
	RetentionDays       int           `envconfig:"RETENTION_DAYS" default:"90"`
	ImportantProperties []string      `envconfig:"IMPORTANT_PROPERTIES" default:"user_id,user_type,subscription_status,is_premium,language"`
	CleanupSchedule     string        `envconfig:"CLEANUP_SCHEDULE" default:"@daily"`
	ShutdownTimeout     time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// RetentionWindow converts RetentionDays into a duration
func (e Engine) RetentionWindow() time.Duration {
	return time.Duration(e.RetentionDays) * 24 * time.Hour
}

type Store struct {
	Backend     string `envconfig:"BACKEND" default:"sqlite"`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"telemetry.db"`
	RedisURL    string `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`
	RedisPrefix string `envconfig:"REDIS_PREFIX" default:"telemetry:"`
}

// Ingestion selects the remote sinks batches are delivered to. Empty keeps
// events local only.
type Ingestion struct {
	Sinks []string `envconfig:"SINKS"`
}

type App struct {
	Name    string `envconfig:"NAME" default:"behavior-telemetry"`
	Version string `envconfig:"VERSION" default:"0.0.0"`
	Build   string `envconfig:"BUILD" default:"dev"`
	Package string `envconfig:"PACKAGE" default:"com.barkinbalci.telemetry"`
}

type Device struct {
	Model  string `envconfig:"MODEL"`
	Locale string `envconfig:"LOCALE"`
}

type SQS struct {
	Endpoint string `envconfig:"ENDPOINT"`
	QueueURL string `envconfig:"QUEUE_URL"`
	Region   string `envconfig:"REGION" default:"us-east-1"`
}

type ClickHouse struct {
	Host            string `envconfig:"HOST" default:"localhost"`
	Port            string `envconfig:"PORT" default:"9000"`
	Database        string `envconfig:"DB" default:"default"`
	User            string `envconfig:"USER" default:""`
	Password        string `envconfig:"PASSWORD" default:""`
	UseTLS          bool   `envconfig:"USE_TLS" default:"false"`
	MaxOpenConns    int    `envconfig:"MAX_OPEN_CONNS" default:"5"`
	MaxIdleConns    int    `envconfig:"MAX_IDLE_CONNS" default:"2"`
	ConnMaxLifetime int    `envconfig:"CONN_MAX_LIFETIME_SEC" default:"3600"`
}

type Kafka struct {
	Brokers []string `envconfig:"BROKERS" default:"localhost:9092"`
	Topic   string   `envconfig:"TOPIC" default:"telemetry-events"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if cfg.Engine.FlushThreshold <= 0 {
		return nil, fmt.Errorf("ENGINE_FLUSH_THRESHOLD must be positive, got %d", cfg.Engine.FlushThreshold)
	}
	if cfg.Engine.RetentionDays <= 0 {
		return nil, fmt.Errorf("ENGINE_RETENTION_DAYS must be positive, got %d", cfg.Engine.RetentionDays)
	}

	return &cfg, nil
}
