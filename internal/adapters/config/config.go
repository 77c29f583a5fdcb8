package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"irrigation/pkg/errors"
)

type Config struct {
	App           AppConfig
	HTTP          HTTPConfig
	Auth          AuthConfig
	Model         ModelConfig
	Training      TrainingConfig
	Postgres      PostgresConfig
	ClickHouse    ClickHouseConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	ErrorTracking ErrorTrackingConfig
	Workers       WorkerConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"irrigation-advisor"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	Version  string `envconfig:"APP_VERSION" default:"dev"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

type HTTPConfig struct {
	Port            int           `envconfig:"HTTP_PORT" default:"8000"`
	ReadTimeout     time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"30s"`
	IdleTimeout     time.Duration `envconfig:"HTTP_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"15s"`
	CORSOrigins     []string      `envconfig:"HTTP_CORS_ORIGINS" default:"http://localhost:3000"`
}

// AuthConfig guards privileged endpoints. An empty secret leaves them open.
type AuthConfig struct {
	JWTSecret string        `envconfig:"HTTP_ADMIN_JWT_SECRET"`
	Issuer    string        `envconfig:"HTTP_ADMIN_JWT_ISSUER" default:"irrigation-advisor"`
	TokenTTL  time.Duration `envconfig:"HTTP_ADMIN_TOKEN_TTL" default:"24h"`
}

// Enabled reports whether retrain requires an operator token
func (c AuthConfig) Enabled() bool {
	return c.JWTSecret != ""
}

// ModelConfig controls where the active bundle lives
type ModelConfig struct {
	Store           string `envconfig:"MODEL_STORE" default:"file"` // file | redis
	Path            string `envconfig:"MODEL_PATH" default:"models/irrigation_bundle.json"`
	RedisKey        string `envconfig:"MODEL_REDIS_KEY" default:"irrigation:bundle"`
	ONNXLibraryPath string `envconfig:"ONNX_LIBRARY_PATH"`
}

// TrainingConfig holds hyper-parameters for the retrain pipeline
type TrainingConfig struct {
	Classifier      string        `envconfig:"TRAINING_CLASSIFIER" default:"logistic"`
	Encoding        string        `envconfig:"TRAINING_ENCODING" default:"raw"` // raw | coded
	IncludeCropID   bool          `envconfig:"TRAINING_INCLUDE_CROP_ID" default:"false"`
	ValidationSplit float64       `envconfig:"TRAINING_VALIDATION_SPLIT" default:"0.2"`
	Seed            int64         `envconfig:"TRAINING_SEED" default:"42"`
	MinExamples     int           `envconfig:"TRAINING_MIN_EXAMPLES" default:"10"`
	Epochs          int           `envconfig:"TRAINING_EPOCHS" default:"500"`
	LearningRate    float64       `envconfig:"TRAINING_LEARNING_RATE" default:"0.1"`
	L2              float64       `envconfig:"TRAINING_L2" default:"0.001"`
	Timeout         time.Duration `envconfig:"TRAINING_TIMEOUT" default:"10m"`
	MaxUploadMB     int64         `envconfig:"TRAINING_MAX_UPLOAD_MB" default:"20"`
	RetrainPerMin   float64       `envconfig:"RETRAIN_RATE_PER_MINUTE" default:"2"`
	RetrainBurst    int           `envconfig:"RETRAIN_BURST" default:"1"`
}

type PostgresConfig struct {
	Enabled  bool   `envconfig:"POSTGRES_ENABLED" default:"false"`
	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" default:"postgres"`
	Password string `envconfig:"POSTGRES_PASSWORD"`
	Database string `envconfig:"POSTGRES_DB" default:"irrigation"`
	SSLMode  string `envconfig:"POSTGRES_SSL_MODE" default:"disable"`
	MaxConns int    `envconfig:"POSTGRES_MAX_CONNS" default:"10"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

type ClickHouseConfig struct {
	Enabled       bool          `envconfig:"CLICKHOUSE_ENABLED" default:"false"`
	Host          string        `envconfig:"CLICKHOUSE_HOST" default:"localhost"`
	Port          int           `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	User          string        `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password      string        `envconfig:"CLICKHOUSE_PASSWORD"`
	Database      string        `envconfig:"CLICKHOUSE_DB" default:"irrigation"`
	FlushInterval time.Duration `envconfig:"CLICKHOUSE_FLUSH_INTERVAL" default:"5s"`
	BatchSize     int           `envconfig:"CLICKHOUSE_BATCH_SIZE" default:"500"`
}

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type KafkaConfig struct {
	Enabled          bool     `envconfig:"KAFKA_ENABLED" default:"false"`
	Brokers          []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	ModelEventsTopic string   `envconfig:"KAFKA_MODEL_EVENTS_TOPIC" default:"irrigation.model.events"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"true"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// WorkerConfig contains intervals for background workers
type WorkerConfig struct {
	// Zero disables reloading the bundle published by other replicas
	BundleSyncInterval time.Duration `envconfig:"WORKER_BUNDLE_SYNC_INTERVAL" default:"0s"`
}

// Validate checks cross-field constraints envconfig cannot express
func (c *Config) Validate() error {
	switch c.Model.Store {
	case "file", "redis":
	default:
		return errors.NewValidationError("MODEL_STORE", "must be 'file' or 'redis'", c.Model.Store)
	}

	switch c.Training.Encoding {
	case "raw", "coded":
	default:
		return errors.NewValidationError("TRAINING_ENCODING", "must be 'raw' or 'coded'", c.Training.Encoding)
	}

	if c.Training.ValidationSplit < 0 || c.Training.ValidationSplit >= 1 {
		return errors.NewValidationError("TRAINING_VALIDATION_SPLIT", "must be in [0, 1)", c.Training.ValidationSplit)
	}

	if c.Training.MaxUploadMB <= 0 {
		return errors.NewValidationError("TRAINING_MAX_UPLOAD_MB", "must be positive", c.Training.MaxUploadMB)
	}

	if c.Auth.Enabled() && len(c.Auth.JWTSecret) < 32 {
		return errors.NewValidationError("HTTP_ADMIN_JWT_SECRET", "must be at least 32 characters", "<redacted>")
	}

	if c.Workers.BundleSyncInterval > 0 && c.Model.Store != "redis" {
		return errors.NewValidationError("WORKER_BUNDLE_SYNC_INTERVAL", "bundle sync requires MODEL_STORE=redis", c.Workers.BundleSyncInterval)
	}

	return nil
}

// Load reads configuration from environment variables
// It first tries to load .env file (useful for local development)
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}

	return &cfg, nil
}
