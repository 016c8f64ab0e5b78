// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server settings
	Port        string
	MetricsAddr string
	Env         string // "development", "staging", "production"
	LogLevel    string
	LogFormat   string // "text" or "json"

	// Scoring
	ScoringStrategy   string // "classifier" or "weighted_rules"
	FallbackPolicy    string // "fallback" or "fail"
	ModelPath         string
	ModelManifestPath string

	// Classifier circuit breaker
	BreakerIntervalSeconds  int
	BreakerTimeoutSeconds   int
	BreakerFailureThreshold int
	BreakerSuccessThreshold int

	// Processing
	BatchWorkers int
	MaxBatchSize int

	// History: in-memory unless REDIS_ADDR is set
	RedisAddr    string
	HistoryLimit int
	HistoryTTL   time.Duration

	// Alerts: logged unless NATS_URL is set
	NATSURL      string
	AlertSubject string
	AlertWorkers int

	// Optional HMAC secret for signing assessment responses
	SigningSecret string

	// Tracing: disabled unless OTEL_EXPORTER_OTLP_ENDPOINT is set
	OTLPEndpoint string
}

const (
	DefaultPort              = "8080"
	DefaultMetricsAddr       = ":9090"
	DefaultEnv               = "development"
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
	DefaultScoringStrategy   = "classifier"
	DefaultFallbackPolicy    = "fallback"
	DefaultModelPath         = "models/fraud_model.json"
	DefaultModelManifestPath = "models/features_info.json"
	DefaultBatchWorkers      = 10
	DefaultMaxBatchSize      = 100
	DefaultHistoryLimit      = 1000
	DefaultHistoryTTLHours   = 24
	DefaultAlertSubject      = "fraud.alerts"
	DefaultAlertWorkers      = 2
)

// Load reads configuration from environment variables.
// It loads a .env file if present (for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                    getEnv("PORT", DefaultPort),
		MetricsAddr:             getEnv("METRICS_ADDR", DefaultMetricsAddr),
		Env:                     getEnv("ENV", DefaultEnv),
		LogLevel:                getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:               getEnv("LOG_FORMAT", DefaultLogFormat),
		ScoringStrategy:         getEnv("SCORING_STRATEGY", DefaultScoringStrategy),
		FallbackPolicy:          getEnv("FALLBACK_POLICY", DefaultFallbackPolicy),
		ModelPath:               getEnv("MODEL_PATH", DefaultModelPath),
		ModelManifestPath:       getEnv("MODEL_MANIFEST_PATH", DefaultModelManifestPath),
		BreakerIntervalSeconds:  getEnvInt("BREAKER_INTERVAL_SECONDS", 60),
		BreakerTimeoutSeconds:   getEnvInt("BREAKER_TIMEOUT_SECONDS", 30),
		BreakerFailureThreshold: getEnvInt("BREAKER_FAILURE_THRESHOLD", 5),
		BreakerSuccessThreshold: getEnvInt("BREAKER_SUCCESS_THRESHOLD", 1),
		BatchWorkers:            getEnvInt("BATCH_WORKERS", DefaultBatchWorkers),
		MaxBatchSize:            getEnvInt("MAX_BATCH_SIZE", DefaultMaxBatchSize),
		RedisAddr:               os.Getenv("REDIS_ADDR"),
		HistoryLimit:            getEnvInt("HISTORY_LIMIT", DefaultHistoryLimit),
		HistoryTTL:              time.Duration(getEnvInt("HISTORY_TTL_HOURS", DefaultHistoryTTLHours)) * time.Hour,
		NATSURL:                 os.Getenv("NATS_URL"),
		AlertSubject:            getEnv("ALERT_SUBJECT", DefaultAlertSubject),
		AlertWorkers:            getEnvInt("ALERT_WORKERS", DefaultAlertWorkers),
		SigningSecret:           os.Getenv("SIGNING_SECRET"),
		OTLPEndpoint:            os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects unknown enum values and non-positive sizes.
func (c *Config) Validate() error {
	switch c.ScoringStrategy {
	case "classifier", "weighted_rules":
	default:
		return fmt.Errorf("SCORING_STRATEGY must be classifier or weighted_rules, got %q", c.ScoringStrategy)
	}

	switch c.FallbackPolicy {
	case "fallback", "fail":
	default:
		return fmt.Errorf("FALLBACK_POLICY must be fallback or fail, got %q", c.FallbackPolicy)
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}

	if c.ScoringStrategy == "classifier" && (c.ModelPath == "" || c.ModelManifestPath == "") {
		return fmt.Errorf("MODEL_PATH and MODEL_MANIFEST_PATH are required for the classifier strategy")
	}

	if c.BatchWorkers <= 0 || c.MaxBatchSize <= 0 || c.HistoryLimit <= 0 || c.AlertWorkers <= 0 {
		return fmt.Errorf("BATCH_WORKERS, MAX_BATCH_SIZE, HISTORY_LIMIT and ALERT_WORKERS must be positive")
	}

	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
