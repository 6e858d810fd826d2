package config

import (
	"fmt"
	"time"

	"github.com/RishiKendai/overlap/internal/configs/env"
	"github.com/RishiKendai/overlap/internal/overlap"
)

// Config holds all configuration for the application
type Config struct {
	// MongoDB
	MongoURI    string
	MongoDBName string

	// Redis
	RedisHost               string
	RedisPassword           string
	RedisDB                 int
	RedisStreamKey          string
	RedisConsumerGroup      string
	RedisDeadLetterKey      string
	StreamRetentionDuration time.Duration
	MaxRetries              int
	// AutoRunSettle is how long a corpus must go without new submissions
	// before the consumer starts a run for it. Zero disables auto runs.
	AutoRunSettle           time.Duration

	// Fingerprinting service
	FingerprinterBaseURL string
	FingerprinterAPIKey  string
	FingerprinterTimeout time.Duration

	// JWT
	JWTSecret string
	JWTIssuer string

	// Rate Limiting
	RateLimitRPS float64

	// Concurrency
	MaxConcurrentRuns int
	Workers           int // 0 sizes the pool from the CPU count

	// Computation
	ComputationTimeout time.Duration

	// Detection
	PopularityUpperBound int
	PopularityScope      overlap.PopularityScope
	IncludeSelfPairs     bool
	ParallelDetection    bool

	// Logging
	LogLevel  string
	LogFormat string

	// Server
	ServerPort  string
	MetricsPort string
}

func Load() (*Config, error) {
	cfg := &Config{}

	// MongoDB
	cfg.MongoURI = env.GetEnv("MONGO_URI", "")
	cfg.MongoDBName = env.GetEnv("MONGO_DB_NAME", "")

	// Redis
	cfg.RedisHost = env.GetEnv("REDIS_HOST", "localhost:6379")
	cfg.RedisPassword = env.GetEnv("REDIS_PASSWORD", "")
	cfg.RedisDB = env.GetEnvInt("REDIS_DB", 0)
	cfg.RedisStreamKey = env.GetEnv("REDIS_STREAM_KEY", "overlap:stream")
	cfg.RedisConsumerGroup = env.GetEnv("REDIS_CONSUMER_GROUP", "overlap:group")
	cfg.RedisDeadLetterKey = env.GetEnv("REDIS_DEAD_LETTER_KEY", "overlap:dlq")
	retentionHours := env.GetEnvInt("STREAM_RETENTION_HOURS", 24)
	cfg.StreamRetentionDuration = time.Duration(retentionHours) * time.Hour
	cfg.MaxRetries = env.GetEnvInt("STREAM_MAX_RETRIES", 3)
	settleSeconds := env.GetEnvInt("AUTO_RUN_SETTLE_SECONDS", 0)
	cfg.AutoRunSettle = time.Duration(settleSeconds) * time.Second

	// Fingerprinting service
	cfg.FingerprinterBaseURL = env.GetEnv("FINGERPRINTER_BASE_URL", "")
	cfg.FingerprinterAPIKey = env.GetEnv("FINGERPRINTER_API_KEY", "")
	timeoutSeconds := env.GetEnvInt("FINGERPRINTER_TIMEOUT_SECONDS", 30)
	cfg.FingerprinterTimeout = time.Duration(timeoutSeconds) * time.Second

	// JWT
	cfg.JWTSecret = env.GetEnv("JWT_SECRET", "")
	cfg.JWTIssuer = env.GetEnv("JWT_ISSUER", "overlap")

	// Rate Limiting
	cfg.RateLimitRPS = env.GetEnvFloat("RATE_LIMIT_RPS", 10.0)

	// Concurrency
	cfg.MaxConcurrentRuns = env.GetEnvInt("MAX_CONCURRENT_RUNS", 2)
	cfg.Workers = env.GetEnvInt("WORKERS", 0)

	// Computation
	timeoutMinutes := env.GetEnvInt("COMPUTATION_TIMEOUT_MINUTES", 30)
	cfg.ComputationTimeout = time.Duration(timeoutMinutes) * time.Minute

	// Detection
	cfg.PopularityUpperBound = env.GetEnvInt("POPULARITY_UPPER_BOUND", overlap.DefaultUpperBound)
	scope, err := overlap.ParsePopularityScope(env.GetEnv("POPULARITY_SCOPE", string(overlap.ScopeRepository)))
	if err != nil {
		return nil, fmt.Errorf("invalid POPULARITY_SCOPE: %w", err)
	}
	cfg.PopularityScope = scope
	cfg.IncludeSelfPairs = env.GetEnvBool("INCLUDE_SELF_PAIRS", false)
	cfg.ParallelDetection = env.GetEnvBool("PARALLEL_DETECTION", true)

	// Logging
	cfg.LogLevel = env.GetEnv("LOG_LEVEL", "info")
	cfg.LogFormat = env.GetEnv("LOG_FORMAT", "json")

	// Server
	cfg.ServerPort = env.GetEnv("SERVER_PORT", "8080")
	cfg.MetricsPort = env.GetEnv("METRICS_PORT", "2112")

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.MongoURI == "" {
		return fmt.Errorf("MONGO_URI is required")
	}
	if c.MongoDBName == "" {
		return fmt.Errorf("MONGO_DB_NAME is required")
	}
	if c.RedisHost == "" {
		return fmt.Errorf("REDIS_HOST is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.MaxConcurrentRuns <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_RUNS must be greater than 0")
	}
	if c.Workers < 0 {
		return fmt.Errorf("WORKERS must not be negative")
	}
	if c.StreamRetentionDuration <= 0 {
		return fmt.Errorf("STREAM_RETENTION_HOURS must be greater than 0")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("STREAM_MAX_RETRIES must not be negative")
	}
	if c.AutoRunSettle < 0 {
		return fmt.Errorf("AUTO_RUN_SETTLE_SECONDS must not be negative")
	}
	if c.PopularityUpperBound <= 1 {
		return fmt.Errorf("POPULARITY_UPPER_BOUND must be greater than 1")
	}
	return nil
}

// DetectorOptions maps the detection settings onto engine options
func (c *Config) DetectorOptions() overlap.Options {
	return overlap.Options{
		UpperBound:       c.PopularityUpperBound,
		Scope:            c.PopularityScope,
		IncludeSelfPairs: c.IncludeSelfPairs,
		Parallel:         c.ParallelDetection,
	}
}
