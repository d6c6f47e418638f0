// Package config provides environment-aware configuration management for
// the worker core.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	slruntime "github.com/sitemapindexerpro/workercore/infrastructure/runtime"
)

// Environment represents the deployment environment.
type Environment = slruntime.Environment

const (
	Development = slruntime.Development
	Testing     = slruntime.Testing
	Production  = slruntime.Production
)

// Config holds all application configuration.
type Config struct {
	Env         Environment
	AppVersion  string
	NodeEnv     string

	// Logging / tracing
	LogLevel          string
	LogFormat         string
	OTelExporterOTLP  string
	TracingEnabled    bool

	// Credential vault
	EncryptionKey string

	// Live event bus WebSocket auth
	WSJwtSecret string

	// Database
	DatabaseURL      string
	DBMaxConnections int
	DBIdleTimeout    time.Duration

	// Redis-backed queue broker
	RedisURL           string
	RedisPoolSize      int
	QueueMaxAttempts   int
	QueueRetryBaseDelay time.Duration
	QueueVisibilityTimeout time.Duration

	// Per-queue concurrency caps
	ScannerConcurrency  int
	GoogleConcurrency   int
	IndexNowConcurrency int

	// Rate limits (requests/sec, burst)
	GoogleRateLimitRPS   float64
	GoogleRateLimitBurst int
	IndexNowRateLimitRPS   float64
	IndexNowRateLimitBurst int

	// Google Indexing quota
	GoogleDailyQuota int

	// Scanner
	SitemapMaxDepth     int
	SitemapFanout       int
	SitemapFetchTimeout time.Duration

	// Live event bus
	WSPingInterval   time.Duration
	WSSendBufferSize int

	// Service ports
	MetricsPort int
	WSPort      int

	// Features
	MetricsEnabled bool
	EnableDebugEndpoints bool
	TestMode       bool
}

// Load loads configuration based on the NODE_ENV environment variable.
func Load() (*Config, error) {
	envStr := os.Getenv("NODE_ENV")
	if envStr == "" {
		envStr = string(slruntime.Development)
	}

	parsedEnv, ok := slruntime.ParseEnvironment(envStr)
	if !ok {
		return nil, fmt.Errorf("invalid NODE_ENV: %s (must be development, testing, or production)", envStr)
	}
	env := parsedEnv

	configFile := filepath.Join("config", fmt.Sprintf("%s.env", env))
	if err := godotenv.Load(configFile); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Printf("Warning: Could not load %s: %v\n", configFile, err)
		}
	}

	cfg := &Config{
		Env:     env,
		NodeEnv: envStr,
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromEnv() error {
	c.AppVersion = getEnv("APP_VERSION", "dev")

	c.LogLevel = getEnv("LOG_LEVEL", "info")
	c.LogFormat = getEnv("LOG_FORMAT", "json")
	c.OTelExporterOTLP = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	c.TracingEnabled = c.OTelExporterOTLP != ""

	c.EncryptionKey = getEnv("ENCRYPTION_KEY", "")
	if len(c.EncryptionKey) < 32 {
		return fmt.Errorf("ENCRYPTION_KEY is required and must be at least 32 characters")
	}

	c.WSJwtSecret = getEnv("WS_JWT_SECRET", "")
	if len(c.WSJwtSecret) < 32 {
		return fmt.Errorf("WS_JWT_SECRET is required and must be at least 32 characters")
	}

	c.DatabaseURL = getEnv("DATABASE_URL", "")
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	c.DBMaxConnections = getIntEnv("DB_MAX_CONNECTIONS", 20)
	dbIdleTimeout := getEnv("DB_IDLE_TIMEOUT", "5m")
	var err error
	c.DBIdleTimeout, err = time.ParseDuration(dbIdleTimeout)
	if err != nil {
		return fmt.Errorf("invalid DB_IDLE_TIMEOUT: %w", err)
	}

	c.RedisURL = getEnv("REDIS_URL", "redis://localhost:6379/0")
	c.RedisPoolSize = getIntEnv("REDIS_POOL_SIZE", 20)
	c.QueueMaxAttempts = getIntEnv("QUEUE_MAX_ATTEMPTS", 5)
	queueRetryBaseDelay := getEnv("QUEUE_RETRY_BASE_DELAY", "2s")
	c.QueueRetryBaseDelay, err = time.ParseDuration(queueRetryBaseDelay)
	if err != nil {
		return fmt.Errorf("invalid QUEUE_RETRY_BASE_DELAY: %w", err)
	}
	queueVisibilityTimeout := getEnv("QUEUE_VISIBILITY_TIMEOUT", "5m")
	c.QueueVisibilityTimeout, err = time.ParseDuration(queueVisibilityTimeout)
	if err != nil {
		return fmt.Errorf("invalid QUEUE_VISIBILITY_TIMEOUT: %w", err)
	}

	c.ScannerConcurrency = getIntEnv("SCANNER_CONCURRENCY", 5)
	c.GoogleConcurrency = getIntEnv("GOOGLE_CONCURRENCY", 1)
	c.IndexNowConcurrency = getIntEnv("INDEXNOW_CONCURRENCY", 4)

	c.GoogleRateLimitRPS = getFloatEnv("GOOGLE_RATE_LIMIT_RPS", 1.0)
	c.GoogleRateLimitBurst = getIntEnv("GOOGLE_RATE_LIMIT_BURST", 5)
	c.IndexNowRateLimitRPS = getFloatEnv("INDEXNOW_RATE_LIMIT_RPS", 5.0)
	c.IndexNowRateLimitBurst = getIntEnv("INDEXNOW_RATE_LIMIT_BURST", 10)

	c.GoogleDailyQuota = getIntEnv("GOOGLE_DAILY_QUOTA", 200)

	c.SitemapMaxDepth = getIntEnv("SITEMAP_MAX_DEPTH", 10)
	c.SitemapFanout = getIntEnv("SITEMAP_FANOUT", 5)
	sitemapFetchTimeout := getEnv("SITEMAP_FETCH_TIMEOUT", "60s")
	c.SitemapFetchTimeout, err = time.ParseDuration(sitemapFetchTimeout)
	if err != nil {
		return fmt.Errorf("invalid SITEMAP_FETCH_TIMEOUT: %w", err)
	}

	wsPingInterval := getEnv("WS_PING_INTERVAL", "30s")
	c.WSPingInterval, err = time.ParseDuration(wsPingInterval)
	if err != nil {
		return fmt.Errorf("invalid WS_PING_INTERVAL: %w", err)
	}
	c.WSSendBufferSize = getIntEnv("WS_SEND_BUFFER_SIZE", 256)

	c.MetricsPort = getIntEnv("METRICS_PORT", 9090)
	c.WSPort = getIntEnv("WS_PORT", 8080)

	c.MetricsEnabled = getBoolEnv("METRICS_ENABLED", c.Env != Production)
	c.EnableDebugEndpoints = getBoolEnv("ENABLE_DEBUG_ENDPOINTS", false)
	c.TestMode = getBoolEnv("TEST_MODE", false)

	return nil
}

// IsDevelopment returns true if running in the development environment.
func (c *Config) IsDevelopment() bool { return c.Env == Development }

// IsTesting returns true if running in the testing environment.
func (c *Config) IsTesting() bool { return c.Env == Testing }

// IsProduction returns true if running in the production environment.
func (c *Config) IsProduction() bool { return c.Env == Production }

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.IsProduction() {
		if c.EnableDebugEndpoints {
			return fmt.Errorf("ENABLE_DEBUG_ENDPOINTS must be false in production")
		}
		if c.TestMode {
			return fmt.Errorf("TEST_MODE must be false in production")
		}
	}

	if c.GoogleDailyQuota <= 0 {
		return fmt.Errorf("GOOGLE_DAILY_QUOTA must be positive")
	}
	if c.SitemapMaxDepth <= 0 {
		return fmt.Errorf("SITEMAP_MAX_DEPTH must be positive")
	}

	ports := []int{c.MetricsPort, c.WSPort}
	for _, port := range ports {
		if port < 1024 || port > 65535 {
			return fmt.Errorf("invalid port number: %d (must be between 1024 and 65535)", port)
		}
	}

	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
