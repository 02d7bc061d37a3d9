package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"listings-ingest/models"
)

// Store drivers understood by storage.Open.
const (
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
	DriverSQLite   = "sqlite"
)

// Malformed-row policies.
const (
	OnMalformedSkip  = "skip"
	OnMalformedAbort = "abort"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	StoreDriver string

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	SQLitePath string

	CSVInputPath string
	RejectsPath  string

	Strategy        string
	OnMalformed     string
	CommitBatchSize int

	ConnectRetries   int
	ConnectBackoffMs int

	ReportConcurrency int
	LogLevel          string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		StoreDriver: getEnv("STORE_DRIVER", DriverPostgres),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "projectdb"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "projectdb"),
		PostgresDB:       getEnv("POSTGRES_DB", "projectdb"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		SQLitePath: getEnv("SQLITE_PATH", "./data/listings.db"),

		CSVInputPath: getEnv("CSV_INPUT_PATH", "./axcapital_09082023.csv"),
		RejectsPath:  getEnv("REJECTS_PATH", ""),

		Strategy:        getEnv("INGEST_STRATEGY", string(models.StrategyUpsert)),
		OnMalformed:     getEnv("ON_MALFORMED", OnMalformedSkip),
		CommitBatchSize: getEnvInt("COMMIT_BATCH_SIZE", 10),

		ConnectRetries:   getEnvInt("CONNECT_RETRIES", 5),
		ConnectBackoffMs: getEnvInt("CONNECT_BACKOFF_MS", 500),

		ReportConcurrency: getEnvInt("REPORT_CONCURRENCY", 4),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
	}
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverPostgres, DriverPgx, DriverSQLite:
	default:
		return fmt.Errorf("config: unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if _, err := models.ParseStrategy(c.Strategy); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch c.OnMalformed {
	case OnMalformedSkip, OnMalformedAbort:
	default:
		return fmt.Errorf("config: unknown ON_MALFORMED %q (want %q or %q)",
			c.OnMalformed, OnMalformedSkip, OnMalformedAbort)
	}
	if c.CommitBatchSize < 1 {
		return fmt.Errorf("config: COMMIT_BATCH_SIZE must be >= 1, got %d", c.CommitBatchSize)
	}
	if c.StoreDriver == DriverSQLite && c.SQLitePath == "" {
		return fmt.Errorf("config: SQLITE_PATH is required for the sqlite driver")
	}
	return nil
}

// IngestStrategy returns the validated strategy.
func (c *Config) IngestStrategy() models.Strategy {
	s, err := models.ParseStrategy(c.Strategy)
	if err != nil {
		return models.StrategyUpsert
	}
	return s
}

// SkipMalformed reports whether malformed rows are skipped rather than fatal.
func (c *Config) SkipMalformed() bool {
	return c.OnMalformed == OnMalformedSkip
}

// ConnectBackoff is the first delay between connection attempts.
func (c *Config) ConnectBackoff() time.Duration {
	return time.Duration(c.ConnectBackoffMs) * time.Millisecond
}

// DSN returns the connection string for the configured driver.
func (c *Config) DSN() string {
	if c.StoreDriver == DriverSQLite {
		return c.SQLitePath
	}
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}
