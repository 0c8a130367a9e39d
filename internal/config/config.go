// Package config содержит логику чтения конфигурации сервиса clientbook.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Backend задаёт тип хранилища.
type Backend string

const (
	BackendPostgres Backend = "postgres"
	BackendSQLite   Backend = "sqlite"
	BackendMemory   Backend = "memory"
)

const (
	defaultRunAddress        = "localhost:8080"
	defaultDashboardInterval = time.Minute
	defaultS3Region          = "us-east-1"
	defaultLogLevel          = "info"
	dotenvFile               = ".env"
)

// Config содержит параметры конфигурации сервиса clientbook.
type Config struct {
	RunAddress  string `env:"RUN_ADDRESS"`
	DatabaseURI string `env:"DATABASE_URI"`
	SQLitePath  string `env:"SQLITE_PATH"`
	APIToken    string `env:"API_TOKEN"`

	DashboardURL      string        `env:"DASHBOARD_URL"`
	DashboardToken    string        `env:"DASHBOARD_TOKEN"`
	DashboardInterval time.Duration `env:"DASHBOARD_INTERVAL"`

	ExportBucket string `env:"EXPORT_BUCKET"`
	ExportDir    string `env:"EXPORT_DIR"`
	S3Region     string `env:"S3_REGION"`
	S3Endpoint   string `env:"S3_ENDPOINT"`

	LogLevel string `env:"LOG_LEVEL"`
}

// Backend выбирает хранилище: PostgreSQL, если задан DATABASE_URI, затем SQLite, иначе память.
func (c *Config) Backend() Backend {
	switch {
	case c.DatabaseURI != "":
		return BackendPostgres
	case c.SQLitePath != "":
		return BackendSQLite
	default:
		return BackendMemory
	}
}

// Parse считывает конфигурацию из флагов командной строки, файла .env и переменных окружения.
func Parse() (*Config, error) {
	return ParseArgs(os.Args[1:])
}

// ParseArgs считывает конфигурацию из переданных аргументов.
// Переменные окружения важнее флагов, файл .env не перекрывает уже заданное окружение.
func ParseArgs(args []string) (*Config, error) {
	cfg := &Config{}

	flags := flag.NewFlagSet("clientbook", flag.ContinueOnError)
	flags.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flags.StringVar(&cfg.DatabaseURI, "d", "", "PostgreSQL connection URI")
	flags.StringVar(&cfg.SQLitePath, "s", "", "SQLite database file, used when no database URI is set")
	flags.StringVar(&cfg.APIToken, "t", "", "bearer token required by /api")
	flags.StringVar(&cfg.DashboardURL, "w", "", "dashboard webhook URL")
	flags.DurationVar(&cfg.DashboardInterval, "i", defaultDashboardInterval, "dashboard sync interval")
	flags.StringVar(&cfg.ExportBucket, "b", "", "S3 bucket for archived exports")
	flags.StringVar(&cfg.LogLevel, "l", defaultLogLevel, "log level")

	if err := flags.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	if err := godotenv.Load(dotenvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", dotenvFile, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.S3Region == "" {
		cfg.S3Region = defaultS3Region
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
	if cfg.DashboardInterval < 0 {
		return nil, fmt.Errorf("dashboard interval must not be negative: %s", cfg.DashboardInterval)
	}

	return cfg, nil
}
