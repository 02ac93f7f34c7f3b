package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/nicolastakashi/jtl-analytics/internal/jtl"
	"github.com/thanos-io/thanos/pkg/tracing/otlp"
	yaml "gopkg.in/yaml.v3"
)

type Config struct {
	Log         LogConfig         `yaml:"log,omitempty" envPrefix:"LOG_"`
	Parser      ParserConfig      `yaml:"parser,omitempty"`
	Estimator   EstimatorConfig   `yaml:"estimator,omitempty" envPrefix:"ESTIMATOR_"`
	Output      OutputConfig      `yaml:"output,omitempty" envPrefix:"OUTPUT_"`
	Ingest      IngestConfig      `yaml:"ingest,omitempty" envPrefix:"INGEST_"`
	Server      ServerConfig      `yaml:"server,omitempty" envPrefix:"SERVER_"`
	Database    DatabaseConfig    `yaml:"database,omitempty" envPrefix:"DATABASE_"`
	Retention   RetentionConfig   `yaml:"retention,omitempty" envPrefix:"RETENTION_"`
	Tracing     *otlp.Config      `yaml:"tracing,omitempty"`
	CORS        CORSConfig        `yaml:"cors,omitempty"`
	MemoryLimit MemoryLimitConfig `yaml:"memory_limit,omitempty" envPrefix:"MEMORY_LIMIT_"`
}

type LogConfig struct {
	Level  string `yaml:"level,omitempty" env:"LEVEL"`
	Format string `yaml:"format,omitempty" env:"FORMAT"`
}

type ParserConfig struct {
	Columns jtl.Columns `yaml:"columns,omitempty"`
}

type EstimatorConfig struct {
	Mode         string  `yaml:"mode,omitempty" env:"MODE"`
	Margin       float64 `yaml:"margin,omitempty" env:"MARGIN"`
	Workers      int     `yaml:"workers,omitempty" env:"WORKERS"`
	CorpusDir    string  `yaml:"corpus_dir,omitempty" env:"CORPUS_DIR"`
	HistoryLimit int     `yaml:"history_limit,omitempty" env:"HISTORY_LIMIT"`
}

type OutputConfig struct {
	NoColor bool `yaml:"no_color,omitempty" env:"NO_COLOR"`
}

type IngestConfig struct {
	Timeout         time.Duration `yaml:"timeout,omitempty" env:"TIMEOUT"`
	AllowDuplicates bool          `yaml:"allow_duplicates,omitempty" env:"ALLOW_DUPLICATES"`
}

type ServerConfig struct {
	InsecureListenAddress string `yaml:"insecure_listen_address,omitempty" env:"INSECURE_LISTEN_ADDRESS"`
	MaxUploadBytes        int64  `yaml:"max_upload_bytes,omitempty" env:"MAX_UPLOAD_BYTES"`
}

type DatabaseConfig struct {
	Provider   string           `yaml:"provider,omitempty" env:"PROVIDER"`
	PostgreSQL PostgreSQLConfig `yaml:"postgresql,omitempty"`
	SQLite     SQLiteConfig     `yaml:"sqlite,omitempty" envPrefix:"SQLITE_"`
}

type PostgreSQLConfig struct {
	Addr            string        `yaml:"addr,omitempty"`
	Database        string        `yaml:"database,omitempty"`
	DialTimeout     time.Duration `yaml:"dial_timeout,omitempty"`
	Password        string        `yaml:"password,omitempty"`
	Port            int           `yaml:"port,omitempty"`
	SSLMode         string        `yaml:"sslmode,omitempty"`
	User            string        `yaml:"user,omitempty"`
	MaxOpenConns    int           `yaml:"max_open_conns,omitempty"`
	MaxIdleConns    int           `yaml:"max_idle_conns,omitempty"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime,omitempty"`
}

type SQLiteConfig struct {
	DatabasePath string `yaml:"database_path,omitempty" env:"DATABASE_PATH"`
}

type RetentionConfig struct {
	Enabled    bool          `yaml:"enabled,omitempty" env:"ENABLED"`
	Interval   time.Duration `yaml:"interval,omitempty" env:"INTERVAL"`
	RunTimeout time.Duration `yaml:"run_timeout,omitempty" env:"RUN_TIMEOUT"`
	RunsMaxAge time.Duration `yaml:"runs_max_age,omitempty" env:"RUNS_MAX_AGE"`
}

type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowed_origins,omitempty"`
	AllowedMethods   []string `yaml:"allowed_methods,omitempty"`
	AllowedHeaders   []string `yaml:"allowed_headers,omitempty"`
	AllowCredentials bool     `yaml:"allow_credentials,omitempty"`
	MaxAge           int      `yaml:"max_age,omitempty"`
}

type MemoryLimitConfig struct {
	Enabled bool    `yaml:"enabled,omitempty" env:"ENABLED"`
	Ratio   float64 `yaml:"ratio,omitempty" env:"RATIO"`
}

// EnvPrefix is prepended to every environment variable read by LoadEnv.
const EnvPrefix = "JTL_ANALYTICS_"

func defaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Parser: ParserConfig{
			Columns: jtl.DefaultColumns,
		},
		Estimator: EstimatorConfig{
			Mode:         "deviances",
			Margin:       5,
			Workers:      4,
			HistoryLimit: 20,
		},
		Ingest: IngestConfig{
			Timeout: 30 * time.Second,
		},
		Server: ServerConfig{
			InsecureListenAddress: ":9092",
			MaxUploadBytes:        64 << 20,
		},
		Database: DatabaseConfig{
			Provider: "sqlite",
		},
		Retention: RetentionConfig{
			Interval:   time.Hour,
			RunTimeout: 2 * time.Minute,
			RunsMaxAge: 90 * 24 * time.Hour,
		},
		CORS: CORSConfig{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Requested-With"},
			AllowCredentials: true,
			MaxAge:           300,
		},
		MemoryLimit: MemoryLimitConfig{
			Ratio: 0.9,
		},
	}
}

var DefaultConfig = defaultConfig()

// Reset restores DefaultConfig to the built-in defaults.
func Reset() {
	DefaultConfig = defaultConfig()
}

func LoadConfig(path string) error {
	f, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	err = yaml.Unmarshal(f, DefaultConfig)
	if err != nil {
		return fmt.Errorf("failed to unmarshal config file: %w", err)
	}
	return nil
}

// LoadEnv overrides DefaultConfig with JTL_ANALYTICS_* environment variables.
// Unset variables leave the current values untouched.
func LoadEnv() error {
	if err := env.ParseWithOptions(DefaultConfig, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	return nil
}

func (c *Config) IsTracingEnabled() bool {
	if c == nil {
		return false
	}
	return c.Tracing != nil
}

func (c *Config) GetTracingServiceName() string {
	serviceName := os.Getenv("OTEL_SERVICE_NAME")
	if serviceName == "" {
		if c == nil || c.Tracing == nil {
			return ""
		}
		return c.Tracing.ServiceName
	}
	return serviceName
}

// GetSanitizedConfig returns a copy of the configuration without credentials.
func (c *Config) GetSanitizedConfig() *Config {
	sanitized := *c
	sanitized.Database.PostgreSQL.User = ""
	sanitized.Database.PostgreSQL.Password = ""
	sanitized.Tracing = nil
	return &sanitized
}
