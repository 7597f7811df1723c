package config

import (
	"fmt"
	"net/url"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the martforge pipeline.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, DSNs with credentials) must only come from environment
// variables.
type Config struct {
	Env     string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version string `yaml:"-"` // Set at load time, not from config

	// Warehouse is the PostgreSQL database holding the raw schema, the star
	// schema targets, and the run report tables.
	Warehouse WarehouseConfig `yaml:"warehouse"`

	// Sources configures where raw extracts are read from. By default both
	// source systems are staged in the warehouse's raw schema; the ERP tables
	// can alternatively be read directly from a SQL Server instance.
	Sources SourcesConfig `yaml:"sources"`

	// Pipeline holds run behavior knobs.
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// WarehouseConfig holds PostgreSQL warehouse configuration.
type WarehouseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"martforge"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"martforge"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
}

// URL returns a PostgreSQL connection URL for the warehouse.
func (w *WarehouseConfig) URL() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(w.User, w.Password),
		Host:     fmt.Sprintf("%s:%d", w.Host, w.Port),
		Path:     w.Database,
		RawQuery: "sslmode=" + w.SSLMode,
	}
	return u.String()
}

// SourcesConfig configures the Raw Store readers.
type SourcesConfig struct {
	// ERPDriver selects how ERP raw tables are read: "postgres" reads them
	// from the warehouse raw schema, "sqlserver" reads them from ERPDSN.
	ERPDriver string `yaml:"erp_driver" env:"ERP_DRIVER" env-default:"postgres"`

	// ERPDSN is the SQL Server connection string, required when ERPDriver is
	// "sqlserver". Secret - env only.
	ERPDSN string `yaml:"-" env:"ERP_DSN"`
}

// Validate checks driver/DSN consistency.
func (s *SourcesConfig) Validate() error {
	switch s.ERPDriver {
	case "postgres":
		return nil
	case "sqlserver":
		if s.ERPDSN == "" {
			return fmt.Errorf("ERP_DSN is required when erp_driver is sqlserver")
		}
		return nil
	default:
		return fmt.Errorf("unsupported erp_driver %q (postgres or sqlserver)", s.ERPDriver)
	}
}

// PipelineConfig holds run behavior settings.
type PipelineConfig struct {
	// MigrationsPath is the directory containing warehouse DDL migrations.
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"./migrations"`

	// StagingSuffix is appended to target table names for the rebuild area
	// that gets atomically swapped into place.
	StagingSuffix string `yaml:"staging_suffix" env:"STAGING_SUFFIX" env-default:"_staging"`

	// LockKey is the advisory lock key guaranteeing single-writer runs.
	LockKey int64 `yaml:"lock_key" env:"PIPELINE_LOCK_KEY" env-default:"7413001"`
}

// Load reads configuration from config.yaml with environment variable
// overrides. The version parameter is injected at build time and set on the
// returned Config. When config.yaml is absent, configuration comes from
// environment variables and defaults alone.
func Load(version string) (*Config, error) {
	cfg := &Config{Version: version}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.Sources.Validate(); err != nil {
		return nil, fmt.Errorf("invalid source configuration: %w", err)
	}

	return cfg, nil
}
