package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const VERSION = "1.9"

// DefaultConfigFile is the credentials file looked up in the working directory
const DefaultConfigFile = "credentials.json"

type Config struct {
	Database    DatabaseConfig
	Import      ImportConfig
	Environment string
	LogLevel    string
	LogFormat   string
	Version     string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string

	// Pool settings, the migrator only ever needs a handful of connections
	MaxOpenConns int
	MaxIdleConns int
}

type ImportConfig struct {
	S3Region   string
	S3Endpoint string
	// NamespaceUUID seeds the deterministic legacy id -> UUID mapping
	NamespaceUUID string
}

// LoadOptions contains options for loading configuration
type LoadOptions struct {
	ConfigFile string // Path to the JSON credentials file
	Required   bool   // Fail when ConfigFile does not exist
}

// Load loads the configuration from the default credentials file
func Load() (*Config, error) {
	return LoadWithOptions(LoadOptions{ConfigFile: DefaultConfigFile})
}

// LoadWithOptions loads the configuration with the specified options
func LoadWithOptions(opts LoadOptions) (*Config, error) {
	v := viper.New()

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "printshop")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("import.s3_region", "us-east-1")
	v.SetDefault("import.s3_endpoint", "")
	v.SetDefault("import.namespace_uuid", DefaultNamespaceUUID)
	v.SetDefault("environment", "production")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("version", VERSION)

	if opts.ConfigFile != "" {
		if _, err := os.Stat(opts.ConfigFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) || opts.Required {
				return nil, fmt.Errorf("error reading config file %s: %w", opts.ConfigFile, err)
			}
		} else {
			v.SetConfigFile(opts.ConfigFile)
			v.SetConfigType("json")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("error reading config file %s: %w", opts.ConfigFile, err)
			}
		}
	}

	// DATABASE_HOST, DATABASE_PASSWORD, LOG_LEVEL...
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	config := &Config{
		Database: DatabaseConfig{
			Host:         v.GetString("database.host"),
			Port:         v.GetInt("database.port"),
			User:         v.GetString("database.user"),
			Password:     v.GetString("database.password"),
			DBName:       v.GetString("database.dbname"),
			SSLMode:      v.GetString("database.sslmode"),
			MaxOpenConns: v.GetInt("database.max_open_conns"),
			MaxIdleConns: v.GetInt("database.max_idle_conns"),
		},
		Import: ImportConfig{
			S3Region:      v.GetString("import.s3_region"),
			S3Endpoint:    v.GetString("import.s3_endpoint"),
			NamespaceUUID: v.GetString("import.namespace_uuid"),
		},
		Environment: v.GetString("environment"),
		LogLevel:    v.GetString("log_level"),
		LogFormat:   v.GetString("log_format"),
		Version:     v.GetString("version"),
	}

	// local servers rarely have TLS
	if config.Database.SSLMode == "" {
		config.Database.SSLMode = "require"
		if config.IsDevelopment() {
			config.Database.SSLMode = "disable"
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// DefaultNamespaceUUID is the namespace used when none is configured.
// Changing it changes every converted primary key, so it is fixed per database.
const DefaultNamespaceUUID = "6f1c5d1e-3b7a-5c2e-9f40-7a1d2c3b4e5f"

// Validate checks required settings
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("database.dbname is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("database.port %d is out of range", c.Database.Port)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("log_format must be console or json, got %q", c.LogFormat)
	}
	return nil
}

// IsDevelopment returns true if the environment is set to development
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
