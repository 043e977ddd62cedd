package config

import (
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// EnvPrefix namespaces environment overrides, e.g. CLOSEFLOW_DATABASE_PATH
const EnvPrefix = "CLOSEFLOW"

// Config holds all application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Logger     LoggerConfig     `mapstructure:"logger"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Ingestion  IngestionConfig  `mapstructure:"ingestion"`
	Validation ValidationConfig `mapstructure:"validation"`
	Assignment AssignmentConfig `mapstructure:"assignment"`
	Batch      BatchConfig      `mapstructure:"batch"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	BusyTimeout     time.Duration `mapstructure:"busy_timeout"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// StorageConfig holds extract storage configuration
type StorageConfig struct {
	// BaseDir anchors relative extract paths and staged uploads
	BaseDir    string `mapstructure:"base_dir"`
	UploadRoot string `mapstructure:"upload_root"`
}

// IngestionConfig holds ingestion configuration
type IngestionConfig struct {
	// MappingFile adds column aliases on top of the built-in table
	MappingFile          string  `mapstructure:"mapping_file"`
	NullWarningThreshold float64 `mapstructure:"null_warning_threshold"`
}

// ValidationConfig holds the expectation battery settings
type ValidationConfig struct {
	AccountCodePattern    string  `mapstructure:"account_code_pattern"`
	BalanceTolerance      float64 `mapstructure:"balance_tolerance"`
	MaxAbsBalance         float64 `mapstructure:"max_abs_balance"`
	CompletenessThreshold float64 `mapstructure:"completeness_threshold"`
	Policy                string  `mapstructure:"policy"`
	Concurrency           int     `mapstructure:"concurrency"`
}

// AssignmentConfig holds scheduler configuration
type AssignmentConfig struct {
	RulesFile       string `mapstructure:"rules_file"`
	SkipZeroBalance bool   `mapstructure:"skip_zero_balance"`
}

// BatchConfig holds batch orchestrator defaults
type BatchConfig struct {
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	MaxRetries    int           `mapstructure:"max_retries"`
	BackoffUnit   time.Duration `mapstructure:"backoff_unit"`
	SkipCompleted bool          `mapstructure:"skip_completed"`
}

// Load reads configuration from an optional YAML file, a .env file in the working
// directory and CLOSEFLOW_* environment variables, in increasing precedence.
func Load(configPath string) (*Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 5*time.Minute)
	v.SetDefault("server.max_upload_bytes", 32<<20)

	v.SetDefault("database.path", "data/closeflow.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.busy_timeout", 5*time.Second)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stderr")
	v.SetDefault("logger.format", "console")

	v.SetDefault("storage.base_dir", ".")
	v.SetDefault("storage.upload_root", "uploads")

	v.SetDefault("ingestion.mapping_file", "")
	v.SetDefault("ingestion.null_warning_threshold", 30.0)

	v.SetDefault("validation.account_code_pattern", `^[0-9]{8}$`)
	v.SetDefault("validation.balance_tolerance", 1.0)
	v.SetDefault("validation.max_abs_balance", 1e9)
	v.SetDefault("validation.completeness_threshold", 95.0)
	v.SetDefault("validation.policy", "strict")
	v.SetDefault("validation.concurrency", 4)

	v.SetDefault("assignment.rules_file", "")
	v.SetDefault("assignment.skip_zero_balance", false)

	v.SetDefault("batch.max_concurrent", 4)
	v.SetDefault("batch.max_retries", 3)
	v.SetDefault("batch.backoff_unit", time.Second)
	v.SetDefault("batch.skip_completed", true)
}

// bindEnvVars binds the short names operators use for the most common overrides
func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("database.path", "CLOSEFLOW_DB_PATH")
	_ = v.BindEnv("logger.level", "CLOSEFLOW_LOG_LEVEL")
	_ = v.BindEnv("server.port", "CLOSEFLOW_PORT")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	switch c.Validation.Policy {
	case "critical_only", "strict":
	default:
		return fmt.Errorf("validation.policy must be critical_only or strict, got %q", c.Validation.Policy)
	}
	if _, err := regexp.Compile(c.Validation.AccountCodePattern); err != nil {
		return fmt.Errorf("validation.account_code_pattern: %w", err)
	}
	if c.Validation.CompletenessThreshold < 0 || c.Validation.CompletenessThreshold > 100 {
		return fmt.Errorf("validation.completeness_threshold must be within 0..100")
	}
	if c.Validation.BalanceTolerance < 0 {
		return fmt.Errorf("validation.balance_tolerance must not be negative")
	}
	if c.Batch.MaxConcurrent < 1 {
		return fmt.Errorf("batch.max_concurrent must be at least 1")
	}
	if c.Batch.MaxRetries < 0 {
		return fmt.Errorf("batch.max_retries must not be negative")
	}
	return nil
}
