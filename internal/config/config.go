package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Import       ImportConfig       `mapstructure:"import"`
	Notification NotificationConfig `mapstructure:"notification"`
	Logger       LoggerConfig       `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
}

// ImportConfig holds Excel import limits
type ImportConfig struct {
	MaxFileSize      int64         `mapstructure:"max_file_size"`
	MaxRows          int           `mapstructure:"max_rows"`
	MaxFilesPerBatch int           `mapstructure:"max_files_per_batch"`
	ValidateMaxRows  int           `mapstructure:"validate_max_rows"`
	ValidateMaxTotal float64       `mapstructure:"validate_max_total"`
	Timezone         string        `mapstructure:"timezone"`
	RetryAttempts    int           `mapstructure:"retry_attempts"`
	RetryBackoff     time.Duration `mapstructure:"retry_backoff"`
}

// NotificationConfig holds batch notification tuning
type NotificationConfig struct {
	// BatchWindow groups near-simultaneous single submissions into one
	// notification per approver. The one hour default is inherited policy;
	// overlapping windows are not merged.
	BatchWindow time.Duration `mapstructure:"batch_window"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		// Defaults plus environment cover every setting; the file is
		// optional.
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)

	viper.SetDefault("database.path", "data/approval.db")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	viper.SetDefault("database.migrations_dir", "migrations")

	viper.SetDefault("import.max_file_size", int64(5*1024*1024))
	viper.SetDefault("import.max_rows", 500)
	viper.SetDefault("import.max_files_per_batch", 10)
	viper.SetDefault("import.validate_max_rows", 200)
	viper.SetDefault("import.validate_max_total", 500000.0)
	viper.SetDefault("import.timezone", "Europe/Moscow")
	viper.SetDefault("import.retry_attempts", 3)
	viper.SetDefault("import.retry_backoff", 60*time.Second)

	viper.SetDefault("notification.batch_window", time.Hour)

	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.output_path", "stdout")
	viper.SetDefault("logger.format", "json")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Import.MaxFileSize <= 0 {
		return fmt.Errorf("import.max_file_size must be positive")
	}
	if c.Import.MaxRows <= 0 {
		return fmt.Errorf("import.max_rows must be positive")
	}
	if c.Import.ValidateMaxRows > c.Import.MaxRows {
		return fmt.Errorf("import.validate_max_rows must not exceed import.max_rows")
	}
	if c.Notification.BatchWindow <= 0 {
		return fmt.Errorf("notification.batch_window must be positive")
	}
	if c.Import.RetryAttempts < 1 {
		return fmt.Errorf("import.retry_attempts must be at least 1")
	}
	return nil
}
