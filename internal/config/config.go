// Package config loads server configuration from flags, environment
// variables, and an optional config file, following the layered
// precedence (flag > env > file > default) the teacher repo's Viper
// setup establishes.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every tunable the listener, connection driver, and store
// need (spec.md §4, §5, plus the ambient stack additions in
// SPEC_FULL.md §A).
type Config struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	MaxMemory     string `mapstructure:"max_memory"`
	MaxClients    int    `mapstructure:"max_clients"`
	MaxLineLength int    `mapstructure:"max_line_length"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	TCPKeepAlive bool          `mapstructure:"tcp_keepalive"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DefaultConfig returns the built-in defaults, applied before flags, env,
// and config file are layered on top.
func DefaultConfig() *Config {
	return &Config{
		Host:          "0.0.0.0",
		Port:          11211,
		MaxMemory:     "64MB",
		MaxClients:    1024,
		MaxLineLength: 4096,
		LogLevel:      "info",
		LogFormat:     "console",
		TCPKeepAlive:  true,
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  30 * time.Second,
	}
}

// Load reads configuration from gomemcached.yaml (searched in ".",
// "/etc/gomemcached/", "$HOME/.gomemcached"), GOMEMCACHED_* environment
// variables, and whatever viper instance the caller has already bound
// command-line flags into. v is expected to come from the cobra command's
// init(), matching the teacher's cmd.go BindPFlag pattern.
func Load(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()

	v.SetConfigName("gomemcached")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/gomemcached/")
	v.AddConfigPath("$HOME/.gomemcached")

	v.SetEnvPrefix("GOMEMCACHED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("host", cfg.Host)
	v.SetDefault("port", cfg.Port)
	v.SetDefault("max_memory", cfg.MaxMemory)
	v.SetDefault("max_clients", cfg.MaxClients)
	v.SetDefault("max_line_length", cfg.MaxLineLength)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_format", cfg.LogFormat)
	v.SetDefault("tcp_keepalive", cfg.TCPKeepAlive)
	v.SetDefault("read_timeout", cfg.ReadTimeout)
	v.SetDefault("write_timeout", cfg.WriteTimeout)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return cfg, nil
}

// Validate rejects a Config the listener could not safely start with.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", c.Port)
	}
	if c.MaxClients < 1 {
		return fmt.Errorf("max_clients must be at least 1")
	}
	if c.MaxLineLength < 64 {
		return fmt.Errorf("max_line_length must be at least 64")
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	ok := false
	for _, lvl := range validLevels {
		if c.LogLevel == lvl {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("invalid log_level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLevels, ", "))
	}

	if c.LogFormat != "console" && c.LogFormat != "json" {
		return fmt.Errorf("invalid log_format: %s (must be console or json)", c.LogFormat)
	}

	if _, err := c.MaxBytes(); err != nil {
		return err
	}
	return nil
}

// MaxBytes parses MaxMemory ("64MB", "512KB", "1GB", or a bare integer)
// into the byte budget the store enforces (spec.md §3 max_bytes).
func (c *Config) MaxBytes() (int64, error) {
	size := strings.ToUpper(strings.TrimSpace(c.MaxMemory))
	if size == "" {
		return 0, fmt.Errorf("max_memory must not be empty")
	}

	multiplier := int64(1)
	switch {
	case strings.HasSuffix(size, "GB"):
		multiplier = 1024 * 1024 * 1024
		size = strings.TrimSuffix(size, "GB")
	case strings.HasSuffix(size, "MB"):
		multiplier = 1024 * 1024
		size = strings.TrimSuffix(size, "MB")
	case strings.HasSuffix(size, "KB"):
		multiplier = 1024
		size = strings.TrimSuffix(size, "KB")
	}

	value, err := strconv.ParseInt(strings.TrimSpace(size), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid max_memory: %s", c.MaxMemory)
	}
	return value * multiplier, nil
}

func (c *Config) String() string {
	return fmt.Sprintf("gomemcached config: %s:%d max_memory=%s max_clients=%d log_level=%s",
		c.Host, c.Port, c.MaxMemory, c.MaxClients, c.LogLevel)
}
