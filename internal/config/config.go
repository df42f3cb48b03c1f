// Package config loads the logfs configuration from file, environment and
// defaults.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. LOGFS_LOGGING_LEVEL.
const EnvPrefix = "LOGFS"

// Config is the complete logfs configuration.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Mount   MountConfig   `mapstructure:"mount"`
	Limits  LimitsConfig  `mapstructure:"limits"`
	Journal JournalConfig `mapstructure:"journal"`
	Status  StatusConfig  `mapstructure:"status"`

	// ShutdownTimeout bounds the status server shutdown after unmount.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR"`
	Format string `mapstructure:"format" validate:"required,oneof=text json"`
	Output string `mapstructure:"output" validate:"required"`
}

// MountConfig holds the defaults of the mount command.
type MountConfig struct {
	// Options is the mount data string, e.g. "mode=0755,nr_inodes=4096".
	Options    string `mapstructure:"options"`
	ReadOnly   bool   `mapstructure:"read_only"`
	AllowOther bool   `mapstructure:"allow_other"`
}

// LimitsConfig bounds each mounted instance. Zero means unlimited.
type LimitsConfig struct {
	MaxInodes   int64 `mapstructure:"max_inodes" validate:"gte=0"`
	MaxDentries int64 `mapstructure:"max_dentries" validate:"gte=0"`
}

// JournalConfig configures the activity journal.
type JournalConfig struct {
	Capacity int `mapstructure:"capacity" validate:"gt=0"`
	// Output is where the journal is saved on unmount; empty disables saving.
	Output string `mapstructure:"output"`
}

// StatusConfig configures the HTTP status server.
type StatusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// GetDefaultConfig returns the configuration used when nothing is set.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero fields with defaults and normalizes values.
func ApplyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	cfg.Logging.Level = strings.ToUpper(cfg.Logging.Level)
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	cfg.Logging.Format = strings.ToLower(cfg.Logging.Format)
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stderr"
	}
	if cfg.Journal.Capacity == 0 {
		cfg.Journal.Capacity = 4096
	}
	if cfg.Status.Addr == "" {
		cfg.Status.Addr = "127.0.0.1:9410"
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
}

// Load reads the configuration.
//
// Precedence, highest first: LOGFS_* environment variables, the file at
// configPath, defaults. An empty configPath or a missing file is not an
// error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if configPath != "" {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Every key needs a default for AutomaticEnv to reach it in Unmarshal.
	def := GetDefaultConfig()
	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.format", def.Logging.Format)
	v.SetDefault("logging.output", def.Logging.Output)
	v.SetDefault("mount.options", def.Mount.Options)
	v.SetDefault("mount.read_only", def.Mount.ReadOnly)
	v.SetDefault("mount.allow_other", def.Mount.AllowOther)
	v.SetDefault("limits.max_inodes", def.Limits.MaxInodes)
	v.SetDefault("limits.max_dentries", def.Limits.MaxDentries)
	v.SetDefault("journal.capacity", def.Journal.Capacity)
	v.SetDefault("journal.output", def.Journal.Output)
	v.SetDefault("status.enabled", def.Status.Enabled)
	v.SetDefault("status.addr", def.Status.Addr)
	v.SetDefault("shutdown_timeout", def.ShutdownTimeout)

	if configPath != "" {
		v.SetConfigFile(configPath)
	}
}

func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// Validate checks struct constraints and cross-field rules.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s failed on %q", fe.Namespace(), fe.Tag()))
		}
		return errors.New(strings.Join(msgs, "; "))
	}
	if cfg.Status.Enabled {
		if _, _, err := net.SplitHostPort(cfg.Status.Addr); err != nil {
			return fmt.Errorf("status.addr %q: %w", cfg.Status.Addr, err)
		}
	}
	return nil
}
