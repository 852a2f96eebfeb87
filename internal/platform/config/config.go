package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. HLS_SERVER_PORT or
// HLS_LIVE_SESSION_TIMEOUT.
const EnvPrefix = "HLS"

// Config is the process configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Live    LiveConfig    `mapstructure:"live"`
	Ads     AdsConfig     `mapstructure:"ads"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`   // json or text
	Output     string `mapstructure:"output"`   // stdout, stderr, or file path
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
}

type LiveConfig struct {
	SessionTimeout time.Duration `mapstructure:"session_timeout"`
	StreamTimeout  time.Duration `mapstructure:"stream_timeout"`
	ReapInterval   time.Duration `mapstructure:"reap_interval"`
	TargetDuration float64       `mapstructure:"target_duration"` // seconds per segment
}

// AdsConfig controls the pre-roll. Ads are served from Redis, so Enabled
// requires redis.addr.
type AdsConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// RedisConfig locates the ad store.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// Load reads the .env file from the current working directory and sets
// environment variables. If .env does not exist, Load returns an error but
// callers can ignore it and use system env or defaults. Pass one or more paths
// to load from specific files (e.g. ".env"); with no paths, ".env" is used.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// FromFile builds the configuration from defaults, the optional YAML file at
// path, and HLS_* environment variables, in increasing precedence.
func FromFile(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigType("yaml")
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// FromEnv is FromFile without a config file.
func FromEnv() (*Config, error) {
	return FromFile("")
}

// Every key needs a default so AutomaticEnv can override it on Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age", 7)

	v.SetDefault("live.session_timeout", "30s")
	v.SetDefault("live.stream_timeout", "60s")
	v.SetDefault("live.reap_interval", "5s")
	v.SetDefault("live.target_duration", 3.0)

	v.SetDefault("ads.enabled", false)
	v.SetDefault("ads.refresh_interval", "30s")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "hls:ads:")
}

// Validate checks ranges that would otherwise fail at runtime.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Live.SessionTimeout <= 0 {
		errs = append(errs, errors.New("live.session_timeout must be positive"))
	}
	if c.Live.StreamTimeout <= 0 {
		errs = append(errs, errors.New("live.stream_timeout must be positive"))
	}
	if c.Live.ReapInterval <= 0 {
		errs = append(errs, errors.New("live.reap_interval must be positive"))
	}
	if c.Live.TargetDuration <= 0 {
		errs = append(errs, errors.New("live.target_duration must be positive"))
	}
	if c.Ads.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("ads.enabled requires redis.addr"))
		}
		if c.Ads.RefreshInterval <= 0 {
			errs = append(errs, errors.New("ads.refresh_interval must be positive"))
		}
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q must be json or text", c.Logging.Format))
	}
	return errors.Join(errs...)
}
