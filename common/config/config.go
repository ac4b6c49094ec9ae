// Package config provides configuration loading for the AS2 receipt hooks.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/telhawk-systems/as2hooks/internal/models"
)

// DefaultAPIURL is the placeholder endpoint used when api_url is unset or blank.
const DefaultAPIURL = "https://lnkd.in/g-hyudKx"

// DefaultUserAgent is sent on every notification request.
const DefaultUserAgent = "OpenAS2-ApiHook/1.0"

// Host module option keys.
const (
	OptionAPIURL        = "api_url"
	OptionTimeout       = "timeout"
	OptionAsync         = "async"
	OptionMaxRetries    = "max_retries"
	OptionRetryDelay    = "retry_delay_ms"
	OptionMaxConcurrent = "max_concurrent"
	OptionUserAgent     = "user_agent"
	OptionSigningSecret = "signing_secret"
)

// Config is the root configuration for the hook service.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	AuditLog AuditLogConfig `mapstructure:"audit_log" yaml:"audit_log"`
	Hook     HookConfig     `mapstructure:"hook" yaml:"hook"`
	DLQ      DLQConfig      `mapstructure:"dlq" yaml:"dlq"`
	Redis    RedisConfig    `mapstructure:"redis" yaml:"redis"`
	NATS     NATSConfig     `mapstructure:"nats" yaml:"nats"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// AuditLogConfig holds the audit log file and rotation settings.
type AuditLogConfig struct {
	Directory        string        `mapstructure:"directory" yaml:"directory"`
	Filename         string        `mapstructure:"filename" yaml:"filename"`
	ArchiveDirectory string        `mapstructure:"archive_directory" yaml:"archive_directory"`
	RotationInterval time.Duration `mapstructure:"rotation_interval" yaml:"rotation_interval"`
	ShutdownTimeout  time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// LogPath returns the full path of the active audit log.
func (a AuditLogConfig) LogPath() string {
	return filepath.Join(a.Directory, a.Filename)
}

// HookConfig holds webhook notification settings. Field names mirror the
// host module option keys.
type HookConfig struct {
	APIURL           string `mapstructure:"api_url" yaml:"api_url"`
	TimeoutMillis    int    `mapstructure:"timeout" yaml:"timeout"`
	Async            bool   `mapstructure:"async" yaml:"async"`
	MaxRetries       int    `mapstructure:"max_retries" yaml:"max_retries"`
	RetryDelayMillis int    `mapstructure:"retry_delay_ms" yaml:"retry_delay_ms"`
	MaxConcurrent    int    `mapstructure:"max_concurrent" yaml:"max_concurrent"`
	UserAgent        string `mapstructure:"user_agent" yaml:"user_agent"`
	SigningSecret    string `mapstructure:"signing_secret" yaml:"signing_secret,omitempty"`
}

// EndpointURL returns APIURL, or DefaultAPIURL when it is blank.
func (h HookConfig) EndpointURL() string {
	if strings.TrimSpace(h.APIURL) == "" {
		return DefaultAPIURL
	}
	return strings.TrimSpace(h.APIURL)
}

// Timeout returns the connect/read timeout as a duration.
func (h HookConfig) Timeout() time.Duration {
	return time.Duration(h.TimeoutMillis) * time.Millisecond
}

// RetryDelay returns the base backoff delay as a duration.
func (h HookConfig) RetryDelay() time.Duration {
	return time.Duration(h.RetryDelayMillis) * time.Millisecond
}

// Backoff returns the wait after failed attempt k (0-based): RetryDelay
// doubled k times, saturating at the largest time.Duration.
func (h HookConfig) Backoff(k int) time.Duration {
	base := h.RetryDelay()
	switch {
	case base <= 0:
		return 0
	case k <= 0:
		return base
	case k >= 63 || base > time.Duration(math.MaxInt64>>k):
		return time.Duration(math.MaxInt64)
	}
	return base << k
}

// backoffOverflows reports whether delayMillis doubled shift times no longer
// fits in a time.Duration.
func backoffOverflows(delayMillis int64, shift int) bool {
	if delayMillis > math.MaxInt64/int64(time.Millisecond) || shift >= 63 {
		return true
	}
	return time.Duration(delayMillis)*time.Millisecond > time.Duration(math.MaxInt64>>shift)
}

// Validate checks the numeric hook options. The longest backoff wait,
// retry_delay_ms << (max_retries-1), must fit in a time.Duration.
func (h HookConfig) Validate() error {
	switch {
	case h.TimeoutMillis <= 0:
		return models.ConfigError(OptionTimeout, fmt.Errorf("must be positive, got %d", h.TimeoutMillis))
	case h.MaxRetries < 0:
		return models.ConfigError(OptionMaxRetries, fmt.Errorf("must not be negative, got %d", h.MaxRetries))
	case h.RetryDelayMillis < 0:
		return models.ConfigError(OptionRetryDelay, fmt.Errorf("must not be negative, got %d", h.RetryDelayMillis))
	case h.MaxConcurrent < 0:
		return models.ConfigError(OptionMaxConcurrent, fmt.Errorf("must not be negative, got %d", h.MaxConcurrent))
	case h.MaxRetries > 0 && h.RetryDelayMillis > 0 && backoffOverflows(int64(h.RetryDelayMillis), h.MaxRetries-1):
		return models.ConfigError(OptionMaxRetries, fmt.Errorf("%d retries with a %dms base delay overflow the backoff", h.MaxRetries, h.RetryDelayMillis))
	}
	return nil
}

// DLQConfig holds dead letter queue configuration
type DLQConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Backend  string `mapstructure:"backend" yaml:"backend"`     // "file" (default) or "jetstream"
	BasePath string `mapstructure:"base_path" yaml:"base_path"` // Only used for file backend
}

// RedisConfig holds Redis configuration for delivery deduplication.
type RedisConfig struct {
	URL      string        `mapstructure:"url" yaml:"url"`
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	DedupTTL time.Duration `mapstructure:"dedup_ttl" yaml:"dedup_ttl"`
}

// NATSConfig holds NATS message broker configuration
type NATSConfig struct {
	URL           string        `mapstructure:"url" yaml:"url"`
	Enabled       bool          `mapstructure:"enabled" yaml:"enabled"`
	MaxReconnects int           `mapstructure:"max_reconnects" yaml:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait" yaml:"reconnect_wait"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

// Load reads configuration from configPath (or $AS2HOOKS_CONFIG_DIR/config.yaml,
// or ./config.yaml) and AS2HOOKS_* environment variables. Only an explicit
// configPath has to exist.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if dir := os.Getenv("AS2HOOKS_CONFIG_DIR"); dir != "" {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath(".")
	}

	// Environment variables override, e.g. AS2HOOKS_HOOK_API_URL
	v.SetEnvPrefix("AS2HOOKS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: failed to read config: %v", models.ErrConfiguration, err)
		}
		// Config file not found; use defaults and environment
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal config: %v", models.ErrConfiguration, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns the configuration produced by defaults alone.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	// Defaults are well-typed, so decoding cannot fail.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// setDefaults sets all default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("audit_log.directory", "as2-logs")
	v.SetDefault("audit_log.filename", "as2-message-log.txt")
	v.SetDefault("audit_log.archive_directory", filepath.Join("as2-logs", "archive"))
	v.SetDefault("audit_log.rotation_interval", "24h")
	v.SetDefault("audit_log.shutdown_timeout", "5s")

	v.SetDefault("hook.api_url", "")
	v.SetDefault("hook.timeout", 10000)
	v.SetDefault("hook.async", true)
	v.SetDefault("hook.max_retries", 3)
	v.SetDefault("hook.retry_delay_ms", 1000)
	v.SetDefault("hook.max_concurrent", 0)
	v.SetDefault("hook.user_agent", DefaultUserAgent)
	v.SetDefault("hook.signing_secret", "")

	v.SetDefault("dlq.enabled", false)
	v.SetDefault("dlq.backend", "file")
	v.SetDefault("dlq.base_path", filepath.Join("as2-logs", "dlq"))

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.dedup_ttl", "24h")

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", "2s")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9464")
}

// ApplyModuleOptions layers the host's static module options over the hook
// configuration. Unknown keys are ignored; malformed values fail fast.
func (c *Config) ApplyModuleOptions(opts map[string]string) error {
	for key, raw := range opts {
		value := strings.TrimSpace(raw)

		switch key {
		case OptionAPIURL:
			c.Hook.APIURL = value
		case OptionUserAgent:
			if value != "" {
				c.Hook.UserAgent = value
			}
		case OptionSigningSecret:
			c.Hook.SigningSecret = value
		case OptionAsync:
			if value == "" {
				continue
			}
			b, err := strconv.ParseBool(value)
			if err != nil {
				return models.ConfigError(key, err)
			}
			c.Hook.Async = b
		case OptionTimeout, OptionMaxRetries, OptionRetryDelay, OptionMaxConcurrent:
			if value == "" {
				continue
			}
			n, err := strconv.Atoi(value)
			if err != nil {
				return models.ConfigError(key, err)
			}
			switch key {
			case OptionTimeout:
				c.Hook.TimeoutMillis = n
			case OptionMaxRetries:
				c.Hook.MaxRetries = n
			case OptionRetryDelay:
				c.Hook.RetryDelayMillis = n
			case OptionMaxConcurrent:
				c.Hook.MaxConcurrent = n
			}
		}
	}

	return c.Validate()
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if err := c.Hook.Validate(); err != nil {
		return err
	}

	switch {
	case strings.TrimSpace(c.AuditLog.Filename) == "":
		return models.ConfigError("audit_log.filename", errors.New("must not be empty"))
	case c.AuditLog.RotationInterval <= 0:
		return models.ConfigError("audit_log.rotation_interval", fmt.Errorf("must be positive, got %s", c.AuditLog.RotationInterval))
	case c.AuditLog.ShutdownTimeout <= 0:
		return models.ConfigError("audit_log.shutdown_timeout", fmt.Errorf("must be positive, got %s", c.AuditLog.ShutdownTimeout))
	}

	switch c.DLQ.Backend {
	case "file", "jetstream":
	default:
		return models.ConfigError("dlq.backend", fmt.Errorf("unknown backend %q (supported: file, jetstream)", c.DLQ.Backend))
	}

	return nil
}

// YAML renders the effective configuration, with secrets masked.
func (c *Config) YAML() ([]byte, error) {
	masked := *c
	if masked.Hook.SigningSecret != "" {
		masked.Hook.SigningSecret = "********"
	}
	return yaml.Marshal(&masked)
}
