package config

import (
	"fmt"
	"time"

	"github.com/vietddude/b24/internal/infra/cache"
	"github.com/vietddude/b24/internal/pipeline/throttle"
)

// Duration unmarshals YAML duration strings like "30s" or "10m".
// yaml.v2 cannot decode those into a bare time.Duration.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Portal  PortalConfig  `yaml:"portal"`
	Client  ClientConfig  `yaml:"client"`
	Limiter LimiterConfig `yaml:"limiter"`
	Cache   CacheConfig   `yaml:"cache"`
	Logging LoggingConfig `yaml:"logging"`
}

// PortalConfig identifies the remote portal and OAuth application.
type PortalConfig struct {
	Endpoint     string   `yaml:"endpoint"`      // e.g. https://example.bitrix24.com
	TokenURL     string   `yaml:"token_url"`     // OAuth token endpoint
	ClientID     string   `yaml:"client_id"`     // supports ${ENV} expansion
	ClientSecret string   `yaml:"client_secret"` // supports ${ENV} expansion
	CallTimeout  Duration `yaml:"call_timeout"`
}

// ClientConfig holds facade-level retry settings.
type ClientConfig struct {
	MaxAttempts   int      `yaml:"max_attempts"`
	RetryDelay    Duration `yaml:"retry_delay"`
	RefreshMargin Duration `yaml:"refresh_margin"`
}

// LimiterConfig is the YAML shape of the admission-control settings.
type LimiterConfig struct {
	MaxRequestsPerSecond float64  `yaml:"max_requests_per_second"`
	BurstLimit           float64  `yaml:"burst_limit"`
	DecayInterval        Duration `yaml:"decay_interval"`
	MaxOperatingTime     float64  `yaml:"max_operating_time"`
	OperatingWindow      Duration `yaml:"operating_window"`
	EnableRetry          bool     `yaml:"enable_retry"`
	MaxRetries           int      `yaml:"max_retries"`
	RetryBackoff         string   `yaml:"retry_backoff"`
	RetryBaseDelay       Duration `yaml:"retry_base_delay"`
	EnableQueue          bool     `yaml:"enable_queue"`
	MaxQueueSize         int      `yaml:"max_queue_size"`
	QueueTimeout         Duration `yaml:"queue_timeout"`
}

// Throttle converts the YAML shape into the controller's config.
func (l LimiterConfig) Throttle() throttle.Config {
	return throttle.Config{
		MaxRequestsPerSecond: l.MaxRequestsPerSecond,
		BurstLimit:           l.BurstLimit,
		DecayInterval:        l.DecayInterval.Std(),
		MaxOperatingTime:     l.MaxOperatingTime,
		OperatingWindow:      l.OperatingWindow.Std(),
		EnableRetry:          l.EnableRetry,
		MaxRetries:           l.MaxRetries,
		RetryBackoff:         throttle.BackoffStrategy(l.RetryBackoff),
		RetryBaseDelay:       l.RetryBaseDelay.Std(),
		EnableQueue:          l.EnableQueue,
		MaxQueueSize:         l.MaxQueueSize,
		QueueTimeout:         l.QueueTimeout.Std(),
	}
}

// CacheConfig selects the response cache backend.
type CacheConfig struct {
	Backend string            `yaml:"backend"` // "", "memory", "redis"
	TTL     Duration          `yaml:"ttl"`
	Redis   cache.RedisConfig `yaml:"redis"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}
