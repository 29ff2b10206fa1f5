package throttle

import "time"

// BackoffStrategy selects how internal rate-limit retries are spaced.
type BackoffStrategy string

const (
	BackoffLinear      BackoffStrategy = "linear"
	BackoffExponential BackoffStrategy = "exponential"
)

// Config holds admission-control settings, mirroring the limits the portal
// enforces server-side.
type Config struct {
	// Leaky bucket
	MaxRequestsPerSecond float64       // decay rate
	BurstLimit           float64       // bucket capacity
	DecayInterval        time.Duration // tick period

	// Operating-time resource budget
	MaxOperatingTime float64 // seconds per window
	OperatingWindow  time.Duration

	// Internal retry for rate-limit failures
	EnableRetry    bool
	MaxRetries     int
	RetryBackoff   BackoffStrategy
	RetryBaseDelay time.Duration

	// Queueing
	EnableQueue  bool
	MaxQueueSize int
	QueueTimeout time.Duration
}

// DefaultConfig returns the portal's published limits as defaults.
func DefaultConfig() Config {
	return Config{
		MaxRequestsPerSecond: 2,
		BurstLimit:           50,
		DecayInterval:        time.Second,
		MaxOperatingTime:     480,
		OperatingWindow:      10 * time.Minute,
		EnableRetry:          true,
		MaxRetries:           3,
		RetryBackoff:         BackoffExponential,
		RetryBaseDelay:       time.Second,
		EnableQueue:          true,
		MaxQueueSize:         100,
		QueueTimeout:         60 * time.Second,
	}
}

// withDefaults fills zero fields so a partially specified config is usable.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxRequestsPerSecond < 0 {
		c.MaxRequestsPerSecond = 0
	}
	if c.BurstLimit <= 0 {
		c.BurstLimit = def.BurstLimit
	}
	if c.DecayInterval <= 0 {
		c.DecayInterval = def.DecayInterval
	}
	if c.OperatingWindow <= 0 {
		c.OperatingWindow = def.OperatingWindow
	}
	if c.MaxOperatingTime <= 0 {
		c.MaxOperatingTime = def.MaxOperatingTime
	}
	if c.RetryBackoff == "" {
		c.RetryBackoff = def.RetryBackoff
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = def.RetryBaseDelay
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = def.MaxQueueSize
	}
	if c.QueueTimeout <= 0 {
		c.QueueTimeout = def.QueueTimeout
	}
	return c
}
