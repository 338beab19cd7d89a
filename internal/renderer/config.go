package renderer

import "time"

const (
	defaultTimeout         = 30 * time.Second
	defaultMaxBodySize     = 10 << 20
	defaultMaxScripts      = 5
	defaultMaxAttempts     = 2
	defaultRetryDelay      = 500 * time.Millisecond
	defaultBreakerFailures = 5
	defaultBreakerCooldown = 60 * time.Second

	// DefaultUserAgent matches what a desktop Chrome sends.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// defaultBlockedMarkers are lowercase phrases of interstitial and WAF pages.
var defaultBlockedMarkers = []string{
	"access denied",
	"service unavailable",
	"proudly powered by litespeed",
	"attention required",
	"just a moment...",
}

// Config holds renderer settings.
type Config struct {
	Timeout     time.Duration `yaml:"timeout"`
	UserAgent   string        `env:"RENDERER_USER_AGENT" yaml:"user_agent"`
	MaxBodySize int           `yaml:"max_body_size"`
	// MaxScripts caps external script bodies fetched per page. Negative disables.
	MaxScripts int `yaml:"max_scripts"`

	MaxAttempts int           `yaml:"max_attempts"`
	RetryDelay  time.Duration `yaml:"retry_delay"`

	// BreakerFailures consecutive failures on a host open its circuit for BreakerCooldown.
	BreakerFailures int           `yaml:"breaker_failures"`
	BreakerCooldown time.Duration `yaml:"breaker_cooldown"`

	BlockedMarkers []string `yaml:"blocked_markers"`
}

// WithDefaults returns a copy of c with zero fields filled.
func (c Config) WithDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.MaxBodySize <= 0 {
		c.MaxBodySize = defaultMaxBodySize
	}
	if c.MaxScripts == 0 {
		c.MaxScripts = defaultMaxScripts
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = defaultRetryDelay
	}
	if c.BreakerFailures <= 0 {
		c.BreakerFailures = defaultBreakerFailures
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = defaultBreakerCooldown
	}
	if len(c.BlockedMarkers) == 0 {
		c.BlockedMarkers = defaultBlockedMarkers
	}
	return c
}
