package health

import "time"

const (
	defaultTimeout          = 5 * time.Second
	defaultConcurrency      = 8
	defaultStaleAfter       = 24 * time.Hour
	defaultPruneAfterSweeps = 3
	defaultPerHostBurst     = 1
	defaultMaxRedirects     = 10

	// DefaultUserAgent is a desktop browser string; many hosts refuse bare clients.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Config holds health monitor settings.
type Config struct {
	// Timeout bounds one probe, including the GET fallback.
	Timeout     time.Duration `yaml:"timeout"`
	Concurrency int           `yaml:"concurrency"`
	// StaleAfter is how long a check stays current before a sweep re-probes it.
	StaleAfter time.Duration `yaml:"stale_after"`
	// BatchLimit caps links per sweep. Zero means no cap.
	BatchLimit int `yaml:"batch_limit"`

	// PruneAfterSweeps is the number of consecutive sweeps a title may end
	// with zero active links before it is deleted.
	PruneAfterSweeps int  `yaml:"prune_after_sweeps"`
	PruneNeverLinked bool `yaml:"prune_never_linked"`

	// PerHostRate is requests per second per host. Zero disables limiting.
	PerHostRate  float64 `yaml:"per_host_rate"`
	PerHostBurst int     `yaml:"per_host_burst"`

	UserAgent    string `env:"HEALTH_USER_AGENT" yaml:"user_agent"`
	MaxRedirects int    `yaml:"max_redirects"`
}

// WithDefaults returns a copy of c with zero fields filled.
func (c Config) WithDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.Concurrency <= 0 {
		c.Concurrency = defaultConcurrency
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = defaultStaleAfter
	}
	if c.PruneAfterSweeps == 0 {
		c.PruneAfterSweeps = defaultPruneAfterSweeps
	}
	if c.PerHostBurst <= 0 {
		c.PerHostBurst = defaultPerHostBurst
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.MaxRedirects <= 0 {
		c.MaxRedirects = defaultMaxRedirects
	}
	return c
}
