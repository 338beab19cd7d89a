package orchestrator

import "time"

const (
	defaultFreshnessWindow = 24 * time.Hour
	defaultMinActiveLinks  = 2
	defaultJobTimeout      = 240 * time.Second
	defaultRetryCooldown   = 5 * time.Minute
)

// IDPlaceholder is replaced by a title's external id in fallback URL templates.
const IDPlaceholder = "{id}"

// Config holds refresh settings.
type Config struct {
	// FreshnessWindow is how old the newest active link check may be.
	FreshnessWindow time.Duration `yaml:"freshness_window"`
	// MinActiveLinks below this count a title is refreshed on read.
	MinActiveLinks int           `yaml:"min_active_links"`
	JobTimeout     time.Duration `yaml:"job_timeout"`
	// RetryCooldown stops reads from re-triggering a title whose last job
	// finished this recently. Forced refreshes ignore it.
	RetryCooldown time.Duration `yaml:"retry_cooldown"`
	// FallbackURLs maps a title kind to a detail URL template used when no
	// detail URL is stored. Only catalog ids are substituted.
	FallbackURLs map[string]string `yaml:"fallback_urls"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.FreshnessWindow <= 0 {
		c.FreshnessWindow = defaultFreshnessWindow
	}
	if c.MinActiveLinks == 0 {
		c.MinActiveLinks = defaultMinActiveLinks
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaultJobTimeout
	}
	if c.RetryCooldown == 0 {
		c.RetryCooldown = defaultRetryCooldown
	}
	if c.FallbackURLs == nil {
		c.FallbackURLs = map[string]string{
			"movie": "https://1flix.to/movie/" + IDPlaceholder,
			"show":  "https://1flix.to/tv/" + IDPlaceholder,
		}
	}
}
