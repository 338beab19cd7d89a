// Package classifier decides which extracted candidates are streaming links.
// The decision algorithm is fixed; the host and pattern lists it consults
// come from an external Policy.
package classifier

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/jonesrussell/north-cloud/streamline/internal/domain"
)

// Config selects the policy file. An empty path uses the embedded policy.
type Config struct {
	PolicyPath      string `env:"CLASSIFIER_POLICY_PATH" yaml:"policy_path"`
	DefaultLanguage string `env:"DEFAULT_LANGUAGE"       yaml:"default_language"`
}

// SetDefaults does nothing; the policy supplies its own default language.
func (c *Config) SetDefaults() {}

// PageContext describes the page the candidates were extracted from.
type PageContext struct {
	// Host of the page itself, used to reject same-site navigation.
	Host string
	// Language declared by the page, if any.
	Language string
}

// Classifier applies a compiled Policy. It is safe for concurrent use.
type Classifier struct {
	policy *compiledPolicy
}

// New compiles p into a Classifier.
func New(p Policy) (*Classifier, error) {
	compiled, err := compile(p)
	if err != nil {
		return nil, fmt.Errorf("compile policy: %w", err)
	}
	return &Classifier{policy: compiled}, nil
}

// FromConfig loads the configured policy, falling back to the embedded one.
func FromConfig(cfg Config) (*Classifier, error) {
	p := DefaultPolicy()
	if cfg.PolicyPath != "" {
		loaded, err := LoadPolicy(cfg.PolicyPath)
		if err != nil {
			return nil, err
		}
		p = loaded
	}
	if cfg.DefaultLanguage != "" {
		p.DefaultLanguage = cfg.DefaultLanguage
	}
	return New(p)
}

// PolicyVersion returns the version of the loaded policy.
func (c *Classifier) PolicyVersion() int {
	return c.policy.version
}

// Classify returns the verdict for one candidate. The first matching rule
// wins: reject lists, then allow-listed hosts, then stream patterns.
// Anything unmatched or unparsable is rejected as not-video-like.
func (c *Classifier) Classify(candidate string, page PageContext) domain.Verdict {
	verdict := domain.Verdict{
		URL:      candidate,
		Decision: domain.DecisionReject,
		Reason:   domain.ReasonNotVideoLike,
		Quality:  InferQuality(candidate),
		Language: c.language(page),
	}

	u, err := url.Parse(candidate)
	if err != nil || u.Host == "" {
		return verdict
	}

	host := strings.ToLower(u.Hostname())
	pathQuery := strings.ToLower(u.EscapedPath())
	if u.RawQuery != "" {
		pathQuery += "?" + strings.ToLower(u.RawQuery)
	}
	haystack := host + pathQuery

	if reason, rejected := c.rejectReason(host, pathQuery, haystack, page); rejected {
		verdict.Reason = reason
		return verdict
	}

	if c.allowedHost(host) {
		verdict.Decision = domain.DecisionAccept
		verdict.Reason = domain.ReasonAcceptedHost
		return verdict
	}

	for _, pattern := range c.policy.streamPatterns {
		if strings.Contains(pathQuery, pattern) {
			verdict.Decision = domain.DecisionAccept
			verdict.Reason = domain.ReasonAcceptedPattern
			return verdict
		}
	}

	return verdict
}

// ClassifyAll dedupes candidates and returns their verdicts sorted by URL.
func (c *Classifier) ClassifyAll(candidates []string, page PageContext) []domain.Verdict {
	unique := make(map[string]struct{}, len(candidates))
	for _, cand := range candidates {
		unique[cand] = struct{}{}
	}

	sorted := make([]string, 0, len(unique))
	for cand := range unique {
		sorted = append(sorted, cand)
	}
	sort.Strings(sorted)

	verdicts := make([]domain.Verdict, 0, len(sorted))
	for _, cand := range sorted {
		verdicts = append(verdicts, c.Classify(cand, page))
	}
	return verdicts
}

// Accepted filters verdicts down to ACCEPTs.
func Accepted(verdicts []domain.Verdict) []domain.Verdict {
	out := make([]domain.Verdict, 0, len(verdicts))
	for _, v := range verdicts {
		if v.Accepted() {
			out = append(out, v)
		}
	}
	return out
}

func (c *Classifier) rejectReason(host, pathQuery, haystack string, page PageContext) (domain.Reason, bool) {
	for _, category := range c.policy.rejects {
		for _, r := range category.rules {
			if r.matches(host, haystack) {
				return category.reason, true
			}
		}
	}

	if page.Host != "" && sameSite(host, strings.ToLower(page.Host)) {
		for _, p := range c.policy.navigationPaths {
			if strings.HasPrefix(pathQuery, p) {
				return domain.ReasonSiteNavigation, true
			}
		}
	}

	return "", false
}

func (c *Classifier) allowedHost(host string) bool {
	for _, label := range c.policy.allowHosts {
		if strings.Contains(host, label) {
			return true
		}
	}
	return false
}

func (c *Classifier) language(page PageContext) string {
	if lang := strings.TrimSpace(page.Language); lang != "" {
		if i := strings.IndexAny(lang, "-_"); i > 0 {
			lang = lang[:i]
		}
		return strings.ToUpper(lang)
	}
	return c.policy.defaultLanguage
}

func sameSite(a, b string) bool {
	return strings.TrimPrefix(a, "www.") == strings.TrimPrefix(b, "www.")
}

// InferQuality reads the advertised resolution from URL substrings.
func InferQuality(rawURL string) domain.Quality {
	lower := strings.ToLower(rawURL)
	switch {
	case strings.Contains(lower, "4k"), strings.Contains(lower, "2160"):
		return domain.Quality4K
	case strings.Contains(lower, "1080"):
		return domain.Quality1080p
	case strings.Contains(lower, "720"):
		return domain.Quality720p
	case strings.Contains(lower, "cam"):
		return domain.QualityCAM
	default:
		return domain.QualityHD
	}
}
