package classifier

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jonesrussell/north-cloud/streamline/internal/domain"
)

//go:embed default_policy.yaml
var defaultPolicyYAML []byte

var errEmptyPolicy = errors.New("policy has no allow_hosts and no stream_patterns")

// Policy is the externally maintained classification data. It is versioned
// so operators can tell which list produced a verdict.
type Policy struct {
	Version         int        `yaml:"version"`
	DefaultLanguage string     `yaml:"default_language"`
	Reject          RejectList `yaml:"reject"`
	NavigationPaths []string   `yaml:"navigation_paths"`
	AllowHosts      []string   `yaml:"allow_hosts"`
	StreamPatterns  []string   `yaml:"stream_patterns"`
}

// RejectList groups reject entries by the reason they produce.
type RejectList struct {
	Social         []string `yaml:"social"`
	MovieInfo      []string `yaml:"movie_info"`
	Tracking       []string `yaml:"tracking"`
	SiteNavigation []string `yaml:"site_navigation"`
}

// LoadPolicy reads a policy file.
func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy %s: %w", path, err)
	}

	return ParsePolicy(data)
}

// ParsePolicy decodes a YAML policy document.
func ParsePolicy(data []byte) (Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("parse policy: %w", err)
	}

	return p, nil
}

// DefaultPolicy returns the policy shipped with the binary.
func DefaultPolicy() Policy {
	p, err := ParsePolicy(defaultPolicyYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded policy is invalid: %v", err))
	}
	return p
}

// rule matches either a host (and its subdomains) or a substring of the
// host+path+query haystack.
type rule struct {
	value  string
	domain bool
}

func (r rule) matches(host, haystack string) bool {
	if r.domain {
		return host == r.value || strings.HasSuffix(host, "."+r.value)
	}
	return strings.Contains(haystack, r.value)
}

type rejectCategory struct {
	reason domain.Reason
	rules  []rule
}

// compiledPolicy is a normalized, sorted, read-only form of Policy.
type compiledPolicy struct {
	version         int
	defaultLanguage string
	rejects         []rejectCategory
	navigationPaths []string
	allowHosts      []string
	streamPatterns  []string
}

func compile(p Policy) (*compiledPolicy, error) {
	allow := cleanList(p.AllowHosts)
	patterns := cleanList(p.StreamPatterns)
	if len(allow) == 0 && len(patterns) == 0 {
		return nil, errEmptyPolicy
	}

	lang := strings.ToUpper(strings.TrimSpace(p.DefaultLanguage))
	if lang == "" {
		lang = domain.DefaultLanguage
	}

	return &compiledPolicy{
		version:         p.Version,
		defaultLanguage: lang,
		rejects: []rejectCategory{
			{reason: domain.ReasonSocial, rules: compileRules(p.Reject.Social)},
			{reason: domain.ReasonMovieInfo, rules: compileRules(p.Reject.MovieInfo)},
			{reason: domain.ReasonTracking, rules: compileRules(p.Reject.Tracking)},
			{reason: domain.ReasonSiteNavigation, rules: compileRules(p.Reject.SiteNavigation)},
		},
		navigationPaths: cleanList(p.NavigationPaths),
		allowHosts:      allow,
		streamPatterns:  patterns,
	}, nil
}

func compileRules(entries []string) []rule {
	cleaned := cleanList(entries)
	rules := make([]rule, 0, len(cleaned))
	for _, e := range cleaned {
		rules = append(rules, rule{value: e, domain: isDomainEntry(e)})
	}
	return rules
}

// isDomainEntry reports whether e is a bare hostname such as "x.com".
func isDomainEntry(e string) bool {
	if !strings.Contains(e, ".") || strings.ContainsAny(e, "/?=&") {
		return false
	}
	return !strings.HasPrefix(e, ".") && !strings.HasSuffix(e, ".")
}

// cleanList lowercases, trims, dedupes, and sorts entries.
func cleanList(entries []string) []string {
	seen := make(map[string]struct{}, len(entries))
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}
