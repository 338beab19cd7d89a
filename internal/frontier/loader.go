// Package frontier describes the listing pages that feed discovery and
// picks title detail links out of them.
package frontier

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

var (
	// ErrNoSites indicates the frontier file lists no usable sites.
	ErrNoSites = errors.New("no sites found in frontier")
	// ErrMissingRequiredField indicates a required field is missing.
	ErrMissingRequiredField = errors.New("missing required field")
	// ErrUnknownSite indicates a requested site is not among the enabled sites.
	ErrUnknownSite = errors.New("unknown or disabled site")
)

const defaultMaxTitles = 200

// defaultDetailPatterns match movie and show detail pages on most sites.
var defaultDetailPatterns = []string{"/movie/", "/tv/"}

// Site is one seed site in the frontier.
type Site struct {
	Name        string   `mapstructure:"name"`
	ListingURLs []string `mapstructure:"listing_urls"`
	// DetailPatterns are path substrings identifying title detail links.
	DetailPatterns []string `mapstructure:"detail_patterns"`
	// MaxTitles caps detail pages discovered per sweep.
	MaxTitles int `mapstructure:"max_titles"`
	// Delay is waited between listing page renders.
	Delay    time.Duration `mapstructure:"delay"`
	Disabled bool          `mapstructure:"disabled"`
}

// frontierFile is the structure of a frontier YAML file.
type frontierFile struct {
	Sites []map[string]any `yaml:"sites"`
}

// Loader reads the frontier file.
type Loader struct {
	path string
}

// NewLoader creates a Loader for path.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Load returns every enabled, valid site. Invalid entries are skipped and
// reported in the returned skipped slice.
func (l *Loader) Load() (sites []Site, skipped []error, err error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, nil, fmt.Errorf("read frontier file: %w", err)
	}

	var file frontierFile
	if unmarshalErr := yaml.Unmarshal(data, &file); unmarshalErr != nil {
		return nil, nil, fmt.Errorf("parse frontier YAML: %w", unmarshalErr)
	}

	for i, raw := range file.Sites {
		site, convertErr := decodeSite(raw)
		if convertErr == nil {
			convertErr = site.validate()
		}
		if convertErr != nil {
			skipped = append(skipped, fmt.Errorf("site %d: %w", i, convertErr))
			continue
		}
		if site.Disabled {
			continue
		}
		sites = append(sites, site)
	}

	if len(sites) == 0 {
		return nil, skipped, ErrNoSites
	}

	return sites, skipped, nil
}

// Select keeps the sites named in names, matched case-insensitively, in
// frontier order. No names selects every site.
func Select(sites []Site, names ...string) ([]Site, error) {
	if len(names) == 0 {
		return sites, nil
	}

	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[strings.ToLower(strings.TrimSpace(n))] = false
	}

	var selected []Site
	for _, site := range sites {
		key := strings.ToLower(site.Name)
		if _, ok := wanted[key]; ok {
			wanted[key] = true
			selected = append(selected, site)
		}
	}

	var missing []string
	for name, found := range wanted {
		if !found {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("%w: %s", ErrUnknownSite, strings.Join(missing, ", "))
	}

	return selected, nil
}

func decodeSite(raw map[string]any) (Site, error) {
	var site Site
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &site,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return Site{}, fmt.Errorf("create decoder: %w", err)
	}

	if decodeErr := decoder.Decode(raw); decodeErr != nil {
		return Site{}, fmt.Errorf("decode site: %w", decodeErr)
	}

	if len(site.DetailPatterns) == 0 {
		site.DetailPatterns = defaultDetailPatterns
	}
	if site.MaxTitles <= 0 {
		site.MaxTitles = defaultMaxTitles
	}

	return site, nil
}

func (s Site) validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: name", ErrMissingRequiredField)
	}
	if len(s.ListingURLs) == 0 {
		return fmt.Errorf("%w: listing_urls", ErrMissingRequiredField)
	}
	for _, raw := range s.ListingURLs {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid listing url %q: %w", raw, err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid listing url %q: must be absolute http(s)", raw)
		}
	}
	if s.Delay < 0 {
		return fmt.Errorf("invalid delay %v", s.Delay)
	}
	return nil
}
