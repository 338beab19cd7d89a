// Package urlnorm canonicalizes candidate link URLs so that the same player
// URL written two ways dedupes to one catalog row.
package urlnorm

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"
)

// trackingParams are stripped from the query; they never select a stream.
var trackingParams = map[string]struct{}{
	"utm_source":   {},
	"utm_medium":   {},
	"utm_campaign": {},
	"utm_term":     {},
	"utm_content":  {},
	"fbclid":       {},
	"gclid":        {},
	"msclkid":      {},
}

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// Rejections. Callers drop the value; none of these is fatal.
var (
	ErrEmpty             = errors.New("urlnorm: empty input")
	ErrFragmentOnly      = errors.New("urlnorm: fragment-only reference")
	ErrUnsupportedScheme = errors.New("urlnorm: unsupported scheme")
	ErrMissingHost       = errors.New("urlnorm: missing host")
)

// Canonicalize lowercases scheme and host, drops default ports and the
// fragment, and strips tracking parameters. Only absolute http(s) URLs are
// accepted. Path case and the scheme itself are preserved: a streaming host
// that serves plain http must keep doing so.
func Canonicalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEmpty
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("urlnorm: %w", err)
	}

	return canonical(parsed)
}

// Resolve trims ref, resolves it against base, and canonicalizes the result.
// javascript:, mailto:, data: and bare "#..." references are rejected.
func Resolve(base *url.URL, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", ErrEmpty
	}
	if strings.HasPrefix(ref, "#") {
		return "", ErrFragmentOnly
	}

	parsed, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("urlnorm: %w", err)
	}

	if parsed.Scheme != "" && !isHTTP(parsed.Scheme) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedScheme, parsed.Scheme)
	}

	if base != nil {
		parsed = base.ResolveReference(parsed)
	}

	return canonical(parsed)
}

// Host returns the lowercased hostname of raw without its port.
func Host(raw string) (string, error) {
	if raw == "" {
		return "", ErrEmpty
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("urlnorm: %w", err)
	}
	if parsed.Host == "" {
		return "", ErrMissingHost
	}

	return strings.ToLower(parsed.Hostname()), nil
}

func canonical(u *url.URL) (string, error) {
	scheme := strings.ToLower(u.Scheme)
	if !isHTTP(scheme) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	if u.Host == "" {
		return "", ErrMissingHost
	}

	out := *u
	out.Scheme = scheme
	out.Host = normalizeHost(u, scheme)
	out.Fragment = ""
	out.RawFragment = ""
	out.User = nil

	if out.RawQuery != "" {
		out.RawQuery = stripTracking(out.RawQuery)
	}

	return out.String(), nil
}

func isHTTP(scheme string) bool {
	s := strings.ToLower(scheme)
	return s == "http" || s == "https"
}

func normalizeHost(u *url.URL, scheme string) string {
	hostname := strings.ToLower(u.Hostname())
	port := u.Port()

	if port == "" || defaultPorts[scheme] == port {
		if strings.Contains(hostname, ":") {
			return "[" + hostname + "]"
		}
		return hostname
	}

	return net.JoinHostPort(hostname, port)
}

// stripTracking removes tracking parameters. When none are present the raw
// query is returned untouched so signed player URLs keep their byte order.
func stripTracking(rawQuery string) string {
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return rawQuery
	}

	found := false
	for key := range values {
		if _, ok := trackingParams[strings.ToLower(key)]; ok {
			delete(values, key)
			found = true
		}
	}
	if !found {
		return rawQuery
	}

	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, key := range keys {
		for _, val := range values[key] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(key))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(val))
		}
	}

	return b.String()
}
