package urlnorm_test

import (
	"errors"
	"net/url"
	"testing"

	"github.com/jonesrussell/north-cloud/streamline/internal/urlnorm"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"lowercase scheme and host", "HTTPS://StreamTape.COM/e/AbC", "https://streamtape.com/e/AbC", false},
		{"keep http", "http://mixdrop.co/e/x1", "http://mixdrop.co/e/x1", false},
		{"trim whitespace", "  https://voe.sx/e/1  ", "https://voe.sx/e/1", false},
		{"remove default https port", "https://voe.sx:443/e/1", "https://voe.sx/e/1", false},
		{"remove default http port", "http://voe.sx:80/e/1", "http://voe.sx/e/1", false},
		{"keep non-default port", "https://voe.sx:8443/e/1", "https://voe.sx:8443/e/1", false},
		{"ipv6 with port", "http://[::1]:8080/e/1", "http://[::1]:8080/e/1", false},
		{"ipv6 without port", "http://[::1]/e/1", "http://[::1]/e/1", false},
		{"ipv6 default port", "https://[2001:DB8::7]:443/e/1", "https://[2001:db8::7]/e/1", false},
		{"drop fragment", "https://voe.sx/e/1#t=30", "https://voe.sx/e/1", false},
		{"drop userinfo", "https://user:pw@voe.sx/e/1", "https://voe.sx/e/1", false},
		{"query order preserved", "https://vidsrc.to/embed?z=1&a=2", "https://vidsrc.to/embed?z=1&a=2", false},
		{"strip tracking params", "https://vidsrc.to/embed?utm_source=x&id=7", "https://vidsrc.to/embed?id=7", false},
		{"only tracking params", "https://vidsrc.to/embed?fbclid=abc", "https://vidsrc.to/embed", false},

		{"empty", "", "", true},
		{"relative", "/embed/1", "", true},
		{"javascript", "javascript:void(0)", "", true},
		{"ftp", "ftp://files.example.com/a.mp4", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := urlnorm.Canonicalize(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Canonicalize(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Canonicalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	base, err := url.Parse("https://1flix.to/movie/watch-inception-19764")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		ref     string
		want    string
		wantErr error
	}{
		{"absolute", "https://Filemoon.SX/e/abc", "https://filemoon.sx/e/abc", nil},
		{"root relative", "/ajax/embed/1", "https://1flix.to/ajax/embed/1", nil},
		{"path relative", "embed/2", "https://1flix.to/movie/embed/2", nil},
		{"protocol relative", "//streamwish.to/e/9", "https://streamwish.to/e/9", nil},
		{"fragment only", "#servers", "", urlnorm.ErrFragmentOnly},
		{"javascript", "javascript:loadServer(1)", "", urlnorm.ErrUnsupportedScheme},
		{"mailto", "mailto:dmca@1flix.to", "", urlnorm.ErrUnsupportedScheme},
		{"data", "data:text/html;base64,AAAA", "", urlnorm.ErrUnsupportedScheme},
		{"blank", "   ", "", urlnorm.ErrEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, resolveErr := urlnorm.Resolve(base, tt.ref)
			if tt.wantErr != nil {
				if !errors.Is(resolveErr, tt.wantErr) {
					t.Fatalf("Resolve(%q) error = %v, want %v", tt.ref, resolveErr, tt.wantErr)
				}
				return
			}
			if resolveErr != nil {
				t.Fatalf("Resolve(%q) unexpected error: %v", tt.ref, resolveErr)
			}
			if got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.ref, got, tt.want)
			}
		})
	}
}

func TestHost(t *testing.T) {
	got, err := urlnorm.Host("https://WWW.Example.com:8080/x")
	if err != nil {
		t.Fatalf("Host() error = %v", err)
	}
	if got != "www.example.com" {
		t.Errorf("Host() = %q, want %q", got, "www.example.com")
	}

	if _, err := urlnorm.Host("/relative"); !errors.Is(err, urlnorm.ErrMissingHost) {
		t.Errorf("Host(relative) error = %v, want ErrMissingHost", err)
	}
}
