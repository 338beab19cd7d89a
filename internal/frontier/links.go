package frontier

import (
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/north-cloud/streamline/internal/domain"
	"github.com/jonesrussell/north-cloud/streamline/internal/urlnorm"
)

// DetailLinks returns the title detail pages a listing page links to: same
// host as the listing, path matching one of the site's detail patterns,
// canonicalized, unique, and sorted.
func DetailLinks(snap *domain.PageSnapshot, site Site) []string {
	if snap.IsEmpty() || snap.HTML == "" {
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(snap.HTML))
	if err != nil {
		return nil
	}

	base, err := url.Parse(snap.URL)
	if err != nil {
		return nil
	}
	if snap.BaseURL != "" {
		if b, parseErr := url.Parse(snap.BaseURL); parseErr == nil {
			base = b
		}
	}
	listingHost := sameSiteHost(base.Hostname())

	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		abs, resolveErr := urlnorm.Resolve(base, href)
		if resolveErr != nil {
			return
		}
		u, parseErr := url.Parse(abs)
		if parseErr != nil || sameSiteHost(u.Hostname()) != listingHost {
			return
		}
		if !matchesAny(strings.ToLower(u.Path), site.DetailPatterns) {
			return
		}
		seen[abs] = struct{}{}
	})

	links := make([]string, 0, len(seen))
	for l := range seen {
		links = append(links, l)
	}
	sort.Strings(links)

	if site.MaxTitles > 0 && len(links) > site.MaxTitles {
		links = links[:site.MaxTitles]
	}
	return links
}

func sameSiteHost(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}

func matchesAny(path string, patterns []string) bool {
	for _, p := range patterns {
		if p != "" && strings.Contains(path, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
