package extractor

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/north-cloud/streamline/internal/domain"
)

var (
	imdbLinkPattern = regexp.MustCompile(`imdb\.com/title/(tt\d{7,8})`)
	imdbIDPattern   = regexp.MustCompile(`\b(tt\d{7,8})\b`)
	yearPattern     = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)
	trailingNumber  = regexp.MustCompile(`(\d+)/?$`)
)

const posterSelector = "img.film-poster-img, .film-poster img, .poster img, img[itemprop='image'], img[alt*='poster']"

// placeholderHashLen is the hex length used when a page URL has no numeric id.
const placeholderHashLen = 10

// ExtractMetadata reads title attributes and a canonical catalog id from a
// detail page. Missing values are left empty.
func ExtractMetadata(snap *domain.PageSnapshot) domain.TitleMetadata {
	var meta domain.TitleMetadata
	if snap == nil {
		return meta
	}

	meta.Attrs.SourceDetailURL = snap.URL
	meta.Attrs.Kind = KindFromURL(snap.URL)

	if snap.HTML == "" {
		return meta
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(snap.HTML))
	if err != nil {
		return meta
	}

	meta.Attrs.DisplayName = displayName(doc)
	meta.Attrs.PosterURL = posterURL(doc, snap.URL)
	meta.Attrs.Synopsis = synopsis(doc)
	meta.Attrs.ReleaseYear = releaseYear(doc, meta.Attrs.DisplayName, meta.Attrs.Synopsis)
	meta.CanonicalID = canonicalID(doc, snap.HTML)

	return meta
}

func displayName(doc *goquery.Document) string {
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		return h1
	}

	if og, ok := doc.Find("meta[property='og:title']").Attr("content"); ok && strings.TrimSpace(og) != "" {
		return strings.TrimSpace(og)
	}

	return strings.TrimSpace(doc.Find("title").First().Text())
}

func posterURL(doc *goquery.Document, pageURL string) string {
	raw, ok := doc.Find("meta[property='og:image']").Attr("content")
	if !ok || strings.TrimSpace(raw) == "" {
		img := doc.Find(posterSelector).First()
		raw, ok = img.Attr("src")
		if !ok || raw == "" {
			raw, _ = img.Attr("data-src")
		}
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return raw
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return ""
	}

	return base.ResolveReference(ref).String()
}

func synopsis(doc *goquery.Document) string {
	if desc, ok := doc.Find("meta[name='description']").Attr("content"); ok && strings.TrimSpace(desc) != "" {
		return strings.TrimSpace(desc)
	}

	if og, ok := doc.Find("meta[property='og:description']").Attr("content"); ok {
		return strings.TrimSpace(og)
	}

	return ""
}

func releaseYear(doc *goquery.Document, texts ...string) *int {
	if published, ok := doc.Find("meta[itemprop='datePublished']").Attr("content"); ok {
		texts = append([]string{published}, texts...)
	}

	for _, text := range texts {
		if m := yearPattern.FindStringSubmatch(text); m != nil {
			if year, err := strconv.Atoi(m[1]); err == nil {
				return &year
			}
		}
	}

	return nil
}

// canonicalID prefers an explicit IMDB title link, then any bare tt-id in the page.
func canonicalID(doc *goquery.Document, html string) string {
	var found string
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		if m := imdbLinkPattern.FindStringSubmatch(href); m != nil {
			found = m[1]
			return false
		}
		return true
	})
	if found != "" {
		return found
	}

	if m := imdbLinkPattern.FindStringSubmatch(html); m != nil {
		return m[1]
	}
	if m := imdbIDPattern.FindStringSubmatch(html); m != nil {
		return m[1]
	}

	return ""
}

// KindFromURL classifies a detail page as a show when its path is under
// /tv/ or /show/, otherwise as a movie.
func KindFromURL(pageURL string) domain.TitleKind {
	lower := strings.ToLower(pageURL)
	if strings.Contains(lower, "/tv/") || strings.Contains(lower, "/show/") {
		return domain.KindShow
	}
	return domain.KindMovie
}

// PlaceholderID synthesizes a stable external id for a page that exposes no
// catalog id: the site label plus the trailing numeric id of the path, e.g.
// "1flix_19764". Pages without a numeric id fall back to a short path hash.
func PlaceholderID(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		sum := sha256.Sum256([]byte(pageURL))
		return "page_" + hex.EncodeToString(sum[:])[:placeholderHashLen]
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	site := host
	if dot := strings.IndexByte(host, '.'); dot > 0 {
		site = host[:dot]
	}

	if m := trailingNumber.FindStringSubmatch(u.Path); m != nil {
		return site + "_" + m[1]
	}

	sum := sha256.Sum256([]byte(host + u.Path))
	return site + "_" + hex.EncodeToString(sum[:])[:placeholderHashLen]
}
