package extractor

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// frameSelector covers embedded players and media elements.
const frameSelector = "iframe, embed, video, source, object"

// frameAttrs are the direct and lazy-load source attributes of player elements.
var frameAttrs = []string{"src", "data-src", "data-lazy-src", "data-lazy", "data-url", "data"}

// dataAttrs commonly hold a deferred player URL on arbitrary elements.
var dataAttrs = []string{
	"data-link", "data-server", "data-embed", "data-player",
	"data-url", "data-video", "data-src",
}

// anchorMarkers are href substrings that mark an anchor as a player endpoint.
var anchorMarkers = []string{"embed", "player", "watch", "stream"}

var (
	quotedURLPattern    = regexp.MustCompile(`['"](https?://[^'"]+)['"]`)
	scriptURLPattern    = regexp.MustCompile(`https?://[^\s"'<>\\]+`)
	streamIndicator     = regexp.MustCompile(`(?i)embed|player|stream|video|watch|\.m3u8|\.mp4`)
	escapedSlashReplace = strings.NewReplacer(`\/`, `/`, `\u002F`, `/`, `\u002f`, `/`)
)

func extractFrameSources(doc *goquery.Document, set *candidateSet) {
	doc.Find(frameSelector).Each(func(_ int, sel *goquery.Selection) {
		for _, attr := range frameAttrs {
			if val, ok := sel.Attr(attr); ok {
				set.add(StrategyFrameSource, val)
			}
		}
	})
}

func extractDataAttributes(doc *goquery.Document, set *candidateSet) {
	for _, attr := range dataAttrs {
		doc.Find("[" + attr + "]").Each(func(_ int, sel *goquery.Selection) {
			if val, ok := sel.Attr(attr); ok && looksLikeURL(val) {
				set.add(StrategyDataAttribute, val)
			}
		})
	}
}

func extractEventHandlers(doc *goquery.Document, set *candidateSet) {
	doc.Find("[onclick]").Each(func(_ int, sel *goquery.Selection) {
		handler, _ := sel.Attr("onclick")
		for _, m := range quotedURLPattern.FindAllStringSubmatch(handler, -1) {
			set.add(StrategyEventHandler, m[1])
		}
	})
}

func extractInlineScripts(doc *goquery.Document, set *candidateSet) {
	doc.Find("script").Each(func(_ int, sel *goquery.Selection) {
		if _, external := sel.Attr("src"); external {
			return
		}
		scanScript(sel.Text(), set)
	})
}

// scanScript pulls URL literals out of script text, keeping only those that
// also carry a streaming indicator.
func scanScript(text string, set *candidateSet) {
	if text == "" {
		return
	}

	text = escapedSlashReplace.Replace(text)
	for _, literal := range scriptURLPattern.FindAllString(text, -1) {
		literal = strings.TrimRight(literal, ",;)")
		if streamIndicator.MatchString(literal) {
			set.add(StrategyScriptScan, literal)
		}
	}
}

func extractAnchors(doc *goquery.Document, set *candidateSet) {
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		lower := strings.ToLower(href)
		for _, marker := range anchorMarkers {
			if strings.Contains(lower, marker) {
				set.add(StrategyAnchor, href)
				return
			}
		}
	})
}

// extractResources keeps network resources observed during rendering that
// look like player or media requests.
func extractResources(resources []string, set *candidateSet) {
	for _, res := range resources {
		if streamIndicator.MatchString(res) {
			set.add(StrategyResource, res)
		}
	}
}

// looksLikeURL filters data-* values that are ids or flags rather than URLs.
func looksLikeURL(val string) bool {
	v := strings.TrimSpace(val)
	return strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://") ||
		strings.HasPrefix(v, "//") || strings.HasPrefix(v, "/")
}
