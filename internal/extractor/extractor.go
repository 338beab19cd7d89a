// Package extractor turns a rendered page snapshot into the raw set of
// candidate streaming URLs. It never decides whether a candidate is a real
// player; that is left to the classifier.
package extractor

import (
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/north-cloud/streamline/internal/domain"
	"github.com/jonesrussell/north-cloud/streamline/internal/urlnorm"
)

// Strategy names, used as keys of ExtractionResult.StrategyHits.
const (
	StrategyFrameSource   = "frame_source"
	StrategyDataAttribute = "data_attribute"
	StrategyEventHandler  = "event_handler"
	StrategyScriptScan    = "script_scan"
	StrategyAnchor        = "anchor"
	StrategyResource      = "resource"
)

// CandidateExtractor runs every strategy over a snapshot and unions the results.
type CandidateExtractor struct{}

// New creates a CandidateExtractor.
func New() *CandidateExtractor {
	return &CandidateExtractor{}
}

// candidateSet accumulates normalized candidates and per-strategy hit counts.
type candidateSet struct {
	base *url.URL
	seen map[string]struct{}
	hits map[string]int
}

func (s *candidateSet) add(strategy, raw string) {
	normalized, err := urlnorm.Resolve(s.base, raw)
	if err != nil {
		return
	}

	s.hits[strategy]++
	s.seen[normalized] = struct{}{}
}

// Extract returns the deduplicated, sorted candidate set for snap. A nil or
// empty snapshot yields an empty result.
func (e *CandidateExtractor) Extract(snap *domain.PageSnapshot) domain.ExtractionResult {
	result := domain.ExtractionResult{StrategyHits: map[string]int{}}
	if snap.IsEmpty() {
		if snap != nil {
			result.PageURL = snap.URL
		}
		return result
	}
	result.PageURL = snap.URL

	set := &candidateSet{
		seen: make(map[string]struct{}),
		hits: result.StrategyHits,
	}

	var doc *goquery.Document
	if snap.HTML != "" {
		if parsed, err := goquery.NewDocumentFromReader(strings.NewReader(snap.HTML)); err == nil {
			doc = parsed
		}
	}

	set.base = baseURL(snap, doc)

	if doc != nil {
		extractFrameSources(doc, set)
		extractDataAttributes(doc, set)
		extractEventHandlers(doc, set)
		extractInlineScripts(doc, set)
		extractAnchors(doc, set)
	}

	for _, script := range snap.Scripts {
		scanScript(script, set)
	}

	extractResources(snap.Resources, set)

	result.Candidates = make([]string, 0, len(set.seen))
	for candidate := range set.seen {
		result.Candidates = append(result.Candidates, candidate)
	}
	sort.Strings(result.Candidates)

	return result
}

// baseURL picks the reference URL for relative values: the snapshot's
// explicit BaseURL, then <base href>, then the page URL.
func baseURL(snap *domain.PageSnapshot, doc *goquery.Document) *url.URL {
	pageURL, _ := url.Parse(snap.URL)

	if snap.BaseURL != "" {
		if u, err := url.Parse(snap.BaseURL); err == nil {
			return u
		}
	}

	if doc != nil {
		if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
			if u, err := url.Parse(strings.TrimSpace(href)); err == nil {
				if pageURL != nil {
					return pageURL.ResolveReference(u)
				}
				return u
			}
		}
	}

	return pageURL
}
