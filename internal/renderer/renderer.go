// Package renderer fetches title pages and turns them into page snapshots
// for extraction. Pages are fetched statically with colly; script bodies
// and embedded resources are collected so script-built players still
// surface as candidates.
package renderer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	colly "github.com/gocolly/colly/v2"

	"github.com/jonesrussell/north-cloud/streamline/internal/domain"
	"github.com/jonesrussell/north-cloud/streamline/internal/logger"
)

var (
	// ErrRenderFailure wraps every failure to produce a snapshot.
	ErrRenderFailure = errors.New("render failed")
	// ErrBlockedPage means the host served an interstitial or block page.
	ErrBlockedPage = errors.New("blocked page")
)

// shortBodyChars bounds how much body text is scanned for block markers on
// pages that otherwise look successful.
const shortBodyChars = 1024

const resourceSelector = "script[src], iframe[src], embed[src], video[src], source[src], " +
	"link[rel=preload][href], link[rel=prefetch][href]"

// CollyRenderer renders pages with a shared colly collector.
type CollyRenderer struct {
	base     *colly.Collector
	cfg      Config
	breakers *breakerSet
	log      logger.Logger
	hook     func(host string, to State)
}

// New creates a CollyRenderer.
func New(cfg Config, log logger.Logger) *CollyRenderer {
	cfg = cfg.WithDefaults()
	log = log.With(logger.Component("renderer"))

	base := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.MaxBodySize(cfg.MaxBodySize),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.ParseHTTPErrorResponse(),
		colly.DetectCharset(),
	)
	base.SetRequestTimeout(cfg.Timeout)

	r := &CollyRenderer{
		base:     base,
		cfg:      cfg,
		breakers: newBreakerSet(cfg.BreakerFailures, cfg.BreakerCooldown),
		log:      log,
	}
	r.breakers.onChange = func(host string, from, to State) {
		log.Warn("Render circuit changed state",
			logger.String("host", host),
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
		if r.hook != nil {
			r.hook(host, to)
		}
	}

	return r
}

// OnBreakerChange registers fn to be called on every circuit transition.
// It must be set before the renderer is used.
func (r *CollyRenderer) OnBreakerChange(fn func(host string, to State)) {
	r.hook = fn
}

// capture is what one page fetch observed.
type capture struct {
	status          int
	body            string
	finalURL        string
	contentLanguage string
	htmlLang        string
	title           string
	bodyText        string
	resources       []string
	scriptSrcs      []string
}

// Render fetches rawURL and returns its snapshot. Every error wraps
// ErrRenderFailure; block pages also wrap ErrBlockedPage.
func (r *CollyRenderer) Render(ctx context.Context, rawURL string) (*domain.PageSnapshot, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("%w: invalid url %q", ErrRenderFailure, rawURL)
	}
	host := strings.ToLower(parsed.Host)

	b := r.breakers.get(host)
	if allowErr := b.allow(); allowErr != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRenderFailure, rawURL, allowErr)
	}

	var page *capture
	fetchErr := retry(ctx, r.cfg.MaxAttempts, r.cfg.RetryDelay, func() error {
		var attemptErr error
		page, attemptErr = r.fetch(ctx, rawURL)
		return attemptErr
	})
	b.record(countsAgainstHost(fetchErr))

	if fetchErr != nil {
		r.log.Warn("Render failed",
			logger.String("url", rawURL),
			logger.Error(fetchErr),
		)
		return nil, fmt.Errorf("%w: %s: %w", ErrRenderFailure, rawURL, fetchErr)
	}

	snap := &domain.PageSnapshot{
		URL:       rawURL,
		HTML:      page.body,
		Resources: page.resources,
		Scripts:   r.fetchScripts(ctx, page.scriptSrcs),
		Language:  pageLanguage(page),
	}
	if page.finalURL != "" && page.finalURL != rawURL {
		snap.BaseURL = page.finalURL
	}

	r.log.Debug("Rendered page",
		logger.String("url", rawURL),
		logger.Int("status_code", page.status),
		logger.Int("resources", len(snap.Resources)),
		logger.Int("scripts", len(snap.Scripts)),
	)

	return snap, nil
}

// countsAgainstHost reports whether err should move the host's breaker.
// Plain 4xx answers mean the page is gone, not that the host is unhealthy.
func countsAgainstHost(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return isTransient(err) || errors.Is(err, ErrBlockedPage)
}

func (r *CollyRenderer) fetch(ctx context.Context, rawURL string) (*capture, error) {
	col := r.base.Clone()
	col.Context = ctx

	page := &capture{}
	seen := make(map[string]struct{})

	col.OnResponse(func(resp *colly.Response) {
		page.status = resp.StatusCode
		page.body = string(resp.Body)
		page.finalURL = resp.Request.URL.String()
		if resp.Headers != nil {
			page.contentLanguage = resp.Headers.Get("Content-Language")
		}
	})

	col.OnHTML("html", func(e *colly.HTMLElement) {
		page.htmlLang = e.Attr("lang")
		page.title = strings.TrimSpace(e.ChildText("title"))
		page.bodyText = strings.TrimSpace(e.ChildText("body"))

		e.ForEach(resourceSelector, func(_ int, el *colly.HTMLElement) {
			ref := el.Attr("src")
			if ref == "" {
				ref = el.Attr("href")
			}
			if strings.TrimSpace(ref) == "" {
				return
			}
			abs := el.Request.AbsoluteURL(ref)
			if abs == "" {
				return
			}
			if _, dup := seen[abs]; !dup {
				seen[abs] = struct{}{}
				page.resources = append(page.resources, abs)
			}
			if el.Name == "script" {
				page.scriptSrcs = append(page.scriptSrcs, abs)
			}
		})
	})

	if err := col.Visit(rawURL); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &transientError{err: err}
	}

	if marker := r.blockedMarker(page); marker != "" {
		return nil, fmt.Errorf("%w: status %d, marker %q", ErrBlockedPage, page.status, marker)
	}

	switch {
	case page.status >= http.StatusInternalServerError:
		return nil, &transientError{err: fmt.Errorf("unexpected status %d", page.status)}
	case page.status >= http.StatusBadRequest:
		return nil, fmt.Errorf("unexpected status %d", page.status)
	}

	return page, nil
}

// blockedMarker returns the block marker the page matches, if any. Error
// pages are scanned in full; successful pages only by title or when their
// body is short enough to be an interstitial.
func (r *CollyRenderer) blockedMarker(page *capture) string {
	haystacks := []string{strings.ToLower(page.title)}
	if page.status >= http.StatusBadRequest || len(page.bodyText) <= shortBodyChars {
		haystacks = append(haystacks, strings.ToLower(page.bodyText))
	}

	for _, marker := range r.cfg.BlockedMarkers {
		marker = strings.ToLower(marker)
		for _, h := range haystacks {
			if h != "" && strings.Contains(h, marker) {
				return marker
			}
		}
	}
	return ""
}

// fetchScripts downloads up to MaxScripts external script bodies. Failures
// only cost that script.
func (r *CollyRenderer) fetchScripts(ctx context.Context, srcs []string) []string {
	if r.cfg.MaxScripts < 0 {
		return nil
	}
	if len(srcs) > r.cfg.MaxScripts {
		srcs = srcs[:r.cfg.MaxScripts]
	}

	var scripts []string
	for _, src := range srcs {
		if ctx.Err() != nil {
			break
		}

		col := r.base.Clone()
		col.Context = ctx

		var body string
		col.OnResponse(func(resp *colly.Response) {
			if resp.StatusCode == http.StatusOK {
				body = string(resp.Body)
			}
		})

		if err := col.Visit(src); err != nil {
			r.log.Debug("Skipping external script", logger.String("src", src), logger.Error(err))
			continue
		}
		if body != "" {
			scripts = append(scripts, body)
		}
	}
	return scripts
}

// pageLanguage prefers the declared html lang over the response header.
func pageLanguage(page *capture) string {
	if page.htmlLang != "" {
		return page.htmlLang
	}
	if lang, _, _ := strings.Cut(page.contentLanguage, ","); lang != "" {
		return strings.TrimSpace(lang)
	}
	return ""
}

// BreakerState reports the circuit state for host.
func (r *CollyRenderer) BreakerState(host string) State {
	return r.breakers.state(strings.ToLower(host))
}
