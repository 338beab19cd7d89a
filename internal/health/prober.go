package health

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Reason explains a probe outcome.
type Reason string

// Probe reasons.
const (
	ReasonOK             Reason = "ok"
	ReasonHTTPStatus     Reason = "http_status"
	ReasonTimeout        Reason = "timeout"
	ReasonTransportError Reason = "transport_error"
)

// ErrTooManyRedirects is returned by the redirect policy once the hop limit is hit.
var ErrTooManyRedirects = errors.New("too many redirects")

const maxDrainBytes = 4 << 10

// ProbeResult is the outcome of one liveness check.
type ProbeResult struct {
	Healthy    bool
	StatusCode int
	Reason     Reason
	Latency    time.Duration
}

// Prober checks whether a URL is reachable within timeout; a zero timeout
// uses the prober's default. Per-link failures are reported in the result;
// a non-nil error means the prober itself cannot run (for example the
// context is done) and the caller should stop.
type Prober interface {
	Check(ctx context.Context, rawURL string, timeout time.Duration) (ProbeResult, error)
}

// HTTPProber probes with HEAD and falls back to GET for servers that refuse HEAD.
type HTTPProber struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
	limiter   *hostLimiter
}

// NewHTTPProber creates an HTTPProber from cfg.
func NewHTTPProber(cfg Config) *HTTPProber {
	cfg = cfg.WithDefaults()

	return &HTTPProber{
		client: &http.Client{
			CheckRedirect: redirectPolicy(cfg.MaxRedirects),
		},
		userAgent: cfg.UserAgent,
		timeout:   cfg.Timeout,
		limiter:   newHostLimiter(cfg.PerHostRate, cfg.PerHostBurst),
	}
}

func redirectPolicy(maxHops int) func(*http.Request, []*http.Request) error {
	return func(_ *http.Request, via []*http.Request) error {
		if len(via) >= maxHops {
			return ErrTooManyRedirects
		}
		return nil
	}
}

// Check probes rawURL. 2xx and 3xx final statuses are healthy. The timeout
// covers the HTTP exchange only; time spent queued behind the host's rate
// limit is bounded by ctx alone.
func (p *HTTPProber) Check(ctx context.Context, rawURL string, timeout time.Duration) (ProbeResult, error) {
	if err := ctx.Err(); err != nil {
		return ProbeResult{}, err
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return ProbeResult{Reason: ReasonTransportError}, nil
	}

	if waitErr := p.limiter.Wait(ctx, parsed.Host); waitErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ProbeResult{}, ctxErr
		}
		// The queue is longer than ctx allows; only this link misses out.
		return ProbeResult{Reason: ReasonTimeout}, nil
	}

	if timeout <= 0 {
		timeout = p.timeout
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	status, err := p.do(probeCtx, http.MethodHead, rawURL)
	if err != nil || needsGetFallback(status) {
		status, err = p.do(probeCtx, http.MethodGet, rawURL)
	}
	latency := time.Since(start)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ProbeResult{}, ctxErr
		}
		return ProbeResult{Reason: classifyError(err), Latency: latency}, nil
	}

	result := ProbeResult{StatusCode: status, Latency: latency, Reason: ReasonOK, Healthy: true}
	if status < http.StatusOK || status >= http.StatusBadRequest {
		result.Healthy = false
		result.Reason = ReasonHTTPStatus
	}
	return result, nil
}

func (p *HTTPProber) do(ctx context.Context, method, rawURL string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, http.NoBody)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "*/*")

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
	return resp.StatusCode, nil
}

func needsGetFallback(status int) bool {
	switch status {
	case http.StatusMethodNotAllowed, http.StatusForbidden, http.StatusNotImplemented:
		return true
	default:
		return false
	}
}

func classifyError(err error) Reason {
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonTimeout
	}
	return ReasonTransportError
}

// hostLimiter hands out one token bucket per host.
type hostLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

func newHostLimiter(perSecond float64, burst int) *hostLimiter {
	if perSecond <= 0 {
		return nil
	}
	return &hostLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (h *hostLimiter) Wait(ctx context.Context, host string) error {
	if h == nil {
		return nil
	}

	h.mu.Lock()
	lim, ok := h.limiters[host]
	if !ok {
		lim = rate.NewLimiter(h.limit, h.burst)
		h.limiters[host] = lim
	}
	h.mu.Unlock()

	return lim.Wait(ctx)
}
