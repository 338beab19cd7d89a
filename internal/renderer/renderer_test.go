package renderer_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonesrussell/north-cloud/streamline/internal/logger"
	"github.com/jonesrussell/north-cloud/streamline/internal/renderer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const detailPage = `<!doctype html>
<html lang="es-MX">
<head>
  <title>Inception (2010) - Watch</title>
  <script src="/static/player.js"></script>
  <link rel="preload" href="https://cdn.example.net/hls/master.m3u8">
</head>
<body>
  <h1>Inception</h1>
  <iframe src="https://vidsrc.to/embed/movie/tt1375666"></iframe>
  <p>` + longText + `</p>
</body>
</html>`

// longText keeps the body above the interstitial scan threshold.
var longText = fmt.Sprintf("%01200d", 0)

func newRenderer(cfg renderer.Config) *renderer.CollyRenderer {
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Millisecond
	}
	return renderer.New(cfg, logger.NewNop())
}

func hostOf(t *testing.T, raw string) string {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u.Host
}

func TestRender_CollectsPageParts(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/movie/inception-12345", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(detailPage))
	})
	mux.HandleFunc("/static/player.js", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		_, _ = w.Write([]byte(`player.setup({file: "https://doodstream.com/e/abc123"});`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	snap, err := newRenderer(renderer.Config{}).Render(context.Background(), srv.URL+"/movie/inception-12345")
	require.NoError(t, err)

	assert.Equal(t, srv.URL+"/movie/inception-12345", snap.URL)
	assert.Empty(t, snap.BaseURL)
	assert.Contains(t, snap.HTML, "vidsrc.to/embed/movie/tt1375666")
	assert.Equal(t, "es-MX", snap.Language)
	assert.ElementsMatch(t, []string{
		srv.URL + "/static/player.js",
		"https://cdn.example.net/hls/master.m3u8",
		"https://vidsrc.to/embed/movie/tt1375666",
	}, snap.Resources)
	require.Len(t, snap.Scripts, 1)
	assert.Contains(t, snap.Scripts[0], "doodstream.com/e/abc123")
}

func TestRender_RedirectSetsBaseURL(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new/", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(detailPage))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	snap, err := newRenderer(renderer.Config{MaxScripts: -1}).Render(context.Background(), srv.URL+"/old")
	require.NoError(t, err)

	assert.Equal(t, srv.URL+"/new/", snap.BaseURL)
	assert.Empty(t, snap.Scripts)
}

func TestRender_BlockedPages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
	}{
		{
			name:   "forbidden with access denied",
			status: http.StatusForbidden,
			body:   "<html><head><title>403</title></head><body>Access Denied</body></html>",
		},
		{
			name:   "litespeed interstitial served as 200",
			status: http.StatusOK,
			body:   "<html><body><p>Proudly powered by LiteSpeed Web Server</p></body></html>",
		},
		{
			name:   "service unavailable title",
			status: http.StatusServiceUnavailable,
			body:   "<html><head><title>Service Unavailable</title></head><body></body></html>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			snap, err := newRenderer(renderer.Config{}).Render(context.Background(), srv.URL+"/movie/1")
			require.Error(t, err)
			assert.Nil(t, snap)
			assert.ErrorIs(t, err, renderer.ErrRenderFailure)
			assert.ErrorIs(t, err, renderer.ErrBlockedPage)
		})
	}
}

func TestRender_NotFoundIsNotRetried(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("<html><body>" + longText + "</body></html>"))
	}))
	defer srv.Close()

	r := newRenderer(renderer.Config{MaxAttempts: 3})
	_, err := r.Render(context.Background(), srv.URL+"/gone")

	require.ErrorIs(t, err, renderer.ErrRenderFailure)
	assert.NotErrorIs(t, err, renderer.ErrBlockedPage)
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, renderer.StateClosed, r.BreakerState(hostOf(t, srv.URL)))
}

func TestRender_ServerErrorIsRetried(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(detailPage))
	}))
	defer srv.Close()

	snap, err := newRenderer(renderer.Config{MaxAttempts: 2, MaxScripts: -1}).Render(context.Background(), srv.URL+"/movie/1")
	require.NoError(t, err)
	assert.NotEmpty(t, snap.HTML)
	assert.Equal(t, int32(2), hits.Load())
}

func TestRender_CircuitOpensAfterFailures(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := newRenderer(renderer.Config{MaxAttempts: 1, BreakerFailures: 2, BreakerCooldown: time.Hour})
	var transitions []renderer.State
	r.OnBreakerChange(func(_ string, to renderer.State) { transitions = append(transitions, to) })
	for range 2 {
		_, err := r.Render(context.Background(), srv.URL+"/movie/1")
		require.ErrorIs(t, err, renderer.ErrRenderFailure)
	}
	require.Equal(t, renderer.StateOpen, r.BreakerState(hostOf(t, srv.URL)))

	_, err := r.Render(context.Background(), srv.URL+"/movie/1")
	require.ErrorIs(t, err, renderer.ErrCircuitOpen)
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, []renderer.State{renderer.StateOpen}, transitions)
}

func TestRender_InvalidURL(t *testing.T) {
	t.Parallel()

	_, err := newRenderer(renderer.Config{}).Render(context.Background(), "not a url")
	require.ErrorIs(t, err, renderer.ErrRenderFailure)
}

func TestRender_CanceledContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(detailPage))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newRenderer(renderer.Config{}).Render(ctx, srv.URL)
	require.ErrorIs(t, err, renderer.ErrRenderFailure)
	assert.True(t, errors.Is(err, context.Canceled))
}
