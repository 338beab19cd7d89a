package cmd

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/streamline/internal/database"
	"github.com/jonesrussell/north-cloud/streamline/internal/discovery"
	"github.com/jonesrussell/north-cloud/streamline/internal/domain"
	"github.com/jonesrussell/north-cloud/streamline/internal/health"
)

func TestVersionCommand(t *testing.T) {
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Equal(t, "streamline version dev\n", out.String())
}

func TestMigrateRejectsUnknownDirection(t *testing.T) {
	root := NewRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"migrate", "sideways"})

	require.Error(t, root.Execute())
}

func TestCommandTree(t *testing.T) {
	root := NewRootCommand()

	for _, name := range []string{"serve", "discover", "discover-url", "health-check", "stats", "migrate", "version"} {
		found, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, found.Name())
	}

	hc, _, err := root.Find([]string{"health-check"})
	require.NoError(t, err)
	for _, flag := range []string{"limit", "older-than-hours", "timeout", "concurrency", "no-prune"} {
		assert.NotNil(t, hc.Flags().Lookup(flag), flag)
	}

	du, _, err := root.Find([]string{"discover-url"})
	require.NoError(t, err)
	assert.NotNil(t, du.Flags().Lookup("dry-run"))

	d, _, err := root.Find([]string{"discover"})
	require.NoError(t, err)
	require.NoError(t, d.Flags().Parse([]string{"--site", "1flix,sflix", "--site", "hdtoday"}))
	sites, err := d.Flags().GetStringSlice("site")
	require.NoError(t, err)
	assert.Equal(t, []string{"1flix", "sflix", "hdtoday"}, sites)
}

func TestHealthCheckFlags(t *testing.T) {
	flags := healthCheckFlags{limit: 100, olderThanHours: 1.5, timeout: 3 * time.Second, concurrency: 4}

	assert.Equal(t, health.SweepOptions{
		Limit:       100,
		OlderThan:   90 * time.Minute,
		Timeout:     3 * time.Second,
		Concurrency: 4,
	}, flags.options())
}

func TestRenderVerdicts(t *testing.T) {
	var out bytes.Buffer
	renderVerdicts(&out, &discovery.Report{
		URL:        "https://1flix.to/movie/watch-inception-19764",
		ExternalID: "1flix_19764",
		Candidates: 2,
		Accepted:   1,
		Verdicts: []domain.Verdict{
			{URL: "https://www.youtube.com/embed/x", Decision: domain.DecisionReject, Reason: domain.ReasonSocial},
			{URL: "https://vidsrc.to/embed/movie/tt1375666", Decision: domain.DecisionAccept,
				Reason: domain.ReasonAcceptedHost, Quality: domain.QualityHD, Language: "EN"},
		},
		RenderErr: errors.New("blocked"),
	})

	text := out.String()
	assert.Contains(t, text, "vidsrc.to/embed/movie/tt1375666")
	assert.Contains(t, text, "youtube/social")
	assert.Contains(t, text, "1flix_19764")
	assert.Contains(t, text, "blocked")
	assert.Less(t, bytes.Index(out.Bytes(), []byte("vidsrc.to")), bytes.Index(out.Bytes(), []byte("youtube.com")),
		"accepted rows come first")
}

func TestRenderStats(t *testing.T) {
	var out bytes.Buffer
	renderStats(&out, &database.CatalogStats{Titles: 12, Movies: 7, Shows: 5, Links: 40, ActiveLinks: 31})

	assert.Contains(t, out.String(), "Active links")
	assert.Contains(t, out.String(), "31")
}
