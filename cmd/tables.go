package cmd

import (
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/jonesrussell/north-cloud/streamline/internal/database"
	"github.com/jonesrussell/north-cloud/streamline/internal/discovery"
	"github.com/jonesrussell/north-cloud/streamline/internal/domain"
	"github.com/jonesrussell/north-cloud/streamline/internal/health"
)

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	if title != "" {
		t.SetTitle(title)
	}
	return t
}

// renderVerdicts prints one row per classified candidate, accepted first.
func renderVerdicts(w io.Writer, report *discovery.Report) {
	t := newTable(w, report.URL)
	t.AppendHeader(table.Row{"Decision", "Reason", "Quality", "Language", "URL"})

	for _, pass := range []domain.Decision{domain.DecisionAccept, domain.DecisionReject} {
		for _, v := range report.Verdicts {
			if v.Decision != pass {
				continue
			}
			t.AppendRow(table.Row{v.Decision, v.Reason, v.Quality, v.Language, v.URL})
		}
	}

	t.AppendFooter(table.Row{"", "", "", "accepted", report.Accepted})
	t.Render()

	meta := newTable(w, "Title")
	meta.AppendRows([]table.Row{
		{"Name", report.Metadata.Attrs.DisplayName},
		{"Kind", report.Metadata.Attrs.Kind},
		{"Canonical ID", report.Metadata.CanonicalID},
		{"Placeholder ID", report.ExternalID},
		{"Candidates", report.Candidates},
		{"Strategies", report.StrategyHits},
	})
	if report.RenderErr != nil {
		meta.AppendRow(table.Row{"Render error", report.RenderErr.Error()})
	}
	meta.Render()
}

func renderHealthReport(w io.Writer, sweep *health.SweepReport, prune *health.PruneReport) {
	t := newTable(w, "Health sweep "+sweep.RunID)
	t.AppendRows([]table.Row{
		{"Due", sweep.Due},
		{"Checked", sweep.Checked},
		{"Active", sweep.Active},
		{"Inactive", sweep.Inactive},
		{"Timeouts", sweep.Timeouts},
		{"Errors", sweep.Errors},
		{"Aborted", sweep.Aborted},
		{"Duration", sweep.Duration.Round(time.Millisecond)},
	})
	if prune != nil {
		t.AppendSeparator()
		t.AppendRows([]table.Row{
			{"Counters reset", prune.Reset},
			{"Counters advanced", prune.Incremented},
			{"Titles pruned", len(prune.Deleted)},
		})
	}
	t.Render()
}

func renderDiscoverySweep(w io.Writer, report *discovery.SweepReport) {
	t := newTable(w, "Discovery sweep")
	t.AppendRows([]table.Row{
		{"Sites", report.Sites},
		{"Listing pages", report.Listings},
		{"Listing failures", report.ListingFailures},
		{"Title pages", report.Pages},
		{"Persisted", report.Persisted},
		{"Accepted links", report.Accepted},
		{"Saved links", report.Saved},
		{"Failed pages", report.Failed},
		{"Duration", report.Duration.Round(time.Millisecond)},
	})
	t.Render()
}

func renderStats(w io.Writer, stats *database.CatalogStats) {
	t := newTable(w, "Catalog")
	t.AppendHeader(table.Row{"Metric", "Count"})
	t.AppendRows([]table.Row{
		{"Titles", stats.Titles},
		{"Movies", stats.Movies},
		{"Shows", stats.Shows},
		{"Links", stats.Links},
		{"Active links", stats.ActiveLinks},
		{"Unchecked links", stats.UncheckedLinks},
		{"Titles updated in last 24h", stats.UpdatedLastDay},
		{"Titles pending prune", stats.PendingPrune},
	})
	t.Render()
}
