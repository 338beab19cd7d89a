//go:build integration

package database_test

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/jonesrussell/north-cloud/streamline/internal/database"
	"github.com/jonesrussell/north-cloud/streamline/internal/domain"
)

func migrationsURL(t *testing.T) string {
	t.Helper()

	_, filename, _, _ := runtime.Caller(0)
	dir, err := filepath.Abs(filepath.Join(filepath.Dir(filename), "..", "..", "migrations"))
	require.NoError(t, err)

	return "file://" + dir
}

func startPostgres(t *testing.T) database.Config {
	t.Helper()

	ctx := context.Background()
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("streamline_test"),
		postgres.WithUsername("streamline"),
		postgres.WithPassword("streamline"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(ctr) })

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	cfg := database.Config{
		Host:           host,
		Port:           port.Int(),
		User:           "streamline",
		Password:       "streamline",
		DBName:         "streamline_test",
		MigrationsPath: migrationsURL(t),
	}
	cfg.SetDefaults()

	applied, err := database.Migrate(cfg, database.MigrateUp)
	require.NoError(t, err)
	require.True(t, applied)

	return cfg
}

func TestCatalog_Integration(t *testing.T) {
	cfg := startPostgres(t)
	ctx := context.Background()

	db, err := database.NewPostgresConnection(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	titles := database.NewTitleRepository(db)
	links := database.NewLinkRepository(db)

	accepted := []domain.Verdict{{
		URL: "https://streamtape.com/e/abc", Decision: domain.DecisionAccept,
		Reason: domain.ReasonAcceptedHost, Quality: domain.QualityHD, Language: "EN",
	}}

	t.Run("upsert is idempotent and non-blanking", func(t *testing.T) {
		first, upsertErr := titles.Upsert(ctx, "site_98213", domain.TitleAttrs{
			DisplayName: "The Shawshank Redemption", Synopsis: "Two imprisoned men", Kind: domain.KindMovie,
		})
		require.NoError(t, upsertErr)

		second, upsertErr := titles.Upsert(ctx, "site_98213", domain.TitleAttrs{DisplayName: "Shawshank"})
		require.NoError(t, upsertErr)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, "Shawshank", second.DisplayName)
		assert.Equal(t, "Two imprisoned men", second.Synopsis)

		for range 2 {
			saved, linkErr := links.UpsertAccepted(ctx, first.ID, accepted)
			require.NoError(t, linkErr)
			assert.Equal(t, 1, saved)
		}

		stored, listErr := links.ListByTitle(ctx, first.ID)
		require.NoError(t, listErr)
		require.Len(t, stored, 1)
		assert.True(t, stored[0].IsActive)
		assert.Nil(t, stored[0].LastCheckedAt)
	})

	t.Run("merge placeholder into canonical", func(t *testing.T) {
		placeholder, getErr := titles.GetByExternalID(ctx, "site_98213")
		require.NoError(t, getErr)

		canonical, upsertErr := titles.Upsert(ctx, "tt0111161", domain.TitleAttrs{Kind: domain.KindMovie})
		require.NoError(t, upsertErr)

		result, mergeErr := titles.Merge(ctx, canonical.ID, placeholder.ID)
		require.NoError(t, mergeErr)
		assert.Equal(t, int64(1), result.Moved)

		_, getErr = titles.GetByExternalID(ctx, "site_98213")
		require.ErrorIs(t, getErr, database.ErrTitleNotFound)

		owned, listErr := links.ListByTitle(ctx, canonical.ID)
		require.NoError(t, listErr)
		require.Len(t, owned, 1)
		assert.Equal(t, "https://streamtape.com/e/abc", owned[0].NormalizedURL)
	})

	t.Run("prune after consecutive dead sweeps", func(t *testing.T) {
		canonical, getErr := titles.GetByExternalID(ctx, "tt0111161")
		require.NoError(t, getErr)

		owned, listErr := links.ListByTitle(ctx, canonical.ID)
		require.NoError(t, listErr)

		require.NoError(t, links.RecordCheck(ctx, domain.LinkCheck{
			LinkID: owned[0].ID, IsActive: false, StatusCode: 404, FailureReason: "http_status", CheckedAt: time.Now(),
		}))

		const threshold = 2
		swept := []int64{canonical.ID}

		first, pruneErr := titles.Prune(ctx, database.PruneParams{Threshold: threshold, SweptTitles: swept})
		require.NoError(t, pruneErr)
		assert.Empty(t, first.Deleted)

		// Sweeps that did not reach the title's link leave its counter alone.
		for range 3 {
			idle, idleErr := titles.Prune(ctx, database.PruneParams{Threshold: threshold, SweptTitles: []int64{}})
			require.NoError(t, idleErr)
			assert.Empty(t, idle.Deleted)
			assert.Zero(t, idle.Incremented)
		}

		stillThere, getErr := titles.GetByID(ctx, canonical.ID)
		require.NoError(t, getErr)
		assert.Equal(t, 1, stillThere.ZeroActiveSweeps)

		second, pruneErr := titles.Prune(ctx, database.PruneParams{Threshold: threshold, SweptTitles: swept})
		require.NoError(t, pruneErr)
		require.Len(t, second.Deleted, 1)
		assert.Equal(t, "tt0111161", second.Deleted[0].ExternalID)

		orphans, listErr := links.ListByTitle(ctx, canonical.ID)
		require.NoError(t, listErr)
		assert.Empty(t, orphans)
	})
}
