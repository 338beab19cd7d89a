package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jonesrussell/north-cloud/streamline/internal/domain"
)

// ErrTitleNotFound is returned when no title matches the lookup.
var ErrTitleNotFound = errors.New("title not found")

const (
	defaultTitleLimit = 50
	maxTitleLimit     = 500

	titleSelectColumns = `id, external_id, display_name, release_year, kind, poster_url, synopsis,
		source_detail_url, zero_active_sweeps, created_at, updated_at`
)

// TitleRepository handles database operations for titles.
type TitleRepository struct {
	db *sqlx.DB
}

// NewTitleRepository creates a new title repository.
func NewTitleRepository(db *sqlx.DB) *TitleRepository {
	return &TitleRepository{db: db}
}

// Upsert creates the title for externalID or updates it in place. A scalar
// attribute is only overwritten when the new value is non-empty, so a less
// complete crawl never blanks out known fields.
func (r *TitleRepository) Upsert(ctx context.Context, externalID string, attrs domain.TitleAttrs) (*domain.Title, error) {
	query := `
		INSERT INTO titles (external_id, display_name, release_year, kind, poster_url, synopsis, source_detail_url)
		VALUES ($1, $2, $3, COALESCE(NULLIF($4, ''), 'movie'), $5, $6, $7)
		ON CONFLICT (external_id) DO UPDATE SET
			display_name      = COALESCE(NULLIF(EXCLUDED.display_name, ''), titles.display_name),
			release_year      = COALESCE(EXCLUDED.release_year, titles.release_year),
			kind              = COALESCE(NULLIF($4, ''), titles.kind),
			poster_url        = COALESCE(NULLIF(EXCLUDED.poster_url, ''), titles.poster_url),
			synopsis          = COALESCE(NULLIF(EXCLUDED.synopsis, ''), titles.synopsis),
			source_detail_url = COALESCE(NULLIF(EXCLUDED.source_detail_url, ''), titles.source_detail_url),
			updated_at        = NOW()
		RETURNING ` + titleSelectColumns

	var title domain.Title
	err := r.db.GetContext(
		ctx, &title, query,
		externalID, attrs.DisplayName, attrs.ReleaseYear, string(attrs.Kind),
		attrs.PosterURL, attrs.Synopsis, attrs.SourceDetailURL,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert title %s: %w", externalID, err)
	}

	return &title, nil
}

// GetByExternalID returns the title stored under externalID.
func (r *TitleRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.Title, error) {
	return r.getOne(ctx, `SELECT `+titleSelectColumns+` FROM titles WHERE external_id = $1`, externalID)
}

// GetByID returns the title with the given internal id.
func (r *TitleRepository) GetByID(ctx context.Context, id int64) (*domain.Title, error) {
	return r.getOne(ctx, `SELECT `+titleSelectColumns+` FROM titles WHERE id = $1`, id)
}

func (r *TitleRepository) getOne(ctx context.Context, query string, arg any) (*domain.Title, error) {
	var title domain.Title
	if err := r.db.GetContext(ctx, &title, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTitleNotFound
		}
		return nil, fmt.Errorf("get title: %w", err)
	}
	return &title, nil
}

// ListTitlesParams filters List.
type ListTitlesParams struct {
	// Kind is optional; empty lists every kind.
	Kind   domain.TitleKind
	Limit  int
	Offset int
}

// List returns titles, most recently updated first.
func (r *TitleRepository) List(ctx context.Context, params ListTitlesParams) ([]domain.Title, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = defaultTitleLimit
	}
	if limit > maxTitleLimit {
		limit = maxTitleLimit
	}

	query := `SELECT ` + titleSelectColumns + ` FROM titles`
	args := []any{}
	if params.Kind != "" {
		query += ` WHERE kind = $1`
		args = append(args, string(params.Kind))
	}
	query += fmt.Sprintf(` ORDER BY updated_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, params.Offset)

	titles := []domain.Title{}
	if err := r.db.SelectContext(ctx, &titles, query, args...); err != nil {
		return nil, fmt.Errorf("list titles: %w", err)
	}

	return titles, nil
}

// Delete removes a title; its links go with it via ON DELETE CASCADE.
func (r *TitleRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM titles WHERE id = $1`, id)
	if requireErr := execRequireRows(result, err, ErrTitleNotFound); requireErr != nil {
		return fmt.Errorf("delete title %d: %w", id, requireErr)
	}
	return nil
}

// MergeResult reports what a merge did to the placeholder's links.
type MergeResult struct {
	Moved   int64
	Dropped int64
}

// Merge folds the placeholder title into the canonical one: links whose URL
// the canonical title already has are dropped, the rest are re-pointed, and
// the placeholder row is deleted. Both rows are locked for the duration, in
// id order, so concurrent link upserts on either title wait for the merge.
func (r *TitleRepository) Merge(ctx context.Context, intoID, placeholderID int64) (*MergeResult, error) {
	if intoID == placeholderID {
		return &MergeResult{}, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin merge transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	var locked []int64
	lockQuery := `SELECT id FROM titles WHERE id IN ($1, $2) ORDER BY id FOR UPDATE`
	if selectErr := tx.SelectContext(ctx, &locked, lockQuery, intoID, placeholderID); selectErr != nil {
		return nil, fmt.Errorf("lock titles for merge: %w", selectErr)
	}
	if len(locked) != 2 {
		return nil, ErrTitleNotFound
	}

	result, err := mergeLinks(ctx, tx, intoID, placeholderID)
	if err != nil {
		return nil, err
	}

	if _, deleteErr := tx.ExecContext(ctx, `DELETE FROM titles WHERE id = $1`, placeholderID); deleteErr != nil {
		return nil, fmt.Errorf("delete placeholder title: %w", deleteErr)
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return nil, fmt.Errorf("failed to commit merge transaction: %w", commitErr)
	}

	return result, nil
}

func mergeLinks(ctx context.Context, tx *sqlx.Tx, intoID, placeholderID int64) (*MergeResult, error) {
	dropQuery := `
		DELETE FROM links p
		WHERE p.title_id = $2
		  AND EXISTS (
			SELECT 1 FROM links c WHERE c.title_id = $1 AND c.normalized_url = p.normalized_url
		  )
	`
	dropped, err := tx.ExecContext(ctx, dropQuery, intoID, placeholderID)
	if err != nil {
		return nil, fmt.Errorf("drop duplicate links: %w", err)
	}

	moveQuery := `UPDATE links SET title_id = $1, updated_at = NOW() WHERE title_id = $2`
	moved, err := tx.ExecContext(ctx, moveQuery, intoID, placeholderID)
	if err != nil {
		return nil, fmt.Errorf("re-point links: %w", err)
	}

	result := &MergeResult{}
	result.Dropped, _ = dropped.RowsAffected()
	result.Moved, _ = moved.RowsAffected()

	return result, nil
}

// PruneParams configures one prune pass.
type PruneParams struct {
	// Threshold is the number of consecutive zero-active sweeps before deletion.
	Threshold int
	// NeverLinked also deletes titles that have no links at all.
	NeverLinked bool
	// SweptTitles are the titles with at least one link probed by the sweep
	// this pass follows. Only their counters move.
	SweptTitles []int64
}

// PrunedTitle identifies a deleted title.
type PrunedTitle struct {
	ID         int64  `db:"id"`
	ExternalID string `db:"external_id"`
}

// PruneResult summarizes a prune pass.
type PruneResult struct {
	Reset       int64
	Incremented int64
	Deleted     []PrunedTitle
}

// Prune advances the zero-active-sweep counter of every swept title from the
// committed link states, then deletes titles that reached the threshold.
// Titles the sweep did not probe keep their counters. It runs in one
// transaction so the counters and deletions agree.
func (r *TitleRepository) Prune(ctx context.Context, params PruneParams) (*PruneResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin prune transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	swept := pq.Array(params.SweptTitles)

	resetQuery := `
		UPDATE titles t SET zero_active_sweeps = 0
		WHERE t.id = ANY($1)
		  AND t.zero_active_sweeps > 0
		  AND EXISTS (SELECT 1 FROM links l WHERE l.title_id = t.id AND l.is_active)
	`
	reset, err := tx.ExecContext(ctx, resetQuery, swept)
	if err != nil {
		return nil, fmt.Errorf("reset prune counters: %w", err)
	}

	incrementQuery := `
		UPDATE titles t SET zero_active_sweeps = t.zero_active_sweeps + 1
		WHERE t.id = ANY($1)
		  AND NOT EXISTS (SELECT 1 FROM links l WHERE l.title_id = t.id AND l.is_active)
	`
	incremented, err := tx.ExecContext(ctx, incrementQuery, swept)
	if err != nil {
		return nil, fmt.Errorf("increment prune counters: %w", err)
	}

	deleteQuery := `DELETE FROM titles WHERE zero_active_sweeps >= $1`
	if params.NeverLinked {
		deleteQuery += ` OR NOT EXISTS (SELECT 1 FROM links l WHERE l.title_id = titles.id)`
	}
	deleteQuery += ` RETURNING id, external_id`

	result := &PruneResult{Deleted: []PrunedTitle{}}
	if deleteErr := tx.SelectContext(ctx, &result.Deleted, deleteQuery, params.Threshold); deleteErr != nil {
		return nil, fmt.Errorf("delete pruned titles: %w", deleteErr)
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return nil, fmt.Errorf("failed to commit prune transaction: %w", commitErr)
	}

	result.Reset, _ = reset.RowsAffected()
	result.Incremented, _ = incremented.RowsAffected()

	return result, nil
}

// CatalogStats is a point-in-time summary of the catalog.
type CatalogStats struct {
	Titles         int64 `db:"titles"`
	Movies         int64 `db:"movies"`
	Shows          int64 `db:"shows"`
	Links          int64 `db:"links"`
	ActiveLinks    int64 `db:"active_links"`
	UncheckedLinks int64 `db:"unchecked_links"`
	UpdatedLastDay int64 `db:"updated_last_day"`
	PendingPrune   int64 `db:"pending_prune"`
}

// Stats counts titles by kind and links by state.
func (r *TitleRepository) Stats(ctx context.Context) (*CatalogStats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM titles) AS titles,
			(SELECT COUNT(*) FROM titles WHERE kind = 'movie') AS movies,
			(SELECT COUNT(*) FROM titles WHERE kind = 'show') AS shows,
			(SELECT COUNT(*) FROM links) AS links,
			(SELECT COUNT(*) FROM links WHERE is_active) AS active_links,
			(SELECT COUNT(*) FROM links WHERE last_checked_at IS NULL) AS unchecked_links,
			(SELECT COUNT(*) FROM titles WHERE updated_at > NOW() - INTERVAL '24 hours') AS updated_last_day,
			(SELECT COUNT(*) FROM titles WHERE zero_active_sweeps > 0) AS pending_prune
	`

	var stats CatalogStats
	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("catalog stats: %w", err)
	}

	return &stats, nil
}
