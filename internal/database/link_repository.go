package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/streamline/internal/domain"
)

// ErrLinkNotFound is returned when a status write targets a missing link.
var ErrLinkNotFound = errors.New("link not found")

const linkSelectColumns = `id, title_id, normalized_url, quality, language, is_active,
	last_checked_at, last_status_code, last_failure_reason, created_at, updated_at`

// LinkRepository handles database operations for streaming links.
type LinkRepository struct {
	db *sqlx.DB
}

// NewLinkRepository creates a new link repository.
func NewLinkRepository(db *sqlx.DB) *LinkRepository {
	return &LinkRepository{db: db}
}

// UpsertAccepted writes every ACCEPT verdict as a link of titleID. Existing
// links get fresh quality/language and are forced active; last_checked_at is
// left alone. Links missing from verdicts are not touched. Each link is its
// own statement, so a failure leaves earlier links saved.
func (r *LinkRepository) UpsertAccepted(ctx context.Context, titleID int64, verdicts []domain.Verdict) (int, error) {
	saved := 0
	for _, v := range verdicts {
		if !v.Accepted() {
			continue
		}

		if err := r.upsertOne(ctx, titleID, v); err != nil {
			return saved, err
		}
		saved++
	}

	return saved, nil
}

func (r *LinkRepository) upsertOne(ctx context.Context, titleID int64, v domain.Verdict) error {
	query := `
		INSERT INTO links (title_id, normalized_url, quality, language, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (title_id, normalized_url) DO UPDATE SET
			quality    = EXCLUDED.quality,
			language   = EXCLUDED.language,
			is_active  = TRUE,
			updated_at = NOW()
	`

	_, err := r.db.ExecContext(ctx, query, titleID, v.URL, string(v.Quality), v.Language)
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err):
		// Another unique index raced the insert; the row exists, so update it.
		return r.updateExisting(ctx, titleID, v)
	case isForeignKeyViolation(err):
		return fmt.Errorf("upsert link %s: %w", v.URL, ErrTitleNotFound)
	default:
		return fmt.Errorf("upsert link %s: %w", v.URL, err)
	}
}

func (r *LinkRepository) updateExisting(ctx context.Context, titleID int64, v domain.Verdict) error {
	query := `
		UPDATE links SET quality = $3, language = $4, is_active = TRUE, updated_at = NOW()
		WHERE title_id = $1 AND normalized_url = $2
	`
	result, err := r.db.ExecContext(ctx, query, titleID, v.URL, string(v.Quality), v.Language)
	if requireErr := execRequireRows(result, err, ErrLinkNotFound); requireErr != nil {
		return fmt.Errorf("update link %s: %w", v.URL, requireErr)
	}
	return nil
}

// ListByTitle returns every link of a title, active first.
func (r *LinkRepository) ListByTitle(ctx context.Context, titleID int64) ([]domain.Link, error) {
	query := `SELECT ` + linkSelectColumns + ` FROM links WHERE title_id = $1 ORDER BY is_active DESC, id`

	links := []domain.Link{}
	if err := r.db.SelectContext(ctx, &links, query, titleID); err != nil {
		return nil, fmt.Errorf("list links for title %d: %w", titleID, err)
	}

	return links, nil
}

// ListDue returns links never checked or last checked before cutoff, never
// checked first. A limit of zero means no limit.
func (r *LinkRepository) ListDue(ctx context.Context, cutoff time.Time, limit int) ([]domain.Link, error) {
	query := `
		SELECT ` + linkSelectColumns + `
		FROM links
		WHERE last_checked_at IS NULL OR last_checked_at < $1
		ORDER BY last_checked_at ASC NULLS FIRST, id ASC
	`
	args := []any{cutoff}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	links := []domain.Link{}
	if err := r.db.SelectContext(ctx, &links, query, args...); err != nil {
		return nil, fmt.Errorf("list due links: %w", err)
	}

	return links, nil
}

// RecordCheck writes one probe outcome back to its link.
func (r *LinkRepository) RecordCheck(ctx context.Context, check domain.LinkCheck) error {
	query := `
		UPDATE links SET
			is_active           = $2,
			last_checked_at     = $3,
			last_status_code    = NULLIF($4, 0),
			last_failure_reason = NULLIF($5, ''),
			updated_at          = NOW()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(
		ctx, query,
		check.LinkID, check.IsActive, check.CheckedAt, check.StatusCode, check.FailureReason,
	)
	if requireErr := execRequireRows(result, err, ErrLinkNotFound); requireErr != nil {
		return fmt.Errorf("record check for link %d: %w", check.LinkID, requireErr)
	}

	return nil
}
