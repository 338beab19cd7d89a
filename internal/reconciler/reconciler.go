// Package reconciler writes discovery results into the catalog: it upserts
// titles and their accepted links idempotently and folds placeholder titles
// into canonical ones once a catalog id is known.
package reconciler

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonesrussell/north-cloud/streamline/internal/database"
	"github.com/jonesrussell/north-cloud/streamline/internal/domain"
	"github.com/jonesrussell/north-cloud/streamline/internal/logger"
)

// ErrMissingExternalID is returned when an outcome names no title at all.
var ErrMissingExternalID = errors.New("outcome has no external id")

// TitleStore is the title half of the catalog store.
type TitleStore interface {
	Upsert(ctx context.Context, externalID string, attrs domain.TitleAttrs) (*domain.Title, error)
	GetByExternalID(ctx context.Context, externalID string) (*domain.Title, error)
	Merge(ctx context.Context, intoID, placeholderID int64) (*database.MergeResult, error)
}

// LinkStore is the link half of the catalog store.
type LinkStore interface {
	UpsertAccepted(ctx context.Context, titleID int64, verdicts []domain.Verdict) (int, error)
}

// Reconciler is safe for concurrent use; all coordination happens in the store.
type Reconciler struct {
	titles TitleStore
	links  LinkStore
	log    logger.Logger
}

// New creates a Reconciler.
func New(titles TitleStore, links LinkStore, log logger.Logger) *Reconciler {
	return &Reconciler{
		titles: titles,
		links:  links,
		log:    log.With(logger.Component("reconciler")),
	}
}

// UpsertTitle creates or updates the title for externalID. Empty attributes
// never overwrite stored values.
func (r *Reconciler) UpsertTitle(ctx context.Context, externalID string, attrs domain.TitleAttrs) (*domain.Title, error) {
	if externalID == "" {
		return nil, ErrMissingExternalID
	}
	return r.titles.Upsert(ctx, externalID, attrs)
}

// MergeTitle moves every link of the title stored under placeholderID onto
// into, dropping URLs into already has, then deletes the placeholder. A
// missing placeholder is a no-op.
func (r *Reconciler) MergeTitle(ctx context.Context, into *domain.Title, placeholderID string) (*domain.Title, error) {
	if placeholderID == "" || placeholderID == into.ExternalID {
		return into, nil
	}

	placeholder, err := r.titles.GetByExternalID(ctx, placeholderID)
	if errors.Is(err, database.ErrTitleNotFound) {
		return into, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load placeholder %s: %w", placeholderID, err)
	}

	result, err := r.titles.Merge(ctx, into.ID, placeholder.ID)
	if err != nil {
		return nil, fmt.Errorf("merge %s into %s: %w", placeholderID, into.ExternalID, err)
	}

	r.log.Info("Merged placeholder title",
		logger.String("placeholder_id", placeholderID),
		logger.String("external_id", into.ExternalID),
		logger.Int64("links_moved", result.Moved),
		logger.Int64("links_dropped", result.Dropped),
	)

	return r.titles.GetByExternalID(ctx, into.ExternalID)
}

// UpsertLinks saves the ACCEPT verdicts as links of title and returns how
// many were written. Links absent from verdicts are left as they are.
func (r *Reconciler) UpsertLinks(ctx context.Context, title *domain.Title, verdicts []domain.Verdict) (int, error) {
	saved, err := r.links.UpsertAccepted(ctx, title.ID, verdicts)
	if err != nil {
		return saved, fmt.Errorf("upsert links for %s: %w", title.ExternalID, err)
	}
	return saved, nil
}

// Outcome is everything one discovery run learned about one page.
type Outcome struct {
	// KnownID is the id the caller already files this page under: a stored
	// title's external id, or a placeholder synthesized from the page URL.
	KnownID  string
	Metadata domain.TitleMetadata
	Verdicts []domain.Verdict
}

// ApplyResult reports what Apply wrote.
type ApplyResult struct {
	Title      *domain.Title
	Saved      int
	MergedFrom string
}

// Apply resolves the outcome's identity and persists it. When the page
// reveals a catalog id for a title filed under a placeholder, the canonical
// title is upserted and the placeholder merged into it. A title already
// filed under a catalog id keeps that id even if the page names another.
func (r *Reconciler) Apply(ctx context.Context, outcome Outcome) (*ApplyResult, error) {
	canonicalID := outcome.Metadata.CanonicalID
	targetID := outcome.KnownID
	mergeFrom := ""

	switch {
	case canonicalID == "" || canonicalID == outcome.KnownID:
	case outcome.KnownID == "":
		targetID = canonicalID
	case domain.IsCanonicalID(outcome.KnownID):
		r.log.Warn("Page names a different catalog id; keeping stored id",
			logger.String("external_id", outcome.KnownID),
			logger.String("page_id", canonicalID),
		)
	default:
		targetID = canonicalID
		mergeFrom = outcome.KnownID
	}

	title, err := r.UpsertTitle(ctx, targetID, outcome.Metadata.Attrs)
	if err != nil {
		return nil, err
	}

	result := &ApplyResult{}
	if mergeFrom != "" {
		merged, mergeErr := r.MergeTitle(ctx, title, mergeFrom)
		if mergeErr != nil {
			return nil, mergeErr
		}
		title = merged
		result.MergedFrom = mergeFrom
	}

	saved, err := r.UpsertLinks(ctx, title, outcome.Verdicts)
	if err != nil {
		return nil, err
	}

	result.Title = title
	result.Saved = saved

	return result, nil
}
