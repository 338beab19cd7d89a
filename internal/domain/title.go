// Package domain holds the record types shared by the discovery and
// validation engine: catalog rows and the ephemeral values that flow
// between extraction, classification, and reconciliation.
package domain

import (
	"regexp"
	"time"
)

// TitleKind distinguishes movies from shows.
type TitleKind string

// Title kinds.
const (
	KindMovie TitleKind = "movie"
	KindShow  TitleKind = "show"
)

// ParseKind maps a query/filter value to a TitleKind. Older clients send
// "tv" for shows, so it is accepted too.
func ParseKind(s string) (TitleKind, bool) {
	switch s {
	case "movie", "movies":
		return KindMovie, true
	case "show", "shows", "tv":
		return KindShow, true
	default:
		return "", false
	}
}

var canonicalIDPattern = regexp.MustCompile(`^tt\d{7,8}$`)

// IsCanonicalID reports whether id is a catalog (IMDB-style) id rather than
// a site-synthesized placeholder.
func IsCanonicalID(id string) bool {
	return canonicalIDPattern.MatchString(id)
}

// Title is one movie or show in the catalog.
type Title struct {
	ID          int64     `db:"id"           json:"id"`
	ExternalID  string    `db:"external_id"  json:"external_id"`
	DisplayName string    `db:"display_name" json:"display_name"`
	ReleaseYear *int      `db:"release_year" json:"release_year,omitempty"`
	Kind        TitleKind `db:"kind"         json:"kind"`

	PosterURL       string `db:"poster_url"        json:"poster_url"`
	Synopsis        string `db:"synopsis"          json:"synopsis"`
	SourceDetailURL string `db:"source_detail_url" json:"source_detail_url"`

	// Pruning
	ZeroActiveSweeps int `db:"zero_active_sweeps" json:"-"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// TitleAttrs carries the scalar fields of an upsert. Empty strings and a nil
// year mean "not provided" and never overwrite stored values.
type TitleAttrs struct {
	DisplayName     string
	ReleaseYear     *int
	Kind            TitleKind
	PosterURL       string
	Synopsis        string
	SourceDetailURL string
}

// TitleMetadata is what a detail page says about its title.
type TitleMetadata struct {
	// CanonicalID is empty when the page exposes no catalog id.
	CanonicalID string
	Attrs       TitleAttrs
}
