package orchestrator

import (
	"time"

	"github.com/jonesrussell/north-cloud/streamline/internal/domain"
)

// Staleness reasons.
const (
	StaleNoActiveLinks = "no_active_links"
	StaleUnchecked     = "unchecked"
	StaleTooFewLinks   = "too_few_links"
)

// Staleness decides whether a title's links need a refresh. It returns the
// reason, or "" when the links are fresh.
func Staleness(links []domain.Link, now time.Time, window time.Duration, minActive int) string {
	active := 0
	fresh := false
	for _, l := range links {
		if !l.IsActive {
			continue
		}
		active++
		if l.LastCheckedAt != nil && now.Sub(*l.LastCheckedAt) <= window {
			fresh = true
		}
	}

	switch {
	case active == 0:
		return StaleNoActiveLinks
	case !fresh:
		return StaleUnchecked
	case active < minActive:
		return StaleTooFewLinks
	default:
		return ""
	}
}

// activeOnly filters links down to the active ones.
func activeOnly(links []domain.Link) []domain.Link {
	out := make([]domain.Link, 0, len(links))
	for _, l := range links {
		if l.IsActive {
			out = append(out, l)
		}
	}
	return out
}
