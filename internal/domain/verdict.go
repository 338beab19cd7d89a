package domain

// Decision is the classifier's accept/reject outcome.
type Decision string

// Decisions.
const (
	DecisionAccept Decision = "ACCEPT"
	DecisionReject Decision = "REJECT"
)

// Reason is the closed taxonomy explaining a verdict.
type Reason string

// Reasons, grouped by decision.
const (
	ReasonSocial         Reason = "youtube/social"
	ReasonMovieInfo      Reason = "movie-info-site"
	ReasonTracking       Reason = "tracking"
	ReasonSiteNavigation Reason = "site-navigation"
	ReasonNotVideoLike   Reason = "not-video-like"

	ReasonAcceptedHost    Reason = "accepted-host"
	ReasonAcceptedPattern Reason = "accepted-pattern"
)

// Verdict is the classification of one candidate URL.
type Verdict struct {
	URL      string   `json:"url"`
	Decision Decision `json:"decision"`
	Reason   Reason   `json:"reason"`
	Quality  Quality  `json:"quality"`
	Language string   `json:"language"`
}

// Accepted reports whether the verdict is an ACCEPT.
func (v Verdict) Accepted() bool {
	return v.Decision == DecisionAccept
}
