package domain

import "time"

// Quality is the advertised resolution of a streaming link.
type Quality string

// Qualities, lowest to highest.
const (
	QualityCAM   Quality = "CAM"
	QualityHD    Quality = "HD"
	Quality720p  Quality = "720p"
	Quality1080p Quality = "1080p"
	Quality4K    Quality = "4K"
)

// DefaultLanguage is used when neither the page nor the policy names one.
const DefaultLanguage = "EN"

// Link is a persisted streaming candidate owned by a Title.
type Link struct {
	ID            int64   `db:"id"             json:"id"`
	TitleID       int64   `db:"title_id"       json:"title_id"`
	NormalizedURL string  `db:"normalized_url" json:"url"`
	Quality       Quality `db:"quality"        json:"quality"`
	Language      string  `db:"language"       json:"language"`
	IsActive      bool    `db:"is_active"      json:"is_active"`

	// Health
	LastCheckedAt     *time.Time `db:"last_checked_at"     json:"last_checked_at,omitempty"`
	LastStatusCode    *int       `db:"last_status_code"    json:"last_status_code,omitempty"`
	LastFailureReason *string    `db:"last_failure_reason" json:"last_failure_reason,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// LinkCheck is the outcome of one liveness probe, ready to be written back.
type LinkCheck struct {
	LinkID        int64
	IsActive      bool
	StatusCode    int
	FailureReason string
	CheckedAt     time.Time
}
