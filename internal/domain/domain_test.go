package domain_test

import (
	"testing"

	"github.com/jonesrussell/north-cloud/streamline/internal/domain"
)

func TestIsCanonicalID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"tt0111161", true},
		{"tt12345678", true},
		{"tt123456", false},
		{"site_98213", false},
		{"desicinemas_55", false},
		{"fw4411", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if got := domain.IsCanonicalID(tt.id); got != tt.want {
				t.Errorf("IsCanonicalID(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestParseKind(t *testing.T) {
	for input, want := range map[string]domain.TitleKind{
		"movie": domain.KindMovie,
		"show":  domain.KindShow,
		"tv":    domain.KindShow,
	} {
		got, ok := domain.ParseKind(input)
		if !ok || got != want {
			t.Errorf("ParseKind(%q) = %q, %v; want %q", input, got, ok, want)
		}
	}

	if _, ok := domain.ParseKind("episode"); ok {
		t.Error("ParseKind(episode) should not be accepted")
	}
}

func TestPageSnapshot_IsEmpty(t *testing.T) {
	var nilSnap *domain.PageSnapshot
	if !nilSnap.IsEmpty() {
		t.Error("nil snapshot should be empty")
	}
	if (&domain.PageSnapshot{Scripts: []string{"x"}}).IsEmpty() {
		t.Error("snapshot with scripts should not be empty")
	}
}
