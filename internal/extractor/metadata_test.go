package extractor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/streamline/internal/domain"
	"github.com/jonesrussell/north-cloud/streamline/internal/extractor"
)

func TestExtractMetadata_DetailPage(t *testing.T) {
	t.Parallel()

	meta := extractor.ExtractMetadata(&domain.PageSnapshot{URL: testPageURL, HTML: detailPageHTML})

	assert.Equal(t, "tt1375666", meta.CanonicalID)
	assert.Equal(t, "Inception", meta.Attrs.DisplayName)
	assert.Equal(t, "https://1flix.to/images/inception.jpg", meta.Attrs.PosterURL)
	assert.Equal(t, "A thief who steals corporate secrets through dream-sharing.", meta.Attrs.Synopsis)
	assert.Equal(t, domain.KindMovie, meta.Attrs.Kind)
	assert.Equal(t, testPageURL, meta.Attrs.SourceDetailURL)
	assert.Nil(t, meta.Attrs.ReleaseYear, "no year in h1 or synopsis")
}

func TestExtractMetadata_Fallbacks(t *testing.T) {
	t.Parallel()

	html := `<html><head>
	  <meta property="og:title" content="Breaking Bad 2008">
	  <meta property="og:description" content="A chemist turns to crime.">
	</head><body>
	  <div class="film-poster"><img data-src="https://img.example.com/bb.jpg"></div>
	  <p>Rated 9.5. Catalog ref tt0903747.</p>
	</body></html>`

	meta := extractor.ExtractMetadata(&domain.PageSnapshot{URL: "https://1flix.to/tv/watch-breaking-bad-39506", HTML: html})

	assert.Equal(t, "Breaking Bad 2008", meta.Attrs.DisplayName)
	assert.Equal(t, "A chemist turns to crime.", meta.Attrs.Synopsis)
	assert.Equal(t, "https://img.example.com/bb.jpg", meta.Attrs.PosterURL)
	assert.Equal(t, domain.KindShow, meta.Attrs.Kind)
	assert.Equal(t, "tt0903747", meta.CanonicalID)
	require.NotNil(t, meta.Attrs.ReleaseYear)
	assert.Equal(t, 2008, *meta.Attrs.ReleaseYear)
}

func TestExtractMetadata_NilAndEmpty(t *testing.T) {
	t.Parallel()

	assert.Equal(t, domain.TitleMetadata{}, extractor.ExtractMetadata(nil))

	meta := extractor.ExtractMetadata(&domain.PageSnapshot{URL: "https://example.com/show/7"})
	assert.Equal(t, domain.KindShow, meta.Attrs.Kind)
	assert.Empty(t, meta.CanonicalID)
}

func TestPlaceholderID(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"numeric suffix", "https://1flix.to/movie/watch-inception-19764", "1flix_19764"},
		{"trailing slash", "https://www.goojara.to/movies/98213/", "goojara_98213"},
		{"show page", "https://desicinemas.tv/tv/show-55", "desicinemas_55"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractor.PlaceholderID(tt.input); got != tt.want {
				t.Errorf("PlaceholderID(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}

	hashed := extractor.PlaceholderID("https://example.com/movie/inception")
	assert.Regexp(t, `^example_[0-9a-f]{10}$`, hashed)
	assert.Equal(t, hashed, extractor.PlaceholderID("https://example.com/movie/inception"))
}
