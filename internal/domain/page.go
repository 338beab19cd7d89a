package domain

// PageSnapshot is what the renderer hands the extractor for one page.
type PageSnapshot struct {
	URL string
	// BaseURL overrides URL for resolving relative references (<base href>).
	BaseURL   string
	HTML      string
	Resources []string
	Scripts   []string
	// Language is set when the page declares its content language.
	Language string
}

// IsEmpty reports whether the snapshot carries nothing to extract from.
func (p *PageSnapshot) IsEmpty() bool {
	return p == nil || (p.HTML == "" && len(p.Resources) == 0 && len(p.Scripts) == 0)
}

// ExtractionResult is the candidate set produced for one page.
type ExtractionResult struct {
	PageURL string
	// Candidates are absolute, normalized, unique, and sorted.
	Candidates []string
	// StrategyHits counts raw hits per strategy before dedup.
	StrategyHits map[string]int
}
