package model

// FetchMethod tags which acquisition tier produced a FetchResult. Downstream
// extraction-mode selection keys off this tag.
type FetchMethod string

const (
	FetchCacheHit      FetchMethod = "cache_hit"
	FetchHTTP          FetchMethod = "http_fetch"
	FetchRendered      FetchMethod = "rendered_fetch"
	FetchVisionPending FetchMethod = "vision_pending"
	FetchFailed        FetchMethod = "failed"
)

// FetchResult is the outcome of one tiered fetch. Created fresh per call and
// never mutated after return; ownership passes to the caller.
type FetchResult struct {
	URL         string
	Text        string
	HTML        string
	Screenshots [][]byte
	Method      FetchMethod
	Links       []string
}

// Screenshot returns the first tile, or nil when none were captured.
func (r *FetchResult) Screenshot() []byte {
	if len(r.Screenshots) == 0 {
		return nil
	}
	return r.Screenshots[0]
}

// Failed reports whether every acquisition tier was exhausted.
func (r *FetchResult) Failed() bool { return r.Method == FetchFailed }

// URLType classifies a discovered candidate URL.
type URLType string

const (
	URLOverview     URLType = "overview"
	URLDrugSpecific URLType = "drug_specific"
	URLNews         URLType = "news"
	URLIrrelevant   URLType = "irrelevant"
)

// DiscoveredURL is a ranked candidate page for a company, produced by the
// discovery step and consumed by the pipeline best-first.
type DiscoveredURL struct {
	URL     string  `json:"url"`
	Title   string  `json:"title"`
	Snippet string  `json:"snippet"`
	Type    URLType `json:"type"`
	Score   float64 `json:"score"`
}
