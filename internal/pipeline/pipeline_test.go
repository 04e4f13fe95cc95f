package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helix-research/pipeline-cli/internal/config"
	"github.com/helix-research/pipeline-cli/internal/model"
)

func testConfig() *config.Config {
	return &config.Config{
		Merge: config.MergeConfig{Policy: "enrich_only"},
		Batch: config.BatchConfig{
			MaxConcurrentCompanies: 3,
			MaxConcurrentFetches:   5,
			MaxDrugPages:           50,
		},
	}
}

// mapFetcher serves canned FetchResults by URL.
type mapFetcher struct {
	mu    sync.Mutex
	pages map[string]model.FetchResult
	order []string
}

func (f *mapFetcher) Fetch(_ context.Context, url string, _ bool) model.FetchResult {
	f.mu.Lock()
	f.order = append(f.order, url)
	f.mu.Unlock()
	if page, ok := f.pages[url]; ok {
		page.URL = url
		return page
	}
	return model.FetchResult{URL: url, Method: model.FetchFailed}
}

// mapExtractor serves canned assets by URL.
type mapExtractor struct {
	assets map[string][]model.ExtractedAsset
	errs   map[string]error
}

func (e *mapExtractor) Extract(_ context.Context, _ string, page model.FetchResult) ([]model.ExtractedAsset, error) {
	if err := e.errs[page.URL]; err != nil {
		return nil, err
	}
	return e.assets[page.URL], nil
}

// mapDiscoverer serves canned discovery results by company.
type mapDiscoverer struct {
	urls  map[string][]model.DiscoveredURL
	err   error
	calls []string
}

func (d *mapDiscoverer) Discover(_ context.Context, company, _ string) ([]model.DiscoveredURL, error) {
	d.calls = append(d.calls, company)
	if d.err != nil {
		return nil, d.err
	}
	return d.urls[company], nil
}

func asset(name, indication string) model.ExtractedAsset {
	return model.ExtractedAsset{
		CandidateAsset: model.CandidateAsset{
			AssetName:       name,
			TherapeuticArea: "Oncology",
			Indication:      indication,
		},
		Company:    "Acme Bio",
		SourceURLs: []string{"https://acmebio.com/pipeline"},
		Method:     model.MethodText,
	}
}

const overviewURL = "https://acmebio.com/pipeline"

func TestRun_OverviewThenDetailEnrichment(t *testing.T) {
	detailURL := "https://acmebio.com/pipeline/abl-001"
	fetcher := &mapFetcher{pages: map[string]model.FetchResult{
		overviewURL: {
			Text:   "overview",
			Method: model.FetchHTTP,
			Links:  []string{"/pipeline/abl-001", "/news/raise", "https://other.bio/x"},
		},
		detailURL: {Text: "detail", Method: model.FetchHTTP},
	}}

	detail := asset("ABL001", "NSCLC")
	detail.SourceURLs = []string{detailURL}
	extractor := &mapExtractor{assets: map[string][]model.ExtractedAsset{
		overviewURL: {asset("ABL001", "Undisclosed"), asset("ABL002", "AML")},
		detailURL:   {detail, asset("ABL999", "invented by a partial extraction")},
	}}

	p := New(testConfig(), fetcher, extractor, &mapDiscoverer{})
	result := p.Run(context.Background(), model.Company{Name: "Acme Bio", URL: overviewURL})

	require.Empty(t, result.Err)
	assert.Equal(t, overviewURL, result.OverviewURL)
	assert.Equal(t, 1, result.DetailPages, "news and off-domain links are filtered out")

	require.Len(t, result.Assets, 2, "enrich-only merge never adds detail-page assets")
	assert.Equal(t, "ABL001", result.Assets[0].AssetName)
	assert.Equal(t, "NSCLC", result.Assets[0].Indication, "detail page fills the placeholder")
	assert.Contains(t, result.Assets[0].SourceURLs, detailURL)
	assert.Equal(t, "AML", result.Assets[1].Indication)

	// Hard ordering: the overview completes before any detail fetch starts.
	require.GreaterOrEqual(t, len(fetcher.order), 2)
	assert.Equal(t, overviewURL, fetcher.order[0])
}

func TestRun_DiscoveryWhenNoURL(t *testing.T) {
	fetcher := &mapFetcher{pages: map[string]model.FetchResult{
		overviewURL: {Text: "overview", Method: model.FetchHTTP},
	}}
	extractor := &mapExtractor{assets: map[string][]model.ExtractedAsset{
		overviewURL: {asset("ABL001", "NSCLC")},
	}}
	disc := &mapDiscoverer{urls: map[string][]model.DiscoveredURL{
		"Acme Bio": {
			{URL: "https://fiercebiotech.com/x", Type: model.URLNews, Score: 0.4},
			{URL: overviewURL, Type: model.URLOverview, Score: 1.0},
		},
	}}

	p := New(testConfig(), fetcher, extractor, disc)
	result := p.Run(context.Background(), model.Company{Name: "Acme Bio"})

	require.Empty(t, result.Err)
	assert.Equal(t, overviewURL, result.OverviewURL, "news candidates are skipped")
	assert.Len(t, result.Assets, 1)
}

func TestRun_BareOriginTriggersDiscovery(t *testing.T) {
	fetcher := &mapFetcher{pages: map[string]model.FetchResult{
		overviewURL: {Text: "overview", Method: model.FetchHTTP},
	}}
	extractor := &mapExtractor{assets: map[string][]model.ExtractedAsset{
		overviewURL: {asset("ABL001", "NSCLC")},
	}}
	disc := &mapDiscoverer{urls: map[string][]model.DiscoveredURL{
		"Acme Bio": {{URL: overviewURL, Type: model.URLOverview, Score: 1.0}},
	}}

	p := New(testConfig(), fetcher, extractor, disc)
	result := p.Run(context.Background(), model.Company{Name: "Acme Bio", URL: "https://acmebio.com/"})

	require.Empty(t, result.Err)
	assert.Equal(t, []string{"Acme Bio"}, disc.calls)
	assert.Equal(t, overviewURL, result.OverviewURL)
}

func TestRun_DiscoveryFailureRecordedNotRaised(t *testing.T) {
	disc := &mapDiscoverer{err: errors.New("no pipeline page found")}
	p := New(testConfig(), &mapFetcher{}, &mapExtractor{}, disc)

	result := p.Run(context.Background(), model.Company{Name: "Acme Bio"})

	assert.NotEmpty(t, result.Err)
	assert.Empty(t, result.Assets)
}

func TestRun_OverviewFetchFailure(t *testing.T) {
	p := New(testConfig(), &mapFetcher{}, &mapExtractor{}, &mapDiscoverer{})

	result := p.Run(context.Background(), model.Company{Name: "Acme Bio", URL: overviewURL})

	assert.Equal(t, "could not fetch overview page", result.Err)
}

func TestRun_DetailPageErrorAbsorbed(t *testing.T) {
	detailURL := "https://acmebio.com/pipeline/abl-001"
	fetcher := &mapFetcher{pages: map[string]model.FetchResult{
		overviewURL: {Text: "overview", Method: model.FetchHTTP, Links: []string{"/pipeline/abl-001"}},
		detailURL:   {Text: "detail", Method: model.FetchHTTP},
	}}
	extractor := &mapExtractor{
		assets: map[string][]model.ExtractedAsset{
			overviewURL: {asset("ABL001", "NSCLC")},
		},
		errs: map[string]error{detailURL: errors.New("api down")},
	}

	p := New(testConfig(), fetcher, extractor, &mapDiscoverer{})
	result := p.Run(context.Background(), model.Company{Name: "Acme Bio", URL: overviewURL})

	require.Empty(t, result.Err, "one bad detail page never fails the company")
	assert.Len(t, result.Assets, 1)
}

func TestRun_OverviewExtractionErrorAbsorbed(t *testing.T) {
	detailURL := "https://acmebio.com/pipeline/abl-001"
	fetcher := &mapFetcher{pages: map[string]model.FetchResult{
		overviewURL: {Text: "overview", Method: model.FetchHTTP, Links: []string{"/pipeline/abl-001"}},
		detailURL:   {Text: "detail", Method: model.FetchHTTP},
	}}
	extractor := &mapExtractor{
		assets: map[string][]model.ExtractedAsset{
			detailURL: {asset("ABL001", "NSCLC")},
		},
		errs: map[string]error{overviewURL: errors.New("api down")},
	}

	cfg := testConfig()
	cfg.Merge.Policy = "additive"

	p := New(cfg, fetcher, extractor, &mapDiscoverer{})
	result := p.Run(context.Background(), model.Company{Name: "Acme Bio", URL: overviewURL})

	require.Empty(t, result.Err, "an overview extraction error never fails the company")
	assert.Equal(t, 1, result.DetailPages, "detail pages are still discovered and processed")
	require.Len(t, result.Assets, 1)
	assert.Equal(t, "ABL001", result.Assets[0].AssetName)
}

func TestRun_DetailPageCap(t *testing.T) {
	cfg := testConfig()
	cfg.Batch.MaxDrugPages = 2

	links := []string{"/pipeline/abl-001", "/pipeline/abl-002", "/pipeline/abl-003", "/pipeline/abl-004"}
	fetcher := &mapFetcher{pages: map[string]model.FetchResult{
		overviewURL: {Text: "overview", Method: model.FetchHTTP, Links: links},
	}}
	extractor := &mapExtractor{assets: map[string][]model.ExtractedAsset{
		overviewURL: {asset("ABL001", "NSCLC")},
	}}

	p := New(cfg, fetcher, extractor, &mapDiscoverer{})
	result := p.Run(context.Background(), model.Company{Name: "Acme Bio", URL: overviewURL})

	assert.Equal(t, 2, result.DetailPages)
}

func TestRunBatch_AbsorbsPerCompanyFailures(t *testing.T) {
	fetcher := &mapFetcher{pages: map[string]model.FetchResult{
		overviewURL: {Text: "overview", Method: model.FetchHTTP},
	}}
	extractor := &mapExtractor{assets: map[string][]model.ExtractedAsset{
		overviewURL: {asset("ABL001", "NSCLC")},
	}}
	disc := &mapDiscoverer{err: errors.New("nothing found")}

	p := New(testConfig(), fetcher, extractor, disc)
	results := p.RunBatch(context.Background(), []model.Company{
		{Name: "Acme Bio", URL: overviewURL},
		{Name: "Ghost Pharma"},
	})

	require.Len(t, results, 2)
	assert.Empty(t, results[0].Err)
	assert.Len(t, results[0].Assets, 1)
	assert.NotEmpty(t, results[1].Err, "failed company reports its error")
}

func TestRun_ProgressEventsEmitted(t *testing.T) {
	fetcher := &mapFetcher{pages: map[string]model.FetchResult{
		overviewURL: {Text: "overview", Method: model.FetchHTTP},
	}}
	extractor := &mapExtractor{assets: map[string][]model.ExtractedAsset{
		overviewURL: {asset("ABL001", "NSCLC")},
	}}

	var mu sync.Mutex
	var stages []model.ProgressStage
	p := New(testConfig(), fetcher, extractor, &mapDiscoverer{}, WithProgress(func(ev model.ProgressEvent) {
		mu.Lock()
		defer mu.Unlock()
		stages = append(stages, ev.Stage)
	}))

	p.Run(context.Background(), model.Company{Name: "Acme Bio", URL: overviewURL})

	assert.Contains(t, stages, model.StageOverview)
	assert.Equal(t, model.StageCompany, stages[len(stages)-1])
}
