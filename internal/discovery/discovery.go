// Package discovery locates a company's pipeline pages. The fast path probes
// common pipeline URL patterns on the company's own domain with concurrent
// HEAD requests; when nothing answers, it falls back to web search and
// heuristic classification of the results.
package discovery

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/helix-research/pipeline-cli/internal/model"
	"github.com/helix-research/pipeline-cli/internal/resilience"
	"github.com/helix-research/pipeline-cli/pkg/serper"
)

// probeSuffixes are the pipeline page paths companies commonly use, probed
// against both www and bare domain guesses.
var probeSuffixes = []string{
	"/pipeline", "/en/pipeline", "/pipeline.html", "/our-pipeline",
	"/research/pipeline", "/science/pipeline", "/rnd/pipeline",
	"/en/company/pipeline01", "/en/rnd/pipeline",
	"/pipeline/", "/products/pipeline",
}

const (
	probeTimeout     = 5 * time.Second
	probeConcurrency = 10
	searchResults    = 10
)

// Discoverer finds candidate pipeline URLs for a company.
type Discoverer struct {
	search    serper.Client
	client    *http.Client
	retry     resilience.RetryConfig
	userAgent string
}

// Option configures a Discoverer.
type Option func(*Discoverer)

// WithHTTPClient overrides the probing client (for tests).
func WithHTTPClient(c *http.Client) Option {
	return func(d *Discoverer) { d.client = c }
}

// WithUserAgent sets the probe User-Agent.
func WithUserAgent(ua string) Option {
	return func(d *Discoverer) { d.userAgent = ua }
}

// New creates a Discoverer. search may be nil, which disables the fallback.
func New(search serper.Client, opts ...Option) *Discoverer {
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = 2
	retry.InitialBackoff = 250 * time.Millisecond
	retry.OnRetry = resilience.RetryLogger("discovery", "http")

	d := &Discoverer{
		search: search,
		client: &http.Client{Timeout: probeTimeout},
		retry:  retry,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Discover returns candidate pipeline URLs for company, best first. siteURL,
// when known, pins probing to that domain; otherwise the domain is guessed
// from the company name. Probe hits short-circuit the search fallback.
func (d *Discoverer) Discover(ctx context.Context, company, siteURL string) ([]model.DiscoveredURL, error) {
	log := zap.L().With(zap.String("company", company))

	probed := d.probeCommonURLs(ctx, company, siteURL)
	if len(probed) > 0 {
		log.Info("discovery: direct probe hit",
			zap.String("url", probed[0].URL),
			zap.Int("candidates", len(probed)),
		)
		return probed, nil
	}

	if d.search == nil {
		return nil, eris.Errorf("discovery: no probe hits for %q and no search client configured", company)
	}

	results, err := d.searchFallback(ctx, company)
	if err != nil {
		return nil, err
	}
	log.Info("discovery: search fallback", zap.Int("candidates", len(results)))
	return results, nil
}

// probeCommonURLs HEADs every base+suffix combination concurrently and
// collects the final URLs that answered 200, deduplicated post-redirect.
func (d *Discoverer) probeCommonURLs(ctx context.Context, company, siteURL string) []model.DiscoveredURL {
	bases := probeBases(company, siteURL)

	var (
		mu    sync.Mutex
		found []string
		seen  = map[string]struct{}{}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(probeConcurrency)
	for _, base := range bases {
		for _, suffix := range probeSuffixes {
			target := base + suffix
			g.Go(func() error {
				final, ok := d.probe(gctx, target)
				if !ok {
					return nil
				}
				mu.Lock()
				defer mu.Unlock()
				if _, dup := seen[final]; !dup {
					seen[final] = struct{}{}
					found = append(found, final)
				}
				return nil
			})
		}
	}
	_ = g.Wait() // probes never return errors

	out := make([]model.DiscoveredURL, 0, len(found))
	for _, u := range found {
		out = append(out, model.DiscoveredURL{
			URL:   u,
			Title: "Direct probe",
			Type:  model.URLOverview,
			Score: 1.0,
		})
	}
	return out
}

// probe HEADs url and reports the post-redirect URL on a 200. A 404 is a
// definitive miss; transient network failures get one retry.
func (d *Discoverer) probe(ctx context.Context, url string) (string, bool) {
	var final string
	err := resilience.Do(ctx, d.retry, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			return err
		}
		if d.userAgent != "" {
			req.Header.Set("User-Agent", d.userAgent)
		}

		resp, err := d.client.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(eris.Errorf("status %d", resp.StatusCode), resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return eris.Errorf("status %d", resp.StatusCode)
		}
		final = resp.Request.URL.String()
		return nil
	})
	return final, err == nil
}

// searchFallback runs the query ladder, dedupes by URL, classifies and
// orders the results.
func (d *Discoverer) searchFallback(ctx context.Context, company string) ([]model.DiscoveredURL, error) {
	domain := guessDomain(company) + ".com"
	queries := []string{
		"site:" + domain + " pipeline",
		company + " pipeline",
		company + " drug candidates clinical trials",
	}

	seen := map[string]struct{}{}
	var discovered []model.DiscoveredURL

	for _, q := range queries {
		var resp *serper.SearchResponse
		err := resilience.Do(ctx, d.retry, func(ctx context.Context) error {
			var err error
			resp, err = d.search.Search(ctx, q, serper.WithNumResults(searchResults))
			return err
		})
		if err != nil {
			return nil, eris.Wrapf(err, "discovery: search %q", q)
		}

		for _, r := range resp.Organic {
			if _, dup := seen[r.Link]; dup {
				continue
			}
			seen[r.Link] = struct{}{}
			urlType, score := Classify(r.Link, r.Title, r.Snippet, company)
			discovered = append(discovered, model.DiscoveredURL{
				URL:     r.Link,
				Title:   r.Title,
				Snippet: r.Snippet,
				Type:    urlType,
				Score:   score,
			})
		}
	}

	sortBestFirst(discovered)
	return discovered, nil
}

var typePriority = map[model.URLType]int{
	model.URLOverview:     0,
	model.URLDrugSpecific: 1,
	model.URLNews:         2,
	model.URLIrrelevant:   3,
}

// sortBestFirst orders by type priority, then descending score. The sort is
// stable so search ranking breaks ties.
func sortBestFirst(urls []model.DiscoveredURL) {
	sort.SliceStable(urls, func(i, j int) bool {
		pi, pj := typePriority[urls[i].Type], typePriority[urls[j].Type]
		if pi != pj {
			return pi < pj
		}
		return urls[i].Score > urls[j].Score
	})
}
