// Package pipeline orchestrates a scan: discover a company's pipeline pages,
// fetch and extract the overview, fan out over drug detail pages, reconcile
// everything into one asset set, and optionally run gap enrichment. One bad
// URL or API hiccup never aborts a batch; failures degrade to partial results.
package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/helix-research/pipeline-cli/internal/config"
	"github.com/helix-research/pipeline-cli/internal/fetch"
	"github.com/helix-research/pipeline-cli/internal/model"
	"github.com/helix-research/pipeline-cli/internal/reconcile"
)

// ContentFetcher acquires page content. *fetch.Fetcher satisfies it.
type ContentFetcher interface {
	Fetch(ctx context.Context, url string, useCache bool) model.FetchResult
}

// AssetExtractor turns fetched pages into structured assets.
// *extract.Extractor satisfies it.
type AssetExtractor interface {
	Extract(ctx context.Context, company string, page model.FetchResult) ([]model.ExtractedAsset, error)
}

// URLDiscoverer finds candidate pipeline URLs. *discovery.Discoverer
// satisfies it.
type URLDiscoverer interface {
	Discover(ctx context.Context, company, siteURL string) ([]model.DiscoveredURL, error)
}

// ProgressFunc receives progress events during a run. Must be safe for
// concurrent calls.
type ProgressFunc func(model.ProgressEvent)

// Pipeline runs scans. All collaborators are injected; the enricher is
// optional and skipped when nil.
type Pipeline struct {
	cfg       *config.Config
	fetcher   ContentFetcher
	extractor AssetExtractor
	discovery URLDiscoverer
	enricher  *Enricher
	policy    reconcile.Policy
	progress  ProgressFunc
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithEnricher enables the post-merge gap enrichment pass.
func WithEnricher(e *Enricher) Option {
	return func(p *Pipeline) { p.enricher = e }
}

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(p *Pipeline) { p.progress = fn }
}

// New creates a Pipeline.
func New(cfg *config.Config, fetcher ContentFetcher, extractor AssetExtractor, disc URLDiscoverer, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:       cfg,
		fetcher:   fetcher,
		extractor: extractor,
		discovery: disc,
		policy:    reconcile.ParsePolicy(cfg.Merge.Policy),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) emit(ev model.ProgressEvent) {
	if p.progress == nil {
		return
	}
	ev.At = time.Now()
	p.progress(ev)
}

// RunBatch scans companies concurrently, bounded by the configured company
// ceiling. Every company yields a CompanyResult; per-company failures are
// recorded in the result, never returned.
func (p *Pipeline) RunBatch(ctx context.Context, companies []model.Company) []model.CompanyResult {
	results := make([]model.CompanyResult, len(companies))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Batch.MaxConcurrentCompanies)
	for i, company := range companies {
		i, company := i, company
		g.Go(func() error {
			results[i] = p.Run(gctx, company)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Run scans one company end to end. Always returns a result; failures are
// recorded in CompanyResult.Err.
func (p *Pipeline) Run(ctx context.Context, company model.Company) model.CompanyResult {
	log := zap.L().With(zap.String("company", company.Name))
	result := model.CompanyResult{Company: company.Name}

	overviewURL, err := p.resolveOverviewURL(ctx, company)
	if err != nil {
		log.Warn("pipeline: discovery failed", zap.Error(err))
		result.Err = err.Error()
		return result
	}
	result.OverviewURL = overviewURL

	// The overview page is the authoritative roster; it completes before any
	// detail page is touched.
	p.emit(model.ProgressEvent{Company: company.Name, Stage: model.StageOverview, URL: overviewURL, Message: "fetching overview"})
	overview := p.fetcher.Fetch(ctx, overviewURL, true)
	if overview.Failed() && overview.Text == "" {
		result.Err = "could not fetch overview page"
		p.emit(model.ProgressEvent{Company: company.Name, Stage: model.StageCompany, Err: result.Err})
		return result
	}

	// An extraction failure on the overview costs its assets, not the
	// company: detail pages are still discovered from the fetched links and
	// processed.
	assets, err := p.extractor.Extract(ctx, company.Name, overview)
	if err != nil {
		log.Warn("pipeline: overview extraction failed", zap.Error(err))
		p.emit(model.ProgressEvent{Company: company.Name, Stage: model.StageOverview, URL: overviewURL, Err: err.Error()})
		assets = nil
	}
	log.Info("pipeline: overview extracted",
		zap.String("url", overviewURL),
		zap.Int("assets", len(assets)),
	)
	p.emit(model.ProgressEvent{Company: company.Name, Stage: model.StageOverview, URL: overviewURL, AssetCount: len(assets), Message: "overview extracted"})

	detailURLs := p.detailURLs(overviewURL, overview.Links)
	result.DetailPages = len(detailURLs)

	assets = p.processDetailPages(ctx, company.Name, detailURLs, assets)

	if p.enricher != nil {
		p.emit(model.ProgressEvent{Company: company.Name, Stage: model.StageEnrichment, Message: "filling gaps"})
		assets = p.enricher.Enrich(ctx, company.Name, assets)
	}

	result.Assets = assets
	log.Info("pipeline: company complete",
		zap.Int("assets", len(assets)),
		zap.Int("detail_pages", len(detailURLs)),
	)
	p.emit(model.ProgressEvent{Company: company.Name, Stage: model.StageCompany, AssetCount: len(assets), Message: "complete"})
	return result
}

// resolveOverviewURL returns the page to treat as the pipeline overview: the
// caller-provided URL when present, otherwise the best discovery candidate.
func (p *Pipeline) resolveOverviewURL(ctx context.Context, company model.Company) (string, error) {
	if company.URL != "" && !isBareOrigin(company.URL) {
		return company.URL, nil
	}

	p.emit(model.ProgressEvent{Company: company.Name, Stage: model.StageDiscovery, Message: "locating pipeline page"})
	candidates, err := p.discovery.Discover(ctx, company.Name, company.URL)
	if err != nil {
		return "", err
	}
	for _, c := range candidates {
		if c.Type == model.URLOverview || c.Type == model.URLDrugSpecific {
			return c.URL, nil
		}
	}
	return "", eris.Errorf("pipeline: no pipeline page found for %q", company.Name)
}

// detailURLs filters overview links down to likely drug pages, excluding the
// overview itself and capping at the configured page budget.
func (p *Pipeline) detailURLs(overviewURL string, links []string) []string {
	filtered := fetch.FilterPipelineLinks(overviewURL, links)

	out := make([]string, 0, len(filtered))
	for _, u := range filtered {
		if u == overviewURL || strings.TrimRight(u, "/") == strings.TrimRight(overviewURL, "/") {
			continue
		}
		out = append(out, u)
		if len(out) >= p.cfg.Batch.MaxDrugPages {
			break
		}
	}
	return out
}

// processDetailPages fetches and extracts detail pages concurrently, then
// folds the page results into the overview assets in page order so merges
// stay deterministic regardless of completion order.
func (p *Pipeline) processDetailPages(ctx context.Context, company string, urls []string, assets []model.ExtractedAsset) []model.ExtractedAsset {
	if len(urls) == 0 {
		return assets
	}

	pageAssets := make([][]model.ExtractedAsset, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Batch.MaxConcurrentFetches)
	for i, u := range urls {
		g.Go(func() error {
			page := p.fetcher.Fetch(gctx, u, true)
			extracted, err := p.extractor.Extract(gctx, company, page)
			if err != nil {
				zap.L().Warn("pipeline: detail page extraction failed",
					zap.String("company", company),
					zap.String("url", u),
					zap.Error(err),
				)
				p.emit(model.ProgressEvent{Company: company, Stage: model.StageDetailPage, URL: u, Err: err.Error()})
				return nil
			}
			pageAssets[i] = extracted
			p.emit(model.ProgressEvent{Company: company, Stage: model.StageDetailPage, URL: u, AssetCount: len(extracted), Message: "detail page extracted"})
			return nil
		})
	}
	_ = g.Wait()

	for _, page := range pageAssets {
		if len(page) == 0 {
			continue
		}
		assets = reconcile.Merge(assets, page, p.policy)
	}
	return assets
}

// isBareOrigin reports whether url names only a site root, which is a
// discovery hint rather than a pipeline page.
func isBareOrigin(url string) bool {
	trimmed := strings.TrimRight(url, "/")
	rest := trimmed
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	return !strings.Contains(rest, "/")
}
