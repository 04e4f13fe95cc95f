package main

import (
	"github.com/helix-research/pipeline-cli/internal/cache"
	"github.com/helix-research/pipeline-cli/internal/discovery"
	"github.com/helix-research/pipeline-cli/internal/extract"
	"github.com/helix-research/pipeline-cli/internal/fetch"
	"github.com/helix-research/pipeline-cli/internal/pipeline"
	"github.com/helix-research/pipeline-cli/internal/render"
	anthropicpkg "github.com/helix-research/pipeline-cli/pkg/anthropic"
	"github.com/helix-research/pipeline-cli/pkg/serper"
)

// scanEnv holds the initialized clients and the pipeline for the scan and
// serve commands. The browser handle is acquired here and released once per
// run via Close; it is never a process global.
type scanEnv struct {
	Pipeline *pipeline.Pipeline
	Store    *cache.Cache

	browser *render.Browser
}

// Close releases the headless browser.
func (e *scanEnv) Close() {
	if e.browser != nil {
		e.browser.Close()
	}
}

// initScanEnv validates config for mode and wires the pipeline. Callers must
// defer env.Close().
func initScanEnv(mode string, opts ...pipeline.Option) (*scanEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	store := cache.New(cfg.Cache.Dir, cache.WithTTL(cfg.Cache.TTL()))
	browser := render.New(cfg.Render)
	fetcher := fetch.New(cfg.Fetch, store, browser)

	llm := anthropicpkg.NewClient(cfg.Anthropic.Key)
	extractor := extract.New(llm, cfg.Anthropic, cfg.Extract, cfg.Fetch.HybridThreshold)

	var search serper.Client
	if cfg.Serper.Key != "" {
		serperOpts := []serper.Option{}
		if cfg.Serper.BaseURL != "" {
			serperOpts = append(serperOpts, serper.WithBaseURL(cfg.Serper.BaseURL))
		}
		search = serper.NewClient(cfg.Serper.Key, serperOpts...)
	}
	disc := discovery.New(search, discovery.WithUserAgent(cfg.Fetch.UserAgent))

	if search != nil {
		enricher := pipeline.NewEnricher(search, fetcher, llm, cfg.Anthropic, cfg.Batch.MaxConcurrentEnrichment)
		opts = append(opts, pipeline.WithEnricher(enricher))
	}

	p := pipeline.New(cfg, fetcher, extractor, disc, opts...)

	return &scanEnv{
		Pipeline: p,
		Store:    store,
		browser:  browser,
	}, nil
}
