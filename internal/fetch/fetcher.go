// Package fetch acquires page content through escalating tiers: cache, plain
// HTTP, headless rendering, and finally screenshot capture for vision-model
// extraction. Each tier is attempted only when the previous one produced too
// little text, keeping the expensive tiers for the pages that need them.
package fetch

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/helix-research/pipeline-cli/internal/cache"
	"github.com/helix-research/pipeline-cli/internal/config"
	"github.com/helix-research/pipeline-cli/internal/model"
	"github.com/helix-research/pipeline-cli/internal/render"
)

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 5 << 20

// Getter is the plain-HTTP acquisition tier.
type Getter interface {
	Get(ctx context.Context, url string) (html string, err error)
}

// Renderer is the headless-browser acquisition tier. *render.Browser
// satisfies it.
type Renderer interface {
	Render(ctx context.Context, url string) (*render.Result, error)
}

// Fetcher escalates through acquisition tiers until a sufficiency threshold
// is met or all tiers are exhausted. Fetch never returns an error: every
// failure path resolves to a FetchResult with Method FetchFailed.
type Fetcher struct {
	cfg      config.FetchConfig
	store    *cache.Cache
	getter   Getter
	renderer Renderer
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithGetter overrides the HTTP tier (for tests).
func WithGetter(g Getter) Option {
	return func(f *Fetcher) { f.getter = g }
}

// New creates a Fetcher. The renderer may be nil, in which case escalation
// stops after the HTTP tier.
func New(cfg config.FetchConfig, store *cache.Cache, renderer Renderer, opts ...Option) *Fetcher {
	f := &Fetcher{
		cfg:      cfg,
		store:    store,
		renderer: renderer,
		getter:   newHTTPGetter(cfg),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch acquires url, escalating tiers as needed.
func (f *Fetcher) Fetch(ctx context.Context, url string, useCache bool) model.FetchResult {
	log := zap.L().With(zap.String("url", url))

	if useCache && f.store != nil {
		if content, _, ok := f.store.Get(url); ok {
			log.Debug("fetch: cache hit", zap.Int("chars", len(content)))
			return model.FetchResult{
				URL:    url,
				Text:   content,
				Method: model.FetchCacheHit,
			}
		}
	}

	// Tier 1: plain HTTP.
	var bestText string
	var bestLinks []string

	html, err := f.getter.Get(ctx, url)
	if err != nil {
		log.Debug("fetch: http tier failed, escalating", zap.Error(err))
	} else {
		text, links := CleanHTML(html, f.cfg.MaxTextChars)
		bestText, bestLinks = text, links
		if len(text) >= f.cfg.TextThreshold {
			f.cacheSet(url, text)
			log.Debug("fetch: http tier sufficient", zap.Int("chars", len(text)))
			return model.FetchResult{
				URL:    url,
				Text:   text,
				HTML:   html,
				Method: model.FetchHTTP,
				Links:  links,
			}
		}
		log.Debug("fetch: http tier thin, escalating", zap.Int("chars", len(text)))
	}

	// Tier 2: headless rendering.
	if f.renderer == nil {
		return f.failed(url, bestText, bestLinks)
	}

	rendered, err := f.renderer.Render(ctx, url)
	if err != nil {
		log.Warn("fetch: render tier failed", zap.Error(err))
		return f.failed(url, bestText, bestLinks)
	}

	text, links := CleanHTML(rendered.HTML, f.cfg.MaxTextChars)
	if len(text) < len(bestText) {
		// A challenge page can render to less than the raw HTTP body gave us.
		text = bestText
	}
	if len(links) == 0 {
		links = bestLinks
	}

	if len(text) >= f.cfg.VisionThreshold {
		f.cacheSet(url, text)
		log.Debug("fetch: render tier sufficient",
			zap.Int("chars", len(text)),
			zap.Int("screenshots", len(rendered.Screenshots)),
		)
		return model.FetchResult{
			URL:         url,
			Text:        text,
			HTML:        rendered.HTML,
			Screenshots: rendered.Screenshots,
			Method:      model.FetchRendered,
			Links:       links,
		}
	}

	// Tier 3: text is too thin even rendered; hand the screenshots to the
	// vision extractor.
	log.Info("fetch: text thin after rendering, deferring to vision",
		zap.Int("chars", len(text)),
		zap.Int("screenshots", len(rendered.Screenshots)),
	)
	return model.FetchResult{
		URL:         url,
		Text:        text,
		HTML:        rendered.HTML,
		Screenshots: rendered.Screenshots,
		Method:      model.FetchVisionPending,
		Links:       links,
	}
}

func (f *Fetcher) failed(url, text string, links []string) model.FetchResult {
	zap.L().Warn("fetch: all tiers exhausted", zap.String("url", url))
	return model.FetchResult{
		URL:    url,
		Text:   text,
		Method: model.FetchFailed,
		Links:  links,
	}
}

func (f *Fetcher) cacheSet(url, text string) {
	if f.store == nil {
		return
	}
	if err := f.store.Set(url, text, "text"); err != nil {
		zap.L().Debug("fetch: cache write failed", zap.String("url", url), zap.Error(err))
	}
}

// httpGetter implements the plain HTTP tier with a realistic browser UA.
type httpGetter struct {
	client    *http.Client
	userAgent string
}

func newHTTPGetter(cfg config.FetchConfig) *httpGetter {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &httpGetter{
		client:    &http.Client{Timeout: timeout},
		userAgent: cfg.UserAgent,
	}
}

func (g *httpGetter) Get(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", eris.Wrap(err, "fetch: create request")
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "fetch: http get")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return "", eris.Errorf("fetch: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", eris.Wrap(err, "fetch: read body")
	}
	return string(body), nil
}
