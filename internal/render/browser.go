// Package render drives a shared headless Chrome instance for pages that do
// not yield content over plain HTTP: client-side rendered pipeline tables and
// graphical pipeline charts that need screenshot capture.
package render

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/helix-research/pipeline-cli/internal/config"
)

// challengeMarker appears in bot-challenge interstitials (Cloudflare et al).
const challengeMarker = "Just a moment"

// challengePolls bounds how long we wait out an interstitial (~10s total).
const (
	challengePolls    = 5
	challengeInterval = 2 * time.Second
)

// settleDelay lets client-side rendering finish after DOM ready; chromedp has
// no networkidle wait, so a fixed delay stands in.
const settleDelay = 3 * time.Second

// Result holds a rendered page: final HTML plus tiled full-height screenshots.
type Result struct {
	HTML        string
	Screenshots [][]byte
}

// Browser owns one Chrome process for the whole run. It is started lazily on
// first Render and must be released with Close. Concurrent renders each open
// their own tab; tabs are independent and need no cross-tab locking.
type Browser struct {
	cfg config.RenderConfig

	mu        sync.Mutex
	parentCtx context.Context
	cancels   []context.CancelFunc
}

// New creates an unstarted Browser. No Chrome process exists until the first
// Render call.
func New(cfg config.RenderConfig) *Browser {
	return &Browser{cfg: cfg}
}

// start launches Chrome under the given parent context.
func (b *Browser) start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.parentCtx != nil {
		return nil
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)...,
	)

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Force the browser process to start now so failures surface here rather
	// than on the first page load.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return eris.Wrap(err, "render: start browser")
	}

	b.parentCtx = browserCtx
	b.cancels = []context.CancelFunc{browserCancel, allocCancel}

	zap.L().Info("render: headless browser started")
	return nil
}

// Close tears down the Chrome process. Safe to call when never started.
func (b *Browser) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, cancel := range b.cancels {
		cancel()
	}
	b.cancels = nil
	b.parentCtx = nil
}

// Render loads url in a fresh tab, waits out client-side rendering and bot
// challenges, and returns the final HTML with tiled screenshots.
func (b *Browser) Render(ctx context.Context, url string) (*Result, error) {
	if err := b.start(ctx); err != nil {
		return nil, err
	}

	b.mu.Lock()
	parent := b.parentCtx
	b.mu.Unlock()

	tabCtx, cancelTab := chromedp.NewContext(parent)
	defer cancelTab()

	timeout := time.Duration(b.cfg.TimeoutSecs) * time.Second
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, timeout)
	defer cancelTimeout()

	var html string
	err := chromedp.Run(tabCtx,
		chromedp.EmulateViewport(int64(b.cfg.ViewportWidth), int64(b.cfg.TileHeight)),
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.Sleep(settleDelay),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return waitOutChallenge(ctx, &html)
		}),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "render: load %s", url)
	}

	shots, err := b.captureTiles(tabCtx)
	if err != nil {
		// Screenshots are an enhancement over the rendered text; log and
		// return what we have.
		zap.L().Warn("render: screenshot capture failed",
			zap.String("url", url),
			zap.Error(err),
		)
	}

	return &Result{HTML: html, Screenshots: shots}, nil
}

// waitOutChallenge polls the document until a bot-challenge interstitial
// clears or the poll budget is spent. The last observed HTML is kept either
// way.
func waitOutChallenge(ctx context.Context, html *string) error {
	for i := 0; i < challengePolls; i++ {
		if err := chromedp.OuterHTML("html", html).Do(ctx); err != nil {
			return err
		}
		if !strings.Contains(*html, challengeMarker) && len(*html) > 1000 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(challengeInterval):
		}
	}
	return nil
}

// captureTiles takes fixed-height viewport screenshots down the page with
// vertical overlap so table rows are not cut at tile boundaries. The tile
// count is capped to bound vision-model cost.
func (b *Browser) captureTiles(ctx context.Context) ([][]byte, error) {
	var pageHeight int64
	if err := chromedp.Run(ctx,
		chromedp.Evaluate(`document.body.scrollHeight`, &pageHeight),
	); err != nil {
		return nil, eris.Wrap(err, "render: read page height")
	}

	offsets := TileOffsets(int(pageHeight), b.cfg.TileHeight, b.cfg.TileOverlap, b.cfg.MaxTiles)

	shots := make([][]byte, 0, len(offsets))
	for _, y := range offsets {
		var shot []byte
		err := chromedp.Run(ctx,
			chromedp.Evaluate(fmt.Sprintf(`window.scrollTo(0, %d)`, y), nil),
			chromedp.Sleep(300*time.Millisecond), // let render settle
			chromedp.ActionFunc(func(ctx context.Context) error {
				var err error
				shot, err = page.CaptureScreenshot().
					WithFormat(page.CaptureScreenshotFormatPng).
					WithClip(&page.Viewport{
						X:      0,
						Y:      float64(y),
						Width:  float64(b.cfg.ViewportWidth),
						Height: float64(b.cfg.TileHeight),
						Scale:  1,
					}).
					WithCaptureBeyondViewport(true).
					Do(ctx)
				return err
			}),
		)
		if err != nil {
			return shots, eris.Wrapf(err, "render: capture tile at y=%d", y)
		}
		shots = append(shots, shot)
	}

	return shots, nil
}

// TileOffsets computes the vertical scroll positions for screenshot tiles.
func TileOffsets(pageHeight, tileHeight, overlap, maxTiles int) []int {
	if pageHeight <= 0 || tileHeight <= 0 || maxTiles <= 0 {
		return nil
	}

	stride := tileHeight - overlap
	if stride <= 0 {
		stride = tileHeight
	}

	var offsets []int
	for y := 0; y < pageHeight && len(offsets) < maxTiles; y += stride {
		offsets = append(offsets, y)
	}
	return offsets
}
