package extract

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/helix-research/pipeline-cli/internal/config"
	"github.com/helix-research/pipeline-cli/internal/model"
	"github.com/helix-research/pipeline-cli/pkg/anthropic"
)

// Extractor runs schema-validated structured extraction against Anthropic
// models. It is stateless across calls and safe for concurrent use.
type Extractor struct {
	llm      anthropic.Client
	anth     config.AnthropicConfig
	cfg      config.ExtractConfig
	hybridAt int

	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithSleep overrides the backoff sleeper (for tests).
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Extractor) { e.sleep = fn }
}

// New creates an Extractor. hybridThreshold is the text length above which a
// rendered page's text alone is considered sufficient and its screenshots
// are left unsent.
func New(llm anthropic.Client, anth config.AnthropicConfig, cfg config.ExtractConfig, hybridThreshold int, opts ...Option) *Extractor {
	e := &Extractor{
		llm:      llm,
		anth:     anth,
		cfg:      cfg,
		hybridAt: hybridThreshold,
		sleep:    sleepCtx,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract pulls structured assets out of one fetched page. Validation
// failures are retried with the failure quoted back to the model; exhausted
// retries yield an empty slice, not an error. A non-nil error means the API
// itself failed and the page should count as unprocessed.
func (e *Extractor) Extract(ctx context.Context, company string, page model.FetchResult) ([]model.ExtractedAsset, error) {
	// A failed fetch may still carry residual sub-threshold text from the
	// HTTP tier; it is not worth a model call.
	if page.Failed() {
		return nil, nil
	}

	method := e.selectMethod(page)
	log := zap.L().With(
		zap.String("company", company),
		zap.String("url", page.URL),
		zap.String("mode", string(method)),
	)

	var (
		candidates []model.CandidateAsset
		err        error
	)
	switch method {
	case model.MethodVision:
		candidates, err = e.extractVision(ctx, company, page)
	case model.MethodHybrid:
		candidates, err = e.extractHybrid(ctx, company, page)
	default:
		candidates, err = e.extractText(ctx, company, page)
		// A pipeline rendered entirely as a chart can read as empty text even
		// when the page fetched fine. When tiles exist, give vision a shot.
		if err == nil && len(candidates) == 0 && len(page.Screenshots) > 0 {
			log.Info("extract: text mode found nothing, falling back to vision")
			method = model.MethodVision
			candidates, err = e.extractVision(ctx, company, page)
		}
	}
	if err != nil {
		return nil, err
	}

	log.Info("extract: page complete", zap.Int("assets", len(candidates)))

	out := make([]model.ExtractedAsset, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, model.NewExtractedAsset(c, company, page.URL, method))
	}
	return out, nil
}

// selectMethod picks the extraction mode from how the page was acquired.
func (e *Extractor) selectMethod(page model.FetchResult) model.ExtractionMethod {
	hasTiles := len(page.Screenshots) > 0
	switch {
	case page.Method == model.FetchVisionPending && hasTiles:
		return model.MethodVision
	case hasTiles && len(page.Text) < e.hybridAt:
		return model.MethodHybrid
	default:
		return model.MethodText
	}
}

func (e *Extractor) extractText(ctx context.Context, company string, page model.FetchResult) ([]model.CandidateAsset, error) {
	content := capText(page.Text, e.cfg.MaxPromptChars)
	msg := anthropic.TextMessage(textPrompt(company, page.URL, content))
	return e.completeWithRetry(ctx, e.anth.TextModel, "extract_text", []anthropic.Message{msg})
}

func (e *Extractor) extractVision(ctx context.Context, company string, page model.FetchResult) ([]model.CandidateAsset, error) {
	blocks := tileBlocks(page.Screenshots)
	blocks = append(blocks, anthropic.TextBlock(visionPrompt(company, page.URL, len(page.Screenshots))))
	msg := anthropic.Message{Role: "user", Blocks: blocks}
	return e.completeWithRetry(ctx, e.anth.VisionModel, "extract_vision", []anthropic.Message{msg})
}

func (e *Extractor) extractHybrid(ctx context.Context, company string, page model.FetchResult) ([]model.CandidateAsset, error) {
	content := capText(page.Text, e.cfg.MaxPromptChars)
	blocks := tileBlocks(page.Screenshots)
	blocks = append(blocks, anthropic.TextBlock(hybridPrompt(company, page.URL, content, len(page.Screenshots))))
	msg := anthropic.Message{Role: "user", Blocks: blocks}
	return e.completeWithRetry(ctx, e.anth.VisionModel, "extract_hybrid", []anthropic.Message{msg})
}

// completeWithRetry folds over attempts: each attempt's conversation is the
// base request plus, when the prior attempt failed validation, the model's
// own invalid answer and a correction request. API errors abort immediately;
// exhausting all attempts yields an empty result.
func (e *Extractor) completeWithRetry(ctx context.Context, modelID, phase string, base []anthropic.Message) ([]model.CandidateAsset, error) {
	backoff := e.cfg.Backoff()
	var usage anthropic.TokenUsage

	messages := base
	for attempt := 0; attempt < e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := e.sleep(ctx, backoffAt(backoff, attempt-1)); err != nil {
				return nil, eris.Wrap(err, "extract: retry wait")
			}
		}

		resp, err := e.llm.CreateMessage(ctx, anthropic.MessageRequest{
			Model:       modelID,
			MaxTokens:   int64(e.anth.MaxTokens),
			System:      systemPrompt,
			Messages:    messages,
			Temperature: anthropic.Float(0),
		})
		if err != nil {
			return nil, eris.Wrap(err, "extract: model call")
		}
		usage.InputTokens += resp.Usage.InputTokens
		usage.OutputTokens += resp.Usage.OutputTokens

		raw := resp.Text()
		candidates, vErr := ParseAssets(raw)
		if vErr == nil {
			usage.LogCost(modelID, phase)
			return candidates, nil
		}

		zap.L().Warn("extract: response failed validation",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", e.cfg.MaxRetries),
			zap.Error(vErr),
		)

		// Next attempt sees its own mistake and the specific violation.
		next := make([]anthropic.Message, 0, len(base)+2)
		next = append(next, base...)
		next = append(next,
			anthropic.Message{Role: "assistant", Blocks: []anthropic.ContentBlockParam{anthropic.TextBlock(raw)}},
			anthropic.TextMessage(retryPrompt(vErr.Error())),
		)
		messages = next
	}

	usage.LogCost(modelID, phase)
	zap.L().Warn("extract: validation retries exhausted, treating page as empty",
		zap.String("phase", phase),
	)
	return nil, nil
}

// tileBlocks converts raw PNG tiles into base64 image blocks.
func tileBlocks(tiles [][]byte) []anthropic.ContentBlockParam {
	blocks := make([]anthropic.ContentBlockParam, 0, len(tiles)+1)
	for _, tile := range tiles {
		blocks = append(blocks, anthropic.ImageBlock("image/png", base64.StdEncoding.EncodeToString(tile)))
	}
	return blocks
}

func capText(s string, max int) string {
	if max > 0 && len(s) > max {
		return s[:max]
	}
	return s
}

// backoffAt returns the delay for the i-th retry, reusing the last entry
// when attempts outnumber configured delays.
func backoffAt(backoff []time.Duration, i int) time.Duration {
	if len(backoff) == 0 {
		return time.Second
	}
	if i >= len(backoff) {
		return backoff[len(backoff)-1]
	}
	return backoff[i]
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
