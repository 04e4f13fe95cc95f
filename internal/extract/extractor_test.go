package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helix-research/pipeline-cli/internal/config"
	"github.com/helix-research/pipeline-cli/internal/model"
	"github.com/helix-research/pipeline-cli/pkg/anthropic"
)

const validResponse = `{"assets": [{
	"therapeutic_area": "Oncology",
	"modality": "ADC",
	"phase": "Phase 2",
	"asset_name": "ABL001",
	"description": "BCMA-targeting antibody-drug conjugate.",
	"therapeutic_target": "BCMA",
	"indication": "Multiple Myeloma"
}]}`

const emptyResponse = `{"assets": []}`

// scriptedClient returns canned responses in order and records requests.
type scriptedClient struct {
	responses []string
	errs      []error
	requests  []anthropic.MessageRequest
}

func (c *scriptedClient) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	i := len(c.requests)
	c.requests = append(c.requests, req)
	if i < len(c.errs) && c.errs[i] != nil {
		return nil, c.errs[i]
	}
	body := c.responses[min(i, len(c.responses)-1)]
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: body}},
		Usage:   anthropic.TokenUsage{InputTokens: 100, OutputTokens: 50},
	}, nil
}

func testExtractor(llm anthropic.Client, slept *[]time.Duration) *Extractor {
	anth := config.AnthropicConfig{
		TextModel:   "text-model",
		VisionModel: "vision-model",
		MaxTokens:   4096,
	}
	cfg := config.ExtractConfig{
		MaxRetries:     3,
		BackoffSecs:    []int{1, 3, 10},
		MaxPromptChars: 40000,
	}
	return New(llm, anth, cfg, 3000, WithSleep(func(_ context.Context, d time.Duration) error {
		if slept != nil {
			*slept = append(*slept, d)
		}
		return nil
	}))
}

func textPage(text string) model.FetchResult {
	return model.FetchResult{
		URL:    "https://acme.bio/pipeline",
		Text:   text,
		Method: model.FetchHTTP,
	}
}

func TestExtract_TextModeFirstTry(t *testing.T) {
	llm := &scriptedClient{responses: []string{validResponse}}
	e := testExtractor(llm, nil)

	assets, err := e.Extract(context.Background(), "Acme Bio", textPage("ABL001 Phase 2 multiple myeloma"))

	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, "ABL001", assets[0].AssetName)
	assert.Equal(t, "Acme Bio", assets[0].Company)
	assert.Equal(t, []string{"https://acme.bio/pipeline"}, assets[0].SourceURLs)
	assert.Equal(t, model.MethodText, assets[0].Method)
	require.Len(t, llm.requests, 1)
	assert.Equal(t, "text-model", llm.requests[0].Model)
}

func TestExtract_RetriesOnSchemaViolationWithFeedback(t *testing.T) {
	// First response is missing required fields, second is fenced but valid.
	invalid := `{"assets": [{"asset_name": "ABL001"}]}`
	fenced := "```json\n" + validResponse + "\n```"
	llm := &scriptedClient{responses: []string{invalid, fenced}}
	var slept []time.Duration
	e := testExtractor(llm, &slept)

	assets, err := e.Extract(context.Background(), "Acme Bio", textPage("content"))

	require.NoError(t, err)
	require.Len(t, assets, 1)
	require.Len(t, llm.requests, 2)
	assert.Equal(t, []time.Duration{time.Second}, slept)

	// The retry conversation must carry the invalid answer and the violation.
	retry := llm.requests[1].Messages
	require.Len(t, retry, 3)
	assert.Equal(t, "assistant", retry[1].Role)
	assert.Contains(t, retry[1].Blocks[0].Text, `"asset_name": "ABL001"`)
	assert.Equal(t, "user", retry[2].Role)
	assert.Contains(t, retry[2].Blocks[0].Text, "failed validation")
}

func TestExtract_ExhaustedRetriesYieldEmpty(t *testing.T) {
	llm := &scriptedClient{responses: []string{"not json at all"}}
	var slept []time.Duration
	e := testExtractor(llm, &slept)

	assets, err := e.Extract(context.Background(), "Acme Bio", textPage("content"))

	require.NoError(t, err)
	assert.Empty(t, assets)
	assert.Len(t, llm.requests, 3, "exactly max_retries attempts")
	assert.Equal(t, []time.Duration{time.Second, 3 * time.Second}, slept)
}

func TestExtract_APIErrorAbortsImmediately(t *testing.T) {
	llm := &scriptedClient{
		responses: []string{validResponse},
		errs:      []error{errors.New("rate limited")},
	}
	e := testExtractor(llm, nil)

	assets, err := e.Extract(context.Background(), "Acme Bio", textPage("content"))

	assert.Error(t, err)
	assert.Nil(t, assets)
	assert.Len(t, llm.requests, 1, "API errors are not retried here")
}

func TestExtract_VisionPendingUsesVisionModel(t *testing.T) {
	llm := &scriptedClient{responses: []string{validResponse}}
	e := testExtractor(llm, nil)

	page := model.FetchResult{
		URL:         "https://acme.bio/pipeline",
		Text:        "thin",
		Screenshots: [][]byte{[]byte("tile-1"), []byte("tile-2")},
		Method:      model.FetchVisionPending,
	}
	assets, err := e.Extract(context.Background(), "Acme Bio", page)

	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, model.MethodVision, assets[0].Method)
	require.Len(t, llm.requests, 1)
	assert.Equal(t, "vision-model", llm.requests[0].Model)

	blocks := llm.requests[0].Messages[0].Blocks
	require.Len(t, blocks, 3, "two image tiles plus the prompt")
	assert.Equal(t, "image", blocks[0].Type)
	assert.Equal(t, "image", blocks[1].Type)
	assert.Equal(t, "text", blocks[2].Type)
}

func TestExtract_RenderedThinTextGoesHybrid(t *testing.T) {
	llm := &scriptedClient{responses: []string{validResponse}}
	e := testExtractor(llm, nil)

	page := model.FetchResult{
		URL:         "https://acme.bio/pipeline",
		Text:        "some rendered text under the hybrid threshold",
		Screenshots: [][]byte{[]byte("tile-1")},
		Method:      model.FetchRendered,
	}
	assets, err := e.Extract(context.Background(), "Acme Bio", page)

	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, model.MethodHybrid, assets[0].Method)

	blocks := llm.requests[0].Messages[0].Blocks
	assert.Equal(t, "image", blocks[0].Type)
	assert.Contains(t, blocks[len(blocks)-1].Text, "Page text:")
}

func TestExtract_TextFallsBackToVisionOnZeroAssets(t *testing.T) {
	llm := &scriptedClient{responses: []string{emptyResponse, validResponse}}
	e := testExtractor(llm, nil)

	// Long text keeps selection in text mode, but the tiles enable fallback.
	page := model.FetchResult{
		URL:         "https://acme.bio/pipeline",
		Text:        string(make([]byte, 4000)),
		Screenshots: [][]byte{[]byte("tile-1")},
		Method:      model.FetchRendered,
	}
	assets, err := e.Extract(context.Background(), "Acme Bio", page)

	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, model.MethodVision, assets[0].Method)
	require.Len(t, llm.requests, 2)
	assert.Equal(t, "text-model", llm.requests[0].Model)
	assert.Equal(t, "vision-model", llm.requests[1].Model)
}

func TestExtract_FailedEmptyPageShortCircuits(t *testing.T) {
	llm := &scriptedClient{responses: []string{validResponse}}
	e := testExtractor(llm, nil)

	assets, err := e.Extract(context.Background(), "Acme Bio", model.FetchResult{
		URL:    "https://acme.bio/pipeline",
		Method: model.FetchFailed,
	})

	require.NoError(t, err)
	assert.Empty(t, assets)
	assert.Empty(t, llm.requests)
}

func TestExtract_FailedFetchWithResidualTextSkipsModel(t *testing.T) {
	llm := &scriptedClient{responses: []string{validResponse}}
	e := testExtractor(llm, nil)

	// All tiers exhausted, but the HTTP tier left a thin body behind.
	assets, err := e.Extract(context.Background(), "Acme Bio", model.FetchResult{
		URL:    "https://acme.bio/pipeline",
		Text:   "Loading... please enable JavaScript to view this page.",
		Method: model.FetchFailed,
	})

	require.NoError(t, err)
	assert.Empty(t, assets)
	assert.Empty(t, llm.requests, "a failed fetch must not reach the model")
}
