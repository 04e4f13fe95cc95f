package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewExtractedAsset(t *testing.T) {
	t.Parallel()

	c := CandidateAsset{
		AssetName:  "ABL-001",
		Phase:      "Phase 2",
		Indication: "NSCLC",
	}
	a := NewExtractedAsset(c, "Acme Bio", "https://acmebio.com/pipeline", MethodText)

	assert.Equal(t, "ABL-001", a.AssetName)
	assert.Equal(t, "Acme Bio", a.Company)
	assert.Equal(t, []string{"https://acmebio.com/pipeline"}, a.SourceURLs)
	assert.Equal(t, MethodText, a.Method)
}

func TestRunStatusValues(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "queued", string(RunStatusQueued))
	assert.Equal(t, "complete", string(RunStatusComplete))
	assert.Equal(t, "failed", string(RunStatusFailed))
}

func TestFetchResultScreenshot(t *testing.T) {
	t.Parallel()

	empty := &FetchResult{Method: FetchHTTP}
	assert.Nil(t, empty.Screenshot())
	assert.False(t, empty.Failed())

	tiled := &FetchResult{
		Method:      FetchVisionPending,
		Screenshots: [][]byte{{0x89, 0x50}, {0x89, 0x51}},
	}
	assert.Equal(t, []byte{0x89, 0x50}, tiled.Screenshot())

	failed := &FetchResult{Method: FetchFailed}
	assert.True(t, failed.Failed())
}
