package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTextMessage(t *testing.T) {
	m := TextMessage("extract the pipeline")
	assert.Equal(t, "user", m.Role)
	assert.Len(t, m.Blocks, 1)
	assert.Equal(t, "text", m.Blocks[0].Type)
	assert.Equal(t, "extract the pipeline", m.Blocks[0].Text)
}

func TestImageBlock(t *testing.T) {
	b := ImageBlock("image/png", "aGVsbG8=")
	assert.Equal(t, "image", b.Type)
	assert.Equal(t, "image/png", b.MediaType)
	assert.Equal(t, "aGVsbG8=", b.Data)
}

func TestResponseText(t *testing.T) {
	resp := MessageResponse{
		Content: []ContentBlock{
			{Type: "text", Text: `{"assets":`},
			{Type: "tool_use"},
			{Type: "text", Text: `[]}`},
		},
	}
	assert.Equal(t, `{"assets":[]}`, resp.Text())
}

func TestEstimateCost(t *testing.T) {
	usage := TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000}

	assert.InDelta(t, 18.0, usage.EstimateCost("claude-sonnet-4-5-20250929"), 0.001)
	assert.Zero(t, usage.EstimateCost("some-unknown-model"))
}

func TestToSDKMessages_RoleMapping(t *testing.T) {
	msgs := toSDKMessages([]Message{
		TextMessage("hello"),
		{Role: "assistant", Blocks: []ContentBlockParam{TextBlock("hi")}},
	})
	assert.Len(t, msgs, 2)
	assert.Equal(t, "user", string(msgs[0].Role))
	assert.Equal(t, "assistant", string(msgs[1].Role))
}
