package bedrock

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowctl/flowctl/pkg/llm"
)

func TestBuildRequestBodySplitsSystemMessage(t *testing.T) {
	body, err := buildRequestBody(Config{MaxTokens: 512}, []llm.Message{
		{Role: "system", Content: "be terse"},
		{Role: "user", Content: "hello"},
	}, nil)
	require.NoError(t, err)

	var req anthropicRequest
	require.NoError(t, json.Unmarshal(body, &req))

	assert.Equal(t, "bedrock-2023-05-31", req.AnthropicVersion)
	assert.Equal(t, 512, req.MaxTokens)
	assert.Equal(t, "be terse", req.System)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "user", req.Messages[0].Role)
	assert.Equal(t, "hello", req.Messages[0].Content)
}

func TestBuildRequestBodyIncludesTools(t *testing.T) {
	body, err := buildRequestBody(Config{MaxTokens: 256}, nil, []llm.ToolSpec{
		{Name: "search", Description: "search the web", Parameters: map[string]any{"type": "object"}},
	})
	require.NoError(t, err)

	var req anthropicRequest
	require.NoError(t, json.Unmarshal(body, &req))

	require.Len(t, req.Tools, 1)
	assert.Equal(t, "search", req.Tools[0].Name)
	assert.Equal(t, "search the web", req.Tools[0].Description)
	assert.Equal(t, "object", req.Tools[0].InputSchema["type"])
}

func TestBuildRequestBodyOmitsEmptySystem(t *testing.T) {
	body, err := buildRequestBody(Config{MaxTokens: 128}, []llm.Message{
		{Role: "user", Content: "hi"},
	}, nil)
	require.NoError(t, err)
	assert.NotContains(t, string(body), `"system"`)
}

func TestBuildRequestBodyEncodesAssistantToolCallsAsToolUseBlocks(t *testing.T) {
	body, err := buildRequestBody(Config{MaxTokens: 256}, []llm.Message{
		{Role: "user", Content: "what's the weather in Rome?"},
		{
			Role:    "assistant",
			Content: "let me check",
			ToolCalls: []llm.ToolCall{
				{ID: "call_1", Name: "get_weather", Arguments: map[string]any{"city": "Rome"}},
			},
		},
	}, nil)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(body, &raw))
	messages := raw["messages"].([]any)
	require.Len(t, messages, 2)

	assistant := messages[1].(map[string]any)
	assert.Equal(t, "assistant", assistant["role"])
	blocks := assistant["content"].([]any)
	require.Len(t, blocks, 2)
	assert.Equal(t, "text", blocks[0].(map[string]any)["type"])
	toolUse := blocks[1].(map[string]any)
	assert.Equal(t, "tool_use", toolUse["type"])
	assert.Equal(t, "call_1", toolUse["id"])
	assert.Equal(t, "get_weather", toolUse["name"])
}

func TestBuildRequestBodyEncodesToolResultAsUserToolResultBlock(t *testing.T) {
	body, err := buildRequestBody(Config{MaxTokens: 256}, []llm.Message{
		{Role: "tool", Content: "72F and sunny", ToolCallID: "call_1"},
	}, nil)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(body, &raw))
	messages := raw["messages"].([]any)
	require.Len(t, messages, 1)

	msg := messages[0].(map[string]any)
	assert.Equal(t, "user", msg["role"], "Anthropic has no tool role; results ride as a user message")
	blocks := msg["content"].([]any)
	require.Len(t, blocks, 1)
	block := blocks[0].(map[string]any)
	assert.Equal(t, "tool_result", block["type"])
	assert.Equal(t, "call_1", block["tool_use_id"])
	assert.Equal(t, "72F and sunny", block["content"])
}

func TestSHA256HexMatchesStandardLibrary(t *testing.T) {
	payload := []byte(`{"hello":"world"}`)
	want := sha256.Sum256(payload)
	assert.Equal(t, hex.EncodeToString(want[:]), sha256Hex(payload))
}

func TestSHA256HexOfEmptyBody(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", sha256Hex(nil))
}
