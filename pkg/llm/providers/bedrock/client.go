// Package bedrock implements llm.Client against Amazon Bedrock's
// InvokeModel API, signed with AWS SigV4 over a plain http.Client.
package bedrock

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/flowctl/flowctl/pkg/llm"

	flowerrors "github.com/flowctl/flowctl/pkg/errors"
)

// Config configures a Bedrock client.
type Config struct {
	// Region is the AWS region hosting the Bedrock endpoint (required).
	Region string
	// ModelID is the Bedrock model identifier, e.g.
	// "anthropic.claude-3-5-sonnet-20241022-v2:0".
	ModelID string
	// MaxTokens bounds the model's response when a step doesn't set one.
	MaxTokens int
	// Timeout bounds a single InvokeModel call.
	Timeout time.Duration
}

// Client calls Bedrock's Anthropic-compatible InvokeModel endpoint,
// signing every request with the ambient AWS credential chain.
type Client struct {
	cfg        Config
	httpClient *http.Client
	awsCfg     aws.Config
	signer     *v4.Signer
}

// New builds a Client and validates the resolved AWS credentials via
// sts.GetCallerIdentity, so a misconfigured provider fails at startup
// instead of on the first agent step that uses it.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Region == "" {
		return nil, &flowerrors.ConfigError{Key: "region", Reason: "bedrock provider requires a region"}
	}
	if cfg.ModelID == "" {
		return nil, &flowerrors.ConfigError{Key: "model_id", Reason: "bedrock provider requires a model id"}
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}

	loadCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	awsCfg, err := config.LoadDefaultConfig(loadCtx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, &flowerrors.ConfigError{Key: "aws_credentials", Reason: "failed to load AWS configuration", Cause: err}
	}

	stsClient := sts.NewFromConfig(awsCfg)
	identCtx, cancelIdent := context.WithTimeout(loadCtx, 5*time.Second)
	defer cancelIdent()
	if _, err := stsClient.GetCallerIdentity(identCtx, &sts.GetCallerIdentityInput{}); err != nil {
		return nil, &flowerrors.ConfigError{Key: "aws_credentials", Reason: "credential validation failed", Cause: err}
	}

	return &Client{
		cfg:    cfg,
		awsCfg: awsCfg,
		signer: v4.NewSigner(),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}, nil
}

// anthropicRequest is Bedrock's Anthropic Messages request envelope.
type anthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	System           string             `json:"system,omitempty"`
	Messages         []anthropicMessage `json:"messages"`
	Tools            []anthropicTool    `json:"tools,omitempty"`
}

// anthropicMessage mirrors Bedrock's Anthropic Messages wire format, where
// Content is either a plain string or an array of typed content blocks
// (text, tool_use, tool_result) once tool calls enter the conversation.
type anthropicMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type anthropicContentBlock struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Input     any    `json:"input,omitempty"`
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicResponse struct {
	Content []struct {
		Type  string `json:"type"`
		Text  string `json:"text"`
		ID    string `json:"id"`
		Name  string `json:"name"`
		Input any    `json:"input"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Complete implements llm.Client by signing and sending one InvokeModel
// request. Bedrock-side throttling/5xx responses surface as an
// ExecutorError so WorkflowRunner's retry policy can classify and retry
// them; Complete itself makes no retry attempt.
func (c *Client) Complete(ctx context.Context, messages []llm.Message, toolSpecs []llm.ToolSpec) (*llm.Response, error) {
	body, err := buildRequestBody(c.cfg, messages, toolSpecs)
	if err != nil {
		return nil, flowerrors.Wrap(err, "building bedrock request")
	}

	endpoint := fmt.Sprintf("https://bedrock-runtime.%s.amazonaws.com/model/%s/invoke", c.cfg.Region, c.cfg.ModelID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, flowerrors.Wrap(err, "building bedrock http request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	creds, err := c.awsCfg.Credentials.Retrieve(ctx)
	if err != nil {
		return nil, &flowerrors.ExecutorError{Type: "agent", Message: "failed to resolve AWS credentials", Cause: err}
	}

	payloadHash := sha256Hex(body)
	httpReq.Header.Set("X-Amz-Content-Sha256", payloadHash)
	if err := c.signer.SignHTTP(ctx, creds, httpReq, payloadHash, "bedrock", c.cfg.Region, time.Now()); err != nil {
		return nil, &flowerrors.ExecutorError{Type: "agent", Message: "failed to sign bedrock request", Cause: err}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &flowerrors.ExecutorError{Type: "agent", Message: "bedrock request failed", Cause: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &flowerrors.ExecutorError{Type: "agent", Message: "failed to read bedrock response", Cause: err}
	}

	if resp.StatusCode >= 400 {
		return nil, &flowerrors.ExecutorError{
			Type:    "agent",
			Message: fmt.Sprintf("bedrock returned %d: %s", resp.StatusCode, string(respBody)),
		}
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, flowerrors.Wrap(err, "parsing bedrock response")
	}

	out := &llm.Response{
		FinishReason: parsed.StopReason,
		Usage: llm.TokenUsage{
			InputTokens:  parsed.Usage.InputTokens,
			OutputTokens: parsed.Usage.OutputTokens,
			TotalTokens:  parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
		},
	}
	for _, block := range parsed.Content {
		switch block.Type {
		case "text":
			out.Content += block.Text
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, llm.ToolCall{ID: block.ID, Name: block.Name, Arguments: block.Input})
		}
	}
	return out, nil
}

func buildRequestBody(cfg Config, messages []llm.Message, toolSpecs []llm.ToolSpec) ([]byte, error) {
	req := anthropicRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        cfg.MaxTokens,
	}
	for _, m := range messages {
		switch {
		case m.Role == "system":
			req.System = m.Content
		case m.Role == "assistant" && len(m.ToolCalls) > 0:
			var blocks []anthropicContentBlock
			if m.Content != "" {
				blocks = append(blocks, anthropicContentBlock{Type: "text", Text: m.Content})
			}
			for _, call := range m.ToolCalls {
				blocks = append(blocks, anthropicContentBlock{
					Type:  "tool_use",
					ID:    call.ID,
					Name:  call.Name,
					Input: call.Arguments,
				})
			}
			req.Messages = append(req.Messages, anthropicMessage{Role: "assistant", Content: blocks})
		case m.Role == "tool":
			// Anthropic has no "tool" role: a tool result is a user message
			// carrying a tool_result block keyed by the originating tool_use id.
			req.Messages = append(req.Messages, anthropicMessage{
				Role: "user",
				Content: []anthropicContentBlock{
					{Type: "tool_result", ToolUseID: m.ToolCallID, Content: m.Content},
				},
			})
		default:
			req.Messages = append(req.Messages, anthropicMessage{Role: m.Role, Content: m.Content})
		}
	}
	for _, t := range toolSpecs {
		req.Tools = append(req.Tools, anthropicTool{Name: t.Name, Description: t.Description, InputSchema: t.Parameters})
	}
	return json.Marshal(req)
}

func sha256Hex(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
