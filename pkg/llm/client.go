// Package llm defines the provider-agnostic interface agent steps use to
// talk to a language model, plus a registry for selecting a client by task.
package llm

import (
	"context"

	flowerrors "github.com/flowctl/flowctl/pkg/errors"
)

// Message is one turn in an agent conversation.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments any    `json:"arguments"`
}

// ToolSpec describes one tool made available to the model for this call.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema
}

// TokenUsage tracks token consumption for one Complete call.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Response is a synchronous completion result.
type Response struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        TokenUsage
}

// Client is the interface an agent step drives. Provider packages
// (anthropic, bedrock, ...) implement it.
type Client interface {
	Complete(ctx context.Context, messages []Message, tools []ToolSpec) (*Response, error)
}

// ClientRegistry maps a name (provider, or a task label) to a Client.
type ClientRegistry struct {
	clients map[string]Client
	defaultName string
}

// NewClientRegistry creates an empty registry.
func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{clients: make(map[string]Client)}
}

// Register adds a client under name. The first registered client becomes
// the default.
func (r *ClientRegistry) Register(name string, client Client) {
	if r.clients == nil {
		r.clients = make(map[string]Client)
	}
	if len(r.clients) == 0 {
		r.defaultName = name
	}
	r.clients[name] = client
}

// SetDefault overrides which registered client backs empty-string lookups.
func (r *ClientRegistry) SetDefault(name string) { r.defaultName = name }

// Get returns the client registered under name, or the default client when
// name is empty.
func (r *ClientRegistry) Get(name string) (Client, error) {
	if name == "" {
		name = r.defaultName
	}
	client, ok := r.clients[name]
	if !ok {
		return nil, &flowerrors.NotFoundError{Resource: "llm client", ID: name}
	}
	return client, nil
}

// TaskClientSelector resolves which registered client an agent step should
// use: an explicit step.config.model wins, falling back to the registry
// default (spec §6.5).
type TaskClientSelector struct {
	registry *ClientRegistry
}

// NewTaskClientSelector creates a selector bound to registry.
func NewTaskClientSelector(registry *ClientRegistry) *TaskClientSelector {
	return &TaskClientSelector{registry: registry}
}

// Select returns the client for a step's declared model, if any.
func (s *TaskClientSelector) Select(model string) (Client, error) {
	return s.registry.Get(model)
}

// RateLimitedClient wraps a Client with a call-rate limiter, used for
// providers billed or throttled per request (spec §6.5 ambient concern).
type RateLimitedClient struct {
	inner   Client
	limiter interface {
		Wait(ctx context.Context) error
	}
}

// NewRateLimitedClient wraps inner with limiter.
func NewRateLimitedClient(inner Client, limiter interface {
	Wait(ctx context.Context) error
}) *RateLimitedClient {
	return &RateLimitedClient{inner: inner, limiter: limiter}
}

func (c *RateLimitedClient) Complete(ctx context.Context, messages []Message, tools []ToolSpec) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, flowerrors.Wrap(err, "rate limit wait")
		}
	}
	return c.inner.Complete(ctx, messages, tools)
}
