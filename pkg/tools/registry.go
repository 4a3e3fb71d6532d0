// Package tools provides the registry of callable tools an agent step can
// offer to its LLM: the search tools in this package, plus whatever a
// workflow author registers for their own domain.
package tools

import (
	"context"
	"fmt"
	"sync"

	flowerrors "github.com/flowctl/flowctl/pkg/errors"
)

// Tool is an executable function offered to an LLM during an agent step.
type Tool interface {
	Name() string
	Description() string
	Schema() *Schema
	Execute(ctx context.Context, inputs map[string]any) (map[string]any, error)
}

// Schema is the JSON-Schema-shaped description of a tool's inputs.
type Schema struct {
	Type       string               `json:"type"`
	Properties map[string]*Property `json:"properties,omitempty"`
	Required   []string             `json:"required,omitempty"`
}

// Property describes one input field.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Registry holds the tools available to agent steps.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds tool, keyed by its Name().
func (r *Registry) Register(tool Tool) error {
	if tool == nil || tool.Name() == "" {
		return fmt.Errorf("tool must be non-nil with a non-empty name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name()]; exists {
		return fmt.Errorf("tool already registered: %s", tool.Name())
	}
	r.tools[tool.Name()] = tool
	return nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	if !ok {
		return nil, &flowerrors.NotFoundError{Resource: "tool", ID: name}
	}
	return tool, nil
}

// List returns every registered tool's name.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Execute runs the named tool with inputs.
func (r *Registry) Execute(ctx context.Context, name string, inputs map[string]any) (map[string]any, error) {
	tool, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	outputs, err := tool.Execute(ctx, inputs)
	if err != nil {
		return nil, &flowerrors.ExecutorError{Type: "tool", Message: err.Error(), Cause: err}
	}
	return outputs, nil
}

// Filter returns a new registry containing only the named tools. It fails on
// the first name that is not registered. The new registry keeps no order, so
// its List does not follow the order of names.
func (r *Registry) Filter(names []string) (*Registry, error) {
	filtered := NewRegistry()
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range names {
		tool, ok := r.tools[name]
		if !ok {
			return nil, &flowerrors.ValidationError{Field: "tools", Message: fmt.Sprintf("unknown tool: %s", name)}
		}
		filtered.tools[name] = tool
	}
	return filtered, nil
}
