// Package engine builds the PluginRegistry and LLM client registry a CLI
// command needs to actually run a workflow, wiring them from
// internal/config.Config the way main would otherwise have to inline.
package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/flowctl/flowctl/internal/config"
	"github.com/flowctl/flowctl/pkg/llm"
	"github.com/flowctl/flowctl/pkg/llm/providers/bedrock"
	"github.com/flowctl/flowctl/pkg/tools"
	"github.com/flowctl/flowctl/pkg/workflow"
)

// BuildRegistry registers the script and agent executors flowctl ships
// with. workspaceRoot bounds the glob/grep tools offered to agent steps.
func BuildRegistry(ctx context.Context, cfg *config.Config, workspaceRoot string) (*workflow.PluginRegistry, error) {
	registry := workflow.NewPluginRegistry(false)

	if err := registry.Register(workflow.NewScriptExecutor()); err != nil {
		return nil, err
	}

	clients, err := buildClientRegistry(ctx, cfg)
	if err != nil {
		return nil, err
	}
	toolRegistry := buildToolRegistry(workspaceRoot)
	selector := llm.NewTaskClientSelector(clients)
	if err := registry.Register(workflow.NewAgentExecutor(selector, toolRegistry)); err != nil {
		return nil, err
	}

	return registry, nil
}

func buildToolRegistry(workspaceRoot string) *tools.Registry {
	registry := tools.NewRegistry()
	// Registration failures here would only come from a duplicate name,
	// which can't happen with this fixed, hardcoded set.
	_ = registry.Register(tools.NewGlobTool(workspaceRoot))
	_ = registry.Register(tools.NewGrepTool(workspaceRoot))
	return registry
}

func buildClientRegistry(ctx context.Context, cfg *config.Config) (*llm.ClientRegistry, error) {
	clients := llm.NewClientRegistry()
	for name, p := range cfg.Providers {
		client, err := buildClient(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", name, err)
		}
		clients.Register(name, client)
	}
	for tier, target := range cfg.Tiers {
		// target is "provider/model"; the registry only keys by provider
		// name today, so a tier alias just points at that provider's client.
		providerName, _, _ := strings.Cut(target, "/")
		if c, err := clients.Get(providerName); err == nil {
			clients.Register(tier, c)
		}
	}
	return clients, nil
}

func buildClient(ctx context.Context, p config.ProviderConfig) (llm.Client, error) {
	switch p.Type {
	case "bedrock":
		return bedrock.New(ctx, bedrock.Config{Region: p.Region, ModelID: p.Model})
	default:
		return nil, fmt.Errorf("unknown provider type %q", p.Type)
	}
}
