package workflow

import (
	"context"
	"fmt"

	"github.com/flowctl/flowctl/pkg/llm"
	"github.com/flowctl/flowctl/pkg/tools"

	flowerrors "github.com/flowctl/flowctl/pkg/errors"
)

// DefaultMaxAgentRounds bounds an agent step's LLM/tool-use loop (spec
// §4.5/§6.5) when the step doesn't declare its own maxRounds.
const DefaultMaxAgentRounds = 10

// AgentExecutor runs an `agent` step: a multi-round conversation with an
// LLM client, optionally calling tools from a Registry between rounds,
// until the model stops requesting tools or maxRounds is reached.
type AgentExecutor struct {
	selector *llm.TaskClientSelector
	tools    *tools.Registry
}

// NewAgentExecutor creates an executor that resolves clients through
// selector and offers every tool in registry to the model.
func NewAgentExecutor(selector *llm.TaskClientSelector, registry *tools.Registry) *AgentExecutor {
	return &AgentExecutor{selector: selector, tools: registry}
}

func (e *AgentExecutor) SupportedType() string { return "agent" }

// agentConfig is the validated shape of step.config for an agent step.
type agentConfig struct {
	Model        string
	SystemPrompt string
	Prompt       string
	MaxRounds    int
	ToolNames    []string
}

func parseAgentConfig(step *Step) (*agentConfig, error) {
	raw := step.Config
	prompt, _ := raw["prompt"].(string)
	if prompt == "" {
		return nil, &flowerrors.ValidationError{
			Field:   fmt.Sprintf("steps[%s].config.prompt", step.ID),
			Message: "agent step requires a non-empty prompt",
		}
	}

	cfg := &agentConfig{Prompt: prompt, MaxRounds: DefaultMaxAgentRounds}
	if model, ok := raw["model"].(string); ok {
		cfg.Model = model
	}
	if sys, ok := raw["systemPrompt"].(string); ok {
		cfg.SystemPrompt = sys
	}
	if rounds, ok := raw["maxRounds"].(int); ok && rounds > 0 {
		cfg.MaxRounds = rounds
	} else if roundsF, ok := raw["maxRounds"].(float64); ok && roundsF > 0 {
		cfg.MaxRounds = int(roundsF)
	}
	if rawTools, ok := raw["tools"].([]any); ok {
		for _, t := range rawTools {
			if s, ok := t.(string); ok {
				cfg.ToolNames = append(cfg.ToolNames, s)
			}
		}
	}
	return cfg, nil
}

func (e *AgentExecutor) Validate(step *Step) error {
	_, err := parseAgentConfig(step)
	return err
}

// AgentOutput is the output recorded for a completed agent step.
type AgentOutput struct {
	FinalResponse string             `json:"finalResponse"`
	Rounds        int                `json:"rounds"`
	ToolCalls     []AgentToolCall    `json:"toolCalls"`
	Usage         llm.TokenUsage     `json:"usage"`
}

// AgentToolCall records one tool invocation made during the agent loop.
type AgentToolCall struct {
	Round   int    `json:"round"`
	Tool    string `json:"tool"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func (e *AgentExecutor) Execute(ctx context.Context, step *Step, wfCtx *WorkflowContext) (any, error) {
	cfg, err := parseAgentConfig(step)
	if err != nil {
		return nil, err
	}

	interp := NewInterpolator()
	resolvedPrompt, err := interp.Resolve(cfg.Prompt, wfCtx)
	if err != nil {
		return nil, flowerrors.Wrap(err, "resolving prompt")
	}
	prompt := fmt.Sprintf("%v", resolvedPrompt)

	client, err := e.selector.Select(cfg.Model)
	if err != nil {
		return nil, flowerrors.Wrap(err, "selecting llm client")
	}

	registry := e.tools
	if len(cfg.ToolNames) > 0 && e.tools != nil {
		filtered, err := e.tools.Filter(cfg.ToolNames)
		if err != nil {
			return nil, err
		}
		registry = filtered
	}

	var toolSpecs []llm.ToolSpec
	if registry != nil {
		for _, name := range registry.List() {
			tool, err := registry.Get(name)
			if err != nil {
				continue
			}
			schema := tool.Schema()
			params := map[string]any{"type": schema.Type, "required": schema.Required}
			props := make(map[string]any, len(schema.Properties))
			for pname, prop := range schema.Properties {
				props[pname] = map[string]any{"type": prop.Type, "description": prop.Description}
			}
			params["properties"] = props
			toolSpecs = append(toolSpecs, llm.ToolSpec{Name: tool.Name(), Description: tool.Description(), Parameters: params})
		}
	}

	messages := []llm.Message{}
	if cfg.SystemPrompt != "" {
		messages = append(messages, llm.Message{Role: "system", Content: cfg.SystemPrompt})
	}
	messages = append(messages, llm.Message{Role: "user", Content: prompt})

	output := &AgentOutput{}

	for round := 1; round <= cfg.MaxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return output, &flowerrors.CancelledError{Reason: "workflow cancelled"}
		}

		resp, err := client.Complete(ctx, messages, toolSpecs)
		if err != nil {
			return output, &flowerrors.ExecutorError{StepID: step.ID, Type: "agent", Message: "llm call failed", Cause: err}
		}

		output.Rounds = round
		output.Usage.InputTokens += resp.Usage.InputTokens
		output.Usage.OutputTokens += resp.Usage.OutputTokens
		output.Usage.TotalTokens += resp.Usage.TotalTokens

		messages = append(messages, llm.Message{Role: "assistant", Content: resp.Content, ToolCalls: resp.ToolCalls})

		wfCtx.Log(fmt.Sprintf("agent round %d: %d tool call(s)", round, len(resp.ToolCalls)), LogDebug, step.ID)

		if len(resp.ToolCalls) == 0 {
			output.FinalResponse = resp.Content
			return output, nil
		}

		if registry == nil {
			return output, &flowerrors.ExecutorError{StepID: step.ID, Type: "agent", Message: "model requested tools but no tool registry is configured"}
		}

		for _, call := range resp.ToolCalls {
			inputs, _ := call.Arguments.(map[string]any)
			result, err := registry.Execute(ctx, call.Name, inputs)
			record := AgentToolCall{Round: round, Tool: call.Name, Success: err == nil}
			content := ""
			if err != nil {
				record.Error = err.Error()
				content = fmt.Sprintf("error: %v", err)
			} else {
				content = fmt.Sprintf("%v", result)
			}
			output.ToolCalls = append(output.ToolCalls, record)
			messages = append(messages, llm.Message{Role: "tool", Content: content, ToolCallID: call.ID})
		}
	}

	return output, &flowerrors.ExecutorError{
		StepID:  step.ID,
		Type:    "agent",
		Message: fmt.Sprintf("max rounds (%d) reached without completion", cfg.MaxRounds),
	}
}
