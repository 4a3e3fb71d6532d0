package workflow

import (
	"context"
	"sync"

	flowerrors "github.com/flowctl/flowctl/pkg/errors"
)

// StepExecutor runs one step type. Implementations are registered with a
// PluginRegistry and dispatched to by WorkflowRunner (spec §6.3).
type StepExecutor interface {
	// SupportedType returns the step.type this executor handles.
	SupportedType() string

	// Validate checks a step's config before the workflow ever starts
	// running, so misconfiguration fails fast at load time.
	Validate(step *Step) error

	// Execute runs the step to completion or until ctx is cancelled. The
	// returned value becomes the step's output, addressable afterward as
	// steps.<id>.output.
	Execute(ctx context.Context, step *Step, wfCtx *WorkflowContext) (any, error)
}

// PluginRegistry maps step types to their StepExecutor.
type PluginRegistry struct {
	mu                     sync.RWMutex
	executors              map[string]StepExecutor
	allowDuplicateStepTypes bool
}

// NewPluginRegistry creates an empty registry. When allowDuplicates is
// false (the default used by WorkflowRunner), registering a second executor
// for an already-registered type is an error.
func NewPluginRegistry(allowDuplicates bool) *PluginRegistry {
	return &PluginRegistry{
		executors:               make(map[string]StepExecutor),
		allowDuplicateStepTypes: allowDuplicates,
	}
}

// Register adds executor, keyed by its SupportedType().
func (r *PluginRegistry) Register(executor StepExecutor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := executor.SupportedType()
	if t == "" {
		return &flowerrors.ValidationError{Field: "type", Message: "executor must declare a supported step type"}
	}
	if _, exists := r.executors[t]; exists && !r.allowDuplicateStepTypes {
		return &flowerrors.ValidationError{
			Field:   "type",
			Message: "an executor is already registered for step type " + t,
		}
	}
	r.executors[t] = executor
	return nil
}

// Lookup returns the executor for stepType, or a NotFoundError.
func (r *PluginRegistry) Lookup(stepType string) (StepExecutor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	executor, ok := r.executors[stepType]
	if !ok {
		return nil, &flowerrors.NotFoundError{Resource: "step executor", ID: stepType}
	}
	return executor, nil
}

// Types returns every registered step type.
func (r *PluginRegistry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.executors))
	for t := range r.executors {
		types = append(types, t)
	}
	return types
}
