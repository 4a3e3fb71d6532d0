package workflow

import (
	"fmt"
	"regexp"

	flowerrors "github.com/flowctl/flowctl/pkg/errors"
)

var stepIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Definition is a declarative, directed-acyclic description of a workflow:
// an ordered sequence of Steps plus workflow-level defaults. Definitions are
// loaded from YAML or JSON (see loader.go) or produced by TemplateResolver.
type Definition struct {
	Name        string            `yaml:"name" json:"name"`
	Version     string            `yaml:"version,omitempty" json:"version,omitempty"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	Timeout     int               `yaml:"timeout,omitempty" json:"timeout,omitempty"` // ms
	Env         map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	Steps       []Step            `yaml:"steps" json:"steps"`
	Parallel    *ParallelConfig   `yaml:"parallel,omitempty" json:"parallel,omitempty"`
	Metadata    map[string]any    `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// Step is one executable unit of a Definition.
type Step struct {
	ID              string                 `yaml:"id" json:"id"`
	Name            string                 `yaml:"name,omitempty" json:"name,omitempty"`
	Type            string                 `yaml:"type" json:"type"`
	Config          map[string]any         `yaml:"config,omitempty" json:"config,omitempty"`
	DependsOn       []string               `yaml:"dependsOn,omitempty" json:"dependsOn,omitempty"`
	Condition       *ConditionExpression   `yaml:"condition,omitempty" json:"condition,omitempty"`
	ContinueOnError *bool                  `yaml:"continueOnError,omitempty" json:"continueOnError,omitempty"`
	Parallel        *StepParallelConfig    `yaml:"parallel,omitempty" json:"parallel,omitempty"`
	Timeout         int                    `yaml:"timeout,omitempty" json:"timeout,omitempty"` // ms
	Retry           *RetryPolicy           `yaml:"retry,omitempty" json:"retry,omitempty"`
}

// ParallelConfig is the workflow-level parallel execution configuration.
type ParallelConfig struct {
	Enabled               *bool          `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	DefaultMaxConcurrency int            `yaml:"defaultMaxConcurrency,omitempty" json:"defaultMaxConcurrency,omitempty"`
	Resources             map[string]int `yaml:"resources,omitempty" json:"resources,omitempty"`
}

// StepParallelConfig is the step-level parallel execution hint.
type StepParallelConfig struct {
	Enabled         *bool  `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	MaxConcurrency  int    `yaml:"maxConcurrency,omitempty" json:"maxConcurrency,omitempty"`
	Resource        string `yaml:"resource,omitempty" json:"resource,omitempty"`
	IsolateErrors   bool   `yaml:"isolateErrors,omitempty" json:"isolateErrors,omitempty"`
}

// RetryPolicy configures RetryManager behavior for one step (spec §4.8).
type RetryPolicy struct {
	MaxAttempts       int      `yaml:"maxAttempts,omitempty" json:"maxAttempts,omitempty"`
	InitialDelayMs    int      `yaml:"initialDelayMs,omitempty" json:"initialDelayMs,omitempty"`
	BackoffMultiplier float64  `yaml:"backoffMultiplier,omitempty" json:"backoffMultiplier,omitempty"`
	MaxDelayMs        int      `yaml:"maxDelayMs,omitempty" json:"maxDelayMs,omitempty"`
	RetryOn           []string `yaml:"retryOn,omitempty" json:"retryOn,omitempty"`
}

// DefaultParallelConcurrency matches spec §3's workflow-level default.
const DefaultParallelConcurrency = 4

// defaultMaxConcurrency returns the workflow's effective default, falling
// back to DefaultParallelConcurrency when unset.
func (d *Definition) defaultMaxConcurrency() int {
	if d.Parallel != nil && d.Parallel.DefaultMaxConcurrency > 0 {
		return d.Parallel.DefaultMaxConcurrency
	}
	return DefaultParallelConcurrency
}

// resourceCapacity looks up a named resource pool's capacity. Unmapped
// resource names pass through with unlimited capacity (spec §5, lenient
// default) signalled here by returning ok=false.
func (d *Definition) resourceCapacity(name string) (int, bool) {
	if d.Parallel == nil || d.Parallel.Resources == nil {
		return 0, false
	}
	cap, ok := d.Parallel.Resources[name]
	return cap, ok
}

// stepByID returns the step with the given id, or nil.
func (d *Definition) stepByID(id string) *Step {
	for i := range d.Steps {
		if d.Steps[i].ID == id {
			return &d.Steps[i]
		}
	}
	return nil
}

// Validate checks the structural invariants from spec §3: unique ids,
// dependsOn referencing ids within the workflow, and well-formed condition
// expressions. It does not check for cycles -- that's DependencyResolver's
// job, since a cycle is a property of the whole graph, not one step.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return &flowerrors.ValidationError{Field: "name", Message: "workflow name is required"}
	}

	seen := make(map[string]bool, len(d.Steps))
	for i := range d.Steps {
		s := &d.Steps[i]
		if s.ID == "" {
			return &flowerrors.ValidationError{Field: fmt.Sprintf("steps[%d].id", i), Message: "step id is required"}
		}
		if !stepIDPattern.MatchString(s.ID) {
			return &flowerrors.ValidationError{
				Field:      fmt.Sprintf("steps[%d].id", i),
				Message:    fmt.Sprintf("step id %q must match [A-Za-z0-9_-]+", s.ID),
				Suggestion: "use only letters, digits, underscore, and hyphen in step ids",
			}
		}
		if seen[s.ID] {
			return &flowerrors.ValidationError{
				Field:   "steps",
				Message: fmt.Sprintf("duplicate step id %q", s.ID),
			}
		}
		seen[s.ID] = true
		if s.Type == "" {
			return &flowerrors.ValidationError{Field: fmt.Sprintf("steps[%s].type", s.ID), Message: "step type is required"}
		}
	}

	for i := range d.Steps {
		s := &d.Steps[i]
		for _, dep := range s.DependsOn {
			if !seen[dep] {
				return &flowerrors.ValidationError{
					Field:   fmt.Sprintf("steps[%s].dependsOn", s.ID),
					Message: fmt.Sprintf("depends on unknown step id %q", dep),
				}
			}
		}
		if s.Condition != nil {
			if err := s.Condition.validateStructure(); err != nil {
				return flowerrors.Wrapf(err, "steps[%s].condition", s.ID)
			}
		}
	}

	if d.Parallel != nil {
		for name, capacity := range d.Parallel.Resources {
			if capacity <= 0 {
				return &flowerrors.ValidationError{
					Field:   fmt.Sprintf("parallel.resources[%s]", name),
					Message: fmt.Sprintf("resource %q declares capacity %d, which would block every step claiming it forever", name, capacity),
				}
			}
		}
	}

	return nil
}

// continueOnError resolves the step's effective continueOnError, applying
// spec §9 Open Question (a): per-step wins, workflow-level is the fallback.
func (s *Step) continueOnError(workflowDefault bool) bool {
	if s.ContinueOnError != nil {
		return *s.ContinueOnError
	}
	return workflowDefault
}

// parallelEnabled reports whether this step opted into running inside a
// concurrency group at all (it may still be grouped per §4.1/§9 Open
// Question (b), but admitted with maxConcurrency=1 if this is false).
func (s *Step) parallelEnabled() bool {
	if s.Parallel == nil || s.Parallel.Enabled == nil {
		return true
	}
	return *s.Parallel.Enabled
}
