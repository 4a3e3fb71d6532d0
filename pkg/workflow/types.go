// Package workflow implements the flowctl workflow execution engine: a
// dependency-ordered, concurrency-bounded runner for steps that are either
// shell-script invocations or LLM-agent invocations.
package workflow

import "time"

// StepOutcome is the terminal classification of a step's execution.
type StepOutcome string

const (
	OutcomeCompleted StepOutcome = "completed"
	OutcomeFailed    StepOutcome = "failed"
	OutcomeSkipped   StepOutcome = "skipped"
)

// RunState is the workflow-level state machine: pending -> running ->
// {completed, failed, cancelled}.
type RunState string

const (
	StatePending   RunState = "pending"
	StateRunning   RunState = "running"
	StateCompleted RunState = "completed"
	StateFailed    RunState = "failed"
	StateCancelled RunState = "cancelled"
)

// StepResult is the terminal record of one step's execution.
type StepResult struct {
	StepID        string
	Outcome       StepOutcome
	Success       bool
	Output        interface{}
	Error         string
	ErrorKind     string
	ExecutionTime time.Duration
	ParallelGroup int
	Attempts      int
	SkipReason    string
}

// WorkflowResult is the terminal record of a full run.
type WorkflowResult struct {
	Success       bool
	StepResults   map[string]*StepResult
	ExecutionTime time.Duration
	Error         string
	Metrics       *MetricsSnapshot
	ParallelStats *ParallelStats
}

// ParallelStats summarizes concurrency utilization observed during a run,
// surfaced on WorkflowResult for observability (spec §3 WorkflowResult).
type ParallelStats struct {
	Groups           int
	MaxObservedActive map[string]int // resource or "__group__" -> peak concurrent steps
}
