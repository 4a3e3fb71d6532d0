package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/flowctl/flowctl/internal/tracing"

	flowerrors "github.com/flowctl/flowctl/pkg/errors"
)

var tracer = otel.Tracer("github.com/flowctl/flowctl/pkg/workflow")

// Progress reports how far a run has advanced.
type Progress struct {
	CurrentGroup int
	TotalGroups  int
	Completed    int
	Total        int
}

// WorkflowRunner drives one Definition through dependency-ordered,
// concurrency-bounded execution: resolving groups, admitting steps,
// evaluating conditions, retrying failures, and recording the terminal
// WorkflowResult (spec §4.7, §6.2).
type WorkflowRunner struct {
	def      *Definition
	registry *PluginRegistry
	metrics  *MetricsCollector
	retry    *RetryManager
	monitor  *ExecutionMonitor

	mu         sync.RWMutex
	state      RunState
	wfCtx      *WorkflowContext
	progress   Progress
	cancel     context.CancelFunc
	cancelOnce sync.Once
	stopped    chan struct{}
	cancelReason string
}

// NewWorkflowRunner creates a runner for def using the given executor
// registry. workflowID identifies the run for logging, metrics, and
// steps.*/workflow.id interpolation.
func NewWorkflowRunner(workflowID string, def *Definition, registry *PluginRegistry) (*WorkflowRunner, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	metrics, err := NewMetricsCollector(nil, workflowID)
	if err != nil {
		return nil, flowerrors.Wrap(err, "creating metrics collector")
	}

	return &WorkflowRunner{
		def:      def,
		registry: registry,
		metrics:  metrics,
		retry:    NewRetryManager(),
		monitor:  NewExecutionMonitor(),
		state:    StatePending,
		wfCtx:    NewWorkflowContext(workflowID, def.Env),
		stopped:  make(chan struct{}),
	}, nil
}

// Context returns the run's WorkflowContext.
func (r *WorkflowRunner) Context() *WorkflowContext { return r.wfCtx }

// Status returns the runner's current state.
func (r *WorkflowRunner) Status() RunState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Progress returns a snapshot of run progress.
func (r *WorkflowRunner) Progress() Progress {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.progress
}

// Metrics returns the collector backing this run.
func (r *WorkflowRunner) Metrics() *MetricsCollector { return r.metrics }

// Monitor returns the execution monitor backing this run.
func (r *WorkflowRunner) Monitor() *ExecutionMonitor { return r.monitor }

// Cancel requests cooperative cancellation of the run with reason. Safe to
// call multiple times and from any goroutine.
func (r *WorkflowRunner) Cancel(reason string) {
	r.mu.Lock()
	r.cancelReason = reason
	cancel := r.cancel
	r.mu.Unlock()

	r.cancelOnce.Do(func() {
		if cancel != nil {
			cancel()
		}
	})
}

func (r *WorkflowRunner) setState(s RunState) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// Execute runs the workflow to completion, returning its terminal result.
// Execute itself never returns an error for a failed workflow -- failure is
// reported via WorkflowResult.Success/Error; Execute's error return is
// reserved for setup problems (e.g. an un-resolvable dependency graph).
func (r *WorkflowRunner) Execute(ctx context.Context) (*WorkflowResult, error) {
	runCtx, cancel := context.WithCancel(ctx)
	if r.def.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, time.Duration(r.def.Timeout)*time.Millisecond)
	}
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
	defer cancel()
	defer close(r.stopped)

	resolver := NewDependencyResolver(r.def)
	groups, err := resolver.ParallelGroups()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.progress.TotalGroups = len(groups)
	r.progress.Total = len(r.def.Steps)
	r.mu.Unlock()

	r.setState(StateRunning)
	r.metrics.StartSampling(runCtx)
	defer r.metrics.Stop()
	r.monitor.Emit(Event{Type: EventRunStarted, WorkflowID: r.wfCtx.workflowID})

	runCtx, runSpan := tracing.StartRun(runCtx, tracer, r.wfCtx.workflowID, r.def.Name)
	defer runSpan.End()

	start := time.Now()
	interp := NewInterpolator()
	conditionEval := NewConditionEvaluator(interp)
	parallelExec := NewParallelExecutor(r.def)

	allResults := make(map[string]*StepResult, len(r.def.Steps))
	workflowDefault := r.def.Parallel != nil && r.def.Parallel.Enabled != nil && *r.def.Parallel.Enabled
	failed := make(map[string]bool)
	terminated := false

	var runErr error

groupLoop:
	for _, g := range groups {
		r.mu.Lock()
		r.progress.CurrentGroup = g.Index
		r.mu.Unlock()

		if runCtx.Err() != nil {
			runErr = classifyContextErr(runCtx)
			break groupLoop
		}

		if terminated {
			for _, id := range g.Steps {
				r.metrics.RecordStepSkip(id)
				r.monitor.Emit(Event{Type: EventStepSkipped, WorkflowID: r.wfCtx.workflowID, StepID: id, Data: map[string]any{"reason": "Skipped due to previous failure"}})
				allResults[id] = &StepResult{StepID: id, Outcome: OutcomeSkipped, SkipReason: "Skipped due to previous failure"}
				r.mu.Lock()
				r.progress.Completed++
				r.mu.Unlock()
			}
			continue groupLoop
		}

		baseSkip := func(stepID string) (bool, string) {
			step := r.def.stepByID(stepID)
			if step == nil {
				return true, "step not found"
			}
			for _, dep := range step.DependsOn {
				if failed[dep] {
					return true, fmt.Sprintf("dependency %q failed", dep)
				}
			}
			if step.Condition != nil {
				result := conditionEval.Evaluate(step.Condition, r.wfCtx)
				if !result.Result {
					return true, "condition evaluated to false"
				}
			}
			return false, ""
		}

		skip := func(stepID string) (bool, string) {
			skipped, reason := baseSkip(stepID)
			if skipped {
				r.metrics.RecordStepSkip(stepID)
				r.monitor.Emit(Event{Type: EventStepSkipped, WorkflowID: r.wfCtx.workflowID, StepID: stepID, Data: map[string]any{"reason": reason}})
			}
			return skipped, reason
		}

		run := func(ctx context.Context, stepID string) *StepResult {
			return r.runStep(ctx, stepID, g.Index)
		}

		groupResults, err := parallelExec.RunGroup(runCtx, g, skip, run)
		if err != nil {
			runErr = err
			break groupLoop
		}

		for id, res := range groupResults {
			allResults[id] = res
			r.mu.Lock()
			r.progress.Completed++
			r.mu.Unlock()
			if res.Outcome == OutcomeFailed {
				step := r.def.stepByID(id)
				continueOnError := workflowDefault
				isolateErrors := false
				if step != nil {
					continueOnError = step.continueOnError(workflowDefault)
					isolateErrors = step.Parallel != nil && step.Parallel.IsolateErrors
				}
				if !continueOnError {
					failed[id] = true
					for {
						changed := false
						for _, s := range r.def.Steps {
							if !failed[s.ID] && dependsOnAny(&s, failed) {
								failed[s.ID] = true
								changed = true
							}
						}
						if !changed {
							break
						}
					}
					if !isolateErrors {
						terminated = true
					}
				}
			}
		}
	}

	duration := time.Since(start)
	success := runErr == nil
	if success {
		for _, res := range allResults {
			if res.Outcome == OutcomeFailed {
				success = false
				break
			}
		}
	}

	if success {
		r.setState(StateCompleted)
	} else if runCtx.Err() == context.Canceled {
		r.setState(StateCancelled)
	} else {
		r.setState(StateFailed)
	}

	r.metrics.RecordRunEnd(ctx, success, duration)
	runSpan.SetAttributes(map[string]any{"workflow.success": success, "workflow.step_count": len(allResults)})
	if runErr != nil {
		runSpan.RecordError(runErr)
	}
	r.monitor.Emit(Event{Type: EventRunCompleted, WorkflowID: r.wfCtx.workflowID, Data: map[string]any{"success": success}})

	result := &WorkflowResult{
		Success:       success,
		StepResults:   allResults,
		ExecutionTime: duration,
		Metrics:       r.metrics.Snapshot(),
		ParallelStats: &ParallelStats{Groups: len(groups), MaxObservedActive: parallelExec.Peaks()},
	}
	if runErr != nil {
		result.Error = runErr.Error()
	}
	return result, nil
}

// dependsOnAny reports whether step depends (directly) on any id in failed.
func dependsOnAny(step *Step, failed map[string]bool) bool {
	for _, dep := range step.DependsOn {
		if failed[dep] {
			return true
		}
	}
	return false
}

func classifyContextErr(ctx context.Context) error {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return &flowerrors.TimeoutError{Operation: "workflow execution"}
	case context.Canceled:
		return &flowerrors.CancelledError{Reason: "workflow cancelled"}
	default:
		return ctx.Err()
	}
}

// runStep executes one step with retry, recording metrics and returning its
// terminal StepResult. It never panics on executor errors; all failures are
// captured in the returned result.
func (r *WorkflowRunner) runStep(ctx context.Context, stepID string, groupIndex int) *StepResult {
	step := r.def.stepByID(stepID)
	if step == nil {
		return &StepResult{StepID: stepID, Outcome: OutcomeFailed, Error: "step not found", ErrorKind: "internal"}
	}

	executor, err := r.registry.Lookup(step.Type)
	if err != nil {
		return &StepResult{StepID: stepID, Outcome: OutcomeFailed, Error: err.Error(), ErrorKind: "validation"}
	}

	r.wfCtx.SetCurrentStepID(stepID)
	r.metrics.RecordStepStart(stepID)
	r.monitor.Emit(Event{Type: EventStepStarted, WorkflowID: r.wfCtx.workflowID, StepID: stepID})
	startedAt := time.Now()

	ctx, stepSpan := tracing.StartStep(ctx, tracer, stepID, step.Type)
	defer stepSpan.End()

	maxAttempts := r.retry.MaxAttempts(step.Retry)
	var lastErr error
	var output any
	attempt := 0

	for attempt < maxAttempts {
		attempt++
		if attempt > 1 {
			delay := r.retry.Delay(step.Retry, attempt)
			r.metrics.RecordStepRetry(ctx, stepID)
			r.monitor.Emit(Event{Type: EventStepRetried, WorkflowID: r.wfCtx.workflowID, StepID: stepID, Data: map[string]any{"attempt": attempt}})
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				lastErr = classifyContextErr(ctx)
			}
			if ctx.Err() != nil {
				break
			}
		}

		// Each attempt gets its own timeout window; a timed-out attempt must
		// not shorten the windows available to subsequent retries.
		stepCtx := ctx
		var cancel context.CancelFunc
		if step.Timeout > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, time.Duration(step.Timeout)*time.Millisecond)
		}
		output, lastErr = executor.Execute(stepCtx, step, r.wfCtx)
		if cancel != nil {
			cancel()
		}
		if lastErr == nil {
			break
		}

		kind := flowerrors.Kind(lastErr)
		if !r.retry.ShouldRetry(step.Retry, kind) {
			break
		}
	}

	elapsed := time.Since(startedAt)
	success := lastErr == nil
	r.metrics.RecordStepEnd(ctx, stepID, success, errString(lastErr))
	stepSpan.SetAttributes(map[string]any{"step.attempts": attempt, "step.success": success})
	if lastErr != nil {
		stepSpan.RecordError(lastErr)
	}

	result := &StepResult{
		StepID:        stepID,
		ParallelGroup: groupIndex,
		Attempts:      attempt,
		ExecutionTime: elapsed,
	}

	if success {
		result.Outcome = OutcomeCompleted
		result.Success = true
		result.Output = output
		r.wfCtx.SetStepOutput(stepID, output)
		r.monitor.Emit(Event{Type: EventStepCompleted, WorkflowID: r.wfCtx.workflowID, StepID: stepID})
	} else {
		result.Outcome = OutcomeFailed
		result.Success = false
		result.Error = lastErr.Error()
		result.ErrorKind = flowerrors.Kind(lastErr)
		r.monitor.Emit(Event{Type: EventStepFailed, WorkflowID: r.wfCtx.workflowID, StepID: stepID, Data: map[string]any{"error": result.Error}})
	}

	return result
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
