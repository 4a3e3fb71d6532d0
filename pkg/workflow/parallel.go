package workflow

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// stepOutcomeFunc runs one step and returns its terminal StepResult. The
// runner supplies this so ParallelExecutor stays agnostic of retry and
// executor dispatch (spec §4.6, §5).
type stepOutcomeFunc func(ctx context.Context, stepID string) *StepResult

// ParallelExecutor admits and runs the steps of one dependency Group under
// bounded concurrency: a per-group semaphore, plus optional per-named
// resource semaphores shared across every group in the run.
type ParallelExecutor struct {
	def           *Definition
	resourceSems  map[string]*semaphore.Weighted
	resourceMu    sync.Mutex
	activeCounts  map[string]*int32
	observedPeaks map[string]int32
	peaksMu       sync.Mutex
}

// NewParallelExecutor creates an executor for def, lazily building named
// resource semaphores from def.Parallel.Resources on first use.
func NewParallelExecutor(def *Definition) *ParallelExecutor {
	return &ParallelExecutor{
		def:           def,
		resourceSems:  make(map[string]*semaphore.Weighted),
		activeCounts:  make(map[string]*int32),
		observedPeaks: make(map[string]int32),
	}
}

func (p *ParallelExecutor) resourceSem(name string) *semaphore.Weighted {
	p.resourceMu.Lock()
	defer p.resourceMu.Unlock()
	if sem, ok := p.resourceSems[name]; ok {
		return sem
	}
	capacity, ok := p.def.resourceCapacity(name)
	if !ok || capacity <= 0 {
		capacity = DefaultParallelConcurrency
	}
	sem := semaphore.NewWeighted(int64(capacity))
	p.resourceSems[name] = sem
	return sem
}

func (p *ParallelExecutor) trackActive(key string, delta int32) {
	p.peaksMu.Lock()
	defer p.peaksMu.Unlock()
	counter, ok := p.activeCounts[key]
	if !ok {
		var zero int32
		counter = &zero
		p.activeCounts[key] = counter
	}
	active := atomic.AddInt32(counter, delta)
	if active > p.observedPeaks[key] {
		p.observedPeaks[key] = active
	}
}

// Peaks returns the observed maximum concurrent-step count per group/
// resource key, surfaced on WorkflowResult.ParallelStats.
func (p *ParallelExecutor) Peaks() map[string]int {
	p.peaksMu.Lock()
	defer p.peaksMu.Unlock()
	out := make(map[string]int, len(p.observedPeaks))
	for k, v := range p.observedPeaks {
		out[k] = int(v)
	}
	return out
}

// RunGroup executes every step in g concurrently, honoring g.MaxConcurrency
// and any named resource pool a step declares via Parallel.Resource.
// skipped identifies steps that should not execute at all (condition false
// or an upstream dependency failed); run is invoked for everything else.
//
// A step whose own parallel.enabled is false is still a member of g (its
// structural position in the DAG doesn't change) but acquires every slot of
// the group semaphore (weight g.MaxConcurrency), so it never runs alongside
// another step of g (spec §9 Open Question b).
func (p *ParallelExecutor) RunGroup(ctx context.Context, g Group, skip func(stepID string) (bool, string), run stepOutcomeFunc) (map[string]*StepResult, error) {
	groupSem := semaphore.NewWeighted(int64(maxInt(g.MaxConcurrency, 1)))

	results := make(map[string]*StepResult, len(g.Steps))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, stepID := range g.Steps {
		step := p.def.stepByID(stepID)
		if step == nil {
			continue
		}

		if skipped, reason := skip(stepID); skipped {
			mu.Lock()
			results[stepID] = &StepResult{StepID: stepID, Outcome: OutcomeSkipped, SkipReason: reason}
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(stepID string, step *Step) {
			defer wg.Done()

			weight := int64(1)
			if !step.parallelEnabled() {
				weight = int64(maxInt(g.MaxConcurrency, 1))
			}

			if err := groupSem.Acquire(ctx, weight); err != nil {
				mu.Lock()
				results[stepID] = &StepResult{
					StepID:    stepID,
					Outcome:   OutcomeFailed,
					Error:     err.Error(),
					ErrorKind: "cancelled",
				}
				mu.Unlock()
				return
			}
			defer groupSem.Release(weight)

			var resourceSem *semaphore.Weighted
			if step.Parallel != nil && step.Parallel.Resource != "" {
				resourceSem = p.resourceSem(step.Parallel.Resource)
				if err := resourceSem.Acquire(ctx, 1); err != nil {
					mu.Lock()
					results[stepID] = &StepResult{
						StepID:    stepID,
						Outcome:   OutcomeFailed,
						Error:     err.Error(),
						ErrorKind: "cancelled",
					}
					mu.Unlock()
					return
				}
				defer resourceSem.Release(1)
				p.trackActive(step.Parallel.Resource, 1)
				defer p.trackActive(step.Parallel.Resource, -1)
			}

			p.trackActive("__group__", 1)
			defer p.trackActive("__group__", -1)

			result := run(ctx, stepID)
			mu.Lock()
			results[stepID] = result
			mu.Unlock()
		}(stepID, step)
	}

	wg.Wait()
	return results, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
