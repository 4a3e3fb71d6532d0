package workflow

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParallelExecutorTrackActiveAccumulatesPerKey(t *testing.T) {
	p := NewParallelExecutor(&Definition{})
	p.trackActive("db", 1)
	p.trackActive("db", 1)
	p.trackActive("db", -1)
	p.trackActive("cache", 1)

	peaks := p.Peaks()
	assert.Equal(t, 2, peaks["db"])
	assert.Equal(t, 1, peaks["cache"])
}

func TestParallelExecutorRunGroupSkipsPerSkipFunc(t *testing.T) {
	def := &Definition{
		Name: "wf",
		Steps: []Step{
			{ID: "a", Type: "script"},
			{ID: "b", Type: "script"},
		},
	}
	p := NewParallelExecutor(def)
	g := Group{Steps: []string{"a", "b"}, MaxConcurrency: 2}

	results, err := p.RunGroup(context.Background(), g,
		func(stepID string) (bool, string) {
			if stepID == "b" {
				return true, "condition false"
			}
			return false, ""
		},
		func(ctx context.Context, stepID string) *StepResult {
			return &StepResult{StepID: stepID, Outcome: OutcomeCompleted, Success: true}
		},
	)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, results["a"].Outcome)
	assert.Equal(t, OutcomeSkipped, results["b"].Outcome)
	assert.Equal(t, "condition false", results["b"].SkipReason)
}

func TestParallelExecutorRunGroupRespectsMaxConcurrency(t *testing.T) {
	def := &Definition{
		Name: "wf",
		Steps: []Step{
			{ID: "a", Type: "script"},
			{ID: "b", Type: "script"},
			{ID: "c", Type: "script"},
		},
	}
	p := NewParallelExecutor(def)
	g := Group{Steps: []string{"a", "b", "c"}, MaxConcurrency: 1}

	var current, observed int32
	var mu sync.Mutex
	_, err := p.RunGroup(context.Background(), g,
		func(stepID string) (bool, string) { return false, "" },
		func(ctx context.Context, stepID string) *StepResult {
			n := atomic.AddInt32(&current, 1)
			mu.Lock()
			if n > observed {
				observed = n
			}
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&current, -1)
			return &StepResult{StepID: stepID, Outcome: OutcomeCompleted, Success: true}
		},
	)
	require.NoError(t, err)
	assert.Equal(t, int32(1), observed, "MaxConcurrency=1 must serialize steps")
}

func TestParallelExecutorRunGroupCancelledContextFailsSteps(t *testing.T) {
	def := &Definition{
		Name:  "wf",
		Steps: []Step{{ID: "a", Type: "script"}},
	}
	p := NewParallelExecutor(def)
	g := Group{Steps: []string{"a"}, MaxConcurrency: 1}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := p.RunGroup(ctx, g,
		func(stepID string) (bool, string) { return false, "" },
		func(ctx context.Context, stepID string) *StepResult {
			t.Fatal("run must not be invoked once the group semaphore acquire fails")
			return nil
		},
	)
	require.NoError(t, err)
	require.Contains(t, results, "a")
	assert.Equal(t, OutcomeFailed, results["a"].Outcome)
	assert.Equal(t, "cancelled", results["a"].ErrorKind)
}

func TestParallelExecutorResourceSemUsesDeclaredCapacity(t *testing.T) {
	def := &Definition{
		Name:     "wf",
		Parallel: &ParallelConfig{Resources: map[string]int{"db": 2}},
	}
	p := NewParallelExecutor(def)
	sem := p.resourceSem("db")
	require.NotNil(t, sem)
	assert.True(t, sem.TryAcquire(2))
}
