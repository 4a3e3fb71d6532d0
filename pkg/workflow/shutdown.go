package workflow

import (
	"sync"
	"time"
)

// DefaultShutdownGracePeriod bounds how long a cancelled run is given to
// wind down cooperatively before ShutdownManager considers it abandoned.
const DefaultShutdownGracePeriod = 30 * time.Second

// cancellableRun is the subset of WorkflowRunner ShutdownManager needs.
type cancellableRun interface {
	Cancel(reason string)
	Status() RunState
}

// ShutdownManager tracks every in-flight run by id so a caller can request
// graceful cancellation by run id (Cancel) or for every run (CancelAll)
// without holding a reference to the runner itself (spec §4.11).
type ShutdownManager struct {
	mu          sync.Mutex
	runs        map[string]cancellableRun
	gracePeriod time.Duration
}

// NewShutdownManager creates a manager with the default grace period.
func NewShutdownManager() *ShutdownManager {
	return &ShutdownManager{
		runs:        make(map[string]cancellableRun),
		gracePeriod: DefaultShutdownGracePeriod,
	}
}

// Register tracks runner under runID so it can later be cancelled by id.
func (m *ShutdownManager) Register(runID string, runner cancellableRun) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[runID] = runner
}

// Unregister stops tracking runID, typically called once a run reaches a
// terminal state.
func (m *ShutdownManager) Unregister(runID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.runs, runID)
}

// Cancel requests cooperative cancellation of runID with reason. Returns
// false if no run is registered under that id.
func (m *ShutdownManager) Cancel(runID, reason string) bool {
	m.mu.Lock()
	runner, ok := m.runs[runID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	runner.Cancel(reason)
	return true
}

// CancelAll requests cooperative cancellation of every registered run, used
// for process-wide shutdown (spec §4.11). It returns once every run has
// either reached a terminal state or the grace period has elapsed.
func (m *ShutdownManager) CancelAll(reason string) {
	m.mu.Lock()
	runners := make([]cancellableRun, 0, len(m.runs))
	for _, r := range m.runs {
		runners = append(runners, r)
	}
	m.mu.Unlock()

	for _, r := range runners {
		r.Cancel(reason)
	}

	deadline := time.Now().Add(m.gracePeriod)
	for time.Now().Before(deadline) {
		allTerminal := true
		for _, r := range runners {
			switch r.Status() {
			case StateCompleted, StateFailed, StateCancelled:
			default:
				allTerminal = false
			}
		}
		if allTerminal {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// Active returns the ids of every currently registered run.
func (m *ShutdownManager) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.runs))
	for id := range m.runs {
		ids = append(ids, id)
	}
	return ids
}
