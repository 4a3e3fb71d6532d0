package workflow

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeRun struct {
	mu        sync.Mutex
	cancelled bool
	reason    string
	status    RunState
}

func (r *fakeRun) Cancel(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled = true
	r.reason = reason
}

func (r *fakeRun) Status() RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *fakeRun) setStatus(s RunState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = s
}

func TestShutdownManagerRegisterAndActive(t *testing.T) {
	m := NewShutdownManager()
	m.Register("run-1", &fakeRun{status: StateRunning})
	m.Register("run-2", &fakeRun{status: StateRunning})

	assert.ElementsMatch(t, []string{"run-1", "run-2"}, m.Active())
}

func TestShutdownManagerUnregisterRemovesRun(t *testing.T) {
	m := NewShutdownManager()
	m.Register("run-1", &fakeRun{status: StateRunning})
	m.Unregister("run-1")
	assert.Empty(t, m.Active())
}

func TestShutdownManagerCancelUnknownRunReturnsFalse(t *testing.T) {
	m := NewShutdownManager()
	assert.False(t, m.Cancel("missing", "shutdown"))
}

func TestShutdownManagerCancelKnownRunDelegates(t *testing.T) {
	m := NewShutdownManager()
	run := &fakeRun{status: StateRunning}
	m.Register("run-1", run)

	assert.True(t, m.Cancel("run-1", "sigterm"))
	assert.True(t, run.cancelled)
	assert.Equal(t, "sigterm", run.reason)
}

func TestShutdownManagerCancelAllReturnsEarlyOnceTerminal(t *testing.T) {
	m := NewShutdownManager()
	m.gracePeriod = 2 * time.Second
	run := &fakeRun{status: StateRunning}
	m.Register("run-1", run)

	go func() {
		time.Sleep(20 * time.Millisecond)
		run.setStatus(StateCancelled)
	}()

	start := time.Now()
	m.CancelAll("shutdown")
	elapsed := time.Since(start)

	assert.True(t, run.cancelled)
	assert.Less(t, elapsed, m.gracePeriod, "CancelAll must return as soon as every run reaches a terminal state")
}

func TestShutdownManagerCancelAllRespectsGracePeriodWhenRunNeverTerminates(t *testing.T) {
	m := NewShutdownManager()
	m.gracePeriod = 150 * time.Millisecond
	run := &fakeRun{status: StateRunning}
	m.Register("run-1", run)

	start := time.Now()
	m.CancelAll("shutdown")
	elapsed := time.Since(start)

	assert.True(t, run.cancelled)
	assert.GreaterOrEqual(t, elapsed, m.gracePeriod)
}
