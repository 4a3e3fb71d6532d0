package workflow

import (
	"context"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// DefaultSnapshotInterval is how often MetricsCollector samples a rolling
// PerformanceSnapshot (spec §4.10).
const DefaultSnapshotInterval = time.Second

// DefaultSnapshotWindow bounds how long rolling snapshots are retained.
const DefaultSnapshotWindow = 5 * time.Minute

// StepMetrics accumulates the observations recorded for one step across all
// of its attempts during a run.
type StepMetrics struct {
	StepID      string
	StartedAt   time.Time
	EndedAt     time.Time
	Duration    time.Duration
	Success     bool
	RetryCount  int
	Error       string
	MemorySamplesBytes []uint64
	CPUSamplesPercent  []float64
}

// PerformanceSnapshot is one point in the rolling performance window: a
// system-wide resource sample taken while the run was in progress.
type PerformanceSnapshot struct {
	Timestamp   time.Time
	HeapBytes   uint64
	Goroutines  int
	ActiveSteps int
}

// MetricsSnapshot is the terminal metrics record attached to a
// WorkflowResult: per-step metrics, workflow-wide counters, and the rolling
// performance window captured during the run.
type MetricsSnapshot struct {
	WorkflowID    string
	TotalSteps    int
	SucceededSteps int
	FailedSteps   int
	SkippedSteps  int
	RetriedSteps  int
	ErrorCount    int
	WarningCount  int
	TotalDuration time.Duration
	Steps         map[string]*StepMetrics
	Performance   []PerformanceSnapshot
}

// MetricsCollector records step- and workflow-level measurements for one
// run, both as OpenTelemetry instruments (for export) and as an in-memory
// snapshot ring buffer (for WorkflowResult.Metrics).
type MetricsCollector struct {
	meter metric.Meter

	runsTotal        metric.Int64Counter
	stepsTotal       metric.Int64Counter
	stepRetriesTotal metric.Int64Counter
	runDuration      metric.Float64Histogram
	stepDuration     metric.Float64Histogram

	mu            sync.Mutex
	workflowID    string
	steps         map[string]*StepMetrics
	activeSteps   int
	skippedSteps  int
	errorCount    int
	warningCount  int
	snapshots     []PerformanceSnapshot
	snapshotEvery time.Duration
	snapshotFor   time.Duration

	stopSampling context.CancelFunc
}

// NewMetricsCollector creates a collector. meterProvider may be nil, in
// which case OTel instruments are backed by a no-op provider.
func NewMetricsCollector(meterProvider metric.MeterProvider, workflowID string) (*MetricsCollector, error) {
	if meterProvider == nil {
		meterProvider = noop.NewMeterProvider()
	}
	meter := meterProvider.Meter("flowctl-workflow")

	mc := &MetricsCollector{
		meter:         meter,
		workflowID:    workflowID,
		steps:         make(map[string]*StepMetrics),
		snapshotEvery: DefaultSnapshotInterval,
		snapshotFor:   DefaultSnapshotWindow,
	}

	var err error
	mc.runsTotal, err = meter.Int64Counter("flowctl_runs_total", metric.WithDescription("Total workflow runs"), metric.WithUnit("{run}"))
	if err != nil {
		return nil, err
	}
	mc.stepsTotal, err = meter.Int64Counter("flowctl_steps_total", metric.WithDescription("Total steps executed"), metric.WithUnit("{step}"))
	if err != nil {
		return nil, err
	}
	mc.stepRetriesTotal, err = meter.Int64Counter("flowctl_step_retries_total", metric.WithDescription("Total step retry attempts"), metric.WithUnit("{retry}"))
	if err != nil {
		return nil, err
	}
	mc.runDuration, err = meter.Float64Histogram("flowctl_run_duration_seconds", metric.WithDescription("Workflow run duration"), metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	mc.stepDuration, err = meter.Float64Histogram("flowctl_step_duration_seconds", metric.WithDescription("Step execution duration"), metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return mc, nil
}

// StartSampling begins periodic PerformanceSnapshot capture until ctx is
// done or Stop is called.
func (mc *MetricsCollector) StartSampling(ctx context.Context) {
	sampleCtx, cancel := context.WithCancel(ctx)
	mc.stopSampling = cancel
	go func() {
		ticker := time.NewTicker(mc.snapshotEvery)
		defer ticker.Stop()
		for {
			select {
			case <-sampleCtx.Done():
				return
			case <-ticker.C:
				mc.sample()
			}
		}
	}()
}

// Stop halts periodic sampling.
func (mc *MetricsCollector) Stop() {
	if mc.stopSampling != nil {
		mc.stopSampling()
	}
}

func (mc *MetricsCollector) sample() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	mc.mu.Lock()
	defer mc.mu.Unlock()

	snap := PerformanceSnapshot{
		Timestamp:   time.Now(),
		HeapBytes:   m.HeapAlloc,
		Goroutines:  runtime.NumGoroutine(),
		ActiveSteps: mc.activeSteps,
	}
	mc.snapshots = append(mc.snapshots, snap)

	cutoff := snap.Timestamp.Add(-mc.snapshotFor)
	i := 0
	for ; i < len(mc.snapshots); i++ {
		if mc.snapshots[i].Timestamp.After(cutoff) {
			break
		}
	}
	mc.snapshots = mc.snapshots[i:]
}

// RecordStepStart marks stepID as started.
func (mc *MetricsCollector) RecordStepStart(stepID string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.activeSteps++
	mc.steps[stepID] = &StepMetrics{StepID: stepID, StartedAt: time.Now()}
}

// RecordStepSkip marks stepID as skipped, for the workflow-wide
// SkippedSteps counter (spec §4.10).
func (mc *MetricsCollector) RecordStepSkip(stepID string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.skippedSteps++
}

// RecordStepRetry records one retry attempt against stepID.
func (mc *MetricsCollector) RecordStepRetry(ctx context.Context, stepID string) {
	mc.mu.Lock()
	if sm, ok := mc.steps[stepID]; ok {
		sm.RetryCount++
	}
	mc.warningCount++
	mc.mu.Unlock()
	mc.stepRetriesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("workflow", mc.workflowID),
		attribute.String("step", stepID),
	))
}

// RecordStepEnd finalizes stepID's metrics.
func (mc *MetricsCollector) RecordStepEnd(ctx context.Context, stepID string, success bool, errMsg string) {
	mc.mu.Lock()
	sm, ok := mc.steps[stepID]
	if !ok {
		sm = &StepMetrics{StepID: stepID, StartedAt: time.Now()}
		mc.steps[stepID] = sm
	}
	sm.EndedAt = time.Now()
	sm.Duration = sm.EndedAt.Sub(sm.StartedAt)
	sm.Success = success
	sm.Error = errMsg
	mc.activeSteps--
	if !success {
		mc.errorCount++
	}
	duration := sm.Duration
	mc.mu.Unlock()

	status := "success"
	if !success {
		status = "failed"
	}
	attrs := []attribute.KeyValue{
		attribute.String("workflow", mc.workflowID),
		attribute.String("step", stepID),
		attribute.String("status", status),
	}
	mc.stepsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	mc.stepDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordRunEnd records the terminal workflow duration.
func (mc *MetricsCollector) RecordRunEnd(ctx context.Context, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "failed"
	}
	attrs := []attribute.KeyValue{
		attribute.String("workflow", mc.workflowID),
		attribute.String("status", status),
	}
	mc.runsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	mc.runDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// Snapshot materializes the terminal MetricsSnapshot for a WorkflowResult.
func (mc *MetricsCollector) Snapshot() *MetricsSnapshot {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	snap := &MetricsSnapshot{
		WorkflowID:   mc.workflowID,
		SkippedSteps: mc.skippedSteps,
		ErrorCount:   mc.errorCount,
		WarningCount: mc.warningCount,
		Steps:        make(map[string]*StepMetrics, len(mc.steps)),
		Performance:  append([]PerformanceSnapshot(nil), mc.snapshots...),
	}
	for id, sm := range mc.steps {
		copied := *sm
		snap.Steps[id] = &copied
		snap.TotalSteps++
		if sm.RetryCount > 0 {
			snap.RetriedSteps++
		}
		if sm.Success {
			snap.SucceededSteps++
		} else {
			snap.FailedSteps++
		}
		snap.TotalDuration += sm.Duration
	}
	snap.TotalSteps += mc.skippedSteps
	return snap
}
