package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCollectorRecordsStepLifecycle(t *testing.T) {
	mc, err := NewMetricsCollector(nil, "run-1")
	require.NoError(t, err)

	mc.RecordStepStart("build")
	mc.RecordStepRetry(context.Background(), "build")
	mc.RecordStepEnd(context.Background(), "build", true, "")

	snap := mc.Snapshot()
	assert.Equal(t, "run-1", snap.WorkflowID)
	assert.Equal(t, 1, snap.TotalSteps)
	assert.Equal(t, 1, snap.SucceededSteps)
	assert.Equal(t, 0, snap.FailedSteps)
	assert.Equal(t, 1, snap.RetriedSteps)

	sm := snap.Steps["build"]
	require.NotNil(t, sm)
	assert.Equal(t, 1, sm.RetryCount)
	assert.True(t, sm.Success)
}

func TestMetricsCollectorRecordsFailedStep(t *testing.T) {
	mc, err := NewMetricsCollector(nil, "run-1")
	require.NoError(t, err)

	mc.RecordStepStart("deploy")
	mc.RecordStepEnd(context.Background(), "deploy", false, "exit 1")

	snap := mc.Snapshot()
	assert.Equal(t, 1, snap.FailedSteps)
	assert.Equal(t, "exit 1", snap.Steps["deploy"].Error)
}

func TestMetricsCollectorRecordsSkippedAndWarningCounts(t *testing.T) {
	mc, err := NewMetricsCollector(nil, "run-1")
	require.NoError(t, err)

	mc.RecordStepStart("build")
	mc.RecordStepRetry(context.Background(), "build")
	mc.RecordStepEnd(context.Background(), "build", false, "boom")
	mc.RecordStepSkip("deploy")

	snap := mc.Snapshot()
	assert.Equal(t, 2, snap.TotalSteps)
	assert.Equal(t, 1, snap.SkippedSteps)
	assert.Equal(t, 1, snap.ErrorCount)
	assert.Equal(t, 1, snap.WarningCount)
}

func TestMetricsCollectorRecordStepEndWithoutStartStillRecords(t *testing.T) {
	mc, err := NewMetricsCollector(nil, "run-1")
	require.NoError(t, err)

	mc.RecordStepEnd(context.Background(), "orphan", true, "")

	snap := mc.Snapshot()
	require.Contains(t, snap.Steps, "orphan")
}

func TestMetricsCollectorSnapshotIsIndependentCopy(t *testing.T) {
	mc, err := NewMetricsCollector(nil, "run-1")
	require.NoError(t, err)
	mc.RecordStepStart("build")
	mc.RecordStepEnd(context.Background(), "build", true, "")

	snap := mc.Snapshot()
	snap.Steps["build"].Success = false

	snap2 := mc.Snapshot()
	assert.True(t, snap2.Steps["build"].Success)
}

func TestMetricsCollectorStartStopSamplingDoesNotPanic(t *testing.T) {
	mc, err := NewMetricsCollector(nil, "run-1")
	require.NoError(t, err)
	mc.snapshotEvery = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mc.StartSampling(ctx)
	time.Sleep(20 * time.Millisecond)
	mc.Stop()

	snap := mc.Snapshot()
	assert.NotEmpty(t, snap.Performance)
}
