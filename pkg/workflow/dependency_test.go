package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	flowerrors "github.com/flowctl/flowctl/pkg/errors"
)

func TestParallelGroupsLinearChain(t *testing.T) {
	def := &Definition{
		Name: "chain",
		Steps: []Step{
			{ID: "a", Type: "script"},
			{ID: "b", Type: "script", DependsOn: []string{"a"}},
			{ID: "c", Type: "script", DependsOn: []string{"b"}},
		},
	}
	groups, err := NewDependencyResolver(def).ParallelGroups()
	require.NoError(t, err)
	require.Len(t, groups, 3)
	assert.Equal(t, []string{"a"}, groups[0].Steps)
	assert.Equal(t, []string{"b"}, groups[1].Steps)
	assert.Equal(t, []string{"c"}, groups[2].Steps)
}

func TestParallelGroupsFanOut(t *testing.T) {
	def := &Definition{
		Name: "fanout",
		Steps: []Step{
			{ID: "start", Type: "script"},
			{ID: "left", Type: "script", DependsOn: []string{"start"}},
			{ID: "right", Type: "script", DependsOn: []string{"start"}},
			{ID: "join", Type: "script", DependsOn: []string{"left", "right"}},
		},
	}
	groups, err := NewDependencyResolver(def).ParallelGroups()
	require.NoError(t, err)
	require.Len(t, groups, 3)
	assert.ElementsMatch(t, []string{"left", "right"}, groups[1].Steps)
	assert.Equal(t, []string{"join"}, groups[2].Steps)
}

func TestParallelGroupsCycleDetected(t *testing.T) {
	def := &Definition{
		Name: "cyclic",
		Steps: []Step{
			{ID: "a", Type: "script", DependsOn: []string{"b"}},
			{ID: "b", Type: "script", DependsOn: []string{"a"}},
		},
	}
	_, err := NewDependencyResolver(def).ParallelGroups()
	require.Error(t, err)

	var cycleErr *flowerrors.CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.ElementsMatch(t, []string{"a", "b"}, cycleErr.Participants)
}

func TestGroupConcurrencyRespectsStepCap(t *testing.T) {
	def := &Definition{
		Name:     "capped",
		Parallel: &ParallelConfig{DefaultMaxConcurrency: 4},
		Steps: []Step{
			{ID: "a", Type: "script"},
			{ID: "b", Type: "script", Parallel: &StepParallelConfig{MaxConcurrency: 1}},
		},
	}
	groups, err := NewDependencyResolver(def).ParallelGroups()
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, 1, groups[0].MaxConcurrency, "a tighter per-step cap must still bind the whole layer")
}
