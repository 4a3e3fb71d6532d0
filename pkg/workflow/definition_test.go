package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	flowerrors "github.com/flowctl/flowctl/pkg/errors"
)

func validDefinition() *Definition {
	return &Definition{
		Name: "deploy",
		Steps: []Step{
			{ID: "build", Type: "script"},
			{ID: "deploy", Type: "script", DependsOn: []string{"build"}},
		},
	}
}

func TestDefinitionValidateOK(t *testing.T) {
	assert.NoError(t, validDefinition().Validate())
}

func TestDefinitionValidateMissingName(t *testing.T) {
	def := validDefinition()
	def.Name = ""
	err := def.Validate()
	require.Error(t, err)
	var verr *flowerrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "name", verr.Field)
}

func TestDefinitionValidateDuplicateStepID(t *testing.T) {
	def := validDefinition()
	def.Steps = append(def.Steps, Step{ID: "build", Type: "script"})
	err := def.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate step id")
}

func TestDefinitionValidateUnknownDependency(t *testing.T) {
	def := validDefinition()
	def.Steps[1].DependsOn = []string{"does-not-exist"}
	err := def.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown step id")
}

func TestDefinitionValidateBadStepID(t *testing.T) {
	def := validDefinition()
	def.Steps[0].ID = "has a space"
	err := def.Validate()
	require.Error(t, err)
	var verr *flowerrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.NotEmpty(t, verr.Suggestion)
}

func TestDefinitionValidateMissingStepType(t *testing.T) {
	def := validDefinition()
	def.Steps[0].Type = ""
	err := def.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "type is required")
}

func TestDefinitionValidateInvalidCondition(t *testing.T) {
	def := validDefinition()
	def.Steps[1].Condition = &ConditionExpression{Type: CondEquals}
	err := def.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "left operand")
}

func TestDefinitionValidateRejectsZeroResourceCapacity(t *testing.T) {
	def := validDefinition()
	def.Parallel = &ParallelConfig{Resources: map[string]int{"db": 0}}
	err := def.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "block every step")
}
