package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	flowerrors "github.com/flowctl/flowctl/pkg/errors"
)

func baseTemplate() *Template {
	return &Template{
		Metadata: TemplateMetadata{ID: "base"},
		Parameters: []TemplateParameter{
			{Name: "region", Type: ParamString, Required: true},
		},
		Definition: Definition{
			Name: "base-workflow",
			Env:  map[string]string{"REGION": "{{region}}"},
			Steps: []Step{
				{ID: "build", Type: "script"},
			},
		},
	}
}

func TestTemplateResolverResolvesSingleTemplate(t *testing.T) {
	registry := NewTemplateRegistry()
	require.NoError(t, registry.Register(baseTemplate()))
	resolver := NewTemplateResolver(registry)

	resolved, err := resolver.Resolve(TemplateInstance{
		TemplateID: "base",
		Parameters: map[string]any{"region": "us-east-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "base-workflow", resolved.Definition.Name)
	assert.Empty(t, resolved.Conflicts)
}

func TestTemplateResolverRequiresRequiredParameter(t *testing.T) {
	registry := NewTemplateRegistry()
	require.NoError(t, registry.Register(baseTemplate()))
	resolver := NewTemplateResolver(registry)

	_, err := resolver.Resolve(TemplateInstance{TemplateID: "base"})
	require.Error(t, err)
	var verr *flowerrors.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestTemplateResolverMergesExtendsChainAndRecordsConflicts(t *testing.T) {
	registry := NewTemplateRegistry()
	require.NoError(t, registry.Register(&Template{
		Metadata: TemplateMetadata{ID: "parent"},
		Definition: Definition{
			Name: "parent-workflow",
			Steps: []Step{
				{ID: "build", Type: "script"},
				{ID: "test", Type: "script", DependsOn: []string{"build"}},
			},
		},
	}))
	require.NoError(t, registry.Register(&Template{
		Metadata: TemplateMetadata{ID: "child"},
		Extends:  []string{"parent"},
		Definition: Definition{
			Name: "child-workflow",
			Steps: []Step{
				{ID: "build", Type: "script", Config: map[string]any{"command": "make"}},
				{ID: "deploy", Type: "script", DependsOn: []string{"test"}},
			},
		},
	}))
	resolver := NewTemplateResolver(registry)

	resolved, err := resolver.Resolve(TemplateInstance{TemplateID: "child"})
	require.NoError(t, err)

	assert.Equal(t, "child-workflow", resolved.Definition.Name)
	require.Len(t, resolved.Definition.Steps, 3)
	require.Len(t, resolved.Conflicts, 1)
	assert.Equal(t, "steps.build", resolved.Conflicts[0].Field)
	assert.Equal(t, "parent", resolved.Conflicts[0].Parent)
	assert.Equal(t, "child", resolved.Conflicts[0].Child)
}

func TestTemplateResolverDetectsExtendsCycle(t *testing.T) {
	registry := NewTemplateRegistry()
	require.NoError(t, registry.Register(&Template{
		Metadata: TemplateMetadata{ID: "a"},
		Extends:  []string{"b"},
	}))
	require.NoError(t, registry.Register(&Template{
		Metadata: TemplateMetadata{ID: "b"},
		Extends:  []string{"a"},
	}))
	resolver := NewTemplateResolver(registry)

	_, err := resolver.Resolve(TemplateInstance{TemplateID: "a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestTemplateResolverAllowsDiamondExtendsSharedAncestor(t *testing.T) {
	registry := NewTemplateRegistry()
	require.NoError(t, registry.Register(&Template{
		Metadata: TemplateMetadata{ID: "base"},
		Definition: Definition{
			Name:  "base-workflow",
			Steps: []Step{{ID: "build", Type: "script"}},
		},
	}))
	require.NoError(t, registry.Register(&Template{
		Metadata: TemplateMetadata{ID: "left"},
		Extends:  []string{"base"},
		Definition: Definition{
			Name:  "left-workflow",
			Steps: []Step{{ID: "test", Type: "script"}},
		},
	}))
	require.NoError(t, registry.Register(&Template{
		Metadata: TemplateMetadata{ID: "right"},
		Extends:  []string{"base"},
		Definition: Definition{
			Name:  "right-workflow",
			Steps: []Step{{ID: "lint", Type: "script"}},
		},
	}))
	require.NoError(t, registry.Register(&Template{
		Metadata: TemplateMetadata{ID: "top"},
		Extends:  []string{"left", "right"},
		Definition: Definition{
			Name:  "top-workflow",
			Steps: []Step{{ID: "deploy", Type: "script"}},
		},
	}))
	resolver := NewTemplateResolver(registry)

	resolved, err := resolver.Resolve(TemplateInstance{TemplateID: "top"})
	require.NoError(t, err)
	assert.Equal(t, "top-workflow", resolved.Definition.Name)
}

func TestTemplateResolverRejectsUnknownTemplate(t *testing.T) {
	registry := NewTemplateRegistry()
	resolver := NewTemplateResolver(registry)

	_, err := resolver.Resolve(TemplateInstance{TemplateID: "missing"})
	require.Error(t, err)
	var nferr *flowerrors.NotFoundError
	require.ErrorAs(t, err, &nferr)
}

func TestTemplateResolverStrictModeRejectsUnknownParameter(t *testing.T) {
	registry := NewTemplateRegistry()
	require.NoError(t, registry.Register(baseTemplate()))
	resolver := NewTemplateResolver(registry)
	resolver.Strict = true

	_, err := resolver.Resolve(TemplateInstance{
		TemplateID: "base",
		Parameters: map[string]any{"region": "us-east-1", "extra": "nope"},
	})
	require.Error(t, err)
	var verr *flowerrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.NotEmpty(t, verr.Suggestion)
}

func TestTemplateResolverLenientModeIgnoresUnknownParameter(t *testing.T) {
	registry := NewTemplateRegistry()
	require.NoError(t, registry.Register(baseTemplate()))
	resolver := NewTemplateResolver(registry)

	_, err := resolver.Resolve(TemplateInstance{
		TemplateID: "base",
		Parameters: map[string]any{"region": "us-east-1", "extra": "ignored"},
	})
	assert.NoError(t, err)
}

func TestTemplateResolverValidatesParameterType(t *testing.T) {
	registry := NewTemplateRegistry()
	require.NoError(t, registry.Register(&Template{
		Metadata: TemplateMetadata{ID: "typed"},
		Parameters: []TemplateParameter{
			{Name: "count", Type: ParamNumber, Required: true},
		},
		Definition: Definition{Name: "typed-workflow", Steps: []Step{{ID: "a", Type: "script"}}},
	}))
	resolver := NewTemplateResolver(registry)

	_, err := resolver.Resolve(TemplateInstance{
		TemplateID: "typed",
		Parameters: map[string]any{"count": "not-a-number"},
	})
	require.Error(t, err)
	var verr *flowerrors.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestTemplateResolverEnforcesEnumValidation(t *testing.T) {
	registry := NewTemplateRegistry()
	require.NoError(t, registry.Register(&Template{
		Metadata: TemplateMetadata{ID: "enum-tmpl"},
		Parameters: []TemplateParameter{
			{Name: "tier", Type: ParamString, Required: true, Validation: &ParameterValidation{Enum: []any{"small", "large"}}},
		},
		Definition: Definition{Name: "enum-workflow", Steps: []Step{{ID: "a", Type: "script"}}},
	}))
	resolver := NewTemplateResolver(registry)

	_, err := resolver.Resolve(TemplateInstance{
		TemplateID: "enum-tmpl",
		Parameters: map[string]any{"tier": "huge"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not one of")
}

func TestTemplateResolverAppliesInstanceOverrides(t *testing.T) {
	registry := NewTemplateRegistry()
	require.NoError(t, registry.Register(baseTemplate()))
	resolver := NewTemplateResolver(registry)

	resolved, err := resolver.Resolve(TemplateInstance{
		TemplateID: "base",
		Parameters: map[string]any{"region": "us-east-1"},
		Overrides:  &Definition{Description: "custom description"},
	})
	require.NoError(t, err)
	assert.Equal(t, "custom description", resolved.Definition.Description)
}
