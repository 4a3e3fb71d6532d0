package workflow

import (
	"fmt"
	"regexp"

	flowerrors "github.com/flowctl/flowctl/pkg/errors"
)

// DefaultMaxTemplateDepth bounds extends chains, mirroring
// DefaultMaxInterpolationDepth's role for {{path}} nesting (spec §4.9).
const DefaultMaxTemplateDepth = 10

// MergeConflict records a field two templates in an extends chain both set,
// where the later source's value won per last-writer-wins precedence.
type MergeConflict struct {
	Field  string
	Parent string
	Child  string
}

// ResolvedTemplate is the output of flattening a Template's extends chain and
// substituting an instance's parameters: a concrete Definition plus the
// conflicts the merge resolved along the way.
type ResolvedTemplate struct {
	Definition Definition
	Conflicts  []MergeConflict
}

// TemplateResolver turns a TemplateInstance into a concrete Definition by
// flattening the named Template's extends chain depth-first (base first,
// most-derived last), then substituting instance parameters and applying
// instance overrides (spec §3, §4.9).
type TemplateResolver struct {
	registry *TemplateRegistry
	maxDepth int
	// Strict rejects instance parameters not declared by the template or
	// any template it extends; lenient (the default) ignores them.
	Strict bool
}

// NewTemplateResolver creates a lenient resolver backed by registry, using
// DefaultMaxTemplateDepth.
func NewTemplateResolver(registry *TemplateRegistry) *TemplateResolver {
	return &TemplateResolver{registry: registry, maxDepth: DefaultMaxTemplateDepth}
}

// mergeSource is one Definition-shaped layer in the flatten pipeline, paired
// with a label used in recorded MergeConflicts.
type mergeSource struct {
	label string
	def   Definition
}

// Resolve builds a Definition for inst.
func (r *TemplateResolver) Resolve(inst TemplateInstance) (*ResolvedTemplate, error) {
	chain, err := r.extendsChain(inst.TemplateID, make(map[string]bool), 0)
	if err != nil {
		return nil, err
	}

	params, err := r.mergeParameters(chain, inst.Parameters)
	if err != nil {
		return nil, err
	}

	var sources []mergeSource
	for _, tmpl := range chain {
		sources = append(sources, mergeSource{label: tmpl.Metadata.ID, def: tmpl.Definition})
		if tmpl.Overrides != nil {
			sources = append(sources, mergeSource{label: tmpl.Metadata.ID + ".overrides", def: *tmpl.Overrides})
		}
	}
	def, conflicts := flattenSources(sources)

	if inst.Overrides != nil {
		applied, instConflicts := flattenSources([]mergeSource{
			{label: "template", def: def},
			{label: "instance", def: *inst.Overrides},
		})
		def = applied
		conflicts = append(conflicts, instConflicts...)
	}

	wfCtx := NewWorkflowContext("", def.Env)
	wfCtx.SetParameters(params)
	interp := NewInterpolator()
	if err := interpolateDefinition(&def, interp, wfCtx); err != nil {
		return nil, flowerrors.Wrapf(err, "resolving template %q parameters", inst.TemplateID)
	}

	if err := def.Validate(); err != nil {
		return nil, err
	}

	return &ResolvedTemplate{Definition: def, Conflicts: conflicts}, nil
}

// extendsChain walks id's extends chain depth-first, returning templates
// ordered base-first so later entries override earlier ones on merge.
// Extends may name multiple parents; each is walked in declaration order
// before id's own template is appended. seen detects cycles; depth enforces
// DefaultMaxTemplateDepth.
func (r *TemplateResolver) extendsChain(id string, seen map[string]bool, depth int) ([]*Template, error) {
	if depth > r.maxDepth {
		return nil, &flowerrors.ValidationError{
			Field:   "extends",
			Message: fmt.Sprintf("template extends chain exceeds max depth %d", r.maxDepth),
		}
	}
	if seen[id] {
		return nil, &flowerrors.ValidationError{
			Field:   "extends",
			Message: fmt.Sprintf("template %q participates in an extends cycle", id),
		}
	}
	seen[id] = true
	defer delete(seen, id)

	tmpl, err := r.registry.Get(id)
	if err != nil {
		return nil, err
	}

	var chain []*Template
	for _, parentID := range tmpl.Extends {
		parentChain, err := r.extendsChain(parentID, seen, depth+1)
		if err != nil {
			return nil, err
		}
		chain = append(chain, parentChain...)
	}
	return append(chain, tmpl), nil
}

// mergeParameters validates instance-supplied parameters against every
// template in the chain's declared parameters (a later entry in the chain
// redeclaring a parameter wins), applying defaults, type-checking, and
// enforcing validation constraints.
func (r *TemplateResolver) mergeParameters(chain []*Template, supplied map[string]any) (map[string]any, error) {
	declared := make(map[string]TemplateParameter)
	var order []string
	for _, tmpl := range chain {
		for _, p := range tmpl.Parameters {
			if _, ok := declared[p.Name]; !ok {
				order = append(order, p.Name)
			}
			declared[p.Name] = p
		}
	}

	resolved := make(map[string]any, len(declared))
	for _, name := range order {
		p := declared[name]
		val, ok := supplied[name]
		if !ok {
			if p.Required {
				return nil, &flowerrors.ValidationError{
					Field:   fmt.Sprintf("parameters.%s", name),
					Message: "required template parameter was not supplied",
				}
			}
			val = p.Default
		}
		if val != nil {
			if err := checkParameter(name, p, val); err != nil {
				return nil, err
			}
		}
		resolved[name] = val
	}

	// Unknown supplied parameters: strict rejects, lenient ignores (spec
	// §4.9 step 2).
	if r.Strict {
		for name := range supplied {
			if _, ok := declared[name]; !ok {
				return nil, &flowerrors.ValidationError{
					Field:      fmt.Sprintf("parameters.%s", name),
					Message:    "parameter is not declared by this template or any template it extends",
					Suggestion: "remove the extra parameter or declare it on the template",
				}
			}
		}
	}

	return resolved, nil
}

func checkParameter(name string, p TemplateParameter, val any) error {
	if err := checkParameterType(name, p.Type, val); err != nil {
		return err
	}
	if p.Validation == nil {
		return nil
	}
	v := p.Validation

	if len(v.Enum) > 0 {
		matched := false
		for _, allowed := range v.Enum {
			if fmt.Sprintf("%v", allowed) == fmt.Sprintf("%v", val) {
				matched = true
				break
			}
		}
		if !matched {
			return &flowerrors.ValidationError{Field: fmt.Sprintf("parameters.%s", name), Message: fmt.Sprintf("value %v is not one of %v", val, v.Enum)}
		}
	}

	if s, ok := val.(string); ok {
		if v.Pattern != "" {
			re, err := regexp.Compile(v.Pattern)
			if err != nil {
				return &flowerrors.ValidationError{Field: fmt.Sprintf("parameters.%s", name), Message: fmt.Sprintf("invalid validation pattern: %v", err)}
			}
			if !re.MatchString(s) {
				return &flowerrors.ValidationError{Field: fmt.Sprintf("parameters.%s", name), Message: fmt.Sprintf("value does not match pattern %q", v.Pattern)}
			}
		}
		if v.MinLength != nil && len(s) < *v.MinLength {
			return &flowerrors.ValidationError{Field: fmt.Sprintf("parameters.%s", name), Message: fmt.Sprintf("value shorter than minLength %d", *v.MinLength)}
		}
		if v.MaxLength != nil && len(s) > *v.MaxLength {
			return &flowerrors.ValidationError{Field: fmt.Sprintf("parameters.%s", name), Message: fmt.Sprintf("value longer than maxLength %d", *v.MaxLength)}
		}
	}

	if n, ok := asFloat(val); ok {
		if v.Minimum != nil && n < *v.Minimum {
			return &flowerrors.ValidationError{Field: fmt.Sprintf("parameters.%s", name), Message: fmt.Sprintf("value below minimum %v", *v.Minimum)}
		}
		if v.Maximum != nil && n > *v.Maximum {
			return &flowerrors.ValidationError{Field: fmt.Sprintf("parameters.%s", name), Message: fmt.Sprintf("value above maximum %v", *v.Maximum)}
		}
	}

	return nil
}

func asFloat(val any) (float64, bool) {
	switch v := val.(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

func checkParameterType(name string, want ParameterType, val any) error {
	ok := false
	switch want {
	case ParamString:
		_, ok = val.(string)
	case ParamNumber:
		_, ok = asFloat(val)
	case ParamBoolean:
		_, ok = val.(bool)
	case ParamArray:
		_, ok = val.([]any)
	case ParamObject:
		_, ok = val.(map[string]any)
	default:
		ok = true // unrecognized type declarations are accepted, not enforced
	}
	if !ok {
		return &flowerrors.ValidationError{
			Field:   fmt.Sprintf("parameters.%s", name),
			Message: fmt.Sprintf("expected type %q", want),
		}
	}
	return nil
}

// flattenSources merges sources in order (earliest first, last-writer-wins):
// scalar fields (name, version, description, timeout, parallel) from a later
// source simply override an earlier one; env and metadata maps merge
// key-wise with a later source's value winning and a MergeConflict recorded
// for every key an earlier source also set; steps merge by id, a later
// source's step of the same id replacing the earlier one, with a
// MergeConflict recorded for every overlap (spec §4.9 step 4).
func flattenSources(sources []mergeSource) (Definition, []MergeConflict) {
	var out Definition
	var conflicts []MergeConflict
	stepIndex := make(map[string]int)
	stepSource := make(map[string]string)
	envSource := make(map[string]string)
	metaSource := make(map[string]string)

	for _, src := range sources {
		d := src.def
		if d.Name != "" {
			out.Name = d.Name
		}
		if d.Version != "" {
			out.Version = d.Version
		}
		if d.Description != "" {
			out.Description = d.Description
		}
		if d.Timeout != 0 {
			out.Timeout = d.Timeout
		}
		if d.Parallel != nil {
			out.Parallel = d.Parallel
		}
		if len(d.Env) > 0 {
			if out.Env == nil {
				out.Env = make(map[string]string, len(d.Env))
			}
			for k, v := range d.Env {
				if prev, ok := envSource[k]; ok {
					conflicts = append(conflicts, MergeConflict{Field: "env." + k, Parent: prev, Child: src.label})
				}
				out.Env[k] = v
				envSource[k] = src.label
			}
		}
		for _, step := range d.Steps {
			if idx, ok := stepIndex[step.ID]; ok {
				conflicts = append(conflicts, MergeConflict{Field: "steps." + step.ID, Parent: stepSource[step.ID], Child: src.label})
				out.Steps[idx] = step
				stepSource[step.ID] = src.label
				continue
			}
			stepIndex[step.ID] = len(out.Steps)
			stepSource[step.ID] = src.label
			out.Steps = append(out.Steps, step)
		}
		if len(d.Metadata) > 0 {
			if out.Metadata == nil {
				out.Metadata = make(map[string]any, len(d.Metadata))
			}
			for k, v := range d.Metadata {
				if prev, ok := metaSource[k]; ok {
					conflicts = append(conflicts, MergeConflict{Field: "metadata." + k, Parent: prev, Child: src.label})
				}
				out.Metadata[k] = v
				metaSource[k] = src.label
			}
		}
	}

	return out, conflicts
}

// interpolateDefinition resolves {{parameters.*}} (and any other
// WorkflowContext path) references throughout def's step configs in place.
func interpolateDefinition(def *Definition, interp *Interpolator, wfCtx *WorkflowContext) error {
	for i := range def.Steps {
		if def.Steps[i].Config == nil {
			continue
		}
		resolved, err := interp.Resolve(def.Steps[i].Config, wfCtx)
		if err != nil {
			return flowerrors.Wrapf(err, "steps[%s].config", def.Steps[i].ID)
		}
		cfgMap, ok := resolved.(map[string]any)
		if !ok {
			return &flowerrors.InternalError{Message: fmt.Sprintf("steps[%s].config did not resolve to an object", def.Steps[i].ID)}
		}
		def.Steps[i].Config = cfgMap
	}
	return nil
}
