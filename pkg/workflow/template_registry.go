package workflow

import (
	"fmt"
	"sync"

	flowerrors "github.com/flowctl/flowctl/pkg/errors"
)

// ParameterType constrains the values a TemplateParameter accepts.
type ParameterType string

const (
	ParamString  ParameterType = "string"
	ParamNumber  ParameterType = "number"
	ParamBoolean ParameterType = "boolean"
	ParamArray   ParameterType = "array"
	ParamObject  ParameterType = "object"
)

// ParameterValidation carries the optional constraints a TemplateParameter
// enforces beyond type-checking (spec §3 Template.parameters.validation).
type ParameterValidation struct {
	Pattern   string `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	MinLength *int   `yaml:"minLength,omitempty" json:"minLength,omitempty"`
	MaxLength *int   `yaml:"maxLength,omitempty" json:"maxLength,omitempty"`
	Minimum   *float64 `yaml:"minimum,omitempty" json:"minimum,omitempty"`
	Maximum   *float64 `yaml:"maximum,omitempty" json:"maximum,omitempty"`
	Enum      []any  `yaml:"enum,omitempty" json:"enum,omitempty"`
}

// TemplateParameter declares one named input a Template accepts.
type TemplateParameter struct {
	Name        string                `yaml:"name" json:"name"`
	Type        ParameterType         `yaml:"type" json:"type"`
	Required    bool                  `yaml:"required,omitempty" json:"required,omitempty"`
	Default     any                   `yaml:"default,omitempty" json:"default,omitempty"`
	Description string                `yaml:"description,omitempty" json:"description,omitempty"`
	Validation  *ParameterValidation  `yaml:"validation,omitempty" json:"validation,omitempty"`
}

// TemplateMetadata is Template's descriptive, non-executable header.
type TemplateMetadata struct {
	ID          string   `yaml:"id" json:"id"`
	Name        string   `yaml:"name,omitempty" json:"name,omitempty"`
	Version     string   `yaml:"version,omitempty" json:"version,omitempty"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Author      string   `yaml:"author,omitempty" json:"author,omitempty"`
	Tags        []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	Category    string   `yaml:"category,omitempty" json:"category,omitempty"`
}

// Template is a reusable, parameterized Definition fragment: a workflow
// author declares a library of Templates and instantiates them into
// concrete Definitions via TemplateInstance (spec §3, §4.9). Extends names
// zero or more parent template ids; multiple parents are merged in the
// order given, base-most (left) first, before this template is applied.
type Template struct {
	Metadata   TemplateMetadata    `yaml:"metadata" json:"metadata"`
	Extends    []string            `yaml:"extends,omitempty" json:"extends,omitempty"`
	Parameters []TemplateParameter `yaml:"parameters,omitempty" json:"parameters,omitempty"`
	Definition Definition          `yaml:"template" json:"template"`
	Overrides  *Definition         `yaml:"overrides,omitempty" json:"overrides,omitempty"`
}

// ID returns the template's registry key.
func (t *Template) ID() string { return t.Metadata.ID }

// TemplateInstance requests a Definition built from a Template with
// caller-supplied parameter values and optional field overrides.
type TemplateInstance struct {
	TemplateID string         `yaml:"templateId" json:"templateId"`
	Parameters map[string]any `yaml:"parameters,omitempty" json:"parameters,omitempty"`
	Overrides  *Definition     `yaml:"overrides,omitempty" json:"overrides,omitempty"`
}

// TemplateRegistry holds a library of Templates, keyed by id.
type TemplateRegistry struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateRegistry creates an empty registry.
func NewTemplateRegistry() *TemplateRegistry {
	return &TemplateRegistry{templates: make(map[string]*Template)}
}

// Register adds tmpl, keyed by its ID. Per spec §3, the registry is
// process-scoped and immutable after registration: Register only adds,
// never replaces, an existing entry.
func (r *TemplateRegistry) Register(tmpl *Template) error {
	if tmpl.Metadata.ID == "" {
		return &flowerrors.ValidationError{Field: "metadata.id", Message: "template id is required"}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.templates[tmpl.Metadata.ID]; exists {
		return &flowerrors.ValidationError{
			Field:   "metadata.id",
			Message: fmt.Sprintf("template %q is already registered", tmpl.Metadata.ID),
		}
	}
	r.templates[tmpl.Metadata.ID] = tmpl
	return nil
}

// Validate checks that tmpl is schema-valid and every extends id is
// registered (spec §4.9 validate(template, registry)).
func (r *TemplateRegistry) Validate(tmpl *Template) error {
	if tmpl.Metadata.ID == "" {
		return &flowerrors.ValidationError{Field: "metadata.id", Message: "template id is required"}
	}
	for i, p := range tmpl.Parameters {
		if p.Name == "" {
			return &flowerrors.ValidationError{Field: fmt.Sprintf("parameters[%d].name", i), Message: "parameter name is required"}
		}
		switch p.Type {
		case ParamString, ParamNumber, ParamBoolean, ParamArray, ParamObject:
		default:
			return &flowerrors.ValidationError{
				Field:   fmt.Sprintf("parameters[%s].type", p.Name),
				Message: fmt.Sprintf("unknown parameter type %q", p.Type),
			}
		}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, parentID := range tmpl.Extends {
		if _, ok := r.templates[parentID]; !ok {
			return &flowerrors.ValidationError{
				Field:   "extends",
				Message: fmt.Sprintf("extends unregistered template %q", parentID),
			}
		}
	}
	return nil
}

// Get returns the template registered under id.
func (r *TemplateRegistry) Get(id string) (*Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tmpl, ok := r.templates[id]
	if !ok {
		return nil, &flowerrors.NotFoundError{Resource: "template", ID: id}
	}
	return tmpl, nil
}

// IDs returns every registered template id.
func (r *TemplateRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.templates))
	for id := range r.templates {
		ids = append(ids, id)
	}
	return ids
}
