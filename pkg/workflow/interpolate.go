package workflow

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultMaxInterpolationDepth bounds recursive re-interpolation of a
// resolved value that is itself a template string (spec §4.3).
const DefaultMaxInterpolationDepth = 5

// InterpolationError names the offending path when strict resolution fails.
type InterpolationError struct {
	Path string
}

func (e *InterpolationError) Error() string {
	return fmt.Sprintf("unresolved interpolation path %q", e.Path)
}

// Interpolator resolves {{path}} references against a WorkflowContext (spec
// §4.3). A single string consisting of nothing but one {{path}} reference
// resolves to the referenced value's native type; a string with surrounding
// text, or more than one reference, is rendered by string concatenation.
type Interpolator struct {
	// Strict fails resolution with InterpolationError on an unresolved path.
	// Lenient (the default) substitutes an empty string and records a
	// warning via the supplied logger function, if any.
	Strict   bool
	MaxDepth int
	Warn     func(path string)
}

// NewInterpolator creates a lenient interpolator with the default depth cap.
func NewInterpolator() *Interpolator {
	return &Interpolator{MaxDepth: DefaultMaxInterpolationDepth}
}

func (ip *Interpolator) maxDepth() int {
	if ip.MaxDepth > 0 {
		return ip.MaxDepth
	}
	return DefaultMaxInterpolationDepth
}

// Resolve interpolates every {{path}} reference found anywhere inside value
// (strings, and recursively within maps/slices), returning a new value tree.
func (ip *Interpolator) Resolve(value any, ctx *WorkflowContext) (any, error) {
	return ip.resolveValue(value, ctx, 0)
}

func (ip *Interpolator) resolveValue(value any, ctx *WorkflowContext, depth int) (any, error) {
	switch v := value.(type) {
	case string:
		return ip.resolveString(v, ctx, depth)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			resolved, err := ip.resolveValue(item, ctx, depth)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			resolved, err := ip.resolveValue(item, ctx, depth)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return value, nil
	}
}

// resolveString interpolates all {{path}} references in s.
func (ip *Interpolator) resolveString(s string, ctx *WorkflowContext, depth int) (any, error) {
	if !containsTemplateSyntax(s) {
		return s, nil
	}
	if depth >= ip.maxDepth() {
		return s, nil
	}

	if ref, ok := isPureTemplateRef(s); ok {
		value, err := ip.resolveRef(ref, ctx)
		if err != nil {
			return nil, err
		}
		if nested, ok := value.(string); ok && containsTemplateSyntax(nested) {
			return ip.resolveString(nested, ctx, depth+1)
		}
		return value, nil
	}

	var b strings.Builder
	rest := s
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.Index(rest[start:], "}}")
		if end < 0 {
			b.WriteString(rest)
			break
		}
		end += start
		b.WriteString(rest[:start])
		ref := strings.TrimSpace(rest[start+2 : end])
		value, err := ip.resolveRef(ref, ctx)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(&b, "%v", stringify(value))
		rest = rest[end+2:]
	}
	return b.String(), nil
}

func stringify(value any) any {
	if value == nil {
		return ""
	}
	return value
}

// resolveRef resolves a single dotted path reference, honoring strict vs.
// lenient failure handling.
func (ip *Interpolator) resolveRef(ref string, ctx *WorkflowContext) (any, error) {
	value, ok := ctx.resolvePath(splitPath(ref))
	if !ok {
		if ip.Strict {
			return nil, &InterpolationError{Path: ref}
		}
		if ip.Warn != nil {
			ip.Warn(ref)
		}
		return "", nil
	}
	return value, nil
}

// ResolveLenient resolves a single {{path}}-or-bare-path reference without
// regard to ip.Strict, returning (value, found). Used by ConditionEvaluator,
// which treats a missing left-hand path as its own comparison outcome
// (exists/not_exists) rather than a hard error.
func (ip *Interpolator) ResolveLenient(path string, ctx *WorkflowContext) (any, bool) {
	ref := path
	if inner, ok := isPureTemplateRef(path); ok {
		ref = inner
	}
	return ctx.resolvePath(splitPath(ref))
}

// isPureTemplateRef reports whether s is exactly one {{ path }} reference
// with no surrounding text, returning the trimmed inner path.
func isPureTemplateRef(s string) (string, bool) {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "{{") || !strings.HasSuffix(trimmed, "}}") {
		return "", false
	}
	inner := strings.TrimSpace(trimmed[2 : len(trimmed)-2])
	if strings.Contains(inner, "{{") {
		return "", false
	}
	return inner, true
}

func containsTemplateSyntax(s string) bool {
	return strings.Contains(s, "{{") && strings.Contains(s, "}}")
}

// splitPath splits a dotted reference path into segments, dropping empty
// ones. Bracketed indices like files[0] are not parsed: they stay part of
// their segment (navigate() only descends into map[string]any).
func splitPath(path string) []string {
	path = strings.TrimSpace(path)
	segments := strings.Split(path, ".")
	out := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		out = append(out, seg)
	}
	return out
}

// parseLiteral converts a raw right-hand-side scalar (from YAML/JSON) to a
// comparable Go value. It has no callers in this package.
func parseLiteral(raw string) any {
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	return raw
}
