package workflow

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	flowerrors "github.com/flowctl/flowctl/pkg/errors"
)

// ConditionType discriminates a ConditionExpression (spec §3).
type ConditionType string

const (
	CondEquals             ConditionType = "equals"
	CondNotEquals          ConditionType = "not_equals"
	CondContains           ConditionType = "contains"
	CondNotContains        ConditionType = "not_contains"
	CondExists             ConditionType = "exists"
	CondNotExists          ConditionType = "not_exists"
	CondGreaterThan        ConditionType = "greater_than"
	CondLessThan           ConditionType = "less_than"
	CondGreaterThanOrEqual ConditionType = "greater_than_or_equal"
	CondLessThanOrEqual    ConditionType = "less_than_or_equal"
	CondMatches            ConditionType = "matches"
	CondNotMatches         ConditionType = "not_matches"
	CondAnd                ConditionType = "and"
	CondOr                 ConditionType = "or"
	CondNot                ConditionType = "not"
)

var comparisonTypes = map[ConditionType]bool{
	CondEquals: true, CondNotEquals: true, CondContains: true, CondNotContains: true,
	CondExists: true, CondNotExists: true, CondGreaterThan: true, CondLessThan: true,
	CondGreaterThanOrEqual: true, CondLessThanOrEqual: true, CondMatches: true, CondNotMatches: true,
}

var booleanTypes = map[ConditionType]bool{CondAnd: true, CondOr: true, CondNot: true}

// ConditionExpression is a structured boolean or comparison expression
// evaluated against a WorkflowContext (spec §3, §4.4). Only this structured
// form is supported -- there is no general expression-language escape hatch
// (spec §9 Open Question c).
type ConditionExpression struct {
	Type       ConditionType          `yaml:"type" json:"type"`
	Left       string                 `yaml:"left,omitempty" json:"left,omitempty"`
	Right      any                    `yaml:"right,omitempty" json:"right,omitempty"`
	Conditions []ConditionExpression  `yaml:"conditions,omitempty" json:"conditions,omitempty"`
}

// validateStructure checks shape invariants that must hold before a
// condition is ever evaluated: known type, `not` has exactly one child.
func (c *ConditionExpression) validateStructure() error {
	switch {
	case comparisonTypes[c.Type]:
		if c.Left == "" {
			return &flowerrors.ValidationError{Field: "left", Message: "comparison condition requires a left operand"}
		}
	case booleanTypes[c.Type]:
		if c.Type == CondNot && len(c.Conditions) != 1 {
			return &flowerrors.ValidationError{
				Field:   "conditions",
				Message: fmt.Sprintf("'not' requires exactly one nested condition, got %d", len(c.Conditions)),
			}
		}
		if (c.Type == CondAnd || c.Type == CondOr) && len(c.Conditions) == 0 {
			return &flowerrors.ValidationError{Field: "conditions", Message: fmt.Sprintf("%q requires at least one nested condition", c.Type)}
		}
		for i := range c.Conditions {
			if err := c.Conditions[i].validateStructure(); err != nil {
				return flowerrors.Wrapf(err, "conditions[%d]", i)
			}
		}
	default:
		return &flowerrors.ValidationError{Field: "type", Message: fmt.Sprintf("unknown condition type %q", c.Type)}
	}
	return nil
}

// ConditionResult is the outcome of evaluating a ConditionExpression.
type ConditionResult struct {
	Result               bool
	EvaluatedExpression   string
	Error                 string
}

// ConditionEvaluator evaluates ConditionExpressions against a WorkflowContext
// (spec §4.4).
type ConditionEvaluator struct {
	interpolator *Interpolator
}

// NewConditionEvaluator creates an evaluator that resolves string operands
// through interp in lenient mode before comparing.
func NewConditionEvaluator(interp *Interpolator) *ConditionEvaluator {
	return &ConditionEvaluator{interpolator: interp}
}

// Evaluate evaluates expr against ctx.
func (e *ConditionEvaluator) Evaluate(expr *ConditionExpression, ctx *WorkflowContext) ConditionResult {
	result, err := e.eval(expr, ctx)
	res := ConditionResult{Result: result, EvaluatedExpression: describeCondition(expr)}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

func (e *ConditionEvaluator) eval(expr *ConditionExpression, ctx *WorkflowContext) (bool, error) {
	switch expr.Type {
	case CondAnd:
		for i := range expr.Conditions {
			ok, err := e.eval(&expr.Conditions[i], ctx)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case CondOr:
		for i := range expr.Conditions {
			ok, err := e.eval(&expr.Conditions[i], ctx)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case CondNot:
		ok, err := e.eval(&expr.Conditions[0], ctx)
		if err != nil {
			return false, err
		}
		return !ok, nil
	default:
		return e.evalComparison(expr, ctx)
	}
}

func (e *ConditionEvaluator) evalComparison(expr *ConditionExpression, ctx *WorkflowContext) (bool, error) {
	left, leftExists := e.interpolator.ResolveLenient(expr.Left, ctx)

	switch expr.Type {
	case CondExists:
		return leftExists && left != nil, nil
	case CondNotExists:
		return !(leftExists && left != nil), nil
	case CondEquals:
		return valuesEqual(left, expr.Right), nil
	case CondNotEquals:
		return !valuesEqual(left, expr.Right), nil
	case CondContains:
		return containsValue(left, expr.Right), nil
	case CondNotContains:
		return !containsValue(left, expr.Right), nil
	case CondGreaterThan, CondLessThan, CondGreaterThanOrEqual, CondLessThanOrEqual:
		lf, lok := toFloat(left)
		rf, rok := toFloat(expr.Right)
		if !lok || !rok {
			return false, fmt.Errorf("both operands must be finite numbers for %s", expr.Type)
		}
		switch expr.Type {
		case CondGreaterThan:
			return lf > rf, nil
		case CondLessThan:
			return lf < rf, nil
		case CondGreaterThanOrEqual:
			return lf >= rf, nil
		default:
			return lf <= rf, nil
		}
	case CondMatches, CondNotMatches:
		pattern, ok := expr.Right.(string)
		if !ok {
			return false, fmt.Errorf("invalid regex pattern")
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, fmt.Errorf("invalid regex pattern")
		}
		s := fmt.Sprintf("%v", left)
		matched := re.MatchString(s)
		if expr.Type == CondNotMatches {
			return !matched, nil
		}
		return matched, nil
	default:
		return false, fmt.Errorf("unknown condition type %q", expr.Type)
	}
}

func valuesEqual(left, right any) bool {
	if left == nil || right == nil {
		return left == right
	}
	if lf, lok := toFloat(left); lok {
		if rf, rok := toFloat(right); rok {
			return lf == rf
		}
	}
	return fmt.Sprintf("%v", left) == fmt.Sprintf("%v", right)
}

func containsValue(haystack, needle any) bool {
	switch h := haystack.(type) {
	case string:
		n, ok := needle.(string)
		if !ok {
			return false
		}
		return strings.Contains(h, n)
	case []any:
		for _, item := range h {
			if valuesEqual(item, needle) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func describeCondition(expr *ConditionExpression) string {
	switch expr.Type {
	case CondAnd, CondOr:
		return string(expr.Type)
	case CondNot:
		return "not(" + describeCondition(&expr.Conditions[0]) + ")"
	default:
		return fmt.Sprintf("%s(%s, %v)", expr.Type, expr.Left, expr.Right)
	}
}
