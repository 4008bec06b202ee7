package expr

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"

	"github.com/kbukum/dagflow/errors"
)

// Evaluator evaluates boolean expressions against a set of variables.
type Evaluator interface {
	EvaluateBoolean(expression string, vars map[string]any) (bool, error)
}

// Kind classifies an evaluation failure.
type Kind string

const (
	KindSyntax  Kind = "syntax"
	KindRuntime Kind = "runtime"
	KindType    Kind = "type"
)

// KindOf returns the failure kind of err, or "" when err is not an
// expression error.
func KindOf(err error) Kind {
	switch errors.Code(err) {
	case errors.ErrCodeExprSyntax:
		return KindSyntax
	case errors.ErrCodeExprRuntime:
		return KindRuntime
	case errors.ErrCodeExprType:
		return KindType
	default:
		return ""
	}
}

// HCL is an Evaluator backed by the HCL native expression syntax.
type HCL struct {
	functions map[string]function.Function
}

var _ Evaluator = (*HCL)(nil)

// Option configures an HCL evaluator.
type Option func(*HCL)

// WithFunction registers an additional function callable from expressions.
func WithFunction(name string, fn function.Function) Option {
	return func(h *HCL) { h.functions[name] = fn }
}

// New creates an evaluator with the built-in functions.
func New(opts ...Option) *HCL {
	h := &HCL{functions: builtins()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// EvaluateBoolean parses and evaluates expression. Variables are converted
// to cty values; nested maps become objects and slices become tuples.
func (h *HCL) EvaluateBoolean(expression string, vars map[string]any) (bool, error) {
	src := Normalize(expression)
	if strings.TrimSpace(src) == "" {
		return false, newError(errors.ErrCodeExprSyntax, expression, "expression is empty", nil)
	}

	parsed, diags := hclsyntax.ParseExpression([]byte(src), "condition", hcl.Pos{Line: 1, Column: 1, Byte: 0})
	if diags.HasErrors() {
		return false, newError(errors.ErrCodeExprSyntax, expression, summary(diags), diags)
	}

	variables, err := ToValues(vars)
	if err != nil {
		return false, newError(errors.ErrCodeExprRuntime, expression, err.Error(), err)
	}

	val, diags := parsed.Value(&hcl.EvalContext{Variables: variables, Functions: h.functions})
	if diags.HasErrors() {
		return false, newError(errors.ErrCodeExprRuntime, expression, summary(diags), diags)
	}
	if !val.IsKnown() {
		return false, newError(errors.ErrCodeExprRuntime, expression, "result is unknown", nil)
	}
	if val.IsNull() {
		return false, newError(errors.ErrCodeExprType, expression, "result is null, want bool", nil)
	}
	if !val.Type().Equals(cty.Bool) {
		return false, newError(errors.ErrCodeExprType, expression,
			fmt.Sprintf("result is %s, want bool", val.Type().FriendlyName()), nil)
	}
	return val.True(), nil
}

func newError(code errors.ErrorCode, expression, reason string, cause error) *errors.AppError {
	err := errors.Newf(code, "cannot evaluate %q: %s", expression, reason).
		WithDetail("expression", expression)
	if cause != nil {
		err = err.WithCause(cause)
	}
	return err
}

func summary(diags hcl.Diagnostics) string {
	msgs := make([]string, 0, len(diags))
	for _, d := range diags {
		if d.Severity != hcl.DiagError {
			continue
		}
		msg := d.Summary
		if d.Detail != "" {
			msg += ": " + d.Detail
		}
		msgs = append(msgs, msg)
	}
	return strings.Join(msgs, "; ")
}
