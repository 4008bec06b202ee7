package compiler

import (
	"bytes"
	"encoding/json"
	"fmt"

	"go.yaml.in/yaml/v3"
)

// Phase names the stage a compilation failed in.
type Phase string

const (
	// PhaseValidation means the graph lacks something the target needs,
	// such as a start node.
	PhaseValidation Phase = "validation"
	// PhaseCompilation means a node could not be translated.
	PhaseCompilation Phase = "compilation"
	// PhaseFormatting means the target could not be serialized.
	PhaseFormatting Phase = "formatting"
)

// Error aborts a compilation.
type Error struct {
	Phase   Phase
	Message string
	// Source is the offending fragment: a node id, condition or trigger.
	Source string
	Cause  error
}

// Errorf builds an Error.
func Errorf(phase Phase, source, format string, args ...any) *Error {
	return &Error{Phase: phase, Message: fmt.Sprintf(format, args...), Source: source}
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("compile %s: %s", e.Phase, e.Message)
	if e.Source != "" {
		msg += fmt.Sprintf(" (source: %s)", e.Source)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// MarshalYAML serializes a compiled target with two-space indentation.
func MarshalYAML(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return nil, &Error{Phase: PhaseFormatting, Message: "yaml encoding failed", Cause: err}
	}
	if err := enc.Close(); err != nil {
		return nil, &Error{Phase: PhaseFormatting, Message: "yaml encoding failed", Cause: err}
	}
	return buf.Bytes(), nil
}

// MarshalJSON serializes a compiled target as indented JSON.
func MarshalJSON(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, &Error{Phase: PhaseFormatting, Message: "json encoding failed", Cause: err}
	}
	return append(data, '\n'), nil
}
