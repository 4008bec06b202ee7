package compiler

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type target struct {
	Name string            `yaml:"name" json:"name"`
	Jobs map[string]string `yaml:"jobs" json:"jobs"`
}

func TestMarshalYAML(t *testing.T) {
	out, err := MarshalYAML(target{Name: "ci", Jobs: map[string]string{"b": "2", "a": "1"}})
	require.NoError(t, err)
	assert.Equal(t, "name: ci\njobs:\n  a: \"1\"\n  b: \"2\"\n", string(out))
}

func TestMarshalJSON(t *testing.T) {
	out, err := MarshalJSON(target{Name: "ci"})
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"name\": \"ci\",\n  \"jobs\": null\n}\n", string(out))
}

func TestMarshalJSON_FormattingError(t *testing.T) {
	_, err := MarshalJSON(map[string]any{"bad": make(chan int)})
	require.Error(t, err)

	var cerr *Error
	require.True(t, stderrors.As(err, &cerr))
	assert.Equal(t, PhaseFormatting, cerr.Phase)
}

func TestError_Message(t *testing.T) {
	err := Errorf(PhaseValidation, "graph", "no start node")
	assert.Equal(t, "compile validation: no start node (source: graph)", err.Error())

	cause := fmt.Errorf("boom")
	wrapped := &Error{Phase: PhaseFormatting, Message: "yaml encoding failed", Cause: cause}
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, "compile formatting: yaml encoding failed: boom", wrapped.Error())
}
