package errors

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKindsAndMessages(t *testing.T) {
	cases := []struct {
		err  EngineError
		kind string
		text string
	}{
		{&ScriptError{Name: "TypeError", Msg: "x is not a function", Position: Position{Function: "f", Line: 3}}, "Script", "TypeError at f:3: x is not a function"},
		{&ScriptError{Msg: "42"}, "Script", "Uncaught: 42"},
		{&ResourceError{Resource: RecursionLimit}, "Resource", "Resource Error: maximum recursion depth exceeded"},
		{&SecurityError{Property: "secret", Msg: "origin mismatch"}, "Security", "Security Error: access to 'secret' denied: origin mismatch"},
		{&ProtocolError{Collaborator: "host object", Msg: "bad result"}, "Protocol", "Protocol Error: host object: bad result"},
		{&ConfigError{Field: "engine.max-registers", Msg: "must be positive"}, "Config", "Config Error: engine.max-registers: must be positive"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.kind, tc.err.Kind())
		assert.Equal(t, tc.text, tc.err.Error())
	}
}

func TestUnwrapAndIsResource(t *testing.T) {
	root := errors.New("boom")
	err := fmt.Errorf("wrapped: %w", &ResourceError{Resource: OutOfMemory, Cause: root})
	assert.True(t, IsResource(err, OutOfMemory))
	assert.False(t, IsResource(err, Timeout))
	assert.ErrorIs(t, err, root)
}

func TestPositionString(t *testing.T) {
	assert.Equal(t, "<anonymous>@7", Position{Offset: 7}.String())
	assert.Equal(t, "main:2", Position{Function: "main", Line: 2}.String())
	assert.True(t, Position{}.IsZero())
}

func TestDisplayIncludesTrace(t *testing.T) {
	var buf bytes.Buffer
	Display(&buf, []EngineError{
		&ScriptError{Name: "Error", Msg: "bad", Trace: "at inner\nat outer\n"},
		&ConfigError{Msg: "oops"},
	})
	require.Equal(t, "Error: bad\n  at inner\n  at outer\nConfig Error: oops\n", buf.String())
}
