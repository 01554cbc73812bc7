package main

import (
	"bytes"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nooga/esvm/pkg/config"
	"github.com/nooga/esvm/pkg/errors"
)

type testState struct {
	*globalState
	out, errOut *bytes.Buffer
}

func newTestState() *testState {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	return &testState{
		globalState: newGlobalState(afero.NewMemMapFs(), out, errOut),
		out:         out,
		errOut:      errOut,
	}
}

func (ts *testState) execute(args ...string) error {
	ts.out.Reset()
	ts.errOut.Reset()
	root := newRootCommand(ts.globalState)
	root.SetArgs(append([]string{"--log-level", "error"}, args...))
	root.SetOut(ts.out)
	root.SetErr(ts.errOut)
	return root.Execute()
}

func TestSampleThenRun(t *testing.T) {
	ts := newTestState()

	require.NoError(t, ts.execute("sample", "fib.cbor"))
	assert.Equal(t, "wrote fib.cbor\n", ts.out.String())

	require.NoError(t, ts.execute("run", "fib.cbor"))
	out := ts.out.String()
	assert.Contains(t, out, "fib(20) = 6765\n")
	assert.Contains(t, out, "TypeError: Cannot read properties of null")
	assert.Contains(t, out, "\n6765\n")
	assert.Empty(t, ts.errOut.String())
}

func TestRunWithCacheStats(t *testing.T) {
	ts := newTestState()
	require.NoError(t, ts.execute("sample", "fib.cbor"))

	require.NoError(t, ts.execute("run", "--cache-stats", "fib.cbor"))
	assert.Contains(t, ts.out.String(), "inline caches: ")
}

func TestDisasm(t *testing.T) {
	ts := newTestState()
	require.NoError(t, ts.execute("sample", "fib.cbor"))

	require.NoError(t, ts.execute("disasm", "fib.cbor"))
	out := ts.out.String()
	assert.Contains(t, out, "; compiled from sample\n")
	assert.Contains(t, out, "== <program> (params=0, registers=")
	assert.Contains(t, out, "== fib (params=1, registers=")
	assert.Contains(t, out, "Handler 0: ")
}

func TestRunMissingImage(t *testing.T) {
	ts := newTestState()
	assert.Error(t, ts.execute("run", "nope.cbor"))
	assert.Error(t, ts.execute("disasm", "nope.cbor"))
}

func TestRunRejectsBadConfig(t *testing.T) {
	ts := newTestState()
	require.NoError(t, afero.WriteFile(ts.fs, config.DefaultFileName, []byte("[engine]\nmax-recursion-depth = -1\n"), 0o644))

	err := ts.execute("sample", "fib.cbor")
	var cerr *errors.ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "engine.max-recursion-depth", cerr.Field)
}

func TestRunHonoursConfiguredLimits(t *testing.T) {
	ts := newTestState()
	require.NoError(t, ts.execute("sample", "fib.cbor"))
	require.NoError(t, afero.WriteFile(ts.fs, "tight.toml", []byte("[engine]\nmax-recursion-depth = 3\n"), 0o644))

	err := ts.execute("run", "--config", "tight.toml", "fib.cbor")
	var serr *errors.ScriptError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "RangeError", serr.Name)
	assert.Contains(t, ts.errOut.String(), "fib")
}
