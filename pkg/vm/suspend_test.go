package vm

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nooga/esvm/pkg/errors"
)

func endlessLoop() *Code {
	b := NewBuilder("spin", 0)
	top := b.Offset()
	b.Emit(OpNop)
	b.Emit(OpJump, top)
	return b.Build()
}

func TestCheckpointSuspendsWhenPreempted(t *testing.T) {
	rt := newTestRuntime(t)
	c := newTestContext(t, rt)

	b := NewBuilder("main", 0)
	b.Emit(OpLoadConst, 2, b.AddConstant(IntegerValue(1)))
	b.Emit(OpCheckpoint)
	b.Emit(OpLoadConst, 3, b.AddConstant(IntegerValue(2)))
	b.Emit(OpAdd, 4, 2, 3)
	b.Emit(OpReturn, 4)
	require.NoError(t, c.Setup(b.Build()))

	c.Preempt()
	res, err := c.Run()
	require.NoError(t, err)
	assert.Equal(t, RunSuspended, res)
	assert.Equal(t, StateSuspended, c.State())
	assert.Equal(t, 2, c.Depth())

	res, err = c.Resume()
	require.NoError(t, err)
	assert.Equal(t, RunNormalWithValue, res)
	assert.Equal(t, IntegerValue(3), c.ReturnValue())

	_, err = c.Resume()
	assert.ErrorIs(t, err, errors.ErrNotRunnable)
}

func TestCheckpointWithoutPreemptRunsThrough(t *testing.T) {
	rt := newTestRuntime(t)
	c := newTestContext(t, rt)

	b := NewBuilder("main", 0)
	b.Emit(OpCheckpoint)
	b.Emit(OpReturnUndefined)
	require.NoError(t, c.Setup(b.Build()))

	res, err := c.Run()
	require.NoError(t, err)
	assert.Equal(t, RunNormal, res)
}

func TestHostSuspendInsideRun(t *testing.T) {
	rt := newTestRuntime(t)
	c := newTestContext(t, rt)

	h := newTestHost()
	h.props["x"] = IntegerValue(7)
	h.suspends = 2
	obj := rt.Realm().NewHostObject(h, nil)

	b := NewBuilder("main", 0)
	b.Emit(OpLoadConst, 2, b.AddConstant(ObjectValue(obj)))
	b.Emit(OpGetProp, 3, 2, b.Name("x"))
	b.Emit(OpReturn, 3)
	require.NoError(t, c.Setup(b.Build()))

	res, err := c.Run()
	require.NoError(t, err)
	assert.Equal(t, RunSuspended, res)

	res, err = c.Resume()
	require.NoError(t, err)
	assert.Equal(t, RunSuspended, res)

	res, err = c.Resume()
	require.NoError(t, err)
	assert.Equal(t, RunNormalWithValue, res)
	assert.Equal(t, IntegerValue(7), c.ReturnValue())
	assert.Equal(t, []any{1, 2}, h.restarts)
}

func TestCallThatSuspendsCanBeResumed(t *testing.T) {
	rt := newTestRuntime(t)
	c := newTestContext(t, rt)

	h := newTestHost()
	h.props["x"] = NewString("late")
	h.suspends = 1
	obj := rt.Realm().NewHostObject(h, nil)

	b := NewBuilder("getX", 1)
	o := b.Local("o")
	b.Emit(OpGetProp, 3, o, b.Name("x"))
	b.Emit(OpReturn, 3)
	fn := rt.Realm().NewFunction(b.Build(), nil)

	_, err := c.Call(ObjectValue(fn), Undefined, ObjectValue(obj))
	assert.ErrorIs(t, err, errors.ErrSuspended)

	res, err := c.Resume()
	require.NoError(t, err)
	assert.Equal(t, RunNormalWithValue, res)
	assert.Equal(t, NewString("late"), c.ReturnValue())
	assert.Equal(t, 0, c.FrameBalance())
}

func TestSuspendedCallRunsOffThread(t *testing.T) {
	rt := newTestRuntime(t)
	c := newTestContext(t, rt)

	ran := false
	native := nativeFn(rt, "outside", func(c *ExecContext, this Value, args []Value) (Value, error) {
		err := c.SuspendedCall(func() error {
			ran = true
			assert.False(t, c.canSuspend())
			return stderrors.New("from outside")
		})
		return NewString(err.Error()), nil
	})

	v, err := c.Call(native, Undefined)
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, NewString("from outside"), v)
}

func TestSuspendWithCollectorLockedPanics(t *testing.T) {
	rt := newTestRuntime(t)
	c := newTestContext(t, rt)

	h := newTestHost()
	h.props["x"] = IntegerValue(1)
	h.suspends = 1
	obj := rt.Realm().NewHostObject(h, nil)

	native := nativeFn(rt, "locked", func(c *ExecContext, this Value, args []Value) (Value, error) {
		gc := c.Runtime().Collector()
		gc.Lock()
		defer gc.Unlock()
		v, _, err := c.Get(obj, NameKey("x"), ObjectValue(obj), nil)
		return v, err
	})

	assert.Panics(t, func() {
		_, _ = c.Call(native, Undefined)
	})
	assert.Equal(t, 0, rt.Collector().Depth())
}

func TestTimesliceSuspendsOnPreempt(t *testing.T) {
	cfg := testEngineConfig()
	cfg.TimesliceQuota = 4
	cfg.TimesliceQuotaMax = 16
	rt, err := NewRuntime(cfg)
	require.NoError(t, err)
	c := newTestContext(t, rt)
	require.NoError(t, c.Setup(endlessLoop()))

	c.Preempt()
	res, err := c.Run()
	require.NoError(t, err)
	assert.Equal(t, RunSuspended, res)

	c.Reset()
	assert.Equal(t, StateNotStarted, c.State())
	assert.Equal(t, 0, c.Depth())
	assert.Equal(t, 0, c.RegisterBalance())
}

func TestDestroySuspendedContextStopsThread(t *testing.T) {
	// regexp2 runs one package-wide clock for match timeouts.
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("github.com/dlclark/regexp2.runClock"))

	rt := newTestRuntime(t)
	c := rt.NewContext()
	require.NoError(t, c.Setup(endlessLoop()))
	c.Preempt()
	res, err := c.Run()
	require.NoError(t, err)
	require.Equal(t, RunSuspended, res)

	c.Destroy()
	_, err = c.Resume()
	assert.ErrorIs(t, err, errors.ErrNotRunnable)
	assert.ErrorIs(t, c.Setup(endlessLoop()), errors.ErrNotRunnable)
	c.Destroy()
}

func TestCancelledRunTimesOut(t *testing.T) {
	cfg := testEngineConfig()
	cfg.TimesliceQuota = 8
	rt, err := NewRuntime(cfg)
	require.NoError(t, err)
	c := newTestContext(t, rt)
	require.NoError(t, c.Setup(endlessLoop()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := c.RunContext(ctx)
	assert.Equal(t, RunError, res)
	var rerr *errors.ResourceError
	require.True(t, stderrors.As(err, &rerr))
	assert.Equal(t, errors.Timeout, rerr.Resource)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, c.Depth())
}

func TestRunTimeLimitIsRangeError(t *testing.T) {
	cfg := testEngineConfig()
	cfg.TimesliceQuota = 8
	cfg.MaxRunTime.Duration = time.Millisecond
	rt, err := NewRuntime(cfg)
	require.NoError(t, err)
	c := newTestContext(t, rt)
	require.NoError(t, c.Setup(endlessLoop()))

	_, err = c.Run()
	var serr *errors.ScriptError
	require.True(t, stderrors.As(err, &serr))
	assert.Equal(t, "RangeError", serr.Name)
	assert.Equal(t, "Script run time limit exceeded", serr.Msg)
}
