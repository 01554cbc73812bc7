package vm

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nooga/esvm/pkg/errors"
)

// dispatcherFunc adapts a function to NativeDispatcher.
type dispatcherFunc func(c *ExecContext, f *Frame) Dispatch

func (d dispatcherFunc) Enter(c *ExecContext, f *Frame) Dispatch { return d(c, f) }

func nativeEntryAdd() *Code {
	code := addFunction()
	code.NativeEntry = true
	return code
}

func TestDispatcherReturns(t *testing.T) {
	rt := newTestRuntime(t)
	c := newTestContext(t, rt)
	entered := 0
	rt.SetDispatcher(dispatcherFunc(func(c *ExecContext, f *Frame) Dispatch {
		entered++
		regs := c.FrameRegisters(f)
		return Dispatch{Action: DispatchReturn, Value: NumberValue(regs[2].AsNumber() * regs[3].AsNumber())}
	}))
	fn := rt.Realm().NewFunction(nativeEntryAdd(), nil)

	v, err := c.Call(ObjectValue(fn), Undefined, IntegerValue(3), IntegerValue(4))
	require.NoError(t, err)
	assert.Equal(t, IntegerValue(12), v)
	assert.Equal(t, 1, entered)
	assert.Equal(t, 0, c.RegisterBalance())

	// Code without the marker never reaches the dispatcher.
	plain := rt.Realm().NewFunction(addFunction(), nil)
	v, err = c.Call(ObjectValue(plain), Undefined, IntegerValue(3), IntegerValue(4))
	require.NoError(t, err)
	assert.Equal(t, IntegerValue(7), v)
	assert.Equal(t, 1, entered)
}

func TestDispatcherHandsBackToInterpreter(t *testing.T) {
	rt := newTestRuntime(t)
	c := newTestContext(t, rt)
	rt.SetDispatcher(dispatcherFunc(func(c *ExecContext, f *Frame) Dispatch {
		c.FrameRegisters(f)[3] = IntegerValue(100)
		return Dispatch{Action: DispatchInterpret}
	}))
	fn := rt.Realm().NewFunction(nativeEntryAdd(), nil)

	v, err := c.Call(ObjectValue(fn), Undefined, IntegerValue(1), IntegerValue(2))
	require.NoError(t, err)
	assert.Equal(t, IntegerValue(101), v)
}

func TestDispatcherThrows(t *testing.T) {
	rt := newTestRuntime(t)
	c := newTestContext(t, rt)
	rt.SetDispatcher(dispatcherFunc(func(c *ExecContext, f *Frame) Dispatch {
		return Dispatch{Action: DispatchThrow, Value: ObjectValue(c.NewError("RangeError", "native refused"))}
	}))
	fn := rt.Realm().NewFunction(nativeEntryAdd(), nil)

	_, err := c.Call(ObjectValue(fn), Undefined)
	var serr *errors.ScriptError
	require.True(t, stderrors.As(err, &serr))
	assert.Equal(t, "RangeError", serr.Name)
	assert.Equal(t, "native refused", serr.Msg)
	assert.Equal(t, 0, c.Depth())
}

func TestDispatcherBadResumeIPPanics(t *testing.T) {
	rt := newTestRuntime(t)
	c := newTestContext(t, rt)
	rt.SetDispatcher(dispatcherFunc(func(c *ExecContext, f *Frame) Dispatch {
		return Dispatch{Action: DispatchInterpret, ResumeIP: len(f.Code().Code) + 1}
	}))
	fn := rt.Realm().NewFunction(nativeEntryAdd(), nil)

	assert.PanicsWithError(t, "Protocol Error: dispatcher: resume ip 7 outside add", func() {
		_, _ = c.Call(ObjectValue(fn), Undefined)
	})
}

func TestReconstructStack(t *testing.T) {
	rt := newTestRuntime(t)
	c := newTestContext(t, rt)
	realm := rt.Realm()

	var frames []LogicalFrame
	probe := realm.NewNativeFunction("probe", 0, func(c *ExecContext, this Value, args []Value) (Value, error) {
		frames = c.ReconstructStack()
		return Undefined, nil
	})

	b := NewBuilder("caller", 1).Line(7)
	b.Local("arg")
	b.Emit(OpLoadConst, 4, b.AddConstant(ObjectValue(probe)))
	b.Emit(OpLoadUndefined, 3)
	b.Emit(OpCall, 3, 3, 0)
	b.Emit(OpReturnUndefined)
	caller := realm.NewFunction(b.Build(), nil)

	_, err := c.Call(ObjectValue(caller), NewString("self"), IntegerValue(5))
	require.NoError(t, err)
	require.Len(t, frames, 1)
	f := frames[0]
	assert.Equal(t, "caller", f.Code.Name)
	assert.Same(t, caller, f.Callee)
	assert.Equal(t, NewString("self"), f.This)
	assert.Equal(t, IntegerValue(5), f.Registers[2])
	assert.False(t, f.Construct)
	assert.Equal(t, 7, f.Code.GetLine(f.IP-1))
}
