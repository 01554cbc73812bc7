package vm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nooga/esvm/pkg/config"
)

func testEngineConfig() config.Engine {
	return config.Default().Engine
}

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	rt, err := NewRuntime(testEngineConfig())
	require.NoError(t, err)
	return rt
}

// newTestContext returns a context in the runtime's default realm that is
// destroyed when the test ends.
func newTestContext(t *testing.T, rt *Runtime) *ExecContext {
	t.Helper()
	c := rt.NewContext()
	t.Cleanup(c.Destroy)
	return c
}

func getProp(t *testing.T, c *ExecContext, o *Object, name string) Value {
	t.Helper()
	v, r, err := c.Get(o, NameKey(name), ObjectValue(o), nil)
	require.NoError(t, err)
	v, err = c.getOutcome(v, r, NameKey(name))
	require.NoError(t, err)
	return v
}

func putProp(t *testing.T, c *ExecContext, o *Object, name string, v Value) PutResult {
	t.Helper()
	r, err := c.Put(o, NameKey(name), v, ObjectValue(o), nil)
	require.NoError(t, err)
	return r
}

// nativeFn wraps a Go function for use as a script value.
func nativeFn(rt *Runtime, name string, fn NativeFunc) Value {
	return ObjectValue(rt.Realm().NewNativeFunction(name, 0, fn))
}

// addFunction builds f(a, b) { return a + b }.
func addFunction() *Code {
	b := NewBuilder("add", 2).Line(1)
	a := b.Local("a")
	bb := b.Local("b")
	b.Emit(OpAdd, 4, a, bb)
	b.Emit(OpReturn, 4)
	return b.Build()
}

// throwingChain builds three functions outer -> middle -> inner where
// inner throws a TypeError. It returns outer.
func throwingChain(rt *Runtime) *Object {
	realm := rt.Realm()

	ib := NewBuilder("inner", 0).Line(30)
	ib.Emit(OpGetGlobal, 2, ib.Name("TypeError"))
	ib.Emit(OpLoadConst, 5, ib.AddConstant(NewString("boom")))
	ib.Emit(OpLoadUndefined, 3)
	ib.Emit(OpMove, 4, 2)
	ib.Emit(OpConstruct, 2, 3, 1)
	ib.Line(31).Emit(OpThrow, 2)
	inner := realm.NewFunction(ib.Build(), nil)

	callVia := func(name string, line int, callee *Object) *Object {
		b := NewBuilder(name, 0).Line(line)
		b.Emit(OpLoadConst, 3, b.AddConstant(ObjectValue(callee)))
		b.Emit(OpLoadUndefined, 2)
		b.Emit(OpCall, 2, 2, 0)
		b.Emit(OpReturn, 2)
		return realm.NewFunction(b.Build(), nil)
	}
	middle := callVia("middle", 20, inner)
	return callVia("outer", 10, middle)
}

// testHost is a map-backed host object.
type testHost struct {
	props    map[string]Value
	volatile bool
	denied   bool
	suspends int // GetOwn answers HostSuspend this many times per key
	restarts []any
	gets     int
}

func newTestHost() *testHost {
	return &testHost{props: map[string]Value{}}
}

func (h *testHost) HasOwn(key PropertyKey) HostResult {
	if _, ok := h.props[key.Name()]; ok {
		return HostFound
	}
	return HostNotFound
}

func (h *testHost) GetOwn(key PropertyKey, restart any) (Value, HostResult, any) {
	h.gets++
	if restart != nil {
		h.restarts = append(h.restarts, restart)
	}
	if n, _ := restart.(int); n < h.suspends {
		return Undefined, HostSuspend, n + 1
	}
	v, ok := h.props[key.Name()]
	if !ok {
		return Undefined, HostNotFound, nil
	}
	return v, HostFound, nil
}

func (h *testHost) PutOwn(key PropertyKey, v Value, restart any) (HostResult, any) {
	h.props[key.Name()] = v
	return HostFound, nil
}

func (h *testHost) DeleteOwn(key PropertyKey) HostResult {
	if _, ok := h.props[key.Name()]; !ok {
		return HostNotFound
	}
	delete(h.props, key.Name())
	return HostFound
}

func (h *testHost) EnumerateOwn() []PropertyKey {
	keys := make([]PropertyKey, 0, len(h.props))
	for k := range h.props {
		keys = append(keys, NameKey(k))
	}
	return keys
}

func (h *testHost) IsVolatile() bool               { return h.volatile }
func (h *testHost) IsAccessibleFrom(_ *Realm) bool { return !h.denied }
