package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTracer struct {
	held    []*Object
	visits  int
	visitor *Visitor
}

func (r *recordingTracer) Trace(v *Visitor) {
	r.visits++
	r.visitor = v
	for _, o := range r.held {
		v.Object(o)
	}
}

// tracedHost is a host object holding a script value of its own.
type tracedHost struct {
	*testHost
	ref *Object
}

func (h *tracedHost) Trace(v *Visitor) { v.Object(h.ref) }

func TestCollectMarksReachableObjects(t *testing.T) {
	rt := newTestRuntime(t)
	c := newTestContext(t, rt)
	realm := rt.Realm()

	global := realm.NewObject()
	putProp(t, c, realm.Global, "kept", ObjectValue(global))
	nested := realm.NewObject()
	putProp(t, c, global, "child", ObjectValue(nested))

	held := realm.NewObject()
	rooted := realm.NewObject()
	hostRef := realm.NewObject()
	host := realm.NewHostObject(&tracedHost{testHost: newTestHost(), ref: hostRef}, nil)
	putProp(t, c, held, "host", ObjectValue(host))
	orphan := realm.NewObject()

	tr := &recordingTracer{held: []*Object{held}}
	rt.Collector().AddTracer(tr)
	c.PushRoot(ObjectValue(rooted))
	defer c.PopRoot()

	stats, err := rt.Collector().Collect()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Cycle)
	assert.Equal(t, 1, tr.visits)
	assert.Positive(t, stats.Objects)

	v := tr.visitor
	for name, o := range map[string]*Object{
		"global property": global,
		"nested":          nested,
		"tracer":          held,
		"root":            rooted,
		"host reference":  hostRef,
		"prototype":       realm.ObjectPrototype,
	} {
		assert.True(t, v.Marked(o), name)
	}
	assert.False(t, v.Marked(orphan))
}

func TestCollectRefusesWhileLocked(t *testing.T) {
	rt := newTestRuntime(t)
	gc := rt.Collector()

	err := gc.WithLock(func() error {
		_, err := gc.Collect()
		return err
	})
	assert.ErrorContains(t, err, "collector locked")
	assert.Zero(t, gc.Depth())
	assert.Panics(t, gc.Unlock)
}

func TestPendingCollectionRunsAtSafePoint(t *testing.T) {
	cfg := testEngineConfig()
	cfg.GCAllocationThreshold = 1
	rt, err := NewRuntime(cfg)
	require.NoError(t, err)
	c := newTestContext(t, rt)
	tr := &recordingTracer{}
	rt.Collector().AddTracer(tr)

	b := NewBuilder("main", 0)
	b.Emit(OpNewObject, 2)
	b.Emit(OpCheckpoint)
	b.Emit(OpReturn, 2)
	result := runProgram(t, c, b.Build())

	assert.Equal(t, 1, tr.visits)
	assert.True(t, tr.visitor.Marked(result.AsObject()), "registers of the running frame are roots")
	assert.False(t, rt.Collector().Pending())
}

func TestPendingCollectionRunsWhenSliceExpires(t *testing.T) {
	cfg := testEngineConfig()
	cfg.GCAllocationThreshold = 1
	cfg.TimesliceQuota = 2
	cfg.TimesliceQuotaMax = 4
	rt, err := NewRuntime(cfg)
	require.NoError(t, err)
	c := newTestContext(t, rt)
	tr := &recordingTracer{}
	rt.Collector().AddTracer(tr)

	b := NewBuilder("main", 0)
	b.Emit(OpLoadConst, 2, b.AddConstant(IntegerValue(0)))
	b.Emit(OpLoadConst, 3, b.AddConstant(IntegerValue(1)))
	b.Emit(OpLoadConst, 4, b.AddConstant(IntegerValue(10)))
	loop := b.Offset()
	b.Emit(OpNewObject, 5)
	b.Emit(OpAdd, 2, 2, 3)
	b.Emit(OpLess, 6, 2, 4)
	b.Emit(OpJumpIfTrue, 6, loop)
	b.Emit(OpReturn, 2)
	result := runProgram(t, c, b.Build())

	assert.Equal(t, IntegerValue(10), result)
	assert.Positive(t, tr.visits, "slice expiry is a safe point")
}

func TestClosureScopesAreTraced(t *testing.T) {
	rt := newTestRuntime(t)
	c := newTestContext(t, rt)
	realm := rt.Realm()

	inner := NewBuilder("inner", 0)
	inner.Emit(OpGetScoped, 2, inner.Name("v"))
	inner.Emit(OpReturn, 2)

	outer := NewBuilder("outer", 0)
	v := outer.Local("v")
	outer.Emit(OpNewObject, v)
	outer.Emit(OpClosure, 3, outer.Function(inner.Build()))
	outer.Emit(OpReturn, 3)
	fn := realm.NewFunction(outer.Build(), nil)

	closure, err := c.Call(ObjectValue(fn), Undefined)
	require.NoError(t, err)
	captured, err := c.Call(closure, Undefined)
	require.NoError(t, err)

	tr := &recordingTracer{held: []*Object{closure.AsObject()}}
	rt.Collector().AddTracer(tr)
	_, err = rt.Collector().Collect()
	require.NoError(t, err)

	scope := closure.AsObject().internal.(*Function).scope
	require.NotNil(t, scope)
	assert.True(t, tr.visitor.Marked(scope.vars))
	assert.True(t, tr.visitor.Marked(captured.AsObject()), "detached locals stay reachable")
}
