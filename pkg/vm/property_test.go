package vm

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nooga/esvm/pkg/errors"
)

func TestSetPrototypeRejectsCycles(t *testing.T) {
	rt := newTestRuntime(t)
	c := newTestContext(t, rt)
	realm := rt.Realm()

	a := realm.NewObject()
	b := realm.NewObject()
	putProp(t, c, a, "x", IntegerValue(1))
	putProp(t, c, b, "y", IntegerValue(2))

	require.True(t, c.SetPrototype(b, a))
	assert.Same(t, a, b.Prototype())

	shape := a.Shape()
	epoch := rt.PrototypeEpoch()
	assert.False(t, c.SetPrototype(a, b))
	assert.False(t, c.SetPrototype(a, a))

	assert.Same(t, shape, a.Shape())
	assert.Same(t, realm.ObjectPrototype, a.Prototype())
	assert.Equal(t, epoch, rt.PrototypeEpoch())
	assert.Equal(t, IntegerValue(1), getProp(t, c, a, "x"))
	assert.Equal(t, IntegerValue(1), getProp(t, c, b, "x"))
	assert.Equal(t, IntegerValue(2), getProp(t, c, b, "y"))
}

func TestSetPrototypeBumpsEpoch(t *testing.T) {
	rt := newTestRuntime(t)
	c := newTestContext(t, rt)
	o := rt.Realm().NewObject()

	epoch := rt.PrototypeEpoch()
	require.True(t, c.SetPrototype(o, nil))
	assert.Greater(t, rt.PrototypeEpoch(), epoch)
	assert.Nil(t, o.Prototype())

	o.PreventExtensions()
	assert.False(t, c.SetPrototype(o, rt.Realm().ObjectPrototype))
}

func TestGetCacheability(t *testing.T) {
	rt := newTestRuntime(t)
	c := newTestContext(t, rt)
	realm := rt.Realm()

	proto := realm.NewObject()
	putProp(t, c, proto, "inherited", IntegerValue(1))
	o := realm.NewObjectWithPrototype(proto)
	putProp(t, c, o, "own", IntegerValue(2))

	tests := []struct {
		name   string
		key    string
		result GetResult
		holder *Object
	}{
		{"own", "own", GetFoundCacheable, nil},
		{"prototype", "inherited", GetFoundCacheable, proto},
		{"missing", "absent", GetNotFoundCacheable, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var info CacheInfo
			_, r, err := c.Get(o, NameKey(tt.key), ObjectValue(o), &info)
			require.NoError(t, err)
			assert.Equal(t, tt.result, r)
			assert.Same(t, o.Shape(), info.Shape)
			assert.Equal(t, tt.holder, info.Holder)
		})
	}

	_, r, err := c.Get(o, NameKey("own"), ObjectValue(o), nil)
	require.NoError(t, err)
	assert.Equal(t, GetFound, r, "no info means no caching")
}

func TestArrayLookupsAreNotCacheable(t *testing.T) {
	rt := newTestRuntime(t)
	c := newTestContext(t, rt)
	arr := rt.Realm().NewArray([]Value{IntegerValue(1)})

	var info CacheInfo
	v, r, err := c.Get(arr, lengthKey, ObjectValue(arr), &info)
	require.NoError(t, err)
	assert.Equal(t, GetFound, r)
	assert.Equal(t, NumberValue(1), v)
}

func TestVolatileHostIsNeverCacheable(t *testing.T) {
	rt := newTestRuntime(t)
	c := newTestContext(t, rt)
	realm := rt.Realm()

	h := newTestHost()
	h.volatile = true
	h.props["live"] = IntegerValue(1)
	host := realm.NewHostObject(h, realm.ObjectPrototype)
	o := realm.NewObjectWithPrototype(host)

	var info CacheInfo
	v, r, err := c.Get(host, NameKey("live"), ObjectValue(host), &info)
	require.NoError(t, err)
	assert.Equal(t, GetFound, r)
	assert.Equal(t, IntegerValue(1), v)

	// Lookups passing through the host are not cacheable either, found or not.
	_, r, err = c.Get(o, NameKey("missing"), ObjectValue(o), &info)
	require.NoError(t, err)
	assert.Equal(t, GetNotFound, r)

	_, r, err = c.Get(o, NameKey("hasOwnProperty"), ObjectValue(o), &info)
	require.NoError(t, err)
	assert.Equal(t, GetFound, r)

	h.props["live"] = IntegerValue(2)
	assert.Equal(t, IntegerValue(2), getProp(t, c, o, "live"))

	r2, err := c.Put(o, NameKey("fresh"), True, ObjectValue(o), &info)
	require.NoError(t, err)
	assert.Equal(t, PutOK, r2)

	// Own slots of an object inheriting from the host are not cacheable.
	r2, err = c.Put(o, NameKey("fresh"), False, ObjectValue(o), &info)
	require.NoError(t, err)
	assert.Equal(t, PutOK, r2)
	v, r, err = c.Get(o, NameKey("fresh"), ObjectValue(o), &info)
	require.NoError(t, err)
	assert.Equal(t, GetFound, r)
	assert.Equal(t, False, v)
}

func TestHostSuspendOffThreadReportsSuspend(t *testing.T) {
	rt := newTestRuntime(t)
	c := newTestContext(t, rt)
	realm := rt.Realm()

	h := newTestHost()
	h.suspends = 1
	h.props["slow"] = True
	host := realm.NewHostObject(h, realm.ObjectPrototype)

	_, r, err := c.Get(host, NameKey("slow"), ObjectValue(host), nil)
	require.NoError(t, err)
	assert.Equal(t, GetSuspend, r)
}

func TestHostProtocolViolationPanics(t *testing.T) {
	rt := newTestRuntime(t)
	c := newTestContext(t, rt)
	realm := rt.Realm()

	host := realm.NewHostObject(&lyingHost{testHost: newTestHost()}, nil)
	defer func() {
		r := recover()
		require.NotNil(t, r)
		perr, ok := r.(*errors.ProtocolError)
		require.True(t, ok, "%T", r)
		assert.Equal(t, "Protocol", perr.Kind())
	}()
	c.Get(host, NameKey("ghost"), ObjectValue(host), nil)
}

// lyingHost finds a property that HasOwn denies.
type lyingHost struct {
	*testHost
}

func (h *lyingHost) GetOwn(key PropertyKey, restart any) (Value, HostResult, any) {
	return True, HostFound, nil
}

func TestCrossOriginAccessIsDenied(t *testing.T) {
	rt := newTestRuntime(t)
	other := rt.NewRealm("https://other.example")
	c := newTestContext(t, rt)
	foreign := rt.NewContextIn(other)
	t.Cleanup(foreign.Destroy)

	o := other.NewObject()
	putProp(t, foreign, o, "secret", IntegerValue(42))

	_, r, err := c.Get(o, NameKey("secret"), ObjectValue(o), nil)
	require.NoError(t, err)
	assert.Equal(t, GetSecurityDenied, r)

	pr, err := c.Put(o, NameKey("secret"), IntegerValue(0), ObjectValue(o), nil)
	require.NoError(t, err)
	assert.Equal(t, PutSecurityDenied, pr)

	_, err = c.getOutcome(Undefined, r, NameKey("secret"))
	var exc *Exception
	require.True(t, stderrors.As(err, &exc))
	assert.Contains(t, exc.Error(), "Permission denied")

	// Same origin in another realm is allowed.
	sibling := rt.NewRealm("")
	so := sibling.NewObject()
	putProp(t, c, so, "shared", True)
	assert.Equal(t, True, getProp(t, c, so, "shared"))
}

func TestReadOnlyAndNonExtensible(t *testing.T) {
	rt := newTestRuntime(t)
	c := newTestContext(t, rt)
	o := rt.Realm().NewObject()

	ok, err := c.DefineOwnProperty(o, NameKey("fixed"), DataDescriptor(IntegerValue(1), false, true, false))
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, PutReadOnly, putProp(t, c, o, "fixed", IntegerValue(2)))
	assert.Equal(t, IntegerValue(1), getProp(t, c, o, "fixed"))

	dr, err := c.Delete(o, NameKey("fixed"))
	require.NoError(t, err)
	assert.Equal(t, DeleteRejected, dr)

	// A read-only prototype property blocks creating an own one.
	child := rt.Realm().NewObjectWithPrototype(o)
	assert.Equal(t, PutReadOnly, putProp(t, c, child, "fixed", IntegerValue(3)))
	assert.False(t, c.HasOwn(child, NameKey("fixed")))

	o.PreventExtensions()
	assert.Equal(t, PutReadOnly, putProp(t, c, o, "other", True))
}

func TestDefineOwnPropertyRules(t *testing.T) {
	rt := newTestRuntime(t)
	c := newTestContext(t, rt)
	o := rt.Realm().NewObject()
	key := NameKey("p")

	ok, err := c.DefineOwnProperty(o, key, DataDescriptor(IntegerValue(1), true, false, false))
	require.NoError(t, err)
	require.True(t, ok)

	tests := []struct {
		name string
		desc PropertyDescriptor
		want bool
	}{
		{"make configurable", PropertyDescriptor{Configurable: true, HasConfigurable: true}, false},
		{"change enumerability", PropertyDescriptor{Enumerable: true, HasEnumerable: true}, false},
		{"writable keeps changing value", PropertyDescriptor{Value: IntegerValue(2), HasValue: true}, true},
		{"drop writable", PropertyDescriptor{Writable: false, HasWritable: true}, true},
		{"then value is frozen", PropertyDescriptor{Value: IntegerValue(3), HasValue: true}, false},
		{"same value still fine", PropertyDescriptor{Value: IntegerValue(2), HasValue: true}, true},
		{"cannot regain writable", PropertyDescriptor{Writable: true, HasWritable: true}, false},
		{"cannot become accessor", PropertyDescriptor{HasGet: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := c.DefineOwnProperty(o, key, tt.desc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}

	desc, found, err := c.GetOwnProperty(o, key)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, IntegerValue(2), desc.Value)
	assert.False(t, desc.Writable)
	assert.False(t, desc.Enumerable)
	assert.False(t, desc.Configurable)
}

func TestAccessorProperties(t *testing.T) {
	rt := newTestRuntime(t)
	c := newTestContext(t, rt)
	realm := rt.Realm()
	o := realm.NewObject()

	stored := IntegerValue(10)
	getter := realm.NewNativeFunction("get", 0, func(c *ExecContext, this Value, args []Value) (Value, error) {
		return stored, nil
	})
	setter := realm.NewNativeFunction("set", 1, func(c *ExecContext, this Value, args []Value) (Value, error) {
		stored = args[0]
		return Undefined, nil
	})
	ok, err := c.DefineOwnProperty(o, NameKey("v"), PropertyDescriptor{
		Get: getter, Set: setter, HasGet: true, HasSet: true,
		Configurable: true, HasConfigurable: true,
	})
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, IntegerValue(10), getProp(t, c, o, "v"))
	putProp(t, c, o, "v", NewString("x"))
	assert.Equal(t, NewString("x"), stored)

	// Setters on the prototype run for writes to inheriting objects.
	child := realm.NewObjectWithPrototype(o)
	putProp(t, c, child, "v", True)
	assert.Equal(t, True, stored)
	assert.False(t, c.HasOwn(child, NameKey("v")))

	// Turning the accessor back into data keeps the attributes given.
	ok, err = c.DefineOwnProperty(o, NameKey("v"), DataDescriptor(IntegerValue(5), true, true, true))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, IntegerValue(5), getProp(t, c, o, "v"))
}

func TestArrayLength(t *testing.T) {
	rt := newTestRuntime(t)
	c := newTestContext(t, rt)
	arr := rt.Realm().NewArray([]Value{IntegerValue(1), IntegerValue(2), IntegerValue(3)})

	assert.Equal(t, NumberValue(3), getProp(t, c, arr, "length"))

	putProp(t, c, arr, "length", IntegerValue(1))
	assert.Equal(t, NumberValue(1), getProp(t, c, arr, "length"))
	v, _, err := c.Get(arr, IndexKey(2), ObjectValue(arr), nil)
	require.NoError(t, err)
	assert.True(t, v.IsUndefined())

	_, err = c.Put(arr, IndexKey(9), True, ObjectValue(arr), nil)
	require.NoError(t, err)
	assert.Equal(t, NumberValue(10), getProp(t, c, arr, "length"))

	_, err = c.Put(arr, lengthKey, NumberValue(1.5), ObjectValue(arr), nil)
	var exc *Exception
	require.True(t, stderrors.As(err, &exc))
	assert.Contains(t, exc.Error(), "Invalid array length")

	// A non-configurable element stops truncation just above it.
	ok, err := c.DefineOwnProperty(arr, IndexKey(4), DataDescriptor(True, true, true, false))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, PutReadOnly, putProp(t, c, arr, "length", IntegerValue(0)))
	assert.Equal(t, NumberValue(5), getProp(t, c, arr, "length"))
}

func TestEnumerateOwnNamesOrder(t *testing.T) {
	rt := newTestRuntime(t)
	c := newTestContext(t, rt)
	arr := rt.Realm().NewArray([]Value{True, False})
	putProp(t, c, arr, "name", NewString("n"))
	c.writeData(arr, NameKey("hidden"), True, AttrDontEnum)

	keys, err := c.EnumerateOwnNames(arr, false)
	require.NoError(t, err)
	assert.Equal(t, []PropertyKey{IndexKey(0), IndexKey(1), NameKey("name")}, keys)

	keys, err = c.EnumerateOwnNames(arr, true)
	require.NoError(t, err)
	assert.Equal(t, []PropertyKey{IndexKey(0), IndexKey(1), lengthKey, NameKey("name"), NameKey("hidden")}, keys)
}

func TestShadowingEnumerationHidesInnerNames(t *testing.T) {
	rt := newTestRuntime(t)
	c := newTestContext(t, rt)
	outer := rt.Realm().NewObject()
	inner := rt.Realm().NewObject()
	putProp(t, c, outer, "a", True)
	putProp(t, c, outer, "b", True)
	putProp(t, c, inner, "a", False)
	outer.SetShadowing(true)

	keys, err := c.EnumerateOwnNames(outer, false, inner)
	require.NoError(t, err)
	assert.Equal(t, []PropertyKey{NameKey("b")}, keys)
}
