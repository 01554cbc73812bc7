package vm

import (
	"github.com/google/uuid"
)

// Realm is an isolated script environment: its own global object, global
// binding heap and intrinsic objects. Objects remember the realm that
// created them; access from a realm with a different origin is denied.
type Realm struct {
	ID     uuid.UUID
	Origin string

	rt     *Runtime
	Global *Object
	Heap   *Heap

	// Built-in prototypes
	ObjectPrototype         *Object
	FunctionPrototype       *Object
	ArrayPrototype          *Object
	StringPrototype         *Object
	NumberPrototype         *Object
	BooleanPrototype        *Object
	RegExpPrototype         *Object
	ErrorPrototype          *Object
	TypeErrorPrototype      *Object
	RangeErrorPrototype     *Object
	ReferenceErrorPrototype *Object
	SyntaxErrorPrototype    *Object

	// Constructors
	ObjectConstructor   *Object
	FunctionConstructor *Object
	ArrayConstructor    *Object
	ErrorConstructor    *Object
	RegExpConstructor   *Object

	lastMatch *regexpMatch
}

// NewRealm creates a realm with a fresh set of intrinsics.
func (rt *Runtime) NewRealm(origin string) *Realm {
	r := &Realm{ID: uuid.New(), Origin: origin, rt: rt, Heap: NewHeap(16)}
	r.initIntrinsics()
	rt.realms = append(rt.realms, r)
	return r
}

// Runtime returns the runtime owning the realm.
func (r *Realm) Runtime() *Runtime { return r.rt }

// SameOrigin reports whether code running in other may touch r's objects.
func (r *Realm) SameOrigin(other *Realm) bool {
	return r == other || r.Origin == other.Origin
}

// errorPrototype returns the prototype for an error class name.
func (r *Realm) errorPrototype(name string) *Object {
	switch name {
	case "TypeError":
		return r.TypeErrorPrototype
	case "RangeError":
		return r.RangeErrorPrototype
	case "ReferenceError":
		return r.ReferenceErrorPrototype
	case "SyntaxError":
		return r.SyntaxErrorPrototype
	}
	return r.ErrorPrototype
}

// trace visits the realm's roots.
func (r *Realm) trace(v *Visitor) {
	v.Object(r.Global)
	for _, val := range r.Heap.Values() {
		v.Value(val)
	}
	for _, o := range []*Object{
		r.ObjectPrototype, r.FunctionPrototype, r.ArrayPrototype, r.StringPrototype,
		r.NumberPrototype, r.BooleanPrototype, r.RegExpPrototype, r.ErrorPrototype,
		r.TypeErrorPrototype, r.RangeErrorPrototype, r.ReferenceErrorPrototype,
		r.SyntaxErrorPrototype, r.ObjectConstructor, r.FunctionConstructor,
		r.ArrayConstructor, r.ErrorConstructor, r.RegExpConstructor,
	} {
		v.Object(o)
	}
}
