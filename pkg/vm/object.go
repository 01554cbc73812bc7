package vm

import "fmt"

// ObjectClass identifies the internal behaviour of an object.
type ObjectClass uint8

const (
	ClassObject ObjectClass = iota
	ClassArray
	ClassFunction
	ClassNativeFunction
	ClassBoundFunction
	ClassError
	ClassString
	ClassNumber
	ClassBoolean
	ClassRegExp
	ClassArguments
	ClassVariables
	ClassGlobal
	ClassHost
	ClassTypedArray
)

var classNames = [...]string{
	"Object", "Array", "Function", "Function", "Function", "Error", "String",
	"Number", "Boolean", "RegExp", "Arguments", "Variables", "global", "Host",
	"TypedArray",
}

func (c ObjectClass) String() string {
	if int(c) < len(classNames) {
		return classNames[c]
	}
	return "Unknown"
}

type objectFlags uint16

const (
	flagExtensible objectFlags = 1 << iota
	flagPrototype              // some shape uses this object as prototype
	flagHost                   // properties supplied by a HostObject
	flagShadowing              // with-scope object hiding inner names
	flagStrict                 // arguments: unmapped
	flagLengthReadOnly         // arrays: length not writable
	flagConstructing           // instance still being built by its constructor
)

// inlineSlots is the number of property slots stored in the object header.
// Larger property buffers are allocated separately.
const inlineSlots = 4

// Object is a script object: a shape, the property buffer laid out by it,
// an optional indexed store and status bits.
type Object struct {
	rt     *Runtime
	shape  *Shape
	slots  []Value
	inline [inlineSlots]Value
	// count is the number of shape properties initialized so far. It lags
	// behind shape.Len() while a constructor builds the object.
	count   int
	indexed IndexedStore
	class   ObjectClass
	flags   objectFlags

	protoRefs int // shapes using this object as their prototype
	churn     int // deletions from a shared layout
	length    uint32
	realm     *Realm
	host      HostObject
	internal  any
}

func (o *Object) Shape() *Shape              { return o.shape }
func (o *Object) Class() ObjectClass         { return o.class }
func (o *Object) Realm() *Realm              { return o.realm }
func (o *Object) Prototype() *Object         { return o.shape.prototype }
func (o *Object) IsExtensible() bool         { return o.flags&flagExtensible != 0 }
func (o *Object) IsPrototype() bool          { return o.flags&flagPrototype != 0 }
func (o *Object) IsHost() bool               { return o.flags&flagHost != 0 }
func (o *Object) IndexedStore() IndexedStore { return o.indexed }

// PreventExtensions makes the object non-extensible.
func (o *Object) PreventExtensions() {
	o.flags &^= flagExtensible
}

// SetShadowing marks o as a scope object that hides names of inner objects.
func (o *Object) SetShadowing(on bool) {
	if on {
		o.flags |= flagShadowing
	} else {
		o.flags &^= flagShadowing
	}
}

// PropertyCount returns the number of live own shape properties.
func (o *Object) PropertyCount() int { return o.count }

// IsCallable reports whether the object can be called.
func (o *Object) IsCallable() bool {
	switch o.class {
	case ClassFunction, ClassNativeFunction, ClassBoundFunction:
		return true
	case ClassHost:
		_, ok := o.host.(HostCallable)
		return ok
	}
	return false
}

func (o *Object) addPrototypeRef() {
	o.protoRefs++
	o.flags |= flagPrototype
}

func (o *Object) dropPrototypeRef() {
	if o.protoRefs > 0 {
		o.protoRefs--
	}
}

// --- Allocation ---

func (r *Realm) allocate(shape *Shape, class ObjectClass) *Object {
	rt := r.rt
	o := &Object{rt: rt, class: class, flags: flagExtensible, realm: r}
	o.shape = rt.shapes.Adopt(shape, o)
	o.slots = o.buffer(o.shape.slots)
	o.count = o.shape.Len()
	rt.collector.noteAllocation()
	return o
}

// allocateSingleton creates an object owning a fresh singleton shape.
func (r *Realm) allocateSingleton(proto *Object, class ObjectClass) *Object {
	rt := r.rt
	o := &Object{rt: rt, class: class, flags: flagExtensible, realm: r}
	o.shape = rt.shapes.NewSingleton(proto, o)
	o.slots = o.inline[:0]
	rt.collector.noteAllocation()
	return o
}

// allocateConstructing creates an instance at a constructor's remembered
// final shape with no properties initialized yet.
func (r *Realm) allocateConstructing(shape *Shape) *Object {
	o := r.allocate(shape, ClassObject)
	o.count = 0
	o.flags |= flagConstructing
	for i := range o.slots {
		o.slots[i] = Undefined
	}
	return o
}

// buffer returns a property buffer of n slots, inline when it fits.
func (o *Object) buffer(n int) []Value {
	if n <= inlineSlots {
		return o.inline[:n:inlineSlots]
	}
	return make([]Value, n, n+n/2)
}

// grow makes room for at least minCapacity slots, keeping written slots.
func (o *Object) grow(minCapacity int) {
	if minCapacity <= len(o.slots) {
		return
	}
	if minCapacity <= cap(o.slots) {
		o.slots = o.slots[:minCapacity]
		return
	}
	next := make([]Value, minCapacity, minCapacity+minCapacity/2)
	copy(next, o.slots)
	o.slots = next
}

// convert relays the property buffer from the current shape to next, one
// property at a time. Values are transiently referenced only by the
// scratch buffer, so the collector is held off.
func (o *Object) convert(next *Shape) {
	gc := o.rt.collector
	gc.Lock()
	defer gc.Unlock()

	prev := o.shape
	buf := make([]Value, next.slots)
	for _, p := range next.props {
		if p.Offset < 0 {
			continue
		}
		old, i, ok := prev.Lookup(p.Key)
		if !ok || i >= o.count {
			buf[p.Offset] = Undefined
			continue
		}
		buf[p.Offset] = o.readSlot(old)
	}
	o.shape = next
	if next.slots <= inlineSlots {
		o.slots = o.inline[:next.slots:inlineSlots]
		copy(o.slots, buf)
	} else {
		o.slots = buf
	}
	o.count = next.Len()
}

// setShape installs next, either as an O(1) swap when offsets agree or
// through a full conversion.
func (o *Object) setShape(next *Shape, cascade bool) {
	if next == o.shape {
		o.grow(next.slots)
		o.count = next.Len()
		o.structureChanged()
		return
	}
	if cascade {
		o.convert(next)
	} else {
		o.shape = next
		o.grow(next.slots)
		o.count = next.Len()
	}
	o.structureChanged()
}

// structureChanged invalidates caches that may have recorded this object
// as a prototype holder.
func (o *Object) structureChanged() {
	if o.flags&flagPrototype != 0 && o.protoRefs > 0 {
		o.rt.protoEpoch++
	}
}

// settle ends incremental construction: the shape is cut back to the
// properties actually initialized.
func (o *Object) settle() {
	o.flags &^= flagConstructing
	if o.count >= o.shape.Len() {
		return
	}
	anc := o.shape.ancestor(o.count)
	if anc == nil {
		anc = o.rt.shapes.Root(o.shape.prototype)
	}
	o.shape = anc
	o.count = anc.Len()
}

// readSlot returns the stored value of p. Zero-width types imply theirs.
func (o *Object) readSlot(p PropertyInfo) Value {
	switch {
	case p.Offset >= 0:
		return o.slots[p.Offset]
	case p.Type == StorageNull:
		return Null
	default:
		return Undefined
	}
}

func (o *Object) writeSlot(p PropertyInfo, v Value) {
	if p.Offset >= 0 {
		o.slots[p.Offset] = v
	}
}

// ownProperty looks key up among the initialized shape properties.
func (o *Object) ownProperty(key PropertyKey) (PropertyInfo, int, bool) {
	p, i, ok := o.shape.Lookup(key)
	if !ok || i >= o.count {
		return PropertyInfo{}, -1, false
	}
	return p, i, true
}

// addProperty appends key to the object, promoting it to a hash table when
// the property count crosses the configured ceiling.
func (o *Object) addProperty(key PropertyKey, attrs Attr, v Value) PropertyInfo {
	if o.flags&flagConstructing != 0 {
		if o.count < o.shape.Len() {
			next := o.shape.props[o.count]
			if next.Key == key && next.Attrs == attrs && next.Type.Accepts(v) {
				o.count++
				o.writeSlot(next, v)
				return next
			}
		}
		o.settle()
	}
	typ := StorageTypeFor(v)
	if attrs.isBoxed() {
		typ = StorageBoxed
	}
	reg := o.rt.shapes
	if o.shape.kind == ShapeShared && o.count+1 > o.rt.cfg.HashTableThreshold {
		o.setShape(reg.PromoteToHashTable(o.shape, o, o.count), true)
	}
	next := reg.ExtendWith(o.shape, key, attrs, typ)
	o.setShape(next, false)
	p, _, _ := next.Lookup(key)
	o.writeSlot(p, v)
	return p
}

// removeProperty deletes key from the layout.
func (o *Object) removeProperty(key PropertyKey) {
	o.settle()
	reg := o.rt.shapes
	p, i, ok := o.ownProperty(key)
	if !ok {
		return
	}
	if o.shape.kind == ShapeShared && i != o.count-1 {
		o.churn++
		if o.churn >= o.rt.cfg.DeleteChurnThreshold {
			o.setShape(reg.PromoteToHashTable(o.shape, o, o.count), true)
			p, _, _ = o.ownProperty(key)
		}
	}
	if o.shape.kind == ShapeHashed && p.Offset >= 0 {
		o.slots[p.Offset] = Undefined
	}
	next, cascade := reg.DeleteProperty(o.shape, key)
	o.setShape(next, cascade)
}

// retype widens the storage type of property index so that v fits.
func (o *Object) retype(index int, v Value) PropertyInfo {
	o.settle()
	p := o.shape.props[index]
	typ := p.Type.widen(StorageTypeFor(v))
	return o.retypeTo(index, typ)
}

func (o *Object) retypeTo(index int, typ StorageType) PropertyInfo {
	key := o.shape.props[index].Key
	next, cascade := o.rt.shapes.ChangeType(o.shape, index, typ)
	o.setShape(next, cascade)
	p, _, _ := o.shape.Lookup(key)
	return p
}

func (o *Object) changeAttributes(key PropertyKey, attrs Attr) {
	o.settle()
	next, cascade := o.rt.shapes.ChangeAttribute(o.shape, key, attrs)
	o.setShape(next, cascade)
}

// --- Indexed store ---

// SetIndexedStore attaches a backing store for integer keys, copying any
// existing elements into it.
func (o *Object) SetIndexedStore(s IndexedStore) {
	if o.indexed == nil {
		o.indexed = s
		return
	}
	gc := o.rt.collector
	gc.Lock()
	defer gc.Unlock()
	for _, i := range o.indexed.Keys(nil) {
		v, attrs, _ := o.indexed.Get(i)
		s.Define(i, v, attrs)
	}
	o.indexed = s
	o.structureChanged()
}

// indexedForWrite returns a store able to hold (i, attrs), converting dense
// storage to sparse when the write would not fit.
func (o *Object) indexedForWrite(i uint32, attrs Attr) IndexedStore {
	if o.indexed == nil {
		if attrs == AttrNone && i < denseGapLimit {
			o.indexed = newDenseStore(0)
		} else {
			o.indexed = newSparseStore()
		}
		return o.indexed
	}
	if d, ok := o.indexed.(*denseStore); ok && !d.fits(i, attrs) {
		o.SetIndexedStore(newSparseStore())
	}
	return o.indexed
}

func (o *Object) arrayLength() uint32 {
	return o.length
}

// --- Diagnostics ---

func (o *Object) functionName() string {
	switch d := o.internal.(type) {
	case *Function:
		return d.code.Name
	case *NativeFunction:
		return d.name
	case *BoundFunction:
		return "bound " + d.target.functionName()
	}
	return "anonymous"
}

func (o *Object) errorSummary() string {
	name, msg := "Error", ""
	if p, _, ok := o.ownOrInheritedData(NameKey("name")); ok && p.IsString() {
		name = p.str
	}
	if p, _, ok := o.ownOrInheritedData(NameKey("message")); ok && p.IsString() {
		msg = p.str
	}
	if msg == "" {
		return name
	}
	return name + ": " + msg
}

// ownOrInheritedData reads a plain data property along the chain without
// invoking accessors or specials.
func (o *Object) ownOrInheritedData(key PropertyKey) (Value, *Object, bool) {
	for cur := o; cur != nil; cur = cur.shape.prototype {
		if p, _, ok := cur.ownProperty(key); ok {
			if p.Attrs.isBoxed() {
				return Undefined, cur, false
			}
			return cur.readSlot(p), cur, true
		}
	}
	return Undefined, nil, false
}

func (o *Object) String() string {
	return fmt.Sprintf("%s@%s", o.class, o.shape)
}
