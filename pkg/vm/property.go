package vm

import (
	"fmt"
	"math"
	"unicode/utf16"
)

// GetResult is the outcome of a property read.
type GetResult uint8

const (
	GetNotFound GetResult = iota
	GetNotFoundCacheable
	GetFound
	GetFoundCacheable
	GetSecurityDenied
	GetSuspend
	GetOutOfMemory
	GetFailed // a getter threw
)

var getResultNames = [...]string{
	"not-found", "not-found-cacheable", "found", "found-cacheable",
	"security-denied", "suspend", "out-of-memory", "failed",
}

func (r GetResult) String() string { return getResultNames[r] }

// Found reports whether a value was produced.
func (r GetResult) Found() bool { return r == GetFound || r == GetFoundCacheable }

// Cacheable reports whether the call site may remember the outcome.
func (r GetResult) Cacheable() bool { return r == GetFoundCacheable || r == GetNotFoundCacheable }

// PutResult is the outcome of a property write.
type PutResult uint8

const (
	PutOK PutResult = iota
	PutOKCacheable    // existing own slot; site may cache (shape, offset)
	PutOKCacheableNew // added property; site may cache (old shape -> new shape, offset)
	PutReadOnly
	PutSecurityDenied
	PutFailed
	PutSuspend
	PutOutOfMemory
)

var putResultNames = [...]string{
	"ok", "ok-cacheable", "ok-cacheable-new", "read-only", "security-denied",
	"failed", "suspend", "out-of-memory",
}

func (r PutResult) String() string { return putResultNames[r] }

func (r PutResult) OK() bool { return r <= PutOKCacheableNew }

// DeleteResult is the outcome of a property deletion.
type DeleteResult uint8

const (
	DeleteOK DeleteResult = iota
	DeleteRejected
)

// CacheInfo is filled by cacheable Get and Put results.
type CacheInfo struct {
	Shape    *Shape // receiver shape the result is valid for
	Serial   uint32
	Position int // property position; the receiver must have initialized it
	Offset   int
	Type     StorageType
	Holder   *Object // prototype holding the property; nil for own
	Epoch    uint64
	NewShape *Shape // PutOKCacheableNew only
}

// maxPrototypeDepth bounds chain walks.
const maxPrototypeDepth = 10000

var lengthKey = NameKey("length")

// exotic objects answer some named keys outside their shape.
func (o *Object) exotic() bool {
	switch o.class {
	case ClassArray, ClassString, ClassTypedArray, ClassHost:
		return true
	}
	return false
}

// computedOwn reports whether key is an own property computed from the
// object's internal state rather than stored: string characters and
// length values.
func (o *Object) computedOwn(key PropertyKey) bool {
	switch {
	case key == lengthKey:
		return o.class == ClassArray || o.class == ClassString || o.class == ClassTypedArray
	case key.IsIndex() && o.class == ClassString:
		return int64(key.Index()) < int64(len(o.internal.(*primitiveData).units))
	}
	return false
}

// accessible reports whether the running realm may touch o.
func (c *ExecContext) accessible(o *Object) bool {
	if o.host != nil {
		return o.host.IsAccessibleFrom(c.realm)
	}
	if o.realm == nil || c.realm == nil || o.realm == c.realm {
		return true
	}
	return o.realm.Origin == c.realm.Origin
}

// exoticOwn answers keys that live outside the shape: indexed elements,
// string characters and array/string length.
func (c *ExecContext) exoticOwn(o *Object, key PropertyKey) (Value, Attr, bool) {
	if key.IsIndex() {
		if o.class == ClassString {
			units := o.internal.(*primitiveData).units
			if int64(key.Index()) < int64(len(units)) {
				return NewString(string(utf16.Decode(units[key.Index() : key.Index()+1]))), AttrReadOnly | AttrDontDelete, true
			}
		}
		if o.indexed != nil {
			if v, attrs, ok := o.indexed.Get(key.Index()); ok {
				return v, attrs, true
			}
		}
		return Undefined, AttrNone, false
	}
	if key == lengthKey {
		switch o.class {
		case ClassArray:
			attrs := AttrDontEnum | AttrDontDelete
			if o.flags&flagLengthReadOnly != 0 {
				attrs |= AttrReadOnly
			}
			return NumberValue(float64(o.length)), attrs, true
		case ClassString:
			return IntegerValue(len(o.internal.(*primitiveData).units)), AttrReadOnly | AttrDontEnum | AttrDontDelete, true
		case ClassTypedArray:
			return NumberValue(float64(o.indexed.Bound())), AttrReadOnly | AttrDontEnum | AttrDontDelete, true
		}
	}
	return Undefined, AttrNone, false
}

// inheritsVolatile reports whether a volatile host sits on obj's prototype
// chain. Nothing reached through such a chain is cacheable.
func inheritsVolatile(obj *Object) bool {
	for depth, p := 0, obj.shape.prototype; p != nil && depth <= maxPrototypeDepth; depth, p = depth+1, p.shape.prototype {
		if p.host != nil && p.host.IsVolatile() {
			return true
		}
	}
	return false
}

// Get reads key from obj, walking the prototype chain. receiver is the
// this value for getters. When info is non-nil and the result is
// cacheable, info describes how to repeat the lookup.
func (c *ExecContext) Get(obj *Object, key PropertyKey, receiver Value, info *CacheInfo) (Value, GetResult, error) {
	cacheable := info != nil && !key.IsIndex() && obj.shape.kind != ShapeHashed && !obj.exotic() &&
		obj.flags&flagConstructing == 0 && !inheritsVolatile(obj)
	cur := obj
	for depth := 0; cur != nil; depth++ {
		if depth > maxPrototypeDepth {
			return Undefined, GetFailed, c.RangeError("prototype chain too deep")
		}
		if !c.accessible(cur) {
			return Undefined, GetSecurityDenied, nil
		}
		if cur.host != nil {
			v, r, err := c.hostGet(cur, key)
			switch {
			case err != nil:
				return Undefined, GetFailed, err
			case r == HostFound:
				return v, GetFound, nil
			case r == HostSuspend:
				return Undefined, GetSuspend, nil
			case r == HostDenied:
				return Undefined, GetSecurityDenied, nil
			case r == HostFailed:
				return Undefined, GetFailed, c.TypeError(fmt.Sprintf("cannot read property '%s' of host object", key))
			}
			if cur.host.IsVolatile() {
				cacheable = false
			}
		}
		if v, _, ok := c.exoticOwn(cur, key); ok {
			return v, GetFound, nil
		}
		if p, i, ok := cur.ownProperty(key); ok {
			v := cur.readSlot(p)
			if p.Attrs.isBoxed() {
				return c.getSpecial(v.special(), receiver, cur, p)
			}
			if cacheable && cur.shape.kind != ShapeHashed {
				*info = CacheInfo{Shape: obj.shape, Serial: obj.shape.serial, Position: i, Offset: p.Offset, Type: p.Type, Epoch: c.rt.protoEpoch}
				if cur != obj {
					info.Holder = cur
					info.Position = -1
				}
				return v, GetFoundCacheable, nil
			}
			return v, GetFound, nil
		}
		if cur.shape.kind == ShapeHashed || cur.exotic() {
			cacheable = false
		}
		cur = cur.shape.prototype
	}
	if cacheable {
		*info = CacheInfo{Shape: obj.shape, Serial: obj.shape.serial, Position: -1, Offset: -1, Epoch: c.rt.protoEpoch}
		return Undefined, GetNotFoundCacheable, nil
	}
	return Undefined, GetNotFound, nil
}

// Put writes v to key on obj.
func (c *ExecContext) Put(obj *Object, key PropertyKey, v Value, receiver Value, info *CacheInfo) (PutResult, error) {
	if !c.accessible(obj) {
		return PutSecurityDenied, nil
	}
	if obj.host != nil {
		r, err := c.hostPut(obj, key, v)
		switch {
		case err != nil:
			return PutFailed, err
		case r == HostFound:
			return PutOK, nil
		case r == HostSuspend:
			return PutSuspend, nil
		case r == HostDenied:
			return PutSecurityDenied, nil
		case r == HostReadOnly:
			return PutReadOnly, nil
		case r == HostFailed:
			return PutFailed, c.TypeError(fmt.Sprintf("cannot set property '%s' of host object", key))
		}
	}
	if key.IsIndex() {
		if _, _, ok := obj.ownProperty(key); !ok {
			return c.putIndexed(obj, key.Index(), v, receiver)
		}
	}
	if key == lengthKey && obj.exotic() {
		switch obj.class {
		case ClassArray:
			return c.putArrayLength(obj, v)
		case ClassString, ClassTypedArray:
			return PutReadOnly, nil
		}
	}

	if p, i, ok := obj.ownProperty(key); ok {
		cur := obj.readSlot(p)
		if p.Attrs.isBoxed() {
			return c.putSpecial(cur.special(), receiver, obj, p, v)
		}
		if !p.Attrs.Writable() {
			return PutReadOnly, nil
		}
		if !p.Type.Accepts(v) {
			p = obj.retype(i, v)
			obj.writeSlot(p, v)
			return PutOK, nil
		}
		obj.writeSlot(p, v)
		if info != nil && obj.shape.kind != ShapeHashed && !obj.exotic() && obj.flags&flagConstructing == 0 &&
			!inheritsVolatile(obj) {
			*info = CacheInfo{Shape: obj.shape, Serial: obj.shape.serial, Position: i, Offset: p.Offset, Type: p.Type, Epoch: c.rt.protoEpoch}
			return PutOKCacheable, nil
		}
		return PutOK, nil
	}

	cacheable := info != nil && !obj.exotic()
	for depth, proto := 0, obj.shape.prototype; proto != nil; depth, proto = depth+1, proto.shape.prototype {
		if depth > maxPrototypeDepth {
			return PutFailed, c.RangeError("prototype chain too deep")
		}
		if !c.accessible(proto) {
			return PutSecurityDenied, nil
		}
		if proto.host != nil {
			if proto.host.IsVolatile() {
				cacheable = false
			}
			if proto.host.HasOwn(key) == HostFound {
				cacheable = false
				break
			}
		}
		p, _, ok := proto.ownProperty(key)
		if !ok {
			if proto.shape.kind == ShapeHashed {
				cacheable = false
			}
			continue
		}
		if p.Attrs&AttrAccessor != 0 {
			return c.putSpecial(proto.readSlot(p).special(), receiver, proto, p, v)
		}
		if !p.Attrs.Writable() {
			return PutReadOnly, nil
		}
		cacheable = false
		break
	}

	if !obj.IsExtensible() {
		return PutReadOnly, nil
	}
	before := obj.shape
	sharedBefore := before.kind == ShapeShared && obj.flags&flagConstructing == 0
	p := obj.addProperty(key, AttrNone, v)
	if cacheable && sharedBefore && obj.shape.kind == ShapeShared && obj.shape.parent == before {
		*info = CacheInfo{Shape: before, Position: obj.count - 1, Offset: p.Offset, Type: p.Type, Epoch: c.rt.protoEpoch, NewShape: obj.shape}
		return PutOKCacheableNew, nil
	}
	return PutOK, nil
}

func (c *ExecContext) putIndexed(obj *Object, i uint32, v Value, receiver Value) (PutResult, error) {
	if obj.class == ClassString {
		if int64(i) < int64(len(obj.internal.(*primitiveData).units)) {
			return PutReadOnly, nil
		}
	}
	if obj.indexed != nil {
		if _, attrs, ok := obj.indexed.Get(i); ok {
			if !attrs.Writable() {
				return PutReadOnly, nil
			}
			obj.indexed.Set(i, v)
			return PutOK, nil
		}
		if obj.indexed.Kind() == IndexedTyped {
			return PutOK, nil
		}
	}
	for proto := obj.shape.prototype; proto != nil; proto = proto.shape.prototype {
		if !c.accessible(proto) {
			return PutSecurityDenied, nil
		}
		if _, attrs, ok := c.exoticOwn(proto, IndexKey(i)); ok {
			if !attrs.Writable() {
				return PutReadOnly, nil
			}
			break
		}
	}
	if !obj.IsExtensible() {
		return PutReadOnly, nil
	}
	if obj.class == ClassArray && i >= obj.length {
		if obj.flags&flagLengthReadOnly != 0 {
			return PutReadOnly, nil
		}
		obj.length = i + 1
	}
	obj.indexedForWrite(i, AttrNone).Set(i, v)
	return PutOK, nil
}

// putArrayLength applies a script write to an array's length.
func (c *ExecContext) putArrayLength(obj *Object, v Value) (PutResult, error) {
	n, err := c.ToNumber(v)
	if err != nil {
		return PutFailed, err
	}
	newLen := toUint32(n)
	if float64(newLen) != n {
		return PutFailed, c.RangeError("Invalid array length")
	}
	if obj.flags&flagLengthReadOnly != 0 {
		return PutReadOnly, nil
	}
	if !obj.setArrayLength(newLen) {
		return PutReadOnly, nil
	}
	return PutOK, nil
}

// setArrayLength truncates or extends; it fails when a non-configurable
// element blocks truncation, leaving length just above it.
func (o *Object) setArrayLength(n uint32) bool {
	if n >= o.length || o.indexed == nil {
		o.length = n
		return true
	}
	bound := o.indexed.Truncate(n)
	if bound > n {
		o.length = bound
		return false
	}
	o.length = n
	return true
}

// Delete removes an own property.
func (c *ExecContext) Delete(obj *Object, key PropertyKey) (DeleteResult, error) {
	if !c.accessible(obj) {
		return DeleteRejected, c.securityError(key)
	}
	if obj.host != nil {
		r := obj.host.DeleteOwn(key)
		checkHostResult("DeleteOwn", r, HostNotFound, HostFound, HostReadOnly, HostDenied)
		switch r {
		case HostFound:
			return DeleteOK, nil
		case HostReadOnly, HostDenied:
			return DeleteRejected, nil
		}
	}
	if _, attrs, ok := c.exoticOwn(obj, key); ok {
		if !attrs.Configurable() {
			return DeleteRejected, nil
		}
		if obj.indexed != nil && key.IsIndex() && !obj.indexed.Delete(key.Index()) {
			return DeleteRejected, nil
		}
		return DeleteOK, nil
	}
	p, _, ok := obj.ownProperty(key)
	if !ok {
		return DeleteOK, nil
	}
	if !p.Attrs.Configurable() {
		return DeleteRejected, nil
	}
	obj.removeProperty(key)
	return DeleteOK, nil
}

// HasOwn reports whether obj has key as an own property.
func (c *ExecContext) HasOwn(obj *Object, key PropertyKey) bool {
	if obj.host != nil && obj.host.HasOwn(key) == HostFound {
		return true
	}
	if _, _, ok := c.exoticOwn(obj, key); ok {
		return true
	}
	_, _, ok := obj.ownProperty(key)
	return ok
}

// Has implements the in operator.
func (c *ExecContext) Has(obj *Object, key PropertyKey) (bool, error) {
	for depth, cur := 0, obj; cur != nil; depth, cur = depth+1, cur.shape.prototype {
		if depth > maxPrototypeDepth {
			return false, c.RangeError("prototype chain too deep")
		}
		if !c.accessible(cur) {
			return false, c.securityError(key)
		}
		if c.HasOwn(cur, key) {
			return true, nil
		}
	}
	return false, nil
}

// SetPrototype changes obj's prototype. It fails, without touching any
// shape, when proto has obj on its own chain or obj is not extensible.
func (c *ExecContext) SetPrototype(obj *Object, proto *Object) bool {
	if obj.shape.prototype == proto {
		return true
	}
	if !obj.IsExtensible() {
		return false
	}
	for depth, p := 0, proto; p != nil; depth, p = depth+1, p.shape.prototype {
		if p == obj || depth > maxPrototypeDepth {
			return false
		}
	}
	obj.settle()
	obj.setShape(obj.rt.shapes.ChangePrototype(obj.shape, proto), false)
	c.rt.protoEpoch++
	return true
}

// --- Descriptors ---

// PropertyDescriptor is a partial property description; the Has* fields
// say which parts are present.
type PropertyDescriptor struct {
	Value        Value
	Get, Set     *Object
	Writable     bool
	Enumerable   bool
	Configurable bool

	HasValue, HasGet, HasSet                 bool
	HasWritable, HasEnumerable, HasConfigurable bool
}

func (d PropertyDescriptor) isAccessor() bool { return d.HasGet || d.HasSet }
func (d PropertyDescriptor) isData() bool     { return d.HasValue || d.HasWritable }
func (d PropertyDescriptor) isGeneric() bool  { return !d.isAccessor() && !d.isData() }

// DataDescriptor returns a complete data descriptor.
func DataDescriptor(v Value, writable, enumerable, configurable bool) PropertyDescriptor {
	return PropertyDescriptor{
		Value: v, Writable: writable, Enumerable: enumerable, Configurable: configurable,
		HasValue: true, HasWritable: true, HasEnumerable: true, HasConfigurable: true,
	}
}

func attrsFor(writable, enumerable, configurable bool) Attr {
	var a Attr
	if !writable {
		a |= AttrReadOnly
	}
	if !enumerable {
		a |= AttrDontEnum
	}
	if !configurable {
		a |= AttrDontDelete
	}
	return a
}

// GetOwnProperty returns the descriptor of an own property without running
// getters.
func (c *ExecContext) GetOwnProperty(obj *Object, key PropertyKey) (PropertyDescriptor, bool, error) {
	if obj.host != nil {
		v, r, err := c.hostGet(obj, key)
		if err != nil {
			return PropertyDescriptor{}, false, err
		}
		if r == HostFound {
			return DataDescriptor(v, true, true, true), true, nil
		}
	}
	if v, attrs, ok := c.exoticOwn(obj, key); ok {
		return DataDescriptor(v, attrs.Writable(), attrs.Enumerable(), attrs.Configurable()), true, nil
	}
	p, _, ok := obj.ownProperty(key)
	if !ok {
		return PropertyDescriptor{}, false, nil
	}
	v := obj.readSlot(p)
	if p.Attrs&AttrAccessor != 0 {
		sp := v.special()
		return PropertyDescriptor{
			Get: sp.getter, Set: sp.setter, HasGet: true, HasSet: true,
			Enumerable: p.Attrs.Enumerable(), Configurable: p.Attrs.Configurable(),
			HasEnumerable: true, HasConfigurable: true,
		}, true, nil
	}
	if p.Attrs&AttrSpecial != 0 {
		sv, _, err := c.getSpecial(v.special(), ObjectValue(obj), obj, p)
		if err != nil {
			return PropertyDescriptor{}, false, err
		}
		v = sv
	}
	return DataDescriptor(v, p.Attrs.Writable(), p.Attrs.Enumerable(), p.Attrs.Configurable()), true, nil
}

// DefineOwnProperty reconciles desc with the current own property. It
// returns false when the change is not allowed.
func (c *ExecContext) DefineOwnProperty(obj *Object, key PropertyKey, desc PropertyDescriptor) (bool, error) {
	if !c.accessible(obj) {
		return false, c.securityError(key)
	}
	if obj.class == ClassArray && key == lengthKey {
		return c.defineArrayLength(obj, desc)
	}
	cur, exists, err := c.GetOwnProperty(obj, key)
	if err != nil {
		return false, err
	}
	if !exists {
		if !obj.IsExtensible() {
			return false, nil
		}
		if obj.host != nil && !desc.isAccessor() {
			if r, err := c.hostPut(obj, key, desc.Value); err != nil || r == HostFound {
				return r == HostFound, err
			}
		}
		if desc.isAccessor() {
			attrs := attrsFor(true, desc.Enumerable, desc.Configurable)
			if key.IsIndex() {
				return false, c.TypeError("accessor elements are not supported")
			}
			obj.defineSpecial(key, newAccessor(desc.Get, desc.Set), attrs)
			return true, nil
		}
		c.writeData(obj, key, desc.Value, attrsFor(desc.Writable, desc.Enumerable, desc.Configurable))
		return true, nil
	}

	curAccessor := cur.isAccessor()
	if !cur.Configurable {
		if desc.HasConfigurable && desc.Configurable {
			return false, nil
		}
		if desc.HasEnumerable && desc.Enumerable != cur.Enumerable {
			return false, nil
		}
		if !desc.isGeneric() && desc.isAccessor() != curAccessor {
			return false, nil
		}
		if curAccessor {
			if (desc.HasGet && desc.Get != cur.Get) || (desc.HasSet && desc.Set != cur.Set) {
				return false, nil
			}
		} else if !cur.Writable {
			if desc.HasWritable && desc.Writable {
				return false, nil
			}
			if desc.HasValue && !desc.Value.Is(cur.Value) {
				return false, nil
			}
		}
	}
	if obj.computedOwn(key) {
		return desc.isGeneric() || (desc.HasValue && desc.Value.Is(cur.Value)), nil
	}

	enumerable := cur.Enumerable
	if desc.HasEnumerable {
		enumerable = desc.Enumerable
	}
	configurable := cur.Configurable
	if desc.HasConfigurable {
		configurable = desc.Configurable
	}
	switch {
	case desc.isAccessor():
		getter, setter := cur.Get, cur.Set
		if !curAccessor {
			getter, setter = nil, nil
		}
		if desc.HasGet {
			getter = desc.Get
		}
		if desc.HasSet {
			setter = desc.Set
		}
		obj.defineSpecial(key, newAccessor(getter, setter), attrsFor(true, enumerable, configurable))
	case desc.isData():
		writable := cur.Writable && !curAccessor
		if desc.HasWritable {
			writable = desc.Writable
		}
		v := cur.Value
		if curAccessor {
			v = Undefined
		}
		if desc.HasValue {
			v = desc.Value
		}
		c.writeData(obj, key, v, attrsFor(writable, enumerable, configurable))
	default:
		if curAccessor {
			obj.defineSpecial(key, newAccessor(cur.Get, cur.Set), attrsFor(true, enumerable, configurable))
		} else {
			c.writeData(obj, key, cur.Value, attrsFor(cur.Writable, enumerable, configurable))
		}
	}
	return true, nil
}

// writeData stores a plain data property with exact attributes.
func (c *ExecContext) writeData(obj *Object, key PropertyKey, v Value, attrs Attr) {
	if key.IsIndex() {
		i := key.Index()
		if obj.class == ClassArray && i >= obj.length {
			obj.length = i + 1
		}
		if !obj.indexedForWrite(i, attrs).Define(i, v, attrs) {
			obj.SetIndexedStore(newSparseStore())
			obj.indexed.Define(i, v, attrs)
		}
		return
	}
	p, i, ok := obj.ownProperty(key)
	if !ok {
		obj.addProperty(key, attrs, v)
		return
	}
	if p.Type == StorageBoxed || !p.Type.Accepts(v) {
		typ := StorageTypeFor(v)
		if p.Type != StorageBoxed {
			typ = p.Type.widen(typ)
		}
		p = obj.retypeTo(i, typ)
	}
	if p.Attrs != attrs {
		obj.changeAttributes(key, attrs)
		p, _, _ = obj.ownProperty(key)
	}
	obj.writeSlot(p, v)
}

func (c *ExecContext) defineArrayLength(obj *Object, desc PropertyDescriptor) (bool, error) {
	if desc.isAccessor() || (desc.HasConfigurable && desc.Configurable) || (desc.HasEnumerable && desc.Enumerable) {
		return false, nil
	}
	readOnly := obj.flags&flagLengthReadOnly != 0
	if desc.HasValue {
		n, err := c.ToNumber(desc.Value)
		if err != nil {
			return false, err
		}
		newLen := toUint32(n)
		if float64(newLen) != n || math.IsNaN(n) {
			return false, c.RangeError("Invalid array length")
		}
		if newLen != obj.length {
			if readOnly {
				return false, nil
			}
			if !obj.setArrayLength(newLen) {
				if desc.HasWritable && !desc.Writable {
					obj.flags |= flagLengthReadOnly
				}
				return false, nil
			}
		}
	}
	if desc.HasWritable {
		if desc.Writable && readOnly {
			return false, nil
		}
		if !desc.Writable {
			obj.flags |= flagLengthReadOnly
		}
	}
	return true, nil
}

// --- Enumeration ---

// EnumerateOwnNames lists own keys in engine order: string characters,
// indexed elements ascending, host names, hash-table names, shape names.
// Non-enumerable names are included only when all is set. A shadowing obj
// omits names already visible on any of inner.
func (c *ExecContext) EnumerateOwnNames(obj *Object, all bool, inner ...*Object) ([]PropertyKey, error) {
	if !c.accessible(obj) {
		return nil, c.securityError(NameKey("<keys>"))
	}
	var keys []PropertyKey
	if obj.class == ClassString {
		for i := range obj.internal.(*primitiveData).units {
			keys = append(keys, IndexKey(uint32(i)))
		}
	}
	if obj.indexed != nil {
		for _, i := range obj.indexed.Keys(nil) {
			if _, attrs, _ := obj.indexed.Get(i); all || attrs.Enumerable() {
				keys = append(keys, IndexKey(i))
			}
		}
	}
	if all && (obj.class == ClassArray || obj.class == ClassString || obj.class == ClassTypedArray) {
		keys = append(keys, lengthKey)
	}
	if obj.host != nil {
		keys = append(keys, c.hostNames(obj)...)
	}
	for _, p := range obj.shape.props[:obj.count] {
		if all || p.Attrs.Enumerable() {
			keys = append(keys, p.Key)
		}
	}
	if obj.flags&flagShadowing == 0 || len(inner) == 0 {
		return keys, nil
	}
	out := keys[:0]
	for _, k := range keys {
		hidden := false
		for _, in := range inner {
			if c.HasOwn(in, k) {
				hidden = true
				break
			}
		}
		if !hidden {
			out = append(out, k)
		}
	}
	return out, nil
}
