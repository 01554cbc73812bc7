package vm

import (
	"unicode/utf16"
)

// Function is the internal state of a bytecode function object.
type Function struct {
	code  *Code
	scope *Scope
	// instanceShape is the final shape of the last instance this function
	// constructed; later instances start from it.
	instanceShape *Shape
}

// NativeFunc implements a function in Go.
type NativeFunc func(c *ExecContext, this Value, args []Value) (Value, error)

// NativeConstructor implements construction of a native function.
type NativeConstructor func(c *ExecContext, args []Value) (Value, error)

// NativeFunction is the internal state of a Go-implemented function.
type NativeFunction struct {
	name      string
	arity     int
	fn        NativeFunc
	construct NativeConstructor
	conv      ConversionSpec
}

// BoundFunction is the internal state of a function produced by bind.
type BoundFunction struct {
	target *Object
	this   Value
	args   []Value
}

// primitiveData is the internal state of String, Number and Boolean
// wrapper objects.
type primitiveData struct {
	value Value
	units []uint16 // strings only
}

// Code returns the function's code object.
func (f *Function) Code() *Code { return f.code }

// InstanceShape returns the remembered shape of constructed instances.
func (f *Function) InstanceShape() *Shape { return f.instanceShape }

// NewFunction creates a closure of code over scope.
func (r *Realm) NewFunction(code *Code, scope *Scope) *Object {
	o := r.allocate(r.rt.shapes.Root(r.FunctionPrototype), ClassFunction)
	o.internal = &Function{code: code, scope: scope}
	o.addProperty(lengthKey, AttrReadOnly|AttrDontEnum, IntegerValue(code.Params))
	o.addProperty(NameKey("name"), AttrReadOnly|AttrDontEnum, NewString(code.Name))
	o.defineSpecial(NameKey("prototype"), &Special{kind: SpecialLazyPrototype, fn: o}, AttrDontEnum|AttrDontDelete)
	return o
}

// NewNativeFunction wraps fn as a callable object.
func (r *Realm) NewNativeFunction(name string, arity int, fn NativeFunc) *Object {
	return r.newNative(&NativeFunction{name: name, arity: arity, fn: fn})
}

// NewNativeConstructor wraps fn and ctor as a function usable with new.
func (r *Realm) NewNativeConstructor(name string, arity int, fn NativeFunc, ctor NativeConstructor) *Object {
	return r.newNative(&NativeFunction{name: name, arity: arity, fn: fn, construct: ctor})
}

// NewConvertingFunction wraps fn so that its arguments are converted by
// spec before every call. See ParseConversion for the notation.
func (r *Realm) NewConvertingFunction(name, spec string, fn NativeFunc) (*Object, error) {
	conv, err := ParseConversion(spec)
	if err != nil {
		return nil, err
	}
	return r.newNative(&NativeFunction{name: name, arity: len(conv), fn: fn, conv: conv}), nil
}

func (r *Realm) newNative(nf *NativeFunction) *Object {
	o := r.allocate(r.rt.shapes.Root(r.FunctionPrototype), ClassNativeFunction)
	o.internal = nf
	o.addProperty(lengthKey, AttrReadOnly|AttrDontEnum, IntegerValue(nf.arity))
	o.addProperty(NameKey("name"), AttrReadOnly|AttrDontEnum, NewString(nf.name))
	return o
}

// newBoundFunction binds target to this and leading args.
func (r *Realm) newBoundFunction(target *Object, this Value, args []Value) *Object {
	o := r.allocate(r.rt.shapes.Root(target.shape.prototype), ClassBoundFunction)
	o.internal = &BoundFunction{target: target, this: this, args: args}
	o.addProperty(NameKey("name"), AttrReadOnly|AttrDontEnum, NewString("bound "+target.functionName()))
	return o
}

// newFunctionPrototype materializes the prototype object of fn.
func (r *Realm) newFunctionPrototype(fn *Object) *Object {
	proto := r.allocate(r.rt.shapes.Root(r.ObjectPrototype), ClassObject)
	proto.addProperty(NameKey("constructor"), AttrDontEnum, ObjectValue(fn))
	return proto
}

// NewObject creates an empty plain object.
func (r *Realm) NewObject() *Object {
	return r.allocate(r.rt.shapes.Root(r.ObjectPrototype), ClassObject)
}

// NewObjectWithPrototype creates an empty object inheriting from proto,
// which may be nil.
func (r *Realm) NewObjectWithPrototype(proto *Object) *Object {
	return r.allocate(r.rt.shapes.Root(proto), ClassObject)
}

// NewArray creates an array holding values.
func (r *Realm) NewArray(values []Value) *Object {
	o := r.allocate(r.rt.shapes.Root(r.ArrayPrototype), ClassArray)
	if len(values) > 0 {
		o.indexed = NewDenseStore(values)
	}
	o.length = uint32(len(values))
	return o
}

// NewTypedArray creates a fixed-length typed array.
func (r *Realm) NewTypedArray(kind TypedKind, length uint32) *Object {
	o := r.allocate(r.rt.shapes.Root(r.ObjectPrototype), ClassTypedArray)
	o.indexed = NewTypedStore(kind, length)
	o.length = length
	return o
}

func (r *Realm) newPrimitiveWrapper(v Value) *Object {
	var proto *Object
	var class ObjectClass
	data := &primitiveData{value: v}
	switch v.Type() {
	case TypeString:
		proto, class = r.StringPrototype, ClassString
		data.units = utf16.Encode([]rune(v.AsString()))
	case TypeNumber:
		proto, class = r.NumberPrototype, ClassNumber
	default:
		proto, class = r.BooleanPrototype, ClassBoolean
	}
	o := r.allocate(r.rt.shapes.Root(proto), class)
	o.internal = data
	return o
}

// primitivePrototype returns the prototype used for property access on a
// primitive.
func (r *Realm) primitivePrototype(v Value) *Object {
	switch v.Type() {
	case TypeString:
		return r.StringPrototype
	case TypeNumber:
		return r.NumberPrototype
	case TypeBoolean:
		return r.BooleanPrototype
	}
	return nil
}

// recordInstanceShape remembers the final shape of a constructed
// instance for the next construction.
func (f *Function) recordInstanceShape(instance *Object) {
	instance.settle()
	if instance.shape.kind == ShapeShared {
		f.instanceShape = instance.shape
	}
}
