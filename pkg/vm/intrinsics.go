package vm

import (
	"fmt"
	"math"
)

// initIntrinsics builds the objects every realm starts with. Prototypes
// and the global object own singleton shapes, since each exists once.
func (r *Realm) initIntrinsics() {
	r.ObjectPrototype = r.allocateSingleton(nil, ClassObject)
	r.FunctionPrototype = r.allocateSingleton(r.ObjectPrototype, ClassNativeFunction)
	r.FunctionPrototype.internal = &NativeFunction{fn: func(*ExecContext, Value, []Value) (Value, error) {
		return Undefined, nil
	}}
	r.Global = r.allocateSingleton(r.ObjectPrototype, ClassGlobal)

	r.initObject()
	r.initFunction()
	r.initErrors()
	r.initArray()
	r.initPrimitives()
	r.initRegExp()

	g := r.Global
	const fixed = AttrReadOnly | AttrDontEnum | AttrDontDelete
	g.addProperty(NameKey("globalThis"), AttrDontEnum, ObjectValue(g))
	g.addProperty(NameKey("undefined"), fixed, Undefined)
	g.addProperty(NameKey("NaN"), fixed, NaN)
	g.addProperty(NameKey("Infinity"), fixed, NumberValue(math.Inf(1)))
}

// method installs a native function as a non-enumerable property.
func (r *Realm) method(o *Object, name string, arity int, fn NativeFunc) *Object {
	f := r.NewNativeFunction(name, arity, fn)
	o.addProperty(NameKey(name), AttrDontEnum, ObjectValue(f))
	return f
}

// constructor wires ctor and proto to each other and publishes ctor as a
// global.
func (r *Realm) constructor(ctor, proto *Object, name string) {
	ctor.addProperty(NameKey("prototype"), AttrReadOnly|AttrDontEnum|AttrDontDelete, ObjectValue(proto))
	proto.addProperty(NameKey("constructor"), AttrDontEnum, ObjectValue(ctor))
	r.Global.addProperty(NameKey(name), AttrDontEnum, ObjectValue(ctor))
}

func argOrUndefined(args []Value, i int) Value {
	if i < len(args) {
		return args[i]
	}
	return Undefined
}

// --- Object ---

func (r *Realm) initObject() {
	proto := r.ObjectPrototype
	construct := func(c *ExecContext, args []Value) (Value, error) {
		v := argOrUndefined(args, 0)
		if v.IsNullish() {
			return ObjectValue(c.realm.NewObject()), nil
		}
		o, err := c.ToObject(v)
		return ObjectValue(o), err
	}
	ctor := r.NewNativeConstructor("Object", 1, func(c *ExecContext, _ Value, args []Value) (Value, error) {
		return construct(c, args)
	}, construct)
	r.ObjectConstructor = ctor
	r.constructor(ctor, proto, "Object")

	r.method(ctor, "getPrototypeOf", 1, func(c *ExecContext, _ Value, args []Value) (Value, error) {
		o, err := c.ToObject(argOrUndefined(args, 0))
		if err != nil {
			return Undefined, err
		}
		return ObjectValue(o.Prototype()), nil
	})
	r.method(ctor, "setPrototypeOf", 2, func(c *ExecContext, _ Value, args []Value) (Value, error) {
		target := argOrUndefined(args, 0)
		ok, err := c.setProto(target, argOrUndefined(args, 1))
		if err != nil {
			return Undefined, err
		}
		if !ok.AsBoolean() {
			return Undefined, c.TypeError("Cyclic __proto__ value or object not extensible")
		}
		return target, nil
	})
	r.method(ctor, "defineProperty", 3, func(c *ExecContext, _ Value, args []Value) (Value, error) {
		target := argOrUndefined(args, 0)
		if !target.IsObject() {
			return Undefined, c.TypeError("Object.defineProperty called on non-object")
		}
		key, err := c.ToPropertyKey(argOrUndefined(args, 1))
		if err != nil {
			return Undefined, err
		}
		desc, err := c.toPropertyDescriptor(argOrUndefined(args, 2))
		if err != nil {
			return Undefined, err
		}
		ok, err := c.DefineOwnProperty(target.AsObject(), key, desc)
		if err != nil {
			return Undefined, err
		}
		if !ok {
			return Undefined, c.TypeError(fmt.Sprintf("Cannot redefine property: %s", key))
		}
		return target, nil
	})
	r.method(ctor, "keys", 1, func(c *ExecContext, _ Value, args []Value) (Value, error) {
		return c.ownKeys(argOrUndefined(args, 0))
	})
	r.method(ctor, "create", 2, func(c *ExecContext, _ Value, args []Value) (Value, error) {
		p := argOrUndefined(args, 0)
		switch {
		case p.IsObject():
			return ObjectValue(c.realm.NewObjectWithPrototype(p.AsObject())), nil
		case p.IsNull():
			return ObjectValue(c.realm.NewObjectWithPrototype(nil)), nil
		}
		return Undefined, c.TypeError("Object prototype may only be an Object or null: " + p.Inspect())
	})

	r.method(proto, "hasOwnProperty", 1, func(c *ExecContext, this Value, args []Value) (Value, error) {
		key, err := c.ToPropertyKey(argOrUndefined(args, 0))
		if err != nil {
			return Undefined, err
		}
		o, err := c.ToObject(this)
		if err != nil {
			return Undefined, err
		}
		return BooleanValue(c.HasOwn(o, key)), nil
	})
	r.method(proto, "toString", 0, func(c *ExecContext, this Value, _ []Value) (Value, error) {
		switch {
		case this.IsUndefined():
			return NewString("[object Undefined]"), nil
		case this.IsNull():
			return NewString("[object Null]"), nil
		}
		o, err := c.ToObject(this)
		if err != nil {
			return Undefined, err
		}
		class := o.class.String()
		switch o.class {
		case ClassGlobal, ClassVariables, ClassHost, ClassTypedArray:
			class = "Object"
		}
		return NewString("[object " + class + "]"), nil
	})
	r.method(proto, "valueOf", 0, func(c *ExecContext, this Value, _ []Value) (Value, error) {
		o, err := c.ToObject(this)
		return ObjectValue(o), err
	})

	getter := r.NewNativeFunction("get __proto__", 0, func(c *ExecContext, this Value, _ []Value) (Value, error) {
		o, err := c.ToObject(this)
		if err != nil {
			return Undefined, err
		}
		return ObjectValue(o.Prototype()), nil
	})
	setter := r.NewNativeFunction("set __proto__", 1, func(c *ExecContext, this Value, args []Value) (Value, error) {
		p := argOrUndefined(args, 0)
		if !this.IsObject() || !(p.IsObject() || p.IsNull()) {
			return Undefined, nil
		}
		ok, err := c.setProto(this, p)
		if err != nil {
			return Undefined, err
		}
		if !ok.AsBoolean() {
			return Undefined, c.TypeError("Cyclic __proto__ value")
		}
		return Undefined, nil
	})
	proto.defineSpecial(NameKey("__proto__"), newAccessor(getter, setter), AttrDontEnum)
}

// toPropertyDescriptor reads a descriptor object, each field once.
func (c *ExecContext) toPropertyDescriptor(v Value) (PropertyDescriptor, error) {
	var d PropertyDescriptor
	if !v.IsObject() {
		return d, c.TypeError("Property description must be an object: " + v.Inspect())
	}
	o := v.AsObject()
	field := func(name string) (Value, bool, error) {
		key := NameKey(name)
		found, err := c.Has(o, key)
		if err != nil || !found {
			return Undefined, false, err
		}
		fv, r, err := c.Get(o, key, v, nil)
		if err != nil {
			return Undefined, false, err
		}
		fv, err = c.getOutcome(fv, r, key)
		return fv, true, err
	}
	var err error
	var fv Value
	if fv, d.HasEnumerable, err = field("enumerable"); err != nil {
		return d, err
	}
	d.Enumerable = fv.IsTruthy()
	if fv, d.HasConfigurable, err = field("configurable"); err != nil {
		return d, err
	}
	d.Configurable = fv.IsTruthy()
	if d.Value, d.HasValue, err = field("value"); err != nil {
		return d, err
	}
	if fv, d.HasWritable, err = field("writable"); err != nil {
		return d, err
	}
	d.Writable = fv.IsTruthy()
	accessor := func(name string) (*Object, bool, error) {
		fv, ok, err := field(name)
		if err != nil || !ok || fv.IsUndefined() {
			return nil, ok, err
		}
		if !fv.IsCallable() {
			return nil, false, c.TypeError(fmt.Sprintf("%ster must be a function: %s", name, fv.Inspect()))
		}
		return fv.AsObject(), true, nil
	}
	if d.Get, d.HasGet, err = accessor("get"); err != nil {
		return d, err
	}
	if d.Set, d.HasSet, err = accessor("set"); err != nil {
		return d, err
	}
	if d.isAccessor() && d.isData() {
		return d, c.TypeError("Invalid property descriptor. Cannot both specify accessors and a value or writable attribute")
	}
	return d, nil
}

// --- Function ---

func (r *Realm) initFunction() {
	proto := r.FunctionPrototype
	proto.addProperty(lengthKey, AttrReadOnly|AttrDontEnum, IntegerValue(0))
	proto.addProperty(NameKey("name"), AttrReadOnly|AttrDontEnum, NewString(""))

	refuse := func(c *ExecContext, _ []Value) (Value, error) {
		return Undefined, c.TypeError("Function constructor is not supported: code must be compiled ahead of time")
	}
	ctor := r.NewNativeConstructor("Function", 1, func(c *ExecContext, _ Value, args []Value) (Value, error) {
		return refuse(c, args)
	}, refuse)
	r.FunctionConstructor = ctor
	r.constructor(ctor, proto, "Function")

	r.method(proto, "call", 1, func(c *ExecContext, this Value, args []Value) (Value, error) {
		var rest []Value
		if len(args) > 1 {
			rest = args[1:]
		}
		return c.callInternal(this, argOrUndefined(args, 0), rest, TransitionCall)
	})
	r.method(proto, "apply", 2, func(c *ExecContext, this Value, args []Value) (Value, error) {
		list, err := c.listFromArrayLike(argOrUndefined(args, 1))
		if err != nil {
			return Undefined, err
		}
		return c.callInternal(this, argOrUndefined(args, 0), list, TransitionApply)
	})
	r.method(proto, "bind", 1, func(c *ExecContext, this Value, args []Value) (Value, error) {
		if !this.IsCallable() {
			return Undefined, c.TypeError("Bind must be called on a function")
		}
		var bound []Value
		if len(args) > 1 {
			bound = append([]Value(nil), args[1:]...)
		}
		return ObjectValue(c.realm.newBoundFunction(this.AsObject(), argOrUndefined(args, 0), bound)), nil
	})
	r.method(proto, "toString", 0, func(c *ExecContext, this Value, _ []Value) (Value, error) {
		if !this.IsCallable() {
			return Undefined, c.TypeError("Function.prototype.toString requires that 'this' be a Function")
		}
		return NewString(fmt.Sprintf("function %s() { [native code] }", this.AsObject().functionName())), nil
	})
}

// listFromArrayLike reads the elements of an array-like for apply.
func (c *ExecContext) listFromArrayLike(v Value) ([]Value, error) {
	if v.IsNullish() {
		return nil, nil
	}
	if !v.IsObject() {
		return nil, c.TypeError("CreateListFromArrayLike called on non-object")
	}
	return c.readArrayLike(convCode{kind: convNone}, v.AsObject())
}

// --- Errors ---

func (r *Realm) initErrors() {
	r.ErrorPrototype = r.initErrorClass("Error", r.ObjectPrototype)
	r.ErrorConstructor = r.ErrorPrototype.ownConstructor()
	r.TypeErrorPrototype = r.initErrorClass("TypeError", r.ErrorPrototype)
	r.RangeErrorPrototype = r.initErrorClass("RangeError", r.ErrorPrototype)
	r.ReferenceErrorPrototype = r.initErrorClass("ReferenceError", r.ErrorPrototype)
	r.SyntaxErrorPrototype = r.initErrorClass("SyntaxError", r.ErrorPrototype)

	r.method(r.ErrorPrototype, "toString", 0, func(c *ExecContext, this Value, _ []Value) (Value, error) {
		if !this.IsObject() {
			return Undefined, c.TypeError("Error.prototype.toString called on non-object")
		}
		o := this.AsObject()
		read := func(name, fallback string) (string, error) {
			key := NameKey(name)
			v, r, err := c.Get(o, key, this, nil)
			if err != nil {
				return "", err
			}
			if v, err = c.getOutcome(v, r, key); err != nil || v.IsUndefined() {
				return fallback, err
			}
			return c.ToString(v)
		}
		name, err := read("name", "Error")
		if err != nil {
			return Undefined, err
		}
		msg, err := read("message", "")
		if err != nil {
			return Undefined, err
		}
		switch {
		case name == "":
			return NewString(msg), nil
		case msg == "":
			return NewString(name), nil
		}
		return NewString(name + ": " + msg), nil
	})
}

func (r *Realm) initErrorClass(name string, parent *Object) *Object {
	proto := r.allocateSingleton(parent, ClassObject)
	proto.addProperty(NameKey("name"), AttrDontEnum, NewString(name))
	proto.addProperty(NameKey("message"), AttrDontEnum, NewString(""))
	construct := func(c *ExecContext, args []Value) (Value, error) {
		msg := ""
		if m := argOrUndefined(args, 0); !m.IsUndefined() {
			s, err := c.ToString(m)
			if err != nil {
				return Undefined, err
			}
			msg = s
		}
		return ObjectValue(c.NewError(name, msg)), nil
	}
	ctor := r.NewNativeConstructor(name, 1, func(c *ExecContext, _ Value, args []Value) (Value, error) {
		return construct(c, args)
	}, construct)
	r.constructor(ctor, proto, name)
	return proto
}

func (o *Object) ownConstructor() *Object {
	v, _, ok := o.ownOrInheritedData(NameKey("constructor"))
	if !ok || !v.IsObject() {
		return nil
	}
	return v.AsObject()
}

// --- Array ---

func (r *Realm) initArray() {
	proto := r.allocateSingleton(r.ObjectPrototype, ClassArray)
	r.ArrayPrototype = proto
	construct := func(c *ExecContext, args []Value) (Value, error) {
		if len(args) == 1 && args[0].IsNumber() {
			n := args[0].AsNumber()
			if n < 0 || n != math.Trunc(n) || n > MaxArrayIndex+1 {
				return Undefined, c.RangeError("Invalid array length")
			}
			arr := c.realm.NewArray(nil)
			arr.length = uint32(n)
			return ObjectValue(arr), nil
		}
		return ObjectValue(c.realm.NewArray(append([]Value(nil), args...))), nil
	}
	ctor := r.NewNativeConstructor("Array", 1, func(c *ExecContext, _ Value, args []Value) (Value, error) {
		return construct(c, args)
	}, construct)
	r.ArrayConstructor = ctor
	r.constructor(ctor, proto, "Array")

	r.method(ctor, "isArray", 1, func(_ *ExecContext, _ Value, args []Value) (Value, error) {
		v := argOrUndefined(args, 0)
		return BooleanValue(v.IsObject() && v.AsObject().class == ClassArray), nil
	})
	r.method(proto, "push", 1, func(c *ExecContext, this Value, args []Value) (Value, error) {
		o, err := c.ToObject(this)
		if err != nil {
			return Undefined, err
		}
		n, err := c.lengthOf(o)
		if err != nil {
			return Undefined, err
		}
		for _, a := range args {
			if err := c.putStrict(o, IndexKey(n), a); err != nil {
				return Undefined, err
			}
			n++
		}
		if err := c.putStrict(o, lengthKey, IntegerValue(int(n))); err != nil {
			return Undefined, err
		}
		return IntegerValue(int(n)), nil
	})
	r.method(proto, "pop", 0, func(c *ExecContext, this Value, _ []Value) (Value, error) {
		o, err := c.ToObject(this)
		if err != nil {
			return Undefined, err
		}
		n, err := c.lengthOf(o)
		if err != nil || n == 0 {
			if err == nil {
				err = c.putStrict(o, lengthKey, IntegerValue(0))
			}
			return Undefined, err
		}
		key := IndexKey(n - 1)
		v, r, err := c.Get(o, key, this, nil)
		if err != nil {
			return Undefined, err
		}
		if v, err = c.getOutcome(v, r, key); err != nil {
			return Undefined, err
		}
		if _, err := c.Delete(o, key); err != nil {
			return Undefined, err
		}
		return v, c.putStrict(o, lengthKey, IntegerValue(int(n-1)))
	})
}

func (c *ExecContext) lengthOf(o *Object) (uint32, error) {
	v, r, err := c.Get(o, lengthKey, ObjectValue(o), nil)
	if err != nil {
		return 0, err
	}
	if v, err = c.getOutcome(v, r, lengthKey); err != nil {
		return 0, err
	}
	n, err := c.ToNumber(v)
	return toUint32(n), err
}

// putStrict writes like strict-mode code: rejected writes throw.
func (c *ExecContext) putStrict(o *Object, key PropertyKey, v Value) error {
	r, err := c.Put(o, key, v, ObjectValue(o), nil)
	if err != nil {
		return err
	}
	return c.putOutcome(true, r, key)
}

// --- String, Number, Boolean ---

func (r *Realm) initPrimitives() {
	r.StringPrototype = r.initPrimitiveClass("String", ClassString, TypeString, NewString(""),
		func(c *ExecContext, v Value) (Value, error) {
			s, err := c.ToString(v)
			return NewString(s), err
		})
	r.NumberPrototype = r.initPrimitiveClass("Number", ClassNumber, TypeNumber, IntegerValue(0),
		func(c *ExecContext, v Value) (Value, error) {
			n, err := c.ToNumber(v)
			return NumberValue(n), err
		})
	r.BooleanPrototype = r.initPrimitiveClass("Boolean", ClassBoolean, TypeBoolean, False,
		func(_ *ExecContext, v Value) (Value, error) {
			return BooleanValue(v.IsTruthy()), nil
		})
}

func (r *Realm) initPrimitiveClass(name string, class ObjectClass, typ ValueType, zero Value,
	convert func(*ExecContext, Value) (Value, error)) *Object {
	proto := r.allocateSingleton(r.ObjectPrototype, class)
	proto.internal = &primitiveData{value: zero}

	toPrimitive := func(c *ExecContext, args []Value) (Value, error) {
		if len(args) == 0 {
			return zero, nil
		}
		return convert(c, args[0])
	}
	construct := func(c *ExecContext, args []Value) (Value, error) {
		v, err := toPrimitive(c, args)
		if err != nil {
			return Undefined, err
		}
		return ObjectValue(c.realm.newPrimitiveWrapper(v)), nil
	}
	ctor := r.NewNativeConstructor(name, 1, func(c *ExecContext, _ Value, args []Value) (Value, error) {
		return toPrimitive(c, args)
	}, construct)
	r.constructor(ctor, proto, name)

	thisValue := func(c *ExecContext, this Value, method string) (Value, error) {
		if this.Type() == typ {
			return this, nil
		}
		if this.IsObject() && this.AsObject().class == class {
			if d, ok := this.AsObject().internal.(*primitiveData); ok {
				return d.value, nil
			}
		}
		return Undefined, c.TypeError(fmt.Sprintf("%s.prototype.%s requires that 'this' be a %s", name, method, name))
	}
	r.method(proto, "valueOf", 0, func(c *ExecContext, this Value, _ []Value) (Value, error) {
		return thisValue(c, this, "valueOf")
	})
	r.method(proto, "toString", 0, func(c *ExecContext, this Value, _ []Value) (Value, error) {
		v, err := thisValue(c, this, "toString")
		if err != nil {
			return Undefined, err
		}
		return NewString(primitiveToString(v)), nil
	})
	return proto
}
