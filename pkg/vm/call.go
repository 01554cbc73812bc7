package vm

import (
	"fmt"
)

// invoke calls callee on behalf of the top frame. Bytecode callees get a
// frame and run when the interpreter loop continues; every other callee
// completes here and its result is stored in the top frame's dest
// register (dest < 0 discards it).
func (c *ExecContext) invoke(callee, this Value, args []Value, dest int, construct bool, tr Transition) error {
	if err := c.tick(); err != nil {
		return err
	}
	if !callee.IsCallable() {
		if construct {
			return c.TypeError(fmt.Sprintf("%s is not a constructor", callee.Inspect()))
		}
		return c.TypeError(fmt.Sprintf("%s is not a function", callee.Inspect()))
	}
	fo := callee.AsObject()
	switch d := fo.internal.(type) {
	case *Function:
		return c.enterFunction(fo, d, this, args, dest, construct, tr)
	case *BoundFunction:
		all := append(append(make([]Value, 0, len(d.args)+len(args)), d.args...), args...)
		if construct {
			return c.invoke(ObjectValue(d.target), Undefined, all, dest, true, TransitionBind)
		}
		return c.invoke(ObjectValue(d.target), d.this, all, dest, false, TransitionBind)
	}
	var v Value
	var err error
	if construct {
		v, err = c.constructNative(fo, args)
	} else {
		v, err = c.callNative(fo, this, args)
	}
	if err != nil {
		return err
	}
	c.setResult(dest, v)
	return nil
}

func (c *ExecContext) setResult(dest int, v Value) {
	c.deliver(c.top(), dest, v)
}

// deliver stores a call result for frame f.
func (c *ExecContext) deliver(f *Frame, dest int, v Value) {
	switch {
	case f.exit:
		f.result = v
	case dest >= 0:
		c.regs.values[f.base+dest] = v
	}
}

// enterFunction pushes a frame for a bytecode function with a fresh
// window holding this, the callee and the declared parameters.
func (c *ExecContext) enterFunction(fo *Object, fn *Function, this Value, args []Value, dest int, construct bool, tr Transition) error {
	if err := c.checkDepth(); err != nil {
		return err
	}
	code := fn.code
	var instance *Object
	if construct {
		inst, err := c.newInstance(fo, fn)
		if err != nil {
			return err
		}
		instance = inst
		this = ObjectValue(inst)
	} else if !code.Strict && this.IsNullish() {
		this = ObjectValue(c.realm.Global)
	}
	base, err := c.allocateWindow(code.Registers, 0)
	if err != nil {
		return err
	}
	w := c.regs.window(base, code.Registers)
	w[0] = this
	w[1] = ObjectValue(fo)
	n := min(len(args), code.Params)
	copy(w[2:], args[:n])
	f := &Frame{
		code:       code,
		fn:         fo,
		base:       base,
		size:       code.Registers,
		argc:       len(args),
		dest:       dest,
		scope:      fn.scope,
		transition: tr,
		construct:  instance,
	}
	if len(args) > n {
		f.extra = append([]Value(nil), args[n:]...)
	}
	c.pushFrame(f)
	return nil
}

// callFromFrame performs OpCall/OpConstruct. When the outgoing arguments
// end the caller's window, a bytecode callee's window overlaps them and
// nothing is copied.
func (c *ExecContext) callFromFrame(f *Frame, base, argc, dest int, construct bool) error {
	regs := c.regs.window(f.base, f.size)
	callee := regs[base+1]
	if !construct && callee.IsObject() {
		if fn, ok := callee.AsObject().internal.(*Function); ok {
			overlap := 2 + argc
			if base+overlap == f.size && overlap <= fn.code.Registers && c.regs.top == f.base+f.size {
				return c.enterOverlapped(f, callee.AsObject(), fn, base, argc, dest)
			}
		}
	}
	mark := len(c.scratch)
	c.scratch = append(c.scratch, regs[base+2:base+2+argc]...)
	args := c.scratch[mark:len(c.scratch):len(c.scratch)]
	err := c.invoke(callee, regs[base], args, dest, construct, TransitionNormal)
	clear(c.scratch[mark:])
	c.scratch = c.scratch[:mark]
	return err
}

func (c *ExecContext) enterOverlapped(f *Frame, fo *Object, fn *Function, base, argc, dest int) error {
	if err := c.tick(); err != nil {
		return err
	}
	if err := c.checkDepth(); err != nil {
		return err
	}
	code := fn.code
	overlap := 2 + argc
	nb, err := c.allocateWindow(code.Registers, overlap)
	if err != nil {
		return err
	}
	w := c.regs.window(nb, code.Registers)
	if !code.Strict && w[0].IsNullish() {
		w[0] = ObjectValue(c.realm.Global)
	}
	nf := &Frame{
		code:    code,
		fn:      fo,
		base:    nb,
		size:    code.Registers,
		overlap: overlap,
		argc:    argc,
		dest:    dest,
		scope:   fn.scope,
	}
	if argc > code.Params {
		nf.extra = append([]Value(nil), w[2+code.Params:2+argc]...)
		clear(w[2+code.Params : 2+argc])
	}
	c.pushFrame(nf)
	return nil
}

// newInstance allocates the receiver of a construct call. Once the
// function has built an instance, later ones start at its final shape.
func (c *ExecContext) newInstance(fo *Object, fn *Function) (*Object, error) {
	pv, _, err := c.Get(fo, NameKey("prototype"), ObjectValue(fo), nil)
	if err != nil {
		return nil, err
	}
	proto := c.realm.ObjectPrototype
	if pv.IsObject() {
		proto = pv.AsObject()
	}
	if s := fn.instanceShape; s != nil && s.prototype == proto {
		return c.realm.allocateConstructing(s), nil
	}
	return c.realm.allocate(c.rt.shapes.Root(proto), ClassObject), nil
}

// doReturn completes the top frame with v.
func (c *ExecContext) doReturn(v Value) {
	f := c.top()
	if f.construct != nil {
		if !v.IsObject() {
			v = ObjectValue(f.construct)
		}
		f.fn.internal.(*Function).recordInstanceShape(f.construct)
	}
	c.popFrame()
	c.deliver(c.top(), f.dest, v)
}

// callNative invokes a Go function or callable host object.
func (c *ExecContext) callNative(fo *Object, this Value, args []Value) (Value, error) {
	if c.nativeDepth >= c.rt.cfg.MaxNativeDepth {
		return Undefined, c.RangeError("Maximum call stack size exceeded")
	}
	if hc, ok := fo.host.(HostCallable); ok {
		c.nativeDepth++
		defer func() { c.nativeDepth-- }()
		return hc.Call(c, this, args)
	}
	nf := fo.internal.(*NativeFunction)
	if nf.conv != nil {
		converted, err := c.convertArguments(nf.conv, args)
		if err != nil {
			return Undefined, err
		}
		args = converted
	}
	c.nativeDepth++
	defer func() { c.nativeDepth-- }()
	return nf.fn(c, this, args)
}

func (c *ExecContext) constructNative(fo *Object, args []Value) (Value, error) {
	nf, ok := fo.internal.(*NativeFunction)
	if !ok || nf.construct == nil {
		return Undefined, c.TypeError(fmt.Sprintf("%s is not a constructor", fo.functionName()))
	}
	if c.nativeDepth >= c.rt.cfg.MaxNativeDepth {
		return Undefined, c.RangeError("Maximum call stack size exceeded")
	}
	c.nativeDepth++
	defer func() { c.nativeDepth-- }()
	return nf.construct(c, args)
}

// callInternal calls fn synchronously from Go code running inside the
// engine (natives, getters, conversions). Bytecode callees run in a nested
// interpreter loop below an exit frame.
func (c *ExecContext) callInternal(fn, this Value, args []Value, tr Transition) (Value, error) {
	if !fn.IsCallable() {
		return Undefined, c.TypeError(fmt.Sprintf("%s is not a function", fn.Inspect()))
	}
	fo := fn.AsObject()
	switch d := fo.internal.(type) {
	case *Function:
		return c.runNested(func() error {
			return c.enterFunction(fo, d, this, args, 0, false, tr)
		})
	case *BoundFunction:
		all := append(append(make([]Value, 0, len(d.args)+len(args)), d.args...), args...)
		return c.callInternal(ObjectValue(d.target), d.this, all, TransitionBind)
	}
	return c.callNative(fo, this, args)
}

// constructInternal is callInternal for construction.
func (c *ExecContext) constructInternal(fn Value, args []Value) (Value, error) {
	if !fn.IsCallable() {
		return Undefined, c.TypeError(fmt.Sprintf("%s is not a constructor", fn.Inspect()))
	}
	fo := fn.AsObject()
	switch d := fo.internal.(type) {
	case *Function:
		return c.runNested(func() error {
			return c.enterFunction(fo, d, Undefined, args, 0, true, TransitionNormal)
		})
	case *BoundFunction:
		all := append(append(make([]Value, 0, len(d.args)+len(args)), d.args...), args...)
		return c.constructInternal(ObjectValue(d.target), all)
	}
	return c.constructNative(fo, args)
}

// runNested pushes an exit frame, lets enter push the callee above it and
// interprets until the exit frame is reached.
func (c *ExecContext) runNested(enter func() error) (Value, error) {
	if c.nativeDepth >= c.rt.cfg.MaxNativeDepth {
		return Undefined, c.RangeError("Maximum call stack size exceeded")
	}
	c.pushExit()
	if err := enter(); err != nil {
		c.popFrame()
		return Undefined, err
	}
	c.nativeDepth++
	defer func() { c.nativeDepth-- }()
	return c.execute()
}
