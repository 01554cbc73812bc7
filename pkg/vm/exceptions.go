package vm

import (
	stderrors "errors"
	"fmt"

	"github.com/nooga/esvm/pkg/errors"
)

// Exception carries a thrown script value through Go error returns.
type Exception struct {
	Value Value
	Trace *StackTrace
}

func (e *Exception) Error() string {
	return "Uncaught " + e.summary()
}

func (e *Exception) summary() string {
	if e.Value.IsObject() && e.Value.AsObject().class == ClassError {
		return e.Value.AsObject().errorSummary()
	}
	return e.Value.Inspect()
}

// Throw raises v as a script exception, capturing the stack trace. An
// error object keeps the stack property captured at its creation.
func (c *ExecContext) Throw(v Value) error {
	st := c.captureTrace()
	st.Header = "Uncaught " + (&Exception{Value: v}).summary()
	return &Exception{Value: v, Trace: st}
}

// NewError creates an error object of the named class (Error, TypeError,
// RangeError, ReferenceError or SyntaxError) with a stack captured now.
func (c *ExecContext) NewError(name, msg string) *Object {
	r := c.realm
	o := r.allocate(r.rt.shapes.Root(r.errorPrototype(name)), ClassError)
	if msg != "" {
		o.addProperty(NameKey("message"), AttrDontEnum, NewString(msg))
	}
	c.attachStack(o)
	return o
}

// attachStack gives an error object a lazily rendered stack property.
func (c *ExecContext) attachStack(o *Object) {
	st := c.captureTrace()
	st.Header = o.errorSummary()
	o.defineSpecial(NameKey("stack"), &Special{kind: SpecialStackTrace, trace: st}, AttrDontEnum)
}

func (o *Object) stackSpecial() *Special {
	p, _, ok := o.ownProperty(NameKey("stack"))
	if !ok || p.Attrs&AttrSpecial == 0 {
		return nil
	}
	sp := o.readSlot(p).special()
	if sp.kind != SpecialStackTrace {
		return nil
	}
	return sp
}

func (c *ExecContext) throwError(name, msg string) error {
	return c.Throw(ObjectValue(c.NewError(name, msg)))
}

func (c *ExecContext) TypeError(msg string) error      { return c.throwError("TypeError", msg) }
func (c *ExecContext) RangeError(msg string) error     { return c.throwError("RangeError", msg) }
func (c *ExecContext) ReferenceError(msg string) error { return c.throwError("ReferenceError", msg) }
func (c *ExecContext) SyntaxError(msg string) error    { return c.throwError("SyntaxError", msg) }

// securityError reports a denied cross-origin access as a reference error.
func (c *ExecContext) securityError(key PropertyKey) error {
	return c.ReferenceError(fmt.Sprintf("Permission denied to access property '%s'", key))
}

// unwind looks for a handler for err, popping frames up to (not including)
// the nearest exit frame. It reports whether execution can continue in a
// handler. Non-script errors pop every frame up to the exit frame.
func (c *ExecContext) unwind(err error) bool {
	var exc *Exception
	isExc := stderrors.As(err, &exc)
	for len(c.frames) > 0 {
		f := c.top()
		if f.exit {
			return false
		}
		if isExc {
			for _, h := range f.code.Handlers {
				if f.pc >= h.TryStart && f.pc < h.TryEnd {
					f.ip = h.HandlerPC
					if h.CatchReg != NoRegister && h.CatchReg >= 0 {
						c.regs.values[f.base+h.CatchReg] = exc.Value
					}
					return true
				}
			}
		}
		if f.construct != nil {
			f.construct.settle()
		}
		c.popFrame()
	}
	return false
}

// scriptError converts an uncaught exception for the embedder.
func (c *ExecContext) scriptError(exc *Exception) *errors.ScriptError {
	serr := &errors.ScriptError{Msg: exc.Value.Inspect(), Trace: exc.Trace.Render(), Cause: exc}
	if top, ok := exc.Trace.Top(); ok {
		serr.Position = top.Position()
	}
	if exc.Value.IsObject() && exc.Value.AsObject().class == ClassError {
		o := exc.Value.AsObject()
		serr.Name = "Error"
		if v, _, ok := o.ownOrInheritedData(NameKey("name")); ok && v.IsString() {
			serr.Name = v.AsString()
		}
		serr.Msg = ""
		if v, _, ok := o.ownOrInheritedData(NameKey("message")); ok && v.IsString() {
			serr.Msg = v.AsString()
		}
	}
	return serr
}
