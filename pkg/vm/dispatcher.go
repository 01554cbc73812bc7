package vm

import "fmt"

// DispatchAction tells the interpreter how a native dispatcher handled a
// frame.
type DispatchAction uint8

const (
	// DispatchInterpret hands the frame back to the interpreter, resuming at
	// Dispatch.ResumeIP. A dispatcher that cannot handle the code returns
	// this with ResumeIP 0.
	DispatchInterpret DispatchAction = iota
	// DispatchReturn completes the frame with Dispatch.Value.
	DispatchReturn
	// DispatchThrow throws Dispatch.Value from the frame.
	DispatchThrow
)

func (a DispatchAction) String() string {
	switch a {
	case DispatchInterpret:
		return "interpret"
	case DispatchReturn:
		return "return"
	case DispatchThrow:
		return "throw"
	}
	return fmt.Sprintf("dispatch(%d)", a)
}

// Dispatch is the answer of a NativeDispatcher.
type Dispatch struct {
	Action   DispatchAction
	Value    Value
	ResumeIP int
}

// NativeDispatcher runs code objects marked NativeEntry in place of the
// interpreter. Enter is called once per frame, before its first
// instruction; the frame's registers are available through FrameRegisters
// and may be updated before handing control back.
type NativeDispatcher interface {
	Enter(c *ExecContext, f *Frame) Dispatch
}

// enterDispatcher offers frame f to the runtime's dispatcher.
func (c *ExecContext) enterDispatcher(f *Frame) error {
	d := c.rt.dispatcher.Enter(c, f)
	switch d.Action {
	case DispatchInterpret:
		if d.ResumeIP < 0 || d.ResumeIP > len(f.code.Code) {
			protocolViolation("dispatcher", "resume ip %d outside %s", d.ResumeIP, f.code.Name)
		}
		f.ip = d.ResumeIP
		return nil
	case DispatchReturn:
		c.doReturn(d.Value)
		return nil
	case DispatchThrow:
		return c.Throw(d.Value)
	}
	protocolViolation("dispatcher", "unknown action %s", d.Action)
	return nil
}

// FrameRegisters returns the live register window of f. The slice is only
// valid until the register file next grows.
func (c *ExecContext) FrameRegisters(f *Frame) []Value {
	return c.regs.window(f.base, f.size)
}

// LogicalFrame describes one script activation for rebuilding native
// call stacks.
type LogicalFrame struct {
	Code      *Code
	Callee    *Object
	IP        int
	This      Value
	Registers []Value
	Construct bool
}

// ReconstructStack returns the script frames of the context, outermost
// first. Exit frames are not included. Registers are copies.
func (c *ExecContext) ReconstructStack() []LogicalFrame {
	out := make([]LogicalFrame, 0, len(c.frames))
	for _, f := range c.frames {
		if f.exit {
			continue
		}
		regs := append([]Value(nil), c.regs.window(f.base, f.size)...)
		lf := LogicalFrame{
			Code:      f.code,
			Callee:    f.fn,
			IP:        f.ip,
			Registers: regs,
			Construct: f.construct != nil,
		}
		if len(regs) > 0 {
			lf.This = regs[0]
		}
		out = append(out, lf)
	}
	return out
}
