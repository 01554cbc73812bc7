package vm

// enterEval performs OpEval. Without an explicit this (thisReg ==
// NoRegister) the new frame shares f's whole window, so the evaluated
// code sees and updates f's registers directly. With one, the code gets a
// fresh window and reaches f's locals through its variables object.
func (c *ExecContext) enterEval(f *Frame, code *Code, thisReg, dest int) error {
	if thisReg == NoRegister {
		return c.enterSharedEval(f, code, dest)
	}
	return c.enterEvalWith(f, code, c.regs.values[f.base+thisReg], dest)
}

func (c *ExecContext) enterSharedEval(f *Frame, code *Code, dest int) error {
	if err := c.checkDepth(); err != nil {
		return err
	}
	if c.regs.top != f.base+f.size {
		panic("shared evaluation below the top window")
	}
	owner := f
	if f.shared != nil {
		owner = f.shared
	}
	size := max(code.Registers, f.size)
	base, err := c.allocateWindow(size, f.size)
	if err != nil {
		return err
	}
	c.pushFrame(&Frame{
		code:    code,
		fn:      f.fn,
		base:    base,
		size:    size,
		overlap: f.size,
		argc:    f.argc,
		dest:    dest,
		scope:   f.scope,
		shared:  owner,
	})
	return nil
}

func (c *ExecContext) enterEvalWith(f *Frame, code *Code, this Value, dest int) error {
	if err := c.checkDepth(); err != nil {
		return err
	}
	scope := c.closureScope(f)
	base, err := c.allocateWindow(code.Registers, 0)
	if err != nil {
		return err
	}
	c.regs.values[base] = this
	c.pushFrame(&Frame{code: code, base: base, size: code.Registers, dest: dest, scope: scope})
	return nil
}

// Evaluate runs code as a nested evaluation from Go code executing inside
// the context, such as a native function. A nil this shares the window of
// the innermost frame; otherwise code runs in a fresh window with *this as
// its receiver and the innermost frame's variables in scope. On an idle
// context code runs as a complete program.
func (c *ExecContext) Evaluate(code *Code, this *Value) (Value, error) {
	if err := code.Validate(); err != nil {
		return Undefined, err
	}
	if !c.inThread || len(c.frames) == 0 {
		recv := ObjectValue(c.realm.Global)
		if this != nil {
			recv = *this
		}
		if err := c.setupProgram(code, recv, nil); err != nil {
			return Undefined, err
		}
		return c.complete(c.Run())
	}
	f := c.top()
	if f.exit {
		recv := ObjectValue(c.realm.Global)
		if this != nil {
			recv = *this
		}
		return c.runNested(func() error {
			base, err := c.allocateWindow(code.Registers, 0)
			if err != nil {
				return err
			}
			c.regs.values[base] = recv
			c.pushFrame(&Frame{code: code, base: base, size: code.Registers, dest: 0})
			return nil
		})
	}
	return c.runNested(func() error {
		if this == nil {
			return c.enterSharedEval(f, code, 0)
		}
		return c.enterEvalWith(f, code, *this, 0)
	})
}
