package vm

// variablesObject returns the object exposing f's named registers to
// closures. Each local is an aliased-register special; the frame detaches
// them when it is popped.
func (c *ExecContext) variablesObject(f *Frame) *Object {
	if f.shared != nil {
		return c.variablesObject(f.shared)
	}
	if f.variables != nil {
		return f.variables
	}
	o := c.realm.allocate(c.rt.shapes.Root(nil), ClassVariables)
	hasArguments := false
	for i, name := range f.code.Locals {
		if name == "arguments" {
			hasArguments = true
		}
		sp := &Special{kind: SpecialAliasedRegister, regs: c.regs, reg: f.base + 2 + i}
		o.defineSpecial(NameKey(name), sp, AttrDontDelete)
		f.aliases = append(f.aliases, sp)
	}
	if f.fn != nil && !hasArguments {
		sp := &Special{kind: SpecialLazyArguments, frame: f}
		o.defineSpecial(NameKey("arguments"), sp, AttrDontDelete)
		f.lazyArgs = sp
	}
	f.variables = o
	return o
}

// materializeArguments creates f's arguments object. In sloppy code the
// declared parameters alias their registers; strict code gets copies.
func (c *ExecContext) materializeArguments(f *Frame) *Object {
	if f.shared != nil {
		return c.materializeArguments(f.shared)
	}
	if f.arguments != nil {
		return f.arguments
	}
	r := c.realm
	o := r.allocate(c.rt.shapes.Root(r.ObjectPrototype), ClassArguments)
	strict := f.code.Strict
	if strict {
		o.flags |= flagStrict
	}
	w := c.regs.window(f.base, f.size)
	for i := 0; i < f.argc; i++ {
		key := IndexKey(uint32(i))
		switch {
		case i >= f.code.Params:
			o.addProperty(key, AttrNone, f.extra[i-f.code.Params])
		case strict:
			o.addProperty(key, AttrNone, w[2+i])
		default:
			sp := &Special{kind: SpecialAliasedRegister, regs: c.regs, reg: f.base + 2 + i}
			o.defineSpecial(key, sp, AttrNone)
			f.aliases = append(f.aliases, sp)
		}
	}
	o.addProperty(lengthKey, AttrDontEnum, IntegerValue(f.argc))
	if !strict && f.fn != nil {
		o.addProperty(NameKey("callee"), AttrDontEnum, ObjectValue(f.fn))
	}
	f.arguments = o
	return o
}

// resolveLazyArguments replaces a still unread lazy arguments property
// with the real object before f's registers go away.
func (c *ExecContext) resolveLazyArguments(f *Frame) {
	sp := f.lazyArgs
	f.lazyArgs = nil
	if f.variables == nil {
		return
	}
	p, _, ok := f.variables.ownProperty(NameKey("arguments"))
	if !ok || p.Attrs&AttrSpecial == 0 || f.variables.readSlot(p).special() != sp {
		return
	}
	f.variables.replaceSpecial(p, ObjectValue(c.materializeArguments(f)))
}
