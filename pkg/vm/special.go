package vm

import "fmt"

// SpecialKind enumerates the computed property kinds known to the engine.
// The set is closed; Get and Put switch over it exhaustively.
type SpecialKind uint8

const (
	SpecialAccessor        SpecialKind = iota // getter/setter pair
	SpecialGlobalSlot                         // declared global living in the binding heap
	SpecialAliasedRegister                    // variable living in a frame register
	SpecialLazyArguments                      // arguments object created on first read
	SpecialLazyPrototype                      // function .prototype created on first read
	SpecialStackTrace                         // error .stack rendered on first read
	SpecialRegExpCapture                      // RegExp.$1..$9
)

func (k SpecialKind) String() string {
	switch k {
	case SpecialAccessor:
		return "accessor"
	case SpecialGlobalSlot:
		return "global-slot"
	case SpecialAliasedRegister:
		return "aliased-register"
	case SpecialLazyArguments:
		return "lazy-arguments"
	case SpecialLazyPrototype:
		return "lazy-prototype"
	case SpecialStackTrace:
		return "stack-trace"
	case SpecialRegExpCapture:
		return "regexp-capture"
	}
	return fmt.Sprintf("special(%d)", k)
}

// Special is the payload of a boxed property value.
type Special struct {
	kind SpecialKind

	getter *Object // accessor
	setter *Object

	heap *Heap // global slot
	slot int

	// aliased register: the value lives at regs.values[reg] until the frame
	// owning it is popped, after which it lives in value.
	regs     *RegisterFile
	reg      int
	detached bool
	value    Value

	frame *Frame  // lazy arguments
	fn    *Object // lazy prototype
	trace *StackTrace
	group int // regexp capture group
}

func newAccessor(getter, setter *Object) *Special {
	return &Special{kind: SpecialAccessor, getter: getter, setter: setter}
}

// Kind returns the special's kind.
func (sp *Special) Kind() SpecialKind { return sp.kind }

// detach copies an aliased register out of the register file. It is a
// no-op after the first call.
func (sp *Special) detach() bool {
	if sp.kind != SpecialAliasedRegister || sp.detached {
		return false
	}
	sp.value = sp.regs.values[sp.reg]
	sp.detached = true
	sp.regs = nil
	return true
}

func (sp *Special) aliasedValue() Value {
	if sp.detached {
		return sp.value
	}
	return sp.regs.values[sp.reg]
}

// getSpecial resolves a boxed property found on holder.
func (c *ExecContext) getSpecial(sp *Special, receiver Value, holder *Object, p PropertyInfo) (Value, GetResult, error) {
	switch sp.kind {
	case SpecialAccessor:
		if sp.getter == nil {
			return Undefined, GetFound, nil
		}
		v, err := c.callInternal(ObjectValue(sp.getter), receiver, nil, TransitionNormal)
		if err != nil {
			return Undefined, GetFailed, err
		}
		return v, GetFound, nil
	case SpecialGlobalSlot:
		v, _ := sp.heap.Get(sp.slot)
		return v, GetFound, nil
	case SpecialAliasedRegister:
		return sp.aliasedValue(), GetFound, nil
	case SpecialLazyArguments:
		args := c.materializeArguments(sp.frame)
		holder.replaceSpecial(p, ObjectValue(args))
		return ObjectValue(args), GetFound, nil
	case SpecialLazyPrototype:
		proto := sp.fn.realm.newFunctionPrototype(sp.fn)
		holder.replaceSpecial(p, ObjectValue(proto))
		return ObjectValue(proto), GetFound, nil
	case SpecialStackTrace:
		return NewString(sp.trace.Render()), GetFound, nil
	case SpecialRegExpCapture:
		return NewString(holder.realm.lastCapture(sp.group)), GetFound, nil
	}
	panic(fmt.Sprintf("unhandled special kind %s", sp.kind))
}

// putSpecial writes through a boxed property found on holder.
func (c *ExecContext) putSpecial(sp *Special, receiver Value, holder *Object, p PropertyInfo, v Value) (PutResult, error) {
	switch sp.kind {
	case SpecialAccessor:
		if sp.setter == nil {
			return PutReadOnly, nil
		}
		if _, err := c.callInternal(ObjectValue(sp.setter), receiver, []Value{v}, TransitionNormal); err != nil {
			return PutFailed, err
		}
		return PutOK, nil
	case SpecialGlobalSlot:
		if !p.Attrs.Writable() {
			return PutReadOnly, nil
		}
		sp.heap.Set(sp.slot, v)
		return PutOK, nil
	case SpecialAliasedRegister:
		if !p.Attrs.Writable() {
			return PutReadOnly, nil
		}
		if sp.detached {
			sp.value = v
		} else {
			sp.regs.values[sp.reg] = v
		}
		return PutOK, nil
	case SpecialLazyArguments, SpecialLazyPrototype, SpecialStackTrace:
		if !p.Attrs.Writable() {
			return PutReadOnly, nil
		}
		if receiver.IsObject() && receiver.AsObject() != holder {
			return PutOK, nil
		}
		holder.replaceSpecial(p, v)
		return PutOK, nil
	case SpecialRegExpCapture:
		return PutReadOnly, nil
	}
	panic(fmt.Sprintf("unhandled special kind %s", sp.kind))
}

// replaceSpecial turns a special property into a plain data property
// holding v, keeping its attributes.
func (o *Object) replaceSpecial(p PropertyInfo, v Value) {
	_, i, ok := o.ownProperty(p.Key)
	if !ok {
		return
	}
	o.retypeTo(i, StorageTypeFor(v))
	attrs := p.Attrs &^ (AttrAccessor | AttrSpecial)
	o.changeAttributes(p.Key, attrs)
	np, _, _ := o.ownProperty(p.Key)
	o.writeSlot(np, v)
}

// defineSpecial adds or replaces key with a special property.
func (o *Object) defineSpecial(key PropertyKey, sp *Special, attrs Attr) {
	if sp.kind == SpecialAccessor {
		attrs = attrs&^(AttrReadOnly|AttrSpecial) | AttrAccessor
	} else {
		attrs = attrs&^AttrAccessor | AttrSpecial
	}
	v := boxedValue(sp)
	if p, i, ok := o.ownProperty(key); ok {
		if p.Type != StorageBoxed {
			p = o.retypeTo(i, StorageBoxed)
		}
		if p.Attrs != attrs {
			o.changeAttributes(key, attrs)
			p, _, _ = o.ownProperty(key)
		}
		o.writeSlot(p, v)
		return
	}
	o.addProperty(key, attrs, v)
}
