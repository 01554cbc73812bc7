package vm

import (
	"fmt"

	"github.com/nooga/esvm/pkg/errors"
)

func rd16(code []byte, at int) int {
	return int(code[at])<<8 | int(code[at+1])
}

func rdJump(code []byte, at int) int {
	return int(int16(uint16(code[at])<<8 | uint16(code[at+1])))
}

// set stores v in register r of f. The register file may have moved since
// the instruction started, so the window is looked up again.
func (c *ExecContext) set(f *Frame, r byte, v Value) {
	c.regs.values[f.base+int(r)] = v
}

// execute is the interpreter loop. It runs until the nearest exit frame
// executes OpExit, or an error unwinds down to it; either way the exit
// frame is popped before returning.
func (c *ExecContext) execute() (Value, error) {
	for {
		f := c.top()
		if f.ip == 0 && !f.dispatched && f.code.NativeEntry && c.rt.dispatcher != nil {
			f.dispatched = true
			if err := c.enterDispatcher(f); err != nil && !c.unwind(err) {
				c.popFrame()
				return Undefined, err
			}
			continue
		}
		code := f.code.Code
		if f.ip >= len(code) {
			c.doReturn(Undefined)
			continue
		}
		f.pc = f.ip
		op := OpCode(code[f.pc])
		ip := f.pc + 1
		f.ip = f.pc + op.Width()
		regs := c.regs.window(f.base, f.size)

		var err error
		switch op {
		case OpNop:

		case OpLoadConst:
			regs[code[ip]] = f.code.Constants[rd16(code, ip+1)]
		case OpLoadUndefined:
			regs[code[ip]] = Undefined
		case OpLoadNull:
			regs[code[ip]] = Null
		case OpLoadTrue:
			regs[code[ip]] = True
		case OpLoadFalse:
			regs[code[ip]] = False
		case OpMove:
			regs[code[ip]] = regs[code[ip+1]]

		case OpAdd, OpSub, OpMul, OpDiv, OpMod,
			OpLess, OpLessEqual, OpGreater, OpGreaterEqual,
			OpEqual, OpNotEqual, OpStrictEqual, OpStrictNotEqual:
			var v Value
			v, err = c.binary(op, regs[code[ip+1]], regs[code[ip+2]])
			if err == nil {
				c.set(f, code[ip], v)
			}

		case OpNot:
			regs[code[ip]] = BooleanValue(regs[code[ip+1]].IsFalsey())
		case OpNegate:
			src := regs[code[ip+1]]
			if src.IsNumber() {
				regs[code[ip]] = NumberValue(-src.AsNumber())
				break
			}
			var n float64
			n, err = c.ToNumber(src)
			if err == nil {
				c.set(f, code[ip], NumberValue(-n))
			}
		case OpTypeof:
			regs[code[ip]] = NewString(regs[code[ip+1]].TypeName())

		case OpJump:
			off := rdJump(code, ip)
			f.ip += off
			if off < 0 {
				err = c.tick()
			}
		case OpJumpIfFalse, OpJumpIfTrue:
			if regs[code[ip]].IsTruthy() == (op == OpJumpIfTrue) {
				off := rdJump(code, ip+1)
				f.ip += off
				if off < 0 {
					err = c.tick()
				}
			}

		case OpNewObject:
			regs[code[ip]] = ObjectValue(c.realm.NewObject())
		case OpNewArray:
			start, count := int(code[ip+1]), int(code[ip+2])
			values := append([]Value(nil), regs[start:start+count]...)
			c.set(f, code[ip], ObjectValue(c.realm.NewArray(values)))

		case OpGetProp:
			var v Value
			v, err = c.getNamed(regs[code[ip+1]], f.code.key(rd16(code, ip+2)), f.code.siteCache(f.pc))
			if err == nil {
				c.set(f, code[ip], v)
			}
		case OpPutProp:
			err = c.putNamed(f, regs[code[ip]], f.code.key(rd16(code, ip+1)), regs[code[ip+3]], f.code.siteCache(f.pc))
		case OpDeleteProp:
			var v Value
			v, err = c.deleteKey(f, regs[code[ip+1]], f.code.key(rd16(code, ip+2)))
			if err == nil {
				c.set(f, code[ip], v)
			}
		case OpGetIndex:
			var key PropertyKey
			if key, err = c.ToPropertyKey(regs[code[ip+2]]); err == nil {
				var v Value
				v, err = c.getNamed(c.regs.values[f.base+int(code[ip+1])], key, nil)
				if err == nil {
					c.set(f, code[ip], v)
				}
			}
		case OpPutIndex:
			var key PropertyKey
			if key, err = c.ToPropertyKey(regs[code[ip+1]]); err == nil {
				w := c.regs.window(f.base, f.size)
				err = c.putNamed(f, w[code[ip]], key, w[code[ip+2]], nil)
			}
		case OpDeleteIndex:
			var key PropertyKey
			if key, err = c.ToPropertyKey(regs[code[ip+2]]); err == nil {
				var v Value
				v, err = c.deleteKey(f, c.regs.values[f.base+int(code[ip+1])], key)
				if err == nil {
					c.set(f, code[ip], v)
				}
			}
		case OpIn:
			var v Value
			v, err = c.hasIn(regs[code[ip+1]], regs[code[ip+2]])
			if err == nil {
				c.set(f, code[ip], v)
			}

		case OpGetGlobal:
			var v Value
			v, err = c.getGlobal(f.code.key(rd16(code, ip+1)))
			if err == nil {
				c.set(f, code[ip], v)
			}
		case OpPutGlobal:
			err = c.putGlobal(f, f.code.key(rd16(code, ip)), regs[code[ip+2]])
		case OpGetScoped:
			var v Value
			v, err = c.getScoped(f, rd16(code, ip+1))
			if err == nil {
				c.set(f, code[ip], v)
			}
		case OpPutScoped:
			err = c.putScoped(f, rd16(code, ip), regs[code[ip+2]])

		case OpClosure:
			fn := c.realm.NewFunction(f.code.Functions[rd16(code, ip+1)], c.closureScope(f))
			c.set(f, code[ip], ObjectValue(fn))
		case OpCall, OpConstruct:
			err = c.callFromFrame(f, int(code[ip+1]), int(code[ip+2]), int(code[ip]), op == OpConstruct)
		case OpEval:
			err = c.enterEval(f, f.code.Functions[rd16(code, ip+1)], int(code[ip+3]), int(code[ip]))

		case OpReturn:
			c.doReturn(regs[code[ip]])
		case OpReturnUndefined:
			c.doReturn(Undefined)
		case OpThrow:
			err = c.Throw(regs[code[ip]])

		case OpLoadThis:
			regs[code[ip]] = regs[0]
		case OpLoadArguments:
			c.set(f, code[ip], ObjectValue(c.materializeArguments(f)))
		case OpSetProto:
			var v Value
			v, err = c.setProto(regs[code[ip+1]], regs[code[ip+2]])
			if err == nil {
				c.set(f, code[ip], v)
			}
		case OpOwnKeys:
			var v Value
			v, err = c.ownKeys(regs[code[ip+1]])
			if err == nil {
				c.set(f, code[ip], v)
			}

		case OpCheckpoint:
			err = c.checkpoint()
		case OpExit:
			c.popFrame()
			return f.result, nil

		default:
			err = fmt.Errorf("%s: invalid opcode %d at %d", f.code.Name, op, f.pc)
		}

		if err != nil && !c.unwind(err) {
			c.popFrame()
			return Undefined, err
		}
	}
}

// checkpoint is an explicit safe point: pending collections run and a
// requested preemption suspends.
func (c *ExecContext) checkpoint() error {
	if err := c.safePoint(); err != nil {
		return err
	}
	if c.preempt.Load() && c.canSuspend() {
		c.preempt.Store(false)
		c.budget = c.quota
		return c.suspend(suspendCheckpoint)
	}
	return nil
}

// --- Property access from bytecode ---

// getNamed reads key from base, consulting and feeding the site cache.
// Objects of another realm always take the slow path so that the access
// check runs.
func (c *ExecContext) getNamed(base Value, key PropertyKey, site *PropertyCache) (Value, error) {
	if !base.IsObject() {
		return c.getPrimitive(base, key)
	}
	o := base.AsObject()
	cacheOK := site != nil && o.realm == c.realm
	if cacheOK {
		if v, ok := site.lookupGet(o, c.rt.protoEpoch, &c.rt.cacheStats); ok {
			return v, nil
		}
	}
	var info CacheInfo
	var infop *CacheInfo
	if cacheOK {
		infop = &info
	}
	v, r, err := c.Get(o, key, base, infop)
	if err != nil {
		return Undefined, err
	}
	if cacheOK && r.Cacheable() {
		site.recordGet(r, &info)
	}
	return c.getOutcome(v, r, key)
}

// getOutcome turns a Get status into a value or a thrown error.
func (c *ExecContext) getOutcome(v Value, r GetResult, key PropertyKey) (Value, error) {
	switch r {
	case GetFound, GetFoundCacheable:
		return v, nil
	case GetNotFound, GetNotFoundCacheable:
		return Undefined, nil
	case GetSecurityDenied:
		return Undefined, c.securityError(key)
	case GetSuspend:
		return Undefined, c.TypeError(fmt.Sprintf("property '%s' is not available synchronously", key))
	case GetOutOfMemory:
		return Undefined, &errors.ResourceError{Resource: errors.OutOfMemory, Msg: "property read"}
	}
	return Undefined, c.TypeError(fmt.Sprintf("cannot read property '%s'", key))
}

func (c *ExecContext) getPrimitive(base Value, key PropertyKey) (Value, error) {
	switch base.Type() {
	case TypeUndefined, TypeNull:
		return Undefined, c.TypeError(fmt.Sprintf("Cannot read properties of %s (reading '%s')", base, key))
	case TypeString:
		if key == lengthKey {
			return IntegerValue(utf16Len(base.AsString())), nil
		}
		if key.IsIndex() {
			if ch, ok := charAt(base.AsString(), key.Index()); ok {
				return NewString(ch), nil
			}
		}
	}
	proto := c.realm.primitivePrototype(base)
	if proto == nil {
		return Undefined, nil
	}
	v, r, err := c.Get(proto, key, base, nil)
	if err != nil {
		return Undefined, err
	}
	return c.getOutcome(v, r, key)
}

// putNamed writes key on base from code running in f.
func (c *ExecContext) putNamed(f *Frame, base Value, key PropertyKey, v Value, site *PropertyCache) error {
	if !base.IsObject() {
		if base.IsNullish() {
			return c.TypeError(fmt.Sprintf("Cannot set properties of %s (setting '%s')", base, key))
		}
		if f.code.Strict {
			return c.TypeError(fmt.Sprintf("Cannot create property '%s' on %s %s", key, base.TypeName(), base.Inspect()))
		}
		return nil
	}
	o := base.AsObject()
	cacheOK := site != nil && o.realm == c.realm
	if cacheOK && site.lookupPut(o, v, c.rt.protoEpoch, &c.rt.cacheStats) {
		return nil
	}
	var info CacheInfo
	var infop *CacheInfo
	if cacheOK {
		infop = &info
	}
	r, err := c.Put(o, key, v, base, infop)
	if err != nil {
		return err
	}
	if cacheOK && (r == PutOKCacheable || r == PutOKCacheableNew) {
		site.recordPut(r, &info)
	}
	return c.putOutcome(f.code.Strict, r, key)
}

func (c *ExecContext) putOutcome(strict bool, r PutResult, key PropertyKey) error {
	switch r {
	case PutOK, PutOKCacheable, PutOKCacheableNew:
		return nil
	case PutReadOnly:
		if strict {
			return c.TypeError(fmt.Sprintf("Cannot assign to read only property '%s'", key))
		}
		return nil
	case PutSecurityDenied:
		return c.securityError(key)
	case PutSuspend:
		return c.TypeError(fmt.Sprintf("property '%s' cannot be written synchronously", key))
	case PutOutOfMemory:
		return &errors.ResourceError{Resource: errors.OutOfMemory, Msg: "property write"}
	}
	return c.TypeError(fmt.Sprintf("cannot set property '%s'", key))
}

func (c *ExecContext) deleteKey(f *Frame, base Value, key PropertyKey) (Value, error) {
	if !base.IsObject() {
		if base.IsNullish() {
			return Undefined, c.TypeError(fmt.Sprintf("Cannot convert %s to object", base))
		}
		return True, nil
	}
	r, err := c.Delete(base.AsObject(), key)
	if err != nil {
		return Undefined, err
	}
	if r == DeleteRejected {
		if f.code.Strict {
			return Undefined, c.TypeError(fmt.Sprintf("Cannot delete property '%s' of %s", key, base.Inspect()))
		}
		return False, nil
	}
	return True, nil
}

func (c *ExecContext) hasIn(keyVal, objVal Value) (Value, error) {
	if !objVal.IsObject() {
		return Undefined, c.TypeError(fmt.Sprintf("Cannot use 'in' operator to search for '%s' in %s", keyVal, objVal))
	}
	key, err := c.ToPropertyKey(keyVal)
	if err != nil {
		return Undefined, err
	}
	ok, err := c.Has(objVal.AsObject(), key)
	if err != nil {
		return Undefined, err
	}
	return BooleanValue(ok), nil
}

func (c *ExecContext) setProto(objVal, protoVal Value) (Value, error) {
	if !objVal.IsObject() {
		return Undefined, c.TypeError("Object.setPrototypeOf called on non-object")
	}
	var proto *Object
	switch {
	case protoVal.IsObject():
		proto = protoVal.AsObject()
	case protoVal.IsNull():
	default:
		return Undefined, c.TypeError("Object prototype may only be an Object or null: " + protoVal.Inspect())
	}
	return BooleanValue(c.SetPrototype(objVal.AsObject(), proto)), nil
}

func (c *ExecContext) ownKeys(objVal Value) (Value, error) {
	o, err := c.ToObject(objVal)
	if err != nil {
		return Undefined, err
	}
	keys, err := c.EnumerateOwnNames(o, false)
	if err != nil {
		return Undefined, err
	}
	values := make([]Value, len(keys))
	for i, k := range keys {
		values[i] = NewString(k.Name())
	}
	return ObjectValue(c.realm.NewArray(values)), nil
}

// --- Globals and scopes ---

func (c *ExecContext) getGlobal(key PropertyKey) (Value, error) {
	g := c.realm.Global
	v, r, err := c.Get(g, key, ObjectValue(g), nil)
	if err != nil {
		return Undefined, err
	}
	if r == GetNotFound || r == GetNotFoundCacheable {
		return Undefined, c.ReferenceError(fmt.Sprintf("%s is not defined", key))
	}
	return c.getOutcome(v, r, key)
}

func (c *ExecContext) putGlobal(f *Frame, key PropertyKey, v Value) error {
	g := c.realm.Global
	if f.code.Strict {
		found, err := c.Has(g, key)
		if err != nil {
			return err
		}
		if !found {
			return c.ReferenceError(fmt.Sprintf("%s is not defined", key))
		}
	}
	return c.putNamed(f, ObjectValue(g), key, v, nil)
}

// getScoped resolves a name through the frame's locals, the scope chain
// and finally the global object.
func (c *ExecContext) getScoped(f *Frame, name int) (Value, error) {
	if r, ok := f.code.localRegister(f.code.Names[name]); ok {
		return c.regs.values[f.base+r], nil
	}
	key := f.code.key(name)
	for s := f.scope; s != nil; s = s.parent {
		found, err := c.Has(s.vars, key)
		if err != nil {
			return Undefined, err
		}
		if found {
			v, r, err := c.Get(s.vars, key, ObjectValue(s.vars), nil)
			if err != nil {
				return Undefined, err
			}
			return c.getOutcome(v, r, key)
		}
	}
	return c.getGlobal(key)
}

func (c *ExecContext) putScoped(f *Frame, name int, v Value) error {
	if r, ok := f.code.localRegister(f.code.Names[name]); ok {
		c.regs.values[f.base+r] = v
		return nil
	}
	key := f.code.key(name)
	for s := f.scope; s != nil; s = s.parent {
		found, err := c.Has(s.vars, key)
		if err != nil {
			return err
		}
		if found {
			return c.putNamed(f, ObjectValue(s.vars), key, v, nil)
		}
	}
	return c.putGlobal(f, key, v)
}

// closureScope returns the scope chain captured by closures created in f.
func (c *ExecContext) closureScope(f *Frame) *Scope {
	if f.shared != nil {
		return c.closureScope(f.shared)
	}
	if f.fn == nil && len(f.code.Locals) == 0 {
		return f.scope
	}
	return NewScope(c.variablesObject(f), f.scope)
}
