package vm

import (
	"fmt"
	"math"
)

// maxStringLength bounds the byte length of concatenation results.
const maxStringLength = 1 << 30

// binary evaluates a binary operator. Numbers take the fast path; other
// operands go through ToPrimitive, which may run script code.
func (c *ExecContext) binary(op OpCode, a, b Value) (Value, error) {
	if a.IsNumber() && b.IsNumber() {
		return arith(op, a.num, b.num), nil
	}
	switch op {
	case OpAdd:
		return c.add(a, b)
	case OpSub, OpMul, OpDiv, OpMod:
		x, err := c.ToNumber(a)
		if err != nil {
			return Undefined, err
		}
		y, err := c.ToNumber(b)
		if err != nil {
			return Undefined, err
		}
		return arith(op, x, y), nil
	case OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
		return c.relational(op, a, b)
	case OpEqual, OpNotEqual:
		eq, err := c.looseEquals(a, b)
		if err != nil {
			return Undefined, err
		}
		return BooleanValue(eq == (op == OpEqual)), nil
	case OpStrictEqual:
		return BooleanValue(a.StrictlyEquals(b)), nil
	case OpStrictNotEqual:
		return BooleanValue(!a.StrictlyEquals(b)), nil
	}
	return Undefined, fmt.Errorf("%s is not a binary operator", op)
}

func arith(op OpCode, x, y float64) Value {
	switch op {
	case OpAdd:
		return NumberValue(x + y)
	case OpSub:
		return NumberValue(x - y)
	case OpMul:
		return NumberValue(x * y)
	case OpDiv:
		return NumberValue(x / y)
	case OpMod:
		return NumberValue(math.Mod(x, y))
	case OpLess:
		return BooleanValue(x < y)
	case OpLessEqual:
		return BooleanValue(x <= y)
	case OpGreater:
		return BooleanValue(x > y)
	case OpGreaterEqual:
		return BooleanValue(x >= y)
	case OpEqual, OpStrictEqual:
		return BooleanValue(x == y)
	case OpNotEqual, OpStrictNotEqual:
		return BooleanValue(x != y)
	}
	panic(fmt.Sprintf("arith: unexpected %s", op))
}

func (c *ExecContext) add(a, b Value) (Value, error) {
	pa, err := c.ToPrimitive(a, HintDefault)
	if err != nil {
		return Undefined, err
	}
	pb, err := c.ToPrimitive(b, HintDefault)
	if err != nil {
		return Undefined, err
	}
	if pa.IsString() || pb.IsString() {
		s := primitiveToString(pa) + primitiveToString(pb)
		if len(s) > maxStringLength {
			return Undefined, c.RangeError("Invalid string length")
		}
		return NewString(s), nil
	}
	return NumberValue(primitiveToNumber(pa) + primitiveToNumber(pb)), nil
}

// relational compares in left-to-right conversion order. Strings compare
// by UTF-16 code units; NaN makes every comparison false.
func (c *ExecContext) relational(op OpCode, a, b Value) (Value, error) {
	pa, err := c.ToPrimitive(a, HintNumber)
	if err != nil {
		return Undefined, err
	}
	pb, err := c.ToPrimitive(b, HintNumber)
	if err != nil {
		return Undefined, err
	}
	if pa.IsString() && pb.IsString() {
		cmp := compareUTF16(pa.str, pb.str)
		switch op {
		case OpLess:
			return BooleanValue(cmp < 0), nil
		case OpLessEqual:
			return BooleanValue(cmp <= 0), nil
		case OpGreater:
			return BooleanValue(cmp > 0), nil
		default:
			return BooleanValue(cmp >= 0), nil
		}
	}
	return arith(op, primitiveToNumber(pa), primitiveToNumber(pb)), nil
}

// looseEquals implements ==.
func (c *ExecContext) looseEquals(a, b Value) (bool, error) {
	if a.IsObject() == b.IsObject() {
		return a.LooseEquals(b), nil
	}
	if a.IsNullish() || b.IsNullish() {
		return false, nil
	}
	if a.IsObject() {
		a, b = b, a
	}
	// a is now the primitive side.
	if a.IsBoolean() {
		a = NumberValue(a.num)
	}
	pb, err := c.ToPrimitive(b, HintDefault)
	if err != nil {
		return false, err
	}
	return a.LooseEquals(pb), nil
}
