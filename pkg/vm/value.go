package vm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// cleanExponentialFormat removes leading zeros from exponents so that
// strconv output matches script number formatting ("1e+21", not "1e+021").
func cleanExponentialFormat(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == 'e' || s[i] == 'E' {
			if i+1 < len(s) && (s[i+1] == '+' || s[i+1] == '-') {
				sign := s[i+1]
				j := i + 2
				for j < len(s) && s[j] == '0' {
					j++
				}
				if j >= len(s) {
					return s[:i+2] + "0"
				}
				return s[:i+1] + string(sign) + s[j:]
			}
			break
		}
	}
	return s
}

type ValueType uint8

const (
	TypeUndefined ValueType = iota
	TypeNull
	TypeBoolean
	TypeNumber
	TypeString
	TypeObject

	// TypeBoxed marks an internal extension value stored in a property slot.
	// Boxed values never reach script code.
	TypeBoxed

	typeHole // empty slot in a dense indexed store
)

func (vt ValueType) String() string {
	switch vt {
	case TypeUndefined:
		return "undefined"
	case TypeNull:
		return "null"
	case TypeBoolean:
		return "boolean"
	case TypeNumber:
		return "number"
	case TypeString:
		return "string"
	case TypeObject:
		return "object"
	case TypeBoxed:
		return "boxed"
	case typeHole:
		return "hole"
	default:
		return fmt.Sprintf("<unknown type: %d>", vt)
	}
}

// Value is a script value. The zero Value is undefined.
type Value struct {
	typ ValueType
	num float64 // number payload, 1 for true
	str string
	ref any // *Object or *Special
}

var (
	Undefined = Value{typ: TypeUndefined}
	Null      = Value{typ: TypeNull}
	True      = Value{typ: TypeBoolean, num: 1}
	False     = Value{typ: TypeBoolean}
	NaN       = Value{typ: TypeNumber, num: math.NaN()}

	hole = Value{typ: typeHole}
)

func BooleanValue(b bool) Value {
	if b {
		return True
	}
	return False
}

func NumberValue(f float64) Value {
	return Value{typ: TypeNumber, num: f}
}

func IntegerValue(i int) Value {
	return Value{typ: TypeNumber, num: float64(i)}
}

func NewString(s string) Value {
	return Value{typ: TypeString, str: s}
}

func ObjectValue(o *Object) Value {
	if o == nil {
		return Null
	}
	return Value{typ: TypeObject, ref: o}
}

func boxedValue(sp *Special) Value {
	return Value{typ: TypeBoxed, ref: sp}
}

func (v Value) Type() ValueType   { return v.typ }
func (v Value) IsUndefined() bool { return v.typ == TypeUndefined }
func (v Value) IsNull() bool      { return v.typ == TypeNull }
func (v Value) IsNullish() bool   { return v.typ == TypeUndefined || v.typ == TypeNull }
func (v Value) IsBoolean() bool   { return v.typ == TypeBoolean }
func (v Value) IsNumber() bool    { return v.typ == TypeNumber }
func (v Value) IsString() bool    { return v.typ == TypeString }
func (v Value) IsObject() bool    { return v.typ == TypeObject }
func (v Value) IsBoxed() bool     { return v.typ == TypeBoxed }
func (v Value) isHole() bool      { return v.typ == typeHole }

// IsInt32 reports whether v is a number exactly representable as int32.
// Negative zero is not.
func (v Value) IsInt32() bool {
	if v.typ != TypeNumber {
		return false
	}
	i := int32(v.num)
	return float64(i) == v.num && !(v.num == 0 && math.Signbit(v.num))
}

// IsCallable reports whether v is a function object of any flavour.
func (v Value) IsCallable() bool {
	return v.typ == TypeObject && v.ref.(*Object).IsCallable()
}

func (v Value) AsBoolean() bool {
	if v.typ != TypeBoolean {
		panic("value is not a boolean")
	}
	return v.num != 0
}

func (v Value) AsNumber() float64 {
	if v.typ != TypeNumber {
		panic("value is not a number")
	}
	return v.num
}

func (v Value) AsString() string {
	if v.typ != TypeString {
		panic("value is not a string")
	}
	return v.str
}

func (v Value) AsObject() *Object {
	if v.typ != TypeObject {
		panic("value is not an object")
	}
	return v.ref.(*Object)
}

func (v Value) special() *Special {
	if v.typ != TypeBoxed {
		panic("value is not boxed")
	}
	return v.ref.(*Special)
}

// TypeName returns the typeof string for v.
func (v Value) TypeName() string {
	switch v.typ {
	case TypeUndefined:
		return "undefined"
	case TypeNull:
		return "object"
	case TypeBoolean:
		return "boolean"
	case TypeNumber:
		return "number"
	case TypeString:
		return "string"
	case TypeObject:
		if v.ref.(*Object).IsCallable() {
			return "function"
		}
		return "object"
	default:
		return fmt.Sprintf("<internal %s>", v.typ)
	}
}

// IsFalsey implements ToBoolean negated.
func (v Value) IsFalsey() bool {
	switch v.typ {
	case TypeUndefined, TypeNull, typeHole:
		return true
	case TypeBoolean:
		return v.num == 0
	case TypeNumber:
		return v.num == 0 || math.IsNaN(v.num)
	case TypeString:
		return v.str == ""
	default:
		return false
	}
}

func (v Value) IsTruthy() bool {
	return !v.IsFalsey()
}

// --- Equality ---

// StrictlyEquals implements ===.
func (v Value) StrictlyEquals(other Value) bool {
	if v.typ != other.typ {
		return false
	}
	switch v.typ {
	case TypeUndefined, TypeNull:
		return true
	case TypeBoolean, TypeNumber:
		return v.num == other.num
	case TypeString:
		return v.str == other.str
	default:
		return v.ref == other.ref
	}
}

// Is implements SameValue: NaN is NaN, +0 is not -0.
func (v Value) Is(other Value) bool {
	if v.typ == TypeNumber && other.typ == TypeNumber {
		if math.IsNaN(v.num) && math.IsNaN(other.num) {
			return true
		}
		if v.num == 0 && other.num == 0 {
			return math.Signbit(v.num) == math.Signbit(other.num)
		}
		return v.num == other.num
	}
	return v.StrictlyEquals(other)
}

// LooseEquals implements == for the cases that need no user code: objects
// compared with primitives are handled by the interpreter via ToPrimitive.
func (v Value) LooseEquals(other Value) bool {
	if v.typ == other.typ {
		return v.StrictlyEquals(other)
	}
	if v.IsNullish() && other.IsNullish() {
		return true
	}
	if v.IsNullish() || other.IsNullish() {
		return false
	}
	if v.typ == TypeObject || other.typ == TypeObject {
		return false
	}
	return primitiveToNumber(v) == primitiveToNumber(other)
}

// --- Primitive conversions (no user code involved) ---

func numberToString(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	abs := math.Abs(f)
	if abs >= 1e21 || abs < 1e-6 {
		return cleanExponentialFormat(strconv.FormatFloat(f, 'e', -1, 64))
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func stringToNumber(s string) float64 {
	s = strings.TrimSpace(s)
	switch s {
	case "":
		return 0
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}
	if len(s) > 2 && s[0] == '0' {
		base := 0
		switch s[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 0 {
			n, err := strconv.ParseUint(s[2:], base, 64)
			if err != nil {
				return math.NaN()
			}
			return float64(n)
		}
	}
	if strings.ContainsAny(s, "_xXpP") || strings.EqualFold(s, "inf") || strings.EqualFold(s, "+inf") ||
		strings.EqualFold(s, "-inf") || strings.EqualFold(s, "nan") {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// primitiveToNumber converts a non-object value.
func primitiveToNumber(v Value) float64 {
	switch v.typ {
	case TypeUndefined:
		return math.NaN()
	case TypeNull:
		return 0
	case TypeBoolean, TypeNumber:
		return v.num
	case TypeString:
		return stringToNumber(v.str)
	default:
		return math.NaN()
	}
}

// primitiveToString converts a non-object value.
func primitiveToString(v Value) string {
	switch v.typ {
	case TypeUndefined:
		return "undefined"
	case TypeNull:
		return "null"
	case TypeBoolean:
		if v.num != 0 {
			return "true"
		}
		return "false"
	case TypeNumber:
		return numberToString(v.num)
	case TypeString:
		return v.str
	default:
		return "[object Object]"
	}
}

func toInt32(f float64) int32 {
	return int32(toUint32(f))
}

func toUint32(f float64) uint32 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	f = math.Trunc(f)
	f = math.Mod(f, 4294967296)
	if f < 0 {
		f += 4294967296
	}
	return uint32(f)
}

// Inspect renders v for diagnostics without running user code.
func (v Value) Inspect() string {
	switch v.typ {
	case TypeString:
		return strconv.Quote(v.str)
	case TypeObject:
		o := v.ref.(*Object)
		switch o.class {
		case ClassFunction, ClassBoundFunction, ClassNativeFunction:
			return fmt.Sprintf("[Function: %s]", o.functionName())
		case ClassError:
			return o.errorSummary()
		case ClassArray:
			return fmt.Sprintf("[Array(%d)]", o.arrayLength())
		}
		return fmt.Sprintf("[object %s]", o.class)
	case TypeBoxed:
		return fmt.Sprintf("<%s>", v.ref.(*Special).kind)
	default:
		return primitiveToString(v)
	}
}

func (v Value) String() string {
	if v.typ == TypeObject || v.typ == TypeBoxed {
		return v.Inspect()
	}
	return primitiveToString(v)
}
