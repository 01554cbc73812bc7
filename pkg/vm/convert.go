package vm

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// Hint selects the preferred type of ToPrimitive.
type Hint uint8

const (
	HintDefault Hint = iota
	HintNumber
	HintString
)

var (
	valueOfKey  = NameKey("valueOf")
	toStringKey = NameKey("toString")
)

// ToPrimitive converts v to a non-object value, calling valueOf and
// toString in the order the hint asks for.
func (c *ExecContext) ToPrimitive(v Value, hint Hint) (Value, error) {
	if !v.IsObject() {
		return v, nil
	}
	o := v.AsObject()
	order := [2]PropertyKey{valueOfKey, toStringKey}
	if hint == HintString {
		order = [2]PropertyKey{toStringKey, valueOfKey}
	}
	for _, key := range order {
		m, r, err := c.Get(o, key, v, nil)
		if err != nil {
			return Undefined, err
		}
		if m, err = c.getOutcome(m, r, key); err != nil {
			return Undefined, err
		}
		if !m.IsCallable() {
			continue
		}
		res, err := c.callInternal(m, v, nil, TransitionCoercion)
		if err != nil {
			return Undefined, err
		}
		if !res.IsObject() {
			return res, nil
		}
	}
	return Undefined, c.TypeError("Cannot convert object to primitive value")
}

// ToNumber implements the script number conversion.
func (c *ExecContext) ToNumber(v Value) (float64, error) {
	if v.IsNumber() {
		return v.num, nil
	}
	p, err := c.ToPrimitive(v, HintNumber)
	if err != nil {
		return math.NaN(), err
	}
	return primitiveToNumber(p), nil
}

// ToString implements the script string conversion.
func (c *ExecContext) ToString(v Value) (string, error) {
	if v.IsString() {
		return v.str, nil
	}
	p, err := c.ToPrimitive(v, HintString)
	if err != nil {
		return "", err
	}
	return primitiveToString(p), nil
}

// ToPropertyKey converts v to a property key.
func (c *ExecContext) ToPropertyKey(v Value) (PropertyKey, error) {
	switch v.Type() {
	case TypeNumber:
		return keyFromNumber(v.num), nil
	case TypeString:
		return NameKey(v.str), nil
	case TypeObject:
		p, err := c.ToPrimitive(v, HintString)
		if err != nil {
			return PropertyKey{}, err
		}
		return c.ToPropertyKey(p)
	}
	return NameKey(primitiveToString(v)), nil
}

// ToObject returns v itself for objects and a wrapper for primitives.
func (c *ExecContext) ToObject(v Value) (*Object, error) {
	switch v.Type() {
	case TypeObject:
		return v.AsObject(), nil
	case TypeUndefined, TypeNull:
		return nil, c.TypeError(fmt.Sprintf("Cannot convert %s to object", v))
	}
	return c.realm.newPrimitiveWrapper(v), nil
}

// --- UTF-16 views of Go strings ---

// utf16Len returns the length of s in UTF-16 code units.
func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

// charAt returns the code unit at index i as a string. Half of a surrogate
// pair cannot be represented in UTF-8 and comes back as U+FFFD.
func charAt(s string, i uint32) (string, bool) {
	var at uint32
	for _, r := range s {
		n := uint32(utf16.RuneLen(r))
		if i < at+n {
			if n == 1 {
				return string(r), true
			}
			return string(utf8.RuneError), true
		}
		at += n
	}
	return "", false
}

// compareUTF16 orders a and b by code units.
func compareUTF16(a, b string) int {
	if isASCII(a) && isASCII(b) {
		return strings.Compare(a, b)
	}
	return slices.Compare(utf16.Encode([]rune(a)), utf16.Encode([]rune(b)))
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// --- Argument conversion for native functions ---

// convKind is one code of a conversion specification.
type convKind uint8

const (
	convNone       convKind = iota // -
	convBoolean                    // b
	convNumber                     // n
	convString                     // s
	convStringLen                  // z: string followed by its length
	convPrimString                 // p: ToPrimitive, string hint
	convPrimNumber                 // q: ToPrimitive, number hint
	convDict                       // {a:x,b:y}
	convArray                      // [x]
	convAlt                        // (x|y)
)

// maxAlternatives bounds the type probes of one alternation.
const maxAlternatives = 4

type convMember struct {
	key  PropertyKey
	code convCode
}

type convCode struct {
	kind     convKind
	nullable bool
	elem     *convCode
	members  []convMember
	alts     []convCode
}

// ConversionSpec describes how a native function's arguments are
// converted before it runs.
type ConversionSpec []convCode

// ParseConversion parses a conversion specification, one code per
// argument:
//
//	-        no conversion
//	b n s    boolean, number, string
//	z        string, followed in the converted list by its UTF-16 length
//	p q      ToPrimitive with string or number hint
//	?x       null and undefined pass as null, anything else converts by x
//	{a:x}    dictionary: members are read once into a fresh object
//	[x]      array: elements are read once into a fresh array
//	(x|y)    the first alternative whose type probe matches, else the last
//
// z is only allowed at the top level.
func ParseConversion(spec string) (ConversionSpec, error) {
	p := convParser{src: spec}
	var out ConversionSpec
	for p.pos < len(p.src) {
		code, err := p.code(true)
		if err != nil {
			return nil, err
		}
		out = append(out, code)
	}
	return out, nil
}

type convParser struct {
	src string
	pos int
}

func (p *convParser) errorf(format string, args ...any) error {
	return fmt.Errorf("conversion %q at %d: %s", p.src, p.pos, fmt.Sprintf(format, args...))
}

func (p *convParser) peek() byte {
	if p.pos < len(p.src) {
		return p.src[p.pos]
	}
	return 0
}

func (p *convParser) expect(ch byte) error {
	if p.peek() != ch {
		return p.errorf("expected %q", ch)
	}
	p.pos++
	return nil
}

func (p *convParser) code(top bool) (convCode, error) {
	ch := p.peek()
	if ch == 0 {
		return convCode{}, p.errorf("unexpected end")
	}
	p.pos++
	switch ch {
	case '-':
		return convCode{kind: convNone}, nil
	case 'b':
		return convCode{kind: convBoolean}, nil
	case 'n':
		return convCode{kind: convNumber}, nil
	case 's':
		return convCode{kind: convString}, nil
	case 'z':
		if !top {
			return convCode{}, p.errorf("z inside a structure")
		}
		return convCode{kind: convStringLen}, nil
	case 'p':
		return convCode{kind: convPrimString}, nil
	case 'q':
		return convCode{kind: convPrimNumber}, nil
	case '?':
		inner, err := p.code(top)
		if err != nil {
			return convCode{}, err
		}
		if inner.nullable {
			return convCode{}, p.errorf("repeated ?")
		}
		inner.nullable = true
		return inner, nil
	case '[':
		elem, err := p.code(false)
		if err != nil {
			return convCode{}, err
		}
		if err := p.expect(']'); err != nil {
			return convCode{}, err
		}
		return convCode{kind: convArray, elem: &elem}, nil
	case '{':
		return p.dict()
	case '(':
		return p.alternation()
	}
	p.pos--
	return convCode{}, p.errorf("unknown code %q", ch)
}

func (p *convParser) dict() (convCode, error) {
	out := convCode{kind: convDict}
	for p.peek() != '}' {
		if len(out.members) > 0 {
			if err := p.expect(','); err != nil {
				return convCode{}, err
			}
		}
		start := p.pos
		for p.peek() != ':' {
			if p.peek() == 0 || strings.IndexByte(",{}[]()|", p.peek()) >= 0 {
				return convCode{}, p.errorf("bad member name")
			}
			p.pos++
		}
		if p.pos == start {
			return convCode{}, p.errorf("empty member name")
		}
		name := p.src[start:p.pos]
		p.pos++
		code, err := p.code(false)
		if err != nil {
			return convCode{}, err
		}
		out.members = append(out.members, convMember{key: NameKey(name), code: code})
	}
	p.pos++
	return out, nil
}

func (p *convParser) alternation() (convCode, error) {
	out := convCode{kind: convAlt}
	for {
		code, err := p.code(false)
		if err != nil {
			return convCode{}, err
		}
		if code.kind == convAlt {
			return convCode{}, p.errorf("nested alternation")
		}
		out.alts = append(out.alts, code)
		if len(out.alts) > maxAlternatives {
			return convCode{}, p.errorf("more than %d alternatives", maxAlternatives)
		}
		if p.peek() == ')' {
			p.pos++
			return out, nil
		}
		if err := p.expect('|'); err != nil {
			return convCode{}, err
		}
	}
}

// convertArguments applies spec to args. Missing arguments convert from
// undefined; arguments beyond the spec pass unchanged.
func (c *ExecContext) convertArguments(spec ConversionSpec, args []Value) ([]Value, error) {
	out := make([]Value, 0, len(args)+1)
	for i, code := range spec {
		v := Undefined
		if i < len(args) {
			v = args[i]
		}
		cv, err := c.convertValue(code, v)
		if err != nil {
			return nil, err
		}
		out = append(out, cv)
		if code.kind == convStringLen && cv.IsString() {
			out = append(out, IntegerValue(utf16Len(cv.str)))
		}
	}
	if len(args) > len(spec) {
		out = append(out, args[len(spec):]...)
	}
	return out, nil
}

func (c *ExecContext) convertValue(code convCode, v Value) (Value, error) {
	if code.nullable && v.IsNullish() {
		return Null, nil
	}
	switch code.kind {
	case convNone:
		return v, nil
	case convBoolean:
		return BooleanValue(v.IsTruthy()), nil
	case convNumber:
		n, err := c.ToNumber(v)
		return NumberValue(n), err
	case convString, convStringLen:
		s, err := c.ToString(v)
		return NewString(s), err
	case convPrimString:
		return c.ToPrimitive(v, HintString)
	case convPrimNumber:
		return c.ToPrimitive(v, HintNumber)
	case convDict:
		return c.convertDict(code, v)
	case convArray:
		return c.convertArray(code, v)
	case convAlt:
		for _, alt := range code.alts {
			if probe(alt, v) {
				return c.convertValue(alt, v)
			}
		}
		return c.convertValue(code.alts[len(code.alts)-1], v)
	}
	panic(fmt.Sprintf("unhandled conversion kind %d", code.kind))
}

// probe reports whether v already has the type alt converts to.
func probe(alt convCode, v Value) bool {
	if alt.nullable && v.IsNullish() {
		return true
	}
	switch alt.kind {
	case convNone:
		return true
	case convBoolean:
		return v.IsBoolean()
	case convNumber:
		return v.IsNumber()
	case convString, convStringLen:
		return v.IsString()
	case convPrimString, convPrimNumber:
		return !v.IsObject()
	case convDict:
		return v.IsObject() && !v.IsCallable() && v.AsObject().class != ClassArray
	case convArray:
		return v.IsObject() && v.AsObject().class == ClassArray
	}
	return false
}

// convertDict reads every member of v exactly once into a fresh object.
// Absent members stay absent.
func (c *ExecContext) convertDict(code convCode, v Value) (Value, error) {
	out := c.realm.NewObject()
	if v.IsNullish() {
		return ObjectValue(out), nil
	}
	if !v.IsObject() {
		return Undefined, c.TypeError(fmt.Sprintf("%s is not an object", v.Inspect()))
	}
	src := v.AsObject()
	for _, m := range code.members {
		mv, r, err := c.Get(src, m.key, v, nil)
		if err != nil {
			return Undefined, err
		}
		if mv, err = c.getOutcome(mv, r, m.key); err != nil {
			return Undefined, err
		}
		if !r.Found() {
			continue
		}
		cv, err := c.convertValue(m.code, mv)
		if err != nil {
			return Undefined, err
		}
		c.writeData(out, m.key, cv, AttrNone)
	}
	return ObjectValue(out), nil
}

// convertArray reads length and every element of v exactly once into a
// fresh array.
func (c *ExecContext) convertArray(code convCode, v Value) (Value, error) {
	if !v.IsObject() {
		return Undefined, c.TypeError(fmt.Sprintf("%s is not an array-like object", v.Inspect()))
	}
	values, err := c.readArrayLike(*code.elem, v.AsObject())
	if err != nil {
		return Undefined, err
	}
	return ObjectValue(c.realm.NewArray(values)), nil
}

// readArrayLike reads src.length and then each element in index order,
// converting it by elem.
func (c *ExecContext) readArrayLike(elem convCode, src *Object) ([]Value, error) {
	n, err := c.lengthOf(src)
	if err != nil {
		return nil, err
	}
	if n > uint32(c.rt.cfg.MaxObjectSlots) {
		return nil, c.RangeError("Invalid array length")
	}
	values := make([]Value, n)
	for i := uint32(0); i < n; i++ {
		key := IndexKey(i)
		ev, r, err := c.Get(src, key, ObjectValue(src), nil)
		if err != nil {
			return nil, err
		}
		if ev, err = c.getOutcome(ev, r, key); err != nil {
			return nil, err
		}
		if values[i], err = c.convertValue(elem, ev); err != nil {
			return nil, err
		}
	}
	return values, nil
}
