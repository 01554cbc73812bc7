package vm

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/dlclark/regexp2"
)

// regexpMatchTimeout bounds a single match attempt.
const regexpMatchTimeout = 5 * time.Second

var lastIndexKey = NameKey("lastIndex")

// regexpData is the internal state of a RegExp object.
type regexpData struct {
	re     *regexp2.Regexp
	source string
	flags  string
	global bool
	sticky bool
}

// regexpMatch records the capture groups of the last successful match in
// a realm, read back through the RegExp.$1..$9 properties.
type regexpMatch struct {
	input  string
	groups []string
}

// lastCapture returns capture group n of the realm's last match, or ""
// when there is none.
func (r *Realm) lastCapture(n int) string {
	if r.lastMatch == nil || n >= len(r.lastMatch.groups) {
		return ""
	}
	return r.lastMatch.groups[n]
}

// compileRegExp translates script flags into regexp2 options. Flags g and
// y are handled by exec.
func compileRegExp(source, flags string) (*regexpData, error) {
	d := &regexpData{source: source, flags: flags}
	var opts regexp2.RegexOptions = regexp2.ECMAScript
	dotAll := false
	seen := map[rune]bool{}
	for _, f := range flags {
		if seen[f] {
			return nil, fmt.Errorf("Invalid flags supplied to RegExp constructor '%s'", flags)
		}
		seen[f] = true
		switch f {
		case 'g':
			d.global = true
		case 'y':
			d.sticky = true
		case 'i':
			opts |= regexp2.IgnoreCase
		case 'm':
			opts |= regexp2.Multiline
		case 's':
			dotAll = true
		case 'u':
			opts |= regexp2.Unicode
		default:
			return nil, fmt.Errorf("Invalid flags supplied to RegExp constructor '%s'", flags)
		}
	}
	if dotAll {
		// ECMAScript mode rejects Singleline.
		opts = opts&^regexp2.ECMAScript | regexp2.Singleline
	}
	re, err := regexp2.Compile(source, opts)
	if err != nil {
		return nil, fmt.Errorf("Invalid regular expression: /%s/%s: %v", source, flags, err)
	}
	re.MatchTimeout = regexpMatchTimeout
	d.re = re
	return d, nil
}

// NewRegExp creates a RegExp object in the realm.
func (r *Realm) NewRegExp(source, flags string) (*Object, error) {
	d, err := compileRegExp(source, flags)
	if err != nil {
		return nil, err
	}
	return r.newRegExpObject(d), nil
}

func (r *Realm) newRegExpObject(d *regexpData) *Object {
	o := r.allocate(r.rt.shapes.Root(r.RegExpPrototype), ClassRegExp)
	o.internal = d
	o.addProperty(lastIndexKey, AttrDontEnum|AttrDontDelete, IntegerValue(0))
	o.addProperty(NameKey("source"), AttrReadOnly|AttrDontEnum, NewString(d.source))
	o.addProperty(NameKey("flags"), AttrReadOnly|AttrDontEnum, NewString(d.flags))
	o.addProperty(NameKey("global"), AttrReadOnly|AttrDontEnum, BooleanValue(d.global))
	return o
}

// unitsToRunes converts a UTF-16 offset into s to a rune offset.
func unitsToRunes(s string, units int) int {
	n, at := 0, 0
	for _, r := range s {
		if at >= units {
			break
		}
		at += utf16.RuneLen(r)
		n++
	}
	return n
}

// runesToUnits converts a rune offset into s to a UTF-16 offset.
func runesToUnits(s string, runes int) int {
	units, n := 0, 0
	for _, r := range s {
		if n == runes {
			break
		}
		units += utf16.RuneLen(r)
		n++
	}
	return units
}

// regexpExec runs one match of re against input, honouring and updating
// lastIndex for global and sticky expressions. It returns nil when there
// is no match.
func (c *ExecContext) regexpExec(re *Object, input string) (*Object, error) {
	d := re.internal.(*regexpData)
	start := 0
	if d.global || d.sticky {
		v, r, err := c.Get(re, lastIndexKey, ObjectValue(re), nil)
		if err != nil {
			return nil, err
		}
		if v, err = c.getOutcome(v, r, lastIndexKey); err != nil {
			return nil, err
		}
		n, err := c.ToNumber(v)
		if err != nil {
			return nil, err
		}
		start = int(toUint32(n))
		if start > utf16Len(input) {
			return nil, c.resetLastIndex(re)
		}
	}
	runeStart := unitsToRunes(input, start)
	m, err := d.re.FindStringMatchStartingAt(input, runeStart)
	if err != nil {
		return nil, c.RangeError(err.Error())
	}
	if m == nil || (d.sticky && m.Index != runeStart) {
		if d.global || d.sticky {
			return nil, c.resetLastIndex(re)
		}
		return nil, nil
	}

	groups := m.Groups()
	values := make([]Value, len(groups))
	captured := make([]string, len(groups))
	for i, g := range groups {
		if len(g.Captures) == 0 {
			values[i] = Undefined
			continue
		}
		captured[i] = g.String()
		values[i] = NewString(captured[i])
	}
	c.realm.lastMatch = &regexpMatch{input: input, groups: captured}

	index := runesToUnits(input, m.Index)
	if d.global || d.sticky {
		end := index + utf16Len(m.String())
		if _, err := c.Put(re, lastIndexKey, IntegerValue(end), ObjectValue(re), nil); err != nil {
			return nil, err
		}
	}
	arr := c.realm.NewArray(values)
	c.writeData(arr, NameKey("index"), IntegerValue(index), AttrNone)
	c.writeData(arr, NameKey("input"), NewString(input), AttrNone)
	return arr, nil
}

func (c *ExecContext) resetLastIndex(re *Object) error {
	_, err := c.Put(re, lastIndexKey, IntegerValue(0), ObjectValue(re), nil)
	return err
}

func (c *ExecContext) thisRegExp(this Value, method string) (*Object, error) {
	if this.IsObject() {
		if o := this.AsObject(); o.class == ClassRegExp {
			return o, nil
		}
	}
	return nil, c.TypeError(fmt.Sprintf("RegExp.prototype.%s called on incompatible receiver %s", method, this.Inspect()))
}

// initRegExp installs the RegExp constructor, its prototype methods and
// the legacy capture properties $1..$9.
func (r *Realm) initRegExp() {
	proto := r.allocateSingleton(r.ObjectPrototype, ClassObject)
	r.RegExpPrototype = proto

	construct := func(c *ExecContext, args []Value) (Value, error) {
		source, flags := "(?:)", ""
		if len(args) > 0 && !args[0].IsUndefined() {
			if args[0].IsObject() && args[0].AsObject().class == ClassRegExp {
				d := args[0].AsObject().internal.(*regexpData)
				source, flags = d.source, d.flags
			} else {
				s, err := c.ToString(args[0])
				if err != nil {
					return Undefined, err
				}
				source = s
			}
		}
		if len(args) > 1 && !args[1].IsUndefined() {
			s, err := c.ToString(args[1])
			if err != nil {
				return Undefined, err
			}
			flags = s
		}
		d, err := compileRegExp(source, flags)
		if err != nil {
			return Undefined, c.SyntaxError(err.Error())
		}
		return ObjectValue(c.realm.newRegExpObject(d)), nil
	}
	ctor := r.NewNativeConstructor("RegExp", 2, func(c *ExecContext, this Value, args []Value) (Value, error) {
		return construct(c, args)
	}, construct)
	r.RegExpConstructor = ctor
	ctor.addProperty(NameKey("prototype"), AttrReadOnly|AttrDontEnum|AttrDontDelete, ObjectValue(proto))
	proto.addProperty(NameKey("constructor"), AttrDontEnum, ObjectValue(ctor))

	ctor.defineSpecial(NameKey("lastMatch"), &Special{kind: SpecialRegExpCapture, group: 0}, AttrReadOnly|AttrDontEnum)
	for i := 1; i <= 9; i++ {
		ctor.defineSpecial(NameKey(fmt.Sprintf("$%d", i)), &Special{kind: SpecialRegExpCapture, group: i}, AttrReadOnly|AttrDontEnum)
	}

	r.method(proto, "exec", 1, func(c *ExecContext, this Value, args []Value) (Value, error) {
		re, err := c.thisRegExp(this, "exec")
		if err != nil {
			return Undefined, err
		}
		input, err := c.ToString(argOrUndefined(args, 0))
		if err != nil {
			return Undefined, err
		}
		m, err := c.regexpExec(re, input)
		if err != nil || m == nil {
			return Null, err
		}
		return ObjectValue(m), nil
	})
	r.method(proto, "test", 1, func(c *ExecContext, this Value, args []Value) (Value, error) {
		re, err := c.thisRegExp(this, "test")
		if err != nil {
			return Undefined, err
		}
		input, err := c.ToString(argOrUndefined(args, 0))
		if err != nil {
			return Undefined, err
		}
		m, err := c.regexpExec(re, input)
		return BooleanValue(m != nil), err
	})
	r.method(proto, "toString", 0, func(c *ExecContext, this Value, args []Value) (Value, error) {
		re, err := c.thisRegExp(this, "toString")
		if err != nil {
			return Undefined, err
		}
		d := re.internal.(*regexpData)
		var sb strings.Builder
		sb.WriteByte('/')
		sb.WriteString(d.source)
		sb.WriteByte('/')
		sb.WriteString(d.flags)
		return NewString(sb.String()), nil
	})
	r.Global.addProperty(NameKey("RegExp"), AttrDontEnum, ObjectValue(ctor))
}
