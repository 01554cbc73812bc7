package vm

import "strconv"

// MaxArrayIndex is the largest valid array index (2^32 - 2).
const MaxArrayIndex = 1<<32 - 2

// PropertyKey names a property. Canonical array-index strings are stored as
// indices so that "3" and 3 compare equal.
type PropertyKey struct {
	name    string
	index   uint32
	isIndex bool
}

// NameKey returns the key for a property name, canonicalizing array indices.
func NameKey(name string) PropertyKey {
	if idx, ok := tryParseArrayIndex(name); ok {
		return PropertyKey{index: idx, isIndex: true}
	}
	return PropertyKey{name: name}
}

// IndexKey returns the key for an integer index. 2^32-1 is not an array
// index and becomes a name key.
func IndexKey(i uint32) PropertyKey {
	if i > MaxArrayIndex {
		return PropertyKey{name: strconv.FormatUint(uint64(i), 10)}
	}
	return PropertyKey{index: i, isIndex: true}
}

func (k PropertyKey) IsIndex() bool { return k.isIndex }
func (k PropertyKey) Index() uint32 { return k.index }

// Name returns the string form of the key.
func (k PropertyKey) Name() string {
	if k.isIndex {
		return strconv.FormatUint(uint64(k.index), 10)
	}
	return k.name
}

func (k PropertyKey) String() string { return k.Name() }

// tryParseArrayIndex accepts canonical decimal integers in [0, 2^32-2].
func tryParseArrayIndex(s string) (uint32, bool) {
	if len(s) == 0 || len(s) > 10 {
		return 0, false
	}
	if len(s) > 1 && s[0] == '0' {
		return 0, false
	}
	var n uint64
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + uint64(c-'0')
	}
	if n > MaxArrayIndex {
		return 0, false
	}
	return uint32(n), true
}

// keyFromNumber maps a numeric property key to its canonical key.
func keyFromNumber(f float64) PropertyKey {
	if f >= 0 && f <= MaxArrayIndex && f == float64(uint32(f)) {
		return PropertyKey{index: uint32(f), isIndex: true}
	}
	return PropertyKey{name: numberToString(f)}
}

// Attr holds property attribute bits.
type Attr uint8

const (
	AttrReadOnly   Attr = 1 << iota // not writable
	AttrDontEnum                    // not enumerable
	AttrDontDelete                  // not configurable
	AttrAccessor                    // slot holds an accessor special
	AttrSpecial                     // slot holds some other special

	AttrNone Attr = 0
)

func (a Attr) Writable() bool     { return a&AttrReadOnly == 0 }
func (a Attr) Enumerable() bool   { return a&AttrDontEnum == 0 }
func (a Attr) Configurable() bool { return a&AttrDontDelete == 0 }
func (a Attr) isBoxed() bool      { return a&(AttrAccessor|AttrSpecial) != 0 }

// StorageType is the recorded representation of a property slot.
type StorageType uint8

const (
	StorageUndefined StorageType = iota
	StorageNull
	StorageBoolean
	StorageInt32
	StorageDouble
	StorageString
	StorageObject
	StorageStringOrNull
	StorageObjectOrNull
	StorageBoxed
	StorageWhatever
)

var storageNames = [...]string{
	"undefined", "null", "boolean", "int32", "double", "string", "object",
	"string|null", "object|null", "boxed", "whatever",
}

func (t StorageType) String() string {
	if int(t) < len(storageNames) {
		return storageNames[t]
	}
	return "invalid"
}

// Size is the number of slots a property of this type occupies. Undefined
// and null are implied by the type and take no slot.
func (t StorageType) Size() int {
	if t == StorageUndefined || t == StorageNull {
		return 0
	}
	return 1
}

// StorageTypeFor returns the narrowest storage type able to hold v.
func StorageTypeFor(v Value) StorageType {
	switch v.typ {
	case TypeUndefined:
		return StorageUndefined
	case TypeNull:
		return StorageNull
	case TypeBoolean:
		return StorageBoolean
	case TypeNumber:
		if v.IsInt32() {
			return StorageInt32
		}
		return StorageDouble
	case TypeString:
		return StorageString
	case TypeObject:
		return StorageObject
	case TypeBoxed:
		return StorageBoxed
	default:
		return StorageWhatever
	}
}

// Accepts reports whether v can be stored in a slot of type t unchanged.
func (t StorageType) Accepts(v Value) bool {
	switch t {
	case StorageWhatever:
		return v.typ != TypeBoxed
	case StorageUndefined:
		return v.typ == TypeUndefined
	case StorageNull:
		return v.typ == TypeNull
	case StorageBoolean:
		return v.typ == TypeBoolean
	case StorageInt32:
		return v.IsInt32()
	case StorageDouble:
		return v.typ == TypeNumber
	case StorageString:
		return v.typ == TypeString
	case StorageObject:
		return v.typ == TypeObject
	case StorageStringOrNull:
		return v.typ == TypeString || v.typ == TypeNull
	case StorageObjectOrNull:
		return v.typ == TypeObject || v.typ == TypeNull
	case StorageBoxed:
		return v.typ == TypeBoxed
	}
	return false
}

// widen returns the narrowest type accepting both t and the value type u.
func (t StorageType) widen(u StorageType) StorageType {
	if t == u {
		return t
	}
	if t == StorageBoxed || u == StorageBoxed {
		return StorageWhatever
	}
	pair := func(a, b StorageType) bool { return (t == a && u == b) || (t == b && u == a) }
	switch {
	case pair(StorageInt32, StorageDouble):
		return StorageDouble
	case pair(StorageNull, StorageString), pair(StorageNull, StorageStringOrNull), pair(StorageString, StorageStringOrNull):
		return StorageStringOrNull
	case pair(StorageNull, StorageObject), pair(StorageNull, StorageObjectOrNull), pair(StorageObject, StorageObjectOrNull):
		return StorageObjectOrNull
	}
	return StorageWhatever
}
