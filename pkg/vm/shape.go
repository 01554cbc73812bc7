package vm

import (
	"fmt"
	"strings"
)

// ShapeKind distinguishes how a shape may be mutated.
type ShapeKind uint8

const (
	// ShapeShared shapes are nodes of a transition tree, reused by every
	// object built through the same sequence of additions. Never mutated.
	ShapeShared ShapeKind = iota
	// ShapeSingleton shapes belong to exactly one object and are mutated in
	// place when that object gains properties.
	ShapeSingleton
	// ShapeHashed shapes are per-object property tables used once an
	// object's property set is too dynamic to share.
	ShapeHashed
)

func (k ShapeKind) String() string {
	switch k {
	case ShapeShared:
		return "shared"
	case ShapeSingleton:
		return "singleton"
	case ShapeHashed:
		return "hashed"
	}
	return "invalid"
}

// PropertyInfo describes one property of a shape.
type PropertyInfo struct {
	Key    PropertyKey
	Attrs  Attr
	Type   StorageType
	Offset int // slot index; -1 for zero-width storage types
}

type transitionKey struct {
	key   PropertyKey
	attrs Attr
	typ   StorageType
}

// linearLookupLimit is the property count above which a shape builds an
// index map instead of scanning.
const linearLookupLimit = 8

// Shape describes the property layout of an object: ordered properties with
// attributes, storage type and slot offset, plus the prototype link.
// Objects with the same shared shape keep property N at the same offset
// with the same storage type.
type Shape struct {
	kind      ShapeKind
	id        uint32
	registry  *ShapeRegistry
	prototype *Object

	parent      *Shape // shared only
	props       []PropertyInfo
	index       map[PropertyKey]int
	slots       int
	transitions map[transitionKey]*Shape

	owner  *Object // singleton and hashed only
	serial uint32  // bumped on every in-place mutation
	free   []int   // hashed only: released slot offsets
}

func (s *Shape) ID() uint32                  { return s.id }
func (s *Shape) Kind() ShapeKind             { return s.kind }
func (s *Shape) Prototype() *Object          { return s.prototype }
func (s *Shape) Len() int                    { return len(s.props) }
func (s *Shape) Slots() int                  { return s.slots }
func (s *Shape) Serial() uint32              { return s.serial }
func (s *Shape) Parent() *Shape              { return s.parent }
func (s *Shape) IsShared() bool              { return s.kind == ShapeShared }
func (s *Shape) Property(i int) PropertyInfo { return s.props[i] }

// Properties returns a copy of the property list in declaration order.
func (s *Shape) Properties() []PropertyInfo {
	out := make([]PropertyInfo, len(s.props))
	copy(out, s.props)
	return out
}

// Lookup finds key among the shape's properties and returns its position.
func (s *Shape) Lookup(key PropertyKey) (PropertyInfo, int, bool) {
	if s.index == nil && len(s.props) > linearLookupLimit {
		s.buildIndex()
	}
	if s.index != nil {
		if i, ok := s.index[key]; ok {
			return s.props[i], i, true
		}
		return PropertyInfo{}, -1, false
	}
	for i := len(s.props) - 1; i >= 0; i-- {
		if s.props[i].Key == key {
			return s.props[i], i, true
		}
	}
	return PropertyInfo{}, -1, false
}

func (s *Shape) buildIndex() {
	s.index = make(map[PropertyKey]int, len(s.props))
	for i, p := range s.props {
		s.index[p.Key] = i
	}
}

// ancestor returns the shared ancestor holding the first n properties.
func (s *Shape) ancestor(n int) *Shape {
	cur := s
	for cur != nil && len(cur.props) > n {
		cur = cur.parent
	}
	return cur
}

func (s *Shape) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Shape#%d(%s){", s.id, s.kind)
	for i, p := range s.props {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s:%s@%d", p.Key.Name(), p.Type, p.Offset)
	}
	b.WriteString("}")
	return b.String()
}
