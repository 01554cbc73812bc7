package vm

import "go.uber.org/zap"

// ShapeStats counts registry activity.
type ShapeStats struct {
	Created     int
	Transitions int // ExtendWith answered from a memoized transition
	Promotions  int
	Rebuilds    int
}

// ShapeRegistry creates shapes and owns the shared transition trees, one
// per prototype.
type ShapeRegistry struct {
	nextID uint32
	roots  map[*Object]*Shape
	null   *Shape // root for objects without prototype
	stats  ShapeStats
}

func NewShapeRegistry() *ShapeRegistry {
	return &ShapeRegistry{roots: make(map[*Object]*Shape)}
}

func (r *ShapeRegistry) Stats() ShapeStats { return r.stats }

func (r *ShapeRegistry) newShape(kind ShapeKind, proto *Object) *Shape {
	r.nextID++
	r.stats.Created++
	return &Shape{kind: kind, id: r.nextID, registry: r, prototype: proto}
}

// Root returns the empty shared shape for objects whose prototype is proto.
func (r *ShapeRegistry) Root(proto *Object) *Shape {
	if proto == nil {
		if r.null == nil {
			r.null = r.newShape(ShapeShared, nil)
		}
		return r.null
	}
	if s, ok := r.roots[proto]; ok {
		return s
	}
	s := r.newShape(ShapeShared, proto)
	r.roots[proto] = s
	proto.addPrototypeRef()
	return s
}

// NewSingleton returns an empty singleton shape owned by owner.
func (r *ShapeRegistry) NewSingleton(proto *Object, owner *Object) *Shape {
	s := r.newShape(ShapeSingleton, proto)
	s.owner = owner
	if proto != nil {
		proto.addPrototypeRef()
	}
	return s
}

// ExtendWith appends a property. Shared shapes answer from (or record into)
// their transition table; singleton and hashed shapes are extended in place.
func (r *ShapeRegistry) ExtendWith(s *Shape, key PropertyKey, attrs Attr, typ StorageType) *Shape {
	if s.kind != ShapeShared {
		offset := -1
		if typ.Size() > 0 {
			offset = s.takeSlot()
		}
		s.props = append(s.props, PropertyInfo{Key: key, Attrs: attrs, Type: typ, Offset: offset})
		if s.index != nil {
			s.index[key] = len(s.props) - 1
		}
		s.serial++
		return s
	}

	tk := transitionKey{key: key, attrs: attrs, typ: typ}
	if next, ok := s.transitions[tk]; ok {
		r.stats.Transitions++
		return next
	}
	next := r.newShape(ShapeShared, s.prototype)
	next.parent = s
	offset := -1
	if typ.Size() > 0 {
		offset = s.slots
	}
	next.props = append(s.props[:len(s.props):len(s.props)], PropertyInfo{Key: key, Attrs: attrs, Type: typ, Offset: offset})
	next.slots = s.slots + typ.Size()
	if s.transitions == nil {
		s.transitions = make(map[transitionKey]*Shape)
	}
	s.transitions[tk] = next
	return next
}

func (s *Shape) takeSlot() int {
	if n := len(s.free); n > 0 {
		off := s.free[n-1]
		s.free = s.free[:n-1]
		return off
	}
	s.slots++
	return s.slots - 1
}

// rebuild replays props from the shared root of proto, recomputing offsets.
func (r *ShapeRegistry) rebuild(proto *Object, props []PropertyInfo) *Shape {
	r.stats.Rebuilds++
	cur := r.Root(proto)
	for _, p := range props {
		cur = r.ExtendWith(cur, p.Key, p.Attrs, p.Type)
	}
	return cur
}

// copySingleton makes a fresh singleton holding props, laid out
// sequentially, and hands ownership over from s.
func (r *ShapeRegistry) copySingleton(s *Shape, props []PropertyInfo) *Shape {
	next := r.NewSingleton(s.prototype, s.owner)
	if s.prototype != nil {
		s.prototype.dropPrototypeRef()
	}
	for _, p := range props {
		r.ExtendWith(next, p.Key, p.Attrs, p.Type)
	}
	next.serial = s.serial + 1
	return next
}

// offsetsMoved reports whether any property kept by next lives at a
// different slot than in prev.
func offsetsMoved(prev, next *Shape) bool {
	for _, p := range next.props {
		if p.Offset < 0 {
			continue
		}
		old, _, ok := prev.Lookup(p.Key)
		if !ok || old.Offset != p.Offset {
			return true
		}
	}
	return false
}

// ChangeAttribute returns a shape where key carries attrs. Offsets never move.
func (r *ShapeRegistry) ChangeAttribute(s *Shape, key PropertyKey, attrs Attr) (*Shape, bool) {
	_, i, ok := s.Lookup(key)
	if !ok {
		return s, false
	}
	switch s.kind {
	case ShapeHashed:
		s.props[i].Attrs = attrs
		s.serial++
		return s, false
	case ShapeSingleton:
		props := s.Properties()
		props[i].Attrs = attrs
		return r.copySingleton(s, props), false
	}
	props := s.Properties()
	props[i].Attrs = attrs
	return r.rebuild(s.prototype, props), false
}

// ChangeType retypes property index. The change cascades exactly when the
// slot width changes, because every later offset shifts.
func (r *ShapeRegistry) ChangeType(s *Shape, index int, typ StorageType) (*Shape, bool) {
	old := s.props[index]
	if old.Type == typ {
		return s, false
	}
	widthChanged := old.Type.Size() != typ.Size()
	switch s.kind {
	case ShapeHashed:
		p := &s.props[index]
		switch {
		case p.Offset < 0 && typ.Size() > 0:
			p.Offset = s.takeSlot()
		case p.Offset >= 0 && typ.Size() == 0:
			s.free = append(s.free, p.Offset)
			p.Offset = -1
		}
		p.Type = typ
		s.serial++
		return s, false
	case ShapeSingleton:
		props := s.Properties()
		props[index].Type = typ
		return r.copySingleton(s, props), widthChanged
	}
	props := s.Properties()
	props[index].Type = typ
	return r.rebuild(s.prototype, props), widthChanged
}

// DeleteProperty removes key. Removing the most recent property of a shared
// shape is the non-cascading fast path back to the parent.
func (r *ShapeRegistry) DeleteProperty(s *Shape, key PropertyKey) (*Shape, bool) {
	p, i, ok := s.Lookup(key)
	if !ok {
		return s, false
	}
	switch s.kind {
	case ShapeHashed:
		if p.Offset >= 0 {
			s.free = append(s.free, p.Offset)
		}
		s.props = append(s.props[:i], s.props[i+1:]...)
		if s.index != nil {
			s.buildIndex()
		}
		s.serial++
		return s, false
	case ShapeSingleton:
		props := s.Properties()
		props = append(props[:i], props[i+1:]...)
		next := r.copySingleton(s, props)
		return next, offsetsMoved(s, next)
	}
	if i == len(s.props)-1 && s.parent != nil {
		return s.parent, false
	}
	props := s.Properties()
	props = append(props[:i], props[i+1:]...)
	next := r.rebuild(s.prototype, props)
	return next, offsetsMoved(s, next)
}

// PromoteToHashTable converts the first count properties of s into a hashed
// shape owned by owner. Every property gets its own slot, so the object
// must always be converted.
func (r *ShapeRegistry) PromoteToHashTable(s *Shape, owner *Object, count int) *Shape {
	next := r.newShape(ShapeHashed, s.prototype)
	next.owner = owner
	next.serial = s.serial + 1
	if s.prototype != nil {
		if s.kind == ShapeShared {
			s.prototype.addPrototypeRef()
		}
	}
	next.props = make([]PropertyInfo, 0, count)
	for _, p := range s.props[:count] {
		typ := StorageWhatever
		if p.Type == StorageBoxed {
			typ = StorageBoxed
		}
		next.props = append(next.props, PropertyInfo{Key: p.Key, Attrs: p.Attrs, Type: typ, Offset: next.slots})
		next.slots++
	}
	next.buildIndex()
	r.stats.Promotions++
	Logger().Debug("shape promoted to hash table",
		zap.Uint32("from", s.id), zap.Uint32("to", next.id), zap.Int("properties", count))
	return next
}

// ChangePrototype returns a shape with the same own layout rooted at proto.
// Singleton and hashed shapes are updated in place, moving the prototype
// back-reference.
func (r *ShapeRegistry) ChangePrototype(s *Shape, proto *Object) *Shape {
	if s.prototype == proto {
		return s
	}
	if s.kind != ShapeShared {
		if s.prototype != nil {
			s.prototype.dropPrototypeRef()
		}
		if proto != nil {
			proto.addPrototypeRef()
		}
		s.prototype = proto
		s.serial++
		return s
	}
	return r.rebuild(proto, s.props)
}

// Adopt returns a shape that o may use. Shared shapes are returned as is; a
// singleton already owned by another object is first converted into the
// equivalent shared shape, so a singleton never has two owners.
func (r *ShapeRegistry) Adopt(s *Shape, o *Object) *Shape {
	if s.kind == ShapeShared {
		return s
	}
	if s.owner == nil || s.owner == o {
		s.owner = o
		return s
	}
	return r.rebuild(s.prototype, s.props)
}
