package vm

import (
	"encoding/binary"
	"math"
	"slices"
)

// IndexedKind identifies the backing of an indexed store.
type IndexedKind uint8

const (
	IndexedDense IndexedKind = iota
	IndexedTyped
	IndexedSparse
)

// IndexedStore holds integer-keyed properties separately from the shape.
type IndexedStore interface {
	Kind() IndexedKind
	Get(i uint32) (Value, Attr, bool)
	// Set writes an existing or new writable element. It reports false when
	// the element is read-only.
	Set(i uint32, v Value) bool
	// Define writes an element with explicit attributes. It reports false
	// when the store cannot represent the write; callers convert first.
	Define(i uint32, v Value, attrs Attr) bool
	// Delete reports false for non-configurable elements.
	Delete(i uint32) bool
	// Bound is one past the highest present index.
	Bound() uint32
	// Keys appends the present indices in ascending order to dst.
	Keys(dst []uint32) []uint32
	// Truncate removes elements at or above n, stopping above the highest
	// non-configurable one. It returns the resulting bound.
	Truncate(n uint32) uint32
	Len() int
}

// denseGapLimit bounds how far past the end a dense store may be written
// before it converts to sparse.
const denseGapLimit = 1024

// --- Dense ---

type denseStore struct {
	values []Value // hole marks absent elements
	count  int
}

func newDenseStore(capacity int) *denseStore {
	return &denseStore{values: make([]Value, 0, capacity)}
}

// NewDenseStore returns a dense store holding values in order.
func NewDenseStore(values []Value) IndexedStore {
	d := &denseStore{values: slices.Clone(values), count: len(values)}
	return d
}

func (d *denseStore) Kind() IndexedKind { return IndexedDense }
func (d *denseStore) Len() int          { return d.count }
func (d *denseStore) Bound() uint32     { return uint32(len(d.values)) }

func (d *denseStore) fits(i uint32, attrs Attr) bool {
	return attrs == AttrNone && int64(i) < int64(len(d.values))+denseGapLimit
}

func (d *denseStore) Get(i uint32) (Value, Attr, bool) {
	if int64(i) >= int64(len(d.values)) || d.values[i].isHole() {
		return Undefined, AttrNone, false
	}
	return d.values[i], AttrNone, true
}

func (d *denseStore) Set(i uint32, v Value) bool {
	return d.Define(i, v, AttrNone)
}

func (d *denseStore) Define(i uint32, v Value, attrs Attr) bool {
	if !d.fits(i, attrs) {
		return false
	}
	for uint32(len(d.values)) <= i {
		d.values = append(d.values, hole)
	}
	if d.values[i].isHole() {
		d.count++
	}
	d.values[i] = v
	return true
}

func (d *denseStore) Delete(i uint32) bool {
	if int64(i) < int64(len(d.values)) && !d.values[i].isHole() {
		d.values[i] = hole
		d.count--
		for n := len(d.values); n > 0 && d.values[n-1].isHole(); n-- {
			d.values = d.values[:n-1]
		}
	}
	return true
}

func (d *denseStore) Keys(dst []uint32) []uint32 {
	for i, v := range d.values {
		if !v.isHole() {
			dst = append(dst, uint32(i))
		}
	}
	return dst
}

func (d *denseStore) Truncate(n uint32) uint32 {
	if int64(n) < int64(len(d.values)) {
		for _, v := range d.values[n:] {
			if !v.isHole() {
				d.count--
			}
		}
		clear(d.values[n:])
		d.values = d.values[:n]
	}
	return uint32(len(d.values))
}

// --- Sparse ---

type sparseEntry struct {
	value Value
	attrs Attr
}

type sparseStore struct {
	entries map[uint32]sparseEntry
	sorted  []uint32 // nil when stale
}

func newSparseStore() *sparseStore {
	return &sparseStore{entries: make(map[uint32]sparseEntry)}
}

func (s *sparseStore) Kind() IndexedKind { return IndexedSparse }
func (s *sparseStore) Len() int          { return len(s.entries) }

func (s *sparseStore) Get(i uint32) (Value, Attr, bool) {
	e, ok := s.entries[i]
	return e.value, e.attrs, ok
}

func (s *sparseStore) Set(i uint32, v Value) bool {
	e, ok := s.entries[i]
	if ok && !e.attrs.Writable() {
		return false
	}
	if !ok {
		s.sorted = nil
	}
	s.entries[i] = sparseEntry{value: v, attrs: e.attrs}
	return true
}

func (s *sparseStore) Define(i uint32, v Value, attrs Attr) bool {
	if _, ok := s.entries[i]; !ok {
		s.sorted = nil
	}
	s.entries[i] = sparseEntry{value: v, attrs: attrs}
	return true
}

func (s *sparseStore) Delete(i uint32) bool {
	e, ok := s.entries[i]
	if !ok {
		return true
	}
	if !e.attrs.Configurable() {
		return false
	}
	delete(s.entries, i)
	s.sorted = nil
	return true
}

func (s *sparseStore) keys() []uint32 {
	if s.sorted == nil {
		s.sorted = make([]uint32, 0, len(s.entries))
		for k := range s.entries {
			s.sorted = append(s.sorted, k)
		}
		slices.Sort(s.sorted)
	}
	return s.sorted
}

func (s *sparseStore) Bound() uint32 {
	k := s.keys()
	if len(k) == 0 {
		return 0
	}
	return k[len(k)-1] + 1
}

func (s *sparseStore) Keys(dst []uint32) []uint32 {
	return append(dst, s.keys()...)
}

func (s *sparseStore) Truncate(n uint32) uint32 {
	k := s.keys()
	for j := len(k) - 1; j >= 0 && k[j] >= n; j-- {
		if !s.entries[k[j]].attrs.Configurable() {
			s.sorted = nil
			return k[j] + 1
		}
		delete(s.entries, k[j])
	}
	s.sorted = nil
	return n
}

// --- Typed ---

// TypedKind is the element type of a typed store.
type TypedKind uint8

const (
	TypedInt8 TypedKind = iota
	TypedUint8
	TypedInt16
	TypedUint16
	TypedInt32
	TypedUint32
	TypedFloat32
	TypedFloat64
)

var typedWidths = [...]int{1, 1, 2, 2, 4, 4, 4, 8}

func (k TypedKind) Width() int { return typedWidths[k] }

// typedStore keeps fixed-width numeric elements in a little-endian byte
// buffer. Its length is fixed; elements are non-configurable.
type typedStore struct {
	kind   TypedKind
	buf    []byte
	length uint32
}

// NewTypedStore returns a zero-filled store of length elements.
func NewTypedStore(kind TypedKind, length uint32) IndexedStore {
	return &typedStore{kind: kind, buf: make([]byte, int(length)*kind.Width()), length: length}
}

func (t *typedStore) Kind() IndexedKind    { return IndexedTyped }
func (t *typedStore) Len() int             { return int(t.length) }
func (t *typedStore) Bound() uint32        { return t.length }
func (t *typedStore) TypedKind() TypedKind { return t.kind }

func (t *typedStore) Get(i uint32) (Value, Attr, bool) {
	if i >= t.length {
		return Undefined, AttrNone, false
	}
	off := int(i) * t.kind.Width()
	b := t.buf[off:]
	var f float64
	switch t.kind {
	case TypedInt8:
		f = float64(int8(b[0]))
	case TypedUint8:
		f = float64(b[0])
	case TypedInt16:
		f = float64(int16(binary.LittleEndian.Uint16(b)))
	case TypedUint16:
		f = float64(binary.LittleEndian.Uint16(b))
	case TypedInt32:
		f = float64(int32(binary.LittleEndian.Uint32(b)))
	case TypedUint32:
		f = float64(binary.LittleEndian.Uint32(b))
	case TypedFloat32:
		f = float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case TypedFloat64:
		f = math.Float64frombits(binary.LittleEndian.Uint64(b))
	}
	return NumberValue(f), AttrDontDelete, true
}

func (t *typedStore) Set(i uint32, v Value) bool {
	if i >= t.length {
		return true
	}
	f := primitiveToNumber(v)
	off := int(i) * t.kind.Width()
	b := t.buf[off:]
	switch t.kind {
	case TypedInt8, TypedUint8:
		b[0] = byte(toUint32(f))
	case TypedInt16, TypedUint16:
		binary.LittleEndian.PutUint16(b, uint16(toUint32(f)))
	case TypedInt32, TypedUint32:
		binary.LittleEndian.PutUint32(b, toUint32(f))
	case TypedFloat32:
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(f)))
	case TypedFloat64:
		binary.LittleEndian.PutUint64(b, math.Float64bits(f))
	}
	return true
}

func (t *typedStore) Define(i uint32, v Value, attrs Attr) bool {
	if i >= t.length || attrs&(AttrReadOnly|AttrDontEnum) != 0 {
		return false
	}
	return t.Set(i, v)
}

func (t *typedStore) Delete(i uint32) bool { return i >= t.length }

func (t *typedStore) Keys(dst []uint32) []uint32 {
	for i := uint32(0); i < t.length; i++ {
		dst = append(dst, i)
	}
	return dst
}

func (t *typedStore) Truncate(n uint32) uint32 { return t.length }
