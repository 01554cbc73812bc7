package vm

import (
	"fmt"
)

// Heap is the binding storage for declared globals. The global object
// exposes each slot as a global-slot special property, so compiled code
// can address a global by index while scripts still see a property.
type Heap struct {
	values []Value
	size   int // slots in use
	slots  map[string]int
	names  []string
}

// NewHeap returns an empty heap with room for capacity slots.
func NewHeap(capacity int) *Heap {
	return &Heap{
		values: make([]Value, capacity),
		slots:  make(map[string]int),
	}
}

// grow makes slot n-1 addressable. Skipped slots read as undefined.
func (h *Heap) grow(n int) {
	if n > len(h.values) {
		values := make([]Value, n, n+n/2)
		copy(values, h.values)
		h.values = values
	}
	if n > h.size {
		h.size = n
	}
}

// Get returns the value in slot i and whether the slot is in use.
func (h *Heap) Get(i int) (Value, bool) {
	if i < 0 || i >= h.size {
		return Undefined, false
	}
	return h.values[i], true
}

// Set stores v in slot i, growing the heap as needed.
func (h *Heap) Set(i int, v Value) error {
	if i < 0 {
		return fmt.Errorf("heap slot %d: negative index", i)
	}
	if v.IsBoxed() {
		return fmt.Errorf("heap slot %d: internal value cannot be stored", i)
	}
	h.grow(i + 1)
	h.values[i] = v
	return nil
}

// Declare reserves a slot for name, returning the existing one when name
// was declared before.
func (h *Heap) Declare(name string) int {
	if i, ok := h.slots[name]; ok {
		return i
	}
	i := h.size
	h.grow(i + 1)
	h.slots[name] = i
	h.names = append(h.names, name)
	return i
}

// Lookup returns the slot of a declared name.
func (h *Heap) Lookup(name string) (int, bool) {
	i, ok := h.slots[name]
	return i, ok
}

func (h *Heap) Size() int { return h.size }

// Names returns declared names in declaration order.
func (h *Heap) Names() []string {
	return append([]string(nil), h.names...)
}

// Values returns the slots in use. The collector traces them as roots.
func (h *Heap) Values() []Value {
	return append([]Value(nil), h.values[:h.size]...)
}

// DeclareGlobal declares name in the realm's binding heap, initializes it
// to v and exposes it on the global object. Declared globals cannot be
// deleted.
func (r *Realm) DeclareGlobal(name string, v Value, readOnly bool) int {
	i := r.Heap.Declare(name)
	_ = r.Heap.Set(i, v)
	attrs := AttrDontDelete
	if readOnly {
		attrs |= AttrReadOnly
	}
	r.Global.defineSpecial(NameKey(name), &Special{kind: SpecialGlobalSlot, heap: r.Heap, slot: i}, attrs)
	return i
}
