package vm

import (
	"github.com/nooga/esvm/pkg/errors"
)

// RegisterFile is the arena of register windows. Windows are allocated
// and freed strictly LIFO; a window may overlap the tail of the window
// below it so that a caller's outgoing arguments become the callee's
// leading registers without copying.
type RegisterFile struct {
	values []Value
	top    int
	max    int

	allocs int
	frees  int
}

func newRegisterFile(initial, max int) *RegisterFile {
	if initial > max {
		initial = max
	}
	return &RegisterFile{values: make([]Value, initial), max: max}
}

// Top returns the first register past the topmost window.
func (r *RegisterFile) Top() int { return r.top }

// Balance returns allocations minus frees.
func (r *RegisterFile) Balance() int { return r.allocs - r.frees }

// needsGrowth reports whether a window of size with overlap would exceed
// the current backing slice.
func (r *RegisterFile) needsGrowth(size, overlap int) bool {
	return r.top-overlap+size > len(r.values)
}

// grow enlarges the backing slice to hold n registers.
func (r *RegisterFile) grow(n int) error {
	if n > r.max {
		return &errors.ResourceError{Resource: errors.OutOfMemory, Msg: "register file exhausted"}
	}
	size := len(r.values) * 2
	if size < n {
		size = n
	}
	if size > r.max {
		size = r.max
	}
	next := make([]Value, size)
	copy(next, r.values[:r.top])
	r.values = next
	return nil
}

// Allocate reserves a window of size registers whose first overlap
// registers are the last overlap registers of the current top window.
// Registers past the overlap are cleared to undefined.
func (r *RegisterFile) Allocate(size, overlap int) (int, error) {
	if overlap > r.top || overlap > size {
		panic("register window overlap exceeds available registers")
	}
	base := r.top - overlap
	end := base + size
	if end > len(r.values) {
		if err := r.grow(end); err != nil {
			return 0, err
		}
	}
	clear(r.values[r.top:end])
	r.top = end
	r.allocs++
	return base, nil
}

// Free releases the topmost window, which must have been allocated with
// the same size and overlap.
func (r *RegisterFile) Free(size, overlap int) {
	if size-overlap > r.top {
		panic("register window freed out of order")
	}
	newTop := r.top - size + overlap
	clear(r.values[newTop:r.top])
	r.top = newTop
	r.frees++
}

// window returns the live slice of a frame's registers.
func (r *RegisterFile) window(base, size int) []Value {
	return r.values[base : base+size : base+size]
}
