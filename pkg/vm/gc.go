package vm

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Collector drives the tracing boundary of the engine. Memory itself is
// owned by the Go runtime; a collection cycle walks every root and reports
// what is reachable to the registered Tracers, which is how embedders
// holding their own heaps learn which script values are still referenced.
//
// Cycles start at safe points once enough allocations have happened, and
// never while the collector is locked.
type Collector struct {
	rt        *Runtime
	depth     int
	threshold int
	allocated int
	pending   bool
	contexts  []*ExecContext
	tracers   []Tracer
	cycles    int
}

// CollectStats summarizes one cycle.
type CollectStats struct {
	Cycle    int
	Objects  int
	Values   int
	Contexts int
	Elapsed  time.Duration
}

// Tracer is implemented by collaborators that own values the engine must
// visit, and by host objects holding script references.
type Tracer interface {
	Trace(v *Visitor)
}

func newCollector(rt *Runtime, threshold int) *Collector {
	return &Collector{rt: rt, threshold: threshold}
}

// Lock holds off collection. Locks nest.
func (gc *Collector) Lock() { gc.depth++ }

// Unlock releases one Lock.
func (gc *Collector) Unlock() {
	if gc.depth == 0 {
		panic("collector unlock without lock")
	}
	gc.depth--
}

// Depth returns the current lock nesting.
func (gc *Collector) Depth() int { return gc.depth }

// WithLock runs fn with the collector locked, releasing it on every exit
// path.
func (gc *Collector) WithLock(fn func() error) error {
	gc.Lock()
	defer gc.Unlock()
	return fn()
}

// Pending reports whether a cycle waits for the next safe point.
func (gc *Collector) Pending() bool { return gc.pending }

// Request schedules a cycle at the next safe point.
func (gc *Collector) Request() { gc.pending = true }

// AddTracer registers an extra root set.
func (gc *Collector) AddTracer(t Tracer) { gc.tracers = append(gc.tracers, t) }

func (gc *Collector) noteAllocation() {
	gc.allocated++
	if gc.allocated >= gc.threshold {
		gc.pending = true
	}
}

func (gc *Collector) register(c *ExecContext) {
	gc.contexts = append(gc.contexts, c)
}

func (gc *Collector) unregister(c *ExecContext) {
	for i, x := range gc.contexts {
		if x == c {
			gc.contexts = append(gc.contexts[:i], gc.contexts[i+1:]...)
			return
		}
	}
}

// Collect runs one cycle: realms first, then contexts in creation order,
// then registered tracers.
func (gc *Collector) Collect() (CollectStats, error) {
	if gc.depth > 0 {
		return CollectStats{}, fmt.Errorf("collect with collector locked (depth %d)", gc.depth)
	}
	gc.Lock()
	defer gc.Unlock()

	start := time.Now()
	gc.cycles++
	v := newVisitor()
	for _, r := range gc.rt.realms {
		r.trace(v)
	}
	for _, c := range gc.contexts {
		c.Trace(v)
	}
	for _, t := range gc.tracers {
		t.Trace(v)
	}
	v.drain()

	gc.pending = false
	gc.allocated = 0
	stats := CollectStats{
		Cycle:    gc.cycles,
		Objects:  len(v.marked),
		Values:   v.values,
		Contexts: len(gc.contexts),
		Elapsed:  time.Since(start),
	}
	Logger().Debug("collection cycle",
		zap.Int("cycle", stats.Cycle),
		zap.Int("objects", stats.Objects),
		zap.Int("contexts", stats.Contexts),
		zap.Duration("elapsed", stats.Elapsed))
	return stats, nil
}

// Visitor marks reachable objects. Objects are visited at most once per
// cycle.
type Visitor struct {
	marked map[*Object]struct{}
	codes  map[*Code]struct{}
	work   []*Object
	values int
}

func newVisitor() *Visitor {
	return &Visitor{marked: make(map[*Object]struct{}), codes: make(map[*Code]struct{})}
}

// Marked reports whether o was reached in this cycle.
func (v *Visitor) Marked(o *Object) bool {
	_, ok := v.marked[o]
	return ok
}

// Value visits a value.
func (v *Visitor) Value(val Value) {
	v.values++
	switch val.typ {
	case TypeObject:
		v.Object(val.ref.(*Object))
	case TypeBoxed:
		v.special(val.ref.(*Special))
	}
}

// Object visits an object. nil is ignored.
func (v *Visitor) Object(o *Object) {
	if o == nil {
		return
	}
	if _, ok := v.marked[o]; ok {
		return
	}
	v.marked[o] = struct{}{}
	v.work = append(v.work, o)
}

func (v *Visitor) special(sp *Special) {
	switch sp.kind {
	case SpecialAccessor:
		v.Object(sp.getter)
		v.Object(sp.setter)
	case SpecialAliasedRegister:
		if sp.detached {
			v.Value(sp.value)
		}
	case SpecialLazyPrototype:
		v.Object(sp.fn)
	}
}

// Code visits the constants of code and its nested functions.
func (v *Visitor) Code(code *Code) {
	if code == nil {
		return
	}
	if _, ok := v.codes[code]; ok {
		return
	}
	v.codes[code] = struct{}{}
	for _, k := range code.Constants {
		v.Value(k)
	}
	for _, fn := range code.Functions {
		v.Code(fn)
	}
}

func (v *Visitor) scope(s *Scope) {
	for ; s != nil; s = s.parent {
		v.Object(s.vars)
	}
}

// drain scans marked objects until no new ones turn up.
func (v *Visitor) drain() {
	for len(v.work) > 0 {
		o := v.work[len(v.work)-1]
		v.work = v.work[:len(v.work)-1]
		v.scan(o)
	}
}

func (v *Visitor) scan(o *Object) {
	v.Object(o.shape.prototype)
	for _, val := range o.slots {
		v.Value(val)
	}
	if o.indexed != nil {
		var keys []uint32
		for _, i := range o.indexed.Keys(keys) {
			if val, _, ok := o.indexed.Get(i); ok {
				v.Value(val)
			}
		}
	}
	switch d := o.internal.(type) {
	case *Function:
		v.Code(d.code)
		v.scope(d.scope)
	case *BoundFunction:
		v.Object(d.target)
		v.Value(d.this)
		for _, a := range d.args {
			v.Value(a)
		}
	case *primitiveData:
		v.Value(d.value)
	case Tracer:
		d.Trace(v)
	}
	if t, ok := o.host.(Tracer); ok {
		t.Trace(v)
	}
}

// Trace visits the roots of the context: live registers, every frame's
// callee, scope, variables, arguments and pending results, the exception
// and return value, and explicitly rooted values. Code constants are
// visited once per cycle.
func (c *ExecContext) Trace(v *Visitor) {
	for _, val := range c.regs.values[:c.regs.top] {
		v.Value(val)
	}
	for _, f := range c.frames {
		v.Code(f.code)
		v.Object(f.fn)
		v.Object(f.variables)
		v.Object(f.arguments)
		v.Object(f.construct)
		v.scope(f.scope)
		for _, val := range f.extra {
			v.Value(val)
		}
		v.Value(f.result)
	}
	if c.exception != nil {
		v.Value(c.exception.Value)
	}
	v.Value(c.returnValue)
	for _, val := range c.roots {
		v.Value(val)
	}
	for _, val := range c.scratch {
		v.Value(val)
	}
}
