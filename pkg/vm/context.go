package vm

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/nooga/esvm/pkg/errors"
)

// RunState is the lifecycle state of an ExecContext.
type RunState uint8

const (
	StateNotStarted RunState = iota
	StateRunning
	StateSuspended
	StateReturned
	StateException
)

func (s RunState) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateRunning:
		return "running"
	case StateSuspended:
		return "suspended"
	case StateReturned:
		return "returned"
	case StateException:
		return "exception"
	}
	return fmt.Sprintf("state(%d)", s)
}

// RunResult is the outcome of Run and Resume.
type RunResult uint8

const (
	RunNormal RunResult = iota
	RunNormalWithValue
	RunError
	RunErrorOutOfMemory
	RunSuspended
)

func (r RunResult) String() string {
	switch r {
	case RunNormal:
		return "normal"
	case RunNormalWithValue:
		return "normal-with-value"
	case RunError:
		return "error"
	case RunErrorOutOfMemory:
		return "out-of-memory"
	case RunSuspended:
		return "suspended"
	}
	return fmt.Sprintf("result(%d)", r)
}

// Scope is one link of a closure's scope chain.
type Scope struct {
	vars   *Object
	parent *Scope
}

// NewScope prepends vars to parent.
func NewScope(vars *Object, parent *Scope) *Scope {
	return &Scope{vars: vars, parent: parent}
}

// Frame is one activation record.
type Frame struct {
	code *Code
	fn   *Object // callee; nil for programs and exit frames
	ip   int     // next instruction
	pc   int     // start of the executing instruction

	base    int // first register of the window
	size    int
	overlap int // registers shared with the caller's window

	argc  int
	extra []Value // arguments beyond the declared parameters

	dest  int // caller register receiving the result; -1 for none
	scope *Scope

	variables *Object
	arguments *Object
	aliases   []*Special // aliased registers to detach when popped
	lazyArgs  *Special
	shared    *Frame // eval frame sharing this frame's window

	transition Transition
	construct  *Object // instance being constructed
	exit       bool
	result     Value // exit frames: completion value of the frame above
	dispatched bool
}

// Code returns the executing code object.
func (f *Frame) Code() *Code { return f.code }

// IP returns the offset of the executing instruction.
func (f *Frame) IP() int { return f.pc }

// Callee returns the function object running in the frame, or nil.
func (f *Frame) Callee() *Object { return f.fn }

// IsExit reports whether the frame is an exit continuation.
func (f *Frame) IsExit() bool { return f.exit }

// ExecContext runs bytecode for one logical thread of script execution.
// It owns the frame stack and register file; only one goroutine drives it
// at a time.
type ExecContext struct {
	rt     *Runtime
	realm  *Realm
	regs   *RegisterFile
	frames []*Frame
	state  RunState

	exception   *Exception
	returnValue Value
	pending     func() error // call installed by SetupCall

	nativeDepth int
	roots       []Value
	scratch     []Value

	thread   *pseudoThread
	inThread bool
	quota    int
	budget   int
	preempt  atomic.Bool
	ctx      context.Context
	deadline time.Time

	pushes    int
	pops      int
	detaches  int
	destroyed bool
}

func (c *ExecContext) Runtime() *Runtime { return c.rt }
func (c *ExecContext) Realm() *Realm     { return c.realm }
func (c *ExecContext) State() RunState   { return c.state }

// Depth returns the number of frames on the stack, exit frames included.
func (c *ExecContext) Depth() int { return len(c.frames) }

// FrameBalance returns frame pushes minus pops since creation.
func (c *ExecContext) FrameBalance() int { return c.pushes - c.pops }

// RegisterBalance returns window allocations minus frees since creation.
func (c *ExecContext) RegisterBalance() int { return c.regs.Balance() }

// Detaches returns how many aliased registers were copied out of popped
// frames.
func (c *ExecContext) Detaches() int { return c.detaches }

// Exception returns the uncaught exception of the last run, if any.
func (c *ExecContext) Exception() *Exception { return c.exception }

// ReturnValue returns the completion value of the last run.
func (c *ExecContext) ReturnValue() Value { return c.returnValue }

// Preempt asks the running context to suspend at its next time-slice
// check. It may be called from any goroutine.
func (c *ExecContext) Preempt() { c.preempt.Store(true) }

// PushRoot keeps v alive across collections until the matching PopRoot.
func (c *ExecContext) PushRoot(v Value) { c.roots = append(c.roots, v) }

// PopRoot drops the most recently pushed root.
func (c *ExecContext) PopRoot() { c.roots = c.roots[:len(c.roots)-1] }

// SetRealm switches the realm new objects are created in and access checks
// are made against. It is only allowed between runs.
func (c *ExecContext) SetRealm(r *Realm) {
	c.realm = r
}

func (c *ExecContext) top() *Frame {
	return c.frames[len(c.frames)-1]
}

// --- Frames and windows ---

// allocateWindow reserves registers, growing the register file through a
// suspended call when it is full.
func (c *ExecContext) allocateWindow(size, overlap int) (int, error) {
	if c.regs.needsGrowth(size, overlap) {
		need := c.regs.top - overlap + size
		if err := c.SuspendedCall(func() error { return c.regs.grow(need) }); err != nil {
			return 0, err
		}
	}
	return c.regs.Allocate(size, overlap)
}

func (c *ExecContext) pushFrame(f *Frame) {
	c.frames = append(c.frames, f)
	c.pushes++
}

// checkDepth enforces the recursion limit before a frame is pushed.
func (c *ExecContext) checkDepth() error {
	if len(c.frames) >= c.rt.cfg.MaxRecursionDepth {
		return c.RangeError("Maximum call stack size exceeded")
	}
	return nil
}

// pushExit installs an exit continuation: when the frame above it returns,
// the result is stored in the exit frame and the run loop stops. Exit
// frames own no registers.
func (c *ExecContext) pushExit() {
	c.pushFrame(&Frame{code: c.rt.exitCode, base: c.regs.top, dest: -1, exit: true})
}

// popFrame discards the top frame. Values the frame exposes through
// aliased registers are copied out before its window is reclaimed.
func (c *ExecContext) popFrame() *Frame {
	f := c.top()
	if f.lazyArgs != nil {
		c.resolveLazyArguments(f)
	}
	for _, sp := range f.aliases {
		if sp.detach() {
			c.detaches++
		}
	}
	f.aliases = nil
	if !f.exit {
		c.regs.Free(f.size, f.overlap)
	}
	c.frames[len(c.frames)-1] = nil
	c.frames = c.frames[:len(c.frames)-1]
	c.pops++
	return f
}

// --- Setup ---

// Setup prepares code to run as a program with the global object as this.
// scope lists additional scope objects, outermost first.
func (c *ExecContext) Setup(code *Code, scope ...*Object) error {
	return c.setupProgram(code, ObjectValue(c.realm.Global), scope)
}

func (c *ExecContext) setupProgram(code *Code, this Value, scope []*Object) error {
	if err := c.ready(); err != nil {
		return err
	}
	if err := code.Validate(); err != nil {
		return err
	}
	c.pushExit()
	base, err := c.allocateWindow(code.Registers, 0)
	if err != nil {
		c.popFrame()
		return err
	}
	var chain *Scope
	for _, o := range scope {
		chain = NewScope(o, chain)
	}
	c.regs.values[base] = this
	c.pushFrame(&Frame{code: code, base: base, size: code.Registers, dest: 0, scope: chain})
	return nil
}

// SetupCall prepares a call of fn to run.
func (c *ExecContext) SetupCall(fn Value, this Value, args ...Value) error {
	if err := c.ready(); err != nil {
		return err
	}
	c.pushExit()
	args = append([]Value(nil), args...)
	c.pending = func() error {
		return c.invoke(fn, this, args, 0, false, TransitionNormal)
	}
	return nil
}

// ready checks that the context can accept a new run.
func (c *ExecContext) ready() error {
	if c.destroyed {
		return errors.ErrNotRunnable
	}
	switch c.state {
	case StateRunning, StateSuspended:
		return errors.ErrNotRunnable
	case StateReturned, StateException:
		c.state = StateNotStarted
	}
	if len(c.frames) > 0 {
		return errors.ErrNotRunnable
	}
	c.exception = nil
	c.returnValue = Undefined
	return nil
}

// --- Running ---

// Run executes the set-up code until it finishes or suspends.
func (c *ExecContext) Run() (RunResult, error) {
	return c.RunContext(context.Background())
}

// RunContext is Run with cancellation: an expired ctx aborts the run at
// the next time-slice check.
func (c *ExecContext) RunContext(ctx context.Context) (RunResult, error) {
	if c.destroyed || c.state != StateNotStarted || len(c.frames) == 0 {
		return RunError, errors.ErrNotRunnable
	}
	c.ctx = ctx
	c.deadline = time.Time{}
	if d := c.rt.cfg.MaxRunTime.Duration; d > 0 {
		c.deadline = time.Now().Add(d)
	}
	c.quota = c.rt.cfg.TimesliceQuota
	c.budget = c.quota
	c.state = StateRunning
	return c.drive()
}

// Resume continues a suspended run.
func (c *ExecContext) Resume() (RunResult, error) {
	if c.state != StateSuspended || c.thread == nil {
		return RunError, errors.ErrNotRunnable
	}
	c.state = StateRunning
	Logger().Debug("resuming context", zap.Int("frames", len(c.frames)))
	return c.drive()
}

// main is the body of a run on the pseudo-thread.
func (c *ExecContext) main() (Value, error) {
	if p := c.pending; p != nil {
		c.pending = nil
		if err := p(); err != nil {
			if !c.unwind(err) {
				c.popFrame()
				return Undefined, err
			}
		}
	}
	return c.execute()
}

// finish records the outcome of a run.
func (c *ExecContext) finish(v Value, err error) (RunResult, error) {
	if err == nil {
		c.returnValue = v
		c.state = StateReturned
		if v.IsUndefined() {
			return RunNormal, nil
		}
		return RunNormalWithValue, nil
	}
	c.abandonFrames()
	c.state = StateException
	var exc *Exception
	if stderrors.As(err, &exc) {
		c.exception = exc
		serr := c.scriptError(exc)
		Logger().Info("uncaught exception", zap.String("error", serr.Error()))
		return RunError, serr
	}
	if errors.IsResource(err, errors.OutOfMemory) {
		return RunErrorOutOfMemory, err
	}
	if err == errAborted {
		return RunError, errors.ErrNotRunnable
	}
	return RunError, err
}

// abandonFrames pops whatever an aborted run left behind.
func (c *ExecContext) abandonFrames() {
	for len(c.frames) > 0 {
		c.popFrame()
	}
}

// Call invokes fn with this and args. From inside a running context it
// calls synchronously; on an idle context it performs a complete run and
// returns ErrSuspended if that run suspends.
func (c *ExecContext) Call(fn Value, this Value, args ...Value) (Value, error) {
	if c.inThread {
		return c.callInternal(fn, this, args, TransitionNormal)
	}
	if err := c.SetupCall(fn, this, args...); err != nil {
		return Undefined, err
	}
	return c.complete(c.Run())
}

// Construct calls fn as a constructor.
func (c *ExecContext) Construct(fn Value, args ...Value) (Value, error) {
	if c.inThread {
		return c.constructInternal(fn, args)
	}
	if err := c.ready(); err != nil {
		return Undefined, err
	}
	c.pushExit()
	args = append([]Value(nil), args...)
	c.pending = func() error {
		return c.invoke(fn, Undefined, args, 0, true, TransitionNormal)
	}
	return c.complete(c.Run())
}

func (c *ExecContext) complete(r RunResult, err error) (Value, error) {
	switch r {
	case RunSuspended:
		return Undefined, errors.ErrSuspended
	case RunNormal, RunNormalWithValue:
		return c.returnValue, nil
	}
	return Undefined, err
}

// Reset discards the current run, aborting it if suspended, and makes the
// context ready for a new Setup.
func (c *ExecContext) Reset() {
	if c.thread != nil {
		c.abort()
	}
	c.abandonFrames()
	c.pending = nil
	c.exception = nil
	c.returnValue = Undefined
	c.roots = c.roots[:0]
	c.scratch = c.scratch[:0]
	c.nativeDepth = 0
	c.state = StateNotStarted
}

// Destroy resets the context and releases it. Aliased registers of any
// remaining frames are detached first.
func (c *ExecContext) Destroy() {
	if c.destroyed {
		return
	}
	c.Reset()
	c.rt.collector.unregister(c)
	c.destroyed = true
}

// --- Time slicing ---

// tick charges one unit of the time slice.
func (c *ExecContext) tick() error {
	c.budget--
	if c.budget > 0 {
		return nil
	}
	return c.sliceExpired()
}

// sliceExpired checks cancellation and the run-time limit, runs a pending
// collection, yields when preemption was requested and sizes the next
// slice: it starts over after a yield and doubles otherwise.
func (c *ExecContext) sliceExpired() error {
	if c.ctx != nil {
		if err := c.ctx.Err(); err != nil {
			return &errors.ResourceError{Resource: errors.Timeout, Msg: "run cancelled", Cause: err}
		}
	}
	if !c.deadline.IsZero() && time.Now().After(c.deadline) {
		return c.RangeError("Script run time limit exceeded")
	}
	if err := c.safePoint(); err != nil {
		return err
	}
	yielded := false
	if c.preempt.Load() && c.canSuspend() {
		c.preempt.Store(false)
		if err := c.suspend(suspendTimeslice); err != nil {
			return err
		}
		yielded = true
	}
	if yielded {
		c.quota = c.rt.cfg.TimesliceQuota
	} else {
		c.quota = min(c.quota*2, c.rt.cfg.TimesliceQuotaMax)
	}
	c.budget = c.quota
	return nil
}

// safePoint runs a pending collection.
func (c *ExecContext) safePoint() error {
	gc := c.rt.collector
	if !gc.pending || gc.depth > 0 {
		return nil
	}
	return c.SuspendedCall(func() error {
		_, err := gc.Collect()
		return err
	})
}
