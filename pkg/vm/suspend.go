package vm

import (
	stderrors "errors"
	"fmt"

	"go.uber.org/zap"
)

// suspendReason says why a context suspended.
type suspendReason uint8

const (
	suspendHost suspendReason = iota
	suspendTimeslice
	suspendCheckpoint
)

func (r suspendReason) String() string {
	switch r {
	case suspendHost:
		return "host"
	case suspendTimeslice:
		return "timeslice"
	case suspendCheckpoint:
		return "checkpoint"
	}
	return fmt.Sprintf("reason(%d)", r)
}

// errAborted unwinds a suspended run that is being discarded. Script
// handlers never see it.
var errAborted = stderrors.New("run aborted")

type yieldKind uint8

const (
	yieldSuspend yieldKind = iota
	yieldCall
	yieldDone
)

type yieldMsg struct {
	kind     yieldKind
	reason   suspendReason
	call     func() error
	value    Value
	err      error
	panicked any
}

type resumeMsg struct {
	abort bool
	err   error
}

// pseudoThread runs the interpreter on its own goroutine so that a run can
// stop at any depth of nested calls and later continue exactly there.
// Control passes back and forth over unbuffered channels; at any moment
// exactly one of the embedder and the pseudo-thread is active.
type pseudoThread struct {
	resume chan resumeMsg
	yield  chan yieldMsg
}

func (c *ExecContext) startThread() {
	t := &pseudoThread{resume: make(chan resumeMsg), yield: make(chan yieldMsg)}
	c.thread = t
	go func() {
		var msg yieldMsg
		defer func() {
			c.inThread = false
			if r := recover(); r != nil {
				msg = yieldMsg{kind: yieldDone, panicked: r}
			}
			t.yield <- msg
		}()
		c.inThread = true
		v, err := c.main()
		msg = yieldMsg{kind: yieldDone, value: v, err: err}
	}()
}

// drive hands control to the pseudo-thread until it suspends or finishes.
func (c *ExecContext) drive() (RunResult, error) {
	if c.thread == nil {
		c.startThread()
	} else {
		c.thread.resume <- resumeMsg{}
	}
	for {
		msg := <-c.thread.yield
		switch msg.kind {
		case yieldCall:
			err := msg.call()
			c.thread.resume <- resumeMsg{err: err}
		case yieldSuspend:
			c.state = StateSuspended
			Logger().Debug("context suspended", zap.Stringer("reason", msg.reason), zap.Int("frames", len(c.frames)))
			return RunSuspended, nil
		case yieldDone:
			c.thread = nil
			if msg.panicked != nil {
				c.state = StateException
				panic(msg.panicked)
			}
			return c.finish(msg.value, msg.err)
		}
	}
}

// canSuspend reports whether the caller runs on the pseudo-thread.
func (c *ExecContext) canSuspend() bool {
	return c.inThread && c.thread != nil
}

// suspend parks the pseudo-thread and returns once the embedder resumes
// the context. The collector must not be locked.
func (c *ExecContext) suspend(reason suspendReason) error {
	if d := c.rt.collector.Depth(); d != 0 {
		panic(fmt.Sprintf("suspension with collector locked (depth %d)", d))
	}
	t := c.thread
	c.inThread = false
	t.yield <- yieldMsg{kind: yieldSuspend, reason: reason}
	m := <-t.resume
	c.inThread = true
	if m.abort {
		return errAborted
	}
	return nil
}

// SuspendedCall runs fn on the embedder side while the pseudo-thread
// waits. Off the pseudo-thread fn runs directly.
func (c *ExecContext) SuspendedCall(fn func() error) error {
	if !c.canSuspend() {
		return fn()
	}
	t := c.thread
	c.inThread = false
	t.yield <- yieldMsg{kind: yieldCall, call: fn}
	m := <-t.resume
	c.inThread = true
	if m.abort {
		return errAborted
	}
	return m.err
}

// abort discards a suspended run: the pseudo-thread unwinds every frame
// and exits.
func (c *ExecContext) abort() {
	t := c.thread
	t.resume <- resumeMsg{abort: true}
	for {
		msg := <-t.yield
		switch msg.kind {
		case yieldCall:
			t.resume <- resumeMsg{err: msg.call()}
		case yieldSuspend:
			t.resume <- resumeMsg{abort: true}
		case yieldDone:
			c.thread = nil
			Logger().Debug("suspended run aborted", zap.Int("frames", len(c.frames)))
			return
		}
	}
}
