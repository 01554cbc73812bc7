package vm

import (
	"fmt"
	"strings"

	"github.com/nooga/esvm/pkg/errors"
)

// Transition classifies how a frame was entered.
type Transition uint8

const (
	TransitionNormal   Transition = iota
	TransitionCall                // Function.prototype.call
	TransitionApply               // Function.prototype.apply
	TransitionBind                // through a bound function
	TransitionCoercion            // valueOf/toString during a primitive conversion
)

func (t Transition) String() string {
	switch t {
	case TransitionNormal:
		return "normal"
	case TransitionCall:
		return "call"
	case TransitionApply:
		return "apply"
	case TransitionBind:
		return "bind"
	case TransitionCoercion:
		return "coercion"
	}
	return fmt.Sprintf("transition(%d)", t)
}

// TraceEntry is one captured frame.
type TraceEntry struct {
	Code       *Code
	IP         int
	Line       int
	Transition Transition
}

// Position returns the entry as an error position.
func (e TraceEntry) Position() errors.Position {
	return errors.Position{Function: e.Code.Name, Line: e.Line, Offset: e.IP}
}

func (e TraceEntry) String() string {
	s := "at " + e.Position().String()
	if e.Transition != TransitionNormal {
		s += " [" + e.Transition.String() + "]"
	}
	return s
}

// StackTrace is the list of frames live at throw time, innermost first.
type StackTrace struct {
	Header    string
	Entries   []TraceEntry
	Truncated bool
}

// captureTrace walks live frames from the innermost outwards, skipping
// exit continuations, up to the configured depth.
func (c *ExecContext) captureTrace() *StackTrace {
	limit := c.rt.cfg.StackTraceDepth
	st := &StackTrace{}
	for i := len(c.frames) - 1; i >= 0; i-- {
		f := c.frames[i]
		if f.exit {
			continue
		}
		if len(st.Entries) >= limit {
			st.Truncated = true
			break
		}
		st.Entries = append(st.Entries, TraceEntry{
			Code:       f.code,
			IP:         f.pc,
			Line:       f.code.GetLine(f.pc),
			Transition: f.transition,
		})
	}
	return st
}

// Render formats the trace for humans.
func (st *StackTrace) Render() string {
	if st == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(st.Header)
	for _, e := range st.Entries {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("    ")
		b.WriteString(e.String())
	}
	if st.Truncated {
		b.WriteString("\n    ...")
	}
	return b.String()
}

// Top returns the innermost entry.
func (st *StackTrace) Top() (TraceEntry, bool) {
	if st == nil || len(st.Entries) == 0 {
		return TraceEntry{}, false
	}
	return st.Entries[0], true
}
