package errors

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// EngineError is the interface implemented by all engine errors surfaced to
// the embedder.
type EngineError interface {
	error
	Pos() Position
	Kind() string // "Script", "Resource", "Security", "Protocol", "Config"
	// Message returns the specific error message without position info.
	Message() string
	Unwrap() error
}

// Sentinel errors returned by the embedding API.
var (
	// ErrSuspended is returned when a run stopped at a suspension point and
	// must be resumed before its result is available.
	ErrSuspended = errors.New("execution suspended")
	// ErrNotRunnable is returned when a context is asked to run in a state
	// that does not allow it (already running, destroyed, nothing set up).
	ErrNotRunnable = errors.New("execution context not runnable")
)

// --- Concrete Error Types ---

// ScriptError is an uncaught script exception. Value holds the rendered
// thrown value, Trace the rendered stack trace captured at throw time.
type ScriptError struct {
	Position
	Name  string // Error class name when the thrown value is an error object
	Msg   string
	Trace string
	Cause error
}

func (e *ScriptError) Error() string {
	name := e.Name
	if name == "" {
		name = "Uncaught"
	}
	if e.Position.IsZero() {
		return fmt.Sprintf("%s: %s", name, e.Msg)
	}
	return fmt.Sprintf("%s at %s: %s", name, e.Position, e.Msg)
}
func (e *ScriptError) Pos() Position   { return e.Position }
func (e *ScriptError) Kind() string    { return "Script" }
func (e *ScriptError) Message() string { return e.Msg }
func (e *ScriptError) Unwrap() error   { return e.Cause }

// ResourceKind distinguishes the exhaustion conditions of ResourceError.
type ResourceKind uint8

const (
	OutOfMemory ResourceKind = iota
	RecursionLimit
	Timeout
)

func (k ResourceKind) String() string {
	switch k {
	case OutOfMemory:
		return "out of memory"
	case RecursionLimit:
		return "maximum recursion depth exceeded"
	case Timeout:
		return "time quota exceeded"
	default:
		return "resource exhausted"
	}
}

// ResourceError reports exhaustion of an engine limit. It aborts the current
// run, never the process.
type ResourceError struct {
	Position
	Resource ResourceKind
	Msg      string
	Cause    error
}

func (e *ResourceError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("Resource Error: %s", e.Resource)
	}
	return fmt.Sprintf("Resource Error: %s: %s", e.Resource, e.Msg)
}
func (e *ResourceError) Pos() Position   { return e.Position }
func (e *ResourceError) Kind() string    { return "Resource" }
func (e *ResourceError) Message() string { return e.Msg }
func (e *ResourceError) Unwrap() error   { return e.Cause }

// SecurityError reports a denied cross-realm property access.
type SecurityError struct {
	Position
	Property string
	Msg      string
	Cause    error
}

func (e *SecurityError) Error() string {
	return fmt.Sprintf("Security Error: access to '%s' denied: %s", e.Property, e.Msg)
}
func (e *SecurityError) Pos() Position   { return e.Position }
func (e *SecurityError) Kind() string    { return "Security" }
func (e *SecurityError) Message() string { return e.Msg }
func (e *SecurityError) Unwrap() error   { return e.Cause }

// ProtocolError is raised (as a panic value) when a collaborator breaks its
// contract with the engine, e.g. a host object that misreports its own
// property set. It is never converted into a script exception.
type ProtocolError struct {
	Collaborator string
	Msg          string
	Cause        error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("Protocol Error: %s: %s", e.Collaborator, e.Msg)
}
func (e *ProtocolError) Pos() Position   { return Position{} }
func (e *ProtocolError) Kind() string    { return "Protocol" }
func (e *ProtocolError) Message() string { return e.Msg }
func (e *ProtocolError) Unwrap() error   { return e.Cause }

// ConfigError reports an invalid engine configuration.
type ConfigError struct {
	Field string
	Msg   string
	Cause error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("Config Error: %s", e.Msg)
	}
	return fmt.Sprintf("Config Error: %s: %s", e.Field, e.Msg)
}
func (e *ConfigError) Pos() Position   { return Position{} }
func (e *ConfigError) Kind() string    { return "Config" }
func (e *ConfigError) Message() string { return e.Msg }
func (e *ConfigError) Unwrap() error   { return e.Cause }

// IsResource reports whether err is a ResourceError of the given kind.
func IsResource(err error, kind ResourceKind) bool {
	var re *ResourceError
	return errors.As(err, &re) && re.Resource == kind
}

// --- Error Reporting ---

// Display writes a list of engine errors in a user-friendly format. Script
// errors are followed by their rendered stack trace.
func Display(w io.Writer, errs []EngineError) {
	for _, err := range errs {
		fmt.Fprintf(w, "%s\n", err.Error())
		if se, ok := err.(*ScriptError); ok && se.Trace != "" {
			for _, line := range strings.Split(strings.TrimRight(se.Trace, "\n"), "\n") {
				fmt.Fprintf(w, "  %s\n", line)
			}
		}
	}
}
