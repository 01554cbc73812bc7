package vm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/nooga/esvm/pkg/errors"
)

// HostResult is the answer of a host object to a property operation.
type HostResult uint8

const (
	HostNotFound HostResult = iota
	HostFound
	HostSuspend // cannot complete synchronously; retry with the restart token
	HostDenied
	HostFailed
	HostReadOnly
)

func (r HostResult) String() string {
	switch r {
	case HostNotFound:
		return "not-found"
	case HostFound:
		return "found"
	case HostSuspend:
		return "suspend"
	case HostDenied:
		return "denied"
	case HostFailed:
		return "failed"
	case HostReadOnly:
		return "read-only"
	}
	return fmt.Sprintf("host-result(%d)", r)
}

// HostObject supplies the properties of an object owned by the embedder.
//
// GetOwn and PutOwn may answer HostSuspend together with a restart token.
// The engine then suspends the running context and, once resumed, repeats
// the call passing the token back. A nil restart marks the first attempt.
type HostObject interface {
	HasOwn(key PropertyKey) HostResult
	GetOwn(key PropertyKey, restart any) (Value, HostResult, any)
	PutOwn(key PropertyKey, v Value, restart any) (HostResult, any)
	DeleteOwn(key PropertyKey) HostResult
	EnumerateOwn() []PropertyKey
	// IsVolatile reports whether the property set may change behind the
	// engine's back. Volatile objects, and lookups passing through them,
	// are never cached.
	IsVolatile() bool
	IsAccessibleFrom(caller *Realm) bool
}

// HostIndexed is implemented by host objects that serve integer keys
// directly.
type HostIndexed interface {
	GetIndex(i uint32, restart any) (Value, HostResult, any)
	PutIndex(i uint32, v Value, restart any) (HostResult, any)
}

// HostCallable is implemented by host objects that can be called.
type HostCallable interface {
	Call(c *ExecContext, this Value, args []Value) (Value, error)
}

// NewHostObject wraps h in a script object inheriting from proto.
func (r *Realm) NewHostObject(h HostObject, proto *Object) *Object {
	o := r.allocate(r.rt.shapes.Root(proto), ClassHost)
	o.host = h
	o.flags |= flagHost
	return o
}

// protocolViolation logs and panics: a host broke its contract.
func protocolViolation(collaborator, format string, args ...any) {
	err := &errors.ProtocolError{Collaborator: collaborator, Msg: fmt.Sprintf(format, args...)}
	Logger().Error("host protocol violation", zap.Error(err))
	panic(err)
}

func checkHostResult(op string, r HostResult, allowed ...HostResult) {
	for _, a := range allowed {
		if r == a {
			return
		}
	}
	protocolViolation("host object", "%s answered %s", op, r)
}

// hostGet asks the host for key, suspending while it answers HostSuspend.
func (c *ExecContext) hostGet(o *Object, key PropertyKey) (Value, HostResult, error) {
	var restart any
	for {
		var v Value
		var r HostResult
		var tok any
		if hi, ok := o.host.(HostIndexed); ok && key.IsIndex() {
			v, r, tok = hi.GetIndex(key.Index(), restart)
		} else {
			v, r, tok = o.host.GetOwn(key, restart)
		}
		checkHostResult("GetOwn", r, HostNotFound, HostFound, HostSuspend, HostDenied, HostFailed)
		if r == HostFound && v.IsBoxed() {
			protocolViolation("host object", "GetOwn(%s) returned an internal value", key)
		}
		if r == HostFound && !o.host.IsVolatile() && o.host.HasOwn(key) == HostNotFound {
			protocolViolation("host object", "GetOwn(%s) found a property HasOwn denies", key)
		}
		if r != HostSuspend {
			return v, r, nil
		}
		if !c.canSuspend() {
			return Undefined, HostSuspend, nil
		}
		if err := c.suspend(suspendHost); err != nil {
			return Undefined, HostFailed, err
		}
		restart = tok
	}
}

func (c *ExecContext) hostPut(o *Object, key PropertyKey, v Value) (HostResult, error) {
	var restart any
	for {
		var r HostResult
		var tok any
		if hi, ok := o.host.(HostIndexed); ok && key.IsIndex() {
			r, tok = hi.PutIndex(key.Index(), v, restart)
		} else {
			r, tok = o.host.PutOwn(key, v, restart)
		}
		checkHostResult("PutOwn", r, HostNotFound, HostFound, HostSuspend, HostDenied, HostFailed, HostReadOnly)
		if r != HostSuspend {
			return r, nil
		}
		if !c.canSuspend() {
			return HostSuspend, nil
		}
		if err := c.suspend(suspendHost); err != nil {
			return HostFailed, err
		}
		restart = tok
	}
}

// hostNames returns the host's own names after validating them against
// HasOwn for hosts that claim a stable property set.
func (c *ExecContext) hostNames(o *Object) []PropertyKey {
	names := o.host.EnumerateOwn()
	if o.host.IsVolatile() {
		return names
	}
	for _, k := range names {
		if o.host.HasOwn(k) != HostFound {
			protocolViolation("host object", "EnumerateOwn listed %s but HasOwn denies it", k)
		}
	}
	return names
}
