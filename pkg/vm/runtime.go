package vm

import (
	"github.com/nooga/esvm/pkg/config"
)

// Runtime is the explicitly passed engine state shared by every context:
// the shape registry, the collector, realms and limits. It is written
// during construction and by the single running context afterwards.
type Runtime struct {
	cfg        config.Engine
	shapes     *ShapeRegistry
	collector  *Collector
	realm      *Realm
	realms     []*Realm
	protoEpoch uint64
	cacheStats CacheStats
	dispatcher NativeDispatcher
	exitCode   *Code
}

// NewRuntime creates a runtime with a default realm whose origin is "".
func NewRuntime(cfg config.Engine) (*Runtime, error) {
	full := config.Config{Engine: cfg, Log: config.Default().Log}
	if err := full.Validate(); err != nil {
		return nil, err
	}
	rt := &Runtime{
		cfg:    cfg,
		shapes: NewShapeRegistry(),
	}
	rt.collector = newCollector(rt, cfg.GCAllocationThreshold)
	rt.exitCode = newExitCode()
	rt.realm = rt.NewRealm("")
	return rt, nil
}

// MustNewRuntime is NewRuntime for configurations known to be valid.
func MustNewRuntime(cfg config.Engine) *Runtime {
	rt, err := NewRuntime(cfg)
	if err != nil {
		panic(err)
	}
	return rt
}

func (rt *Runtime) Config() config.Engine  { return rt.cfg }
func (rt *Runtime) Shapes() *ShapeRegistry { return rt.shapes }
func (rt *Runtime) Collector() *Collector  { return rt.collector }
func (rt *Runtime) Realm() *Realm          { return rt.realm }
func (rt *Runtime) CacheStats() CacheStats { return rt.cacheStats }
func (rt *Runtime) PrototypeEpoch() uint64 { return rt.protoEpoch }

// SetDispatcher installs the native code dispatcher consulted when entering
// code marked NativeEntry.
func (rt *Runtime) SetDispatcher(d NativeDispatcher) { rt.dispatcher = d }

// NewContext creates an execution context in the default realm.
func (rt *Runtime) NewContext() *ExecContext {
	return rt.NewContextIn(rt.realm)
}

// NewContextIn creates an execution context running in realm.
func (rt *Runtime) NewContextIn(realm *Realm) *ExecContext {
	c := &ExecContext{
		rt:    rt,
		realm: realm,
		regs:  newRegisterFile(256, rt.cfg.MaxRegisters),
		quota: rt.cfg.TimesliceQuota,
	}
	c.budget = c.quota
	rt.collector.register(c)
	return c
}

// newExitCode builds the sentinel code object of exit frames: its single
// instruction ends the run loop with the frame's stored result.
func newExitCode() *Code {
	b := NewBuilder("<exit>", 0)
	b.Emit(OpExit)
	return b.Build()
}
