package vm

import (
	"fmt"
	"io"
)

// PropCacheState represents the different states of an inline cache
type PropCacheState uint8

const (
	CacheStateUninitialized PropCacheState = iota
	CacheStateMonomorphic                  // Single shape cached
	CacheStatePolymorphic                  // Multiple shapes cached (up to 4)
	CacheStateMegamorphic                  // Too many shapes, always take the slow path
)

func (s PropCacheState) String() string {
	switch s {
	case CacheStateMonomorphic:
		return "MONOMORPHIC"
	case CacheStatePolymorphic:
		return "POLYMORPHIC"
	case CacheStateMegamorphic:
		return "MEGAMORPHIC"
	}
	return "UNINITIALIZED"
}

type cacheEntryKind uint8

const (
	entryOwn     cacheEntryKind = iota // own data slot
	entryProto                         // data slot on a prototype holder
	entryMissing                       // absent along the whole chain
	entryPut                           // write to existing own slot
	entryPutNew                        // add property: shape transition
)

// PropCacheEntry is one remembered lookup outcome.
type PropCacheEntry struct {
	kind     cacheEntryKind
	shape    *Shape
	serial   uint32
	position int
	offset   int
	typ      StorageType
	holder   *Object
	epoch    uint64
	newShape *Shape
}

// PropertyCache is the inline cache of one property access site.
type PropertyCache struct {
	state      PropCacheState
	entries    [4]PropCacheEntry
	entryCount int
	hitCount   uint32
	missCount  uint32
}

// CacheStats aggregates inline cache activity of a runtime.
type CacheStats struct {
	Hits            uint64
	Misses          uint64
	MonomorphicHits uint64
	PolymorphicHits uint64
}

// State returns the cache's state.
func (pc *PropertyCache) State() PropCacheState { return pc.state }

// matches checks the guards shared by every entry kind.
func (e *PropCacheEntry) matches(o *Object, epoch uint64) bool {
	if o.shape != e.shape || o.shape.serial != e.serial || o.flags&flagConstructing != 0 || o.exotic() {
		return false
	}
	if e.kind != entryOwn && e.kind != entryPut && e.epoch != epoch {
		return false
	}
	return e.position < 0 || e.position < o.count
}

func (pc *PropertyCache) find(o *Object, epoch uint64, stats *CacheStats) *PropCacheEntry {
	if pc.state == CacheStateUninitialized || pc.state == CacheStateMegamorphic {
		pc.missCount++
		stats.Misses++
		return nil
	}
	for i := 0; i < pc.entryCount; i++ {
		if pc.entries[i].matches(o, epoch) {
			pc.hitCount++
			stats.Hits++
			if pc.state == CacheStateMonomorphic {
				stats.MonomorphicHits++
				return &pc.entries[0]
			}
			stats.PolymorphicHits++
			// Move hit entry to front for better cache locality
			if i > 0 {
				entry := pc.entries[i]
				copy(pc.entries[1:i+1], pc.entries[0:i])
				pc.entries[0] = entry
			}
			return &pc.entries[0]
		}
	}
	pc.missCount++
	stats.Misses++
	return nil
}

// lookupGet answers a read from the cache.
func (pc *PropertyCache) lookupGet(o *Object, epoch uint64, stats *CacheStats) (Value, bool) {
	e := pc.find(o, epoch, stats)
	if e == nil {
		return Undefined, false
	}
	switch e.kind {
	case entryOwn:
		return o.readSlot(PropertyInfo{Offset: e.offset, Type: e.typ}), true
	case entryProto:
		return e.holder.readSlot(PropertyInfo{Offset: e.offset, Type: e.typ}), true
	case entryMissing:
		return Undefined, true
	}
	return Undefined, false
}

// lookupPut performs a cached write. It reports false when the slow path
// must run.
func (pc *PropertyCache) lookupPut(o *Object, v Value, epoch uint64, stats *CacheStats) bool {
	e := pc.find(o, epoch, stats)
	if e == nil || !e.typ.Accepts(v) {
		return false
	}
	switch e.kind {
	case entryPut:
		o.writeSlot(PropertyInfo{Offset: e.offset, Type: e.typ}, v)
		return true
	case entryPutNew:
		if !o.IsExtensible() || o.count != e.shape.Len() {
			return false
		}
		o.shape = e.newShape
		o.grow(e.newShape.slots)
		o.count = e.newShape.Len()
		o.writeSlot(PropertyInfo{Offset: e.offset, Type: e.typ}, v)
		o.structureChanged()
		return true
	}
	return false
}

// recordGet remembers a cacheable read.
func (pc *PropertyCache) recordGet(r GetResult, info *CacheInfo) {
	e := PropCacheEntry{shape: info.Shape, serial: info.Serial, position: info.Position, offset: info.Offset, typ: info.Type, epoch: info.Epoch}
	switch {
	case r == GetNotFoundCacheable:
		e.kind = entryMissing
	case info.Holder != nil:
		e.kind = entryProto
		e.holder = info.Holder
	default:
		e.kind = entryOwn
	}
	pc.update(e)
}

// recordPut remembers a cacheable write. Existing-slot writes and
// transitions are distinct entry kinds.
func (pc *PropertyCache) recordPut(r PutResult, info *CacheInfo) {
	e := PropCacheEntry{shape: info.Shape, serial: info.Serial, position: info.Position, offset: info.Offset, typ: info.Type, epoch: info.Epoch}
	if r == PutOKCacheableNew {
		e.kind = entryPutNew
		e.newShape = info.NewShape
		e.position = -1
	} else {
		e.kind = entryPut
	}
	pc.update(e)
}

// update adds or refreshes an entry, moving through the cache states.
func (pc *PropertyCache) update(e PropCacheEntry) {
	switch pc.state {
	case CacheStateUninitialized:
		// First entry - transition to monomorphic
		pc.state = CacheStateMonomorphic
		pc.entries[0] = e
		pc.entryCount = 1
	case CacheStateMonomorphic, CacheStatePolymorphic:
		for i := 0; i < pc.entryCount; i++ {
			if pc.entries[i].shape == e.shape {
				pc.entries[i] = e
				return
			}
		}
		if pc.entryCount < len(pc.entries) {
			pc.entries[pc.entryCount] = e
			pc.entryCount++
			pc.state = CacheStatePolymorphic
		} else {
			// Too many shapes - transition to megamorphic
			pc.state = CacheStateMegamorphic
			pc.entryCount = 0
		}
	case CacheStateMegamorphic:
		return
	}
}

// reset clears the cache.
func (pc *PropertyCache) reset() {
	pc.state = CacheStateUninitialized
	pc.entryCount = 0
}

// siteCache returns the cache of the property access site at ip, sized
// lazily to the bytecode.
func (code *Code) siteCache(ip int) *PropertyCache {
	if code.caches == nil || len(code.caches) != len(code.Code) {
		code.caches = make([]*PropertyCache, len(code.Code))
	}
	pc := code.caches[ip]
	if pc == nil {
		pc = &PropertyCache{}
		code.caches[ip] = pc
	}
	return pc
}

// DumpCaches writes the state of every populated site cache of code.
func (code *Code) DumpCaches(w io.Writer) {
	for ip, pc := range code.caches {
		if pc == nil {
			continue
		}
		state := pc.state.String()
		if pc.state == CacheStatePolymorphic {
			state = fmt.Sprintf("POLYMORPHIC(%d)", pc.entryCount)
		}
		fmt.Fprintf(w, "%s IP %d: %s (hits: %d, misses: %d)\n", code.Name, ip, state, pc.hitCount, pc.missCount)
	}
}
