package vm

import (
	"sort"
	"time"
)

// ---------------------------------------------------------------------------
// Heap: handle table, generations and the remembered set
// ---------------------------------------------------------------------------

// Ref is a handle into the heap's object table. The zero Ref is never
// assigned.
type Ref uint32

// HeapObject is anything the heap tracks for generation and write-barrier
// purposes.
type HeapObject interface {
	header() *Header
}

// Header is embedded by every heap object.
type Header struct {
	ref Ref
	old bool
}

func (h *Header) header() *Header { return h }

// Ref returns the object's handle, or 0 when the object is not addressable
// from a Value (shapes and handlers, for instance).
func (h *Header) Ref() Ref { return h.ref }

// IsOld reports whether the object has been promoted out of the young
// generation.
func (h *Header) IsOld() bool { return h.old }

// Slot identifies one pointer-sized location inside a heap object.
type Slot struct {
	Host   HeapObject
	Offset int
}

// GCStats describes a single collection.
type GCStats struct {
	Major     bool
	Promoted  int
	Forgotten int
	Duration  time.Duration
	Timestamp time.Time
}

// Heap owns every object created by an isolate. Go's collector does the
// actual reclamation; the heap models generations and the remembered set
// so that write barriers and GC-triggered cache flushes behave like they
// would under a moving collector.
type Heap struct {
	objects []HeapObject // indexed by Ref
	young   []HeapObject

	remembered map[Slot]struct{}

	allocations uint64
	gcInterval  int
	majorEvery  int
	gcCount     int
	inGC        bool

	barriers  uint64
	listeners []func(GCStats)
	lastStats GCStats
}

// NewHeap creates a heap that runs a minor collection every gcInterval
// allocations and promotes every majorEvery-th collection to a major one.
// A gcInterval of zero disables allocation-triggered collections.
func NewHeap(gcInterval, majorEvery int) *Heap {
	if majorEvery <= 0 {
		majorEvery = 1
	}
	return &Heap{
		objects:    make([]HeapObject, 1, 1024),
		remembered: make(map[Slot]struct{}),
		gcInterval: gcInterval,
		majorEvery: majorEvery,
	}
}

// Allocate registers obj in the young generation without giving it a
// handle. Any allocation may trigger a collection.
func (h *Heap) Allocate(obj HeapObject) {
	h.young = append(h.young, obj)
	h.allocations++
	if h.gcInterval > 0 && !h.inGC && h.allocations%uint64(h.gcInterval) == 0 {
		h.CollectGarbage((h.gcCount+1)%h.majorEvery == 0)
	}
}

// AllocateAddressable registers obj and assigns it a handle so it can be
// stored in a Value.
func (h *Heap) AllocateAddressable(obj HeapObject) Ref {
	hdr := obj.header()
	hdr.ref = Ref(len(h.objects))
	h.objects = append(h.objects, obj)
	h.Allocate(obj)
	return hdr.ref
}

// Get resolves a handle. Returns nil for unknown handles.
func (h *Heap) Get(ref Ref) HeapObject {
	if ref == 0 || int(ref) >= len(h.objects) {
		return nil
	}
	return h.objects[ref]
}

// Deref resolves a Value holding a heap reference. Returns nil for any
// other value.
func (h *Heap) Deref(v Value) HeapObject {
	if !v.IsRef() {
		return nil
	}
	return h.Get(v.Ref())
}

// RecordWrite is the write barrier: it must follow every store of a heap
// pointer into a heap object. Stores from old objects into young ones
// are added to the remembered set.
func (h *Heap) RecordWrite(host HeapObject, offset int, target HeapObject) {
	h.barriers++
	if host == nil || target == nil {
		return
	}
	if host.header().old && !target.header().old {
		h.remembered[Slot{Host: host, Offset: offset}] = struct{}{}
	}
}

// RecordWriteValue applies the write barrier for a Value store. Smis,
// doubles and oddballs need no barrier.
func (h *Heap) RecordWriteValue(host HeapObject, offset int, v Value) {
	if !v.IsRef() {
		return
	}
	h.RecordWrite(host, offset, h.Get(v.Ref()))
}

// IsRemembered reports whether the given slot is in the remembered set.
func (h *Heap) IsRemembered(host HeapObject, offset int) bool {
	_, ok := h.remembered[Slot{Host: host, Offset: offset}]
	return ok
}

// RememberedSet returns the remembered slots ordered by offset.
func (h *Heap) RememberedSet() []Slot {
	out := make([]Slot, 0, len(h.remembered))
	for s := range h.remembered {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out
}

// Promote moves obj to the old generation immediately. Long-lived
// infrastructure (caches, tables) is allocated old.
func (h *Heap) Promote(obj HeapObject) {
	obj.header().old = true
}

// OnGC registers a callback run after every collection.
func (h *Heap) OnGC(fn func(GCStats)) {
	h.listeners = append(h.listeners, fn)
}

// CollectGarbage promotes the young generation and clears the remembered
// set, then notifies listeners. A major collection is the point where
// per-isolate caches are expected to be flushed.
func (h *Heap) CollectGarbage(major bool) GCStats {
	if h.inGC {
		return h.lastStats
	}
	h.inGC = true
	defer func() { h.inGC = false }()

	start := time.Now()
	stats := GCStats{Major: major, Timestamp: start}
	for _, obj := range h.young {
		obj.header().old = true
	}
	stats.Promoted = len(h.young)
	h.young = h.young[:0]
	stats.Forgotten = len(h.remembered)
	h.remembered = make(map[Slot]struct{})
	h.gcCount++
	stats.Duration = time.Since(start)
	h.lastStats = stats

	for _, fn := range h.listeners {
		fn(stats)
	}
	return stats
}

// Collections returns the number of collections run so far.
func (h *Heap) Collections() int { return h.gcCount }

// Allocations returns the number of allocations since creation.
func (h *Heap) Allocations() uint64 { return h.allocations }

// Barriers returns the number of write barriers executed.
func (h *Heap) Barriers() uint64 { return h.barriers }

// LastStats returns statistics from the most recent collection.
func (h *Heap) LastStats() GCStats { return h.lastStats }

// Len returns the number of addressable objects.
func (h *Heap) Len() int { return len(h.objects) - 1 }
