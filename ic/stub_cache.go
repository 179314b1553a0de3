package ic

import (
	"fmt"

	"github.com/chazu/shapecache/vm"
)

// stubCacheEntrySize is the modeled byte size of one table entry: name,
// handler and shape words.
const (
	stubCacheEntrySize    = 3 * vm.SlotSize
	stubCacheHandlerSlot  = vm.SlotSize
	stubCacheShapeSlot    = 2 * vm.SlotSize
	stubCacheMultiplier   = 2654435761
	stubCacheSecondaryMul = 0x9E3779B1
)

type stubCacheEntry struct {
	name    *vm.Name
	handler Handler
	shape   *vm.Shape
}

// StubCache is the megamorphic cache: two direct-mapped tables keyed by
// (name, receiver shape, flags). Entries displaced from the primary table
// move to the secondary table; secondary collisions overwrite.
//
// The cache is a long-lived heap object, so installing a handler or shape
// records a write barrier.
type StubCache struct {
	vm.Header
	heap      *vm.Heap
	primary   []stubCacheEntry
	secondary []stubCacheEntry

	// Updates counts Set calls.
	Updates uint64
}

// NewStubCache allocates a cache on heap. Both sizes must be powers of
// two.
func NewStubCache(heap *vm.Heap, primarySize, secondarySize int) (*StubCache, error) {
	if !isPowerOfTwo(primarySize) || !isPowerOfTwo(secondarySize) {
		return nil, fmt.Errorf("ic: stub cache sizes %d/%d must be powers of two", primarySize, secondarySize)
	}
	c := &StubCache{
		heap:      heap,
		primary:   make([]stubCacheEntry, primarySize),
		secondary: make([]stubCacheEntry, secondarySize),
	}
	heap.Allocate(c)
	heap.Promote(c)
	return c, nil
}

func isPowerOfTwo(n int) bool { return n > 0 && n&(n-1) == 0 }

// PrimaryOffset returns the primary table index for the key.
func (c *StubCache) PrimaryOffset(name *vm.Name, shape *vm.Shape, flags Flags) uint32 {
	h := shape.ID()*stubCacheMultiplier + name.Hash()
	return (h ^ uint32(flags.ForStubCache())) & uint32(len(c.primary)-1)
}

// SecondaryOffset returns the secondary table index for the key, derived
// from its primary index.
func (c *StubCache) SecondaryOffset(name *vm.Name, flags Flags, seed uint32) uint32 {
	h := seed - name.ID()*stubCacheSecondaryMul + uint32(flags.ForStubCache())
	return h & uint32(len(c.secondary)-1)
}

// Get returns the handler cached for the key, or nil.
func (c *StubCache) Get(name *vm.Name, shape *vm.Shape, flags Flags) Handler {
	if name == nil || shape == nil {
		return nil
	}
	flags = flags.ForStubCache()
	p := c.PrimaryOffset(name, shape, flags)
	if e := &c.primary[p]; e.matches(name, shape, flags) {
		return e.handler
	}
	s := c.SecondaryOffset(name, flags, p)
	if e := &c.secondary[s]; e.matches(name, shape, flags) {
		return e.handler
	}
	return nil
}

func (e *stubCacheEntry) matches(name *vm.Name, shape *vm.Shape, flags Flags) bool {
	return e.handler != nil && e.name == name && e.shape == shape && e.handler.Flags().ForStubCache() == flags
}

// Set caches h for (name, shape) under h's flags. An entry for a different
// key already in the primary slot moves to its own secondary slot.
func (c *StubCache) Set(name *vm.Name, shape *vm.Shape, h Handler) {
	flags := h.Flags().ForStubCache()
	p := c.PrimaryOffset(name, shape, flags)
	if old := c.primary[p]; old.handler != nil && !old.matches(name, shape, flags) {
		oldFlags := old.handler.Flags().ForStubCache()
		s := c.SecondaryOffset(old.name, oldFlags, c.PrimaryOffset(old.name, old.shape, oldFlags))
		c.store(c.secondary, s, len(c.primary), old)
	}
	c.store(c.primary, p, 0, stubCacheEntry{name: name, handler: h, shape: shape})
	c.Updates++
}

func (c *StubCache) store(table []stubCacheEntry, index uint32, base int, e stubCacheEntry) {
	table[index] = e
	off := (base + int(index)) * stubCacheEntrySize
	c.heap.RecordWrite(c, off+stubCacheHandlerSlot, e.handler)
	c.heap.RecordWrite(c, off+stubCacheShapeSlot, e.shape)
}

// Clear empties both tables.
func (c *StubCache) Clear() {
	clear(c.primary)
	clear(c.secondary)
}

// CollectMatchingShapes returns the distinct live shapes cached with name
// and flags whose handlers are still valid. Shapes of other contexts'
// global proxies are skipped.
func (c *StubCache) CollectMatchingShapes(iso *vm.Isolate, name *vm.Name, flags Flags) []*vm.Shape {
	flags = flags.ForStubCache()
	seen := make(map[*vm.Shape]bool)
	var out []*vm.Shape
	collect := func(table []stubCacheEntry) {
		for i := range table {
			e := &table[i]
			if e.handler == nil || e.name != name || e.handler.Flags().ForStubCache() != flags {
				continue
			}
			if seen[e.shape] || e.shape.IsDeprecated() || !e.handler.Valid(iso) {
				continue
			}
			seen[e.shape] = true
			out = append(out, e.shape)
		}
	}
	collect(c.primary)
	collect(c.secondary)
	return out
}

// Len returns the number of occupied entries.
func (c *StubCache) Len() int {
	n := 0
	for _, t := range [][]stubCacheEntry{c.primary, c.secondary} {
		for i := range t {
			if t[i].handler != nil {
				n++
			}
		}
	}
	return n
}
