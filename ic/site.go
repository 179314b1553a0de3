package ic

// Inline cache sites
//
// Every property access, call and comparison in the program owns a site.
// A named site moves through
//
//	uninitialized -> premonomorphic -> monomorphic -> polymorphic -> megamorphic
//
// and a keyed site ends in generic instead of megamorphic. Sites never move
// back, except that a site whose entries were all invalidated starts over
// as uninitialized.

import (
	"fmt"
	"sort"

	"github.com/chazu/shapecache/vm"
)

// DefaultMaxPolymorphic is the number of shapes a polymorphic site holds.
const DefaultMaxPolymorphic = 4

// Entry pairs a receiver shape with the handler serving it.
type Entry struct {
	Shape   *vm.Shape
	Handler Handler
}

// Site is the inline cache of one access in the program. Entries are
// replaced, never modified in place, so keyed sites can share them.
type Site struct {
	ID   int
	Kind Kind
	// Name is the accessed name; nil for keyed sites.
	Name  *vm.Name
	State State

	entries []Entry

	// Statistics for profiling
	Hits   uint64
	Misses uint64
}

// Entries returns the cached (shape, handler) pairs.
func (s *Site) Entries() []Entry { return s.entries }

// Shapes returns the shapes the site has handlers for.
func (s *Site) Shapes() []*vm.Shape {
	out := make([]*vm.Shape, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Shape
	}
	return out
}

// Lookup returns the handler cached for shape, or nil.
func (s *Site) Lookup(shape *vm.Shape) Handler {
	for _, e := range s.entries {
		if e.Shape == shape {
			return e.Handler
		}
	}
	return nil
}

// prune drops entries whose shape was deprecated or whose handler's
// guards on constant objects no longer hold. A site left without entries
// returns to uninitialized.
func (s *Site) prune(iso *vm.Isolate) int {
	if s.State != Monomorphic && s.State != Polymorphic {
		return 0
	}
	dead := 0
	for _, e := range s.entries {
		if e.Shape.IsDeprecated() || !e.Handler.Valid(iso) {
			dead++
		}
	}
	if dead == 0 {
		return 0
	}
	live := make([]Entry, 0, len(s.entries)-dead)
	for _, e := range s.entries {
		if !e.Shape.IsDeprecated() && e.Handler.Valid(iso) {
			live = append(live, e)
		}
	}
	s.entries = live
	switch len(live) {
	case 0:
		s.State = Uninitialized
	case 1:
		if s.State == Polymorphic {
			s.State = Monomorphic
		}
	}
	return dead
}

// Update installs h for shape and advances the state. When the site
// leaves polymorphic state the entries it drops are returned.
func (s *Site) Update(shape *vm.Shape, h Handler, maxPolymorphic int) []Entry {
	entry := Entry{Shape: shape, Handler: h}
	switch s.State {
	case Uninitialized, Premonomorphic:
		s.State = Monomorphic
		s.entries = []Entry{entry}

	case Monomorphic:
		old := s.entries[0]
		// Only a keyed store migrates its receiver off the old elements kind.
		if old.Shape == shape || old.Shape.IsDeprecated() || s.Kind == KindKeyedStore && isElementsTransition(old.Shape, shape) {
			s.entries = []Entry{entry}
			return nil
		}
		s.State = Polymorphic
		s.entries = []Entry{old, entry}

	case Polymorphic:
		next := make([]Entry, 0, len(s.entries)+1)
		replaced := false
		for _, e := range s.entries {
			if e.Shape == shape {
				e, replaced = entry, true
			}
			next = append(next, e)
		}
		if replaced {
			s.entries = next
			return nil
		}
		if len(next) < maxPolymorphic {
			s.entries = append(next, entry)
			return nil
		}
		dropped := append(next, entry)
		s.entries = nil
		if s.Kind.IsKeyed() {
			s.State = Generic
		} else {
			s.State = Megamorphic
		}
		return dropped

	case Megamorphic, Generic:
		// Stay; megamorphic handlers live in the stub cache.
	}
	return nil
}

// isElementsTransition reports whether to is from with a more general
// elements kind.
func isElementsTransition(from, to *vm.Shape) bool {
	if !vm.IsMoreGeneralElementsKindTransition(from.ElementsKind(), to.ElementsKind()) {
		return false
	}
	for s := to; s != nil; s = s.BackPointer() {
		if s == from {
			return true
		}
	}
	return false
}

// Reset clears the site back to uninitialized.
func (s *Site) Reset() {
	s.State = Uninitialized
	s.entries = nil
	s.Hits = 0
	s.Misses = 0
}

// HitRate returns the site's hit rate as a percentage (0-100).
func (s *Site) HitRate() float64 {
	return hitRate(s.Hits, s.Misses)
}

func hitRate(hits, misses uint64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) * 100 / float64(total)
}

func (s *Site) String() string {
	if s.Name != nil {
		return fmt.Sprintf("%s#%d(%s) %s", s.Kind, s.ID, s.Name, s.State)
	}
	return fmt.Sprintf("%s#%d %s", s.Kind, s.ID, s.State)
}

// polymorphicKey identifies a keyed site's shape list in the shared
// polymorphic cache.
func polymorphicKey(kind Kind, entries []Entry) string {
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = fmt.Sprintf("%d:%x", e.Shape.ID(), uint32(e.Handler.Flags()))
	}
	sort.Strings(keys)
	return fmt.Sprintf("%s%v", kind, keys)
}

// ---------------------------------------------------------------------------
// Site table
// ---------------------------------------------------------------------------

// SiteTable holds the sites of one program, keyed by site id.
type SiteTable struct {
	sites    map[int]*Site
	compares map[int]*CompareSite
}

// NewSiteTable creates an empty table.
func NewSiteTable() *SiteTable {
	return &SiteTable{
		sites:    make(map[int]*Site),
		compares: make(map[int]*CompareSite),
	}
}

// GetOrCreate returns the site with id, creating it for kind and name if
// needed. Keyed sites ignore name.
func (t *SiteTable) GetOrCreate(id int, kind Kind, name *vm.Name) *Site {
	if s := t.sites[id]; s != nil {
		return s
	}
	s := &Site{ID: id, Kind: kind}
	if !kind.IsKeyed() {
		s.Name = name
	}
	t.sites[id] = s
	return s
}

// Get returns the site with id, or nil.
func (t *SiteTable) Get(id int) *Site {
	return t.sites[id]
}

// CompareSite returns the compare site with id, creating it for op if
// needed.
func (t *SiteTable) CompareSite(id int, op vm.CompareOp) *CompareSite {
	if s := t.compares[id]; s != nil {
		return s
	}
	s := &CompareSite{ID: id, Op: op}
	t.compares[id] = s
	return s
}

// Each calls fn for every site in id order.
func (t *SiteTable) Each(fn func(*Site)) {
	ids := make([]int, 0, len(t.sites))
	for id := range t.sites {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		fn(t.sites[id])
	}
}

// EachCompare calls fn for every compare site in id order.
func (t *SiteTable) EachCompare(fn func(*CompareSite)) {
	ids := make([]int, 0, len(t.compares))
	for id := range t.compares {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		fn(t.compares[id])
	}
}

// Len returns the number of property and call sites.
func (t *SiteTable) Len() int { return len(t.sites) }

// Reset clears every site in the table.
func (t *SiteTable) Reset() {
	for _, s := range t.sites {
		s.Reset()
	}
	for _, s := range t.compares {
		s.State = CompareUninitialized
		s.Hits, s.Misses = 0, 0
	}
}
