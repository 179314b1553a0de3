// Package ic implements inline caches for property access, calls and
// comparisons.
//
// An Engine owns the caches of one isolate: the per-site state machines,
// the handler compiler with its per-shape code caches, the megamorphic
// stub cache and the shared polymorphic lists of keyed sites. Load, Store,
// KeyedLoad, KeyedStore, Call and Compare are what an interpreter calls at
// an access; each tries the site's cached handlers first and falls back to
// the runtime on a miss, after updating the site.
//
// Caching never changes results. A handler that cannot prove its guards
// returns ErrCacheMiss before writing anything, and every miss completes
// through the same runtime entry the interpreter would use without caches.
package ic

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/tliron/commonlog"

	"github.com/chazu/shapecache/codegen"
	"github.com/chazu/shapecache/ictrace"
	"github.com/chazu/shapecache/vm"
)

// Config tunes an Engine.
type Config struct {
	// MaxPolymorphic is the number of shapes a site tracks before it goes
	// megamorphic (named) or generic (keyed).
	MaxPolymorphic int
	// Premonomorphic delays the first compile at a site by one miss.
	Premonomorphic bool
	// PrimaryTableSize and SecondaryTableSize size the stub cache. Both
	// must be powers of two.
	PrimaryTableSize   int
	SecondaryTableSize int
	// PolymorphicCacheSize bounds the shared keyed polymorphic lists.
	PolymorphicCacheSize int
	// PrintCode logs the code template of every installed handler.
	PrintCode bool
	// Trace receives state transitions; nil discards them.
	Trace ictrace.Sink
}

// DefaultConfig returns the standard configuration.
func DefaultConfig() Config {
	return Config{
		MaxPolymorphic:       DefaultMaxPolymorphic,
		Premonomorphic:       true,
		PrimaryTableSize:     2048,
		SecondaryTableSize:   512,
		PolymorphicCacheSize: 128,
	}
}

// EngineCounters count cache maintenance events.
type EngineCounters struct {
	Uncacheable           uint64
	Invalidations         uint64
	KeyedPolymorphicStubs uint64
	StubCacheClears       uint64
}

// Engine is the inline cache subsystem of one isolate. It is not safe
// for concurrent use; each isolate runs on one goroutine.
type Engine struct {
	iso      *vm.Isolate
	cfg      Config
	log      commonlog.Logger
	compiler *HandlerCompiler
	stubs    *StubCache
	refs     *ExternalReferenceTable
	poly     *lru.Cache
	sites    *SiteTable
	trace    ictrace.Sink
	nonMono  map[Flags]Handler

	Counters EngineCounters
}

// NewEngine creates the caches for iso. Major collections flush the
// stub cache and shape deprecations drop the shape's cached handlers.
func NewEngine(iso *vm.Isolate, cfg Config) (*Engine, error) {
	if cfg.MaxPolymorphic < 1 {
		return nil, fmt.Errorf("ic: max polymorphic %d must be positive", cfg.MaxPolymorphic)
	}
	stubs, err := NewStubCache(iso.Heap, cfg.PrimaryTableSize, cfg.SecondaryTableSize)
	if err != nil {
		return nil, err
	}
	size := cfg.PolymorphicCacheSize
	if size <= 0 {
		size = 1
	}
	poly, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("ic: creating polymorphic cache: %w", err)
	}
	trace := cfg.Trace
	if trace == nil {
		trace = ictrace.Discard
	}
	e := &Engine{
		iso:      iso,
		cfg:      cfg,
		log:      commonlog.GetLogger("shapecache.ic"),
		compiler: NewHandlerCompiler(iso),
		stubs:    stubs,
		refs:     NewExternalReferenceTable(),
		poly:     poly,
		sites:    NewSiteTable(),
		trace:    trace,
		nonMono:  make(map[Flags]Handler),
	}
	iso.Heap.OnGC(e.onGC)
	iso.Shapes.OnDeprecated(e.InvalidateShape)
	e.log.Debugf("engine for isolate %s: stub cache %d/%d, max polymorphic %d",
		iso.ID, cfg.PrimaryTableSize, cfg.SecondaryTableSize, cfg.MaxPolymorphic)
	return e, nil
}

// Isolate returns the engine's isolate.
func (e *Engine) Isolate() *vm.Isolate { return e.iso }

// Sites returns the engine's site table.
func (e *Engine) Sites() *SiteTable { return e.sites }

// StubCache returns the megamorphic stub cache.
func (e *Engine) StubCache() *StubCache { return e.stubs }

// Compiler returns the handler compiler.
func (e *Engine) Compiler() *HandlerCompiler { return e.compiler }

// References returns the external reference table handlers are described
// against.
func (e *Engine) References() *ExternalReferenceTable { return e.refs }

// Site returns the site with id, creating it for kind and name.
func (e *Engine) Site(id int, kind Kind, name string) *Site {
	var n *vm.Name
	if !kind.IsKeyed() {
		n = e.iso.Name(name)
	}
	return e.sites.GetOrCreate(id, kind, n)
}

// CompareSite returns the compare site with id, creating it for op.
func (e *Engine) CompareSite(id int, op vm.CompareOp) *CompareSite {
	return e.sites.CompareSite(id, op)
}

func (e *Engine) onGC(st vm.GCStats) {
	if !st.Major {
		return
	}
	e.stubs.Clear()
	e.poly.Purge()
	e.Counters.StubCacheClears++
	e.log.Noticef("major gc: cleared stub cache (%d promoted, %d forgotten)", st.Promoted, st.Forgotten)
	e.trace.Record(ictrace.Event{
		Isolate: e.iso.ID,
		Kind:    "stub-cache",
		Reason:  ictrace.ReasonFlush,
		Detail:  "major gc",
		Time:    st.Timestamp,
	})
}

// ---------------------------------------------------------------------------
// Access entry points
// ---------------------------------------------------------------------------

// access builds the operands of an access at a named site. Names that
// are not unique are internalized so handlers can compare by identity.
func (e *Engine) access(receiver vm.Value, name *vm.Name) *Access {
	a := newAccess(e.iso, receiver)
	if name != nil && !name.IsUnique() {
		name = e.iso.Name(name.String())
	}
	a.Name = name
	return a
}

// Load reads site's property from receiver.
func (e *Engine) Load(site *Site, receiver vm.Value) (vm.Value, error) {
	a := e.access(receiver, site.Name)
	prev := e.dispatch(site, a)
	if prev != nil {
		v, err := prev.Invoke(a)
		if err != ErrCacheMiss {
			site.Hits++
			return v, err
		}
	}
	site.Misses++
	e.updateCaches(site, a, prev)
	return e.iso.GetProperty(receiver, a.Name)
}

// Store writes value to site's property on receiver.
func (e *Engine) Store(site *Site, receiver, value vm.Value, strict bool) error {
	a := e.access(receiver, site.Name)
	a.Value = value
	a.Strict = strict
	prev := e.dispatch(site, a)
	if prev != nil {
		_, err := prev.Invoke(a)
		if err != ErrCacheMiss {
			site.Hits++
			return err
		}
	}
	site.Misses++
	e.updateCaches(site, a, prev)
	return e.iso.SetProperty(receiver, a.Name, value, strict)
}

// KeyedLoad reads receiver[key]. Sites that see keys other than array
// indices go generic.
func (e *Engine) KeyedLoad(site *Site, receiver, key vm.Value) (vm.Value, error) {
	a := e.access(receiver, nil)
	idx, ok := e.iso.ToArrayIndex(key)
	if !ok {
		site.Misses++
		e.goGeneric(site, "non-index key")
		return e.iso.KeyedGetProperty(receiver, key)
	}
	a.Index = idx
	prev := e.dispatch(site, a)
	if prev != nil {
		v, err := prev.Invoke(a)
		if err != ErrCacheMiss {
			site.Hits++
			return v, err
		}
	}
	site.Misses++
	e.updateCaches(site, a, prev)
	return e.iso.KeyedGetProperty(receiver, key)
}

// KeyedStore writes receiver[key] = value.
func (e *Engine) KeyedStore(site *Site, receiver, key, value vm.Value, strict bool) error {
	a := e.access(receiver, nil)
	a.Value = value
	a.Strict = strict
	idx, ok := e.iso.ToArrayIndex(key)
	if !ok {
		site.Misses++
		e.goGeneric(site, "non-index key")
		return e.iso.KeyedSetProperty(receiver, key, value, strict)
	}
	a.Index = idx
	prev := e.dispatch(site, a)
	if prev != nil {
		_, err := prev.Invoke(a)
		if err != ErrCacheMiss {
			site.Hits++
			return err
		}
	}
	site.Misses++
	e.updateCaches(site, a, prev)
	return e.iso.KeyedSetProperty(receiver, key, value, strict)
}

// dispatch returns the handler site holds for the receiver, or nil.
// Entries invalidated since the last access are dropped first.
func (e *Engine) dispatch(site *Site, a *Access) Handler {
	if a.Shape == nil {
		return nil
	}
	from := site.State
	if n := site.prune(e.iso); n > 0 {
		e.Counters.Invalidations += uint64(n)
		e.traceSite(site, from, a.Shape, nil, ictrace.ReasonInvalidation, fmt.Sprintf("%d stale entries", n))
	}
	switch site.State {
	case Monomorphic, Polymorphic:
		return site.Lookup(a.Shape)
	case Megamorphic:
		return e.stubs.Get(a.Name, a.Shape, ComputeHandlerFlags(site.Kind, StubFast, OwnShape))
	}
	return nil
}

// goGeneric moves a keyed site straight to generic.
func (e *Engine) goGeneric(site *Site, reason string) {
	if site.State == Generic {
		return
	}
	from := site.State
	site.State = Generic
	site.entries = nil
	e.traceSite(site, from, nil, nil, ictrace.ReasonTransition, reason)
}

// ---------------------------------------------------------------------------
// Miss path
// ---------------------------------------------------------------------------

// updateCaches runs on a miss, before the runtime completes the access.
// prev is the handler that missed, if any.
func (e *Engine) updateCaches(site *Site, a *Access, prev Handler) {
	if a.Shape == nil || site.State == Generic {
		return
	}
	if prev != nil && prev.Kind() == HandlerSlow {
		return
	}
	if site.State == Uninitialized && e.cfg.Premonomorphic {
		site.State = Premonomorphic
		e.traceSite(site, Uninitialized, a.Shape, nil, ictrace.ReasonTransition, "")
		return
	}
	h, err := e.lookupOrCompile(site, a, prev)
	if err != nil {
		e.Counters.Uncacheable++
		e.log.Debugf("%s: %s", site, err)
		e.traceSite(site, site.State, a.Shape, nil, ictrace.ReasonUncacheable, err.Error())
		h = e.compiler.CompileSlow(site.Kind, a)
	}
	e.InstallHandler(site, a.Shape, h)
}

// LookupOrCompileHandler returns a handler for the access at site,
// reusing the handler cached on the receiver's shape when its guards
// still pass. The error wraps ErrUncacheable when the access cannot be
// specialized.
func (e *Engine) LookupOrCompileHandler(site *Site, a *Access) (Handler, error) {
	return e.lookupOrCompile(site, a, nil)
}

func (e *Engine) lookupOrCompile(site *Site, a *Access, failed Handler) (Handler, error) {
	if a.Shape == nil {
		return nil, uncacheable("access on %s", a.Receiver)
	}
	cacheShape, holder := a.Shape, OwnShape
	if a.Object == nil {
		cacheShape, holder = a.Shape.PrototypeShape(), PrototypeShape
	}
	flags := ComputeHandlerFlags(site.Kind, StubFast, holder)
	if site.Kind == KindKeyedStore && a.Object != nil {
		flags = ComputeKeyedStoreHandlerFlags(storeModeFor(a.Object, a.Index), StubFast)
	}

	if cacheShape != nil {
		if code := cacheShape.FindInCodeCache(a.Name, uint32(flags)); code != nil {
			h := code.(Handler)
			if h != failed && h.Valid(e.iso) && h.Frontend().Check(a) == nil {
				return h, nil
			}
			cacheShape.RemoveFromCodeCache(a.Name, uint32(flags), code)
		}
	}

	h, err := e.compile(site, a)
	if err != nil {
		return nil, err
	}
	// Compiling may have migrated the receiver.
	a.refresh()
	if cacheShape != nil && a.Object != nil {
		cacheShape = a.Shape
	}
	if cacheShape != nil && cacheable(h) {
		cacheShape.UpdateCodeCache(a.Name, uint32(flags), h)
	}
	return h, nil
}

func (e *Engine) compile(site *Site, a *Access) (Handler, error) {
	switch site.Kind {
	case KindLoad:
		return e.compiler.CompileLoad(a)
	case KindStore:
		return e.compiler.CompileStore(a)
	case KindKeyedLoad:
		return e.compiler.CompileKeyedLoad(a)
	case KindKeyedStore:
		mode := StoreStandard
		if a.Object != nil {
			mode = storeModeFor(a.Object, a.Index)
		}
		return e.compiler.CompileKeyedStore(a, mode, site.Shapes())
	case KindCall:
		return e.compiler.CompileCall(a)
	}
	return nil, uncacheable("no handlers for %s sites", site.Kind)
}

// cacheable reports whether h may be kept in a shape's code cache.
// Shared and transitioning handlers are not.
func cacheable(h Handler) bool {
	switch h.Kind() {
	case HandlerLoadNormal, HandlerStoreNormal, HandlerSlow, HandlerElementsTransitionAndStore:
		return false
	}
	return true
}

// InstallHandler records h as the handler for shape at site and advances
// the site's state.
func (e *Engine) InstallHandler(site *Site, shape *vm.Shape, h Handler) {
	from := site.State
	dropped := site.Update(shape, h, e.cfg.MaxPolymorphic)
	switch site.State {
	case Megamorphic:
		if from != Megamorphic {
			for _, d := range dropped {
				e.stubs.Set(site.Name, d.Shape, d.Handler)
			}
		} else {
			e.stubs.Set(site.Name, shape, h)
		}
	case Polymorphic:
		if site.Kind.IsKeyed() {
			e.sharePolymorphic(site)
		}
	}
	if site.State != from {
		e.traceSite(site, from, shape, h, ictrace.ReasonTransition, "")
	}
	if e.cfg.PrintCode {
		e.printCode(h)
	}
}

// sharePolymorphic replaces a keyed site's entries with an equal list
// already built for another site.
func (e *Engine) sharePolymorphic(site *Site) {
	key := polymorphicKey(site.Kind, site.entries)
	if v, ok := e.poly.Get(key); ok {
		if shared := v.([]Entry); e.entriesLive(shared) {
			site.entries = shared
			return
		}
	}
	e.poly.Add(key, site.entries)
	e.Counters.KeyedPolymorphicStubs++
}

func (e *Engine) entriesLive(entries []Entry) bool {
	for _, en := range entries {
		if en.Shape.IsDeprecated() || !en.Handler.Valid(e.iso) {
			return false
		}
	}
	return true
}

// InvalidateShape drops the handlers cached on s. Sites holding s notice
// on their next access.
func (e *Engine) InvalidateShape(s *vm.Shape) {
	n := s.CodeCacheLen()
	s.ClearCodeCache()
	e.Counters.Invalidations++
	e.log.Debugf("invalidated %s (%d cached handlers)", s, n)
	e.trace.Record(ictrace.Event{
		Isolate: e.iso.ID,
		Kind:    "shape",
		Shape:   s.ID(),
		Reason:  ictrace.ReasonInvalidation,
		Detail:  fmt.Sprintf("%d cached handlers", n),
		Time:    time.Now(),
	})
}

// NonMonomorphicStub returns the shared stub run by sites of kind in a
// state without per-shape handlers.
func (e *Engine) NonMonomorphicStub(kind Kind, state State) Handler {
	flags := ComputeFlags(kind, state, uint16(kind), StubFast, OwnShape)
	if h := e.nonMono[flags]; h != nil {
		return h
	}
	runtime := missEntry(kind)
	if state == Generic {
		runtime = slowEntry(kind)
	}
	h := &slowHandler{runtime: runtime}
	h.handlerBase = handlerBase{kind: HandlerSlow, flags: flags}
	e.iso.Heap.Allocate(h)
	e.nonMono[flags] = h
	return h
}

// Handlers returns what site currently runs: its per-shape handlers, or
// the shared stub of its state.
func (e *Engine) Handlers(site *Site) []Handler {
	switch site.State {
	case Monomorphic, Polymorphic:
		out := make([]Handler, len(site.entries))
		for i, en := range site.entries {
			out[i] = en.Handler
		}
		return out
	}
	return []Handler{e.NonMonomorphicStub(site.Kind, site.State)}
}

// ---------------------------------------------------------------------------
// Code printing and tracing
// ---------------------------------------------------------------------------

// Code assembles h's code template.
func (e *Engine) Code(h Handler) (*codegen.Code, error) {
	code, err := codegen.Assemble(h.Describe(e.refs))
	if err != nil {
		return nil, fmt.Errorf("assembling %s: %w", h, err)
	}
	return code, nil
}

func (e *Engine) printCode(h Handler) {
	code, err := e.Code(h)
	if err != nil {
		e.log.Warningf("%s", err)
		return
	}
	e.log.Infof("--- code for %s ---\n%s", h, codegen.Listing(code))
}

func (e *Engine) traceSite(site *Site, from State, shape *vm.Shape, h Handler, reason ictrace.Reason, detail string) {
	ev := ictrace.Event{
		Isolate: e.iso.ID,
		Site:    site.ID,
		Kind:    site.Kind.String(),
		From:    from.String(),
		To:      site.State.String(),
		Reason:  reason,
		Detail:  detail,
		Time:    time.Now(),
	}
	if site.Name != nil {
		ev.Name = site.Name.String()
	}
	if shape != nil {
		ev.Shape = shape.ID()
	}
	if h != nil {
		ev.Handler = h.Kind().String()
	}
	e.log.Debugf("%s: %s -> %s", site, from, site.State)
	e.trace.Record(ev)
}

func (e *Engine) traceCompare(site *CompareSite, from, to CompareState) {
	e.log.Debugf("compare#%d %s: %s -> %s", site.ID, site.Op, from, to)
	e.trace.Record(ictrace.Event{
		Isolate: e.iso.ID,
		Site:    site.ID,
		Kind:    KindCompare.String(),
		From:    from.String(),
		To:      to.String(),
		Reason:  ictrace.ReasonTransition,
		Detail:  site.Op.String(),
		Time:    time.Now(),
	})
}
