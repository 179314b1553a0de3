package ic

import (
	"errors"
	"testing"

	"github.com/chazu/shapecache/ictrace"
	"github.com/chazu/shapecache/vm"
)

func newTestEngine(t *testing.T) (*vm.Isolate, *Engine) {
	t.Helper()
	iso := vm.NewIsolate(vm.DefaultOptions())
	e, err := NewEngine(iso, DefaultConfig())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return iso, e
}

func newObjectWith(t *testing.T, iso *vm.Isolate, props ...any) *vm.JSObject {
	t.Helper()
	o := iso.NewObject()
	for i := 0; i+1 < len(props); i += 2 {
		setProp(t, iso, o, props[i].(string), props[i+1].(vm.Value))
	}
	return o
}

func setProp(t *testing.T, iso *vm.Isolate, o *vm.JSObject, name string, v vm.Value) {
	t.Helper()
	if err := iso.SetProperty(iso.ValueOf(o), iso.Name(name), v, true); err != nil {
		t.Fatalf("set %s: %v", name, err)
	}
}

func load(t *testing.T, e *Engine, site *Site, o *vm.JSObject) vm.Value {
	t.Helper()
	v, err := e.Load(site, e.iso.ValueOf(o))
	if err != nil {
		t.Fatalf("load %s: %v", site.Name, err)
	}
	return v
}

func store(t *testing.T, e *Engine, site *Site, o *vm.JSObject, v vm.Value) {
	t.Helper()
	if err := e.Store(site, e.iso.ValueOf(o), v, true); err != nil {
		t.Fatalf("store %s: %v", site.Name, err)
	}
}

func accessFor(iso *vm.Isolate, o *vm.JSObject, name string) *Access {
	a := newAccess(iso, iso.ValueOf(o))
	a.Name = iso.Name(name)
	return a
}

// ---------------------------------------------------------------------------
// Site state machine
// ---------------------------------------------------------------------------

func TestMonomorphicFieldLoad(t *testing.T) {
	iso, e := newTestEngine(t)
	o := newObjectWith(t, iso, "x", vm.FromSmi(7))
	site := e.Site(1, KindLoad, "x")

	for i := 0; i < 3; i++ {
		if v := load(t, e, site, o); v != vm.FromSmi(7) {
			t.Fatalf("load %d = %v", i, v)
		}
	}
	if site.State != Monomorphic {
		t.Fatalf("state = %s, want monomorphic", site.State)
	}
	if site.Hits != 1 || site.Misses != 2 {
		t.Errorf("hits/misses = %d/%d, want 1/2", site.Hits, site.Misses)
	}
	h := site.Lookup(o.Shape())
	if h == nil || h.Kind() != HandlerLoadField {
		t.Fatalf("handler = %v, want LoadField", h)
	}
	if got := o.Shape().FindInCodeCache(site.Name, uint32(h.Flags())); got != h {
		t.Errorf("handler not in the shape's code cache")
	}
}

func TestPremonomorphicCanBeDisabled(t *testing.T) {
	iso := vm.NewIsolate(vm.DefaultOptions())
	cfg := DefaultConfig()
	cfg.Premonomorphic = false
	e, err := NewEngine(iso, cfg)
	if err != nil {
		t.Fatal(err)
	}
	o := newObjectWith(t, iso, "x", vm.FromSmi(1))
	site := e.Site(1, KindLoad, "x")
	load(t, e, site, o)
	if site.State != Monomorphic {
		t.Errorf("state = %s, want monomorphic after one miss", site.State)
	}
}

func TestSiteStatesOnlyAdvance(t *testing.T) {
	iso, e := newTestEngine(t)
	ring := ictrace.NewRing(64)
	e.trace = ring
	site := e.Site(1, KindLoad, "x")

	var objs []*vm.JSObject
	for i := 0; i < 6; i++ {
		o := iso.NewObject()
		setProp(t, iso, o, string(rune('a'+i)), vm.FromSmi(0))
		setProp(t, iso, o, "x", vm.FromSmi(int64(i)))
		objs = append(objs, o)
	}

	want := []State{Premonomorphic, Monomorphic, Polymorphic, Polymorphic, Polymorphic, Megamorphic}
	prev := Uninitialized
	for i, o := range objs {
		if v := load(t, e, site, o); v != vm.FromSmi(int64(i)) {
			t.Fatalf("load %d = %v", i, v)
		}
		if site.State != want[i] {
			t.Fatalf("after shape %d: state = %s, want %s", i, site.State, want[i])
		}
		if site.State < prev {
			t.Fatalf("state went back from %s to %s", prev, site.State)
		}
		prev = site.State
	}

	// Megamorphic sites hit in the stub cache.
	hits := site.Hits
	for i, o := range objs[1:] {
		if v := load(t, e, site, o); v != vm.FromSmi(int64(i+1)) {
			t.Fatalf("megamorphic load = %v", v)
		}
	}
	if site.Hits != hits+5 {
		t.Errorf("megamorphic hits = %d, want %d", site.Hits-hits, 5)
	}

	var transitions int
	for _, ev := range ring.Events() {
		if ev.Reason == ictrace.ReasonTransition && ev.Site == site.ID {
			transitions++
		}
	}
	if transitions != 4 {
		t.Errorf("traced %d transitions, want 4", transitions)
	}
}

func TestPolymorphicNeverDuplicatesShapes(t *testing.T) {
	iso, e := newTestEngine(t)
	site := e.Site(1, KindLoad, "x")
	a := newObjectWith(t, iso, "x", vm.FromSmi(1))
	b := newObjectWith(t, iso, "y", vm.FromSmi(0), "x", vm.FromSmi(2))

	for i := 0; i < 4; i++ {
		load(t, e, site, a)
		load(t, e, site, b)
	}
	if site.State != Polymorphic {
		t.Fatalf("state = %s", site.State)
	}
	if n := len(site.Entries()); n != 2 {
		t.Errorf("%d entries, want 2", n)
	}
}

func TestMajorGCFlushesStubCache(t *testing.T) {
	iso, e := newTestEngine(t)
	site := e.Site(1, KindLoad, "x")
	for i := 0; i < 6; i++ {
		o := iso.NewObject()
		setProp(t, iso, o, string(rune('p'+i)), vm.Null)
		setProp(t, iso, o, "x", vm.True)
		load(t, e, site, o)
	}
	if site.State != Megamorphic || e.StubCache().Len() == 0 {
		t.Fatalf("state = %s, stub cache entries = %d", site.State, e.StubCache().Len())
	}

	iso.Heap.CollectGarbage(false)
	if e.StubCache().Len() == 0 {
		t.Fatal("minor gc must not flush the stub cache")
	}
	iso.Heap.CollectGarbage(true)
	if n := e.StubCache().Len(); n != 0 {
		t.Errorf("%d entries after major gc", n)
	}
	if e.Counters.StubCacheClears != 1 {
		t.Errorf("clears = %d", e.Counters.StubCacheClears)
	}
}

// ---------------------------------------------------------------------------
// Stores and transitions
// ---------------------------------------------------------------------------

func TestStoreTransitionIsShared(t *testing.T) {
	iso, e := newTestEngine(t)
	objs := []*vm.JSObject{
		newObjectWith(t, iso, "x", vm.FromSmi(1)),
		newObjectWith(t, iso, "x", vm.FromSmi(1)),
		newObjectWith(t, iso, "x", vm.FromSmi(1)),
	}
	s := objs[0].Shape()
	site := e.Site(1, KindStore, "y")
	for _, o := range objs {
		store(t, e, site, o, vm.FromSmi(2))
	}

	y := iso.Name("y")
	next := s.TransitionForNewProperty(y, vm.AttrNone, vm.ReprSmi)
	if again := s.TransitionForNewProperty(y, vm.AttrNone, vm.ReprSmi); again != next {
		t.Fatal("transitions are not canonical")
	}
	for i, o := range objs {
		if o.Shape() != next {
			t.Errorf("object %d has %s, want %s", i, o.Shape(), next)
		}
		v, err := iso.GetProperty(iso.ValueOf(o), y)
		if err != nil || v != vm.FromSmi(2) {
			t.Errorf("object %d: y = %v, %v", i, v, err)
		}
	}
	if site.Hits != 1 {
		t.Errorf("hits = %d, want 1", site.Hits)
	}
	if h := site.Lookup(s); h == nil || h.Kind() != HandlerStoreTransition {
		t.Errorf("handler = %v, want StoreTransition", h)
	}
}

func TestStoreTransitionExtendsStorage(t *testing.T) {
	iso, e := newTestEngine(t)
	var objs []*vm.JSObject
	for i := 0; i < 3; i++ {
		o := iso.NewObject()
		for _, n := range []string{"a", "b", "c", "d", "e", "f", "g"} {
			setProp(t, iso, o, n, vm.FromSmi(0))
		}
		objs = append(objs, o)
	}
	site := e.Site(1, KindStore, "z")
	for _, o := range objs {
		store(t, e, site, o, vm.FromSmi(9))
	}
	for i, o := range objs {
		v, err := iso.GetProperty(iso.ValueOf(o), iso.Name("z"))
		if err != nil || v != vm.FromSmi(9) {
			t.Errorf("object %d: z = %v, %v", i, v, err)
		}
	}
}

func TestDoubleFieldRoundTrip(t *testing.T) {
	iso, e := newTestEngine(t)
	o := newObjectWith(t, iso, "x", vm.FromFloat64(1.5))
	storeSite := e.Site(1, KindStore, "x")
	loadSite := e.Site(2, KindLoad, "x")

	for i := int64(1); i <= 3; i++ {
		store(t, e, storeSite, o, vm.FromSmi(i))
		if v := load(t, e, loadSite, o); v.NumberValue() != float64(i) {
			t.Fatalf("x = %v, want %d", v, i)
		}
	}
	if storeSite.State != Monomorphic || storeSite.Hits == 0 {
		t.Fatalf("store site %s with %d hits", storeSite.State, storeSite.Hits)
	}
	d, _, ok := o.Shape().LookupOwn(iso.Name("x"))
	if !ok || d.Repr != vm.ReprDouble {
		t.Errorf("x representation = %s, want double", d.Repr)
	}

	store(t, e, storeSite, o, vm.FromFloat64(-0.25))
	if v := load(t, e, loadSite, o); v.NumberValue() != -0.25 {
		t.Errorf("x = %v, want -0.25", v)
	}
}

// ---------------------------------------------------------------------------
// Guards and invalidation
// ---------------------------------------------------------------------------

func TestStaleHandlerMisses(t *testing.T) {
	iso, e := newTestEngine(t)
	o := newObjectWith(t, iso, "x", vm.FromSmi(1))
	s1 := o.Shape()

	loadH, err := e.Compiler().CompileLoad(accessFor(iso, o, "x"))
	if err != nil {
		t.Fatal(err)
	}
	sa := accessFor(iso, o, "x")
	sa.Value = vm.FromSmi(5)
	storeH, err := e.Compiler().CompileStore(sa)
	if err != nil {
		t.Fatal(err)
	}

	setProp(t, iso, o, "y", vm.FromSmi(2))
	if o.Shape() == s1 {
		t.Fatal("adding y must change the shape")
	}

	if _, err := loadH.Invoke(accessFor(iso, o, "x")); err != ErrCacheMiss {
		t.Errorf("stale load: err = %v, want miss", err)
	}
	sa = accessFor(iso, o, "x")
	sa.Value = vm.FromSmi(5)
	if _, err := storeH.Invoke(sa); err != ErrCacheMiss {
		t.Errorf("stale store: err = %v, want miss", err)
	}
	if v, _ := iso.GetProperty(iso.ValueOf(o), iso.Name("x")); v != vm.FromSmi(1) {
		t.Errorf("a missed store wrote x = %v", v)
	}
}

func TestDeprecationInvalidatesSites(t *testing.T) {
	iso, e := newTestEngine(t)
	o1 := newObjectWith(t, iso, "x", vm.FromSmi(1))
	o2 := newObjectWith(t, iso, "x", vm.FromSmi(2))
	s := o1.Shape()
	site := e.Site(1, KindLoad, "x")
	load(t, e, site, o2)
	load(t, e, site, o2)
	if site.State != Monomorphic || s.CodeCacheLen() == 0 {
		t.Fatalf("state = %s, code cache = %d", site.State, s.CodeCacheLen())
	}

	setProp(t, iso, o1, "x", vm.FromFloat64(0.5))
	if !s.IsDeprecated() {
		t.Fatal("generalizing x must deprecate the shape")
	}
	if s.CodeCacheLen() != 0 {
		t.Errorf("deprecated shape still caches %d handlers", s.CodeCacheLen())
	}
	if e.Counters.Invalidations == 0 {
		t.Error("no invalidation counted")
	}

	if v := load(t, e, site, o2); v != vm.FromSmi(2) {
		t.Errorf("o2.x = %v", v)
	}
	if site.Lookup(s) != nil {
		t.Error("site still dispatches on the deprecated shape")
	}
}

func TestGlobalCellInvalidation(t *testing.T) {
	iso, e := newTestEngine(t)
	global := iso.Global
	setProp(t, iso, global, "g", vm.FromSmi(1))
	site := e.Site(1, KindLoad, "g")

	for i := 0; i < 3; i++ {
		if v := load(t, e, site, global); v != vm.FromSmi(1) {
			t.Fatalf("g = %v", v)
		}
	}
	if h := site.Lookup(global.Shape()); h == nil || h.Kind() != HandlerLoadGlobal {
		t.Fatalf("handler = %v, want LoadGlobal", h)
	}

	if ok, err := iso.DeleteProperty(global, iso.Name("g")); !ok || err != nil {
		t.Fatalf("delete g: %v, %v", ok, err)
	}
	misses := site.Misses
	if v := load(t, e, site, global); v != vm.Undefined {
		t.Errorf("deleted g = %v", v)
	}
	if site.Misses != misses+1 {
		t.Error("load of a deleted global must miss")
	}

	load(t, e, site, global)
	setProp(t, iso, global, "g", vm.FromSmi(3))
	if v := load(t, e, site, global); v != vm.FromSmi(3) {
		t.Errorf("redefined g = %v", v)
	}
}

func TestGlobalStore(t *testing.T) {
	iso, e := newTestEngine(t)
	global := iso.Global
	setProp(t, iso, global, "counter", vm.FromSmi(0))
	site := e.Site(1, KindStore, "counter")
	for i := int64(1); i <= 3; i++ {
		store(t, e, site, global, vm.FromSmi(i))
	}
	if h := site.Lookup(global.Shape()); h == nil || h.Kind() != HandlerStoreGlobal {
		t.Fatalf("handler = %v, want StoreGlobal", h)
	}
	if v, _ := iso.GetProperty(iso.ValueOf(global), iso.Name("counter")); v != vm.FromSmi(3) {
		t.Errorf("counter = %v", v)
	}
}

// ---------------------------------------------------------------------------
// Accessors, interceptors and exceptions
// ---------------------------------------------------------------------------

func TestGetterExceptionPropagates(t *testing.T) {
	iso, e := newTestEngine(t)
	getter := iso.NewFunction("boom", func(*vm.Isolate, vm.Value, []vm.Value) (vm.Value, error) {
		return vm.Undefined, vm.NewTypeError("boom")
	})
	o := iso.NewObject()
	iso.DefineAccessor(o, iso.Name("p"), iso.ValueOf(getter), vm.Undefined, vm.AttrNone)
	site := e.Site(1, KindLoad, "p")

	for i := 0; i < 3; i++ {
		_, err := e.Load(site, iso.ValueOf(o))
		var exc *vm.Exception
		if !errors.As(err, &exc) || exc.Kind != vm.ErrorType {
			t.Fatalf("load %d: err = %v, want TypeError", i, err)
		}
	}
	if h := site.Lookup(o.Shape()); h == nil || h.Kind() != HandlerLoadViaGetter {
		t.Fatalf("handler = %v, want LoadViaGetter", h)
	}
	if site.Hits != 1 {
		t.Errorf("hits = %d; a thrown exception is still a hit", site.Hits)
	}
}

func TestSetterSeesReceiver(t *testing.T) {
	iso, e := newTestEngine(t)
	var seen []vm.Value
	setter := iso.NewFunction("set", func(_ *vm.Isolate, this vm.Value, args []vm.Value) (vm.Value, error) {
		seen = append(seen, args[0])
		return vm.Undefined, nil
	})
	proto := iso.NewObject()
	iso.DefineAccessor(proto, iso.Name("p"), vm.Undefined, iso.ValueOf(setter), vm.AttrNone)
	o := iso.NewObjectWithPrototype(proto)
	site := e.Site(1, KindStore, "p")
	for i := int64(0); i < 3; i++ {
		store(t, e, site, o, vm.FromSmi(i))
	}
	if len(seen) != 3 || seen[2] != vm.FromSmi(2) {
		t.Errorf("setter saw %v", seen)
	}
	if h := site.Lookup(o.Shape()); h == nil || h.Kind() != HandlerStoreViaSetter {
		t.Errorf("handler = %v, want StoreViaSetter", h)
	}
}

func TestNativeAccessorLoad(t *testing.T) {
	iso, e := newTestEngine(t)
	tmpl := &vm.FunctionTemplate{Name: "Point"}
	tmpl.SetAccessor("norm", func(_ *vm.Name, info *vm.PropertyCallbackArguments) error {
		info.SetReturnValue(vm.FromSmi(5))
		return nil
	}, nil, vm.Undefined)
	o := iso.NewInstance(tmpl, iso.ObjectPrototype)
	site := e.Site(1, KindLoad, "norm")
	for i := 0; i < 3; i++ {
		if v := load(t, e, site, o); v != vm.FromSmi(5) {
			t.Fatalf("norm = %v", v)
		}
	}
	if h := site.Lookup(o.Shape()); h == nil || h.Kind() != HandlerLoadCallback {
		t.Errorf("handler = %v, want LoadCallback", h)
	}
}

func TestInterceptorFallsThrough(t *testing.T) {
	iso, e := newTestEngine(t)
	tmpl := &vm.FunctionTemplate{
		Name: "Magic",
		NamedInterceptor: &vm.InterceptorInfo{
			NamedGetter: func(name *vm.Name, info *vm.PropertyCallbackArguments) error {
				if name.String() == "magic" {
					info.SetReturnValue(vm.FromSmi(99))
				}
				return nil
			},
		},
	}
	o := iso.NewInstance(tmpl, iso.ObjectPrototype)
	setProp(t, iso, o, "plain", vm.FromSmi(5))

	magic := e.Site(1, KindLoad, "magic")
	plain := e.Site(2, KindLoad, "plain")
	for i := 0; i < 3; i++ {
		if v := load(t, e, magic, o); v != vm.FromSmi(99) {
			t.Fatalf("magic = %v", v)
		}
		if v := load(t, e, plain, o); v != vm.FromSmi(5) {
			t.Fatalf("plain = %v", v)
		}
	}
	if h := plain.Lookup(o.Shape()); h == nil || h.Kind() != HandlerLoadInterceptor {
		t.Fatalf("handler = %v, want LoadInterceptor", h)
	}
	if plain.Hits != 1 {
		t.Errorf("plain hits = %d", plain.Hits)
	}
}

// ---------------------------------------------------------------------------
// Dictionary receivers, primitives and lengths
// ---------------------------------------------------------------------------

func TestDictionaryReceiverUsesNormalHandler(t *testing.T) {
	iso, e := newTestEngine(t)
	o := iso.NewDictionaryObject(iso.ObjectPrototype)
	setProp(t, iso, o, "k", vm.FromSmi(1))
	loadSite := e.Site(1, KindLoad, "k")
	storeSite := e.Site(2, KindStore, "k")
	for i := int64(2); i <= 4; i++ {
		store(t, e, storeSite, o, vm.FromSmi(i))
		if v := load(t, e, loadSite, o); v != vm.FromSmi(i) {
			t.Fatalf("k = %v, want %d", v, i)
		}
	}
	if h := loadSite.Lookup(o.Shape()); h == nil || h.Kind() != HandlerLoadNormal {
		t.Errorf("load handler = %v", h)
	}
	if h := storeSite.Lookup(o.Shape()); h == nil || h.Kind() != HandlerStoreNormal {
		t.Errorf("store handler = %v", h)
	}
	if o.Shape().CodeCacheLen() != 0 {
		t.Error("shared normal handlers must not enter the code cache")
	}
}

func TestStringLength(t *testing.T) {
	iso, e := newTestEngine(t)
	site := e.Site(1, KindLoad, "length")
	for _, s := range []string{"abc", "héllo", "🙂"} {
		v, err := e.Load(site, iso.NewString(s))
		if err != nil {
			t.Fatal(err)
		}
		want := map[string]int64{"abc": 3, "héllo": 5, "🙂": 2}[s]
		if v != vm.FromSmi(want) {
			t.Errorf("%q.length = %v, want %d", s, v, want)
		}
	}
	if site.State != Monomorphic || site.Hits == 0 {
		t.Errorf("site %s with %d hits", site.State, site.Hits)
	}
}

func TestArrayLength(t *testing.T) {
	iso, e := newTestEngine(t)
	arr := iso.NewArrayFrom(vm.FromSmi(1), vm.FromSmi(2), vm.FromSmi(3))
	loadSite := e.Site(1, KindLoad, "length")
	storeSite := e.Site(2, KindStore, "length")
	for i := 0; i < 3; i++ {
		if v := load(t, e, loadSite, arr); v != vm.FromSmi(3) {
			t.Fatalf("length = %v", v)
		}
	}
	for i := 0; i < 3; i++ {
		store(t, e, storeSite, arr, vm.FromSmi(2))
	}
	if arr.Length() != 2 {
		t.Errorf("length after store = %d", arr.Length())
	}
	if h := storeSite.Lookup(arr.Shape()); h == nil || h.Kind() != HandlerStoreArrayLength {
		t.Errorf("handler = %v, want StoreArrayLength", h)
	}
}

func TestNonexistentLoad(t *testing.T) {
	iso, e := newTestEngine(t)
	o := newObjectWith(t, iso, "x", vm.FromSmi(1))
	site := e.Site(1, KindLoad, "missing")
	for i := 0; i < 3; i++ {
		if v := load(t, e, site, o); v != vm.Undefined {
			t.Fatalf("missing = %v", v)
		}
	}
	if h := site.Lookup(o.Shape()); h == nil || h.Kind() != HandlerLoadNonexistent {
		t.Fatalf("handler = %v, want LoadNonexistent", h)
	}

	// Defining the name on the prototype must not be hidden by the cache.
	setProp(t, iso, iso.ObjectPrototype, "missing", vm.FromSmi(4))
	if v := load(t, e, site, o); v != vm.FromSmi(4) {
		t.Errorf("missing after definition = %v", v)
	}
}

func TestUncacheableAccessGoesSlow(t *testing.T) {
	iso, e := newTestEngine(t)
	ring := ictrace.NewRing(16)
	e.trace = ring
	o := iso.NewObjectWithPrototype(nil)
	site := e.Site(1, KindLoad, "nothing")
	for i := 0; i < 4; i++ {
		if v := load(t, e, site, o); v != vm.Undefined {
			t.Fatalf("load = %v", v)
		}
	}
	if e.Counters.Uncacheable != 1 {
		t.Errorf("uncacheable = %d, want 1", e.Counters.Uncacheable)
	}
	if h := site.Lookup(o.Shape()); h == nil || h.Kind() != HandlerSlow {
		t.Fatalf("handler = %v, want Slow", h)
	}
	found := false
	for _, ev := range ring.Events() {
		found = found || ev.Reason == ictrace.ReasonUncacheable
	}
	if !found {
		t.Error("uncacheable access not traced")
	}
}

func TestStatsAggregate(t *testing.T) {
	iso, e := newTestEngine(t)
	o := newObjectWith(t, iso, "x", vm.FromSmi(1))
	site := e.Site(1, KindLoad, "x")
	for i := 0; i < 4; i++ {
		load(t, e, site, o)
	}
	e.Site(2, KindLoad, "unused")

	stats := CollectICStats(e)
	if stats.TotalSites != 2 || stats.Monomorphic != 1 || stats.Empty != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.TotalHits != 2 || stats.TotalMisses != 2 || stats.HitRate != 50 {
		t.Errorf("hits/misses/rate = %d/%d/%.1f", stats.TotalHits, stats.TotalMisses, stats.HitRate)
	}
	if stats.MonomorphicRate != 100 {
		t.Errorf("monomorphic rate = %.1f", stats.MonomorphicRate)
	}

	var total ICStats
	total.Add(stats)
	total.Add(stats)
	if total.TotalSites != 4 || total.HitRate != 50 {
		t.Errorf("summed stats = %+v", total)
	}
}

func TestPrintCode(t *testing.T) {
	iso := vm.NewIsolate(vm.DefaultOptions())
	cfg := DefaultConfig()
	cfg.PrintCode = true
	e, err := NewEngine(iso, cfg)
	if err != nil {
		t.Fatal(err)
	}
	o := newObjectWith(t, iso, "x", vm.FromSmi(1))
	site := e.Site(1, KindLoad, "x")
	load(t, e, site, o)
	load(t, e, site, o)

	code, err := e.Code(site.Lookup(o.Shape()))
	if err != nil {
		t.Fatal(err)
	}
	if len(code.Insts) == 0 {
		t.Error("empty code")
	}
	for _, h := range e.Handlers(e.Site(2, KindStore, "y")) {
		if h.Kind() != HandlerSlow || h.Flags().State() != Uninitialized {
			t.Errorf("uninitialized site runs %v (%s)", h, h.Flags())
		}
	}
}
