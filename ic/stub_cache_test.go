package ic

import (
	"fmt"
	"testing"

	"github.com/chazu/shapecache/vm"
)

func testHandler(iso *vm.Isolate, served Kind) Handler {
	h := &loadNonexistentHandler{handlerBase: handlerBase{
		kind:  HandlerLoadNonexistent,
		flags: ComputeHandlerFlags(served, StubFast, OwnShape),
	}}
	iso.Heap.Allocate(h)
	return h
}

// collidingNames returns two names whose keys share a primary slot for
// shape and flags.
func collidingNames(t *testing.T, iso *vm.Isolate, c *StubCache, shape *vm.Shape, flags Flags) (*vm.Name, *vm.Name) {
	t.Helper()
	seen := make(map[uint32]*vm.Name)
	for i := 0; i < 1000; i++ {
		n := iso.Name(fmt.Sprintf("k%d", i))
		p := c.PrimaryOffset(n, shape, flags)
		if prev := seen[p]; prev != nil {
			return prev, n
		}
		seen[p] = n
	}
	t.Fatal("no primary collision found")
	return nil, nil
}

func TestStubCacheSizes(t *testing.T) {
	iso := vm.NewIsolate(vm.DefaultOptions())
	if _, err := NewStubCache(iso.Heap, 6, 4); err == nil {
		t.Error("accepted a primary table of 6")
	}
	if _, err := NewStubCache(iso.Heap, 8, 0); err == nil {
		t.Error("accepted an empty secondary table")
	}
	c, err := NewStubCache(iso.Heap, 8, 4)
	if err != nil {
		t.Fatal(err)
	}
	if !c.IsOld() {
		t.Error("stub cache must be allocated old")
	}
}

func TestStubCacheCollisionMovesToSecondary(t *testing.T) {
	iso := vm.NewIsolate(vm.DefaultOptions())
	c, err := NewStubCache(iso.Heap, 8, 8)
	if err != nil {
		t.Fatal(err)
	}
	shape := iso.NewObject().Shape()
	flags := ComputeHandlerFlags(KindLoad, StubFast, OwnShape)
	n1, n2 := collidingNames(t, iso, c, shape, flags)
	h1, h2 := testHandler(iso, KindLoad), testHandler(iso, KindLoad)

	c.Set(n1, shape, h1)
	c.Set(n2, shape, h2)

	p := c.PrimaryOffset(n1, shape, flags)
	if c.primary[p].name != n2 || c.primary[p].handler != h2 {
		t.Fatalf("primary[%d] holds %v", p, c.primary[p].name)
	}
	s := c.SecondaryOffset(n1, flags, p)
	if c.secondary[s].name != n1 || c.secondary[s].handler != h1 {
		t.Fatalf("secondary[%d] holds %v", s, c.secondary[s].name)
	}

	if got := c.Get(n1, shape, flags); got != h1 {
		t.Errorf("Get(%s) = %v, want the displaced handler", n1, got)
	}
	if got := c.Get(n2, shape, flags); got != h2 {
		t.Errorf("Get(%s) = %v", n2, got)
	}
	if c.Len() != 2 || c.Updates != 2 {
		t.Errorf("len = %d, updates = %d", c.Len(), c.Updates)
	}

	// Both installs stored a young handler into the old cache.
	if !iso.Heap.IsRemembered(c, int(p)*stubCacheEntrySize+stubCacheHandlerSlot) {
		t.Error("primary handler slot not remembered")
	}
	if !iso.Heap.IsRemembered(c, (len(c.primary)+int(s))*stubCacheEntrySize+stubCacheHandlerSlot) {
		t.Error("secondary handler slot not remembered")
	}
}

func TestStubCacheReplacesSameKey(t *testing.T) {
	iso := vm.NewIsolate(vm.DefaultOptions())
	c, _ := NewStubCache(iso.Heap, 8, 8)
	shape := iso.NewObject().Shape()
	n := iso.Name("x")
	h1, h2 := testHandler(iso, KindLoad), testHandler(iso, KindLoad)
	c.Set(n, shape, h1)
	c.Set(n, shape, h2)
	if c.Len() != 1 {
		t.Errorf("len = %d, want 1", c.Len())
	}
	if got := c.Get(n, shape, h2.Flags()); got != h2 {
		t.Errorf("Get = %v, want the newer handler", got)
	}
}

func TestStubCacheKeepsOtherKindForSameKey(t *testing.T) {
	iso := vm.NewIsolate(vm.DefaultOptions())
	// A single primary slot makes every key collide.
	c, err := NewStubCache(iso.Heap, 1, 8)
	if err != nil {
		t.Fatal(err)
	}
	shape := iso.NewObject().Shape()
	n := iso.Name("x")
	load, store := testHandler(iso, KindLoad), testHandler(iso, KindStore)
	c.Set(n, shape, load)
	c.Set(n, shape, store)

	if c.Len() != 2 {
		t.Errorf("len = %d, want 2", c.Len())
	}
	if got := c.Get(n, shape, store.Flags()); got != store {
		t.Errorf("store Get = %v", got)
	}
	if got := c.Get(n, shape, load.Flags()); got != load {
		t.Errorf("load Get = %v, want the displaced load handler", got)
	}
}

func TestStubCacheNoFalsePositives(t *testing.T) {
	iso := vm.NewIsolate(vm.DefaultOptions())
	c, _ := NewStubCache(iso.Heap, 8, 8)
	s1 := iso.NewObject().Shape()
	s2 := iso.NewArray(vm.FastSmiElements, 0).Shape()
	x, y := iso.Name("x"), iso.Name("y")
	h := testHandler(iso, KindLoad)
	c.Set(x, s1, h)

	loadFlags := ComputeHandlerFlags(KindLoad, StubFast, OwnShape)
	cases := []struct {
		name  *vm.Name
		shape *vm.Shape
		flags Flags
	}{
		{y, s1, loadFlags},
		{x, s2, loadFlags},
		{x, s1, ComputeHandlerFlags(KindStore, StubFast, OwnShape)},
		{x, s1, ComputeHandlerFlags(KindCall, StubFast, OwnShape)},
		{nil, s1, loadFlags},
		{x, nil, loadFlags},
	}
	for i, tc := range cases {
		if got := c.Get(tc.name, tc.shape, tc.flags); got != nil {
			t.Errorf("case %d: got %v", i, got)
		}
	}

	// State, stub type and cache holder are not part of the key.
	if got := c.Get(x, s1, ComputeFlags(KindHandler, Megamorphic, uint16(KindLoad), StubNormal, PrototypeShape)); got != h {
		t.Errorf("lookup ignoring state bits = %v", got)
	}
}

func TestStubCacheClear(t *testing.T) {
	iso := vm.NewIsolate(vm.DefaultOptions())
	c, _ := NewStubCache(iso.Heap, 8, 8)
	shape := iso.NewObject().Shape()
	for i := 0; i < 5; i++ {
		c.Set(iso.Name(fmt.Sprintf("p%d", i)), shape, testHandler(iso, KindLoad))
	}
	if c.Len() == 0 {
		t.Fatal("nothing cached")
	}
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("len after clear = %d", c.Len())
	}
	if got := c.Get(iso.Name("p0"), shape, ComputeHandlerFlags(KindLoad, StubFast, OwnShape)); got != nil {
		t.Errorf("cleared cache returned %v", got)
	}
}

func TestCollectMatchingShapes(t *testing.T) {
	iso := vm.NewIsolate(vm.DefaultOptions())
	c, _ := NewStubCache(iso.Heap, 64, 16)
	x := iso.Name("x")
	o1 := iso.NewObject()
	if err := iso.SetProperty(iso.ValueOf(o1), x, vm.FromSmi(1), true); err != nil {
		t.Fatal(err)
	}
	o2 := iso.NewArray(vm.FastSmiElements, 0)
	o3 := iso.NewObjectWithPrototype(nil)

	c.Set(x, o1.Shape(), testHandler(iso, KindLoad))
	c.Set(x, o2.Shape(), testHandler(iso, KindLoad))
	c.Set(x, o3.Shape(), testHandler(iso, KindStore))
	c.Set(iso.Name("y"), o3.Shape(), testHandler(iso, KindLoad))

	got := c.CollectMatchingShapes(iso, x, ComputeHandlerFlags(KindLoad, StubFast, OwnShape))
	if len(got) != 2 {
		t.Fatalf("collected %d shapes, want 2", len(got))
	}

	// Deprecated shapes are skipped.
	if err := iso.SetProperty(iso.ValueOf(o1), x, vm.FromFloat64(0.5), true); err != nil {
		t.Fatal(err)
	}
	got = c.CollectMatchingShapes(iso, x, ComputeHandlerFlags(KindLoad, StubFast, OwnShape))
	if len(got) != 1 || got[0] != o2.Shape() {
		t.Errorf("collected %v after deprecation", got)
	}
}
