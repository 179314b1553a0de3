package ic

import "testing"

func TestFlagsPacking(t *testing.T) {
	f := ComputeFlags(KindKeyedStore, Polymorphic, 0x1234, StubNormal, PrototypeShape)
	if f.Kind() != KindKeyedStore || f.State() != Polymorphic || f.Type() != StubNormal ||
		f.CacheHolder() != PrototypeShape || f.Extra() != 0x1234 {
		t.Errorf("unpacked %s %s %d %d %#x", f.Kind(), f.State(), f.Type(), f.CacheHolder(), f.Extra())
	}
	if g := f.WithState(Megamorphic); g.State() != Megamorphic || g.Extra() != 0x1234 || g.Kind() != KindKeyedStore {
		t.Errorf("WithState changed other fields: %s", g)
	}
}

func TestHandlerFlags(t *testing.T) {
	f := ComputeHandlerFlags(KindCall, StubFast, OwnShape)
	if f.Kind() != KindHandler || f.ServedKind() != KindCall || f.State() != Monomorphic {
		t.Errorf("handler flags %s", f)
	}
	if f.String() != "handler(call)" {
		t.Errorf("String() = %q", f.String())
	}
	if m := ComputeMonomorphicFlags(KindLoad, 0, OwnShape); m.String() != "load/monomorphic" {
		t.Errorf("String() = %q", m.String())
	}

	for _, mode := range []StoreMode{StoreStandard, StoreGrow, StoreIgnoreOutOfBounds} {
		k := ComputeKeyedStoreHandlerFlags(mode, StubFast)
		if k.StoreMode() != mode || k.ServedKind() != KindKeyedStore {
			t.Errorf("%s: mode %s served %s", mode, k.StoreMode(), k.ServedKind())
		}
	}
	if ComputeKeyedStoreHandlerFlags(StoreGrow, StubFast) == ComputeKeyedStoreHandlerFlags(StoreStandard, StubFast) {
		t.Error("store modes share flags")
	}
}

func TestFlagsForStubCache(t *testing.T) {
	a := ComputeFlags(KindHandler, Monomorphic, uint16(KindLoad), StubFast, OwnShape)
	b := ComputeFlags(KindHandler, Megamorphic, uint16(KindLoad), StubNormal, PrototypeShape)
	if a == b || a.ForStubCache() != b.ForStubCache() {
		t.Errorf("%#x and %#x should differ only in ignored bits", a, b)
	}
	c := ComputeFlags(KindHandler, Monomorphic, uint16(KindStore), StubFast, OwnShape)
	if a.ForStubCache() == c.ForStubCache() {
		t.Error("served kind ignored by the stub cache")
	}
	if got := a.ForStubCache(); got.State() != Uninitialized || got.Kind() != KindHandler {
		t.Errorf("stripped flags %s", got)
	}
}

func TestKindPredicates(t *testing.T) {
	for _, k := range []Kind{KindKeyedLoad, KindKeyedStore} {
		if !k.IsKeyed() {
			t.Errorf("%s not keyed", k)
		}
	}
	if KindLoad.IsKeyed() || KindCall.IsStore() || !KindStore.IsStore() {
		t.Error("kind predicates wrong")
	}
	if Kind(99).String() != "?" || State(99).String() != "?" {
		t.Error("out of range names")
	}
}
