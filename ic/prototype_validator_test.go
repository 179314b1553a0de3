package ic

import (
	"errors"
	"testing"

	"github.com/chazu/shapecache/vm"
)

func guardKinds(f *Frontend) []string {
	var out []string
	for _, g := range f.Guards {
		switch g.(type) {
		case *ShapeCheck:
			out = append(out, "shape")
		case *NegativeLookup:
			out = append(out, "negative")
		case *PropertyCellCheck:
			out = append(out, "cell")
		case *AccessCheck:
			out = append(out, "access")
		case *PrimitiveCheck:
			out = append(out, "primitive")
		case *CellValueCheck:
			out = append(out, "value")
		}
	}
	return out
}

func sameKinds(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestCheckPrototypesThroughDictionary(t *testing.T) {
	iso, e := newTestEngine(t)
	p2 := newObjectWith(t, iso, "q", vm.FromSmi(1))
	p1 := iso.NewDictionaryObject(p2)
	r := iso.NewObjectWithPrototype(p1)
	q := iso.Name("q")

	f, err := CheckPrototypes(iso, r.Shape(), r, p2, q)
	if err != nil {
		t.Fatal(err)
	}
	if got := guardKinds(f); !sameKinds(got, []string{"shape", "negative", "shape"}) {
		t.Fatalf("guards = %v", got)
	}
	if f.Depth != 2 || f.Holder != p2 {
		t.Errorf("depth %d holder %v", f.Depth, f.Holder)
	}
	neg := f.Guards[1].(*NegativeLookup)
	if neg.Object != p1 || neg.Depth != 1 {
		t.Errorf("negative lookup on %v at depth %d", neg.Object, neg.Depth)
	}
	if err := f.Check(accessFor(iso, r, "q")); err != nil {
		t.Errorf("fresh frontend fails: %v", err)
	}

	// Through the engine: cache the load, then shadow q on p1.
	site := e.Site(1, KindLoad, "q")
	for i := 0; i < 3; i++ {
		if v := load(t, e, site, r); v != vm.FromSmi(1) {
			t.Fatalf("q = %v", v)
		}
	}
	if site.State != Monomorphic || site.Hits != 1 {
		t.Fatalf("site %s with %d hits", site.State, site.Hits)
	}
	setProp(t, iso, p1, "q", vm.FromSmi(5))
	if f.Valid(iso) {
		t.Error("frontend still valid after shadowing")
	}
	if v := load(t, e, site, r); v != vm.FromSmi(5) {
		t.Errorf("q after shadowing = %v", v)
	}
}

func TestCheckPrototypesOwnHolder(t *testing.T) {
	iso := vm.NewIsolate(vm.DefaultOptions())
	o := newObjectWith(t, iso, "x", vm.FromSmi(1))
	f, err := CheckPrototypes(iso, o.Shape(), o, o, iso.Name("x"))
	if err != nil {
		t.Fatal(err)
	}
	if got := guardKinds(f); !sameKinds(got, []string{"shape"}) || f.Depth != 0 {
		t.Errorf("guards = %v, depth %d", got, f.Depth)
	}
	// A receiver guard checks the access, not a constant object.
	if sc := f.Guards[0].(*ShapeCheck); sc.Object != nil {
		t.Error("receiver guard bound to a constant")
	}
}

func TestCheckPrototypesAbsent(t *testing.T) {
	iso := vm.NewIsolate(vm.DefaultOptions())
	proto := iso.NewObject()
	o := iso.NewObjectWithPrototype(proto)
	f, err := CheckPrototypes(iso, o.Shape(), o, nil, iso.Name("nope"))
	if err != nil {
		t.Fatal(err)
	}
	// receiver, proto, Object.prototype
	if got := guardKinds(f); !sameKinds(got, []string{"shape", "shape", "shape"}) || f.Depth != 3 {
		t.Errorf("guards = %v, depth %d", got, f.Depth)
	}
	if f.Holder != nil {
		t.Errorf("holder = %v", f.Holder)
	}

	setProp(t, iso, proto, "nope", vm.True)
	if f.Valid(iso) {
		t.Error("frontend survived a prototype shape change")
	}
}

func TestCheckPrototypesGlobalInChain(t *testing.T) {
	iso := vm.NewIsolate(vm.DefaultOptions())
	o := iso.NewObjectWithPrototype(iso.Global)
	name := iso.Name("later")
	f, err := CheckPrototypes(iso, o.Shape(), o, nil, name)
	if err != nil {
		t.Fatal(err)
	}
	got := guardKinds(f)
	if len(got) < 2 || got[1] != "cell" {
		t.Fatalf("guards = %v", got)
	}
	if err := f.Check(accessFor(iso, o, "later")); err != nil {
		t.Fatalf("check: %v", err)
	}

	setProp(t, iso, iso.Global, "later", vm.FromSmi(1))
	if f.Valid(iso) {
		t.Error("cell guard survived the global's definition")
	}
	if err := f.Check(accessFor(iso, o, "later")); err != ErrCacheMiss {
		t.Errorf("check = %v, want miss", err)
	}
}

func TestCheckPrototypesPrimitive(t *testing.T) {
	iso := vm.NewIsolate(vm.DefaultOptions())
	setProp(t, iso, iso.StringPrototype, "shout", vm.True)
	str := iso.NewString("abc")
	f, err := CheckPrototypes(iso, iso.ShapeOf(str), nil, iso.StringPrototype, iso.Name("shout"))
	if err != nil {
		t.Fatal(err)
	}
	if got := guardKinds(f); !sameKinds(got, []string{"primitive", "shape"}) || f.Depth != 1 {
		t.Errorf("guards = %v, depth %d", got, f.Depth)
	}
	a := newAccess(iso, str)
	a.Name = iso.Name("shout")
	if err := f.Check(a); err != nil {
		t.Errorf("check on a primitive: %v", err)
	}
	a = newAccess(iso, vm.FromSmi(3))
	if err := f.Check(a); err != ErrCacheMiss {
		t.Errorf("check on a number = %v, want miss", err)
	}
}

func TestCheckPrototypesUncacheable(t *testing.T) {
	iso := vm.NewIsolate(vm.Options{MaxPrototypeDepth: 2, MajorEvery: 4})
	name := iso.Name("deep")

	o := iso.NewObject()
	for i := 0; i < 3; i++ {
		o = iso.NewObjectWithPrototype(o)
	}
	if _, err := CheckPrototypes(iso, o.Shape(), o, nil, name); !errors.Is(err, ErrUncacheable) {
		t.Errorf("deep chain: err = %v", err)
	}

	stranger := iso.NewObject()
	short := iso.NewObject()
	if _, err := CheckPrototypes(iso, short.Shape(), short, stranger, name); !errors.Is(err, ErrUncacheable) {
		t.Errorf("holder off the chain: err = %v", err)
	}

	tmpl := &vm.FunctionTemplate{Name: "Hooked", NamedInterceptor: &vm.InterceptorInfo{
		NamedGetter: func(*vm.Name, *vm.PropertyCallbackArguments) error { return nil },
	}}
	hooked := iso.NewInstance(tmpl, iso.ObjectPrototype)
	child := iso.NewObjectWithPrototype(hooked)
	if _, err := CheckPrototypes(iso, child.Shape(), child, nil, name); !errors.Is(err, ErrUncacheable) {
		t.Errorf("interceptor in chain: err = %v", err)
	}

	if _, err := CheckPrototypes(iso, nil, nil, nil, name); !errors.Is(err, ErrUncacheable) {
		t.Errorf("nil shape: err = %v", err)
	}
}

func TestCheckPrototypesAccessCheckedLevel(t *testing.T) {
	iso := vm.NewIsolate(vm.DefaultOptions())
	q := iso.Name("q")
	p2 := newObjectWith(t, iso, "q", vm.FromSmi(1))
	guarded := &vm.FunctionTemplate{Name: "Guarded", AccessCheck: true}

	fast := iso.NewInstance(guarded, p2)
	r := iso.NewObjectWithPrototype(fast)
	if _, err := CheckPrototypes(iso, r.Shape(), r, p2, q); !errors.Is(err, ErrUncacheable) {
		t.Errorf("fast access-checked level: err = %v", err)
	}

	// A dictionary-mode level would otherwise take a negative lookup.
	slow := iso.NewInstance(guarded, p2)
	iso.NormalizeProperties(slow, "test")
	if !slow.Shape().IsDictionaryMap() || !slow.Shape().IsAccessCheckNeeded() {
		t.Fatalf("slow shape %s", slow.Shape())
	}
	r = iso.NewObjectWithPrototype(slow)
	f, err := CheckPrototypes(iso, r.Shape(), r, p2, q)
	if err == nil {
		t.Fatalf("dictionary access-checked level cached with guards %v", guardKinds(f))
	}
	if !errors.Is(err, ErrUncacheable) {
		t.Errorf("dictionary access-checked level: err = %v", err)
	}
}
