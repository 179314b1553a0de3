package vm

import "testing"

func newTestIsolate(t *testing.T) *Isolate {
	t.Helper()
	return NewIsolate(DefaultOptions())
}

func TestTransitionsAreMemoized(t *testing.T) {
	iso := newTestIsolate(t)
	root := iso.Shapes.Initial(ShapePlainObject, iso.ObjectPrototype, 2)
	x := iso.Name("x")

	a := root.TransitionForNewProperty(x, AttrNone, ReprSmi)
	b := root.TransitionForNewProperty(x, AttrNone, ReprSmi)
	if a != b {
		t.Fatalf("expected identical shapes, got %d and %d", a.ID(), b.ID())
	}
	if a.BackPointer() != root {
		t.Error("back pointer should lead to the root")
	}
	if c := root.TransitionForNewProperty(x, AttrReadOnly, ReprSmi); c == a {
		t.Error("different attributes must produce a different shape")
	}
}

func TestObjectsWithSameHistoryShareShape(t *testing.T) {
	iso := newTestIsolate(t)
	x, y := iso.Name("x"), iso.Name("y")

	o1 := iso.NewObject()
	o2 := iso.NewObject()
	for _, o := range []*JSObject{o1, o2} {
		if err := iso.SetProperty(iso.ValueOf(o), x, FromSmi(1), true); err != nil {
			t.Fatal(err)
		}
		if err := iso.SetProperty(iso.ValueOf(o), y, FromSmi(2), true); err != nil {
			t.Fatal(err)
		}
	}
	if o1.Shape() != o2.Shape() {
		t.Errorf("shapes differ: %s vs %s", o1.Shape(), o2.Shape())
	}

	o3 := iso.NewObject()
	_ = iso.SetProperty(iso.ValueOf(o3), y, FromSmi(2), true)
	_ = iso.SetProperty(iso.ValueOf(o3), x, FromSmi(1), true)
	if o3.Shape() == o1.Shape() {
		t.Error("insertion order is part of the shape")
	}
}

func TestFieldIndexLayout(t *testing.T) {
	iso := newTestIsolate(t)
	s := iso.Shapes.New(ShapePlainObject, nil, 2)
	for _, n := range []string{"a", "b", "c", "d"} {
		s = s.TransitionForNewProperty(iso.Name(n), AttrNone, ReprTagged)
	}

	a := FieldIndexFor(s, 0)
	if !a.IsInObject() || a.ByteOffset() != ObjectHeaderSize {
		t.Errorf("field 0: %s", a)
	}
	b := FieldIndexFor(s, 1)
	if !b.IsInObject() || b.ByteOffset() != ObjectHeaderSize+SlotSize || b.Index() != -1 {
		t.Errorf("field 1: %s", b)
	}
	c := FieldIndexFor(s, 2)
	if c.IsInObject() || c.Index() != 0 || c.ByteOffset() != FixedArrayHeaderSize {
		t.Errorf("field 2: %s", c)
	}
	d := FieldIndexFor(s, 3)
	if d.IsInObject() || d.ByteOffset() != FixedArrayHeaderSize+SlotSize {
		t.Errorf("field 3: %s", d)
	}
	if s.UnusedPropertyFields() != FieldsAdded-2 {
		t.Errorf("unused property fields = %d", s.UnusedPropertyFields())
	}
	if s.PropertiesCapacity() != FieldsAdded {
		t.Errorf("properties capacity = %d", s.PropertiesCapacity())
	}
}

func TestGeneralizeFieldDeprecatesSubtree(t *testing.T) {
	iso := newTestIsolate(t)
	root := iso.Shapes.New(ShapePlainObject, iso.ObjectPrototype, 4)
	x, y := iso.Name("x"), iso.Name("y")
	sx := root.TransitionForNewProperty(x, AttrNone, ReprSmi)
	sxy := sx.TransitionForNewProperty(y, AttrNone, ReprSmi)

	updated := sxy.GeneralizeField(0, ReprDouble)
	if !sx.IsDeprecated() || !sxy.IsDeprecated() {
		t.Fatal("generalized subtree should be deprecated")
	}
	if updated.IsDeprecated() {
		t.Fatal("result must be live")
	}
	if got := updated.Descriptors().At(0).Repr; got != ReprDouble {
		t.Errorf("x repr = %s", got)
	}
	if got := updated.Descriptors().At(1).Repr; got != ReprSmi {
		t.Errorf("y repr = %s", got)
	}
	if sxy.Updated() != updated {
		t.Error("Updated should return the generalized shape")
	}
	if root.TransitionForNewProperty(x, AttrNone, ReprSmi) != updated.BackPointer() {
		t.Error("root transition should now lead to the generalized branch")
	}
}

func TestNormalizeProducesDictionaryShape(t *testing.T) {
	iso := newTestIsolate(t)
	o := iso.NewObject()
	_ = iso.SetProperty(iso.ValueOf(o), iso.Name("p"), FromSmi(9), true)
	before := o.Shape()

	iso.NormalizeProperties(o, "test")
	if !o.Shape().IsDictionaryMap() {
		t.Fatal("expected dictionary mode")
	}
	if o.Shape() == before {
		t.Error("normalizing must change the shape")
	}
	v, err := iso.GetProperty(iso.ValueOf(o), iso.Name("p"))
	if err != nil || v != FromSmi(9) {
		t.Errorf("p = %v, %v", v, err)
	}
	if before.Normalize("again") != o.Shape() {
		t.Error("normalized shape should be memoized")
	}
}

func TestCopyHasFreshIdentity(t *testing.T) {
	iso := newTestIsolate(t)
	s := iso.Shapes.Initial(ShapePlainObject, iso.ObjectPrototype, 4)
	c := s.Copy("test")
	if c == s || c.ID() == s.ID() {
		t.Error("copy must have a new identity")
	}
	if c.BackPointer() != nil {
		t.Error("copy has no back pointer")
	}
	if c.Prototype() != s.Prototype() || c.InstanceSize() != s.InstanceSize() {
		t.Error("copy must keep the layout")
	}
}

func TestElementsKindTransitions(t *testing.T) {
	iso := newTestIsolate(t)
	arr := iso.NewArrayFrom(FromSmi(1), FromSmi(2))
	if arr.ElementsKind() != FastSmiElements {
		t.Fatalf("kind = %s", arr.ElementsKind())
	}
	smiShape := arr.Shape()

	if err := iso.SetElement(arr, 1, FromFloat64(2.5), true); err != nil {
		t.Fatal(err)
	}
	if arr.ElementsKind() != FastDoubleElements {
		t.Fatalf("kind = %s", arr.ElementsKind())
	}
	if smiShape.FindTransitionedShape([]*Shape{arr.Shape()}) != arr.Shape() {
		t.Error("double shape should be reachable from the smi shape")
	}

	_ = iso.SetElement(arr, 0, iso.ValueOf(iso.NewObject()), true)
	if arr.ElementsKind() != FastElements {
		t.Fatalf("kind = %s", arr.ElementsKind())
	}
	v, _ := iso.GetElement(iso.ValueOf(arr), 1)
	if v != FromFloat64(2.5) {
		t.Errorf("arr[1] = %v", v)
	}
}

func TestPrototypeTransitionStartsNewTree(t *testing.T) {
	iso := newTestIsolate(t)
	proto := iso.NewObject()
	o := iso.NewObject()
	old := o.Shape()
	if err := iso.SetPrototype(o, proto); err != nil {
		t.Fatal(err)
	}
	if o.Shape() == old || o.Shape().Prototype() != proto {
		t.Error("prototype change must produce a new shape")
	}
	if err := iso.SetPrototype(proto, o); err == nil {
		t.Error("expected cycle error")
	}
}
