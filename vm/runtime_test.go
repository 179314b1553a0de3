package vm

import (
	"errors"
	"testing"
)

func wantErrorKind(t *testing.T, err error, kind ErrorKind) {
	t.Helper()
	var exc *Exception
	if !errors.As(err, &exc) {
		t.Fatalf("expected %s, got %v", kind, err)
	}
	if exc.Kind != kind {
		t.Fatalf("expected %s, got %s", kind, exc)
	}
}

func mustGet(t *testing.T, iso *Isolate, o *JSObject, name string) Value {
	t.Helper()
	v, err := iso.GetProperty(iso.ValueOf(o), iso.Name(name))
	if err != nil {
		t.Fatalf("get %s: %v", name, err)
	}
	return v
}

func mustSet(t *testing.T, iso *Isolate, o *JSObject, name string, v Value) {
	t.Helper()
	if err := iso.SetProperty(iso.ValueOf(o), iso.Name(name), v, true); err != nil {
		t.Fatalf("set %s: %v", name, err)
	}
}

func TestPrototypeChainLoadAndShadowingStore(t *testing.T) {
	iso := newTestIsolate(t)
	proto := iso.NewObject()
	mustSet(t, iso, proto, "x", FromSmi(1))
	o := iso.NewObjectWithPrototype(proto)

	if v := mustGet(t, iso, o, "x"); v != FromSmi(1) {
		t.Errorf("inherited x = %v", v)
	}
	mustSet(t, iso, o, "x", FromSmi(2))
	if v := mustGet(t, iso, o, "x"); v != FromSmi(2) {
		t.Errorf("own x = %v", v)
	}
	if v := mustGet(t, iso, proto, "x"); v != FromSmi(1) {
		t.Errorf("store must not write through to the prototype, proto.x = %v", v)
	}
	if v := mustGet(t, iso, o, "missing"); v != Undefined {
		t.Errorf("missing = %v", v)
	}
}

func TestOutOfObjectFields(t *testing.T) {
	iso := newTestIsolate(t)
	o := iso.NewObject()
	names := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	for i, n := range names {
		mustSet(t, iso, o, n, FromSmi(int64(i)))
	}
	if o.Properties() == nil || o.Properties().Len() < len(names)-DefaultInObjectProperties {
		t.Fatal("properties array should have grown")
	}
	for i, n := range names {
		if v := mustGet(t, iso, o, n); v != FromSmi(int64(i)) {
			t.Errorf("%s = %v", n, v)
		}
	}
}

func TestDoubleFieldsAndMigration(t *testing.T) {
	iso := newTestIsolate(t)
	o1 := iso.NewObject()
	o2 := iso.NewObject()
	mustSet(t, iso, o1, "x", FromSmi(1))
	mustSet(t, iso, o2, "x", FromSmi(1))
	shared := o1.Shape()

	mustSet(t, iso, o1, "x", FromFloat64(1.5))
	if !shared.IsDeprecated() {
		t.Fatal("widening x must deprecate the shared shape")
	}
	d, _, _ := o1.Shape().LookupOwn(iso.Name("x"))
	if d.Repr != ReprDouble {
		t.Fatalf("x repr = %s", d.Repr)
	}
	if v := mustGet(t, iso, o1, "x"); v != FromFloat64(1.5) {
		t.Errorf("o1.x = %v", v)
	}

	if v := mustGet(t, iso, o2, "x"); v != FromSmi(1) {
		t.Errorf("o2.x = %v", v)
	}
	if o2.Shape() != o1.Shape() {
		t.Error("o2 should have migrated to o1's shape")
	}
	if iso.Counters.Migrations < 2 {
		t.Errorf("Migrations = %d", iso.Counters.Migrations)
	}

	box := iso.Heap.Deref(o1.RawFastPropertyAt(FieldIndexFor(o1.Shape(), 0)))
	mustSet(t, iso, o1, "x", FromFloat64(2.5))
	if iso.Heap.Deref(o1.RawFastPropertyAt(FieldIndexFor(o1.Shape(), 0))) != box {
		t.Error("double stores reuse the field's box")
	}
}

func TestNativeAccessor(t *testing.T) {
	iso := newTestIsolate(t)
	o := iso.NewObject()
	var stored Value
	info := &AccessorInfo{
		Getter: func(name *Name, info *PropertyCallbackArguments) error {
			info.SetReturnValue(info.Data())
			return nil
		},
		Setter: func(name *Name, value Value, info *PropertyCallbackArguments) error {
			stored = value
			return nil
		},
		Data: FromSmi(99),
	}
	iso.DefineNativeAccessor(o, iso.Name("p"), info, AttrNone)

	if v := mustGet(t, iso, o, "p"); v != FromSmi(99) {
		t.Errorf("p = %v", v)
	}
	mustSet(t, iso, o, "p", FromSmi(5))
	if stored != FromSmi(5) {
		t.Errorf("setter saw %v", stored)
	}
	if iso.Counters.Callbacks != 2 {
		t.Errorf("Callbacks = %d", iso.Counters.Callbacks)
	}
}

func TestAccessorPairWithoutSetter(t *testing.T) {
	iso := newTestIsolate(t)
	o := iso.NewObject()
	getter := iso.NewFunction("get", func(iso *Isolate, this Value, args []Value) (Value, error) {
		return FromSmi(7), nil
	})
	iso.DefineAccessor(o, iso.Name("g"), iso.ValueOf(getter), Undefined, AttrNone)

	if v := mustGet(t, iso, o, "g"); v != FromSmi(7) {
		t.Errorf("g = %v", v)
	}
	err := iso.SetProperty(iso.ValueOf(o), iso.Name("g"), FromSmi(1), true)
	wantErrorKind(t, err, ErrorType)
	if err := iso.SetProperty(iso.ValueOf(o), iso.Name("g"), FromSmi(1), false); err != nil {
		t.Errorf("sloppy store should be ignored: %v", err)
	}
}

func TestNamedInterceptor(t *testing.T) {
	iso := newTestIsolate(t)
	mustSet(t, iso, iso.ObjectPrototype, "inherited", FromSmi(5))
	var stores int
	tmpl := &FunctionTemplate{
		Name: "Intercepted",
		NamedInterceptor: &InterceptorInfo{
			NamedGetter: func(name *Name, info *PropertyCallbackArguments) error {
				if name.String() == "magic" {
					info.SetReturnValue(FromSmi(42))
				}
				return nil
			},
			NamedSetter: func(name *Name, value Value, info *PropertyCallbackArguments) error {
				if name.String() == "magic" {
					stores++
					info.SetReturnValue(value)
				}
				return nil
			},
		},
	}
	o := iso.NewInstance(tmpl, iso.ObjectPrototype)

	if v := mustGet(t, iso, o, "magic"); v != FromSmi(42) {
		t.Errorf("magic = %v", v)
	}
	if v := mustGet(t, iso, o, "inherited"); v != FromSmi(5) {
		t.Errorf("declined lookups continue to the prototype, got %v", v)
	}
	mustSet(t, iso, o, "magic", FromSmi(1))
	if stores != 1 {
		t.Errorf("interceptor setter ran %d times", stores)
	}
	mustSet(t, iso, o, "plain", FromSmi(3))
	r := iso.LookupRealNamedProperty(o, iso.Name("plain"))
	if r.State != LookupField {
		t.Errorf("declined store should add a real field, lookup = %s", r.State)
	}
}

func TestGlobalCellsAndDelete(t *testing.T) {
	iso := newTestIsolate(t)
	proxy := iso.ValueOf(iso.GlobalProxy)
	g := iso.Name("g")
	if err := iso.SetProperty(proxy, g, FromSmi(1), true); err != nil {
		t.Fatal(err)
	}
	v, err := iso.LoadGlobal(g)
	if err != nil || v != FromSmi(1) {
		t.Fatalf("g = %v, %v", v, err)
	}
	cell := iso.Global.GlobalPropertyCell(iso.Heap, g)
	if cell == nil {
		t.Fatal("global properties live in cells")
	}
	version := cell.Version()

	ok, err := iso.DeleteProperty(iso.GlobalProxy, g)
	if err != nil || !ok {
		t.Fatalf("delete = %v, %v", ok, err)
	}
	if iso.Global.GlobalPropertyCell(iso.Heap, g) != cell || !cell.IsHole() {
		t.Error("deleting keeps the cell and stores the hole")
	}
	if cell.Version() == version {
		t.Error("replacing the value bumps the version")
	}
	_, err = iso.LoadGlobal(g)
	wantErrorKind(t, err, ErrorReference)

	if err := iso.SetProperty(proxy, g, FromSmi(2), true); err != nil {
		t.Fatal(err)
	}
	if iso.Global.GlobalPropertyCell(iso.Heap, g) != cell || cell.Value() != FromSmi(2) {
		t.Error("re-adding reuses the cell")
	}
}

func TestGlobalProxyAccessCheck(t *testing.T) {
	iso := newTestIsolate(t)
	mustSet(t, iso, iso.GlobalProxy, "secret", FromSmi(1))
	iso.SetSecurityToken(2)
	_, err := iso.GetProperty(iso.ValueOf(iso.GlobalProxy), iso.Name("secret"))
	wantErrorKind(t, err, ErrorType)
	err = iso.SetProperty(iso.ValueOf(iso.GlobalProxy), iso.Name("secret"), FromSmi(2), false)
	wantErrorKind(t, err, ErrorType)
	iso.SetSecurityToken(1)
	if v := mustGet(t, iso, iso.GlobalProxy, "secret"); v != FromSmi(1) {
		t.Errorf("secret = %v", v)
	}
}

func TestReadOnlyProperty(t *testing.T) {
	iso := newTestIsolate(t)
	o := iso.NewObject()
	if err := iso.DefineOwnProperty(o, iso.Name("ro"), FromSmi(1), AttrReadOnly); err != nil {
		t.Fatal(err)
	}
	err := iso.SetProperty(iso.ValueOf(o), iso.Name("ro"), FromSmi(2), true)
	wantErrorKind(t, err, ErrorType)
	if err := iso.SetProperty(iso.ValueOf(o), iso.Name("ro"), FromSmi(2), false); err != nil {
		t.Error(err)
	}
	if v := mustGet(t, iso, o, "ro"); v != FromSmi(1) {
		t.Errorf("ro = %v", v)
	}
}

func TestConstantOverwriteNormalizes(t *testing.T) {
	iso := newTestIsolate(t)
	o := iso.NewObject()
	fn := iso.NewFunction("m", func(*Isolate, Value, []Value) (Value, error) { return Undefined, nil })
	if err := iso.DefineMethod(o, iso.Name("m"), fn); err != nil {
		t.Fatal(err)
	}
	d, _, ok := o.Shape().LookupOwn(iso.Name("m"))
	if !ok || d.Kind != PropertyConstant {
		t.Fatalf("m should be a constant, got %+v", d)
	}
	mustSet(t, iso, o, "m", FromSmi(3))
	if o.HasFastProperties() {
		t.Error("overwriting a constant normalizes the object")
	}
	if v := mustGet(t, iso, o, "m"); v != FromSmi(3) {
		t.Errorf("m = %v", v)
	}
}

func TestDefineMethodOnNonExtensibleObject(t *testing.T) {
	iso := newTestIsolate(t)
	o := iso.NewObject()
	fn := iso.NewFunction("m", func(*Isolate, Value, []Value) (Value, error) { return Undefined, nil })
	if err := iso.DefineMethod(o, iso.Name("m"), fn); err != nil {
		t.Fatal(err)
	}
	if r := iso.LookupOwn(o, iso.Name("m"), true); r.State != LookupConstant {
		t.Fatalf("m: %s", r.State)
	}
	iso.PreventExtensions(o)
	err := iso.DefineMethod(o, iso.Name("n"), fn)
	wantErrorKind(t, err, ErrorType)
	if iso.LookupOwn(o, iso.Name("n"), true).IsFound() {
		t.Error("n was added to a non-extensible object")
	}
}

func TestNonExtensibleElements(t *testing.T) {
	iso := newTestIsolate(t)
	arr := iso.NewArrayFrom(FromSmi(1), FromSmi(2))
	iso.PreventExtensions(arr)
	for i := uint32(2); i <= 4; i++ {
		if err := iso.SetElement(arr, i, True, false); err != nil {
			t.Fatal(err)
		}
	}
	if arr.Length() != 2 {
		t.Errorf("length = %d", arr.Length())
	}
	wantErrorKind(t, iso.SetElement(arr, 2, True, true), ErrorType)
	if err := iso.SetElement(arr, 0, FromSmi(7), true); err != nil {
		t.Fatal(err)
	}
	if v, _ := arr.GetOwnElement(0); v != FromSmi(7) {
		t.Errorf("arr[0] = %v", v)
	}

	sparse := iso.NewArrayFrom()
	if err := iso.SetElement(sparse, 5000, True, true); err != nil {
		t.Fatal(err)
	}
	iso.PreventExtensions(sparse)
	wantErrorKind(t, iso.SetElement(sparse, 1, True, true), ErrorType)
	if _, ok := sparse.GetOwnElement(1); ok {
		t.Error("element added to a non-extensible dictionary")
	}
}

func TestArrayLengthAndSparseElements(t *testing.T) {
	iso := newTestIsolate(t)
	arr := iso.NewArrayFrom(FromSmi(1), FromSmi(2), FromSmi(3))
	if v := mustGet(t, iso, arr, "length"); v != FromSmi(3) {
		t.Fatalf("length = %v", v)
	}
	mustSet(t, iso, arr, "length", FromSmi(1))
	if v, _ := iso.GetElement(iso.ValueOf(arr), 2); v != Undefined {
		t.Errorf("truncated element = %v", v)
	}
	err := iso.SetProperty(iso.ValueOf(arr), iso.LengthName, FromFloat64(1.5), true)
	wantErrorKind(t, err, ErrorRange)

	if err := iso.SetElement(arr, 5000, True, true); err != nil {
		t.Fatal(err)
	}
	if !arr.ElementsKind().IsDictionary() {
		t.Errorf("kind = %s", arr.ElementsKind())
	}
	if arr.Length() != 5001 {
		t.Errorf("length = %d", arr.Length())
	}
	if v, _ := iso.KeyedGetProperty(iso.ValueOf(arr), FromSmi(5000)); v != True {
		t.Errorf("arr[5000] = %v", v)
	}
	if v, _ := iso.KeyedGetProperty(iso.ValueOf(arr), iso.InternalizedString("0")); v != FromSmi(1) {
		t.Errorf("arr['0'] = %v", v)
	}
}

func TestTypedArrayStores(t *testing.T) {
	iso := newTestIsolate(t)
	ta := iso.NewTypedArray(Uint8ClampedElements, 4)
	if err := iso.KeyedSetProperty(iso.ValueOf(ta), FromSmi(1), FromSmi(300), true); err != nil {
		t.Fatal(err)
	}
	if v, _ := iso.GetElement(iso.ValueOf(ta), 1); v != FromSmi(255) {
		t.Errorf("clamped = %v", v)
	}
	if err := iso.KeyedSetProperty(iso.ValueOf(ta), FromSmi(10), FromSmi(1), true); err != nil {
		t.Errorf("out-of-range stores are ignored: %v", err)
	}
	if v := mustGet(t, iso, ta, "length"); v != FromSmi(4) {
		t.Errorf("length = %v", v)
	}

	i8 := iso.NewTypedArray(Int8Elements, 1)
	_ = iso.SetElement(i8, 0, FromSmi(200), true)
	if v, _ := iso.GetElement(iso.ValueOf(i8), 0); v != FromSmi(-56) {
		t.Errorf("int8 wrap = %v", v)
	}
}

func TestStringLength(t *testing.T) {
	iso := newTestIsolate(t)
	v, err := iso.GetProperty(iso.NewString("héllo"), iso.LengthName)
	if err != nil || v != FromSmi(5) {
		t.Errorf("length = %v, %v", v, err)
	}
	v, _ = iso.GetProperty(iso.NewString("\U0001F600"), iso.LengthName)
	if v != FromSmi(2) {
		t.Errorf("astral length = %v", v)
	}
	w := iso.NewStringWrapper("abc")
	if v := mustGet(t, iso, w, "length"); v != FromSmi(3) {
		t.Errorf("wrapper length = %v", v)
	}
	if v, _ := iso.GetElement(iso.ValueOf(w), 1); v != iso.InternalizedString("b") {
		t.Errorf("w[1] = %v", v)
	}
}

func TestPrimitiveReceiversUseWrapperPrototype(t *testing.T) {
	iso := newTestIsolate(t)
	mustSet(t, iso, iso.NumberPrototype, "unit", FromSmi(1))
	v, err := iso.GetProperty(FromSmi(3), iso.Name("unit"))
	if err != nil || v != FromSmi(1) {
		t.Errorf("(3).unit = %v, %v", v, err)
	}
	_, err = iso.GetProperty(Undefined, iso.Name("unit"))
	wantErrorKind(t, err, ErrorType)
	err = iso.SetProperty(FromSmi(3), iso.Name("unit"), FromSmi(2), true)
	wantErrorKind(t, err, ErrorType)
}

func TestAPIFunctionSignature(t *testing.T) {
	iso := newTestIsolate(t)
	recvT := &FunctionTemplate{Name: "Receiver"}
	fnT := &FunctionTemplate{
		Name:      "method",
		Signature: &Signature{Receiver: recvT},
		CallHandler: &CallHandlerInfo{Callback: func(info *FunctionCallbackInfo) error {
			info.SetReturnValue(FromSmi(int64(info.Len())))
			return nil
		}},
	}
	fn := iso.NewTemplateFunction(fnT)
	good := iso.NewInstance(recvT, iso.ObjectPrototype)

	v, err := iso.Call(iso.ValueOf(fn), iso.ValueOf(good), []Value{Null, Null})
	if err != nil || v != FromSmi(2) {
		t.Errorf("call = %v, %v", v, err)
	}
	_, err = iso.Call(iso.ValueOf(fn), iso.ValueOf(iso.NewObject()), nil)
	wantErrorKind(t, err, ErrorType)
}

func TestCompare(t *testing.T) {
	iso := newTestIsolate(t)
	tests := []struct {
		op   CompareOp
		a, b Value
		want bool
	}{
		{OpLT, FromSmi(1), FromSmi(2), true},
		{OpGTE, FromFloat64(2.5), FromSmi(2), true},
		{OpLT, iso.InternalizedString("a"), iso.InternalizedString("b"), true},
		{OpEq, Null, Undefined, true},
		{OpStrictEq, Null, Undefined, false},
		{OpStrictEq, FromSmi(1), FromFloat64(1), true},
		{OpEq, iso.InternalizedString("1"), FromSmi(1), true},
		{OpStrictEq, iso.NewString("x"), iso.InternalizedString("x"), true},
		{OpLTE, Undefined, FromSmi(0), false},
	}
	for _, tt := range tests {
		got, err := iso.Compare(tt.op, tt.a, tt.b)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("%v %s %v = %v, want %v", tt.a, tt.op, tt.b, got, tt.want)
		}
	}
}
