package vm

import (
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

// DefaultInObjectProperties is the in-object slack given to plain objects.
const DefaultInObjectProperties = 4

// Options configures a new isolate.
type Options struct {
	// GCInterval runs a collection every GCInterval allocations; zero
	// disables allocation-triggered collections.
	GCInterval int
	// MajorEvery makes every MajorEvery-th collection a major one.
	MajorEvery int
	// MaxPrototypeDepth bounds prototype chain walks.
	MaxPrototypeDepth int
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{GCInterval: 0, MajorEvery: 4, MaxPrototypeDepth: 32}
}

var isolateCounter atomic.Int32

// Isolate is a single-threaded execution context: its own heap, names,
// shapes and global object. Nothing in an isolate is shared with another.
type Isolate struct {
	ID     uuid.UUID
	Heap   *Heap
	Names  *NameTable
	Shapes *ShapeFactory

	ObjectPrototype   *JSObject
	FunctionPrototype *JSObject
	ArrayPrototype    *JSObject
	StringPrototype   *JSObject
	NumberPrototype   *JSObject
	BooleanPrototype  *JSObject

	Global      *JSObject
	GlobalProxy *JSObject

	numberShape             *Shape
	booleanShape            *Shape
	stringShape             *Shape
	internalizedStringShape *Shape

	LengthName *Name

	index             int
	maxPrototypeDepth int
	securityToken     int
	log               commonlog.Logger

	Counters RuntimeCounters
}

// RuntimeCounters count slow-path activity.
type RuntimeCounters struct {
	Loads        uint64
	Stores       uint64
	KeyedLoads   uint64
	KeyedStores  uint64
	Calls        uint64
	Migrations   uint64
	Normalized   uint64
	Interceptors uint64
	Callbacks    uint64
}

// NewIsolate creates and bootstraps an isolate.
func NewIsolate(opts Options) *Isolate {
	if opts.MaxPrototypeDepth <= 0 {
		opts.MaxPrototypeDepth = DefaultOptions().MaxPrototypeDepth
	}
	heap := NewHeap(opts.GCInterval, opts.MajorEvery)
	iso := &Isolate{
		ID:                uuid.New(),
		Heap:              heap,
		Names:             NewNameTable(),
		Shapes:            NewShapeFactory(heap),
		index:             int(isolateCounter.Add(1)),
		maxPrototypeDepth: opts.MaxPrototypeDepth,
		securityToken:     1,
		log:               commonlog.GetLogger("shapecache.vm"),
	}
	iso.LengthName = iso.Names.Internalize("length")
	iso.bootstrap()
	iso.log.Debugf("isolate %s created", iso.ID)
	return iso
}

func (iso *Isolate) bootstrap() {
	f := iso.Shapes
	iso.ObjectPrototype = iso.allocate(f.New(ShapePlainObject, nil, DefaultInObjectProperties))
	protoShape := f.Initial(ShapePlainObject, iso.ObjectPrototype, DefaultInObjectProperties)
	iso.FunctionPrototype = iso.allocate(protoShape)
	iso.ArrayPrototype = iso.allocate(protoShape)
	iso.StringPrototype = iso.allocate(protoShape)
	iso.NumberPrototype = iso.allocate(protoShape)
	iso.BooleanPrototype = iso.allocate(protoShape)

	iso.numberShape = f.New(ShapeHeapNumber, iso.NumberPrototype, 0)
	iso.booleanShape = f.New(ShapeOddball, iso.BooleanPrototype, 0)
	iso.stringShape = f.New(ShapeString, iso.StringPrototype, 0)
	iso.internalizedStringShape = f.New(ShapeString, iso.StringPrototype, 0)

	iso.Global = iso.allocate(f.New(ShapeGlobalObject, iso.ObjectPrototype, 0,
		WithDictionaryMode(), WithHiddenPrototype()))
	iso.GlobalProxy = iso.allocate(f.New(ShapeGlobalProxy, iso.Global, 0, WithAccessCheck()))
	iso.GlobalProxy.target = iso.Global
	iso.GlobalProxy.securityToken = iso.securityToken
}

// allocate creates an object laid out for shape s.
func (iso *Isolate) allocate(s *Shape) *JSObject {
	o := &JSObject{shape: s, inObject: make([]Value, s.inObjectProperties), primitive: Undefined}
	for i := range o.inObject {
		o.inObject[i] = Undefined
	}
	if n := s.PropertiesCapacity(); n > 0 {
		o.properties = NewFixedArray(n)
		iso.Heap.Allocate(o.properties)
	}
	if s.IsDictionaryMap() {
		o.dictionary = NewNameDictionary(8)
		iso.Heap.Allocate(o.dictionary)
	}
	switch {
	case s.elementsKind.IsDictionary():
		o.numberDict = NewNumberDictionary(8)
		iso.Heap.Allocate(o.numberDict)
	}
	iso.Heap.AllocateAddressable(o)
	return o
}

// Index returns the process-unique isolate number.
func (iso *Isolate) Index() int { return iso.index }

// MaxPrototypeDepth returns the configured chain walk bound.
func (iso *Isolate) MaxPrototypeDepth() int { return iso.maxPrototypeDepth }

// SecurityToken returns the token of the current context.
func (iso *Isolate) SecurityToken() int { return iso.securityToken }

// SetSecurityToken switches the current context's token. Global proxies
// created with a different token fail access checks afterwards.
func (iso *Isolate) SetSecurityToken(tok int) { iso.securityToken = tok }

// MayAccess reports whether the current context may access an
// access-checked object.
func (iso *Isolate) MayAccess(o *JSObject) bool {
	if o.IsGlobalProxy() {
		return o.securityToken == iso.securityToken
	}
	return false
}

// Name interns s.
func (iso *Isolate) Name(s string) *Name { return iso.Names.Internalize(s) }

// ---------------------------------------------------------------------------
// Object creation
// ---------------------------------------------------------------------------

// NewObject creates an empty plain object inheriting from Object.prototype.
func (iso *Isolate) NewObject() *JSObject {
	return iso.NewObjectWithPrototype(iso.ObjectPrototype)
}

// NewObjectWithPrototype creates an empty plain object with the given
// prototype, which may be nil.
func (iso *Isolate) NewObjectWithPrototype(proto *JSObject) *JSObject {
	return iso.allocate(iso.Shapes.Initial(ShapePlainObject, proto, DefaultInObjectProperties))
}

// NewObjectWithShape creates an object laid out for shape s. Fields are
// initialized to undefined.
func (iso *Isolate) NewObjectWithShape(s *Shape) *JSObject {
	o := iso.allocate(s)
	for i := 0; i < s.descriptors.Len(); i++ {
		d := s.descriptors.At(i)
		if d.Kind == PropertyField && d.Repr == ReprDouble {
			iso.WriteField(o, s, d, FromFloat64(0))
		}
	}
	return o
}

// NewDictionaryObject creates an empty slow-mode object.
func (iso *Isolate) NewDictionaryObject(proto *JSObject) *JSObject {
	s := iso.Shapes.Initial(ShapePlainObject, proto, DefaultInObjectProperties).Normalize("dictionary object")
	return iso.allocate(s)
}

// NewArray creates an array of the given length filled with holes.
func (iso *Isolate) NewArray(kind ElementsKind, length int) *JSObject {
	Assert(kind.IsFast() || kind.IsDictionary(), "array of kind %s", kind)
	s := iso.Shapes.Initial(ShapeArray, iso.ArrayPrototype, 0).TransitionForElementsKind(kind)
	o := iso.allocate(s)
	if kind.IsFast() {
		o.EnsureElementsCapacity(iso.Heap, length)
	}
	o.length = length
	return o
}

// NewArrayFrom creates a dense array holding values, choosing the least
// general elements kind that fits them.
func (iso *Isolate) NewArrayFrom(values ...Value) *JSObject {
	kind := FastSmiElements
	for _, v := range values {
		if k := ElementsKindForValue(v); IsMoreGeneralElementsKindTransition(kind, k) {
			kind = k
		}
	}
	o := iso.NewArray(kind, len(values))
	for i, v := range values {
		if kind.IsFastDouble() {
			o.doubles[i] = v.NumberValue()
		} else {
			o.elements[i] = v
		}
	}
	return o
}

// NewTypedArray creates a zero-filled typed array.
func (iso *Isolate) NewTypedArray(kind ElementsKind, length int) *JSObject {
	Assert(kind.IsTyped(), "typed array of kind %s", kind)
	s := iso.Shapes.Initial(ShapeTypedArray, iso.ObjectPrototype, 0).TransitionForElementsKind(kind)
	o := iso.allocate(s)
	o.typed = NewTypedStore(kind, length)
	o.length = length
	return o
}

// NewString creates a non-internalized string value.
func (iso *Isolate) NewString(s string) Value {
	str := &String{s: s}
	return FromRef(iso.Heap.AllocateAddressable(str))
}

// InternalizedString returns the internalized string value for s.
func (iso *Isolate) InternalizedString(s string) Value {
	return FromNameID(iso.Names.Internalize(s).ID())
}

// NewStringWrapper creates a String object wrapping s.
func (iso *Isolate) NewStringWrapper(s string) *JSObject {
	o := iso.allocate(iso.Shapes.Initial(ShapeStringWrapper, iso.StringPrototype, 0))
	o.primitive = iso.NewString(s)
	return o
}

// NewFunction creates a builtin function object.
func (iso *Isolate) NewFunction(name string, fn NativeFunction) *JSObject {
	o := iso.allocate(iso.Shapes.Initial(ShapeFunction, iso.FunctionPrototype, 2))
	o.fn = &FunctionData{Name: name, Native: fn}
	return o
}

// NewTemplateFunction creates an API function from t.
func (iso *Isolate) NewTemplateFunction(t *FunctionTemplate) *JSObject {
	o := iso.allocate(iso.Shapes.Initial(ShapeFunction, iso.FunctionPrototype, 2))
	o.fn = &FunctionData{Name: t.Name, Template: t}
	return o
}

// NewInstance creates an object from template t, with its accessors,
// interceptors and access check.
func (iso *Isolate) NewInstance(t *FunctionTemplate, proto *JSObject) *JSObject {
	if t.instanceShape == nil || t.instanceShape.prototype != proto {
		opts := []ShapeOption{WithConstructor(t)}
		if t.NamedInterceptor != nil {
			opts = append(opts, WithNamedInterceptor(t.NamedInterceptor))
		}
		if t.IndexedInterceptor != nil {
			opts = append(opts, WithIndexedInterceptor(t.IndexedInterceptor))
		}
		if t.AccessCheck {
			opts = append(opts, WithAccessCheck())
		}
		if t.HiddenPrototype {
			opts = append(opts, WithHiddenPrototype())
		}
		if t.CallHandler != nil {
			opts = append(opts, WithCallHandler(t.CallHandler))
		}
		inobj := t.InObjectProperties
		if inobj == 0 {
			inobj = DefaultInObjectProperties
		}
		s := iso.Shapes.New(ShapePlainObject, proto, inobj, opts...)
		for _, a := range t.accessors {
			name := iso.Name(a.name)
			a.info.Name = name
			if a.info.Ref() == 0 {
				iso.Heap.AllocateAddressable(a.info)
			}
			s = s.TransitionForAccessor(name, a.info, AttrDontEnum)
		}
		t.instanceShape = s
	}
	return iso.allocate(t.instanceShape)
}

// ---------------------------------------------------------------------------
// Value helpers
// ---------------------------------------------------------------------------

// ValueOf wraps an object as a Value.
func (iso *Isolate) ValueOf(o *JSObject) Value {
	if o == nil {
		return Null
	}
	return FromRef(o.Ref())
}

// ObjectOf unwraps a Value holding a JSObject.
func (iso *Isolate) ObjectOf(v Value) (*JSObject, bool) {
	o, ok := iso.Heap.Deref(v).(*JSObject)
	return o, ok
}

// StringOf returns the Go string of a string value.
func (iso *Isolate) StringOf(v Value) (string, bool) {
	if v.IsName() {
		n := iso.Names.ByID(v.NameID())
		if n == nil || n.IsSymbol() {
			return "", false
		}
		return n.String(), true
	}
	if s, ok := iso.Heap.Deref(v).(*String); ok {
		return s.s, true
	}
	return "", false
}

// IsString reports whether v is a string value.
func (iso *Isolate) IsString(v Value) bool {
	_, ok := iso.StringOf(v)
	return ok
}

// ShapeOf returns the shape that guards dispatch on v: the object's shape,
// or the shared shape of a primitive. Undefined and null have none.
func (iso *Isolate) ShapeOf(v Value) *Shape {
	switch {
	case v.IsSmi(), v.IsNumber():
		return iso.numberShape
	case v == True, v == False:
		return iso.booleanShape
	case v.IsName():
		return iso.internalizedStringShape
	case v.IsRef():
		switch o := iso.Heap.Get(v.Ref()).(type) {
		case *JSObject:
			return o.shape
		case *String:
			return iso.stringShape
		}
	}
	return nil
}

// PrototypeForPrimitive returns the wrapper prototype whose properties a
// primitive receiver sees.
func (iso *Isolate) PrototypeForPrimitive(s *Shape) *JSObject {
	switch s {
	case iso.numberShape, iso.booleanShape, iso.stringShape, iso.internalizedStringShape:
		return s.prototype
	}
	return nil
}

// StringShapes returns the shapes shared by all string primitives.
func (iso *Isolate) StringShapes() []*Shape {
	return []*Shape{iso.stringShape, iso.internalizedStringShape}
}

// NumberShape returns the shape shared by number primitives.
func (iso *Isolate) NumberShape() *Shape { return iso.numberShape }
