package vm

// JSObject is a heap-allocated object with a shape.
//
// Named fields use the layout the shape describes: the first
// InObjectProperties fields live inline, the rest in an out-of-object
// properties array. Dictionary-mode objects keep their named properties
// in a NameDictionary instead. Indexed properties live in exactly one of
// the backing stores selected by the shape's elements kind.
type JSObject struct {
	Header
	shape *Shape

	inObject   []Value
	properties *FixedArray
	dictionary *NameDictionary

	elements   []Value
	doubles    []float64
	numberDict *NumberDictionary
	typed      *TypedStore
	length     int

	fn            *FunctionData
	target        *JSObject
	securityToken int
	primitive     Value
}

// FixedArray is a tagged backing store.
type FixedArray struct {
	Header
	values []Value
}

// NewFixedArray creates an array of n undefined slots.
func NewFixedArray(n int) *FixedArray {
	a := &FixedArray{values: make([]Value, n)}
	for i := range a.values {
		a.values[i] = Undefined
	}
	return a
}

func (a *FixedArray) Len() int          { return len(a.values) }
func (a *FixedArray) Get(i int) Value   { return a.values[i] }
func (a *FixedArray) set(i int, v Value) { a.values[i] = v }

// HeapNumber is the mutable box backing a double-represented field.
type HeapNumber struct {
	Header
	value float64
}

func (n *HeapNumber) Value() float64     { return n.value }
func (n *HeapNumber) SetValue(f float64) { n.value = f }

// String is a non-internalized string. Internalized strings are Names.
type String struct {
	Header
	s string
}

func (s *String) String() string { return s.s }

// Length returns the string's length in UTF-16 code units.
func (s *String) Length() int { return utf16Length(s.s) }

func utf16Length(s string) int {
	n := 0
	for _, r := range s {
		if r >= 0x10000 {
			n += 2
		} else {
			n++
		}
	}
	return n
}

// ---------------------------------------------------------------------------
// Shape and named fields
// ---------------------------------------------------------------------------

// Shape returns the object's current shape.
func (o *JSObject) Shape() *Shape { return o.shape }

// SetShape installs a new shape, applying the write barrier.
func (o *JSObject) SetShape(h *Heap, s *Shape) {
	o.shape = s
	h.RecordWrite(o, ShapeOffset, s)
}

// Properties returns the out-of-object properties array.
func (o *JSObject) Properties() *FixedArray { return o.properties }

// Dictionary returns the slow-mode property dictionary, or nil.
func (o *JSObject) Dictionary() *NameDictionary { return o.dictionary }

// HasFastProperties reports whether named properties follow the shape's
// descriptors.
func (o *JSObject) HasFastProperties() bool { return !o.shape.IsDictionaryMap() }

// RawFastPropertyAt reads the raw field word at fi. For double fields
// this is the reference to the HeapNumber box.
func (o *JSObject) RawFastPropertyAt(fi FieldIndex) Value {
	if fi.IsInObject() {
		return o.inObject[fi.InObjectSlot()]
	}
	return o.properties.values[fi.Index()]
}

// FastPropertyAtPut writes the raw field word at fi, applying the write
// barrier.
func (o *JSObject) FastPropertyAtPut(h *Heap, fi FieldIndex, v Value) {
	if fi.IsInObject() {
		o.inObject[fi.InObjectSlot()] = v
		h.RecordWriteValue(o, fi.ByteOffset(), v)
		return
	}
	o.properties.values[fi.Index()] = v
	h.RecordWriteValue(o.properties, fi.ByteOffset(), v)
}

// FastPropertyAtPutNoBarrier writes a field known to hold a non-pointer.
func (o *JSObject) FastPropertyAtPutNoBarrier(fi FieldIndex, v Value) {
	if fi.IsInObject() {
		o.inObject[fi.InObjectSlot()] = v
		return
	}
	o.properties.values[fi.Index()] = v
}

// GrowPropertiesStorage replaces the properties array with one of the
// given capacity.
func (o *JSObject) GrowPropertiesStorage(h *Heap, capacity int) {
	grown := NewFixedArray(capacity)
	if o.properties != nil {
		copy(grown.values, o.properties.values)
	}
	h.Allocate(grown)
	o.properties = grown
	h.RecordWrite(o, PropertiesOffset, grown)
}

// ---------------------------------------------------------------------------
// Elements
// ---------------------------------------------------------------------------

// ElementsKind returns the kind of the object's indexed storage.
func (o *JSObject) ElementsKind() ElementsKind { return o.shape.elementsKind }

// Length returns the array length for arrays and the element count for
// other objects with fast elements.
func (o *JSObject) Length() int {
	if o.shape.kind == ShapeArray {
		return o.length
	}
	switch {
	case o.typed != nil:
		return o.typed.Len()
	case o.shape.elementsKind.IsFastDouble():
		return len(o.doubles)
	}
	return len(o.elements)
}

// ElementsCapacity returns the size of the fast backing store.
func (o *JSObject) ElementsCapacity() int {
	if o.shape.elementsKind.IsFastDouble() {
		return len(o.doubles)
	}
	return len(o.elements)
}

// Elements returns the tagged backing store.
func (o *JSObject) Elements() []Value { return o.elements }

// DoubleElements returns the unboxed double backing store.
func (o *JSObject) DoubleElements() []float64 { return o.doubles }

// NumberDictionary returns the dictionary-mode element store.
func (o *JSObject) NumberDictionary() *NumberDictionary { return o.numberDict }

// TypedStore returns the typed array buffer.
func (o *JSObject) TypedStore() *TypedStore { return o.typed }

// GetOwnElement reads element index without consulting prototypes or
// interceptors. Holes report false.
func (o *JSObject) GetOwnElement(index uint32) (Value, bool) {
	kind := o.shape.elementsKind
	i := int(index)
	switch {
	case kind.IsTyped():
		if i >= o.typed.Len() {
			return Undefined, false
		}
		return o.typed.Load(i), true
	case kind.IsDictionary():
		e, ok := o.numberDict.Find(index)
		if !ok {
			return Undefined, false
		}
		return o.numberDict.ValueAt(e), true
	case kind.IsFastDouble():
		if i >= o.Length() || i >= len(o.doubles) || IsHoleNaN(o.doubles[i]) {
			return Undefined, false
		}
		return FromNumber(o.doubles[i]), true
	}
	if i >= o.Length() || i >= len(o.elements) || o.elements[i] == TheHole {
		return Undefined, false
	}
	return o.elements[i], true
}

// setArrayLength updates the length of an array, trimming or extending
// the fast backing store.
func (o *JSObject) setArrayLength(n int) {
	kind := o.shape.elementsKind
	switch {
	case kind.IsFastDouble():
		if n < len(o.doubles) {
			for i := n; i < len(o.doubles); i++ {
				o.doubles[i] = holeNaN
			}
		}
	case kind.IsFast():
		if n < len(o.elements) {
			for i := n; i < len(o.elements); i++ {
				o.elements[i] = TheHole
			}
		}
	}
	o.length = n
}

// EnsureElementsCapacity grows the fast backing store to hold at least n
// elements.
func (o *JSObject) EnsureElementsCapacity(h *Heap, n int) {
	if o.shape.elementsKind.IsFastDouble() {
		if n <= len(o.doubles) {
			return
		}
		grown := make([]float64, newCapacity(n))
		copy(grown, o.doubles)
		for i := len(o.doubles); i < len(grown); i++ {
			grown[i] = holeNaN
		}
		o.doubles = grown
		return
	}
	if n <= len(o.elements) {
		return
	}
	grown := make([]Value, newCapacity(n))
	copy(grown, o.elements)
	for i := len(o.elements); i < len(grown); i++ {
		grown[i] = TheHole
	}
	o.elements = grown
	h.Allocate(&FixedArray{values: grown})
}

// StoreFastElement writes v to a fast backing store slot that is known to
// exist, and extends an array's length to cover it.
func (o *JSObject) StoreFastElement(h *Heap, index int, v Value) {
	if o.shape.elementsKind.IsFastDouble() {
		o.doubles[index] = v.NumberValue()
	} else {
		o.elements[index] = v
		h.RecordWriteValue(o, ElementsOffset, v)
	}
	if o.shape.kind == ShapeArray && index >= o.length {
		o.length = index + 1
	}
}

func newCapacity(n int) int {
	return n + n/2 + 16
}

// ---------------------------------------------------------------------------
// Variant payloads
// ---------------------------------------------------------------------------

// Function returns the callable payload, or nil for non-functions.
func (o *JSObject) Function() *FunctionData { return o.fn }

// IsCallable reports whether the object can be called.
func (o *JSObject) IsCallable() bool { return o.fn != nil }

// ProxyTarget returns the global object behind a global proxy.
func (o *JSObject) ProxyTarget() *JSObject { return o.target }

// SecurityToken returns the token a global proxy is guarded by.
func (o *JSObject) SecurityToken() int { return o.securityToken }

// PrimitiveValue returns the wrapped value of a string wrapper.
func (o *JSObject) PrimitiveValue() Value { return o.primitive }

// IsGlobalObject reports whether o is a global object.
func (o *JSObject) IsGlobalObject() bool { return o.shape.kind == ShapeGlobalObject }

// IsGlobalProxy reports whether o is a global proxy.
func (o *JSObject) IsGlobalProxy() bool { return o.shape.kind == ShapeGlobalProxy }
