package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Shapes
// ---------------------------------------------------------------------------

// ShapeKind is the closed set of object kinds the inline caches
// distinguish between.
type ShapeKind uint8

const (
	ShapePlainObject ShapeKind = iota
	ShapeArray
	ShapeFunction
	ShapeGlobalObject
	ShapeGlobalProxy
	ShapeStringWrapper
	ShapeTypedArray
	ShapeModuleNamespace
	ShapeProxy
	ShapeHeapNumber
	ShapeString
	ShapeOddball
)

var shapeKindNames = [...]string{
	"object", "array", "function", "global", "global-proxy", "string-wrapper",
	"typed-array", "module-namespace", "proxy", "heap-number", "string", "oddball",
}

func (k ShapeKind) String() string {
	if int(k) < len(shapeKindNames) {
		return shapeKindNames[k]
	}
	return "?"
}

// IsJSObject reports whether instances of the kind are JSObjects with
// named properties of their own.
func (k ShapeKind) IsJSObject() bool { return k <= ShapeProxy }

// IsPrimitive reports whether the kind belongs to a primitive receiver
// whose properties come from a wrapper prototype.
func (k ShapeKind) IsPrimitive() bool { return k >= ShapeHeapNumber }

type shapeFlags uint16

const (
	flagDictionary shapeFlags = 1 << iota
	flagAccessCheckNeeded
	flagHiddenPrototype
	flagNamedInterceptor
	flagIndexedInterceptor
	flagInstanceCallHandler
	flagDeprecated
	flagNonExtensible
)

// MaxFastProperties bounds the number of fields a fast-mode shape may
// describe before objects are normalized.
const MaxFastProperties = 128

// FieldsAdded is how many out-of-object slots a properties array grows by.
const FieldsAdded = 3

// Shape is an immutable hidden class. Objects with the same shape have the
// same layout and the same prototype. Shapes are created through their
// factory and change only by producing new shapes.
type Shape struct {
	Header
	factory *ShapeFactory
	id      uint32

	kind         ShapeKind
	flags        shapeFlags
	elementsKind ElementsKind

	inObjectProperties   int
	instanceSize         int
	unusedPropertyFields int
	numberOfFields       int

	prototype   *JSObject
	descriptors *DescriptorArray

	backPointer     *Shape
	transitions     *TransitionTable
	migrationTarget *Shape
	normalized      *Shape

	constructor        *FunctionTemplate
	namedInterceptor   *InterceptorInfo
	indexedInterceptor *InterceptorInfo
	callHandler        *CallHandlerInfo

	codeCache []codeCacheEntry
}

type codeCacheEntry struct {
	name  *Name
	flags uint32
	code  HeapObject
}

// ShapeOption configures a shape before it is published.
type ShapeOption func(*Shape)

func WithAccessCheck() ShapeOption {
	return func(s *Shape) { s.flags |= flagAccessCheckNeeded }
}

func WithHiddenPrototype() ShapeOption {
	return func(s *Shape) { s.flags |= flagHiddenPrototype }
}

func WithDictionaryMode() ShapeOption {
	return func(s *Shape) { s.flags |= flagDictionary }
}

func NonExtensible() ShapeOption {
	return func(s *Shape) { s.flags |= flagNonExtensible }
}

func WithNamedInterceptor(info *InterceptorInfo) ShapeOption {
	return func(s *Shape) {
		s.namedInterceptor = info
		s.flags |= flagNamedInterceptor
	}
}

func WithIndexedInterceptor(info *InterceptorInfo) ShapeOption {
	return func(s *Shape) {
		s.indexedInterceptor = info
		s.flags |= flagIndexedInterceptor
	}
}

func WithCallHandler(h *CallHandlerInfo) ShapeOption {
	return func(s *Shape) {
		s.callHandler = h
		s.flags |= flagInstanceCallHandler
	}
}

func WithConstructor(t *FunctionTemplate) ShapeOption {
	return func(s *Shape) { s.constructor = t }
}

func WithElementsKind(k ElementsKind) ShapeOption {
	return func(s *Shape) { s.elementsKind = k }
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

func (s *Shape) ID() uint32                      { return s.id }
func (s *Shape) Kind() ShapeKind                 { return s.kind }
func (s *Shape) ElementsKind() ElementsKind      { return s.elementsKind }
func (s *Shape) InObjectProperties() int         { return s.inObjectProperties }
func (s *Shape) InstanceSize() int               { return s.instanceSize }
func (s *Shape) UnusedPropertyFields() int       { return s.unusedPropertyFields }
func (s *Shape) NumberOfFields() int             { return s.numberOfFields }
func (s *Shape) NumberOfOwnDescriptors() int     { return s.descriptors.Len() }
func (s *Shape) Descriptors() *DescriptorArray   { return s.descriptors }
func (s *Shape) Prototype() *JSObject            { return s.prototype }
func (s *Shape) BackPointer() *Shape             { return s.backPointer }
func (s *Shape) Constructor() *FunctionTemplate  { return s.constructor }
func (s *Shape) NamedInterceptor() *InterceptorInfo {
	return s.namedInterceptor
}
func (s *Shape) IndexedInterceptor() *InterceptorInfo {
	return s.indexedInterceptor
}
func (s *Shape) CallHandler() *CallHandlerInfo { return s.callHandler }

func (s *Shape) IsDictionaryMap() bool        { return s.flags&flagDictionary != 0 }
func (s *Shape) IsAccessCheckNeeded() bool    { return s.flags&flagAccessCheckNeeded != 0 }
func (s *Shape) HasHiddenPrototype() bool     { return s.flags&flagHiddenPrototype != 0 }
func (s *Shape) HasNamedInterceptor() bool    { return s.flags&flagNamedInterceptor != 0 }
func (s *Shape) HasIndexedInterceptor() bool  { return s.flags&flagIndexedInterceptor != 0 }
func (s *Shape) HasInstanceCallHandler() bool { return s.flags&flagInstanceCallHandler != 0 }
func (s *Shape) IsDeprecated() bool           { return s.flags&flagDeprecated != 0 }
func (s *Shape) IsExtensible() bool           { return s.flags&flagNonExtensible == 0 }

func (s *Shape) IsJSObject() bool       { return s.kind.IsJSObject() }
func (s *Shape) IsGlobalObject() bool   { return s.kind == ShapeGlobalObject }
func (s *Shape) IsGlobalProxy() bool    { return s.kind == ShapeGlobalProxy }
func (s *Shape) IsStringShape() bool    { return s.kind == ShapeString }
func (s *Shape) IsJSArray() bool        { return s.kind == ShapeArray }
func (s *Shape) IsPrimitiveShape() bool { return s.kind.IsPrimitive() }

// PrototypeShape returns the current shape of the prototype, or nil when
// the prototype is null.
func (s *Shape) PrototypeShape() *Shape {
	if s.prototype == nil {
		return nil
	}
	return s.prototype.Shape()
}

// CanHaveMoreProperties reports whether another field can be added without
// normalizing.
func (s *Shape) CanHaveMoreProperties() bool {
	return !s.IsDictionaryMap() && s.numberOfFields < MaxFastProperties && s.IsExtensible()
}

// LookupOwn searches the shape's own descriptors. Dictionary-mode shapes
// never describe their properties.
func (s *Shape) LookupOwn(name *Name) (Descriptor, int, bool) {
	if s.IsDictionaryMap() {
		return Descriptor{}, -1, false
	}
	i := s.descriptors.Search(name)
	if i < 0 {
		return Descriptor{}, -1, false
	}
	return s.descriptors.At(i), i, true
}

// FieldIndexOf returns the field index for descriptor d.
func (s *Shape) FieldIndexOf(d Descriptor) FieldIndex {
	return FieldIndexFor(s, d.Field)
}

// PropertiesCapacity is the length of the out-of-object properties array
// objects of this shape carry.
func (s *Shape) PropertiesCapacity() int {
	out := s.numberOfFields - s.inObjectProperties
	if out < 0 {
		out = 0
	}
	return out + s.unusedPropertyFields
}

// ---------------------------------------------------------------------------
// Deriving shapes
// ---------------------------------------------------------------------------

// derive creates an unpublished copy of s with s as back pointer.
func (s *Shape) derive() *Shape {
	n := &Shape{
		factory:              s.factory,
		kind:                 s.kind,
		flags:                s.flags &^ flagDeprecated,
		elementsKind:         s.elementsKind,
		inObjectProperties:   s.inObjectProperties,
		instanceSize:         s.instanceSize,
		unusedPropertyFields: s.unusedPropertyFields,
		numberOfFields:       s.numberOfFields,
		prototype:            s.prototype,
		descriptors:          s.descriptors,
		backPointer:          s,
		constructor:          s.constructor,
		namedInterceptor:     s.namedInterceptor,
		indexedInterceptor:   s.indexedInterceptor,
		callHandler:          s.callHandler,
	}
	s.factory.publish(n)
	return n
}

// Copy returns a shape with the same layout and a fresh identity. The copy
// has no back pointer and no transitions.
func (s *Shape) Copy(reason string) *Shape {
	return s.CopyWith(reason)
}

// CopyWith copies s and applies opts to the copy.
func (s *Shape) CopyWith(reason string, opts ...ShapeOption) *Shape {
	n := s.derive()
	n.backPointer = nil
	for _, opt := range opts {
		opt(n)
	}
	s.factory.log.Debugf("copy shape %d -> %d (%s)", s.id, n.id, reason)
	return n
}

// TransitionForNewProperty returns the shape objects of shape s take on
// when a data field name is added. Transitions are memoized: repeated
// calls with the same key return the identical shape, generalizing the
// field's representation when repr does not fit.
func (s *Shape) TransitionForNewProperty(name *Name, attrs Attributes, repr Representation) *Shape {
	Assert(!s.IsDictionaryMap(), "field transition on dictionary shape %d", s.id)
	if DebugAssertions {
		Assert(s.descriptors.Search(name) < 0, "shape %d already has %q", s.id, name)
	}
	key := transitionKey{name: name, kind: PropertyField, attrs: attrs}
	if t := s.transitions.find(key); t != nil {
		last := t.descriptors.Len() - 1
		d := t.descriptors.At(last)
		if d.Repr.Generalize(repr) != d.Repr {
			return t.GeneralizeField(last, repr)
		}
		return t
	}

	field := s.numberOfFields
	n := s.derive()
	n.numberOfFields++
	if field >= s.inObjectProperties {
		if s.unusedPropertyFields == 0 {
			n.unusedPropertyFields = FieldsAdded - 1
		} else {
			n.unusedPropertyFields = s.unusedPropertyFields - 1
		}
	}
	n.descriptors = s.descriptors.withAppended(Descriptor{
		Name: name, Kind: PropertyField, Attrs: attrs, Repr: repr, Field: field,
	})
	s.transitions.insert(key, n)
	return n
}

// TransitionForConstant adds a constant property. A memoized transition is
// reused only for the identical value; otherwise the property becomes a
// field.
func (s *Shape) TransitionForConstant(name *Name, value Value, attrs Attributes) *Shape {
	Assert(!s.IsDictionaryMap(), "constant transition on dictionary shape %d", s.id)
	key := transitionKey{name: name, kind: PropertyConstant, attrs: attrs}
	if t := s.transitions.find(key); t != nil {
		if t.descriptors.At(t.descriptors.Len()-1).Value == value {
			return t
		}
		return s.TransitionForNewProperty(name, attrs, RepresentationOf(value))
	}
	n := s.derive()
	n.descriptors = s.descriptors.withAppended(Descriptor{
		Name: name, Kind: PropertyConstant, Attrs: attrs, Repr: ReprTagged, Value: value,
	})
	s.transitions.insert(key, n)
	return n
}

// TransitionForAccessor adds an accessor property.
func (s *Shape) TransitionForAccessor(name *Name, accessor HeapObject, attrs Attributes) *Shape {
	Assert(!s.IsDictionaryMap(), "accessor transition on dictionary shape %d", s.id)
	key := transitionKey{name: name, kind: PropertyAccessor, attrs: attrs}
	desc := Descriptor{Name: name, Kind: PropertyAccessor, Attrs: attrs, Repr: ReprTagged, Accessor: accessor}
	if t := s.transitions.find(key); t != nil {
		if t.descriptors.At(t.descriptors.Len()-1).Accessor == accessor {
			return t
		}
		n := s.derive()
		n.descriptors = s.descriptors.withAppended(desc)
		return n
	}
	n := s.derive()
	n.descriptors = s.descriptors.withAppended(desc)
	s.transitions.insert(key, n)
	return n
}

// TransitionForElementsKind returns the shape with the given elements kind.
func (s *Shape) TransitionForElementsKind(kind ElementsKind) *Shape {
	if kind == s.elementsKind {
		return s
	}
	if t := s.transitions.elements[kind]; t != nil {
		return t
	}
	n := s.derive()
	n.elementsKind = kind
	s.transitions.insertElements(kind, n)
	return n
}

// TransitionForPrototype returns the shape with a different prototype.
// The result starts a new transition tree.
func (s *Shape) TransitionForPrototype(proto *JSObject) *Shape {
	if proto == s.prototype {
		return s
	}
	if t := s.transitions.prototypes[proto]; t != nil {
		return t
	}
	n := s.derive()
	n.backPointer = nil
	n.prototype = proto
	s.transitions.insertPrototype(proto, n)
	return n
}

// Normalize returns the dictionary-mode counterpart of s.
func (s *Shape) Normalize(reason string) *Shape {
	if s.IsDictionaryMap() {
		return s
	}
	if s.normalized != nil {
		return s.normalized
	}
	n := s.derive()
	n.backPointer = nil
	n.flags |= flagDictionary
	n.descriptors = emptyDescriptors
	n.numberOfFields = 0
	n.unusedPropertyFields = 0
	s.normalized = n
	s.factory.log.Debugf("normalize shape %d -> %d (%s)", s.id, n.id, reason)
	return n
}

// FindTransitionedShape returns the most general candidate reachable from
// s through elements-kind transitions, or nil.
func (s *Shape) FindTransitionedShape(candidates []*Shape) *Shape {
	if !s.elementsKind.IsFast() {
		return nil
	}
	var best *Shape
	for _, c := range candidates {
		if c == s || c.IsDeprecated() {
			continue
		}
		if !IsMoreGeneralElementsKindTransition(s.elementsKind, c.elementsKind) {
			continue
		}
		if s.TransitionForElementsKind(c.elementsKind) != c {
			continue
		}
		if best == nil || IsMoreGeneralElementsKindTransition(best.elementsKind, c.elementsKind) {
			best = c
		}
	}
	return best
}

// ---------------------------------------------------------------------------
// Deprecation and field generalization
// ---------------------------------------------------------------------------

// GeneralizeField widens the representation of field descriptor i. The
// shape that introduced the field and every shape derived from it are
// deprecated; the returned shape is the up-to-date counterpart of s.
func (s *Shape) GeneralizeField(i int, repr Representation) *Shape {
	d := s.descriptors.At(i)
	Assert(d.Kind == PropertyField, "generalize non-field %q", d.Name)
	newRepr := d.Repr.Generalize(repr)
	if newRepr == d.Repr {
		return s
	}

	owner := s
	for owner.backPointer != nil && owner.backPointer.descriptors.Len() > i {
		owner = owner.backPointer
	}
	parent := owner.backPointer

	od := owner.descriptors.At(i)
	od.Repr = newRepr
	root := owner.derive()
	root.backPointer = parent
	root.descriptors = owner.descriptors.withReplaced(i, od)
	if parent != nil && od.Name == owner.descriptors.At(owner.descriptors.Len()-1).Name {
		parent.transitions.replace(transitionKey{name: od.Name, kind: PropertyField, attrs: od.Attrs}, root)
	}

	s.factory.log.Infof("generalize %q on shape %d to %s", d.Name, s.id, newRepr)
	owner.deprecateTree(root)
	return root.replay(s, owner.descriptors.Len())
}

// Deprecate marks s unusable for new caches. Objects of a deprecated shape
// migrate to its updated shape on their next slow-path access.
func (s *Shape) Deprecate() {
	if s.IsDeprecated() {
		return
	}
	s.flags |= flagDeprecated
	s.factory.notifyDeprecated(s)
}

func (s *Shape) deprecateTree(target *Shape) {
	s.migrationTarget = target
	stack := []*Shape{s}
	for len(stack) > 0 {
		sh := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if sh.IsDeprecated() {
			continue
		}
		sh.Deprecate()
		stack = append(stack, sh.transitions.derived()...)
	}
}

// Updated returns the non-deprecated shape that instances of s migrate to.
func (s *Shape) Updated() *Shape {
	if !s.IsDeprecated() {
		return s
	}
	anc := s
	for anc.migrationTarget == nil && anc.backPointer != nil {
		anc = anc.backPointer
	}
	if anc.migrationTarget == nil {
		return s
	}
	target := anc.migrationTarget.Updated()
	res := target.replay(s, anc.descriptors.Len())
	s.migrationTarget = res
	return res
}

// replay re-applies src's descriptors from start onwards on top of s.
func (s *Shape) replay(src *Shape, start int) *Shape {
	cur := s
	for j := start; j < src.descriptors.Len(); j++ {
		d := src.descriptors.At(j)
		switch d.Kind {
		case PropertyField:
			cur = cur.TransitionForNewProperty(d.Name, d.Attrs, d.Repr)
		case PropertyConstant:
			cur = cur.TransitionForConstant(d.Name, d.Value, d.Attrs)
		case PropertyAccessor:
			cur = cur.TransitionForAccessor(d.Name, d.Accessor, d.Attrs)
		}
	}
	return cur.TransitionForElementsKind(src.elementsKind)
}

// ---------------------------------------------------------------------------
// Code cache
// ---------------------------------------------------------------------------

// FindInCodeCache returns compiled code cached on s for (name, flags).
func (s *Shape) FindInCodeCache(name *Name, flags uint32) HeapObject {
	for _, e := range s.codeCache {
		if e.name == name && e.flags == flags {
			return e.code
		}
	}
	return nil
}

// UpdateCodeCache caches code on s, replacing any entry with the same key.
func (s *Shape) UpdateCodeCache(name *Name, flags uint32, code HeapObject) {
	for i := range s.codeCache {
		if s.codeCache[i].name == name && s.codeCache[i].flags == flags {
			s.codeCache[i].code = code
			s.factory.heap.RecordWrite(s, i*SlotSize, code)
			return
		}
	}
	s.codeCache = append(s.codeCache, codeCacheEntry{name: name, flags: flags, code: code})
	s.factory.heap.RecordWrite(s, (len(s.codeCache)-1)*SlotSize, code)
}

// RemoveFromCodeCache drops the entry for (name, flags) if it holds code.
func (s *Shape) RemoveFromCodeCache(name *Name, flags uint32, code HeapObject) {
	for i := range s.codeCache {
		e := s.codeCache[i]
		if e.name == name && e.flags == flags && e.code == code {
			s.codeCache = append(s.codeCache[:i], s.codeCache[i+1:]...)
			return
		}
	}
}

// ClearCodeCache drops every cached code entry.
func (s *Shape) ClearCodeCache() { s.codeCache = nil }

// CodeCacheLen returns the number of cached code entries.
func (s *Shape) CodeCacheLen() int { return len(s.codeCache) }

// Transitions returns the shapes directly derived from s, in creation
// order.
func (s *Shape) Transitions() []*Shape { return s.transitions.all() }

func (s *Shape) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Shape#%d(%s", s.id, s.kind)
	if s.IsDictionaryMap() {
		b.WriteString(", dictionary")
	}
	if s.IsDeprecated() {
		b.WriteString(", deprecated")
	}
	if s.descriptors.Len() > 0 {
		b.WriteString(" {")
		for i := 0; i < s.descriptors.Len(); i++ {
			d := s.descriptors.At(i)
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s:%s", d.Name, d.Kind)
			if d.Kind == PropertyField {
				fmt.Fprintf(&b, "/%s", d.Repr)
			}
		}
		b.WriteString("}")
	}
	b.WriteString(")")
	return b.String()
}
