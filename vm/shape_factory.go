package vm

import "github.com/tliron/commonlog"

type initialShapeKey struct {
	kind     ShapeKind
	proto    *JSObject
	inObject int
}

// ShapeFactory creates root shapes and numbers every shape of an isolate.
type ShapeFactory struct {
	heap    *Heap
	log     commonlog.Logger
	nextID  uint32
	initial map[initialShapeKey]*Shape
	roots   []*Shape

	deprecated   int
	onDeprecated []func(*Shape)
}

// NewShapeFactory creates a factory allocating shapes on heap.
func NewShapeFactory(heap *Heap) *ShapeFactory {
	return &ShapeFactory{
		heap:    heap,
		log:     commonlog.GetLogger("shapecache.vm"),
		nextID:  1,
		initial: make(map[initialShapeKey]*Shape),
	}
}

func (f *ShapeFactory) publish(s *Shape) {
	s.id = f.nextID
	f.nextID++
	s.transitions = newTransitionTable()
	f.heap.Allocate(s)
}

// New creates a fresh root shape.
func (f *ShapeFactory) New(kind ShapeKind, proto *JSObject, inObject int, opts ...ShapeOption) *Shape {
	s := &Shape{
		factory:            f,
		kind:               kind,
		inObjectProperties: inObject,
		instanceSize:       ObjectHeaderSize + inObject*SlotSize,
		prototype:          proto,
		descriptors:        emptyDescriptors,
	}
	if kind == ShapeArray {
		s.instanceSize += SlotSize
	}
	for _, opt := range opts {
		opt(s)
	}
	f.publish(s)
	f.roots = append(f.roots, s)
	return s
}

// Initial returns the memoized root shape for objects of kind created with
// the given prototype.
func (f *ShapeFactory) Initial(kind ShapeKind, proto *JSObject, inObject int) *Shape {
	key := initialShapeKey{kind: kind, proto: proto, inObject: inObject}
	if s := f.initial[key]; s != nil {
		return s
	}
	s := f.New(kind, proto, inObject)
	f.initial[key] = s
	return s
}

// Roots returns every root shape in creation order.
func (f *ShapeFactory) Roots() []*Shape {
	out := make([]*Shape, len(f.roots))
	copy(out, f.roots)
	return out
}

// Count returns the number of shapes created.
func (f *ShapeFactory) Count() int { return int(f.nextID - 1) }

// Deprecated returns the number of shapes deprecated so far.
func (f *ShapeFactory) Deprecated() int { return f.deprecated }

// OnDeprecated registers a callback run whenever a shape is deprecated.
func (f *ShapeFactory) OnDeprecated(fn func(*Shape)) {
	f.onDeprecated = append(f.onDeprecated, fn)
}

func (f *ShapeFactory) notifyDeprecated(s *Shape) {
	f.deprecated++
	for _, fn := range f.onDeprecated {
		fn(s)
	}
}
