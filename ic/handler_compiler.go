package ic

import (
	"github.com/tliron/commonlog"

	"github.com/chazu/shapecache/vm"
)

// HandlerCompiler turns the result of a property lookup into a handler.
// Compile methods return an error wrapping ErrUncacheable when the access
// cannot be specialized.
type HandlerCompiler struct {
	iso *vm.Isolate
	log commonlog.Logger

	loadNormal  Handler
	storeNormal Handler

	// Compiled counts handlers built since creation.
	Compiled uint64
}

// NewHandlerCompiler returns a compiler allocating handlers on iso's heap.
func NewHandlerCompiler(iso *vm.Isolate) *HandlerCompiler {
	c := &HandlerCompiler{iso: iso, log: commonlog.GetLogger("shapecache.ic")}
	c.loadNormal = c.allocate(&loadNormalHandler{
		handlerBase: handlerBase{kind: HandlerLoadNormal, flags: ComputeHandlerFlags(KindLoad, StubNormal, OwnShape)},
	})
	c.storeNormal = c.allocate(&storeNormalHandler{
		handlerBase: handlerBase{kind: HandlerStoreNormal, flags: ComputeHandlerFlags(KindStore, StubNormal, OwnShape)},
	})
	c.Compiled = 0
	return c
}

func (c *HandlerCompiler) allocate(h Handler) Handler {
	c.iso.Heap.Allocate(h)
	c.Compiled++
	c.log.Debugf("compiled %s", h)
	return h
}

// base fills in the common handler fields. Primitive receivers cache on
// their wrapper prototype's shape.
func base(kind HandlerKind, served Kind, a *Access, front *Frontend) handlerBase {
	holder := OwnShape
	if a.Object == nil {
		holder = PrototypeShape
	}
	return handlerBase{kind: kind, flags: ComputeHandlerFlags(served, StubFast, holder), name: a.Name, front: front}
}

// frontend validates the prototype chain from the receiver to holder.
func (c *HandlerCompiler) frontend(a *Access, holder *vm.JSObject) (*Frontend, error) {
	return CheckPrototypes(c.iso, a.Shape, a.Object, holder, a.Name)
}

// ---------------------------------------------------------------------------
// Loads
// ---------------------------------------------------------------------------

// CompileLoad looks a.Name up from the receiver and compiles the matching
// load handler.
func (c *HandlerCompiler) CompileLoad(a *Access) (Handler, error) {
	if a.Shape == nil {
		return nil, uncacheable("load from %s", a.Receiver)
	}
	if _, ok := a.Name.AsArrayIndex(); ok {
		return nil, uncacheable("element load through a named site")
	}
	if a.Object == nil && a.Shape.IsStringShape() && a.Name == c.iso.LengthName {
		return c.CompileLoadStringLength(a)
	}
	r := c.iso.LookupForReceiver(a.Receiver, a.Name)
	a.refresh()
	switch r.State {
	case vm.LookupNotFound:
		return c.CompileLoadNonexistent(a)
	case vm.LookupInterceptor:
		return c.CompileLoadInterceptor(a, r.Holder)
	case vm.LookupField:
		return c.CompileLoadField(a, r.Holder, r.Descriptor)
	case vm.LookupConstant:
		return c.CompileLoadConstant(a, r.Holder, r.Descriptor.Value)
	case vm.LookupAccessor:
		if !r.Holder.HasFastProperties() {
			return nil, uncacheable("accessor %q in dictionary", a.Name)
		}
		switch acc := r.Accessor(c.iso.Heap).(type) {
		case *vm.AccessorInfo:
			return c.CompileLoadCallback(a, r.Holder, acc)
		case *vm.AccessorPair:
			return c.CompileLoadViaGetter(a, r.Holder, acc)
		}
	case vm.LookupNormal:
		if r.Holder == a.Object {
			return c.loadNormal, nil
		}
		return nil, uncacheable("dictionary property %q on a prototype", a.Name)
	case vm.LookupGlobalCell:
		return c.CompileLoadGlobal(a, r.Holder, r.Cell)
	case vm.LookupArrayLength:
		if r.Holder == a.Object {
			return c.CompileLoadArrayLength(a)
		}
	case vm.LookupStringLength:
		if r.Holder == a.Object {
			return c.CompileLoadStringLength(a)
		}
	}
	return nil, uncacheable("load of %q found %s", a.Name, r.State)
}

// CompileLoadField compiles a load of field d from holder.
func (c *HandlerCompiler) CompileLoadField(a *Access, holder *vm.JSObject, d vm.Descriptor) (Handler, error) {
	front, err := c.frontend(a, holder)
	if err != nil {
		return nil, err
	}
	h := &loadFieldHandler{
		handlerBase: base(HandlerLoadField, KindLoad, a, front),
		index:       vm.FieldIndexFor(holder.Shape(), d.Field),
		repr:        d.Repr,
	}
	if holder == a.Object {
		h.front.Holder = nil
	}
	return c.allocate(h), nil
}

// CompileLoadConstant compiles a load returning value.
func (c *HandlerCompiler) CompileLoadConstant(a *Access, holder *vm.JSObject, value vm.Value) (Handler, error) {
	front, err := c.frontend(a, holder)
	if err != nil {
		return nil, err
	}
	return c.allocate(&loadConstantHandler{handlerBase: base(HandlerLoadConstant, KindLoad, a, front), value: value}), nil
}

// CompileLoadCallback compiles a load through a native accessor.
func (c *HandlerCompiler) CompileLoadCallback(a *Access, holder *vm.JSObject, info *vm.AccessorInfo) (Handler, error) {
	if info.Getter == nil {
		return nil, uncacheable("accessor %q has no getter", a.Name)
	}
	if !info.IsCompatibleReceiver(a.Shape) {
		return nil, uncacheable("incompatible receiver for accessor %q", a.Name)
	}
	front, err := c.frontend(a, holder)
	if err != nil {
		return nil, err
	}
	return c.allocate(&loadCallbackHandler{handlerBase: base(HandlerLoadCallback, KindLoad, a, front), info: info}), nil
}

// CompileLoadViaGetter compiles a load calling a getter function.
func (c *HandlerCompiler) CompileLoadViaGetter(a *Access, holder *vm.JSObject, pair *vm.AccessorPair) (Handler, error) {
	front, err := c.frontend(a, holder)
	if err != nil {
		return nil, err
	}
	return c.allocate(&loadViaGetterHandler{handlerBase: base(HandlerLoadViaGetter, KindLoad, a, front), pair: pair}), nil
}

// CompileLoadInterceptor compiles a load through holder's named
// interceptor. When the interceptor sits on the receiver and the lookup
// past it finds a field or native accessor, that lookup is inlined as the
// continuation.
func (c *HandlerCompiler) CompileLoadInterceptor(a *Access, holder *vm.JSObject) (Handler, error) {
	if holder.Shape().NamedInterceptor().NamedGetter == nil {
		return nil, uncacheable("interceptor without getter")
	}
	front, err := c.frontend(a, holder)
	if err != nil {
		return nil, err
	}
	h := &loadInterceptorHandler{handlerBase: base(HandlerLoadInterceptor, KindLoad, a, front)}
	if holder == a.Object {
		h.post = c.compilePostInterceptor(a, holder)
	}
	return c.allocate(h), nil
}

func (c *HandlerCompiler) compilePostInterceptor(a *Access, holder *vm.JSObject) Handler {
	r := c.iso.LookupPostInterceptor(holder, a.Name)
	var (
		post Handler
		err  error
	)
	switch r.State {
	case vm.LookupField:
		post, err = c.CompileLoadField(a, r.Holder, r.Descriptor)
	case vm.LookupAccessor:
		if info, ok := r.Accessor(c.iso.Heap).(*vm.AccessorInfo); ok && r.Holder.HasFastProperties() {
			post, err = c.CompileLoadCallback(a, r.Holder, info)
		}
	}
	if err != nil {
		return nil
	}
	return post
}

// CompileLoadNonexistent compiles a load proving a.Name absent from the
// whole prototype chain.
func (c *HandlerCompiler) CompileLoadNonexistent(a *Access) (Handler, error) {
	if a.Object != nil && a.Shape.Prototype() == nil {
		return nil, uncacheable("receiver without prototype")
	}
	front, err := c.frontend(a, nil)
	if err != nil {
		return nil, err
	}
	return c.allocate(&loadNonexistentHandler{handlerBase: base(HandlerLoadNonexistent, KindLoad, a, front)}), nil
}

// CompileLoadGlobal compiles a load reading global's property cell.
func (c *HandlerCompiler) CompileLoadGlobal(a *Access, global *vm.JSObject, cell *vm.PropertyCell) (Handler, error) {
	front, err := c.frontend(a, global)
	if err != nil {
		return nil, err
	}
	return c.allocate(&loadGlobalHandler{handlerBase: base(HandlerLoadGlobal, KindLoad, a, front), cell: cell}), nil
}

// CompileLoadArrayLength compiles a load of an array's length.
func (c *HandlerCompiler) CompileLoadArrayLength(a *Access) (Handler, error) {
	front, err := c.frontend(a, a.Object)
	if err != nil {
		return nil, err
	}
	return c.allocate(&loadArrayLengthHandler{handlerBase: base(HandlerLoadArrayLength, KindLoad, a, front)}), nil
}

// CompileLoadStringLength compiles a length load on string primitives or
// String wrappers.
func (c *HandlerCompiler) CompileLoadStringLength(a *Access) (Handler, error) {
	var front *Frontend
	wrapper := a.Object != nil
	if wrapper {
		var err error
		if front, err = c.frontend(a, a.Object); err != nil {
			return nil, err
		}
	} else {
		front = &Frontend{Guards: []Guard{&PrimitiveCheck{Kind: a.Shape.Kind()}}}
	}
	h := &loadStringLengthHandler{handlerBase: base(HandlerLoadStringLength, KindLoad, a, front), wrapper: wrapper}
	return c.allocate(h), nil
}

// ---------------------------------------------------------------------------
// Stores
// ---------------------------------------------------------------------------

// CompileStore looks a.Name up for writing and compiles the matching store
// handler.
func (c *HandlerCompiler) CompileStore(a *Access) (Handler, error) {
	o := a.Object
	if o == nil {
		return nil, uncacheable("store to primitive %s", a.Receiver)
	}
	if _, ok := a.Name.AsArrayIndex(); ok {
		return nil, uncacheable("element store through a named site")
	}
	if info := a.Shape.NamedInterceptor(); info != nil && info.NamedSetter != nil {
		return c.CompileStoreInterceptor(a)
	}
	target := o
	if o.IsGlobalProxy() {
		if !c.iso.MayAccess(o) {
			return nil, uncacheable("global proxy fails the access check")
		}
		target = o.ProxyTarget()
	} else if a.Shape.IsAccessCheckNeeded() {
		return nil, uncacheable("access-checked receiver")
	}

	r := c.iso.LookupOwn(target, a.Name, true)
	if !r.IsFound() {
		if proto := target.Shape().Prototype(); proto != nil {
			r = c.iso.LookupRealNamedProperty(proto, a.Name)
		}
	}
	if target == o {
		// LookupOwn may have migrated a deprecated receiver.
		a.refresh()
	}

	switch {
	case r.State == vm.LookupAccessor:
		if !r.Holder.HasFastProperties() {
			return nil, uncacheable("accessor %q in dictionary", a.Name)
		}
		switch acc := r.Accessor(c.iso.Heap).(type) {
		case *vm.AccessorInfo:
			return c.CompileStoreCallback(a, r.Holder, acc)
		case *vm.AccessorPair:
			return c.CompileStoreViaSetter(a, r.Holder, acc)
		}
		return nil, uncacheable("unknown accessor for %q", a.Name)
	case r.IsFound() && r.IsReadOnly():
		return nil, uncacheable("%q is read-only", a.Name)
	case r.IsFound() && r.Holder == target:
		return c.compileStoreOwn(a, target, &r)
	case r.IsFound() && !r.Holder.HasFastProperties():
		return nil, uncacheable("%q shadows a dictionary property", a.Name)
	}
	if target != o || o.IsGlobalObject() {
		return nil, uncacheable("new global %q", a.Name)
	}
	var holder *vm.JSObject
	if r.IsFound() {
		holder = r.Holder
	}
	return c.CompileStoreTransition(a, holder)
}

func (c *HandlerCompiler) compileStoreOwn(a *Access, target *vm.JSObject, r *vm.LookupResult) (Handler, error) {
	switch r.State {
	case vm.LookupGlobalCell:
		return c.CompileStoreGlobal(a, target, r.Cell)
	case vm.LookupField:
		if target == a.Object {
			return c.CompileStoreField(a, r.Descriptor)
		}
	case vm.LookupNormal:
		if target == a.Object {
			return c.storeNormal, nil
		}
	case vm.LookupArrayLength:
		if a.Shape.IsJSArray() {
			return c.CompileStoreArrayLength(a)
		}
	}
	return nil, uncacheable("store to own %q found %s", a.Name, r.State)
}

// CompileStoreField compiles an overwrite of the receiver's field d.
func (c *HandlerCompiler) CompileStoreField(a *Access, d vm.Descriptor) (Handler, error) {
	if !d.Repr.Fits(a.Value) {
		return nil, uncacheable("%s does not fit %s field %q", a.Value, d.Repr, a.Name)
	}
	front, err := c.frontend(a, a.Object)
	if err != nil {
		return nil, err
	}
	h := &storeFieldHandler{
		handlerBase: base(HandlerStoreField, KindStore, a, front),
		desc:        d,
		index:       vm.FieldIndexFor(a.Shape, d.Field),
	}
	h.front.Holder = nil
	return c.allocate(h), nil
}

// CompileStoreTransition compiles the addition of a.Name as a new field.
// holder is the prototype holding a shadowed writable data property, or
// nil when the name is absent from the chain.
func (c *HandlerCompiler) CompileStoreTransition(a *Access, holder *vm.JSObject) (Handler, error) {
	s := a.Shape
	if !s.CanHaveMoreProperties() {
		return nil, uncacheable("%s cannot take more properties", s)
	}
	target := s.TransitionForNewProperty(a.Name, vm.AttrNone, vm.RepresentationOf(a.Value))
	d := target.Descriptors().At(target.Descriptors().Len() - 1)
	if d.Kind != vm.PropertyField || d.Name != a.Name {
		return nil, uncacheable("transition for %q is not a field", a.Name)
	}
	front, err := c.frontend(a, holder)
	if err != nil {
		return nil, err
	}
	// The transition guards the chain, not the holder's value.
	front.Holder = nil
	index := vm.FieldIndexFor(target, d.Field)
	h := &storeTransitionHandler{
		handlerBase: base(HandlerStoreTransition, KindStore, a, front),
		target:      target,
		desc:        d,
		index:       index,
		extend:      !index.IsInObject() && s.UnusedPropertyFields() == 0,
	}
	return c.allocate(h), nil
}

// CompileStoreCallback compiles a store through a native accessor.
func (c *HandlerCompiler) CompileStoreCallback(a *Access, holder *vm.JSObject, info *vm.AccessorInfo) (Handler, error) {
	if info.Setter == nil {
		return nil, uncacheable("accessor %q has no setter", a.Name)
	}
	if !info.IsCompatibleReceiver(a.Shape) {
		return nil, uncacheable("incompatible receiver for accessor %q", a.Name)
	}
	front, err := c.frontend(a, holder)
	if err != nil {
		return nil, err
	}
	return c.allocate(&storeCallbackHandler{handlerBase: base(HandlerStoreCallback, KindStore, a, front), info: info}), nil
}

// CompileStoreViaSetter compiles a store calling a setter function.
func (c *HandlerCompiler) CompileStoreViaSetter(a *Access, holder *vm.JSObject, pair *vm.AccessorPair) (Handler, error) {
	if pair.Setter == vm.Undefined {
		return nil, uncacheable("accessor %q has no setter", a.Name)
	}
	front, err := c.frontend(a, holder)
	if err != nil {
		return nil, err
	}
	return c.allocate(&storeViaSetterHandler{handlerBase: base(HandlerStoreViaSetter, KindStore, a, front), pair: pair}), nil
}

// CompileStoreInterceptor compiles a store offered to the receiver's
// named interceptor.
func (c *HandlerCompiler) CompileStoreInterceptor(a *Access) (Handler, error) {
	front, err := c.frontend(a, a.Object)
	if err != nil {
		return nil, err
	}
	front.Holder = nil
	return c.allocate(&storeInterceptorHandler{handlerBase: base(HandlerStoreInterceptor, KindStore, a, front)}), nil
}

// CompileStoreGlobal compiles a store writing global's property cell.
func (c *HandlerCompiler) CompileStoreGlobal(a *Access, global *vm.JSObject, cell *vm.PropertyCell) (Handler, error) {
	if cell.IsReadOnly() {
		return nil, uncacheable("global %q is read-only", a.Name)
	}
	front, err := c.frontend(a, global)
	if err != nil {
		return nil, err
	}
	return c.allocate(&storeGlobalHandler{handlerBase: base(HandlerStoreGlobal, KindStore, a, front), cell: cell}), nil
}

// CompileStoreArrayLength compiles a store to an array's length.
func (c *HandlerCompiler) CompileStoreArrayLength(a *Access) (Handler, error) {
	front, err := c.frontend(a, a.Object)
	if err != nil {
		return nil, err
	}
	front.Holder = nil
	return c.allocate(&storeArrayLengthHandler{handlerBase: base(HandlerStoreArrayLength, KindStore, a, front)}), nil
}

// ---------------------------------------------------------------------------
// Elements
// ---------------------------------------------------------------------------

func (c *HandlerCompiler) elementReceiver(a *Access) error {
	switch {
	case a.Object == nil:
		return uncacheable("element access on primitive %s", a.Receiver)
	case a.Object.IsGlobalProxy() || a.Shape.IsAccessCheckNeeded():
		return uncacheable("element access on access-checked object")
	case a.Shape.HasIndexedInterceptor():
		return uncacheable("indexed interceptor")
	case a.Shape.IsDeprecated():
		return uncacheable("deprecated receiver shape")
	}
	return nil
}

// CompileKeyedLoad compiles an element load for the receiver's elements
// kind.
func (c *HandlerCompiler) CompileKeyedLoad(a *Access) (Handler, error) {
	if err := c.elementReceiver(a); err != nil {
		return nil, err
	}
	h := &keyedLoadElementHandler{
		handlerBase:  handlerBase{kind: HandlerKeyedLoadElement, flags: ComputeHandlerFlags(KindKeyedLoad, StubFast, OwnShape)},
		elementsKind: a.Shape.ElementsKind(),
	}
	h.front = &Frontend{Guards: []Guard{&ShapeCheck{Shape: a.Shape}}}
	return c.allocate(h), nil
}

// CompileKeyedStore compiles an element store. When the value needs a
// more general elements kind, the store transitions the receiver to the
// matching shape among candidates, or to the kind the value needs.
func (c *HandlerCompiler) CompileKeyedStore(a *Access, mode StoreMode, candidates []*vm.Shape) (Handler, error) {
	if err := c.elementReceiver(a); err != nil {
		return nil, err
	}
	s := a.Shape
	kind := s.ElementsKind()
	if kind.IsFast() {
		if to := s.FindTransitionedShape(candidates); to != nil {
			return c.CompileElementsTransitionAndStore(a, to, mode)
		}
		if need := vm.ElementsKindForValue(a.Value); vm.IsMoreGeneralElementsKindTransition(kind, need) {
			return c.CompileElementsTransitionAndStore(a, s.TransitionForElementsKind(need), mode)
		}
	}
	if mode == StoreGrow && !(s.IsJSArray() && kind.IsFast()) {
		mode = StoreStandard
	}
	h := &keyedStoreElementHandler{
		handlerBase:  handlerBase{kind: HandlerKeyedStoreElement, flags: ComputeKeyedStoreHandlerFlags(mode, StubFast)},
		elementsKind: kind,
		mode:         mode,
	}
	h.front = &Frontend{Guards: []Guard{&ShapeCheck{Shape: s}}}
	return c.allocate(h), nil
}

// CompileElementsTransitionAndStore compiles a store that first moves the
// receiver from its shape to target.
func (c *HandlerCompiler) CompileElementsTransitionAndStore(a *Access, target *vm.Shape, mode StoreMode) (Handler, error) {
	if err := c.elementReceiver(a); err != nil {
		return nil, err
	}
	if !vm.IsMoreGeneralElementsKindTransition(a.Shape.ElementsKind(), target.ElementsKind()) {
		return nil, uncacheable("%s is not a generalization of %s", target.ElementsKind(), a.Shape.ElementsKind())
	}
	if mode == StoreIgnoreOutOfBounds {
		mode = StoreStandard
	}
	h := &elementsTransitionAndStoreHandler{
		handlerBase: handlerBase{kind: HandlerElementsTransitionAndStore, flags: ComputeKeyedStoreHandlerFlags(mode, StubFast)},
		target:      target,
		mode:        mode,
	}
	h.front = &Frontend{Guards: []Guard{&ShapeCheck{Shape: a.Shape}}}
	return c.allocate(h), nil
}

// ---------------------------------------------------------------------------
// Calls and the slow path
// ---------------------------------------------------------------------------

// CompileCall compiles a call of a.Name on the receiver. Constant
// methods and functions bound in global cells are specialized.
func (c *HandlerCompiler) CompileCall(a *Access) (Handler, error) {
	if a.Shape == nil {
		return nil, uncacheable("call on %s", a.Receiver)
	}
	r := c.iso.LookupForReceiver(a.Receiver, a.Name)
	a.refresh()
	switch r.State {
	case vm.LookupConstant:
		fn, ok := c.iso.ObjectOf(r.Descriptor.Value)
		if !ok || !fn.IsCallable() {
			return nil, uncacheable("constant %q is not callable", a.Name)
		}
		return c.CompileCallConstant(a, r.Holder, fn)
	case vm.LookupGlobalCell:
		fn, ok := c.iso.ObjectOf(r.Cell.Value())
		if !ok || !fn.IsCallable() {
			return nil, uncacheable("global %q is not callable", a.Name)
		}
		return c.CompileCallGlobal(a, r.Holder, r.Cell)
	}
	return nil, uncacheable("call of %q found %s", a.Name, r.State)
}

// CompileCallConstant compiles a call of the constant function fn found
// on holder.
func (c *HandlerCompiler) CompileCallConstant(a *Access, holder, fn *vm.JSObject) (Handler, error) {
	front, err := c.frontend(a, holder)
	if err != nil {
		return nil, err
	}
	h := &callConstantHandler{
		handlerBase: base(HandlerCallConstant, KindCall, a, front),
		fn:          c.iso.ValueOf(fn),
		opt:         NewCallOptimization(fn),
		apiDepth:    -1,
	}
	if h.opt.IsSimpleAPICall() && a.Object != nil {
		if _, depth, ok := h.opt.LookupHolderOfExpectedType(a.Object, nil); ok {
			h.apiDepth = depth
		}
	}
	return c.allocate(h), nil
}

// CompileCallGlobal compiles a call of the function held in a global
// property cell.
func (c *HandlerCompiler) CompileCallGlobal(a *Access, global *vm.JSObject, cell *vm.PropertyCell) (Handler, error) {
	front, err := c.frontend(a, global)
	if err != nil {
		return nil, err
	}
	front.add(&CellValueCheck{Cell: cell, Value: cell.Value()})
	return c.allocate(&callGlobalHandler{handlerBase: base(HandlerCallGlobal, KindCall, a, front), cell: cell}), nil
}

// CompileSlow returns a handler that always defers to the runtime.
func (c *HandlerCompiler) CompileSlow(kind Kind, a *Access) Handler {
	h := &slowHandler{runtime: slowEntry(kind)}
	h.handlerBase = handlerBase{kind: HandlerSlow, flags: ComputeHandlerFlags(kind, StubFast, OwnShape), name: a.Name}
	h.front = &Frontend{}
	if a.Shape != nil && a.Object != nil {
		h.front.add(&ShapeCheck{Shape: a.Shape})
	} else if a.Shape != nil {
		h.front.add(&PrimitiveCheck{Kind: a.Shape.Kind()})
	}
	return c.allocate(h)
}

func slowEntry(kind Kind) string {
	switch kind {
	case KindKeyedLoad:
		return RuntimeKeyedGetProperty
	case KindStore:
		return RuntimeSetProperty
	case KindKeyedStore:
		return RuntimeKeyedSetProperty
	case KindCall:
		return RuntimeCall
	}
	return RuntimeGetProperty
}
