package ic

import (
	"github.com/chazu/shapecache/codegen"
	"github.com/chazu/shapecache/vm"
)

// ---------------------------------------------------------------------------
// Field stores and transitions
// ---------------------------------------------------------------------------

type storeFieldHandler struct {
	handlerBase
	desc  vm.Descriptor
	index vm.FieldIndex
}

func (h *storeFieldHandler) Invoke(a *Access) (vm.Value, error) {
	if err := h.front.Check(a); err != nil {
		return vm.Undefined, err
	}
	if !h.desc.Repr.Fits(a.Value) {
		return vm.Undefined, ErrCacheMiss
	}
	a.Iso.WriteField(a.Object, a.Shape, h.desc, a.Value)
	return a.Value, nil
}

func (h *storeFieldHandler) Describe(refs *ExternalReferenceTable) codegen.Stub {
	s := h.stub(refs, codegen.OpStoreField)
	s.InObject = h.index.IsInObject()
	s.Offset = h.index.ByteOffset()
	s.Repr = h.desc.Repr
	s.Barrier = h.desc.Repr.NeedsWriteBarrier()
	return s
}

// storeTransitionHandler adds a field by moving the receiver to target.
// extend is set when the out-of-object backing store has no room left.
type storeTransitionHandler struct {
	handlerBase
	target *vm.Shape
	desc   vm.Descriptor
	index  vm.FieldIndex
	extend bool
}

func (h *storeTransitionHandler) Invoke(a *Access) (vm.Value, error) {
	if err := h.front.Check(a); err != nil {
		return vm.Undefined, err
	}
	if h.target.IsDeprecated() || !h.desc.Repr.Fits(a.Value) {
		return vm.Undefined, ErrCacheMiss
	}
	o, heap := a.Object, a.Iso.Heap
	switch {
	case h.extend:
		a.Iso.StoreTransition(o, h.target, a.Value)
	case h.desc.Repr == vm.ReprDouble:
		// Box before the shape changes so the object never has the new
		// shape with an unboxed field.
		box := a.Iso.NewDoubleBox(a.Value.NumberValue())
		o.SetShape(heap, h.target)
		o.FastPropertyAtPut(heap, h.index, box)
	default:
		o.SetShape(heap, h.target)
		a.Iso.WriteField(o, h.target, h.desc, a.Value)
	}
	return a.Value, nil
}

func (h *storeTransitionHandler) Valid(iso *vm.Isolate) bool {
	return !h.target.IsDeprecated() && h.front.Valid(iso)
}

func (h *storeTransitionHandler) Describe(refs *ExternalReferenceTable) codegen.Stub {
	s := h.stub(refs, codegen.OpStoreTransition)
	s.InObject = h.index.IsInObject()
	s.Offset = h.index.ByteOffset()
	s.Repr = h.desc.Repr
	s.Barrier = h.desc.Repr.NeedsWriteBarrier()
	s.NewShape = shapeLiteral(h.target)
	s.ExtendStorage = h.extend
	if h.extend {
		s.Runtime = refs.Literal(RuntimeExtendStorage)
	}
	return s
}

// ---------------------------------------------------------------------------
// Accessors and interceptors
// ---------------------------------------------------------------------------

type storeCallbackHandler struct {
	handlerBase
	info *vm.AccessorInfo
}

func (h *storeCallbackHandler) Invoke(a *Access) (vm.Value, error) {
	if err := h.front.Check(a); err != nil {
		return vm.Undefined, err
	}
	if err := a.Iso.StoreCallbackProperty(a.Receiver, h.front.holder(a), h.info, h.name, a.Value); err != nil {
		return vm.Undefined, err
	}
	return a.Value, nil
}

func (h *storeCallbackHandler) Describe(refs *ExternalReferenceTable) codegen.Stub {
	s := h.stub(refs, codegen.OpStoreCallback)
	s.Callee = heapLiteral(h.info, "accessor "+h.name.String())
	s.Runtime = refs.Literal(RuntimeStoreCallbackProperty)
	return s
}

type storeViaSetterHandler struct {
	handlerBase
	pair *vm.AccessorPair
}

func (h *storeViaSetterHandler) Invoke(a *Access) (vm.Value, error) {
	if err := h.front.Check(a); err != nil {
		return vm.Undefined, err
	}
	if _, err := a.Iso.Call(h.pair.Setter, a.Receiver, []vm.Value{a.Value}); err != nil {
		return vm.Undefined, err
	}
	return a.Value, nil
}

func (h *storeViaSetterHandler) Describe(refs *ExternalReferenceTable) codegen.Stub {
	s := h.stub(refs, codegen.OpStoreViaSetter)
	s.Callee = valueLiteral(h.pair.Setter)
	return s
}

type storeInterceptorHandler struct {
	handlerBase
}

func (h *storeInterceptorHandler) Invoke(a *Access) (vm.Value, error) {
	if err := h.front.Check(a); err != nil {
		return vm.Undefined, err
	}
	if err := a.Iso.StorePropertyWithInterceptor(a.Object, h.name, a.Value, a.Strict); err != nil {
		return vm.Undefined, err
	}
	return a.Value, nil
}

func (h *storeInterceptorHandler) Describe(refs *ExternalReferenceTable) codegen.Stub {
	s := h.stub(refs, codegen.OpStoreInterceptor)
	s.Runtime = refs.Literal(RuntimeStoreInterceptor)
	return s
}

// ---------------------------------------------------------------------------
// Dictionaries, globals and lengths
// ---------------------------------------------------------------------------

// storeNormalHandler is shared by every dictionary-mode receiver. It only
// overwrites existing writable data properties.
type storeNormalHandler struct {
	handlerBase
}

func (h *storeNormalHandler) Invoke(a *Access) (vm.Value, error) {
	o := a.Object
	if o == nil || o.HasFastProperties() || o.IsGlobalObject() {
		return vm.Undefined, ErrCacheMiss
	}
	dict := o.Dictionary()
	e, ok := dict.Find(a.Name)
	if !ok {
		return vm.Undefined, ErrCacheMiss
	}
	if d := dict.DetailsAt(e); d.Accessor || d.Attrs.IsReadOnly() {
		return vm.Undefined, ErrCacheMiss
	}
	a.Iso.SetDictionaryValue(o, e, a.Value)
	return a.Value, nil
}

func (h *storeNormalHandler) Describe(refs *ExternalReferenceTable) codegen.Stub {
	s := h.stub(refs, codegen.OpStoreNormal)
	s.Name = h.kind.String()
	return s
}

type storeGlobalHandler struct {
	handlerBase
	cell *vm.PropertyCell
}

func (h *storeGlobalHandler) Invoke(a *Access) (vm.Value, error) {
	if err := h.front.Check(a); err != nil {
		return vm.Undefined, err
	}
	if h.cell.IsHole() || h.cell.IsReadOnly() {
		return vm.Undefined, ErrCacheMiss
	}
	h.cell.SetValue(a.Iso.Heap, a.Value)
	return a.Value, nil
}

func (h *storeGlobalHandler) Describe(refs *ExternalReferenceTable) codegen.Stub {
	s := h.stub(refs, codegen.OpStoreGlobal)
	s.Callee = heapLiteral(h.cell, "cell "+h.name.String())
	s.Barrier = true
	return s
}

type storeArrayLengthHandler struct {
	handlerBase
}

func (h *storeArrayLengthHandler) Invoke(a *Access) (vm.Value, error) {
	if err := h.front.Check(a); err != nil {
		return vm.Undefined, err
	}
	if !a.Value.IsSmi() || a.Value.Smi() < 0 {
		return vm.Undefined, ErrCacheMiss
	}
	if err := a.Iso.SetArrayLength(a.Object, a.Value); err != nil {
		return vm.Undefined, err
	}
	return a.Value, nil
}

func (h *storeArrayLengthHandler) Describe(refs *ExternalReferenceTable) codegen.Stub {
	s := h.stub(refs, codegen.OpStoreArrayLength)
	s.Runtime = refs.Literal(RuntimeSetArrayLength)
	return s
}
