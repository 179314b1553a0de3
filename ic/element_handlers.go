package ic

import (
	"github.com/chazu/shapecache/codegen"
	"github.com/chazu/shapecache/vm"
)

// StoreMode selects how a keyed store handles indices at or past the end
// of the backing store.
type StoreMode uint8

const (
	// StoreStandard writes in-bounds indices only.
	StoreStandard StoreMode = iota
	// StoreGrow appends one past the end of an array.
	StoreGrow
	// StoreIgnoreOutOfBounds drops out-of-bounds typed array writes.
	StoreIgnoreOutOfBounds
)

func (m StoreMode) String() string {
	switch m {
	case StoreGrow:
		return "grow"
	case StoreIgnoreOutOfBounds:
		return "ignore-oob"
	}
	return "standard"
}

// storeModeFor picks the mode for storing at index into o.
func storeModeFor(o *vm.JSObject, index uint32) StoreMode {
	switch {
	case o.ElementsKind().IsTyped():
		return StoreIgnoreOutOfBounds
	case !o.Shape().IsExtensible():
		return StoreStandard
	case o.Shape().IsJSArray() && o.ElementsKind().IsFast() && int(index) == o.Length():
		return StoreGrow
	}
	return StoreStandard
}

// ---------------------------------------------------------------------------
// Element loads
// ---------------------------------------------------------------------------

type keyedLoadElementHandler struct {
	handlerBase
	elementsKind vm.ElementsKind
}

func (h *keyedLoadElementHandler) Invoke(a *Access) (vm.Value, error) {
	if err := h.front.Check(a); err != nil {
		return vm.Undefined, err
	}
	if v, ok := a.Object.GetOwnElement(a.Index); ok {
		return v, nil
	}
	if h.elementsKind.IsTyped() {
		return vm.Undefined, nil
	}
	// Holes and missing entries continue on the prototype chain.
	return vm.Undefined, ErrCacheMiss
}

func (h *keyedLoadElementHandler) Describe(refs *ExternalReferenceTable) codegen.Stub {
	s := h.stub(refs, codegen.OpKeyedLoadElement)
	s.ElementsKind = h.elementsKind
	return s
}

// ---------------------------------------------------------------------------
// Element stores
// ---------------------------------------------------------------------------

type keyedStoreElementHandler struct {
	handlerBase
	elementsKind vm.ElementsKind
	mode         StoreMode
}

func (h *keyedStoreElementHandler) Invoke(a *Access) (vm.Value, error) {
	if err := h.front.Check(a); err != nil {
		return vm.Undefined, err
	}
	if err := storeElement(a, h.elementsKind, h.mode); err != nil {
		return vm.Undefined, err
	}
	return a.Value, nil
}

func (h *keyedStoreElementHandler) Describe(refs *ExternalReferenceTable) codegen.Stub {
	s := h.stub(refs, codegen.OpKeyedStoreElement)
	s.ElementsKind = h.elementsKind
	s.GrowElements = h.mode == StoreGrow
	s.IgnoreOutOfBounds = h.mode == StoreIgnoreOutOfBounds
	s.Barrier = h.elementsKind != vm.FastSmiElements
	if s.GrowElements {
		s.Runtime = refs.Literal(RuntimeGrowElements)
	}
	return s
}

// storeElement writes a.Value at a.Index of a receiver whose backing
// store has kind. It returns ErrCacheMiss before writing anything when
// the store needs the runtime.
func storeElement(a *Access, kind vm.ElementsKind, mode StoreMode) error {
	o, heap := a.Object, a.Iso.Heap
	idx := int(a.Index)
	switch {
	case kind.IsTyped():
		if !a.Value.IsNumeric() {
			return ErrCacheMiss
		}
		if t := o.TypedStore(); idx < t.Len() {
			t.Store(idx, a.Value.NumberValue())
		} else if mode != StoreIgnoreOutOfBounds {
			return ErrCacheMiss
		}
		return nil
	case kind.IsDictionary():
		dict := o.NumberDictionary()
		e, ok := dict.Find(a.Index)
		if !ok || dict.DetailsAt(e).Attrs.IsReadOnly() {
			return ErrCacheMiss
		}
		dict.SetValueAt(e, a.Value)
		heap.RecordWriteValue(dict, vm.DictionaryEntryAt(e).ValueOffset, a.Value)
		return nil
	}
	if vm.IsMoreGeneralElementsKindTransition(kind, vm.ElementsKindForValue(a.Value)) {
		return ErrCacheMiss
	}
	if !fastIndexFits(o, idx, mode) {
		return ErrCacheMiss
	}
	if mode == StoreGrow {
		o.EnsureElementsCapacity(heap, idx+1)
	}
	o.StoreFastElement(heap, idx, a.Value)
	return nil
}

func fastIndexFits(o *vm.JSObject, idx int, mode StoreMode) bool {
	if !o.Shape().IsExtensible() {
		// Holes count as new elements.
		_, ok := o.GetOwnElement(uint32(idx))
		return ok
	}
	if mode == StoreGrow {
		return o.Shape().IsJSArray() && idx == o.Length()
	}
	return idx < o.Length() && idx < o.ElementsCapacity()
}

// elementsTransitionAndStoreHandler moves a receiver from its shape to a
// shape with a more general elements kind and then stores.
type elementsTransitionAndStoreHandler struct {
	handlerBase
	target *vm.Shape
	mode   StoreMode
}

func (h *elementsTransitionAndStoreHandler) Invoke(a *Access) (vm.Value, error) {
	if err := h.front.Check(a); err != nil {
		return vm.Undefined, err
	}
	to := h.target.ElementsKind()
	if h.target.IsDeprecated() || vm.IsMoreGeneralElementsKindTransition(to, vm.ElementsKindForValue(a.Value)) {
		return vm.Undefined, ErrCacheMiss
	}
	if !fastIndexFits(a.Object, int(a.Index), h.mode) {
		return vm.Undefined, ErrCacheMiss
	}
	a.Iso.TransitionElementsKind(a.Object, to)
	a.refresh()
	if err := storeElement(a, to, h.mode); err != nil {
		// The transition already happened; let the runtime finish.
		if err == ErrCacheMiss {
			return a.Value, a.Iso.SetElement(a.Object, a.Index, a.Value, a.Strict)
		}
		return vm.Undefined, err
	}
	return a.Value, nil
}

func (h *elementsTransitionAndStoreHandler) Valid(iso *vm.Isolate) bool {
	return !h.target.IsDeprecated() && h.front.Valid(iso)
}

func (h *elementsTransitionAndStoreHandler) Describe(refs *ExternalReferenceTable) codegen.Stub {
	s := h.stub(refs, codegen.OpTailCallRuntime)
	s.NewShape = shapeLiteral(h.target)
	s.ElementsKind = h.target.ElementsKind()
	s.Runtime = refs.Literal(RuntimeElementsTransitionAndStore)
	return s
}

// ---------------------------------------------------------------------------
// Slow path
// ---------------------------------------------------------------------------

// slowHandler always defers to the runtime. It is installed for accesses
// the compiler declined so the site stops retrying compilation.
type slowHandler struct {
	handlerBase
	runtime string
}

func (h *slowHandler) Invoke(*Access) (vm.Value, error) {
	return vm.Undefined, ErrCacheMiss
}

func (h *slowHandler) Describe(refs *ExternalReferenceTable) codegen.Stub {
	s := h.stub(refs, codegen.OpTailCallRuntime)
	s.Runtime = refs.Literal(h.runtime)
	return s
}
