package ic

import (
	"unicode/utf16"

	"github.com/chazu/shapecache/codegen"
	"github.com/chazu/shapecache/vm"
)

// ---------------------------------------------------------------------------
// Field and constant loads
// ---------------------------------------------------------------------------

type loadFieldHandler struct {
	handlerBase
	index vm.FieldIndex
	repr  vm.Representation
}

func (h *loadFieldHandler) Invoke(a *Access) (vm.Value, error) {
	if err := h.front.Check(a); err != nil {
		return vm.Undefined, err
	}
	return a.Iso.FastPropertyAt(h.front.holder(a), h.index, h.repr), nil
}

func (h *loadFieldHandler) Describe(refs *ExternalReferenceTable) codegen.Stub {
	s := h.stub(refs, codegen.OpLoadField)
	s.InObject = h.index.IsInObject()
	s.Offset = h.index.ByteOffset()
	s.Repr = h.repr
	return s
}

type loadConstantHandler struct {
	handlerBase
	value vm.Value
}

func (h *loadConstantHandler) Invoke(a *Access) (vm.Value, error) {
	if err := h.front.Check(a); err != nil {
		return vm.Undefined, err
	}
	return h.value, nil
}

func (h *loadConstantHandler) Describe(refs *ExternalReferenceTable) codegen.Stub {
	s := h.stub(refs, codegen.OpLoadConstant)
	s.Constant = valueLiteral(h.value)
	return s
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

type loadCallbackHandler struct {
	handlerBase
	info *vm.AccessorInfo
}

func (h *loadCallbackHandler) Invoke(a *Access) (vm.Value, error) {
	if err := h.front.Check(a); err != nil {
		return vm.Undefined, err
	}
	return a.Iso.CallAccessorGetter(a.Receiver, h.front.holder(a), h.name, h.info)
}

func (h *loadCallbackHandler) Describe(refs *ExternalReferenceTable) codegen.Stub {
	s := h.stub(refs, codegen.OpLoadCallback)
	s.Callee = heapLiteral(h.info, "accessor "+h.name.String())
	s.Data = valueLiteral(h.info.Data)
	return s
}

type loadViaGetterHandler struct {
	handlerBase
	pair *vm.AccessorPair
}

func (h *loadViaGetterHandler) Invoke(a *Access) (vm.Value, error) {
	if err := h.front.Check(a); err != nil {
		return vm.Undefined, err
	}
	if h.pair.Getter == vm.Undefined {
		return vm.Undefined, nil
	}
	return a.Iso.Call(h.pair.Getter, a.Receiver, nil)
}

func (h *loadViaGetterHandler) Describe(refs *ExternalReferenceTable) codegen.Stub {
	s := h.stub(refs, codegen.OpLoadViaGetter)
	s.Callee = valueLiteral(h.pair.Getter)
	return s
}

// ---------------------------------------------------------------------------
// Interceptors
// ---------------------------------------------------------------------------

// loadInterceptorHandler calls the holder's named interceptor and, when it
// declines, continues with post, a handler compiled for the lookup past
// the interceptor. Without post the continuation goes through the
// runtime.
type loadInterceptorHandler struct {
	handlerBase
	post Handler
}

func (h *loadInterceptorHandler) Invoke(a *Access) (vm.Value, error) {
	if err := h.front.Check(a); err != nil {
		return vm.Undefined, err
	}
	holder := h.front.holder(a)
	v, err := a.Iso.LoadPropertyWithInterceptorOnly(a.Receiver, holder, h.name)
	if err != nil || v != vm.NoInterceptorResult {
		return v, err
	}
	if h.post != nil {
		v, err := h.post.Invoke(a)
		if err != ErrCacheMiss {
			return v, err
		}
	}
	// The interceptor already ran, so a failed continuation must not
	// surface as a miss.
	r := a.Iso.LookupPostInterceptor(holder, h.name)
	return a.Iso.GetPropertyWithLookup(a.Receiver, h.name, &r)
}

func (h *loadInterceptorHandler) Valid(iso *vm.Isolate) bool {
	return h.front.Valid(iso) && (h.post == nil || h.post.Valid(iso))
}

func (h *loadInterceptorHandler) Describe(refs *ExternalReferenceTable) codegen.Stub {
	s := h.stub(refs, codegen.OpLoadInterceptor)
	s.Runtime = refs.Literal(RuntimeLoadInterceptorOnly)
	if h.post != nil {
		post := h.post.Describe(refs)
		s.Post = &post
	} else {
		s.Post = &codegen.Stub{Op: codegen.OpTailCallRuntime, Runtime: refs.Literal(RuntimeLoadPostInterceptor)}
	}
	return s
}

// ---------------------------------------------------------------------------
// Absent properties, dictionaries and globals
// ---------------------------------------------------------------------------

type loadNonexistentHandler struct {
	handlerBase
}

func (h *loadNonexistentHandler) Invoke(a *Access) (vm.Value, error) {
	if err := h.front.Check(a); err != nil {
		return vm.Undefined, err
	}
	return vm.Undefined, nil
}

func (h *loadNonexistentHandler) Describe(refs *ExternalReferenceTable) codegen.Stub {
	return h.stub(refs, codegen.OpLoadNonexistent)
}

// loadNormalHandler is shared by every dictionary-mode receiver. It finds
// the accessed name in the receiver's own dictionary.
type loadNormalHandler struct {
	handlerBase
}

func (h *loadNormalHandler) Invoke(a *Access) (vm.Value, error) {
	o := a.Object
	if o == nil || o.HasFastProperties() || o.IsGlobalObject() {
		return vm.Undefined, ErrCacheMiss
	}
	dict := o.Dictionary()
	e, ok := dict.Find(a.Name)
	if !ok || dict.DetailsAt(e).Accessor {
		return vm.Undefined, ErrCacheMiss
	}
	return dict.ValueAt(e), nil
}

func (h *loadNormalHandler) Describe(refs *ExternalReferenceTable) codegen.Stub {
	s := h.stub(refs, codegen.OpLoadNormal)
	s.Name = h.kind.String()
	return s
}

type loadGlobalHandler struct {
	handlerBase
	cell *vm.PropertyCell
}

func (h *loadGlobalHandler) Invoke(a *Access) (vm.Value, error) {
	if err := h.front.Check(a); err != nil {
		return vm.Undefined, err
	}
	if h.cell.IsHole() {
		return vm.Undefined, ErrCacheMiss
	}
	return h.cell.Value(), nil
}

func (h *loadGlobalHandler) Describe(refs *ExternalReferenceTable) codegen.Stub {
	s := h.stub(refs, codegen.OpLoadGlobal)
	s.Callee = heapLiteral(h.cell, "cell "+h.name.String())
	return s
}

// ---------------------------------------------------------------------------
// Lengths
// ---------------------------------------------------------------------------

type loadArrayLengthHandler struct {
	handlerBase
}

func (h *loadArrayLengthHandler) Invoke(a *Access) (vm.Value, error) {
	if err := h.front.Check(a); err != nil {
		return vm.Undefined, err
	}
	return vm.FromSmi(int64(a.Object.Length())), nil
}

func (h *loadArrayLengthHandler) Describe(refs *ExternalReferenceTable) codegen.Stub {
	return h.stub(refs, codegen.OpLoadArrayLength)
}

// loadStringLengthHandler serves string primitives and string wrappers.
type loadStringLengthHandler struct {
	handlerBase
	wrapper bool
}

func (h *loadStringLengthHandler) Invoke(a *Access) (vm.Value, error) {
	if err := h.front.Check(a); err != nil {
		return vm.Undefined, err
	}
	v := a.Receiver
	if h.wrapper {
		v = a.Object.PrimitiveValue()
	}
	s, ok := a.Iso.StringOf(v)
	if !ok {
		return vm.Undefined, ErrCacheMiss
	}
	return vm.FromSmi(int64(utf16Length(s))), nil
}

func (h *loadStringLengthHandler) Describe(refs *ExternalReferenceTable) codegen.Stub {
	s := h.stub(refs, codegen.OpLoadStringLength)
	s.StringWrapper = h.wrapper
	return s
}

func utf16Length(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}
