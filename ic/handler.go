package ic

import (
	"errors"
	"fmt"

	"github.com/chazu/shapecache/codegen"
	"github.com/chazu/shapecache/vm"
)

var (
	// ErrCacheMiss is returned by a handler whose guards failed. Nothing
	// has been written when it is returned; the caller falls back to the
	// runtime.
	ErrCacheMiss = errors.New("ic: cache miss")

	// ErrUncacheable is returned by the handler compiler for accesses it
	// declines to specialize.
	ErrUncacheable = errors.New("ic: uncacheable")
)

// uncacheable wraps ErrUncacheable with a reason.
func uncacheable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUncacheable, fmt.Sprintf(format, args...))
}

// ---------------------------------------------------------------------------
// Access: the operands of one property access
// ---------------------------------------------------------------------------

// Access carries the operands of one access through a handler.
type Access struct {
	Iso      *vm.Isolate
	Receiver vm.Value
	// Object is the receiver as an object, nil for primitives.
	Object *vm.JSObject
	// Shape is the receiver's dispatch shape.
	Shape *vm.Shape

	Name  *vm.Name
	Index uint32
	Value vm.Value
	Args  []vm.Value

	Strict bool
}

// newAccess resolves the receiver's object and shape.
func newAccess(iso *vm.Isolate, receiver vm.Value) *Access {
	a := &Access{Iso: iso, Receiver: receiver}
	a.Object, _ = iso.ObjectOf(receiver)
	a.Shape = iso.ShapeOf(receiver)
	return a
}

// refresh re-reads the receiver's shape after the runtime may have
// changed it.
func (a *Access) refresh() {
	if a.Object != nil {
		a.Shape = a.Object.Shape()
	}
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

// HandlerKind identifies the specialization a handler implements.
type HandlerKind uint8

const (
	HandlerLoadField HandlerKind = iota
	HandlerLoadConstant
	HandlerLoadCallback
	HandlerLoadViaGetter
	HandlerLoadInterceptor
	HandlerLoadNonexistent
	HandlerLoadNormal
	HandlerLoadGlobal
	HandlerLoadArrayLength
	HandlerLoadStringLength
	HandlerStoreField
	HandlerStoreTransition
	HandlerStoreCallback
	HandlerStoreViaSetter
	HandlerStoreInterceptor
	HandlerStoreNormal
	HandlerStoreGlobal
	HandlerStoreArrayLength
	HandlerKeyedLoadElement
	HandlerKeyedStoreElement
	HandlerElementsTransitionAndStore
	HandlerCallConstant
	HandlerCallGlobal
	HandlerSlow
)

var handlerKindNames = [...]string{
	"LoadField", "LoadConstant", "LoadCallback", "LoadViaGetter", "LoadInterceptor",
	"LoadNonexistent", "LoadNormal", "LoadGlobal", "LoadArrayLength", "LoadStringLength",
	"StoreField", "StoreTransition", "StoreCallback", "StoreViaSetter", "StoreInterceptor",
	"StoreNormal", "StoreGlobal", "StoreArrayLength", "KeyedLoadElement", "KeyedStoreElement",
	"ElementsTransitionAndStore", "CallConstant", "CallGlobal", "Slow",
}

func (k HandlerKind) String() string {
	if int(k) < len(handlerKindNames) {
		return handlerKindNames[k]
	}
	return "?"
}

// Handler is compiled logic for one access on one receiver shape family.
// Invoke runs the handler's guards first and returns ErrCacheMiss without
// side effects if any of them fails.
type Handler interface {
	vm.HeapObject
	Kind() HandlerKind
	Flags() Flags
	Name() *vm.Name
	Frontend() *Frontend
	Invoke(a *Access) (vm.Value, error)
	// Valid reports whether the guards on constant objects still hold.
	Valid(iso *vm.Isolate) bool
	// Describe renders the handler as a code template.
	Describe(refs *ExternalReferenceTable) codegen.Stub
}

// handlerBase holds what every handler carries.
type handlerBase struct {
	vm.Header
	kind  HandlerKind
	flags Flags
	name  *vm.Name
	front *Frontend
}

func (h *handlerBase) Kind() HandlerKind          { return h.kind }
func (h *handlerBase) Flags() Flags               { return h.flags }
func (h *handlerBase) Name() *vm.Name             { return h.name }
func (h *handlerBase) Frontend() *Frontend        { return h.front }
func (h *handlerBase) Valid(iso *vm.Isolate) bool { return h.front.Valid(iso) }

func (h *handlerBase) String() string {
	return fmt.Sprintf("%s(%s)", h.kind, h.name)
}

// stub starts a code template with the handler's guards and miss entry.
func (h *handlerBase) stub(refs *ExternalReferenceTable, op codegen.Op) codegen.Stub {
	s := codegen.Stub{
		Name:    h.kind.String(),
		Op:      op,
		Guards:  h.front.describe(),
		Miss:    refs.Literal(missEntry(h.flags.ServedKind())),
		Resolve: refs.Address,
	}
	if h.front != nil {
		s.Holder = objectLiteral(h.front.Holder)
	}
	if h.name != nil {
		s.Name = fmt.Sprintf("%s %q", h.kind, h.name.String())
	}
	return s
}

// ---------------------------------------------------------------------------
// Literal helpers for code templates
// ---------------------------------------------------------------------------

func shapeLiteral(s *vm.Shape) codegen.Literal {
	if s == nil {
		return codegen.Literal{}
	}
	return codegen.Literal{Value: uint64(s.ID()), Comment: fmt.Sprintf("shape#%d", s.ID())}
}

func objectLiteral(o *vm.JSObject) codegen.Literal {
	if o == nil {
		return codegen.Literal{}
	}
	return codegen.Literal{Value: uint64(o.Ref()), Comment: fmt.Sprintf("object#%d", o.Ref())}
}

func nameLiteral(n *vm.Name) codegen.Literal {
	if n == nil {
		return codegen.Literal{}
	}
	return codegen.Literal{Value: uint64(n.ID()), Comment: n.String()}
}

func valueLiteral(v vm.Value) codegen.Literal {
	return codegen.Literal{Value: uint64(v), Comment: v.String()}
}

func heapLiteral(o vm.HeapObject, what string) codegen.Literal {
	ref := uint64(0)
	if r, ok := o.(interface{ Ref() vm.Ref }); ok {
		ref = uint64(r.Ref())
	}
	return codegen.Literal{Value: ref, Comment: what}
}
