package ic

import (
	"github.com/chazu/shapecache/codegen"
	"github.com/chazu/shapecache/vm"
)

// callConstantHandler calls a function found as a constant property.
// Simple API functions are entered through their call handler directly;
// apiDepth is the number of hidden prototypes between the receiver and
// the API holder, or -1 to use the generic call sequence.
type callConstantHandler struct {
	handlerBase
	fn       vm.Value
	opt      *CallOptimization
	apiDepth int
}

func (h *callConstantHandler) Invoke(a *Access) (vm.Value, error) {
	if err := h.front.Check(a); err != nil {
		return vm.Undefined, err
	}
	if h.apiDepth < 0 {
		return a.Iso.Call(h.fn, a.Receiver, a.Args)
	}
	holder := a.Object
	for i := 0; i < h.apiDepth; i++ {
		holder = holder.Shape().Prototype()
	}
	a.Iso.Counters.Calls++
	return a.Iso.CallAPIFunction(h.opt.Template(), a.Receiver, holder, a.Args)
}

func (h *callConstantHandler) Describe(refs *ExternalReferenceTable) codegen.Stub {
	s := h.stub(refs, codegen.OpCallConstant)
	s.Callee = valueLiteral(h.fn)
	if h.apiDepth >= 0 {
		s.Data = heapLiteral(h.opt.Template().CallHandler, "api call handler")
	}
	return s
}

// callGlobalHandler calls the function bound in a global property cell.
// Its frontend ends with a check that the cell still holds that function.
type callGlobalHandler struct {
	handlerBase
	cell *vm.PropertyCell
}

func (h *callGlobalHandler) Invoke(a *Access) (vm.Value, error) {
	if err := h.front.Check(a); err != nil {
		return vm.Undefined, err
	}
	return a.Iso.Call(h.cell.Value(), a.Receiver, a.Args)
}

func (h *callGlobalHandler) Describe(refs *ExternalReferenceTable) codegen.Stub {
	s := h.stub(refs, codegen.OpCallConstant)
	s.Callee = valueLiteral(h.cell.Value())
	return s
}

// Call invokes the function named by site on receiver. Misses look the
// function up through the runtime.
func (e *Engine) Call(site *Site, receiver vm.Value, args []vm.Value) (vm.Value, error) {
	a := e.access(receiver, site.Name)
	a.Args = args
	prev := e.dispatch(site, a)
	if prev != nil {
		v, err := prev.Invoke(a)
		if err != ErrCacheMiss {
			site.Hits++
			return v, err
		}
	}
	site.Misses++
	e.updateCaches(site, a, prev)
	fn, err := e.iso.GetProperty(receiver, a.Name)
	if err != nil {
		return vm.Undefined, err
	}
	return e.iso.Call(fn, receiver, args)
}
