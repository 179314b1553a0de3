package ic

import "github.com/chazu/shapecache/vm"

// CallOptimization inspects a constant function to decide whether calls
// to it can skip the generic call sequence.
type CallOptimization struct {
	fn       *vm.JSObject
	template *vm.FunctionTemplate
	expected *vm.FunctionTemplate
}

// NewCallOptimization analyzes fn, which may be nil or not callable.
func NewCallOptimization(fn *vm.JSObject) *CallOptimization {
	c := &CallOptimization{fn: fn}
	if fn == nil || !fn.IsCallable() {
		return c
	}
	if data := fn.Function(); data.IsAPIFunction() {
		c.template = data.Template
		c.expected = data.Template.ExpectedReceiver()
	}
	return c
}

// Function returns the analyzed function.
func (c *CallOptimization) Function() *vm.JSObject { return c.fn }

// IsSimpleAPICall reports whether fn is an API function whose call handler
// can be invoked directly. Signatures only restrict the receiver, never
// the arguments.
func (c *CallOptimization) IsSimpleAPICall() bool { return c.template != nil }

// Template returns the API function's template, nil unless
// IsSimpleAPICall.
func (c *CallOptimization) Template() *vm.FunctionTemplate { return c.template }

// ExpectedReceiverType returns the signature's receiver template, nil
// when any receiver is accepted.
func (c *CallOptimization) ExpectedReceiverType() *vm.FunctionTemplate { return c.expected }

// LookupHolderOfExpectedType finds the object the API function treats as
// its holder. When the call went through a named interceptor, the
// interceptor holder's hidden prototypes are searched first. It returns
// the holder and the number of hidden prototype hops from where the
// search succeeded.
func (c *CallOptimization) LookupHolderOfExpectedType(receiver, interceptorHolder *vm.JSObject) (*vm.JSObject, int, bool) {
	if !c.IsSimpleAPICall() {
		return nil, 0, false
	}
	if interceptorHolder != nil && interceptorHolder != receiver {
		if h, depth, ok := vm.LookupHolderOfExpectedType(interceptorHolder, c.expected); ok {
			return h, depth, true
		}
	}
	if receiver == nil {
		return nil, 0, c.expected == nil
	}
	return vm.LookupHolderOfExpectedType(receiver, c.expected)
}

// IsCompatibleReceiver reports whether receivers of shape s satisfy the
// function's signature.
func (c *CallOptimization) IsCompatibleReceiver(s *vm.Shape) bool {
	if !c.IsSimpleAPICall() {
		return false
	}
	if c.expected == nil {
		return true
	}
	return s != nil && s.IsJSObject() && c.expected.IsTemplateFor(s)
}
