package vm

// NativeFunction implements a builtin function.
type NativeFunction func(iso *Isolate, this Value, args []Value) (Value, error)

// FunctionData is the callable payload of a function object. Exactly one
// of Native and Template.CallHandler provides the behavior.
type FunctionData struct {
	Name     string
	Native   NativeFunction
	Template *FunctionTemplate
}

// IsAPIFunction reports whether the function was created from a template.
func (f *FunctionData) IsAPIFunction() bool {
	return f.Template != nil && f.Template.CallHandler != nil
}

// FunctionCallback is the embedder's implementation of an API function.
type FunctionCallback func(info *FunctionCallbackInfo) error

// CallHandlerInfo binds a FunctionCallback to its data.
type CallHandlerInfo struct {
	Header
	Callback FunctionCallback
	Data     Value
}

// Signature restricts the receivers an API function accepts.
type Signature struct {
	Receiver *FunctionTemplate
}

type templateAccessor struct {
	name string
	info *AccessorInfo
}

// FunctionTemplate describes an API function and the objects it
// constructs.
type FunctionTemplate struct {
	Header
	Name        string
	CallHandler *CallHandlerInfo
	Signature   *Signature
	Parent      *FunctionTemplate

	// Instance configuration.
	InObjectProperties int
	NamedInterceptor   *InterceptorInfo
	IndexedInterceptor *InterceptorInfo
	AccessCheck        bool
	HiddenPrototype    bool
	accessors          []templateAccessor
	instanceShape      *Shape
}

// SetAccessor declares a native accessor on instances.
func (t *FunctionTemplate) SetAccessor(name string, getter AccessorGetter, setter AccessorSetter, data Value) *AccessorInfo {
	info := &AccessorInfo{Getter: getter, Setter: setter, Data: data}
	t.accessors = append(t.accessors, templateAccessor{name: name, info: info})
	t.instanceShape = nil
	return info
}

// IsTemplateFor reports whether objects of shape s were constructed from
// t or from a template inheriting from t.
func (t *FunctionTemplate) IsTemplateFor(s *Shape) bool {
	for c := s.constructor; c != nil; c = c.Parent {
		if c == t {
			return true
		}
	}
	return false
}

// ExpectedReceiver returns the receiver template of the signature, or nil
// when any receiver is accepted.
func (t *FunctionTemplate) ExpectedReceiver() *FunctionTemplate {
	if t.Signature == nil {
		return nil
	}
	return t.Signature.Receiver
}

// FunctionCallbackInfo is handed to an API function's callback.
type FunctionCallbackInfo struct {
	isolate *Isolate
	this    Value
	holder  *JSObject
	data    Value
	args    []Value
	ret     Value
}

// NewFunctionCallbackInfo builds the callback arguments.
func NewFunctionCallbackInfo(iso *Isolate, this Value, holder *JSObject, data Value, args []Value) *FunctionCallbackInfo {
	return &FunctionCallbackInfo{isolate: iso, this: this, holder: holder, data: data, args: args, ret: Undefined}
}

func (f *FunctionCallbackInfo) Isolate() *Isolate      { return f.isolate }
func (f *FunctionCallbackInfo) This() Value            { return f.this }
func (f *FunctionCallbackInfo) Holder() *JSObject      { return f.holder }
func (f *FunctionCallbackInfo) Data() Value            { return f.data }
func (f *FunctionCallbackInfo) Len() int               { return len(f.args) }
func (f *FunctionCallbackInfo) SetReturnValue(v Value) { f.ret = v }
func (f *FunctionCallbackInfo) ReturnValue() Value     { return f.ret }

// Arg returns argument i, or Undefined.
func (f *FunctionCallbackInfo) Arg(i int) Value {
	if i < len(f.args) {
		return f.args[i]
	}
	return Undefined
}

// LookupHolderOfExpectedType walks receiver and its hidden prototypes for
// an object constructed from expected. It returns the holder and the
// number of hidden prototypes crossed.
func LookupHolderOfExpectedType(receiver *JSObject, expected *FunctionTemplate) (*JSObject, int, bool) {
	if expected == nil {
		return receiver, 0, true
	}
	depth := 0
	for o := receiver; o != nil; depth++ {
		if expected.IsTemplateFor(o.shape) {
			return o, depth, true
		}
		if !o.shape.HasHiddenPrototype() {
			break
		}
		o = o.shape.prototype
	}
	return nil, 0, false
}
