package vm

// ---------------------------------------------------------------------------
// Native callback ABI
// ---------------------------------------------------------------------------

// Property callbacks receive their arguments in a fixed-order block. The
// indices are part of the embedder contract and must not change.
const (
	ArgsHolderIndex      = 0
	ArgsIsolateIndex     = 1
	ArgsReturnValueIndex = 2
	ArgsDataIndex        = 3
	ArgsThisIndex        = 4
	ArgsValueIndex       = 5

	ArgsGetterLength = 5
	ArgsSetterLength = 6
)

// PropertyCallbackArguments is the argument block handed to accessor and
// interceptor callbacks.
type PropertyCallbackArguments struct {
	slots   [ArgsSetterLength]Value
	length  int
	isolate *Isolate
}

// NewPropertyCallbackArguments builds a getter block. The return slot
// starts out as NoInterceptorResult.
func NewPropertyCallbackArguments(iso *Isolate, holder *JSObject, this, data Value) *PropertyCallbackArguments {
	a := &PropertyCallbackArguments{length: ArgsGetterLength, isolate: iso}
	a.slots[ArgsHolderIndex] = FromRef(holder.Ref())
	a.slots[ArgsIsolateIndex] = FromSmi(int64(iso.Index()))
	a.slots[ArgsReturnValueIndex] = NoInterceptorResult
	a.slots[ArgsDataIndex] = data
	a.slots[ArgsThisIndex] = this
	return a
}

// WithValue extends a getter block into a setter block.
func (a *PropertyCallbackArguments) WithValue(v Value) *PropertyCallbackArguments {
	a.slots[ArgsValueIndex] = v
	a.length = ArgsSetterLength
	return a
}

func (a *PropertyCallbackArguments) Isolate() *Isolate { return a.isolate }
func (a *PropertyCallbackArguments) This() Value       { return a.slots[ArgsThisIndex] }
func (a *PropertyCallbackArguments) Data() Value       { return a.slots[ArgsDataIndex] }
func (a *PropertyCallbackArguments) Value() Value      { return a.slots[ArgsValueIndex] }
func (a *PropertyCallbackArguments) Len() int          { return a.length }

// Holder returns the object the property was found on.
func (a *PropertyCallbackArguments) Holder() *JSObject {
	return a.isolate.Heap.Deref(a.slots[ArgsHolderIndex]).(*JSObject)
}

// At returns slot i of the block.
func (a *PropertyCallbackArguments) At(i int) Value { return a.slots[i] }

// SetReturnValue stores the callback's result.
func (a *PropertyCallbackArguments) SetReturnValue(v Value) { a.slots[ArgsReturnValueIndex] = v }

// ReturnValue returns the callback's result, or NoInterceptorResult when
// none was set.
func (a *PropertyCallbackArguments) ReturnValue() Value { return a.slots[ArgsReturnValueIndex] }

// AccessorGetter reads a native accessor property.
type AccessorGetter func(name *Name, info *PropertyCallbackArguments) error

// AccessorSetter writes a native accessor property.
type AccessorSetter func(name *Name, value Value, info *PropertyCallbackArguments) error

// AccessorInfo is a native accessor property installed by the embedder.
type AccessorInfo struct {
	Header
	Name   *Name
	Getter AccessorGetter
	Setter AccessorSetter
	Data   Value

	// ExpectedReceiver restricts the receivers the accessor accepts.
	ExpectedReceiver *FunctionTemplate
}

// IsCompatibleReceiver reports whether the accessor may be invoked with a
// receiver of shape s.
func (a *AccessorInfo) IsCompatibleReceiver(s *Shape) bool {
	if a.ExpectedReceiver == nil {
		return true
	}
	if s == nil || !s.IsJSObject() {
		return false
	}
	return a.ExpectedReceiver.IsTemplateFor(s)
}

// AccessorPair holds language-level getter and setter functions. Missing
// halves are Undefined.
type AccessorPair struct {
	Header
	Getter Value
	Setter Value
}
