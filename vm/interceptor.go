package vm

// NamedPropertyGetter intercepts named loads. It leaves the return slot
// untouched to decline.
type NamedPropertyGetter func(name *Name, info *PropertyCallbackArguments) error

// NamedPropertySetter intercepts named stores. Setting a return value
// marks the store as handled.
type NamedPropertySetter func(name *Name, value Value, info *PropertyCallbackArguments) error

// IndexedPropertyGetter intercepts element loads.
type IndexedPropertyGetter func(index uint32, info *PropertyCallbackArguments) error

// IndexedPropertySetter intercepts element stores.
type IndexedPropertySetter func(index uint32, value Value, info *PropertyCallbackArguments) error

// InterceptorInfo is an embedder-provided property hook.
type InterceptorInfo struct {
	Header
	NamedGetter   NamedPropertyGetter
	NamedSetter   NamedPropertySetter
	IndexedGetter IndexedPropertyGetter
	IndexedSetter IndexedPropertySetter
	Data          Value
}
