package vm

import (
	"math"
	"strconv"
)

// ---------------------------------------------------------------------------
// Named property loads
// ---------------------------------------------------------------------------

// GetProperty implements [[Get]] for a named key on any receiver.
func (iso *Isolate) GetProperty(receiver Value, name *Name) (Value, error) {
	iso.Counters.Loads++
	if receiver.IsNullish() {
		return Undefined, NewTypeError("Cannot read properties of %s (reading '%s')", receiver, name)
	}
	if s, ok := iso.StringOf(receiver); ok && name == iso.LengthName {
		return FromSmi(int64(utf16Length(s))), nil
	}
	if idx, ok := name.AsArrayIndex(); ok {
		return iso.GetElement(receiver, idx)
	}
	r := iso.LookupForReceiver(receiver, name)
	return iso.GetPropertyWithLookup(receiver, name, &r)
}

// GetPropertyWithLookup produces the value a completed lookup denotes.
func (iso *Isolate) GetPropertyWithLookup(receiver Value, name *Name, r *LookupResult) (Value, error) {
	switch r.State {
	case LookupNotFound:
		return Undefined, nil
	case LookupAccessCheckFailed:
		return Undefined, NewTypeError("Blocked access to property '%s'", name)
	case LookupInterceptor:
		return iso.LoadPropertyWithInterceptor(receiver, r.Holder, name)
	case LookupField:
		return iso.FastPropertyAt(r.Holder, FieldIndexFor(r.Holder.shape, r.Descriptor.Field), r.Descriptor.Repr), nil
	case LookupConstant:
		return r.Descriptor.Value, nil
	case LookupNormal:
		return r.Holder.dictionary.ValueAt(r.Entry), nil
	case LookupGlobalCell:
		return r.Cell.Value(), nil
	case LookupAccessor:
		return iso.CallAccessorGetter(receiver, r.Holder, name, r.Accessor(iso.Heap))
	case LookupArrayLength:
		return FromSmi(int64(r.Holder.Length())), nil
	case LookupStringLength:
		if r.Holder != nil {
			s, _ := iso.StringOf(r.Holder.primitive)
			return FromSmi(int64(utf16Length(s))), nil
		}
		s, _ := iso.StringOf(receiver)
		return FromSmi(int64(utf16Length(s))), nil
	}
	return Undefined, nil
}

// LoadGlobal reads a global variable, throwing a ReferenceError when the
// binding does not exist.
func (iso *Isolate) LoadGlobal(name *Name) (Value, error) {
	r := iso.Lookup(iso.GlobalProxy, name)
	if !r.IsFound() {
		return Undefined, NewReferenceError("%s is not defined", name)
	}
	return iso.GetPropertyWithLookup(iso.ValueOf(iso.GlobalProxy), name, &r)
}

// FastPropertyAt reads field fi of o, unboxing double fields.
func (iso *Isolate) FastPropertyAt(o *JSObject, fi FieldIndex, repr Representation) Value {
	raw := o.RawFastPropertyAt(fi)
	if repr == ReprDouble {
		if box, ok := iso.Heap.Deref(raw).(*HeapNumber); ok {
			return FromNumber(box.value)
		}
	}
	return raw
}

// CallAccessorGetter invokes the getter half of an accessor.
func (iso *Isolate) CallAccessorGetter(receiver Value, holder *JSObject, name *Name, acc HeapObject) (Value, error) {
	switch a := acc.(type) {
	case *AccessorInfo:
		if a.Getter == nil {
			return Undefined, nil
		}
		if !a.IsCompatibleReceiver(iso.ShapeOf(receiver)) {
			return Undefined, NewTypeError("Illegal invocation")
		}
		iso.Counters.Callbacks++
		args := NewPropertyCallbackArguments(iso, holder, receiver, a.Data)
		if err := a.Getter(name, args); err != nil {
			return Undefined, err
		}
		if v := args.ReturnValue(); v != NoInterceptorResult {
			return v, nil
		}
		return Undefined, nil
	case *AccessorPair:
		if a.Getter == Undefined {
			return Undefined, nil
		}
		return iso.Call(a.Getter, receiver, nil)
	}
	return Undefined, nil
}

// LoadPropertyWithInterceptorOnly calls holder's named interceptor getter.
// It returns NoInterceptorResult when the interceptor declines.
func (iso *Isolate) LoadPropertyWithInterceptorOnly(receiver Value, holder *JSObject, name *Name) (Value, error) {
	info := holder.shape.namedInterceptor
	if info == nil || info.NamedGetter == nil {
		return NoInterceptorResult, nil
	}
	iso.Counters.Interceptors++
	args := NewPropertyCallbackArguments(iso, holder, receiver, info.Data)
	if err := info.NamedGetter(name, args); err != nil {
		return Undefined, err
	}
	return args.ReturnValue(), nil
}

// LoadPropertyWithInterceptor calls holder's interceptor and, when it
// declines, continues the lookup past it.
func (iso *Isolate) LoadPropertyWithInterceptor(receiver Value, holder *JSObject, name *Name) (Value, error) {
	v, err := iso.LoadPropertyWithInterceptorOnly(receiver, holder, name)
	if err != nil || v != NoInterceptorResult {
		return v, err
	}
	r := iso.LookupPostInterceptor(holder, name)
	return iso.GetPropertyWithLookup(receiver, name, &r)
}

// ---------------------------------------------------------------------------
// Named property stores
// ---------------------------------------------------------------------------

// SetProperty implements [[Set]] for a named key. Failed stores throw in
// strict mode and are ignored otherwise.
func (iso *Isolate) SetProperty(receiver Value, name *Name, value Value, strict bool) error {
	iso.Counters.Stores++
	if receiver.IsNullish() {
		return NewTypeError("Cannot set properties of %s (setting '%s')", receiver, name)
	}
	o, ok := iso.ObjectOf(receiver)
	if !ok {
		if strict {
			return NewTypeError("Cannot create property '%s' on primitive %s", name, receiver)
		}
		return nil
	}
	return iso.setNamed(o, receiver, name, value, strict, false)
}

func (iso *Isolate) setNamed(o *JSObject, receiver Value, name *Name, value Value, strict, skipInterceptor bool) error {
	iso.MigrateIfDeprecated(o)
	if o.IsGlobalProxy() {
		if !iso.MayAccess(o) {
			return NewTypeError("Blocked write to property '%s'", name)
		}
		return iso.setNamed(o.target, receiver, name, value, strict, skipInterceptor)
	}
	if o.shape.IsAccessCheckNeeded() && !iso.MayAccess(o) {
		return NewTypeError("Blocked write to property '%s'", name)
	}
	if !skipInterceptor && o.shape.HasNamedInterceptor() && o.shape.namedInterceptor.NamedSetter != nil {
		handled, err := iso.callNamedSetter(o, receiver, name, value)
		if err != nil || handled {
			return err
		}
	}

	r := iso.LookupOwn(o, name, true)
	if !r.IsFound() {
		if proto := o.shape.prototype; proto != nil {
			r = iso.LookupRealNamedProperty(proto, name)
		}
	}

	switch {
	case r.State == LookupAccessor:
		return iso.CallAccessorSetter(receiver, r.Holder, name, r.Accessor(iso.Heap), value, strict)
	case r.IsFound() && r.IsReadOnly():
		if strict {
			return NewTypeError("Cannot assign to read only property '%s'", name)
		}
		return nil
	case r.IsFound() && r.Holder == o:
		return iso.writeOwn(o, &r, name, value, strict)
	}
	return iso.addProperty(o, name, value, AttrNone, strict)
}

func (iso *Isolate) callNamedSetter(holder *JSObject, receiver Value, name *Name, value Value) (bool, error) {
	info := holder.shape.namedInterceptor
	iso.Counters.Interceptors++
	args := NewPropertyCallbackArguments(iso, holder, receiver, info.Data).WithValue(value)
	if err := info.NamedSetter(name, value, args); err != nil {
		return false, err
	}
	return args.ReturnValue() != NoInterceptorResult, nil
}

// StorePropertyWithInterceptor offers a store to o's interceptor and
// performs the ordinary store when the interceptor declines.
func (iso *Isolate) StorePropertyWithInterceptor(o *JSObject, name *Name, value Value, strict bool) error {
	receiver := iso.ValueOf(o)
	if info := o.shape.namedInterceptor; info != nil && info.NamedSetter != nil {
		handled, err := iso.callNamedSetter(o, receiver, name, value)
		if err != nil || handled {
			return err
		}
	}
	return iso.setNamed(o, receiver, name, value, strict, true)
}

// CallAccessorSetter invokes the setter half of an accessor.
func (iso *Isolate) CallAccessorSetter(receiver Value, holder *JSObject, name *Name, acc HeapObject, value Value, strict bool) error {
	switch a := acc.(type) {
	case *AccessorInfo:
		return iso.StoreCallbackProperty(receiver, holder, a, name, value)
	case *AccessorPair:
		if a.Setter == Undefined {
			if strict {
				return NewTypeError("Cannot set property '%s' which has only a getter", name)
			}
			return nil
		}
		_, err := iso.Call(a.Setter, receiver, []Value{value})
		return err
	}
	return nil
}

// StoreCallbackProperty invokes a native accessor setter.
func (iso *Isolate) StoreCallbackProperty(receiver Value, holder *JSObject, info *AccessorInfo, name *Name, value Value) error {
	if info.Setter == nil {
		return nil
	}
	if !info.IsCompatibleReceiver(iso.ShapeOf(receiver)) {
		return NewTypeError("Illegal invocation")
	}
	iso.Counters.Callbacks++
	args := NewPropertyCallbackArguments(iso, holder, receiver, info.Data).WithValue(value)
	return info.Setter(name, value, args)
}

func (iso *Isolate) writeOwn(o *JSObject, r *LookupResult, name *Name, value Value, strict bool) error {
	switch r.State {
	case LookupField:
		d := r.Descriptor
		if !d.Repr.Fits(value) {
			o.shape.GeneralizeField(r.DescriptorIndex, RepresentationOf(value))
			iso.MigrateInstance(o)
			d = o.shape.descriptors.At(r.DescriptorIndex)
		}
		iso.WriteField(o, o.shape, d, value)
	case LookupConstant:
		if r.Descriptor.Value == value {
			return nil
		}
		iso.NormalizeProperties(o, "constant overwritten")
		e, _ := o.dictionary.Find(name)
		iso.SetDictionaryValue(o, e, value)
	case LookupNormal:
		iso.SetDictionaryValue(o, r.Entry, value)
	case LookupGlobalCell:
		r.Cell.SetValue(iso.Heap, value)
	case LookupArrayLength:
		return iso.SetArrayLength(o, value)
	}
	return nil
}

// SetDictionaryValue overwrites a dictionary entry of o with the write
// barrier applied.
func (iso *Isolate) SetDictionaryValue(o *JSObject, entry int, value Value) {
	o.dictionary.SetValueAt(entry, value)
	iso.Heap.RecordWriteValue(o.dictionary, DictionaryEntryAt(entry).ValueOffset, value)
}

// WriteField stores v into data field d of o, whose shape is s. The value
// must fit d's representation.
func (iso *Isolate) WriteField(o *JSObject, s *Shape, d Descriptor, v Value) {
	fi := FieldIndexFor(s, d.Field)
	switch d.Repr {
	case ReprDouble:
		if box, ok := iso.Heap.Deref(o.RawFastPropertyAt(fi)).(*HeapNumber); ok {
			box.value = v.NumberValue()
			return
		}
		box := &HeapNumber{value: v.NumberValue()}
		o.FastPropertyAtPut(iso.Heap, fi, FromRef(iso.Heap.AllocateAddressable(box)))
	case ReprSmi:
		o.FastPropertyAtPutNoBarrier(fi, v)
	default:
		o.FastPropertyAtPut(iso.Heap, fi, v)
	}
}

// NewDoubleBox allocates a fresh HeapNumber for a double field.
func (iso *Isolate) NewDoubleBox(f float64) Value {
	return FromRef(iso.Heap.AllocateAddressable(&HeapNumber{value: f}))
}

func (iso *Isolate) addProperty(o *JSObject, name *Name, value Value, attrs Attributes, strict bool) error {
	s := o.shape
	if !s.IsExtensible() {
		if strict {
			return NewTypeError("Cannot add property %s, object is not extensible", name)
		}
		return nil
	}
	if idx, ok := name.AsArrayIndex(); ok {
		return iso.setElementOn(o, iso.ValueOf(o), idx, value, strict)
	}
	switch {
	case o.IsGlobalObject():
		c := o.EnsurePropertyCell(iso.Heap, name)
		c.SetDetails(PropertyDetails{Attrs: attrs})
		c.SetValue(iso.Heap, value)
		return nil
	case s.IsDictionaryMap():
		e := o.dictionary.Add(name, value, PropertyDetails{Attrs: attrs})
		iso.Heap.RecordWriteValue(o.dictionary, DictionaryEntryAt(e).ValueOffset, value)
		return nil
	case !s.CanHaveMoreProperties():
		iso.NormalizeProperties(o, "too many fields")
		return iso.addProperty(o, name, value, attrs, strict)
	}
	iso.StoreTransition(o, s.TransitionForNewProperty(name, attrs, RepresentationOf(value)), value)
	return nil
}

// StoreTransition moves o to next, a shape adding exactly one field, and
// stores value into the new field, growing the properties array first when
// it is full.
func (iso *Isolate) StoreTransition(o *JSObject, next *Shape, value Value) {
	d := next.descriptors.At(next.descriptors.Len() - 1)
	Assert(d.Kind == PropertyField, "store transition to non-field %q", d.Name)
	fi := FieldIndexFor(next, d.Field)
	if !fi.IsInObject() && (o.properties == nil || fi.Index() >= o.properties.Len()) {
		o.GrowPropertiesStorage(iso.Heap, next.PropertiesCapacity())
	}
	if !d.Repr.Fits(value) {
		next = next.GeneralizeField(next.descriptors.Len()-1, RepresentationOf(value))
		d = next.descriptors.At(next.descriptors.Len() - 1)
	}
	o.SetShape(iso.Heap, next)
	iso.WriteField(o, next, d, value)
}

// DefineOwnProperty adds or replaces a data property with attributes.
func (iso *Isolate) DefineOwnProperty(o *JSObject, name *Name, value Value, attrs Attributes) error {
	r := iso.LookupOwn(o, name, true)
	if r.IsFound() {
		iso.NormalizeProperties(o, "redefine property")
		if o.IsGlobalObject() {
			r.Cell.SetDetails(PropertyDetails{Attrs: attrs})
			r.Cell.SetValue(iso.Heap, value)
			return nil
		}
		e, _ := o.dictionary.Find(name)
		o.dictionary.SetDetailsAt(e, PropertyDetails{Attrs: attrs})
		iso.SetDictionaryValue(o, e, value)
		return nil
	}
	return iso.addProperty(o, name, value, attrs, true)
}

// DefineMethod installs fn on o as a constant property, the way method
// definitions in a literal or class body are installed.
func (iso *Isolate) DefineMethod(o *JSObject, name *Name, fn *JSObject) error {
	v := iso.ValueOf(fn)
	if o.HasFastProperties() && o.shape.IsExtensible() && !iso.LookupOwn(o, name, true).IsFound() {
		o.SetShape(iso.Heap, o.shape.TransitionForConstant(name, v, AttrDontEnum))
		return nil
	}
	return iso.DefineOwnProperty(o, name, v, AttrDontEnum)
}

// DefineAccessor installs a getter/setter pair on o. Either function may
// be Undefined.
func (iso *Isolate) DefineAccessor(o *JSObject, name *Name, getter, setter Value, attrs Attributes) *AccessorPair {
	pair := &AccessorPair{Getter: getter, Setter: setter}
	ref := iso.Heap.AllocateAddressable(pair)
	iso.defineAccessorObject(o, name, pair, ref, attrs)
	return pair
}

// DefineNativeAccessor installs a native accessor on o.
func (iso *Isolate) DefineNativeAccessor(o *JSObject, name *Name, info *AccessorInfo, attrs Attributes) {
	info.Name = name
	ref := info.Ref()
	if ref == 0 {
		ref = iso.Heap.AllocateAddressable(info)
	}
	iso.defineAccessorObject(o, name, info, ref, attrs)
}

func (iso *Isolate) defineAccessorObject(o *JSObject, name *Name, acc HeapObject, ref Ref, attrs Attributes) {
	if o.HasFastProperties() && !o.IsGlobalObject() && !iso.LookupOwn(o, name, true).IsFound() {
		o.SetShape(iso.Heap, o.shape.TransitionForAccessor(name, acc, attrs))
		return
	}
	if o.IsGlobalObject() {
		// Accessors on the global object live in the dictionary, never in
		// cells.
		Assert(o.GlobalPropertyCell(iso.Heap, name) == nil, "global accessor over existing cell %q", name)
	} else {
		iso.NormalizeProperties(o, "accessor redefinition")
	}
	details := PropertyDetails{Attrs: attrs, Accessor: true}
	if e, ok := o.dictionary.Find(name); ok {
		o.dictionary.SetDetailsAt(e, details)
		iso.SetDictionaryValue(o, e, FromRef(ref))
		return
	}
	e := o.dictionary.Add(name, FromRef(ref), details)
	iso.Heap.RecordWrite(o.dictionary, DictionaryEntryAt(e).ValueOffset, acc)
}

// DeleteProperty removes an own property. It reports false for
// non-configurable properties.
func (iso *Isolate) DeleteProperty(o *JSObject, name *Name) (bool, error) {
	if o.IsGlobalProxy() {
		if !iso.MayAccess(o) {
			return false, NewTypeError("Blocked delete of property '%s'", name)
		}
		o = o.target
	}
	r := iso.LookupOwn(o, name, true)
	if !r.IsFound() {
		return true, nil
	}
	switch r.State {
	case LookupGlobalCell:
		if r.Cell.details.Attrs.IsDontDelete() {
			return false, nil
		}
		r.Cell.SetValue(iso.Heap, TheHole)
		return true, nil
	case LookupArrayLength, LookupStringLength:
		return false, nil
	}
	if r.State == LookupNormal || r.State == LookupAccessor && !o.HasFastProperties() {
		if r.Details.Attrs.IsDontDelete() {
			return false, nil
		}
		o.dictionary.Delete(r.Entry)
		return true, nil
	}
	if r.Descriptor.Attrs.IsDontDelete() {
		return false, nil
	}
	iso.NormalizeProperties(o, "delete")
	e, _ := o.dictionary.Find(name)
	o.dictionary.Delete(e)
	return true, nil
}

// SetPrototype replaces o's prototype. Cycles are rejected.
func (iso *Isolate) SetPrototype(o *JSObject, proto *JSObject) error {
	for p := proto; p != nil; p = p.shape.prototype {
		if p == o {
			return NewTypeError("Cyclic __proto__ value")
		}
	}
	o.SetShape(iso.Heap, o.shape.TransitionForPrototype(proto))
	return nil
}

// PreventExtensions makes o non-extensible.
func (iso *Isolate) PreventExtensions(o *JSObject) {
	if !o.shape.IsExtensible() {
		return
	}
	o.SetShape(iso.Heap, o.shape.CopyWith("prevent extensions", NonExtensible()))
}

// ---------------------------------------------------------------------------
// Shape maintenance
// ---------------------------------------------------------------------------

// MigrateIfDeprecated moves o off a deprecated shape.
func (iso *Isolate) MigrateIfDeprecated(o *JSObject) {
	if o.shape.IsDeprecated() {
		iso.MigrateInstance(o)
	}
}

// MigrateInstance rewrites o's fields for the up-to-date version of its
// shape.
func (iso *Isolate) MigrateInstance(o *JSObject) {
	old := o.shape
	target := old.Updated()
	if target == old {
		return
	}
	iso.Counters.Migrations++
	n := old.descriptors.Len()
	values := make([]Value, n)
	for i := 0; i < n; i++ {
		d := old.descriptors.At(i)
		if d.Kind == PropertyField {
			values[i] = iso.FastPropertyAt(o, FieldIndexFor(old, d.Field), d.Repr)
		}
	}
	if c := target.PropertiesCapacity(); c > 0 && (o.properties == nil || o.properties.Len() < c) {
		o.GrowPropertiesStorage(iso.Heap, c)
	}
	o.SetShape(iso.Heap, target)
	for i := 0; i < n; i++ {
		od := old.descriptors.At(i)
		if od.Kind != PropertyField {
			continue
		}
		d := target.descriptors.At(i)
		Assert(d.Name == od.Name, "migration reordered %q", od.Name)
		fi := FieldIndexFor(target, d.Field)
		if d.Repr == ReprDouble && od.Repr != ReprDouble {
			o.FastPropertyAtPut(iso.Heap, fi, iso.NewDoubleBox(values[i].NumberValue()))
			continue
		}
		iso.WriteField(o, target, d, values[i])
	}
	iso.log.Debugf("migrated object %d from shape %d to %d", o.Ref(), old.id, target.id)
}

// NormalizeProperties switches o to dictionary mode.
func (iso *Isolate) NormalizeProperties(o *JSObject, reason string) {
	s := o.shape
	if s.IsDictionaryMap() {
		return
	}
	dict := NewNameDictionary(s.descriptors.Len() + 4)
	for i := 0; i < s.descriptors.Len(); i++ {
		d := s.descriptors.At(i)
		var v Value
		details := PropertyDetails{Attrs: d.Attrs}
		switch d.Kind {
		case PropertyField:
			v = iso.FastPropertyAt(o, FieldIndexFor(s, d.Field), d.Repr)
		case PropertyConstant:
			v = d.Value
		case PropertyAccessor:
			v = FromRef(d.Accessor.header().ref)
			details.Accessor = true
		}
		dict.Add(d.Name, v, details)
	}
	iso.Heap.Allocate(dict)
	o.dictionary = dict
	o.properties = nil
	for i := range o.inObject {
		o.inObject[i] = Undefined
	}
	o.SetShape(iso.Heap, s.Normalize(reason))
	iso.Counters.Normalized++
}

// ---------------------------------------------------------------------------
// Keyed access
// ---------------------------------------------------------------------------

// ToArrayIndex converts key to an element index when it denotes one.
func (iso *Isolate) ToArrayIndex(key Value) (uint32, bool) {
	switch {
	case key.IsSmi():
		n := key.Smi()
		if n >= 0 && n < math.MaxUint32 {
			return uint32(n), true
		}
	case key.IsNumber():
		f := key.Float64()
		if f >= 0 && f < math.MaxUint32 && f == math.Trunc(f) {
			return uint32(f), true
		}
	case key.IsName():
		if n := iso.Names.ByID(key.NameID()); n != nil {
			return n.AsArrayIndex()
		}
	default:
		if s, ok := iso.StringOf(key); ok {
			return NewTransientName(s).AsArrayIndex()
		}
	}
	return 0, false
}

// ToName converts a non-index key to a unique property name.
func (iso *Isolate) ToName(key Value) (*Name, error) {
	switch {
	case key.IsName():
		return iso.Names.ByID(key.NameID()), nil
	case key.IsSmi():
		return iso.Name(strconv.FormatInt(key.Smi(), 10)), nil
	case key.IsNumber():
		return iso.Name(strconv.FormatFloat(key.Float64(), 'g', -1, 64)), nil
	case key.IsSpecial():
		return iso.Name(key.String()), nil
	}
	if s, ok := iso.StringOf(key); ok {
		return iso.Name(s), nil
	}
	if o, ok := iso.ObjectOf(key); ok && o.IsCallable() {
		return iso.Name("function " + o.fn.Name + "() { [native code] }"), nil
	}
	return iso.Name("[object Object]"), nil
}

// KeyedGetProperty implements receiver[key].
func (iso *Isolate) KeyedGetProperty(receiver, key Value) (Value, error) {
	iso.Counters.KeyedLoads++
	if receiver.IsNullish() {
		return Undefined, NewTypeError("Cannot read properties of %s", receiver)
	}
	if idx, ok := iso.ToArrayIndex(key); ok {
		return iso.GetElement(receiver, idx)
	}
	name, err := iso.ToName(key)
	if err != nil {
		return Undefined, err
	}
	return iso.GetProperty(receiver, name)
}

// KeyedSetProperty implements receiver[key] = value.
func (iso *Isolate) KeyedSetProperty(receiver, key, value Value, strict bool) error {
	iso.Counters.KeyedStores++
	if receiver.IsNullish() {
		return NewTypeError("Cannot set properties of %s", receiver)
	}
	if idx, ok := iso.ToArrayIndex(key); ok {
		o, isObj := iso.ObjectOf(receiver)
		if !isObj {
			if strict {
				return NewTypeError("Cannot create property '%d' on primitive %s", idx, receiver)
			}
			return nil
		}
		return iso.setElementOn(o, receiver, idx, value, strict)
	}
	name, err := iso.ToName(key)
	if err != nil {
		return err
	}
	return iso.SetProperty(receiver, name, value, strict)
}

// GetElement reads receiver[index] through the prototype chain.
func (iso *Isolate) GetElement(receiver Value, index uint32) (Value, error) {
	o, ok := iso.ObjectOf(receiver)
	if !ok {
		if s, isStr := iso.StringOf(receiver); isStr {
			if r := []rune(s); int(index) < len(r) {
				return iso.InternalizedString(string(r[index])), nil
			}
		}
		s := iso.ShapeOf(receiver)
		if s == nil {
			return Undefined, nil
		}
		o = iso.PrototypeForPrimitive(s)
	}
	for cur := o; cur != nil; cur = cur.shape.prototype {
		if cur.IsGlobalProxy() && !iso.MayAccess(cur) {
			return Undefined, NewTypeError("Blocked access to element %d", index)
		}
		if cur.shape.HasIndexedInterceptor() {
			v, err := iso.LoadElementWithInterceptor(receiver, cur, index)
			if err != nil || v != NoInterceptorResult {
				return v, err
			}
		}
		if v, ok := cur.GetOwnElement(index); ok {
			return v, nil
		}
		switch cur.shape.kind {
		case ShapeTypedArray:
			return Undefined, nil
		case ShapeStringWrapper:
			s, _ := iso.StringOf(cur.primitive)
			if r := []rune(s); int(index) < len(r) {
				return iso.InternalizedString(string(r[index])), nil
			}
		}
	}
	return Undefined, nil
}

// LoadElementWithInterceptor calls holder's indexed interceptor getter.
func (iso *Isolate) LoadElementWithInterceptor(receiver Value, holder *JSObject, index uint32) (Value, error) {
	info := holder.shape.indexedInterceptor
	if info == nil || info.IndexedGetter == nil {
		return NoInterceptorResult, nil
	}
	iso.Counters.Interceptors++
	args := NewPropertyCallbackArguments(iso, holder, receiver, info.Data)
	if err := info.IndexedGetter(index, args); err != nil {
		return Undefined, err
	}
	return args.ReturnValue(), nil
}

// SetElement stores value at index on o.
func (iso *Isolate) SetElement(o *JSObject, index uint32, value Value, strict bool) error {
	return iso.setElementOn(o, iso.ValueOf(o), index, value, strict)
}

// sparseGap is how far past the backing store a store may land before
// the object switches to dictionary elements.
const sparseGap = 1024

func (iso *Isolate) setElementOn(o *JSObject, receiver Value, index uint32, value Value, strict bool) error {
	if o.IsGlobalProxy() {
		if !iso.MayAccess(o) {
			return NewTypeError("Blocked write to element %d", index)
		}
		o = o.target
	}
	if info := o.shape.indexedInterceptor; info != nil && info.IndexedSetter != nil {
		iso.Counters.Interceptors++
		args := NewPropertyCallbackArguments(iso, o, receiver, info.Data).WithValue(value)
		if err := info.IndexedSetter(index, value, args); err != nil {
			return err
		}
		if args.ReturnValue() != NoInterceptorResult {
			return nil
		}
	}
	kind := o.ElementsKind()
	switch {
	case kind.IsTyped():
		if int(index) < o.typed.Len() {
			f, err := iso.ToNumber(value)
			if err != nil {
				return err
			}
			o.typed.Store(int(index), f)
		}
		return nil
	case kind.IsDictionary():
		if e, ok := o.numberDict.Find(index); ok {
			if o.numberDict.DetailsAt(e).Attrs.IsReadOnly() {
				if strict {
					return NewTypeError("Cannot assign to read only element %d", index)
				}
				return nil
			}
			o.numberDict.SetValueAt(e, value)
			iso.Heap.RecordWriteValue(o.numberDict, DictionaryEntryAt(e).ValueOffset, value)
		} else {
			if !o.shape.IsExtensible() {
				return rejectNewElement(index, strict)
			}
			e := o.numberDict.Add(index, value, PropertyDetails{})
			iso.Heap.RecordWriteValue(o.numberDict, DictionaryEntryAt(e).ValueOffset, value)
		}
		if o.shape.kind == ShapeArray && int(index) >= o.length {
			o.length = int(index) + 1
		}
		return nil
	}

	if !o.shape.IsExtensible() {
		if _, ok := o.GetOwnElement(index); !ok {
			return rejectNewElement(index, strict)
		}
	}
	if int(index) >= o.ElementsCapacity()+sparseGap {
		iso.NormalizeElements(o)
		return iso.setElementOn(o, receiver, index, value, strict)
	}
	if needed := ElementsKindForValue(value); IsMoreGeneralElementsKindTransition(kind, needed) {
		iso.TransitionElementsKind(o, needed)
		kind = needed
	}
	o.EnsureElementsCapacity(iso.Heap, int(index)+1)
	if kind.IsFastDouble() {
		o.doubles[index] = value.NumberValue()
	} else {
		o.elements[index] = value
		iso.Heap.RecordWriteValue(o, ElementsOffset, value)
	}
	if o.shape.kind == ShapeArray && int(index) >= o.length {
		o.length = int(index) + 1
	}
	return nil
}

func rejectNewElement(index uint32, strict bool) error {
	if strict {
		return NewTypeError("Cannot add element %d, object is not extensible", index)
	}
	return nil
}

// TransitionElementsKind converts o's fast backing store to kind to.
func (iso *Isolate) TransitionElementsKind(o *JSObject, to ElementsKind) {
	from := o.ElementsKind()
	if from == to {
		return
	}
	Assert(IsMoreGeneralElementsKindTransition(from, to), "elements transition %s -> %s", from, to)
	switch {
	case to.IsFastDouble():
		doubles := make([]float64, len(o.elements))
		for i, v := range o.elements {
			if v == TheHole {
				doubles[i] = holeNaN
			} else {
				doubles[i] = v.NumberValue()
			}
		}
		o.doubles, o.elements = doubles, nil
	case from.IsFastDouble():
		elems := make([]Value, len(o.doubles))
		for i, f := range o.doubles {
			if IsHoleNaN(f) {
				elems[i] = TheHole
			} else {
				elems[i] = FromNumber(f)
			}
		}
		o.elements, o.doubles = elems, nil
	}
	o.SetShape(iso.Heap, o.shape.TransitionForElementsKind(to))
}

// NormalizeElements switches o to dictionary elements.
func (iso *Isolate) NormalizeElements(o *JSObject) {
	kind := o.ElementsKind()
	if kind.IsDictionary() || kind.IsTyped() {
		return
	}
	dict := NewNumberDictionary(o.ElementsCapacity())
	for i := 0; i < o.ElementsCapacity(); i++ {
		if v, ok := o.GetOwnElement(uint32(i)); ok {
			dict.Add(uint32(i), v, PropertyDetails{})
		}
	}
	iso.Heap.Allocate(dict)
	o.numberDict, o.elements, o.doubles = dict, nil, nil
	o.SetShape(iso.Heap, o.shape.TransitionForElementsKind(DictionaryElements))
}

// SetArrayLength implements stores to an array's length.
func (iso *Isolate) SetArrayLength(o *JSObject, value Value) error {
	f, err := iso.ToNumber(value)
	if err != nil {
		return err
	}
	if f < 0 || f > math.MaxUint32-1 || f != math.Trunc(f) {
		return NewRangeError("Invalid array length")
	}
	n := int(f)
	if o.ElementsKind().IsDictionary() {
		o.length = n
		return nil
	}
	if n > o.ElementsCapacity()+sparseGap {
		iso.NormalizeElements(o)
		o.length = n
		return nil
	}
	o.EnsureElementsCapacity(iso.Heap, n)
	o.setArrayLength(n)
	return nil
}

// ---------------------------------------------------------------------------
// Calls and conversions
// ---------------------------------------------------------------------------

// Call invokes callee with the given receiver and arguments.
func (iso *Isolate) Call(callee Value, this Value, args []Value) (Value, error) {
	fo, ok := iso.ObjectOf(callee)
	if !ok {
		return Undefined, NewTypeError("%s is not a function", callee)
	}
	iso.Counters.Calls++
	if fo.fn == nil {
		if h := fo.shape.callHandler; h != nil {
			info := NewFunctionCallbackInfo(iso, this, fo, h.Data, args)
			if err := h.Callback(info); err != nil {
				return Undefined, err
			}
			return info.ReturnValue(), nil
		}
		return Undefined, NewTypeError("object is not a function")
	}
	if fo.fn.Native != nil {
		return fo.fn.Native(iso, this, args)
	}
	return iso.CallAPIFunction(fo.fn.Template, this, nil, args)
}

// CallAPIFunction invokes a template function. A nil holder is resolved
// from the receiver according to the template's signature.
func (iso *Isolate) CallAPIFunction(t *FunctionTemplate, this Value, holder *JSObject, args []Value) (Value, error) {
	if t.CallHandler == nil {
		return Undefined, nil
	}
	if holder == nil {
		recv, ok := iso.ObjectOf(this)
		if !ok {
			if t.ExpectedReceiver() != nil {
				return Undefined, NewTypeError("Illegal invocation")
			}
		} else {
			h, _, found := LookupHolderOfExpectedType(recv, t.ExpectedReceiver())
			if !found {
				return Undefined, NewTypeError("Illegal invocation")
			}
			holder = h
		}
	}
	info := NewFunctionCallbackInfo(iso, this, holder, t.CallHandler.Data, args)
	if err := t.CallHandler.Callback(info); err != nil {
		return Undefined, err
	}
	return info.ReturnValue(), nil
}

// ToNumber converts v to a double.
func (iso *Isolate) ToNumber(v Value) (float64, error) {
	switch {
	case v.IsSmi():
		return float64(v.Smi()), nil
	case v.IsNumber():
		return v.Float64(), nil
	case v == True:
		return 1, nil
	case v == False, v == Null:
		return 0, nil
	case v == Undefined:
		return math.NaN(), nil
	}
	if s, ok := iso.StringOf(v); ok {
		if s == "" {
			return 0, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN(), nil
		}
		return f, nil
	}
	if v.IsName() {
		return 0, NewTypeError("Cannot convert a Symbol value to a number")
	}
	return math.NaN(), nil
}
