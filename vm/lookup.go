package vm

// LookupState is the outcome of a property lookup.
type LookupState uint8

const (
	LookupNotFound LookupState = iota
	LookupAccessCheckFailed
	LookupInterceptor
	LookupField
	LookupConstant
	LookupAccessor
	LookupNormal
	LookupGlobalCell
	LookupArrayLength
	LookupStringLength
)

var lookupStateNames = [...]string{
	"not-found", "access-check-failed", "interceptor", "field", "constant",
	"accessor", "normal", "global-cell", "array-length", "string-length",
}

func (s LookupState) String() string {
	if int(s) < len(lookupStateNames) {
		return lookupStateNames[s]
	}
	return "?"
}

// LookupResult describes where and how a property was found.
type LookupResult struct {
	State  LookupState
	Holder *JSObject
	Depth  int

	Descriptor      Descriptor
	DescriptorIndex int

	Entry   int
	Details PropertyDetails
	Cell    *PropertyCell

	Interceptor *InterceptorInfo
}

// IsFound reports whether the lookup produced a property or a hook.
func (r LookupResult) IsFound() bool { return r.State != LookupNotFound }

// IsReadOnly reports whether the found data property rejects stores.
func (r LookupResult) IsReadOnly() bool {
	switch r.State {
	case LookupField, LookupConstant, LookupAccessor:
		return r.Descriptor.Attrs.IsReadOnly()
	case LookupNormal:
		return r.Details.Attrs.IsReadOnly()
	case LookupGlobalCell:
		return r.Cell.IsReadOnly()
	case LookupStringLength:
		return true
	case LookupArrayLength:
		return r.Holder.shape.kind == ShapeTypedArray
	}
	return false
}

// IsDataProperty reports whether the result is a plain data property.
func (r LookupResult) IsDataProperty() bool {
	switch r.State {
	case LookupField, LookupConstant, LookupNormal, LookupGlobalCell, LookupArrayLength, LookupStringLength:
		return true
	}
	return false
}

// Accessor returns the accessor object of a LookupAccessor result.
func (r *LookupResult) Accessor(h *Heap) HeapObject {
	if r.State != LookupAccessor {
		return nil
	}
	if r.Holder.HasFastProperties() {
		return r.Descriptor.Accessor
	}
	return h.Deref(r.Holder.dictionary.ValueAt(r.Entry))
}

// LookupOwn looks name up on o alone, after migrating o off a deprecated
// shape. With skipInterceptor set, o's named interceptor is ignored.
func (iso *Isolate) LookupOwn(o *JSObject, name *Name, skipInterceptor bool) LookupResult {
	iso.MigrateIfDeprecated(o)
	s := o.shape
	r := LookupResult{Holder: o}
	if s.IsAccessCheckNeeded() && !iso.MayAccess(o) {
		r.State = LookupAccessCheckFailed
		return r
	}
	if !skipInterceptor && s.HasNamedInterceptor() {
		r.State = LookupInterceptor
		r.Interceptor = s.namedInterceptor
		return r
	}
	if name == iso.LengthName {
		switch s.kind {
		case ShapeArray, ShapeTypedArray:
			r.State = LookupArrayLength
			return r
		case ShapeStringWrapper:
			r.State = LookupStringLength
			return r
		}
	}
	switch {
	case s.IsGlobalObject():
		if e, ok := o.dictionary.Find(name); ok && o.dictionary.DetailsAt(e).Accessor {
			r.State = LookupAccessor
			r.Entry = e
			r.Details = o.dictionary.DetailsAt(e)
			return r
		}
		if c := o.GlobalPropertyCell(iso.Heap, name); c != nil && !c.IsHole() {
			r.State = LookupGlobalCell
			r.Cell = c
			r.Details = c.details
			return r
		}
	case s.IsDictionaryMap():
		if e, ok := o.dictionary.Find(name); ok {
			r.Entry = e
			r.Details = o.dictionary.DetailsAt(e)
			if r.Details.Accessor {
				r.State = LookupAccessor
			} else {
				r.State = LookupNormal
			}
			return r
		}
	default:
		if d, i, ok := s.LookupOwn(name); ok {
			r.Descriptor, r.DescriptorIndex = d, i
			switch d.Kind {
			case PropertyField:
				r.State = LookupField
			case PropertyConstant:
				r.State = LookupConstant
			case PropertyAccessor:
				r.State = LookupAccessor
			}
			return r
		}
	}
	r.State = LookupNotFound
	r.Holder = nil
	return r
}

// Lookup walks o and its prototypes for name.
func (iso *Isolate) Lookup(o *JSObject, name *Name) LookupResult {
	return iso.lookupFrom(o, name, false)
}

// LookupRealNamedProperty walks o and its prototypes ignoring every
// named interceptor.
func (iso *Isolate) LookupRealNamedProperty(o *JSObject, name *Name) LookupResult {
	return iso.lookupFrom(o, name, true)
}

// LookupPostInterceptor continues a lookup that stopped at holder's
// interceptor: holder's real properties, then its prototypes.
func (iso *Isolate) LookupPostInterceptor(holder *JSObject, name *Name) LookupResult {
	r := iso.LookupOwn(holder, name, true)
	if r.IsFound() {
		return r
	}
	if proto := holder.shape.prototype; proto != nil {
		r = iso.lookupFrom(proto, name, false)
		r.Depth++
	}
	return r
}

func (iso *Isolate) lookupFrom(o *JSObject, name *Name, skipInterceptors bool) LookupResult {
	depth := 0
	for cur := o; cur != nil; cur = cur.shape.prototype {
		r := iso.LookupOwn(cur, name, skipInterceptors)
		if r.IsFound() {
			r.Depth = depth
			return r
		}
		depth++
	}
	return LookupResult{State: LookupNotFound, Depth: depth}
}

// LookupForReceiver looks name up starting from any receiver value.
// Primitive receivers start at their wrapper prototype; string length is
// reported as LookupStringLength with no holder.
func (iso *Isolate) LookupForReceiver(receiver Value, name *Name) LookupResult {
	if o, ok := iso.ObjectOf(receiver); ok {
		return iso.Lookup(o, name)
	}
	s := iso.ShapeOf(receiver)
	if s == nil {
		return LookupResult{State: LookupNotFound}
	}
	if s.IsStringShape() && name == iso.LengthName {
		return LookupResult{State: LookupStringLength}
	}
	proto := iso.PrototypeForPrimitive(s)
	if proto == nil {
		return LookupResult{State: LookupNotFound}
	}
	r := iso.Lookup(proto, name)
	r.Depth++
	return r
}
