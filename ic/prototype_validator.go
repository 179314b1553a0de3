package ic

import "github.com/chazu/shapecache/vm"

// CheckPrototypes builds the guard sequence proving that a lookup of name
// on receivers of receiverShape still ends at holder. A nil holder means
// the property must be absent along the whole chain. receiver is the
// object the access was observed on, nil for primitive receivers.
//
// Each prototype level gets exactly one guard:
//
//   - global objects: the name's property cell must hold the hole
//   - other dictionary-mode objects: a negative dictionary lookup
//   - global proxies: a shape check plus the security token check
//   - everything else: a shape identity check
//
// The holder itself gets a final shape check. Levels that need an access
// check and are not global proxies make the access uncacheable, as do
// intermediate named interceptors and chains deeper than the isolate's
// limit.
func CheckPrototypes(iso *vm.Isolate, receiverShape *vm.Shape, receiver, holder *vm.JSObject, name *vm.Name) (*Frontend, error) {
	if receiverShape == nil {
		return nil, uncacheable("receiver has no shape")
	}
	f := &Frontend{Holder: holder}
	var obj *vm.JSObject
	depth := 0

	if receiver == nil {
		if !receiverShape.IsPrimitiveShape() {
			return nil, uncacheable("object receiver without object")
		}
		f.add(&PrimitiveCheck{Kind: receiverShape.Kind()})
		obj = iso.PrototypeForPrimitive(receiverShape)
		if obj == nil {
			return nil, uncacheable("%s has no wrapper prototype", receiverShape.Kind())
		}
		depth = 1
	} else {
		if receiver == holder {
			if err := holderGuard(iso, f, nil, receiverShape, 0); err != nil {
				return nil, err
			}
			return f, nil
		}
		if err := levelGuard(iso, f, nil, receiver, receiverShape, name, 0); err != nil {
			return nil, err
		}
		obj = receiverShape.Prototype()
		depth = 1
	}

	for {
		if obj == nil {
			if holder != nil {
				return nil, uncacheable("holder not on the prototype chain of %s", receiverShape)
			}
			f.Depth = depth
			return f, nil
		}
		if depth > iso.MaxPrototypeDepth() {
			return nil, uncacheable("prototype chain deeper than %d", iso.MaxPrototypeDepth())
		}
		s := obj.Shape()
		if obj == holder {
			if err := holderGuard(iso, f, obj, s, depth); err != nil {
				return nil, err
			}
			f.Depth = depth
			return f, nil
		}
		if err := levelGuard(iso, f, obj, obj, s, name, depth); err != nil {
			return nil, err
		}
		obj = s.Prototype()
		depth++
	}
}

// levelGuard emits the guard for one level the lookup passed through.
// constant is nil when the level is the receiver; o is the object seen
// at compile time.
func levelGuard(iso *vm.Isolate, f *Frontend, constant, o *vm.JSObject, s *vm.Shape, name *vm.Name, depth int) error {
	switch {
	case s.IsAccessCheckNeeded() && !s.IsGlobalProxy():
		return uncacheable("access-checked object in chain")
	case s.IsGlobalObject():
		if !name.IsUnique() {
			return uncacheable("non-unique name %q at global object", name)
		}
		cell := o.EnsurePropertyCell(iso.Heap, name)
		if !cell.IsHole() {
			return uncacheable("global %q is present", name)
		}
		f.add(&PropertyCellCheck{Global: constant, Shape: s, Cell: cell, Depth: depth})
	case s.IsDictionaryMap():
		if !name.IsUnique() {
			return uncacheable("non-unique name %q needs a negative lookup", name)
		}
		f.add(&NegativeLookup{Object: constant, Shape: s, Name: name, Depth: depth})
	case s.IsGlobalProxy():
		if !iso.MayAccess(o) {
			return uncacheable("global proxy fails the access check")
		}
		f.add(&AccessCheck{Proxy: constant, Shape: s, Depth: depth})
	case s.HasNamedInterceptor():
		return uncacheable("named interceptor in chain")
	default:
		f.add(&ShapeCheck{Object: constant, Shape: s, Depth: depth})
	}
	return nil
}

// holderGuard emits the terminal guard on the holder.
func holderGuard(iso *vm.Isolate, f *Frontend, constant *vm.JSObject, s *vm.Shape, depth int) error {
	switch {
	case s.IsGlobalProxy():
		if constant != nil && !iso.MayAccess(constant) {
			return uncacheable("global proxy fails the access check")
		}
		f.add(&AccessCheck{Proxy: constant, Shape: s, Depth: depth})
	case s.IsAccessCheckNeeded():
		return uncacheable("access-checked holder")
	default:
		f.add(&ShapeCheck{Object: constant, Shape: s, Depth: depth})
	}
	return nil
}
