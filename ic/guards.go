package ic

import (
	"fmt"

	"github.com/chazu/shapecache/codegen"
	"github.com/chazu/shapecache/vm"
)

// Guard is one check a handler performs before its body. Guards on a nil
// object apply to the receiver of the access.
type Guard interface {
	// Check reports whether the guard holds for a.
	Check(a *Access) bool
	// Valid reports whether a guard on a constant object still holds.
	// Receiver guards are always valid.
	Valid(iso *vm.Isolate) bool
	describe() codegen.Guard
}

// ShapeCheck requires an object to have a specific, non-deprecated shape.
type ShapeCheck struct {
	Object *vm.JSObject
	Shape  *vm.Shape
	Depth  int
}

func (g *ShapeCheck) Check(a *Access) bool {
	if g.Object == nil {
		return a.Shape == g.Shape && !g.Shape.IsDeprecated()
	}
	return g.Valid(a.Iso)
}

func (g *ShapeCheck) Valid(*vm.Isolate) bool {
	if g.Object == nil {
		return !g.Shape.IsDeprecated()
	}
	return g.Object.Shape() == g.Shape && !g.Shape.IsDeprecated()
}

func (g *ShapeCheck) describe() codegen.Guard {
	return codegen.Guard{Kind: codegen.GuardShape, Depth: g.Depth, Object: objectLiteral(g.Object), Shape: shapeLiteral(g.Shape)}
}

// PrimitiveCheck accepts any primitive receiver of one kind. All
// primitive shapes of a kind share their wrapper prototype.
type PrimitiveCheck struct {
	Kind vm.ShapeKind
}

func (g *PrimitiveCheck) Check(a *Access) bool {
	return a.Object == nil && a.Shape != nil && a.Shape.Kind() == g.Kind
}

func (g *PrimitiveCheck) Valid(*vm.Isolate) bool { return true }

func (g *PrimitiveCheck) describe() codegen.Guard {
	return codegen.Guard{Kind: codegen.GuardShape, Shape: codegen.Literal{Value: uint64(g.Kind), Comment: g.Kind.String() + " map"}}
}

// NegativeLookup proves name absent from a dictionary-mode object. The
// object's shape is checked first.
type NegativeLookup struct {
	Object *vm.JSObject
	Shape  *vm.Shape
	Name   *vm.Name
	Depth  int
}

func (g *NegativeLookup) Check(a *Access) bool {
	o := g.Object
	if o == nil {
		o = a.Object
	}
	return o != nil && g.absent(o)
}

func (g *NegativeLookup) Valid(*vm.Isolate) bool {
	return g.Object == nil || g.absent(g.Object)
}

func (g *NegativeLookup) absent(o *vm.JSObject) bool {
	if o.Shape() != g.Shape {
		return false
	}
	_, found := o.Dictionary().Find(g.Name)
	return !found
}

func (g *NegativeLookup) describe() codegen.Guard {
	return codegen.Guard{
		Kind: codegen.GuardNegativeLookup, Depth: g.Depth,
		Object: objectLiteral(g.Object), Shape: shapeLiteral(g.Shape), Name: nameLiteral(g.Name),
	}
}

// PropertyCellCheck requires a global object's cell for a name to hold
// the hole, proving the global has no such property.
type PropertyCellCheck struct {
	Global *vm.JSObject
	Shape  *vm.Shape
	Cell   *vm.PropertyCell
	Depth  int
}

func (g *PropertyCellCheck) Check(a *Access) bool {
	o := g.Global
	if o == nil {
		o = a.Object
	}
	return o != nil && o.Shape() == g.Shape && g.Cell.IsHole()
}

func (g *PropertyCellCheck) Valid(*vm.Isolate) bool {
	return (g.Global == nil || g.Global.Shape() == g.Shape) && g.Cell.IsHole()
}

func (g *PropertyCellCheck) describe() codegen.Guard {
	return codegen.Guard{
		Kind: codegen.GuardPropertyCell, Depth: g.Depth,
		Object: objectLiteral(g.Global), Shape: shapeLiteral(g.Shape),
		Cell: heapLiteral(g.Cell, "cell "+g.Cell.Name().String()),
	}
}

// AccessCheck requires a global proxy to have a shape and to be accessible
// from the current context.
type AccessCheck struct {
	Proxy *vm.JSObject
	Shape *vm.Shape
	Depth int
}

func (g *AccessCheck) Check(a *Access) bool {
	o := g.Proxy
	if o == nil {
		o = a.Object
	}
	return o != nil && o.Shape() == g.Shape && a.Iso.MayAccess(o)
}

func (g *AccessCheck) Valid(iso *vm.Isolate) bool {
	return g.Proxy == nil || g.Proxy.Shape() == g.Shape && iso.MayAccess(g.Proxy)
}

func (g *AccessCheck) describe() codegen.Guard {
	tok := 0
	if g.Proxy != nil {
		tok = g.Proxy.SecurityToken()
	}
	return codegen.Guard{
		Kind: codegen.GuardAccessCheck, Depth: g.Depth,
		Object: objectLiteral(g.Proxy), Shape: shapeLiteral(g.Shape),
		Token: codegen.Literal{Value: uint64(tok), Comment: "security token"},
	}
}

// CellValueCheck requires a property cell to still hold a value.
type CellValueCheck struct {
	Cell  *vm.PropertyCell
	Value vm.Value
}

func (g *CellValueCheck) Check(*Access) bool { return g.Cell.Value() == g.Value }

func (g *CellValueCheck) Valid(*vm.Isolate) bool { return g.Cell.Value() == g.Value }

func (g *CellValueCheck) describe() codegen.Guard {
	return codegen.Guard{
		Kind:  codegen.GuardCellValue,
		Cell:  heapLiteral(g.Cell, "cell "+g.Cell.Name().String()),
		Value: valueLiteral(g.Value),
	}
}

// ---------------------------------------------------------------------------
// Frontend
// ---------------------------------------------------------------------------

// Frontend is the validated guard sequence of a handler and the object
// its body operates on.
type Frontend struct {
	Guards []Guard
	// Holder is the object the property was found on; nil means the
	// receiver.
	Holder *vm.JSObject
	// Depth is the number of prototype hops from the receiver to the
	// holder, or to the end of the chain for absent properties.
	Depth int
}

// Check runs every guard in order.
func (f *Frontend) Check(a *Access) error {
	if f == nil {
		return nil
	}
	for _, g := range f.Guards {
		if !g.Check(a) {
			return ErrCacheMiss
		}
	}
	return nil
}

// Valid reports whether the guards on constant objects still hold.
func (f *Frontend) Valid(iso *vm.Isolate) bool {
	if f == nil {
		return true
	}
	for _, g := range f.Guards {
		if !g.Valid(iso) {
			return false
		}
	}
	return true
}

// holder returns the object the handler body reads or writes.
func (f *Frontend) holder(a *Access) *vm.JSObject {
	if f.Holder == nil {
		return a.Object
	}
	return f.Holder
}

func (f *Frontend) add(g Guard) { f.Guards = append(f.Guards, g) }

func (f *Frontend) describe() []codegen.Guard {
	if f == nil {
		return nil
	}
	out := make([]codegen.Guard, len(f.Guards))
	for i, g := range f.Guards {
		out[i] = g.describe()
	}
	return out
}

func (f *Frontend) String() string {
	if f == nil {
		return "frontend(shared)"
	}
	return fmt.Sprintf("frontend(depth=%d, guards=%d)", f.Depth, len(f.Guards))
}
