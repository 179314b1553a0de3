package ic

import (
	"math"
	"strings"

	"github.com/chazu/shapecache/vm"
)

// CompareState is the operand type feedback of a compare site. States
// only move towards CompareGeneric.
type CompareState uint8

const (
	CompareUninitialized CompareState = iota
	CompareSmi
	CompareNumber
	// CompareInternalizedString compares by identity; equality only.
	CompareInternalizedString
	CompareString
	// CompareObject compares objects by identity; equality only.
	CompareObject
	CompareGeneric
)

var compareStateNames = [...]string{
	"uninitialized", "smi", "number", "internalized-string", "string", "object", "generic",
}

func (s CompareState) String() string {
	if int(s) < len(compareStateNames) {
		return compareStateNames[s]
	}
	return "?"
}

// CompareSite is the inline cache of one comparison in the program.
type CompareSite struct {
	ID    int
	Op    vm.CompareOp
	State CompareState

	Hits   uint64
	Misses uint64
}

// classify returns the most specific state covering both operands.
func classify(iso *vm.Isolate, op vm.CompareOp, a, b vm.Value) CompareState {
	switch {
	case a.IsSmi() && b.IsSmi():
		return CompareSmi
	case a.IsNumeric() && b.IsNumeric():
		return CompareNumber
	}
	if op.IsEquality() && isInternalized(iso, a) && isInternalized(iso, b) {
		return CompareInternalizedString
	}
	if iso.IsString(a) && iso.IsString(b) {
		return CompareString
	}
	if op.IsEquality() {
		if _, ok := iso.ObjectOf(a); ok {
			if _, ok := iso.ObjectOf(b); ok {
				return CompareObject
			}
		}
	}
	return CompareGeneric
}

func isInternalized(iso *vm.Isolate, v vm.Value) bool {
	if !v.IsName() {
		return false
	}
	n := iso.Names.ByID(v.NameID())
	return n != nil && !n.IsSymbol()
}

// joinCompareStates returns the least state covering both.
func joinCompareStates(x, y CompareState) CompareState {
	switch {
	case x == CompareUninitialized:
		return y
	case y == CompareUninitialized || x == y:
		return x
	case x == CompareSmi && y == CompareNumber, x == CompareNumber && y == CompareSmi:
		return CompareNumber
	case x == CompareInternalizedString && y == CompareString, x == CompareString && y == CompareInternalizedString:
		return CompareString
	}
	return CompareGeneric
}

// fastCompare evaluates the comparison when the operands match state.
func fastCompare(iso *vm.Isolate, state CompareState, op vm.CompareOp, a, b vm.Value) (bool, bool) {
	switch state {
	case CompareSmi:
		if !a.IsSmi() || !b.IsSmi() {
			return false, false
		}
		return compareOrdered(op, a.Smi(), b.Smi()), true
	case CompareNumber:
		if !a.IsNumeric() || !b.IsNumeric() {
			return false, false
		}
		x, y := a.NumberValue(), b.NumberValue()
		if math.IsNaN(x) || math.IsNaN(y) {
			return false, true
		}
		return compareOrdered(op, x, y), true
	case CompareInternalizedString:
		if !isInternalized(iso, a) || !isInternalized(iso, b) {
			return false, false
		}
		return a == b, true
	case CompareString:
		x, ok := iso.StringOf(a)
		if !ok {
			return false, false
		}
		y, ok := iso.StringOf(b)
		if !ok {
			return false, false
		}
		return compareOrdered(op, strings.Compare(x, y), 0), true
	case CompareObject:
		if _, ok := iso.ObjectOf(a); !ok {
			return false, false
		}
		if _, ok := iso.ObjectOf(b); !ok {
			return false, false
		}
		return a == b, true
	}
	return false, false
}

func compareOrdered[T int64 | float64 | int](op vm.CompareOp, x, y T) bool {
	switch op {
	case vm.OpEq, vm.OpStrictEq:
		return x == y
	case vm.OpLT:
		return x < y
	case vm.OpLTE:
		return x <= y
	case vm.OpGT:
		return x > y
	}
	return x >= y
}

// Compare evaluates a op b at site, specializing on the operand types
// seen so far.
func (e *Engine) Compare(site *CompareSite, a, b vm.Value) (bool, error) {
	if r, ok := fastCompare(e.iso, site.State, site.Op, a, b); ok {
		site.Hits++
		return r, nil
	}
	site.Misses++
	from := site.State
	if to := joinCompareStates(from, classify(e.iso, site.Op, a, b)); to != from {
		site.State = to
		e.traceCompare(site, from, to)
	}
	return e.iso.Compare(site.Op, a, b)
}
