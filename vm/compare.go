package vm

import (
	"math"
	"strings"
)

// CompareOp is a comparison operator.
type CompareOp uint8

const (
	OpEq CompareOp = iota
	OpStrictEq
	OpLT
	OpLTE
	OpGT
	OpGTE
)

var compareOpNames = [...]string{"==", "===", "<", "<=", ">", ">="}

func (op CompareOp) String() string {
	if int(op) < len(compareOpNames) {
		return compareOpNames[op]
	}
	return "?"
}

// IsEquality reports whether op is == or ===.
func (op CompareOp) IsEquality() bool { return op == OpEq || op == OpStrictEq }

// Compare evaluates a op b with the language's comparison semantics.
func (iso *Isolate) Compare(op CompareOp, a, b Value) (bool, error) {
	switch op {
	case OpStrictEq:
		return iso.StrictEquals(a, b), nil
	case OpEq:
		return iso.LooseEquals(a, b)
	}
	as, aStr := iso.StringOf(a)
	bs, bStr := iso.StringOf(b)
	if aStr && bStr {
		c := strings.Compare(as, bs)
		switch op {
		case OpLT:
			return c < 0, nil
		case OpLTE:
			return c <= 0, nil
		case OpGT:
			return c > 0, nil
		}
		return c >= 0, nil
	}
	x, err := iso.ToNumber(a)
	if err != nil {
		return false, err
	}
	y, err := iso.ToNumber(b)
	if err != nil {
		return false, err
	}
	if math.IsNaN(x) || math.IsNaN(y) {
		return false, nil
	}
	switch op {
	case OpLT:
		return x < y, nil
	case OpLTE:
		return x <= y, nil
	case OpGT:
		return x > y, nil
	}
	return x >= y, nil
}

// StrictEquals implements ===.
func (iso *Isolate) StrictEquals(a, b Value) bool {
	if a.IsNumeric() && b.IsNumeric() {
		return a.NumberValue() == b.NumberValue()
	}
	if a == b {
		return true
	}
	as, aStr := iso.StringOf(a)
	bs, bStr := iso.StringOf(b)
	return aStr && bStr && as == bs
}

// LooseEquals implements ==.
func (iso *Isolate) LooseEquals(a, b Value) (bool, error) {
	if a.IsNullish() || b.IsNullish() {
		return a.IsNullish() && b.IsNullish(), nil
	}
	if iso.StrictEquals(a, b) {
		return true, nil
	}
	_, aObj := iso.ObjectOf(a)
	_, bObj := iso.ObjectOf(b)
	if aObj || bObj {
		return false, nil
	}
	if a.IsName() && !iso.IsString(a) || b.IsName() && !iso.IsString(b) {
		return false, nil
	}
	x, err := iso.ToNumber(a)
	if err != nil {
		return false, err
	}
	y, err := iso.ToNumber(b)
	if err != nil {
		return false, err
	}
	return x == y, nil
}
