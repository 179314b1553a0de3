package vm

import (
	"fmt"
	"math"
)

// Value is a tagged language value using NaN-boxing.
//
// Every value is a 64-bit IEEE 754 double. Non-number values live in the
// quiet NaN space, distinguished by three tag bits:
//   - Number: native double (anything that is not one of our tagged NaNs)
//   - Smi: quiet NaN + tagSmi + 48-bit signed payload
//   - Heap reference: quiet NaN + tagRef + handle into the isolate heap
//   - Special: quiet NaN + tagSpecial + oddball id (undefined, null, ...)
//   - Name: quiet NaN + tagName + interned name id
//
// Heap references are handles, never raw pointers, so a Value can be
// copied freely and survives any object relocation the heap performs.
type Value uint64

const (
	// 0x7FF8_0000_0000_0000
	nanBits uint64 = 0x7FF8000000000000

	// 0x0007_0000_0000_0000
	tagMask uint64 = 0x0007000000000000

	// 0x0000_FFFF_FFFF_FFFF
	payloadMask uint64 = 0x0000FFFFFFFFFFFF

	tagRef     uint64 = 0x0001000000000000
	tagSmi     uint64 = 0x0002000000000000
	tagSpecial uint64 = 0x0003000000000000
	tagName    uint64 = 0x0004000000000000

	intSignBit    uint64 = 0x0000800000000000
	intSignExtend uint64 = 0xFFFF000000000000
)

const (
	specialUndefined uint64 = iota
	specialNull
	specialTrue
	specialFalse
	specialHole
	specialNoResult
)

// Oddballs.
const (
	Undefined Value = Value(nanBits | tagSpecial | specialUndefined)
	Null      Value = Value(nanBits | tagSpecial | specialNull)
	True      Value = Value(nanBits | tagSpecial | specialTrue)
	False     Value = Value(nanBits | tagSpecial | specialFalse)

	// TheHole marks absent elements and deleted global property cells.
	// It never escapes to user code.
	TheHole Value = Value(nanBits | tagSpecial | specialHole)

	// NoInterceptorResult is what an interceptor getter leaves in the
	// return slot when it declines to produce a value.
	NoInterceptorResult Value = Value(nanBits | tagSpecial | specialNoResult)
)

// Smi range (48-bit signed).
const (
	MaxSmi int64 = (1 << 47) - 1
	MinSmi int64 = -(1 << 47)
)

// ---------------------------------------------------------------------------
// Type checking
// ---------------------------------------------------------------------------

// IsNumber reports whether v holds a double. Tagged NaNs are excluded;
// infinities and genuine NaNs are numbers.
func (v Value) IsNumber() bool {
	bits := uint64(v)
	if (bits & 0x7FF0000000000000) != 0x7FF0000000000000 {
		return true
	}
	if bits&0x000FFFFFFFFFFFFF == 0 {
		return true // +/-Inf
	}
	if (bits & nanBits) != nanBits {
		return true // signaling NaN
	}
	return bits&tagMask == 0
}

// IsSmi reports whether v is a small integer.
func (v Value) IsSmi() bool {
	return (uint64(v) & (nanBits | tagMask)) == (nanBits | tagSmi)
}

// IsRef reports whether v refers to a heap object.
func (v Value) IsRef() bool {
	return (uint64(v) & (nanBits | tagMask)) == (nanBits | tagRef)
}

// IsName reports whether v is an interned name.
func (v Value) IsName() bool {
	return (uint64(v) & (nanBits | tagMask)) == (nanBits | tagName)
}

// IsSpecial reports whether v is an oddball.
func (v Value) IsSpecial() bool {
	return (uint64(v) & (nanBits | tagMask)) == (nanBits | tagSpecial)
}

func (v Value) IsUndefined() bool { return v == Undefined }
func (v Value) IsNull() bool      { return v == Null }
func (v Value) IsHole() bool      { return v == TheHole }
func (v Value) IsBool() bool      { return v == True || v == False }

// IsNullish reports whether v is undefined or null.
func (v Value) IsNullish() bool { return v == Undefined || v == Null }

// IsNumeric reports whether v is a smi or a double.
func (v Value) IsNumeric() bool { return v.IsSmi() || v.IsNumber() }

// ---------------------------------------------------------------------------
// Numbers
// ---------------------------------------------------------------------------

// Float64 returns the double held in v. Panics if v is not a number.
func (v Value) Float64() float64 {
	if !v.IsNumber() {
		panic("Value.Float64: not a number")
	}
	return math.Float64frombits(uint64(v))
}

// FromFloat64 boxes a double.
func FromFloat64(f float64) Value {
	return Value(math.Float64bits(f))
}

// Smi returns the integer held in v. Panics if v is not a smi.
func (v Value) Smi() int64 {
	if !v.IsSmi() {
		panic("Value.Smi: not a smi")
	}
	payload := uint64(v) & payloadMask
	if (payload & intSignBit) != 0 {
		payload |= intSignExtend
	}
	return int64(payload)
}

// FromSmi creates a smi. Panics if n is out of range.
func FromSmi(n int64) Value {
	if n > MaxSmi || n < MinSmi {
		panic("FromSmi: value out of range")
	}
	return Value(nanBits | tagSmi | (uint64(n) & payloadMask))
}

// TryFromSmi creates a smi, returning false if n is out of range.
func TryFromSmi(n int64) (Value, bool) {
	if n > MaxSmi || n < MinSmi {
		return Undefined, false
	}
	return Value(nanBits | tagSmi | (uint64(n) & payloadMask)), true
}

// FromNumber returns the canonical encoding of f: a smi when f is an
// integral value in smi range (and not -0), a double otherwise.
func FromNumber(f float64) Value {
	if f == math.Trunc(f) && !math.IsInf(f, 0) && !(f == 0 && math.Signbit(f)) {
		if f >= float64(MinSmi) && f <= float64(MaxSmi) {
			return FromSmi(int64(f))
		}
	}
	return FromFloat64(f)
}

// NumberValue returns v as a double. Panics if v is not numeric.
func (v Value) NumberValue() float64 {
	if v.IsSmi() {
		return float64(v.Smi())
	}
	return v.Float64()
}

// ---------------------------------------------------------------------------
// Heap references and names
// ---------------------------------------------------------------------------

// Ref returns the heap handle held in v. Panics if v is not a reference.
func (v Value) Ref() Ref {
	if !v.IsRef() {
		panic("Value.Ref: not a heap reference")
	}
	return Ref(uint64(v) & payloadMask)
}

// FromRef wraps a heap handle.
func FromRef(r Ref) Value {
	return Value(nanBits | tagRef | uint64(r))
}

// NameID returns the interned name id held in v.
func (v Value) NameID() uint32 {
	if !v.IsName() {
		panic("Value.NameID: not a name")
	}
	return uint32(uint64(v) & payloadMask)
}

// FromNameID wraps an interned name id.
func FromNameID(id uint32) Value {
	return Value(nanBits | tagName | uint64(id))
}

// ---------------------------------------------------------------------------
// Booleans
// ---------------------------------------------------------------------------

// FromBool converts a Go bool.
func FromBool(b bool) Value {
	if b {
		return True
	}
	return False
}

// IsTruthy applies the language's ToBoolean to non-string values. String
// truthiness needs the heap and lives on the isolate.
func (v Value) IsTruthy() bool {
	switch {
	case v == False, v == Null, v == Undefined, v == TheHole:
		return false
	case v.IsSmi():
		return v.Smi() != 0
	case v.IsNumber():
		f := v.Float64()
		return f != 0 && !math.IsNaN(f)
	}
	return true
}

func (v Value) String() string {
	switch {
	case v == Undefined:
		return "undefined"
	case v == Null:
		return "null"
	case v == True:
		return "true"
	case v == False:
		return "false"
	case v == TheHole:
		return "<the_hole>"
	case v == NoInterceptorResult:
		return "<no_interceptor_result>"
	case v.IsSmi():
		return fmt.Sprintf("%d", v.Smi())
	case v.IsNumber():
		return fmt.Sprintf("%g", v.Float64())
	case v.IsRef():
		return fmt.Sprintf("<ref %d>", v.Ref())
	case v.IsName():
		return fmt.Sprintf("<name %d>", v.NameID())
	}
	return fmt.Sprintf("<value %#x>", uint64(v))
}
