package vm

import (
	"encoding/binary"
	"math"
)

// ElementsKind describes how an object's indexed properties are stored.
type ElementsKind uint8

const (
	FastSmiElements ElementsKind = iota
	FastDoubleElements
	FastElements
	DictionaryElements

	Int8Elements
	Uint8Elements
	Uint8ClampedElements
	Int16Elements
	Uint16Elements
	Int32Elements
	Uint32Elements
	Float32Elements
	Float64Elements
)

var elementsKindNames = [...]string{
	"fast-smi", "fast-double", "fast", "dictionary",
	"int8", "uint8", "uint8-clamped", "int16", "uint16", "int32", "uint32", "float32", "float64",
}

func (k ElementsKind) String() string {
	if int(k) < len(elementsKindNames) {
		return elementsKindNames[k]
	}
	return "?"
}

// IsFastSmiOrObject reports whether elements are stored as tagged values.
func (k ElementsKind) IsFastSmiOrObject() bool {
	return k == FastSmiElements || k == FastElements
}

func (k ElementsKind) IsFastDouble() bool { return k == FastDoubleElements }
func (k ElementsKind) IsDictionary() bool { return k == DictionaryElements }
func (k ElementsKind) IsTyped() bool      { return k >= Int8Elements }

// IsFast reports whether elements live in a dense backing store.
func (k ElementsKind) IsFast() bool { return k <= FastElements }

// ElementSize returns the byte width of a typed array element.
func (k ElementsKind) ElementSize() int {
	switch k {
	case Int8Elements, Uint8Elements, Uint8ClampedElements:
		return 1
	case Int16Elements, Uint16Elements:
		return 2
	case Int32Elements, Uint32Elements, Float32Elements:
		return 4
	case Float64Elements:
		return 8
	}
	return SlotSize
}

// IsMoreGeneralElementsKindTransition reports whether objects may move
// from kind from to kind to without losing information.
func IsMoreGeneralElementsKindTransition(from, to ElementsKind) bool {
	switch from {
	case FastSmiElements:
		return to == FastDoubleElements || to == FastElements
	case FastDoubleElements:
		return to == FastElements
	}
	return false
}

// ElementsKindForValue returns the least general fast kind that can hold v.
func ElementsKindForValue(v Value) ElementsKind {
	switch {
	case v.IsSmi():
		return FastSmiElements
	case v.IsNumber():
		return FastDoubleElements
	}
	return FastElements
}

// holeNaN marks holes in double backing stores.
var holeNaN = math.Float64frombits(0x7FF7FFFFFFFFFFFF)

// IsHoleNaN reports whether f is the double-array hole marker.
func IsHoleNaN(f float64) bool {
	return math.Float64bits(f) == 0x7FF7FFFFFFFFFFFF
}

// ---------------------------------------------------------------------------
// Typed array storage
// ---------------------------------------------------------------------------

// TypedStore is the backing buffer of a typed array.
type TypedStore struct {
	kind ElementsKind
	buf  []byte
}

// NewTypedStore allocates length elements of kind.
func NewTypedStore(kind ElementsKind, length int) *TypedStore {
	return &TypedStore{kind: kind, buf: make([]byte, length*kind.ElementSize())}
}

// Len returns the element count.
func (t *TypedStore) Len() int { return len(t.buf) / t.kind.ElementSize() }

// Kind returns the element kind.
func (t *TypedStore) Kind() ElementsKind { return t.kind }

// Load reads element i. The caller has bounds-checked i.
func (t *TypedStore) Load(i int) Value {
	off := i * t.kind.ElementSize()
	b := t.buf[off:]
	switch t.kind {
	case Int8Elements:
		return FromSmi(int64(int8(b[0])))
	case Uint8Elements, Uint8ClampedElements:
		return FromSmi(int64(b[0]))
	case Int16Elements:
		return FromSmi(int64(int16(binary.LittleEndian.Uint16(b))))
	case Uint16Elements:
		return FromSmi(int64(binary.LittleEndian.Uint16(b)))
	case Int32Elements:
		return FromSmi(int64(int32(binary.LittleEndian.Uint32(b))))
	case Uint32Elements:
		return FromSmi(int64(binary.LittleEndian.Uint32(b)))
	case Float32Elements:
		return FromNumber(float64(math.Float32frombits(binary.LittleEndian.Uint32(b))))
	case Float64Elements:
		return FromNumber(math.Float64frombits(binary.LittleEndian.Uint64(b)))
	}
	return Undefined
}

// Store writes number f into element i with the kind's conversion. The
// caller has bounds-checked i.
func (t *TypedStore) Store(i int, f float64) {
	off := i * t.kind.ElementSize()
	b := t.buf[off:]
	switch t.kind {
	case Int8Elements, Uint8Elements:
		b[0] = byte(toUint32(f))
	case Uint8ClampedElements:
		b[0] = clampUint8(f)
	case Int16Elements, Uint16Elements:
		binary.LittleEndian.PutUint16(b, uint16(toUint32(f)))
	case Int32Elements, Uint32Elements:
		binary.LittleEndian.PutUint32(b, toUint32(f))
	case Float32Elements:
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(f)))
	case Float64Elements:
		binary.LittleEndian.PutUint64(b, math.Float64bits(f))
	}
}

// toUint32 is ToUint32: truncate, then wrap modulo 2^32.
func toUint32(f float64) uint32 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return uint32(int64(math.Mod(math.Trunc(f), 4294967296)))
}

func clampUint8(f float64) byte {
	switch {
	case math.IsNaN(f) || f <= 0:
		return 0
	case f >= 255:
		return 255
	}
	return byte(math.RoundToEven(f))
}
