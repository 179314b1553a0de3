package ic

import "fmt"

// ---------------------------------------------------------------------------
// Code kinds and IC states
// ---------------------------------------------------------------------------

// Kind is the kind of access an IC site or handler serves.
type Kind uint8

const (
	KindLoad Kind = iota
	KindKeyedLoad
	KindStore
	KindKeyedStore
	KindCall
	KindCompare
	// KindHandler marks code produced by the handler compiler. The kind of
	// IC a handler serves is kept in the extra-state bits.
	KindHandler
)

var kindNames = [...]string{"load", "keyed-load", "store", "keyed-store", "call", "compare", "handler"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "?"
}

// IsKeyed reports whether sites of this kind take a computed key.
func (k Kind) IsKeyed() bool { return k == KindKeyedLoad || k == KindKeyedStore }

// IsStore reports whether the kind writes a property.
func (k Kind) IsStore() bool { return k == KindStore || k == KindKeyedStore }

// State is the state of an IC site.
type State uint8

const (
	Uninitialized State = iota
	Premonomorphic
	Monomorphic
	Polymorphic
	Megamorphic
	Generic
)

var stateNames = [...]string{"uninitialized", "premonomorphic", "monomorphic", "polymorphic", "megamorphic", "generic"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "?"
}

// StubType distinguishes handlers that need a receiver shape check from
// shared handlers that work for any shape.
type StubType uint8

const (
	StubFast StubType = iota
	StubNormal
)

// CacheHolder says where a handler is cached: on the receiver's own shape
// or on the shape of the prototype that stands in for a primitive.
type CacheHolder uint8

const (
	OwnShape CacheHolder = iota
	PrototypeShape
)

// ---------------------------------------------------------------------------
// Flags word
// ---------------------------------------------------------------------------

// Flags packs kind, state, stub type, cache holder and extra state into
// one word. State occupies the least significant bits.
type Flags uint32

const (
	stateShift  = 0
	stateBits   = 3
	kindShift   = stateShift + stateBits
	kindBits    = 4
	typeShift   = kindShift + kindBits
	typeBits    = 1
	holderShift = typeShift + typeBits
	holderBits  = 1
	extraShift  = holderShift + holderBits
	extraBits   = 16

	stateMask  Flags = (1<<stateBits - 1) << stateShift
	kindMask   Flags = (1<<kindBits - 1) << kindShift
	typeMask   Flags = (1<<typeBits - 1) << typeShift
	holderMask Flags = (1<<holderBits - 1) << holderShift
	extraMask  Flags = (1<<extraBits - 1) << extraShift

	// flagsNotUsedInLookup are stripped before a flags word is hashed or
	// compared by the stub cache.
	flagsNotUsedInLookup = stateMask | typeMask | holderMask
)

// ComputeFlags packs the given fields.
func ComputeFlags(kind Kind, state State, extra uint16, typ StubType, holder CacheHolder) Flags {
	return Flags(state)<<stateShift |
		Flags(kind)<<kindShift |
		Flags(typ)<<typeShift |
		Flags(holder)<<holderShift |
		Flags(extra)<<extraShift
}

// ComputeHandlerFlags returns the flags of a handler serving ICs of kind.
func ComputeHandlerFlags(kind Kind, typ StubType, holder CacheHolder) Flags {
	return ComputeFlags(KindHandler, Monomorphic, uint16(kind), typ, holder)
}

// ComputeMonomorphicFlags returns the flags of a monomorphic IC stub.
func ComputeMonomorphicFlags(kind Kind, extra uint16, holder CacheHolder) Flags {
	return ComputeFlags(kind, Monomorphic, extra, StubFast, holder)
}

func (f Flags) Kind() Kind               { return Kind((f & kindMask) >> kindShift) }
func (f Flags) State() State             { return State((f & stateMask) >> stateShift) }
func (f Flags) Type() StubType           { return StubType((f & typeMask) >> typeShift) }
func (f Flags) CacheHolder() CacheHolder { return CacheHolder((f & holderMask) >> holderShift) }
func (f Flags) Extra() uint16            { return uint16((f & extraMask) >> extraShift) }

// ComputeKeyedStoreHandlerFlags returns the flags of a keyed store handler
// compiled for one store mode. The mode sits above the IC kind in the
// extra-state bits.
func ComputeKeyedStoreHandlerFlags(mode StoreMode, typ StubType) Flags {
	return ComputeFlags(KindHandler, Monomorphic, uint16(KindKeyedStore)|uint16(mode)<<8, typ, OwnShape)
}

// ServedKind returns the IC kind a handler's flags were computed for.
func (f Flags) ServedKind() Kind { return Kind(f.Extra() & 0xFF) }

// StoreMode returns the keyed store mode packed by
// ComputeKeyedStoreHandlerFlags.
func (f Flags) StoreMode() StoreMode { return StoreMode(f.Extra() >> 8) }

// ForStubCache strips the bits the stub cache ignores, so handlers that
// differ only in state, stub type or cache holder hash alike.
func (f Flags) ForStubCache() Flags { return f &^ flagsNotUsedInLookup }

// WithState returns f with its state replaced.
func (f Flags) WithState(s State) Flags { return f&^stateMask | Flags(s)<<stateShift }

func (f Flags) String() string {
	if f.Kind() == KindHandler {
		return fmt.Sprintf("handler(%s)", f.ServedKind())
	}
	return fmt.Sprintf("%s/%s", f.Kind(), f.State())
}
