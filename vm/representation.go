package vm

// Representation is the storage format a shape promises for a field.
type Representation uint8

const (
	ReprNone Representation = iota
	ReprSmi
	ReprDouble
	ReprHeapObject
	ReprTagged
)

var reprNames = [...]string{"none", "smi", "double", "heap-object", "tagged"}

func (r Representation) String() string {
	if int(r) < len(reprNames) {
		return reprNames[r]
	}
	return "?"
}

// RepresentationOf returns the most specific representation that can
// hold v.
func RepresentationOf(v Value) Representation {
	switch {
	case v.IsSmi():
		return ReprSmi
	case v.IsNumber():
		return ReprDouble
	case v.IsRef():
		return ReprHeapObject
	}
	return ReprTagged
}

// Fits reports whether v can be stored in a field of representation r
// without generalizing it.
func (r Representation) Fits(v Value) bool {
	switch r {
	case ReprNone:
		return false
	case ReprSmi:
		return v.IsSmi()
	case ReprDouble:
		return v.IsNumeric()
	case ReprHeapObject:
		return v.IsRef()
	}
	return true
}

// Generalize returns the least representation that covers both r and o.
func (r Representation) Generalize(o Representation) Representation {
	switch {
	case r == o:
		return r
	case r == ReprNone:
		return o
	case o == ReprNone:
		return r
	case r == ReprTagged || o == ReprTagged:
		return ReprTagged
	case (r == ReprSmi && o == ReprDouble) || (r == ReprDouble && o == ReprSmi):
		return ReprDouble
	}
	return ReprTagged
}

// IsMoreGeneralThan reports whether r strictly covers o.
func (r Representation) IsMoreGeneralThan(o Representation) bool {
	return r != o && r.Generalize(o) == r
}

// NeedsWriteBarrier reports whether stores of this representation can
// write a heap pointer.
func (r Representation) NeedsWriteBarrier() bool {
	return r == ReprHeapObject || r == ReprTagged
}
