package vm

import "fmt"

// Object layout constants. All offsets are in bytes from the start of the
// object.
const (
	SlotSize = 8

	ShapeOffset      = 0
	PropertiesOffset = SlotSize
	ElementsOffset   = 2 * SlotSize
	ObjectHeaderSize = 3 * SlotSize

	FixedArrayLengthOffset = SlotSize
	FixedArrayHeaderSize   = 2 * SlotSize

	HeapNumberValueOffset = SlotSize
	CellValueOffset       = SlotSize
	ArrayLengthOffset     = ObjectHeaderSize
)

// FieldIndex locates a data field either inside the object or in its
// out-of-object properties array.
type FieldIndex struct {
	inObject bool
	// index is negative for in-object fields, counted back from the end
	// of the instance; for out-of-object fields it is the slot in the
	// properties array.
	index        int
	instanceSize int
	field        int
}

// FieldIndexFor computes the index of field number field on shape s.
func FieldIndexFor(s *Shape, field int) FieldIndex {
	inobj := s.InObjectProperties()
	if field < inobj {
		fi := FieldIndex{inObject: true, index: field - inobj, instanceSize: s.InstanceSize(), field: field}
		if DebugAssertions {
			Assert(fi.ByteOffset() >= ObjectHeaderSize && fi.ByteOffset() < s.InstanceSize(),
				"in-object field %d outside instance of size %d", field, s.InstanceSize())
		}
		return fi
	}
	return FieldIndex{index: field - inobj, instanceSize: s.InstanceSize(), field: field}
}

// IsInObject reports whether the field lives inside the object itself.
func (f FieldIndex) IsInObject() bool { return f.inObject }

// Index returns the raw index: negative for in-object fields, the
// properties array slot otherwise.
func (f FieldIndex) Index() int { return f.index }

// Field returns the field number in shape order.
func (f FieldIndex) Field() int { return f.field }

// ByteOffset returns the offset to load from: relative to the object for
// in-object fields, relative to the properties array otherwise.
func (f FieldIndex) ByteOffset() int {
	if f.inObject {
		return f.instanceSize + f.index*SlotSize
	}
	return FixedArrayHeaderSize + f.index*SlotSize
}

// InObjectSlot returns the position within the object's in-object area.
func (f FieldIndex) InObjectSlot() int {
	return f.field
}

func (f FieldIndex) String() string {
	if f.inObject {
		return fmt.Sprintf("in-object[%d]@%d", f.InObjectSlot(), f.ByteOffset())
	}
	return fmt.Sprintf("properties[%d]@%d", f.index, f.ByteOffset())
}
