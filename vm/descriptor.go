package vm

import "strings"

// Attributes are the standard property attributes.
type Attributes uint8

const (
	AttrNone       Attributes = 0
	AttrReadOnly   Attributes = 1 << 0
	AttrDontEnum   Attributes = 1 << 1
	AttrDontDelete Attributes = 1 << 2
)

func (a Attributes) IsReadOnly() bool   { return a&AttrReadOnly != 0 }
func (a Attributes) IsDontDelete() bool { return a&AttrDontDelete != 0 }

func (a Attributes) String() string {
	if a == AttrNone {
		return "none"
	}
	var parts []string
	if a&AttrReadOnly != 0 {
		parts = append(parts, "read-only")
	}
	if a&AttrDontEnum != 0 {
		parts = append(parts, "dont-enum")
	}
	if a&AttrDontDelete != 0 {
		parts = append(parts, "dont-delete")
	}
	return strings.Join(parts, "|")
}

// PropertyKind says how a fast-mode property is stored.
type PropertyKind uint8

const (
	// PropertyField is a data property stored in an object field.
	PropertyField PropertyKind = iota
	// PropertyConstant is a data property whose value lives in the shape.
	PropertyConstant
	// PropertyAccessor is an accessor property: either a native
	// AccessorInfo or a pair of language getter/setter functions.
	PropertyAccessor
)

func (k PropertyKind) String() string {
	switch k {
	case PropertyField:
		return "field"
	case PropertyConstant:
		return "constant"
	case PropertyAccessor:
		return "accessor"
	}
	return "?"
}

// PropertyDetails annotate a dictionary-mode entry.
type PropertyDetails struct {
	Attrs    Attributes
	Accessor bool
}

// Descriptor describes one own property of a fast-mode shape.
type Descriptor struct {
	Name  *Name
	Kind  PropertyKind
	Attrs Attributes
	Repr  Representation

	// Field is the field number for PropertyField descriptors.
	Field int
	// Value is the constant for PropertyConstant descriptors.
	Value Value
	// Accessor is an *AccessorInfo or *AccessorPair.
	Accessor HeapObject
}

// DescriptorArray holds a shape's own descriptors in insertion order.
// Arrays are immutable once attached to a shape.
type DescriptorArray struct {
	entries []Descriptor
	index   map[*Name]int
}

var emptyDescriptors = &DescriptorArray{}

// Len returns the number of descriptors.
func (d *DescriptorArray) Len() int { return len(d.entries) }

// At returns descriptor i.
func (d *DescriptorArray) At(i int) Descriptor { return d.entries[i] }

// Search returns the index of the descriptor for name, or -1.
func (d *DescriptorArray) Search(name *Name) int {
	if d.index != nil {
		if i, ok := d.index[name]; ok {
			return i
		}
		return -1
	}
	for i := range d.entries {
		if d.entries[i].Name == name {
			return i
		}
	}
	return -1
}

// withAppended returns a copy of d with desc added.
func (d *DescriptorArray) withAppended(desc Descriptor) *DescriptorArray {
	out := &DescriptorArray{entries: make([]Descriptor, len(d.entries), len(d.entries)+1)}
	copy(out.entries, d.entries)
	out.entries = append(out.entries, desc)
	out.reindex()
	return out
}

// withReplaced returns a copy of d with descriptor i replaced.
func (d *DescriptorArray) withReplaced(i int, desc Descriptor) *DescriptorArray {
	out := &DescriptorArray{entries: make([]Descriptor, len(d.entries))}
	copy(out.entries, d.entries)
	out.entries[i] = desc
	out.reindex()
	return out
}

func (d *DescriptorArray) reindex() {
	if len(d.entries) < 8 {
		d.index = nil
		return
	}
	d.index = make(map[*Name]int, len(d.entries))
	for i := range d.entries {
		d.index[d.entries[i].Name] = i
	}
}
