package vm

// PropertyCell holds the value of one global object property. Compiled
// code embeds the cell itself, so a global binding can be read without a
// dictionary lookup. A cell holding TheHole means the property does not
// exist.
type PropertyCell struct {
	Header
	name    *Name
	value   Value
	details PropertyDetails
	version uint32
}

func (c *PropertyCell) Name() *Name               { return c.name }
func (c *PropertyCell) Value() Value              { return c.value }
func (c *PropertyCell) Details() PropertyDetails  { return c.details }
func (c *PropertyCell) IsHole() bool              { return c.value == TheHole }
func (c *PropertyCell) Version() uint32           { return c.version }
func (c *PropertyCell) IsReadOnly() bool          { return c.details.Attrs.IsReadOnly() }

// SetValue stores v in the cell. Every store that replaces one value with
// a different one bumps the version so cached call targets can tell the
// binding has changed.
func (c *PropertyCell) SetValue(h *Heap, v Value) {
	if c.value != v {
		c.version++
	}
	c.value = v
	h.RecordWriteValue(c, CellValueOffset, v)
}

// SetDetails updates the cell's attributes.
func (c *PropertyCell) SetDetails(d PropertyDetails) { c.details = d }

// ---------------------------------------------------------------------------
// Global object support
// ---------------------------------------------------------------------------

// GlobalPropertyCell returns the cell for name on global object o, or nil.
func (o *JSObject) GlobalPropertyCell(h *Heap, name *Name) *PropertyCell {
	e, ok := o.dictionary.Find(name)
	if !ok {
		return nil
	}
	c, _ := h.Deref(o.dictionary.ValueAt(e)).(*PropertyCell)
	return c
}

// EnsurePropertyCell returns the cell for name on global object o,
// creating a hole-valued one if the property is absent.
func (o *JSObject) EnsurePropertyCell(h *Heap, name *Name) *PropertyCell {
	Assert(o.IsGlobalObject(), "EnsurePropertyCell on non-global")
	if c := o.GlobalPropertyCell(h, name); c != nil {
		return c
	}
	c := &PropertyCell{name: name, value: TheHole}
	ref := h.AllocateAddressable(c)
	e := o.dictionary.Add(name, FromRef(ref), PropertyDetails{})
	h.RecordWrite(o.dictionary, DictionaryEntryAt(e).ValueOffset, c)
	return c
}
