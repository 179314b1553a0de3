package vm

// ---------------------------------------------------------------------------
// Dictionaries: open-addressing hash tables for slow-mode properties
// ---------------------------------------------------------------------------

// Dictionary layout. A dictionary is a fixed array with a three-word
// prefix (element count, deleted count, capacity) followed by entries of
// three words each.
const (
	dictionaryPrefixSize    = 3
	dictionaryEntrySize     = 3
	dictionaryKeyIndex      = 0
	dictionaryValueIndex    = 1
	dictionaryDetailsIndex  = 2
	dictionaryMinCapacity   = 4
	dictionaryMaxLoadFactor = 2
)

// DictionaryEntry gives the byte offsets of one entry's words within the
// dictionary's backing store.
type DictionaryEntry struct {
	KeyOffset     int
	ValueOffset   int
	DetailsOffset int
}

// DictionaryEntryAt computes the offsets of entry.
func DictionaryEntryAt(entry int) DictionaryEntry {
	base := FixedArrayHeaderSize + (dictionaryPrefixSize+entry*dictionaryEntrySize)*SlotSize
	return DictionaryEntry{
		KeyOffset:     base + dictionaryKeyIndex*SlotSize,
		ValueOffset:   base + dictionaryValueIndex*SlotSize,
		DetailsOffset: base + dictionaryDetailsIndex*SlotSize,
	}
}

type slotState uint8

const (
	slotEmpty slotState = iota
	slotUsed
	slotDeleted
)

// hashTable uses triangular probing over a power-of-two capacity, which
// visits every slot, and keeps the load below one half so that probes
// always terminate at an empty slot.
type hashTable[K comparable] struct {
	hash    func(K) uint32
	keys    []K
	values  []Value
	details []PropertyDetails
	state   []slotState
	used    int
	deleted int
}

func (t *hashTable[K]) init(capacity int, hash func(K) uint32) {
	c := dictionaryMinCapacity
	for c < capacity*dictionaryMaxLoadFactor {
		c <<= 1
	}
	t.hash = hash
	t.keys = make([]K, c)
	t.values = make([]Value, c)
	t.details = make([]PropertyDetails, c)
	t.state = make([]slotState, c)
	t.used, t.deleted = 0, 0
}

func (t *hashTable[K]) find(k K) int {
	mask := uint32(len(t.state) - 1)
	i := t.hash(k) & mask
	for n := uint32(1); ; n++ {
		switch t.state[i] {
		case slotEmpty:
			return -1
		case slotUsed:
			if t.keys[i] == k {
				return int(i)
			}
		}
		i = (i + n) & mask
	}
}

func (t *hashTable[K]) add(k K, v Value, d PropertyDetails) int {
	if (t.used+t.deleted+1)*dictionaryMaxLoadFactor > len(t.state) {
		t.rehash(t.used + 1)
	}
	mask := uint32(len(t.state) - 1)
	i := t.hash(k) & mask
	for n := uint32(1); t.state[i] == slotUsed; n++ {
		i = (i + n) & mask
	}
	if t.state[i] == slotDeleted {
		t.deleted--
	}
	t.keys[i], t.values[i], t.details[i], t.state[i] = k, v, d, slotUsed
	t.used++
	return int(i)
}

func (t *hashTable[K]) remove(entry int) {
	var zero K
	t.keys[entry], t.values[entry], t.details[entry] = zero, TheHole, PropertyDetails{}
	t.state[entry] = slotDeleted
	t.used--
	t.deleted++
}

func (t *hashTable[K]) rehash(atLeast int) {
	old := *t
	t.init(atLeast, old.hash)
	for i, s := range old.state {
		if s == slotUsed {
			t.add(old.keys[i], old.values[i], old.details[i])
		}
	}
}

// NameDictionary maps unique names to values.
type NameDictionary struct {
	Header
	table hashTable[*Name]
}

// NewNameDictionary creates a dictionary sized for capacity entries.
func NewNameDictionary(capacity int) *NameDictionary {
	d := &NameDictionary{}
	d.table.init(capacity, (*Name).Hash)
	return d
}

// Find returns the entry for name. Only unique names may be looked up.
func (d *NameDictionary) Find(name *Name) (int, bool) {
	if DebugAssertions {
		Assert(name.IsUnique(), "dictionary lookup with non-unique name %q", name)
	}
	e := d.table.find(name)
	return e, e >= 0
}

// Add inserts a new entry. The name must not be present.
func (d *NameDictionary) Add(name *Name, v Value, details PropertyDetails) int {
	return d.table.add(name, v, details)
}

func (d *NameDictionary) KeyAt(entry int) *Name                      { return d.table.keys[entry] }
func (d *NameDictionary) ValueAt(entry int) Value                    { return d.table.values[entry] }
func (d *NameDictionary) DetailsAt(entry int) PropertyDetails        { return d.table.details[entry] }
func (d *NameDictionary) SetValueAt(entry int, v Value)              { d.table.values[entry] = v }
func (d *NameDictionary) SetDetailsAt(entry int, pd PropertyDetails) { d.table.details[entry] = pd }

// Delete removes entry.
func (d *NameDictionary) Delete(entry int) { d.table.remove(entry) }

// Len returns the number of live entries.
func (d *NameDictionary) Len() int { return d.table.used }

// Capacity returns the number of slots.
func (d *NameDictionary) Capacity() int { return len(d.table.state) }

// Each calls fn for every live entry in slot order.
func (d *NameDictionary) Each(fn func(name *Name, v Value, details PropertyDetails)) {
	for i, s := range d.table.state {
		if s == slotUsed {
			fn(d.table.keys[i], d.table.values[i], d.table.details[i])
		}
	}
}

// NumberDictionary maps element indices to values for dictionary-mode
// elements.
type NumberDictionary struct {
	Header
	table  hashTable[uint32]
	maxKey uint32
}

// integerHash is the 32-bit integer hash used for element keys.
func integerHash(k uint32) uint32 {
	h := k
	h = ^h + (h << 15)
	h ^= h >> 12
	h += h << 2
	h ^= h >> 4
	h *= 2057
	h ^= h >> 16
	return h & nameHashMask
}

// NewNumberDictionary creates a dictionary sized for capacity entries.
func NewNumberDictionary(capacity int) *NumberDictionary {
	d := &NumberDictionary{}
	d.table.init(capacity, integerHash)
	return d
}

func (d *NumberDictionary) Find(index uint32) (int, bool) {
	e := d.table.find(index)
	return e, e >= 0
}

func (d *NumberDictionary) Add(index uint32, v Value, details PropertyDetails) int {
	if index > d.maxKey {
		d.maxKey = index
	}
	return d.table.add(index, v, details)
}

func (d *NumberDictionary) ValueAt(entry int) Value             { return d.table.values[entry] }
func (d *NumberDictionary) DetailsAt(entry int) PropertyDetails { return d.table.details[entry] }
func (d *NumberDictionary) SetValueAt(entry int, v Value)       { d.table.values[entry] = v }
func (d *NumberDictionary) Delete(entry int)                    { d.table.remove(entry) }
func (d *NumberDictionary) Len() int                            { return d.table.used }

// MaxKey returns the largest index ever added.
func (d *NumberDictionary) MaxKey() uint32 { return d.maxKey }
