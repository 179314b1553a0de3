package vm

import (
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// ---------------------------------------------------------------------------
// Names: interned property keys
// ---------------------------------------------------------------------------

// nameHashMask keeps hashes within the 30-bit hash field.
const nameHashMask = 0x3FFFFFFF

// Name is a property key. Internalized strings and symbols are unique:
// two unique names are equal iff they are the same *Name. Transient names
// carry the same hash but must never be compared by identity.
type Name struct {
	id     uint32
	str    string
	hash   uint32
	unique bool
	symbol bool

	index      uint32
	isIndex    bool
	indexKnown bool
}

func hashName(s string) uint32 {
	return uint32(xxhash.Sum64String(s)) & nameHashMask
}

// NewTransientName creates a non-unique name, as produced by a string
// concatenation that was never internalized.
func NewTransientName(s string) *Name {
	return &Name{str: s, hash: hashName(s)}
}

func (n *Name) String() string { return n.str }

// Hash returns the name's hash field.
func (n *Name) Hash() uint32 { return n.hash }

// ID returns the name's table id. Transient names have id 0.
func (n *Name) ID() uint32 { return n.id }

// IsUnique reports whether identity comparison is valid for n.
func (n *Name) IsUnique() bool { return n.unique }

// IsSymbol reports whether n is a private symbol rather than a string.
func (n *Name) IsSymbol() bool { return n.symbol }

// AsArrayIndex returns the element index n denotes, if any.
func (n *Name) AsArrayIndex() (uint32, bool) {
	if n.indexKnown {
		return n.index, n.isIndex
	}
	n.indexKnown = true
	if n.symbol || n.str == "" || len(n.str) > 10 || (len(n.str) > 1 && n.str[0] == '0') {
		return 0, false
	}
	v, err := strconv.ParseUint(n.str, 10, 32)
	if err != nil || v == 0xFFFFFFFF {
		return 0, false
	}
	n.index, n.isIndex = uint32(v), true
	return n.index, true
}

// NameTable interns strings into unique names.
type NameTable struct {
	mu     sync.RWMutex
	byName map[string]*Name
	byID   []*Name // index 0 is reserved
}

// NewNameTable creates an empty name table.
func NewNameTable() *NameTable {
	return &NameTable{
		byName: make(map[string]*Name),
		byID:   make([]*Name, 1, 256),
	}
}

// Internalize returns the unique name for s, creating it if needed.
func (t *NameTable) Internalize(s string) *Name {
	t.mu.RLock()
	if n, ok := t.byName[s]; ok {
		t.mu.RUnlock()
		return n
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if n, ok := t.byName[s]; ok {
		return n
	}
	n := &Name{id: uint32(len(t.byID)), str: s, hash: hashName(s), unique: true}
	t.byName[s] = n
	t.byID = append(t.byID, n)
	return n
}

// Lookup returns the unique name for s without creating one.
func (t *NameTable) Lookup(s string) (*Name, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.byName[s]
	return n, ok
}

// NewSymbol creates a fresh unique name that no string internalizes to.
func (t *NameTable) NewSymbol(description string) *Name {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := &Name{id: uint32(len(t.byID)), str: description, unique: true, symbol: true}
	n.hash = hashName("\x00symbol:"+description+strconv.Itoa(int(n.id))) & nameHashMask
	t.byID = append(t.byID, n)
	return n
}

// ByID returns the unique name with the given id, or nil.
func (t *NameTable) ByID(id uint32) *Name {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if id == 0 || int(id) >= len(t.byID) {
		return nil
	}
	return t.byID[id]
}

// Value returns n as a Value. Transient names are internalized first.
func (t *NameTable) Value(n *Name) Value {
	if !n.unique {
		n = t.Internalize(n.str)
	}
	return FromNameID(n.id)
}

// Len returns the number of unique names.
func (t *NameTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byID) - 1
}
