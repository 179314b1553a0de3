package ic

import (
	"errors"
	"fmt"
	"sync"

	"github.com/chazu/shapecache/codegen"
	"github.com/fxamacker/cbor/v2"
)

// Runtime entry points that handlers fall back to or tail-call.
const (
	RuntimeLoadIC                     = "load_ic_miss"
	RuntimeKeyedLoadIC                = "keyed_load_ic_miss"
	RuntimeStoreIC                    = "store_ic_miss"
	RuntimeKeyedStoreIC               = "keyed_store_ic_miss"
	RuntimeCallIC                     = "call_ic_miss"
	RuntimeCompareIC                  = "compare_ic_miss"
	RuntimeGetProperty                = "get_property"
	RuntimeSetProperty                = "set_property"
	RuntimeKeyedGetProperty           = "keyed_get_property"
	RuntimeKeyedSetProperty           = "keyed_set_property"
	RuntimeLoadInterceptorOnly        = "load_property_with_interceptor_only"
	RuntimeLoadPostInterceptor        = "load_property_with_interceptor"
	RuntimeLoadElementInterceptor     = "load_element_with_interceptor"
	RuntimeStoreInterceptor           = "store_property_with_interceptor"
	RuntimeStoreCallbackProperty      = "store_callback_property"
	RuntimeExtendStorage              = "extend_storage_and_store"
	RuntimeSetArrayLength             = "set_array_length"
	RuntimeGrowElements               = "grow_elements"
	RuntimeElementsTransitionAndStore = "elements_transition_and_store"
	RuntimeCall                       = "call_runtime"
)

// Addresses of the megamorphic stub cache tables.
const (
	RefPrimaryKeys     = "stub_cache.primary.key"
	RefPrimaryValues   = "stub_cache.primary.value"
	RefPrimaryShapes   = "stub_cache.primary.shape"
	RefSecondaryKeys   = "stub_cache.secondary.key"
	RefSecondaryValues = "stub_cache.secondary.value"
	RefSecondaryShapes = "stub_cache.secondary.shape"
)

// missEntry returns the runtime entry a handler serving kind jumps to
// when a guard fails.
func missEntry(kind Kind) string {
	switch kind {
	case KindKeyedLoad:
		return RuntimeKeyedLoadIC
	case KindStore:
		return RuntimeStoreIC
	case KindKeyedStore:
		return RuntimeKeyedStoreIC
	case KindCall:
		return RuntimeCallIC
	case KindCompare:
		return RuntimeCompareIC
	}
	return RuntimeLoadIC
}

// RefKind classifies external references.
type RefKind uint8

const (
	RefRuntime RefKind = iota
	RefBuiltin
	RefTable
)

var refKindNames = [...]string{"runtime", "builtin", "table"}

func (k RefKind) String() string {
	if int(k) < len(refKindNames) {
		return refKindNames[k]
	}
	return "?"
}

// ExternalReference is one addressable entity outside generated code.
type ExternalReference struct {
	ID   uint32  `cbor:"1,keyasint"`
	Name string  `cbor:"2,keyasint"`
	Kind RefKind `cbor:"3,keyasint"`
}

// refAddressTag marks external reference addresses in code templates.
const refAddressTag = uint64(0xE7) << 56

// Address returns the value generated code embeds for the reference.
func (r ExternalReference) Address() uint64 { return refAddressTag | uint64(r.ID)<<3 }

// ErrReferenceMismatch is returned by Verify when a snapshot was taken
// against a different table.
var ErrReferenceMismatch = errors.New("ic: external reference mismatch")

// ExternalReferenceTable assigns stable ids to runtime entry points,
// builtins and the stub cache tables. Ids are handed out in registration
// order, so two tables built the same way agree.
type ExternalReferenceTable struct {
	mu     sync.RWMutex
	refs   []ExternalReference
	byName map[string]uint32
}

// NewExternalReferenceTable returns a table with every runtime entry,
// builtin and stub cache table registered.
func NewExternalReferenceTable() *ExternalReferenceTable {
	t := &ExternalReferenceTable{byName: make(map[string]uint32)}
	for _, name := range []string{
		RuntimeLoadIC, RuntimeKeyedLoadIC, RuntimeStoreIC, RuntimeKeyedStoreIC,
		RuntimeCallIC, RuntimeCompareIC, RuntimeGetProperty, RuntimeSetProperty,
		RuntimeKeyedGetProperty, RuntimeKeyedSetProperty, RuntimeLoadInterceptorOnly,
		RuntimeLoadPostInterceptor, RuntimeLoadElementInterceptor, RuntimeStoreInterceptor,
		RuntimeStoreCallbackProperty, RuntimeExtendStorage, RuntimeSetArrayLength,
		RuntimeGrowElements, RuntimeElementsTransitionAndStore, RuntimeCall,
	} {
		t.Register(name, RefRuntime)
	}
	for _, name := range codegen.Builtins() {
		t.Register(name, RefBuiltin)
	}
	for _, name := range []string{
		RefPrimaryKeys, RefPrimaryValues, RefPrimaryShapes,
		RefSecondaryKeys, RefSecondaryValues, RefSecondaryShapes,
	} {
		t.Register(name, RefTable)
	}
	return t
}

// Register adds name and returns its id. Registering a name again returns
// the id it already has.
func (t *ExternalReferenceTable) Register(name string, kind RefKind) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.byName[name]; ok {
		return id
	}
	id := uint32(len(t.refs))
	t.refs = append(t.refs, ExternalReference{ID: id, Name: name, Kind: kind})
	t.byName[name] = id
	return id
}

// Lookup finds a reference by name.
func (t *ExternalReferenceTable) Lookup(name string) (ExternalReference, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.byName[name]
	if !ok {
		return ExternalReference{}, false
	}
	return t.refs[id], true
}

// ByID finds a reference by id.
func (t *ExternalReferenceTable) ByID(id uint32) (ExternalReference, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(id) >= len(t.refs) {
		return ExternalReference{}, false
	}
	return t.refs[id], true
}

// Address resolves name for code templates. Unknown names are registered
// as builtins.
func (t *ExternalReferenceTable) Address(name string) uint64 {
	if r, ok := t.Lookup(name); ok {
		return r.Address()
	}
	return ExternalReference{ID: t.Register(name, RefBuiltin)}.Address()
}

// Literal returns a code template literal for name.
func (t *ExternalReferenceTable) Literal(name string) codegen.Literal {
	return codegen.Literal{Value: t.Address(name), Comment: name}
}

// Len returns the number of registered references.
func (t *ExternalReferenceTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.refs)
}

// ---------------------------------------------------------------------------
// Snapshots
// ---------------------------------------------------------------------------

const snapshotVersion = 1

type referenceSnapshot struct {
	Version int                 `cbor:"1,keyasint"`
	Refs    []ExternalReference `cbor:"2,keyasint"`
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("ic: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Snapshot serializes the table. Equal tables produce equal bytes.
func (t *ExternalReferenceTable) Snapshot() ([]byte, error) {
	t.mu.RLock()
	snap := referenceSnapshot{Version: snapshotVersion, Refs: append([]ExternalReference(nil), t.refs...)}
	t.mu.RUnlock()
	return cborEncMode.Marshal(&snap)
}

func decodeSnapshot(data []byte) (*referenceSnapshot, error) {
	var snap referenceSnapshot
	if err := cbor.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("ic: unmarshal reference snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("ic: reference snapshot version %d, want %d", snap.Version, snapshotVersion)
	}
	return &snap, nil
}

// RestoreExternalReferences rebuilds a table from a snapshot.
func RestoreExternalReferences(data []byte) (*ExternalReferenceTable, error) {
	snap, err := decodeSnapshot(data)
	if err != nil {
		return nil, err
	}
	t := &ExternalReferenceTable{byName: make(map[string]uint32, len(snap.Refs))}
	for i, r := range snap.Refs {
		if r.ID != uint32(i) {
			return nil, fmt.Errorf("%w: entry %d has id %d", ErrReferenceMismatch, i, r.ID)
		}
		if _, dup := t.byName[r.Name]; dup {
			return nil, fmt.Errorf("%w: %q registered twice", ErrReferenceMismatch, r.Name)
		}
		t.refs = append(t.refs, r)
		t.byName[r.Name] = r.ID
	}
	return t, nil
}

// Verify checks that every reference in a snapshot resolves to the same
// id and kind in t, so code serialized against the snapshot can be
// relocated against t.
func (t *ExternalReferenceTable) Verify(data []byte) error {
	snap, err := decodeSnapshot(data)
	if err != nil {
		return err
	}
	for _, want := range snap.Refs {
		got, ok := t.Lookup(want.Name)
		switch {
		case !ok:
			return fmt.Errorf("%w: %q is not registered", ErrReferenceMismatch, want.Name)
		case got.ID != want.ID || got.Kind != want.Kind:
			return fmt.Errorf("%w: %q is %d/%s, snapshot has %d/%s",
				ErrReferenceMismatch, want.Name, got.ID, got.Kind, want.ID, want.Kind)
		}
	}
	return nil
}
