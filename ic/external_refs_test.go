package ic

import (
	"bytes"
	"errors"
	"testing"
)

func TestExternalReferencesStable(t *testing.T) {
	a, b := NewExternalReferenceTable(), NewExternalReferenceTable()
	if a.Len() != b.Len() {
		t.Fatalf("tables differ in size: %d vs %d", a.Len(), b.Len())
	}
	for _, name := range []string{RuntimeLoadIC, RuntimeCall, RefSecondaryShapes} {
		ra, ok := a.Lookup(name)
		if !ok {
			t.Fatalf("%s not registered", name)
		}
		rb, _ := b.Lookup(name)
		if ra != rb || ra.Address() != b.Address(name) {
			t.Errorf("%s: %v vs %v", name, ra, rb)
		}
	}
	if r, _ := a.Lookup(RefPrimaryKeys); r.Kind != RefTable {
		t.Errorf("%s kind = %s", RefPrimaryKeys, r.Kind)
	}

	sa, err := a.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	sb, err := b.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(sa, sb) {
		t.Error("equal tables produced different snapshots")
	}
}

func TestExternalReferenceRegisterIsIdempotent(t *testing.T) {
	refs := NewExternalReferenceTable()
	n := refs.Len()
	id := refs.Register("custom_builtin", RefBuiltin)
	if again := refs.Register("custom_builtin", RefRuntime); again != id {
		t.Errorf("re-registration gave id %d, want %d", again, id)
	}
	if refs.Len() != n+1 {
		t.Errorf("len = %d, want %d", refs.Len(), n+1)
	}
	if r, ok := refs.ByID(id); !ok || r.Name != "custom_builtin" || r.Kind != RefBuiltin {
		t.Errorf("ByID(%d) = %v", id, r)
	}
	if _, ok := refs.ByID(uint32(refs.Len())); ok {
		t.Error("ByID past the end succeeded")
	}

	// Unknown names used by code templates are registered on demand.
	addr := refs.Address("late_builtin")
	r, ok := refs.Lookup("late_builtin")
	if !ok || r.Address() != addr {
		t.Errorf("late_builtin = %v, %x", r, addr)
	}
	if lit := refs.Literal(RuntimeCall); lit.Comment != RuntimeCall || lit.Value != refs.Address(RuntimeCall) {
		t.Errorf("literal = %+v", lit)
	}
}

func TestExternalReferenceSnapshotRestore(t *testing.T) {
	refs := NewExternalReferenceTable()
	refs.Register("extra", RefBuiltin)
	data, err := refs.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	restored, err := RestoreExternalReferences(data)
	if err != nil {
		t.Fatal(err)
	}
	if restored.Len() != refs.Len() {
		t.Fatalf("restored %d refs, want %d", restored.Len(), refs.Len())
	}
	if err := restored.Verify(data); err != nil {
		t.Errorf("restored table fails verification: %v", err)
	}
	if err := refs.Verify(data); err != nil {
		t.Errorf("source table fails verification: %v", err)
	}
}

func TestExternalReferenceVerifyMismatch(t *testing.T) {
	refs := NewExternalReferenceTable()
	refs.Register("only_here", RefBuiltin)
	data, err := refs.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if err := NewExternalReferenceTable().Verify(data); !errors.Is(err, ErrReferenceMismatch) {
		t.Errorf("missing name: err = %v", err)
	}

	// Same names, different registration order.
	other := &ExternalReferenceTable{byName: make(map[string]uint32)}
	for i := refs.Len() - 1; i >= 0; i-- {
		r, _ := refs.ByID(uint32(i))
		other.Register(r.Name, r.Kind)
	}
	if err := other.Verify(data); !errors.Is(err, ErrReferenceMismatch) {
		t.Errorf("reordered table: err = %v", err)
	}

	if _, err := RestoreExternalReferences([]byte{0xff, 0x00}); err == nil {
		t.Error("restored garbage")
	}
}
