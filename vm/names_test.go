package vm

import "testing"

func TestInternalizeIsIdentity(t *testing.T) {
	tab := NewNameTable()
	a := tab.Internalize("foo")
	b := tab.Internalize("foo")
	if a != b {
		t.Fatal("internalizing twice must return the same name")
	}
	if !a.IsUnique() || a.ID() == 0 {
		t.Errorf("internalized name = %+v", a)
	}
	if tab.ByID(a.ID()) != a {
		t.Error("ByID round trip failed")
	}
	if n, ok := tab.Lookup("bar"); ok || n != nil {
		t.Error("Lookup must not create names")
	}

	tr := NewTransientName("foo")
	if tr.IsUnique() || tr == a {
		t.Error("transient names are never unique")
	}
	if tr.Hash() != a.Hash() {
		t.Error("transient and internalized names hash alike")
	}
	if tab.Value(tr) != FromNameID(a.ID()) {
		t.Error("Value internalizes transient names")
	}
}

func TestSymbolsAreDistinct(t *testing.T) {
	tab := NewNameTable()
	s1 := tab.NewSymbol("tag")
	s2 := tab.NewSymbol("tag")
	if s1 == s2 || !s1.IsSymbol() {
		t.Error("every symbol is fresh")
	}
	if tab.Internalize("tag") == s1 {
		t.Error("strings never internalize to symbols")
	}
	if _, ok := s1.AsArrayIndex(); ok {
		t.Error("symbols are not indices")
	}
}

func TestAsArrayIndex(t *testing.T) {
	tests := []struct {
		s    string
		want uint32
		ok   bool
	}{
		{"0", 0, true},
		{"42", 42, true},
		{"4294967294", 4294967294, true},
		{"4294967295", 0, false},
		{"007", 0, false},
		{"", 0, false},
		{"-1", 0, false},
		{"1.5", 0, false},
		{"length", 0, false},
	}
	for _, tt := range tests {
		got, ok := NewTransientName(tt.s).AsArrayIndex()
		if ok != tt.ok || got != tt.want {
			t.Errorf("AsArrayIndex(%q) = %d, %v; want %d, %v", tt.s, got, ok, tt.want, tt.ok)
		}
	}
}
