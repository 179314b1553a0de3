package vm

import (
	"strconv"
	"testing"
)

func TestNameDictionaryAddFindDelete(t *testing.T) {
	tab := NewNameTable()
	d := NewNameDictionary(2)
	names := make([]*Name, 50)
	for i := range names {
		names[i] = tab.Internalize("k" + strconv.Itoa(i))
		d.Add(names[i], FromSmi(int64(i)), PropertyDetails{})
	}
	if d.Len() != 50 {
		t.Fatalf("Len() = %d", d.Len())
	}
	if d.Capacity() < 2*d.Len() {
		t.Errorf("capacity %d exceeds the load limit for %d entries", d.Capacity(), d.Len())
	}
	for i, n := range names {
		e, ok := d.Find(n)
		if !ok || d.ValueAt(e) != FromSmi(int64(i)) || d.KeyAt(e) != n {
			t.Fatalf("entry for %s missing", n)
		}
	}

	e, _ := d.Find(names[7])
	d.Delete(e)
	if _, ok := d.Find(names[7]); ok {
		t.Error("deleted entry still found")
	}
	for i, n := range names {
		if i == 7 {
			continue
		}
		if _, ok := d.Find(n); !ok {
			t.Errorf("%s lost after delete", n)
		}
	}
	if _, ok := d.Find(tab.Internalize("absent")); ok {
		t.Error("absent name found")
	}

	count := 0
	d.Each(func(*Name, Value, PropertyDetails) { count++ })
	if count != 49 {
		t.Errorf("Each visited %d entries", count)
	}
}

func TestDictionaryEntryOffsets(t *testing.T) {
	e0 := DictionaryEntryAt(0)
	if e0.KeyOffset != FixedArrayHeaderSize+3*SlotSize {
		t.Errorf("entry 0 key offset = %d", e0.KeyOffset)
	}
	e2 := DictionaryEntryAt(2)
	if e2.ValueOffset-e0.ValueOffset != 2*3*SlotSize {
		t.Errorf("entries are three words apart, got %d", e2.ValueOffset-e0.ValueOffset)
	}
	if e0.DetailsOffset != e0.ValueOffset+SlotSize {
		t.Error("details follow the value")
	}
}

func TestNumberDictionary(t *testing.T) {
	d := NewNumberDictionary(1)
	for _, k := range []uint32{5, 100000, 3, 1 << 31} {
		d.Add(k, FromSmi(int64(k%1000)), PropertyDetails{})
	}
	if d.MaxKey() != 1<<31 {
		t.Errorf("MaxKey() = %d", d.MaxKey())
	}
	e, ok := d.Find(100000)
	if !ok || d.ValueAt(e) != FromSmi(0) {
		t.Error("lookup of 100000 failed")
	}
	d.SetValueAt(e, True)
	if d.ValueAt(e) != True {
		t.Error("SetValueAt did not store")
	}
	if _, ok := d.Find(4); ok {
		t.Error("absent key found")
	}
}
