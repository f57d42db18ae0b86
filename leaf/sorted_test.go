package leaf

import (
	"testing"

	"lastree/page"
	"lastree/tuple"
)

func testSchema(t *testing.T) *tuple.Schema {
	t.Helper()
	s, err := tuple.NewSchema([]tuple.Type{tuple.Int32, tuple.Varchar}, []string{"id", "val"}, 0)
	if err != nil {
		t.Fatalf("NewSchema: %v", err)
	}
	return s
}

func row(k int32, v string) *tuple.Tuple {
	return tuple.New(tuple.IntField(k), tuple.VarcharField(v))
}

func TestSortedInsertGetOrdering(t *testing.T) {
	schema := testSchema(t)
	p := page.New(page.KindLeaf)
	v := NewSortedLeaf(p, schema, 1, 0)

	keys := []int32{5, 1, 9, 3, 7}
	for _, k := range keys {
		if !v.Insert(row(k, "payload")) {
			t.Fatalf("insert %d failed: leaf reported full", k)
		}
	}
	if v.TupleCount() != len(keys) {
		t.Fatalf("TupleCount() = %d, want %d", v.TupleCount(), len(keys))
	}

	for _, k := range keys {
		got, ok := v.Get(tuple.IntField(k))
		if !ok {
			t.Fatalf("Get(%d): not found", k)
		}
		if got.Fields[0].I32 != k {
			t.Errorf("Get(%d) returned key %d", k, got.Fields[0].I32)
		}
	}
	if _, ok := v.Get(tuple.IntField(100)); ok {
		t.Errorf("Get(100) unexpectedly found")
	}
	if v.MinKey().I32 != 1 {
		t.Errorf("MinKey = %d, want 1", v.MinKey().I32)
	}
	if v.MaxKey().I32 != 9 {
		t.Errorf("MaxKey = %d, want 9", v.MaxKey().I32)
	}
}

func TestSortedUpdateReplacesValue(t *testing.T) {
	schema := testSchema(t)
	p := page.New(page.KindLeaf)
	v := NewSortedLeaf(p, schema, 1, 0)

	v.Insert(row(1, "first"))
	if !v.Update(row(1, "second")) {
		t.Fatalf("Update failed")
	}
	if v.TupleCount() != 1 {
		t.Fatalf("TupleCount() = %d after update, want 1", v.TupleCount())
	}
	got, ok := v.Get(tuple.IntField(1))
	if !ok {
		t.Fatalf("Get after update: not found")
	}
	if got.Fields[1].Str != "second" {
		t.Errorf("value after update = %q, want %q", got.Fields[1].Str, "second")
	}
}

func TestSortedRange(t *testing.T) {
	schema := testSchema(t)
	p := page.New(page.KindLeaf)
	v := NewSortedLeaf(p, schema, 1, 0)
	for _, k := range []int32{1, 2, 3, 4, 5} {
		v.Insert(row(k, "x"))
	}
	got := v.Range(tuple.IntField(2), tuple.IntField(4), nil)
	if len(got) != 3 {
		t.Fatalf("Range len = %d, want 3", len(got))
	}
	for i, want := range []int32{2, 3, 4} {
		if got[i].Fields[0].I32 != want {
			t.Errorf("Range[%d] = %d, want %d", i, got[i].Fields[0].I32, want)
		}
	}
}

func TestSortedSplitIntoPreservesOrderAndLinks(t *testing.T) {
	schema := testSchema(t)
	p1 := page.New(page.KindLeaf)
	v1 := NewSortedLeaf(p1, schema, 1, 99)
	for i := int32(0); i < 20; i++ {
		v1.Insert(row(i, "value-with-some-padding-bytes"))
	}

	p2 := page.New(page.KindLeaf)
	v2 := NewSortedLeaf(p2, schema, 2, 0)

	sep, newID := v1.SplitInto(v2)
	if newID != 2 {
		t.Fatalf("SplitInto returned newLeafID %d, want 2", newID)
	}
	if v1.NextID() != 2 {
		t.Errorf("v1.NextID() = %d, want 2", v1.NextID())
	}
	if v2.NextID() != 99 {
		t.Errorf("v2.NextID() = %d, want 99", v2.NextID())
	}
	if v1.TupleCount()+v2.TupleCount() != 20 {
		t.Errorf("tuple counts after split sum to %d, want 20", v1.TupleCount()+v2.TupleCount())
	}
	if v1.MaxKey().I32 >= sep.I32 {
		t.Errorf("v1.MaxKey() = %d should be < separator %d", v1.MaxKey().I32, sep.I32)
	}
	if v2.MinKey().I32 != sep.I32 {
		t.Errorf("v2.MinKey() = %d, want separator %d", v2.MinKey().I32, sep.I32)
	}
}
