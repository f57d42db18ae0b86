package tuple

import "testing"

func mustSchema(t *testing.T, types []Type, names []string, keyField int) *Schema {
	t.Helper()
	s, err := NewSchema(types, names, keyField)
	if err != nil {
		t.Fatalf("NewSchema: %v", err)
	}
	return s
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	s := mustSchema(t, []Type{Int32, Float64, Char, Varchar}, []string{"id", "score", "tag", "note"}, 0)

	in := New(IntField(42), FloatField(3.25), CharField("hello"), VarcharField("a longer variable note"))

	buf, err := Serialize(s, in, nil)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if got, want := len(buf), s.Length(in); got != want {
		t.Fatalf("encoded length = %d, want Length() = %d", got, want)
	}

	out, n, err := Deserialize(s, buf)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("Deserialize consumed %d bytes, want %d", n, len(buf))
	}
	if out.Fields[0].I32 != 42 {
		t.Errorf("field 0 = %d, want 42", out.Fields[0].I32)
	}
	if out.Fields[1].F64 != 3.25 {
		t.Errorf("field 1 = %v, want 3.25", out.Fields[1].F64)
	}
	if out.Fields[2].Str != "hello" {
		t.Errorf("field 2 = %q, want %q", out.Fields[2].Str, "hello")
	}
	if out.Fields[3].Str != "a longer variable note" {
		t.Errorf("field 3 = %q, want %q", out.Fields[3].Str, "a longer variable note")
	}
}

func TestCharFieldTruncatesAndPads(t *testing.T) {
	s := mustSchema(t, []Type{Char}, []string{"c"}, 0)
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'x'
	}
	in := New(CharField(string(long)))
	buf, err := Serialize(s, in, nil)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if len(buf) != CharSize {
		t.Fatalf("CHAR field encoded to %d bytes, want %d", len(buf), CharSize)
	}
	out, _, err := Deserialize(s, buf)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if len(out.Fields[0].Str) != CharSize-1 {
		t.Errorf("round-tripped CHAR length = %d, want %d", len(out.Fields[0].Str), CharSize-1)
	}
}

func TestCompareKeys(t *testing.T) {
	s := mustSchema(t, []Type{Int32, Varchar}, []string{"k", "v"}, 0)
	a := New(IntField(1), VarcharField("a"))
	b := New(IntField(2), VarcharField("z"))
	if s.CompareKeys(a, b) >= 0 {
		t.Errorf("expected a < b by key")
	}
	if s.CompareKeys(a, a) != 0 {
		t.Errorf("expected a == a by key")
	}
	if s.CompareFieldKey(IntField(1), a) != 0 {
		t.Errorf("expected bare key 1 to match tuple a's key")
	}
}

func TestSchemaRejectsDuplicateNames(t *testing.T) {
	_, err := NewSchema([]Type{Int32, Int32}, []string{"id", "id"}, 0)
	if err == nil {
		t.Fatalf("expected error for duplicate field names")
	}
}
