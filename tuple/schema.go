package tuple

import "fmt"

// Schema is the immutable field-type list shared by every tuple stored in
// one index. It mirrors a TupleDesc: types only, no per-tuple state.
type Schema struct {
	types     []Type
	names     []string
	nameIndex map[string]int
	keyField  int // index of the field that orders the index
}

// NewSchema builds a Schema from parallel types/names slices. keyField
// selects which field is the ordering key for the tree built over tuples
// of this schema.
func NewSchema(types []Type, names []string, keyField int) (*Schema, error) {
	if len(types) != len(names) {
		return nil, fmt.Errorf("tuple: schema has %d types but %d names", len(types), len(names))
	}
	if keyField < 0 || keyField >= len(types) {
		return nil, fmt.Errorf("tuple: key field index %d out of range for %d fields", keyField, len(types))
	}
	idx := make(map[string]int, len(names))
	for i, n := range names {
		if _, dup := idx[n]; dup {
			return nil, fmt.Errorf("tuple: duplicate field name %q", n)
		}
		idx[n] = i
	}
	return &Schema{
		types:     append([]Type(nil), types...),
		names:     append([]string(nil), names...),
		nameIndex: idx,
		keyField:  keyField,
	}, nil
}

func (s *Schema) NumFields() int      { return len(s.types) }
func (s *Schema) FieldType(i int) Type { return s.types[i] }
func (s *Schema) KeyField() int       { return s.keyField }
func (s *Schema) KeyType() Type       { return s.types[s.keyField] }

// IndexOf returns the field position for name, or -1 if absent.
func (s *Schema) IndexOf(name string) int {
	i, ok := s.nameIndex[name]
	if !ok {
		return -1
	}
	return i
}

// Compatible reports whether t has exactly this schema's field count.
// Field types are not checked: a Field carries no type tag of its own.
func (s *Schema) Compatible(t *Tuple) bool {
	if len(t.Fields) != len(s.types) {
		return false
	}
	return true // field values carry no independent type tag; schema governs interpretation
}

// Length returns the serialized byte length of t under this schema.
func (s *Schema) Length(t *Tuple) int {
	n := 0
	for i, ty := range s.types {
		switch ty {
		case Int32:
			n += int32Size
		case Float64:
			n += float64Size
		case Char:
			n += CharSize
		case Varchar:
			n += lenPrefix + len(t.Fields[i].Str)
		}
	}
	return n
}

// Key extracts the ordering field from t.
func (s *Schema) Key(t *Tuple) Field {
	return t.Fields[s.keyField]
}

// CompareKeys compares the key fields of two tuples under this schema.
func (s *Schema) CompareKeys(a, b *Tuple) int {
	return Compare(s.KeyType(), s.Key(a), s.Key(b))
}

// CompareFieldKey compares a bare key field against a tuple's key field,
// used by leaf/internal-node search paths that only have a probe key.
func (s *Schema) CompareFieldKey(k Field, t *Tuple) int {
	return Compare(s.KeyType(), k, s.Key(t))
}
