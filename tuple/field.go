// Package tuple implements the typed record model stored in leaf pages:
// a fixed Schema describes the field types, and a Tuple carries the field
// values in that order.
package tuple

import "fmt"

// Type identifies the wire representation of a single field.
type Type byte

const (
	Int32 Type = iota
	Float64
	Char
	Varchar
)

func (t Type) String() string {
	switch t {
	case Int32:
		return "INT32"
	case Float64:
		return "FLOAT64"
	case Char:
		return "CHAR"
	case Varchar:
		return "VARCHAR"
	default:
		return fmt.Sprintf("Type(%d)", byte(t))
	}
}

// CharSize is the fixed, NUL-padded width of a Char field on the wire.
const CharSize = 64

const (
	int32Size   = 4
	float64Size = 8
	lenPrefix   = 2 // uint16 length prefix for VARCHAR
)

// Field is a single tuple value. Exactly one of the typed members is
// meaningful, selected by the Schema's declared type at that position.
type Field struct {
	I32 int32
	F64 float64
	Str string // used for both Char and Varchar
}

func IntField(v int32) Field      { return Field{I32: v} }
func FloatField(v float64) Field  { return Field{F64: v} }
func CharField(v string) Field    { return Field{Str: v} }
func VarcharField(v string) Field { return Field{Str: v} }

// Compare orders two fields of the same declared type. CHAR and VARCHAR
// values compare byte-lexicographically on the in-memory string as given;
// no NUL trimming or 63-byte truncation is applied here.
func Compare(t Type, a, b Field) int {
	switch t {
	case Int32:
		switch {
		case a.I32 < b.I32:
			return -1
		case a.I32 > b.I32:
			return 1
		default:
			return 0
		}
	case Float64:
		switch {
		case a.F64 < b.F64:
			return -1
		case a.F64 > b.F64:
			return 1
		default:
			return 0
		}
	case Char, Varchar:
		switch {
		case a.Str < b.Str:
			return -1
		case a.Str > b.Str:
			return 1
		default:
			return 0
		}
	default:
		panic(fmt.Sprintf("tuple: compare of undeclared type %v", t))
	}
}
