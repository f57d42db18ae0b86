package tuple

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Tuple is a fixed-arity list of field values. It carries no type
// information of its own; a Schema supplies the per-position type needed
// to serialize, deserialize, or compare it.
type Tuple struct {
	Fields []Field
}

// New builds a Tuple from the given fields, in schema order.
func New(fields ...Field) *Tuple {
	return &Tuple{Fields: fields}
}

// Serialize appends t's on-wire encoding to dst under schema s and returns
// the extended slice. Layout per field, little-endian throughout:
//
//	INT32:   4 bytes
//	FLOAT64: 8 bytes
//	CHAR:    64 bytes, value left-justified and NUL-padded, truncated to 63
//	         bytes plus terminator if longer
//	VARCHAR: uint16 length prefix + that many raw bytes
func Serialize(s *Schema, t *Tuple, dst []byte) ([]byte, error) {
	if !s.Compatible(t) {
		return nil, fmt.Errorf("tuple: value has %d fields, schema wants %d", len(t.Fields), s.NumFields())
	}
	for i, ty := range s.types {
		enc, err := SerializeField(ty, t.Fields[i])
		if err != nil {
			return nil, fmt.Errorf("tuple: field %d: %w", i, err)
		}
		dst = append(dst, enc...)
	}
	return dst, nil
}

// Deserialize reads one Tuple encoded under s starting at src[0], and
// returns it along with the number of bytes consumed.
func Deserialize(s *Schema, src []byte) (*Tuple, int, error) {
	fields := make([]Field, len(s.types))
	off := 0
	for i, ty := range s.types {
		f, n, err := DeserializeField(ty, src[off:])
		if err != nil {
			return nil, 0, fmt.Errorf("tuple: field %d: %w", i, err)
		}
		fields[i] = f
		off += n
	}
	return &Tuple{Fields: fields}, off, nil
}

// SerializeField encodes one field's value under its declared type, the
// same wire format Serialize uses per-field. It is also the codec the
// leaf package uses for the fixed-width cached min/max key slots and the
// internal-node key slots, so a single-field encoding never drifts from
// the tuple-level one.
func SerializeField(ty Type, f Field) ([]byte, error) {
	switch ty {
	case Int32:
		var buf [int32Size]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(f.I32))
		return buf[:], nil
	case Float64:
		var buf [float64Size]byte
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(f.F64))
		return buf[:], nil
	case Char:
		var buf [CharSize]byte
		n := len(f.Str)
		if n > CharSize-1 {
			n = CharSize - 1
		}
		copy(buf[:n], f.Str[:n])
		return buf[:], nil
	case Varchar:
		if len(f.Str) > 1<<16-1 {
			return nil, fmt.Errorf("varchar too long: %d bytes", len(f.Str))
		}
		buf := make([]byte, lenPrefix+len(f.Str))
		binary.LittleEndian.PutUint16(buf, uint16(len(f.Str)))
		copy(buf[lenPrefix:], f.Str)
		return buf, nil
	default:
		return nil, fmt.Errorf("unknown field type %v", ty)
	}
}

// DeserializeField reads one field of type ty from src[0], returning the
// value and the number of bytes consumed.
func DeserializeField(ty Type, src []byte) (Field, int, error) {
	switch ty {
	case Int32:
		if len(src) < int32Size {
			return Field{}, 0, fmt.Errorf("truncated INT32")
		}
		return IntField(int32(binary.LittleEndian.Uint32(src))), int32Size, nil
	case Float64:
		if len(src) < float64Size {
			return Field{}, 0, fmt.Errorf("truncated FLOAT64")
		}
		return FloatField(math.Float64frombits(binary.LittleEndian.Uint64(src))), float64Size, nil
	case Char:
		if len(src) < CharSize {
			return Field{}, 0, fmt.Errorf("truncated CHAR")
		}
		raw := src[:CharSize]
		n := 0
		for n < len(raw) && raw[n] != 0 {
			n++
		}
		return CharField(string(raw[:n])), CharSize, nil
	case Varchar:
		if len(src) < lenPrefix {
			return Field{}, 0, fmt.Errorf("truncated VARCHAR length prefix")
		}
		l := int(binary.LittleEndian.Uint16(src))
		if len(src) < lenPrefix+l {
			return Field{}, 0, fmt.Errorf("truncated VARCHAR payload")
		}
		return VarcharField(string(src[lenPrefix : lenPrefix+l])), lenPrefix + l, nil
	default:
		return Field{}, 0, fmt.Errorf("unknown field type %v", ty)
	}
}

// FieldLength returns the number of bytes SerializeField would produce
// for a field of type ty and value f.
func FieldLength(ty Type, f Field) int {
	switch ty {
	case Int32:
		return int32Size
	case Float64:
		return float64Size
	case Char:
		return CharSize
	case Varchar:
		return lenPrefix + len(f.Str)
	default:
		return 0
	}
}
