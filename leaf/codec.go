package leaf

import (
	"encoding/binary"

	"lastree/tuple"
)

// keySlotSize is the fixed width of one cached key field — used for the
// min/max key cache in an AppendView header and for every key stored in
// an internal node. 1 validity byte + 71 payload bytes accommodates the
// largest fixed field (CHAR, 64 bytes) and reasonably short VARCHAR keys.
const keySlotSize = 72
const keySlotPayload = keySlotSize - 1

// putKeySlot encodes f (of type ty) into dst[:keySlotSize]. If the
// encoded field does not fit the fixed payload (only possible for an
// over-long VARCHAR key), it writes an invalid slot and reports false;
// the caller falls back to recomputing the key from the heap directly.
func putKeySlot(dst []byte, ty tuple.Type, f tuple.Field) bool {
	enc, err := tuple.SerializeField(ty, f)
	if err != nil || len(enc) > keySlotPayload {
		dst[0] = 0
		return false
	}
	dst[0] = 1
	copy(dst[1:], enc)
	for i := 1 + len(enc); i < keySlotSize; i++ {
		dst[i] = 0
	}
	return true
}

// getKeySlot decodes a field previously written by putKeySlot. ok is
// false if the slot was never validly populated.
func getKeySlot(src []byte, ty tuple.Type) (f tuple.Field, ok bool) {
	if src[0] == 0 {
		return tuple.Field{}, false
	}
	f, _, err := tuple.DeserializeField(ty, src[1:])
	if err != nil {
		return tuple.Field{}, false
	}
	return f, true
}

func getU16(p []byte, off int) uint16       { return binary.LittleEndian.Uint16(p[off:]) }
func putU16(p []byte, off int, v uint16)    { binary.LittleEndian.PutUint16(p[off:], v) }
func getU32(p []byte, off int) uint32       { return binary.LittleEndian.Uint32(p[off:]) }
func putU32(p []byte, off int, v uint32)    { binary.LittleEndian.PutUint32(p[off:], v) }
func getI32(p []byte, off int) int32        { return int32(binary.LittleEndian.Uint32(p[off:])) }
func putI32(p []byte, off int, v int32)     { binary.LittleEndian.PutUint32(p[off:], uint32(v)) }

// lowerBound returns the smallest index i in [0, n) such that
// less(i) is false (i.e. the first slot whose key is >= the probe key),
// or n if none. Mirrors the binary-search shape of value_slot in the
// original leaf implementations, generalized to a predicate so both leaf
// kinds can reuse it.
func lowerBound(n int, less func(i int) bool) int {
	lo, hi := 0, n
	for lo < hi {
		mid := (lo + hi) / 2
		if less(mid) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}
