// Package internalnode implements the fixed-capacity routing node: a
// sorted array of separator keys and one more child pointer than key,
// searched with the same binary-search idiom the leaf package uses.
package internalnode

import (
	"encoding/binary"
	"fmt"

	"lastree/page"
	"lastree/tuple"
)

const (
	nodeIDOff   = 1
	keyCountOff = nodeIDOff + 4
	headerEnd   = keyCountOff + 2 // first byte of the key array

	keySlotSize = 72 // 1 validity byte + 71 payload bytes, same codec as leaf's cached keys
	childSize   = 4
)

// Capacity is the maximum number of keys (and Capacity+1 children) one
// internal node page can hold.
const Capacity = (page.Size - headerEnd) / (keySlotSize + childSize)

// View is a typed window over an internal-node page.
type View struct {
	p      *page.Page
	schema *tuple.Schema
}

// New initializes a fresh page as an empty internal node.
func New(p *page.Page, schema *tuple.Schema, id uint32) *View {
	p.SetKind(page.KindInternal)
	binary.LittleEndian.PutUint32(p[nodeIDOff:], id)
	binary.LittleEndian.PutUint16(p[keyCountOff:], 0)
	return &View{p: p, schema: schema}
}

// Load wraps an existing internal-node page.
func Load(p *page.Page, schema *tuple.Schema) *View {
	return &View{p: p, schema: schema}
}

func (v *View) NodeID() uint32 { return binary.LittleEndian.Uint32(v.p[nodeIDOff:]) }
func (v *View) KeyCount() int  { return int(binary.LittleEndian.Uint16(v.p[keyCountOff:])) }

func (v *View) keySlot(i int) []byte {
	off := headerEnd + i*keySlotSize
	return v.p[off : off+keySlotSize]
}

func (v *View) childrenBase() int { return headerEnd + Capacity*keySlotSize }

func (v *View) childAt(i int) uint32 {
	off := v.childrenBase() + i*childSize
	return binary.LittleEndian.Uint32(v.p[off:])
}

func (v *View) setChildAt(i int, id uint32) {
	off := v.childrenBase() + i*childSize
	binary.LittleEndian.PutUint32(v.p[off:], id)
}

func (v *View) keyAt(i int) tuple.Field {
	s := v.keySlot(i)
	if s[0] == 0 {
		panic("internalnode: read of unset key slot")
	}
	val, _, err := tuple.DeserializeField(v.schema.KeyType(), s[1:])
	if err != nil {
		panic("internalnode: corrupt key slot: " + err.Error())
	}
	return val
}

func (v *View) setKeyAt(i int, key tuple.Field) {
	s := v.keySlot(i)
	enc, err := tuple.SerializeField(v.schema.KeyType(), key)
	if err != nil || len(enc) > keySlotSize-1 {
		panic(fmt.Sprintf("internalnode: key does not fit a %d-byte slot", keySlotSize))
	}
	s[0] = 1
	copy(s[1:], enc)
	for i := 1 + len(enc); i < keySlotSize; i++ {
		s[i] = 0
	}
}

// ChildSlot returns the index of the child pointer to follow for key:
// the first key index whose key is > the probe (std::upper_bound), so
// children[ChildSlot(key)] is the subtree that may contain key.
func (v *View) ChildSlot(key tuple.Field) int {
	ty := v.schema.KeyType()
	n := v.KeyCount()
	lo, hi := 0, n
	for lo < hi {
		mid := (lo + hi) / 2
		if tuple.Compare(ty, key, v.keyAt(mid)) >= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// Child returns the i-th child pointer (0 <= i <= KeyCount()).
func (v *View) Child(i int) uint32 { return v.childAt(i) }

// SetChild overwrites the i-th child pointer, used when building a fresh
// root or repairing a child ID after a split.
func (v *View) SetChild(i int, id uint32) { v.setChildAt(i, id) }

// Key returns the i-th separator key (0 <= i < KeyCount()).
func (v *View) Key(i int) tuple.Field { return v.keyAt(i) }

// SetKey overwrites the i-th separator key slot directly, without shifting
// any other key or child. Used by the split path in the tree package to
// lay out a node's key array explicitly rather than through InsertAt's
// single-slot-at-a-time shifting.
func (v *View) SetKey(i int, key tuple.Field) { v.setKeyAt(i, key) }

// InsertAt inserts key at position idx (0 <= idx <= KeyCount()) with
// rightChild becoming the child immediately to its right, shifting every
// later key/child one slot over. Reports false if the node is already at
// Capacity.
func (v *View) InsertAt(idx int, key tuple.Field, rightChild uint32) bool {
	n := v.KeyCount()
	if n >= Capacity {
		return false
	}
	for i := n; i > idx; i-- {
		v.setKeyAt(i, v.keyAt(i-1))
	}
	v.setKeyAt(idx, key)
	for i := n + 1; i > idx+1; i-- {
		v.setChildAt(i, v.childAt(i-1))
	}
	v.setChildAt(idx+1, rightChild)
	binary.LittleEndian.PutUint16(v.p[keyCountOff:], uint16(n+1))
	return true
}

// IsFull reports whether the node has no room for one more key.
func (v *View) IsFull() bool { return v.KeyCount() >= Capacity }

// SetKeyCount overwrites the node's key-count header field directly,
// independent of any key/child array mutation. Used by the split path to
// both shrink the original node to its left half and to lay out a fresh
// node's size, always computed against the node's pre-mutation size
// rather than an already-mutated one.
func (v *View) SetKeyCount(n int) {
	binary.LittleEndian.PutUint16(v.p[keyCountOff:], uint16(n))
}
