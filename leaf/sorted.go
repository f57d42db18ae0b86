package leaf

import (
	"lastree/page"
	"lastree/tuple"
)

const (
	sortedNodeIDOff     = 1
	sortedTupleCountOff = sortedNodeIDOff + 4
	sortedNextLeafOff   = sortedTupleCountOff + 2
	sortedSortedFlagOff = sortedNextLeafOff + 4
	sortedColdFlagOff   = sortedSortedFlagOff + 1
	sortedSlotCountOff  = sortedColdFlagOff + 1
	sortedHeapEndOff    = sortedSlotCountOff + 2
	sortedHeaderEnd     = sortedHeapEndOff + 2 // first byte of the slot directory

	sortedSlotSize   = 5 // offset uint16, length uint16, valid byte
	sortedSlotOffOff = 0
	sortedSlotLenOff = 2
	sortedSlotValOff = 4
)

// SortedView is a leaf whose slot directory is kept in ascending key
// order, supporting O(log n) point lookups via binary search. It is the
// only leaf kind SimpleTree uses, and one of the two kinds OptimizedTree
// can be parameterized with; LasTree always uses AppendView.
type SortedView struct {
	p      *page.Page
	schema *tuple.Schema
}

// NewSortedLeaf initializes a fresh page as an empty SortedView with the
// given node and successor IDs.
func NewSortedLeaf(p *page.Page, schema *tuple.Schema, id, nextID uint32) *SortedView {
	p.SetKind(page.KindLeaf)
	v := &SortedView{p: p, schema: schema}
	putU32(p[:], sortedNodeIDOff, id)
	putU16(p[:], sortedTupleCountOff, 0)
	putU32(p[:], sortedNextLeafOff, nextID)
	p[sortedSortedFlagOff] = 1
	p[sortedColdFlagOff] = 0
	putU16(p[:], sortedSlotCountOff, 0)
	putU16(p[:], sortedHeapEndOff, page.Size)
	return v
}

// LoadSortedLeaf wraps an existing page previously initialized by
// NewSortedLeaf (or read back from disk) as a SortedView.
func LoadSortedLeaf(p *page.Page, schema *tuple.Schema) *SortedView {
	return &SortedView{p: p, schema: schema}
}

func (v *SortedView) NodeID() uint32      { return getU32(v.p[:], sortedNodeIDOff) }
func (v *SortedView) NextID() uint32      { return getU32(v.p[:], sortedNextLeafOff) }
func (v *SortedView) SetNextID(id uint32) { putU32(v.p[:], sortedNextLeafOff, id) }
func (v *SortedView) IsSorted() bool      { return true }
func (v *SortedView) IsCold() bool        { return v.p[sortedColdFlagOff] != 0 }
func (v *SortedView) SetCold(cold bool) {
	if cold {
		v.p[sortedColdFlagOff] = 1
	} else {
		v.p[sortedColdFlagOff] = 0
	}
}
func (v *SortedView) TupleCount() int { return int(getU16(v.p[:], sortedTupleCountOff)) }

func (v *SortedView) slotCount() int    { return int(getU16(v.p[:], sortedSlotCountOff)) }
func (v *SortedView) heapEnd() int      { return int(getU16(v.p[:], sortedHeapEndOff)) }
func (v *SortedView) slotAt(i int) []byte {
	off := sortedHeaderEnd + i*sortedSlotSize
	return v.p[off : off+sortedSlotSize]
}
func slotOffset(s []byte) int { return int(getU16(s, sortedSlotOffOff)) }
func slotLength(s []byte) int { return int(getU16(s, sortedSlotLenOff)) }
func slotValid(s []byte) bool { return s[sortedSlotValOff] != 0 }

func (v *SortedView) tupleAt(i int) *tuple.Tuple {
	s := v.slotAt(i)
	off := slotOffset(s)
	t, _, err := tuple.Deserialize(v.schema, v.p[off:])
	if err != nil {
		panic("leaf: corrupt sorted slot: " + err.Error())
	}
	return t
}

// valueSlot returns the first slot index whose key is >= key. Slot order
// is preserved even across tombstoned (invalid) entries, since a
// tombstoned tuple's key never changes after being written — only its
// validity bit does — so a plain comparison-based binary search is safe
// without any special casing for validity.
func (v *SortedView) valueSlot(key tuple.Field) int {
	n := v.slotCount()
	return lowerBound(n, func(i int) bool {
		return v.schema.CompareFieldKey(key, v.tupleAt(i)) > 0
	})
}

func (v *SortedView) freeSpace() int {
	used := sortedHeaderEnd + sortedSlotSize*(v.slotCount()+1)
	return v.heapEnd() - used
}

func (v *SortedView) IsNearlyFull() bool {
	return v.freeSpace() < page.Size/10
}

func (v *SortedView) HasRoomFor(t *tuple.Tuple) bool {
	return v.freeSpace() >= v.schema.Length(t)+sortedSlotSize
}

func (v *SortedView) canInsert(tupleLen int) bool {
	newHeapEnd := v.heapEnd() - tupleLen
	endOffset := sortedHeaderEnd + sortedSlotSize*(v.slotCount()+1)
	return newHeapEnd >= endOffset
}

func (v *SortedView) Insert(t *tuple.Tuple) bool {
	length := v.schema.Length(t)
	if !v.canInsert(length) {
		return false
	}
	key := v.schema.Key(t)
	pos := v.valueSlot(key)

	newHeapEnd := v.heapEnd() - length
	putU16(v.p[:], sortedHeapEndOff, uint16(newHeapEnd))
	if _, err := tuple.Serialize(v.schema, t, v.p[newHeapEnd:newHeapEnd]); err != nil {
		panic("leaf: serialize during insert: " + err.Error())
	}

	n := v.slotCount()
	if pos < n {
		base := sortedHeaderEnd
		copy(v.p[base+(pos+1)*sortedSlotSize:base+(n+1)*sortedSlotSize], v.p[base+pos*sortedSlotSize:base+n*sortedSlotSize])
	}
	s := v.slotAt(pos)
	putU16(s, sortedSlotOffOff, uint16(newHeapEnd))
	putU16(s, sortedSlotLenOff, uint16(length))
	s[sortedSlotValOff] = 1

	putU16(v.p[:], sortedSlotCountOff, uint16(n+1))
	putU16(v.p[:], sortedTupleCountOff, uint16(v.TupleCount()+1))
	return true
}

func (v *SortedView) Get(key tuple.Field) (*tuple.Tuple, bool) {
	pos := v.valueSlot(key)
	if pos >= v.slotCount() {
		return nil, false
	}
	s := v.slotAt(pos)
	if !slotValid(s) {
		return nil, false
	}
	t := v.tupleAt(pos)
	if v.schema.CompareFieldKey(key, t) != 0 {
		return nil, false
	}
	return t, true
}

func (v *SortedView) Update(t *tuple.Tuple) bool {
	key := v.schema.Key(t)
	pos := v.valueSlot(key)
	if pos < v.slotCount() {
		s := v.slotAt(pos)
		if slotValid(s) {
			existing := v.tupleAt(pos)
			if v.schema.CompareFieldKey(key, existing) == 0 {
				s[sortedSlotValOff] = 0
				putU16(v.p[:], sortedTupleCountOff, uint16(v.TupleCount()-1))
				return v.Insert(t)
			}
		}
	}
	return v.Insert(t)
}

func (v *SortedView) Range(lo, hi tuple.Field, dst []*tuple.Tuple) []*tuple.Tuple {
	ty := v.schema.KeyType()
	n := v.slotCount()
	for i := 0; i < n; i++ {
		s := v.slotAt(i)
		if !slotValid(s) {
			continue
		}
		t := v.tupleAt(i)
		key := v.schema.Key(t)
		if tuple.Compare(ty, key, lo) < 0 {
			continue
		}
		if tuple.Compare(ty, key, hi) > 0 {
			break
		}
		dst = append(dst, t)
	}
	return dst
}

func (v *SortedView) MinKey() tuple.Field {
	n := v.slotCount()
	for i := 0; i < n; i++ {
		if slotValid(v.slotAt(i)) {
			return v.schema.Key(v.tupleAt(i))
		}
	}
	panic("leaf: MinKey of empty SortedView")
}

func (v *SortedView) MaxKey() tuple.Field {
	for i := v.slotCount() - 1; i >= 0; i-- {
		if slotValid(v.slotAt(i)) {
			return v.schema.Key(v.tupleAt(i))
		}
	}
	panic("leaf: MaxKey of empty SortedView")
}

// SplitInto moves roughly the last quarter of this leaf's live bytes
// (by scanning from the tail until the moved total crosses 25% of used
// heap space) into newLeaf, which must be an empty, freshly constructed
// SortedView. Because the slot directory is already key-ordered, trimming
// its tail is enough — no reordering is needed on either side.
func (v *SortedView) SplitInto(newLeafI Leaf) (tuple.Field, uint32) {
	newLeaf := newLeafI.(*SortedView)

	totalBytes := page.Size - v.heapEnd()
	moved := 0
	n := v.slotCount()
	i := n - 1
	for ; i >= 0; i-- {
		s := v.slotAt(i)
		if !slotValid(s) {
			continue
		}
		moved += slotLength(s)
		if moved >= totalBytes/4 {
			break
		}
	}

	for j := i + 1; j < n; j++ {
		s := v.slotAt(j)
		if !slotValid(s) {
			continue
		}
		t := v.tupleAt(j)
		if !newLeaf.Insert(t) {
			panic("leaf: split target leaf ran out of room")
		}
		putU16(v.p[:], sortedTupleCountOff, uint16(v.TupleCount()-1))
	}
	putU16(v.p[:], sortedSlotCountOff, uint16(i+1))

	newLeaf.SetNextID(v.NextID())
	v.SetNextID(newLeaf.NodeID())

	return newLeaf.MinKey(), newLeaf.NodeID()
}
