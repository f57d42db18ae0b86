package leaf

import (
	"sort"

	"lastree/page"
	"lastree/tuple"
)

const (
	appendNodeIDOff     = 1
	appendTupleCountOff = appendNodeIDOff + 4 // int32, may be read as signed
	appendNextLeafOff   = appendTupleCountOff + 4
	appendSortedFlagOff = appendNextLeafOff + 4
	appendColdFlagOff   = appendSortedFlagOff + 1
	appendSlotCountOff  = appendColdFlagOff + 1
	appendHeapEndOff    = appendSlotCountOff + 2
	appendMinKeyOff     = appendHeapEndOff + 2
	appendMaxKeyOff     = appendMinKeyOff + keySlotSize
	appendHeaderEnd     = appendMaxKeyOff + keySlotSize // first byte of the slot directory

	appendSlotSize   = 4 // offset uint16, length uint16
	appendSlotOffOff = 0
	appendSlotLenOff = 2
)

// opType tags each heap record as a live value or a tombstone, since an
// AppendView slot has no validity bit of its own — visibility is carried
// entirely by this byte.
type opType byte

const (
	opInsert opType = iota
	opDelete
)

// AppendView is an append-only leaf: inserts and deletes are appended as
// tagged heap records without disturbing existing ones, trading a cheap
// write path for an O(n) worst-case read path until the leaf is sorted
// or compacted at split. LasTree is the coordinator that exercises it.
type AppendView struct {
	p           *page.Page
	schema      *tuple.Schema
	splitPolicy SplitPolicy
}

// NewAppendLeaf initializes a fresh page as an empty AppendView.
func NewAppendLeaf(p *page.Page, schema *tuple.Schema, id, nextID uint32, policy SplitPolicy) *AppendView {
	p.SetKind(page.KindLeaf)
	v := &AppendView{p: p, schema: schema, splitPolicy: policy}
	putU32(p[:], appendNodeIDOff, id)
	putI32(p[:], appendTupleCountOff, 0)
	putU32(p[:], appendNextLeafOff, nextID)
	p[appendSortedFlagOff] = 1 // an empty leaf is vacuously sorted
	p[appendColdFlagOff] = 0
	putU16(p[:], appendSlotCountOff, 0)
	putU16(p[:], appendHeapEndOff, page.Size)
	v.invalidateMin()
	v.invalidateMax()
	return v
}

// LoadAppendLeaf wraps an existing page previously initialized by
// NewAppendLeaf (or read back from disk) as an AppendView. policy governs
// any future SplitInto call on this view; it is not itself persisted,
// since it is a coordinator-level configuration choice, not leaf state.
func LoadAppendLeaf(p *page.Page, schema *tuple.Schema, policy SplitPolicy) *AppendView {
	return &AppendView{p: p, schema: schema, splitPolicy: policy}
}

func (v *AppendView) NodeID() uint32      { return getU32(v.p[:], appendNodeIDOff) }
func (v *AppendView) NextID() uint32      { return getU32(v.p[:], appendNextLeafOff) }
func (v *AppendView) SetNextID(id uint32) { putU32(v.p[:], appendNextLeafOff, id) }
func (v *AppendView) IsSorted() bool      { return v.p[appendSortedFlagOff] != 0 }
func (v *AppendView) IsCold() bool        { return v.p[appendColdFlagOff] != 0 }
func (v *AppendView) SetCold(cold bool) {
	if cold {
		v.p[appendColdFlagOff] = 1
	} else {
		v.p[appendColdFlagOff] = 0
	}
}
func (v *AppendView) TupleCount() int { return int(getI32(v.p[:], appendTupleCountOff)) }

func (v *AppendView) slotCount() int { return int(getU16(v.p[:], appendSlotCountOff)) }
func (v *AppendView) heapEnd() int   { return int(getU16(v.p[:], appendHeapEndOff)) }

func (v *AppendView) slotAt(i int) []byte {
	off := appendHeaderEnd + i*appendSlotSize
	return v.p[off : off+appendSlotSize]
}

func (v *AppendView) opAndTupleAt(i int) (opType, *tuple.Tuple) {
	s := v.slotAt(i)
	off := int(getU16(s, appendSlotOffOff))
	op := opType(v.p[off])
	t, _, err := tuple.Deserialize(v.schema, v.p[off+1:])
	if err != nil {
		panic("leaf: corrupt append record: " + err.Error())
	}
	return op, t
}

func (v *AppendView) minSlot() []byte { return v.p[appendMinKeyOff : appendMinKeyOff+keySlotSize] }
func (v *AppendView) maxSlot() []byte { return v.p[appendMaxKeyOff : appendMaxKeyOff+keySlotSize] }
func (v *AppendView) invalidateMin()  { v.minSlot()[0] = 0 }
func (v *AppendView) invalidateMax()  { v.maxSlot()[0] = 0 }

func (v *AppendView) freeSpace() int {
	used := appendHeaderEnd + appendSlotSize*(v.slotCount()+1)
	return v.heapEnd() - used
}

func (v *AppendView) IsNearlyFull() bool { return v.freeSpace() < page.Size/10 }

func (v *AppendView) HasRoomFor(t *tuple.Tuple) bool {
	return v.freeSpace() >= v.schema.Length(t)+1+appendSlotSize
}

func (v *AppendView) canInsert(recordLen int) bool {
	newHeapEnd := v.heapEnd() - recordLen
	endOffset := appendHeaderEnd + appendSlotSize*(v.slotCount()+1)
	return newHeapEnd >= endOffset
}

// appendRecord writes one op-tagged record for t and appends its slot. It
// never updates TupleCount itself; callers adjust that per the operation
// being performed (insert vs. update vs. erase have different count
// semantics).
func (v *AppendView) appendRecord(op opType, t *tuple.Tuple) bool {
	length := v.schema.Length(t) + 1
	if !v.canInsert(length) {
		return false
	}
	newHeapEnd := v.heapEnd() - length
	putU16(v.p[:], appendHeapEndOff, uint16(newHeapEnd))
	v.p[newHeapEnd] = byte(op)
	if _, err := tuple.Serialize(v.schema, t, v.p[newHeapEnd+1:newHeapEnd+1]); err != nil {
		panic("leaf: serialize during append: " + err.Error())
	}
	s := v.slotAt(v.slotCount())
	putU16(s, appendSlotOffOff, uint16(newHeapEnd))
	putU16(s, appendSlotLenOff, uint16(length))
	putU16(v.p[:], appendSlotCountOff, uint16(v.slotCount()+1))
	v.p[appendSortedFlagOff] = 0
	return true
}

func (v *AppendView) updateMinMaxForInsert(key tuple.Field) {
	ty := v.schema.KeyType()
	if cur, ok := getKeySlot(v.minSlot(), ty); !ok || tuple.Compare(ty, key, cur) < 0 {
		putKeySlot(v.minSlot(), ty, key)
	}
	if cur, ok := getKeySlot(v.maxSlot(), ty); !ok || tuple.Compare(ty, key, cur) > 0 {
		putKeySlot(v.maxSlot(), ty, key)
	}
}

// Insert appends a fresh Insert record for t, always counting as one new
// logical tuple.
func (v *AppendView) Insert(t *tuple.Tuple) bool {
	if !v.appendRecord(opInsert, t) {
		return false
	}
	putI32(v.p[:], appendTupleCountOff, int32(v.TupleCount()+1))
	v.updateMinMaxForInsert(v.schema.Key(t))
	return true
}

// Update appends a fresh Insert record superseding any prior version of
// t's key. TupleCount is left unchanged: Update replaces a visible value,
// it does not add a new logical key.
func (v *AppendView) Update(t *tuple.Tuple) bool {
	if !v.appendRecord(opInsert, t) {
		return false
	}
	v.updateMinMaxForInsert(v.schema.Key(t))
	return true
}

// Erase appends a Delete tombstone for key, if key is (or might be)
// currently visible. It always reports success/failure based only on
// room, matching Insert/Update — callers that need to know whether key
// existed should Get first.
func (v *AppendView) Erase(key tuple.Field) bool {
	fields := make([]tuple.Field, v.schema.NumFields())
	fields[v.schema.KeyField()] = key
	tombstone := &tuple.Tuple{Fields: fields}

	if !v.appendRecord(opDelete, tombstone) {
		return false
	}
	putI32(v.p[:], appendTupleCountOff, int32(v.TupleCount()-1))

	ty := v.schema.KeyType()
	if minK, ok := getKeySlot(v.minSlot(), ty); ok && tuple.Compare(ty, key, minK) == 0 {
		v.computeMinMax()
	} else if maxK, ok := getKeySlot(v.maxSlot(), ty); ok && tuple.Compare(ty, key, maxK) == 0 {
		v.computeMinMax()
	}
	return true
}

// computeMinMax recomputes the cached min/max keys from scratch by
// scanning the log backward, honoring tombstones and deduplicating to
// each key's most recent version, matching original_source's
// AppendOnlyLeafNode::compute_min_max.
func (v *AppendView) computeMinMax() {
	ty := v.schema.KeyType()
	n := v.slotCount()
	seen := make(map[tuple.Field]bool, n)
	var min, max tuple.Field
	haveMin, haveMax := false, false
	for i := n - 1; i >= 0; i-- {
		op, t := v.opAndTupleAt(i)
		key := v.schema.Key(t)
		if seen[key] {
			continue
		}
		seen[key] = true
		if op == opDelete {
			continue
		}
		if !haveMin || tuple.Compare(ty, key, min) < 0 {
			min, haveMin = key, true
		}
		if !haveMax || tuple.Compare(ty, key, max) > 0 {
			max, haveMax = key, true
		}
	}
	if haveMin {
		putKeySlot(v.minSlot(), ty, min)
	} else {
		v.invalidateMin()
	}
	if haveMax {
		putKeySlot(v.maxSlot(), ty, max)
	} else {
		v.invalidateMax()
	}
}

// liveTuples returns this leaf's live tuples deduplicated to their most
// recent version, in scan (not key) order.
func (v *AppendView) liveTuples() []*tuple.Tuple {
	n := v.slotCount()
	seen := make(map[tuple.Field]bool, n)
	live := make([]*tuple.Tuple, 0, n)
	for i := n - 1; i >= 0; i-- {
		op, t := v.opAndTupleAt(i)
		key := v.schema.Key(t)
		if seen[key] {
			continue
		}
		seen[key] = true
		if op == opDelete {
			continue
		}
		live = append(live, t)
	}
	return live
}

// Compact returns this leaf's live tuples in ascending key order. Unlike
// original_source's reverse-the-reverse-scan approximation, this is a
// true sort: Compact's result is the ground truth the lazy-sort worker
// and SplitInto(SplitSorted) both rely on being genuinely ordered.
func (v *AppendView) Compact() []*tuple.Tuple {
	live := v.liveTuples()
	sort.Slice(live, func(i, j int) bool { return v.schema.CompareKeys(live[i], live[j]) < 0 })
	return live
}

func (v *AppendView) SplitPolicy() SplitPolicy { return v.splitPolicy }

func (v *AppendView) resetLog() {
	putU16(v.p[:], appendSlotCountOff, 0)
	putU16(v.p[:], appendHeapEndOff, page.Size)
	putI32(v.p[:], appendTupleCountOff, 0)
	v.invalidateMin()
	v.invalidateMax()
}

// Sort rewrites the page to hold exactly Compact's result, ascending and
// deduplicated, and marks the leaf sorted so Get can binary-search it.
func (v *AppendView) Sort() {
	compacted := v.Compact()
	v.resetLog()
	for _, t := range compacted {
		if !v.Insert(t) {
			panic("leaf: compacted content no longer fits during Sort")
		}
	}
	v.p[appendSortedFlagOff] = 1
}

// Get returns the most recent visible value for key. When the leaf is
// sorted, this is a binary search; otherwise it is a backward linear
// scan, matching original_source's sorted/unsorted split in Get.
func (v *AppendView) Get(key tuple.Field) (*tuple.Tuple, bool) {
	ty := v.schema.KeyType()
	if v.IsSorted() {
		n := v.slotCount()
		idx := lowerBound(n, func(i int) bool {
			_, t := v.opAndTupleAt(i)
			return tuple.Compare(ty, v.schema.Key(t), key) < 0
		})
		if idx < n {
			_, t := v.opAndTupleAt(idx)
			if tuple.Compare(ty, v.schema.Key(t), key) == 0 {
				return t, true
			}
		}
		return nil, false
	}
	for i := v.slotCount() - 1; i >= 0; i-- {
		op, t := v.opAndTupleAt(i)
		if tuple.Compare(ty, v.schema.Key(t), key) == 0 {
			if op == opDelete {
				return nil, false
			}
			return t, true
		}
	}
	return nil, false
}

// Range collects every key in [lo, hi] at its most recent visible
// version, deduplicating the whole log regardless of sort order, and
// returns them in ascending key order.
func (v *AppendView) Range(lo, hi tuple.Field, dst []*tuple.Tuple) []*tuple.Tuple {
	ty := v.schema.KeyType()
	n := v.slotCount()
	seen := make(map[tuple.Field]bool, n)
	var matches []*tuple.Tuple
	for i := n - 1; i >= 0; i-- {
		op, t := v.opAndTupleAt(i)
		key := v.schema.Key(t)
		if seen[key] {
			continue
		}
		seen[key] = true
		if op == opDelete {
			continue
		}
		if tuple.Compare(ty, key, lo) < 0 || tuple.Compare(ty, key, hi) > 0 {
			continue
		}
		matches = append(matches, t)
	}
	sort.Slice(matches, func(i, j int) bool { return v.schema.CompareKeys(matches[i], matches[j]) < 0 })
	return append(dst, matches...)
}

func (v *AppendView) MinKey() tuple.Field {
	f, ok := getKeySlot(v.minSlot(), v.schema.KeyType())
	if !ok {
		panic("leaf: MinKey of empty AppendView")
	}
	return f
}

func (v *AppendView) MaxKey() tuple.Field {
	f, ok := getKeySlot(v.maxSlot(), v.schema.KeyType())
	if !ok {
		panic("leaf: MaxKey of empty AppendView")
	}
	return f
}

// SplitInto divides this leaf's live content with newLeaf per the
// receiver's configured SplitPolicy. SplitSorted compacts and fully
// sorts first, then separates at the 75th-percentile key, leaving both
// leaves sorted. SplitQuickPartition skips the sort, partitioning around
// an approximate percentile by scan order instead, leaving both leaves
// unsorted — original_source's two split_strategy branches, both kept.
func (v *AppendView) SplitInto(newLeafI Leaf) (tuple.Field, uint32) {
	newLeaf := newLeafI.(*AppendView)
	ty := v.schema.KeyType()

	switch v.splitPolicy {
	case SplitQuickPartition:
		compacted := v.liveTuples()
		v.resetLog()
		if len(compacted) == 0 {
			newLeaf.SetNextID(v.NextID())
			v.SetNextID(newLeaf.NodeID())
			return tuple.Field{}, newLeaf.NodeID()
		}
		idx := len(compacted) * 3 / 4
		if idx >= len(compacted) {
			idx = len(compacted) - 1
		}
		splitKey := v.schema.Key(compacted[idx])
		for _, t := range compacted {
			if tuple.Compare(ty, v.schema.Key(t), splitKey) < 0 {
				v.Insert(t)
			} else {
				newLeaf.Insert(t)
			}
		}
		newLeaf.SetNextID(v.NextID())
		v.SetNextID(newLeaf.NodeID())
		return splitKey, newLeaf.NodeID()

	default: // SplitSorted
		compacted := v.Compact()
		v.resetLog()
		half := len(compacted) * 3 / 4
		for i := 0; i < half; i++ {
			v.Insert(compacted[i])
		}
		for i := half; i < len(compacted); i++ {
			newLeaf.Insert(compacted[i])
		}
		v.p[appendSortedFlagOff] = 1
		newLeaf.p[appendSortedFlagOff] = 1
		newLeaf.SetNextID(v.NextID())
		v.SetNextID(newLeaf.NodeID())
		return newLeaf.MinKey(), newLeaf.NodeID()
	}
}
