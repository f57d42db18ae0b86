// Package leaf implements the two on-disk leaf representations a tree
// coordinator can choose between: SortedView, whose slot directory is
// kept in key order for O(log n) point lookups, and AppendView, whose
// slot directory is an append-only log of insert/delete records amortizing
// write cost at the expense of needing an explicit sort or compaction
// before range scans are fast again.
//
// Both are thin, typed views over a *page.Page byte buffer — a tagged
// union expressed as two concrete Go types behind one interface, rather
// than a raw reinterpret-cast over the same bytes.
package leaf

import (
	"lastree/tuple"
)

// Leaf is the behavior every leaf representation exposes to a tree
// coordinator, independent of how it is encoded on the page.
type Leaf interface {
	NodeID() uint32
	NextID() uint32
	SetNextID(id uint32)
	IsSorted() bool
	IsCold() bool
	SetCold(cold bool)
	TupleCount() int

	// Insert appends/places t, returning false if the page has no room.
	Insert(t *tuple.Tuple) bool
	// Get returns the current value for key, if any is visible.
	Get(key tuple.Field) (*tuple.Tuple, bool)
	// Update replaces the value for key (matched on t's key field),
	// inserting it if absent.
	Update(t *tuple.Tuple) bool
	// Range collects every visible tuple with key in [lo, hi] (inclusive
	// on both ends, per the coordinator's range-query contract) into dst
	// and returns the extended slice.
	Range(lo, hi tuple.Field, dst []*tuple.Tuple) []*tuple.Tuple
	// MinKey and MaxKey report this leaf's key bounds. Panics if the leaf
	// has no live tuples — callers must check TupleCount first.
	MinKey() tuple.Field
	MaxKey() tuple.Field
	// IsNearlyFull reports whether the leaf has crossed the threshold at
	// which the coordinator should prefer routing further inserts
	// elsewhere if it can.
	IsNearlyFull() bool
	// HasRoomFor reports whether a tuple of this schema's encoded length
	// for t could still be inserted.
	HasRoomFor(t *tuple.Tuple) bool
}

// Sortable is implemented by leaf representations whose on-disk order can
// be explicitly forced, independent of Insert/Update. AppendView is the
// only current implementer; the background lazy-sort worker type-asserts
// for it.
type Sortable interface {
	// Compact returns the leaf's live tuples (tombstoned keys removed,
	// duplicate keys resolved to their latest version) in ascending key
	// order, without mutating the page.
	Compact() []*tuple.Tuple
	// Sort rewrites the page in place so that it holds exactly Compact's
	// result, in ascending order, and marks the leaf sorted.
	Sort()
	// SplitPolicy reports which split strategy SplitInto applies.
	SplitPolicy() SplitPolicy
	// Erase appends a tombstone for key, making it invisible to future
	// Get/Range calls until (if ever) re-inserted.
	Erase(key tuple.Field) bool
}

// Splittable is implemented by every leaf representation; SplitInto
// divides the receiver's content between itself and a freshly
// constructed, same-kind sibling, returning the separator key that
// routes between them (every key < separator stays in the receiver,
// every key >= separator moves to newLeaf) and newLeaf's node ID.
type Splittable interface {
	SplitInto(newLeaf Leaf) (separator tuple.Field, newLeafID uint32)
}

// SplitPolicy selects how AppendView.SplitInto partitions its compacted
// content between the two post-split leaves.
type SplitPolicy byte

const (
	// SplitSorted fully sorts the compacted tuples before choosing a
	// separator at the 75th-percentile key, producing two leaves that
	// are themselves sorted. This is the default and the only policy
	// SortedView needs (it is always sorted already).
	SplitSorted SplitPolicy = iota
	// SplitQuickPartition chooses an approximate 75th-percentile
	// separator by scan order, without a full sort, and partitions by
	// comparison against it. Cheaper, but the resulting leaves are not
	// guaranteed sorted.
	SplitQuickPartition
)
