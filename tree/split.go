package tree

import (
	"fmt"

	"lastree/leaf"
	"lastree/tuple"
)

// insertWithSplit attempts tup against the already-loaded leaf lf at
// leafID; if the leaf has no room, it allocates a sibling, splits lf
// into it via leaf.Splittable.SplitInto, routes tup to whichever side
// the separator places it on, and propagates the new (separator,
// siblingID) pair up path. It returns only an error; the new sibling is
// reachable through lf.NextID(), which fast-path-aware callers read
// afterwards to update their cached interval.
func (t *coordinator) insertWithSplit(leafID uint32, path []uint32, lf leaf.Leaf, tup *tuple.Tuple) error {
	if lf.Insert(tup) {
		return nil
	}

	splittable, ok := lf.(leaf.Splittable)
	if !ok {
		return fmt.Errorf("tree: leaf %d has no room and does not support splitting", leafID)
	}

	newID, newLeaf, err := t.allocateLeaf(lf.NextID())
	if err != nil {
		return err
	}
	separator, newLeafID := splittable.SplitInto(newLeaf)
	if newLeafID != newID {
		return fmt.Errorf("tree: SplitInto returned leaf id %d, want %d", newLeafID, newID)
	}
	lf.SetNextID(newID)

	ty := t.schema.KeyType()
	key := tup.Fields[t.schema.KeyField()]
	target := lf
	if tuple.Compare(ty, key, separator) >= 0 {
		target = newLeaf
	}
	if !target.Insert(tup) {
		t.unpin(newID, true)
		return fmt.Errorf("tree: tuple does not fit either half of a freshly split leaf")
	}

	t.unpin(newID, true)

	if len(path) == 0 {
		return t.promoteSplitRoot(leafID, separator, newID)
	}
	return t.propagate(path, separator, newID)
}

// promoteSplitRoot reports an error for a leaf split with no internal
// path above it. coordinator.init always creates a root internal node
// above the head leaf, so findLeafPath never returns an empty path; this
// is kept as an explicit error rather than a silent no-op so a future
// change to init that drops the root can't regress into data loss here.
func (t *coordinator) promoteSplitRoot(leafID uint32, separator tuple.Field, newLeafID uint32) error {
	return fmt.Errorf("tree: leaf %d split with no internal-node path above it", leafID)
}
