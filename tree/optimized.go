package tree

import (
	"lastree/database"
	"lastree/tuple"
)

// OptimizedTree adds the fast-path leaf cache from spec.md §4.3 to the
// coordinator: a short-circuit around root-to-leaf descent for inserts
// that land inside the key interval of whichever leaf was hit last. It
// is parameterised by leaf representation via LeafFactory (SortedFactory
// or AppendFactory) but runs no background sort — unlike LasTree, a
// leaf that falls out of the fast path's interest just sits cold.
type OptimizedTree struct {
	c  *coordinator
	fp fastPathState

	fastPathHits int
}

// NewOptimizedTree builds a fast-path-aware tree over file using the
// given leaf factory (e.g. SortedFactory{} or AppendFactory{Policy: ...}).
func NewOptimizedTree(db *database.Database, file string, schema *tuple.Schema, leaves LeafFactory) (*OptimizedTree, error) {
	t := &OptimizedTree{c: &coordinator{
		db:     db,
		file:   file,
		schema: schema,
		leaves: leaves,
	}}
	if err := t.c.init(); err != nil {
		return nil, err
	}
	// fp starts invalid: the first insert always walks the path and
	// bootstraps it (see afterPathInsert), rather than treating the empty
	// head leaf as already-cached.
	return t, nil
}

// Insert follows spec.md §4.3's fast-path algorithm: try the cached leaf
// first; on a miss (or a full cached leaf), walk the path, insert/split,
// and update fp according to the soft-update/hard-reset rules.
func (t *OptimizedTree) Insert(tup *tuple.Tuple) error {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()

	if err := t.c.insertTuple(tup); err != nil {
		return err
	}
	ty := t.c.schema.KeyType()
	key := tup.Fields[t.c.schema.KeyField()]

	if t.fp.canUse(ty, key) {
		lf, err := t.c.fetchLeaf(t.fp.leaf)
		if err != nil {
			return err
		}
		if lf.Insert(tup) {
			t.c.unpin(t.fp.leaf, true)
			t.fastPathHits++
			t.c.size++
			return nil
		}
		t.c.unpin(t.fp.leaf, false)
		// Cached leaf is full: fall through to a full path walk below,
		// same as any other fast-path miss.
	}

	return t.insertViaPathWalk(key, tup, ty)
}

func (t *OptimizedTree) insertViaPathWalk(key tuple.Field, tup *tuple.Tuple, ty tuple.Type) error {
	leafID, path, upperBound, hasUpper, err := t.c.findLeafPath(key)
	if err != nil {
		return err
	}
	lf, err := t.c.fetchLeaf(leafID)
	if err != nil {
		return err
	}

	priorFP := t.fp.leaf
	priorFPValid := t.fp.valid

	if lf.Insert(tup) {
		t.c.unpin(leafID, true)
		t.c.size++
		t.afterPathInsert(leafID, key, ty, upperBound, hasUpper, priorFP, priorFPValid)
		return nil
	}

	if err := t.c.insertWithSplit(leafID, path, lf, tup); err != nil {
		t.c.unpin(leafID, false)
		return err
	}
	t.c.unpin(leafID, true)
	t.c.size++
	t.afterSplitInsert(key, tup, ty, leafID, priorFP, priorFPValid)
	return nil
}

// afterPathInsert applies the bootstrap/soft-update/hard-reset rule for
// an insert that succeeded on a leaf reached by a full path walk
// (fast-path miss, leaf had room). Per spec.md §4.3: if fp was never
// established, it attaches to leafID immediately, anchored at the key
// that just landed there (not -inf) so a subsequent insert that arrives
// out of order still misses and re-walks instead of silently reusing a
// stale leaf. Otherwise, a soft update extends fp in place when the new
// key is the immediate successor of the prior fp leaf's upper bound;
// failing that, the soft-failure counter advances, hard-resetting to
// leafID (again anchored at key) once it reaches maxSoftFailures.
func (t *OptimizedTree) afterPathInsert(leafID uint32, key tuple.Field, ty tuple.Type, upperBound tuple.Field, hasUpper bool, priorFP uint32, priorFPValid bool) {
	if !priorFPValid {
		t.fp.set(leafID, key, false, upperBound, !hasUpper)
		return
	}

	if t.fp.valid && t.fp.leaf == priorFP && !t.fp.maxUnbounded && isSuccessor(ty, key, t.fp.max) {
		t.fp.extendMax(upperBound)
		if !hasUpper {
			t.fp.maxUnbounded = true
		}
		return
	}

	if t.fp.afterSoftFailure() {
		t.enqueueCold(priorFP, priorFPValid)
		t.fp.set(leafID, key, false, upperBound, !hasUpper)
	}
}

// afterSplitInsert installs fp on the leaf that ended up holding the new
// tuple's key after a split, per spec.md §4.4: if the key landed on the
// left (retained) half, fp stays on leafID with max tightened to the
// separator; if it landed on the new right half, fp moves to the new
// leaf with min set to the separator and max inherited from the path.
func (t *OptimizedTree) afterSplitInsert(key tuple.Field, tup *tuple.Tuple, ty tuple.Type, leafID uint32, priorFP uint32, priorFPValid bool) {
	lf, err := t.c.fetchLeaf(leafID)
	if err != nil {
		return
	}
	newID := lf.NextID()
	t.c.unpin(leafID, false)

	if newID == invalidLeafID {
		return
	}

	newLeaf, err := t.c.fetchLeaf(newID)
	if err != nil {
		return
	}
	var sep tuple.Field
	hasSep := newLeaf.TupleCount() > 0
	if hasSep {
		sep = newLeaf.MinKey()
	}
	newNext := newLeaf.NextID()
	t.c.unpin(newID, false)

	if hasSep && tuple.Compare(ty, key, sep) < 0 {
		t.fp.set(leafID, key, false, sep, false)
	} else {
		var nextMin tuple.Field
		hasNextMin := false
		if newNext != invalidLeafID {
			if nl, err := t.c.fetchLeaf(newNext); err == nil {
				if nl.TupleCount() > 0 {
					nextMin = nl.MinKey()
					hasNextMin = true
				}
				t.c.unpin(newNext, false)
			}
		}
		if hasSep {
			t.fp.set(newID, sep, false, nextMin, !hasNextMin)
		} else {
			t.fp.set(newID, tuple.Field{}, true, nextMin, !hasNextMin)
		}
	}
	// Mark cold whichever of the two leaves involved in this split fp did
	// NOT end up on, plus whatever leaf fp pointed to before (if that
	// wasn't one of these two): all are now off the insertion frontier.
	t.enqueueCold(priorFP, priorFPValid)
	t.enqueueCold(leafID, true)
	t.enqueueCold(newID, true)
}

// enqueueCold marks leafID cold in place (plain OptimizedTree has no
// background sort worker), skipping an invalid ID and the leaf fp
// currently names. LasTree does not use this hook: its own
// afterPathInsert/afterSplitInsert push leaves onto its sort queue.
func (t *OptimizedTree) enqueueCold(leafID uint32, valid bool) {
	if !valid || leafID == t.fp.leaf {
		return
	}
	lf, err := t.c.fetchLeaf(leafID)
	if err != nil {
		return
	}
	lf.SetCold(true)
	t.c.unpin(leafID, true)
}

func (t *OptimizedTree) Get(key tuple.Field) (*tuple.Tuple, error) {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	return t.c.get(key)
}

func (t *OptimizedTree) Range(lo, hi tuple.Field) ([]*tuple.Tuple, error) {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	return t.c.rangeScan(lo, hi)
}

func (t *OptimizedTree) Update(key tuple.Field, updates []FieldUpdate) (bool, error) {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	return t.c.update(key, updates)
}

// Erase only succeeds when the configured leaf kind supports it
// (AppendFactory); SortedFactory-backed OptimizedTree rejects it with an
// ordinary, non-fatal error, unlike SimpleTree's fatal one.
func (t *OptimizedTree) Erase(key tuple.Field) (bool, error) {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	return t.c.erase(key)
}

func (t *OptimizedTree) Size() int                     { return t.c.Size() }
func (t *OptimizedTree) Height() int                   { return t.c.Height() }
func (t *OptimizedTree) SortedLeafSearchCount() int    { return t.c.SortedLeafSearchCount() }
func (t *OptimizedTree) LeafStats() (LeafStats, error) { return t.c.LeafStats() }
func (t *OptimizedTree) FastPathHits() int             { return t.fastPathHits }
