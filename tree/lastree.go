package tree

import (
	"log"
	"sync"

	"lastree/database"
	"lastree/lastreeerr"
	"lastree/leaf"
	"lastree/tuple"
)

// LasTree is OptimizedTree plus AppendView leaves and a background
// worker that lazily sorts leaves the fast path has moved on from, per
// spec.md §4.3's "LasTree" design. Foreground mutation is still single-
// writer through c.mu; the background worker additionally takes a
// striped per-leaf lock (stripedLocks) around the one leaf it is
// currently sorting, so it never blocks unrelated foreground inserts.
type LasTree struct {
	c     *coordinator
	fp    fastPathState
	locks *stripedLocks
	cold  *coldQueue

	workerDone sync.WaitGroup
	closeOnce  sync.Once

	fastPathHits int
}

// NewLasTree builds a LasTree over file using AppendView leaves under
// policy, starting its background sort worker immediately. Close must be
// called when the tree is done being used, to stop and join the worker
// before the underlying database is closed.
func NewLasTree(db *database.Database, file string, schema *tuple.Schema, policy leaf.SplitPolicy) (*LasTree, error) {
	t := &LasTree{
		c: &coordinator{
			db:     db,
			file:   file,
			schema: schema,
			leaves: AppendFactory{Policy: policy},
		},
		locks: newStripedLocks(),
		cold:  newColdQueue(),
	}
	if err := t.c.init(); err != nil {
		return nil, err
	}
	// fp starts invalid: the first insert always walks the path and
	// bootstraps it (see afterPathInsert), rather than treating the empty
	// head leaf as already-cached.

	t.workerDone.Add(1)
	go t.runSortWorker()
	return t, nil
}

// Close stops the background sort worker, waits for it to finish its
// current leaf (if any) and joins it, then flushes via the caller's
// database.Close (not called here — LasTree does not own db). Per
// spec.md §5's cancellation model: the worker only observes the stop
// flag at queue-wait boundaries.
func (t *LasTree) Close() {
	t.closeOnce.Do(func() {
		t.cold.closeQueue()
		t.workerDone.Wait()
	})
}

func logBackgroundSortFailure(leafID uint32, err error) {
	log.Printf("[LasTree] background sort of leaf %d failed, dropping from queue: %v", leafID, err)
}

// Insert mirrors OptimizedTree.Insert's fast-path algorithm exactly
// (spec.md §4.3), differing only in what happens to a leaf the fast
// path moves away from: instead of marking it cold in place, it is
// pushed onto the background sort queue.
func (t *LasTree) Insert(tup *tuple.Tuple) error {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()

	if err := t.c.insertTuple(tup); err != nil {
		return err
	}
	ty := t.c.schema.KeyType()
	key := tup.Fields[t.c.schema.KeyField()]

	if t.fp.canUse(ty, key) {
		t.locks.Lock(t.fp.leaf)
		lf, err := t.c.fetchLeaf(t.fp.leaf)
		if err != nil {
			t.locks.Unlock(t.fp.leaf)
			return err
		}
		if lf.Insert(tup) {
			t.c.unpin(t.fp.leaf, true)
			t.locks.Unlock(t.fp.leaf)
			t.fastPathHits++
			t.c.size++
			return nil
		}
		t.c.unpin(t.fp.leaf, false)
		t.locks.Unlock(t.fp.leaf)
	}

	return t.insertViaPathWalk(key, tup, ty)
}

func (t *LasTree) insertViaPathWalk(key tuple.Field, tup *tuple.Tuple, ty tuple.Type) error {
	leafID, path, upperBound, hasUpper, err := t.c.findLeafPath(key)
	if err != nil {
		return err
	}

	t.locks.Lock(leafID)
	lf, err := t.c.fetchLeaf(leafID)
	if err != nil {
		t.locks.Unlock(leafID)
		return err
	}

	priorFP := t.fp.leaf
	priorFPValid := t.fp.valid

	if lf.Insert(tup) {
		t.c.unpin(leafID, true)
		t.locks.Unlock(leafID)
		t.c.size++
		t.afterPathInsert(leafID, key, ty, upperBound, hasUpper, priorFP, priorFPValid)
		return nil
	}

	if err := t.c.insertWithSplit(leafID, path, lf, tup); err != nil {
		t.c.unpin(leafID, false)
		t.locks.Unlock(leafID)
		return err
	}
	t.c.unpin(leafID, true)
	t.locks.Unlock(leafID)
	t.c.size++
	t.afterSplitInsert(key, tup, ty, leafID, priorFP, priorFPValid)
	return nil
}

// afterPathInsert is OptimizedTree's bootstrap/soft-update/hard-reset
// rule, restated here because LasTree additionally enqueues the previous
// fast-path leaf as cold (rather than marking it cold synchronously)
// whenever fp actually moves.
func (t *LasTree) afterPathInsert(leafID uint32, key tuple.Field, ty tuple.Type, upperBound tuple.Field, hasUpper bool, priorFP uint32, priorFPValid bool) {
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
		if priorFP != leafID {
			t.cold.push(priorFP)
		}
		t.fp.set(leafID, key, false, upperBound, !hasUpper)
	}
}

// afterSplitInsert mirrors OptimizedTree's post-split fast-path move,
// enqueuing the previously active fp leaf for background sort instead of
// marking it cold in place.
func (t *LasTree) afterSplitInsert(key tuple.Field, tup *tuple.Tuple, ty tuple.Type, leafID uint32, priorFP uint32, priorFPValid bool) {
	t.locks.RLock(leafID)
	lf, err := t.c.fetchLeaf(leafID)
	if err != nil {
		t.locks.RUnlock(leafID)
		return
	}
	newID := lf.NextID()
	t.c.unpin(leafID, false)
	t.locks.RUnlock(leafID)

	if newID == invalidLeafID {
		return
	}

	t.locks.RLock(newID)
	newLeaf, err := t.c.fetchLeaf(newID)
	if err != nil {
		t.locks.RUnlock(newID)
		return
	}
	var sep tuple.Field
	hasSep := newLeaf.TupleCount() > 0
	if hasSep {
		sep = newLeaf.MinKey()
	}
	newNext := newLeaf.NextID()
	t.c.unpin(newID, false)
	t.locks.RUnlock(newID)

	if hasSep && tuple.Compare(ty, key, sep) < 0 {
		t.fp.set(leafID, key, false, sep, false)
	} else {
		var nextMin tuple.Field
		hasNextMin := false
		if newNext != invalidLeafID {
			t.locks.RLock(newNext)
			if nl, err := t.c.fetchLeaf(newNext); err == nil {
				if nl.TupleCount() > 0 {
					nextMin = nl.MinKey()
					hasNextMin = true
				}
				t.c.unpin(newNext, false)
			}
			t.locks.RUnlock(newNext)
		}
		if hasSep {
			t.fp.set(newID, sep, false, nextMin, !hasNextMin)
		} else {
			t.fp.set(newID, tuple.Field{}, true, nextMin, !hasNextMin)
		}
	}

	// Enqueue whichever of the two leaves involved in this split fp did
	// NOT end up on, plus whatever leaf fp pointed to before (if that
	// wasn't one of these two): all are now off the insertion frontier.
	if priorFPValid && priorFP != t.fp.leaf {
		t.cold.push(priorFP)
	}
	if leafID != t.fp.leaf {
		t.cold.push(leafID)
	}
	if newID != t.fp.leaf {
		t.cold.push(newID)
	}
}

// Get takes the per-leaf stripe read lock around the fetched leaf so a
// concurrent background sort of that leaf can't be observed mid-write,
// per spec.md §5's ordering guarantees. The path lookup takes c.mu and
// releases it before the stripe lock is acquired; c.mu is never
// reacquired while the stripe lock is held, so the two locks are never
// nested in the opposite order Insert uses (c.mu outer, stripe lock
// inner) — fetchLeaf/unpin need no coordinator-level lock of their own,
// since the buffer pool they go through guards itself, and the search
// counter is atomic for exactly this reason.
func (t *LasTree) Get(key tuple.Field) (*tuple.Tuple, error) {
	t.c.mu.Lock()
	leafID, _, _, _, err := t.c.findLeafPath(key)
	t.c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	t.locks.RLock(leafID)
	defer t.locks.RUnlock(leafID)

	lf, err := t.c.fetchLeaf(leafID)
	if err != nil {
		return nil, err
	}
	if lf.IsSorted() {
		t.c.sortedLeafSearchCount.Add(1)
	}
	tup, ok := lf.Get(key)
	t.c.unpin(leafID, false)
	if !ok {
		return nil, lastreeerr.ErrNotFound
	}
	return tup, nil
}

func (t *LasTree) Range(lo, hi tuple.Field) ([]*tuple.Tuple, error) {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	return t.c.rangeScan(lo, hi)
}

// Update, like Get, looks up the target leaf under c.mu, releases it,
// then does the fetch/mutate/unpin under the leaf's stripe lock alone —
// the same non-nesting discipline Get uses, so a concurrent background
// sort of this leaf (sortColdLeaf, guarded by the same stripe lock) can
// never run interleaved with this mutation.
func (t *LasTree) Update(key tuple.Field, updates []FieldUpdate) (bool, error) {
	t.c.mu.Lock()
	leafID, _, _, _, err := t.c.findLeafPath(key)
	t.c.mu.Unlock()
	if err != nil {
		return false, err
	}

	t.locks.Lock(leafID)
	defer t.locks.Unlock(leafID)

	lf, err := t.c.fetchLeaf(leafID)
	if err != nil {
		return false, err
	}
	ok, err := t.c.applyUpdate(lf, key, updates)
	t.c.unpin(leafID, ok)
	return ok, err
}

// Erase mirrors Update's locking: stripe lock alone guards the fetch/
// mutate/unpin span, never nested with c.mu.
func (t *LasTree) Erase(key tuple.Field) (bool, error) {
	t.c.mu.Lock()
	leafID, _, _, _, err := t.c.findLeafPath(key)
	t.c.mu.Unlock()
	if err != nil {
		return false, err
	}

	t.locks.Lock(leafID)
	defer t.locks.Unlock(leafID)

	lf, err := t.c.fetchLeaf(leafID)
	if err != nil {
		return false, err
	}
	ok, err := t.c.applyErase(lf, key)
	t.c.unpin(leafID, ok)
	return ok, err
}

func (t *LasTree) Size() int                     { return t.c.Size() }
func (t *LasTree) Height() int                   { return t.c.Height() }
func (t *LasTree) SortedLeafSearchCount() int    { return t.c.SortedLeafSearchCount() }
func (t *LasTree) LeafStats() (LeafStats, error) { return t.c.LeafStats() }
func (t *LasTree) FastPathHits() int             { return t.fastPathHits }
