package tree

import "sync"

// coldQueue is the FIFO of leaf IDs awaiting a background sort pass, with
// a dedup set so a leaf already queued isn't queued twice, per spec.md
// §4.3's background lazy-sort design. Guarded by its own mutex with a
// condition variable signalling non-emptiness, independent of the
// coordinator's mu so the background worker never contends with
// foreground inserts for anything but the per-leaf striped lock it takes
// while actually sorting a page.
type coldQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []uint32
	queued map[uint32]bool
	stop   bool
}

func newColdQueue() *coldQueue {
	q := &coldQueue{queued: make(map[uint32]bool)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push enqueues leafID unless it is already pending, waking the worker.
func (q *coldQueue) push(leafID uint32) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.queued[leafID] {
		return
	}
	q.queued[leafID] = true
	q.items = append(q.items, leafID)
	q.cond.Signal()
}

// pop blocks until an item is available or the queue is stopped, in
// which case ok is false.
func (q *coldQueue) pop() (leafID uint32, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.stop {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return 0, false
	}
	leafID = q.items[0]
	q.items = q.items[1:]
	return leafID, true
}

// done removes leafID from the dedup set once the worker has finished
// with it (successfully or not), allowing it to be re-enqueued later.
func (q *coldQueue) done(leafID uint32) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.queued, leafID)
}

// closeQueue sets the stop flag and wakes any blocked pop.
func (q *coldQueue) closeQueue() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stop = true
	q.cond.Broadcast()
}

// runSortWorker is the single background goroutine LasTree starts: pop a
// cold leaf id, sort it under its striped lock if it's still unsorted,
// and loop until the queue is closed. Per spec.md §4.3/§7, a failure
// sorting one leaf is logged and the leaf is dropped from the dedup set;
// the worker keeps running.
func (t *LasTree) runSortWorker() {
	defer t.workerDone.Done()
	for {
		leafID, ok := t.cold.pop()
		if !ok {
			return
		}
		t.sortColdLeaf(leafID)
		t.cold.done(leafID)
	}
}

// sortColdLeaf holds only the leaf's stripe lock for the whole fetch/
// sort/unpin span, never c.mu: fetchLeaf and unpin go through the buffer
// pool's own mutex and touch no coordinator-level mutable state, so
// there is nothing here for c.mu to guard. Taking it anyway (as a nested
// acquisition inside the stripe lock) would invert the order Insert
// uses (c.mu outer, stripe lock inner) and risk an AB-BA deadlock
// against a concurrent foreground Insert/Update/Erase/Get on this same
// leaf — see Get's and Update's doc comments for the other half of this
// discipline.
func (t *LasTree) sortColdLeaf(leafID uint32) {
	t.locks.Lock(leafID)
	defer t.locks.Unlock(leafID)

	lf, err := t.c.fetchLeaf(leafID)
	if err != nil {
		logBackgroundSortFailure(leafID, err)
		return
	}

	sortable, ok := lf.(interface{ Sort() })
	if !ok || lf.IsSorted() {
		t.c.unpin(leafID, false)
		return
	}

	sortable.Sort()
	t.c.unpin(leafID, true)
}
