// Package tree implements the three B+-tree coordinators this module
// provides — SimpleTree, OptimizedTree, and LasTree — sharing one
// underlying coordinator for path-walking, leaf splitting, and internal-
// node split/promotion, and differing only in leaf representation and
// fast-path/background-sort behavior.
package tree

import (
	"fmt"
	"sync"
	"sync/atomic"

	"lastree/database"
	"lastree/internalnode"
	"lastree/lastreeerr"
	"lastree/leaf"
	"lastree/page"
	"lastree/tuple"
)

// invalidLeafID marks "no successor" for a leaf's NextID — the head
// leaf's NextID starts here too.
const invalidLeafID = ^uint32(0)

// FieldUpdate names one field to overwrite in Update's targeted tuple.
type FieldUpdate struct {
	Index int
	Value tuple.Field
}

// LeafStats summarizes the leaf chain for observability, mirroring the
// coordinator API's "(leaf_count, utilization)" pair.
type LeafStats struct {
	LeafCount   int
	Utilization float64 // mean of the coarse per-leaf estimate from utilizationEstimate
}

// coordinator holds everything SimpleTree, OptimizedTree, and LasTree
// share: the database context, the schema, the current root/head/height/
// size, and the leaf representation this tree instance is built over.
// Per spec.md §5, a coordinator's mutating operations are single-writer;
// callers serialize through mu (LasTree additionally takes per-leaf
// striped locks around individual leaf mutations so its background
// sort worker can run concurrently with foreground inserts).
type coordinator struct {
	mu sync.Mutex

	db     *database.Database
	file   string
	schema *tuple.Schema
	leaves LeafFactory

	rootID     uint32
	headLeafID uint32
	size       int
	height     int

	// sortedLeafSearchCount is atomic rather than mu-guarded so that
	// LasTree's Get (which reads a leaf under a per-leaf stripe lock, not
	// c.mu — see lastree.go) can bump it without ever nesting a c.mu
	// acquisition inside a stripe-lock critical section, which would
	// invert the lock order Insert uses (c.mu outer, stripe lock inner).
	sortedLeafSearchCount atomic.Int64
}

func (t *coordinator) pool() poolLike { return t.db.Pool() }

// poolLike is the subset of *bufferpool.BufferPool the coordinator needs,
// named here only so this file doesn't have to import the concrete type
// twice for documentation purposes; database.Database.Pool already
// returns the concrete type.
type poolLike interface {
	Fetch(id page.ID) (*page.Page, error)
	Unpin(id page.ID, dirty bool) error
}

func (t *coordinator) pid(num uint32) page.ID { return page.ID{File: t.file, Num: num} }

func (t *coordinator) fetch(num uint32) (*page.Page, error) {
	p, err := t.pool().Fetch(t.pid(num))
	if err != nil {
		return nil, lastreeerr.Fatal(fmt.Sprintf("read page %s#%d", t.file, num), err)
	}
	return p, nil
}

func (t *coordinator) unpin(num uint32, dirty bool) {
	if err := t.pool().Unpin(t.pid(num), dirty); err != nil {
		panic(err) // unpin of a non-resident page is a lifetime bug, not recoverable
	}
}

func (t *coordinator) fetchLeaf(num uint32) (leaf.Leaf, error) {
	p, err := t.fetch(num)
	if err != nil {
		return nil, err
	}
	if p.Kind() != page.KindLeaf {
		return nil, lastreeerr.Fatal(fmt.Sprintf("page %s#%d is not a leaf", t.file, num), nil)
	}
	return t.leaves.LoadLeaf(p, t.schema), nil
}

func (t *coordinator) fetchInternal(num uint32) (*internalnode.View, error) {
	p, err := t.fetch(num)
	if err != nil {
		return nil, err
	}
	if p.Kind() != page.KindInternal {
		return nil, lastreeerr.Fatal(fmt.Sprintf("page %s#%d is not internal", t.file, num), nil)
	}
	return internalnode.Load(p, t.schema), nil
}

func (t *coordinator) allocateLeaf(nextID uint32) (uint32, leaf.Leaf, error) {
	pid, err := t.db.AllocatePage(t.file)
	if err != nil {
		return 0, nil, lastreeerr.Fatal("allocate leaf page", err)
	}
	p, err := t.fetch(pid.Num)
	if err != nil {
		return 0, nil, err
	}
	lf := t.leaves.NewLeaf(p, t.schema, pid.Num, nextID)
	return pid.Num, lf, nil
}

func (t *coordinator) allocateInternal() (uint32, *internalnode.View, error) {
	pid, err := t.db.AllocatePage(t.file)
	if err != nil {
		return 0, nil, lastreeerr.Fatal("allocate internal page", err)
	}
	p, err := t.fetch(pid.Num)
	if err != nil {
		return 0, nil, err
	}
	return pid.Num, internalnode.New(p, t.schema, pid.Num), nil
}

// init allocates the head leaf (page 0 of a fresh file) and the initial
// root (page 1, an internal node with one child pointing at the head
// leaf), per spec.md §6. Must be called exactly once, right after
// construction.
func (t *coordinator) init() error {
	headID, headLeaf, err := t.allocateLeaf(invalidLeafID)
	if err != nil {
		return err
	}
	_ = headLeaf
	t.unpin(headID, true)
	t.headLeafID = headID

	rootID, root, err := t.allocateInternal()
	if err != nil {
		return err
	}
	root.SetChild(0, headID)
	t.unpin(rootID, true)
	t.rootID = rootID
	t.height = 1
	return nil
}

// findLeafPath walks from the root to the leaf that should hold key,
// returning the leaf's node ID, the internal-node IDs visited along the
// way (root-to-parent-of-leaf order, for propagate to walk in reverse),
// and the smallest key strictly greater than everything the leaf can
// hold (its upper bound from the path, ok=false if unbounded).
func (t *coordinator) findLeafPath(key tuple.Field) (leafID uint32, path []uint32, upperBound tuple.Field, hasUpper bool, err error) {
	id := t.rootID
	for {
		p, ferr := t.fetch(id)
		if ferr != nil {
			return 0, nil, tuple.Field{}, false, ferr
		}
		if p.Kind() == page.KindLeaf {
			t.unpin(id, false)
			return id, path, upperBound, hasUpper, nil
		}
		node := internalnode.Load(p, t.schema)
		slot := node.ChildSlot(key)
		if slot < node.KeyCount() {
			upperBound = node.Key(slot)
			hasUpper = true
		}
		path = append(path, id)
		child := node.Child(slot)
		t.unpin(id, false)
		id = child
	}
}

// propagate inserts (key, childID) into the last node of path (the
// parent of the leaf that just split), splitting internal nodes and
// walking upward as needed, creating a new root if the split reaches the
// top of path.
func (t *coordinator) propagate(path []uint32, key tuple.Field, childID uint32) error {
	for i := len(path) - 1; i >= 0; i-- {
		nodeID := path[i]
		node, err := t.fetchInternal(nodeID)
		if err != nil {
			return err
		}
		idx := node.ChildSlot(key)
		if node.InsertAt(idx, key, childID) {
			t.unpin(nodeID, true)
			return nil
		}

		promoted, rightID, err := t.splitInternal(node, idx, key, childID)
		if err != nil {
			t.unpin(nodeID, false)
			return err
		}
		t.unpin(nodeID, true)

		key = promoted
		childID = rightID
	}
	return t.createNewRoot(key, childID)
}

// splitInternal splits node (currently at Capacity keys) around the
// pending (key, childID) insertion at position idx, promoting the
// middle key. It materializes the pre-split key/child arrays into plain
// slices before mutating anything, which sidesteps the "index >
// split_pos" bug spec.md §9 flags in the source's in-place memmove
// version (a stale, already-updated size read there): there is nothing
// to read stale here, since the arrays are captured before node.SetKey/
// SetChild ever run.
func (t *coordinator) splitInternal(node *internalnode.View, idx int, key tuple.Field, childID uint32) (tuple.Field, uint32, error) {
	n := node.KeyCount()
	keys := make([]tuple.Field, n)
	children := make([]uint32, n+1)
	for i := 0; i < n; i++ {
		keys[i] = node.Key(i)
	}
	for i := 0; i <= n; i++ {
		children[i] = node.Child(i)
	}

	keys = append(keys[:idx:idx], append([]tuple.Field{key}, keys[idx:]...)...)
	children = append(children[:idx+1:idx+1], append([]uint32{childID}, children[idx+1:]...)...)

	mid := len(keys) / 2
	promoted := keys[mid]
	leftKeys, leftChildren := keys[:mid], children[:mid+1]
	rightKeys, rightChildren := keys[mid+1:], children[mid+1:]

	for i, k := range leftKeys {
		node.SetKey(i, k)
	}
	for i, c := range leftChildren {
		node.SetChild(i, c)
	}
	node.SetKeyCount(len(leftKeys))

	rightID, right, err := t.allocateInternal()
	if err != nil {
		return tuple.Field{}, 0, err
	}
	for i, k := range rightKeys {
		right.SetKey(i, k)
	}
	for i, c := range rightChildren {
		right.SetChild(i, c)
	}
	right.SetKeyCount(len(rightKeys))
	t.unpin(rightID, true)

	return promoted, rightID, nil
}

// createNewRoot handles a split that reached the top of the saved path:
// clone the current root's raw content into a fresh page (the new left
// child), then overwrite the root page in place with a 1-key, 2-child
// internal node. The root's node ID never changes, per spec.md §4.4.
func (t *coordinator) createNewRoot(key tuple.Field, rightChildID uint32) error {
	rootPage, err := t.fetch(t.rootID)
	if err != nil {
		return err
	}

	leftPID, err := t.db.AllocatePage(t.file)
	if err != nil {
		t.unpin(t.rootID, false)
		return lastreeerr.Fatal("allocate left-clone page for root split", err)
	}
	leftPage, err := t.fetch(leftPID.Num)
	if err != nil {
		t.unpin(t.rootID, false)
		return err
	}
	*leftPage = *rootPage
	leftPage.SetNodeID(leftPID.Num)
	t.unpin(leftPID.Num, true)

	newRoot := internalnode.New(rootPage, t.schema, t.rootID)
	newRoot.SetChild(0, leftPID.Num)
	newRoot.InsertAt(0, key, rightChildID)
	t.unpin(t.rootID, true)

	t.height++
	return nil
}

// get performs a plain root-to-leaf descent; neither Get nor Range
// consult the fast path, matching original_source's get()/range(), which
// always call find_leaf.
func (t *coordinator) get(key tuple.Field) (*tuple.Tuple, error) {
	leafID, _, _, _, err := t.findLeafPath(key)
	if err != nil {
		return nil, err
	}
	lf, err := t.fetchLeaf(leafID)
	if err != nil {
		return nil, err
	}
	if lf.IsSorted() {
		t.sortedLeafSearchCount.Add(1)
	}
	tup, ok := lf.Get(key)
	t.unpin(leafID, false)
	if !ok {
		return nil, lastreeerr.ErrNotFound
	}
	return tup, nil
}

// rangeScan walks the leaf chain from the leaf containing lo forward,
// collecting matches, continuing while the current leaf's MinKey <= hi
// rather than stopping merely because one leaf produced no matches (the
// bug spec.md §9 flags: a leaf entirely below lo but with MinKey <= hi
// must not truncate the scan).
func (t *coordinator) rangeScan(lo, hi tuple.Field) ([]*tuple.Tuple, error) {
	leafID, _, _, _, err := t.findLeafPath(lo)
	if err != nil {
		return nil, err
	}
	ty := t.schema.KeyType()
	var result []*tuple.Tuple
	for leafID != invalidLeafID {
		lf, ferr := t.fetchLeaf(leafID)
		if ferr != nil {
			return nil, ferr
		}
		if lf.IsSorted() {
			t.sortedLeafSearchCount.Add(1)
		}
		result = lf.Range(lo, hi, result)
		next := lf.NextID()
		count := lf.TupleCount()
		var minKey tuple.Field
		if count > 0 {
			minKey = lf.MinKey()
		}
		t.unpin(leafID, false)

		if count > 0 && tuple.Compare(ty, minKey, hi) > 0 {
			break
		}
		leafID = next
	}
	return result, nil
}

// update rewrites the value at key according to updates, returning false
// if key is absent (per the coordinator API's "false if key absent").
// SimpleTree and OptimizedTree call this directly; LasTree instead calls
// findLeafPath/fetchLeaf/applyUpdate/unpin itself so it can wrap the
// fetch-mutate-unpin span in its own per-leaf stripe lock (see
// lastree.go) rather than taking that lock from inside here.
func (t *coordinator) update(key tuple.Field, updates []FieldUpdate) (bool, error) {
	leafID, _, _, _, err := t.findLeafPath(key)
	if err != nil {
		return false, err
	}
	lf, err := t.fetchLeaf(leafID)
	if err != nil {
		return false, err
	}
	ok, err := t.applyUpdate(lf, key, updates)
	t.unpin(leafID, ok)
	return ok, err
}

// applyUpdate rewrites the value for key in the already-fetched leaf lf,
// returning false if key is absent. Split out from update so the fetch/
// mutate/unpin sequence can be performed under whatever lock the caller
// already holds on lf's page (LasTree's per-leaf stripe lock) instead of
// update taking it internally.
func (t *coordinator) applyUpdate(lf leaf.Leaf, key tuple.Field, updates []FieldUpdate) (bool, error) {
	existing, ok := lf.Get(key)
	if !ok {
		return false, nil
	}
	updated := &tuple.Tuple{Fields: append([]tuple.Field(nil), existing.Fields...)}
	for _, u := range updates {
		updated.Fields[u.Index] = u.Value
	}
	if u := updated.Fields[t.schema.KeyField()]; tuple.Compare(t.schema.KeyType(), u, key) != 0 {
		return false, fmt.Errorf("tree: update may not change the key field")
	}
	return lf.Update(updated), nil
}

// erase removes key via the leaf's Sortable.Erase, for AppendLeaf-backed
// trees only; SortedLeaf has no delete operation in spec.md's contract.
// As with update, LasTree drives findLeafPath/fetchLeaf/applyErase/unpin
// itself so it can hold its stripe lock across the whole span.
func (t *coordinator) erase(key tuple.Field) (bool, error) {
	leafID, _, _, _, err := t.findLeafPath(key)
	if err != nil {
		return false, err
	}
	lf, err := t.fetchLeaf(leafID)
	if err != nil {
		return false, err
	}
	ok, err := t.applyErase(lf, key)
	t.unpin(leafID, ok)
	return ok, err
}

// applyErase is erase's already-fetched-leaf counterpart to applyUpdate.
func (t *coordinator) applyErase(lf leaf.Leaf, key tuple.Field) (bool, error) {
	sortable, ok := lf.(leaf.Sortable)
	if !ok {
		return false, fmt.Errorf("tree: this leaf representation does not support erase")
	}
	if _, found := lf.Get(key); !found {
		return false, nil
	}
	return sortable.Erase(key), nil
}

func (t *coordinator) insertTuple(tup *tuple.Tuple) error {
	if !t.schema.Compatible(tup) {
		return lastreeerr.Fatal(fmt.Sprintf("tuple has %d fields, schema wants %d", len(tup.Fields), t.schema.NumFields()), nil)
	}
	return nil
}

// SortedLeafSearchCount, Size, Height, LeafStats are the observability
// surface spec.md §6 says the (external, non-goal) benchmark driver
// would call.
func (t *coordinator) SortedLeafSearchCount() int { return int(t.sortedLeafSearchCount.Load()) }
func (t *coordinator) Size() int                  { return t.size }
func (t *coordinator) Height() int                { return t.height }

func (t *coordinator) LeafStats() (LeafStats, error) {
	var stats LeafStats
	id := t.headLeafID
	var totalUtil float64
	for id != invalidLeafID {
		lf, err := t.fetchLeaf(id)
		if err != nil {
			return LeafStats{}, err
		}
		stats.LeafCount++
		util := 1.0
		if !lf.IsNearlyFull() {
			util = utilizationEstimate(lf)
		}
		totalUtil += util
		next := lf.NextID()
		t.unpin(id, false)
		id = next
	}
	if stats.LeafCount > 0 {
		stats.Utilization = totalUtil / float64(stats.LeafCount)
	}
	return stats, nil
}

// utilizationEstimate reports 0 for an empty leaf, 1.0 for a leaf that
// IsNearlyFull, and a flat 0.5 for any other leaf, since leaf.Leaf does
// not expose raw byte accounting.
func utilizationEstimate(lf leaf.Leaf) float64 {
	if lf.TupleCount() == 0 {
		return 0
	}
	if lf.IsNearlyFull() {
		return 1.0
	}
	return 0.5
}
