package tree

import (
	"lastree/database"
	"lastree/lastreeerr"
	"lastree/tuple"
)

// SimpleTree is the baseline coordinator: SortedView leaves only, no
// fast path, every mutation serialized through one mutex. It exists to
// give the optimized variants something to be measured against, per
// spec.md §3's three-tree lineup.
type SimpleTree struct {
	c *coordinator
}

// NewSimpleTree builds a fresh SortedView-backed tree over file, which
// must already have been registered in db with Register; it does not
// register the file itself.
func NewSimpleTree(db *database.Database, file string, schema *tuple.Schema) (*SimpleTree, error) {
	t := &SimpleTree{c: &coordinator{
		db:     db,
		file:   file,
		schema: schema,
		leaves: SortedFactory{},
	}}
	if err := t.c.init(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *SimpleTree) Insert(tup *tuple.Tuple) error {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()

	if err := t.c.insertTuple(tup); err != nil {
		return err
	}
	key := tup.Fields[t.c.schema.KeyField()]
	leafID, path, _, _, err := t.c.findLeafPath(key)
	if err != nil {
		return err
	}
	lf, err := t.c.fetchLeaf(leafID)
	if err != nil {
		return err
	}
	if err := t.c.insertWithSplit(leafID, path, lf, tup); err != nil {
		t.c.unpin(leafID, false)
		return err
	}
	t.c.unpin(leafID, true)
	t.c.size++
	return nil
}

func (t *SimpleTree) Get(key tuple.Field) (*tuple.Tuple, error) {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	return t.c.get(key)
}

func (t *SimpleTree) Range(lo, hi tuple.Field) ([]*tuple.Tuple, error) {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	return t.c.rangeScan(lo, hi)
}

func (t *SimpleTree) Update(key tuple.Field, updates []FieldUpdate) (bool, error) {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	return t.c.update(key, updates)
}

// Erase is not supported: SortedView has no delete operation (spec.md
// §4.2 reserves tombstone delete for the append-only leaf kind).
func (t *SimpleTree) Erase(tuple.Field) (bool, error) {
	return false, lastreeerr.Fatal("SimpleTree does not support erase (SortedView leaves have no delete)", nil)
}

func (t *SimpleTree) Size() int                    { return t.c.Size() }
func (t *SimpleTree) Height() int                  { return t.c.Height() }
func (t *SimpleTree) SortedLeafSearchCount() int   { return t.c.SortedLeafSearchCount() }
func (t *SimpleTree) LeafStats() (LeafStats, error) { return t.c.LeafStats() }
