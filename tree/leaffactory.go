package tree

import (
	"lastree/leaf"
	"lastree/page"
	"lastree/tuple"
)

// LeafFactory builds and reloads the one concrete leaf representation a
// tree coordinator is configured with. This is the "tagged variant"
// coordinator holding one concrete Leaf implementation per tree instance
// called for in spec.md §9, in place of the source's template-over-leaf-
// type parameterisation.
type LeafFactory interface {
	NewLeaf(p *page.Page, schema *tuple.Schema, id, nextID uint32) leaf.Leaf
	LoadLeaf(p *page.Page, schema *tuple.Schema) leaf.Leaf
}

// SortedFactory builds SortedView leaves. SimpleTree always uses it;
// OptimizedTree may too.
type SortedFactory struct{}

func (SortedFactory) NewLeaf(p *page.Page, schema *tuple.Schema, id, nextID uint32) leaf.Leaf {
	return leaf.NewSortedLeaf(p, schema, id, nextID)
}

func (SortedFactory) LoadLeaf(p *page.Page, schema *tuple.Schema) leaf.Leaf {
	return leaf.LoadSortedLeaf(p, schema)
}

// AppendFactory builds AppendView leaves under a fixed split policy.
// LasTree defaults to SplitSorted; OptimizedTree may be configured with
// SplitQuickPartition to exercise the cheaper, unsorted-result policy
// (see leaf.SplitPolicy).
type AppendFactory struct {
	Policy leaf.SplitPolicy
}

func (f AppendFactory) NewLeaf(p *page.Page, schema *tuple.Schema, id, nextID uint32) leaf.Leaf {
	return leaf.NewAppendLeaf(p, schema, id, nextID, f.Policy)
}

func (f AppendFactory) LoadLeaf(p *page.Page, schema *tuple.Schema) leaf.Leaf {
	return leaf.LoadAppendLeaf(p, schema, f.Policy)
}
