// Package page defines the fixed-size on-disk unit every node type (leaf
// or internal) is encoded into, and the identifier used to address one.
package page

import (
	"encoding/binary"
	"fmt"
)

// Size is the fixed byte length of every page in every index file.
const Size = 4096

// NodeKind is the one-byte tag at offset 0 of every page, distinguishing
// a leaf page from an internal-node page. It is the tagged-union
// discriminant the rest of the codebase switches on.
type NodeKind byte

const (
	KindLeaf NodeKind = iota
	KindInternal
)

func (k NodeKind) String() string {
	switch k {
	case KindLeaf:
		return "leaf"
	case KindInternal:
		return "internal"
	default:
		return fmt.Sprintf("NodeKind(%d)", byte(k))
	}
}

// ID addresses one page within one named index file. Node identity within
// a tree is this ID's Num component; File scopes it to a specific
// on-disk index.
type ID struct {
	File string
	Num  uint32
}

func (id ID) String() string { return fmt.Sprintf("%s#%d", id.File, id.Num) }

// Page is one fixed-size buffer as it exists in the buffer pool: raw
// bytes that leaf/internalnode views interpret through explicit,
// endian-defined offsets.
type Page [Size]byte

// Kind reads the one-byte node-type tag at offset 0.
func (p *Page) Kind() NodeKind { return NodeKind(p[0]) }

// SetKind writes the node-type tag at offset 0.
func (p *Page) SetKind(k NodeKind) { p[0] = byte(k) }

// New returns a freshly zeroed page tagged with kind.
func New(kind NodeKind) *Page {
	p := &Page{}
	p.SetKind(kind)
	return p
}

// nodeIDOff is the offset of the 4-byte node ID every page layout in this
// module places immediately after the 1-byte BaseHeader — SortedLeaf,
// AppendLeaf, and InternalNode headers all agree on this, so a page's
// identity can be patched without knowing which kind it holds. Used only
// by the tree package's root-split clone, which copies a page's raw bytes
// before it has decoded which kind of node the copy is.
const nodeIDOff = 1

// NodeID reads the 4-byte node identifier common to every page layout.
func (p *Page) NodeID() uint32 { return binary.LittleEndian.Uint32(p[nodeIDOff:]) }

// SetNodeID overwrites the node identifier in place, leaving every other
// header field and the heap untouched.
func (p *Page) SetNodeID(id uint32) { binary.LittleEndian.PutUint32(p[nodeIDOff:], id) }
