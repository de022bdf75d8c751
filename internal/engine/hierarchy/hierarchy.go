// Package hierarchy holds the static spatial tree of a point-cloud dataset.
//
// Nodes live in an arena and are addressed by NodeID. Each node covers a
// bounding box, owns zero or more point blocks that sample its region at the
// node's resolution, and refines into children that sample sub-regions more
// finely. The tree is immutable once built.
package hierarchy

import (
	"errors"
	"fmt"

	"github.com/Faultbox/surfelview/pkg/math"
)

// NodeID addresses a node inside a Tree.
type NodeID int32

// InvalidNode is the parent of the root.
const InvalidNode NodeID = -1

// BlockID identifies a block of points on disk.
type BlockID int32

// Block is a contiguous array of points stored in the dataset.
type Block struct {
	ID         BlockID
	Offset     uint64 // Byte offset of the stored payload
	Length     uint32 // Stored payload length in bytes
	PointCount uint32
	Checksum   uint64 // xxhash of the stored payload
}

// Validation errors.
var (
	ErrNotContained   = errors.New("child bounding box not contained in parent")
	ErrSiblingOverlap = errors.New("sibling bounding boxes overlap")
	ErrDuplicateBlock = errors.New("block owned by more than one node")
	ErrBrokenLink     = errors.New("inconsistent parent/child link")
)

// Node is a read-only view of one tree node.
type Node struct {
	id         NodeID
	parent     NodeID
	depth      int
	children   []NodeID
	blocks     []Block
	bounds     math.Box3
	complexity float64
	resolution float32
	cost       int
}

// ID returns the node's identifier.
func (n *Node) ID() NodeID { return n.id }

// Parent returns the parent id, or InvalidNode for the root.
func (n *Node) Parent() NodeID { return n.parent }

// Depth returns the distance from the root.
func (n *Node) Depth() int { return n.depth }

// Children returns the ordered child ids. Empty for leaves.
func (n *Node) Children() []NodeID { return n.children }

// Blocks returns the blocks owned by this node.
func (n *Node) Blocks() []Block { return n.blocks }

// BoundingBox returns the region covered by the node.
func (n *Node) BoundingBox() math.Box3 { return n.bounds }

// Complexity returns the precomputed point-complexity estimate of the subtree.
func (n *Node) Complexity() float64 { return n.complexity }

// Resolution returns the sampling density of the node's own blocks in
// samples per unit length.
func (n *Node) Resolution() float32 { return n.resolution }

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool { return len(n.children) == 0 }

// HasBlocks reports whether the node owns any point data.
func (n *Node) HasBlocks() bool { return len(n.blocks) > 0 }

// Cost returns the number of points in the node's own blocks.
func (n *Node) Cost() int { return n.cost }

// Tree is an immutable arena of nodes. The root is always NodeID 0.
type Tree struct {
	nodes  []Node
	blocks map[BlockID]NodeID
}

// Root returns the root node id.
func (t *Tree) Root() NodeID { return 0 }

// Len returns the number of nodes.
func (t *Tree) Len() int { return len(t.nodes) }

// Contains reports whether id addresses a node in this tree.
func (t *Tree) Contains(id NodeID) bool {
	return id >= 0 && int(id) < len(t.nodes)
}

// Node returns the node with the given id. It panics if the id is unknown.
func (t *Tree) Node(id NodeID) *Node {
	if !t.Contains(id) {
		panic(fmt.Sprintf("hierarchy: unknown node %d", id))
	}
	return &t.nodes[id]
}

// Block returns the node owning a block and the block itself.
func (t *Tree) Block(id BlockID) (NodeID, Block, bool) {
	owner, ok := t.blocks[id]
	if !ok {
		return InvalidNode, Block{}, false
	}
	for _, b := range t.nodes[owner].blocks {
		if b.ID == id {
			return owner, b, true
		}
	}
	return InvalidNode, Block{}, false
}

// Walk visits the subtree rooted at from in pre-order. Returning false from
// fn skips the children of the visited node.
func (t *Tree) Walk(from NodeID, fn func(n *Node) bool) {
	stack := []NodeID{from}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := t.Node(id)
		if !fn(n) {
			continue
		}
		for i := len(n.children) - 1; i >= 0; i-- {
			stack = append(stack, n.children[i])
		}
	}
}

// Leaves returns the leaves under from in pre-order.
func (t *Tree) Leaves(from NodeID) []NodeID {
	var leaves []NodeID
	t.Walk(from, func(n *Node) bool {
		if n.IsLeaf() {
			leaves = append(leaves, n.id)
		}
		return true
	})
	return leaves
}

// Ancestors returns the ancestors of id, nearest first.
func (t *Tree) Ancestors(id NodeID) []NodeID {
	var out []NodeID
	for p := t.Node(id).parent; p != InvalidNode; p = t.nodes[p].parent {
		out = append(out, p)
	}
	return out
}

// TotalBlocks returns the number of blocks across all nodes.
func (t *Tree) TotalBlocks() int { return len(t.blocks) }

// Validate checks containment, sibling disjointness, block ownership and
// parent links.
func (t *Tree) Validate() error {
	seen := make(map[BlockID]NodeID)
	for i := range t.nodes {
		n := &t.nodes[i]
		for _, b := range n.blocks {
			if owner, dup := seen[b.ID]; dup {
				return fmt.Errorf("%w: block %d in nodes %d and %d", ErrDuplicateBlock, b.ID, owner, n.id)
			}
			seen[b.ID] = n.id
		}

		for j, c := range n.children {
			if !t.Contains(c) || t.nodes[c].parent != n.id {
				return fmt.Errorf("%w: node %d child %d", ErrBrokenLink, n.id, c)
			}
			child := &t.nodes[c]
			if !n.bounds.Contains(child.bounds) {
				return fmt.Errorf("%w: node %d child %d", ErrNotContained, n.id, c)
			}
			for _, s := range n.children[j+1:] {
				if t.Contains(s) && child.bounds.OverlapsInterior(t.nodes[s].bounds) {
					return fmt.Errorf("%w: nodes %d and %d", ErrSiblingOverlap, c, s)
				}
			}
		}
	}
	return nil
}
