package hierarchy

import (
	"errors"
	"fmt"

	"github.com/Faultbox/surfelview/pkg/math"
)

// Spec describes a node to add to a Builder.
type Spec struct {
	Bounds     math.Box3
	Complexity float64
	Resolution float32
	Blocks     []Block
}

// Builder assembles a Tree. The first node added must be the root.
type Builder struct {
	nodes []Node
	err   error
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// AddNode appends a node under parent and returns its id. Pass InvalidNode
// as parent for the root. Errors are reported by Build.
func (b *Builder) AddNode(parent NodeID, spec Spec) NodeID {
	id := NodeID(len(b.nodes))
	depth := 0

	switch {
	case parent == InvalidNode && id != 0:
		b.fail(fmt.Errorf("node %d: tree already has a root", id))
	case parent != InvalidNode && (parent < 0 || parent >= id):
		b.fail(fmt.Errorf("node %d: unknown parent %d", id, parent))
	case parent != InvalidNode:
		b.nodes[parent].children = append(b.nodes[parent].children, id)
		depth = b.nodes[parent].depth + 1
	}

	cost := 0
	for _, blk := range spec.Blocks {
		cost += int(blk.PointCount)
	}

	b.nodes = append(b.nodes, Node{
		id:         id,
		parent:     parent,
		depth:      depth,
		blocks:     append([]Block(nil), spec.Blocks...),
		bounds:     spec.Bounds,
		complexity: spec.Complexity,
		resolution: spec.Resolution,
		cost:       cost,
	})
	return id
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Build finalizes the tree and validates it.
func (b *Builder) Build() (*Tree, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.nodes) == 0 {
		return nil, errors.New("hierarchy: empty tree")
	}

	t := &Tree{
		nodes:  b.nodes,
		blocks: make(map[BlockID]NodeID),
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	for i := range t.nodes {
		for _, blk := range t.nodes[i].blocks {
			t.blocks[blk.ID] = t.nodes[i].id
		}
	}
	b.nodes = nil
	return t, nil
}
