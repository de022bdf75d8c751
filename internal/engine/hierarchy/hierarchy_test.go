package hierarchy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/surfelview/pkg/math"
)

func box(minX, minY, minZ, maxX, maxY, maxZ float32) math.Box3 {
	return math.NewBox3(math.Vec3{X: minX, Y: minY, Z: minZ}, math.Vec3{X: maxX, Y: maxY, Z: maxZ})
}

// buildTestTree creates a root with two children; the first child has two
// leaves of its own.
//
//	0 [0,4]x[0,1]x[0,1]
//	├── 1 [0,2]
//	│   ├── 3 [0,1]
//	│   └── 4 [1,2]
//	└── 2 [2,4]
func buildTestTree(t *testing.T) *Tree {
	t.Helper()
	b := NewBuilder()
	root := b.AddNode(InvalidNode, Spec{Bounds: box(0, 0, 0, 4, 1, 1), Complexity: 100, Resolution: 1,
		Blocks: []Block{{ID: 0, PointCount: 10}}})
	left := b.AddNode(root, Spec{Bounds: box(0, 0, 0, 2, 1, 1), Complexity: 60, Resolution: 2,
		Blocks: []Block{{ID: 1, PointCount: 20}}})
	b.AddNode(root, Spec{Bounds: box(2, 0, 0, 4, 1, 1), Complexity: 30, Resolution: 4,
		Blocks: []Block{{ID: 2, PointCount: 15}, {ID: 3, PointCount: 15}}})
	b.AddNode(left, Spec{Bounds: box(0, 0, 0, 1, 1, 1), Complexity: 20, Resolution: 4,
		Blocks: []Block{{ID: 4, PointCount: 20}}})
	b.AddNode(left, Spec{Bounds: box(1, 0, 0, 2, 1, 1), Complexity: 20, Resolution: 4})

	tree, err := b.Build()
	require.NoError(t, err)
	return tree
}

func TestTreeAccessors(t *testing.T) {
	tree := buildTestTree(t)

	require.Equal(t, 5, tree.Len())
	assert.Equal(t, NodeID(0), tree.Root())
	assert.True(t, tree.Contains(4))
	assert.False(t, tree.Contains(5))
	assert.False(t, tree.Contains(-1))

	root := tree.Node(tree.Root())
	assert.Equal(t, []NodeID{1, 2}, root.Children())
	assert.Equal(t, InvalidNode, root.Parent())
	assert.False(t, root.IsLeaf())
	assert.Equal(t, 10, root.Cost())

	n2 := tree.Node(2)
	assert.True(t, n2.IsLeaf())
	assert.Equal(t, 30, n2.Cost())
	assert.Equal(t, 1, n2.Depth())
	assert.Equal(t, float32(4), n2.Resolution())
	assert.Equal(t, 30.0, n2.Complexity())

	n4 := tree.Node(4)
	assert.Equal(t, 2, n4.Depth())
	assert.False(t, n4.HasBlocks())
	assert.Equal(t, 0, n4.Cost())
}

func TestNodeUnknownPanics(t *testing.T) {
	tree := buildTestTree(t)
	assert.Panics(t, func() { tree.Node(42) })
}

func TestWalkPreOrder(t *testing.T) {
	tree := buildTestTree(t)

	var order []NodeID
	tree.Walk(tree.Root(), func(n *Node) bool {
		order = append(order, n.ID())
		return true
	})
	assert.Equal(t, []NodeID{0, 1, 3, 4, 2}, order)
}

func TestWalkSkip(t *testing.T) {
	tree := buildTestTree(t)

	var order []NodeID
	tree.Walk(tree.Root(), func(n *Node) bool {
		order = append(order, n.ID())
		return n.ID() != 1
	})
	assert.Equal(t, []NodeID{0, 1, 2}, order)
}

func TestLeavesAndAncestors(t *testing.T) {
	tree := buildTestTree(t)

	assert.Equal(t, []NodeID{3, 4, 2}, tree.Leaves(tree.Root()))
	assert.Equal(t, []NodeID{3, 4}, tree.Leaves(1))
	assert.Equal(t, []NodeID{2}, tree.Leaves(2))

	assert.Equal(t, []NodeID{1, 0}, tree.Ancestors(4))
	assert.Empty(t, tree.Ancestors(0))
}

func TestBlockLookup(t *testing.T) {
	tree := buildTestTree(t)

	owner, blk, ok := tree.Block(3)
	require.True(t, ok)
	assert.Equal(t, NodeID(2), owner)
	assert.Equal(t, uint32(15), blk.PointCount)

	_, _, ok = tree.Block(99)
	assert.False(t, ok)
	assert.Equal(t, 5, tree.TotalBlocks())
}

func TestBuildValidation(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *Builder)
		want  error
	}{
		{
			name: "child outside parent",
			build: func(b *Builder) {
				r := b.AddNode(InvalidNode, Spec{Bounds: box(0, 0, 0, 1, 1, 1)})
				b.AddNode(r, Spec{Bounds: box(0, 0, 0, 2, 1, 1)})
			},
			want: ErrNotContained,
		},
		{
			name: "overlapping siblings",
			build: func(b *Builder) {
				r := b.AddNode(InvalidNode, Spec{Bounds: box(0, 0, 0, 4, 4, 4)})
				b.AddNode(r, Spec{Bounds: box(0, 0, 0, 2, 2, 2)})
				b.AddNode(r, Spec{Bounds: box(1, 1, 1, 3, 3, 3)})
			},
			want: ErrSiblingOverlap,
		},
		{
			name: "duplicate block",
			build: func(b *Builder) {
				r := b.AddNode(InvalidNode, Spec{Bounds: box(0, 0, 0, 4, 4, 4), Blocks: []Block{{ID: 7}}})
				b.AddNode(r, Spec{Bounds: box(0, 0, 0, 2, 2, 2), Blocks: []Block{{ID: 7}}})
			},
			want: ErrDuplicateBlock,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := NewBuilder()
			tc.build(b)
			_, err := b.Build()
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestBuildTouchingSiblingsAllowed(t *testing.T) {
	b := NewBuilder()
	r := b.AddNode(InvalidNode, Spec{Bounds: box(0, 0, 0, 2, 1, 1)})
	b.AddNode(r, Spec{Bounds: box(0, 0, 0, 1, 1, 1)})
	b.AddNode(r, Spec{Bounds: box(1, 0, 0, 2, 1, 1)})
	_, err := b.Build()
	require.NoError(t, err)
}

func TestBuilderErrors(t *testing.T) {
	_, err := NewBuilder().Build()
	require.Error(t, err)

	b := NewBuilder()
	b.AddNode(InvalidNode, Spec{})
	b.AddNode(InvalidNode, Spec{})
	_, err = b.Build()
	require.Error(t, err)

	b = NewBuilder()
	b.AddNode(InvalidNode, Spec{})
	b.AddNode(5, Spec{})
	_, err = b.Build()
	require.Error(t, err)
}
