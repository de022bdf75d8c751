// Package store provides the dataset backends the viewer reads point blocks
// from. Every backend exposes the tree of a dataset and serves block loads
// for the residency cache.
package store

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Faultbox/surfelview/internal/engine/hierarchy"
	"github.com/Faultbox/surfelview/pkg/math"
	"github.com/Faultbox/surfelview/pkg/pcdb"
)

// Backend names accepted by Open.
const (
	BackendArchive = "archive"
	BackendBadger  = "badger"
)

// Store is a read-only dataset.
type Store interface {
	OpenTree() (*hierarchy.Tree, error)
	LoadBlock(b hierarchy.Block) ([]pcdb.Point, error)
	FreeBlock(b hierarchy.Block)
	Close() error
}

// Open opens the dataset at path with the named backend.
func Open(backend, path string, log *zap.Logger) (Store, error) {
	switch backend {
	case BackendArchive, "":
		s, err := OpenArchive(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendBadger:
		cfg := DefaultBadgerConfig(path)
		cfg.Logger = log
		s, err := OpenBadger(cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

// TreeFromEntries builds a tree from stored node and block tables. Nodes must
// be stored with every parent before its children and children listed in
// ascending order, which is how the builder writes them.
func TreeFromEntries(nodes []pcdb.NodeEntry, blocks []pcdb.BlockEntry) (*hierarchy.Tree, error) {
	b := hierarchy.NewBuilder()
	for i, n := range nodes {
		if i > 0 && (n.Parent < 0 || int(n.Parent) >= i) {
			return nil, fmt.Errorf("node %d: parent %d not stored before child", i, n.Parent)
		}

		spec := hierarchy.Spec{
			Bounds:     math.Box3{Min: math.FromArray(n.Min), Max: math.FromArray(n.Max)},
			Complexity: n.Complexity,
			Resolution: n.Resolution,
			Blocks:     make([]hierarchy.Block, 0, len(n.Blocks)),
		}
		for _, id := range n.Blocks {
			if id < 0 || int(id) >= len(blocks) {
				return nil, fmt.Errorf("node %d: block %d out of range", i, id)
			}
			e := blocks[id]
			spec.Blocks = append(spec.Blocks, hierarchy.Block{
				ID:         hierarchy.BlockID(id),
				Offset:     e.Offset,
				Length:     e.Length,
				PointCount: e.PointCount,
				Checksum:   e.Checksum,
			})
		}

		parent := hierarchy.NodeID(n.Parent)
		if i == 0 {
			parent = hierarchy.InvalidNode
		}
		b.AddNode(parent, spec)
	}

	tree, err := b.Build()
	if err != nil {
		return nil, err
	}

	for i, n := range nodes {
		children := tree.Node(hierarchy.NodeID(i)).Children()
		if len(children) != len(n.Children) {
			return nil, fmt.Errorf("node %d: %d children stored, %d linked", i, len(n.Children), len(children))
		}
		for j, c := range n.Children {
			if children[j] != hierarchy.NodeID(c) {
				return nil, fmt.Errorf("node %d: children out of order", i)
			}
		}
	}
	return tree, nil
}

// tracker counts blocks handed out and not yet freed.
type tracker struct {
	mu   sync.Mutex
	live map[hierarchy.BlockID]struct{}
}

func (t *tracker) add(id hierarchy.BlockID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.live == nil {
		t.live = make(map[hierarchy.BlockID]struct{})
	}
	t.live[id] = struct{}{}
}

func (t *tracker) remove(id hierarchy.BlockID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.live, id)
}

// Outstanding returns the number of loaded blocks that were not freed.
func (t *tracker) Outstanding() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.live)
}
