// Package build turns a flat point set into a multi-resolution dataset.
//
// Points are split by octree subdivision until a cell holds few enough
// points or the depth limit is reached. Every interior node keeps a
// stride-decimated sample of its subtree as its own block, so the tree can
// be drawn coarsely from the root and refined toward the leaves.
package build

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"
	"go.uber.org/zap"

	"github.com/Faultbox/surfelview/pkg/math"
	"github.com/Faultbox/surfelview/pkg/pcdb"
)

// ErrNoPoints is returned by Build for an empty input.
var ErrNoPoints = errors.New("no points to build from")

// Options control subdivision.
type Options struct {
	MaxLeafPoints int // Cells with at most this many points become leaves
	CoarsePoints  int // Size of the decimated sample kept by interior nodes
	MaxDepth      int
	Logger        *zap.Logger
}

// DefaultOptions returns the options used by pcdbtool.
func DefaultOptions() Options {
	return Options{
		MaxLeafPoints: 4096,
		CoarsePoints:  2048,
		MaxDepth:      12,
	}
}

func (o Options) validate() error {
	if o.MaxLeafPoints <= 0 || o.CoarsePoints <= 0 || o.MaxDepth < 0 {
		return fmt.Errorf("invalid build options %+v", o)
	}
	return nil
}

type builder struct {
	opts Options
	ds   *pcdb.Dataset
}

// Build constructs a dataset from points. Nodes are emitted in pre-order so
// parents precede their children.
func Build(points []pcdb.Point, opts Options) (*pcdb.Dataset, error) {
	if len(points) == 0 {
		return nil, ErrNoPoints
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	bounds := math.EmptyBox3()
	for _, p := range points {
		bounds = bounds.Extend(math.FromArray(p.Position))
	}

	b := &builder{opts: opts, ds: &pcdb.Dataset{}}
	b.node(-1, bounds, points, 0)

	log.Info("dataset built",
		zap.Int("points", len(points)),
		zap.Int("nodes", len(b.ds.Nodes)),
		zap.Int("blocks", len(b.ds.Blocks)))
	return b.ds, nil
}

// node appends the subtree for pts and returns its index.
func (b *builder) node(parent int32, box math.Box3, pts []pcdb.Point, depth int) int32 {
	idx := int32(len(b.ds.Nodes))
	b.ds.Nodes = append(b.ds.Nodes, pcdb.NodeEntry{
		Parent: parent,
		Min:    box.Min.Array(),
		Max:    box.Max.Array(),
	})

	if len(pts) <= b.opts.MaxLeafPoints || depth >= b.opts.MaxDepth || box.IsDegenerate() {
		blocks := b.addBlocks(pts)
		n := &b.ds.Nodes[idx]
		n.Blocks = blocks
		n.Complexity = float64(len(pts))
		n.Resolution = density(len(pts), box)
		return idx
	}

	coarse := decimate(pts, b.opts.CoarsePoints)
	b.ds.Nodes[idx].Blocks = b.addBlocks(coarse)

	var parts [8][]pcdb.Point
	for _, p := range pts {
		i := box.OctantOf(math.FromArray(p.Position))
		parts[i] = append(parts[i], p)
	}

	complexity := float64(len(coarse))
	var children []int32
	for i, part := range parts {
		if len(part) == 0 {
			continue
		}
		child := b.node(idx, box.Octant(i), part, depth+1)
		children = append(children, child)
		complexity += b.ds.Nodes[child].Complexity
	}

	n := &b.ds.Nodes[idx]
	n.Children = children
	n.Complexity = complexity
	n.Resolution = density(len(coarse), box)
	return idx
}

// addBlocks stores pts in blocks of at most MaxLeafPoints points.
func (b *builder) addBlocks(pts []pcdb.Point) []int32 {
	var ids []int32
	for start := 0; start < len(pts); start += b.opts.MaxLeafPoints {
		end := min(start+b.opts.MaxLeafPoints, len(pts))
		ids = append(ids, int32(len(b.ds.Blocks)))
		b.ds.Blocks = append(b.ds.Blocks, pts[start:end])
	}
	return ids
}

// decimate keeps every k-th point so that at most limit remain.
func decimate(pts []pcdb.Point, limit int) []pcdb.Point {
	if len(pts) <= limit {
		return append([]pcdb.Point(nil), pts...)
	}
	stride := (len(pts) + limit - 1) / limit
	out := make([]pcdb.Point, 0, limit)
	for i := 0; i < len(pts); i += stride {
		out = append(out, pts[i])
	}
	return out
}

// density estimates samples per unit length from a point count spread over
// the largest face of the box.
func density(count int, box math.Box3) float32 {
	area := box.LargestFaceArea()
	if area <= 0 {
		return float32(count)
	}
	return math32.Sqrt(float32(count) / area)
}
