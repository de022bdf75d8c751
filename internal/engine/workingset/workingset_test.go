package workingset

import (
	"errors"
	gomath "math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/surfelview/internal/engine/hierarchy"
	"github.com/Faultbox/surfelview/internal/engine/residency"
	"github.com/Faultbox/surfelview/internal/engine/resolution"
	"github.com/Faultbox/surfelview/pkg/math"
	"github.com/Faultbox/surfelview/pkg/pcdb"
)

type fakeLoader struct {
	loads   map[hierarchy.BlockID]int
	live    map[hierarchy.BlockID]bool
	corrupt map[hierarchy.BlockID]bool
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		loads:   make(map[hierarchy.BlockID]int),
		live:    make(map[hierarchy.BlockID]bool),
		corrupt: make(map[hierarchy.BlockID]bool),
	}
}

func (f *fakeLoader) LoadBlock(b hierarchy.Block) ([]pcdb.Point, error) {
	f.loads[b.ID]++
	if f.corrupt[b.ID] {
		return nil, errors.New("checksum mismatch")
	}
	f.live[b.ID] = true
	return make([]pcdb.Point, b.PointCount), nil
}

func (f *fakeLoader) FreeBlock(b hierarchy.Block) {
	delete(f.live, b.ID)
}

func (f *fakeLoader) totalLoads() int {
	n := 0
	for _, c := range f.loads {
		n += c
	}
	return n
}

// opLog records the order of cache calls.
type opLog struct {
	*residency.Cache
	ops []string
}

func (o *opLog) Acquire(id hierarchy.NodeID) error {
	o.ops = append(o.ops, "acquire")
	return o.Cache.Acquire(id)
}

func (o *opLog) Release(id hierarchy.NodeID) {
	o.ops = append(o.ops, "release")
	o.Cache.Release(id)
}

func box(minX, minY, minZ, maxX, maxY, maxZ float32) math.Box3 {
	return math.NewBox3(math.Vec3{X: minX, Y: minY, Z: minZ}, math.Vec3{X: maxX, Y: maxY, Z: maxZ})
}

// scenarioTree is a root over two leaves along X. The root's own sample
// holds 200 points, each leaf 400.
func scenarioTree(t *testing.T) *hierarchy.Tree {
	t.Helper()
	b := hierarchy.NewBuilder()
	root := b.AddNode(hierarchy.InvalidNode, hierarchy.Spec{
		Bounds: box(0, 0, 0, 20, 10, 10), Complexity: 1000, Resolution: 1,
		Blocks: []hierarchy.Block{{ID: 0, PointCount: 200}},
	})
	b.AddNode(root, hierarchy.Spec{
		Bounds: box(0, 0, 0, 10, 10, 10), Complexity: 400, Resolution: 4,
		Blocks: []hierarchy.Block{{ID: 1, PointCount: 400}},
	})
	b.AddNode(root, hierarchy.Spec{
		Bounds: box(10, 0, 0, 20, 10, 10), Complexity: 400, Resolution: 4,
		Blocks: []hierarchy.Block{{ID: 2, PointCount: 400}},
	})
	tree, err := b.Build()
	require.NoError(t, err)
	return tree
}

// scenarioView looks at the near leaf from just outside its -X face.
func scenarioView(budget int) ViewParameters {
	return ViewParameters{
		View:             resolution.View{Eye: math.Vec3{X: -1, Y: 5, Z: 5}, ProjectionScale: 1},
		FocusPoint:       math.Vec3{X: 5, Y: 5, Z: 5},
		TargetResolution: 100,
		Budget:           budget,
	}
}

// gridTree is a three-level tree over [0,8]^3: the root, 8 octants and 64
// sub-octants. Resolution doubles per level.
func gridTree(t *testing.T) *hierarchy.Tree {
	t.Helper()
	b := hierarchy.NewBuilder()
	next := hierarchy.BlockID(0)
	add := func(parent hierarchy.NodeID, bounds math.Box3, res float32, points uint32) hierarchy.NodeID {
		id := b.AddNode(parent, hierarchy.Spec{
			Bounds: bounds, Resolution: res, Complexity: float64(points),
			Blocks: []hierarchy.Block{{ID: next, PointCount: points}},
		})
		next++
		return id
	}

	rootBox := box(0, 0, 0, 8, 8, 8)
	root := add(hierarchy.InvalidNode, rootBox, 1, 40)
	for i := 0; i < 8; i++ {
		octBox := rootBox.Octant(i)
		oct := add(root, octBox, 2, 20)
		for j := 0; j < 8; j++ {
			add(oct, octBox.Octant(j), 4, 10)
		}
	}
	tree, err := b.Build()
	require.NoError(t, err)
	return tree
}

func newManager(t *testing.T, tree *hierarchy.Tree) (*Manager, *residency.Cache, *fakeLoader) {
	t.Helper()
	loader := newFakeLoader()
	cache := residency.New(tree, loader)
	return New(cache), cache, loader
}

func TestScenarioBudgetSubstitutesRoot(t *testing.T) {
	m, cache, _ := newManager(t, scenarioTree(t))

	// Without a budget both leaves are needed.
	assert.Equal(t, []hierarchy.NodeID{1, 2}, m.IdealSet(scenarioView(0)))

	res := m.Update(scenarioView(700))
	assert.Equal(t, []hierarchy.NodeID{0, 1}, res.Ideal)
	assert.Equal(t, []hierarchy.NodeID{0, 1}, res.Acquired)
	assert.Equal(t, 600, res.Cost)
	assert.Equal(t, 1, res.Dropped)
	assert.Empty(t, res.Failed)

	assert.True(t, cache.IsLoaded(0))
	assert.True(t, cache.IsLoaded(1))
	assert.False(t, cache.IsLoaded(2))
}

func TestBudgetTooSmallForSubstitute(t *testing.T) {
	m, _, _ := newManager(t, scenarioTree(t))

	// The root does not fit next to the near leaf.
	ideal := m.IdealSet(scenarioView(500))
	assert.Equal(t, []hierarchy.NodeID{1}, ideal)

	// Only the root fits once the near leaf is gone too.
	ideal = m.IdealSet(scenarioView(300))
	assert.Equal(t, []hierarchy.NodeID{0}, ideal)

	assert.Empty(t, m.IdealSet(scenarioView(100)))
}

func TestBudgetSkipsSubstituteUnderCoveredRegion(t *testing.T) {
	b := hierarchy.NewBuilder()
	root := b.AddNode(hierarchy.InvalidNode, hierarchy.Spec{
		Bounds: box(0, 0, 0, 20, 10, 10), Complexity: 10, Resolution: 1,
		Blocks: []hierarchy.Block{{ID: 0, PointCount: 5}},
	})
	mid := b.AddNode(root, hierarchy.Spec{
		Bounds: box(0, 0, 0, 10, 10, 10), Complexity: 10, Resolution: 2,
		Blocks: []hierarchy.Block{{ID: 1, PointCount: 5}},
	})
	near := b.AddNode(mid, hierarchy.Spec{
		Bounds: box(0, 0, 0, 10, 10, 10), Complexity: 100, Resolution: 8,
		Blocks: []hierarchy.Block{{ID: 2, PointCount: 100}},
	})
	far := b.AddNode(root, hierarchy.Spec{
		Bounds: box(10, 0, 0, 20, 10, 10), Complexity: 100, Resolution: 8,
		Blocks: []hierarchy.Block{{ID: 3, PointCount: 100}},
	})
	tree, err := b.Build()
	require.NoError(t, err)

	m, _, _ := newManager(t, tree)
	require.NoError(t, m.InsertIntoWorkingSet(root, false))

	cands := []candidate{
		{id: near, cost: 100, est: resolution.Estimate{FocusDistance: 10}},
		{id: far, cost: 100, est: resolution.Estimate{FocusDistance: 1}},
	}
	// mid would fit after the drop, but the pinned root already covers it.
	selected, used, dropped := m.enforceBudget(cands, resolution.Params{}, 120)
	assert.Equal(t, 1, dropped)
	assert.Equal(t, 105, used)
	assert.NotContains(t, selected, mid)
	assert.Contains(t, selected, far)

	for id := range selected {
		for _, a := range tree.Ancestors(id) {
			_, nested := selected[a]
			assert.False(t, nested, "node %d selected under selected ancestor %d", id, a)
		}
	}
}

func TestUpdateIdempotent(t *testing.T) {
	m, _, loader := newManager(t, gridTree(t))
	v := ViewParameters{
		View:             resolution.View{Eye: math.Vec3{X: -2, Y: 4, Z: 4}, ProjectionScale: 1},
		FocusPoint:       math.Vec3{X: 4, Y: 4, Z: 4},
		TargetResolution: 2,
	}

	first := m.Update(v)
	require.NotEmpty(t, first.Acquired)
	loads := loader.totalLoads()

	second := m.Update(v)
	assert.Empty(t, second.Acquired)
	assert.Empty(t, second.Released)
	assert.Equal(t, first.Ideal, second.Ideal)
	assert.Equal(t, loads, loader.totalLoads())
}

func TestBudgetRespected(t *testing.T) {
	tree := gridTree(t)
	m, _, _ := newManager(t, tree)

	for _, budget := range []int{40, 100, 200, 333, 640, 1000} {
		v := ViewParameters{
			View:             resolution.View{Eye: math.Vec3{X: 1, Y: 1, Z: -1}, ProjectionScale: 1},
			FocusPoint:       math.Vec3{X: 1, Y: 1, Z: 1},
			FocusRadius:      3,
			TargetResolution: 50,
			Budget:           budget,
		}
		res := m.Update(v)
		assert.LessOrEqual(t, res.Cost, budget, "budget %d", budget)

		sum := 0
		for _, id := range res.Ideal {
			sum += tree.Node(id).Cost()
		}
		assert.Equal(t, res.Cost, sum, "budget %d", budget)
	}
	m.Close()
}

func TestBudgetKeepsFocusRegion(t *testing.T) {
	tree := gridTree(t)
	m, _, _ := newManager(t, tree)

	focus := math.Vec3{X: 1, Y: 1, Z: 1}
	v := ViewParameters{
		View:             resolution.View{Eye: math.Vec3{X: 4, Y: 4, Z: -4}, ProjectionScale: 1},
		FocusPoint:       focus,
		FocusRadius:      1,
		TargetResolution: 1000,
		Budget:           100,
	}

	ideal := m.IdealSet(v)
	require.NotEmpty(t, ideal)

	// The finest node containing the focus point survives trimming.
	var leaf hierarchy.NodeID = -1
	for _, id := range tree.Leaves(tree.Root()) {
		if tree.Node(id).BoundingBox().ContainsPoint(focus) {
			leaf = id
			break
		}
	}
	assert.Contains(t, ideal, leaf)
}

func TestMonotonicRefinement(t *testing.T) {
	tree := gridTree(t)
	m, _, _ := newManager(t, tree)

	average := func(ids []hierarchy.NodeID) float64 {
		sum := 0.0
		for _, id := range ids {
			sum += float64(tree.Node(id).Resolution())
		}
		return sum / float64(len(ids))
	}

	prev := 0.0
	for _, target := range []float32{0.25, 0.5, 1, 2, 4, 8, 16, 64} {
		ideal := m.IdealSet(ViewParameters{
			View:             resolution.View{Eye: math.Vec3{X: -1, Y: 2, Z: 2}, ProjectionScale: 1},
			FocusPoint:       math.Vec3{X: 2, Y: 2, Z: 2},
			TargetResolution: target,
		})
		require.NotEmpty(t, ideal)
		avg := average(ideal)
		assert.GreaterOrEqual(t, avg, prev, "target %v", target)
		prev = avg
	}
	assert.Equal(t, 4.0, prev)
}

func TestFrustumExclusion(t *testing.T) {
	tree := gridTree(t)
	m, _, _ := newManager(t, tree)

	eye := math.Vec3{X: 2, Y: 2, Z: 20}
	proj := math.Perspective(float32(gomath.Pi/12), 1, 1, 100)
	view := math.LookAt(eye, math.Vec3{X: 2, Y: 2, Z: 0}, math.Vec3{Y: 1})
	frustum := math.NewFrustumFromMatrix(proj.Mul(view))

	v := ViewParameters{
		View:             resolution.View{Eye: eye, Frustum: frustum, ProjectionScale: 100},
		FocusPoint:       math.Vec3{X: 2, Y: 2, Z: 4},
		TargetResolution: 0.5,
	}
	ideal := m.IdealSet(v)
	require.NotEmpty(t, ideal)
	for _, id := range ideal {
		assert.True(t, frustum.IntersectsBox(tree.Node(id).BoundingBox()), "node %d outside frustum", id)
	}

	// Looking away from the data selects nothing.
	away := math.LookAt(eye, math.Vec3{X: 2, Y: 2, Z: 40}, math.Vec3{Y: 1})
	v.View.Frustum = math.NewFrustumFromMatrix(proj.Mul(away))
	assert.Empty(t, m.IdealSet(v))
}

func TestReleasesBeforeAcquires(t *testing.T) {
	tree := scenarioTree(t)
	log := &opLog{Cache: residency.New(tree, newFakeLoader())}
	m := New(log)

	m.Update(scenarioView(0))
	log.ops = nil

	res := m.Update(scenarioView(300))
	require.Equal(t, []hierarchy.NodeID{1, 2}, res.Released)
	require.Equal(t, []hierarchy.NodeID{0}, res.Acquired)
	assert.Equal(t, []string{"release", "release", "acquire"}, log.ops)
}

func TestCorruptedBlockRetried(t *testing.T) {
	m, cache, loader := newManager(t, scenarioTree(t))
	loader.corrupt[1] = true

	res := m.Update(scenarioView(0))
	assert.Equal(t, []hierarchy.NodeID{1}, res.Failed)
	assert.Equal(t, []hierarchy.NodeID{2}, res.Acquired)
	assert.False(t, cache.IsLoaded(1))
	assert.NotContains(t, m.Resident(), hierarchy.NodeID(1))
	assert.Equal(t, 1, loader.loads[1])

	res = m.Update(scenarioView(0))
	assert.Equal(t, []hierarchy.NodeID{1}, res.Failed)
	assert.Equal(t, 2, loader.loads[1], "failed node must be retried")
	assert.Equal(t, 1, loader.loads[2], "resident node must not be reloaded")

	loader.corrupt[1] = false
	res = m.Update(scenarioView(0))
	assert.Empty(t, res.Failed)
	assert.Equal(t, []hierarchy.NodeID{1}, res.Acquired)
	assert.Equal(t, []hierarchy.NodeID{1, 2}, m.Resident())
}

func TestPins(t *testing.T) {
	tree := scenarioTree(t)
	m, cache, _ := newManager(t, tree)

	require.NoError(t, m.InsertIntoWorkingSet(0, false))
	assert.True(t, m.Pinned(0))
	assert.True(t, cache.IsLoaded(0))

	// The pinned root is charged first, leaving room for the near leaf only.
	res := m.Update(scenarioView(700))
	assert.Equal(t, []hierarchy.NodeID{1}, res.Ideal)
	assert.Equal(t, 600, res.Cost)
	assert.Equal(t, []hierarchy.NodeID{0, 1}, m.Resident())

	// A full-resolution pin holds the leaves below the node.
	require.NoError(t, m.InsertIntoWorkingSet(0, true))
	assert.True(t, m.Pinned(2))
	assert.Equal(t, 2, cache.RefCount(1))

	m.RemoveFromWorkingSet(0, true)
	assert.False(t, m.Pinned(2))
	assert.False(t, cache.IsLoaded(2))
	assert.Equal(t, 1, cache.RefCount(1))

	m.RemoveFromWorkingSet(0, false)
	assert.False(t, m.Pinned(0))
	assert.False(t, cache.IsLoaded(0))

	assert.Panics(t, func() { m.RemoveFromWorkingSet(0, false) })
}

func TestPinWithoutData(t *testing.T) {
	b := hierarchy.NewBuilder()
	root := b.AddNode(hierarchy.InvalidNode, hierarchy.Spec{Bounds: box(0, 0, 0, 2, 1, 1)})
	b.AddNode(root, hierarchy.Spec{Bounds: box(0, 0, 0, 1, 1, 1)})
	tree, err := b.Build()
	require.NoError(t, err)

	m, _, _ := newManager(t, tree)
	require.ErrorIs(t, m.InsertIntoWorkingSet(root, false), ErrNothingToPin)
	require.ErrorIs(t, m.InsertIntoWorkingSet(root, true), ErrNothingToPin)
}

func TestPinFailureReleasesPartialTargets(t *testing.T) {
	m, cache, loader := newManager(t, scenarioTree(t))
	loader.corrupt[2] = true

	err := m.InsertIntoWorkingSet(0, true)
	require.ErrorIs(t, err, residency.ErrLoadFailed)
	assert.False(t, cache.IsLoaded(1))
	assert.False(t, m.Pinned(1))
	assert.Zero(t, cache.ResidentNodes())
}

func TestCloseLeavesNothingResident(t *testing.T) {
	m, cache, loader := newManager(t, gridTree(t))

	m.Update(ViewParameters{
		View:             resolution.View{Eye: math.Vec3{X: -1, Y: 2, Z: 2}, ProjectionScale: 1},
		TargetResolution: 4,
	})
	require.NoError(t, m.InsertIntoWorkingSet(0, false))
	require.NoError(t, m.InsertIntoWorkingSet(1, true))
	require.NotZero(t, cache.ResidentNodes())

	m.Close()
	assert.Zero(t, cache.ResidentNodes())
	assert.Zero(t, cache.LoadedBytes())
	assert.Empty(t, loader.live)
	assert.Empty(t, m.Resident())
	require.NoError(t, cache.Check())
}

func TestForEachResident(t *testing.T) {
	m, _, _ := newManager(t, scenarioTree(t))
	m.Update(scenarioView(700))

	points := 0
	var ids []hierarchy.NodeID
	m.ForEachResident(func(n *hierarchy.Node, blocks [][]pcdb.Point) {
		ids = append(ids, n.ID())
		for _, b := range blocks {
			points += len(b)
		}
	})
	assert.Equal(t, []hierarchy.NodeID{0, 1}, ids)
	assert.Equal(t, 600, points)
}
