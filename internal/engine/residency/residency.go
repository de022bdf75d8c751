// Package residency tracks which nodes have their point blocks in memory.
//
// A Cache reference-counts nodes: the first Acquire loads every block of the
// node through a Loader and later Acquires only bump the count. The last
// Release frees the blocks immediately. The cache is not safe for
// concurrent use; it is driven from the viewer loop.
package residency

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/Faultbox/surfelview/internal/engine/hierarchy"
	"github.com/Faultbox/surfelview/pkg/pcdb"
)

// ErrLoadFailed wraps any error returned by the Loader during Acquire.
var ErrLoadFailed = errors.New("block load failed")

// Loader performs the actual block I/O.
type Loader interface {
	LoadBlock(b hierarchy.Block) ([]pcdb.Point, error)
	FreeBlock(b hierarchy.Block)
}

// Record describes the residency of one node.
type Record struct {
	RefCount int
	Loaded   bool
	Bytes    int64
}

// Stats are cumulative counters since the cache was created.
type Stats struct {
	Loads    int // Blocks loaded
	Frees    int // Blocks freed
	Failures int // Failed Acquire calls
	Hits     int // Acquire calls satisfied without I/O
}

type entry struct {
	refs   int
	points [][]pcdb.Point // One slice per block, in node block order
	bytes  int64
}

// Cache is the residency cache of one tree.
type Cache struct {
	tree    *hierarchy.Tree
	loader  Loader
	log     *zap.Logger
	entries map[hierarchy.NodeID]*entry
	bytes   int64
	stats   Stats
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger used for load and free events.
func WithLogger(log *zap.Logger) Option {
	return func(c *Cache) {
		if log != nil {
			c.log = log
		}
	}
}

// New creates an empty cache over tree.
func New(tree *hierarchy.Tree, loader Loader, opts ...Option) *Cache {
	c := &Cache{
		tree:    tree,
		loader:  loader,
		log:     zap.NewNop(),
		entries: make(map[hierarchy.NodeID]*entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Tree returns the tree the cache was created for.
func (c *Cache) Tree() *hierarchy.Tree {
	return c.tree
}

// Acquire takes a reference on id, loading its blocks if it was not resident.
// On failure no reference is taken and any partially loaded blocks are freed.
func (c *Cache) Acquire(id hierarchy.NodeID) error {
	node := c.tree.Node(id)

	if e, ok := c.entries[id]; ok {
		e.refs++
		c.stats.Hits++
		return nil
	}

	blocks := node.Blocks()
	e := &entry{refs: 1, points: make([][]pcdb.Point, 0, len(blocks))}
	for i, b := range blocks {
		points, err := c.loader.LoadBlock(b)
		if err != nil {
			for _, loaded := range blocks[:i] {
				c.loader.FreeBlock(loaded)
			}
			c.stats.Failures++
			instrumentAcquireFailure()
			c.log.Warn("acquire failed",
				zap.Int32("node", int32(id)),
				zap.Int32("block", int32(b.ID)),
				zap.Error(err))
			return fmt.Errorf("%w: node %d block %d: %v", ErrLoadFailed, id, b.ID, err)
		}
		e.points = append(e.points, points)
		e.bytes += int64(len(points)) * pcdb.PointSize
	}

	c.stats.Loads += len(blocks)
	c.entries[id] = e
	c.bytes += e.bytes
	instrumentLoad(len(blocks), e.bytes)

	c.log.Debug("node loaded",
		zap.Int32("node", int32(id)),
		zap.Int("blocks", len(blocks)),
		zap.Int64("bytes", e.bytes))
	return nil
}

// Release drops a reference on id and frees its blocks when the count
// reaches zero. Releasing a node that holds no reference panics.
func (c *Cache) Release(id hierarchy.NodeID) {
	node := c.tree.Node(id)

	e, ok := c.entries[id]
	if !ok {
		panic(fmt.Sprintf("residency: release of node %d without acquire", id))
	}

	e.refs--
	if e.refs > 0 {
		return
	}

	for _, b := range node.Blocks() {
		c.loader.FreeBlock(b)
	}
	delete(c.entries, id)
	c.bytes -= e.bytes
	c.stats.Frees += len(node.Blocks())
	instrumentFree(e.bytes)

	c.log.Debug("node freed",
		zap.Int32("node", int32(id)),
		zap.Int64("bytes", e.bytes))
}

// Record returns the residency record of id.
func (c *Cache) Record(id hierarchy.NodeID) Record {
	c.tree.Node(id)
	e, ok := c.entries[id]
	if !ok {
		return Record{}
	}
	return Record{RefCount: e.refs, Loaded: true, Bytes: e.bytes}
}

// RefCount returns the number of outstanding references on id.
func (c *Cache) RefCount(id hierarchy.NodeID) int {
	return c.Record(id).RefCount
}

// IsLoaded reports whether the blocks of id are in memory.
func (c *Cache) IsLoaded(id hierarchy.NodeID) bool {
	return c.Record(id).Loaded
}

// Points returns the loaded points of id, one slice per block, or nil if
// the node is not resident. Callers must not modify the points.
func (c *Cache) Points(id hierarchy.NodeID) [][]pcdb.Point {
	if e, ok := c.entries[id]; ok {
		return e.points
	}
	return nil
}

// ResidentNodes returns the number of nodes with a positive refcount.
func (c *Cache) ResidentNodes() int {
	return len(c.entries)
}

// LoadedBytes returns the memory held by resident blocks.
func (c *Cache) LoadedBytes() int64 {
	return c.bytes
}

// Stats returns cumulative counters.
func (c *Cache) Stats() Stats {
	return c.stats
}

// Resident returns the resident node ids in ascending order.
func (c *Cache) Resident() []hierarchy.NodeID {
	ids := make([]hierarchy.NodeID, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ForEachResident calls fn for every resident node in ascending id order.
func (c *Cache) ForEachResident(fn func(id hierarchy.NodeID, points [][]pcdb.Point)) {
	for _, id := range c.Resident() {
		fn(id, c.entries[id].points)
	}
}

// Check verifies the residency invariants: every record has a positive
// refcount and loaded data for all of its blocks, and the byte total matches.
func (c *Cache) Check() error {
	var total int64
	for id, e := range c.entries {
		if e.refs <= 0 {
			return fmt.Errorf("node %d: loaded with refcount %d", id, e.refs)
		}
		if n := len(c.tree.Node(id).Blocks()); len(e.points) != n {
			return fmt.Errorf("node %d: %d of %d blocks loaded", id, len(e.points), n)
		}
		total += e.bytes
	}
	if total != c.bytes {
		return fmt.Errorf("loaded bytes %d, records sum to %d", c.bytes, total)
	}
	return nil
}

// ReleaseAll drops every outstanding reference and frees all blocks. It
// returns the number of nodes that were still resident.
func (c *Cache) ReleaseAll() int {
	ids := c.Resident()
	for _, id := range ids {
		for c.entries[id] != nil {
			c.Release(id)
		}
	}
	if len(ids) > 0 {
		c.log.Debug("released all nodes", zap.Int("nodes", len(ids)))
	}
	return len(ids)
}
