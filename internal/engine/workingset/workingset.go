// Package workingset computes which nodes should be resident for a view and
// converges the residency cache toward that set.
//
// Each Update walks the hierarchy from the root, keeps the coarsest nodes
// whose data is fine enough for the view, trims the result to the
// complexity budget and then releases and acquires nodes so that the cache
// holds exactly that set. Manual pins are kept on top of the policy set.
package workingset

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/surfelview/internal/engine/hierarchy"
	"github.com/Faultbox/surfelview/internal/engine/resolution"
	"github.com/Faultbox/surfelview/pkg/math"
	"github.com/Faultbox/surfelview/pkg/pcdb"
)

// ErrNothingToPin is returned when a pin request covers no point data.
var ErrNothingToPin = errors.New("node has no point data to pin")

// Cache is the residency interface the manager drives.
type Cache interface {
	Tree() *hierarchy.Tree
	Acquire(id hierarchy.NodeID) error
	Release(id hierarchy.NodeID)
	Points(id hierarchy.NodeID) [][]pcdb.Point
}

// ViewParameters are the inputs of one Update.
type ViewParameters struct {
	View             resolution.View
	FocusPoint       math.Vec3
	TargetResolution float32
	FocusRadius      float32
	Budget           int // Maximum resident point count, zero or less for no limit
}

func (v ViewParameters) params() resolution.Params {
	return resolution.Params{
		View:             v.View,
		TargetResolution: v.TargetResolution,
		FocusPoint:       v.FocusPoint,
		FocusRadius:      v.FocusRadius,
	}
}

// Result summarizes one Update.
type Result struct {
	Ideal    []hierarchy.NodeID // Policy set after the budget, ascending
	Acquired []hierarchy.NodeID
	Released []hierarchy.NodeID
	Failed   []hierarchy.NodeID // Acquire failed; retried on the next Update
	Cost     int                // Points held by the ideal set and pins
	Dropped  int                // Nodes removed to meet the budget
	Elapsed  time.Duration
}

type pinKey struct {
	id   hierarchy.NodeID
	full bool
}

// Manager owns the working set of one cache.
type Manager struct {
	cache     Cache
	tree      *hierarchy.Tree
	estimator *resolution.Estimator
	log       *zap.Logger

	current map[hierarchy.NodeID]struct{} // Acquired by Update
	pins    map[pinKey]int
	pinned  map[hierarchy.NodeID]int // References held by pins
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(log *zap.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithEstimator replaces the default resolution estimator.
func WithEstimator(e *resolution.Estimator) Option {
	return func(m *Manager) {
		if e != nil {
			m.estimator = e
		}
	}
}

// New creates a manager with an empty working set.
func New(cache Cache, opts ...Option) *Manager {
	m := &Manager{
		cache:     cache,
		tree:      cache.Tree(),
		estimator: resolution.NewEstimator(),
		log:       zap.NewNop(),
		current:   make(map[hierarchy.NodeID]struct{}),
		pins:      make(map[pinKey]int),
		pinned:    make(map[hierarchy.NodeID]int),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Estimator returns the estimator used by the manager.
func (m *Manager) Estimator() *resolution.Estimator {
	return m.estimator
}

// IdealSet computes the budgeted policy set for v without touching the cache.
func (m *Manager) IdealSet(v ViewParameters) []hierarchy.NodeID {
	ideal, _, _ := m.plan(v)
	return ideal
}

// Update converges the cache toward the ideal set of v. Releases are issued
// before acquires. Nodes whose acquire fails are left out and retried on the
// next call.
func (m *Manager) Update(v ViewParameters) Result {
	start := time.Now()

	ideal, cost, dropped := m.plan(v)
	res := Result{Ideal: ideal, Cost: cost, Dropped: dropped}

	want := make(map[hierarchy.NodeID]struct{}, len(ideal))
	for _, id := range ideal {
		want[id] = struct{}{}
	}

	for _, id := range sortedIDs(m.current) {
		if _, ok := want[id]; ok {
			continue
		}
		m.cache.Release(id)
		delete(m.current, id)
		res.Released = append(res.Released, id)
	}

	for _, id := range ideal {
		if _, ok := m.current[id]; ok {
			continue
		}
		if err := m.cache.Acquire(id); err != nil {
			m.log.Warn("node excluded from working set",
				zap.Int32("node", int32(id)),
				zap.Error(err))
			res.Failed = append(res.Failed, id)
			continue
		}
		m.current[id] = struct{}{}
		res.Acquired = append(res.Acquired, id)
	}

	res.Elapsed = time.Since(start)
	instrumentUpdate(res)

	if len(res.Acquired) > 0 || len(res.Released) > 0 || len(res.Failed) > 0 {
		m.log.Debug("working set updated",
			zap.Int("ideal", len(res.Ideal)),
			zap.Int("acquired", len(res.Acquired)),
			zap.Int("released", len(res.Released)),
			zap.Int("failed", len(res.Failed)),
			zap.Int("cost", res.Cost),
			zap.Int("dropped", res.Dropped),
			zap.Duration("elapsed", res.Elapsed))
	}
	return res
}

// plan returns the ideal set in ascending order, its cost including pins and
// the number of nodes dropped for the budget.
func (m *Manager) plan(v ViewParameters) ([]hierarchy.NodeID, int, int) {
	p := v.params()
	selected, cost, dropped := m.enforceBudget(m.collect(p), p, v.Budget)

	ideal := make([]hierarchy.NodeID, 0, len(selected))
	for id := range selected {
		ideal = append(ideal, id)
	}
	sort.Slice(ideal, func(i, j int) bool { return ideal[i] < ideal[j] })
	return ideal, cost, dropped
}

// collect walks the tree and returns the nodes whose own data satisfies the
// view, or the finest available data where refinement is impossible.
func (m *Manager) collect(p resolution.Params) []candidate {
	var out []candidate
	m.tree.Walk(m.tree.Root(), func(n *hierarchy.Node) bool {
		est := m.estimator.Estimate(n, p)
		switch est.Verdict {
		case resolution.Reject:
			return false
		case resolution.Sufficient:
			out = append(out, candidate{id: n.ID(), cost: n.Cost(), est: est})
			return false
		}
		if n.IsLeaf() {
			if n.HasBlocks() {
				out = append(out, candidate{id: n.ID(), cost: n.Cost(), est: est})
			}
			return false
		}
		return true
	})
	return out
}

// enforceBudget drops the lowest-priority candidates until the total cost
// fits. Each dropped node is replaced by its nearest ancestor with data that
// still fits, unless an ancestor already covers the region.
func (m *Manager) enforceBudget(cands []candidate, p resolution.Params, budget int) (map[hierarchy.NodeID]candidate, int, int) {
	used := m.pinnedCost()
	selected := make(map[hierarchy.NodeID]candidate, len(cands))
	for _, c := range cands {
		selected[c.id] = c
		if m.pinned[c.id] == 0 {
			used += c.cost
		}
	}
	if budget <= 0 || used <= budget {
		return selected, used, 0
	}

	h := make(dropQueue, 0, len(cands))
	for _, c := range cands {
		h.push(c)
	}

	dropped := 0
	for used > budget && h.Len() > 0 {
		c := h.pop()
		delete(selected, c.id)
		if m.pinned[c.id] == 0 {
			used -= c.cost
		}
		dropped++

		ancestors := m.tree.Ancestors(c.id)
		if m.covered(ancestors, selected) {
			continue
		}
		for _, a := range ancestors {
			anc := m.tree.Node(a)
			if !anc.HasBlocks() || used+anc.Cost() > budget {
				continue
			}
			sub := candidate{id: a, cost: anc.Cost(), est: m.estimator.Estimate(anc, p)}
			selected[a] = sub
			used += sub.cost
			h.push(sub)
			break
		}
	}

	instrumentBudgetDrops(dropped)
	return selected, used, dropped
}

// covered reports whether any of ids is selected or pinned.
func (m *Manager) covered(ids []hierarchy.NodeID, selected map[hierarchy.NodeID]candidate) bool {
	for _, id := range ids {
		if _, ok := selected[id]; ok || m.pinned[id] > 0 {
			return true
		}
	}
	return false
}

func (m *Manager) pinnedCost() int {
	cost := 0
	for id := range m.pinned {
		cost += m.tree.Node(id).Cost()
	}
	return cost
}

// pinTargets returns the nodes a pin on id holds. A full-resolution pin holds
// the leaves with data below id.
func (m *Manager) pinTargets(id hierarchy.NodeID, full bool) []hierarchy.NodeID {
	n := m.tree.Node(id)
	if full {
		var leaves []hierarchy.NodeID
		for _, l := range m.tree.Leaves(id) {
			if m.tree.Node(l).HasBlocks() {
				leaves = append(leaves, l)
			}
		}
		if len(leaves) > 0 {
			return leaves
		}
	}
	if n.HasBlocks() {
		return []hierarchy.NodeID{id}
	}
	return nil
}

// InsertIntoWorkingSet pins id regardless of the view. With fullResolution
// the finest stored data below id is pinned, otherwise the node's own
// blocks. Pins are charged against the budget before the policy set.
func (m *Manager) InsertIntoWorkingSet(id hierarchy.NodeID, fullResolution bool) error {
	targets := m.pinTargets(id, fullResolution)
	if len(targets) == 0 {
		return fmt.Errorf("%w: node %d", ErrNothingToPin, id)
	}

	for i, t := range targets {
		if err := m.cache.Acquire(t); err != nil {
			for _, r := range targets[:i] {
				m.cache.Release(r)
			}
			return fmt.Errorf("pinning node %d: %w", id, err)
		}
	}
	for _, t := range targets {
		m.pinned[t]++
	}
	m.pins[pinKey{id, fullResolution}]++

	m.log.Debug("node pinned",
		zap.Int32("node", int32(id)),
		zap.Bool("full", fullResolution),
		zap.Int("targets", len(targets)))
	return nil
}

// RemoveFromWorkingSet drops a pin created by InsertIntoWorkingSet with the
// same arguments. Removing a pin that does not exist panics.
func (m *Manager) RemoveFromWorkingSet(id hierarchy.NodeID, fullResolution bool) {
	key := pinKey{id, fullResolution}
	if m.pins[key] == 0 {
		panic(fmt.Sprintf("workingset: remove of node %d (full=%t) without insert", id, fullResolution))
	}

	for _, t := range m.pinTargets(id, fullResolution) {
		m.cache.Release(t)
		if m.pinned[t]--; m.pinned[t] == 0 {
			delete(m.pinned, t)
		}
	}
	if m.pins[key]--; m.pins[key] == 0 {
		delete(m.pins, key)
	}
}

// Pinned reports whether id is held by any pin.
func (m *Manager) Pinned(id hierarchy.NodeID) bool {
	return m.pinned[id] > 0
}

// Resident returns the nodes held by the policy set or by pins, ascending.
func (m *Manager) Resident() []hierarchy.NodeID {
	all := make(map[hierarchy.NodeID]struct{}, len(m.current)+len(m.pinned))
	for id := range m.current {
		all[id] = struct{}{}
	}
	for id := range m.pinned {
		all[id] = struct{}{}
	}
	return sortedIDs(all)
}

// ForEachResident calls fn with the loaded points of every resident node.
func (m *Manager) ForEachResident(fn func(n *hierarchy.Node, points [][]pcdb.Point)) {
	for _, id := range m.Resident() {
		fn(m.tree.Node(id), m.cache.Points(id))
	}
}

// Close releases the policy set and every pin.
func (m *Manager) Close() {
	for _, id := range sortedIDs(m.current) {
		m.cache.Release(id)
	}
	for id, refs := range m.pinned {
		for i := 0; i < refs; i++ {
			m.cache.Release(id)
		}
	}
	m.current = make(map[hierarchy.NodeID]struct{})
	m.pins = make(map[pinKey]int)
	m.pinned = make(map[hierarchy.NodeID]int)
	instrumentClose()
}

func sortedIDs[V any](set map[hierarchy.NodeID]V) []hierarchy.NodeID {
	ids := make([]hierarchy.NodeID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
