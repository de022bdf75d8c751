// Package resolution decides whether a node's stored data is fine enough for
// the current view or whether its children must be used instead.
package resolution

import (
	"github.com/Faultbox/surfelview/internal/engine/hierarchy"
	"github.com/Faultbox/surfelview/pkg/math"
)

// Verdict is the outcome of testing one node against a view.
type Verdict int

const (
	// Refine means the node is too coarse; its children should be used.
	Refine Verdict = iota
	// Sufficient means the node's own blocks are fine enough.
	Sufficient
	// Reject means the node is outside the view frustum.
	Reject
)

func (v Verdict) String() string {
	switch v {
	case Refine:
		return "refine"
	case Sufficient:
		return "sufficient"
	case Reject:
		return "reject"
	default:
		return "unknown"
	}
}

// View is what the estimator needs to know about the camera.
//
// ProjectionScale is the number of pixels covered by one world unit at unit
// distance from the eye. A zero Frustum has degenerate planes and accepts
// every box.
type View struct {
	Eye             math.Vec3
	Frustum         math.Frustum
	ProjectionScale float32
}

// Params are the per-update inputs of an estimate.
type Params struct {
	View             View
	TargetResolution float32 // Required samples per pixel
	FocusPoint       math.Vec3
	FocusRadius      float32 // Zero disables focus weighting
}

// Estimate is the detailed result of testing one node.
type Estimate struct {
	Verdict       Verdict
	Projected     float32 // Stored samples per pixel at the node's closest point
	Required      float32 // Target after focus weighting
	EyeDistance   float32
	FocusDistance float32
	InsideFocus   bool
}

// Deficit is how far the node falls short of the required resolution.
// Negative values are a surplus.
func (e Estimate) Deficit() float32 {
	return e.Required - e.Projected
}

// DefaultOutsideFocusFactor relaxes the target by 4x outside the focus radius.
const DefaultOutsideFocusFactor = 4

// Estimator applies the resolution test. The zero value is not usable; use
// NewEstimator.
type Estimator struct {
	// OutsideFocusFactor divides the required resolution for nodes outside
	// the focus radius. +Inf never refines outside focus.
	OutsideFocusFactor float32
}

// NewEstimator creates an estimator with the default focus factor.
func NewEstimator() *Estimator {
	return &Estimator{OutsideFocusFactor: DefaultOutsideFocusFactor}
}

// Estimate tests node n against p.
func (e *Estimator) Estimate(n *hierarchy.Node, p Params) Estimate {
	bounds := n.BoundingBox()

	est := Estimate{
		EyeDistance:   bounds.Distance(p.View.Eye),
		FocusDistance: bounds.Distance(p.FocusPoint),
		Required:      p.TargetResolution,
	}
	est.InsideFocus = p.FocusRadius <= 0 || est.FocusDistance <= p.FocusRadius

	if !p.View.Frustum.IntersectsBox(bounds) {
		est.Verdict = Reject
		return est
	}

	if !est.InsideFocus && e.OutsideFocusFactor > 0 {
		est.Required /= e.OutsideFocusFactor
	}

	scale := p.View.ProjectionScale
	if scale <= 0 {
		scale = 1
	}
	est.Projected = n.Resolution() * est.EyeDistance / scale

	switch {
	case !n.HasBlocks():
		est.Verdict = Refine
	case bounds.IsDegenerate():
		est.Verdict = Sufficient
	case est.Projected >= est.Required:
		est.Verdict = Sufficient
	default:
		est.Verdict = Refine
	}
	return est
}

// Sufficient is shorthand for Estimate(n, p).Verdict == Sufficient.
func (e *Estimator) Sufficient(n *hierarchy.Node, p Params) bool {
	return e.Estimate(n, p).Verdict == Sufficient
}
