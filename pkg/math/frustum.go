package math

// Plane is the set of points p with Normal·p + D = 0. Points with a positive
// signed distance are on the inner side.
type Plane struct {
	Normal Vec3
	D      float32
}

// planeFromVec4 builds a normalized plane from (a, b, c, d) coefficients.
func planeFromVec4(v Vec4) Plane {
	n := Vec3{v[0], v[1], v[2]}
	l := n.Length()
	if l == 0 {
		return Plane{}
	}
	return Plane{Normal: n.Scale(1 / l), D: v[3] / l}
}

// SignedDistance returns the signed distance from p to the plane.
func (pl Plane) SignedDistance(p Vec3) float32 {
	return pl.Normal.Dot(p) + pl.D
}

// Frustum is the viewable volume bounded by six planes facing inwards.
type Frustum struct {
	Planes [6]Plane
}

// Frustum plane indices.
const (
	FrustumLeft = iota
	FrustumRight
	FrustumBottom
	FrustumTop
	FrustumNear
	FrustumFar
)

// NewFrustumFromMatrix extracts the clip planes of a combined
// projection*view matrix (Gribb/Hartmann).
func NewFrustumFromMatrix(viewProj Mat4) Frustum {
	r0, r1, r2, r3 := viewProj.Row(0), viewProj.Row(1), viewProj.Row(2), viewProj.Row(3)
	return Frustum{Planes: [6]Plane{
		FrustumLeft:   planeFromVec4(r3.Add(r0)),
		FrustumRight:  planeFromVec4(r3.Sub(r0)),
		FrustumBottom: planeFromVec4(r3.Add(r1)),
		FrustumTop:    planeFromVec4(r3.Sub(r1)),
		FrustumNear:   planeFromVec4(r3.Add(r2)),
		FrustumFar:    planeFromVec4(r3.Sub(r2)),
	}}
}

// ContainsPoint reports whether p is inside all six planes.
func (f Frustum) ContainsPoint(p Vec3) bool {
	for _, pl := range f.Planes {
		if pl.SignedDistance(p) < 0 {
			return false
		}
	}
	return true
}

// IntersectsBox reports whether the box is at least partly inside the
// frustum. The test is conservative: a box near a frustum corner may be
// reported as intersecting although it is outside.
func (f Frustum) IntersectsBox(b Box3) bool {
	if b.IsEmpty() {
		return false
	}
	for _, pl := range f.Planes {
		// Corner furthest along the plane normal.
		p := b.Min
		if pl.Normal.X >= 0 {
			p.X = b.Max.X
		}
		if pl.Normal.Y >= 0 {
			p.Y = b.Max.Y
		}
		if pl.Normal.Z >= 0 {
			p.Z = b.Max.Z
		}
		if pl.SignedDistance(p) < 0 {
			return false
		}
	}
	return true
}
