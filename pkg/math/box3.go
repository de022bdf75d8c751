package math

import "github.com/chewxy/math32"

// Box3 is an axis-aligned bounding box. A box with Min > Max on any axis is
// empty; EmptyBox3 returns the canonical empty box that grows with Extend.
type Box3 struct {
	Min Vec3
	Max Vec3
}

// NewBox3 creates a box from two corners, swapping components so Min <= Max.
func NewBox3(a, b Vec3) Box3 {
	return Box3{Min: a.Min(b), Max: a.Max(b)}
}

// EmptyBox3 returns a box that contains nothing.
func EmptyBox3() Box3 {
	inf := float32(math32.MaxFloat32)
	return Box3{
		Min: Vec3{inf, inf, inf},
		Max: Vec3{-inf, -inf, -inf},
	}
}

// IsEmpty reports whether the box contains no points.
func (b Box3) IsEmpty() bool {
	return b.Min.X > b.Max.X || b.Min.Y > b.Max.Y || b.Min.Z > b.Max.Z
}

// IsDegenerate reports whether the box has collapsed to a single point.
func (b Box3) IsDegenerate() bool {
	return !b.IsEmpty() && b.Min == b.Max
}

// Extend returns the box grown to include p.
func (b Box3) Extend(p Vec3) Box3 {
	return Box3{Min: b.Min.Min(p), Max: b.Max.Max(p)}
}

// Union returns the smallest box containing both boxes.
func (b Box3) Union(other Box3) Box3 {
	if other.IsEmpty() {
		return b
	}
	if b.IsEmpty() {
		return other
	}
	return Box3{Min: b.Min.Min(other.Min), Max: b.Max.Max(other.Max)}
}

// Center returns the midpoint of the box.
func (b Box3) Center() Vec3 {
	return b.Min.Add(b.Max).Scale(0.5)
}

// Size returns the extent along each axis.
func (b Box3) Size() Vec3 {
	if b.IsEmpty() {
		return Vec3{}
	}
	return b.Max.Sub(b.Min)
}

// Diagonal returns the length of the box diagonal.
func (b Box3) Diagonal() float32 {
	return b.Size().Length()
}

// LargestFaceArea returns the area of the biggest face of the box, used as
// the surface a point sample is spread over.
func (b Box3) LargestFaceArea() float32 {
	s := b.Size()
	return math32.Max(s.X*s.Y, math32.Max(s.Y*s.Z, s.X*s.Z))
}

// ContainsPoint reports whether p lies inside or on the box.
func (b Box3) ContainsPoint(p Vec3) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// Contains reports whether other lies entirely inside b.
func (b Box3) Contains(other Box3) bool {
	if other.IsEmpty() {
		return true
	}
	return b.ContainsPoint(other.Min) && b.ContainsPoint(other.Max)
}

// Intersects reports whether the boxes touch or overlap.
func (b Box3) Intersects(other Box3) bool {
	if b.IsEmpty() || other.IsEmpty() {
		return false
	}
	return b.Min.X <= other.Max.X && b.Max.X >= other.Min.X &&
		b.Min.Y <= other.Max.Y && b.Max.Y >= other.Min.Y &&
		b.Min.Z <= other.Max.Z && b.Max.Z >= other.Min.Z
}

// OverlapsInterior reports whether the boxes share volume. Boxes that only
// share a face, edge or corner do not overlap.
func (b Box3) OverlapsInterior(other Box3) bool {
	if b.IsEmpty() || other.IsEmpty() {
		return false
	}
	return b.Min.X < other.Max.X && b.Max.X > other.Min.X &&
		b.Min.Y < other.Max.Y && b.Max.Y > other.Min.Y &&
		b.Min.Z < other.Max.Z && b.Max.Z > other.Min.Z
}

// ClosestPoint returns the point of the box nearest to p.
func (b Box3) ClosestPoint(p Vec3) Vec3 {
	return Vec3{
		math32.Max(b.Min.X, math32.Min(p.X, b.Max.X)),
		math32.Max(b.Min.Y, math32.Min(p.Y, b.Max.Y)),
		math32.Max(b.Min.Z, math32.Min(p.Z, b.Max.Z)),
	}
}

// Distance returns the distance from p to the box, zero when p is inside.
func (b Box3) Distance(p Vec3) float32 {
	return b.ClosestPoint(p).Distance(p)
}

// Corners returns the eight corners of the box.
func (b Box3) Corners() [8]Vec3 {
	var c [8]Vec3
	for i := 0; i < 8; i++ {
		c[i] = b.cornerFor(i)
	}
	return c
}

// Octant returns the i-th (0..7) octant of the box. Bit 0 selects the upper
// half in X, bit 1 in Y and bit 2 in Z.
func (b Box3) Octant(i int) Box3 {
	c := b.Center()
	o := Box3{Min: b.Min, Max: c}
	if i&1 != 0 {
		o.Min.X, o.Max.X = c.X, b.Max.X
	}
	if i&2 != 0 {
		o.Min.Y, o.Max.Y = c.Y, b.Max.Y
	}
	if i&4 != 0 {
		o.Min.Z, o.Max.Z = c.Z, b.Max.Z
	}
	return o
}

// OctantOf returns the index of the octant of b that contains p.
func (b Box3) OctantOf(p Vec3) int {
	c := b.Center()
	i := 0
	if p.X > c.X {
		i |= 1
	}
	if p.Y > c.Y {
		i |= 2
	}
	if p.Z > c.Z {
		i |= 4
	}
	return i
}

func (b Box3) cornerFor(i int) Vec3 {
	p := b.Min
	if i&1 != 0 {
		p.X = b.Max.X
	}
	if i&2 != 0 {
		p.Y = b.Max.Y
	}
	if i&4 != 0 {
		p.Z = b.Max.Z
	}
	return p
}

// Wireframe returns line vertices for the box outline.
// Returns 24 vertices (12 edges × 2 endpoints), format: [x, y, z] per vertex.
func (b Box3) Wireframe() []float32 {
	minX, minY, minZ := b.Min.X, b.Min.Y, b.Min.Z
	maxX, maxY, maxZ := b.Max.X, b.Max.Y, b.Max.Z
	return []float32{
		// Bottom face
		minX, minY, minZ, maxX, minY, minZ,
		maxX, minY, minZ, maxX, minY, maxZ,
		maxX, minY, maxZ, minX, minY, maxZ,
		minX, minY, maxZ, minX, minY, minZ,
		// Top face
		minX, maxY, minZ, maxX, maxY, minZ,
		maxX, maxY, minZ, maxX, maxY, maxZ,
		maxX, maxY, maxZ, minX, maxY, maxZ,
		minX, maxY, maxZ, minX, maxY, minZ,
		// Vertical edges
		minX, minY, minZ, minX, maxY, minZ,
		maxX, minY, minZ, maxX, maxY, minZ,
		maxX, minY, maxZ, maxX, maxY, maxZ,
		minX, minY, maxZ, minX, maxY, maxZ,
	}
}

// WireframeVertexCount is the number of vertices returned by Wireframe.
const WireframeVertexCount = 24
