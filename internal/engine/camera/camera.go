// Package camera provides the orbit camera used to browse a dataset.
package camera

import (
	"github.com/chewxy/math32"

	"github.com/Faultbox/surfelview/internal/engine/resolution"
	"github.com/Faultbox/surfelview/pkg/math"
)

// OrbitCamera orbits around a center point.
type OrbitCamera struct {
	// Center point to orbit around
	Center math.Vec3

	// Spherical coordinates
	Distance  float32 // Distance from center
	RotationX float32 // Pitch (vertical angle, radians)
	RotationY float32 // Yaw (horizontal angle, radians)

	// Projection
	FOV  float32 // Vertical field of view, radians
	Near float32
	Far  float32

	// Constraints
	MinDistance float32
	MaxDistance float32
	MinPitch    float32
	MaxPitch    float32

	// Sensitivity
	DragSensitivity float32
	ZoomSensitivity float32
	PanSensitivity  float32
}

// NewOrbitCamera creates a new orbit camera with default settings.
func NewOrbitCamera() *OrbitCamera {
	return &OrbitCamera{
		Distance:        10.0,
		RotationX:       0.5,
		FOV:             math32.Pi / 4,
		Near:            0.01,
		Far:             10000,
		MinDistance:     0.05,
		MaxDistance:     5000.0,
		MinPitch:        -1.5,
		MaxPitch:        1.5,
		DragSensitivity: 0.005,
		ZoomSensitivity: 0.1,
		PanSensitivity:  0.002,
	}
}

// Eye returns the camera position in world space.
func (c *OrbitCamera) Eye() math.Vec3 {
	cosX := math32.Cos(c.RotationX)
	offset := math.Vec3{
		X: c.Distance * cosX * math32.Sin(c.RotationY),
		Y: c.Distance * math32.Sin(c.RotationX),
		Z: c.Distance * cosX * math32.Cos(c.RotationY),
	}
	return c.Center.Add(offset)
}

// ViewMatrix returns the view matrix for this camera.
func (c *OrbitCamera) ViewMatrix() math.Mat4 {
	return math.LookAt(c.Eye(), c.Center, math.Vec3{Y: 1})
}

// ProjectionMatrix returns the perspective projection for the aspect ratio.
func (c *OrbitCamera) ProjectionMatrix(aspect float32) math.Mat4 {
	return math.Perspective(c.FOV, aspect, c.Near, c.Far)
}

// ViewProjection returns projection * view.
func (c *OrbitCamera) ViewProjection(width, height int) math.Mat4 {
	return c.ProjectionMatrix(aspect(width, height)).Mul(c.ViewMatrix())
}

// View returns the camera as seen by the resolution estimator for a
// viewport of the given size.
func (c *OrbitCamera) View(width, height int) resolution.View {
	h := float32(height)
	if h <= 0 {
		h = 1
	}
	return resolution.View{
		Eye:             c.Eye(),
		Frustum:         math.NewFrustumFromMatrix(c.ViewProjection(width, height)),
		ProjectionScale: (h / 2) / math32.Tan(c.FOV/2),
	}
}

func aspect(width, height int) float32 {
	if width <= 0 || height <= 0 {
		return 1
	}
	return float32(width) / float32(height)
}

// HandleDrag updates rotation based on mouse drag delta.
func (c *OrbitCamera) HandleDrag(deltaX, deltaY float32) {
	c.RotationY -= deltaX * c.DragSensitivity
	c.RotationX += deltaY * c.DragSensitivity

	// Clamp pitch
	c.RotationX = math32.Max(c.MinPitch, math32.Min(c.MaxPitch, c.RotationX))
}

// HandleZoom updates distance based on scroll wheel delta.
func (c *OrbitCamera) HandleZoom(delta float32) {
	c.Distance -= delta * c.Distance * c.ZoomSensitivity
	c.Distance = math32.Max(c.MinDistance, math32.Min(c.MaxDistance, c.Distance))
}

// HandlePan moves the center in the view plane based on mouse drag delta.
func (c *OrbitCamera) HandlePan(deltaX, deltaY float32) {
	forward := c.Center.Sub(c.Eye()).Normalize()
	right := forward.Cross(math.Vec3{Y: 1}).Normalize()
	up := right.Cross(forward)

	speed := c.Distance * c.PanSensitivity
	c.Center = c.Center.
		Add(right.Scale(-deltaX * speed)).
		Add(up.Scale(deltaY * speed))
}

// FitToBounds centers the camera on the box and backs off until the whole
// box fits in the vertical field of view.
func (c *OrbitCamera) FitToBounds(b math.Box3) {
	if b.IsEmpty() {
		return
	}
	c.Center = b.Center()

	radius := b.Diagonal() / 2
	if radius <= 0 {
		radius = 1
	}
	c.Distance = 1.1 * radius / math32.Sin(c.FOV/2)
	c.MaxDistance = math32.Max(c.MaxDistance, c.Distance*4)
	c.Far = math32.Max(c.Far, c.Distance+radius*2)

	c.RotationX = 0.5
	c.RotationY = 0.0
}
