package math

import (
	"testing"

	"github.com/chewxy/math32"
)

func TestInverse(t *testing.T) {
	m := Perspective(math32.Pi/3, 1.5, 0.1, 100).Mul(LookAt(Vec3{3, 4, 5}, Vec3{}, Vec3{0, 1, 0}))
	got := m.Mul(m.Inverse())
	want := Identity()
	for i := range want {
		if abs(got[i]-want[i]) > 1e-4 {
			t.Fatalf("m * m^-1 [%d] = %v, want %v", i, got[i], want[i])
		}
	}

	var singular Mat4
	if singular.Inverse() != Identity() {
		t.Error("singular matrix should invert to identity")
	}
}

func TestScreenToRayCenter(t *testing.T) {
	eye := Vec3{0, 0, 10}
	vp := Perspective(math32.Pi/2, 1, 1, 100).Mul(LookAt(eye, Vec3{}, Vec3{0, 1, 0}))

	r := ScreenToRay(50, 50, 100, 100, vp.Inverse())
	if abs(r.Direction.X) > 1e-4 || abs(r.Direction.Y) > 1e-4 || abs(r.Direction.Z+1) > 1e-4 {
		t.Errorf("center ray direction = %+v, want (0,0,-1)", r.Direction)
	}
	if abs(r.Origin.Z-9) > 1e-3 {
		t.Errorf("center ray origin = %+v, want on near plane z=9", r.Origin)
	}
}

func TestRayIntersectBox(t *testing.T) {
	box := NewBox3(Vec3{-1, -1, -1}, Vec3{1, 1, 1})

	tests := []struct {
		name    string
		ray     Ray
		wantHit bool
		wantT   float32
	}{
		{"hit from front", Ray{Vec3{0, 0, 10}, Vec3{0, 0, -1}}, true, 9},
		{"inside", Ray{Vec3{0, 0, 0}, Vec3{1, 0, 0}}, true, 1},
		{"pointing away", Ray{Vec3{0, 0, 10}, Vec3{0, 0, 1}}, false, 0},
		{"parallel outside", Ray{Vec3{5, 0, 10}, Vec3{0, 0, -1}}, false, 0},
		{"diagonal", Ray{Vec3{-5, -5, 0}, Vec3{1, 1, 0}.Normalize()}, true, 4 * math32.Sqrt(2)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, hit := tc.ray.IntersectBox(box)
			if hit != tc.wantHit {
				t.Fatalf("hit = %v, want %v", hit, tc.wantHit)
			}
			if hit && abs(got-tc.wantT) > 1e-4 {
				t.Errorf("t = %v, want %v", got, tc.wantT)
			}
		})
	}

	if _, hit := (Ray{Vec3{}, Vec3{1, 0, 0}}).IntersectBox(EmptyBox3()); hit {
		t.Error("empty box should never be hit")
	}
}
