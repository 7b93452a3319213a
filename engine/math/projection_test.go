package math

import (
	stdmath "math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func approx(a, b float32) bool {
	return stdmath.Abs(float64(a-b)) < 1e-5
}

func TestClamp(t *testing.T) {
	tests := []struct {
		name         string
		v, low, high uint32
		want         uint32
	}{
		{"inside", 5, 1, 10, 5},
		{"below", 0, 1, 10, 1},
		{"above", 11, 1, 10, 10},
		{"edge", 10, 1, 10, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Clamp(tt.v, tt.low, tt.high); got != tt.want {
				t.Errorf("Clamp(%d, %d, %d) = %d, want %d", tt.v, tt.low, tt.high, got, tt.want)
			}
		})
	}

	if got := Clamp(float32(-2.0), -1.5, 1.5); got != -1.5 {
		t.Errorf("float clamp = %v", got)
	}
}

func TestPerspectiveVulkanDepthRange(t *testing.T) {
	near, far := float32(0.1), float32(10.0)
	proj := PerspectiveVulkan(mgl32.DegToRad(45), 800.0/600.0, near, far)

	project := func(z float32) float32 {
		clip := proj.Mul4x1(mgl32.Vec4{0, 0, z, 1})
		return clip[2] / clip[3]
	}
	if d := project(-near); !approx(d, 0) {
		t.Errorf("near plane depth = %v, want 0", d)
	}
	if d := project(-far); !approx(d, 1) {
		t.Errorf("far plane depth = %v, want 1", d)
	}
}

func TestPerspectiveVulkanFlipsY(t *testing.T) {
	proj := PerspectiveVulkan(mgl32.DegToRad(45), 1, 0.1, 10)
	gl := mgl32.Perspective(mgl32.DegToRad(45), 1, 0.1, 10)

	if proj[5] >= 0 {
		t.Fatalf("y scale should be negative, got %v", proj[5])
	}
	if !approx(proj[5], -gl[5]) {
		t.Errorf("y scale = %v, want %v", proj[5], -gl[5])
	}
	if !approx(proj[0], gl[0]) {
		t.Errorf("x scale = %v, want %v", proj[0], gl[0])
	}
}

func TestRotatingLight(t *testing.T) {
	base := mgl32.Vec4{1, 1, 1, 0}

	at0 := RotatingLight(0, 90, base)
	for i := range base {
		if !approx(at0[i], base[i]) {
			t.Fatalf("at t=0 got %v, want %v", at0, base)
		}
	}

	at1 := RotatingLight(1, 90, base)
	want := mgl32.Vec4{-1, 1, 1, 0}
	for i := range want {
		if !approx(at1[i], want[i]) {
			t.Fatalf("at t=1 got %v, want %v", at1, want)
		}
	}
}
