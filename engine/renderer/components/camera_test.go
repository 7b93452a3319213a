package components

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

const epsilon = 1e-4

// near compares component by component with an absolute tolerance. mgl32's
// ApproxEqualThreshold squares the threshold when either side is zero, which
// float32 trig noise around 1e-7 does not meet.
func near(got, want []float32) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if math.Abs(float64(got[i]-want[i])) > epsilon {
			return false
		}
	}
	return true
}

func vec3Near(got, want mgl32.Vec3) bool { return near(got[:], want[:]) }

func vec4Near(got, want mgl32.Vec4) bool { return near(got[:], want[:]) }

func mat4Near(got, want mgl32.Mat4) bool { return near(got[:], want[:]) }

func TestCameraDefaults(t *testing.T) {
	c := NewCamera(mgl32.Vec3{3, 1, 0})

	if c.Yaw != DefaultYaw || c.Speed != DefaultSpeed || c.Sensitivity != DefaultSensitivity {
		t.Errorf("unexpected defaults %+v", c)
	}
	// Yaw 180 looks down -x.
	if !vec3Near(c.Forward(), mgl32.Vec3{-1, 0, 0}) {
		t.Errorf("forward = %v, want -x", c.Forward())
	}
	if !vec3Near(c.Up(), WorldUp) {
		t.Errorf("up = %v, want +z", c.Up())
	}
}

func TestCameraMove(t *testing.T) {
	c := NewCamera(mgl32.Vec3{3, 1, 0})

	c.MoveForward(2)
	// 2.5 units per second for 2 seconds.
	if !vec3Near(c.Position, mgl32.Vec3{-2, 1, 0}) {
		t.Errorf("position = %v after moving forward", c.Position)
	}

	c.MoveBackward(2)
	if !vec3Near(c.Position, mgl32.Vec3{3, 1, 0}) {
		t.Errorf("position = %v after moving back", c.Position)
	}

	// Looking down -x, right is +y.
	c.MoveRight(1)
	if !vec3Near(c.Position, mgl32.Vec3{3, 3.5, 0}) {
		t.Errorf("position = %v after strafing right", c.Position)
	}
	c.MoveLeft(1)
	c.MoveUp(1)
	if !vec3Near(c.Position, mgl32.Vec3{3, 1, 2.5}) {
		t.Errorf("position = %v after moving up", c.Position)
	}
}

func TestCameraLookClampsPitch(t *testing.T) {
	c := NewCamera(mgl32.Vec3{})

	c.Look(0, 10000)
	if c.Pitch != 89 {
		t.Errorf("pitch = %v, want 89", c.Pitch)
	}
	c.Look(0, -20000)
	if c.Pitch != -89 {
		t.Errorf("pitch = %v, want -89", c.Pitch)
	}
}

func TestCameraLookTurns(t *testing.T) {
	c := NewCamera(mgl32.Vec3{})

	// 900 pixels at 0.1 degrees each is a quarter turn to the right.
	c.Look(900, 0)
	if math.Abs(float64(c.Yaw-90)) > epsilon {
		t.Errorf("yaw = %v, want 90", c.Yaw)
	}
	if !vec3Near(c.Forward(), mgl32.Vec3{0, 1, 0}) {
		t.Errorf("forward = %v, want +y", c.Forward())
	}
}

func TestCameraViewMatchesLookAt(t *testing.T) {
	c := NewCamera(mgl32.Vec3{3, 1, 0})

	want := mgl32.LookAtV(mgl32.Vec3{3, 1, 0}, mgl32.Vec3{2, 1, 0}, mgl32.Vec3{0, 0, 1})
	if !mat4Near(c.GetView(), want) {
		t.Errorf("view = %v, want %v", c.GetView(), want)
	}

	// The view is rebuilt after a move.
	c.SetPosition(mgl32.Vec3{0, 0, 0})
	origin := c.GetView().Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	if !vec4Near(origin, mgl32.Vec4{0, 0, 0, 1}) {
		t.Errorf("camera position maps to %v in view space", origin)
	}
}

func TestNearToleratesTrigNoise(t *testing.T) {
	// cos(90 degrees) in float32.
	noisy := mgl32.Vec3{-1, -8.742278e-08, 0}
	if !vec3Near(noisy, mgl32.Vec3{-1, 0, 0}) {
		t.Error("trig noise next to a zero component should compare equal")
	}
	if vec3Near(mgl32.Vec3{-1, 0.01, 0}, mgl32.Vec3{-1, 0, 0}) {
		t.Error("a real difference should not compare equal")
	}
}
