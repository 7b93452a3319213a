package math

import (
	stdmath "math"

	"github.com/go-gl/mathgl/mgl32"
)

// PerspectiveVulkan builds a right handed perspective projection with depth
// mapped to [0, 1] and the y axis pointing down in clip space.
func PerspectiveVulkan(fovy, aspect, near, far float32) mgl32.Mat4 {
	f := float32(1.0 / stdmath.Tan(float64(fovy)/2.0))

	m := mgl32.Mat4{}
	m[0] = f / aspect
	m[5] = -f
	m[10] = far / (near - far)
	m[11] = -1
	m[14] = (near * far) / (near - far)
	return m
}

// RotatingLight returns base rotated around the z axis by degreesPerSecond
// for the given number of seconds.
func RotatingLight(seconds float64, degreesPerSecond float32, base mgl32.Vec4) mgl32.Vec4 {
	angle := float32(seconds) * mgl32.DegToRad(degreesPerSecond)
	return mgl32.HomogRotate3DZ(angle).Mul4x1(base)
}
