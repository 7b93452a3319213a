package systems

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	hdmath "github.com/spaghettifunk/hellodog/engine/math"
	"github.com/spaghettifunk/hellodog/engine/renderer/components"
	"github.com/spaghettifunk/hellodog/engine/renderer/frame"
)

const (
	// view mat4, proj mat4, lightPos vec4 under std140.
	SharedUniformSize = 144
	// model mat4
	ModelUniformSize = 64

	FieldOfView float32 = 45.0
	NearPlane   float32 = 0.1
	FarPlane    float32 = 10.0

	// The light circles the z axis at this rate.
	LightDegreesPerSecond float32 = 90.0
)

var LightBase = mgl32.Vec4{1, 1, 1, 0}

// UniformSink is a uniform buffer the CPU can overwrite.
type UniformSink interface {
	Write(data []byte) error
}

// SharedUniforms is the per frame data every geometry shader reads.
type SharedUniforms struct {
	View     mgl32.Mat4
	Proj     mgl32.Mat4
	LightPos mgl32.Vec4
}

func appendFloats(out []byte, fs ...float32) []byte {
	for _, f := range fs {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(f))
	}
	return out
}

// Bytes lays the uniforms out as std140. mgl32 matrices are column major
// like GLSL's.
func (u SharedUniforms) Bytes() []byte {
	out := make([]byte, 0, SharedUniformSize)
	out = appendFloats(out, u.View[:]...)
	out = appendFloats(out, u.Proj[:]...)
	return appendFloats(out, u.LightPos[:]...)
}

func ModelUniformBytes(model mgl32.Mat4) []byte {
	return appendFloats(make([]byte, 0, ModelUniformSize), model[:]...)
}

// SceneUniforms writes the shared uniforms of one presentable image per
// call. Each image has its own buffer, so writing one never races a frame
// still reading another.
type SceneUniforms struct {
	camera *components.Camera
	extent frame.Extent
	sinks  []UniformSink
}

func NewSceneUniforms(camera *components.Camera, extent frame.Extent, sinks []UniformSink) *SceneUniforms {
	return &SceneUniforms{
		camera: camera,
		extent: extent,
		sinks:  sinks,
	}
}

// Compute returns the uniforms for a point in time.
func (su *SceneUniforms) Compute(elapsed float64) SharedUniforms {
	aspect := float32(su.extent.Width) / float32(su.extent.Height)
	return SharedUniforms{
		View:     su.camera.GetView(),
		Proj:     hdmath.PerspectiveVulkan(mgl32.DegToRad(FieldOfView), aspect, NearPlane, FarPlane),
		LightPos: hdmath.RotatingLight(elapsed, LightDegreesPerSecond, LightBase),
	}
}

func (su *SceneUniforms) UpdateSceneUniforms(imageIndex uint32, elapsed float64) error {
	if int(imageIndex) >= len(su.sinks) {
		return errors.Newf("no shared uniform buffer for image %d", imageIndex)
	}
	return su.sinks[imageIndex].Write(su.Compute(elapsed).Bytes())
}
