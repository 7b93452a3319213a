package components

import (
	stdmath "math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/hellodog/engine/math"
)

const (
	DefaultYaw         float32 = 180.0
	DefaultPitch       float32 = 0.0
	DefaultSpeed       float32 = 2.5
	DefaultSensitivity float32 = 0.1

	// Beyond this the view flips.
	pitchLimit float32 = 89.0
)

// WorldUp is +z.
var WorldUp = mgl32.Vec3{0, 0, 1}

/**
 * @brief A free-look camera. Yaw and pitch are in degrees; yaw 0 looks
 * down +x, pitch rotates towards +z.
 */
type Camera struct {
	/** @brief The position of this camera. */
	Position mgl32.Vec3
	Yaw      float32
	Pitch    float32
	/** @brief Units per second. */
	Speed float32
	/** @brief Degrees per cursor pixel. */
	Sensitivity float32

	/** @brief Internal flag used to determine when the basis and view matrix need to be rebuilt. */
	IsDirty bool

	front      mgl32.Vec3
	right      mgl32.Vec3
	up         mgl32.Vec3
	viewMatrix mgl32.Mat4
}

func NewCamera(position mgl32.Vec3) *Camera {
	camera := &Camera{}
	camera.Reset()
	camera.Position = position
	return camera
}

func (c *Camera) Reset() {
	c.Position = mgl32.Vec3{}
	c.Yaw = DefaultYaw
	c.Pitch = DefaultPitch
	c.Speed = DefaultSpeed
	c.Sensitivity = DefaultSensitivity
	c.IsDirty = true
}

func (c *Camera) SetPosition(position mgl32.Vec3) {
	c.Position = position
	c.IsDirty = true
}

// SetRotation sets yaw and pitch in degrees, clamping pitch.
func (c *Camera) SetRotation(yaw, pitch float32) {
	c.Yaw = yaw
	c.Pitch = math.Clamp(pitch, -pitchLimit, pitchLimit)
	c.IsDirty = true
}

func (c *Camera) update() {
	if !c.IsDirty {
		return
	}
	yaw := float64(mgl32.DegToRad(c.Yaw))
	pitch := float64(mgl32.DegToRad(c.Pitch))

	c.front = mgl32.Vec3{
		float32(stdmath.Cos(yaw) * stdmath.Cos(pitch)),
		float32(stdmath.Sin(yaw) * stdmath.Cos(pitch)),
		float32(stdmath.Sin(pitch)),
	}.Normalize()
	c.right = c.front.Cross(WorldUp).Normalize()
	c.up = c.right.Cross(c.front).Normalize()
	c.viewMatrix = mgl32.LookAtV(c.Position, c.Position.Add(c.front), c.up)

	c.IsDirty = false
}

func (c *Camera) GetView() mgl32.Mat4 {
	c.update()
	return c.viewMatrix
}

func (c *Camera) Forward() mgl32.Vec3 {
	c.update()
	return c.front
}

func (c *Camera) Backward() mgl32.Vec3 {
	return c.Forward().Mul(-1)
}

func (c *Camera) Right() mgl32.Vec3 {
	c.update()
	return c.right
}

func (c *Camera) Left() mgl32.Vec3 {
	return c.Right().Mul(-1)
}

func (c *Camera) Up() mgl32.Vec3 {
	c.update()
	return c.up
}

func (c *Camera) move(direction mgl32.Vec3, delta float32) {
	c.Position = c.Position.Add(direction.Mul(c.Speed * delta))
	c.IsDirty = true
}

// The Move functions advance by Speed * delta seconds.

func (c *Camera) MoveForward(delta float32) {
	c.move(c.Forward(), delta)
}

func (c *Camera) MoveBackward(delta float32) {
	c.move(c.Backward(), delta)
}

func (c *Camera) MoveLeft(delta float32) {
	c.move(c.Left(), delta)
}

func (c *Camera) MoveRight(delta float32) {
	c.move(c.Right(), delta)
}

func (c *Camera) MoveUp(delta float32) {
	c.move(WorldUp, delta)
}

func (c *Camera) MoveDown(delta float32) {
	c.move(WorldUp.Mul(-1), delta)
}

// Look turns the camera by a cursor offset in pixels. Positive yOffset
// looks up.
func (c *Camera) Look(xOffset, yOffset float32) {
	c.SetRotation(c.Yaw-xOffset*c.Sensitivity, c.Pitch+yOffset*c.Sensitivity)
}
