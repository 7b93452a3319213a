package systems

import (
	"github.com/spaghettifunk/hellodog/engine/core"
	"github.com/spaghettifunk/hellodog/engine/renderer/components"
)

// CameraSystem moves a camera from the input state once per frame.
type CameraSystem struct {
	Camera *components.Camera
	input  *core.InputState
}

func NewCameraSystem(camera *components.Camera, input *core.InputState) *CameraSystem {
	return &CameraSystem{
		Camera: camera,
		input:  input,
	}
}

// HandleInput applies held movement keys for delta seconds and the cursor
// movement since the previous frame.
func (cs *CameraSystem) HandleInput(delta float64) {
	d := float32(delta)

	if cs.input.IsKeyDown(core.KEY_W) {
		cs.Camera.MoveForward(d)
	}
	if cs.input.IsKeyDown(core.KEY_S) {
		cs.Camera.MoveBackward(d)
	}
	if cs.input.IsKeyDown(core.KEY_A) {
		cs.Camera.MoveLeft(d)
	}
	if cs.input.IsKeyDown(core.KEY_D) {
		cs.Camera.MoveRight(d)
	}
	if cs.input.IsKeyDown(core.KEY_E) || cs.input.IsKeyDown(core.KEY_SPACE) {
		cs.Camera.MoveUp(d)
	}
	if cs.input.IsKeyDown(core.KEY_Q) {
		cs.Camera.MoveDown(d)
	}

	if dx, dy := cs.input.ConsumeMouseDelta(); dx != 0 || dy != 0 {
		cs.Camera.Look(float32(dx), float32(dy))
	}
	cs.input.Update()
}
