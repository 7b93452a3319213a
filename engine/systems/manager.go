package systems

import (
	"context"
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/hellodog/engine/assets"
	"github.com/spaghettifunk/hellodog/engine/core"
	"github.com/spaghettifunk/hellodog/engine/renderer/components"
	"github.com/spaghettifunk/hellodog/engine/renderer/vulkan"
)

type SystemManager struct {
	JobSystem    *JobSystem
	CameraSystem *CameraSystem
	Scene        *Scene
}

// NewSystemManager sizes the job system to the machine when workers is 0.
func NewSystemManager(workers int, camera *components.Camera, input *core.InputState) (*SystemManager, error) {
	if workers == 0 {
		workers = runtime.NumCPU()
	}
	js, err := NewJobSystem(workers)
	if err != nil {
		return nil, err
	}
	return &SystemManager{
		JobSystem:    js,
		CameraSystem: NewCameraSystem(camera, input),
	}, nil
}

func (sm *SystemManager) LoadScene(ctx context.Context, renderer *vulkan.VulkanRenderer, am *assets.AssetManager, config SceneConfig) error {
	scene, err := NewScene(ctx, renderer, am, sm.JobSystem, sm.CameraSystem.Camera, config)
	if err != nil {
		return errors.Wrap(err, "loading scene")
	}
	sm.Scene = scene
	return nil
}

// Shutdown releases the scene's GPU resources. The device must be idle.
func (sm *SystemManager) Shutdown() error {
	if sm.Scene == nil {
		return nil
	}
	return sm.Scene.Destroy()
}
