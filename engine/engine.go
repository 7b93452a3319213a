package engine

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/hellodog/engine/assets"
	"github.com/spaghettifunk/hellodog/engine/core"
	"github.com/spaghettifunk/hellodog/engine/platform"
	"github.com/spaghettifunk/hellodog/engine/renderer/frame"
	"github.com/spaghettifunk/hellodog/engine/renderer/vulkan"
	"github.com/spaghettifunk/hellodog/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Everything has been released
	EngineStageShutdown
)

func (s Stage) String() string {
	switch s {
	case EngineStageUninitialized:
		return "uninitialized"
	case EngineStageInitializing:
		return "initializing"
	case EngineStageInitialized:
		return "initialized"
	case EngineStageRunning:
		return "running"
	case EngineStageShuttingDown:
		return "shutting down"
	case EngineStageShutdown:
		return "shut down"
	default:
		return "unknown"
	}
}

// Engine owns every subsystem and the frame loop. Initialize, Run and
// Shutdown must be called from the main goroutine; Stop may be called from
// any goroutine.
type Engine struct {
	config *ApplicationConfig

	mutex        sync.Mutex
	currentStage Stage
	stopped      bool

	input         *core.InputState
	platform      *platform.Platform
	assetManager  *assets.AssetManager
	systemManager *systems.SystemManager
	renderer      *vulkan.VulkanRenderer
	driver        *frame.Driver

	watching sync.WaitGroup
}

func New(config *ApplicationConfig) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	input := core.NewInputState()

	am, err := assets.NewAssetManager()
	if err != nil {
		return nil, err
	}

	sm, err := systems.NewSystemManager(config.Workers, config.NewCamera(), input)
	if err != nil {
		return nil, errors.CombineErrors(err, am.Shutdown())
	}

	return &Engine{
		config:        config,
		currentStage:  EngineStageUninitialized,
		input:         input,
		platform:      platform.New(input),
		assetManager:  am,
		systemManager: sm,
	}, nil
}

func (e *Engine) Stage() Stage {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.currentStage
}

func (e *Engine) setStage(stage Stage) {
	e.mutex.Lock()
	e.currentStage = stage
	e.mutex.Unlock()
}

// Initialize opens the window, brings up the GPU and uploads the scene. On
// failure the caller still calls Shutdown to release what was created.
func (e *Engine) Initialize(ctx context.Context) error {
	e.setStage(EngineStageInitializing)

	w := e.config.Window
	if err := e.platform.Startup(w.Name, w.X, w.Y, w.Width, w.Height); err != nil {
		return err
	}

	root, err := filepath.Abs(e.config.Resources)
	if err != nil {
		return errors.Wrapf(err, "resolving resources directory %s", e.config.Resources)
	}
	if err := e.assetManager.Initialize(root); err != nil {
		return err
	}
	core.LogInfo("Indexed %d assets under %s.", e.assetManager.Count(), e.assetManager.Root())
	e.watching.Add(1)
	go e.watchAssets()

	e.renderer = vulkan.New(e.platform, e.config.Renderer.Debug)
	if err := e.renderer.Initialize(w.Name); err != nil {
		return err
	}

	if err := e.systemManager.LoadScene(ctx, e.renderer, e.assetManager, e.config.SceneConfig()); err != nil {
		return err
	}
	scene := e.systemManager.Scene

	synchronizer, err := frame.NewSynchronizer(e.renderer, e.config.Renderer.FramesInFlight, int(e.renderer.ImageCount()))
	if err != nil {
		return err
	}

	recorder, err := frame.NewRecorder(e.renderer, e.renderer.Targets(), scene.Geometry, scene.Post, e.config.ClearValues())
	if err != nil {
		return errors.CombineErrors(err, synchronizer.Destroy())
	}

	driver, err := frame.NewDriver(frame.DriverOptions{
		Device:   e.renderer,
		Window:   e.platform,
		Input:    e.systemManager.CameraSystem,
		Sync:     synchronizer,
		Recorder: recorder,
		Uniforms: scene,
	})
	if err != nil {
		return errors.CombineErrors(err, errors.CombineErrors(recorder.Destroy(), synchronizer.Destroy()))
	}

	e.mutex.Lock()
	e.driver = driver
	e.currentStage = EngineStageInitialized
	e.mutex.Unlock()
	core.LogInfo("Engine initialized: %d frames in flight, %d swapchain images.", e.config.Renderer.FramesInFlight, e.renderer.ImageCount())
	return nil
}

// Run drives frames until the window closes or Stop is called.
func (e *Engine) Run() error {
	e.mutex.Lock()
	if e.currentStage != EngineStageInitialized {
		stage := e.currentStage
		e.mutex.Unlock()
		return errors.Newf("engine cannot run while %s", stage)
	}
	if e.stopped {
		e.mutex.Unlock()
		return nil
	}
	e.currentStage = EngineStageRunning
	e.mutex.Unlock()

	err := e.driver.Run()

	metrics := e.driver.Metrics()
	core.LogInfo("Average %.1f fps, %.2f ms per frame.", metrics.FPS(), metrics.FrameTime()*1000)
	return err
}

// Stop asks the frame loop to return. A Stop before Run makes Run return
// immediately.
func (e *Engine) Stop() {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.stopped = true
	if e.driver != nil {
		e.driver.Stop()
	}
}

// Shutdown releases everything in reverse order of creation. Later calls do
// nothing.
func (e *Engine) Shutdown() error {
	switch e.Stage() {
	case EngineStageShuttingDown, EngineStageShutdown:
		return nil
	}
	e.setStage(EngineStageShuttingDown)

	var err error
	if e.driver != nil {
		err = errors.CombineErrors(err, e.driver.Shutdown())
	}
	if e.renderer != nil {
		// Scene resources may only go once the device is idle.
		err = errors.CombineErrors(err, e.renderer.WaitIdle())
	}
	err = errors.CombineErrors(err, e.systemManager.Shutdown())
	if e.renderer != nil {
		err = errors.CombineErrors(err, e.renderer.Shutdown())
	}
	err = errors.CombineErrors(err, e.assetManager.Shutdown())
	e.watching.Wait()
	err = errors.CombineErrors(err, e.platform.Shutdown())

	e.setStage(EngineStageShutdown)
	if err != nil {
		return errors.Wrap(err, "engine shutdown")
	}
	core.LogInfo("Engine shut down.")
	return nil
}

// watchAssets logs resource changes until the asset manager shuts down.
// Loaded GPU resources are not rebuilt.
func (e *Engine) watchAssets() {
	defer e.watching.Done()
	for event := range e.assetManager.Changes() {
		core.LogInfo("Asset %s (%s) changed: %s. Restart to pick it up.", event.Asset.Path, event.Asset.Type, event.Op)
	}
}
