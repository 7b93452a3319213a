package frame

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/hellodog/engine/core"
)

// Window is the platform surface the loop runs against.
type Window interface {
	ShouldClose() bool
	PollEvents()
}

// InputHandler applies the input gathered since the previous frame.
type InputHandler interface {
	HandleInput(delta float64)
}

// UniformWriter fills the uniform buffers bound for imageIndex.
type UniformWriter interface {
	UpdateSceneUniforms(imageIndex uint32, elapsed float64) error
}

type DriverOptions struct {
	Device   Device
	Window   Window
	Input    InputHandler
	Sync     *Synchronizer
	Recorder *Recorder
	Uniforms UniformWriter
	Clock    *core.Clock
	Metrics  *core.Metrics
}

// Driver runs the frame loop until the window asks to close or Stop is called.
type Driver struct {
	device   Device
	window   Window
	input    InputHandler
	sync     *Synchronizer
	recorder *Recorder
	uniforms UniformWriter
	clock    *core.Clock
	metrics  *core.Metrics

	stopped  atomic.Bool
	stale    bool
	shutdown bool
}

func NewDriver(opts DriverOptions) (*Driver, error) {
	if opts.Device == nil || opts.Window == nil || opts.Sync == nil || opts.Recorder == nil || opts.Uniforms == nil {
		return nil, errors.New("frame driver needs a device, a window, a synchronizer, a recorder and a uniform writer")
	}
	d := &Driver{
		device:   opts.Device,
		window:   opts.Window,
		input:    opts.Input,
		sync:     opts.Sync,
		recorder: opts.Recorder,
		uniforms: opts.Uniforms,
		clock:    opts.Clock,
		metrics:  opts.Metrics,
	}
	if d.clock == nil {
		d.clock = core.NewClock()
	}
	if d.metrics == nil {
		d.metrics = core.NewMetrics()
	}
	return d, nil
}

// Frame runs one loop iteration and reports whether an image was presented.
// A stale surface drops the frame without error; any other failure is fatal.
func (d *Driver) Frame(elapsed, delta float64) (bool, error) {
	if d.input != nil {
		d.input.HandleInput(delta)
	}
	d.window.PollEvents()

	imageIndex, err := d.sync.Acquire()
	if err != nil {
		if core.IsRecoverable(err) {
			d.drop("acquire")
			d.sync.Advance()
			return false, nil
		}
		return false, err
	}

	if err := d.sync.AwaitImageFree(imageIndex); err != nil {
		return false, err
	}
	// The previous user of this image is done, so its uniforms and command
	// buffer can be rewritten.
	if err := d.uniforms.UpdateSceneUniforms(imageIndex, elapsed); err != nil {
		return false, errors.Wrapf(err, "updating uniforms of image %d", imageIndex)
	}
	buf, err := d.recorder.Record(imageIndex)
	if err != nil {
		return false, errors.Wrapf(err, "recording image %d", imageIndex)
	}
	if err := d.sync.Submit(buf, imageIndex); err != nil {
		return false, err
	}

	err = d.sync.Present(imageIndex)
	d.sync.Advance()
	if err != nil {
		if core.IsRecoverable(err) {
			d.drop("present")
			return false, nil
		}
		return false, err
	}

	if d.stale {
		core.LogInfo("Surface is presentable again.")
		d.stale = false
	}
	return true, nil
}

// drop counts a lost frame and warns once per run of stale frames.
func (d *Driver) drop(stage string) {
	d.metrics.Dropped()
	if !d.stale {
		core.LogWarn("Surface out of date at %s, dropping frames until it recovers.", stage)
		d.stale = true
	}
}

// Run loops until the window closes or Stop is called, then waits for the
// device to go idle.
func (d *Driver) Run() error {
	d.clock.Start()
	last := d.clock.Elapsed()

	for !d.stopped.Load() && !d.window.ShouldClose() {
		d.clock.Update()
		now := d.clock.Elapsed()
		delta := now - last
		last = now

		presented, err := d.Frame(now, delta)
		if err != nil {
			return errors.CombineErrors(err, d.device.WaitIdle())
		}
		if presented {
			d.metrics.Update(delta)
		}
	}
	d.clock.Stop()

	core.LogInfo("Frame loop finished after %d frames (%d dropped).", d.sync.FrameCounter(), d.metrics.DroppedFrames())
	return d.device.WaitIdle()
}

// Stop makes Run return after the current iteration. Safe from any goroutine.
func (d *Driver) Stop() {
	d.stopped.Store(true)
}

func (d *Driver) Metrics() *core.Metrics {
	return d.metrics
}

// Shutdown waits for the device, then frees the command buffers and sync
// objects. Later calls do nothing.
func (d *Driver) Shutdown() error {
	if d.shutdown {
		return nil
	}
	d.shutdown = true

	err := d.device.WaitIdle()
	err = errors.CombineErrors(err, d.recorder.Destroy())
	return errors.CombineErrors(err, d.sync.Destroy())
}
