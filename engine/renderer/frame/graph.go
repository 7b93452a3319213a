package frame

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/hellodog/engine/containers"
)

// Targets are the render passes and framebuffers of the two-pass graph.
// The geometry pass renders into a single offscreen framebuffer; the post
// pass renders into one framebuffer per presentable image.
type Targets struct {
	GeometryPass        RenderPass
	GeometryFramebuffer Framebuffer
	PostPass            RenderPass
	PostFramebuffers    []Framebuffer
	Extent              Extent
}

// DefaultClearValues is the clear used by both passes: magenta-ish color and
// the far depth plane.
var DefaultClearValues = ClearValues{
	Color: [4]float32{1.0, 0.5, 1.0, 1.0},
	Depth: 1.0,
}

// Recorder owns one command buffer per presentable image and rerecords it
// every frame: geometry pass into the offscreen target, then the post pass
// into the image's framebuffer.
type Recorder struct {
	buffers  []CommandBuffer
	targets  Targets
	geometry Scene
	post     Scene
	clear    ClearValues
	releases *containers.ReleaseStack
}

func NewRecorder(device Device, targets Targets, geometry, post Scene, clear ClearValues) (*Recorder, error) {
	if len(targets.PostFramebuffers) == 0 {
		return nil, errors.New("render graph needs at least one post-process framebuffer")
	}
	if geometry == nil || post == nil {
		return nil, errors.New("render graph needs a geometry scene and a post-process scene")
	}

	r := &Recorder{
		buffers:  make([]CommandBuffer, len(targets.PostFramebuffers)),
		targets:  targets,
		geometry: geometry,
		post:     post,
		clear:    clear,
		releases: containers.NewReleaseStack(),
	}
	for i := range r.buffers {
		buf, err := device.AllocateCommandBuffer()
		if err != nil {
			_ = r.releases.Release()
			return nil, errors.Wrapf(err, "allocating command buffer for image %d", i)
		}
		r.releases.PushFunc(fmt.Sprintf("command buffer %d", i), buf.Free)
		r.buffers[i] = buf
	}
	return r, nil
}

// Record rewrites the command buffer of imageIndex. The caller must have
// waited for the image to be free.
func (r *Recorder) Record(imageIndex uint32) (CommandBuffer, error) {
	if int(imageIndex) >= len(r.buffers) {
		return nil, errors.Newf("no command buffer for image %d", imageIndex)
	}
	buf := r.buffers[imageIndex]

	if err := buf.Reset(); err != nil {
		return nil, errors.Wrapf(err, "resetting command buffer %d", imageIndex)
	}
	if err := buf.Begin(); err != nil {
		return nil, errors.Wrapf(err, "beginning command buffer %d", imageIndex)
	}

	if err := r.pass(buf, r.targets.GeometryPass, r.targets.GeometryFramebuffer, r.geometry, imageIndex); err != nil {
		return nil, errors.Wrap(err, "geometry pass")
	}
	if err := r.pass(buf, r.targets.PostPass, r.targets.PostFramebuffers[imageIndex], r.post, imageIndex); err != nil {
		return nil, errors.Wrap(err, "post-process pass")
	}

	if err := buf.End(); err != nil {
		return nil, errors.Wrapf(err, "ending command buffer %d", imageIndex)
	}
	return buf, nil
}

func (r *Recorder) pass(buf CommandBuffer, pass RenderPass, fb Framebuffer, scene Scene, imageIndex uint32) error {
	if err := buf.BeginRenderPass(pass, fb, r.targets.Extent, r.clear); err != nil {
		return err
	}
	buf.SetViewport(r.targets.Extent)
	if err := scene.WriteRenderCommands(buf, imageIndex); err != nil {
		return err
	}
	return buf.EndRenderPass()
}

// Buffers returns the per-image command buffers.
func (r *Recorder) Buffers() []CommandBuffer {
	return r.buffers
}

// Destroy frees the command buffers. Calling it again is a no-op.
func (r *Recorder) Destroy() error {
	return r.releases.Release()
}
