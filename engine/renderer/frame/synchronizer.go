package frame

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/hellodog/engine/containers"
	"github.com/spaghettifunk/hellodog/engine/core"
)

type SlotState int

const (
	SlotIdle SlotState = iota
	SlotAcquiring
	SlotSubmitted
	SlotPresenting
)

func (s SlotState) String() string {
	switch s {
	case SlotIdle:
		return "idle"
	case SlotAcquiring:
		return "acquiring"
	case SlotSubmitted:
		return "submitted"
	case SlotPresenting:
		return "presenting"
	default:
		return fmt.Sprintf("SlotState(%d)", int(s))
	}
}

// InFlightSlot holds the sync objects of one frame that may be in flight.
type InFlightSlot struct {
	ImageAvailable Semaphore
	RenderFinished Semaphore
	FrameComplete  Fence
	State          SlotState
}

// imageUse names the frame that last rendered into an image.
type imageUse struct {
	slot  int
	frame uint64
	used  bool
}

// Synchronizer owns the ring of in-flight slots and the table that maps each
// presentable image to the frame that last rendered into it.
type Synchronizer struct {
	device         Device
	slots          []*InFlightSlot
	imagesInFlight []imageUse
	frameCounter   uint64
	current        int
	releases       *containers.ReleaseStack
}

// NewSynchronizer creates depth slots. Fences start signaled so the first use
// of every slot does not block. imageCount sizes the image fence table.
func NewSynchronizer(device Device, depth int, imageCount int) (*Synchronizer, error) {
	if depth < 1 {
		return nil, errors.Wrapf(core.ErrInvalidConfig, "frames in flight must be at least 1, got %d", depth)
	}
	if imageCount < 1 {
		return nil, errors.Newf("synchronizer needs at least one presentable image, got %d", imageCount)
	}

	s := &Synchronizer{
		device:         device,
		slots:          make([]*InFlightSlot, depth),
		imagesInFlight: make([]imageUse, imageCount),
		releases:       containers.NewReleaseStack(),
	}

	for i := 0; i < depth; i++ {
		slot := &InFlightSlot{State: SlotIdle}

		imageAvailable, err := device.CreateSemaphore()
		if err != nil {
			_ = s.releases.Release()
			return nil, errors.Wrapf(err, "creating image available semaphore for slot %d", i)
		}
		s.releases.PushFunc(fmt.Sprintf("image available semaphore %d", i), imageAvailable.Destroy)
		slot.ImageAvailable = imageAvailable

		renderFinished, err := device.CreateSemaphore()
		if err != nil {
			_ = s.releases.Release()
			return nil, errors.Wrapf(err, "creating render finished semaphore for slot %d", i)
		}
		s.releases.PushFunc(fmt.Sprintf("render finished semaphore %d", i), renderFinished.Destroy)
		slot.RenderFinished = renderFinished

		fence, err := device.CreateFence(true)
		if err != nil {
			_ = s.releases.Release()
			return nil, errors.Wrapf(err, "creating frame fence for slot %d", i)
		}
		s.releases.PushFunc(fmt.Sprintf("frame fence %d", i), fence.Destroy)
		slot.FrameComplete = fence

		s.slots[i] = slot
	}

	core.LogDebug("Frame synchronizer created: %d slots, %d images.", depth, imageCount)
	return s, nil
}

// Acquire waits for the current slot's previous frame to finish on the GPU
// and then asks the surface for the next image. When the surface is stale the
// error wraps core.ErrSurfaceOutOfDate and nothing else of the frame may run.
// The slot fence is left signaled in that case, so the next use of the slot
// does not block.
func (s *Synchronizer) Acquire() (uint32, error) {
	slot := s.slots[s.current]
	slot.State = SlotAcquiring

	if err := slot.FrameComplete.Wait(); err != nil {
		slot.State = SlotIdle
		return 0, errors.Wrapf(err, "waiting on frame fence of slot %d", s.current)
	}

	imageIndex, err := s.device.AcquireNextImage(slot.ImageAvailable)
	if err != nil {
		slot.State = SlotIdle
		return 0, errors.Wrapf(err, "acquiring image for frame %d", s.frameCounter)
	}
	if int(imageIndex) >= len(s.imagesInFlight) {
		slot.State = SlotIdle
		return 0, errors.Newf("surface returned image %d but only %d images exist", imageIndex, len(s.imagesInFlight))
	}
	return imageIndex, nil
}

// AwaitImageFree blocks until no previously submitted frame still uses
// imageIndex. Only after this may the image's command buffer and uniform
// buffer be written.
func (s *Synchronizer) AwaitImageFree(imageIndex uint32) error {
	fence := s.ImageFence(imageIndex)
	if fence == nil {
		return nil
	}
	if err := fence.Wait(); err != nil {
		return errors.Wrapf(err, "waiting for image %d to be released", imageIndex)
	}
	return nil
}

// Submit resets the current slot's fence, marks imageIndex as used by it and
// queues buffer.
func (s *Synchronizer) Submit(buffer CommandBuffer, imageIndex uint32) error {
	slot := s.slots[s.current]

	if err := slot.FrameComplete.Reset(); err != nil {
		return errors.Wrapf(err, "resetting frame fence of slot %d", s.current)
	}
	s.imagesInFlight[imageIndex] = imageUse{slot: s.current, frame: s.frameCounter, used: true}

	if err := s.device.Submit(buffer, slot.ImageAvailable, slot.RenderFinished, slot.FrameComplete); err != nil {
		return errors.Wrapf(err, "submitting frame %d", s.frameCounter)
	}
	slot.State = SlotSubmitted
	return nil
}

// Present hands imageIndex back to the surface once the current slot's
// rendering has finished.
func (s *Synchronizer) Present(imageIndex uint32) error {
	slot := s.slots[s.current]
	slot.State = SlotPresenting
	err := s.device.Present(imageIndex, slot.RenderFinished)
	slot.State = SlotIdle
	if err != nil {
		return errors.Wrapf(err, "presenting image %d", imageIndex)
	}
	return nil
}

// Advance moves to the next slot. It runs once per loop iteration, dropped
// frames included.
func (s *Synchronizer) Advance() {
	s.frameCounter++
	s.current = int(s.frameCounter % uint64(len(s.slots)))
}

// Slot returns the index of the current in-flight slot.
func (s *Synchronizer) Slot() int {
	return s.current
}

func (s *Synchronizer) FrameCounter() uint64 {
	return s.frameCounter
}

func (s *Synchronizer) Depth() int {
	return len(s.slots)
}

func (s *Synchronizer) SlotState(slot int) SlotState {
	return s.slots[slot].State
}

// ImageFence returns the fence of the frame that last used imageIndex, or nil
// when no frame used it or that frame is known to be finished. A slot fence
// is reused every depth frames and Acquire waits on it before reuse, so a
// frame at least depth frames old has completed and its slot fence may
// already guard a newer frame.
func (s *Synchronizer) ImageFence(imageIndex uint32) Fence {
	use := s.imagesInFlight[imageIndex]
	if !use.used || use.frame+uint64(len(s.slots)) <= s.frameCounter {
		return nil
	}
	return s.slots[use.slot].FrameComplete
}

// Destroy releases every semaphore and fence. Calling it again is a no-op.
// The device must be idle.
func (s *Synchronizer) Destroy() error {
	for i := range s.imagesInFlight {
		s.imagesInFlight[i] = imageUse{}
	}
	return s.releases.Release()
}
