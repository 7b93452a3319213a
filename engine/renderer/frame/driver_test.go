package frame

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/hellodog/engine/core"
)

type testLoop struct {
	dev      *fakeDevice
	sync     *Synchronizer
	recorder *Recorder
	uniforms *recordingUniforms
	window   *fakeWindow
	input    *fakeInput
	driver   *Driver
}

func newTestLoop(t *testing.T, depth int, images uint32) *testLoop {
	t.Helper()

	l := &testLoop{
		dev:    newFakeDevice(images),
		window: &fakeWindow{closeAfter: 1 << 30},
		input:  &fakeInput{},
	}
	var err error
	l.sync, err = NewSynchronizer(l.dev, depth, int(images))
	if err != nil {
		t.Fatal(err)
	}
	geometry, post := testScenes(t, int(images))
	l.recorder, err = NewRecorder(l.dev, testTargets(int(images)), geometry, post, DefaultClearValues)
	if err != nil {
		t.Fatal(err)
	}
	l.uniforms = &recordingUniforms{device: l.dev}
	l.driver, err = NewDriver(DriverOptions{
		Device:   l.dev,
		Window:   l.window,
		Input:    l.input,
		Sync:     l.sync,
		Recorder: l.recorder,
		Uniforms: l.uniforms,
	})
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func (l *testLoop) frame(t *testing.T) bool {
	t.Helper()
	presented, err := l.driver.Frame(0, 0)
	if err != nil {
		t.Fatal(err)
	}
	return presented
}

// frameAsync runs one frame on its own goroutine and closes the returned
// channel when it is done.
func (l *testLoop) frameAsync(t *testing.T) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := l.driver.Frame(0, 0); err != nil {
			t.Error(err)
		}
	}()
	return done
}

func staleSurface() acquireResult {
	return acquireResult{err: errors.Wrap(core.ErrSurfaceOutOfDate, "swapchain")}
}

func TestFramesInFlightAreBounded(t *testing.T) {
	l := newTestLoop(t, 2, 3)

	if !l.frame(t) || !l.frame(t) {
		t.Fatal("first two frames should present")
	}

	// Frame 2 reuses slot 0 and must wait for frame 0 on the GPU.
	done := l.frameAsync(t)
	if finishes(done, blockWindow) {
		t.Fatal("frame 2 started before frame 0 completed")
	}
	if got := l.dev.submissionCount(); got != 2 {
		t.Fatalf("submissions while blocked = %d, want 2", got)
	}

	l.dev.Complete(0)
	if !finishes(done, releaseWindow) {
		t.Fatal("frame 2 still blocked after frame 0 completed")
	}
	if got := l.dev.submissionCount(); got != 3 {
		t.Fatalf("submissions = %d, want 3", got)
	}
	if l.dev.submissions[2].fence != l.dev.submissions[0].fence {
		t.Error("frame 2 should signal the fence of slot 0")
	}
	if l.dev.submissions[1].fence == l.dev.submissions[0].fence {
		t.Error("frames 0 and 1 should use different slots")
	}
}

func TestSubmissionUsesSlotSyncObjects(t *testing.T) {
	l := newTestLoop(t, 2, 3)
	l.dev.autoComplete = true

	for i := 0; i < 4; i++ {
		l.frame(t)
	}
	for i, s := range l.dev.submissions {
		slot := l.sync.slots[i%2]
		if s.wait != slot.ImageAvailable || s.signal != slot.RenderFinished || s.fence != slot.FrameComplete {
			t.Errorf("submission %d does not use the sync objects of slot %d", i, i%2)
		}
	}
}

func TestStaleAcquireDropsFrameWithoutSubmitting(t *testing.T) {
	l := newTestLoop(t, 2, 3)

	l.frame(t) // slot 0, image 0
	l.frame(t) // slot 1, image 1
	l.dev.Complete(0)
	l.frame(t) // slot 0, image 2
	l.dev.Complete(1)

	l.dev.script(staleSurface())
	if l.frame(t) {
		t.Fatal("frame 3 should have been dropped")
	}
	if got := l.dev.submissionCount(); got != 3 {
		t.Fatalf("submissions after stale frame = %d, want 3", got)
	}
	if got := l.driver.Metrics().DroppedFrames(); got != 1 {
		t.Errorf("dropped frames = %d, want 1", got)
	}
	if got := l.sync.FrameCounter(); got != 4 {
		t.Errorf("frame counter = %d, want 4", got)
	}
	// The dropped frame never reset its fence.
	if !l.sync.slots[1].FrameComplete.(*fakeFence).isSignaled() {
		t.Error("slot 1 fence should still be signaled after the dropped frame")
	}

	l.dev.Complete(2)
	if !l.frame(t) {
		t.Fatal("frame 4 should present")
	}
	if l.dev.submissions[3].fence != l.sync.slots[0].FrameComplete {
		t.Error("frame 4 should run on slot 0")
	}

	// Frame 5 lands on slot 1, whose fence the dropped frame left signaled.
	done := l.frameAsync(t)
	if !finishes(done, releaseWindow) {
		t.Fatal("frame 5 blocked on the fence of the dropped frame")
	}
	if got := l.dev.submissionCount(); got != 5 {
		t.Errorf("submissions = %d, want 5", got)
	}
}

func TestStalePresentDropsFrameAfterSubmitting(t *testing.T) {
	l := newTestLoop(t, 2, 3)
	l.dev.autoComplete = true
	l.dev.presents = []error{errors.Wrap(core.ErrSurfaceOutOfDate, "present")}

	if l.frame(t) {
		t.Fatal("frame with a stale present should not count as presented")
	}
	if got := l.dev.submissionCount(); got != 1 {
		t.Errorf("submissions = %d, want 1", got)
	}
	if got := l.sync.FrameCounter(); got != 1 {
		t.Errorf("frame counter = %d, want 1", got)
	}
	if l.sync.SlotState(0) != SlotIdle {
		t.Errorf("slot 0 state = %s, want idle", l.sync.SlotState(0))
	}

	if !l.frame(t) {
		t.Fatal("next frame should present")
	}
	if l.driver.stale {
		t.Error("driver should leave the stale state after a good frame")
	}
	if got := l.driver.Metrics().DroppedFrames(); got != 1 {
		t.Errorf("dropped frames = %d, want 1", got)
	}
}

func TestSlotsFollowFrameCounterAcrossDrops(t *testing.T) {
	l := newTestLoop(t, 3, 2)
	l.dev.autoComplete = true

	stale := map[int]bool{2: true, 5: true, 6: true}
	for i := 0; i < 10; i++ {
		if stale[i] {
			l.dev.script(staleSurface())
		} else {
			l.dev.script(acquireResult{index: uint32(i % 2)})
		}
	}

	for i := 0; i < 10; i++ {
		if got := uint64(l.sync.Slot()); got != l.sync.FrameCounter()%3 {
			t.Fatalf("frame %d: slot %d, want %d", i, got, l.sync.FrameCounter()%3)
		}
		if presented := l.frame(t); presented == stale[i] {
			t.Errorf("frame %d presented = %v, stale = %v", i, presented, stale[i])
		}
		if got := l.sync.FrameCounter(); got != uint64(i+1) {
			t.Errorf("frame counter after frame %d = %d", i, got)
		}
	}
	if got := l.driver.Metrics().DroppedFrames(); got != 3 {
		t.Errorf("dropped frames = %d, want 3", got)
	}
	if got := len(l.dev.presented); got != 7 {
		t.Errorf("presented images = %d, want 7", got)
	}
}

// Uniform buffers are per image and written only after the image fence wait,
// never while an earlier frame that rendered into the image is still running.
func TestUniformsArePerImageAndGuardedByImageFence(t *testing.T) {
	l := newTestLoop(t, 2, 2)

	// Both frames get image 0, on different slots.
	l.dev.script(acquireResult{index: 0}, acquireResult{index: 0})

	l.frame(t)
	done := l.frameAsync(t)
	if finishes(done, blockWindow) {
		t.Fatal("frame 1 went ahead while image 0 was still in use")
	}
	if got := l.uniforms.writes(); got != 1 {
		t.Fatalf("uniform writes while blocked = %d, want 1", got)
	}

	l.dev.Complete(0)
	if !finishes(done, releaseWindow) {
		t.Fatal("frame 1 still blocked after image 0 was released")
	}
	if got := l.uniforms.writes(); got != 2 {
		t.Fatalf("uniform writes = %d, want 2", got)
	}
	if len(l.uniforms.conflict) != 0 {
		t.Errorf("uniforms written while the GPU used images %v", l.uniforms.conflict)
	}
	if l.sync.ImageFence(0) != l.sync.slots[1].FrameComplete {
		t.Error("image 0 should now belong to slot 1")
	}
}

func TestUniformsNeverRaceTheGPU(t *testing.T) {
	l := newTestLoop(t, 2, 3)

	// The GPU finishes each frame one frame late.
	for i := 0; i < 12; i++ {
		done := l.frameAsync(t)
		if i >= 2 {
			l.dev.Complete(i - 2)
		}
		if !finishes(done, releaseWindow) {
			t.Fatalf("frame %d never finished", i)
		}
	}
	if len(l.uniforms.conflict) != 0 {
		t.Errorf("uniforms written while the GPU used images %v", l.uniforms.conflict)
	}
}

// With more images than slots, an image whose last frame finished must not
// wait on the newer frame now using that frame's slot fence.
func TestImageWaitTracksTheFrameNotTheSlot(t *testing.T) {
	l := newTestLoop(t, 2, 3)

	l.frame(t) // slot 0, image 0
	l.frame(t) // slot 1, image 1
	l.dev.Complete(0)
	l.dev.Complete(1)
	l.frame(t) // slot 0, image 2, left running

	if l.sync.ImageFence(0) != nil {
		t.Error("image 0 finished with frame 0 and should not be guarded")
	}
	if l.sync.ImageFence(2) != l.sync.slots[0].FrameComplete {
		t.Error("image 2 should be guarded by the fence of frame 2")
	}

	// Frame 3 takes slot 1 and image 0.
	done := l.frameAsync(t)
	if !finishes(done, releaseWindow) {
		t.Fatal("frame 3 waited on frame 2 although image 0 was free")
	}
	if got := l.dev.submissionCount(); got != 4 {
		t.Fatalf("submissions = %d, want 4", got)
	}
	if l.dev.submissions[2].done {
		t.Fatal("frame 2 should still be running")
	}
	if len(l.uniforms.conflict) != 0 {
		t.Errorf("uniforms written while the GPU used images %v", l.uniforms.conflict)
	}
}

func TestFatalErrorsStopTheFrame(t *testing.T) {
	l := newTestLoop(t, 2, 3)
	l.dev.script(acquireResult{err: errors.Wrap(core.ErrDeviceLost, "acquire")})

	_, err := l.driver.Frame(0, 0)
	if !errors.Is(err, core.ErrDeviceLost) {
		t.Fatalf("Frame error = %v, want device lost", err)
	}
	if l.dev.submissionCount() != 0 {
		t.Error("nothing should be submitted after a fatal acquire")
	}
}

func TestRunStopsWhenWindowCloses(t *testing.T) {
	l := newTestLoop(t, 2, 3)
	l.dev.autoComplete = true
	l.window.closeAfter = 5

	if err := l.driver.Run(); err != nil {
		t.Fatal(err)
	}
	if got := len(l.dev.presented); got != 5 {
		t.Errorf("presented %d frames, want 5", got)
	}
	if l.input.calls != 5 {
		t.Errorf("input handled %d times, want 5", l.input.calls)
	}
	events := l.dev.eventLog()
	if events[len(events)-1] != "waitIdle" {
		t.Errorf("last event = %q, want waitIdle", events[len(events)-1])
	}
}

func TestStopEndsRun(t *testing.T) {
	l := newTestLoop(t, 2, 3)
	l.dev.autoComplete = true
	l.input.onInput = func(calls int) {
		if calls == 3 {
			l.driver.Stop()
		}
	}

	if err := l.driver.Run(); err != nil {
		t.Fatal(err)
	}
	if got := len(l.dev.presented); got != 3 {
		t.Errorf("presented %d frames, want 3", got)
	}
}

func TestRunReturnsFatalErrors(t *testing.T) {
	l := newTestLoop(t, 2, 3)
	l.dev.autoComplete = true
	l.dev.script(acquireResult{index: 0}, acquireResult{err: core.ErrDeviceLost})

	err := l.driver.Run()
	if !errors.Is(err, core.ErrDeviceLost) {
		t.Fatalf("Run error = %v, want device lost", err)
	}
	events := l.dev.eventLog()
	if events[len(events)-1] != "waitIdle" {
		t.Errorf("device should be idle after a fatal error, last event %q", events[len(events)-1])
	}
}

func TestShutdownReleasesEverythingOnce(t *testing.T) {
	l := newTestLoop(t, 2, 3)

	l.frame(t)
	l.frame(t)

	if err := l.driver.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if err := l.driver.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if err := l.sync.Destroy(); err != nil {
		t.Fatal(err)
	}

	for _, f := range l.dev.fences {
		if f.destroyCount() != 1 {
			t.Errorf("%s destroyed %d times, want 1", f.name, f.destroyCount())
		}
		if f.destroyedBusy != 0 {
			t.Errorf("%s destroyed while the GPU still used it", f.name)
		}
	}
	for _, s := range l.dev.semaphores {
		if s.destroyed != 1 {
			t.Errorf("%s destroyed %d times, want 1", s.name, s.destroyed)
		}
	}
	for _, b := range l.dev.buffers {
		if b.freed != 1 {
			t.Errorf("command buffer %d freed %d times, want 1", b.id, b.freed)
		}
	}
}

func TestNewSynchronizerValidatesDepth(t *testing.T) {
	dev := newFakeDevice(3)
	if _, err := NewSynchronizer(dev, 0, 3); !errors.Is(err, core.ErrInvalidConfig) {
		t.Errorf("depth 0 error = %v, want invalid config", err)
	}
	if _, err := NewSynchronizer(dev, 2, 0); err == nil {
		t.Error("expected an error without presentable images")
	}

	s, err := NewSynchronizer(dev, 2, 3)
	if err != nil {
		t.Fatal(err)
	}
	if s.Depth() != 2 || len(dev.fences) != 2 || len(dev.semaphores) != 4 {
		t.Errorf("depth %d, %d fences, %d semaphores", s.Depth(), len(dev.fences), len(dev.semaphores))
	}
	for _, f := range dev.fences {
		if !f.isSignaled() {
			t.Errorf("%s should start signaled", f.name)
		}
	}
}

func TestSlotStateTransitions(t *testing.T) {
	dev := newFakeDevice(2)
	s, err := NewSynchronizer(dev, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	buf, _ := dev.AllocateCommandBuffer()

	img, err := s.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	if s.SlotState(0) != SlotAcquiring {
		t.Errorf("after acquire: %s", s.SlotState(0))
	}
	if err := s.AwaitImageFree(img); err != nil {
		t.Fatal(err)
	}
	if err := s.Submit(buf, img); err != nil {
		t.Fatal(err)
	}
	if s.SlotState(0) != SlotSubmitted {
		t.Errorf("after submit: %s", s.SlotState(0))
	}
	if s.ImageFence(img) != s.slots[0].FrameComplete {
		t.Error("image fence table not updated on submit")
	}
	if err := s.Present(img); err != nil {
		t.Fatal(err)
	}
	if s.SlotState(0) != SlotIdle {
		t.Errorf("after present: %s", s.SlotState(0))
	}
	s.Advance()
	if s.Slot() != 1 {
		t.Errorf("slot after advance = %d, want 1", s.Slot())
	}
}

func TestAcquireFenceFailureLeavesSlotIdle(t *testing.T) {
	dev := newFakeDevice(2)
	s, err := NewSynchronizer(dev, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	s.slots[0].FrameComplete.(*fakeFence).waitErr = errors.Wrap(core.ErrDeviceLost, "wait")

	if _, err := s.Acquire(); !errors.Is(err, core.ErrDeviceLost) {
		t.Fatalf("Acquire error = %v, want device lost", err)
	}
	if s.SlotState(0) != SlotIdle {
		t.Errorf("slot state after failed wait = %s, want idle", s.SlotState(0))
	}
	if len(dev.eventLog()) != 0 {
		t.Errorf("no image should be acquired, got %v", dev.eventLog())
	}
}

func TestAcquireRejectsOutOfRangeImage(t *testing.T) {
	dev := newFakeDevice(2)
	dev.script(acquireResult{index: 5})
	s, err := NewSynchronizer(dev, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Acquire(); err == nil {
		t.Error("expected an error for an image index beyond the table")
	}
}
