package frame

import (
	"fmt"
	"sync"
	"time"
)

type fakeFence struct {
	name      string
	mu        sync.Mutex
	cond      *sync.Cond
	signaled  bool
	waitErr   error
	waits     int
	resets    int
	destroyed int

	// destroyed before the GPU was done with it
	destroyedBusy int
}

func newFakeFence(name string, signaled bool) *fakeFence {
	f := &fakeFence{name: name, signaled: signaled}
	f.cond = sync.NewCond(&f.mu)
	return f
}

func (f *fakeFence) Wait() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waits++
	if f.waitErr != nil {
		return f.waitErr
	}
	for !f.signaled {
		f.cond.Wait()
	}
	return nil
}

func (f *fakeFence) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	f.signaled = false
	return nil
}

func (f *fakeFence) Destroy() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed++
	if !f.signaled {
		f.destroyedBusy++
	}
}

func (f *fakeFence) Signal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signaled = true
	f.cond.Broadcast()
}

func (f *fakeFence) isSignaled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signaled
}

func (f *fakeFence) destroyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.destroyed
}

type fakeSemaphore struct {
	name      string
	destroyed int
}

func (s *fakeSemaphore) Destroy() {
	s.destroyed++
}

// fakeCommandBuffer records every command as a short string.
type fakeCommandBuffer struct {
	id       int
	commands []string
	freed    int
}

func (b *fakeCommandBuffer) log(format string, args ...any) {
	b.commands = append(b.commands, fmt.Sprintf(format, args...))
}

func (b *fakeCommandBuffer) Reset() error {
	b.commands = nil
	b.log("reset")
	return nil
}

func (b *fakeCommandBuffer) Begin() error {
	b.log("begin")
	return nil
}

func (b *fakeCommandBuffer) End() error {
	b.log("end")
	return nil
}

func (b *fakeCommandBuffer) Free() {
	b.freed++
}

func (b *fakeCommandBuffer) BeginRenderPass(pass RenderPass, fb Framebuffer, extent Extent, clear ClearValues) error {
	b.log("beginPass %v %v %dx%d", pass, fb, extent.Width, extent.Height)
	return nil
}

func (b *fakeCommandBuffer) EndRenderPass() error {
	b.log("endPass")
	return nil
}

func (b *fakeCommandBuffer) SetViewport(extent Extent) {
	b.log("viewport %dx%d", extent.Width, extent.Height)
}

func (b *fakeCommandBuffer) BindPipeline(p Pipeline) {
	b.log("pipeline %v", p)
}

func (b *fakeCommandBuffer) BindVertexBuffer(buf Buffer) {
	b.log("vertices %v", buf)
}

func (b *fakeCommandBuffer) BindIndexBuffer(buf Buffer) {
	b.log("indices %v", buf)
}

func (b *fakeCommandBuffer) BindDescriptorSet(p Pipeline, set DescriptorSet) {
	b.log("set %v", set)
}

func (b *fakeCommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	b.log("draw %d %d %d %d %d", indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

type acquireResult struct {
	index uint32
	err   error
}

type submission struct {
	buffer *fakeCommandBuffer
	wait   *fakeSemaphore
	signal *fakeSemaphore
	fence  *fakeFence
	done   bool
}

// fakeDevice hands out images round robin unless a scripted result is queued.
// Submitted fences are only signaled by Complete, unless autoComplete is set.
type fakeDevice struct {
	mu           sync.Mutex
	imageCount   uint32
	nextImage    uint32
	acquires     []acquireResult
	presents     []error
	autoComplete bool

	fences      []*fakeFence
	semaphores  []*fakeSemaphore
	buffers     []*fakeCommandBuffer
	submissions []submission
	presented   []uint32
	imageOwner  map[uint32]int
	events      []string
}

func newFakeDevice(imageCount uint32) *fakeDevice {
	return &fakeDevice{
		imageCount: imageCount,
		imageOwner: map[uint32]int{},
	}
}

func (d *fakeDevice) event(format string, args ...any) {
	d.events = append(d.events, fmt.Sprintf(format, args...))
}

func (d *fakeDevice) CreateFence(signaled bool) (Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f := newFakeFence(fmt.Sprintf("fence%d", len(d.fences)), signaled)
	d.fences = append(d.fences, f)
	return f, nil
}

func (d *fakeDevice) CreateSemaphore() (Semaphore, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := &fakeSemaphore{name: fmt.Sprintf("sem%d", len(d.semaphores))}
	d.semaphores = append(d.semaphores, s)
	return s, nil
}

func (d *fakeDevice) AllocateCommandBuffer() (CommandBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b := &fakeCommandBuffer{id: len(d.buffers)}
	d.buffers = append(d.buffers, b)
	return b, nil
}

func (d *fakeDevice) AcquireNextImage(signal Semaphore) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.acquires) > 0 {
		r := d.acquires[0]
		d.acquires = d.acquires[1:]
		if r.err != nil {
			d.event("acquire failed")
			return 0, r.err
		}
		d.event("acquire %d", r.index)
		return r.index, nil
	}
	idx := d.nextImage % d.imageCount
	d.nextImage++
	d.event("acquire %d", idx)
	return idx, nil
}

func (d *fakeDevice) Submit(buffer CommandBuffer, wait, signal Semaphore, fence Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	b := buffer.(*fakeCommandBuffer)
	f := fence.(*fakeFence)
	d.submissions = append(d.submissions, submission{
		buffer: b,
		wait:   wait.(*fakeSemaphore),
		signal: signal.(*fakeSemaphore),
		fence:  f,
	})
	// The recorder allocates one buffer per image, in image order.
	d.imageOwner[uint32(b.id)] = len(d.submissions) - 1
	d.event("submit %d", b.id)
	if d.autoComplete {
		d.submissions[len(d.submissions)-1].done = true
		f.Signal()
	}
	return nil
}

func (d *fakeDevice) Present(imageIndex uint32, wait Semaphore) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.presents) > 0 {
		err := d.presents[0]
		d.presents = d.presents[1:]
		if err != nil {
			d.event("present failed")
			return err
		}
	}
	d.presented = append(d.presented, imageIndex)
	d.event("present %d", imageIndex)
	return nil
}

func (d *fakeDevice) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.submissions {
		d.submissions[i].done = true
		d.submissions[i].fence.Signal()
	}
	d.event("waitIdle")
	return nil
}

// Complete signals the fence of the n-th submission, as the GPU would.
func (d *fakeDevice) Complete(n int) {
	d.mu.Lock()
	d.submissions[n].done = true
	f := d.submissions[n].fence
	d.mu.Unlock()
	f.Signal()
}

// imageBusy reports whether the last submission that rendered into image
// has not finished yet. The fence alone cannot tell, since a slot fence may
// already guard a newer submission.
func (d *fakeDevice) imageBusy(image uint32) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, ok := d.imageOwner[image]
	return ok && !d.submissions[n].done
}

func (d *fakeDevice) submissionCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.submissions)
}

func (d *fakeDevice) eventLog() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.events...)
}

func (d *fakeDevice) script(results ...acquireResult) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.acquires = append(d.acquires, results...)
}

type fakeWindow struct {
	polls      int
	closeAfter int
}

func (w *fakeWindow) ShouldClose() bool {
	return w.polls >= w.closeAfter
}

func (w *fakeWindow) PollEvents() {
	w.polls++
}

type fakeInput struct {
	calls   int
	onInput func(calls int)
}

func (i *fakeInput) HandleInput(delta float64) {
	i.calls++
	if i.onInput != nil {
		i.onInput(i.calls)
	}
}

// recordingUniforms remembers which images were written and whether the
// previous frame using that image was still running at the time.
type recordingUniforms struct {
	mu       sync.Mutex
	device   *fakeDevice
	written  []uint32
	conflict []uint32
}

func (u *recordingUniforms) UpdateSceneUniforms(imageIndex uint32, elapsed float64) error {
	busy := u.device.imageBusy(imageIndex)
	u.mu.Lock()
	defer u.mu.Unlock()
	u.written = append(u.written, imageIndex)
	if busy {
		u.conflict = append(u.conflict, imageIndex)
	}
	return nil
}

func (u *recordingUniforms) writes() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.written)
}

const (
	blockWindow   = 50 * time.Millisecond
	releaseWindow = 2 * time.Second
)

// finishes reports whether done is closed within window.
func finishes(done <-chan struct{}, window time.Duration) bool {
	select {
	case <-done:
		return true
	case <-time.After(window):
		return false
	}
}
