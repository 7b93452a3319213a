// Package frame drives the per-frame GPU work: the in-flight slot ring, the
// per-image fence table, the two-pass command recording and the loop that
// ties them together. It only talks to the GPU through the interfaces below,
// which the vulkan package implements.
package frame

// Fence is a CPU observable completion signal for a batch of GPU work.
type Fence interface {
	// Wait blocks until the fence is signaled. There is no timeout.
	Wait() error
	Reset() error
	Destroy()
}

// Semaphore orders queue operations on the GPU without CPU involvement.
type Semaphore interface {
	Destroy()
}

// Opaque backend handles. The frame package never looks inside them.
type (
	RenderPass    any
	Framebuffer   any
	Pipeline      any
	Buffer        any
	DescriptorSet any
)

type Extent struct {
	Width  uint32
	Height uint32
}

// ClearValues are the clear color and depth/stencil used when a pass begins.
type ClearValues struct {
	Color   [4]float32
	Depth   float32
	Stencil uint32
}

// CommandEncoder is the subset of command recording a scene needs.
type CommandEncoder interface {
	BeginRenderPass(pass RenderPass, framebuffer Framebuffer, extent Extent, clear ClearValues) error
	EndRenderPass() error
	SetViewport(extent Extent)
	BindPipeline(pipeline Pipeline)
	BindVertexBuffer(buffer Buffer)
	BindIndexBuffer(buffer Buffer)
	BindDescriptorSet(pipeline Pipeline, set DescriptorSet)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
}

// CommandBuffer is a persistent, resettable primary command buffer.
type CommandBuffer interface {
	CommandEncoder
	Reset() error
	Begin() error
	End() error
	Free()
}

// Device is the GPU as seen by the frame loop: sync object creation, one
// graphics queue and one presentation surface.
type Device interface {
	CreateFence(signaled bool) (Fence, error)
	CreateSemaphore() (Semaphore, error)
	AllocateCommandBuffer() (CommandBuffer, error)
	// AcquireNextImage returns the index of the next presentable image and
	// signals the semaphore once the image can be written. A stale surface is
	// reported as core.ErrSurfaceOutOfDate.
	AcquireNextImage(signal Semaphore) (uint32, error)
	// Submit queues buffer. Execution waits on wait at the color attachment
	// output stage; signal and fence are signaled on completion.
	Submit(buffer CommandBuffer, wait Semaphore, signal Semaphore, fence Fence) error
	// Present hands imageIndex back to the surface once wait is signaled.
	// A stale surface is reported as core.ErrSurfaceOutOfDate.
	Present(imageIndex uint32, wait Semaphore) error
	WaitIdle() error
}
