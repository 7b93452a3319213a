package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/hellodog/engine/renderer/frame"
)

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

// VulkanCommandBuffer is a primary or secondary command buffer allocated from
// a pool. Bind calls cannot fail on the Vulkan side, so a bad handle passed to
// one of them is remembered and reported by End.
type VulkanCommandBuffer struct {
	Handle vk.CommandBuffer
	// Command buffer state.
	State VulkanCommandBufferState

	context *VulkanContext
	pool    vk.CommandPool
	err     error
}

func NewVulkanCommandBuffer(context *VulkanContext, pool vk.CommandPool, isPrimary bool) (*VulkanCommandBuffer, error) {
	commandBuffer := &VulkanCommandBuffer{
		State:   COMMAND_BUFFER_STATE_NOT_ALLOCATED,
		context: context,
		pool:    pool,
	}

	level := vk.CommandBufferLevelPrimary
	if !isPrimary {
		level = vk.CommandBufferLevelSecondary
	}

	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		CommandBufferCount: 1,
		Level:              level,
	}

	handles := make([]vk.CommandBuffer, 1)
	err := context.Locks.SafeCall(CommandBufferManagement, func() error {
		return resultError("vkAllocateCommandBuffers", vk.AllocateCommandBuffers(context.Device.LogicalDevice, &allocateInfo, handles))
	})
	if err != nil {
		return nil, err
	}
	commandBuffer.Handle = handles[0]
	commandBuffer.State = COMMAND_BUFFER_STATE_READY
	return commandBuffer, nil
}

func (v *VulkanCommandBuffer) Free() {
	if v.State == COMMAND_BUFFER_STATE_NOT_ALLOCATED {
		return
	}
	_ = v.context.Locks.SafeCall(CommandBufferManagement, func() error {
		vk.FreeCommandBuffers(v.context.Device.LogicalDevice, v.pool, 1, []vk.CommandBuffer{v.Handle})
		return nil
	})
	v.Handle = nil
	v.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
}

// Reset clears the recorded commands. The pool is created with the reset
// command buffer flag.
func (v *VulkanCommandBuffer) Reset() error {
	if res := vk.ResetCommandBuffer(v.Handle, 0); res != vk.Success {
		return resultError("vkResetCommandBuffer", res)
	}
	v.err = nil
	v.State = COMMAND_BUFFER_STATE_READY
	return nil
}

func (v *VulkanCommandBuffer) Begin() error {
	return v.BeginWithUsage(false, false, false)
}

func (v *VulkanCommandBuffer) BeginWithUsage(isSingleUse, isRenderpassContinue, isSimultaneousUse bool) error {
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: 0,
	}

	if isSingleUse {
		beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	if isRenderpassContinue {
		beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageRenderPassContinueBit)
	}
	if isSimultaneousUse {
		beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageSimultaneousUseBit)
	}

	if res := vk.BeginCommandBuffer(v.Handle, &beginInfo); res != vk.Success {
		return resultError("vkBeginCommandBuffer", res)
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING
	return nil
}

func (v *VulkanCommandBuffer) End() error {
	if v.err != nil {
		return v.err
	}
	if v.State == COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		return errors.New("command buffer ended inside a render pass")
	}
	if res := vk.EndCommandBuffer(v.Handle); res != vk.Success {
		return resultError("vkEndCommandBuffer", res)
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

func (v *VulkanCommandBuffer) UpdateSubmitted() {
	v.State = COMMAND_BUFFER_STATE_SUBMITTED
}

func (v *VulkanCommandBuffer) fail(err error) {
	if v.err == nil {
		v.err = err
	}
}

func (v *VulkanCommandBuffer) BeginRenderPass(pass frame.RenderPass, framebuffer frame.Framebuffer, extent frame.Extent, clear frame.ClearValues) error {
	renderpass, ok := pass.(*VulkanRenderpass)
	if !ok {
		return errors.Newf("unexpected render pass handle %T", pass)
	}
	fb, ok := framebuffer.(*VulkanFramebuffer)
	if !ok {
		return errors.Newf("unexpected framebuffer handle %T", framebuffer)
	}
	if v.State != COMMAND_BUFFER_STATE_RECORDING {
		return errors.Newf("render pass begun in command buffer state %d", v.State)
	}
	renderpass.Begin(v, fb.Handle, vk.Extent2D{Width: extent.Width, Height: extent.Height}, clear)
	return nil
}

func (v *VulkanCommandBuffer) EndRenderPass() error {
	if v.State != COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		return errors.New("render pass ended outside of a render pass")
	}
	vk.CmdEndRenderPass(v.Handle)
	v.State = COMMAND_BUFFER_STATE_RECORDING
	return nil
}

// SetViewport sets both the viewport and the scissor to the full extent.
func (v *VulkanCommandBuffer) SetViewport(extent frame.Extent) {
	vk.CmdSetViewport(v.Handle, 0, 1, []vk.Viewport{{
		X:        0,
		Y:        0,
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	}})
	vk.CmdSetScissor(v.Handle, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: 0, Y: 0},
		Extent: vk.Extent2D{Width: extent.Width, Height: extent.Height},
	}})
}

func (v *VulkanCommandBuffer) BindPipeline(pipeline frame.Pipeline) {
	p, ok := pipeline.(*VulkanPipeline)
	if !ok {
		v.fail(errors.Newf("unexpected pipeline handle %T", pipeline))
		return
	}
	p.Bind(v, vk.PipelineBindPointGraphics)
}

func (v *VulkanCommandBuffer) BindVertexBuffer(buffer frame.Buffer) {
	b, ok := buffer.(*VulkanBuffer)
	if !ok {
		v.fail(errors.Newf("unexpected vertex buffer handle %T", buffer))
		return
	}
	vk.CmdBindVertexBuffers(v.Handle, 0, 1, []vk.Buffer{b.Handle}, []vk.DeviceSize{0})
}

func (v *VulkanCommandBuffer) BindIndexBuffer(buffer frame.Buffer) {
	b, ok := buffer.(*VulkanBuffer)
	if !ok {
		v.fail(errors.Newf("unexpected index buffer handle %T", buffer))
		return
	}
	vk.CmdBindIndexBuffer(v.Handle, b.Handle, 0, vk.IndexTypeUint32)
}

func (v *VulkanCommandBuffer) BindDescriptorSet(pipeline frame.Pipeline, set frame.DescriptorSet) {
	p, ok := pipeline.(*VulkanPipeline)
	if !ok {
		v.fail(errors.Newf("unexpected pipeline handle %T", pipeline))
		return
	}
	s, ok := set.(vk.DescriptorSet)
	if !ok {
		v.fail(errors.Newf("unexpected descriptor set handle %T", set))
		return
	}
	vk.CmdBindDescriptorSets(v.Handle, vk.PipelineBindPointGraphics, p.PipelineLayout, 0, 1, []vk.DescriptorSet{s}, 0, nil)
}

func (v *VulkanCommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	vk.CmdDrawIndexed(v.Handle, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

// AllocateAndBeginSingleUse allocates a primary buffer and begins recording
// it for one submission.
func AllocateAndBeginSingleUse(context *VulkanContext, pool vk.CommandPool) (*VulkanCommandBuffer, error) {
	cb, err := NewVulkanCommandBuffer(context, pool, true)
	if err != nil {
		return nil, err
	}
	if err := cb.BeginWithUsage(true, false, false); err != nil {
		cb.Free()
		return nil, err
	}
	return cb, nil
}

// EndSingleUse ends recording, submits to queue, waits for it to drain and
// frees the buffer.
func (v *VulkanCommandBuffer) EndSingleUse(queueFamily uint32, queue vk.Queue) error {
	defer v.Free()

	if err := v.End(); err != nil {
		return err
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{v.Handle},
	}
	return v.context.Locks.SafeQueueCall(queueFamily, func() error {
		if res := vk.QueueSubmit(queue, 1, []vk.SubmitInfo{submitInfo}, vk.NullFence); res != vk.Success {
			return resultError("vkQueueSubmit", res)
		}
		// Wait for it to finish
		return resultError("vkQueueWaitIdle", vk.QueueWaitIdle(queue))
	})
}

// singleUse records fn into a throwaway buffer on the graphics queue and
// waits for it to execute.
func singleUse(context *VulkanContext, fn func(cb *VulkanCommandBuffer)) error {
	cb, err := AllocateAndBeginSingleUse(context, context.Device.GraphicsCommandPool)
	if err != nil {
		return err
	}
	fn(cb)
	return cb.EndSingleUse(uint32(context.Device.GraphicsQueueIndex), context.Device.GraphicsQueue)
}
