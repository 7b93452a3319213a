package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/hellodog/engine/core"
)

// VulkanFence caches the signaled state so a fence that has already been
// observed signaled is not waited on again.
type VulkanFence struct {
	Handle     vk.Fence
	IsSignaled bool

	context *VulkanContext
}

func NewFence(context *VulkanContext, createSignaled bool) (*VulkanFence, error) {
	fence := &VulkanFence{
		// Make sure to signal the fence if required.
		IsSignaled: createSignaled,
		context:    context,
	}

	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if fence.IsSignaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	err := context.Locks.SafeCall(SynchronizationManagement, func() error {
		return resultError("vkCreateFence", vk.CreateFence(context.Device.LogicalDevice, &fenceCreateInfo, context.Allocator, &fence.Handle))
	})
	if err != nil {
		return nil, err
	}
	return fence, nil
}

func (vf *VulkanFence) Destroy() {
	if vf.Handle != vk.NullFence {
		vk.DestroyFence(vf.context.Device.LogicalDevice, vf.Handle, vf.context.Allocator)
		vf.Handle = vk.NullFence
	}
	vf.IsSignaled = false
}

// Wait blocks without timeout until the fence is signaled.
func (vf *VulkanFence) Wait() error {
	if vf.IsSignaled {
		// If already signaled, do not wait.
		return nil
	}
	result := vk.WaitForFences(vf.context.Device.LogicalDevice, 1, []vk.Fence{vf.Handle}, vk.True, vk.MaxUint64)
	if result != vk.Success {
		core.LogError("vkWaitForFences returned %s", VulkanResultString(result))
		return resultError("vkWaitForFences", result)
	}
	vf.IsSignaled = true
	return nil
}

func (vf *VulkanFence) Reset() error {
	if !vf.IsSignaled {
		return nil
	}
	if res := vk.ResetFences(vf.context.Device.LogicalDevice, 1, []vk.Fence{vf.Handle}); res != vk.Success {
		return resultError("vkResetFences", res)
	}
	vf.IsSignaled = false
	return nil
}

type VulkanSemaphore struct {
	Handle vk.Semaphore

	context *VulkanContext
}

func NewSemaphore(context *VulkanContext) (*VulkanSemaphore, error) {
	semaphore := &VulkanSemaphore{context: context}
	createInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	err := context.Locks.SafeCall(SynchronizationManagement, func() error {
		return resultError("vkCreateSemaphore", vk.CreateSemaphore(context.Device.LogicalDevice, &createInfo, context.Allocator, &semaphore.Handle))
	})
	if err != nil {
		return nil, err
	}
	return semaphore, nil
}

func (vs *VulkanSemaphore) Destroy() {
	if vs.Handle != vk.NullSemaphore {
		vk.DestroySemaphore(vs.context.Device.LogicalDevice, vs.Handle, vs.context.Allocator)
		vs.Handle = vk.NullSemaphore
	}
}
