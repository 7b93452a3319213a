package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

type VulkanBuffer struct {
	Handle vk.Buffer
	Memory vk.DeviceMemory
	Size   vk.DeviceSize
	Usage  vk.BufferUsageFlags

	// Set while the memory is persistently mapped.
	mapped unsafe.Pointer
}

func BufferCreate(context *VulkanContext, size vk.DeviceSize, usage vk.BufferUsageFlags, memoryFlags vk.MemoryPropertyFlags) (*VulkanBuffer, error) {
	if size == 0 {
		return nil, errors.New("cannot create an empty buffer")
	}
	outBuffer := &VulkanBuffer{
		Size:  size,
		Usage: usage,
	}

	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        size,
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive, // NOTE: Only used in one queue.
	}

	err := context.Locks.SafeCall(MemoryManagement, func() error {
		if res := vk.CreateBuffer(context.Device.LogicalDevice, &bufferInfo, context.Allocator, &outBuffer.Handle); res != vk.Success {
			return resultError("vkCreateBuffer", res)
		}

		// Gather memory requirements.
		var requirements vk.MemoryRequirements
		vk.GetBufferMemoryRequirements(context.Device.LogicalDevice, outBuffer.Handle, &requirements)
		requirements.Deref()

		memoryIndex, err := context.FindMemoryIndex(requirements.MemoryTypeBits, memoryFlags)
		if err != nil {
			return errors.Wrap(err, "unable to create vulkan buffer because the required memory type index was not found")
		}

		// Allocate memory info
		allocateInfo := vk.MemoryAllocateInfo{
			SType:           vk.StructureTypeMemoryAllocateInfo,
			AllocationSize:  requirements.Size,
			MemoryTypeIndex: memoryIndex,
		}
		if res := vk.AllocateMemory(context.Device.LogicalDevice, &allocateInfo, context.Allocator, &outBuffer.Memory); res != vk.Success {
			return resultError("vkAllocateMemory", res)
		}
		return resultError("vkBindBufferMemory", vk.BindBufferMemory(context.Device.LogicalDevice, outBuffer.Handle, outBuffer.Memory, 0))
	})
	if err != nil {
		outBuffer.Destroy(context)
		return nil, err
	}
	return outBuffer, nil
}

// LoadData copies data into host visible memory at offset.
func (vb *VulkanBuffer) LoadData(context *VulkanContext, offset vk.DeviceSize, data []byte) error {
	if offset+vk.DeviceSize(len(data)) > vb.Size {
		return errors.Newf("writing %d bytes at %d overflows a buffer of %d bytes", len(data), offset, vb.Size)
	}
	if vb.mapped != nil {
		vk.Memcopy(unsafe.Add(vb.mapped, offset), data)
		return nil
	}
	var ptr unsafe.Pointer
	if res := vk.MapMemory(context.Device.LogicalDevice, vb.Memory, offset, vk.DeviceSize(len(data)), 0, &ptr); res != vk.Success {
		return resultError("vkMapMemory", res)
	}
	vk.Memcopy(ptr, data)
	vk.UnmapMemory(context.Device.LogicalDevice, vb.Memory)
	return nil
}

// Map keeps the whole buffer mapped until Destroy. Uniform buffers written
// every frame use it.
func (vb *VulkanBuffer) Map(context *VulkanContext) error {
	if vb.mapped != nil {
		return nil
	}
	if res := vk.MapMemory(context.Device.LogicalDevice, vb.Memory, 0, vb.Size, 0, &vb.mapped); res != vk.Success {
		return resultError("vkMapMemory", res)
	}
	return nil
}

// CopyTo copies size bytes into dest on the graphics queue and waits for the
// copy to finish.
func (vb *VulkanBuffer) CopyTo(context *VulkanContext, dest *VulkanBuffer, size vk.DeviceSize) error {
	return singleUse(context, func(cb *VulkanCommandBuffer) {
		vk.CmdCopyBuffer(cb.Handle, vb.Handle, dest.Handle, 1, []vk.BufferCopy{{
			SrcOffset: 0,
			DstOffset: 0,
			Size:      size,
		}})
	})
}

func (vb *VulkanBuffer) Destroy(context *VulkanContext) {
	if vb.mapped != nil {
		vk.UnmapMemory(context.Device.LogicalDevice, vb.Memory)
		vb.mapped = nil
	}
	if vb.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(context.Device.LogicalDevice, vb.Memory, context.Allocator)
		vb.Memory = vk.NullDeviceMemory
	}
	if vb.Handle != vk.NullBuffer {
		vk.DestroyBuffer(context.Device.LogicalDevice, vb.Handle, context.Allocator)
		vb.Handle = vk.NullBuffer
	}
	vb.Size = 0
}

// stagingBuffer holds data in host visible memory ready to be copied to the
// device.
func stagingBuffer(context *VulkanContext, data []byte) (*VulkanBuffer, error) {
	staging, err := BufferCreate(context,
		vk.DeviceSize(len(data)),
		vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		return nil, err
	}
	if err := staging.LoadData(context, 0, data); err != nil {
		staging.Destroy(context)
		return nil, err
	}
	return staging, nil
}

// DeviceLocalBuffer uploads data through a staging buffer into device local
// memory usable as usage.
func DeviceLocalBuffer(context *VulkanContext, usage vk.BufferUsageFlags, data []byte) (*VulkanBuffer, error) {
	staging, err := stagingBuffer(context, data)
	if err != nil {
		return nil, err
	}
	defer staging.Destroy(context)

	buffer, err := BufferCreate(context,
		vk.DeviceSize(len(data)),
		usage|vk.BufferUsageFlags(vk.BufferUsageTransferDstBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		return nil, err
	}
	if err := staging.CopyTo(context, buffer, vk.DeviceSize(len(data))); err != nil {
		buffer.Destroy(context)
		return nil, err
	}
	return buffer, nil
}

// UniformBuffer creates a persistently mapped, host coherent uniform buffer.
func UniformBuffer(context *VulkanContext, size vk.DeviceSize) (*VulkanBuffer, error) {
	buffer, err := BufferCreate(context,
		size,
		vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		return nil, err
	}
	if err := buffer.Map(context); err != nil {
		buffer.Destroy(context)
		return nil, err
	}
	return buffer, nil
}
