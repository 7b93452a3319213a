package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/hellodog/engine/core"
)

// VulkanTexture is a sampled RGBA8 sRGB image with its own sampler.
type VulkanTexture struct {
	Name    string
	Image   *VulkanImage
	Sampler vk.Sampler
}

// TextureCreate uploads tightly packed RGBA8 pixels and leaves the image in
// shader read layout.
func TextureCreate(context *VulkanContext, name string, width, height uint32, pixels []byte) (*VulkanTexture, error) {
	if want := int(width) * int(height) * 4; len(pixels) != want {
		return nil, errors.Newf("texture %q: got %d bytes of pixels, want %d", name, len(pixels), want)
	}

	staging, err := stagingBuffer(context, pixels)
	if err != nil {
		return nil, errors.Wrapf(err, "texture %q", name)
	}
	defer staging.Destroy(context)

	image, err := ImageCreate(
		context,
		width,
		height,
		vk.FormatR8g8b8a8Srgb,
		vk.ImageTilingOptimal,
		vk.ImageUsageFlags(vk.ImageUsageTransferDstBit|vk.ImageUsageSampledBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
		true,
		vk.ImageAspectFlags(vk.ImageAspectColorBit))
	if err != nil {
		return nil, errors.Wrapf(err, "texture %q", name)
	}

	var recordErr error
	err = singleUse(context, func(cb *VulkanCommandBuffer) {
		if recordErr = image.TransitionLayout(cb, vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal); recordErr != nil {
			return
		}
		image.CopyFromBuffer(staging.Handle, cb)
		recordErr = image.TransitionLayout(cb, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal)
	})
	if err = errors.CombineErrors(recordErr, err); err != nil {
		image.Destroy(context)
		return nil, errors.Wrapf(err, "uploading texture %q", name)
	}

	sampler, err := SamplerCreate(context, vk.SamplerAddressModeRepeat, true)
	if err != nil {
		image.Destroy(context)
		return nil, errors.Wrapf(err, "texture %q", name)
	}

	core.LogDebug("Texture '%s' uploaded (%dx%d).", name, width, height)
	return &VulkanTexture{
		Name:    name,
		Image:   image,
		Sampler: sampler,
	}, nil
}

// SamplerCreate creates a linear sampler. Anisotropy uses the device limit.
func SamplerCreate(context *VulkanContext, addressMode vk.SamplerAddressMode, anisotropy bool) (vk.Sampler, error) {
	samplerInfo := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vk.FilterLinear,
		MinFilter:               vk.FilterLinear,
		MipmapMode:              vk.SamplerMipmapModeLinear,
		AddressModeU:            addressMode,
		AddressModeV:            addressMode,
		AddressModeW:            addressMode,
		AnisotropyEnable:        vk.False,
		MaxAnisotropy:           1,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MinLod:                  0,
		MaxLod:                  0,
		BorderColor:             vk.BorderColorIntOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
	}
	if anisotropy {
		samplerInfo.AnisotropyEnable = vk.True
		samplerInfo.MaxAnisotropy = context.Device.Properties.Limits.MaxSamplerAnisotropy
	}

	var sampler vk.Sampler
	err := context.Locks.SafeCall(ResourceManagement, func() error {
		return resultError("vkCreateSampler", vk.CreateSampler(context.Device.LogicalDevice, &samplerInfo, context.Allocator, &sampler))
	})
	return sampler, err
}

func (vt *VulkanTexture) Destroy(context *VulkanContext) {
	if vt.Sampler != nil {
		vk.DestroySampler(context.Device.LogicalDevice, vt.Sampler, context.Allocator)
		vt.Sampler = nil
	}
	if vt.Image != nil {
		vt.Image.Destroy(context)
		vt.Image = nil
	}
}
