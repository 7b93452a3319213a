package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/google/uuid"
	"github.com/spaghettifunk/hellodog/engine/containers"
	"github.com/spaghettifunk/hellodog/engine/core"
)

// OffscreenTarget is the color and depth target of the geometry pass. There
// is one regardless of the swapchain image count; the post-process pass
// samples its color attachment.
type OffscreenTarget struct {
	ID          uuid.UUID
	Extent      vk.Extent2D
	Color       *VulkanImage
	Depth       *VulkanImage
	Renderpass  *VulkanRenderpass
	Framebuffer *VulkanFramebuffer
	// Sampler the post-process pass reads Color with.
	Sampler vk.Sampler

	releases *containers.ReleaseStack
}

func NewOffscreenTarget(context *VulkanContext, extent vk.Extent2D, colorFormat vk.Format) (*OffscreenTarget, error) {
	target := &OffscreenTarget{
		ID:       uuid.New(),
		Extent:   extent,
		releases: containers.NewReleaseStack(),
	}
	fail := func(err error) (*OffscreenTarget, error) {
		target.Destroy()
		return nil, errors.Wrapf(err, "offscreen target %s", target.ID)
	}

	color, err := ImageCreate(
		context,
		extent.Width,
		extent.Height,
		colorFormat,
		vk.ImageTilingOptimal,
		vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit|vk.ImageUsageSampledBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
		true,
		vk.ImageAspectFlags(vk.ImageAspectColorBit))
	if err != nil {
		return fail(err)
	}
	target.Color = color
	target.releases.PushFunc("color attachment", func() { color.Destroy(context) })

	depth, err := ImageCreate(
		context,
		extent.Width,
		extent.Height,
		context.Device.DepthFormat,
		vk.ImageTilingOptimal,
		vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
		true,
		vk.ImageAspectFlags(vk.ImageAspectDepthBit))
	if err != nil {
		return fail(err)
	}
	target.Depth = depth
	target.releases.PushFunc("depth attachment", func() { depth.Destroy(context) })

	renderpass, err := RenderpassCreate(context, RenderpassConfig{
		Name:             "offscreen-" + target.ID.String(),
		ColorFormat:      colorFormat,
		ColorFinalLayout: vk.ImageLayoutShaderReadOnlyOptimal,
		DepthFormat:      context.Device.DepthFormat,
		Dependencies:     offscreenDependencies(),
	})
	if err != nil {
		return fail(err)
	}
	target.Renderpass = renderpass
	target.releases.PushFunc("offscreen render pass", func() { renderpass.Destroy(context) })

	framebuffer, err := FramebufferCreate(context, renderpass, extent, color.View, depth.View)
	if err != nil {
		return fail(err)
	}
	target.Framebuffer = framebuffer
	target.releases.PushFunc("offscreen framebuffer", func() { framebuffer.Destroy(context) })

	sampler, err := SamplerCreate(context, vk.SamplerAddressModeClampToEdge, false)
	if err != nil {
		return fail(err)
	}
	target.Sampler = sampler
	target.releases.PushFunc("offscreen sampler", func() { vk.DestroySampler(context.Device.LogicalDevice, sampler, context.Allocator) })

	core.LogDebug("Offscreen target %s created (%dx%d).", target.ID, extent.Width, extent.Height)
	return target, nil
}

// Destroy releases everything in reverse creation order. Later calls do
// nothing.
func (t *OffscreenTarget) Destroy() {
	_ = t.releases.Release()
}
