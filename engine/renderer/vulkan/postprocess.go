package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/google/uuid"
	"github.com/spaghettifunk/hellodog/engine/containers"
	"github.com/spaghettifunk/hellodog/engine/core"
)

// PostProcessTarget renders the screen quad into the swapchain images: one
// shared render pass ending in present layout and one framebuffer per image.
type PostProcessTarget struct {
	ID           uuid.UUID
	Renderpass   *VulkanRenderpass
	Framebuffers []*VulkanFramebuffer

	releases *containers.ReleaseStack
}

func NewPostProcessTarget(context *VulkanContext, swapchain *VulkanSwapchain) (*PostProcessTarget, error) {
	target := &PostProcessTarget{
		ID:       uuid.New(),
		releases: containers.NewReleaseStack(),
	}

	renderpass, err := RenderpassCreate(context, RenderpassConfig{
		Name:             "post-" + target.ID.String(),
		ColorFormat:      swapchain.ImageFormat.Format,
		ColorFinalLayout: vk.ImageLayoutPresentSrc,
		DepthFormat:      vk.FormatUndefined,
		Dependencies:     presentDependencies(),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "post-process target %s", target.ID)
	}
	target.Renderpass = renderpass
	target.releases.PushFunc("post-process render pass", func() { renderpass.Destroy(context) })

	target.Framebuffers = make([]*VulkanFramebuffer, 0, len(swapchain.Views))
	for i, view := range swapchain.Views {
		framebuffer, err := FramebufferCreate(context, renderpass, swapchain.Extent, view)
		if err != nil {
			target.Destroy()
			return nil, errors.Wrapf(err, "post-process framebuffer %d", i)
		}
		target.Framebuffers = append(target.Framebuffers, framebuffer)
		target.releases.PushFunc("post-process framebuffer", func() { framebuffer.Destroy(context) })
	}

	core.LogDebug("Post-process target %s created with %d framebuffers.", target.ID, len(target.Framebuffers))
	return target, nil
}

// Destroy releases the framebuffers, then the render pass. Later calls do
// nothing.
func (t *PostProcessTarget) Destroy() {
	_ = t.releases.Release()
}
