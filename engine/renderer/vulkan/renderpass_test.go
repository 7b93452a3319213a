package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"
)

func TestOffscreenDependenciesOrderSharedAttachments(t *testing.T) {
	deps := offscreenDependencies()
	if len(deps) != 2 {
		t.Fatalf("got %d dependencies, want 2", len(deps))
	}

	in := deps[0]
	if in.SrcSubpass != vk.SubpassExternal || in.DstSubpass != 0 {
		t.Fatalf("first dependency runs %d -> %d", in.SrcSubpass, in.DstSubpass)
	}
	// The previous frame's depth tests must finish before this frame clears
	// and tests the same depth image.
	for _, stage := range []vk.PipelineStageFlagBits{vk.PipelineStageEarlyFragmentTestsBit, vk.PipelineStageLateFragmentTestsBit} {
		if in.SrcStageMask&vk.PipelineStageFlags(stage) == 0 {
			t.Errorf("source stages %#x miss %#x", in.SrcStageMask, stage)
		}
		if in.DstStageMask&vk.PipelineStageFlags(stage) == 0 {
			t.Errorf("destination stages %#x miss %#x", in.DstStageMask, stage)
		}
	}
	depthWrite := vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit)
	if in.SrcAccessMask&depthWrite == 0 || in.DstAccessMask&depthWrite == 0 {
		t.Errorf("depth writes not ordered: src %#x dst %#x", in.SrcAccessMask, in.DstAccessMask)
	}
	// The post pass of the previous frame still samples the color attachment.
	if in.SrcAccessMask&vk.AccessFlags(vk.AccessShaderReadBit) == 0 {
		t.Errorf("source access %#x misses shader reads", in.SrcAccessMask)
	}

	out := deps[1]
	if out.DstSubpass != vk.SubpassExternal || out.DstAccessMask&vk.AccessFlags(vk.AccessShaderReadBit) == 0 {
		t.Errorf("second dependency does not publish color writes to shader reads: %+v", out)
	}
}
