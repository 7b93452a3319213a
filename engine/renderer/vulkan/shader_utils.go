package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

/**
 * @brief Represents a single shader stage.
 */
type VulkanShaderStage struct {
	/** @brief The internal shader module Handle. */
	Handle vk.ShaderModule
	/** @brief The pipeline shader stage creation info. */
	ShaderStageCreateInfo vk.PipelineShaderStageCreateInfo
}

// NewShaderStage wraps SPIR-V words in a shader module whose entry point is
// main. The module can be destroyed once the pipeline is built.
func NewShaderStage(context *VulkanContext, name string, stage vk.ShaderStageFlagBits, code []uint32) (*VulkanShaderStage, error) {
	if len(code) == 0 {
		return nil, errors.Newf("shader %q has no code", name)
	}
	outStage := &VulkanShaderStage{}

	createInfo := vk.ShaderModuleCreateInfo{
		SType: vk.StructureTypeShaderModuleCreateInfo,
		// Size is in bytes.
		CodeSize: uint64(len(code) * 4),
		PCode:    code,
	}
	err := context.Locks.SafeCall(PipelineManagement, func() error {
		return resultError("vkCreateShaderModule", vk.CreateShaderModule(
			context.Device.LogicalDevice,
			&createInfo,
			context.Allocator,
			&outStage.Handle))
	})
	if err != nil {
		return nil, errors.Wrapf(err, "shader %q", name)
	}

	// Shader stage info
	outStage.ShaderStageCreateInfo = vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  stage,
		Module: outStage.Handle,
		PName:  VulkanSafeString("main"),
	}
	return outStage, nil
}

func (s *VulkanShaderStage) Destroy(context *VulkanContext) {
	if s.Handle != vk.NullShaderModule {
		vk.DestroyShaderModule(context.Device.LogicalDevice, s.Handle, context.Allocator)
		s.Handle = vk.NullShaderModule
	}
}
