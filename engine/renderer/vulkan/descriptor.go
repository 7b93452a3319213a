package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/hellodog/engine/renderer/frame"
)

// layoutBindings lists the bindings each kind of model reads. Textured
// models bind their own uniforms, their texture and the shared scene
// uniforms; untextured models only the scene uniforms; the screen quad only
// the offscreen color sampler.
func layoutBindings(kind frame.ModelKind) ([]vk.DescriptorSetLayoutBinding, error) {
	uniform := func(binding uint32) vk.DescriptorSetLayoutBinding {
		return vk.DescriptorSetLayoutBinding{
			Binding:         binding,
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageVertexBit),
		}
	}
	sampler := func(binding uint32) vk.DescriptorSetLayoutBinding {
		return vk.DescriptorSetLayoutBinding{
			Binding:         binding,
			DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
		}
	}

	switch kind {
	case frame.ModelTextured:
		return []vk.DescriptorSetLayoutBinding{uniform(0), sampler(1), uniform(2)}, nil
	case frame.ModelUntextured:
		return []vk.DescriptorSetLayoutBinding{uniform(0)}, nil
	case frame.ModelScreenQuad:
		return []vk.DescriptorSetLayoutBinding{sampler(0)}, nil
	default:
		return nil, errors.Newf("no descriptor layout for %s", kind)
	}
}

func DescriptorSetLayoutCreate(context *VulkanContext, kind frame.ModelKind) (vk.DescriptorSetLayout, error) {
	bindings, err := layoutBindings(kind)
	if err != nil {
		return nil, err
	}
	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	var layout vk.DescriptorSetLayout
	err = context.Locks.SafeCall(ResourceManagement, func() error {
		return resultError("vkCreateDescriptorSetLayout", vk.CreateDescriptorSetLayout(context.Device.LogicalDevice, &layoutInfo, context.Allocator, &layout))
	})
	return layout, errors.Wrapf(err, "%s descriptor layout", kind)
}

func DescriptorSetLayoutDestroy(context *VulkanContext, layout vk.DescriptorSetLayout) {
	vk.DestroyDescriptorSetLayout(context.Device.LogicalDevice, layout, context.Allocator)
}

// DescriptorDemand counts the descriptor sets of each kind a scene allocates.
type DescriptorDemand map[frame.ModelKind]uint32

// poolSizes sums the descriptors needed by every set in demand.
func (d DescriptorDemand) poolSizes() (maxSets uint32, sizes []vk.DescriptorPoolSize, err error) {
	counts := map[vk.DescriptorType]uint32{}
	for kind, sets := range d {
		bindings, err := layoutBindings(kind)
		if err != nil {
			return 0, nil, err
		}
		for _, b := range bindings {
			counts[b.DescriptorType] += b.DescriptorCount * sets
		}
		maxSets += sets
	}
	// Fixed order keeps the create info stable.
	for _, t := range []vk.DescriptorType{vk.DescriptorTypeUniformBuffer, vk.DescriptorTypeCombinedImageSampler} {
		if counts[t] > 0 {
			sizes = append(sizes, vk.DescriptorPoolSize{Type: t, DescriptorCount: counts[t]})
		}
	}
	return maxSets, sizes, nil
}

type VulkanDescriptorPool struct {
	Handle vk.DescriptorPool
}

func DescriptorPoolCreate(context *VulkanContext, demand DescriptorDemand) (*VulkanDescriptorPool, error) {
	maxSets, sizes, err := demand.poolSizes()
	if err != nil {
		return nil, err
	}
	if maxSets == 0 {
		return nil, errors.New("descriptor pool without sets")
	}

	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}
	pool := &VulkanDescriptorPool{}
	err = context.Locks.SafeCall(ResourceManagement, func() error {
		return resultError("vkCreateDescriptorPool", vk.CreateDescriptorPool(context.Device.LogicalDevice, &poolInfo, context.Allocator, &pool.Handle))
	})
	if err != nil {
		return nil, err
	}
	return pool, nil
}

// Allocate returns count sets of the same layout.
func (p *VulkanDescriptorPool) Allocate(context *VulkanContext, layout vk.DescriptorSetLayout, count uint32) ([]vk.DescriptorSet, error) {
	layouts := make([]vk.DescriptorSetLayout, count)
	for i := range layouts {
		layouts[i] = layout
	}
	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     p.Handle,
		DescriptorSetCount: count,
		PSetLayouts:        layouts,
	}
	sets := make([]vk.DescriptorSet, count)
	err := context.Locks.SafeCall(ResourceManagement, func() error {
		return resultError("vkAllocateDescriptorSets", vk.AllocateDescriptorSets(context.Device.LogicalDevice, &allocInfo, &sets[0]))
	})
	if err != nil {
		return nil, err
	}
	return sets, nil
}

// Destroy frees the pool and every set allocated from it.
func (p *VulkanDescriptorPool) Destroy(context *VulkanContext) {
	if p.Handle != nil {
		vk.DestroyDescriptorPool(context.Device.LogicalDevice, p.Handle, context.Allocator)
		p.Handle = nil
	}
}

// DescriptorResources are what a set points at. Only the fields the set's
// kind binds are read.
type DescriptorResources struct {
	ModelUniforms  *VulkanBuffer
	SharedUniforms *VulkanBuffer
	ImageView      vk.ImageView
	Sampler        vk.Sampler
}

func descriptorWrites(set vk.DescriptorSet, kind frame.ModelKind, res DescriptorResources) ([]vk.WriteDescriptorSet, error) {
	bufferWrite := func(binding uint32, buffer *VulkanBuffer) (vk.WriteDescriptorSet, error) {
		if buffer == nil {
			return vk.WriteDescriptorSet{}, errors.Newf("%s set binding %d needs a uniform buffer", kind, binding)
		}
		return vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      binding,
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			PBufferInfo: []vk.DescriptorBufferInfo{{
				Buffer: buffer.Handle,
				Offset: 0,
				Range:  buffer.Size,
			}},
		}, nil
	}
	imageWrite := func(binding uint32) (vk.WriteDescriptorSet, error) {
		if res.ImageView == nil || res.Sampler == nil {
			return vk.WriteDescriptorSet{}, errors.Newf("%s set binding %d needs an image view and a sampler", kind, binding)
		}
		return vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      binding,
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
			PImageInfo: []vk.DescriptorImageInfo{{
				Sampler:     res.Sampler,
				ImageView:   res.ImageView,
				ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
			}},
		}, nil
	}

	var build []func() (vk.WriteDescriptorSet, error)
	switch kind {
	case frame.ModelTextured:
		build = []func() (vk.WriteDescriptorSet, error){
			func() (vk.WriteDescriptorSet, error) { return bufferWrite(0, res.ModelUniforms) },
			func() (vk.WriteDescriptorSet, error) { return imageWrite(1) },
			func() (vk.WriteDescriptorSet, error) { return bufferWrite(2, res.SharedUniforms) },
		}
	case frame.ModelUntextured:
		build = []func() (vk.WriteDescriptorSet, error){
			func() (vk.WriteDescriptorSet, error) { return bufferWrite(0, res.SharedUniforms) },
		}
	case frame.ModelScreenQuad:
		build = []func() (vk.WriteDescriptorSet, error){
			func() (vk.WriteDescriptorSet, error) { return imageWrite(0) },
		}
	default:
		return nil, errors.Newf("no descriptor layout for %s", kind)
	}

	writes := make([]vk.WriteDescriptorSet, 0, len(build))
	for _, b := range build {
		w, err := b()
		if err != nil {
			return nil, err
		}
		writes = append(writes, w)
	}
	return writes, nil
}

// UpdateDescriptorSet points set at res.
func UpdateDescriptorSet(context *VulkanContext, set vk.DescriptorSet, kind frame.ModelKind, res DescriptorResources) error {
	writes, err := descriptorWrites(set, kind, res)
	if err != nil {
		return err
	}
	vk.UpdateDescriptorSets(context.Device.LogicalDevice, uint32(len(writes)), writes, 0, nil)
	return nil
}
