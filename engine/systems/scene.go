package systems

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/hellodog/engine/assets"
	"github.com/spaghettifunk/hellodog/engine/assets/loaders"
	"github.com/spaghettifunk/hellodog/engine/containers"
	"github.com/spaghettifunk/hellodog/engine/core"
	"github.com/spaghettifunk/hellodog/engine/renderer/components"
	"github.com/spaghettifunk/hellodog/engine/renderer/frame"
	"github.com/spaghettifunk/hellodog/engine/renderer/vulkan"
)

// ModelConfig places one textured model in the scene.
type ModelConfig struct {
	Name     string
	Model    string
	Texture  string
	Position [3]float32
}

type SceneConfig struct {
	Models []ModelConfig
	// Untextured model drawn at the light position.
	LightModel string
}

// Shader programs, each compiled to <name>-vert.spv and <name>-frag.spv.
const (
	shaderTextured = iota
	shaderUntextured
	shaderPostProcess
	shaderCount
)

var shaderNames = [shaderCount]string{"textured", "untextured", "post-process"}

type shaderCode struct {
	vertex   []uint32
	fragment []uint32
}

// sceneAssets is everything decoded from disk before touching the GPU.
type sceneAssets struct {
	meshes   []*loaders.Mesh
	textures []*loaders.Texture
	light    *loaders.Mesh
	shaders  [shaderCount]shaderCode
}

// Scene owns every GPU resource the two passes draw with. Geometry and Post
// are the per pass draw lists handed to the recorder.
type Scene struct {
	*SceneUniforms

	Geometry *frame.MaterialScene
	Post     *frame.MaterialScene

	context    *vulkan.VulkanContext
	imageCount uint32
	pool       *vulkan.VulkanDescriptorPool
	layouts    map[frame.ModelKind]vk.DescriptorSetLayout
	releases   *containers.ReleaseStack
}

// vulkanUniform writes a persistently mapped uniform buffer.
type vulkanUniform struct {
	context *vulkan.VulkanContext
	buffer  *vulkan.VulkanBuffer
}

func (u vulkanUniform) Write(data []byte) error {
	return u.buffer.LoadData(u.context, 0, data)
}

// NewScene decodes the scene's assets in parallel, then uploads them and
// builds the pipelines and materials of both passes.
func NewScene(ctx context.Context, renderer *vulkan.VulkanRenderer, am *assets.AssetManager, jobs *JobSystem, camera *components.Camera, config SceneConfig) (*Scene, error) {
	if len(config.Models) == 0 {
		return nil, errors.New("scene needs at least one textured model")
	}

	decoded, err := loadSceneAssets(ctx, am, jobs, config)
	if err != nil {
		return nil, err
	}

	s := &Scene{
		context:    renderer.Context(),
		imageCount: renderer.ImageCount(),
		layouts:    make(map[frame.ModelKind]vk.DescriptorSetLayout),
		releases:   containers.NewReleaseStack(),
	}
	if err := s.build(renderer, camera, config, decoded); err != nil {
		return nil, errors.CombineErrors(err, s.Destroy())
	}
	core.LogInfo("Scene ready: %d textured models, %d presentable images.", len(config.Models), s.imageCount)
	return s, nil
}

func loadSceneAssets(ctx context.Context, am *assets.AssetManager, jobs *JobSystem, config SceneConfig) (*sceneAssets, error) {
	decoded := &sceneAssets{
		meshes:   make([]*loaders.Mesh, len(config.Models)),
		textures: make([]*loaders.Texture, len(config.Models)),
	}

	var tasks []JobTask
	// Every task writes its own slot.
	for i, m := range config.Models {
		tasks = append(tasks,
			JobTask{
				Name: "mesh " + m.Model,
				Run: func(context.Context) (err error) {
					decoded.meshes[i], err = am.LoadModel(m.Model)
					return err
				},
			},
			JobTask{
				Name: "texture " + m.Texture,
				Run: func(context.Context) (err error) {
					decoded.textures[i], err = am.LoadTexture(m.Texture)
					return err
				},
			})
	}
	tasks = append(tasks, JobTask{
		Name: "mesh " + config.LightModel,
		Run: func(context.Context) (err error) {
			decoded.light, err = am.LoadModel(config.LightModel)
			return err
		},
	})
	for i, name := range shaderNames {
		tasks = append(tasks, JobTask{
			Name: "shader " + name,
			Run: func(context.Context) (err error) {
				code := &decoded.shaders[i]
				if code.vertex, err = am.LoadShader(name, loaders.ShaderStageVertex); err != nil {
					return err
				}
				code.fragment, err = am.LoadShader(name, loaders.ShaderStageFragment)
				return err
			},
		})
	}

	if err := jobs.RunAll(ctx, tasks...); err != nil {
		return nil, errors.Wrap(err, "loading scene assets")
	}
	return decoded, nil
}

func (s *Scene) build(renderer *vulkan.VulkanRenderer, camera *components.Camera, config SceneConfig, decoded *sceneAssets) error {
	for _, kind := range []frame.ModelKind{frame.ModelTextured, frame.ModelUntextured, frame.ModelScreenQuad} {
		layout, err := vulkan.DescriptorSetLayoutCreate(s.context, kind)
		if err != nil {
			return err
		}
		s.layouts[kind] = layout
		s.releases.PushFunc(kind.String()+" descriptor layout", func() { vulkan.DescriptorSetLayoutDestroy(s.context, layout) })
	}

	pool, err := vulkan.DescriptorPoolCreate(s.context, vulkan.DescriptorDemand{
		frame.ModelTextured:   uint32(len(config.Models)) * s.imageCount,
		frame.ModelUntextured: s.imageCount,
		frame.ModelScreenQuad: s.imageCount,
	})
	if err != nil {
		return err
	}
	s.pool = pool
	s.releases.PushFunc("descriptor pool", func() { pool.Destroy(s.context) })

	// Shared uniforms, one buffer per image.
	sharedBuffers := make([]*vulkan.VulkanBuffer, s.imageCount)
	sinks := make([]UniformSink, s.imageCount)
	for i := range sharedBuffers {
		buffer, err := s.uniformBuffer(fmt.Sprintf("shared uniforms %d", i), SharedUniformSize)
		if err != nil {
			return err
		}
		sharedBuffers[i] = buffer
		sinks[i] = vulkanUniform{context: s.context, buffer: buffer}
	}
	s.SceneUniforms = NewSceneUniforms(camera, renderer.Extent(), sinks)

	// Geometry pass.
	offscreenPass := renderer.Offscreen.Renderpass
	texturedPipeline, err := s.pipeline(shaderNames[shaderTextured], offscreenPass, decoded.shaders[shaderTextured],
		vulkan.MeshVertexStride, vulkan.MeshVertexAttributes(), s.layouts[frame.ModelTextured], vk.CullModeBackBit, true)
	if err != nil {
		return err
	}
	textured := frame.NewMaterial("textured", frame.ModelTextured, texturedPipeline)
	for i, m := range config.Models {
		model, err := s.texturedModel(m, decoded.meshes[i], decoded.textures[i], sharedBuffers)
		if err != nil {
			return errors.Wrapf(err, "model %s", m.Name)
		}
		if err := textured.Add(model); err != nil {
			return err
		}
	}

	untexturedPipeline, err := s.pipeline(shaderNames[shaderUntextured], offscreenPass, decoded.shaders[shaderUntextured],
		vulkan.MeshVertexStride, vulkan.MeshVertexAttributes(), s.layouts[frame.ModelUntextured], vk.CullModeBackBit, true)
	if err != nil {
		return err
	}
	light := frame.NewMaterial("light", frame.ModelUntextured, untexturedPipeline)
	lightModel, err := s.model(decoded.light.Name, frame.ModelUntextured, decoded.light.VertexBytes(), decoded.light.IndexBytes(), uint32(len(decoded.light.Indices)),
		func(uint32) vulkan.DescriptorResources { return vulkan.DescriptorResources{} }, sharedBuffers)
	if err != nil {
		return errors.Wrap(err, "light model")
	}
	if err := light.Add(lightModel); err != nil {
		return err
	}
	s.Geometry = frame.NewMaterialScene(textured, light)

	// Post-process pass samples the offscreen color attachment.
	postPipeline, err := s.pipeline(shaderNames[shaderPostProcess], renderer.PostProcess.Renderpass, decoded.shaders[shaderPostProcess],
		vulkan.QuadVertexStride, vulkan.QuadVertexAttributes(), s.layouts[frame.ModelScreenQuad], vk.CullModeNone, false)
	if err != nil {
		return err
	}
	post := frame.NewMaterial("post-process", frame.ModelScreenQuad, postPipeline)
	quadVertices, quadIndices := screenQuadBytes()
	quad, err := s.model("screen quad", frame.ModelScreenQuad, quadVertices, quadIndices, uint32(len(screenQuadIndices)),
		func(uint32) vulkan.DescriptorResources {
			return vulkan.DescriptorResources{
				ImageView: renderer.Offscreen.Color.View,
				Sampler:   renderer.Offscreen.Sampler,
			}
		}, nil)
	if err != nil {
		return err
	}
	if err := post.Add(quad); err != nil {
		return err
	}
	s.Post = frame.NewMaterialScene(post)
	return nil
}

func (s *Scene) uniformBuffer(name string, size vk.DeviceSize) (*vulkan.VulkanBuffer, error) {
	buffer, err := vulkan.UniformBuffer(s.context, size)
	if err != nil {
		return nil, errors.Wrap(err, name)
	}
	s.releases.PushFunc(name, func() { buffer.Destroy(s.context) })
	return buffer, nil
}

// texturedModel uploads the texture and writes the model matrix into each
// image's model uniform buffer once.
func (s *Scene) texturedModel(config ModelConfig, mesh *loaders.Mesh, texture *loaders.Texture, shared []*vulkan.VulkanBuffer) (*frame.Model, error) {
	gpuTexture, err := vulkan.TextureCreate(s.context, texture.Name, texture.Width, texture.Height, texture.Pixels)
	if err != nil {
		return nil, err
	}
	s.releases.PushFunc(config.Name+" texture", func() { gpuTexture.Destroy(s.context) })

	matrix := ModelUniformBytes(mgl32.Translate3D(config.Position[0], config.Position[1], config.Position[2]))
	modelBuffers := make([]*vulkan.VulkanBuffer, s.imageCount)
	for i := range modelBuffers {
		buffer, err := s.uniformBuffer(fmt.Sprintf("%s uniforms %d", config.Name, i), ModelUniformSize)
		if err != nil {
			return nil, err
		}
		if err := buffer.LoadData(s.context, 0, matrix); err != nil {
			return nil, err
		}
		modelBuffers[i] = buffer
	}

	return s.model(config.Name, frame.ModelTextured, mesh.VertexBytes(), mesh.IndexBytes(), uint32(len(mesh.Indices)),
		func(image uint32) vulkan.DescriptorResources {
			return vulkan.DescriptorResources{
				ModelUniforms: modelBuffers[image],
				ImageView:     gpuTexture.Image.View,
				Sampler:       gpuTexture.Sampler,
			}
		}, shared)
}

// model uploads vertex and index data and allocates one descriptor set per
// image, pointed at resources(image) and the image's shared uniforms.
func (s *Scene) model(name string, kind frame.ModelKind, vertices, indices []byte, count uint32, resources func(image uint32) vulkan.DescriptorResources, shared []*vulkan.VulkanBuffer) (*frame.Model, error) {
	vertexBuffer, err := vulkan.DeviceLocalBuffer(s.context, vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit), vertices)
	if err != nil {
		return nil, errors.Wrapf(err, "%s vertex buffer", name)
	}
	s.releases.PushFunc(name+" vertex buffer", func() { vertexBuffer.Destroy(s.context) })

	indexBuffer, err := vulkan.DeviceLocalBuffer(s.context, vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit), indices)
	if err != nil {
		return nil, errors.Wrapf(err, "%s index buffer", name)
	}
	s.releases.PushFunc(name+" index buffer", func() { indexBuffer.Destroy(s.context) })

	sets, err := s.pool.Allocate(s.context, s.layouts[kind], s.imageCount)
	if err != nil {
		return nil, errors.Wrapf(err, "%s descriptor sets", name)
	}
	model := &frame.Model{
		Name:     name,
		Variant:  kind,
		Vertices: vertexBuffer,
		Indices:  indexBuffer,
		Count:    count,
		Sets:     make([]frame.DescriptorSet, len(sets)),
	}
	for i, set := range sets {
		res := resources(uint32(i))
		if shared != nil {
			res.SharedUniforms = shared[i]
		}
		if err := vulkan.UpdateDescriptorSet(s.context, set, kind, res); err != nil {
			return nil, errors.Wrapf(err, "%s descriptor set %d", name, i)
		}
		model.Sets[i] = set
	}
	return model, nil
}

func (s *Scene) pipeline(name string, renderpass *vulkan.VulkanRenderpass, code shaderCode, stride uint32, attributes []vk.VertexInputAttributeDescription, layout vk.DescriptorSetLayout, cull vk.CullModeFlagBits, depth bool) (*vulkan.VulkanPipeline, error) {
	vertex, err := vulkan.NewShaderStage(s.context, name+" vertex", vk.ShaderStageVertexBit, code.vertex)
	if err != nil {
		return nil, err
	}
	defer vertex.Destroy(s.context)
	fragment, err := vulkan.NewShaderStage(s.context, name+" fragment", vk.ShaderStageFragmentBit, code.fragment)
	if err != nil {
		return nil, err
	}
	defer fragment.Destroy(s.context)

	pipeline, err := vulkan.NewGraphicsPipeline(s.context, &vulkan.VulkanPipelineConfig{
		Name:                 name,
		Renderpass:           renderpass,
		Stride:               stride,
		Attributes:           attributes,
		DescriptorSetLayouts: []vk.DescriptorSetLayout{layout},
		Stages:               []vk.PipelineShaderStageCreateInfo{vertex.ShaderStageCreateInfo, fragment.ShaderStageCreateInfo},
		CullMode:             cull,
		DepthTest:            depth,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "%s pipeline", name)
	}
	s.releases.PushFunc(name+" pipeline", func() { pipeline.Destroy(s.context) })
	return pipeline, nil
}

// Destroy releases every resource in reverse creation order. The device must
// be idle. Later calls do nothing.
func (s *Scene) Destroy() error {
	return s.releases.Release()
}

// The screen quad covers clip space; texture coordinates follow the image.
var (
	screenQuadVertices = [4][4]float32{
		{-1, -1, 0, 0},
		{1, -1, 1, 0},
		{1, 1, 1, 1},
		{-1, 1, 0, 1},
	}
	screenQuadIndices = []uint32{0, 3, 2, 2, 1, 0}
)

func screenQuadBytes() (vertices, indices []byte) {
	for _, v := range screenQuadVertices {
		for _, f := range v {
			vertices = binary.LittleEndian.AppendUint32(vertices, math.Float32bits(f))
		}
	}
	for _, i := range screenQuadIndices {
		indices = binary.LittleEndian.AppendUint32(indices, i)
	}
	return vertices, indices
}
