package frame

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// ModelKind tells which pipeline layout a model's descriptor sets follow.
type ModelKind int

const (
	// ModelTextured binds its own uniform buffer, a combined image sampler
	// and the shared scene uniform buffer.
	ModelTextured ModelKind = iota
	// ModelUntextured binds only the shared scene uniform buffer.
	ModelUntextured
	// ModelScreenQuad binds only the sampler of the offscreen color target.
	ModelScreenQuad
)

func (k ModelKind) String() string {
	switch k {
	case ModelTextured:
		return "textured"
	case ModelUntextured:
		return "untextured"
	case ModelScreenQuad:
		return "screen quad"
	default:
		return fmt.Sprintf("ModelKind(%d)", int(k))
	}
}

// Drawable is anything a material can draw with one indexed draw call.
type Drawable interface {
	Kind() ModelKind
	VertexBuffer() Buffer
	IndexBuffer() Buffer
	DescriptorSet(imageIndex uint32) DescriptorSet
	IndexCount() uint32
}

// Scene writes the draw commands of one pass into an encoder.
type Scene interface {
	WriteRenderCommands(encoder CommandEncoder, imageIndex uint32) error
}

// Model is a GPU resident mesh: vertex and index buffers plus one descriptor
// set per presentable image. A model with a single set shares it across all
// images; any other count must match the image count.
type Model struct {
	Name     string
	Variant  ModelKind
	Vertices Buffer
	Indices  Buffer
	Count    uint32
	Sets     []DescriptorSet
}

func (m *Model) Kind() ModelKind {
	return m.Variant
}

func (m *Model) VertexBuffer() Buffer {
	return m.Vertices
}

func (m *Model) IndexBuffer() Buffer {
	return m.Indices
}

func (m *Model) DescriptorSet(imageIndex uint32) DescriptorSet {
	if len(m.Sets) == 0 {
		return nil
	}
	if len(m.Sets) == 1 {
		return m.Sets[0]
	}
	// Sharing a set between images would share their uniform buffers.
	if int(imageIndex) >= len(m.Sets) {
		return nil
	}
	return m.Sets[imageIndex]
}

func (m *Model) IndexCount() uint32 {
	return m.Count
}

// Material is a pipeline and the drawables rendered with it. All drawables
// must be of the material's kind.
type Material struct {
	Name      string
	Kind      ModelKind
	Pipeline  Pipeline
	Drawables []Drawable
}

func NewMaterial(name string, kind ModelKind, pipeline Pipeline) *Material {
	return &Material{
		Name:     name,
		Kind:     kind,
		Pipeline: pipeline,
	}
}

// Add appends d, rejecting drawables whose layout does not fit the pipeline.
func (m *Material) Add(d Drawable) error {
	if d.Kind() != m.Kind {
		return errors.Newf("material %s draws %s models, got %s", m.Name, m.Kind, d.Kind())
	}
	m.Drawables = append(m.Drawables, d)
	return nil
}

// WriteRenderCommands binds the pipeline once, then every drawable's buffers
// and descriptor set for imageIndex, and issues one indexed draw each.
func (m *Material) WriteRenderCommands(encoder CommandEncoder, imageIndex uint32) error {
	if len(m.Drawables) == 0 {
		return nil
	}
	encoder.BindPipeline(m.Pipeline)
	for _, d := range m.Drawables {
		if d.Kind() != m.Kind {
			return errors.Newf("material %s cannot draw a %s model", m.Name, d.Kind())
		}
		set := d.DescriptorSet(imageIndex)
		if set == nil {
			return errors.Newf("material %s: drawable has no descriptor set for image %d", m.Name, imageIndex)
		}
		encoder.BindVertexBuffer(d.VertexBuffer())
		encoder.BindIndexBuffer(d.IndexBuffer())
		encoder.BindDescriptorSet(m.Pipeline, set)
		encoder.DrawIndexed(d.IndexCount(), 1, 0, 0, 0)
	}
	return nil
}

// MaterialScene renders its materials in order.
type MaterialScene struct {
	Materials []*Material
}

func NewMaterialScene(materials ...*Material) *MaterialScene {
	return &MaterialScene{Materials: materials}
}

func (s *MaterialScene) WriteRenderCommands(encoder CommandEncoder, imageIndex uint32) error {
	for _, m := range s.Materials {
		if err := m.WriteRenderCommands(encoder, imageIndex); err != nil {
			return err
		}
	}
	return nil
}
