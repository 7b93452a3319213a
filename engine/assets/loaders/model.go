package loaders

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/g3n/engine/loader/obj"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/hellodog/engine/core"
)

type ModelLoader struct{}

// Load reads a Wavefront OBJ file. A material library next to it is read
// too, but only the geometry is kept.
func (ml *ModelLoader) Load(path string) (any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(core.ErrAssetNotFound, "model %s: %v", path, err)
	}
	defer f.Close()

	var mtl io.Reader = strings.NewReader("")
	if m, err := os.Open(strings.TrimSuffix(path, filepath.Ext(path)) + ".mtl"); err == nil {
		defer m.Close()
		mtl = m
	}

	mesh, err := DecodeOBJ(f, mtl)
	if err != nil {
		return nil, errors.Wrapf(err, "model %s", path)
	}
	mesh.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return mesh, nil
}

// vertexKey identifies a unique position/uv/normal combination.
type vertexKey struct {
	position, uv, normal int
}

// DecodeOBJ triangulates every face as a fan and merges identical vertices.
// Texture coordinates are flipped vertically for Vulkan.
func DecodeOBJ(objReader, mtlReader io.Reader) (*Mesh, error) {
	decoder, err := obj.DecodeReader(objReader, mtlReader)
	if err != nil {
		return nil, errors.Wrapf(core.ErrInvalidMesh, "decoding obj: %v", err)
	}

	mesh := &Mesh{}
	unique := make(map[vertexKey]uint32)

	addVertex := func(face *obj.Face, corner int) error {
		key := vertexKey{position: face.Vertices[corner], uv: -1, normal: -1}
		if corner < len(face.Uvs) {
			key.uv = face.Uvs[corner]
		}
		if corner < len(face.Normals) {
			key.normal = face.Normals[corner]
		}

		if index, ok := unique[key]; ok {
			mesh.Indices = append(mesh.Indices, index)
			return nil
		}

		if key.position < 0 || (key.position+1)*3 > len(decoder.Vertices) {
			return errors.Wrapf(core.ErrInvalidMesh, "vertex index %d out of range", key.position)
		}
		v := Vertex{
			Pos: mgl32.Vec3{
				decoder.Vertices[key.position*3],
				decoder.Vertices[key.position*3+1],
				decoder.Vertices[key.position*3+2],
			},
		}
		if key.uv >= 0 && (key.uv+1)*2 <= len(decoder.Uvs) {
			v.TexCoord = mgl32.Vec2{
				decoder.Uvs[key.uv*2],
				1.0 - decoder.Uvs[key.uv*2+1],
			}
		}
		if key.normal >= 0 && (key.normal+1)*3 <= len(decoder.Normals) {
			v.Normal = mgl32.Vec3{
				decoder.Normals[key.normal*3],
				decoder.Normals[key.normal*3+1],
				decoder.Normals[key.normal*3+2],
			}
		}

		index := uint32(len(mesh.Vertices))
		mesh.Vertices = append(mesh.Vertices, v)
		unique[key] = index
		mesh.Indices = append(mesh.Indices, index)
		return nil
	}

	for _, object := range decoder.Objects {
		for i := range object.Faces {
			face := &object.Faces[i]
			for corner := 2; corner < len(face.Vertices); corner++ {
				for _, c := range [3]int{0, corner - 1, corner} {
					if err := addVertex(face, c); err != nil {
						return nil, err
					}
				}
			}
		}
	}

	if len(mesh.Indices) == 0 {
		return nil, errors.Wrap(core.ErrInvalidMesh, "no faces")
	}
	return mesh, nil
}
