package loaders

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/hellodog/engine/core"
)

const quadOBJ = `mtllib quad.mtl
o quad
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
vt 0 0
vt 1 0
vt 1 1
vt 0 1
vn 0 0 1
usemtl white
f 1/1/1 2/2/1 3/3/1 4/4/1
`

const quadMTL = `newmtl white
Kd 1 1 1
`

func TestDecodeOBJTriangulatesAndDeduplicates(t *testing.T) {
	mesh, err := DecodeOBJ(strings.NewReader(quadOBJ), strings.NewReader(quadMTL))
	if err != nil {
		t.Fatal(err)
	}

	if len(mesh.Vertices) != 4 {
		t.Errorf("got %d vertices, want 4 shared corners", len(mesh.Vertices))
	}
	wantIndices := []uint32{0, 1, 2, 0, 2, 3}
	if len(mesh.Indices) != len(wantIndices) {
		t.Fatalf("got indices %v, want %v", mesh.Indices, wantIndices)
	}
	for i := range wantIndices {
		if mesh.Indices[i] != wantIndices[i] {
			t.Fatalf("got indices %v, want %v", mesh.Indices, wantIndices)
		}
	}

	v := mesh.Vertices[1]
	if v.Pos != (mgl32.Vec3{1, 0, 0}) {
		t.Errorf("vertex 1 at %v", v.Pos)
	}
	// v is flipped.
	if v.TexCoord != (mgl32.Vec2{1, 1}) {
		t.Errorf("vertex 1 uv %v, want (1, 1)", v.TexCoord)
	}
	if v.Normal != (mgl32.Vec3{0, 0, 1}) {
		t.Errorf("vertex 1 normal %v", v.Normal)
	}
}

func TestDecodeOBJWithoutFaces(t *testing.T) {
	_, err := DecodeOBJ(strings.NewReader("o empty\nv 0 0 0\n"), strings.NewReader(""))
	if !errors.Is(err, core.ErrInvalidMesh) {
		t.Errorf("got %v, want an invalid mesh", err)
	}
}

func TestModelLoader(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "quad.obj"), []byte(quadOBJ), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "quad.mtl"), []byte(quadMTL), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := (&ModelLoader{}).Load(filepath.Join(dir, "quad.obj"))
	if err != nil {
		t.Fatal(err)
	}
	mesh := res.(*Mesh)
	if mesh.Name != "quad" || len(mesh.Indices) != 6 {
		t.Errorf("got mesh %q with %d indices", mesh.Name, len(mesh.Indices))
	}

	_, err = (&ModelLoader{}).Load(filepath.Join(dir, "missing.obj"))
	if !errors.Is(err, core.ErrAssetNotFound) {
		t.Errorf("got %v, want asset not found", err)
	}
}

func TestMeshBytes(t *testing.T) {
	mesh := &Mesh{
		Vertices: []Vertex{
			{Pos: mgl32.Vec3{1, 2, 3}, Normal: mgl32.Vec3{0, 0, 1}, TexCoord: mgl32.Vec2{0.5, 0.25}},
			{},
		},
		Indices: []uint32{0, 1, 0},
	}

	vertices := mesh.VertexBytes()
	if len(vertices) != 2*VertexSize {
		t.Fatalf("got %d vertex bytes, want %d", len(vertices), 2*VertexSize)
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(vertices[8:])); got != 3 {
		t.Errorf("position z = %v, want 3", got)
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(vertices[28:])); got != 0.25 {
		t.Errorf("texture v = %v, want 0.25", got)
	}

	indices := mesh.IndexBytes()
	if len(indices) != 12 || binary.LittleEndian.Uint32(indices[4:]) != 1 {
		t.Errorf("unexpected index bytes %v", indices)
	}
}

func encodePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	img.Set(1, 0, color.NRGBA{B: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDecodeTexture(t *testing.T) {
	texture, err := DecodeTexture(bytes.NewReader(encodePNG(t)))
	if err != nil {
		t.Fatal(err)
	}
	if texture.Width != 2 || texture.Height != 1 {
		t.Fatalf("got %dx%d", texture.Width, texture.Height)
	}
	want := []byte{255, 0, 0, 255, 0, 0, 255, 255}
	if !bytes.Equal(texture.Pixels, want) {
		t.Errorf("got pixels %v, want %v", texture.Pixels, want)
	}

	if _, err := DecodeTexture(strings.NewReader("not an image")); err == nil {
		t.Error("expected an error for garbage input")
	}
}

func TestTextureLoaderResolvesDirectories(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "Doge")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "doge.png"), encodePNG(t), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := (&TextureLoader{}).Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	texture := res.(*Texture)
	if texture.Name != "Doge" || texture.Width != 2 {
		t.Errorf("got texture %q %dx%d", texture.Name, texture.Width, texture.Height)
	}

	empty := t.TempDir()
	if _, err := (&TextureLoader{}).Load(empty); !errors.Is(err, core.ErrAssetNotFound) {
		t.Errorf("got %v, want asset not found", err)
	}
}

func TestIsImageFile(t *testing.T) {
	for _, name := range []string{"a.png", "b.JPG", "c.webp", "d.tiff"} {
		if !IsImageFile(name) {
			t.Errorf("%s should be an image", name)
		}
	}
	for _, name := range []string{"a.obj", "b", "c.spv"} {
		if IsImageFile(name) {
			t.Errorf("%s should not be an image", name)
		}
	}
}

func TestBytesToBytecode(t *testing.T) {
	valid := binary.LittleEndian.AppendUint32(nil, spirvMagic)
	valid = binary.LittleEndian.AppendUint32(valid, 0x00010000)

	code, err := bytesToBytecode(valid)
	if err != nil {
		t.Fatal(err)
	}
	if len(code) != 2 || code[0] != spirvMagic || code[1] != 0x00010000 {
		t.Errorf("got %#x", code)
	}

	for name, input := range map[string][]byte{
		"empty":     nil,
		"unaligned": valid[:7],
		"bad magic": {1, 2, 3, 4},
	} {
		if _, err := bytesToBytecode(input); !errors.Is(err, core.ErrInvalidShader) {
			t.Errorf("%s: got %v, want an invalid shader", name, err)
		}
	}
}

func TestBinaryLoader(t *testing.T) {
	path := ShaderFile(t.TempDir(), "textured", ShaderStageVertex)
	if filepath.Base(path) != "textured-vert.spv" {
		t.Fatalf("got shader file %s", path)
	}
	if err := os.WriteFile(path, binary.LittleEndian.AppendUint32(nil, spirvMagic), 0o644); err != nil {
		t.Fatal(err)
	}
	res, err := (&BinaryLoader{}).Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if code := res.([]uint32); len(code) != 1 {
		t.Errorf("got %d words", len(code))
	}
}
