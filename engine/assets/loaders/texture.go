package loaders

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/hellodog/engine/core"
	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Texture is decoded 8 bit RGBA pixel data, row major, top row first.
type Texture struct {
	Name   string
	Width  uint32
	Height uint32
	Pixels []byte
}

// ImageExtensions are the file types a texture can be decoded from.
var ImageExtensions = []string{".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff", ".webp"}

func IsImageFile(path string) bool {
	return slices.Contains(ImageExtensions, strings.ToLower(filepath.Ext(path)))
}

type TextureLoader struct{}

// Load decodes path. When path is a directory the first image in it, by
// name, is used.
func (tl *TextureLoader) Load(path string) (any, error) {
	file, err := resolveImage(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(file)
	if err != nil {
		return nil, errors.Wrapf(core.ErrAssetNotFound, "texture %s: %v", file, err)
	}
	defer f.Close()

	texture, err := DecodeTexture(f)
	if err != nil {
		return nil, errors.Wrapf(err, "texture %s", file)
	}
	texture.Name = filepath.Base(path)
	return texture, nil
}

func resolveImage(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", errors.Wrapf(core.ErrAssetNotFound, "texture %s: %v", path, err)
	}
	if !info.IsDir() {
		return path, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return "", errors.Wrapf(err, "reading texture directory %s", path)
	}
	// ReadDir sorts by file name.
	for _, e := range entries {
		if !e.IsDir() && IsImageFile(e.Name()) {
			return filepath.Join(path, e.Name()), nil
		}
	}
	return "", errors.Wrapf(core.ErrAssetNotFound, "texture directory %s holds no image", path)
}

// DecodeTexture decodes any registered image format and converts it to RGBA.
func DecodeTexture(r io.Reader) (*Texture, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, errors.Wrap(err, "decoding image")
	}

	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, errors.Newf("%s image is empty", format)
	}

	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != bounds.Dx()*4 || bounds.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	}

	return &Texture{
		Width:  uint32(bounds.Dx()),
		Height: uint32(bounds.Dy()),
		Pixels: rgba.Pix,
	}, nil
}
