package loaders

import (
	"encoding/binary"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/hellodog/engine/core"
)

// spirvMagic is the first word of every SPIR-V module.
const spirvMagic uint32 = 0x07230203

type BinaryLoader struct{}

// Load reads a SPIR-V module into words.
func (bl *BinaryLoader) Load(path string) (any, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(core.ErrAssetNotFound, "shader %s: %v", path, err)
	}
	code, err := bytesToBytecode(buf)
	if err != nil {
		return nil, errors.Wrapf(err, "shader %s", path)
	}
	return code, nil
}

func bytesToBytecode(b []byte) ([]uint32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, errors.Wrapf(core.ErrInvalidShader, "size %d is not a positive multiple of 4", len(b))
	}

	byteCode := make([]uint32, len(b)/4)
	for i := range byteCode {
		byteCode[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	if byteCode[0] != spirvMagic {
		return nil, errors.Wrapf(core.ErrInvalidShader, "bad magic number %#08x", byteCode[0])
	}
	return byteCode, nil
}
