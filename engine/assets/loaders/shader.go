package loaders

import (
	"fmt"
	"path/filepath"
)

// ShaderStage names the suffix a compiled stage is stored under.
type ShaderStage string

const (
	ShaderStageVertex   ShaderStage = "vert"
	ShaderStageFragment ShaderStage = "frag"
)

// ShaderFile is where the build writes the SPIR-V of one stage:
// <dir>/<name>-<stage>.spv.
func ShaderFile(dir, name string, stage ShaderStage) string {
	return filepath.Join(dir, fmt.Sprintf("%s-%s.spv", name, stage))
}
