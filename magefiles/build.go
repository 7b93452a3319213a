//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

const (
	shaderSourceDir = "resources/shaders"
	shaderOutputDir = "resources/shaders/generated"
)

// Compiles every GLSL stage under resources/shaders to SPIR-V.
func (Build) Shaders() error {
	return buildShaders()
}

// Builds the hellodog binary.
func (Build) Engine() error {
	mg.Deps(Build.Shaders)
	if _, err := executeCmd("go", withArgs("build", "-o", "bin/hellodog", "."), withStream()); err != nil {
		return err
	}
	return nil
}

func buildShaders() error {
	if err := os.MkdirAll(shaderOutputDir, 0o755); err != nil {
		return err
	}
	var sources []string
	for _, pattern := range []string{"*.vert", "*.frag"} {
		matches, err := filepath.Glob(filepath.Join(shaderSourceDir, pattern))
		if err != nil {
			return err
		}
		sources = append(sources, matches...)
	}
	if len(sources) == 0 {
		return fmt.Errorf("no shader sources in %s", shaderSourceDir)
	}

	for _, src := range sources {
		if _, err := executeCmd("glslc", withArgs(src, "-o", spirvPath(src)), withStream()); err != nil {
			return err
		}
	}
	return nil
}

// spirvPath maps resources/shaders/<name>.<stage> to
// resources/shaders/generated/<name>-<stage>.spv.
func spirvPath(src string) string {
	base := filepath.Base(src)
	stage := strings.TrimPrefix(filepath.Ext(base), ".")
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(shaderOutputDir, fmt.Sprintf("%s-%s.spv", name, stage))
}
