package engine

import (
	"bytes"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/hellodog/engine/core"
	"github.com/spaghettifunk/hellodog/engine/renderer/components"
	"github.com/spaghettifunk/hellodog/engine/renderer/frame"
	"github.com/spaghettifunk/hellodog/engine/systems"
)

const (
	DefaultConfigPath = "hellodog.toml"
	// ConfigPathEnv overrides DefaultConfigPath.
	ConfigPathEnv = "HELLODOG_CONFIG"
)

type WindowConfig struct {
	// The application name used in windowing.
	Name string `toml:"name"`
	// Window starting position.
	X uint32 `toml:"x"`
	Y uint32 `toml:"y"`
	// Window size. The window is not resizable.
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
}

type RendererConfig struct {
	// Frames the CPU may record ahead of the GPU.
	FramesInFlight int        `toml:"frames_in_flight"`
	Debug          bool       `toml:"debug"`
	ClearColor     [4]float32 `toml:"clear_color"`
}

type CameraConfig struct {
	Position    [3]float32 `toml:"position"`
	Yaw         float32    `toml:"yaw"`
	Pitch       float32    `toml:"pitch"`
	Speed       float32    `toml:"speed"`
	Sensitivity float32    `toml:"sensitivity"`
}

type ModelConfig struct {
	Name     string     `toml:"name"`
	Model    string     `toml:"model"`
	Texture  string     `toml:"texture"`
	Position [3]float32 `toml:"position"`
}

type SceneConfig struct {
	LightModel string        `toml:"light_model"`
	Models     []ModelConfig `toml:"models"`
}

type ApplicationConfig struct {
	LogLevel string `toml:"log_level"`
	// Directory holding models/, textures/ and shaders/.
	Resources string `toml:"resources"`
	// Asset decoding workers; 0 uses one per CPU.
	Workers  int            `toml:"workers"`
	Window   WindowConfig   `toml:"window"`
	Renderer RendererConfig `toml:"renderer"`
	Camera   CameraConfig   `toml:"camera"`
	Scene    SceneConfig    `toml:"scene"`
}

func DefaultApplicationConfig() *ApplicationConfig {
	return &ApplicationConfig{
		LogLevel:  "info",
		Resources: "resources",
		Window: WindowConfig{
			Name:   "hellodog",
			X:      100,
			Y:      100,
			Width:  800,
			Height: 600,
		},
		Renderer: RendererConfig{
			FramesInFlight: 2,
			ClearColor:     frame.DefaultClearValues.Color,
		},
		Camera: CameraConfig{
			Position:    [3]float32{3, 1, 0},
			Yaw:         components.DefaultYaw,
			Pitch:       components.DefaultPitch,
			Speed:       components.DefaultSpeed,
			Sensitivity: components.DefaultSensitivity,
		},
		Scene: SceneConfig{
			LightModel: "cube",
			Models: []ModelConfig{
				{Name: "doge", Model: "buffDoge", Texture: "Doge"},
				{Name: "cheems", Model: "cheems", Texture: "Cheems", Position: [3]float32{0, 1, 0}},
			},
		},
	}
}

// LoadApplicationConfig reads the file named by HELLODOG_CONFIG, or
// hellodog.toml. A missing default file yields the defaults; a missing file
// named by the environment is an error.
func LoadApplicationConfig() (*ApplicationConfig, error) {
	path, explicit := os.LookupEnv(ConfigPathEnv)
	if !explicit {
		path = DefaultConfigPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			core.LogDebug("No %s found, using the default configuration.", path)
			config := DefaultApplicationConfig()
			return config, config.Validate()
		}
		return nil, errors.Wrapf(err, "reading configuration %s", path)
	}

	config, err := ParseApplicationConfig(data)
	if err != nil {
		return nil, errors.Wrapf(err, "configuration %s", path)
	}
	return config, nil
}

// ParseApplicationConfig decodes TOML over the defaults. Unknown keys are
// rejected.
func ParseApplicationConfig(data []byte) (*ApplicationConfig, error) {
	config := DefaultApplicationConfig()

	// A scene table replaces the default models instead of merging into them.
	config.Scene.Models = nil
	decoder := toml.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(config); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decoding toml"), core.ErrInvalidConfig)
	}
	if config.Scene.Models == nil {
		config.Scene.Models = DefaultApplicationConfig().Scene.Models
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *ApplicationConfig) Validate() error {
	switch {
	case c.Window.Width == 0 || c.Window.Height == 0:
		return errors.Wrapf(core.ErrInvalidConfig, "window size %dx%d", c.Window.Width, c.Window.Height)
	case c.Renderer.FramesInFlight < 1:
		return errors.Wrapf(core.ErrInvalidConfig, "frames_in_flight must be at least 1, got %d", c.Renderer.FramesInFlight)
	case c.Workers < 0:
		return errors.Wrapf(core.ErrInvalidConfig, "workers must not be negative, got %d", c.Workers)
	case c.Resources == "":
		return errors.Wrap(core.ErrInvalidConfig, "resources directory is empty")
	case c.Camera.Speed <= 0 || c.Camera.Sensitivity <= 0:
		return errors.Wrapf(core.ErrInvalidConfig, "camera speed %v and sensitivity %v must be positive", c.Camera.Speed, c.Camera.Sensitivity)
	case c.Scene.LightModel == "":
		return errors.Wrap(core.ErrInvalidConfig, "scene has no light model")
	}

	seen := make(map[string]bool, len(c.Scene.Models))
	for i, m := range c.Scene.Models {
		if m.Name == "" || m.Model == "" || m.Texture == "" {
			return errors.Wrapf(core.ErrInvalidConfig, "scene model %d needs a name, a model and a texture", i)
		}
		if seen[m.Name] {
			return errors.Wrapf(core.ErrInvalidConfig, "scene model %q listed twice", m.Name)
		}
		seen[m.Name] = true
	}
	return nil
}

func (c *ApplicationConfig) ClearValues() frame.ClearValues {
	values := frame.DefaultClearValues
	values.Color = c.Renderer.ClearColor
	return values
}

// NewCamera builds the starting camera.
func (c *ApplicationConfig) NewCamera() *components.Camera {
	camera := components.NewCamera(c.Camera.Position)
	camera.SetRotation(c.Camera.Yaw, c.Camera.Pitch)
	camera.Speed = c.Camera.Speed
	camera.Sensitivity = c.Camera.Sensitivity
	return camera
}

func (c *ApplicationConfig) SceneConfig() systems.SceneConfig {
	models := make([]systems.ModelConfig, 0, len(c.Scene.Models))
	for _, m := range c.Scene.Models {
		models = append(models, systems.ModelConfig{
			Name:     m.Name,
			Model:    m.Model,
			Texture:  m.Texture,
			Position: m.Position,
		})
	}
	return systems.SceneConfig{
		Models:     models,
		LightModel: c.Scene.LightModel,
	}
}
