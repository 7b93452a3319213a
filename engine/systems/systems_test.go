package systems

import (
	"context"
	"encoding/binary"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/hellodog/engine/core"
	"github.com/spaghettifunk/hellodog/engine/renderer/components"
	"github.com/spaghettifunk/hellodog/engine/renderer/frame"
)

func TestNewJobSystemNeedsWorkers(t *testing.T) {
	if _, err := NewJobSystem(0); !errors.Is(err, ErrNoWorkers) {
		t.Errorf("got %v, want ErrNoWorkers", err)
	}
}

func TestRunAllRunsEveryJob(t *testing.T) {
	js, err := NewJobSystem(2)
	if err != nil {
		t.Fatal(err)
	}

	var running, maxRunning, completed atomic.Int32
	results := make([]int, 10)
	var jobs []JobTask
	for i := range results {
		jobs = append(jobs, JobTask{
			Name: "square",
			Run: func(context.Context) error {
				n := running.Add(1)
				for {
					m := maxRunning.Load()
					if n <= m || maxRunning.CompareAndSwap(m, n) {
						break
					}
				}
				results[i] = i * i
				running.Add(-1)
				return nil
			},
			OnComplete: func() { completed.Add(1) },
		})
	}

	if err := js.RunAll(context.Background(), jobs...); err != nil {
		t.Fatal(err)
	}
	for i, r := range results {
		if r != i*i {
			t.Errorf("result %d = %d", i, r)
		}
	}
	if completed.Load() != 10 {
		t.Errorf("%d completions, want 10", completed.Load())
	}
	if maxRunning.Load() > 2 {
		t.Errorf("%d jobs ran at once with 2 workers", maxRunning.Load())
	}
}

func TestRunAllReturnsFirstFailure(t *testing.T) {
	js, _ := NewJobSystem(1)
	boom := errors.New("boom")

	var ran []string
	var mu sync.Mutex
	record := func(name string) func(context.Context) error {
		return func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			ran = append(ran, name)
			return nil
		}
	}

	err := js.RunAll(context.Background(),
		JobTask{Name: "first", Run: record("first")},
		JobTask{Name: "broken", Run: func(context.Context) error { return boom }},
		JobTask{Name: "late", Run: record("late")},
	)
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want boom", err)
	}
	// One worker runs in order, so the job after the failure sees the
	// cancelled context.
	if len(ran) != 1 || ran[0] != "first" {
		t.Errorf("jobs that ran: %v", ran)
	}
}

func TestCameraSystemHandleInput(t *testing.T) {
	input := core.NewInputState()
	camera := components.NewCamera(mgl32.Vec3{3, 1, 0})
	cs := NewCameraSystem(camera, input)

	input.ProcessKey(core.KEY_W, true)
	cs.HandleInput(1)
	if !camera.Position.ApproxEqualThreshold(mgl32.Vec3{0.5, 1, 0}, 1e-4) {
		t.Errorf("position %v after one second of W", camera.Position)
	}
	if !input.WasKeyDown(core.KEY_W) {
		t.Error("input state was not advanced")
	}

	input.ProcessKey(core.KEY_W, false)
	input.ProcessMouseMove(100, 100)
	input.ProcessMouseMove(100, 50)
	cs.HandleInput(1)
	if !camera.Position.ApproxEqualThreshold(mgl32.Vec3{0.5, 1, 0}, 1e-4) {
		t.Errorf("camera moved without keys: %v", camera.Position)
	}
	// 50 pixels up at 0.1 degrees per pixel.
	if !mgl32.FloatEqualThreshold(camera.Pitch, 5, 1e-4) {
		t.Errorf("pitch = %v, want 5", camera.Pitch)
	}

	cs.HandleInput(1)
	if !mgl32.FloatEqualThreshold(camera.Pitch, 5, 1e-4) {
		t.Errorf("mouse delta applied twice, pitch = %v", camera.Pitch)
	}
}

type recordingSink struct {
	writes [][]byte
}

func (r *recordingSink) Write(data []byte) error {
	r.writes = append(r.writes, append([]byte(nil), data...))
	return nil
}

func floatAt(data []byte, index int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(data[index*4:]))
}

func TestSharedUniformsLayout(t *testing.T) {
	u := SharedUniforms{
		View:     mgl32.Translate3D(1, 2, 3),
		Proj:     mgl32.Ident4(),
		LightPos: mgl32.Vec4{4, 5, 6, 0},
	}
	data := u.Bytes()
	if len(data) != SharedUniformSize {
		t.Fatalf("got %d bytes, want %d", len(data), SharedUniformSize)
	}
	// Column major: the translation is the fourth column.
	if floatAt(data, 12) != 1 || floatAt(data, 13) != 2 || floatAt(data, 14) != 3 {
		t.Errorf("view translation at %v %v %v", floatAt(data, 12), floatAt(data, 13), floatAt(data, 14))
	}
	if floatAt(data, 16) != 1 || floatAt(data, 21) != 1 {
		t.Error("projection is not at offset 64")
	}
	if floatAt(data, 32) != 4 || floatAt(data, 34) != 6 {
		t.Error("light position is not at offset 128")
	}

	if got := len(ModelUniformBytes(mgl32.Ident4())); got != ModelUniformSize {
		t.Errorf("model uniforms are %d bytes", got)
	}
}

func TestUpdateSceneUniformsWritesOnlyThatImage(t *testing.T) {
	sinks := []*recordingSink{{}, {}, {}}
	camera := components.NewCamera(mgl32.Vec3{3, 1, 0})
	su := NewSceneUniforms(camera, frame.Extent{Width: 800, Height: 600}, []UniformSink{sinks[0], sinks[1], sinks[2]})

	if err := su.UpdateSceneUniforms(1, 1.0); err != nil {
		t.Fatal(err)
	}
	if len(sinks[0].writes) != 0 || len(sinks[1].writes) != 1 || len(sinks[2].writes) != 0 {
		t.Fatalf("writes per image: %d %d %d", len(sinks[0].writes), len(sinks[1].writes), len(sinks[2].writes))
	}

	// One second at 90 degrees per second turns (1, 1, 1) into (-1, 1, 1).
	data := sinks[1].writes[0]
	light := mgl32.Vec4{floatAt(data, 32), floatAt(data, 33), floatAt(data, 34), floatAt(data, 35)}
	if !light.ApproxEqualThreshold(mgl32.Vec4{-1, 1, 1, 0}, 1e-4) {
		t.Errorf("light at %v", light)
	}

	want := su.Compute(1.0)
	if !want.View.ApproxEqualThreshold(camera.GetView(), 1e-6) {
		t.Error("view does not come from the camera")
	}
	// Vulkan clip space has y pointing down.
	if want.Proj[5] >= 0 {
		t.Errorf("projection y scale %v is not flipped", want.Proj[5])
	}

	if err := su.UpdateSceneUniforms(3, 0); err == nil {
		t.Error("expected an error for an image without a buffer")
	}
}

func TestScreenQuadBytes(t *testing.T) {
	vertices, indices := screenQuadBytes()
	if len(vertices) != 4*16 {
		t.Errorf("got %d vertex bytes", len(vertices))
	}
	if len(indices) != 6*4 {
		t.Errorf("got %d index bytes", len(indices))
	}
	// Third vertex is the top right corner with uv (1, 1).
	if floatAt(vertices, 8) != 1 || floatAt(vertices, 9) != 1 || floatAt(vertices, 10) != 1 || floatAt(vertices, 11) != 1 {
		t.Errorf("unexpected third vertex %v", vertices[32:48])
	}
	if binary.LittleEndian.Uint32(indices[4:]) != 3 {
		t.Error("indices do not start 0, 3")
	}
}
