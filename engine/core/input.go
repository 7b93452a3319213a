package core

import "sync"

// Key code definitions
type KeyCode uint16

const (
	KEY_ESCAPE    KeyCode = 0x1B
	KEY_SPACE     KeyCode = 0x20
	KEY_A         KeyCode = 0x41
	KEY_D         KeyCode = 0x44
	KEY_E         KeyCode = 0x45
	KEY_Q         KeyCode = 0x51
	KEY_S         KeyCode = 0x53
	KEY_W         KeyCode = 0x57
	KEYS_MAX_KEYS KeyCode = 0xFF
)

// Keyboard state structure
type KeyboardState struct {
	Keys [KEYS_MAX_KEYS + 1]bool
}

// MouseState tracks the cursor and the movement accumulated since the last
// ConsumeMouseDelta call.
type MouseState struct {
	X, Y         float64
	DeltaX       float64
	DeltaY       float64
	firstSampled bool
}

// InputState holds current and previous keyboard state and the cursor. The
// platform callbacks write into it; the frame loop reads it once per
// iteration. Both may run on different goroutines, hence the lock.
type InputState struct {
	mu               sync.Mutex
	KeyboardCurrent  KeyboardState
	KeyboardPrevious KeyboardState
	Mouse            MouseState
}

func NewInputState() *InputState {
	return &InputState{}
}

// Update copies the current keyboard state into the previous one. Call it at
// the end of every frame.
func (in *InputState) Update() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.KeyboardPrevious = in.KeyboardCurrent
}

func (in *InputState) ProcessKey(key KeyCode, pressed bool) {
	if key > KEYS_MAX_KEYS {
		return
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	in.KeyboardCurrent.Keys[key] = pressed
}

func (in *InputState) IsKeyDown(key KeyCode) bool {
	if key > KEYS_MAX_KEYS {
		return false
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.KeyboardCurrent.Keys[key]
}

func (in *InputState) WasKeyDown(key KeyCode) bool {
	if key > KEYS_MAX_KEYS {
		return false
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.KeyboardPrevious.Keys[key]
}

// ProcessMouseMove records a cursor position. The first sample only seeds the
// position so the camera does not jump when the cursor enters the window.
// Window y grows downwards, so the accumulated y offset is reversed.
func (in *InputState) ProcessMouseMove(x, y float64) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if !in.Mouse.firstSampled {
		in.Mouse.X, in.Mouse.Y = x, y
		in.Mouse.firstSampled = true
		return
	}
	in.Mouse.DeltaX += x - in.Mouse.X
	in.Mouse.DeltaY += in.Mouse.Y - y
	in.Mouse.X, in.Mouse.Y = x, y
}

// ConsumeMouseDelta returns the cursor movement since the previous call and
// resets it.
func (in *InputState) ConsumeMouseDelta() (float64, float64) {
	in.mu.Lock()
	defer in.mu.Unlock()
	dx, dy := in.Mouse.DeltaX, in.Mouse.DeltaY
	in.Mouse.DeltaX, in.Mouse.DeltaY = 0, 0
	return dx, dy
}
