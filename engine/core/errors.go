package core

import "github.com/cockroachdb/errors"

var (
	// ErrSurfaceOutOfDate is returned when the presentation surface no longer
	// matches the swapchain. The current frame is dropped and the loop goes on.
	ErrSurfaceOutOfDate = errors.New("presentation surface out of date")
	ErrDeviceLost       = errors.New("device lost")
	ErrNoSuitableDevice = errors.New("no physical device meets the requirements")
	ErrAssetNotFound    = errors.New("asset not found")
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrInvalidMesh      = errors.New("invalid mesh data")
	ErrInvalidShader    = errors.New("invalid shader binary")
)

// IsRecoverable reports whether err only costs the current frame.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrSurfaceOutOfDate)
}
