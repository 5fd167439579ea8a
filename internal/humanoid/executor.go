// Filename: internal/humanoid/executor.go
package humanoid

import (
	"context"
	"time"

	"github.com/xkilldash9x/deskpilot/api/schemas"
)

// Executor defines the device primitives the humanoid drives, allowing for
// mocking during tests.
type Executor interface {
	// Sleep pauses execution, respecting context cancellation.
	Sleep(ctx context.Context, d time.Duration) error

	Cursor(ctx context.Context) (schemas.Point, error)
	MoveTo(ctx context.Context, p schemas.Point) error
	ButtonDown(ctx context.Context, b schemas.Button) error
	ButtonUp(ctx context.Context, b schemas.Button) error
	Click(ctx context.Context, b schemas.Button, count int) error
	Scroll(ctx context.Context, dx, dy int) error
	KeyDown(ctx context.Context, key string) error
	KeyUp(ctx context.Context, key string) error
	TypeText(ctx context.Context, text string) error
}

// DeviceExecutor is the production implementation of Executor. It forwards
// input to a schemas.Device and sleeps on the wall clock.
type DeviceExecutor struct {
	schemas.Device
}

// NewDeviceExecutor wraps a device.
func NewDeviceExecutor(d schemas.Device) *DeviceExecutor {
	return &DeviceExecutor{Device: d}
}

func (e *DeviceExecutor) Sleep(ctx context.Context, d time.Duration) error {
	return SleepContext(ctx, d)
}

// SleepContext blocks for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
