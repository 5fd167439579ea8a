// -- internal/humanoid/drag.go --
package humanoid

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/api/schemas"
)

// Drag performs press, move, release. When from is nil the drag starts at
// the current cursor position. The button is always released, even if the
// movement fails or ctx is cancelled, so the device is never left with a
// button held down.
func (h *Humanoid) Drag(ctx context.Context, from *schemas.Point, to schemas.Point, button schemas.Button, moveDuration, dragDuration time.Duration) (err error) {
	// 1. Move to the starting point.
	if from != nil {
		if err := h.MoveTo(ctx, *from, moveDuration); err != nil {
			return err
		}
	}
	start, err := h.executor.Cursor(ctx)
	if err != nil {
		return fmt.Errorf("humanoid: failed to read cursor: %w", err)
	}

	// 2. Grab.
	if err := h.executor.ButtonDown(ctx, button); err != nil {
		return fmt.Errorf("humanoid: failed to press %s button: %w", button, err)
	}
	defer func() {
		// 5. Drop, on a context that outlives cancellation.
		if upErr := h.executor.ButtonUp(context.WithoutCancel(ctx), button); upErr != nil {
			h.logger.Warn("Failed to release button after drag", zap.String("button", string(button)), zap.Error(upErr))
			err = errors.Join(err, fmt.Errorf("humanoid: failed to release %s button: %w", button, upErr))
		}
	}()

	// 3. Hold briefly so the target registers a press before motion.
	if err := h.executor.Sleep(ctx, h.cfg.ClickHold); err != nil {
		return err
	}

	// 4. Carry.
	return h.simulateTrajectory(ctx, start, to, dragDuration)
}
