package humanoid

import (
	"context"
	"fmt"
	"time"

	"github.com/xkilldash9x/deskpilot/api/schemas"
)

// Scroll positions the pointer over at, if given, then scrolls by amount
// along axis. Positive amounts scroll up or right.
func (h *Humanoid) Scroll(ctx context.Context, at *schemas.Point, axis schemas.Axis, amount int, moveDuration time.Duration) error {
	if at != nil {
		if err := h.MoveTo(ctx, *at, moveDuration); err != nil {
			return err
		}
	}

	dx, dy := 0, amount
	if axis == schemas.AxisHorizontal {
		dx, dy = amount, 0
	}
	if err := h.executor.Scroll(ctx, dx, dy); err != nil {
		return fmt.Errorf("humanoid: scroll failed: %w", err)
	}
	return nil
}
