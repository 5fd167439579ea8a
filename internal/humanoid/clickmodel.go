package humanoid

import (
	"context"
	"fmt"
	"time"

	"github.com/xkilldash9x/deskpilot/api/schemas"
)

// Click moves to target, if given, and presses button count times.
func (h *Humanoid) Click(ctx context.Context, target *schemas.Point, button schemas.Button, count int, moveDuration time.Duration) error {
	if count < 1 {
		count = 1
	}
	if target != nil {
		if err := h.MoveTo(ctx, *target, moveDuration); err != nil {
			return err
		}
	}
	if err := h.executor.Click(ctx, button, count); err != nil {
		return fmt.Errorf("humanoid: %s click failed: %w", button, err)
	}
	return nil
}
