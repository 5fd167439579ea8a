package humanoid

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/api/schemas"
)

// perlinFrequency controls how quickly drift changes along a path.
const perlinFrequency = 0.8

// computeEaseInOutCubic provides a smooth acceleration and deceleration profile for movement.
func computeEaseInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}

// bezier evaluates a cubic Bezier curve at t.
func bezier(p0, p1, p2, p3 Vector2D, t float64) Vector2D {
	omt := 1.0 - t
	omt2 := omt * omt
	t2 := t * t
	return p0.Mul(omt2 * omt).Add(p1.Mul(3 * omt2 * t)).Add(p2.Mul(3 * omt * t2)).Add(p3.Mul(t2 * t))
}

// planPath creates a curved trajectory from start to end with numSteps
// samples, excluding start. The final sample is exactly end.
func (h *Humanoid) planPath(start, end Vector2D, numSteps int) []schemas.Point {
	dist := start.Dist(end)
	if dist < 1.0 || numSteps <= 1 {
		return []schemas.Point{end.Point()}
	}

	dir := end.Sub(start).Normalize()
	perp := dir.Perp()

	h.mu.Lock()
	off1 := (h.rng.Float64()*2 - 1) * h.cfg.CurveSpread * dist
	off2 := (h.rng.Float64()*2 - 1) * h.cfg.CurveSpread * dist
	noiseStart := h.noiseTime
	h.noiseTime += 1.0
	bounds := h.bounds
	h.mu.Unlock()

	p1 := start.Add(dir.Mul(dist / 3.0)).Add(perp.Mul(off1))
	p2 := start.Add(dir.Mul(dist * 2.0 / 3.0)).Add(perp.Mul(off2))

	path := make([]schemas.Point, 0, numSteps)
	for i := 1; i <= numSteps; i++ {
		t := float64(i) / float64(numSteps)
		pos := bezier(start, p1, p2, end, computeEaseInOutCubic(t))

		// Drift tapers to zero at both ends so the path lands on target.
		taper := math.Sin(math.Pi * t)
		nt := (noiseStart + t) * perlinFrequency
		pos = pos.Add(Vector2D{
			X: h.noiseX.Noise1D(nt) * h.cfg.DriftAmplitude * taper,
			Y: h.noiseY.Noise1D(nt) * h.cfg.DriftAmplitude * taper,
		})

		p := pos.Point()
		if bounds.Width > 0 && bounds.Height > 0 {
			p = bounds.Clamp(p)
		}
		if i == numSteps {
			p = end.Point()
		}
		if n := len(path); n > 0 && path[n-1] == p && i != numSteps {
			continue
		}
		path = append(path, p)
	}
	return path
}

// stepsFor converts a motion duration into a sample count.
func (h *Humanoid) stepsFor(d time.Duration) int {
	n := int(math.Round(d.Seconds() * float64(h.cfg.StepsPerSecond)))
	if n < 2 {
		n = 2
	}
	return n
}

// simulateTrajectory moves the pointer from start to end over duration,
// dispatching each sample through the executor. A non-positive duration jumps
// directly to the target.
func (h *Humanoid) simulateTrajectory(ctx context.Context, start, end schemas.Point, duration time.Duration) error {
	if duration <= 0 || start == end {
		return h.executor.MoveTo(ctx, end)
	}

	path := h.planPath(FromPoint(start), FromPoint(end), h.stepsFor(duration))
	interval := duration / time.Duration(len(path))

	for _, p := range path {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := h.executor.MoveTo(ctx, p); err != nil {
			if ctx.Err() == nil {
				h.logger.Warn("Failed to dispatch pointer move", zap.Stringer("point", p), zap.Error(err))
			}
			return fmt.Errorf("humanoid: pointer move to %s failed: %w", p, err)
		}
		if err := h.executor.Sleep(ctx, interval); err != nil {
			return err
		}
	}
	return nil
}

// MoveTo glides the pointer from its current position to target.
func (h *Humanoid) MoveTo(ctx context.Context, target schemas.Point, duration time.Duration) error {
	start, err := h.executor.Cursor(ctx)
	if err != nil {
		return fmt.Errorf("humanoid: failed to read cursor: %w", err)
	}
	return h.simulateTrajectory(ctx, start, target, duration)
}
