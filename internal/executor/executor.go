// Package executor turns validated actions into device input and reports the
// resulting observation.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/api/schemas"
	"github.com/xkilldash9x/deskpilot/internal/config"
	"github.com/xkilldash9x/deskpilot/internal/humanoid"
)

// ErrFailSafeTriggered is returned when the operator parks the pointer in a
// display corner. It ends the session.
var ErrFailSafeTriggered = errors.New("executor: fail-safe triggered, pointer parked in a display corner")

// actionHandler performs one action variant on the device.
type actionHandler func(ctx context.Context, action schemas.Action) error

// Executor implements schemas.ActionExecutor on top of a device, pacing
// pointer and keyboard input through a Humanoid.
type Executor struct {
	device   schemas.Device
	humanoid *humanoid.Humanoid
	capturer schemas.Capturer
	cfg      config.DisplayConfig
	logger   *zap.Logger
	handlers map[schemas.ActionType]actionHandler
	sleep    func(ctx context.Context, d time.Duration) error

	// lastPointer is where the executor last left the pointer. The fail-safe
	// only fires when the pointer has been moved somewhere else.
	lastPointer *schemas.Point
}

var _ schemas.ActionExecutor = (*Executor)(nil) // Verify interface compliance.

// New creates an Executor. The humanoid is confined to the device's bounds.
func New(device schemas.Device, h *humanoid.Humanoid, capturer schemas.Capturer, cfg config.DisplayConfig, logger *zap.Logger) *Executor {
	h.SetBounds(device.Size())
	e := &Executor{
		device:   device,
		humanoid: h,
		capturer: capturer,
		cfg:      cfg,
		logger:   logger.Named("executor"),
		handlers: make(map[schemas.ActionType]actionHandler),
		sleep:    humanoid.SleepContext,
	}
	e.registerHandlers()
	return e
}

// Execute performs action and captures the display afterwards. Failures the
// model can react to are reported in the Outcome alongside a fresh
// observation. A non-nil error means the session cannot continue: the
// fail-safe fired, ctx ended, or the display could not be captured.
func (e *Executor) Execute(ctx context.Context, action schemas.Action) (*schemas.Observation, schemas.Outcome, error) {
	if action.Type.IsProtocol() {
		return nil, schemas.Failed(schemas.ErrCodeInvalidArguments,
			fmt.Sprintf("%s is handled by the agent loop, not the device", action.Type)), nil
	}

	if err := e.checkFailSafe(ctx); err != nil {
		return nil, schemas.Failed(schemas.ErrCodeFailSafe, err.Error()), err
	}

	outcome := e.perform(ctx, action)
	if err := ctx.Err(); err != nil {
		return nil, outcome, err
	}

	obs, err := e.capturer.Capture(ctx)
	if err != nil {
		return nil, outcome, fmt.Errorf("executor: post-action capture failed: %w", err)
	}
	pointer := obs.Cursor
	e.lastPointer = &pointer
	return obs, outcome, nil
}

// perform validates, normalizes and dispatches the action.
func (e *Executor) perform(ctx context.Context, action schemas.Action) schemas.Outcome {
	if err := action.Validate(); err != nil {
		return schemas.Failed(schemas.ErrCodeInvalidArguments, err.Error())
	}
	handler, ok := e.handlers[action.Type]
	if !ok {
		return schemas.Failed(schemas.ErrCodeUnknownAction, fmt.Sprintf("no handler for action %q", action.Type))
	}

	resolved, outcome, ok := e.resolve(action)
	if !ok {
		return outcome
	}

	e.logger.Debug("Executing action.", zap.String("action", resolved.Summary()))
	if err := handler(ctx, resolved); err != nil {
		code := classify(err)
		if ctx.Err() == nil {
			e.logger.Warn("Action execution failed",
				zap.String("action", string(action.Type)),
				zap.String("error_code", string(code)),
				zap.Error(err))
		}
		return schemas.Failed(code, err.Error())
	}
	return schemas.Succeeded(resolved.Summary())
}

// resolve applies the bounds policy and normalizes keys.
func (e *Executor) resolve(action schemas.Action) (schemas.Action, schemas.Outcome, bool) {
	size := e.device.Size()
	for _, field := range []struct {
		name string
		p    **schemas.Point
	}{
		{"coordinate", &action.Coordinate},
		{"start_coordinate", &action.Start},
	} {
		p := *field.p
		if p == nil || size.Contains(*p) {
			continue
		}
		if !e.cfg.ClampCoordinates {
			return action, schemas.Failed(schemas.ErrCodeOutOfBounds,
				fmt.Sprintf("%s %s is outside the %dx%d display", field.name, p, size.Width, size.Height)), false
		}
		clamped := size.Clamp(*p)
		e.logger.Debug("Clamped coordinate onto the display.", zap.Stringer("requested", p), zap.Stringer("clamped", clamped))
		*field.p = &clamped
	}

	if action.Type == schemas.ActionKeyPress {
		keys, err := humanoid.NormalizeChord(action.Keys)
		if err != nil {
			return action, schemas.Failed(schemas.ErrCodeUnsupportedKey, err.Error()), false
		}
		action.Keys = keys
	}
	return action, schemas.Outcome{}, true
}

// checkFailSafe fires when the pointer sits in a corner it was not left in.
func (e *Executor) checkFailSafe(ctx context.Context) error {
	if !e.cfg.FailSafe {
		return nil
	}
	p, err := e.device.Cursor(ctx)
	if err != nil {
		// An unreadable pointer is not evidence of operator intervention.
		e.logger.Debug("Fail-safe check skipped.", zap.Error(err))
		return nil
	}
	if !inCorner(p, e.device.Size()) {
		return nil
	}
	if e.lastPointer != nil && *e.lastPointer == p {
		return nil
	}
	e.logger.Warn("Fail-safe triggered.", zap.Stringer("pointer", p))
	return ErrFailSafeTriggered
}

func inCorner(p schemas.Point, s schemas.Size) bool {
	xEdge := p.X <= 0 || p.X >= s.Width-1
	yEdge := p.Y <= 0 || p.Y >= s.Height-1
	return xEdge && yEdge
}

// classify maps a handler error to the code reported to the model.
func classify(err error) schemas.ErrorCode {
	if errors.Is(err, schemas.ErrUnsupportedKey) {
		return schemas.ErrCodeUnsupportedKey
	}
	return schemas.ErrCodeDeviceError
}

// registerHandlers populates the internal map of action types to their handler functions.
func (e *Executor) registerHandlers() {
	e.handlers[schemas.ActionMove] = e.handleMove
	e.handlers[schemas.ActionClick] = e.handleClick
	e.handlers[schemas.ActionDoubleClick] = e.handleClick
	e.handlers[schemas.ActionTripleClick] = e.handleClick
	e.handlers[schemas.ActionDrag] = e.handleDrag
	e.handlers[schemas.ActionScroll] = e.handleScroll
	e.handlers[schemas.ActionTypeText] = e.handleTypeText
	e.handlers[schemas.ActionKeyPress] = e.handleKeyPress
	e.handlers[schemas.ActionWait] = e.handleWait
	e.handlers[schemas.ActionScreenshot] = e.handleScreenshot
}

// moveDuration prefers the duration on the action over the configured default.
func (e *Executor) moveDuration(action schemas.Action) time.Duration {
	if action.Duration > 0 {
		return action.Duration
	}
	return e.cfg.MoveDuration
}

func (e *Executor) handleMove(ctx context.Context, action schemas.Action) error {
	return e.humanoid.MoveTo(ctx, *action.Coordinate, e.moveDuration(action))
}

func (e *Executor) handleClick(ctx context.Context, action schemas.Action) error {
	return e.humanoid.Click(ctx, action.Coordinate, action.ButtonOrDefault(), action.ClickCount(), e.moveDuration(action))
}

func (e *Executor) handleDrag(ctx context.Context, action schemas.Action) error {
	dragDuration := e.cfg.DragDuration
	if action.Duration > 0 {
		dragDuration = action.Duration
	}
	return e.humanoid.Drag(ctx, action.Start, *action.Coordinate, action.ButtonOrDefault(), e.cfg.MoveDuration, dragDuration)
}

func (e *Executor) handleScroll(ctx context.Context, action schemas.Action) error {
	axis := action.Axis
	if axis == "" {
		axis = schemas.AxisVertical
	}
	return e.humanoid.Scroll(ctx, action.Coordinate, axis, action.Pixels, e.cfg.MoveDuration)
}

func (e *Executor) handleTypeText(ctx context.Context, action schemas.Action) error {
	return e.humanoid.Type(ctx, action.Text)
}

func (e *Executor) handleKeyPress(ctx context.Context, action schemas.Action) error {
	return e.humanoid.Chord(ctx, action.Keys)
}

func (e *Executor) handleWait(ctx context.Context, action schemas.Action) error {
	return e.sleep(ctx, action.Duration)
}

func (e *Executor) handleScreenshot(ctx context.Context, action schemas.Action) error {
	return nil
}
