package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/deskpilot/api/schemas"
	"github.com/xkilldash9x/deskpilot/internal/config"
	"github.com/xkilldash9x/deskpilot/internal/display"
	"github.com/xkilldash9x/deskpilot/internal/humanoid"
)

type fixture struct {
	exec   *Executor
	device *display.FakeDevice
	slept  []time.Duration
}

func setupExecutorTest(t *testing.T, mutate func(*config.DisplayConfig)) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	cfg := config.NewDefaultConfig().Display
	cfg.MoveDuration = 0
	cfg.DragDuration = 0
	if mutate != nil {
		mutate(&cfg)
	}

	device := display.NewFakeDevice(schemas.Size{Width: 200, Height: 100})
	device.SetCursor(schemas.Point{X: 50, Y: 50})
	h := humanoid.New(config.HumanoidConfig{StepsPerSecond: 60, Seed: 7}, humanoid.NewDeviceExecutor(device), logger)

	f := &fixture{device: device}
	f.exec = New(device, h, display.NewCapturer(device), cfg, logger)
	f.exec.sleep = func(ctx context.Context, d time.Duration) error {
		f.slept = append(f.slept, d)
		return ctx.Err()
	}
	return f
}

func pt(x, y int) *schemas.Point { return &schemas.Point{X: x, Y: y} }

func TestExecute_Dispatch(t *testing.T) {
	tests := []struct {
		name   string
		action schemas.Action
		events []string
	}{
		{
			name:   "move",
			action: schemas.Action{Type: schemas.ActionMove, Coordinate: pt(10, 20)},
			events: []string{"move:(10, 20)"},
		},
		{
			name:   "click at coordinate",
			action: schemas.Action{Type: schemas.ActionClick, Coordinate: pt(30, 40)},
			events: []string{"move:(30, 40)", "click:left:1@(30, 40)"},
		},
		{
			name:   "right double click in place",
			action: schemas.Action{Type: schemas.ActionDoubleClick, Button: schemas.ButtonRight},
			events: []string{"click:right:2@(50, 50)"},
		},
		{
			name:   "triple click",
			action: schemas.Action{Type: schemas.ActionTripleClick, Coordinate: pt(1, 2)},
			events: []string{"move:(1, 2)", "click:left:3@(1, 2)"},
		},
		{
			name:   "drag with explicit start",
			action: schemas.Action{Type: schemas.ActionDrag, Start: pt(10, 10), Coordinate: pt(90, 60)},
			events: []string{"move:(10, 10)", "down:left", "move:(90, 60)", "up:left"},
		},
		{
			name:   "scroll down",
			action: schemas.Action{Type: schemas.ActionScroll, Pixels: -5},
			events: []string{"scroll:0,-5"},
		},
		{
			name:   "scroll right at coordinate",
			action: schemas.Action{Type: schemas.ActionScroll, Pixels: 3, Axis: schemas.AxisHorizontal, Coordinate: pt(60, 60)},
			events: []string{"move:(60, 60)", "scroll:3,0"},
		},
		{
			name:   "key chord",
			action: schemas.Action{Type: schemas.ActionKeyPress, Keys: []string{"Control", "Shift+T"}},
			events: []string{"keydown:ctrl", "keydown:shift", "keydown:t", "keyup:t", "keyup:shift", "keyup:ctrl"},
		},
		{
			name:   "uppercase key holds shift",
			action: schemas.Action{Type: schemas.ActionKeyPress, Keys: []string{"A"}},
			events: []string{"keydown:shift", "keydown:a", "keyup:a", "keyup:shift"},
		},
		{
			name:   "screenshot sends no input",
			action: schemas.Action{Type: schemas.ActionScreenshot},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupExecutorTest(t, nil)

			obs, outcome, err := f.exec.Execute(context.Background(), tt.action)
			require.NoError(t, err)
			require.NotNil(t, obs, "every executed action yields an observation")
			assert.True(t, outcome.OK(), "outcome: %+v", outcome)
			assert.Equal(t, tt.events, f.device.Events())
			assert.Equal(t, schemas.Size{Width: 200, Height: 100}, obs.Display)
		})
	}
}

func TestExecute_TypeText(t *testing.T) {
	f := setupExecutorTest(t, nil)
	f.exec.humanoid = humanoid.New(config.HumanoidConfig{Seed: 1}, humanoid.NewDeviceExecutor(f.device), zaptest.NewLogger(t))

	_, outcome, err := f.exec.Execute(context.Background(), schemas.Action{Type: schemas.ActionTypeText, Text: "hello world"})
	require.NoError(t, err)
	assert.True(t, outcome.OK())
	assert.Equal(t, "hello world", f.device.Typed())
}

func TestExecute_Wait(t *testing.T) {
	f := setupExecutorTest(t, nil)

	_, outcome, err := f.exec.Execute(context.Background(), schemas.Action{Type: schemas.ActionWait, Duration: 2 * time.Second})
	require.NoError(t, err)
	assert.True(t, outcome.OK())
	assert.Equal(t, []time.Duration{2 * time.Second}, f.slept)
	assert.Empty(t, f.device.Events())
}

func TestExecute_OutOfBounds(t *testing.T) {
	t.Run("Rejected", func(t *testing.T) {
		f := setupExecutorTest(t, nil)

		obs, outcome, err := f.exec.Execute(context.Background(), schemas.Action{Type: schemas.ActionClick, Coordinate: pt(500, 20)})
		require.NoError(t, err)
		require.NotNil(t, obs)
		assert.Equal(t, schemas.ErrCodeOutOfBounds, outcome.Code)
		assert.Empty(t, f.device.Events(), "nothing is sent for a rejected coordinate")
	})

	t.Run("RejectedDragStart", func(t *testing.T) {
		f := setupExecutorTest(t, nil)

		_, outcome, err := f.exec.Execute(context.Background(), schemas.Action{Type: schemas.ActionDrag, Start: pt(-1, 0), Coordinate: pt(5, 5)})
		require.NoError(t, err)
		assert.Equal(t, schemas.ErrCodeOutOfBounds, outcome.Code)
		assert.Contains(t, outcome.Message, "start_coordinate")
	})

	t.Run("Clamped", func(t *testing.T) {
		f := setupExecutorTest(t, func(c *config.DisplayConfig) { c.ClampCoordinates = true })

		_, outcome, err := f.exec.Execute(context.Background(), schemas.Action{Type: schemas.ActionMove, Coordinate: pt(500, -20)})
		require.NoError(t, err)
		assert.True(t, outcome.OK())
		assert.Equal(t, []string{"move:(199, 0)"}, f.device.Events())
	})
}

func TestExecute_ErrorMapping(t *testing.T) {
	t.Run("InvalidArguments", func(t *testing.T) {
		f := setupExecutorTest(t, nil)
		_, outcome, err := f.exec.Execute(context.Background(), schemas.Action{Type: schemas.ActionMove})
		require.NoError(t, err)
		assert.Equal(t, schemas.ErrCodeInvalidArguments, outcome.Code)
	})

	t.Run("UnsupportedKey", func(t *testing.T) {
		f := setupExecutorTest(t, nil)
		_, outcome, err := f.exec.Execute(context.Background(), schemas.Action{Type: schemas.ActionKeyPress, Keys: []string{"hyper"}})
		require.NoError(t, err)
		assert.Equal(t, schemas.ErrCodeUnsupportedKey, outcome.Code)
		assert.Empty(t, f.device.Events())
	})

	t.Run("DeviceError", func(t *testing.T) {
		f := setupExecutorTest(t, nil)
		f.device.FailOn("click", errors.New("input grab lost"))

		obs, outcome, err := f.exec.Execute(context.Background(), schemas.Action{Type: schemas.ActionClick})
		require.NoError(t, err, "device failures are reported to the model, not raised")
		require.NotNil(t, obs)
		assert.Equal(t, schemas.ErrCodeDeviceError, outcome.Code)
		assert.Contains(t, outcome.Message, "input grab lost")
	})

	t.Run("DragReleasesButtonOnFailure", func(t *testing.T) {
		f := setupExecutorTest(t, nil)
		f.device.FailOn("move", errors.New("pointer stuck"))

		_, outcome, err := f.exec.Execute(context.Background(), schemas.Action{Type: schemas.ActionDrag, Coordinate: pt(80, 80)})
		require.NoError(t, err)
		assert.Equal(t, schemas.ErrCodeDeviceError, outcome.Code)
		assert.False(t, f.device.Held(schemas.ButtonLeft))
	})

	t.Run("ProtocolActionsAreNotExecuted", func(t *testing.T) {
		f := setupExecutorTest(t, nil)
		obs, outcome, err := f.exec.Execute(context.Background(), schemas.Action{Type: schemas.ActionAnswer, Text: "42"})
		require.NoError(t, err)
		assert.Nil(t, obs)
		assert.Equal(t, schemas.ErrCodeInvalidArguments, outcome.Code)
	})

	t.Run("CaptureFailureIsFatal", func(t *testing.T) {
		f := setupExecutorTest(t, nil)
		f.device.FailOn("capture", errors.New("screen locked"))

		_, outcome, err := f.exec.Execute(context.Background(), schemas.Action{Type: schemas.ActionClick})
		require.Error(t, err)
		assert.True(t, outcome.OK(), "the action itself still ran")
	})

	t.Run("CancelledContext", func(t *testing.T) {
		f := setupExecutorTest(t, nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, _, err := f.exec.Execute(ctx, schemas.Action{Type: schemas.ActionWait, Duration: time.Second})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestExecute_FailSafe(t *testing.T) {
	f := setupExecutorTest(t, func(c *config.DisplayConfig) { c.FailSafe = true })
	ctx := context.Background()

	// The agent may park the pointer in a corner itself.
	_, outcome, err := f.exec.Execute(ctx, schemas.Action{Type: schemas.ActionMove, Coordinate: pt(0, 0)})
	require.NoError(t, err)
	require.True(t, outcome.OK())
	_, _, err = f.exec.Execute(ctx, schemas.Action{Type: schemas.ActionScreenshot})
	require.NoError(t, err)

	// An operator moving it to another corner stops the session.
	f.device.SetCursor(schemas.Point{X: 199, Y: 99})
	obs, outcome, err := f.exec.Execute(ctx, schemas.Action{Type: schemas.ActionClick})
	require.ErrorIs(t, err, ErrFailSafeTriggered)
	assert.Nil(t, obs)
	assert.Equal(t, schemas.ErrCodeFailSafe, outcome.Code)
	assert.Equal(t, []string{"move:(0, 0)"}, f.device.Events(), "no input after the fail-safe fires")
}

func TestInCorner(t *testing.T) {
	s := schemas.Size{Width: 10, Height: 10}
	assert.True(t, inCorner(schemas.Point{X: 0, Y: 0}, s))
	assert.True(t, inCorner(schemas.Point{X: 9, Y: 0}, s))
	assert.True(t, inCorner(schemas.Point{X: 0, Y: 9}, s))
	assert.True(t, inCorner(schemas.Point{X: 9, Y: 9}, s))
	assert.False(t, inCorner(schemas.Point{X: 0, Y: 5}, s))
	assert.False(t, inCorner(schemas.Point{X: 5, Y: 5}, s))
}
