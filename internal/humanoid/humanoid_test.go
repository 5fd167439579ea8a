// Filename: internal/humanoid/humanoid_test.go
package humanoid

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/api/schemas"
	"github.com/xkilldash9x/deskpilot/internal/config"
)

// =============================================================================
// Test Infrastructure: Mocks and Helpers
// =============================================================================

// mockExecutor records every primitive instead of touching a device.
type mockExecutor struct {
	mu      sync.Mutex
	cursor  schemas.Point
	events  []string
	moves   []schemas.Point
	sleeps  []time.Duration
	failOn  string
	failErr error
}

func newMockExecutor(start schemas.Point) *mockExecutor {
	return &mockExecutor{cursor: start}
}

func (m *mockExecutor) record(ev string) error {
	m.events = append(m.events, ev)
	if m.failOn != "" && ev == m.failOn {
		return m.failErr
	}
	return nil
}

func (m *mockExecutor) Sleep(ctx context.Context, d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	m.sleeps = append(m.sleeps, d)
	return nil
}

func (m *mockExecutor) Cursor(ctx context.Context) (schemas.Point, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor, nil
}

func (m *mockExecutor) MoveTo(ctx context.Context, p schemas.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursor = p
	m.moves = append(m.moves, p)
	return m.record("move")
}

func (m *mockExecutor) ButtonDown(ctx context.Context, b schemas.Button) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record("down:" + string(b))
}

func (m *mockExecutor) ButtonUp(ctx context.Context, b schemas.Button) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record("up:" + string(b))
}

func (m *mockExecutor) Click(ctx context.Context, b schemas.Button, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record("click:" + string(b) + ":" + string(rune('0'+count)))
}

func (m *mockExecutor) Scroll(ctx context.Context, dx, dy int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if dx != 0 {
		return m.record("hscroll")
	}
	return m.record("vscroll")
}

func (m *mockExecutor) KeyDown(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record("keydown:" + key)
}

func (m *mockExecutor) KeyUp(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record("keyup:" + key)
}

func (m *mockExecutor) TypeText(ctx context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record("type:" + text)
}

func (m *mockExecutor) eventsExcept(kind string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.events {
		if e != kind {
			out = append(out, e)
		}
	}
	return out
}

func testConfig() config.HumanoidConfig {
	return config.HumanoidConfig{
		StepsPerSecond: 100,
		DriftAmplitude: 2,
		CurveSpread:    0.2,
		KeyInterval:    10 * time.Millisecond,
		ClickHold:      20 * time.Millisecond,
		Seed:           42,
	}
}

func newTestHumanoid(start schemas.Point) (*Humanoid, *mockExecutor) {
	exec := newMockExecutor(start)
	return New(testConfig(), exec, zap.NewNop()), exec
}

// =============================================================================
// Trajectory
// =============================================================================

func TestEaseInOutCubic(t *testing.T) {
	assert.InDelta(t, 0.0, computeEaseInOutCubic(0), 1e-9)
	assert.InDelta(t, 0.5, computeEaseInOutCubic(0.5), 1e-9)
	assert.InDelta(t, 1.0, computeEaseInOutCubic(1), 1e-9)
	assert.Less(t, computeEaseInOutCubic(0.1), 0.1, "should start slow")
	assert.Greater(t, computeEaseInOutCubic(0.9), 0.9, "should end slow")
}

func TestMoveToLandsExactlyOnTarget(t *testing.T) {
	h, exec := newTestHumanoid(schemas.Point{X: 10, Y: 10})
	target := schemas.Point{X: 400, Y: 300}

	require.NoError(t, h.MoveTo(context.Background(), target, 200*time.Millisecond))

	require.Greater(t, len(exec.moves), 2, "a timed move must produce intermediate samples")
	assert.Equal(t, target, exec.moves[len(exec.moves)-1])

	var slept time.Duration
	for _, d := range exec.sleeps {
		slept += d
	}
	assert.InDelta(t, float64(200*time.Millisecond), float64(slept), float64(5*time.Millisecond))
}

func TestMoveToZeroDurationJumps(t *testing.T) {
	h, exec := newTestHumanoid(schemas.Point{X: 0, Y: 0})
	target := schemas.Point{X: 50, Y: 60}

	require.NoError(t, h.MoveTo(context.Background(), target, 0))
	assert.Equal(t, []schemas.Point{target}, exec.moves)
	assert.Empty(t, exec.sleeps)
}

func TestPlannedPathRespectsBounds(t *testing.T) {
	h, exec := newTestHumanoid(schemas.Point{X: 0, Y: 0})
	h.cfg.DriftAmplitude = 40
	bounds := schemas.Size{Width: 100, Height: 100}
	h.SetBounds(bounds)

	require.NoError(t, h.MoveTo(context.Background(), schemas.Point{X: 0, Y: 99}, 500*time.Millisecond))
	for _, p := range exec.moves {
		assert.True(t, bounds.Contains(p), "sample %s escaped the display", p)
	}
}

func TestMoveToHonorsCancellation(t *testing.T) {
	h, _ := newTestHumanoid(schemas.Point{X: 0, Y: 0})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.MoveTo(ctx, schemas.Point{X: 300, Y: 300}, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

// =============================================================================
// Drag, click, scroll
// =============================================================================

func TestDragPressMoveRelease(t *testing.T) {
	h, exec := newTestHumanoid(schemas.Point{X: 5, Y: 5})
	from := schemas.Point{X: 20, Y: 20}
	to := schemas.Point{X: 220, Y: 120}

	require.NoError(t, h.Drag(context.Background(), &from, to, schemas.ButtonLeft, 0, 150*time.Millisecond))

	events := exec.eventsExcept("move")
	assert.Equal(t, []string{"down:left", "up:left"}, events)
	assert.Equal(t, from, exec.moves[0])
	assert.Equal(t, to, exec.moves[len(exec.moves)-1])
}

func TestDragReleasesOnFailure(t *testing.T) {
	h, exec := newTestHumanoid(schemas.Point{X: 5, Y: 5})
	exec.failOn = "move"
	exec.failErr = errors.New("device unplugged")

	err := h.Drag(context.Background(), nil, schemas.Point{X: 100, Y: 100}, schemas.ButtonRight, 0, 100*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, exec.eventsExcept("move"), "up:right", "button must be released after a failed drag")
}

func TestClickMovesThenClicks(t *testing.T) {
	h, exec := newTestHumanoid(schemas.Point{X: 0, Y: 0})
	target := schemas.Point{X: 30, Y: 40}

	require.NoError(t, h.Click(context.Background(), &target, schemas.ButtonLeft, 2, 0))
	assert.Equal(t, []string{"move", "click:left:2"}, exec.events)

	exec.events = nil
	require.NoError(t, h.Click(context.Background(), nil, schemas.ButtonMiddle, 1, 0))
	assert.Equal(t, []string{"click:middle:1"}, exec.events)
}

func TestScrollAxis(t *testing.T) {
	h, exec := newTestHumanoid(schemas.Point{X: 0, Y: 0})

	require.NoError(t, h.Scroll(context.Background(), nil, schemas.AxisVertical, -5, 0))
	require.NoError(t, h.Scroll(context.Background(), nil, schemas.AxisHorizontal, 3, 0))
	assert.Equal(t, []string{"vscroll", "hscroll"}, exec.events)
}

// =============================================================================
// Keyboard
// =============================================================================

func TestNormalizeChord(t *testing.T) {
	keys, err := NormalizeChord([]string{"Control", "Shift", "T"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ctrl", "shift", "t"}, keys)

	keys, err = NormalizeChord([]string{"cmd+Return"})
	require.NoError(t, err)
	assert.Equal(t, []string{"meta", "enter"}, keys)

	keys, err = NormalizeChord([]string{"A"})
	require.NoError(t, err)
	assert.Equal(t, []string{"shift", "a"}, keys, "uppercase letters keep their case through shift")

	keys, err = NormalizeChord([]string{"ctrl+A"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ctrl", "shift", "a"}, keys)

	k, err := NormalizeKey("A")
	require.NoError(t, err)
	assert.Equal(t, "A", k)

	keys, err = NormalizeChord([]string{"+"})
	require.NoError(t, err)
	assert.Equal(t, []string{"+"}, keys)

	_, err = NormalizeChord([]string{"hyper"})
	assert.ErrorIs(t, err, schemas.ErrUnsupportedKey)
}

func TestChordReleasesInReverse(t *testing.T) {
	h, exec := newTestHumanoid(schemas.Point{})

	require.NoError(t, h.Chord(context.Background(), []string{"ctrl", "alt", "delete"}))
	assert.Equal(t, []string{
		"keydown:ctrl", "keydown:alt", "keydown:delete",
		"keyup:delete", "keyup:alt", "keyup:ctrl",
	}, exec.events)
}

func TestChordReleasesHeldKeysOnFailure(t *testing.T) {
	h, exec := newTestHumanoid(schemas.Point{})
	exec.failOn = "keydown:c"
	exec.failErr = errors.New("no such key")

	err := h.Chord(context.Background(), []string{"ctrl", "c"})
	require.Error(t, err)
	assert.Equal(t, []string{"keydown:ctrl", "keydown:c", "keyup:ctrl"}, exec.events)
}

func TestTypePacesRunes(t *testing.T) {
	h, exec := newTestHumanoid(schemas.Point{})

	require.NoError(t, h.Type(context.Background(), "héllo"))
	assert.Equal(t, []string{"type:h", "type:é", "type:l", "type:l", "type:o"}, exec.events)
	assert.Len(t, exec.sleeps, 4)

	h.cfg.KeyInterval = 0
	exec.events = nil
	require.NoError(t, h.Type(context.Background(), "fast"))
	assert.Equal(t, []string{"type:fast"}, exec.events)
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, SleepContext(ctx, time.Hour), context.Canceled)
	assert.NoError(t, SleepContext(context.Background(), time.Millisecond))
}
