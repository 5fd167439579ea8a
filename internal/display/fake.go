package display

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"sync"

	"github.com/xkilldash9x/deskpilot/api/schemas"
)

// FakeDevice is an in-memory display. Input is recorded rather than sent,
// and every mutating call stamps a mark at the pointer so that frames taken
// before and after an action differ. It backs the "fake" driver and tests.
type FakeDevice struct {
	mu       sync.Mutex
	size     schemas.Size
	cursor   schemas.Point
	frame    *image.RGBA
	held     map[schemas.Button]bool
	keys     map[string]bool
	typed    strings.Builder
	events   []string
	failures map[string]error
	closed   bool
}

var _ schemas.Device = (*FakeDevice)(nil)

var (
	fakeBackground = color.RGBA{R: 0x20, G: 0x24, B: 0x2c, A: 0xff}
	fakeMark       = color.RGBA{R: 0xf0, G: 0xc0, B: 0x40, A: 0xff}
)

// NewFakeDevice creates a blank display of the given size.
func NewFakeDevice(size schemas.Size) *FakeDevice {
	frame := image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
	draw.Draw(frame, frame.Bounds(), &image.Uniform{C: fakeBackground}, image.Point{}, draw.Src)
	return &FakeDevice{
		size:     size,
		frame:    frame,
		held:     make(map[schemas.Button]bool),
		keys:     make(map[string]bool),
		failures: make(map[string]error),
	}
}

// FailOn makes every later call of op ("capture", "cursor", "move", "down",
// "up", "click", "scroll", "keydown", "keyup", "type") return err. A nil err
// clears the failure.
func (d *FakeDevice) FailOn(op string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.failures, op)
		return
	}
	d.failures[op] = err
}

// SetCursor places the pointer without recording an event.
func (d *FakeDevice) SetCursor(p schemas.Point) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cursor = p
}

// Events returns the recorded input events in order.
func (d *FakeDevice) Events() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.events...)
}

// Typed returns all text entered so far.
func (d *FakeDevice) Typed() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.typed.String()
}

// Held reports whether a button is currently pressed.
func (d *FakeDevice) Held(b schemas.Button) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.held[b]
}

// KeysHeld returns the number of keys currently pressed.
func (d *FakeDevice) KeysHeld() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.keys)
}

// Closed reports whether Close has been called.
func (d *FakeDevice) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *FakeDevice) Size() schemas.Size { return d.size }

func (d *FakeDevice) Capture(ctx context.Context) (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(ctx, "capture"); err != nil {
		return nil, err
	}
	cp := image.NewRGBA(d.frame.Bounds())
	copy(cp.Pix, d.frame.Pix)
	return cp, nil
}

func (d *FakeDevice) Cursor(ctx context.Context) (schemas.Point, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(ctx, "cursor"); err != nil {
		return schemas.Point{}, err
	}
	return d.cursor, nil
}

func (d *FakeDevice) MoveTo(ctx context.Context, p schemas.Point) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(ctx, "move"); err != nil {
		return err
	}
	if !d.size.Contains(p) {
		return fmt.Errorf("fake display: %s is outside %dx%d", p, d.size.Width, d.size.Height)
	}
	d.cursor = p
	d.record("move:%s", p)
	return nil
}

func (d *FakeDevice) ButtonDown(ctx context.Context, b schemas.Button) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(ctx, "down"); err != nil {
		return err
	}
	d.held[b] = true
	d.record("down:%s", b)
	return nil
}

func (d *FakeDevice) ButtonUp(ctx context.Context, b schemas.Button) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(ctx, "up"); err != nil {
		return err
	}
	delete(d.held, b)
	d.record("up:%s", b)
	return nil
}

func (d *FakeDevice) Click(ctx context.Context, b schemas.Button, count int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(ctx, "click"); err != nil {
		return err
	}
	d.record("click:%s:%d@%s", b, count, d.cursor)
	return nil
}

func (d *FakeDevice) Scroll(ctx context.Context, dx, dy int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(ctx, "scroll"); err != nil {
		return err
	}
	d.record("scroll:%d,%d", dx, dy)
	return nil
}

func (d *FakeDevice) KeyDown(ctx context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(ctx, "keydown"); err != nil {
		return err
	}
	d.keys[key] = true
	d.record("keydown:%s", key)
	return nil
}

func (d *FakeDevice) KeyUp(ctx context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(ctx, "keyup"); err != nil {
		return err
	}
	delete(d.keys, key)
	d.record("keyup:%s", key)
	return nil
}

func (d *FakeDevice) TypeText(ctx context.Context, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(ctx, "type"); err != nil {
		return err
	}
	d.typed.WriteString(text)
	d.record("type:%s", text)
	return nil
}

func (d *FakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// check must be called with d.mu held.
func (d *FakeDevice) check(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.closed {
		return fmt.Errorf("fake display: %s after close", op)
	}
	return d.failures[op]
}

// record must be called with d.mu held.
func (d *FakeDevice) record(format string, args ...any) {
	d.events = append(d.events, fmt.Sprintf(format, args...))
	d.stamp()
}

// stamp marks a small square at the pointer.
func (d *FakeDevice) stamp() {
	r := image.Rect(d.cursor.X-2, d.cursor.Y-2, d.cursor.X+3, d.cursor.Y+3).Intersect(d.frame.Bounds())
	shade := fakeMark
	shade.B = uint8(len(d.events) * 16)
	draw.Draw(d.frame, r, &image.Uniform{C: shade}, image.Point{}, draw.Src)
}
