// Package host drives the native desktop through robotgo. It needs cgo and the
// X11/XTest headers on Linux, so it is linked only into the binary and
// registers itself with the display package on import.
package host

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/go-vgo/robotgo"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/api/schemas"
	"github.com/xkilldash9x/deskpilot/internal/display"
)

func init() {
	display.RegisterHost(display.HostDriver{
		Open: func(monitorIndex int, logger *zap.Logger) (schemas.Device, error) {
			return NewHostDevice(monitorIndex, logger)
		},
		List: ListDisplays,
	})
}

// hostKeyNames maps canonical key names onto robotgo's spelling where the
// two differ.
var hostKeyNames = map[string]string{
	"meta":   "cmd",
	"escape": "esc",
}

// ListDisplays enumerates the attached monitors.
func ListDisplays() []display.DisplayInfo {
	n := robotgo.DisplaysNum()
	out := make([]display.DisplayInfo, 0, n)
	for i := 0; i < n; i++ {
		x, y, w, h := robotgo.GetDisplayBounds(i)
		out = append(out, display.DisplayInfo{Index: i + 1, Bounds: image.Rect(x, y, x+w, y+h)})
	}
	return out
}

// HostDevice drives the real desktop through robotgo. Coordinates are
// translated between the addressed monitor and the virtual screen.
type HostDevice struct {
	mu     sync.Mutex
	bounds image.Rectangle
	logger *zap.Logger
}

var _ schemas.Device = (*HostDevice)(nil)

// NewHostDevice opens the monitor at the given 1-based index, or the union of
// all monitors for index 0.
func NewHostDevice(monitorIndex int, logger *zap.Logger) (*HostDevice, error) {
	displays := ListDisplays()
	rects := make([]image.Rectangle, len(displays))
	for i, d := range displays {
		rects[i] = d.Bounds
	}
	bounds, err := display.ResolveMonitor(rects, monitorIndex)
	if err != nil {
		return nil, err
	}

	logger.Info("Host display opened.",
		zap.Int("monitor_index", monitorIndex),
		zap.Int("displays", len(displays)),
		zap.String("bounds", bounds.String()),
	)
	return &HostDevice{bounds: bounds, logger: logger}, nil
}

func (d *HostDevice) Size() schemas.Size {
	return schemas.Size{Width: d.bounds.Dx(), Height: d.bounds.Dy()}
}

func (d *HostDevice) Capture(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	img, err := robotgo.CaptureImg(d.bounds.Min.X, d.bounds.Min.Y, d.bounds.Dx(), d.bounds.Dy())
	if err != nil {
		return nil, fmt.Errorf("host display: screen grab failed: %w", err)
	}
	return img, nil
}

func (d *HostDevice) Cursor(ctx context.Context) (schemas.Point, error) {
	if err := ctx.Err(); err != nil {
		return schemas.Point{}, err
	}
	x, y := robotgo.Location()
	return schemas.Point{X: x - d.bounds.Min.X, Y: y - d.bounds.Min.Y}, nil
}

func (d *HostDevice) MoveTo(ctx context.Context, p schemas.Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	robotgo.Move(d.bounds.Min.X+p.X, d.bounds.Min.Y+p.Y)
	return nil
}

func (d *HostDevice) ButtonDown(ctx context.Context, b schemas.Button) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return robotgo.Toggle(string(b), "down")
}

func (d *HostDevice) ButtonUp(ctx context.Context, b schemas.Button) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return robotgo.Toggle(string(b), "up")
}

func (d *HostDevice) Click(ctx context.Context, b schemas.Button, count int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if count == 2 {
		robotgo.Click(string(b), true)
		return nil
	}
	for i := 0; i < count; i++ {
		if i > 0 {
			robotgo.MilliSleep(40)
		}
		robotgo.Click(string(b))
	}
	return nil
}

func (d *HostDevice) Scroll(ctx context.Context, dx, dy int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	robotgo.Scroll(dx, dy)
	return nil
}

func (d *HostDevice) KeyDown(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := robotgo.KeyToggle(hostKey(key), "down"); err != nil {
		return fmt.Errorf("%w: %s: %v", schemas.ErrUnsupportedKey, key, err)
	}
	return nil
}

func (d *HostDevice) KeyUp(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := robotgo.KeyToggle(hostKey(key), "up"); err != nil {
		return fmt.Errorf("%w: %s: %v", schemas.ErrUnsupportedKey, key, err)
	}
	return nil
}

func (d *HostDevice) TypeText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	robotgo.TypeStr(text)
	return nil
}

// Close releases nothing; the desktop outlives the session.
func (d *HostDevice) Close() error { return nil }

func hostKey(key string) string {
	if name, ok := hostKeyNames[key]; ok {
		return name
	}
	return key
}
