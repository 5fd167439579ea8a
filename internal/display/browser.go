package display

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/api/schemas"
	"github.com/xkilldash9x/deskpilot/internal/config"
)

// DevTools event type names.
const (
	cdpMouseMoved    = "mouseMoved"
	cdpMousePressed  = "mousePressed"
	cdpMouseReleased = "mouseReleased"
	cdpMouseWheel    = "mouseWheel"
	cdpKeyDown       = "keyDown"
	cdpRawKeyDown    = "rawKeyDown"
	cdpKeyUp         = "keyUp"
)

const browserOpTimeout = 15 * time.Second

// cdpKey describes how DevTools expects a key to be reported.
type cdpKey struct {
	key     string
	code    string
	keyCode int64
	text    string
}

var cdpNamedKeys = map[string]cdpKey{
	"ctrl":        {key: "Control", code: "ControlLeft", keyCode: 17},
	"alt":         {key: "Alt", code: "AltLeft", keyCode: 18},
	"shift":       {key: "Shift", code: "ShiftLeft", keyCode: 16},
	"meta":        {key: "Meta", code: "MetaLeft", keyCode: 91},
	"enter":       {key: "Enter", code: "Enter", keyCode: 13, text: "\r"},
	"tab":         {key: "Tab", code: "Tab", keyCode: 9},
	"escape":      {key: "Escape", code: "Escape", keyCode: 27},
	"backspace":   {key: "Backspace", code: "Backspace", keyCode: 8},
	"delete":      {key: "Delete", code: "Delete", keyCode: 46},
	"space":       {key: " ", code: "Space", keyCode: 32, text: " "},
	"up":          {key: "ArrowUp", code: "ArrowUp", keyCode: 38},
	"down":        {key: "ArrowDown", code: "ArrowDown", keyCode: 40},
	"left":        {key: "ArrowLeft", code: "ArrowLeft", keyCode: 37},
	"right":       {key: "ArrowRight", code: "ArrowRight", keyCode: 39},
	"home":        {key: "Home", code: "Home", keyCode: 36},
	"end":         {key: "End", code: "End", keyCode: 35},
	"pageup":      {key: "PageUp", code: "PageUp", keyCode: 33},
	"pagedown":    {key: "PageDown", code: "PageDown", keyCode: 34},
	"insert":      {key: "Insert", code: "Insert", keyCode: 45},
	"capslock":    {key: "CapsLock", code: "CapsLock", keyCode: 20},
	"printscreen": {key: "PrintScreen", code: "PrintScreen", keyCode: 44},
}

var cdpModifierBits = map[string]input.Modifier{
	"alt":   input.ModifierAlt,
	"ctrl":  input.ModifierCtrl,
	"meta":  input.ModifierMeta,
	"shift": input.ModifierShift,
}

// cdpButtonBits is the "buttons" bitfield DevTools expects alongside mouse events.
var cdpButtonBits = map[schemas.Button]int64{
	schemas.ButtonLeft:   1,
	schemas.ButtonRight:  2,
	schemas.ButtonMiddle: 4,
}

func init() {
	for i := 1; i <= 12; i++ {
		name := fmt.Sprintf("F%d", i)
		cdpNamedKeys[strings.ToLower(name)] = cdpKey{key: name, code: name, keyCode: int64(111 + i)}
	}
}

// lookupCDPKey resolves a canonical key name.
func lookupCDPKey(name string) (cdpKey, error) {
	if k, ok := cdpNamedKeys[name]; ok {
		return k, nil
	}
	if utf8.RuneCountInString(name) != 1 {
		return cdpKey{}, fmt.Errorf("%w: %q", schemas.ErrUnsupportedKey, name)
	}

	r, _ := utf8.DecodeRuneInString(name)
	k := cdpKey{key: name, text: name}
	upper := unicode.ToUpper(r)
	switch {
	case r >= 'a' && r <= 'z':
		k.code = "Key" + string(upper)
		k.keyCode = int64(upper)
	case r >= '0' && r <= '9':
		k.code = "Digit" + name
		k.keyCode = int64(r)
	}
	return k, nil
}

// BrowserDevice drives a disposable Chrome tab over DevTools. The viewport is
// the display.
type BrowserDevice struct {
	mu        sync.Mutex
	tab       context.Context
	cancel    func()
	size      schemas.Size
	cursor    schemas.Point
	buttons   int64
	modifiers input.Modifier
	logger    *zap.Logger
}

var _ schemas.Device = (*BrowserDevice)(nil)

// NewBrowserDevice launches Chrome and opens cfg.StartURL in a viewport of
// the configured size. The browser lives until Close, independent of ctx.
func NewBrowserDevice(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*BrowserDevice, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.WindowSize(cfg.Width, cfg.Height),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logger.Sugar().Debugf),
		chromedp.WithErrorf(logger.Sugar().Errorf),
	)

	d := &BrowserDevice{
		tab:  tabCtx,
		size: schemas.Size{Width: cfg.Width, Height: cfg.Height},
		cancel: func() {
			tabCancel()
			allocCancel()
		},
		logger: logger,
	}

	// The first Run starts the browser and binds its lifetime to tabCtx.
	if err := chromedp.Run(tabCtx,
		chromedp.EmulateViewport(int64(cfg.Width), int64(cfg.Height)),
		chromedp.Navigate(cfg.StartURL),
	); err != nil {
		d.cancel()
		return nil, fmt.Errorf("browser display: failed to start: %w", err)
	}

	logger.Info("Browser display opened.", zap.String("url", cfg.StartURL), zap.Int("width", cfg.Width), zap.Int("height", cfg.Height))
	return d, nil
}

// run executes actions on the tab, bounded by ctx and a per call timeout.
func (d *BrowserDevice) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	opCtx, cancel := context.WithTimeout(d.tab, browserOpTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(opCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("browser display: %w", err)
	}
	return nil
}

func (d *BrowserDevice) Size() schemas.Size { return d.size }

func (d *BrowserDevice) Capture(ctx context.Context) (image.Image, error) {
	var buf []byte
	if err := d.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	img, err := png.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("browser display: undecodable screenshot: %w", err)
	}
	return img, nil
}

func (d *BrowserDevice) Cursor(ctx context.Context) (schemas.Point, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cursor, ctx.Err()
}

func (d *BrowserDevice) MoveTo(ctx context.Context, p schemas.Point) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	ev := input.DispatchMouseEvent(cdpMouseMoved, float64(p.X), float64(p.Y)).
		WithButtons(d.buttons).
		WithModifiers(d.modifiers)
	if err := d.run(ctx, ev); err != nil {
		return err
	}
	d.cursor = p
	return nil
}

func (d *BrowserDevice) ButtonDown(ctx context.Context, b schemas.Button) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	buttons := d.buttons | cdpButtonBits[b]
	if err := d.run(ctx, d.mouseButtonEvent(cdpMousePressed, b, 1, buttons)); err != nil {
		return err
	}
	d.buttons = buttons
	return nil
}

func (d *BrowserDevice) ButtonUp(ctx context.Context, b schemas.Button) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	buttons := d.buttons &^ cdpButtonBits[b]
	if err := d.run(ctx, d.mouseButtonEvent(cdpMouseReleased, b, 1, buttons)); err != nil {
		return err
	}
	d.buttons = buttons
	return nil
}

func (d *BrowserDevice) Click(ctx context.Context, b schemas.Button, count int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	actions := make([]chromedp.Action, 0, count*2)
	for i := 1; i <= count; i++ {
		actions = append(actions,
			d.mouseButtonEvent(cdpMousePressed, b, int64(i), d.buttons|cdpButtonBits[b]),
			d.mouseButtonEvent(cdpMouseReleased, b, int64(i), d.buttons),
		)
	}
	return d.run(ctx, actions...)
}

func (d *BrowserDevice) mouseButtonEvent(typ input.MouseType, b schemas.Button, clickCount, buttons int64) *input.DispatchMouseEventParams {
	return input.DispatchMouseEvent(typ, float64(d.cursor.X), float64(d.cursor.Y)).
		WithButton(input.MouseButton(b)).
		WithButtons(buttons).
		WithClickCount(clickCount).
		WithModifiers(d.modifiers)
}

// Scroll sends a wheel event. Wheel deltas grow downward, so dy is negated.
func (d *BrowserDevice) Scroll(ctx context.Context, dx, dy int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	ev := input.DispatchMouseEvent(cdpMouseWheel, float64(d.cursor.X), float64(d.cursor.Y)).
		WithDeltaX(float64(dx)).
		WithDeltaY(float64(-dy)).
		WithModifiers(d.modifiers)
	return d.run(ctx, ev)
}

func (d *BrowserDevice) KeyDown(ctx context.Context, key string) error {
	k, err := lookupCDPKey(key)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	mods := d.modifiers | cdpModifierBits[key]
	// Printable keys only produce text when no command modifier is held.
	typed := k.text != "" && d.modifiers&^input.ModifierShift == 0
	var ev *input.DispatchKeyEventParams
	if typed {
		ev = input.DispatchKeyEvent(cdpKeyDown).WithText(k.text)
	} else {
		ev = input.DispatchKeyEvent(cdpRawKeyDown)
	}
	ev = ev.WithKey(k.key).
		WithCode(k.code).
		WithWindowsVirtualKeyCode(k.keyCode).
		WithModifiers(mods)
	if err := d.run(ctx, ev); err != nil {
		return err
	}
	d.modifiers = mods
	return nil
}

func (d *BrowserDevice) KeyUp(ctx context.Context, key string) error {
	k, err := lookupCDPKey(key)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	mods := d.modifiers &^ cdpModifierBits[key]
	ev := input.DispatchKeyEvent(cdpKeyUp).
		WithKey(k.key).
		WithCode(k.code).
		WithWindowsVirtualKeyCode(k.keyCode).
		WithModifiers(mods)
	if err := d.run(ctx, ev); err != nil {
		return err
	}
	d.modifiers = mods
	return nil
}

func (d *BrowserDevice) TypeText(ctx context.Context, text string) error {
	return d.run(ctx, input.InsertText(text))
}

// Close shuts the tab and the browser process.
func (d *BrowserDevice) Close() error {
	d.cancel()
	return nil
}
