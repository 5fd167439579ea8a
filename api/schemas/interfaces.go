package schemas

import (
	"context"
	"errors"
	"image"
)

// -- Device Interface --

// ErrUnsupportedKey is returned by a Device that cannot synthesize a key.
var ErrUnsupportedKey = errors.New("unsupported key")

// Device is the single owned handle onto a display and its input devices.
// Coordinates are relative to the addressed display. Implementations are not
// safe for concurrent use; callers serialize access.
type Device interface {
	// Size returns the pixel extent of the addressed display.
	Size() Size
	// Capture grabs the current frame. It must not change device state.
	Capture(ctx context.Context) (image.Image, error)
	// Cursor returns the current pointer position.
	Cursor(ctx context.Context) (Point, error)
	MoveTo(ctx context.Context, p Point) error
	ButtonDown(ctx context.Context, b Button) error
	ButtonUp(ctx context.Context, b Button) error
	Click(ctx context.Context, b Button, count int) error
	// Scroll moves the wheel. Positive dy scrolls up, positive dx scrolls right.
	Scroll(ctx context.Context, dx, dy int) error
	// KeyDown and KeyUp take canonical lower-case key names ("ctrl", "enter", "a").
	KeyDown(ctx context.Context, key string) error
	KeyUp(ctx context.Context, key string) error
	TypeText(ctx context.Context, text string) error
	Close() error
}

// -- Agent Loop Collaborators --

// Capturer produces observations of the addressed display.
type Capturer interface {
	Capture(ctx context.Context) (*Observation, error)
}

// ActionExecutor performs a device action and reports the resulting
// observation. Device level failures are reported in the Outcome; the error
// return is reserved for conditions that make further turns meaningless.
type ActionExecutor interface {
	Execute(ctx context.Context, action Action) (*Observation, Outcome, error)
}

// Decider asks the model for its next move. Implementations must not modify
// the conversation they are given.
type Decider interface {
	Decide(ctx context.Context, conv *Conversation) (*Decision, error)
}

// ValidationError describes a tool call that could not be turned into an Action.
type ValidationError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *ValidationError) Error() string { return string(e.Code) + ": " + e.Message }

// ParsedCall pairs a raw tool call with its validated action or the reason it
// was rejected. Exactly one of Action and Err is set.
type ParsedCall struct {
	Call   ToolCall
	Action *Action
	Err    *ValidationError
}

// Decision is the model's reply for one turn.
type Decision struct {
	Text  string
	Calls []ParsedCall
}

// RawCalls returns the tool calls in emitted order.
func (d *Decision) RawCalls() []ToolCall {
	out := make([]ToolCall, 0, len(d.Calls))
	for _, c := range d.Calls {
		out = append(out, c.Call)
	}
	return out
}

// Empty reports a reply with neither text nor tool calls.
func (d *Decision) Empty() bool {
	return len(d.Calls) == 0 && d.Text == ""
}
