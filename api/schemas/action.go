package schemas

import (
	"fmt"
	"strings"
	"time"
)

// -- Action Schemas --

// ActionType names one variant of the closed action set the model may request.
type ActionType string

const (
	ActionMove        ActionType = "move"         // Moves the pointer to a coordinate.
	ActionClick       ActionType = "click"        // Single click, optionally at a coordinate.
	ActionDoubleClick ActionType = "double_click" // Double click, optionally at a coordinate.
	ActionTripleClick ActionType = "triple_click" // Triple click, optionally at a coordinate.
	ActionDrag        ActionType = "drag"         // Press, move to the end point, release.
	ActionScroll      ActionType = "scroll"       // Wheel scroll along one axis.
	ActionTypeText    ActionType = "type_text"    // Types literal text.
	ActionKeyPress    ActionType = "key_press"    // Presses a key combination.
	ActionWait        ActionType = "wait"         // Pauses before the next observation.
	ActionScreenshot  ActionType = "screenshot"   // Observation only, no device effect.
	ActionAnswer      ActionType = "answer"       // Records the final answer.
	ActionTerminate   ActionType = "terminate"    // Ends the session.
)

// AllActionTypes lists the canonical variants in the order they are documented to the model.
var AllActionTypes = []ActionType{
	ActionMove, ActionClick, ActionDoubleClick, ActionTripleClick, ActionDrag, ActionScroll,
	ActionTypeText, ActionKeyPress, ActionWait, ActionScreenshot, ActionAnswer, ActionTerminate,
}

// IsProtocol reports whether the action is consumed by the agent loop rather than a device.
func (t ActionType) IsProtocol() bool {
	return t == ActionAnswer || t == ActionTerminate
}

// Button identifies a pointer button.
type Button string

const (
	ButtonLeft   Button = "left"
	ButtonRight  Button = "right"
	ButtonMiddle Button = "middle"
)

// Axis selects the scroll direction.
type Axis string

const (
	AxisVertical   Axis = "vertical"
	AxisHorizontal Axis = "horizontal"
)

// TaskStatus is the self-reported outcome carried by a terminate action.
type TaskStatus string

const (
	TaskSuccess TaskStatus = "success"
	TaskFailure TaskStatus = "failure"
)

// MaxWait is the longest pause a wait action may request.
const MaxWait = 60 * time.Second

// Point is a pixel coordinate relative to the addressed display's origin.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Point) String() string { return fmt.Sprintf("(%d, %d)", p.X, p.Y) }

// Size is the pixel extent of a display.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Contains reports whether p lies inside a display of this size.
func (s Size) Contains(p Point) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < s.Width && p.Y < s.Height
}

// Clamp pulls p onto the nearest pixel inside the display.
func (s Size) Clamp(p Point) Point {
	return Point{X: clampInt(p.X, 0, s.Width-1), Y: clampInt(p.Y, 0, s.Height-1)}
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Action is one validated request from the model. Only the fields relevant to
// Type are populated; Validate enforces the per-variant requirements.
type Action struct {
	Type       ActionType    `json:"type"`
	Coordinate *Point        `json:"coordinate,omitempty"`       // Target (move, clicks, scroll) or end point (drag).
	Start      *Point        `json:"start_coordinate,omitempty"` // Optional drag origin.
	Button     Button        `json:"button,omitempty"`
	Pixels     int           `json:"pixels,omitempty"`
	Axis       Axis          `json:"axis,omitempty"`
	Text       string        `json:"text,omitempty"`
	Keys       []string      `json:"keys,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"` // Zero means the configured motion duration; required for wait.
	Status     TaskStatus    `json:"status,omitempty"`
}

// Validate checks the per-variant required fields.
func (a Action) Validate() error {
	switch a.Type {
	case ActionMove:
		if a.Coordinate == nil {
			return fmt.Errorf("coordinate is required for action=%s", a.Type)
		}
	case ActionClick, ActionDoubleClick, ActionTripleClick:
		if err := validateButton(a.Button); err != nil {
			return err
		}
	case ActionDrag:
		if a.Coordinate == nil {
			return fmt.Errorf("coordinate is required for action=%s", a.Type)
		}
		if err := validateButton(a.Button); err != nil {
			return err
		}
	case ActionScroll:
		if a.Pixels == 0 {
			return fmt.Errorf("pixels must be a non-zero integer for action=%s", a.Type)
		}
		if a.Axis != "" && a.Axis != AxisVertical && a.Axis != AxisHorizontal {
			return fmt.Errorf("axis must be %q or %q", AxisVertical, AxisHorizontal)
		}
	case ActionTypeText:
		if a.Text == "" {
			return fmt.Errorf("text is required for action=%s", a.Type)
		}
	case ActionKeyPress:
		if len(a.Keys) == 0 {
			return fmt.Errorf("keys is required for action=%s", a.Type)
		}
		for _, k := range a.Keys {
			if strings.TrimSpace(k) == "" {
				return fmt.Errorf("keys must not contain empty entries")
			}
		}
	case ActionWait:
		if a.Duration <= 0 || a.Duration > MaxWait {
			return fmt.Errorf("time must be in (0, %s] for action=%s", MaxWait, a.Type)
		}
	case ActionScreenshot:
	case ActionAnswer:
		if strings.TrimSpace(a.Text) == "" {
			return fmt.Errorf("text is required for action=%s", a.Type)
		}
	case ActionTerminate:
		if a.Status != "" && a.Status != TaskSuccess && a.Status != TaskFailure {
			return fmt.Errorf("status must be %q or %q", TaskSuccess, TaskFailure)
		}
	default:
		return fmt.Errorf("unknown action %q", a.Type)
	}
	if a.Duration < 0 {
		return fmt.Errorf("duration must not be negative")
	}
	return nil
}

func validateButton(b Button) error {
	switch b {
	case "", ButtonLeft, ButtonRight, ButtonMiddle:
		return nil
	}
	return fmt.Errorf("button must be one of left, right, middle; got %q", b)
}

// ButtonOrDefault returns the requested button, falling back to left.
func (a Action) ButtonOrDefault() Button {
	if a.Button == "" {
		return ButtonLeft
	}
	return a.Button
}

// ClickCount maps click variants to the number of presses.
func (a Action) ClickCount() int {
	switch a.Type {
	case ActionDoubleClick:
		return 2
	case ActionTripleClick:
		return 3
	default:
		return 1
	}
}

// Summary renders a compact, log friendly description.
func (a Action) Summary() string {
	var b strings.Builder
	b.WriteString(string(a.Type))
	if a.Start != nil {
		fmt.Fprintf(&b, " from %s", a.Start)
	}
	if a.Coordinate != nil {
		fmt.Fprintf(&b, " at %s", a.Coordinate)
	}
	if a.Button != "" && a.Button != ButtonLeft {
		fmt.Fprintf(&b, " button=%s", a.Button)
	}
	if a.Pixels != 0 {
		fmt.Fprintf(&b, " pixels=%d", a.Pixels)
	}
	if len(a.Keys) > 0 {
		fmt.Fprintf(&b, " keys=%s", strings.Join(a.Keys, "+"))
	}
	if a.Type == ActionTypeText {
		fmt.Fprintf(&b, " text_len=%d", len([]rune(a.Text)))
	}
	return b.String()
}
