package llmclient

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/deskpilot/api/schemas"
)

// ToolName is the single function tool offered to the model.
const ToolName = "computer_use"

// ToolDescription introduces the tool to the model.
const ToolDescription = "Use a mouse and keyboard to interact with a computer, and take screenshots.\n" +
	"* This is an interface to a desktop GUI. You do not have access to a terminal or applications menu. " +
	"You must click on desktop icons to start applications.\n" +
	"* Some applications may take time to start or process actions, so you may need to wait and take " +
	"successive screenshots to see the results of your actions.\n" +
	"* The screen's resolution is given with every screenshot. Coordinates are [x, y] pixels from the top-left corner.\n" +
	"* Whenever you intend to move the cursor to click on an element, consult the latest screenshot to " +
	"determine the coordinates of the element first.\n" +
	"* Click buttons, links and icons with the cursor tip in the center of the element."

// actionAlias maps a wire spelling onto a canonical action and any field it implies.
type actionAlias struct {
	action schemas.ActionType
	button schemas.Button
	axis   schemas.Axis
}

var actionAliases = map[string]actionAlias{
	"mouse_move":      {action: schemas.ActionMove},
	"left_click":      {action: schemas.ActionClick, button: schemas.ButtonLeft},
	"right_click":     {action: schemas.ActionClick, button: schemas.ButtonRight},
	"middle_click":    {action: schemas.ActionClick, button: schemas.ButtonMiddle},
	"left_click_drag": {action: schemas.ActionDrag, button: schemas.ButtonLeft},
	"type":            {action: schemas.ActionTypeText},
	"key":             {action: schemas.ActionKeyPress},
	"hscroll":         {action: schemas.ActionScroll, axis: schemas.AxisHorizontal},
}

// aliasOrder keeps the advertised enum stable.
var aliasOrder = []string{"mouse_move", "left_click", "right_click", "middle_click", "left_click_drag", "type", "key", "hscroll"}

// ComputerUseArgs is the argument object of the computer_use tool.
type ComputerUseArgs struct {
	Action          string    `json:"action" jsonschema_description:"The action to perform."`
	Coordinate      []float64 `json:"coordinate,omitempty" jsonschema:"minItems=2,maxItems=2" jsonschema_description:"Target [x, y] for pointer actions; the end point for drag."`
	StartCoordinate []float64 `json:"start_coordinate,omitempty" jsonschema:"minItems=2,maxItems=2" jsonschema_description:"Optional [x, y] where a drag starts. Defaults to the current cursor."`
	Button          string    `json:"button,omitempty" jsonschema:"enum=left,enum=right,enum=middle" jsonschema_description:"Pointer button for click variants and drag. Defaults to left."`
	Pixels          *float64  `json:"pixels,omitempty" jsonschema_description:"Scroll amount for action=scroll. Positive scrolls up (or right), negative scrolls down (or left)."`
	Axis            string    `json:"axis,omitempty" jsonschema:"enum=vertical,enum=horizontal" jsonschema_description:"Scroll axis. Defaults to vertical."`
	Text            *string   `json:"text,omitempty" jsonschema_description:"Text for action=type_text or action=answer."`
	Keys            keyList   `json:"keys,omitempty" jsonschema_description:"Keys for action=key_press, pressed in order and released in reverse. Example: [\"ctrl\", \"c\"]."`
	Time            *float64  `json:"time,omitempty" jsonschema_description:"Seconds to wait for action=wait (at most 60)."`
	Duration        *float64  `json:"duration,omitempty" jsonschema_description:"Optional seconds the pointer takes for action=move or action=drag."`
	Status          string    `json:"status,omitempty" jsonschema:"enum=success,enum=failure" jsonschema_description:"Task status for action=terminate."`
}

// JSONSchemaExtend advertises every canonical action name and alias.
func (ComputerUseArgs) JSONSchemaExtend(s *jsonschema.Schema) {
	prop, ok := s.Properties.Get("action")
	if !ok {
		return
	}
	enum := make([]any, 0, len(schemas.AllActionTypes)+len(aliasOrder))
	for _, t := range schemas.AllActionTypes {
		enum = append(enum, string(t))
	}
	for _, a := range aliasOrder {
		enum = append(enum, a)
	}
	prop.Type = "string"
	prop.Enum = enum
}

// keyList accepts either a JSON array of key names or a single "ctrl+c" style string.
type keyList []string

func (k *keyList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*k = list
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err != nil {
		return fmt.Errorf("keys must be an array of strings")
	}
	*k = keyList{single}
	return nil
}

func (keyList) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "array", Items: &jsonschema.Schema{Type: "string"}}
}

// ToolParameters returns the JSON schema of ComputerUseArgs as plain JSON values.
func ToolParameters() (map[string]any, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	reflected := reflector.Reflect(&ComputerUseArgs{})

	paramSchema := map[string]any{
		"type":                 "object",
		"properties":           reflected.Properties,
		"additionalProperties": false,
	}
	if len(reflected.Required) > 0 {
		paramSchema["required"] = reflected.Required
	}

	raw, err := json.Marshal(paramSchema)
	if err != nil {
		return nil, fmt.Errorf("llmclient: failed to render tool schema: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("llmclient: failed to render tool schema: %w", err)
	}
	return out, nil
}

// ParseToolCall validates one raw tool call. The result carries either an
// Action or a ValidationError, never both.
func ParseToolCall(call schemas.ToolCall) schemas.ParsedCall {
	pc := schemas.ParsedCall{Call: call}
	action, verr := parseArguments(call)
	if verr != nil {
		pc.Err = verr
		return pc
	}
	pc.Action = action
	return pc
}

func parseArguments(call schemas.ToolCall) (*schemas.Action, *schemas.ValidationError) {
	if call.Name != ToolName {
		return nil, invalid(schemas.ErrCodeUnknownAction, "unknown tool %q; the only tool is %q", call.Name, ToolName)
	}

	rawArgs := strings.TrimSpace(call.Arguments)
	if rawArgs == "" {
		rawArgs = "{}"
	}
	var args ComputerUseArgs
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		return nil, invalid(schemas.ErrCodeInvalidArguments, "arguments are not a valid JSON object: %v", err)
	}

	name := strings.ToLower(strings.TrimSpace(args.Action))
	if name == "" {
		return nil, invalid(schemas.ErrCodeInvalidArguments, "action is required")
	}

	action := schemas.Action{Type: schemas.ActionType(name)}
	if alias, ok := actionAliases[name]; ok {
		action.Type = alias.action
		action.Button = alias.button
		action.Axis = alias.axis
	} else if !isCanonical(action.Type) {
		return nil, invalid(schemas.ErrCodeUnknownAction, "unknown action %q", args.Action)
	}

	var err error
	if action.Coordinate, err = toPoint("coordinate", args.Coordinate); err != nil {
		return nil, invalid(schemas.ErrCodeInvalidArguments, "%v", err)
	}
	if action.Start, err = toPoint("start_coordinate", args.StartCoordinate); err != nil {
		return nil, invalid(schemas.ErrCodeInvalidArguments, "%v", err)
	}
	if args.Button != "" && action.Button == "" {
		action.Button = schemas.Button(strings.ToLower(args.Button))
	}
	if args.Axis != "" && action.Axis == "" {
		action.Axis = schemas.Axis(strings.ToLower(args.Axis))
	}
	if args.Pixels != nil {
		action.Pixels = int(math.Round(*args.Pixels))
	}
	if args.Text != nil {
		action.Text = *args.Text
	}
	action.Keys = args.Keys
	action.Status = schemas.TaskStatus(strings.ToLower(args.Status))

	seconds := args.Duration
	if action.Type == schemas.ActionWait {
		seconds = args.Time
	}
	if seconds != nil {
		if *seconds < 0 || math.IsNaN(*seconds) || math.IsInf(*seconds, 0) {
			return nil, invalid(schemas.ErrCodeInvalidArguments, "time and duration must be non-negative seconds")
		}
		action.Duration = time.Duration(*seconds * float64(time.Second))
	}

	if err := action.Validate(); err != nil {
		return nil, invalid(schemas.ErrCodeInvalidArguments, "%v", err)
	}
	return &action, nil
}

func isCanonical(t schemas.ActionType) bool {
	for _, c := range schemas.AllActionTypes {
		if c == t {
			return true
		}
	}
	return false
}

func toPoint(field string, xy []float64) (*schemas.Point, error) {
	if xy == nil {
		return nil, nil
	}
	if len(xy) != 2 {
		return nil, fmt.Errorf("%s must be [x, y]", field)
	}
	return &schemas.Point{X: int(math.Round(xy[0])), Y: int(math.Round(xy[1]))}, nil
}

func invalid(code schemas.ErrorCode, format string, args ...any) *schemas.ValidationError {
	return &schemas.ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}
