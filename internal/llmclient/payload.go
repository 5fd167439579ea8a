package llmclient

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/deskpilot/api/schemas"
)

// omittedImageText replaces screenshots that fall outside the image history.
const omittedImageText = "[screenshot omitted]"

// imageSelector decides which observations in a conversation are sent as
// images. Only the newest limit observations are kept; zero keeps all.
type imageSelector struct {
	keep map[*schemas.Observation]bool
}

func newImageSelector(msgs []schemas.Message, limit int) imageSelector {
	var all []*schemas.Observation
	for _, m := range msgs {
		if obs := messageObservation(m); obs != nil && len(obs.Image) > 0 {
			all = append(all, obs)
		}
	}
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	keep := make(map[*schemas.Observation]bool, len(all))
	for _, obs := range all {
		keep[obs] = true
	}
	return imageSelector{keep: keep}
}

// Include reports whether obs is sent as an image.
func (s imageSelector) Include(obs *schemas.Observation) bool {
	return obs != nil && s.keep[obs]
}

func messageObservation(m schemas.Message) *schemas.Observation {
	if m.Observation != nil {
		return m.Observation
	}
	if m.Result != nil {
		return m.Result.Observation
	}
	return nil
}

// toolResultPayload renders a tool result as the JSON object the model sees.
// The image itself travels separately.
func toolResultPayload(res *schemas.ToolResult) map[string]any {
	payload := map[string]any{}
	if res == nil {
		return payload
	}
	for k, v := range res.Extra {
		payload[k] = v
	}
	payload["status"] = res.Outcome.Status
	if res.Outcome.Code != "" {
		payload["code"] = string(res.Outcome.Code)
	}
	if res.Outcome.Message != "" {
		payload["message"] = res.Outcome.Message
	}
	if obs := res.Observation; obs != nil {
		payload["cursor"] = map[string]any{"x": obs.Cursor.X, "y": obs.Cursor.Y}
		payload["display"] = map[string]any{"width": obs.Display.Width, "height": obs.Display.Height}
		payload["captured_at"] = obs.CapturedAt.UTC().Format(time.RFC3339Nano)
		if obs.Path != "" {
			payload["screenshot_path"] = obs.Path
		}
	}
	return payload
}

func toolResultJSON(res *schemas.ToolResult) string {
	raw, err := json.Marshal(toolResultPayload(res))
	if err != nil {
		return `{"status":"failure","message":"unencodable tool result"}`
	}
	return string(raw)
}

// observationCaption introduces an image in a user turn.
func observationCaption(obs *schemas.Observation) string {
	return fmt.Sprintf("Screenshot (%dx%d, cursor at %s):", obs.Display.Width, obs.Display.Height, obs.Cursor)
}

// buildDecision assembles the parsed reply. Calls without an ID get a
// synthesized one so that results can be paired with them.
func buildDecision(text string, calls []schemas.ToolCall) *schemas.Decision {
	if len(calls) == 0 {
		if recovered, rest := extractTextToolCalls(text); len(recovered) > 0 {
			calls, text = recovered, rest
		}
	}

	d := &schemas.Decision{Text: text, Calls: make([]schemas.ParsedCall, 0, len(calls))}
	for _, c := range calls {
		if c.ID == "" {
			c.ID = "call_" + uuid.NewString()
		}
		d.Calls = append(d.Calls, ParseToolCall(c))
	}
	return d
}
