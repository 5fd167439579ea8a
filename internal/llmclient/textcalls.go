package llmclient

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/deskpilot/api/schemas"
)

var (
	// Regex definitions use \x60 (hex representation) for backticks because Go raw strings cannot contain backticks.

	// toolCallTagRegex matches Hermes style <tool_call>{...}</tool_call> blocks.
	toolCallTagRegex = regexp.MustCompile(`(?s)<tool_call>\s*(.*?)\s*</tool_call>`)
	// fencedJSONRegex matches a JSON object wrapped in markdown.
	fencedJSONRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*({.*?})\\s*\x60\x60\x60")
)

// textToolCall is the shape of a tool call embedded in assistant text.
type textToolCall struct {
	Name       string          `json:"name"`
	Arguments  json.RawMessage `json:"arguments"`
	Parameters json.RawMessage `json:"parameters"`
	Action     string          `json:"action"`
}

// extractTextToolCalls recovers tool calls that a model wrote into its
// content instead of the structured tool_calls field. It returns the
// recovered calls, without IDs, and the content with those blocks removed.
func extractTextToolCalls(content string) ([]schemas.ToolCall, string) {
	var calls []schemas.ToolCall
	remaining := content

	for _, re := range []*regexp.Regexp{toolCallTagRegex, fencedJSONRegex} {
		matches := re.FindAllStringSubmatchIndex(remaining, -1)
		if len(matches) == 0 {
			continue
		}
		var kept strings.Builder
		last := 0
		for _, m := range matches {
			call, err := decodeTextToolCall(remaining[m[2]:m[3]])
			if err != nil {
				continue
			}
			calls = append(calls, call)
			kept.WriteString(remaining[last:m[0]])
			last = m[1]
		}
		kept.WriteString(remaining[last:])
		remaining = kept.String()
		if len(calls) > 0 {
			// Fenced JSON is only consulted when no tagged blocks were found.
			break
		}
	}
	return calls, strings.TrimSpace(remaining)
}

// decodeTextToolCall accepts {"name": ..., "arguments": {...}}, the same with
// "parameters", a string encoded arguments object, or a bare arguments object
// carrying "action".
func decodeTextToolCall(block string) (schemas.ToolCall, error) {
	parsed, err := parseJSONObject[textToolCall](block)
	if err != nil {
		return schemas.ToolCall{}, err
	}

	if parsed.Name == "" && parsed.Action != "" {
		return schemas.ToolCall{Name: ToolName, Arguments: strings.TrimSpace(block)}, nil
	}
	if parsed.Name == "" {
		return schemas.ToolCall{}, fmt.Errorf("embedded JSON is not a tool call")
	}

	args := parsed.Arguments
	if len(args) == 0 {
		args = parsed.Parameters
	}
	args = bytes.TrimSpace(args)
	if len(args) > 0 && args[0] == '"' {
		var encoded string
		if err := json.Unmarshal(args, &encoded); err != nil {
			return schemas.ToolCall{}, err
		}
		args = []byte(encoded)
	}
	if len(args) == 0 {
		args = []byte("{}")
	}
	return schemas.ToolCall{Name: parsed.Name, Arguments: string(args)}, nil
}

// parseJSONObject unmarshals an object that may be wrapped in markdown or
// surrounded by prose.
func parseJSONObject[T any](response string) (*T, error) {
	response = strings.TrimSpace(response)
	if m := fencedJSONRegex.FindStringSubmatch(response); len(m) > 1 {
		response = m[1]
	} else if !strings.HasPrefix(response, "{") {
		first := strings.Index(response, "{")
		last := strings.LastIndex(response, "}")
		if first == -1 || last <= first {
			return nil, fmt.Errorf("no JSON object found in %q", truncateString(response, 120))
		}
		response = response[first : last+1]
	}

	var result T
	if err := json.Unmarshal([]byte(response), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal embedded JSON: %w. Extracted JSON (truncated): %s", err, truncateString(response, 500))
	}
	return &result, nil
}

// truncateString truncates a string to a maximum length.
func truncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
