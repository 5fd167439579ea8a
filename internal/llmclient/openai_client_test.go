package llmclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/deskpilot/api/schemas"
)

// chatRequest is the subset of the chat completions request the tests inspect.
type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role       string          `json:"role"`
		Content    json.RawMessage `json:"content"`
		ToolCallID string          `json:"tool_call_id"`
		ToolCalls  []struct {
			ID       string `json:"id"`
			Function struct {
				Name      string `json:"name"`
				Arguments string `json:"arguments"`
			} `json:"function"`
		} `json:"tool_calls"`
	} `json:"messages"`
	Tools []struct {
		Type     string `json:"type"`
		Function struct {
			Name       string         `json:"name"`
			Parameters map[string]any `json:"parameters"`
		} `json:"function"`
	} `json:"tools"`
}

func completionBody(content string, toolCalls string) string {
	if toolCalls == "" {
		toolCalls = "[]"
	}
	contentJSON, _ := json.Marshal(content)
	return `{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"ui-tars-test",` +
		`"choices":[{"index":0,"finish_reason":"tool_calls","message":{"role":"assistant","content":` + string(contentJSON) +
		`,"tool_calls":` + toolCalls + `}}],` +
		`"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`
}

type fakeEndpoint struct {
	attempts atomic.Int32
	handler  func(w http.ResponseWriter, r *http.Request, attempt int32)
}

func newOpenAITestClient(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, attempt int32)) (*OpenAIClient, *fakeEndpoint) {
	t.Helper()
	ep := &fakeEndpoint{handler: handler}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := ep.attempts.Add(1)
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		ep.handler(w, r, n)
	}))
	t.Cleanup(server.Close)

	client, err := NewOpenAIClient(testModelConfig(server.URL+"/v1"), zaptest.NewLogger(t))
	require.NoError(t, err)
	client.req.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return client, ep
}

func TestOpenAIClientDecide(t *testing.T) {
	var captured chatRequest
	client, ep := newOpenAITestClient(t, func(w http.ResponseWriter, r *http.Request, _ int32) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &captured))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		io.WriteString(w, completionBody("I see the gear icon.",
			`[{"id":"call_9","type":"function","function":{"name":"computer_use","arguments":"{\"action\":\"left_click\",\"coordinate\":[320,40]}"}}]`))
	})

	conv := testConversation()
	before := conv.Messages()

	decision, err := client.Decide(context.Background(), conv)
	require.NoError(t, err)
	assert.Equal(t, int32(1), ep.attempts.Load())
	assert.Equal(t, before, conv.Messages(), "Decide must not modify the conversation")

	assert.Equal(t, "I see the gear icon.", decision.Text)
	require.Len(t, decision.Calls, 1)
	assert.Equal(t, "call_9", decision.Calls[0].Call.ID)
	require.NotNil(t, decision.Calls[0].Action)
	assert.Equal(t, schemas.ActionClick, decision.Calls[0].Action.Type)
	assert.Equal(t, &schemas.Point{X: 320, Y: 40}, decision.Calls[0].Action.Coordinate)

	t.Run("ToolDefinition", func(t *testing.T) {
		assert.Equal(t, "ui-tars-test", captured.Model)
		require.Len(t, captured.Tools, 1)
		assert.Equal(t, "function", captured.Tools[0].Type)
		assert.Equal(t, ToolName, captured.Tools[0].Function.Name)
		assert.Equal(t, "object", captured.Tools[0].Function.Parameters["type"])
	})

	t.Run("MessageLayout", func(t *testing.T) {
		var roles []string
		for _, m := range captured.Messages {
			roles = append(roles, m.Role)
		}
		// Screenshots returned by tools are carried by a user message after the tool results.
		assert.Equal(t, []string{
			"system", "user",
			"assistant", "tool",
			"assistant", "tool", "user",
			"assistant", "tool", "user",
		}, roles)
		assert.Equal(t, "call_c", captured.Messages[3].ToolCallID)
		require.Len(t, captured.Messages[2].ToolCalls, 1)
		assert.Equal(t, ToolName, captured.Messages[2].ToolCalls[0].Function.Name)

		var toolResult map[string]any
		var raw string
		require.NoError(t, json.Unmarshal(captured.Messages[3].Content, &raw))
		require.NoError(t, json.Unmarshal([]byte(raw), &toolResult))
		assert.Equal(t, "success", toolResult["status"])
		assert.Contains(t, toolResult, "cursor")
	})

	t.Run("ImageHistory", func(t *testing.T) {
		images, omitted := 0, 0
		for _, m := range captured.Messages {
			var parts []map[string]any
			if json.Unmarshal(m.Content, &parts) != nil {
				continue
			}
			for _, p := range parts {
				switch p["type"] {
				case "image_url":
					images++
					url := p["image_url"].(map[string]any)["url"].(string)
					assert.True(t, strings.HasPrefix(url, "data:image/png;base64,"))
				case "text":
					if p["text"] == omittedImageText {
						omitted++
					}
				}
			}
		}
		assert.Equal(t, 2, images, "only the newest screenshots are sent")
		assert.Equal(t, 1, omitted, "the opening screenshot is replaced by a marker")
	})
}

func TestOpenAIClientSkipsEmptyAssistantReplies(t *testing.T) {
	var captured chatRequest
	client, _ := newOpenAITestClient(t, func(w http.ResponseWriter, r *http.Request, _ int32) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		io.WriteString(w, completionBody("Retrying.", ""))
	})

	conv := schemas.NewConversation()
	conv.Append(
		schemas.Message{Role: schemas.RoleSystem, Text: "sys"},
		schemas.Message{Role: schemas.RoleUser, Text: "Open the settings window.", Observation: testObservation(1)},
		schemas.Message{Role: schemas.RoleAssistant},
		schemas.Message{Role: schemas.RoleUser, Text: "Your reply was empty.", Observation: testObservation(2)},
	)

	_, err := client.Decide(context.Background(), conv)
	require.NoError(t, err)

	var roles []string
	for _, m := range captured.Messages {
		roles = append(roles, m.Role)
		if m.Role == "assistant" {
			assert.True(t, len(m.Content) > 0 || len(m.ToolCalls) > 0, "assistant messages need content or tool calls")
		}
	}
	assert.Equal(t, []string{"system", "user", "user"}, roles)
}

func TestOpenAIClientRecoversTextToolCalls(t *testing.T) {
	client, _ := newOpenAITestClient(t, func(w http.ResponseWriter, r *http.Request, _ int32) {
		io.WriteString(w, completionBody(
			`Done. <tool_call>{"name":"computer_use","arguments":{"action":"answer","text":"42"}}</tool_call>`, ""))
	})

	decision, err := client.Decide(context.Background(), testConversation())
	require.NoError(t, err)
	assert.Equal(t, "Done.", decision.Text)
	require.Len(t, decision.Calls, 1)
	assert.NotEmpty(t, decision.Calls[0].Call.ID)
	require.NotNil(t, decision.Calls[0].Action)
	assert.Equal(t, schemas.ActionAnswer, decision.Calls[0].Action.Type)
	assert.Equal(t, "42", decision.Calls[0].Action.Text)
}

func TestOpenAIClientRetries(t *testing.T) {
	t.Run("TransientThenSuccess", func(t *testing.T) {
		client, ep := newOpenAITestClient(t, func(w http.ResponseWriter, r *http.Request, attempt int32) {
			if attempt == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				io.WriteString(w, `{"error":{"message":"warming up"}}`)
				return
			}
			io.WriteString(w, completionBody("", `[{"id":"c1","type":"function","function":{"name":"computer_use","arguments":"{\"action\":\"screenshot\"}"}}]`))
		})

		decision, err := client.Decide(context.Background(), testConversation())
		require.NoError(t, err)
		assert.Equal(t, int32(2), ep.attempts.Load())
		require.Len(t, decision.Calls, 1)
	})

	t.Run("PermanentFailure", func(t *testing.T) {
		client, ep := newOpenAITestClient(t, func(w http.ResponseWriter, r *http.Request, _ int32) {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"error":{"message":"bad key"}}`)
		})

		_, err := client.Decide(context.Background(), testConversation())
		require.Error(t, err)
		assert.Equal(t, int32(1), ep.attempts.Load())

		var epErr *EndpointError
		require.ErrorAs(t, err, &epErr)
		assert.Equal(t, http.StatusUnauthorized, epErr.StatusCode)
		assert.False(t, epErr.Transient())
	})

	t.Run("Exhausted", func(t *testing.T) {
		client, ep := newOpenAITestClient(t, func(w http.ResponseWriter, r *http.Request, _ int32) {
			w.WriteHeader(http.StatusTooManyRequests)
			io.WriteString(w, `{"error":{"message":"slow down"}}`)
		})

		_, err := client.Decide(context.Background(), testConversation())
		require.Error(t, err)
		assert.Equal(t, int32(3), ep.attempts.Load(), "max_retries=2 allows three attempts")
	})

	t.Run("NoChoices", func(t *testing.T) {
		client, ep := newOpenAITestClient(t, func(w http.ResponseWriter, r *http.Request, _ int32) {
			io.WriteString(w, `{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`)
		})
		client.req.cfg.MaxRetries = 0

		_, err := client.Decide(context.Background(), testConversation())
		assert.ErrorIs(t, err, ErrNoChoices)
		assert.Equal(t, int32(1), ep.attempts.Load())
	})

	t.Run("Cancelled", func(t *testing.T) {
		client, ep := newOpenAITestClient(t, func(w http.ResponseWriter, r *http.Request, _ int32) {
			io.WriteString(w, completionBody("unused", ""))
		})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := client.Decide(ctx, testConversation())
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, int32(0), ep.attempts.Load())
	})
}

func TestNewOpenAIClientRequiresBaseURL(t *testing.T) {
	_, err := NewOpenAIClient(testModelConfig(""), zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestIsTransientStatus(t *testing.T) {
	for code, want := range map[int]bool{400: false, 401: false, 404: false, 408: true, 409: true, 429: true, 500: true, 503: true} {
		assert.Equal(t, want, isTransientStatus(code), "status %d", code)
	}
}
