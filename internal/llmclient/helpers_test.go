package llmclient

import (
	"time"

	"github.com/xkilldash9x/deskpilot/api/schemas"
	"github.com/xkilldash9x/deskpilot/internal/config"
)

func testModelConfig(baseURL string) config.ModelConfig {
	return config.ModelConfig{
		Provider:     config.ProviderOpenAI,
		BaseURL:      baseURL,
		APIKey:       "test-key",
		Model:        "ui-tars-test",
		Temperature:  0,
		Timeout:      5 * time.Second,
		MaxRetries:   2,
		ImageHistory: 2,
	}
}

func testObservation(n int) *schemas.Observation {
	return &schemas.Observation{
		Image:      []byte{0x89, 'P', 'N', 'G', byte(n)},
		MIMEType:   schemas.MIMETypePNG,
		Cursor:     schemas.Point{X: n, Y: n},
		Display:    schemas.Size{Width: 640, Height: 480},
		CapturedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

// testConversation has four screenshots: one in the opening user message and
// one after each of three tool calls.
func testConversation() *schemas.Conversation {
	conv := schemas.NewConversation()
	conv.Append(
		schemas.Message{Role: schemas.RoleSystem, Text: SystemPrompt},
		schemas.Message{Role: schemas.RoleUser, Text: "Open the settings window.", Observation: testObservation(1)},
	)
	for i := 2; i <= 4; i++ {
		id := "call_" + string(rune('a'+i))
		conv.Append(
			schemas.Message{
				Role:      schemas.RoleAssistant,
				Text:      "Clicking.",
				ToolCalls: []schemas.ToolCall{{ID: id, Name: ToolName, Arguments: `{"action":"click","coordinate":[1,2]}`}},
			},
			schemas.Message{
				Role:       schemas.RoleTool,
				ToolCallID: id,
				ToolName:   ToolName,
				Result: &schemas.ToolResult{
					Outcome:     schemas.Succeeded("click at (1, 2)"),
					Observation: testObservation(i),
				},
			},
		)
	}
	return conv
}
