package agent

import (
	"fmt"

	"github.com/xkilldash9x/deskpilot/api/schemas"
)

// Corrective notices sent to the model together with a fresh screenshot.
const (
	noticeEmptyReply = "Your reply contained neither text nor tool calls. " +
		"Use the computer_use tool to act, and finish with action=answer then action=terminate."
	noticeTextOnly = "A plain text reply does not finish the task. " +
		"Keep working with the computer_use tool, and when you are done call action=answer with the final response, then action=terminate."
	noticeInvalidCalls = "None of your tool calls could be executed; read the error codes in the tool results and try again."
	noticeAnswered     = "Answer recorded. Call action=terminate to finish, or keep working if the task is not complete."
	noticeRefresh      = "Here is the current screen."

	answerAck          = "answer recorded; call terminate to finish"
	terminateAck       = "session terminated"
	ignoredAfterTerm   = "not executed: the session was already terminated by an earlier call in this reply"
	violationEmpty     = "empty reply"
	violationAllFailed = "every tool call failed validation"
)

func taskMessage(task string, display schemas.Size) string {
	return fmt.Sprintf("Task: %s\n\nThe display is %dx%d pixels. The current screenshot is attached.",
		task, display.Width, display.Height)
}

// toolMessage pairs a step's outcome with the call that produced it.
func toolMessage(step schemas.Step, extra map[string]interface{}) schemas.Message {
	return schemas.Message{
		Role:       schemas.RoleTool,
		ToolCallID: step.Call.ID,
		ToolName:   step.Call.Name,
		Result: &schemas.ToolResult{
			Outcome:     step.Outcome,
			Observation: step.Observation,
			Extra:       extra,
		},
	}
}
