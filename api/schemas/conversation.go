package schemas

import "sync"

// -- Conversation Schemas --

// Role tags a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a raw, unvalidated call exactly as the model emitted it.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolResult is what the model sees in reply to one tool call.
type ToolResult struct {
	Outcome     Outcome                `json:"outcome"`
	Observation *Observation           `json:"observation,omitempty"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
}

// Message is one role-tagged entry of the conversation.
type Message struct {
	Role        Role         `json:"role"`
	Text        string       `json:"text,omitempty"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`   // Assistant only.
	ToolCallID  string       `json:"tool_call_id,omitempty"` // Tool only.
	ToolName    string       `json:"tool_name,omitempty"`    // Tool only.
	Result      *ToolResult  `json:"result,omitempty"`       // Tool only.
	Observation *Observation `json:"observation,omitempty"`  // User messages carrying a screenshot.
}

// Conversation is an append-only message log. Existing entries are never
// rewritten, which keeps the history replayable.
type Conversation struct {
	mu       sync.RWMutex
	messages []Message
}

// NewConversation creates an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{}
}

// Append adds messages to the end of the log.
func (c *Conversation) Append(msgs ...Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msgs...)
}

// Messages returns a snapshot copy of the log. Mutating the returned slice
// does not affect the conversation.
func (c *Conversation) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}
