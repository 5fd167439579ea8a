package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/deskpilot/api/schemas"
	"github.com/xkilldash9x/deskpilot/internal/llmclient"
)

// -- Decider Mock --

// MockDecider mocks schemas.Decider. It also snapshots the conversation it
// was handed on every call.
type MockDecider struct {
	mock.Mock

	mu        sync.Mutex
	snapshots [][]schemas.Message
}

func (m *MockDecider) Decide(ctx context.Context, conv *schemas.Conversation) (*schemas.Decision, error) {
	m.mu.Lock()
	m.snapshots = append(m.snapshots, conv.Messages())
	m.mu.Unlock()

	args := m.Called(ctx, conv)
	d, _ := args.Get(0).(*schemas.Decision)
	return d, args.Error(1)
}

// Snapshot returns the conversation as seen by the n-th call.
func (m *MockDecider) Snapshot(n int) []schemas.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshots[n]
}

// script queues replies in order.
func (m *MockDecider) script(replies ...*schemas.Decision) {
	for _, r := range replies {
		m.On("Decide", mock.Anything, mock.Anything).Return(r, nil).Once()
	}
}

var callSeq int

// reply builds a decision from text and raw computer_use argument objects.
func reply(text string, args ...string) *schemas.Decision {
	d := &schemas.Decision{Text: text}
	for _, a := range args {
		callSeq++
		d.Calls = append(d.Calls, llmclient.ParseToolCall(schemas.ToolCall{
			ID:        fmt.Sprintf("call_%d", callSeq),
			Name:      llmclient.ToolName,
			Arguments: a,
		}))
	}
	return d
}

// -- Capturer Mock --

// flakyCapturer fails after a number of successful captures.
type flakyCapturer struct {
	inner schemas.Capturer
	left  int
}

var errCaptureBroken = errors.New("capture pipeline broken")

func (c *flakyCapturer) Capture(ctx context.Context) (*schemas.Observation, error) {
	if c.left <= 0 {
		return nil, errCaptureBroken
	}
	c.left--
	return c.inner.Capture(ctx)
}
