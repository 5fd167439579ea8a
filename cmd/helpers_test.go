package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/api/schemas"
	"github.com/xkilldash9x/deskpilot/internal/config"
	"github.com/xkilldash9x/deskpilot/internal/llmclient"
)

// executeCommand runs a fresh command tree and returns what it printed.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

// scriptedDecider replays canned decisions in order.
type scriptedDecider struct {
	mu      sync.Mutex
	replies []*schemas.Decision
	calls   int
}

func (d *scriptedDecider) Decide(ctx context.Context, conv *schemas.Conversation) (*schemas.Decision, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.calls >= len(d.replies) {
		return nil, errors.New("script exhausted")
	}
	r := d.replies[d.calls]
	d.calls++
	return r, nil
}

func decision(args ...string) *schemas.Decision {
	d := &schemas.Decision{}
	for i, a := range args {
		d.Calls = append(d.Calls, llmclient.ParseToolCall(schemas.ToolCall{
			ID:        fmt.Sprintf("call_%d", i),
			Name:      llmclient.ToolName,
			Arguments: a,
		}))
	}
	return d
}

// stubSession swaps the model client and artifact filesystem for the duration of a test.
func stubSession(t *testing.T, replies ...*schemas.Decision) (*scriptedDecider, *config.ModelConfig, afero.Fs) {
	t.Helper()
	decider := &scriptedDecider{replies: replies}
	seen := new(config.ModelConfig)
	fs := afero.NewMemMapFs()

	origDecider, origFs := newDecider, artifactFs
	newDecider = func(ctx context.Context, cfg config.ModelConfig, logger *zap.Logger) (schemas.Decider, error) {
		*seen = cfg
		return decider, nil
	}
	artifactFs = func() afero.Fs { return fs }
	t.Cleanup(func() {
		newDecider, artifactFs = origDecider, origFs
	})
	return decider, seen, fs
}
