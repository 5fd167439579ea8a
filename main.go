// ./main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/xkilldash9x/deskpilot/cmd"
	_ "github.com/xkilldash9x/deskpilot/internal/display/host"
	"github.com/xkilldash9x/deskpilot/internal/observability"
)

const panicLogFile = "deskpilot-panic.log"

// Swapped in tests.
var (
	osWriteFile = os.WriteFile
	osExit      = os.Exit
)

// main is the entry point for the deskpilot CLI.
func main() {
	defer handlePanic()

	// Ctrl+C cancels the session context; the agent records a protocol error
	// and the transcript is still written.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		if errors.Is(err, cmd.ErrNotAnswered) {
			osExit(2)
			return
		}
		osExit(1)
	}
}

// handlePanic writes the stack to panicLogFile so a crash mid-session is not
// lost in terminal scrollback, then exits nonzero.
func handlePanic() {
	r := recover()
	if r == nil {
		return
	}
	observability.Sync()

	msg := fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())
	if err := osWriteFile(panicLogFile, []byte(msg), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: failed to write panic log: %v\n%s\n", err, msg)
	} else {
		fmt.Fprintf(os.Stderr, "deskpilot crashed. Details logged to %s\n", panicLogFile)
	}
	osExit(1)
}
