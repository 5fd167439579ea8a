// internal/agent/errors.go
package agent

import "errors"

var (
	// ErrEmptyTask is returned by Run when the task has no content.
	ErrEmptyTask = errors.New("agent: task must not be empty")
	// ErrTooManyViolations ends a session whose replies kept failing validation.
	ErrTooManyViolations = errors.New("agent: too many consecutive protocol violations")
)
