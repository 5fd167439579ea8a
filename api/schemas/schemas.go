package schemas

import (
	"encoding/base64"
	"time"
)

// -- Observation Schemas --

// MIMETypePNG is the only image encoding produced by capture.
const MIMETypePNG = "image/png"

// Observation is a point-in-time snapshot of the addressed display. It is
// never modified after capture.
type Observation struct {
	Image      []byte    `json:"-"`
	MIMEType   string    `json:"mime_type"`
	Cursor     Point     `json:"cursor"`
	Display    Size      `json:"display"`
	CapturedAt time.Time `json:"captured_at"`
	// Path is set once the image has been persisted to the artifact store.
	Path string `json:"path,omitempty"`
}

// DataURL renders the image as an inline data URL for chat payloads.
func (o *Observation) DataURL() string {
	return "data:" + o.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(o.Image)
}

// WithPath returns a copy of the observation that records where it was persisted.
func (o *Observation) WithPath(path string) *Observation {
	cp := *o
	cp.Path = path
	return &cp
}

// -- Outcome Schemas --

// ErrorCode is used for structured error reporting from the executor and the
// agent loop back to the model.
type ErrorCode string

const (
	ErrCodeInvalidArguments      ErrorCode = "INVALID_ARGUMENTS"
	ErrCodeUnknownAction         ErrorCode = "UNKNOWN_ACTION"
	ErrCodeOutOfBounds           ErrorCode = "COORDINATE_OUT_OF_BOUNDS"
	ErrCodeUnsupportedKey        ErrorCode = "UNSUPPORTED_KEY"
	ErrCodeDeviceError           ErrorCode = "DEVICE_ERROR"
	ErrCodeFailSafe              ErrorCode = "FAIL_SAFE_TRIGGERED"
	ErrCodeProtocolViolation     ErrorCode = "PROTOCOL_VIOLATION"
	ErrCodeIgnoredAfterTerminate ErrorCode = "IGNORED_AFTER_TERMINATE"
)

// Outcome statuses.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Outcome reports how a single action went. Failures are fed back to the
// model rather than raised.
type Outcome struct {
	Status  string    `json:"status"`
	Code    ErrorCode `json:"code,omitempty"`
	Message string    `json:"message,omitempty"`
}

// Succeeded builds a success outcome.
func Succeeded(message string) Outcome {
	return Outcome{Status: StatusSuccess, Message: message}
}

// Failed builds a failure outcome.
func Failed(code ErrorCode, message string) Outcome {
	return Outcome{Status: StatusFailure, Code: code, Message: message}
}

// OK reports whether the outcome is a success.
func (o Outcome) OK() bool { return o.Status == StatusSuccess }

// -- Session Schemas --

// Step records one action of a turn and what came of it.
type Step struct {
	Call        ToolCall     `json:"call"`
	Action      *Action      `json:"action,omitempty"` // Nil when the call failed validation.
	Outcome     Outcome      `json:"outcome"`
	Observation *Observation `json:"observation,omitempty"`
}

// Turn is one loop iteration: a single model invocation and everything it
// caused. Indices are contiguous from zero.
type Turn struct {
	Index         int          `json:"index"`
	AssistantText string       `json:"assistant_text,omitempty"`
	Steps         []Step       `json:"steps,omitempty"`
	Observation   *Observation `json:"observation,omitempty"` // Latest observation of the turn; nil only on the terminal turn.
	Violation     string       `json:"violation,omitempty"`
}

// Reason is the definite cause a session ended.
type Reason string

const (
	ReasonAnswered        Reason = "answered"
	ReasonBudgetExhausted Reason = "budget_exhausted"
	ReasonProtocolError   Reason = "protocol_error"
)

// SessionResult is returned for every session that got past startup,
// including abnormal ones. Turns always holds everything recorded so far.
type SessionResult struct {
	SessionID    string     `json:"session_id"`
	Task         string     `json:"task"`
	Answer       string     `json:"answer"`
	Reason       Reason     `json:"reason"`
	NonCompliant bool       `json:"non_compliant"` // Terminate arrived without a prior answer.
	TaskStatus   TaskStatus `json:"task_status,omitempty"`
	Turns        []Turn     `json:"turns"`
	Violations   int        `json:"violations"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   time.Time  `json:"finished_at"`
	Error        string     `json:"error,omitempty"`

	Err error `json:"-"`
}

// Actions flattens the validated actions of every turn, in order. Calls that
// arrived after terminate were never carried out and are left out.
func (r *SessionResult) Actions() []Action {
	var out []Action
	for _, t := range r.Turns {
		for _, s := range t.Steps {
			if s.Action != nil && s.Outcome.Code != ErrCodeIgnoredAfterTerminate {
				out = append(out, *s.Action)
			}
		}
	}
	return out
}

// Compliant reports whether the session finished through the full answer then
// terminate sequence.
func (r *SessionResult) Compliant() bool {
	return r.Reason == ReasonAnswered && !r.NonCompliant && r.Answer != ""
}
