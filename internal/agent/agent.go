package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/api/schemas"
	"github.com/xkilldash9x/deskpilot/internal/config"
	"github.com/xkilldash9x/deskpilot/internal/llmclient"
	"github.com/xkilldash9x/deskpilot/internal/observability"
	"github.com/xkilldash9x/deskpilot/internal/store"
)

// Agent runs the observe, decide, act loop for one task at a time.
type Agent struct {
	cfg      config.AgentConfig
	decider  schemas.Decider
	executor schemas.ActionExecutor
	capturer schemas.Capturer
	store    *store.Store
	metrics  *observability.SessionMetrics
	logger   *zap.Logger
	now      func() time.Time

	systemPrompt string
}

// Option configures optional collaborators.
type Option func(*Agent)

// WithStore persists screenshots and the transcript of every session.
func WithStore(s *store.Store) Option {
	return func(a *Agent) { a.store = s }
}

// WithSystemPrompt replaces the prompt that opens every conversation.
func WithSystemPrompt(p string) Option {
	return func(a *Agent) {
		if strings.TrimSpace(p) != "" {
			a.systemPrompt = p
		}
	}
}

// WithMetrics records session counters.
func WithMetrics(m *observability.SessionMetrics) Option {
	return func(a *Agent) { a.metrics = m }
}

// New creates an agent. The executor and capturer must address the same display.
func New(cfg config.AgentConfig, decider schemas.Decider, executor schemas.ActionExecutor, capturer schemas.Capturer, logger *zap.Logger, opts ...Option) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("agent: %w", err)
	}
	if decider == nil || executor == nil || capturer == nil {
		return nil, errors.New("agent: decider, executor and capturer are required")
	}
	a := &Agent{
		cfg:      cfg,
		decider:  decider,
		executor: executor,
		capturer: capturer,
		logger:   logger.Named("agent"),
		now:      time.Now,

		systemPrompt: llmclient.SystemPrompt,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Run drives task to completion. A nil result with an error means the session
// never started: the task was empty or the display could not be captured.
// Every other outcome, including endpoint failures and cancellation, is
// reported through the result's Reason with all turns recorded so far.
func (a *Agent) Run(ctx context.Context, task string) (*schemas.SessionResult, error) {
	task = strings.TrimSpace(task)
	if task == "" {
		return nil, ErrEmptyTask
	}

	sessionID := uuid.NewString()
	logger := a.logger.With(zap.String("session_id", sessionID))

	initial, err := a.capturer.Capture(ctx)
	if err != nil {
		return nil, fmt.Errorf("agent: initial capture failed: %w", err)
	}

	s := &session{
		agent:  a,
		logger: logger,
		conv:   schemas.NewConversation(),
		result: &schemas.SessionResult{
			SessionID: sessionID,
			Task:      task,
			StartedAt: a.now().UTC(),
			Turns:     []schemas.Turn{},
		},
	}
	if a.store != nil {
		if s.artifacts, err = a.store.OpenSession(sessionID); err != nil {
			logger.Warn("Artifact persistence disabled for this session.", zap.Error(err))
		}
	}

	logger.Info("Session started.", zap.String("task", task), zap.Int("max_turns", a.cfg.MaxTurns))
	initial = s.persist(initial, func(st *store.Session, o *schemas.Observation) (string, error) {
		return st.SaveInitial(o)
	})
	s.conv.Append(
		schemas.Message{Role: schemas.RoleSystem, Text: a.systemPrompt},
		schemas.Message{Role: schemas.RoleUser, Text: taskMessage(task, initial.Display), Observation: initial},
	)

	s.loop(ctx)
	s.finish()
	return s.result, nil
}

// session is the mutable state of one Run.
type session struct {
	agent     *Agent
	logger    *zap.Logger
	conv      *schemas.Conversation
	result    *schemas.SessionResult
	artifacts *store.Session

	answered    bool
	consecutive int
}

func (s *session) loop(ctx context.Context) {
	for index := 0; index < s.agent.cfg.MaxTurns; index++ {
		if s.runTurn(ctx, index) {
			return
		}
	}
	s.result.Reason = schemas.ReasonBudgetExhausted
	s.logger.Warn("Turn budget exhausted without termination.", zap.Int("max_turns", s.agent.cfg.MaxTurns))
}

// runTurn performs one model invocation and everything it causes. It
// reports whether the session is over.
func (s *session) runTurn(ctx context.Context, index int) bool {
	a := s.agent
	logger := s.logger.With(zap.Int("turn", index))

	start := time.Now()
	decision, err := a.decider.Decide(ctx, s.conv)
	a.metrics.ObserveModelLatency(time.Since(start))
	if err != nil {
		return s.abort(fmt.Errorf("agent: model request failed: %w", err))
	}

	turn := schemas.Turn{Index: index, AssistantText: decision.Text}
	s.conv.Append(schemas.Message{Role: schemas.RoleAssistant, Text: decision.Text, ToolCalls: decision.RawCalls()})
	logger.Debug("Model decided.", zap.Int("tool_calls", len(decision.Calls)), zap.Int("text_len", len(decision.Text)))

	if decision.Empty() {
		turn.Violation = violationEmpty
		s.violation(logger)
		if !s.refresh(ctx, &turn, noticeEmptyReply) {
			return true
		}
		return s.closeTurn(turn, false)
	}

	var (
		terminated  bool
		deviceActed bool
		valid       int
	)
	for i, pc := range decision.Calls {
		step := schemas.Step{Call: pc.Call, Action: pc.Action}
		var extra map[string]interface{}

		switch {
		case terminated:
			step.Outcome = schemas.Failed(schemas.ErrCodeIgnoredAfterTerminate, ignoredAfterTerm)

		case pc.Err != nil:
			step.Outcome = schemas.Failed(pc.Err.Code, pc.Err.Message)
			logger.Info("Rejected tool call.", zap.String("call_id", pc.Call.ID), zap.String("code", string(pc.Err.Code)), zap.String("reason", pc.Err.Message))

		case pc.Action.Type == schemas.ActionAnswer:
			valid++
			s.answered = true
			s.result.Answer = pc.Action.Text
			step.Outcome = schemas.Succeeded(answerAck)
			logger.Info("Answer recorded.", zap.Int("answer_len", len(pc.Action.Text)))

		case pc.Action.Type == schemas.ActionTerminate:
			valid++
			terminated = true
			status := pc.Action.Status
			if status == "" {
				status = schemas.TaskSuccess
			}
			s.result.TaskStatus = status
			if !s.answered {
				s.result.NonCompliant = true
				logger.Warn("Terminate arrived before any answer.")
			}
			step.Outcome = schemas.Succeeded(terminateAck)
			extra = map[string]interface{}{"task_status": string(status)}

		default:
			valid++
			obs, outcome, err := a.executor.Execute(ctx, *pc.Action)
			step.Outcome = outcome
			if obs != nil {
				obs = s.persist(obs, func(st *store.Session, o *schemas.Observation) (string, error) {
					return st.SaveObservation(index, i, o)
				})
				step.Observation = obs
				turn.Observation = obs
				deviceActed = true
			}
			if err != nil {
				s.recordStep(&turn, step, extra)
				s.appendTurn(turn)
				return s.abort(fmt.Errorf("agent: action %s failed fatally: %w", pc.Action.Type, err))
			}
		}
		s.recordStep(&turn, step, extra)
	}

	if terminated {
		return s.closeTurn(turn, true)
	}

	switch {
	case valid == 0 && len(decision.Calls) > 0:
		turn.Violation = violationAllFailed
		s.violation(logger)
	default:
		s.consecutive = 0
	}

	if !deviceActed {
		notice := noticeRefresh
		switch {
		case len(decision.Calls) == 0:
			notice = noticeTextOnly
		case turn.Violation != "":
			notice = noticeInvalidCalls
		case s.answered:
			notice = noticeAnswered
		}
		if !s.refresh(ctx, &turn, notice) {
			return true
		}
	}
	return s.closeTurn(turn, false)
}

// recordStep appends the step and its paired tool result.
func (s *session) recordStep(turn *schemas.Turn, step schemas.Step, extra map[string]interface{}) {
	turn.Steps = append(turn.Steps, step)
	s.conv.Append(toolMessage(step, extra))
	label := "invalid"
	if step.Action != nil {
		label = string(step.Action.Type)
	}
	s.agent.metrics.ActionProcessed(label, step.Outcome.Status)
}

// refresh captures a new observation and sends it with notice. It reports
// false, after recording the turn and aborting, when capture fails.
func (s *session) refresh(ctx context.Context, turn *schemas.Turn, notice string) bool {
	obs, err := s.agent.capturer.Capture(ctx)
	if err != nil {
		s.appendTurn(*turn)
		s.abort(fmt.Errorf("agent: capture failed: %w", err))
		return false
	}
	index := turn.Index
	obs = s.persist(obs, func(st *store.Session, o *schemas.Observation) (string, error) {
		return st.SaveNotice(index, o)
	})
	turn.Observation = obs
	s.conv.Append(schemas.Message{Role: schemas.RoleUser, Text: notice, Observation: obs})
	return true
}

// violation counts a reply that could not be acted on.
func (s *session) violation(logger *zap.Logger) {
	s.consecutive++
	s.result.Violations++
	s.agent.metrics.ProtocolViolation()
	logger.Warn("Protocol violation.", zap.Int("consecutive", s.consecutive), zap.Int("limit", s.agent.cfg.MaxConsecutiveViolations))
}

func (s *session) appendTurn(turn schemas.Turn) {
	s.result.Turns = append(s.result.Turns, turn)
	s.agent.metrics.TurnCompleted()
}

// closeTurn records the turn and reports whether the session is over. A
// final turn is one that carried terminate.
func (s *session) closeTurn(turn schemas.Turn, final bool) bool {
	s.appendTurn(turn)
	if final {
		s.result.Reason = schemas.ReasonAnswered
		return true
	}
	if s.consecutive >= s.agent.cfg.MaxConsecutiveViolations {
		return s.abort(ErrTooManyViolations)
	}
	return false
}

// abort ends the session as a protocol error.
func (s *session) abort(err error) bool {
	s.result.Reason = schemas.ReasonProtocolError
	s.result.Err = err
	s.result.Error = err.Error()
	s.logger.Error("Session aborted.", zap.Error(err))
	return true
}

// persist writes obs through save and returns the copy that records its path.
// Persistence failures are logged and never end the session.
func (s *session) persist(obs *schemas.Observation, save func(*store.Session, *schemas.Observation) (string, error)) *schemas.Observation {
	if s.artifacts == nil || obs == nil {
		return obs
	}
	path, err := save(s.artifacts, obs)
	if err != nil {
		s.logger.Warn("Failed to persist screenshot.", zap.Error(err))
		return obs
	}
	return obs.WithPath(path)
}

func (s *session) finish() {
	s.result.FinishedAt = s.agent.now().UTC()
	s.agent.metrics.SessionFinished(string(s.result.Reason))

	if s.artifacts != nil {
		if _, err := s.artifacts.SaveTranscript(s.result, s.conv.Messages()); err != nil {
			s.logger.Error("Failed to persist transcript.", zap.Error(err))
		}
	}

	s.logger.Info("Session finished.",
		zap.String("reason", string(s.result.Reason)),
		zap.Int("turns", len(s.result.Turns)),
		zap.Int("violations", s.result.Violations),
		zap.Bool("compliant", s.result.Compliant()),
		zap.Duration("elapsed", s.result.FinishedAt.Sub(s.result.StartedAt)),
	)
}
