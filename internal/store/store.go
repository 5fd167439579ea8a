package store

import (
	"fmt"
	"path/filepath"

	json "github.com/json-iterator/go"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/api/schemas"
)

// TranscriptFile is the name of the per-session transcript.
const TranscriptFile = "session.json"

// Store owns the artifact root. Each session writes into its own
// subdirectory named after the session ID.
type Store struct {
	fs   *afero.Afero
	root string
	log  *zap.Logger
}

// New creates a store rooted at dir on fs.
func New(fs afero.Fs, dir string, logger *zap.Logger) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("store: artifact directory is required")
	}
	s := &Store{
		fs:   &afero.Afero{Fs: fs},
		root: dir,
		log:  logger.Named("store"),
	}
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: failed to create %s: %w", dir, err)
	}
	return s, nil
}

// OpenSession creates the directory for one session.
func (s *Store) OpenSession(sessionID string) (*Session, error) {
	dir := filepath.Join(s.root, sessionID)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: failed to create session directory: %w", err)
	}
	return &Session{fs: s.fs, dir: dir, log: s.log.With(zap.String("session_id", sessionID))}, nil
}

// Session writes the artifacts of a single session.
type Session struct {
	fs  *afero.Afero
	dir string
	log *zap.Logger
}

// Dir returns the session directory.
func (s *Session) Dir() string { return s.dir }

// SaveInitial writes the observation taken before the first turn.
func (s *Session) SaveInitial(obs *schemas.Observation) (string, error) {
	return s.writeImage("turn-init.png", obs)
}

// SaveObservation writes the observation that followed one step of a turn.
func (s *Session) SaveObservation(turn, step int, obs *schemas.Observation) (string, error) {
	return s.writeImage(fmt.Sprintf("turn-%04d-step-%02d.png", turn, step), obs)
}

// SaveNotice writes the observation attached to a corrective message or to
// the refresh that follows a turn without device actions.
func (s *Session) SaveNotice(turn int, obs *schemas.Observation) (string, error) {
	return s.writeImage(fmt.Sprintf("turn-%04d-notice.png", turn), obs)
}

func (s *Session) writeImage(name string, obs *schemas.Observation) (string, error) {
	if obs == nil || len(obs.Image) == 0 {
		return "", fmt.Errorf("store: observation for %s has no image", name)
	}
	path := filepath.Join(s.dir, name)
	if err := s.fs.WriteFile(path, obs.Image, 0o644); err != nil {
		return "", fmt.Errorf("store: failed to write %s: %w", path, err)
	}
	s.log.Debug("Saved screenshot.", zap.String("path", path), zap.Int("bytes", len(obs.Image)))
	return path, nil
}

// Transcript is the persisted record of a session.
type Transcript struct {
	Result   *schemas.SessionResult `json:"result"`
	Messages []schemas.Message      `json:"messages"`
}

// SaveTranscript writes session.json. Images are referenced by path only.
func (s *Session) SaveTranscript(result *schemas.SessionResult, messages []schemas.Message) (string, error) {
	data, err := json.MarshalIndent(Transcript{Result: result, Messages: messages}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("store: failed to encode transcript: %w", err)
	}
	path := filepath.Join(s.dir, TranscriptFile)
	if err := s.fs.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("store: failed to write transcript: %w", err)
	}
	s.log.Info("Saved session transcript.", zap.String("path", path))
	return path, nil
}

// LoadTranscript reads a transcript written by SaveTranscript.
func (s *Session) LoadTranscript() (*Transcript, error) {
	data, err := s.fs.ReadFile(filepath.Join(s.dir, TranscriptFile))
	if err != nil {
		return nil, fmt.Errorf("store: failed to read transcript: %w", err)
	}
	var t Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("store: failed to decode transcript: %w", err)
	}
	return &t, nil
}
