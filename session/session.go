package session

import (
	"path/filepath"
	"time"
)

// Mode identifies which pipeline free-text input is routed to.
type Mode string

const (
	ModeChat  Mode = "chat"
	ModeAgent Mode = "agent"
)

// Role tags who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in the conversation history. Turns are immutable once
// appended; bounding the prompt happens in the context manager's view, never
// by rewriting history.
type Turn struct {
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	Mode       Mode      `json:"mode"`
	Incomplete bool      `json:"incomplete,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// History records completed turns. Implemented by memory.Manager.
type History interface {
	AppendTurn(Turn)
	Turns() []Turn
	Len() int
}

// Session holds the live process state: the active mode, the working
// directory all file operations are scoped to, and the shared history.
// Lifetime is pinned to the process; nothing is persisted unless the
// operator exports the transcript explicitly.
type Session struct {
	history   History
	mode      Mode
	workDir   string
	startedAt time.Time
	closed    bool
}

// New builds a session rooted at workDir, starting in chat mode.
func New(workDir string, history History) *Session {
	abs, err := filepath.Abs(workDir)
	if err != nil {
		abs = workDir
	}
	return &Session{
		history:   history,
		mode:      ModeChat,
		workDir:   abs,
		startedAt: time.Now(),
	}
}

// Mode returns the active mode.
func (s *Session) Mode() Mode { return s.mode }

// WorkDir returns the absolute workspace root.
func (s *Session) WorkDir() string { return s.workDir }

// StartedAt reports when the session began.
func (s *Session) StartedAt() time.Time { return s.startedAt }

// Closed reports whether the exit command has been issued.
func (s *Session) Closed() bool { return s.closed }

// SetMode switches the active mode. The input loop only calls this between
// turns, never while a stream is in flight; the mode never changes as a side
// effect of model output.
func (s *Session) SetMode(mode Mode) {
	if s.closed {
		return
	}
	s.mode = mode
}

// Close marks the session terminated. Terminal: no further mode changes.
func (s *Session) Close() { s.closed = true }

// RecordUser appends the operator's input tagged with the active mode.
func (s *Session) RecordUser(content string) {
	s.history.AppendTurn(Turn{
		Role:      RoleUser,
		Content:   content,
		Mode:      s.mode,
		Timestamp: time.Now(),
	})
}

// RecordAssistant appends a model reply. Cancelled streams are recorded with
// incomplete set so continuity is preserved honestly rather than pretending
// the reply finished.
func (s *Session) RecordAssistant(content string, incomplete bool) {
	s.history.AppendTurn(Turn{
		Role:       RoleAssistant,
		Content:    content,
		Mode:       s.mode,
		Incomplete: incomplete,
		Timestamp:  time.Now(),
	})
}

// Turns exposes a copy of the canonical history.
func (s *Session) Turns() []Turn { return s.history.Turns() }
