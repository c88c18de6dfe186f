package runtime

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/lexcodex/quill/agent"
	"github.com/lexcodex/quill/approval"
	"github.com/lexcodex/quill/llm"
	"github.com/lexcodex/quill/memory"
	"github.com/lexcodex/quill/persistence"
	"github.com/lexcodex/quill/session"
	"github.com/lexcodex/quill/workspace"
)

// Config carries the CLI-level settings needed to bring a session up.
type Config struct {
	Workspace  string
	ConfigPath string
	Endpoint   string
	Model      string
	LogPath    string
}

// Normalize fills defaults and resolves the workspace path.
func (c *Config) Normalize() error {
	if c.Workspace == "" {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		c.Workspace = wd
	}
	abs, err := filepath.Abs(c.Workspace)
	if err != nil {
		return err
	}
	c.Workspace = abs
	if c.ConfigPath == "" {
		c.ConfigPath = agent.DefaultConfigPath(c.Workspace)
	}
	if c.LogPath == "" {
		c.LogPath = filepath.Join(agent.ConfigDir(c.Workspace), "quill.log")
	}
	return nil
}

// Runtime wires the quill CLI and Bubble Tea UI to the session engine. It
// owns the model client, memory, approval broker, and the controller that
// drives them.
type Runtime struct {
	Config    Config
	Settings  *agent.Config
	Model     *llm.Client
	Memory    *memory.Manager
	Session   *session.Session
	Approvals *approval.Broker
	Control   *agent.Controller
	Logger    *log.Logger

	logFile io.Closer
}

// New builds a runtime rooted in the configured workspace. The notifier may
// be nil; the controller falls back to a no-op.
func New(ctx context.Context, cfg Config, notify agent.Notifier) (*Runtime, error) {
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	settings, err := agent.LoadConfig(cfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Endpoint != "" {
		settings.Endpoint = cfg.Endpoint
	}
	if cfg.Model != "" {
		settings.Model.Name = cfg.Model
	}

	if err := os.MkdirAll(filepath.Dir(cfg.LogPath), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	logFile, err := os.OpenFile(cfg.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	logger := log.New(logFile, "quill ", log.LstdFlags|log.Lmicroseconds)

	ws, err := workspace.New(cfg.Workspace)
	if err != nil {
		logFile.Close()
		return nil, err
	}

	model := llm.NewClient(settings.Endpoint, settings.Model.Name)
	model.SetDebugLogging(settings.Logging.LLM)

	mem := memory.NewManager(memory.Config{
		Budget:     settings.Context.BudgetTokens,
		Policy:     memory.Policy(settings.Context.Policy),
		Counter:    memory.NewTokenCounter(),
		Summarizer: &memory.LLMSummarizer{Model: model},
	})

	sess := session.New(cfg.Workspace, mem)
	broker := approval.NewBroker(settings.ApprovalTimeout())
	control := agent.NewController(settings, model, mem, sess, ws, broker, notify)

	rt := &Runtime{
		Config:    cfg,
		Settings:  settings,
		Model:     model,
		Memory:    mem,
		Session:   sess,
		Approvals: broker,
		Control:   control,
		Logger:    logger,
		logFile:   logFile,
	}
	return rt, nil
}

// SaveTranscript persists the session so `quill session` can replay it.
func (r *Runtime) SaveTranscript(ctx context.Context, id string) error {
	if len(r.Session.Turns()) == 0 {
		return nil
	}
	store, err := persistence.NewTranscriptStore(TranscriptDBPath(r.Config.Workspace))
	if err != nil {
		return err
	}
	defer store.Close()
	return store.SaveSession(ctx, id, r.Session)
}

// TranscriptDBPath is where session transcripts live for a workspace.
func TranscriptDBPath(ws string) string {
	return filepath.Join(agent.ConfigDir(ws), "transcripts.db")
}

// Close releases resources managed by the runtime.
func (r *Runtime) Close() error {
	if r.logFile != nil {
		return r.logFile.Close()
	}
	return nil
}
