package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	runtimesvc "github.com/lexcodex/quill/app/quill/runtime"
	"github.com/lexcodex/quill/agent"
	"github.com/lexcodex/quill/approval"
	"github.com/lexcodex/quill/diffview"
)

// Bridge adapts controller notifications into Bubble Tea messages. Sends
// block until the UI consumes them, which keeps token order intact.
type Bridge struct {
	ch chan tea.Msg
}

// NewBridge builds the notifier handed to the runtime before the program
// starts.
func NewBridge() *Bridge {
	return &Bridge{ch: make(chan tea.Msg)}
}

func (b *Bridge) Status(stage, message string) {
	b.ch <- statusMsg{Stage: stage, Message: message}
}

func (b *Bridge) Token(text string) {
	b.ch <- tokenMsg{Text: text}
}

var _ agent.Notifier = (*Bridge)(nil)

// Run starts the full-screen session UI.
func Run(ctx context.Context, rt *runtimesvc.Runtime, bridge *Bridge) error {
	if rt == nil {
		return fmt.Errorf("runtime is required")
	}
	if bridge == nil {
		bridge = NewBridge()
	}
	model := NewModel(rt, bridge)
	program := tea.NewProgram(
		model,
		tea.WithContext(ctx),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	_, err := program.Run()
	model.stopApprovalFeed()
	return err
}

// EntryKind identifies the role of each entry in the feed.
type EntryKind string

const (
	EntryUser      EntryKind = "user"
	EntryAssistant EntryKind = "assistant"
	EntrySystem    EntryKind = "system"
)

// Entry is one rendered item in the scrollback feed.
type Entry struct {
	ID         string
	Timestamp  time.Time
	Kind       EntryKind
	Text       string
	Incomplete bool
	Steps      []string
	Diffs      []*diffview.Diff
	Verdict    approval.Verdict
	Applied    []string
	Duration   time.Duration
}

// uiMode tracks what the prompt bar is doing.
type uiMode int

const (
	modeInput uiMode = iota
	modeApproval
	modeRetryEdit
)

// Model implements the Bubble Tea model for the session feed, prompt bar,
// approval overlay, and status bar.
type Model struct {
	runtime *runtimesvc.Runtime
	bridge  *Bridge

	feed    *viewport.Model
	input   textinput.Model
	spinner spinner.Model

	statusBar StatusBar

	entries []Entry

	width  int
	height int
	ready  bool

	mode uiMode

	busy      bool
	stage     string
	streamBuf strings.Builder
	started   time.Time
	cancel    context.CancelFunc

	pending *approval.Request
	events  <-chan approval.Event
	stopSub func()
}

// NewModel initializes the feed/input model with defaults from the runtime.
func NewModel(rt *runtimesvc.Runtime, bridge *Bridge) Model {
	input := textinput.New()
	input.Placeholder = "Type a message, or chat/agent/exit"
	input.Focus()

	v := viewport.New(0, 0)
	vp := &v

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	status := StatusBar{
		workspace:  rt.Config.Workspace,
		model:      rt.Settings.Model.Name,
		mode:       string(rt.Session.Mode()),
		budget:     rt.Memory.Budget(),
		lastUpdate: time.Now(),
	}

	events, stop := rt.Approvals.Subscribe(16)

	return Model{
		runtime:   rt,
		bridge:    bridge,
		feed:      vp,
		input:     input,
		spinner:   sp,
		statusBar: status,
		mode:      modeInput,
		events:    events,
		stopSub:   stop,
	}
}

func (m Model) stopApprovalFeed() {
	if m.stopSub != nil {
		m.stopSub()
	}
}

// submitPrompt hands the prompt line to the controller on a goroutine and
// starts listening for its stream.
func (m Model) submitPrompt() (Model, tea.Cmd) {
	value := strings.TrimSpace(m.input.Value())
	if value == "" || m.busy {
		return m, nil
	}

	m.entries = append(m.entries, Entry{
		ID:        generateID(),
		Timestamp: time.Now(),
		Kind:      EntryUser,
		Text:      value,
	})
	m = m.refreshFeed()

	m.input.SetValue("")
	m.busy = true
	m.stage = "thinking"
	m.streamBuf.Reset()
	m.started = time.Now()

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	go m.runPipeline(ctx, value)

	return m, tea.Batch(listenBridge(m.bridge), listenApprovals(m.events), m.spinner.Tick)
}

// runPipeline executes one controller turn and reports the outcome over the
// bridge channel.
func (m Model) runPipeline(ctx context.Context, input string) {
	started := time.Now()
	out, err := m.runtime.Control.HandleInput(ctx, input)
	m.bridge.ch <- outcomeMsg{Outcome: out, Err: err, Duration: time.Since(started)}
}

// refreshFeed ensures the viewport reflects the latest entries.
func (m Model) refreshFeed() Model {
	if !m.ready || m.feed == nil {
		return m
	}
	m.feed.SetContent(m.renderEntries())
	m.feed.GotoBottom()
	return m
}

func (m Model) addSystemEntry(text string) Model {
	m.entries = append(m.entries, Entry{
		ID:        generateID(),
		Timestamp: time.Now(),
		Kind:      EntrySystem,
		Text:      text,
	})
	return m.refreshFeed()
}

// generateID produces a lightweight unique identifier for feed entries.
func generateID() string {
	return fmt.Sprintf("entry-%d", time.Now().UnixNano())
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
