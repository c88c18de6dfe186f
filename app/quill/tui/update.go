package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/lexcodex/quill/agent"
	"github.com/lexcodex/quill/approval"
)

// tokenMsg carries one streamed token from the controller.
type tokenMsg struct {
	Text string
}

// statusMsg reports a pipeline stage transition.
type statusMsg struct {
	Stage   string
	Message string
}

// outcomeMsg is the final result of one controller turn.
type outcomeMsg struct {
	Outcome  *agent.Outcome
	Err      error
	Duration time.Duration
}

// approvalMsg surfaces broker lifecycle events.
type approvalMsg struct {
	Event approval.Event
}

// Init fulfills the Bubble Tea Model interface.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, listenApprovals(m.events))
}

// Update applies incoming Bubble Tea messages to mutate the Model state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+d":
			return m, tea.Quit
		case "esc":
			if m.busy && m.cancel != nil && m.mode == modeInput {
				m.cancel()
				return m.addSystemEntry("cancelling..."), nil
			}
		}
		switch m.mode {
		case modeApproval:
			return m.handleApprovalKeys(msg)
		case modeRetryEdit:
			return m.handleRetryKeys(msg)
		default:
			return m.handleInputKeys(msg)
		}
	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tokenMsg:
		return m.handleToken(msg)
	case statusMsg:
		m.stage = msg.Message
		return m, listenBridge(m.bridge)
	case outcomeMsg:
		return m.handleOutcome(msg)
	case approvalMsg:
		return m.handleApprovalEvent(msg.Event)
	}
	return m, nil
}

// handleResize adjusts the feed/input layout on terminal resize events.
func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height

	statusBarHeight := 1
	promptBarHeight := 1
	feedHeight := max(1, msg.Height-statusBarHeight-promptBarHeight)

	if !m.ready {
		v := viewport.New(msg.Width, feedHeight)
		m.feed = &v
		m.ready = true
		m = m.refreshFeed()
	} else {
		m.feed.Width = msg.Width
		m.feed.Height = feedHeight
	}
	m.input.Width = max(10, msg.Width-4)
	return m, nil
}

func (m Model) handleInputKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		return m.submitPrompt()
	case "up", "down", "pgup", "pgdown", "home", "end":
		var cmd tea.Cmd
		*m.feed, cmd = m.feed.Update(msg)
		return m, cmd
	default:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
}

// handleToken appends streamed text to the in-progress assistant entry.
func (m Model) handleToken(msg tokenMsg) (tea.Model, tea.Cmd) {
	if !m.busy {
		return m, nil
	}
	m.streamBuf.WriteString(msg.Text)

	partial := Entry{
		ID:        "streaming",
		Timestamp: m.started,
		Kind:      EntryAssistant,
		Text:      m.streamBuf.String(),
	}
	if n := len(m.entries); n > 0 && m.entries[n-1].ID == "streaming" {
		m.entries[n-1] = partial
	} else {
		m.entries = append(m.entries, partial)
	}
	m = m.refreshFeed()
	return m, listenBridge(m.bridge)
}

// handleOutcome finalizes the turn once the controller returns.
func (m Model) handleOutcome(msg outcomeMsg) (tea.Model, tea.Cmd) {
	m.busy = false
	m.stage = ""
	m.cancel = nil

	// Drop the live streaming placeholder; the outcome entry replaces it.
	if n := len(m.entries); n > 0 && m.entries[n-1].ID == "streaming" {
		m.entries = m.entries[:n-1]
	}

	if msg.Err != nil {
		m = m.addSystemEntry(errStyle.Render(fmt.Sprintf("error: %v", msg.Err)))
	}
	if out := msg.Outcome; out != nil {
		m.statusBar.mode = string(out.Mode)
		if out.Note != "" {
			m = m.addSystemEntry(out.Note)
		}
		if out.Reply != "" || len(out.Diffs) > 0 || len(out.PlanSteps) > 0 {
			entry := Entry{
				ID:         generateID(),
				Timestamp:  m.started,
				Kind:       EntryAssistant,
				Text:       out.Reply,
				Incomplete: out.Incomplete,
				Steps:      out.PlanSteps,
				Diffs:      out.Diffs,
				Verdict:    out.Verdict,
				Duration:   msg.Duration,
			}
			if out.Apply != nil {
				for _, op := range out.Apply.Succeeded {
					entry.Applied = append(entry.Applied, op.Path)
				}
			}
			m.entries = append(m.entries, entry)
		}
		if m.runtime.Session.Closed() {
			return m.refreshFeed(), tea.Quit
		}
	}
	m.statusBar.turns = len(m.runtime.Session.Turns())
	m.statusBar.lastUpdate = time.Now()
	return m.refreshFeed(), nil
}

// handleApprovalEvent shows or clears the review overlay.
func (m Model) handleApprovalEvent(ev approval.Event) (tea.Model, tea.Cmd) {
	switch ev.Type {
	case approval.EventRequested:
		m.pending = ev.Request
		m.mode = modeApproval
	case approval.EventResolved, approval.EventExpired:
		if m.pending != nil && ev.Request != nil && m.pending.ID == ev.Request.ID {
			m.pending = nil
			if m.mode == modeApproval {
				m.mode = modeInput
			}
		}
		if ev.Type == approval.EventExpired && ev.Error != "" {
			m = m.addSystemEntry(warnStyle.Render("approval expired: " + ev.Error))
		}
	}
	return m.refreshFeed(), listenApprovals(m.events)
}

// handleApprovalKeys routes y/n/r while the overlay is visible.
func (m Model) handleApprovalKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.pending == nil {
		m.mode = modeInput
		return m, nil
	}
	switch strings.ToLower(msg.String()) {
	case "y":
		return m.resolvePending(approval.VerdictYes, "")
	case "n", "esc":
		return m.resolvePending(approval.VerdictNo, "")
	case "r":
		m.mode = modeRetryEdit
		m.input.SetValue("")
		m.input.Placeholder = "Revised instruction (empty keeps the original)"
		m.input.Focus()
		return m, nil
	case "up", "down", "pgup", "pgdown":
		var cmd tea.Cmd
		*m.feed, cmd = m.feed.Update(msg)
		return m, cmd
	}
	return m, nil
}

// handleRetryKeys collects the replacement instruction for a retry verdict.
func (m Model) handleRetryKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		instruction := strings.TrimSpace(m.input.Value())
		m.input.SetValue("")
		m.input.Placeholder = "Type a message, or chat/agent/exit"
		return m.resolvePending(approval.VerdictRetry, instruction)
	case "esc":
		m.mode = modeApproval
		m.input.SetValue("")
		m.input.Placeholder = "Type a message, or chat/agent/exit"
		return m, nil
	default:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
}

func (m Model) resolvePending(verdict approval.Verdict, instruction string) (tea.Model, tea.Cmd) {
	if m.pending == nil {
		m.mode = modeInput
		return m, nil
	}
	err := m.runtime.Approvals.Resolve(approval.Decision{
		RequestID:   m.pending.ID,
		Verdict:     verdict,
		Instruction: instruction,
	})
	m.mode = modeInput
	m.pending = nil
	if err != nil {
		return m.addSystemEntry(errStyle.Render(fmt.Sprintf("approval error: %v", err))), nil
	}
	return m, listenBridge(m.bridge)
}

// listenBridge adapts the controller notification channel to Bubble Tea.
func listenBridge(b *Bridge) tea.Cmd {
	if b == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-b.ch
		if !ok {
			return nil
		}
		return msg
	}
}

// listenApprovals waits for the next broker lifecycle event.
func listenApprovals(ch <-chan approval.Event) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return approvalMsg{Event: ev}
	}
}
