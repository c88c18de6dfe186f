package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// View composes the scrollable feed, prompt bar, and status bar, with the
// approval overlay on top when a review is pending.
func (m Model) View() string {
	if !m.ready || m.feed == nil {
		return "Initializing..."
	}

	if m.mode == modeApproval && m.pending != nil {
		return m.renderApprovalOverlay()
	}

	feed := m.feed.View()
	prompt := m.renderPromptBar()
	status := m.statusBar.View(m.width)

	return lipgloss.JoinVertical(lipgloss.Left, feed, prompt, status)
}

func (m Model) renderEntries() string {
	if len(m.entries) == 0 {
		return welcomeStyle.Render("Type a message to chat, 'agent' to propose code changes, 'exit' to quit.")
	}
	rendered := make([]string, 0, len(m.entries))
	for _, entry := range m.entries {
		rendered = append(rendered, RenderEntry(entry, m.width))
	}
	return strings.Join(rendered, "\n\n")
}

func (m Model) renderPromptBar() string {
	prefix := "> "
	hint := dimStyle.Render(" enter to send | esc to cancel | ctrl+c to quit")

	if m.mode == modeRetryEdit {
		prefix = "retry> "
		hint = dimStyle.Render(" enter to resubmit | esc back to review")
	} else if m.busy {
		stage := m.stage
		if stage == "" {
			stage = "working"
		}
		hint = dimStyle.Render(" " + m.spinner.View() + " " + stage)
	}

	content := prefix + m.input.View()
	if hint != "" {
		content += " " + hint
	}
	return promptBarStyle.Width(m.width).Render(content)
}

// renderApprovalOverlay shows the pending diffs and the yes/no/retry keys.
func (m Model) renderApprovalOverlay() string {
	var b strings.Builder
	b.WriteString(sectionHeaderStyle.Render("Review proposed changes"))
	b.WriteString("\n\n")
	b.WriteString(dimStyle.Render(m.pending.Summary))
	b.WriteString("\n\n")
	for i, diff := range m.pending.Diffs {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(renderDiffEntry(diff, m.width))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(warnStyle.Render("[y] apply all   [n] discard   [r] retry with new instruction"))

	body := overlayStyle.Width(max(20, m.width-4)).Render(b.String())
	status := m.statusBar.View(m.width)
	return lipgloss.JoinVertical(lipgloss.Left, body, status)
}
