package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// StatusBar renders workspace/model/mode metadata plus the context budget.
type StatusBar struct {
	workspace  string
	model      string
	mode       string
	budget     int
	turns      int
	lastUpdate time.Time
}

func (s StatusBar) View(width int) string {
	left := fmt.Sprintf("%s | %s | mode:%s",
		truncate(s.workspace, 24),
		s.model,
		s.mode,
	)
	right := fmt.Sprintf("turns:%d | budget:%s", s.turns, formatTokens(s.budget))
	padding := width - lipgloss.Width(left) - lipgloss.Width(right)
	if padding < 0 {
		padding = 0
	}
	return statusStyle.Render(left + strings.Repeat(" ", padding) + right)
}

func formatTokens(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%.1fk", float64(n)/1000)
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:1]
	}
	return s[:n-1] + "…"
}
