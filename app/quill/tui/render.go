package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/lexcodex/quill/diffview"
	"github.com/lexcodex/quill/plan"
)

// RenderEntry converts an Entry into a styled string for the viewport.
func RenderEntry(entry Entry, width int) string {
	var b strings.Builder

	b.WriteString(renderEntryHeader(entry))
	b.WriteString("\n")

	switch entry.Kind {
	case EntryUser:
		b.WriteString(textStyle.Render(entry.Text))
	case EntrySystem:
		b.WriteString(dimStyle.Render(entry.Text))
	case EntryAssistant:
		b.WriteString(renderAssistantEntry(entry, width))
	}

	if entry.Duration > 0 {
		b.WriteString("\n")
		b.WriteString(dimStyle.Render(formatDuration(entry.Duration)))
	}

	boxWidth := max(0, width-4)
	return messageBoxStyle.Width(boxWidth).Render(b.String())
}

func renderEntryHeader(entry Entry) string {
	timestamp := entry.Timestamp.Format("15:04:05")
	role := "You"
	switch entry.Kind {
	case EntryAssistant:
		role = "Assistant"
	case EntrySystem:
		role = "System"
	}
	return headerStyle.Render(fmt.Sprintf("[%s] %s", timestamp, role))
}

func renderAssistantEntry(entry Entry, width int) string {
	var b strings.Builder

	if len(entry.Steps) > 0 {
		b.WriteString(sectionHeaderStyle.Render("Plan"))
		b.WriteString("\n")
		for i, step := range entry.Steps {
			b.WriteString(fmt.Sprintf("%d. %s\n", i+1, step))
		}
		b.WriteString("\n")
	}

	if entry.Text != "" {
		b.WriteString(textStyle.Render(entry.Text))
		b.WriteString("\n")
	}
	if entry.Incomplete {
		b.WriteString(warnStyle.Render("[response interrupted before completion]"))
		b.WriteString("\n")
	}

	if len(entry.Diffs) > 0 {
		b.WriteString("\n")
		b.WriteString(renderDiffsSection(entry, width))
	}

	return strings.TrimRight(b.String(), "\n")
}

func renderDiffsSection(entry Entry, width int) string {
	var b strings.Builder
	header := fmt.Sprintf("Changes (%d files)", len(entry.Diffs))
	b.WriteString(sectionHeaderStyle.Render(header))
	b.WriteString("\n")
	for i, diff := range entry.Diffs {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(renderDiffEntry(diff, width))
		b.WriteString("\n")
	}
	switch {
	case len(entry.Applied) > 0:
		b.WriteString(diffAddStyle.Render(fmt.Sprintf("Applied: %s", strings.Join(entry.Applied, ", "))))
	case entry.Verdict != "":
		b.WriteString(dimStyle.Render(fmt.Sprintf("Verdict: %s", entry.Verdict)))
	}
	return b.String()
}

func renderDiffEntry(diff *diffview.Diff, width int) string {
	var b strings.Builder
	icon := "~"
	switch diff.Op.Kind {
	case plan.OpCreate:
		icon = "+"
	case plan.OpDelete:
		icon = "-"
	}
	label := fmt.Sprintf("%s %s", icon, diff.Op.Path)
	b.WriteString(filePathStyle.Render(label))
	if diff.Class == diffview.ClassDestructive {
		b.WriteString(" " + warnStyle.Render("(destructive overwrite)"))
	}
	b.WriteString("\n")
	b.WriteString(diffBoxStyle.Width(max(0, width-8)).Render(renderUnified(diff.Unified)))
	return b.String()
}

func renderUnified(diff string) string {
	lines := strings.Split(diff, "\n")
	rendered := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			rendered = append(rendered, "")
			continue
		}
		style := diffContextStyle
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"), strings.HasPrefix(line, "@"):
			style = diffHeaderStyle
		case line[0] == '+':
			style = diffAddStyle
		case line[0] == '-':
			style = diffRemoveStyle
		}
		rendered = append(rendered, style.Render(line))
	}
	return strings.Join(rendered, "\n")
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
}
