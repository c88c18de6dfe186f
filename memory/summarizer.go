package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/lexcodex/quill/llm"
	"github.com/lexcodex/quill/session"
)

// Generator is the single-prompt completion surface the summarizer needs.
// Satisfied by *llm.Client.
type Generator interface {
	Generate(ctx context.Context, prompt string, options *llm.Options) (*llm.Response, error)
}

// LLMSummarizer condenses dropped conversation spans with one inference call.
type LLMSummarizer struct {
	Model Generator
}

const summaryPrompt = `Summarize the following conversation in under 200 tokens.

%s
Conversation:
%s

Format your response as:
SUMMARY: [brief summary]
FACTS: [comma-separated key facts]
PREFERENCES: [comma-separated user preferences]

Keep each section concise.`

// Summarize implements Summarizer. The previous condensed text is folded in
// so repeated evictions do not lose earlier context.
func (s *LLMSummarizer) Summarize(ctx context.Context, previous string, turns []session.Turn) (string, error) {
	if len(turns) == 0 {
		return previous, nil
	}
	var transcript strings.Builder
	for _, t := range turns {
		label := "User"
		if t.Role == session.RoleAssistant {
			label = "Assistant"
		}
		fmt.Fprintf(&transcript, "%s: %s\n", label, t.Content)
	}
	prior := ""
	if previous != "" {
		prior = "Earlier summary (fold this in):\n" + previous + "\n"
	}
	resp, err := s.Model.Generate(ctx, fmt.Sprintf(summaryPrompt, prior, transcript.String()), &llm.Options{
		Temperature: 0.3,
	})
	if err != nil {
		return "", err
	}
	return condense(resp.Text), nil
}

// condense extracts the labeled sections, tolerating responses that omit
// some of them. An unlabeled response is used as-is.
func condense(text string) string {
	var summary string
	var facts, prefs []string
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "SUMMARY:"):
			summary = strings.TrimSpace(strings.TrimPrefix(line, "SUMMARY:"))
		case strings.HasPrefix(line, "FACTS:"):
			facts = splitList(strings.TrimPrefix(line, "FACTS:"))
		case strings.HasPrefix(line, "PREFERENCES:"):
			prefs = splitList(strings.TrimPrefix(line, "PREFERENCES:"))
		}
	}
	if summary == "" && len(facts) == 0 && len(prefs) == 0 {
		return strings.TrimSpace(text)
	}
	parts := []string{summary}
	if len(facts) > 0 {
		parts = append(parts, "Key facts: "+strings.Join(facts, ", "))
	}
	if len(prefs) > 0 {
		parts = append(parts, "Preferences: "+strings.Join(prefs, ", "))
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
