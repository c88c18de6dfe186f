package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/lexcodex/quill/llm"
	"github.com/lexcodex/quill/session"
)

// ErrContextOverflow means the newest input alone does not fit the budget.
// No prompt is built in that case.
var ErrContextOverflow = errors.New("input exceeds context budget")

// Policy selects how old turns leave the prompt view.
type Policy string

const (
	// PolicyTruncate drops oldest turns from the prompt view.
	PolicyTruncate Policy = "truncate"
	// PolicySummarize condenses the dropped span into one synthetic turn
	// via a single inference call. Optional enhancement; truncation is the
	// correctness baseline.
	PolicySummarize Policy = "summarize"
)

// summaryReserve is the budget fraction held back for the synthetic summary
// message under PolicySummarize.
const summaryReserve = 10

// summaryPrefix introduces the synthetic summary message. It is part of the
// rendered prompt, so it counts against the same budget slice as the summary
// body.
const summaryPrefix = "Earlier conversation (condensed): "

// Summarizer condenses a span of dropped turns, folding in the previous
// condensed text so repeated evictions stay coherent.
type Summarizer interface {
	Summarize(ctx context.Context, previous string, turns []session.Turn) (string, error)
}

// Config configures a Manager.
type Config struct {
	Budget     int // prompt budget in tokens
	Policy     Policy
	Counter    TokenCounter
	Summarizer Summarizer // required for PolicySummarize
}

// Manager owns the canonical, append-only conversation history and produces
// bounded prompt payloads from it. History length is monotonically
// non-decreasing; eviction only ever narrows the prompt view.
type Manager struct {
	mu         sync.Mutex
	budget     int
	policy     Policy
	counter    TokenCounter
	summarizer Summarizer

	history []session.Turn

	// Condensed text standing in for history[:summarizedThrough] when the
	// summarize policy is active.
	summary           string
	summarizedThrough int
}

// NewManager builds a Manager, applying defaults for missing config.
func NewManager(cfg Config) *Manager {
	if cfg.Budget <= 0 {
		cfg.Budget = 8192
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyTruncate
	}
	if cfg.Counter == nil {
		cfg.Counter = NewTokenCounter()
	}
	return &Manager{
		budget:     cfg.Budget,
		policy:     cfg.Policy,
		counter:    cfg.Counter,
		summarizer: cfg.Summarizer,
	}
}

// AppendTurn records a completed turn. Turns are never mutated afterwards.
func (m *Manager) AppendTurn(t session.Turn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, t)
}

// Turns returns a copy of the canonical history.
func (m *Manager) Turns() []session.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]session.Turn, len(m.history))
	copy(out, m.history)
	return out
}

// Len reports the canonical history length.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.history)
}

// Budget returns the configured prompt budget.
func (m *Manager) Budget() int { return m.budget }

// BuildPrompt selects the most recent turns that fit the budget and appends
// the pending input as the final user message. The pending input is always
// included in full; if it alone exceeds the budget, ErrContextOverflow is
// returned and nothing is built. System prompts added by the caller are
// constant overhead outside this budget.
func (m *Manager) BuildPrompt(ctx context.Context, pending string) ([]llm.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pendingCost := m.counter.Count(pending)
	if pendingCost > m.budget {
		return nil, ErrContextOverflow
	}

	remaining := m.budget - pendingCost
	reserve := 0
	if m.policy == PolicySummarize && m.summarizer != nil {
		reserve = m.budget / summaryReserve
		if reserve > remaining {
			reserve = remaining
		}
		remaining -= reserve
	}

	// Newest-first selection over the turns not already folded into the
	// running summary.
	start := len(m.history)
	for start > m.summarizedThrough {
		cost := m.counter.Count(renderTurn(m.history[start-1]))
		if cost > remaining {
			break
		}
		remaining -= cost
		start--
	}

	if m.policy == PolicySummarize && m.summarizer != nil && start > m.summarizedThrough {
		// Best effort: when summarization fails, the dropped span is
		// simply truncated for this prompt instead of blocking the turn.
		_ = m.summarizeSpan(ctx, start, reserve+remaining)
	}

	messages := make([]llm.Message, 0, len(m.history)-start+2)
	if m.policy == PolicySummarize && m.summary != "" && start >= m.summarizedThrough {
		messages = append(messages, llm.Message{
			Role:    "system",
			Content: summaryPrefix + m.summary,
		})
	}
	for _, t := range m.history[start:] {
		messages = append(messages, llm.Message{
			Role:    string(t.Role),
			Content: renderTurn(t),
		})
	}
	messages = append(messages, llm.Message{Role: "user", Content: pending})
	return messages, nil
}

// summarizeSpan folds history[summarizedThrough:end) into the running
// summary, bounding the result to limit tokens.
func (m *Manager) summarizeSpan(ctx context.Context, end, limit int) error {
	span := m.history[m.summarizedThrough:end]
	condensed, err := m.summarizer.Summarize(ctx, m.summary, span)
	if err != nil {
		return err
	}
	allowed := limit - m.counter.Count(summaryPrefix)
	if allowed < 0 {
		allowed = 0
	}
	if m.counter.Count(condensed) > allowed {
		condensed = clipToTokens(condensed, allowed)
	}
	m.summary = condensed
	m.summarizedThrough = end
	return nil
}

// renderTurn is the prompt-view text of a turn. Interrupted replies carry an
// explicit marker so the model is not misled into treating partial output as
// a finished answer.
func renderTurn(t session.Turn) string {
	if t.Incomplete {
		return t.Content + "\n[response interrupted before completion]"
	}
	return t.Content
}

// clipToTokens trims text to roughly limit tokens using the chars/4 rule.
// Only used to bound a freshly generated summary, where a rough cut is fine.
func clipToTokens(text string, limit int) string {
	maxChars := limit * 4
	if len(text) <= maxChars {
		return text
	}
	return text[:maxChars]
}
