package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexcodex/quill/llm"
	"github.com/lexcodex/quill/session"
)

type stubGenerator struct {
	prompt string
	text   string
	err    error
}

func (g *stubGenerator) Generate(ctx context.Context, prompt string, options *llm.Options) (*llm.Response, error) {
	g.prompt = prompt
	if g.err != nil {
		return nil, g.err
	}
	return &llm.Response{Text: g.text}, nil
}

func TestSummarizeBuildsTranscriptAndParsesSections(t *testing.T) {
	gen := &stubGenerator{text: "SUMMARY: refactored the server\nFACTS: port is 8080, uses cobra\nPREFERENCES: short answers"}
	s := &LLMSummarizer{Model: gen}

	out, err := s.Summarize(context.Background(), "", []session.Turn{
		{Role: session.RoleUser, Content: "move the handler"},
		{Role: session.RoleAssistant, Content: "moved it"},
	})
	require.NoError(t, err)
	assert.Contains(t, gen.prompt, "User: move the handler")
	assert.Contains(t, gen.prompt, "Assistant: moved it")
	assert.Contains(t, out, "refactored the server")
	assert.Contains(t, out, "Key facts: port is 8080, uses cobra")
	assert.Contains(t, out, "Preferences: short answers")
}

func TestSummarizeFoldsInPreviousSummary(t *testing.T) {
	gen := &stubGenerator{text: "SUMMARY: combined"}
	s := &LLMSummarizer{Model: gen}

	_, err := s.Summarize(context.Background(), "earlier context", []session.Turn{
		{Role: session.RoleUser, Content: "more"},
	})
	require.NoError(t, err)
	assert.Contains(t, gen.prompt, "earlier context")
}

func TestSummarizeEmptySpanReturnsPrevious(t *testing.T) {
	s := &LLMSummarizer{Model: &stubGenerator{}}
	out, err := s.Summarize(context.Background(), "keep me", nil)
	require.NoError(t, err)
	assert.Equal(t, "keep me", out)
}

func TestCondenseTolerantParsing(t *testing.T) {
	// Missing sections are fine.
	assert.Equal(t, "just a summary", condense("SUMMARY: just a summary"))

	// Unlabeled output is used verbatim.
	assert.Equal(t, "free-form recap", condense("  free-form recap\n"))

	// Empty facts entries are dropped.
	out := condense("FACTS: a, , b")
	assert.False(t, strings.Contains(out, ", ,"))
}
