package plan

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseErr(t *testing.T, text string) *ParseError {
	t.Helper()
	_, err := Parse(text)
	require.Error(t, err)
	var perr *ParseError
	require.True(t, errors.As(err, &perr), "expected *ParseError, got %T", err)
	return perr
}

func TestParseSingleCreate(t *testing.T) {
	text := "I will add the file.\n\n" +
		"```op=create path=cmd/main.go\n" +
		"package main\n" +
		"```\n"

	p, err := Parse(text)
	require.NoError(t, err)
	require.Len(t, p.Operations, 1)
	assert.Equal(t, OpCreate, p.Operations[0].Kind)
	assert.Equal(t, "cmd/main.go", p.Operations[0].Path)
	assert.Equal(t, "package main\n", p.Operations[0].Content)
	assert.Equal(t, "I will add the file.", p.Rationale)
}

func TestParseMultipleOperationsKeepOrder(t *testing.T) {
	text := "```op=modify path=a.go\nnew a\n```\n" +
		"```op=delete path=b.go\n```\n" +
		"```op=create path=c/d.go\nbody\n```\n"

	p, err := Parse(text)
	require.NoError(t, err)
	require.Len(t, p.Operations, 3)
	assert.Equal(t, OpModify, p.Operations[0].Kind)
	assert.Equal(t, OpDelete, p.Operations[1].Kind)
	assert.Equal(t, "", p.Operations[1].Content)
	assert.Equal(t, OpCreate, p.Operations[2].Kind)
}

func TestParseNoBlocksIsEmptyPlan(t *testing.T) {
	p, err := Parse("The code already handles that case, no edits needed.")
	require.NoError(t, err)
	assert.True(t, p.Empty())
	assert.Contains(t, p.Rationale, "no edits needed")
}

func TestParseOrdinaryFencesAreProse(t *testing.T) {
	text := "For example:\n```python\nprint('hi')\n```\nThat is all."
	p, err := Parse(text)
	require.NoError(t, err)
	assert.True(t, p.Empty())
	assert.Contains(t, p.Rationale, "print('hi')")
}

func TestParseUnterminatedBlock(t *testing.T) {
	perr := parseErr(t, "```op=create path=a.go\npackage a\n")
	assert.Equal(t, ReasonAmbiguousBlock, perr.Reason)
	assert.Contains(t, perr.Detail, "unterminated")
}

func TestParseUnknownOperation(t *testing.T) {
	perr := parseErr(t, "```op=rename path=a.go\n```\n")
	assert.Equal(t, ReasonAmbiguousBlock, perr.Reason)
}

func TestParseMissingPath(t *testing.T) {
	perr := parseErr(t, "```op=create\nbody\n```\n")
	assert.Equal(t, ReasonAmbiguousBlock, perr.Reason)
}

func TestParseUnexpectedAttribute(t *testing.T) {
	perr := parseErr(t, "```op=create path=a.go mode=0755\nbody\n```\n")
	assert.Equal(t, ReasonAmbiguousBlock, perr.Reason)
}

func TestParseUnsafePaths(t *testing.T) {
	for _, path := range []string{
		"../evil.go",
		"a/../../evil.go",
		"/etc/passwd",
		`C:\windows\system32\x`,
		"..",
	} {
		perr := parseErr(t, "```op=create path="+path+"\nbody\n```\n")
		assert.Equal(t, ReasonUnsafePath, perr.Reason, "path %q", path)
	}
}

func TestParseInteriorDotDotIsNormalized(t *testing.T) {
	// a/../b stays inside the root after cleaning.
	p, err := Parse("```op=create path=a/../b.go\nbody\n```\n")
	require.NoError(t, err)
	require.Len(t, p.Operations, 1)
	assert.Equal(t, "b.go", p.Operations[0].Path)
}

func TestParseConflictingOperations(t *testing.T) {
	text := "```op=create path=same.go\none\n```\n" +
		"```op=modify path=same.go\ntwo\n```\n"
	perr := parseErr(t, text)
	assert.Equal(t, ReasonConflictingOperations, perr.Reason)
	assert.Equal(t, "same.go", perr.Path)
}

func TestParseConflictDetectedAfterNormalization(t *testing.T) {
	text := "```op=create path=dir/file.go\none\n```\n" +
		"```op=delete path=dir//file.go\n```\n"
	perr := parseErr(t, text)
	assert.Equal(t, ReasonConflictingOperations, perr.Reason)
}

func TestParseRenderRoundTrip(t *testing.T) {
	original := &EditPlan{
		Rationale: "Two edits.",
		Operations: []FileOperation{
			{Kind: OpCreate, Path: "x/y.go", Content: "package y\n"},
			{Kind: OpDelete, Path: "old.go"},
		},
	}

	parsed, err := Parse(original.Render())
	require.NoError(t, err)
	assert.Equal(t, original.Operations, parsed.Operations)
	assert.Equal(t, original.Rationale, parsed.Rationale)

	// Parsing is idempotent over its own rendering.
	again, err := Parse(parsed.Render())
	require.NoError(t, err)
	assert.Equal(t, parsed.Operations, again.Operations)
}

func TestParseErrorMessage(t *testing.T) {
	perr := parseErr(t, "```op=create path=../x\n```\n")
	assert.Contains(t, perr.Error(), "unsafe path")
	assert.Contains(t, perr.Error(), "../x")
}
