package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHistory struct {
	turns []Turn
}

func (h *recordingHistory) AppendTurn(t Turn) { h.turns = append(h.turns, t) }
func (h *recordingHistory) Turns() []Turn     { return h.turns }
func (h *recordingHistory) Len() int          { return len(h.turns) }

func TestNewSessionStartsInChatMode(t *testing.T) {
	s := New(t.TempDir(), &recordingHistory{})
	assert.Equal(t, ModeChat, s.Mode())
	assert.False(t, s.Closed())
}

func TestParseCommand(t *testing.T) {
	assert.Equal(t, CommandChat, ParseCommand("chat"))
	assert.Equal(t, CommandAgent, ParseCommand("  AGENT  "))
	assert.Equal(t, CommandExit, ParseCommand("exit"))
	assert.Equal(t, CommandExit, ParseCommand("quit"))
	assert.Equal(t, CommandNone, ParseCommand("please refactor main.go"))
	assert.Equal(t, CommandNone, ParseCommand("chat with me about this"))
}

func TestDispatchSwitchesModes(t *testing.T) {
	s := New(t.TempDir(), &recordingHistory{})

	require.True(t, s.Dispatch(CommandAgent))
	assert.Equal(t, ModeAgent, s.Mode())

	require.True(t, s.Dispatch(CommandChat))
	assert.Equal(t, ModeChat, s.Mode())

	assert.False(t, s.Dispatch(CommandNone))
	assert.Equal(t, ModeChat, s.Mode())
}

func TestCloseIsTerminal(t *testing.T) {
	s := New(t.TempDir(), &recordingHistory{})
	require.True(t, s.Dispatch(CommandExit))
	assert.True(t, s.Closed())

	// Mode changes after exit are ignored.
	s.SetMode(ModeAgent)
	assert.Equal(t, ModeChat, s.Mode())
}

func TestTurnsTaggedWithActiveMode(t *testing.T) {
	hist := &recordingHistory{}
	s := New(t.TempDir(), hist)

	s.RecordUser("hello")
	s.Dispatch(CommandAgent)
	s.RecordUser("add a handler")
	s.RecordAssistant("done", false)

	require.Len(t, hist.turns, 3)
	assert.Equal(t, ModeChat, hist.turns[0].Mode)
	assert.Equal(t, ModeAgent, hist.turns[1].Mode)
	assert.Equal(t, ModeAgent, hist.turns[2].Mode)
	assert.Equal(t, RoleAssistant, hist.turns[2].Role)
}

func TestRecordAssistantIncomplete(t *testing.T) {
	hist := &recordingHistory{}
	s := New(t.TempDir(), hist)

	s.RecordAssistant("partial tex", true)
	require.Len(t, hist.turns, 1)
	assert.True(t, hist.turns[0].Incomplete)
}
