package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexcodex/quill/session"
)

type sliceHistory struct {
	turns []session.Turn
}

func (h *sliceHistory) AppendTurn(t session.Turn) { h.turns = append(h.turns, t) }
func (h *sliceHistory) Turns() []session.Turn     { return h.turns }
func (h *sliceHistory) Len() int                  { return len(h.turns) }

func newStore(t *testing.T) *TranscriptStore {
	t.Helper()
	store, err := NewTranscriptStore(filepath.Join(t.TempDir(), "transcripts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newSession(t *testing.T, exchanges ...string) *session.Session {
	t.Helper()
	sess := session.New(t.TempDir(), &sliceHistory{})
	for i := 0; i+1 < len(exchanges); i += 2 {
		sess.RecordUser(exchanges[i])
		sess.RecordAssistant(exchanges[i+1], false)
	}
	return sess
}

func TestSaveAndReadBackTranscript(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	sess := newSession(t, "hi", "hello", "what is a goroutine", "a lightweight thread")

	require.NoError(t, store.SaveSession(ctx, "s1", sess))

	turns, err := store.Turns(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, turns, 4)
	assert.Equal(t, session.RoleUser, turns[0].Role)
	assert.Equal(t, "hi", turns[0].Content)
	assert.Equal(t, session.RoleAssistant, turns[3].Role)
	assert.Equal(t, "a lightweight thread", turns[3].Content)
	assert.Equal(t, session.ModeChat, turns[0].Mode)
}

func TestSavePreservesIncompleteFlag(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	sess := session.New(t.TempDir(), &sliceHistory{})
	sess.RecordUser("explain channels")
	sess.RecordAssistant("channels are", true)

	require.NoError(t, store.SaveSession(ctx, "s1", sess))
	turns, err := store.Turns(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.True(t, turns[1].Incomplete)
}

func TestSaveSessionUpsertReplacesTurns(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveSession(ctx, "s1", newSession(t, "a", "b")))
	require.NoError(t, store.SaveSession(ctx, "s1", newSession(t, "a", "b", "c", "d")))

	turns, err := store.Turns(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, turns, 4)

	records, err := store.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 4, records[0].TurnCount)
}

func TestListSessionsNewestFirst(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveSession(ctx, "older", newSession(t, "a", "b")))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, store.SaveSession(ctx, "newer", newSession(t, "c", "d")))

	records, err := store.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "newer", records[0].ID)
	assert.Equal(t, "older", records[1].ID)
	assert.NotEmpty(t, records[0].WorkDir)
	assert.False(t, records[0].SavedAt.IsZero())
}

func TestTurnsUnknownSession(t *testing.T) {
	store := newStore(t)
	_, err := store.Turns(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestDeleteSessionCascades(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveSession(ctx, "s1", newSession(t, "a", "b")))
	require.NoError(t, store.DeleteSession(ctx, "s1"))

	_, err := store.Turns(ctx, "s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, store.DeleteSession(ctx, "s1"), ErrSessionNotFound)

	records, err := store.ListSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSaveSessionValidation(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	assert.Error(t, store.SaveSession(ctx, "", newSession(t)))
	assert.Error(t, store.SaveSession(ctx, "s1", nil))
}
