package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexcodex/quill/approval"
	"github.com/lexcodex/quill/llm"
	"github.com/lexcodex/quill/memory"
	"github.com/lexcodex/quill/plan"
	"github.com/lexcodex/quill/session"
	"github.com/lexcodex/quill/workspace"
)

// streamScript is one ChatStream reply: text, then a terminal marker.
type streamScript struct {
	text string
	done bool
	err  error
}

type scriptedModel struct {
	mu          sync.Mutex
	planReply   string
	streams     []streamScript
	chatReply   string
	streamCalls int
	chatCalls   int
	genCalls    int
}

func (m *scriptedModel) Generate(context.Context, string, *llm.Options) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.genCalls++
	return &llm.Response{Text: m.planReply}, nil
}

func (m *scriptedModel) Chat(context.Context, []llm.Message, *llm.Options) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chatCalls++
	return &llm.Response{Text: m.chatReply}, nil
}

func (m *scriptedModel) ChatStream(context.Context, []llm.Message, *llm.Options) (<-chan llm.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.streamCalls >= len(m.streams) {
		return nil, errors.New("no scripted stream left")
	}
	script := m.streams[m.streamCalls]
	m.streamCalls++

	ch := make(chan llm.Chunk, 3)
	if script.text != "" {
		ch <- llm.Chunk{Text: script.text}
	}
	switch {
	case script.err != nil:
		ch <- llm.Chunk{Err: script.err}
	case script.done:
		ch <- llm.Chunk{Done: true}
	}
	close(ch)
	return ch, nil
}

type fixture struct {
	control   *Controller
	ws        *workspace.Workspace
	mem       *memory.Manager
	summaries []string
}

// newFixture wires a controller over a temp workspace with an operator stub
// that answers every approval request from the verdicts slice in order.
func newFixture(t *testing.T, model Model, verdicts []approval.Decision) *fixture {
	t.Helper()
	ws, err := workspace.New(t.TempDir())
	require.NoError(t, err)

	mem := memory.NewManager(memory.Config{Budget: 100000})
	sess := session.New(ws.Root(), mem)
	broker := approval.NewBroker(5 * time.Second)
	f := &fixture{ws: ws, mem: mem}
	f.control = NewController(DefaultConfig(), model, mem, sess, ws, broker, nil)

	events, stop := broker.Subscribe(8)
	t.Cleanup(stop)
	go func() {
		i := 0
		for event := range events {
			if event.Type != approval.EventRequested {
				continue
			}
			f.summaries = append(f.summaries, event.Request.Summary)
			decision := approval.Decision{Verdict: approval.VerdictNo}
			if i < len(verdicts) {
				decision = verdicts[i]
			}
			i++
			decision.RequestID = event.Request.ID
			_ = broker.Resolve(decision)
		}
	}()
	return f
}

const goodPlanText = "Adding the greeting.\n```op=create path=greet.go\npackage main\n```\n"

func TestHandleInputModeCommands(t *testing.T) {
	model := &scriptedModel{}
	f := newFixture(t, model, nil)
	ctx := context.Background()

	out, err := f.control.HandleInput(ctx, "agent")
	require.NoError(t, err)
	assert.Equal(t, session.ModeAgent, out.Mode)
	assert.Equal(t, "switched to agent mode", out.Note)

	out, err = f.control.HandleInput(ctx, "  CHAT  ")
	require.NoError(t, err)
	assert.Equal(t, session.ModeChat, out.Mode)

	out, err = f.control.HandleInput(ctx, "exit")
	require.NoError(t, err)
	assert.Equal(t, "session terminated", out.Note)

	_, err = f.control.HandleInput(ctx, "hello?")
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestHandleInputEmptyIsNoOp(t *testing.T) {
	f := newFixture(t, &scriptedModel{}, nil)
	out, err := f.control.HandleInput(context.Background(), "   ")
	require.NoError(t, err)
	assert.Empty(t, out.Reply)
	assert.Zero(t, f.mem.Len())
}

func TestChatRecordsBothTurns(t *testing.T) {
	model := &scriptedModel{streams: []streamScript{{text: "hello there", done: true}}}
	f := newFixture(t, model, nil)

	out, err := f.control.HandleInput(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "hello there", out.Reply)
	assert.False(t, out.Incomplete)

	turns := f.mem.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, session.RoleUser, turns[0].Role)
	assert.Equal(t, "hi", turns[0].Content)
	assert.Equal(t, session.RoleAssistant, turns[1].Role)
	assert.Equal(t, "hello there", turns[1].Content)
}

func TestChatNeverInterpretsOperationBlocks(t *testing.T) {
	reply := "You could write:\n```op=create path=x.go\npackage x\n```\n"
	model := &scriptedModel{streams: []streamScript{{text: reply, done: true}}}
	f := newFixture(t, model, nil)

	out, err := f.control.HandleInput(context.Background(), "how would I create x.go?")
	require.NoError(t, err)
	assert.Nil(t, out.Plan)
	assert.Nil(t, out.Diffs)
	assert.False(t, f.ws.Exists("x.go"))
}

func TestChatCancelledStreamCommitsPartialTurns(t *testing.T) {
	model := &scriptedModel{streams: []streamScript{{text: "partial answ"}}}
	f := newFixture(t, model, nil)

	out, err := f.control.HandleInput(context.Background(), "explain this")
	require.NoError(t, err)
	assert.True(t, out.Incomplete)
	assert.Equal(t, "partial answ", out.Reply)

	turns := f.mem.Turns()
	require.Len(t, turns, 2)
	assert.True(t, turns[1].Incomplete)
}

func TestChatTransportFailureLeavesHistoryUntouched(t *testing.T) {
	model := &scriptedModel{streams: []streamScript{{err: errors.New("connection refused")}}}
	f := newFixture(t, model, nil)

	_, err := f.control.HandleInput(context.Background(), "hi")
	require.Error(t, err)
	assert.Zero(t, f.mem.Len())
}

func TestAgentAppliesApprovedPlan(t *testing.T) {
	model := &scriptedModel{
		planReply: "1. Create greet.go",
		streams:   []streamScript{{text: goodPlanText, done: true}},
	}
	f := newFixture(t, model, []approval.Decision{{Verdict: approval.VerdictYes}})
	ctx := context.Background()

	_, err := f.control.HandleInput(ctx, "agent")
	require.NoError(t, err)
	out, err := f.control.HandleInput(ctx, "add a greeting file")
	require.NoError(t, err)

	assert.Equal(t, []string{"Create greet.go"}, out.PlanSteps)
	require.NotNil(t, out.Plan)
	require.Len(t, out.Plan.Operations, 1)
	assert.Equal(t, plan.OpCreate, out.Plan.Operations[0].Kind)
	assert.Equal(t, approval.VerdictYes, out.Verdict)
	require.NotNil(t, out.Apply)
	assert.True(t, out.Apply.Ok())

	data, err := f.ws.Read("greet.go")
	require.NoError(t, err)
	assert.Equal(t, "package main\n", string(data))

	turns := f.mem.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, session.ModeAgent, turns[0].Mode)
}

func TestAgentEmptyPlanSkipsApprovalGate(t *testing.T) {
	model := &scriptedModel{
		planReply: "1. Inspect",
		streams:   []streamScript{{text: "No changes are needed, the file already exists.", done: true}},
	}
	f := newFixture(t, model, nil)
	ctx := context.Background()

	_, err := f.control.HandleInput(ctx, "agent")
	require.NoError(t, err)
	out, err := f.control.HandleInput(ctx, "make sure greet.go exists")
	require.NoError(t, err)

	require.NotNil(t, out.Plan)
	assert.True(t, out.Plan.Empty())
	assert.Empty(t, f.summaries)
	assert.Nil(t, out.Apply)
}

func TestAgentParseFailureRetriesThenSucceeds(t *testing.T) {
	model := &scriptedModel{
		planReply: "1. Create greet.go",
		streams:   []streamScript{{text: "```op=make path=greet.go\noops\n```", done: true}},
		chatReply: goodPlanText,
	}
	f := newFixture(t, model, []approval.Decision{{Verdict: approval.VerdictYes}})
	ctx := context.Background()

	_, err := f.control.HandleInput(ctx, "agent")
	require.NoError(t, err)
	out, err := f.control.HandleInput(ctx, "add a greeting file")
	require.NoError(t, err)

	assert.Equal(t, 1, model.chatCalls)
	require.NotNil(t, out.Apply)
	assert.True(t, out.Apply.Ok())
	assert.True(t, f.ws.Exists("greet.go"))
}

func TestAgentParseFailureAfterRetrySurfacesError(t *testing.T) {
	model := &scriptedModel{
		planReply: "1. Create greet.go",
		streams:   []streamScript{{text: "```op=create path=greet.go\nnever closed", done: true}},
		chatReply: "```op=create path=greet.go\nstill not closed",
	}
	f := newFixture(t, model, nil)
	ctx := context.Background()

	_, err := f.control.HandleInput(ctx, "agent")
	require.NoError(t, err)
	out, err := f.control.HandleInput(ctx, "add a greeting file")

	var perr *plan.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, plan.ReasonAmbiguousBlock, perr.Reason)
	assert.Equal(t, 1, model.chatCalls)
	assert.False(t, f.ws.Exists("greet.go"))

	// The unparseable reply still joined history as a completed turn.
	require.NotNil(t, out)
	turns := f.mem.Turns()
	require.Len(t, turns, 2)
	assert.False(t, turns[1].Incomplete)
}

func TestAgentDiscardsOnNoVerdict(t *testing.T) {
	model := &scriptedModel{
		planReply: "1. Create greet.go",
		streams:   []streamScript{{text: goodPlanText, done: true}},
	}
	f := newFixture(t, model, []approval.Decision{{Verdict: approval.VerdictNo}})
	ctx := context.Background()

	_, err := f.control.HandleInput(ctx, "agent")
	require.NoError(t, err)
	out, err := f.control.HandleInput(ctx, "add a greeting file")
	require.NoError(t, err)

	assert.Equal(t, approval.VerdictNo, out.Verdict)
	assert.Nil(t, out.Apply)
	assert.False(t, f.ws.Exists("greet.go"))
}

func TestAgentRetryVerdictRerunsWithNewInstruction(t *testing.T) {
	model := &scriptedModel{
		planReply: "1. Create greet.go",
		streams: []streamScript{
			{text: goodPlanText, done: true},
			{text: "Second attempt.\n```op=create path=greet2.go\npackage main\n```\n", done: true},
		},
	}
	f := newFixture(t, model, []approval.Decision{
		{Verdict: approval.VerdictRetry, Instruction: "name it greet2.go instead"},
		{Verdict: approval.VerdictYes},
	})
	ctx := context.Background()

	_, err := f.control.HandleInput(ctx, "agent")
	require.NoError(t, err)
	out, err := f.control.HandleInput(ctx, "add a greeting file")
	require.NoError(t, err)

	require.Len(t, f.summaries, 2)
	assert.Equal(t, "add a greeting file", f.summaries[0])
	assert.Equal(t, "name it greet2.go instead", f.summaries[1])

	assert.Equal(t, approval.VerdictYes, out.Verdict)
	assert.False(t, f.ws.Exists("greet.go"))
	assert.True(t, f.ws.Exists("greet2.go"))
}

func TestAgentCancelledStreamRecordsIncompleteTurn(t *testing.T) {
	model := &scriptedModel{
		planReply: "1. Create greet.go",
		streams:   []streamScript{{text: "Half a respo"}},
	}
	f := newFixture(t, model, nil)
	ctx := context.Background()

	_, err := f.control.HandleInput(ctx, "agent")
	require.NoError(t, err)
	out, err := f.control.HandleInput(ctx, "add a greeting file")
	require.NoError(t, err)

	assert.True(t, out.Incomplete)
	assert.Empty(t, f.summaries)
	turns := f.mem.Turns()
	require.Len(t, turns, 2)
	assert.True(t, turns[1].Incomplete)
}
