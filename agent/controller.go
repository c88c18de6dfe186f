package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lexcodex/quill/apply"
	"github.com/lexcodex/quill/approval"
	"github.com/lexcodex/quill/diffview"
	"github.com/lexcodex/quill/llm"
	"github.com/lexcodex/quill/memory"
	"github.com/lexcodex/quill/plan"
	"github.com/lexcodex/quill/session"
	"github.com/lexcodex/quill/workspace"
)

// ErrSessionClosed is returned for input after the exit command.
var ErrSessionClosed = errors.New("session is closed")

// Generator is the single-prompt completion surface. Satisfied by
// *llm.Client.
type Generator interface {
	Generate(ctx context.Context, prompt string, options *llm.Options) (*llm.Response, error)
}

// Model is the full inference surface the controller needs.
type Model interface {
	Generator
	Chat(ctx context.Context, messages []llm.Message, options *llm.Options) (*llm.Response, error)
	ChatStream(ctx context.Context, messages []llm.Message, options *llm.Options) (<-chan llm.Chunk, error)
}

// Outcome is what one handled input produced, for the presentation layer to
// render. Fields are populated as far as the turn got.
type Outcome struct {
	Mode       session.Mode
	Note       string // command feedback (mode switch, exit)
	Reply      string
	Incomplete bool
	PlanSteps  []string
	Plan       *plan.EditPlan
	Diffs      []*diffview.Diff
	Verdict    approval.Verdict
	Apply      *apply.Result
}

// Controller routes operator input through the session state machine into
// the chat or agent pipeline. All mutation is synchronous with the single
// active operation; there is no background work.
type Controller struct {
	cfg       *Config
	model     Model
	mem       *memory.Manager
	sess      *session.Session
	differ    *diffview.Engine
	coord     *apply.Coordinator
	approvals *approval.Broker
	planner   *Planner
	notify    Notifier
}

// NewController wires the pipeline over a workspace-scoped session.
func NewController(cfg *Config, model Model, mem *memory.Manager, sess *session.Session, ws *workspace.Workspace, approvals *approval.Broker, notify Notifier) *Controller {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if notify == nil {
		notify = NopNotifier{}
	}
	return &Controller{
		cfg:       cfg,
		model:     model,
		mem:       mem,
		sess:      sess,
		differ:    diffview.NewEngine(ws),
		coord:     apply.NewCoordinator(ws),
		approvals: approvals,
		planner:   &Planner{Model: model},
		notify:    notify,
	}
}

// Session exposes the underlying session for status rendering.
func (c *Controller) Session() *session.Session { return c.sess }

// Approvals exposes the broker so the UI can resolve pending requests.
func (c *Controller) Approvals() *approval.Broker { return c.approvals }

// HandleInput processes one line of operator input. Mode commands apply
// immediately (we are by definition between turns here); free text runs the
// pipeline for the active mode. Structured-looking text typed in chat mode
// stays chat: the plan parser only ever runs in agent mode.
func (c *Controller) HandleInput(ctx context.Context, input string) (*Outcome, error) {
	if c.sess.Closed() {
		return nil, ErrSessionClosed
	}
	switch cmd := session.ParseCommand(input); cmd {
	case session.CommandChat:
		c.sess.Dispatch(cmd)
		return &Outcome{Mode: c.sess.Mode(), Note: "switched to chat mode"}, nil
	case session.CommandAgent:
		c.sess.Dispatch(cmd)
		return &Outcome{Mode: c.sess.Mode(), Note: "switched to agent mode"}, nil
	case session.CommandExit:
		c.sess.Dispatch(cmd)
		return &Outcome{Mode: c.sess.Mode(), Note: "session terminated"}, nil
	}
	if strings.TrimSpace(input) == "" {
		return &Outcome{Mode: c.sess.Mode()}, nil
	}
	if c.sess.Mode() == session.ModeChat {
		return c.runChat(ctx, input)
	}
	return c.runAgent(ctx, input)
}

// runChat is one conversational exchange. Transport and context errors abort
// the turn with the session unchanged; only a cancelled stream that already
// showed text commits turns, marked incomplete.
func (c *Controller) runChat(ctx context.Context, input string) (*Outcome, error) {
	messages, err := c.mem.BuildPrompt(ctx, input)
	if err != nil {
		return nil, err
	}
	payload := withSystem(llm.BaseSystemPrompt+"\n\n"+llm.ChatSystemPrompt, messages)
	c.notify.Status("chat", "thinking")
	stream, err := c.model.ChatStream(ctx, payload, c.options(0.7))
	if err != nil {
		return nil, err
	}
	result := llm.Collect(stream, c.notify.Token)
	if result.Err != nil && result.Text == "" {
		return nil, result.Err
	}
	incomplete := result.Incomplete || result.Err != nil
	c.sess.RecordUser(input)
	c.sess.RecordAssistant(result.Text, incomplete)
	return &Outcome{Mode: session.ModeChat, Reply: result.Text, Incomplete: incomplete}, result.Err
}

// runAgent drives plan → generate → parse → diff → approve → apply, looping
// when the operator answers the gate with an edited instruction.
func (c *Controller) runAgent(ctx context.Context, instruction string) (*Outcome, error) {
	for {
		out, retry, err := c.agentTurn(ctx, instruction)
		if err != nil || retry == "" {
			return out, err
		}
		instruction = retry
	}
}

func (c *Controller) agentTurn(ctx context.Context, instruction string) (*Outcome, string, error) {
	c.notify.Status("plan", "analyzing task")
	steps, err := c.planner.CreatePlan(ctx, instruction)
	if err != nil {
		return nil, "", err
	}

	request := instruction
	if len(steps) > 0 {
		request = instruction + "\n\nPlan:\n" + numbered(steps)
	}
	messages, err := c.mem.BuildPrompt(ctx, request)
	if err != nil {
		return nil, "", err
	}
	payload := withSystem(llm.BaseSystemPrompt+"\n\n"+llm.CoderSystemPrompt, messages)

	c.notify.Status("generate", "creating code changes")
	stream, err := c.model.ChatStream(ctx, payload, c.options(0.1))
	if err != nil {
		return nil, "", err
	}
	result := llm.Collect(stream, c.notify.Token)
	if result.Err != nil && result.Text == "" {
		return nil, "", result.Err
	}
	if result.Incomplete || result.Err != nil {
		c.sess.RecordUser(instruction)
		c.sess.RecordAssistant(result.Text, true)
		return &Outcome{Mode: session.ModeAgent, PlanSteps: steps, Reply: result.Text, Incomplete: true}, "", result.Err
	}

	raw := result.Text
	editPlan, perr := plan.Parse(sanitizeResponse(raw))
	if perr != nil {
		// One firmer retry at low temperature before giving up; model
		// output is unreliable and a single nudge often fixes it.
		c.notify.Status("generate", "output not parseable, retrying once")
		if retried, rerr := c.regenerate(ctx, payload); rerr == nil {
			if p2, e2 := plan.Parse(sanitizeResponse(retried)); e2 == nil {
				raw, editPlan, perr = retried, p2, nil
			}
		}
	}

	// The raw reply joins history as a completed turn even when it was not
	// actionable: the conversation is not lost to a parse failure.
	c.sess.RecordUser(instruction)
	c.sess.RecordAssistant(raw, false)

	out := &Outcome{Mode: session.ModeAgent, PlanSteps: steps, Reply: raw}
	if perr != nil {
		return out, "", perr
	}
	out.Plan = editPlan
	out.Reply = editPlan.Rationale
	if editPlan.Empty() {
		c.notify.Status("plan", "no changes proposed")
		return out, "", nil
	}

	diffs, err := c.differ.ComputePlan(editPlan)
	if err != nil {
		return out, "", err
	}
	out.Diffs = diffs

	decision, err := c.approvals.Await(ctx, approval.Request{Summary: instruction, Diffs: diffs})
	if err != nil {
		return out, "", err
	}
	out.Verdict = decision.Verdict

	switch decision.Verdict {
	case approval.VerdictYes:
		res, err := c.coord.Apply(ctx, editPlan, decision)
		out.Apply = res
		return out, "", err
	case approval.VerdictRetry:
		next := strings.TrimSpace(decision.Instruction)
		if next == "" {
			next = instruction
		}
		return out, next, nil
	default:
		c.notify.Status("apply", "changes discarded")
		return out, "", nil
	}
}

// regenerate re-asks without streaming, with a blunt reminder appended.
func (c *Controller) regenerate(ctx context.Context, payload []llm.Message) (string, error) {
	reminder := llm.Message{
		Role:    "user",
		Content: "REMINDER: emit file operations ONLY as ```op=... path=...``` fenced blocks, one per file, exactly as instructed.",
	}
	resp, err := c.model.Chat(ctx, append(payload, reminder), c.options(0.05))
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (c *Controller) options(temperature float64) *llm.Options {
	return &llm.Options{
		Model:       c.cfg.Model.Name,
		Temperature: temperature,
		MaxTokens:   c.cfg.Model.MaxTokens,
	}
}

func withSystem(system string, messages []llm.Message) []llm.Message {
	out := make([]llm.Message, 0, len(messages)+1)
	out = append(out, llm.Message{Role: "system", Content: system})
	return append(out, messages...)
}

func numbered(steps []string) string {
	var b strings.Builder
	for i, step := range steps {
		fmt.Fprintf(&b, "%d. %s\n", i+1, step)
	}
	return b.String()
}
