package apply

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lexcodex/quill/approval"
	"github.com/lexcodex/quill/plan"
	"github.com/lexcodex/quill/workspace"
)

// ErrNotApproved guards the gate: the coordinator never writes without an
// explicit yes verdict from the operator.
var ErrNotApproved = errors.New("plan has not been approved")

// Result is the outcome of one apply attempt. The only terminal outcomes
// surfaced to the operator are full success and full rollback; anything else
// is a RollbackError.
type Result struct {
	Succeeded  []plan.FileOperation
	Failed     *plan.FileOperation
	RolledBack bool
}

// Ok reports full success.
func (r *Result) Ok() bool { return r.Failed == nil }

// RollbackError is the one failure the coordinator cannot self-heal: a write
// failed and restoring one or more pre-apply snapshots failed too. The
// workspace needs manual inspection and the message says so plainly.
type RollbackError struct {
	Failed     plan.FileOperation
	Cause      error
	Unrestored []string
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf(
		"apply of %s %s failed (%v) and rollback could not restore: %s; workspace requires manual inspection",
		e.Failed.Kind, e.Failed.Path, e.Cause, strings.Join(e.Unrestored, ", "),
	)
}

// Coordinator applies an approved plan with all-or-nothing semantics:
// stage and validate everything first, then commit in plan order, rolling
// back already-written files in reverse order if a write fails.
type Coordinator struct {
	ws *workspace.Workspace
}

// NewCoordinator builds a coordinator over the workspace.
func NewCoordinator(ws *workspace.Workspace) *Coordinator {
	return &Coordinator{ws: ws}
}

type stagedOp struct {
	op       plan.FileOperation
	existed  bool
	preimage []byte
}

// Apply runs the approved plan. Staging problems (stale targets, unreadable
// files, unsafe paths) fail the whole apply before any byte is written.
func (c *Coordinator) Apply(ctx context.Context, p *plan.EditPlan, decision *approval.Decision) (*Result, error) {
	if !decision.Approved() {
		return nil, ErrNotApproved
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	staged, err := c.stage(p)
	if err != nil {
		return nil, err
	}
	return c.commit(staged)
}

// stage reads and validates every target, capturing pre-apply snapshots for
// rollback. No disk mutation happens here.
func (c *Coordinator) stage(p *plan.EditPlan) ([]stagedOp, error) {
	staged := make([]stagedOp, 0, len(p.Operations))
	for _, op := range p.Operations {
		if _, err := c.ws.Resolve(op.Path); err != nil {
			return nil, err
		}
		current, err := c.ws.Read(op.Path)
		missing := errors.Is(err, workspace.ErrNotFound)
		if err != nil && !missing {
			return nil, fmt.Errorf("stage %s: %w", op.Path, err)
		}
		switch op.Kind {
		case plan.OpModify, plan.OpDelete:
			if missing {
				return nil, fmt.Errorf("%w: %s %s: file does not exist", workspace.ErrStaleTarget, op.Kind, op.Path)
			}
		case plan.OpCreate:
		default:
			return nil, fmt.Errorf("unknown operation kind %q", op.Kind)
		}
		staged = append(staged, stagedOp{op: op, existed: !missing, preimage: current})
	}
	return staged, nil
}

// commit writes operations in order. On the first failure it restores every
// file written so far, in reverse order, from the staged snapshots.
func (c *Coordinator) commit(staged []stagedOp) (*Result, error) {
	result := &Result{}
	for i, s := range staged {
		if err := c.write(s); err != nil {
			failed := s.op
			result.Failed = &failed
			unrestored := c.rollback(staged[:i])
			if len(unrestored) > 0 {
				return result, &RollbackError{Failed: failed, Cause: err, Unrestored: unrestored}
			}
			result.Succeeded = nil
			result.RolledBack = true
			return result, nil
		}
		result.Succeeded = append(result.Succeeded, s.op)
	}
	return result, nil
}

// write commits one staged operation. A modify whose target vanished after
// staging must fail the op rather than recreate the file, so existence is
// re-checked against the staged snapshot before writing.
func (c *Coordinator) write(s stagedOp) error {
	switch s.op.Kind {
	case plan.OpCreate:
		return c.ws.Write(s.op.Path, []byte(s.op.Content))
	case plan.OpModify:
		if s.existed && !c.ws.Exists(s.op.Path) {
			return fmt.Errorf("%w: modify %s: file vanished since staging", workspace.ErrStaleTarget, s.op.Path)
		}
		return c.ws.Write(s.op.Path, []byte(s.op.Content))
	case plan.OpDelete:
		return c.ws.Delete(s.op.Path)
	default:
		return fmt.Errorf("unknown operation kind %q", s.op.Kind)
	}
}

// rollback restores written operations in reverse order and returns the
// paths it could not restore.
func (c *Coordinator) rollback(written []stagedOp) []string {
	var unrestored []string
	for i := len(written) - 1; i >= 0; i-- {
		s := written[i]
		var err error
		if s.existed {
			err = c.ws.Write(s.op.Path, s.preimage)
		} else {
			err = c.ws.Delete(s.op.Path)
			if errors.Is(err, workspace.ErrNotFound) {
				err = nil
			}
		}
		if err != nil {
			unrestored = append(unrestored, s.op.Path)
		}
	}
	return unrestored
}
