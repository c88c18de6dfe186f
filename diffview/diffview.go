package diffview

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/lexcodex/quill/plan"
	"github.com/lexcodex/quill/workspace"
)

// Class labels how risky an operation is for the reviewer.
type Class string

const (
	// ClassAdditive only adds content.
	ClassAdditive Class = "additive"
	// ClassDestructive removes at least one existing non-blank line.
	ClassDestructive Class = "destructive-overwrite"
	// ClassDeletion removes the file.
	ClassDeletion Class = "deletion"
)

// Diff is the reviewable delta for one operation. Presentation-only and
// never persisted.
type Diff struct {
	Op      plan.FileOperation
	Class   Class
	Unified string
}

// Engine computes diffs against on-disk state read at computation time, not
// at plan-parse time, so edits made outside the session surface as conflicts
// instead of being clobbered.
type Engine struct {
	ws *workspace.Workspace
}

// NewEngine builds an engine over the workspace.
func NewEngine(ws *workspace.Workspace) *Engine {
	return &Engine{ws: ws}
}

// Compute produces the diff for a single operation. A modify or delete whose
// target is gone returns ErrStaleTarget: the plan no longer matches the
// workspace and must be re-presented or aborted, never coerced into a create.
func (e *Engine) Compute(op plan.FileOperation) (*Diff, error) {
	current, err := e.ws.Read(op.Path)
	missing := errors.Is(err, workspace.ErrNotFound)
	if err != nil && !missing {
		return nil, err
	}

	switch op.Kind {
	case plan.OpCreate:
		if missing {
			return &Diff{
				Op:      op,
				Class:   ClassAdditive,
				Unified: unified("", op.Content, "/dev/null", "b/"+op.Path),
			}, nil
		}
		// Creating over an existing file is reviewed like a modify.
		return &Diff{
			Op:      op,
			Class:   classify(string(current), op.Content),
			Unified: unified(string(current), op.Content, "a/"+op.Path, "b/"+op.Path),
		}, nil
	case plan.OpModify:
		if missing {
			return nil, fmt.Errorf("%w: modify %s: file does not exist", workspace.ErrStaleTarget, op.Path)
		}
		return &Diff{
			Op:      op,
			Class:   classify(string(current), op.Content),
			Unified: unified(string(current), op.Content, "a/"+op.Path, "b/"+op.Path),
		}, nil
	case plan.OpDelete:
		if missing {
			return nil, fmt.Errorf("%w: delete %s: file does not exist", workspace.ErrStaleTarget, op.Path)
		}
		return &Diff{
			Op:      op,
			Class:   ClassDeletion,
			Unified: unified(string(current), "", "a/"+op.Path, "/dev/null"),
		}, nil
	default:
		return nil, fmt.Errorf("unknown operation kind %q", op.Kind)
	}
}

// ComputePlan diffs every operation in order, stopping at the first error.
func (e *Engine) ComputePlan(p *plan.EditPlan) ([]*Diff, error) {
	diffs := make([]*Diff, 0, len(p.Operations))
	for _, op := range p.Operations {
		d, err := e.Compute(op)
		if err != nil {
			return nil, err
		}
		diffs = append(diffs, d)
	}
	return diffs, nil
}

// classify is destructive when the proposed content drops any existing
// non-blank line, additive otherwise.
func classify(old, proposed string) Class {
	aLines := difflib.SplitLines(old)
	matcher := difflib.NewMatcher(aLines, difflib.SplitLines(proposed))
	for _, opcode := range matcher.GetOpCodes() {
		if opcode.Tag != 'd' && opcode.Tag != 'r' {
			continue
		}
		for _, line := range aLines[opcode.I1:opcode.I2] {
			if strings.TrimSpace(line) != "" {
				return ClassDestructive
			}
		}
	}
	return ClassAdditive
}

func unified(old, proposed, fromFile, toFile string) string {
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(old),
		B:        difflib.SplitLines(proposed),
		FromFile: fromFile,
		ToFile:   toFile,
		Context:  3,
	})
	if err != nil {
		return ""
	}
	return text
}
