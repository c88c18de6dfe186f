package plan

import (
	"fmt"
	"strings"
)

// OpKind enumerates the file operation variants. Anything else fails parsing.
type OpKind string

const (
	OpCreate OpKind = "create"
	OpModify OpKind = "modify"
	OpDelete OpKind = "delete"
)

// FileOperation is one proposed change. Path is workspace-relative and
// normalized; Content is the full file body (empty for delete).
type FileOperation struct {
	Kind    OpKind
	Path    string
	Content string
}

// EditPlan is the structured result of parsing one agent-mode response.
// Operations apply in order; Rationale is the prose around the blocks.
type EditPlan struct {
	Operations []FileOperation
	Rationale  string
}

// Empty reports a valid "no changes needed" plan.
func (p *EditPlan) Empty() bool {
	return p == nil || len(p.Operations) == 0
}

// Render writes a plan back out in the fenced-block format the parser reads.
// Used when re-presenting a plan and for round-trip testing.
func (p *EditPlan) Render() string {
	var b strings.Builder
	if p.Rationale != "" {
		b.WriteString(p.Rationale)
		b.WriteString("\n\n")
	}
	for i, op := range p.Operations {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "```op=%s path=%s\n", op.Kind, op.Path)
		if op.Content != "" {
			b.WriteString(op.Content)
			if !strings.HasSuffix(op.Content, "\n") {
				b.WriteString("\n")
			}
		}
		b.WriteString("```\n")
	}
	return b.String()
}
