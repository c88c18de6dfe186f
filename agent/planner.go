package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/lexcodex/quill/llm"
)

// Planner turns a user request into an advisory step-by-step plan shown to
// the operator before code generation. The steps are display text, never
// file operations; only the plan parser produces those.
type Planner struct {
	Model Generator
}

// CreatePlan asks for a numbered plan and parses it leniently.
func (p *Planner) CreatePlan(ctx context.Context, request string) ([]string, error) {
	prompt := fmt.Sprintf("User request:\n%s\n\nProduce a numbered step-by-step plan.", request)
	resp, err := p.Model.Generate(ctx, llm.BaseSystemPrompt+"\n\n"+llm.PlannerSystemPrompt+"\n\n"+prompt, &llm.Options{
		Temperature: 0.1,
	})
	if err != nil {
		return nil, err
	}
	return parseSteps(resp.Text), nil
}

// parseSteps keeps lines shaped like "1. step" or "2) step". Advisory
// output, so unlabeled lines are simply skipped rather than rejected.
func parseSteps(text string) []string {
	var steps []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line[0] < '0' || line[0] > '9' {
			continue
		}
		step := strings.TrimSpace(strings.TrimLeft(line, "0123456789.) "))
		if step != "" {
			steps = append(steps, step)
		}
	}
	return steps
}
