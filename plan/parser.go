package plan

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// Reason classifies why assistant text was rejected.
type Reason string

const (
	// ReasonAmbiguousBlock covers a missing/unknown operation kind, a
	// missing path, stray attributes, or an unterminated fence.
	ReasonAmbiguousBlock Reason = "ambiguous block"
	// ReasonUnsafePath covers absolute paths and traversal outside the
	// workspace root.
	ReasonUnsafePath Reason = "unsafe path"
	// ReasonConflictingOperations covers two blocks naming the same path.
	ReasonConflictingOperations Reason = "conflicting operations"
)

// ParseError reports which block failed and why. Model output is unreliable
// by nature (truncation, hallucinated syntax), so the parser rejects anything
// it cannot read unambiguously instead of guessing: guessing wrong means
// writing wrong files.
type ParseError struct {
	Reason Reason
	Line   int // 1-based line of the offending fence
	Path   string
	Detail string
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("%s at line %d", e.Reason, e.Line)
	if e.Path != "" {
		msg += fmt.Sprintf(" (path %q)", e.Path)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

const fenceMarker = "```"

// Parse converts assistant text into an EditPlan. Fenced blocks whose info
// string starts with "op=" are file operations; all other fences (```python
// and the like) are prose. Text with no operation blocks at all parses to an
// empty plan, a valid "no changes needed" answer rather than an error.
func Parse(text string) (*EditPlan, error) {
	lines := strings.Split(text, "\n")
	out := &EditPlan{}
	var prose []string
	seen := map[string]int{}

	for i := 0; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(trimmed, fenceMarker) {
			prose = append(prose, lines[i])
			continue
		}
		info := strings.TrimSpace(strings.TrimPrefix(trimmed, fenceMarker))
		fenceLine := i + 1
		body, next, closed := collectBody(lines, i+1)

		if !strings.HasPrefix(info, "op=") {
			// Ordinary code fence: prose, shown to the operator verbatim.
			prose = append(prose, lines[i])
			if closed {
				prose = append(prose, lines[i+1:next+1]...)
				i = next
			}
			continue
		}
		if !closed {
			return nil, &ParseError{Reason: ReasonAmbiguousBlock, Line: fenceLine, Detail: "unterminated block (output truncated?)"}
		}
		op, perr := parseInfo(info, fenceLine)
		if perr != nil {
			return nil, perr
		}
		normalized, perr := normalizePath(op.Path, fenceLine)
		if perr != nil {
			return nil, perr
		}
		op.Path = normalized
		if prev, dup := seen[normalized]; dup {
			return nil, &ParseError{
				Reason: ReasonConflictingOperations,
				Line:   fenceLine,
				Path:   normalized,
				Detail: fmt.Sprintf("also targeted by block at line %d", prev),
			}
		}
		seen[normalized] = fenceLine
		if op.Kind != OpDelete {
			op.Content = joinBody(body)
		}
		out.Operations = append(out.Operations, op)
		i = next
	}

	out.Rationale = strings.TrimSpace(strings.Join(prose, "\n"))
	return out, nil
}

// collectBody gathers lines until the closing fence. Returns the body, the
// index of the closing fence line, and whether one was found.
func collectBody(lines []string, start int) ([]string, int, bool) {
	for i := start; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == fenceMarker {
			return lines[start:i], i, true
		}
	}
	return nil, len(lines), false
}

func joinBody(body []string) string {
	if len(body) == 0 {
		return ""
	}
	return strings.Join(body, "\n") + "\n"
}

// parseInfo reads the fence info string. Exactly the attributes op and path
// are allowed; anything else is rejected rather than skipped.
func parseInfo(info string, line int) (FileOperation, *ParseError) {
	var op FileOperation
	for _, field := range strings.Fields(info) {
		key, value, found := strings.Cut(field, "=")
		if !found || value == "" {
			return op, &ParseError{Reason: ReasonAmbiguousBlock, Line: line, Detail: fmt.Sprintf("malformed attribute %q", field)}
		}
		switch key {
		case "op":
			switch OpKind(strings.ToLower(value)) {
			case OpCreate, OpModify, OpDelete:
				op.Kind = OpKind(strings.ToLower(value))
			default:
				return op, &ParseError{Reason: ReasonAmbiguousBlock, Line: line, Detail: fmt.Sprintf("unknown operation %q", value)}
			}
		case "path":
			op.Path = value
		default:
			return op, &ParseError{Reason: ReasonAmbiguousBlock, Line: line, Detail: fmt.Sprintf("unexpected attribute %q", key)}
		}
	}
	if op.Kind == "" {
		return op, &ParseError{Reason: ReasonAmbiguousBlock, Line: line, Detail: "missing operation kind"}
	}
	if op.Path == "" {
		return op, &ParseError{Reason: ReasonAmbiguousBlock, Line: line, Detail: "missing path"}
	}
	return op, nil
}

// normalizePath cleans the declared path and rejects anything that could
// resolve outside the workspace root. Purely lexical; the workspace layer
// re-checks at apply time.
func normalizePath(raw string, line int) (string, *ParseError) {
	candidate := strings.ReplaceAll(raw, "\\", "/")
	if path.IsAbs(candidate) || filepath.IsAbs(raw) || hasDrivePrefix(raw) {
		return "", &ParseError{Reason: ReasonUnsafePath, Line: line, Path: raw, Detail: "absolute path"}
	}
	cleaned := path.Clean(candidate)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", &ParseError{Reason: ReasonUnsafePath, Line: line, Path: raw, Detail: "resolves outside the workspace"}
	}
	return cleaned, nil
}

// hasDrivePrefix catches Windows-style absolute paths the model may emit
// even on other platforms.
func hasDrivePrefix(p string) bool {
	return len(p) >= 2 && p[1] == ':' &&
		(('a' <= p[0] && p[0] <= 'z') || ('A' <= p[0] && p[0] <= 'Z'))
}
