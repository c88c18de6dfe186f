package agent

import "strings"

// sanitizeResponse strips a stray outer Markdown fence some models wrap
// around the whole answer, which would otherwise hide the operation blocks
// inside it. Fences that declare an operation are left alone.
func sanitizeResponse(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) < 2 {
		return strings.TrimSpace(text)
	}
	first := strings.TrimSpace(lines[0])
	last := strings.TrimSpace(lines[len(lines)-1])
	if strings.HasPrefix(first, "```") && !strings.Contains(first, "op=") && last == "```" {
		inner := lines[1 : len(lines)-1]
		// Only unwrap when the outer fence actually encloses operation
		// blocks; otherwise it is legitimate prose code.
		if containsOpFence(inner) {
			return strings.TrimSpace(strings.Join(inner, "\n"))
		}
	}
	return strings.TrimSpace(text)
}

func containsOpFence(lines []string) bool {
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```op=") {
			return true
		}
	}
	return false
}
