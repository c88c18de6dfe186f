package agent

// Notifier receives live progress from the pipeline so the presentation
// layer can render streaming output. Everything else (plans, diffs, apply
// results) arrives in the Outcome once the turn settles.
type Notifier interface {
	Status(stage, message string)
	Token(text string)
}

// NopNotifier discards all signals.
type NopNotifier struct{}

func (NopNotifier) Status(stage, message string) {}
func (NopNotifier) Token(text string)            {}
