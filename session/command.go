package session

import "strings"

// Command is an explicit operator directive recognized by the input loop.
type Command int

const (
	// CommandNone means the input is free text for the active mode.
	CommandNone Command = iota
	// CommandChat switches to conversational mode.
	CommandChat
	// CommandAgent switches to the agent pipeline.
	CommandAgent
	// CommandExit terminates the session.
	CommandExit
)

// ParseCommand recognizes the reserved commands. Anything else is free text
// routed to whichever mode is active; a structured-looking message typed in
// chat mode stays a chat message.
func ParseCommand(input string) Command {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "chat":
		return CommandChat
	case "agent":
		return CommandAgent
	case "exit", "quit":
		return CommandExit
	default:
		return CommandNone
	}
}

// Dispatch applies a command to the session and reports whether the input was
// consumed. CommandNone leaves the session untouched.
func (s *Session) Dispatch(cmd Command) bool {
	switch cmd {
	case CommandChat:
		s.SetMode(ModeChat)
	case CommandAgent:
		s.SetMode(ModeAgent)
	case CommandExit:
		s.Close()
	default:
		return false
	}
	return true
}
