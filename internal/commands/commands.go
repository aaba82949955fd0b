// Package commands handles slash command parsing for the avatar TUI.
package commands

import (
	"strings"
)

// Command interface for all command types
type Command interface {
	Type() string
}

// Help returns help text
type Help struct{}

func (Help) Type() string { return "help" }

// Clear wipes the conversation timeline
type Clear struct{}

func (Clear) Type() string { return "clear" }

// SetMode switches between single and group chat
type SetMode struct {
	Mode string // single or group
}

func (SetMode) Type() string { return "mode" }

// ListProviders lists the configured group providers
type ListProviders struct{}

func (ListProviders) Type() string { return "providers" }

// ShowRate shows the current USD to CNY exchange rate
type ShowRate struct {
	Force bool
}

func (ShowRate) Type() string { return "rate" }

// Reconnect restarts the websocket connection after a terminal failure
type Reconnect struct{}

func (Reconnect) Type() string { return "reconnect" }

// ShowHistory shows persisted conversation history
type ShowHistory struct{}

func (ShowHistory) Type() string { return "history" }

// Export writes the conversation transcript to a markdown file
type Export struct{}

func (Export) Type() string { return "export" }

// Quit exits the program
type Quit struct{}

func (Quit) Type() string { return "quit" }

// ParseError represents a command parsing error
type ParseError struct {
	Message string
}

func (ParseError) Type() string { return "error" }

// Parse parses user input and returns the appropriate Command.
// Returns nil if the input is not a slash command.
func Parse(input string) Command {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return nil
	}

	parts := strings.Fields(input)
	if len(parts) == 0 {
		return nil
	}

	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "/help":
		return Help{}

	case "/clear":
		return Clear{}

	case "/mode":
		if len(args) == 0 {
			return ParseError{Message: "/mode requires an argument: single or group"}
		}
		mode := strings.ToLower(args[0])
		if mode != "single" && mode != "group" {
			return ParseError{Message: "unknown mode: " + mode}
		}
		return SetMode{Mode: mode}

	case "/providers":
		return ListProviders{}

	case "/rate":
		force := len(args) > 0 && strings.ToLower(args[0]) == "update"
		return ShowRate{Force: force}

	case "/reconnect":
		return Reconnect{}

	case "/history":
		return ShowHistory{}

	case "/export":
		return Export{}

	case "/quit", "/exit":
		return Quit{}

	default:
		return ParseError{Message: "unknown command: " + cmd}
	}
}

// HelpText returns the help text for all available commands.
func HelpText() string {
	return `Available commands:
  /help                - Show this help
  /clear               - Clear the conversation
  /mode single|group   - Switch chat mode
  /providers           - List configured group providers
  /rate [update]       - Show the USD/CNY rate (update forces a refresh)
  /reconnect           - Reconnect after a failed connection
  /history             - Show persisted conversation history
  /export              - Export the conversation to markdown
  /quit                - Exit`
}
