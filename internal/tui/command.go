package tui

import (
	"fmt"
	"strings"

	"github.com/matheus3301/peerchat/internal/store"
)

// Command represents a parsed command.
type Command struct {
	Name string
	Args string
}

// ParseCommand parses a command string (without the leading ':').
func ParseCommand(input string) Command {
	input = strings.TrimSpace(input)
	parts := strings.SplitN(input, " ", 2)
	cmd := Command{Name: strings.ToLower(parts[0])}
	if len(parts) > 1 {
		cmd.Args = strings.TrimSpace(parts[1])
	}
	return cmd
}

// Action is what a line typed into the composer asks for.
type Action struct {
	Send   *store.Payload
	Reload bool
	Close  bool
}

// ParseInput turns composer text into an action. Plain text is a message;
// a leading ':' starts a command.
func ParseInput(text string) (Action, error) {
	if !strings.HasPrefix(text, ":") {
		return Action{Send: &store.Payload{Text: text}}, nil
	}
	cmd := ParseCommand(text[1:])
	switch cmd.Name {
	case "image", "img":
		if cmd.Args == "" {
			return Action{}, fmt.Errorf("usage: :image <url> [caption]")
		}
		url, caption, _ := strings.Cut(cmd.Args, " ")
		return Action{Send: &store.Payload{Image: url, Text: strings.TrimSpace(caption)}}, nil
	case "reload", "r":
		return Action{Reload: true}, nil
	case "close", "q":
		return Action{Close: true}, nil
	default:
		return Action{}, fmt.Errorf("unknown command %q", cmd.Name)
	}
}
