package webhook

import "github.com/park285/xo-kenar-bot/internal/util"

type Command int

const (
	CommandPlainMove Command = iota
	CommandRestart
	CommandAskAssistant
)

// Commands holds the chat prefixes the dispatcher recognises.
type Commands struct {
	Restart string
	Ask     string
}

func DefaultCommands() Commands { return Commands{Restart: "/restart", Ask: "/ask"} }

// Parse classifies text. For CommandAskAssistant, arg is the question with its
// original casing.
func (c Commands) Parse(text string) (cmd Command, arg string) {
	if _, ok := util.HasCommandPrefix(text, c.Restart); ok {
		return CommandRestart, ""
	}
	if rest, ok := util.HasCommandPrefix(text, c.Ask); ok {
		return CommandAskAssistant, rest
	}
	return CommandPlainMove, ""
}
