package reply

import "strings"

type Command string

const (
	CommandWelcome Command = KeyWelcome
	CommandHelp    Command = KeyHelp
	CommandInfo    Command = KeyInfo
)

var commandWords = map[string]Command{
	"start":    CommandWelcome,
	"hello":    CommandWelcome,
	"hi":       CommandWelcome,
	"bonjour":  CommandWelcome,
	"salut":    CommandWelcome,
	"help":     CommandHelp,
	"aide":     CommandHelp,
	"?":        CommandHelp,
	"info":     CommandInfo,
	"about":    CommandInfo,
	"à propos": CommandInfo,
}

// ParseCommand matches the whole body, case-insensitively and with an optional
// leading slash, against the built-in command words.
func ParseCommand(body string) (Command, bool) {
	word := strings.ToLower(strings.TrimSpace(body))
	word = strings.TrimPrefix(word, "/")
	cmd, ok := commandWords[word]
	return cmd, ok
}
