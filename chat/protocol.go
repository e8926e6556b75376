package chat

import (
	"fmt"
	"strings"
)

// NickPrefix starts a nickname command. Matching is exact and case-sensitive.
const NickPrefix = "/nick "

// Welcome is the first line sent to a new session.
func Welcome(id uint32) string {
	return fmt.Sprintf("Welcome! Your ID is %d. Use '/nick NAME' to set a nickname.\n", id)
}

// Render formats a chat line for broadcast. line keeps its terminator.
func Render(name, line string) string {
	return name + "> " + line
}

// ParseNick reports whether line is a nickname command and returns the new
// name with surrounding whitespace, including the line terminator, removed.
func ParseNick(line string) (string, bool) {
	if !strings.HasPrefix(line, NickPrefix) {
		return "", false
	}

	return strings.TrimSpace(line[len(NickPrefix):]), true
}

// NickAck is the optional local confirmation of a nickname change.
func NickAck(name string) string {
	return fmt.Sprintf("You are now known as %s.\n", name)
}
