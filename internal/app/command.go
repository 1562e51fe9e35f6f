package app

import (
	"regexp"
	"strconv"
	"strings"
)

// Inbound text is parsed once into a closed set of variants and
// dispatched by type switch. A recognized verb with a malformed tail
// is its own variant so the pipeline can answer with the matching
// system_message instead of posting the text as chat.
type command interface {
	isCommand()
}

type chatText struct {
	text string
}

type muteCmd struct {
	uname string
	mins  int
}

type unmuteCmd struct {
	uname string
}

type invalidCmd struct {
	reason string
}

func (chatText) isCommand()   {}
func (muteCmd) isCommand()    {}
func (unmuteCmd) isCommand()  {}
func (invalidCmd) isCommand() {}

var (
	unmuteRe = regexp.MustCompile(`(?i)^/unmute ([a-z0-9_]+)$`)
	muteRe   = regexp.MustCompile(`(?i)^/mute ([a-z0-9_]+) ([0-9]+)$`)
)

func parseCommand(text string) command {
	switch {
	case strings.HasPrefix(text, "/unmute"):
		m := unmuteRe.FindStringSubmatch(text)
		if m == nil {
			return invalidCmd{reason: "Invalid unmute command"}
		}
		return unmuteCmd{uname: m[1]}
	case strings.HasPrefix(text, "/mute"):
		m := muteRe.FindStringSubmatch(text)
		if m == nil {
			return invalidCmd{reason: "Invalid mute command"}
		}
		mins, err := strconv.Atoi(m[2])
		if err != nil {
			// only reachable on overflow of the digits capture
			return invalidCmd{reason: "Invalid mute command"}
		}
		return muteCmd{uname: m[1], mins: mins}
	default:
		return chatText{text: text}
	}
}
