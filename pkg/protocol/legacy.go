package protocol

import (
	"regexp"
	"strings"
)

// Legacy plain-text frames predate the tagged JSON payloads and are still sent
// for the general chat. Their wording (Portuguese on the reference server) is the
// wire format, so matching is verbatim; English forms are accepted alongside.
// Matchers run in order and the first hit wins.

// Legacy command forms the server's typing broadcaster emits
const (
	typingCommandPrefix = "/typing:"
	stopTypingCommand   = "/stop-typing"
)

var (
	joinLeavePattern = regexp.MustCompile(`^(.+?) (?:entrou no|saiu do|entered the|left the) chat\.$`)

	typingPattern = regexp.MustCompile(`^(.+?) (?:est(?:á|ão|a|ao)|is|are) (?:digitando|typing)\.\.\.$`)

	nobodyTypingPattern = regexp.MustCompile(`^(?:Ninguém est(?:á|ão|a|ao) digitando|Nobody is typing)\.$`)

	generalMessagePattern = regexp.MustCompile(`^\[(.*?)\] (.*?): ((?s:.*))$`)
)

type legacyMatcher struct {
	name  string
	match func(raw string) (InboundEvent, bool)
}

// legacyMatchers is the ordered compatibility table
var legacyMatchers = []legacyMatcher{
	{name: "join_leave", match: matchJoinLeave},
	{name: "typing_command", match: matchTypingCommand},
	{name: "typing_sentence", match: matchTypingSentence},
	{name: "general_message", match: matchGeneralMessage},
}

func decodeLegacy(raw string) InboundEvent {
	for _, m := range legacyMatchers {
		if event, ok := m.match(raw); ok {
			return event
		}
	}
	return Unrecognized{Raw: raw}
}

func matchJoinLeave(raw string) (InboundEvent, bool) {
	if isChatLine(raw) || !joinLeavePattern.MatchString(raw) {
		return nil, false
	}
	return SystemNotice{Text: raw}, true
}

func matchTypingCommand(raw string) (InboundEvent, bool) {
	if raw == stopTypingCommand {
		return TypingAggregate{Text: raw, Stopped: true}, true
	}
	if !strings.HasPrefix(raw, typingCommandPrefix) {
		return nil, false
	}
	users := splitUsers(strings.TrimPrefix(raw, typingCommandPrefix))
	if len(users) == 0 {
		return TypingAggregate{Text: raw, Stopped: true}, true
	}
	return TypingAggregate{Text: TypingSentence(users)}, true
}

func matchTypingSentence(raw string) (InboundEvent, bool) {
	if isChatLine(raw) {
		return nil, false
	}
	if nobodyTypingPattern.MatchString(raw) {
		return TypingAggregate{Text: raw, Stopped: true}, true
	}
	if typingPattern.MatchString(raw) {
		return TypingAggregate{Text: raw}, true
	}
	return nil, false
}

func matchGeneralMessage(raw string) (InboundEvent, bool) {
	m := generalMessagePattern.FindStringSubmatch(raw)
	if m == nil {
		return nil, false
	}
	msg := GeneralMessage{
		Sender:       m[2],
		Content:      m[3],
		RawTimestamp: m[1],
	}
	if ts, ok := ParseTimestamp(m[1]); ok {
		msg.Timestamp = ts
	}
	return msg, true
}

// isChatLine reports a bracketed timestamp prefix; such frames are chat
// lines even when the content reads like a notice or typing sentence
func isChatLine(raw string) bool {
	return strings.HasPrefix(raw, "[")
}

func splitUsers(list string) []string {
	var users []string
	for _, u := range strings.Split(list, ",") {
		if u = strings.TrimSpace(u); u != "" {
			users = append(users, u)
		}
	}
	return users
}

// TypingSentence renders the aggregate sentence the way the server words it:
// "a está digitando...", "a e b estão digitando...", "a, b e c estão digitando...".
func TypingSentence(users []string) string {
	switch len(users) {
	case 0:
		return "Ninguém está digitando."
	case 1:
		return users[0] + " está digitando..."
	default:
		head := strings.Join(users[:len(users)-1], ", ")
		return head + " e " + users[len(users)-1] + " estão digitando..."
	}
}
