package chat

import "strings"

// Canned fallback replies.
const (
	HelpReply     = "i can chat, remember things if you ask, and forget them too. try: 'remember: i like oolong tea'"
	RememberReply = "got it—i saved that. (say 'forget: ...' to remove it)"
	ForgetReply   = "ok, scrubbed from memory."
	DefaultReply  = "ok! tell me more?"

	maxFallbackRunes = 300
	maxRecalledFacts = 3
)

var greetings = map[string]bool{"hi": true, "hello": true, "hey": true, "yo": true}

// Reply is the local deterministic responder used whenever no remote text is
// available. It never returns an empty string.
func Reply(displayName, message string, facts []string) string {
	low := strings.ToLower(strings.TrimSpace(message))

	switch {
	case greetings[low]:
		return "hey " + firstToken(displayName) + "! what are you up to?"
	case strings.Contains(low, "help"):
		return HelpReply
	case strings.Contains(low, "remember:"):
		return RememberReply
	case strings.Contains(low, "forget:"):
		return ForgetReply
	case len(facts) > 0:
		n := min(len(facts), maxRecalledFacts)
		return truncateRunes("noted! btw i remember: "+strings.Join(facts[:n], ", "), maxFallbackRunes)
	default:
		return DefaultReply
	}
}

// firstToken returns name up to its first space character. Tabs and other
// whitespace do not split: "Jane\tDoe" is returned whole and "  Jane"
// yields "".
func firstToken(name string) string {
	tok, _, _ := strings.Cut(name, " ")
	return tok
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
