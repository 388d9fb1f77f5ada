package chat

import "strings"

// CommandKind is the result of classifying an inbound message.
type CommandKind int

const (
	KindOrdinary CommandKind = iota
	KindConsent
	KindRemember
	KindForget
)

func (k CommandKind) String() string {
	switch k {
	case KindConsent:
		return "consent"
	case KindRemember:
		return "remember"
	case KindForget:
		return "forget"
	default:
		return "ordinary"
	}
}

// Command is a classified message. Payload is set for remember and forget,
// Allow for consent.
type Command struct {
	Kind    CommandKind
	Payload string
	Allow   bool
}

// command prefixes in precedence order
var prefixes = []struct {
	prefix string
	kind   CommandKind
}{
	{"consent:", KindConsent},
	{"remember:", KindRemember},
	{"forget:", KindForget},
}

// Classify matches the trimmed message against the command prefixes,
// ignoring case. The payload keeps the original casing: it is everything
// after the first colon, trimmed. Classify has no side effects.
func Classify(message string) Command {
	msg := strings.TrimSpace(message)
	low := strings.ToLower(msg)

	for _, p := range prefixes {
		if !strings.HasPrefix(low, p.prefix) {
			continue
		}
		switch p.kind {
		case KindConsent:
			return Command{Kind: KindConsent, Allow: strings.Contains(low, "yes")}
		default:
			return Command{Kind: p.kind, Payload: payloadOf(msg)}
		}
	}
	return Command{Kind: KindOrdinary}
}

func payloadOf(msg string) string {
	_, after, _ := strings.Cut(msg, ":")
	return strings.TrimSpace(after)
}
