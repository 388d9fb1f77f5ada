package chat

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestReply(t *testing.T) {
	tests := []struct {
		name    string
		display string
		msg     string
		facts   []string
		want    string
	}{
		{"greeting", "Jane Doe", "hello", nil, "hey Jane! what are you up to?"},
		{"greeting trimmed and cased", "Jane Doe", "  YO ", nil, "hey Jane! what are you up to?"},
		{"greeting single name", "Bob", "hi", []string{"x"}, "hey Bob! what are you up to?"},
		{"name splits on space only", "Jane\tDoe", "hi", nil, "hey Jane\tDoe! what are you up to?"},
		{"leading space gives empty name", " Jane", "hi", nil, "hey ! what are you up to?"},
		{"greeting needs exact match", "Jane", "hi there", nil, DefaultReply},
		{"help", "Jane", "can you HELP me", []string{"x"}, HelpReply},
		{"help beats remember", "Jane", "help remember: x", nil, HelpReply},
		{"remember mention", "Jane", "did you remember: it?", nil, RememberReply},
		{"forget mention", "Jane", "please forget: it", nil, ForgetReply},
		{"facts", "Jane", "what's up", []string{"a", "b"}, "noted! btw i remember: a, b"},
		{"first three facts", "Jane", "sup", []string{"a", "b", "c", "d"}, "noted! btw i remember: a, b, c"},
		{"default", "Jane", "what's up", nil, DefaultReply},
		{"empty message", "Jane", "", nil, DefaultReply},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Reply(tt.display, tt.msg, tt.facts))
		})
	}
}

func TestReply_Deterministic(t *testing.T) {
	facts := []string{"likes tea", "plays chess"}
	first := Reply("Jane Doe", "anything", facts)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Reply("Jane Doe", "anything", facts))
	}
}

func TestReply_TruncatesTo300(t *testing.T) {
	long := strings.Repeat("x", 400)
	got := Reply("Jane", "tell me", []string{long})

	assert.Equal(t, 300, utf8.RuneCountInString(got))
	assert.True(t, strings.HasPrefix(got, "noted! btw i remember: xxx"))
}

func TestReply_TruncatesRunesNotBytes(t *testing.T) {
	long := strings.Repeat("é", 400)
	got := Reply("Jane", "tell me", []string{long})

	assert.Equal(t, 300, utf8.RuneCountInString(got))
	assert.True(t, utf8.ValidString(got))
}

func TestReply_NeverEmpty(t *testing.T) {
	for _, msg := range []string{"", " ", "hi", "help", "remember:", "forget:", "?"} {
		assert.NotEmpty(t, Reply("", msg, nil), "msg %q", msg)
	}
}
