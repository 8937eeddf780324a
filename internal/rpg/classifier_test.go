package rpg

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"cdbot/internal/transport"
)

func TestClassify(t *testing.T) {
	t.Parallel()
	c := Classifier{
		GameBots:     map[int64]bool{555: true},
		EventPhrases: []string{"an epic tree has just grown", "'s miniboss"},
	}
	tests := []struct {
		name string
		msg  *transport.Message
		want Kind
	}{
		{"report", &transport.Message{FromID: 555, Text: "**alice**'s cooldowns\n:clock4: **Hunt** (1h)"}, KindCooldowns},
		{"report upper", &transport.Message{FromID: 555, Text: "ALICE'S COOLDOWNS"}, KindCooldowns},
		{"report from user", &transport.Message{FromID: 1, Text: "alice's cooldowns"}, KindNone},
		{"report forwarded from game bot", &transport.Message{FromID: 1, ForwardFromID: 555, Text: "alice's cooldowns"}, KindCooldowns},
		{"report forwarded from user", &transport.Message{FromID: 555, ForwardFromID: 2, Text: "alice's cooldowns"}, KindNone},
		{"event prefix", &transport.Message{FromID: 555, Text: "**AN EPIC TREE HAS JUST GROWN**\ntype CHOP"}, KindEvent},
		{"event suffix", &transport.Message{FromID: 555, Text: "`bob`'s miniboss"}, KindEvent},
		{"other", &transport.Message{FromID: 555, Text: "you hunted a goblin"}, KindNone},
		{"empty", &transport.Message{FromID: 555, Text: "\n\n"}, KindNone},
		{"nil", nil, KindNone},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.Classify(tt.msg), tt.name)
	}
}

func TestParseCommand(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		sub  string
		isOk bool
	}{
		{"/rpg join", "join", true},
		{"/RPG@cdbot Status", "status", true},
		{"/rpg", "help", true},
		{"/start", "", false},
		{"/rpgx join", "", false},
	}
	for _, tt := range tests {
		sub, ok := parseCommand(tt.in)
		assert.Equal(t, tt.isOk, ok, tt.in)
		assert.Equal(t, tt.sub, sub, tt.in)
	}
}
