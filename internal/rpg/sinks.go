package rpg

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync/atomic"

	"cdbot/internal/cooldown"
	"cdbot/internal/transport"
	logx "cdbot/pkg/logx"
)

// Sender is the notifier side used by the sinks.
type Sender interface {
	Notify(ctx context.Context, n transport.Notification) error
}

// Sinks turns cooldown expirations and acknowledgements into chat messages.
type Sinks struct {
	sender Sender
	log    logx.Logger
	ack    atomic.Bool
}

func NewSinks(sender Sender, acknowledge bool, log logx.Logger) *Sinks {
	s := &Sinks{sender: sender, log: log}
	s.ack.Store(acknowledge)
	return s
}

// SetAcknowledge toggles the acknowledgement reply.
func (s *Sinks) SetAcknowledge(on bool) { s.ack.Store(on) }

func mention(e cooldown.Entity) string {
	return transport.MentionHTML(transport.Member{UserID: e.UserID, Username: e.Username, FirstName: e.FirstName})
}

func htmlTo(chatID int64, threadID int, text string) transport.Notification {
	return transport.Notification{
		Target:  transport.ChatTarget{ChatID: chatID, ThreadID: threadID},
		Text:    text,
		Options: &transport.SendOptions{ParseMode: "HTML", DisablePreview: true},
	}
}

// NotifyExpired implements cooldown.Notifier.
func (s *Sinks) NotifyExpired(ctx context.Context, e cooldown.Entity, label string) {
	text := fmt.Sprintf("%s, RPG cooldown: <b>%s</b> expired.", mention(e), html.EscapeString(label))
	n := htmlTo(e.ChatID, e.ThreadID, text)
	n.SkipDedup = true
	s.send(ctx, n)
}

// Acknowledge implements cooldown.Acknowledger.
func (s *Sinks) Acknowledge(ctx context.Context, e cooldown.Entity, count int) {
	if !s.ack.Load() {
		return
	}
	noun := "cooldowns"
	if count == 1 {
		noun = "cooldown"
	}
	text := fmt.Sprintf("⏳ tracking %d %s for %s", count, noun, mention(e))
	n := htmlTo(e.ChatID, e.ThreadID, text)
	n.SkipDedup = true
	s.send(ctx, n)
}

// Reject answers a report whose owner could not be resolved.
func (s *Sinks) Reject(ctx context.Context, m *transport.Message) {
	n := htmlTo(m.ChatID, m.ThreadID, "❌")
	n.Options.ReplyToMessageID = m.ID
	s.send(ctx, n)
}

// PingEvent mentions every role holder under a game bot event announcement.
func (s *Sinks) PingEvent(ctx context.Context, m *transport.Message, holders []transport.Member) {
	if len(holders) == 0 {
		return
	}
	mentions := make([]string, 0, len(holders))
	for _, h := range holders {
		mentions = append(mentions, transport.MentionHTML(h))
	}
	n := htmlTo(m.ChatID, m.ThreadID, strings.Join(mentions, " ")+", you might want to do what the game bot says.")
	n.Options.ReplyToMessageID = m.ID
	s.send(ctx, n)
}

// Reply answers a command message with plain HTML text.
func (s *Sinks) Reply(ctx context.Context, m *transport.Message, text string) {
	n := htmlTo(m.ChatID, m.ThreadID, text)
	n.Options.ReplyToMessageID = m.ID
	s.send(ctx, n)
}

func (s *Sinks) send(ctx context.Context, n transport.Notification) {
	if s.sender == nil {
		return
	}
	if err := s.sender.Notify(ctx, n); err != nil {
		s.log.Warn("notification not queued", logx.Int64("chat_id", n.Target.ChatID), logx.Err(err))
	}
}
