package transport

import (
	"context"
	"errors"
	"time"
)

// ErrNotMember is returned by MemberResolver when the user is not (or no longer)
// a member of the chat.
var ErrNotMember = errors.New("not a chat member")

type UpdateKind string

const (
	UpdateMessage UpdateKind = "message"
)

type Update struct {
	Kind    UpdateKind
	Message *Message
}

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // telegram forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	FromIsBot    bool
	Text         string
	IsGroup      bool

	// ReplyToFromID is the sender of the message this one replies to (0 if none).
	// Game bots answer a player's command by replying to it, so this identifies
	// the player a report belongs to.
	ReplyToFromID int64

	// Date is when the platform received the message.
	Date time.Time

	// ForwardFromID is the original author of a forwarded message (0 if the
	// message is not a forward or the author is hidden). ForwardDate is when
	// the original was posted.
	ForwardFromID int64
	ForwardDate   time.Time
}

// AuthorID is the forward origin of a forwarded message, the sender otherwise.
func (m *Message) AuthorID() int64 {
	if m.ForwardFromID != 0 {
		return m.ForwardFromID
	}
	return m.FromID
}

// Forwarded reports whether the message is a forward with a known author.
func (m *Message) Forwarded() bool { return m.ForwardFromID != 0 }

// PostedAt is when the content was first posted: the forward date for
// forwards, the message date otherwise.
func (m *Message) PostedAt() time.Time {
	if m.Forwarded() && !m.ForwardDate.IsZero() {
		return m.ForwardDate
	}
	return m.Date
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode        string
	DisablePreview   bool
	ReplyToMessageID int
}

type Notification struct {
	Channel  string // "telegram" now
	Priority int    // 0 low.. 10 high
	Target   ChatTarget
	Text     string
	Options  *SendOptions

	// SkipDedup bypasses the notifier dedup window. Used for pings that may
	// legitimately repeat with the same text.
	SkipDedup bool
}

// Member is a chat member as seen by the platform.
type Member struct {
	UserID    int64
	Username  string
	FirstName string
	Status    string
}

// DisplayName prefers @username, then first name, then the numeric id.
func (m Member) DisplayName() string {
	switch {
	case m.Username != "":
		return "@" + m.Username
	case m.FirstName != "":
		return m.FirstName
	default:
		return formatID(m.UserID)
	}
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

// MemberResolver is an optional interface for adapters that can look up chat members.
type MemberResolver interface {
	ResolveMember(ctx context.Context, chatID, userID int64) (Member, error)
}

// BotCommand is one entry of the platform command menu.
type BotCommand struct {
	Command     string
	Description string
}
