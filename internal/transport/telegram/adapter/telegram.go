package adapter

import (
	"context"
	"errors"
	"hash/fnv"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	rtsup "cdbot/internal/runtime/supervisor"
	"cdbot/internal/transport"
	logx "cdbot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

// Adapter is the Telegram transport on telebot long polling.
type Adapter struct {
	log logx.Logger
	bot *tele.Bot

	out atomic.Pointer[chan<- transport.Update]

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	dropped atomic.Uint64

	menuMu   sync.Mutex
	menuHash uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Poller:  &tele.LongPoller{Timeout: timeout},
		OnError: func(err error, _ tele.Context) { log.Warn("telebot error", logx.Err(err)) },
	})
	if err != nil {
		return nil, err
	}
	a := &Adapter{log: log.With(logx.String("comp", "telegram")), bot: b}
	b.Handle(tele.OnText, func(c tele.Context) error {
		if m := c.Message(); m != nil {
			a.forward(toMessage(m))
		}
		return nil
	})
	return a, nil
}

// toMessage maps a telebot message to the transport model. Bold and code
// entities are written back into the text as ** and ` so report lines keep
// their markup.
func toMessage(m *tele.Message) *transport.Message {
	msg := &transport.Message{
		ID:       m.ID,
		ThreadID: m.ThreadID,
		Text:     styledText(m.Text, m.Entities),
	}
	if m.Unixtime != 0 {
		msg.Date = m.Time()
	}
	if o := m.Origin; o != nil && o.Sender != nil {
		msg.ForwardFromID = o.Sender.ID
		if o.DateUnixtime != 0 {
			msg.ForwardDate = time.Unix(o.DateUnixtime, 0)
		}
	}
	if m.Chat != nil {
		msg.ChatID = m.Chat.ID
		msg.IsGroup = m.Chat.Type == tele.ChatGroup || m.Chat.Type == tele.ChatSuperGroup
	}
	if m.Sender != nil {
		msg.FromID = m.Sender.ID
		msg.FromUsername = m.Sender.Username
		msg.FromIsBot = m.Sender.IsBot
	}
	if m.ReplyTo != nil && m.ReplyTo.Sender != nil {
		msg.ReplyToFromID = m.ReplyTo.Sender.ID
	}
	return msg
}

func (a *Adapter) forward(m *transport.Message) {
	out := a.out.Load()
	if out == nil || *out == nil {
		return
	}
	select {
	case *out <- transport.Update{Kind: transport.UpdateMessage, Message: m}:
	default:
		a.dropped.Add(1)
	}
}

// Dropped returns the number of updates lost because the consumer was slow.
func (a *Adapter) Dropped() uint64 { return a.dropped.Load() }

func (a *Adapter) Start(ctx context.Context, out chan<- transport.Update) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.running {
		return nil
	}
	a.running = true
	a.out.Store(&out)
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log))

	a.sup.Go0("telegram.drop_report", func(c context.Context) {
		t := time.NewTicker(5 * time.Second)
		defer t.Stop()
		var reported uint64
		for {
			select {
			case <-c.Done():
				return
			case <-t.C:
				if n := a.dropped.Load(); n > reported {
					a.log.Warn("incoming updates dropped (channel full)", logx.Uint64("count", n-reported), logx.Int("chan_cap", cap(out)))
					reported = n
				}
			}
		}
	})
	a.sup.Go0("telegram.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})
	// bot.Start blocks until bot.Stop. An early return while the context is
	// alive is a failure and is restarted with backoff.
	a.sup.GoRestart("telegram.poll", func(c context.Context) error {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
		if c.Err() != nil {
			return nil
		}
		return errors.New("poller exited")
	}, rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second))
	return nil
}

// Stop cancels polling. It waits at most 2s (or the ctx deadline) for the
// long poll to return.
func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	was := a.running
	a.sup, a.running = nil, false
	a.out.Store(nil)
	a.runMu.Unlock()
	if !was || sup == nil {
		return nil
	}

	sup.Cancel()
	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := sup.Wait(wctx); err != nil {
		a.log.Warn("telegram stop timed out", logx.Err(err))
	}
	a.log.Info("telegram stopped", logx.Uint64("dropped_updates", a.dropped.Load()))
	return nil
}

func (a *Adapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	if opt == nil {
		opt = &transport.SendOptions{}
	}
	chat := &tele.Chat{ID: to.ChatID}

	var first transport.MessageRef
	for i, chunk := range splitText(text, textLimit, opt.ParseMode) {
		if err := ctx.Err(); err != nil {
			return first, err
		}
		so := &tele.SendOptions{
			ParseMode:             opt.ParseMode,
			DisableWebPagePreview: opt.DisablePreview,
			ThreadID:              to.ThreadID,
		}
		if i == 0 && opt.ReplyToMessageID != 0 {
			so.ReplyTo = &tele.Message{ID: opt.ReplyToMessageID, Chat: chat}
		}
		msg, err := a.bot.Send(chat, chunk, so)
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = transport.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}
	return first, nil
}

// ResolveMember looks the user up in the chat. Users who left or were
// banned return transport.ErrNotMember.
func (a *Adapter) ResolveMember(ctx context.Context, chatID, userID int64) (transport.Member, error) {
	if err := ctx.Err(); err != nil {
		return transport.Member{}, err
	}
	cm, err := a.bot.ChatMemberOf(&tele.Chat{ID: chatID}, &tele.User{ID: userID})
	if err != nil {
		return transport.Member{}, err
	}
	if cm == nil || cm.User == nil {
		return transport.Member{}, transport.ErrNotMember
	}
	switch cm.Role {
	case tele.Left, tele.Kicked:
		return transport.Member{}, transport.ErrNotMember
	}
	return transport.Member{
		UserID:    cm.User.ID,
		Username:  cm.User.Username,
		FirstName: cm.User.FirstName,
		Status:    string(cm.Role),
	}, nil
}

// SetCommands publishes the command menu. It only calls Telegram when the list changed.
func (a *Adapter) SetCommands(ctx context.Context, cmds []transport.BotCommand) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.menuMu.Lock()
	defer a.menuMu.Unlock()

	h := fnv.New64a()
	tc := make([]tele.Command, 0, len(cmds))
	for _, c := range cmds {
		if c.Command == "" {
			continue
		}
		d := c.Description
		if d == "" {
			d = c.Command
		}
		tc = append(tc, tele.Command{Text: c.Command, Description: d})
		_, _ = h.Write([]byte(c.Command + "\x00" + d + "\x00"))
	}
	sum := h.Sum64()
	if sum == a.menuHash {
		return nil
	}
	if err := a.bot.SetCommands(tc); err != nil {
		return err
	}
	a.menuHash = sum
	a.log.Info("menu commands updated", logx.Int("count", len(tc)))
	return nil
}

// Me returns the bot's own user id as a string, for logs.
func (a *Adapter) Me() string {
	if a.bot.Me == nil {
		return ""
	}
	return strconv.FormatInt(a.bot.Me.ID, 10)
}
