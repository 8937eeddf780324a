package rpg

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"cdbot/internal/cooldown"
	"cdbot/internal/storage"
	"cdbot/internal/transport"
	logx "cdbot/pkg/logx"
)

// Tracker is the part of the cooldown supervisor the watcher drives.
type Tracker interface {
	Ingest(ctx context.Context, rep cooldown.Report, now time.Time) (cooldown.Outcome, error)
	Cancel(ctx context.Context, key cooldown.OwnerKey) (bool, error)
	Group(key cooldown.OwnerKey) (*cooldown.Group, bool)
	Stats() cooldown.Stats
}

// Settings are the hot-reloadable parts of the watcher.
type Settings struct {
	GameBotIDs   []int64
	ReportSuffix string
	EventPhrases []string
	OwnerUserIDs []int64
}

type Deps struct {
	Tracker Tracker
	Roles   *Roles
	Sinks   *Sinks
	Members transport.MemberResolver
	Store   storage.Store
	Log     logx.Logger
	Now     func() time.Time
}

// Watcher routes chat messages: /rpg commands, cooldown reports and event announcements.
type Watcher struct {
	tracker Tracker
	roles   *Roles
	sinks   *Sinks
	members transport.MemberResolver
	store   storage.Store
	log     logx.Logger
	now     func() time.Time

	settings atomic.Pointer[Settings]
}

func NewWatcher(s Settings, d Deps) *Watcher {
	w := &Watcher{
		tracker: d.Tracker,
		roles:   d.Roles,
		sinks:   d.Sinks,
		members: d.Members,
		store:   d.Store,
		log:     d.Log.With(logx.String("comp", "rpg")),
		now:     d.Now,
	}
	if w.now == nil {
		w.now = time.Now
	}
	w.Apply(s)
	return w
}

// Apply swaps the settings. Safe for concurrent use with HandleMessage.
func (w *Watcher) Apply(s Settings) {
	w.settings.Store(&s)
}

func (w *Watcher) classifier() Classifier {
	s := w.settings.Load()
	bots := make(map[int64]bool, len(s.GameBotIDs))
	for _, id := range s.GameBotIDs {
		bots[id] = true
	}
	return Classifier{GameBots: bots, ReportSuffix: s.ReportSuffix, EventPhrases: s.EventPhrases}
}

func (w *Watcher) isOwner(userID int64) bool {
	return slices.Contains(w.settings.Load().OwnerUserIDs, userID)
}

// HandleMessage processes one incoming message. It blocks while a previous
// report of the same owner drains.
func (w *Watcher) HandleMessage(ctx context.Context, m *transport.Message) {
	if m == nil || strings.TrimSpace(m.Text) == "" {
		return
	}
	if !m.FromIsBot && strings.HasPrefix(m.Text, "/") {
		if sub, ok := parseCommand(m.Text); ok {
			w.handleCommand(ctx, m, sub)
		}
		return
	}

	switch w.classifier().Classify(m) {
	case KindCooldowns:
		w.handleReport(ctx, m)
	case KindEvent:
		w.handleEvent(ctx, m)
	}
}

// reportOwner is the player a report belongs to: whoever forwarded it, or the
// sender of the command the game bot replied to.
func reportOwner(m *transport.Message) int64 {
	if m.Forwarded() {
		return m.FromID
	}
	return m.ReplyToFromID
}

func (w *Watcher) handleReport(ctx context.Context, m *transport.Message) {
	rep := cooldown.Report{
		Owner:  cooldown.OwnerRef{ChatID: m.ChatID, ThreadID: m.ThreadID},
		Lines:  reportLines(m.Text),
		SentAt: m.PostedAt(),
	}
	if id := reportOwner(m); id != 0 {
		rep.Owner.Identity = strconv.FormatInt(id, 10)
	}

	out, err := w.tracker.Ingest(ctx, rep, w.now())
	switch {
	case errors.Is(err, cooldown.ErrUnknownEntity):
		w.log.Info("cooldown report owner unknown", logx.Int64("chat_id", m.ChatID), logx.Int("msg_id", m.ID), logx.Err(err))
		w.sinks.Reject(ctx, m)
	case err != nil:
		w.log.Warn("cooldown report failed", logx.Int64("chat_id", m.ChatID), logx.Err(err))
	case !out.Eligible:
		w.log.Debug("cooldown report ignored (no role)", logx.Int64("user_id", out.Entity.UserID))
	case out.Stale:
		w.log.Debug("cooldown report older than the tracked one", logx.Int64("user_id", out.Entity.UserID), logx.Int("msg_id", m.ID))
	}
}

func (w *Watcher) handleEvent(ctx context.Context, m *transport.Message) {
	holders, err := w.roles.Holders(ctx, m.ChatID)
	if err != nil {
		w.log.Warn("role holders lookup failed", logx.Int64("chat_id", m.ChatID), logx.Err(err))
		return
	}
	out := holders[:0]
	for _, h := range holders {
		if h.Username == "" && w.members != nil {
			full, err := w.members.ResolveMember(ctx, m.ChatID, h.UserID)
			if errors.Is(err, transport.ErrNotMember) {
				continue
			}
			if err == nil {
				h = full
			}
		}
		out = append(out, h)
	}
	w.log.Debug("event ping", logx.Int64("chat_id", m.ChatID), logx.Int("holders", len(out)))
	w.sinks.PingEvent(ctx, m, out)
}
