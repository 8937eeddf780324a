package rpg

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"cdbot/internal/cooldown"
	"cdbot/internal/storage"
	"cdbot/internal/transport"
	logx "cdbot/pkg/logx"
)

// Commands lists the /rpg subcommands for the platform menu.
func Commands() []transport.BotCommand {
	return []transport.BotCommand{
		{Command: "rpg", Description: "RPG cooldown pings: join, leave, status, stop, help"},
	}
}

const helpText = `<b>RPG cooldown pings</b>
/rpg join: get pinged when your cooldowns expire
/rpg leave: stop being tracked
/rpg status: show your tracked cooldowns
/rpg stop: drop your current cooldown timers
/rpg help: this text

Post your cooldowns in the game bot and I will track them.`

// parseCommand splits "/rpg@bot sub args" into ("sub", true). Other
// commands return ok=false.
func parseCommand(text string) (sub string, ok bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", false
	}
	cmd := strings.ToLower(fields[0])
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	if cmd != "/rpg" {
		return "", false
	}
	if len(fields) < 2 {
		return "help", true
	}
	return strings.ToLower(fields[1]), true
}

func (w *Watcher) handleCommand(ctx context.Context, m *transport.Message, sub string) {
	start := time.Now()
	self := transport.Member{UserID: m.FromID, Username: m.FromUsername}
	key := cooldown.OwnerKey{ChatID: m.ChatID, UserID: m.FromID}

	var (
		reply string
		err   error
	)
	switch sub {
	case "join":
		var added bool
		added, err = w.roles.Join(ctx, m.ChatID, self)
		switch {
		case errors.Is(err, ErrRolesReadOnly):
			reply, err = "Roles are managed in the config here.", nil
		case err != nil:
			reply = "Could not save your role, try again later."
		case added:
			reply = fmt.Sprintf("%s now has the RPG role. Post your cooldowns and I will ping you.", transport.MentionHTML(self))
		default:
			reply = "You already have the RPG role."
		}
	case "leave":
		var removed bool
		removed, err = w.roles.Leave(ctx, m.ChatID, m.FromID)
		switch {
		case errors.Is(err, ErrRolesReadOnly):
			reply, err = "Roles are managed in the config here.", nil
		case err != nil:
			reply = "Could not update your role, try again later."
		default:
			if _, cerr := w.tracker.Cancel(ctx, key); cerr != nil {
				w.log.Warn("cancel on leave failed", logx.Int64("user_id", m.FromID), logx.Err(cerr))
			}
			if removed {
				reply = "RPG role removed. Your timers were dropped."
			} else {
				reply = "You did not have the RPG role."
			}
		}
	case "stop":
		var cancelled bool
		cancelled, err = w.tracker.Cancel(ctx, key)
		switch {
		case err != nil:
			reply = "Could not stop your timers."
		case cancelled:
			reply = "Your cooldown timers were dropped."
		default:
			reply = "No cooldowns are being tracked for you."
		}
	case "status":
		reply = w.statusText(key, self)
	case "stats":
		if !w.isOwner(m.FromID) {
			reply = helpText
			break
		}
		st := w.tracker.Stats()
		reply = fmt.Sprintf("owners=%d active_groups=%d pending_waits=%d", st.Owners, st.ActiveGroups, st.PendingWaits)
	default:
		reply = helpText
	}

	w.sinks.Reply(ctx, m, reply)

	switch sub {
	case "join", "leave", "stop":
		w.audit(ctx, m, "rpg."+sub, err, time.Since(start))
	}
}

func (w *Watcher) statusText(key cooldown.OwnerKey, self transport.Member) string {
	g, ok := w.tracker.Group(key)
	if !ok {
		return "No cooldowns are being tracked for you."
	}
	pending := g.Pending()
	if len(pending) == 0 {
		return "No cooldowns are being tracked for you."
	}
	now := w.now()
	var b strings.Builder
	fmt.Fprintf(&b, "Tracked cooldowns for %s:", transport.MentionHTML(self))
	for _, r := range pending {
		left := max(r.Expiry.Sub(now), 0).Round(time.Second)
		fmt.Fprintf(&b, "\n• <b>%s</b> in %s", html.EscapeString(r.Label), left)
	}
	return b.String()
}

func (w *Watcher) audit(ctx context.Context, m *transport.Message, action string, err error, took time.Duration) {
	if w.store == nil {
		return
	}
	e := storage.AuditEntry{
		ActorID:       m.FromID,
		ActorUsername: m.FromUsername,
		ChatID:        m.ChatID,
		ThreadID:      m.ThreadID,
		Action:        action,
		MetaJSON:      fmt.Sprintf(`{"took_ms":%d}`, took.Milliseconds()),
	}
	if err != nil {
		e.Error = err.Error()
	}
	if aerr := w.store.AppendAudit(ctx, e); aerr != nil {
		w.log.Warn("audit append failed", logx.String("action", action), logx.Err(aerr))
	}
}
