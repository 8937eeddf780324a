package rpg

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdbot/internal/cooldown"
	"cdbot/internal/storage"
	"cdbot/internal/transport"
	logx "cdbot/pkg/logx"
)

const (
	chatID  = int64(-100)
	gameBot = int64(555)
	alice   = int64(42)
	bob     = int64(7)
)

type fakeSender struct {
	mu   sync.Mutex
	sent []transport.Notification
}

func (f *fakeSender) Notify(_ context.Context, n transport.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
	return nil
}

func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, n := range f.sent {
		out = append(out, n.Text)
	}
	return out
}

func (f *fakeSender) waitFor(t *testing.T, substr string) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, s := range f.texts() {
			if strings.Contains(s, substr) {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond, "no message containing %q in %q", substr, f.texts())
}

type fakeMembers map[int64]transport.Member

func (f fakeMembers) ResolveMember(_ context.Context, _ int64, userID int64) (transport.Member, error) {
	m, ok := f[userID]
	if !ok {
		return transport.Member{}, transport.ErrNotMember
	}
	return m, nil
}

type harness struct {
	w      *Watcher
	sup    *cooldown.Supervisor
	sender *fakeSender
	store  storage.Store
}

func newHarness(t *testing.T, static []int64) *harness {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "memory"}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	members := fakeMembers{
		alice: {UserID: alice, Username: "alice"},
		bob:   {UserID: bob, FirstName: "Bob"},
	}
	sender := &fakeSender{}
	roles := NewRoles(st, static, logx.Nop())
	sinks := NewSinks(sender, true, logx.Nop())
	sup := cooldown.NewSupervisor(cooldown.Config{MinDelay: 10 * time.Millisecond}, cooldown.Deps{
		Directory:    Directory{Members: members},
		Eligibility:  roles,
		Notifier:     sinks,
		Acknowledger: sinks,
		Log:          logx.Nop(),
	})
	t.Cleanup(func() { _ = sup.Stop(context.Background()) })

	w := NewWatcher(Settings{
		GameBotIDs:   []int64{gameBot},
		EventPhrases: []string{"it's raining coins"},
		OwnerUserIDs: []int64{alice},
	}, Deps{Tracker: sup, Roles: roles, Sinks: sinks, Members: members, Store: st, Log: logx.Nop()})
	return &harness{w: w, sup: sup, sender: sender, store: st}
}

func cooldownReport(owner int64, lines ...string) *transport.Message {
	return &transport.Message{
		ID:            10,
		ChatID:        chatID,
		FromID:        gameBot,
		FromIsBot:     true,
		ReplyToFromID: owner,
		Text:          "player's cooldowns\n" + strings.Join(lines, "\n"),
	}
}

func command(from int64, text string) *transport.Message {
	return &transport.Message{ID: 20, ChatID: chatID, FromID: from, FromUsername: "u" + strconv.FormatInt(from, 10), Text: text}
}

func TestReportFromRoleHolderPingsOnExpiry(t *testing.T) {
	t.Parallel()
	h := newHarness(t, []int64{alice})
	ctx := context.Background()

	h.w.HandleMessage(ctx, cooldownReport(alice, ":clock4: **Hunt** (0s)", ":clock4: **Farm** (1h)"))

	h.sender.waitFor(t, "tracking 2 cooldowns for")
	h.sender.waitFor(t, "RPG cooldown: <b>Hunt</b> expired.")
	for _, text := range h.sender.texts() {
		if strings.Contains(text, "expired") {
			assert.True(t, strings.HasPrefix(text, `<a href="tg://user?id=42">@alice</a>, `), text)
		}
	}

	g, ok := h.sup.Group(cooldown.OwnerKey{ChatID: chatID, UserID: alice})
	require.True(t, ok)
	assert.Len(t, g.Pending(), 1)
}

func TestReportWithoutRoleIsIgnored(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.w.HandleMessage(context.Background(), cooldownReport(bob, ":clock4: **Hunt** (1h)"))
	assert.Empty(t, h.sender.texts())
	assert.Equal(t, 0, h.sup.Stats().Owners)
}

func TestReportWithUnknownOwnerIsRejected(t *testing.T) {
	t.Parallel()
	h := newHarness(t, []int64{alice})
	h.w.HandleMessage(context.Background(), cooldownReport(0, ":clock4: **Hunt** (1h)"))
	h.w.HandleMessage(context.Background(), cooldownReport(999, ":clock4: **Hunt** (1h)"))

	assert.Equal(t, []string{"❌", "❌"}, h.sender.texts())
	assert.Equal(t, 10, h.sender.sent[0].Options.ReplyToMessageID)
}

func TestJoinThenReportThenStop(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()

	h.w.HandleMessage(ctx, command(bob, "/rpg join"))
	h.sender.waitFor(t, "now has the RPG role")

	h.w.HandleMessage(ctx, cooldownReport(bob, ":clock4: **Hunt** (1h)"))
	h.sender.waitFor(t, "tracking 1 cooldown for")

	h.w.HandleMessage(ctx, command(bob, "/rpg status"))
	h.sender.waitFor(t, "<b>Hunt</b> in ")

	h.w.HandleMessage(ctx, command(bob, "/rpg stop"))
	h.sender.waitFor(t, "Your cooldown timers were dropped.")
	assert.Equal(t, 0, h.sup.Stats().ActiveGroups)

	h.w.HandleMessage(ctx, command(bob, "/rpg leave"))
	h.sender.waitFor(t, "RPG role removed")
	assert.False(t, h.w.roles.Has(ctx, chatID, bob))
}

func TestEventPingsRoleHolders(t *testing.T) {
	t.Parallel()
	h := newHarness(t, []int64{bob, 12345})
	ctx := context.Background()
	require.NoError(t, h.store.GrantRole(ctx, storage.Role{ChatID: chatID, UserID: alice, Username: "alice"}))

	h.w.HandleMessage(ctx, &transport.Message{ID: 30, ChatID: chatID, FromID: gameBot, FromIsBot: true, Text: "**IT'S RAINING COINS**\ntype CATCH"})

	texts := h.sender.texts()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "@alice")
	assert.Contains(t, texts[0], ">Bob</a>")
	assert.NotContains(t, texts[0], "12345")
}

func TestStatsIsOwnerOnly(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()

	h.w.HandleMessage(ctx, command(bob, "/rpg stats"))
	h.w.HandleMessage(ctx, command(alice, "/rpg stats"))

	texts := h.sender.texts()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[0], "RPG cooldown pings")
	assert.Equal(t, "owners=0 active_groups=0 pending_waits=0", texts[1])
}

func TestDirectoryRejectsMalformedIdentity(t *testing.T) {
	t.Parallel()
	d := Directory{Members: fakeMembers{}}
	_, err := d.Resolve(context.Background(), cooldown.OwnerRef{ChatID: chatID, Identity: "abc"})
	assert.ErrorIs(t, err, cooldown.ErrUnknownEntity)
	_, err = d.Resolve(context.Background(), cooldown.OwnerRef{ChatID: chatID, Identity: "42"})
	assert.ErrorIs(t, err, cooldown.ErrUnknownEntity)
}

func forwardedReport(from int64, postedAt time.Time, lines ...string) *transport.Message {
	return &transport.Message{
		ID:            40,
		ChatID:        chatID,
		FromID:        from,
		Date:          postedAt.Add(time.Minute),
		ForwardFromID: gameBot,
		ForwardDate:   postedAt,
		Text:          "**alice**'s cooldowns\n" + strings.Join(lines, "\n"),
	}
}

func TestForwardedReportBelongsToForwarder(t *testing.T) {
	t.Parallel()
	h := newHarness(t, []int64{alice})
	ctx := context.Background()
	posted := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	h.w.HandleMessage(ctx, forwardedReport(alice, posted, ":clock4: **`Quest`** (**1h**)"))
	h.sender.waitFor(t, "tracking 1 cooldown for")

	key := cooldown.OwnerKey{ChatID: chatID, UserID: alice}
	g, ok := h.sup.Group(key)
	require.True(t, ok)
	assert.Equal(t, "Quest", g.Records()[0].Label)
	assert.Equal(t, posted, g.ReportedAt())

	// An older forward must not replace the tracked report.
	h.w.HandleMessage(ctx, forwardedReport(alice, posted.Add(-time.Hour), ":clock4: **`Hunt`** (**1h**)"))
	g, _ = h.sup.Group(key)
	assert.Equal(t, "Quest", g.Records()[0].Label)
}

func TestCooldownPingsBypassDedup(t *testing.T) {
	t.Parallel()
	h := newHarness(t, []int64{alice})
	h.w.HandleMessage(context.Background(), cooldownReport(alice, ":clock4: **Hunt** (0s)"))
	h.sender.waitFor(t, "<b>Hunt</b> expired.")

	h.sender.mu.Lock()
	defer h.sender.mu.Unlock()
	for _, n := range h.sender.sent {
		assert.True(t, n.SkipDedup, n.Text)
	}
}
