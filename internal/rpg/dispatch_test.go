package rpg

import (
	"context"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdbot/internal/cooldown"
	"cdbot/internal/transport"
	logx "cdbot/pkg/logx"
)

// slowMembers answers after a random delay, like a ChatMemberOf round trip.
type slowMembers struct{}

func (slowMembers) ResolveMember(ctx context.Context, _ int64, userID int64) (transport.Member, error) {
	select {
	case <-time.After(time.Duration(rand.Intn(3000)) * time.Microsecond):
	case <-ctx.Done():
		return transport.Member{}, ctx.Err()
	}
	return transport.Member{UserID: userID, FirstName: "p"}, nil
}

func TestDispatcherKeepsReportOrderPerChat(t *testing.T) {
	t.Parallel()
	const rounds = 50

	sender := &fakeSender{}
	sinks := NewSinks(sender, true, logx.Nop())
	sup := cooldown.NewSupervisor(cooldown.Config{MinDelay: 10 * time.Millisecond}, cooldown.Deps{
		Directory:    Directory{Members: slowMembers{}},
		Eligibility:  cooldown.EligibilityFunc(func(context.Context, cooldown.Entity) bool { return true }),
		Notifier:     sinks,
		Acknowledger: sinks,
		Log:          logx.Nop(),
	})
	t.Cleanup(func() { _ = sup.Stop(context.Background()) })
	w := NewWatcher(Settings{GameBotIDs: []int64{gameBot}}, Deps{Tracker: sup, Sinks: sinks, Log: logx.Nop()})

	in := make(chan transport.Update, 2*rounds)
	for r := 0; r < rounds; r++ {
		chat := chatID - int64(r%5)
		owner := int64(1000 + r)
		for _, label := range []string{"Old", "New"} {
			m := cooldownReport(owner, ":clock4: **"+label+"** (1h)")
			m.ChatID = chat
			in <- transport.Update{Kind: transport.UpdateMessage, Message: m}
		}
	}
	close(in)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	Dispatcher{Workers: 4, Handle: w.HandleMessage, Log: logx.Nop()}.Run(ctx, in)
	require.NoError(t, ctx.Err())

	stale := 0
	for r := 0; r < rounds; r++ {
		g, ok := sup.Group(cooldown.OwnerKey{ChatID: chatID - int64(r%5), UserID: int64(1000 + r)})
		require.True(t, ok, "round %d has no group", r)
		if g.Records()[0].Label != "New" {
			stale++
		}
	}
	assert.Zero(t, stale, "older report left installed in %d/%d rounds", stale, rounds)

	acks := 0
	for _, s := range sender.texts() {
		if strings.Contains(s, "tracking 1 cooldown") {
			acks++
		}
	}
	assert.Equal(t, 2*rounds, acks)
}

func TestDispatcherStopsOnCancel(t *testing.T) {
	t.Parallel()
	in := make(chan transport.Update)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		Dispatcher{Workers: 2, Handle: func(context.Context, *transport.Message) {}, Log: logx.Nop()}.Run(ctx, in)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestShardOfIsStableForNegativeChats(t *testing.T) {
	t.Parallel()
	for _, id := range []int64{-1001234567890, -100, 0, 42} {
		s := shardOf(id, 4)
		assert.GreaterOrEqual(t, s, 0)
		assert.Less(t, s, 4)
		assert.Equal(t, s, shardOf(id, 4))
	}
}
