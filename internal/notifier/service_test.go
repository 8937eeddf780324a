package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdbot/internal/eventbus"
	"cdbot/internal/storage"
	"cdbot/internal/transport"
	logx "cdbot/pkg/logx"
)

type fakeAdapter struct {
	mu    sync.Mutex
	sent  []string
	fails int
}

func (f *fakeAdapter) Start(context.Context, chan<- transport.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                          { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return transport.MessageRef{}, errors.New("flood wait")
	}
	f.sent = append(f.sent, text)
	return transport.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func note(chatID int64, text string) transport.Notification {
	return transport.Notification{Target: transport.ChatTarget{ChatID: chatID}, Text: text}
}

func startService(t *testing.T, cfg Config, ad *fakeAdapter, bus eventbus.Bus, st storage.Store) *Service {
	t.Helper()
	s := New(cfg, ad, logx.Nop(), bus, st)
	require.NoError(t, s.Start(context.Background()))
	return s
}

func stopService(t *testing.T, s *Service) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestNotifyDeliversAndDrainsOnStop(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	s := startService(t, Config{Workers: 1, RatePerSec: 1000}, ad, nil, nil)

	ctx := context.Background()
	require.NoError(t, s.Notify(ctx, note(1, "a")))
	require.NoError(t, s.Notify(ctx, note(1, "b")))
	stopService(t, s)

	assert.Equal(t, []string{"a", "b"}, ad.texts())
	assert.Len(t, s.History(), 2)
	assert.ErrorIs(t, s.Notify(ctx, note(1, "c")), ErrStopped)
}

func TestNotifyRetries(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{fails: 2}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	s := startService(t, Config{Workers: 1, RatePerSec: 1000, RetryMax: 2, RetryBase: time.Millisecond, RetryMaxDelay: 2 * time.Millisecond}, ad, bus, nil)
	require.NoError(t, s.Notify(context.Background(), note(1, "retry me")))
	stopService(t, s)

	assert.Equal(t, []string{"retry me"}, ad.texts())
	var types []string
	for len(events) > 0 {
		types = append(types, (<-events).Type)
	}
	assert.Equal(t, []string{eventbus.NotifierQueued, eventbus.NotifierSent}, types)
}

func TestNotifyDedupWithinWindow(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	s := startService(t, Config{Workers: 1, RatePerSec: 1000, DedupWindow: time.Minute}, ad, nil, nil)

	ctx := context.Background()
	require.NoError(t, s.Notify(ctx, note(1, "same")))
	require.NoError(t, s.Notify(ctx, note(1, "same")))
	require.NoError(t, s.Notify(ctx, note(2, "same")))
	stopService(t, s)

	assert.Equal(t, []string{"same", "same"}, ad.texts())
}

func TestNotifySkipDedupRepeats(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	s := startService(t, Config{Workers: 1, RatePerSec: 1000, DedupWindow: time.Minute}, ad, nil, nil)

	ctx := context.Background()
	n := note(1, "Hunt expired")
	n.SkipDedup = true
	require.NoError(t, s.Notify(ctx, n))
	require.NoError(t, s.Notify(ctx, n))
	stopService(t, s)

	assert.Equal(t, []string{"Hunt expired", "Hunt expired"}, ad.texts())
}

func TestNotifyPersistentDedupSurvivesRestart(t *testing.T) {
	t.Parallel()
	st, err := storage.Open(storage.Config{Driver: "memory"}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	cfg := Config{Workers: 1, RatePerSec: 1000, DedupWindow: time.Minute, PersistDedup: true}
	ad := &fakeAdapter{}
	first := startService(t, cfg, ad, nil, st)
	require.NoError(t, first.Notify(context.Background(), note(1, "ping")))
	stopService(t, first)

	second := startService(t, cfg, ad, nil, st)
	require.NoError(t, second.Notify(context.Background(), note(1, "ping")))
	stopService(t, second)

	assert.Equal(t, []string{"ping"}, ad.texts())
}

func TestNotifyBeforeStart(t *testing.T) {
	t.Parallel()
	s := New(Config{}, &fakeAdapter{}, logx.Nop(), nil, nil)
	assert.ErrorIs(t, s.Notify(context.Background(), note(1, "x")), ErrStopped)
	assert.NoError(t, s.Stop(context.Background()))
}

func TestRetryDelayBounded(t *testing.T) {
	t.Parallel()
	cfg := withDefaults(Config{RetryBase: 100 * time.Millisecond, RetryMaxDelay: time.Second})
	for attempt := 1; attempt <= 8; attempt++ {
		d := retryDelay(cfg, attempt)
		assert.Positive(t, d)
		assert.LessOrEqual(t, d, time.Second)
	}
	assert.GreaterOrEqual(t, retryDelay(cfg, 1), 70*time.Millisecond)
}
