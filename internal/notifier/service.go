package notifier

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"cdbot/internal/eventbus"
	rtsup "cdbot/internal/runtime/supervisor"
	"cdbot/internal/storage"
	"cdbot/internal/transport"
	logx "cdbot/pkg/logx"
)

var (
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
)

const historySize = 300

type job struct {
	n   transport.Notification
	key string
}

// Service is a queue + worker pool + rate limit + retry + dedup pipeline.
// It is safe for concurrent use.
type Service struct {
	log     logx.Logger
	adapter transport.Adapter
	bus     eventbus.Bus
	store   storage.Store

	mu        sync.Mutex
	cfg       Config
	limiter   *rate.Limiter
	queue     chan job
	sup       *rtsup.Supervisor
	accepting bool
	enqueues  sync.WaitGroup

	dmu   sync.Mutex
	dedup map[string]time.Time

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, adapter transport.Adapter, log logx.Logger, bus eventbus.Bus, store storage.Store) *Service {
	s := &Service{
		adapter: adapter,
		log:     log.With(logx.String("comp", "notifier")),
		bus:     bus,
		store:   store,
		dedup:   map[string]time.Time{},
	}
	s.Apply(cfg)
	return s
}

// Apply swaps the config. Worker count and queue size take effect on the next Start.
func (s *Service) Apply(cfg Config) {
	cfg = withDefaults(cfg)
	s.mu.Lock()
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	s.mu.Unlock()
}

// Start launches the workers. Calling Start on a running service is a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue != nil {
		return nil
	}
	s.queue = make(chan job, s.cfg.QueueSize)
	s.accepting = true
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log))

	q := s.queue
	for i := 0; i < s.cfg.Workers; i++ {
		s.sup.Go0(fmt.Sprintf("notifier.worker.%d", i), func(c context.Context) {
			s.worker(c, q)
		})
	}
	s.log.Info("notifier started", logx.Int("workers", s.cfg.Workers), logx.Int("queue", s.cfg.QueueSize))
	return nil
}

// Stop refuses new notifications and drains the queue until ctx ends.
// Messages still queued at the deadline are dropped.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	q, sup := s.queue, s.sup
	if q == nil || !s.accepting {
		s.mu.Unlock()
		return nil
	}
	s.accepting = false
	s.mu.Unlock()

	s.enqueues.Wait()
	close(q)

	err := sup.Wait(ctx)
	if err != nil {
		sup.Cancel()
		_ = sup.Wait(context.Background())
	}
	s.mu.Lock()
	s.queue, s.sup = nil, nil
	s.mu.Unlock()
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.log.Warn("notifier stopped before queue drained", logx.Err(err))
		return err
	}
	return nil
}

// Notify enqueues n. It returns nil for a message suppressed by dedup.
func (s *Service) Notify(ctx context.Context, n transport.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n.Channel == "" {
		n.Channel = "telegram"
	}

	s.mu.Lock()
	if !s.accepting {
		s.mu.Unlock()
		return ErrStopped
	}
	q := s.queue
	cfg := s.cfg
	s.enqueues.Add(1)
	s.mu.Unlock()
	defer s.enqueues.Done()

	key := dedupKey(n)
	if cfg.DedupWindow > 0 && !n.SkipDedup && !s.dedupAllow(ctx, key, cfg) {
		s.publish(eventbus.NotifierDeduped, n, key, nil)
		return nil
	}

	s.publish(eventbus.NotifierQueued, n, key, nil)
	select {
	case q <- job{n: n, key: key}:
		return nil
	default:
		s.publish(eventbus.NotifierDropped, n, key, ErrQueueFull)
		return ErrQueueFull
	}
}

// History returns recently sent messages, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) appendHistory(n transport.Notification) {
	s.hmu.Lock()
	s.history = append(s.history, HistoryItem{At: time.Now(), ChatID: n.Target.ChatID, Text: n.Text})
	if len(s.history) > historySize {
		s.history = s.history[len(s.history)-historySize:]
	}
	s.hmu.Unlock()
}

func (s *Service) publish(typ string, n transport.Notification, key string, err error) {
	if s.bus == nil {
		return
	}
	ev := NotificationEvent{Channel: n.Channel, ChatID: n.Target.ChatID, ThreadID: n.Target.ThreadID, Key: key, At: time.Now()}
	if err != nil {
		ev.Error = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: ev.At, Data: ev})
}

func (s *Service) worker(ctx context.Context, q <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q:
			if !ok {
				return
			}
			s.send(ctx, j)
		}
	}
}

func (s *Service) send(ctx context.Context, j job) {
	s.mu.Lock()
	cfg, lim := s.cfg, s.limiter
	s.mu.Unlock()
	if s.adapter == nil || j.n.Text == "" {
		return
	}

	var lastErr error
	for attempt := 1; attempt <= 1+cfg.RetryMax; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return
		}
		callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		_, err := s.adapter.SendText(callCtx, j.n.Target, j.n.Text, j.n.Options)
		cancel()
		if err == nil {
			s.appendHistory(j.n)
			s.publish(eventbus.NotifierSent, j.n, j.key, nil)
			return
		}
		lastErr = err
		s.log.Debug("notify send failed", logx.Err(err), logx.Int("attempt", attempt), logx.Int64("chat_id", j.n.Target.ChatID))

		if attempt > cfg.RetryMax {
			break
		}
		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return
		}
	}
	s.log.Warn("notification failed", logx.Err(lastErr), logx.Int64("chat_id", j.n.Target.ChatID))
	s.publish(eventbus.NotifierFailed, j.n, j.key, lastErr)
}

func dedupKey(n transport.Notification) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%d:%d|%s", n.Channel, n.Target.ChatID, n.Target.ThreadID, n.Text)
	return fmt.Sprintf("%x", h.Sum64())
}

// dedupAllow reports whether key may be sent now and, if so, opens a new window.
func (s *Service) dedupAllow(ctx context.Context, key string, cfg Config) bool {
	now := time.Now()

	s.dmu.Lock()
	if until, ok := s.dedup[key]; ok && now.Before(until) {
		s.dmu.Unlock()
		return false
	}
	s.dmu.Unlock()

	if cfg.PersistDedup && s.store != nil {
		qctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		until, ok, err := s.store.GetDedup(qctx, key)
		cancel()
		if err == nil && ok && now.Before(until) {
			s.dmu.Lock()
			s.dedup[key] = until
			s.dmu.Unlock()
			return false
		}
	}

	until := now.Add(cfg.DedupWindow)
	s.dmu.Lock()
	s.dedup[key] = until
	for k, u := range s.dedup {
		if !now.Before(u) {
			delete(s.dedup, k)
		}
	}
	for len(s.dedup) > cfg.DedupMaxEntries {
		var oldest string
		var oldestAt time.Time
		for k, u := range s.dedup {
			if oldest == "" || u.Before(oldestAt) {
				oldest, oldestAt = k, u
			}
		}
		delete(s.dedup, oldest)
	}
	s.dmu.Unlock()

	if cfg.PersistDedup && s.store != nil {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 250*time.Millisecond)
		if err := s.store.PutDedup(pctx, key, until); err != nil {
			s.log.Debug("dedup persist failed", logx.Err(err))
		}
		cancel()
	}
	return true
}

// retryDelay is base * 2^(attempt-1) with 0.7..1.3 jitter, capped at RetryMaxDelay.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt && d < cfg.RetryMaxDelay; i++ {
		d *= 2
	}
	d = time.Duration(float64(d) * (0.7 + rand.Float64()*0.6))
	return min(d, cfg.RetryMaxDelay)
}
