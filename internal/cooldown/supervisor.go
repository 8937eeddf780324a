package cooldown

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"cdbot/internal/eventbus"
	logx "cdbot/pkg/logx"
)

type Config struct {
	// Marker is the glyph of a running cooldown line. Empty means DefaultMarker.
	Marker string
	// MinDelay is the shortest wait of a record. Empty means DefaultMinDelay.
	MinDelay time.Duration
}

type Deps struct {
	Directory    Directory
	Eligibility  Eligibility
	Notifier     Notifier
	Acknowledger Acknowledger
	Clock        Clock
	Bus          eventbus.Bus
	Log          logx.Logger
}

// EventData is the payload of cooldown.* bus events.
type EventData struct {
	GroupID string
	ChatID  int64
	UserID  int64
	Label   string
	Count   int
	Reason  string
}

// Supervisor owns the owner → group mapping. It is the only writer of that
// mapping; a group is replaced only after the previous one has drained.
type Supervisor struct {
	deps Deps
	log  logx.Logger

	cfgMu sync.RWMutex
	cfg   Config

	locks *ownerLocks

	mu      sync.RWMutex
	base    context.Context
	stop    context.CancelFunc
	groups  map[OwnerKey]*Group
	stopped bool
}

func NewSupervisor(cfg Config, deps Deps) *Supervisor {
	if deps.Clock == nil {
		deps.Clock = SystemClock
	}
	base, stop := context.WithCancel(context.Background())
	return &Supervisor{
		deps:   deps,
		log:    deps.Log.With(logx.String("comp", "cooldown")),
		cfg:    cfg,
		locks:  newOwnerLocks(),
		base:   base,
		stop:   stop,
		groups: map[OwnerKey]*Group{},
	}
}

// Start marks the supervisor as running. Groups live until Stop, not until ctx ends.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		return ErrStopped
	}
	s.log.Info("cooldown supervisor started")
	return nil
}

// Stop cancels every group and waits for all of them to drain.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	s.stop()
	groups := make([]*Group, 0, len(s.groups))
	for _, g := range s.groups {
		groups = append(groups, g)
	}
	s.mu.Unlock()

	for _, g := range groups {
		select {
		case <-g.Cancel():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.log.Info("cooldown supervisor stopped", logx.Int("groups", len(groups)))
	return nil
}

// SetConfig applies a new marker or minimum delay to future reports.
func (s *Supervisor) SetConfig(cfg Config) {
	s.cfgMu.Lock()
	s.cfg = cfg
	s.cfgMu.Unlock()
}

func (s *Supervisor) config() Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

func (s *Supervisor) now(now time.Time) time.Time {
	if now.IsZero() {
		return s.deps.Clock.Now()
	}
	return now
}

// Ingest accepts a cooldowns report.
//
// The owner is resolved first; failure returns ErrUnknownEntity and leaves the
// mapping untouched. An owner that is not eligible is ignored without error.
// Otherwise the previous group of the owner is cancelled and drained, a new
// group is started from the extracted records (possibly none) and the owner is
// acknowledged with the number of tracked records.
//
// A report with a SentAt older than the one behind the installed group is
// stale: it is dropped without error and Outcome.Stale is set.
//
// If ctx ends while the previous group drains, Ingest returns ctx.Err(); the
// previous group stays cancelled and nothing new is installed.
func (s *Supervisor) Ingest(ctx context.Context, rep Report, now time.Time) (Outcome, error) {
	now = s.now(now)

	ent, err := s.resolve(ctx, rep.Owner)
	if err != nil {
		s.publish(eventbus.CooldownRejected, EventData{ChatID: rep.Owner.ChatID, Reason: "unknown_entity"})
		return Outcome{}, err
	}
	out := Outcome{Entity: ent}
	if s.deps.Eligibility == nil || !s.deps.Eligibility.IsEligible(ctx, ent) {
		s.log.Debug("report owner not eligible", logx.Int64("chat_id", ent.ChatID), logx.Int64("user_id", ent.UserID))
		return out, nil
	}
	out.Eligible = true

	cfg := s.config()
	records, skipped := Extractor{Marker: cfg.Marker}.Extract(rep.Lines, now)
	out.Skipped = skipped
	for _, le := range skipped {
		s.log.Warn("cooldown line skipped", logx.Int64("user_id", ent.UserID), logx.Int("line", le.Line), logx.Err(le.Cause))
	}

	key := ent.Key()
	if err := s.locks.lock(ctx, key); err != nil {
		return out, err
	}
	defer s.locks.unlock(key)

	s.mu.RLock()
	prev := s.groups[key]
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		return out, ErrStopped
	}

	if prev != nil && !rep.SentAt.IsZero() && prev.ReportedAt().After(rep.SentAt) {
		out.Stale = true
		s.publish(eventbus.CooldownRejected, EventData{GroupID: prev.ID(), ChatID: key.ChatID, UserID: key.UserID, Reason: "stale"})
		s.log.Info("stale cooldown report ignored",
			logx.String("group", prev.ID()),
			logx.Int64("user_id", key.UserID),
			logx.Time("sent_at", rep.SentAt),
		)
		return out, nil
	}

	if prev != nil && prev.State() != StateTerminated {
		out.Superseded = true
		select {
		case <-prev.Cancel():
		case <-ctx.Done():
			return out, ctx.Err()
		}
		s.publish(eventbus.CooldownSuperseded, EventData{GroupID: prev.ID(), ChatID: key.ChatID, UserID: key.UserID, Count: len(prev.Records())})
		s.log.Debug("cooldown group superseded", logx.String("group", prev.ID()), logx.Int64("user_id", key.UserID))
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return out, ErrStopped
	}
	g := startGroup(s.base, ent, records, now, cfg.MinDelay, s.emit, s.log)
	g.sentAt = rep.SentAt
	s.groups[key] = g
	s.mu.Unlock()

	out.Tracked = len(records)
	out.GroupID = g.ID()
	s.publish(eventbus.CooldownIngested, EventData{GroupID: g.ID(), ChatID: key.ChatID, UserID: key.UserID, Count: out.Tracked})
	s.log.Info("cooldown report accepted",
		logx.String("group", g.ID()),
		logx.Int64("chat_id", key.ChatID),
		logx.Int64("user_id", key.UserID),
		logx.Int("tracked", out.Tracked),
		logx.Int("skipped", len(skipped)),
	)

	if s.deps.Acknowledger != nil {
		s.deps.Acknowledger.Acknowledge(ctx, ent, out.Tracked)
	}
	return out, nil
}

func (s *Supervisor) resolve(ctx context.Context, ref OwnerRef) (Entity, error) {
	if s.deps.Directory == nil {
		return Entity{}, fmt.Errorf("%w: no directory", ErrUnknownEntity)
	}
	ent, err := s.deps.Directory.Resolve(ctx, ref)
	if err != nil {
		if errors.Is(err, ErrUnknownEntity) {
			return Entity{}, err
		}
		return Entity{}, fmt.Errorf("%w: %q: %w", ErrUnknownEntity, ref.Identity, err)
	}
	return ent, nil
}

func (s *Supervisor) emit(ctx context.Context, g *Group, r Record) {
	owner := g.Owner()
	s.publish(eventbus.CooldownExpired, EventData{GroupID: g.ID(), ChatID: owner.ChatID, UserID: owner.UserID, Label: r.Label})
	s.log.Debug("cooldown expired", logx.String("group", g.ID()), logx.Int64("user_id", owner.UserID), logx.String("label", r.Label))
	if s.deps.Notifier != nil {
		s.deps.Notifier.NotifyExpired(ctx, owner, r.Label)
	}
}

func (s *Supervisor) publish(typ string, data EventData) {
	if s.deps.Bus != nil {
		s.deps.Bus.Publish(eventbus.Event{Type: typ, Data: data})
	}
}

// Cancel stops the owner's current group and waits for it to drain. It
// reports whether a running group was cancelled. The terminated group stays
// in the mapping until the next report replaces it.
func (s *Supervisor) Cancel(ctx context.Context, key OwnerKey) (bool, error) {
	if err := s.locks.lock(ctx, key); err != nil {
		return false, err
	}
	defer s.locks.unlock(key)

	s.mu.RLock()
	g := s.groups[key]
	s.mu.RUnlock()
	if g == nil || g.State() == StateTerminated {
		return false, nil
	}
	select {
	case <-g.Cancel():
	case <-ctx.Done():
		return false, ctx.Err()
	}
	s.publish(eventbus.CooldownSuperseded, EventData{GroupID: g.ID(), ChatID: key.ChatID, UserID: key.UserID, Reason: "stopped"})
	return true, nil
}

// Group returns the owner's current group, which may be terminated.
func (s *Supervisor) Group(key OwnerKey) (*Group, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[key]
	return g, ok
}

// Prune drops terminated groups from the mapping and returns how many were
// removed. Owners with a running group are kept.
func (s *Supervisor) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, g := range s.groups {
		if g.State() == StateTerminated {
			delete(s.groups, k)
			n++
		}
	}
	return n
}

// Stats is a point-in-time view for metrics and /rpg status. Owners counts
// mapping entries, terminated groups included until the next Prune.
type Stats struct {
	Owners       int
	ActiveGroups int
	PendingWaits int
}

func (s *Supervisor) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{Owners: len(s.groups)}
	for _, g := range s.groups {
		if g.State() == StateTerminated {
			continue
		}
		st.ActiveGroups++
		st.PendingWaits += len(g.Pending())
	}
	return st
}

// Owners lists the owner keys with an active group, sorted by chat then user.
func (s *Supervisor) Owners() []OwnerKey {
	s.mu.RLock()
	out := make([]OwnerKey, 0, len(s.groups))
	for k, g := range s.groups {
		if g.State() != StateTerminated {
			out = append(out, k)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].ChatID != out[j].ChatID {
			return out[i].ChatID < out[j].ChatID
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

// ownerLocks serializes Ingest and Cancel per owner. Lock honours ctx. An
// entry lives only while someone holds or waits for it.
type ownerLocks struct {
	mu    sync.Mutex
	locks map[OwnerKey]*ownerLock
}

type ownerLock struct {
	ch   chan struct{}
	refs int
}

func newOwnerLocks() *ownerLocks {
	return &ownerLocks{locks: map[OwnerKey]*ownerLock{}}
}

func (l *ownerLocks) lock(ctx context.Context, key OwnerKey) error {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &ownerLock{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.release(key, e)
		return ctx.Err()
	}
}

func (l *ownerLocks) unlock(key OwnerKey) {
	l.mu.Lock()
	e := l.locks[key]
	l.mu.Unlock()
	<-e.ch
	l.release(key, e)
}

func (l *ownerLocks) release(key OwnerKey, e *ownerLock) {
	l.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
}

func (l *ownerLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
