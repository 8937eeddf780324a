package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	logx "cdbot/pkg/logx"
)

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg: cfg,
		log: log.With(logx.String("comp", "scheduler")),
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		base:   context.Background(),
	}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Apply takes a new config. A timezone change restarts cron with the same jobs.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	s.cfg = cfg
	if s.c != nil && oldTZ != strings.TrimSpace(cfg.Timezone) {
		s.restartLocked()
	}
}

// Start begins triggering registered jobs. Job contexts derive from ctx.
// It does nothing when the scheduler is disabled or already running.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	if !s.cfg.Enabled {
		s.log.Info("scheduler disabled")
		return
	}
	s.base = ctx
	s.startLocked()
	s.log.Info("service started", logx.String("tz", s.loc.String()), logx.Int("schedules", len(s.defs)))
}

// Stop stops triggering and waits for running jobs until ctx ends.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}

// AddSchedule registers or replaces the job called name. See ParseSchedule
// for the accepted schedule forms.
func (s *Service) AddSchedule(name, schedule string, timeout time.Duration, job Job) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("name required")
	}
	if job == nil {
		return errors.New("job required")
	}
	ps, err := ParseSchedule(schedule)
	if err != nil {
		return err
	}
	if ps.Kind == SpecCron {
		if _, err := s.parser.Parse(ps.Cron); err != nil {
			return fmt.Errorf("schedule %q: %w", name, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
	d := &jobDef{name: name, spec: ps, timeout: timeout, run: job, stats: &jobStats{}}
	s.defs = append(s.defs, d)
	if s.c != nil {
		s.addLocked(d)
		s.log.Debug("schedule registered", logx.String("name", name), logx.String("spec", ps.CronSpec()), logx.Duration("timeout", timeout))
	}
	return nil
}

// Remove drops the job called name. It reports whether it existed.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(name)
}

func (s *Service) removeLocked(name string) bool {
	for i, d := range s.defs {
		if d.name != name {
			continue
		}
		if s.c != nil && d.entryID != 0 {
			s.c.Remove(d.entryID)
		}
		s.defs = append(s.defs[:i], s.defs[i+1:]...)
		return true
	}
	return false
}

func (s *Service) startLocked() {
	s.loc = s.loadLocationLocked()
	cl := cronLogger{log: s.log}
	s.c = cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(s.loc),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	for _, d := range s.defs {
		s.addLocked(d)
	}
	s.c.Start()
}

func (s *Service) restartLocked() {
	<-s.c.Stop().Done()
	s.startLocked()
	s.log.Info("service restarted", logx.String("tz", s.loc.String()), logx.Int("schedules", len(s.defs)))
}

func (s *Service) addLocked(d *jobDef) {
	job := cron.FuncJob(func() { s.run(d) })
	if d.spec.Kind == SpecInterval {
		sched, jitter := withStartupSpread(d.spec.Every, time.Now().In(s.loc))
		d.entryID = s.c.Schedule(sched, job)
		s.log.Debug("interval scheduled", logx.String("name", d.name), logx.Duration("spread", jitter))
		return
	}
	id, err := s.c.AddJob(d.spec.Cron, job)
	if err != nil {
		// AddSchedule parsed the spec already; only a parser change gets here.
		s.log.Error("schedule register failed", logx.String("name", d.name), logx.String("spec", d.spec.Cron), logx.Err(err))
		return
	}
	d.entryID = id
}

func (s *Service) run(d *jobDef) {
	s.mu.Lock()
	base := s.base
	s.mu.Unlock()

	ctx := base
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(base, d.timeout)
		defer cancel()
	}

	start := time.Now()
	err := d.run(ctx)
	took := time.Since(start)

	d.stats.mu.Lock()
	d.stats.runs++
	d.stats.lastRun = start
	d.stats.lastTook = took
	d.stats.lastErr = ""
	if err != nil {
		d.stats.failures++
		d.stats.lastErr = err.Error()
	}
	d.stats.mu.Unlock()

	if err != nil {
		s.log.Warn("job failed", logx.String("name", d.name), logx.Duration("took", took), logx.Err(err))
		return
	}
	s.log.Debug("job done", logx.String("name", d.name), logx.Duration("took", took))
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{Enabled: s.cfg.Enabled, Running: s.c != nil, Timezone: s.cfg.Timezone}
	if s.loc != nil && snap.Timezone == "" {
		snap.Timezone = s.loc.String()
	}
	for _, d := range s.defs {
		d.stats.mu.Lock()
		info := JobInfo{
			Name:     d.name,
			Spec:     d.spec.CronSpec(),
			Timeout:  d.timeout,
			Runs:     d.stats.runs,
			Failures: d.stats.failures,
			LastTook: d.stats.lastTook,
			LastErr:  d.stats.lastErr,
		}
		d.stats.mu.Unlock()
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			info.Next, info.Prev = e.Next, e.Prev
		}
		snap.Jobs = append(snap.Jobs, info)
	}
	return snap
}

// cronLogger routes robfig/cron's own messages (skips, recovered panics) to logx.
type cronLogger struct {
	log logx.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
