package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cdbot/internal/config"
	"cdbot/internal/cooldown"
	"cdbot/internal/eventbus"
	"cdbot/internal/notifier"
	"cdbot/internal/observability/ops"
	"cdbot/internal/rpg"
	rtsup "cdbot/internal/runtime/supervisor"
	"cdbot/internal/scheduler"
	"cdbot/internal/storage"
	"cdbot/internal/transport"
	telegram "cdbot/internal/transport/telegram/adapter"
	logx "cdbot/pkg/logx"
)

// App wires the Telegram adapter, the cooldown supervisor and the services
// around them.
type App struct {
	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter *telegram.Adapter

	cooldowns *cooldown.Supervisor
	roles     *rpg.Roles
	sinks     *rpg.Sinks
	watcher   *rpg.Watcher

	notif   *notifier.Service
	sched   *scheduler.Service
	ops     *ops.Service
	metrics *ops.Metrics

	// svcCtx outlives the app supervisor so the notifier can drain on Stop.
	svcCtx    context.Context
	svcCancel context.CancelFunc

	updates chan transport.Update
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	// The adapter is needed by the logging service (Telegram sink), so it
	// starts with a console logger.
	bootLog := logx.NewConsole(cfg.Logging.Level)
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: config.DurationOr(cfg.Telegram.PollTimeout, 10*time.Second),
	}, bootLog)
	if err != nil {
		return nil, err
	}

	logSvc, root := logx.New(mapLoggingConfig(cfg), ad)
	log := root.With(logx.String("comp", "app"))
	cfgm.SetLogger(root)

	bus := eventbus.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, root.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	if store != nil {
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	} else {
		log.Warn("storage disabled; /rpg join and /rpg leave are read-only")
	}

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	notif := notifier.New(ncfg, ad, root, bus, store)

	roles := rpg.NewRoles(store, cfg.RPG.RoleUserIDs, root.With(logx.String("comp", "roles")))
	sinks := rpg.NewSinks(notif, acknowledgeEnabled(cfg), root.With(logx.String("comp", "sinks")))
	cds := cooldown.NewSupervisor(mapCooldownConfig(cfg), cooldown.Deps{
		Directory:    rpg.Directory{Members: ad},
		Eligibility:  roles,
		Notifier:     sinks,
		Acknowledger: sinks,
		Bus:          bus,
		Log:          root,
	})
	watcher := rpg.NewWatcher(mapRPGSettings(cfg), rpg.Deps{
		Tracker: cds,
		Roles:   roles,
		Sinks:   sinks,
		Members: ad,
		Store:   store,
		Log:     root,
	})

	metrics := ops.NewMetrics(cds.Stats)
	a := &App{
		cfgm:      cfgm,
		log:       log,
		logs:      logSvc,
		bus:       bus,
		store:     store,
		adapter:   ad,
		cooldowns: cds,
		roles:     roles,
		sinks:     sinks,
		watcher:   watcher,
		notif:     notif,
		sched:     scheduler.New(mapSchedulerConfig(cfg), root),
		metrics:   metrics,
		updates:   make(chan transport.Update, 256),
	}
	a.ops = ops.New(mapOpsConfig(cfg), root, metrics, a.health)
	if err := a.registerJobs(cfg); err != nil {
		return nil, err
	}
	return a, nil
}

// Done is closed when the app supervisor context is cancelled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) health() error {
	if a.sup == nil {
		return errors.New("not started")
	}
	if err := a.sup.Context().Err(); err != nil {
		return fmt.Errorf("stopping: %w", err)
	}
	return nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.svcCtx, a.svcCancel = context.WithCancel(context.WithoutCancel(ctx))
	runCtx := a.sup.Context()

	if err := a.cooldowns.Start(runCtx); err != nil {
		return err
	}
	if err := a.notif.Start(a.svcCtx); err != nil {
		return err
	}
	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		return err
	}
	if err := a.adapter.SetCommands(runCtx, rpg.Commands()); err != nil {
		a.log.Warn("set bot commands failed", logx.Err(err))
	}
	a.sched.Start(runCtx)
	a.ops.Start(runCtx)

	a.sup.Go0("metrics.events", func(c context.Context) { a.metrics.Consume(c, a.bus) })
	a.sup.Go0("eventbus.log", a.logEvents)

	cfg := a.cfgm.Get()
	workers := dispatchWorkers(cfg)
	a.sup.Go0("dispatch", func(c context.Context) {
		rpg.Dispatcher{Workers: workers, Handle: a.watcher.HandleMessage, Log: a.log}.Run(c, a.updates)
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.GoRestart("config.watch", a.cfgm.Watch, rtsup.WithRestartBackoff(time.Second, time.Minute))

	a.sup.Go0("systemd.watchdog", a.watchdog)
	sdNotify(a.log, sdReady)

	a.log.Info("app started",
		logx.String("bot", a.adapter.Me()),
		logx.Int("dispatch_workers", workers),
		logx.Int("game_bots", len(cfg.RPG.GameBotIDs)),
	)
	return nil
}

func (a *App) logEvents(ctx context.Context) {
	events, unsub := a.bus.Subscribe(128)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			a.log.Trace("event", logx.String("type", e.Type), logx.Any("data", e.Data))
		}
	}
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: apply only the newest config.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						cfg = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(ctx, last, cfg)
			last = cfg
		}
	}
}

func (a *App) applyConfig(ctx context.Context, prev, cfg *config.Config) {
	sections := config.Changed(prev, cfg)
	for _, s := range sections {
		if strings.HasSuffix(s, "(restart)") {
			a.log.Warn("config section changed; restart required for it to take effect", logx.String("section", strings.TrimSuffix(s, " (restart)")))
		}
	}

	a.logs.Apply(mapLoggingConfig(cfg))

	if ncfg, err := mapNotifierConfig(cfg); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		a.notif.Apply(ncfg)
	}

	a.cooldowns.SetConfig(mapCooldownConfig(cfg))
	a.roles.SetStatic(cfg.RPG.RoleUserIDs)
	a.sinks.SetAcknowledge(acknowledgeEnabled(cfg))
	a.watcher.Apply(mapRPGSettings(cfg))

	wasEnabled := a.sched.Enabled()
	a.sched.Apply(mapSchedulerConfig(cfg))
	if err := a.registerJobs(cfg); err != nil {
		a.log.Warn("scheduler jobs not updated", logx.Err(err))
	}
	switch {
	case wasEnabled && !cfg.Scheduler.Enabled:
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.sched.Stop(stopCtx)
		cancel()
		a.log.Info("scheduler disabled via config")
	case !wasEnabled && cfg.Scheduler.Enabled:
		a.sched.Start(ctx)
		a.log.Info("scheduler enabled via config")
	}

	a.ops.Reconfigure(ctx, mapOpsConfig(cfg))

	a.bus.Publish(eventbus.Event{Type: eventbus.ConfigReloaded, Data: sections})
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	a.log.Info("config reloaded", logx.String("changed", strings.Join(sections, ",")))
}

// Stop shuts the app down in dependency order. Each step is bounded so one
// component cannot stall the whole stop.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	sdNotify(a.log, sdStopping)
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Dispatchers, the config watcher and polling unwind first.
	a.sup.Cancel()

	a.step(ctx, "scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	a.step(ctx, "ops", time.Second, func(c context.Context) error { a.ops.Stop(c); return nil })
	a.step(ctx, "adapter.poll", 2*time.Second, a.adapter.Stop)
	// Waits already emitting finish and enqueue their ping before the notifier drains.
	a.step(ctx, "cooldowns", 3*time.Second, a.cooldowns.Stop)
	a.step(ctx, "notifier", 3*time.Second, a.notif.Stop)
	a.svcCancel()
	a.step(ctx, "storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})
	a.step(ctx, "supervisor", 2*time.Second, a.sup.Wait)

	a.log.Info("stopped")
	return a.logs.Close()
}

func (a *App) step(ctx context.Context, name string, limit time.Duration, fn func(context.Context) error) {
	start := time.Now()
	stepCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
	}
}
