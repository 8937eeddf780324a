package app

import (
	"context"
	"time"

	"cdbot/internal/config"
	logx "cdbot/pkg/logx"
)

const (
	jobCooldownStats = "cooldown.stats"
	jobStoragePrune  = "storage.prune"
)

// registerJobs (re)registers the maintenance jobs. Registering by name
// replaces the previous schedule, so this is safe on every reload.
func (a *App) registerJobs(cfg *config.Config) error {
	statsSpec, pruneSpec := schedulerSpecs(cfg)
	if err := a.sched.AddSchedule(jobCooldownStats, statsSpec, 5*time.Second, a.logCooldownStats); err != nil {
		return err
	}
	if a.store == nil {
		a.sched.Remove(jobStoragePrune)
		return nil
	}
	return a.sched.AddSchedule(jobStoragePrune, pruneSpec, 30*time.Second, a.pruneStorage)
}

// logCooldownStats prunes finished groups, then logs the supervisor counters.
func (a *App) logCooldownStats(context.Context) error {
	pruned := a.cooldowns.Prune()
	st := a.cooldowns.Stats()
	a.log.Info("cooldown stats",
		logx.Int("owners", st.Owners),
		logx.Int("pruned", pruned),
		logx.Int("active_groups", st.ActiveGroups),
		logx.Int("pending_waits", st.PendingWaits),
		logx.Uint64("updates_dropped", a.adapter.Dropped()),
	)
	return nil
}

func (a *App) pruneStorage(ctx context.Context) error {
	n, err := a.store.PruneDedup(ctx, time.Now())
	if err != nil {
		return err
	}
	if n > 0 {
		a.log.Debug("dedup keys pruned", logx.Int64("rows", n))
	}
	return nil
}
