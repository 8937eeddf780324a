package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate checks a parsed config. It collects every problem instead of
// stopping at the first one.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token is required"))
	}
	if len(cfg.RPG.GameBotIDs) == 0 {
		errs = append(errs, errors.New("rpg.game_bot_ids must list at least one bot"))
	}
	if cfg.RPG.DispatchWorkers < 0 {
		errs = append(errs, errors.New("rpg.dispatch_workers must be >= 0"))
	}

	for path, raw := range map[string]string{
		"telegram.poll_timeout":    cfg.Telegram.PollTimeout,
		"rpg.min_delay":            cfg.RPG.MinDelay,
		"notifier.retry_base":      cfg.Notifier.RetryBase,
		"notifier.retry_max_delay": cfg.Notifier.RetryMaxDelay,
		"notifier.dedup_window":    cfg.Notifier.DedupWindow,
		"storage.busy_timeout":     cfg.Storage.BusyTimeout,
		"ops.read_timeout":         cfg.Ops.ReadTimeout,
		"ops.idle_timeout":         cfg.Ops.IdleTimeout,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}

	switch d := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)); d {
	case "", "none", "memory":
	case "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			errs = append(errs, errors.New("storage.path is required for sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", d))
	}

	if cfg.Scheduler.Enabled {
		parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		for path, spec := range map[string]string{
			"scheduler.stats_spec": cfg.Scheduler.StatsSpec,
			"scheduler.prune_spec": cfg.Scheduler.PruneSpec,
		} {
			if spec == "" {
				continue
			}
			if _, err := parser.Parse(spec); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", path, err))
			}
		}
	}
	return errors.Join(errs...)
}
