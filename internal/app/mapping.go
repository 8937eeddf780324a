package app

import (
	"strings"
	"time"

	"cdbot/internal/config"
	"cdbot/internal/cooldown"
	"cdbot/internal/notifier"
	"cdbot/internal/observability/ops"
	"cdbot/internal/rpg"
	"cdbot/internal/scheduler"
	"cdbot/internal/storage"
	logx "cdbot/pkg/logx"
)

const (
	defaultDispatchWorkers = 4
	defaultStatsSpec       = "@every 1m"
	defaultPruneSpec       = "0 0 * * * *"
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ChatID:     cfg.Logging.Telegram.ChatID,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

// mapNotifierConfig parses durations; zero values fall back to notifier defaults.
func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	n := cfg.Notifier
	retryBase, err := config.ParseDurationField("notifier.retry_base", n.RetryBase)
	if err != nil {
		return notifier.Config{}, err
	}
	retryMax, err := config.ParseDurationField("notifier.retry_max_delay", n.RetryMaxDelay)
	if err != nil {
		return notifier.Config{}, err
	}
	dedup, err := config.ParseDurationField("notifier.dedup_window", n.DedupWindow)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		Workers:         n.Workers,
		QueueSize:       n.QueueSize,
		RatePerSec:      n.RatePerSec,
		RetryMax:        n.RetryMax,
		RetryBase:       retryBase,
		RetryMaxDelay:   retryMax,
		DedupWindow:     dedup,
		DedupMaxEntries: n.DedupMaxEntries,
		PersistDedup:    n.PersistDedup,
	}, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)),
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, nil
}

func mapOpsConfig(cfg *config.Config) ops.Config {
	o := cfg.Ops
	return ops.Config{
		Enabled:       o.Enabled,
		Addr:          o.Addr,
		PprofPrefix:   o.PprofPrefix,
		Token:         o.Token,
		AllowInsecure: o.AllowInsecure,
		Metrics:       o.Metrics == nil || *o.Metrics,
		ReadTimeout:   config.DurationOr(o.ReadTimeout, 10*time.Second),
		IdleTimeout:   config.DurationOr(o.IdleTimeout, 60*time.Second),
	}
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{Enabled: cfg.Scheduler.Enabled, Timezone: cfg.Scheduler.Timezone}
}

func mapCooldownConfig(cfg *config.Config) cooldown.Config {
	return cooldown.Config{
		Marker:   strings.TrimSpace(cfg.RPG.Marker),
		MinDelay: config.DurationOr(cfg.RPG.MinDelay, cooldown.DefaultMinDelay),
	}
}

func mapRPGSettings(cfg *config.Config) rpg.Settings {
	phrases := cfg.RPG.EventPhrases
	if len(phrases) == 0 {
		phrases = config.DefaultEventPhrases
	}
	return rpg.Settings{
		GameBotIDs:   cfg.RPG.GameBotIDs,
		ReportSuffix: cfg.RPG.ReportSuffix,
		EventPhrases: phrases,
		OwnerUserIDs: cfg.Telegram.OwnerUserIDs,
	}
}

func acknowledgeEnabled(cfg *config.Config) bool {
	return cfg.RPG.Acknowledge == nil || *cfg.RPG.Acknowledge
}

func dispatchWorkers(cfg *config.Config) int {
	if cfg.RPG.DispatchWorkers > 0 {
		return cfg.RPG.DispatchWorkers
	}
	return defaultDispatchWorkers
}

func schedulerSpecs(cfg *config.Config) (stats, prune string) {
	stats, prune = cfg.Scheduler.StatsSpec, cfg.Scheduler.PruneSpec
	if strings.TrimSpace(stats) == "" {
		stats = defaultStatsSpec
	}
	if strings.TrimSpace(prune) == "" {
		prune = defaultPruneSpec
	}
	return stats, prune
}
