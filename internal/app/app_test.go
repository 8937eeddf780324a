package app

import (
	"testing"
	"time"

	"cdbot/internal/config"
	"cdbot/internal/cooldown"
)

func TestMapRPGSettingsDefaultsEventPhrases(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{RPG: config.RPGConfig{GameBotIDs: []int64{555}}, Telegram: config.TelegramConfig{OwnerUserIDs: []int64{1}}}
	s := mapRPGSettings(cfg)
	if len(s.EventPhrases) != len(config.DefaultEventPhrases) {
		t.Fatalf("EventPhrases = %v, want defaults", s.EventPhrases)
	}
	if len(s.OwnerUserIDs) != 1 || s.GameBotIDs[0] != 555 {
		t.Fatalf("unexpected settings %+v", s)
	}

	cfg.RPG.EventPhrases = []string{"boss"}
	if got := mapRPGSettings(cfg).EventPhrases; len(got) != 1 || got[0] != "boss" {
		t.Fatalf("EventPhrases = %v, want [boss]", got)
	}
}

func TestMapCooldownConfig(t *testing.T) {
	t.Parallel()
	got := mapCooldownConfig(&config.Config{RPG: config.RPGConfig{Marker: " :clock1: ", MinDelay: "250ms"}})
	if got.Marker != ":clock1:" || got.MinDelay != 250*time.Millisecond {
		t.Fatalf("unexpected cooldown config %+v", got)
	}
	if d := mapCooldownConfig(&config.Config{}).MinDelay; d != cooldown.DefaultMinDelay {
		t.Fatalf("MinDelay = %v, want default", d)
	}
}

func TestMapNotifierConfig(t *testing.T) {
	t.Parallel()
	got, err := mapNotifierConfig(&config.Config{Notifier: config.NotifierConfig{Workers: 3, RetryBase: "1s", DedupWindow: "2m"}})
	if err != nil {
		t.Fatalf("mapNotifierConfig: %v", err)
	}
	if got.Workers != 3 || got.RetryBase != time.Second || got.DedupWindow != 2*time.Minute {
		t.Fatalf("unexpected notifier config %+v", got)
	}
	if _, err := mapNotifierConfig(&config.Config{Notifier: config.NotifierConfig{RetryBase: "soon"}}); err == nil {
		t.Fatal("expected duration error")
	}
}

func TestMapOpsConfigMetricsDefaultOn(t *testing.T) {
	t.Parallel()
	if !mapOpsConfig(&config.Config{}).Metrics {
		t.Fatal("metrics should default to on")
	}
	off := false
	if mapOpsConfig(&config.Config{Ops: config.OpsConfig{Metrics: &off}}).Metrics {
		t.Fatal("metrics should follow the config")
	}
}

func TestSmallDefaults(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	if dispatchWorkers(cfg) != defaultDispatchWorkers {
		t.Fatal("dispatch workers default")
	}
	if !acknowledgeEnabled(cfg) {
		t.Fatal("acknowledge should default to on")
	}
	stats, prune := schedulerSpecs(cfg)
	if stats != defaultStatsSpec || prune != defaultPruneSpec {
		t.Fatalf("specs = %q %q", stats, prune)
	}
	sc, err := mapStorageConfig(&config.Config{Storage: config.StorageConfig{Driver: " SQLite ", Path: "x.db"}})
	if err != nil || sc.Driver != "sqlite" {
		t.Fatalf("storage config %+v, %v", sc, err)
	}
}
