package config

// Config is the whole bot configuration, loaded from a YAML or JSON file.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	RPG       RPGConfig       `json:"rpg"`
	Notifier  NotifierConfig  `json:"notifier,omitempty"`
	Storage   StorageConfig   `json:"storage,omitempty"`
	Scheduler SchedulerConfig `json:"scheduler,omitempty"`
	Ops       OpsConfig       `json:"ops,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is the long-polling timeout (default "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
	// OwnerUserIDs may use operator commands (/rpg stats).
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// RPGConfig describes the game bot and how its messages are read.
//
// Defaults:
//   - report_suffix: "'s cooldowns"
//   - marker: ":clock4:"
//   - min_delay: "1s"
//   - dispatch_workers: 4
//   - event_phrases: the built-in list of server events
type RPGConfig struct {
	// GameBotIDs are the user ids of the game bots whose messages are read.
	GameBotIDs      []int64  `json:"game_bot_ids"`
	ReportSuffix    string   `json:"report_suffix,omitempty"`
	Marker          string   `json:"marker,omitempty"`
	MinDelay        string   `json:"min_delay,omitempty"`
	RoleUserIDs     []int64  `json:"role_user_ids,omitempty"`
	EventPhrases    []string `json:"event_phrases,omitempty"`
	DispatchWorkers int      `json:"dispatch_workers,omitempty"`
	// Acknowledge controls the "tracking N cooldowns" reply (default on).
	Acknowledge *bool `json:"acknowledge,omitempty"`
}

// NotifierConfig controls the async notification pipeline.
type NotifierConfig struct {
	Workers         int    `json:"workers,omitempty"`
	QueueSize       int    `json:"queue_size,omitempty"`
	RatePerSec      int    `json:"rate_per_sec,omitempty"`
	RetryMax        int    `json:"retry_max,omitempty"`
	RetryBase       string `json:"retry_base,omitempty"`
	RetryMaxDelay   string `json:"retry_max_delay,omitempty"`
	DedupWindow     string `json:"dedup_window,omitempty"`
	DedupMaxEntries int    `json:"dedup_max_entries,omitempty"`
	PersistDedup    bool   `json:"persist_dedup,omitempty"`
}

// StorageConfig controls persistence.
//
// Example:
//
//	storage: { driver: sqlite, path: ./data/cdbot.db }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// SchedulerConfig controls the maintenance cron jobs. Specs use the
// robfig/cron syntax with an optional seconds field ("@every 1m" works too).
type SchedulerConfig struct {
	Enabled   bool   `json:"enabled"`
	Timezone  string `json:"timezone,omitempty"`
	StatsSpec string `json:"stats_spec,omitempty"` // default "@every 1m"
	PruneSpec string `json:"prune_spec,omitempty"` // default "0 0 * * * *"
}

// OpsConfig controls the operations HTTP server (health, pprof, metrics).
//
// Prefer binding to loopback. A non-loopback address needs a token or allow_insecure.
type OpsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`         // default "127.0.0.1:6060"
	PprofPrefix   string `json:"pprof_prefix,omitempty"` // default "/debug/pprof/"
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Metrics       *bool  `json:"metrics,omitempty"` // default on
	ReadTimeout   string `json:"read_timeout,omitempty"`
	IdleTimeout   string `json:"idle_timeout,omitempty"`
}

// DefaultEventPhrases open (or close) the first line of a game bot message
// that announces a server event. Matching ignores case and * or ` styling.
var DefaultEventPhrases = []string{
	":epicrpgarena:",
	"'s miniboss",
	"an epic tree has just grown",
	":coin:",
	"epic npc: i have a special trade today!",
	":epiccoin: oops!",
	"a megalodon has spawned",
	"it's raining coins",
}
