package config

import "reflect"

// Changed lists the top-level sections that differ between two configs.
// Sections that need a restart are suffixed with " (restart)".
func Changed(old, cur *Config) []string {
	if old == nil || cur == nil {
		return nil
	}
	var out []string
	add := func(name string, a, b any, restart bool) {
		if reflect.DeepEqual(a, b) {
			return
		}
		if restart {
			name += " (restart)"
		}
		out = append(out, name)
	}
	add("telegram", old.Telegram, cur.Telegram, true)
	add("logging", old.Logging, cur.Logging, false)
	add("rpg", old.RPG, cur.RPG, false)
	add("notifier", old.Notifier, cur.Notifier, false)
	add("storage", old.Storage, cur.Storage, true)
	add("scheduler", old.Scheduler, cur.Scheduler, false)
	add("ops", old.Ops, cur.Ops, false)
	return out
}
