// Package storage persists RPG role grants, the audit trail and notifier
// dedup keys in SQLite (modernc.org/sqlite, no cgo).
//
// Cooldown groups are never stored: they live in memory only.
package storage
