package storage

import (
	"context"
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file at Path
//   - "memory": private in-memory SQLite database (tests, dry runs)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// AuditEntry records a user or operator action.
type AuditEntry struct {
	At            time.Time
	ActorID       int64
	ActorUsername string
	ChatID        int64
	ThreadID      int
	Action        string
	Target        string
	Error         string
	MetaJSON      string
}

// Role is an RPG role grant: the user opted in to cooldown tracking in a chat.
type Role struct {
	ChatID    int64
	UserID    int64
	Username  string
	GrantedAt time.Time
}

// Store is the persistence API used by the bot.
type Store interface {
	AppendAudit(ctx context.Context, e AuditEntry) error

	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (until time.Time, ok bool, err error)
	PruneDedup(ctx context.Context, now time.Time) (int64, error)

	GrantRole(ctx context.Context, r Role) error
	RevokeRole(ctx context.Context, chatID, userID int64) (bool, error)
	HasRole(ctx context.Context, chatID, userID int64) (bool, error)
	ListRoles(ctx context.Context, chatID int64) ([]Role, error)

	Close() error
}
