package cooldown

import (
	"context"
	"time"
)

// Record is one pending cooldown taken from a report.
type Record struct {
	Label  string
	Expiry time.Time
}

// OwnerRef is the raw owner identity as seen in a chat.
type OwnerRef struct {
	ChatID   int64
	ThreadID int
	Identity string
}

// Entity is a resolved tracked player.
type Entity struct {
	ChatID    int64
	ThreadID  int
	UserID    int64
	Username  string
	FirstName string
}

// OwnerKey identifies the slot a group occupies. Players are tracked per chat.
type OwnerKey struct {
	ChatID int64
	UserID int64
}

func (e Entity) Key() OwnerKey { return OwnerKey{ChatID: e.ChatID, UserID: e.UserID} }

// Report is a cooldowns report attributed to an owner.
type Report struct {
	Owner OwnerRef
	Lines []string
	// SentAt is when the platform says the report was posted. Zero means
	// unknown and disables the staleness check.
	SentAt time.Time
}

// Outcome describes what Ingest did.
type Outcome struct {
	Entity     Entity
	Eligible   bool
	Tracked    int
	Skipped    []*LineError
	Superseded bool
	// Stale is set when the owner already has a group from a newer report.
	Stale   bool
	GroupID string
}

type Directory interface {
	Resolve(ctx context.Context, ref OwnerRef) (Entity, error)
}

type Eligibility interface {
	IsEligible(ctx context.Context, e Entity) bool
}

// Notifier receives expired cooldowns. Delivery failures are the notifier's concern.
type Notifier interface {
	NotifyExpired(ctx context.Context, e Entity, label string)
}

type Acknowledger interface {
	Acknowledge(ctx context.Context, e Entity, count int)
}

type Clock interface {
	Now() time.Time
}

type DirectoryFunc func(ctx context.Context, ref OwnerRef) (Entity, error)

func (f DirectoryFunc) Resolve(ctx context.Context, ref OwnerRef) (Entity, error) {
	return f(ctx, ref)
}

type EligibilityFunc func(ctx context.Context, e Entity) bool

func (f EligibilityFunc) IsEligible(ctx context.Context, e Entity) bool { return f(ctx, e) }

type NotifierFunc func(ctx context.Context, e Entity, label string)

func (f NotifierFunc) NotifyExpired(ctx context.Context, e Entity, label string) { f(ctx, e, label) }

type AcknowledgerFunc func(ctx context.Context, e Entity, count int)

func (f AcknowledgerFunc) Acknowledge(ctx context.Context, e Entity, count int) { f(ctx, e, count) }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}
