package rpg

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"cdbot/internal/cooldown"
	"cdbot/internal/storage"
	"cdbot/internal/transport"
	logx "cdbot/pkg/logx"
)

// ErrRolesReadOnly is returned by Join and Leave when storage is disabled.
var ErrRolesReadOnly = errors.New("rpg roles are read-only without storage")

// Roles is the eligibility oracle: a user holds the RPG role in a chat when
// the config lists them globally or a grant is stored for that chat.
type Roles struct {
	store storage.Store
	log   logx.Logger

	mu     sync.RWMutex
	static []int64
}

func NewRoles(store storage.Store, static []int64, log logx.Logger) *Roles {
	r := &Roles{store: store, log: log}
	r.SetStatic(static)
	return r
}

// SetStatic replaces the config-listed role holders.
func (r *Roles) SetStatic(ids []int64) {
	cp := slices.Clone(ids)
	slices.Sort(cp)
	r.mu.Lock()
	r.static = slices.Compact(cp)
	r.mu.Unlock()
}

func (r *Roles) isStatic(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := slices.BinarySearch(r.static, userID)
	return ok
}

func (r *Roles) Has(ctx context.Context, chatID, userID int64) bool {
	if r.isStatic(userID) {
		return true
	}
	if r.store == nil {
		return false
	}
	ok, err := r.store.HasRole(ctx, chatID, userID)
	if err != nil {
		r.log.Warn("role lookup failed", logx.Int64("chat_id", chatID), logx.Int64("user_id", userID), logx.Err(err))
		return false
	}
	return ok
}

// IsEligible implements cooldown.Eligibility.
func (r *Roles) IsEligible(ctx context.Context, e cooldown.Entity) bool {
	return r.Has(ctx, e.ChatID, e.UserID)
}

// Join grants the role. It reports false when the user already had it.
func (r *Roles) Join(ctx context.Context, chatID int64, m transport.Member) (bool, error) {
	if r.store == nil {
		return false, ErrRolesReadOnly
	}
	had, err := r.store.HasRole(ctx, chatID, m.UserID)
	if err != nil {
		return false, err
	}
	if err := r.store.GrantRole(ctx, storage.Role{ChatID: chatID, UserID: m.UserID, Username: m.Username, GrantedAt: time.Now()}); err != nil {
		return false, err
	}
	return !had, nil
}

// Leave revokes the stored role. Config-listed users keep it.
func (r *Roles) Leave(ctx context.Context, chatID, userID int64) (bool, error) {
	if r.store == nil {
		return false, ErrRolesReadOnly
	}
	return r.store.RevokeRole(ctx, chatID, userID)
}

// Holders lists role holders of a chat. Config-listed users come with their
// id only; callers resolve names when they need them.
func (r *Roles) Holders(ctx context.Context, chatID int64) ([]transport.Member, error) {
	seen := map[int64]bool{}
	var out []transport.Member
	if r.store != nil {
		roles, err := r.store.ListRoles(ctx, chatID)
		if err != nil {
			return nil, err
		}
		for _, ro := range roles {
			seen[ro.UserID] = true
			out = append(out, transport.Member{UserID: ro.UserID, Username: ro.Username})
		}
	}
	r.mu.RLock()
	for _, id := range r.static {
		if !seen[id] {
			out = append(out, transport.Member{UserID: id})
		}
	}
	r.mu.RUnlock()
	return out, nil
}
