package rpg

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"cdbot/internal/cooldown"
	"cdbot/internal/transport"
)

// Directory resolves report owners against the chat member list.
type Directory struct {
	Members transport.MemberResolver
}

func (d Directory) Resolve(ctx context.Context, ref cooldown.OwnerRef) (cooldown.Entity, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(ref.Identity), 10, 64)
	if err != nil || id <= 0 {
		return cooldown.Entity{}, fmt.Errorf("%w: malformed identity %q", cooldown.ErrUnknownEntity, ref.Identity)
	}
	if d.Members == nil {
		return cooldown.Entity{}, fmt.Errorf("%w: no member resolver", cooldown.ErrUnknownEntity)
	}
	m, err := d.Members.ResolveMember(ctx, ref.ChatID, id)
	if err != nil {
		if errors.Is(err, transport.ErrNotMember) {
			return cooldown.Entity{}, fmt.Errorf("%w: user %d is not in chat %d", cooldown.ErrUnknownEntity, id, ref.ChatID)
		}
		return cooldown.Entity{}, fmt.Errorf("%w: user %d: %w", cooldown.ErrUnknownEntity, id, err)
	}
	return cooldown.Entity{
		ChatID:    ref.ChatID,
		ThreadID:  ref.ThreadID,
		UserID:    m.UserID,
		Username:  m.Username,
		FirstName: m.FirstName,
	}, nil
}
