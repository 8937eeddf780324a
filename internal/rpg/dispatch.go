package rpg

import (
	"context"
	"fmt"

	rtsup "cdbot/internal/runtime/supervisor"
	"cdbot/internal/transport"
	logx "cdbot/pkg/logx"
)

// Dispatcher hands incoming messages to a fixed pool of workers. Every chat
// maps to one worker, so messages of a chat are handled in arrival order
// while a report draining in one chat does not hold up chats on other workers.
type Dispatcher struct {
	Workers int
	// Buffer is the per-worker queue length. Defaults to 16.
	Buffer int
	Handle func(ctx context.Context, m *transport.Message)
	Log    logx.Logger
}

// Run reads in until ctx ends or in is closed, then waits for the workers.
func (d Dispatcher) Run(ctx context.Context, in <-chan transport.Update) {
	n := max(d.Workers, 1)
	buf := d.Buffer
	if buf <= 0 {
		buf = 16
	}

	sup := rtsup.New(ctx, rtsup.WithLogger(d.Log))
	shards := make([]chan *transport.Message, n)
	for i := range shards {
		ch := make(chan *transport.Message, buf)
		shards[i] = ch
		sup.Go0(fmt.Sprintf("dispatch.%d", i), func(c context.Context) {
			for {
				select {
				case <-c.Done():
					return
				case m, ok := <-ch:
					if !ok {
						return
					}
					d.Handle(c, m)
				}
			}
		})
	}
	defer func() {
		for _, ch := range shards {
			close(ch)
		}
		_ = sup.Wait(context.Background())
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-in:
			if !ok {
				return
			}
			if u.Kind != transport.UpdateMessage || u.Message == nil {
				continue
			}
			select {
			case shards[shardOf(u.Message.ChatID, n)] <- u.Message:
			case <-ctx.Done():
				return
			}
		}
	}
}

func shardOf(chatID int64, n int) int {
	return int(uint64(chatID) % uint64(n))
}
