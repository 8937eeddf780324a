package cooldown

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"cdbot/internal/runtime/supervisor"
	logx "cdbot/pkg/logx"
)

// DefaultMinDelay is the shortest wait of a record, even when its expiry already passed.
const DefaultMinDelay = time.Second

type State int32

const (
	StatePending State = iota
	StateDraining
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateDraining:
		return "draining"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

type emitFunc func(ctx context.Context, g *Group, r Record)

// Group runs one wait per record of an accepted report.
//
// Waits are goroutines of a private runtime supervisor: cancelling the group
// cancels the supervisor context and the drain signal is closed when the
// supervisor has no goroutines left.
type Group struct {
	id        string
	owner     Entity
	records   []Record
	startedAt time.Time
	sentAt    time.Time

	sup   *supervisor.Supervisor
	state atomic.Int32
	fired []atomic.Bool
	done  chan struct{}
}

func startGroup(parent context.Context, owner Entity, records []Record, now time.Time, minDelay time.Duration, emit emitFunc, log logx.Logger) *Group {
	if minDelay <= 0 {
		minDelay = DefaultMinDelay
	}
	g := &Group{
		id:        uuid.NewString(),
		owner:     owner,
		records:   append([]Record(nil), records...),
		startedAt: now,
		fired:     make([]atomic.Bool, len(records)),
		done:      make(chan struct{}),
	}
	if len(g.records) == 0 {
		g.state.Store(int32(StateTerminated))
		close(g.done)
		return g
	}

	g.sup = supervisor.New(parent, supervisor.WithLogger(log))
	for i, r := range g.records {
		i, r := i, r
		delay := max(r.Expiry.Sub(now), minDelay)
		g.sup.Go0("cooldown.wait", func(ctx context.Context) {
			t := time.NewTimer(delay)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
			if ctx.Err() != nil {
				return
			}
			g.fired[i].Store(true)
			emit(context.WithoutCancel(ctx), g, r)
		})
	}
	go func() {
		<-g.sup.Done()
		g.state.Store(int32(StateTerminated))
		g.sup.Cancel()
		close(g.done)
	}()
	return g
}

func (g *Group) ID() string            { return g.id }
func (g *Group) Owner() Entity         { return g.owner }
func (g *Group) StartedAt() time.Time  { return g.startedAt }

// ReportedAt is the SentAt of the report that started the group.
func (g *Group) ReportedAt() time.Time { return g.sentAt }
func (g *Group) State() State          { return State(g.state.Load()) }
func (g *Group) Done() <-chan struct{} { return g.done }

// Records returns a copy of every record of the group.
func (g *Group) Records() []Record { return append([]Record(nil), g.records...) }

// Pending returns the records that have not fired yet. A terminated group has none.
func (g *Group) Pending() []Record {
	if g.State() == StateTerminated {
		return nil
	}
	out := make([]Record, 0, len(g.records))
	for i, r := range g.records {
		if !g.fired[i].Load() {
			out = append(out, r)
		}
	}
	return out
}

// Cancel stops every wait that is still sleeping. A wait that is already
// emitting finishes its emission. The returned channel is closed once the
// group is terminated.
func (g *Group) Cancel() <-chan struct{} {
	if g.state.CompareAndSwap(int32(StatePending), int32(StateDraining)) {
		g.sup.Cancel()
	}
	return g.done
}
