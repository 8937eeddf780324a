package ops

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cdbot/internal/cooldown"
	"cdbot/internal/eventbus"
)

// Metrics owns a private registry fed from the event bus and from the
// cooldown supervisor's stats.
type Metrics struct {
	reg    *prometheus.Registry
	events *prometheus.CounterVec
}

// NewMetrics registers the cdbot collectors. stats may be nil.
func NewMetrics(stats func() cooldown.Stats) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cdbot",
			Name:      "events_total",
			Help:      "Internal events by type (cooldown.*, notifier.*, config.*).",
		}, []string{"type"}),
	}
	reg.MustRegister(
		m.events,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if stats != nil {
		gauge := func(name, help string, pick func(cooldown.Stats) int) prometheus.GaugeFunc {
			return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: "cdbot",
				Subsystem: "cooldown",
				Name:      name,
				Help:      help,
			}, func() float64 { return float64(pick(stats())) })
		}
		reg.MustRegister(
			gauge("owners", "Owners with a group, running or not.", func(s cooldown.Stats) int { return s.Owners }),
			gauge("active_groups", "Groups that still have waits running.", func(s cooldown.Stats) int { return s.ActiveGroups }),
			gauge("pending_waits", "Records that have not fired yet.", func(s cooldown.Stats) int { return s.PendingWaits }),
		)
	}
	return m
}

// Observe counts one event.
func (m *Metrics) Observe(e eventbus.Event) {
	m.events.WithLabelValues(e.Type).Inc()
}

// Consume counts bus events until ctx ends.
func (m *Metrics) Consume(ctx context.Context, bus eventbus.Bus) {
	ch, unsub := bus.Subscribe(256)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			m.Observe(e)
		}
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
