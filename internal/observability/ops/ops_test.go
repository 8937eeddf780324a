package ops

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdbot/internal/cooldown"
	"cdbot/internal/eventbus"
	logx "cdbot/pkg/logx"
)

func get(t *testing.T, h http.Handler, target string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	healthy := true
	s := New(Config{}, logx.Nop(), nil, func() error {
		if !healthy {
			return errors.New("supervisor stopped")
		}
		return nil
	})
	h := s.handler(Config{})

	rec := get(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	healthy = false
	rec = get(t, h, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestTokenAuth(t *testing.T) {
	t.Parallel()
	h := New(Config{}, logx.Nop(), nil, nil).handler(Config{Token: "s3cret"})

	assert.Equal(t, http.StatusUnauthorized, get(t, h, "/healthz").Code)
	assert.Equal(t, http.StatusUnauthorized, get(t, h, "/healthz?token=nope").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/healthz?token=s3cret").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/healthz", "Authorization", "Bearer s3cret").Code)
}

func TestMetricsCountEventsAndStats(t *testing.T) {
	t.Parallel()
	m := NewMetrics(func() cooldown.Stats { return cooldown.Stats{Owners: 3, ActiveGroups: 2, PendingWaits: 5} })
	bus := eventbus.New()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Consume(ctx, bus)
		close(done)
	}()

	h := New(Config{}, logx.Nop(), m, nil).handler(Config{Metrics: true})
	require.Eventually(t, func() bool {
		bus.Publish(eventbus.Event{Type: eventbus.CooldownIngested})
		return strings.Contains(get(t, h, "/metrics").Body.String(), `cdbot_events_total{type="cooldown.ingested"}`)
	}, 2*time.Second, 10*time.Millisecond)

	body := get(t, h, "/metrics").Body.String()
	assert.Contains(t, body, "cdbot_cooldown_active_groups 2")
	assert.Contains(t, body, "cdbot_cooldown_pending_waits 5")
	assert.Contains(t, body, "go_goroutines")

	cancel()
	<-done
}

func TestMetricsDisabled(t *testing.T) {
	t.Parallel()
	h := New(Config{}, logx.Nop(), NewMetrics(nil), nil).handler(Config{Metrics: false})
	assert.Equal(t, http.StatusNotFound, get(t, h, "/metrics").Code)
}

func TestPprofPrefix(t *testing.T) {
	t.Parallel()
	h := New(Config{}, logx.Nop(), nil, nil).handler(Config{PprofPrefix: "ops/pprof"})
	rec := get(t, h, "/ops/pprof/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "goroutine")

	assert.Equal(t, http.StatusPermanentRedirect, get(t, h, "/ops/pprof").Code)
}

func TestHelpers(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "/debug/pprof/", normalizePrefix(""))
	assert.Equal(t, "/x/", normalizePrefix("x"))
	assert.True(t, isLoopbackAddr("127.0.0.1:6060"))
	assert.True(t, isLoopbackAddr("localhost:1"))
	assert.False(t, isLoopbackAddr(":6060"))
	assert.False(t, isLoopbackAddr("0.0.0.0:6060"))
}

func TestStartServesAndStops(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, logx.Nop(), nil, nil)
	s.Start(context.Background())
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.srv != nil
	}, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Nil(t, s.sup)
}
