package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	logx "cdbot/pkg/logx"
)

func TestParseScheduleVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		raw      string
		kind     SpecKind
		source   string
		duration time.Duration
		cron     string
	}{
		{name: "cron", raw: "*/5 * * * *", kind: SpecCron, source: "cron", cron: "*/5 * * * *"},
		{name: "prefixed cron", raw: "cron:0 0 * * *", kind: SpecCron, source: "cron", cron: "0 0 * * *"},
		{name: "descriptor", raw: "@every 1m", kind: SpecCron, source: "cron", cron: "@every 1m"},
		{name: "duration", raw: "10m", kind: SpecInterval, source: "duration", duration: 10 * time.Minute, cron: "@every 10m0s"},
		{name: "prefixed interval", raw: "interval:45s", kind: SpecInterval, source: "duration", duration: 45 * time.Second},
		{name: "every prefix", raw: "every:01:30", kind: SpecInterval, source: "hhmm", duration: 90 * time.Minute},
		{name: "hhmm", raw: "00:50", kind: SpecInterval, source: "hhmm", duration: 50 * time.Minute},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSchedule(tt.raw)
			if err != nil {
				t.Fatalf("ParseSchedule(%q) error: %v", tt.raw, err)
			}
			if got.Kind != tt.kind || got.Source != tt.source {
				t.Fatalf("got %+v, want kind %v source %s", got, tt.kind, tt.source)
			}
			if tt.kind == SpecInterval && got.Every != tt.duration {
				t.Fatalf("Every = %v, want %v", got.Every, tt.duration)
			}
			if tt.cron != "" && got.CronSpec() != tt.cron {
				t.Fatalf("CronSpec = %q, want %q", got.CronSpec(), tt.cron)
			}
		})
	}
}

func TestParseScheduleInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "not-a-schedule", "-5m", "00:00", "01:75", "cron:"} {
		if _, err := ParseSchedule(raw); err == nil {
			t.Fatalf("ParseSchedule(%q): expected error", raw)
		}
	}
}

func TestAddScheduleRejectsBadCron(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true}, logx.Nop())
	if err := s.AddSchedule("bad", "cron:61 * * * *", 0, func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected cron parse error")
	}
	if err := s.AddSchedule("", "1m", 0, func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected name error")
	}
}

func TestIntervalJobRunsAndRecordsFailures(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true, Timezone: "UTC"}, logx.Nop())
	var runs atomic.Int32
	err := s.AddSchedule("tick", "every:20ms", time.Second, func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("job context has no deadline")
		}
		runs.Add(1)
		return errors.New("nope")
	})
	if err != nil {
		t.Fatalf("AddSchedule: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop(context.Background())

	deadline := time.Now().Add(3 * time.Second)
	for runs.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("job ran %d times", runs.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}

	snap := s.Snapshot()
	if !snap.Running || len(snap.Jobs) != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if j := snap.Jobs[0]; j.Failures == 0 || j.LastErr != "nope" || j.Spec != "@every 20ms" {
		t.Fatalf("unexpected job info %+v", j)
	}
}

func TestDisabledSchedulerDoesNotStart(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())
	if err := s.AddSchedule("tick", "1m", 0, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("AddSchedule: %v", err)
	}
	s.Start(context.Background())
	if s.Snapshot().Running {
		t.Fatal("disabled scheduler should not run")
	}
	if !s.Remove("tick") || s.Remove("tick") {
		t.Fatal("Remove should report the job once")
	}
}
