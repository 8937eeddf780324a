package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "cdbot/pkg/logx"
)

type Config struct {
	Enabled  bool
	Timezone string // IANA TZ, e.g. "Asia/Jakarta"
}

// Job is one maintenance run. ctx carries the job timeout.
type Job func(ctx context.Context) error

type jobDef struct {
	name    string
	spec    ParsedSpec
	timeout time.Duration
	run     Job
	entryID cron.EntryID
	stats   *jobStats
}

type jobStats struct {
	mu       sync.Mutex
	runs     uint64
	failures uint64
	lastRun  time.Time
	lastTook time.Duration
	lastErr  string
}

// JobInfo is a point-in-time view of one schedule.
type JobInfo struct {
	Name     string
	Spec     string
	Timeout  time.Duration
	Next     time.Time
	Prev     time.Time
	Runs     uint64
	Failures uint64
	LastTook time.Duration
	LastErr  string
}

type Snapshot struct {
	Enabled  bool
	Running  bool
	Timezone string
	Jobs     []JobInfo
}

type Service struct {
	mu sync.Mutex

	log    logx.Logger
	cfg    Config
	loc    *time.Location
	parser cron.Parser
	c      *cron.Cron
	base   context.Context
	defs   []*jobDef
}
