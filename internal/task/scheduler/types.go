package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "adsposter/pkg/logx"
)

// Config controls the trigger service.
type Config struct {
	Enabled  bool
	Timezone string // IANA TZ, e.g. "Asia/Jakarta"
}

// Job is invoked when a trigger fires.
type Job func(ctx context.Context) error

type scheduleDef struct {
	name          string
	spec          string // cron spec or @every
	job           Job
	entryID       cron.EntryID
	startupSpread time.Duration
}

type Service struct {
	mu sync.Mutex

	log     logx.Logger
	cfg     Config
	loc     *time.Location
	started bool

	parser cron.Parser
	c      *cron.Cron
	defs   []scheduleDef

	// guarded by wmu; never held together with mu by trigger goroutines
	wmu      sync.Mutex
	ctx      context.Context
	lastWarn map[string]time.Time
	fired    map[string]int
}

type ScheduleInfo struct {
	Name   string    `json:"name"`
	Spec   string    `json:"spec"`
	Next   time.Time `json:"next,omitempty"`
	Prev   time.Time `json:"prev,omitempty"`
	Fired  int       `json:"fired"`
	Spread string    `json:"startup_spread,omitempty"`
}

type Snapshot struct {
	Enabled   bool           `json:"enabled"`
	Running   bool           `json:"running"`
	Timezone  string         `json:"timezone"`
	Schedules []ScheduleInfo `json:"schedules"`
}
