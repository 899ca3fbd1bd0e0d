package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	logx "adsposter/pkg/logx"
)

const triggerWarnThrottle = 30 * time.Second

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg: cfg,
		log: log,
		ctx: context.Background(),
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser:   cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		lastWarn: map[string]time.Time{},
		fired:    map[string]int{},
	}
}

// Enabled reports the current config flag.
func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Apply swaps config at runtime. A timezone change re-registers every trigger;
// toggling Enabled starts or stops firing.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	newTZ := strings.TrimSpace(cfg.Timezone)
	wasEnabled := s.cfg.Enabled
	s.cfg = cfg

	switch {
	case s.c != nil && !cfg.Enabled:
		s.stopLocked()
	case s.c == nil && cfg.Enabled && !wasEnabled && s.started:
		s.startLocked()
	case s.c != nil && oldTZ != newTZ:
		s.stopLocked()
		s.startLocked()
	}
}

// Start begins firing triggers. Jobs receive ctx. It is a no-op when disabled.
func (s *Service) Start(ctx context.Context) {
	s.wmu.Lock()
	s.ctx = ctx
	s.wmu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	if s.c != nil {
		return
	}
	if !s.cfg.Enabled {
		s.log.Info("autorun disabled", logx.Int("schedules", len(s.defs)))
		return
	}
	s.startLocked()
}

// Stop halts firing. Registered definitions stay and resume on the next Start.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.started = false
	for i := range s.defs {
		s.defs[i].entryID = 0
	}
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
		s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
	}
}

func (s *Service) startLocked() {
	loc := s.loadLocationLocked()
	s.loc = loc
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	for i := range s.defs {
		if err := s.addCronLocked(&s.defs[i]); err != nil {
			s.log.Error("schedule register failed", logx.String("name", s.defs[i].name), logx.Err(err))
		}
	}
	s.c.Start()
	s.log.Info("service started", logx.String("tz", loc.String()), logx.Int("schedules", len(s.defs)))
}

func (s *Service) stopLocked() {
	c := s.c
	s.c = nil
	for i := range s.defs {
		s.defs[i].entryID = 0
	}
	<-c.Stop().Done()
	s.log.Info("service stopped")
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// fire runs one trigger. Panics are contained so cron keeps its goroutine.
func (s *Service) fire(name string, job Job) {
	s.wmu.Lock()
	ctx := s.ctx
	s.fired[name]++
	s.wmu.Unlock()

	var err error
	func() {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("trigger panic: %v", p)
			}
		}()
		err = job(ctx)
	}()
	if err != nil {
		s.reportTriggerError(name, err)
		return
	}
	s.log.Debug("trigger fired", logx.String("schedule", name))
}

func (s *Service) reportTriggerError(name string, err error) {
	now := time.Now()
	s.wmu.Lock()
	last := s.lastWarn[name]
	if !last.IsZero() && now.Sub(last) < triggerWarnThrottle {
		s.wmu.Unlock()
		s.log.Debug("trigger failed", logx.String("schedule", name), logx.Err(err))
		return
	}
	s.lastWarn[name] = now
	s.wmu.Unlock()

	s.log.Warn("trigger failed", logx.String("schedule", name), logx.Err(err))
}
