package chatops

import (
	"context"
	"fmt"
	"sync"
	"time"

	"adsposter/internal/eventbus"
	"adsposter/internal/poster"
	kit "adsposter/internal/transport"
	logx "adsposter/pkg/logx"
)

// Notifier forwards run lifecycle events from the bus to one chat target.
type Notifier struct {
	bus     eventbus.Bus
	adapter kit.Adapter
	log     logx.Logger

	mu     sync.Mutex
	target kit.ChatTarget
	jobs   bool
}

func NewNotifier(bus eventbus.Bus, adapter kit.Adapter, target kit.ChatTarget, log logx.Logger) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Notifier{bus: bus, adapter: adapter, target: target, log: log}
}

// SetTarget changes the destination; a zero ChatID mutes the notifier.
func (n *Notifier) SetTarget(t kit.ChatTarget) {
	n.mu.Lock()
	n.target = t
	n.mu.Unlock()
}

// SetJobEvents toggles per-job notices.
func (n *Notifier) SetJobEvents(on bool) {
	n.mu.Lock()
	n.jobs = on
	n.mu.Unlock()
}

// Run blocks until ctx ends.
func (n *Notifier) Run(ctx context.Context) error {
	ch, unsub := n.bus.Subscribe(64)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			n.deliver(ctx, ev)
		}
	}
}

func (n *Notifier) deliver(ctx context.Context, ev eventbus.Event) {
	n.mu.Lock()
	target, jobs := n.target, n.jobs
	n.mu.Unlock()
	if target.ChatID == 0 {
		return
	}
	text := n.render(ev, jobs)
	if text == "" {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := n.adapter.SendText(sctx, target, text, nil); err != nil {
		n.log.Warn("run notice failed", logx.String("event", ev.Type), logx.Err(err))
	}
}

func (n *Notifier) render(ev eventbus.Event, jobs bool) string {
	switch ev.Type {
	case eventbus.RunStarted:
		if info, ok := ev.Data.(poster.RunInfo); ok {
			return fmt.Sprintf("▶️ run %s started on %s: %d job(s), source %s",
				shortID(info.ID), info.Identity, info.Jobs, orDash(info.Source))
		}
	case eventbus.RunStopRequested:
		if info, ok := ev.Data.(poster.RunInfo); ok {
			return "⏳ stop requested for run " + shortID(info.ID)
		}
	case eventbus.RunFinished:
		if sum, ok := ev.Data.(poster.RunSummary); ok {
			return FormatSummary(sum)
		}
	case eventbus.RunRejected:
		src, _ := ev.Data.(string)
		return "⛔ run request from " + orDash(src) + " rejected: " + poster.ErrRunAlreadyActive.Error()
	case eventbus.JobFinished:
		if !jobs {
			return ""
		}
		if je, ok := ev.Data.(poster.JobEvent); ok {
			s := fmt.Sprintf("• run %s job %d: %s", shortID(je.RunID), je.Job.Index+1, je.Job.Outcome)
			if je.Job.ScheduledAt != "" {
				s += " for " + je.Job.ScheduledAt
			}
			if je.Job.Error != "" {
				s += " (" + truncate(je.Job.Error, 120) + ")"
			}
			return s
		}
	}
	return ""
}
