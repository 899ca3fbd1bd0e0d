// Package chatops exposes run control as operator chat commands and forwards
// run lifecycle events to the log chat.
package chatops

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"adsposter/internal/poster"
	"adsposter/internal/runtime/supervisor"
	"adsposter/internal/storage"
	"adsposter/internal/transport/telegram/router"
	logx "adsposter/pkg/logx"
)

type Runner interface {
	Submit(req poster.Request) (*poster.Handle, error)
	Stop() poster.StopResult
	Status() poster.Status
}

type History interface {
	RecentRuns(ctx context.Context, limit int) ([]storage.RunRecord, error)
}

type Auditor interface {
	AppendAudit(ctx context.Context, e storage.AuditEntry) error
}

type Deps struct {
	Runner  Runner
	History History
	Audit   Auditor
	// Prepare fills configured defaults into a parsed request.
	Prepare func(poster.Request) poster.Request
}

type Service struct {
	deps Deps
	log  logx.Logger
	sup  *supervisor.Supervisor
}

// New binds the command set to deps. Result watchers live under ctx.
func New(ctx context.Context, deps Deps, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "chatops"))
	return &Service{
		deps: deps,
		log:  log,
		sup:  supervisor.New(ctx, supervisor.WithLogger(log)),
	}
}

// Close cancels pending result watchers.
func (s *Service) Close(ctx context.Context) error { return s.sup.Stop(ctx) }

const postUsage = `/post [identity=p1] [images=1-3] [delay=5-10]
context text for the generator
@ 2025-03-07 9:30 PM
@ 3/8/2025 10:00 AM`

func (s *Service) Commands() []router.Command {
	return []router.Command{
		{
			Name:        "post",
			Description: "start a posting run",
			Usage:       postUsage,
			Access:      router.AccessOwnerOnly,
			Timeout:     10 * time.Second,
			Handle:      s.handlePost,
		},
		{
			Name:        "stop",
			Description: "stop the active run",
			Access:      router.AccessOwnerOnly,
			Timeout:     5 * time.Second,
			Handle:      s.handleStop,
		},
		{
			Name:        "status",
			Description: "show run state",
			Access:      router.AccessOwnerOnly,
			Timeout:     5 * time.Second,
			Handle:      s.handleStatus,
		},
		{
			Name:        "history",
			Description: "recent runs",
			Usage:       "/history [n]",
			Access:      router.AccessOwnerOnly,
			Timeout:     10 * time.Second,
			Handle:      s.handleHistory,
		},
	}
}

func (s *Service) handlePost(ctx context.Context, req *router.Request) error {
	began := time.Now()
	preq, err := ParsePost(req.Args, req.Body)
	if err != nil {
		return req.Reply(ctx, "invalid /post: "+err.Error()+"\n\nusage:\n"+postUsage, nil)
	}
	preq.Source = "telegram"
	if s.deps.Prepare != nil {
		preq = s.deps.Prepare(preq)
	}

	h, err := s.deps.Runner.Submit(preq)
	if err != nil {
		s.audit(ctx, req, "run.submit", "", began, err)
		if errors.Is(err, poster.ErrRunAlreadyActive) {
			return req.Reply(ctx, "⛔ rejected: "+err.Error(), nil)
		}
		return err
	}
	s.audit(ctx, req, "run.submit", h.Info.ID, began, nil)

	chat := req.Chat
	adapter := req.Adapter
	s.sup.Go0("post.wait."+shortID(h.Info.ID), func(c context.Context) {
		select {
		case <-h.Done():
		case <-c.Done():
			return
		}
		sctx, cancel := context.WithTimeout(context.WithoutCancel(c), 10*time.Second)
		defer cancel()
		if _, err := adapter.SendText(sctx, chat, FormatSummary(h.Summary()), nil); err != nil {
			s.log.Warn("result reply failed", logx.String("run", h.Info.ID), logx.Err(err))
		}
	})
	return req.Reply(ctx, fmt.Sprintf("▶️ run %s admitted: %d job(s) on %s", shortID(h.Info.ID), h.Info.Jobs, h.Info.Identity), nil)
}

func (s *Service) handleStop(ctx context.Context, req *router.Request) error {
	res := s.deps.Runner.Stop()
	s.audit(ctx, req, "run.stop", res.RunID, time.Now(), nil)
	msg := res.Message
	if res.RunID != "" {
		msg += " (" + shortID(res.RunID) + ")"
	}
	return req.Reply(ctx, "⏹ "+msg, nil)
}

func (s *Service) handleStatus(ctx context.Context, req *router.Request) error {
	return req.Reply(ctx, FormatStatus(s.deps.Runner.Status(), time.Now()), nil)
}

func (s *Service) handleHistory(ctx context.Context, req *router.Request) error {
	if s.deps.History == nil {
		return req.Reply(ctx, "history is disabled (no storage configured)", nil)
	}
	limit := 5
	if len(req.Args) > 0 {
		n, err := strconv.Atoi(req.Args[0])
		if err != nil || n <= 0 {
			return req.Reply(ctx, "usage: /history [n]", nil)
		}
		limit = min(n, 50)
	}
	runs, err := s.deps.History.RecentRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		return req.Reply(ctx, "no runs recorded yet", nil)
	}
	var b strings.Builder
	b.WriteString("<b>Recent runs</b>\n")
	for _, r := range runs {
		fmt.Fprintf(&b, "\n<code>%s</code> %s %s · %s",
			html.EscapeString(shortID(r.ID)),
			stateIcon(r.State),
			html.EscapeString(r.FinishedAt.Local().Format("01-02 15:04")),
			html.EscapeString(counts(r.Published, r.Scheduled, r.Skipped)),
		)
		if r.Cancelled {
			b.WriteString(" (stopped)")
		}
		if r.Error != "" {
			b.WriteString("\n   " + html.EscapeString(truncate(r.Error, 120)))
		}
	}
	return req.Reply(ctx, b.String(), &kitHTML)
}

func (s *Service) audit(ctx context.Context, req *router.Request, action, runID string, began time.Time, err error) {
	if s.deps.Audit == nil {
		return
	}
	e := storage.AuditEntry{
		At:      began,
		Source:  "telegram",
		ActorID: req.FromID,
		Action:  action,
		RunID:   runID,
		OK:      err == nil,
		TookMS:  time.Since(began).Milliseconds(),
	}
	if req.Message != nil {
		e.ActorUsername = req.Message.FromUsername
	}
	if err != nil {
		e.Error = err.Error()
	}
	if aerr := s.deps.Audit.AppendAudit(context.WithoutCancel(ctx), e); aerr != nil {
		s.log.Debug("audit append failed", logx.Err(aerr))
	}
}
