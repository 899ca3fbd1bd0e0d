package app

import (
	"context"
	"errors"
	"strings"

	"adsposter/internal/config"
	"adsposter/internal/poster"
	"adsposter/internal/task/scheduler"
	logx "adsposter/pkg/logx"
)

const autorunPrefix = "autorun."

type submitter interface {
	Submit(req poster.Request) (*poster.Handle, error)
}

func triggerRequest(t config.AutorunTrigger) poster.Request {
	req := poster.Request{
		Identity: t.Identity,
		Context:  t.Context,
		Model:    t.Model,
		Source:   "autorun",
	}
	for _, p := range t.Posts {
		req.Schedule = append(req.Schedule, poster.ScheduleEntry{Date: p.Date, Time: p.Time})
	}
	if p := t.Pacing; p != nil {
		req.Settings = poster.PacingSettings{
			ImagesMin: p.ImagesMin,
			ImagesMax: p.ImagesMax,
			DelayMin:  p.DelayMin,
			DelayMax:  p.DelayMax,
		}
	}
	return req
}

// autorunJob submits without waiting. A rejection is logged, not retried.
func autorunJob(name string, run submitter, prepare func(poster.Request) poster.Request, req poster.Request, log logx.Logger) scheduler.Job {
	return func(context.Context) error {
		h, err := run.Submit(prepare(req))
		if errors.Is(err, poster.ErrRunAlreadyActive) {
			log.Warn("autorun skipped: run in progress", logx.String("trigger", name))
			return nil
		}
		if err != nil {
			return err
		}
		log.Info("autorun submitted", logx.String("trigger", name), logx.String("run", h.Info.ID))
		return nil
	}
}

// applyAutorun reconciles scheduler entries with cfg.Autorun. Entries it did
// not create are left alone.
func applyAutorun(s *scheduler.Service, cfg *config.Config, run submitter, prepare func(poster.Request) poster.Request, log logx.Logger) {
	ac := cfg.Autorun
	s.Apply(scheduler.Config{Enabled: ac.Enabled, Timezone: ac.Timezone})

	want := map[string]bool{}
	for _, t := range ac.Triggers {
		name := autorunPrefix + strings.TrimSpace(t.Name)
		want[name] = true
		if err := s.AddSchedule(name, t.At, autorunJob(t.Name, run, prepare, triggerRequest(t), log)); err != nil {
			log.Warn("autorun trigger rejected", logx.String("trigger", t.Name), logx.String("at", t.At), logx.Err(err))
		}
	}
	for _, name := range s.Names() {
		if strings.HasPrefix(name, autorunPrefix) && !want[name] {
			s.Remove(name)
			log.Info("autorun trigger removed", logx.String("trigger", strings.TrimPrefix(name, autorunPrefix)))
		}
	}
}
