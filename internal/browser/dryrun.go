package browser

import (
	"context"
	"path/filepath"

	"adsposter/internal/poster"
	logx "adsposter/pkg/logx"
)

// DryRun is a session provider that logs composer steps without a browser.
type DryRun struct {
	Log logx.Logger
}

func (d DryRun) Open(_ context.Context, identity string) (poster.BrowserSession, error) {
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("profile", identity), logx.Bool("dry_run", true))
	log.Info("dry-run session opened")
	return &dryRunSession{log: log}, nil
}

// Attach satisfies the attach hook of a profile provider, so a real profile can
// be started while the composer steps stay inert.
func (d DryRun) Attach(ctx context.Context, addr string) (poster.BrowserSession, error) {
	return d.Open(ctx, addr)
}

type dryRunSession struct {
	log   logx.Logger
	media int
}

func (s *dryRunSession) OpenComposer(context.Context) error {
	s.media = 0
	s.log.Info("dry-run: open composer")
	return nil
}

func (s *dryRunSession) AttachMedia(_ context.Context, path string) error {
	s.media++
	s.log.Info("dry-run: attach media", logx.String("file", filepath.Base(path)), logx.Int("n", s.media))
	return nil
}

func (s *dryRunSession) SetText(_ context.Context, text string) error {
	s.log.Info("dry-run: set text", logx.Int("chars", len(text)))
	return nil
}

func (s *dryRunSession) Publish(context.Context) error {
	s.log.Info("dry-run: publish", logx.Int("media", s.media))
	return nil
}

func (s *dryRunSession) SchedulePublish(_ context.Context, t poster.ScheduleTarget) error {
	s.log.Info("dry-run: schedule", logx.String("at", t.String()), logx.Int("media", s.media))
	return nil
}

func (s *dryRunSession) Close(context.Context) error {
	s.log.Info("dry-run session closed")
	return nil
}
