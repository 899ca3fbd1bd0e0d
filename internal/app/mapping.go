package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"adsposter/internal/adspower"
	"adsposter/internal/browser"
	"adsposter/internal/config"
	"adsposter/internal/content/gemini"
	"adsposter/internal/control/httpapi"
	"adsposter/internal/poster"
	"adsposter/internal/storage"
	kit "adsposter/internal/transport"
	logx "adsposter/pkg/logx"
)

// EnvGeminiKey supplies the generator credential when neither the request nor
// the config carries one.
const EnvGeminiKey = "GEMINI_API_KEY"

func mapLogConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Chat: logx.ChatConfig{
			Enabled:    l.Telegram.Enabled,
			ThreadID:   l.Telegram.ThreadID,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
		},
	}
}

// chatTarget resolves telegram.group_log. ok is false when it is unset or malformed.
func chatTarget(cfg *config.Config) (kit.ChatTarget, bool) {
	if cfg.Telegram == nil {
		return kit.ChatTarget{}, false
	}
	raw := strings.TrimSpace(cfg.Telegram.GroupLog)
	id, err := strconv.ParseInt(raw, 10, 64)
	if raw == "" || err != nil || id == 0 {
		return kit.ChatTarget{}, false
	}
	return kit.ChatTarget{ChatID: id, ThreadID: cfg.Logging.Telegram.ThreadID}, true
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)
	switch driver {
	case "", "none":
		return storage.Config{}, false, nil
	case "file":
		if path == "" {
			path = "./data/adsposter"
		}
		return storage.Config{Driver: driver, Path: path, KeepRuns: sc.KeepRuns}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=%s", driver)
		}
		busy, err := config.ParseDurationField("storage.busy_timeout", sc.BusyTimeout)
		if err != nil {
			return storage.Config{}, false, err
		}
		if busy == 0 {
			busy = time.Second
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapControlConfig(cfg *config.Config) httpapi.Config {
	c := cfg.Control
	return httpapi.Config{
		Addr:          c.Addr,
		Token:         c.Token,
		AllowInsecure: c.AllowInsecure,
		ReadTimeout:   config.DurationOr(c.ReadTimeout, 30*time.Second),
		IdleTimeout:   config.DurationOr(c.IdleTimeout, 2*time.Minute),
		SyncTimeout:   config.DurationOr(c.SyncTimeout, 0),
		Pprof:         c.Pprof,
	}
}

func mapBrowserConfig(cfg *config.Config) browser.Config {
	b := cfg.Browser
	d := browser.DefaultConfig()
	s := b.Selectors
	return browser.Config{
		HomeURL:        b.HomeURL,
		ElementTimeout: config.DurationOr(b.ElementTimeout, d.ElementTimeout),
		PollInterval:   config.DurationOr(b.PollInterval, d.PollInterval),
		OpenSettle:     config.DurationOr(b.OpenSettle, d.OpenSettle),
		MediaSettle:    config.DurationOr(b.MediaSettle, d.MediaSettle),
		ScheduleSettle: config.DurationOr(b.ScheduleSettle, d.ScheduleSettle),
		PostSettle:     config.DurationOr(b.PostSettle, d.PostSettle),
		Selectors: browser.Selectors{
			CreatePost:     s.CreatePost,
			PhotoInput:     s.PhotoInput,
			TextEditor:     s.TextEditor,
			PublishButton:  s.PublishButton,
			ScheduleToggle: s.ScheduleToggle,
			DateInput:      s.DateInput,
			ScheduleButton: s.ScheduleButton,
		},
	}
}

// newSessionProvider returns the dry-run provider or an AdsPower provider
// that attaches the Business Suite composer over DevTools.
func newSessionProvider(cfg *config.Config, log logx.Logger) poster.SessionProvider {
	if strings.EqualFold(strings.TrimSpace(cfg.Browser.Driver), "dryrun") {
		return browser.DryRun{Log: log.With(logx.String("comp", "browser.dryrun"))}
	}
	a := cfg.AdsPower
	return adspower.NewProvider(adspower.ProviderOptions{
		Client:        adspower.NewClient(a.BaseURL, config.DurationOr(a.RequestTimeout, 0)),
		Attach:        browser.Attacher(mapBrowserConfig(cfg), log.With(logx.String("comp", "browser"))),
		DefaultUserID: a.UserID,
		DebugHost:     a.DebugHost,
		ReadyTimeout:  config.DurationOr(a.ReadyTimeout, adspower.DefaultReadyTimeout),
		ReadyInterval: config.DurationOr(a.ReadyInterval, adspower.DefaultReadyInterval),
		StopOnFinish:  a.StopOnFinish,
		Log:           log.With(logx.String("comp", "adspower")),
	})
}

// newContentGenerator returns nil when generation is off; the executor then
// posts the placeholder.
func newContentGenerator(cfg *config.Config, log logx.Logger) poster.ContentGenerator {
	c := cfg.Content
	if strings.EqualFold(strings.TrimSpace(c.Provider), "none") {
		return nil
	}
	key := strings.TrimSpace(c.APIKey)
	if key == "" {
		key = strings.TrimSpace(os.Getenv(EnvGeminiKey))
	}
	return gemini.New(gemini.Config{
		BaseURL:      c.BaseURL,
		APIKey:       key,
		Model:        c.Model,
		Language:     c.Language,
		GoogleSearch: c.GoogleSearch,
		Timeout:      config.DurationOr(c.Timeout, 0),
	}, log.With(logx.String("comp", "gemini")))
}

func newExecutor(cfg *config.Config, content poster.ContentGenerator) *poster.Executor {
	return &poster.Executor{
		Content:     content,
		Media:       poster.DirPool{Dir: cfg.Media.Dir, Patterns: cfg.Media.Patterns},
		Pacer:       poster.NewPacer(config.DurationOr(cfg.Run.PacingUnit, time.Second), 0),
		Placeholder: cfg.Run.Placeholder,
	}
}

// defaultIdentity is $ADSPOWER_USER_ID, else adspower.user_id.
func defaultIdentity(cfg *config.Config) string {
	if id := strings.TrimSpace(os.Getenv(adspower.EnvUserID)); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.AdsPower.UserID)
}

// prepareRequest fills configured defaults into fields a request left empty.
// Identity is left to the manager so the environment override keeps priority.
func prepareRequest(cfg *config.Config, req poster.Request) poster.Request {
	if req.Settings == (poster.PacingSettings{}) {
		p := cfg.Run.Pacing
		req.Settings = poster.PacingSettings{
			ImagesMin: p.ImagesMin,
			ImagesMax: p.ImagesMax,
			DelayMin:  p.DelayMin,
			DelayMax:  p.DelayMax,
		}
	}
	if strings.TrimSpace(req.Model) == "" {
		req.Model = strings.TrimSpace(cfg.Content.Model)
	}
	return req
}

func toRunRecord(s poster.RunSummary) storage.RunRecord {
	return storage.RunRecord{
		ID:         s.ID,
		Identity:   s.Identity,
		Source:     s.Source,
		State:      s.State.String(),
		Jobs:       s.Jobs,
		Published:  s.Published,
		Scheduled:  s.Scheduled,
		Skipped:    s.Skipped,
		Cancelled:  s.Cancelled,
		Error:      s.Error,
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
	}
}
