// Package app assembles configuration, logging, storage and the run manager
// with its control surfaces, and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"adsposter/internal/config"
	"adsposter/internal/control/chatops"
	"adsposter/internal/control/httpapi"
	"adsposter/internal/eventbus"
	"adsposter/internal/metrics"
	"adsposter/internal/poster"
	"adsposter/internal/runtime/supervisor"
	"adsposter/internal/storage"
	"adsposter/internal/task/scheduler"
	kit "adsposter/internal/transport"
	tgadapter "adsposter/internal/transport/telegram/adapter"
	"adsposter/internal/transport/telegram/router"
	logx "adsposter/pkg/logx"
)

type StopReason string

const (
	StopUnknown    StopReason = "unknown"
	StopSignal     StopReason = "signal"
	StopFatalError StopReason = "fatal_error"
	StopRunDone    StopReason = "run_done"
)

// Options select which surfaces start.
type Options struct {
	// Headless skips the chat, the HTTP API, autorun and config watching.
	// Used for one-shot runs from the terminal.
	Headless bool
}

type App struct {
	opt  Options
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log     logx.Logger
	logs    *logx.Service
	bus     eventbus.Bus
	store   storage.Store
	metrics *metrics.Recorder

	sessions poster.SessionProvider
	exec     *poster.Executor
	mgr      *poster.Manager
	sched    *scheduler.Service
	http     *httpapi.Server

	adapter  *tgadapter.Adapter
	router   *router.Router
	chat     *chatops.Service
	notifier *chatops.Notifier
	updates  chan kit.Update
}

// New loads the config and constructs every component. Nothing runs until Start.
func New(cfgPath string, opt Options) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	return newApp(cfgm, cfg, opt)
}

func newApp(cfgm *config.ConfigManager, cfg *config.Config, opt Options) (*App, error) {
	a := &App{opt: opt, cfgm: cfgm, bus: eventbus.New(), metrics: metrics.New()}

	// Chat logging stays off until the sender and target are installed.
	logCfg := mapLogConfig(cfg)
	final := logCfg
	logCfg.Chat.Enabled = false
	a.logs, a.log = logx.New(logCfg, nil)

	if cfg.Telegram != nil && !opt.Headless {
		pollTimeout, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
		if err != nil {
			return nil, err
		}
		ad, err := tgadapter.New(tgadapter.Config{Token: cfg.Telegram.Token, PollTimeout: pollTimeout},
			a.log.With(logx.String("comp", "telegram")))
		if err != nil {
			return nil, err
		}
		a.adapter = ad
		a.logs.SetSender(ad)
		if t, ok := chatTarget(cfg); ok {
			a.logs.SetChatTarget(t.ChatID, t.ThreadID)
		}
	} else {
		final.Chat.Enabled = false
	}
	a.logs.Apply(final)
	cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	cfgm.SetValidator(func(_ context.Context, c *config.Config) error {
		_, _, err := mapStorageConfig(c)
		return err
	})

	sc, enabled, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	if enabled {
		st, err := storage.Open(sc, a.log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		a.store = st
		a.log.Info("storage enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}

	a.sessions = newSessionProvider(cfg, a.log)
	a.exec = newExecutor(cfg, newContentGenerator(cfg, a.log))
	a.sched = scheduler.New(scheduler.Config{Enabled: cfg.Autorun.Enabled, Timezone: cfg.Autorun.Timezone},
		a.log.With(logx.String("comp", "autorun")))
	return a, nil
}

// Manager is valid after Start.
func (a *App) Manager() *poster.Manager { return a.mgr }

// Prepare applies the current config defaults to a request.
func (a *App) Prepare(req poster.Request) poster.Request {
	return prepareRequest(a.cfgm.Get(), req)
}

func (a *App) Logger() logx.Logger { return a.log }

// Done closes when the app context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	cfg := a.cfgm.Get()
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	rctx := a.sup.Context()

	a.mgr = poster.NewManager(rctx, poster.ManagerOptions{
		Sessions:        a.sessions,
		Executor:        a.exec,
		DefaultIdentity: defaultIdentity(cfg),
		CloseTimeout:    config.DurationOr(cfg.Run.CloseTimeout, 15*time.Second),
		Bus:             a.bus,
		Log:             a.log.With(logx.String("comp", "poster")),
		Metrics:         a.metrics,
	})

	if a.store != nil {
		events, unsub := a.bus.Subscribe(64)
		a.sup.Go0("history.recorder", func(c context.Context) {
			defer unsub()
			recordRuns(c, events, a.store, a.log.With(logx.String("comp", "history")))
		})
	}

	if a.opt.Headless {
		a.log.Info("app started", logx.Bool("headless", true))
		return nil
	}

	if err := a.startChat(rctx, cfg); err != nil {
		return err
	}
	if err := a.startHTTP(rctx, cfg); err != nil {
		return err
	}

	applyAutorun(a.sched, cfg, a.mgr, a.Prepare, a.log.With(logx.String("comp", "autorun")))
	a.sched.Start(rctx)

	a.sup.Go0("config.reload", a.reloadLoop)
	a.sup.GoRestart("config.watch", a.cfgm.Watch, time.Second, 30*time.Second)

	a.log.Info("app started", logx.String("config", a.cfgm.Path()))
	return nil
}

func (a *App) startChat(ctx context.Context, cfg *config.Config) error {
	if a.adapter == nil {
		return nil
	}
	a.updates = make(chan kit.Update, 64)
	if err := a.adapter.Start(ctx, a.updates); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}

	a.chat = chatops.New(ctx, chatops.Deps{
		Runner:  a.mgr,
		History: a.historyOrNil(),
		Audit:   a.auditOrNil(),
		Prepare: a.Prepare,
	}, a.log)
	a.router = router.New(a.log.With(logx.String("comp", "telegram.router")), a.adapter, cfg.Telegram.OwnerUserIDs)
	a.router.SetCommands(ctx, a.chat.Commands())
	a.sup.Go("telegram.dispatch", func(c context.Context) error {
		return a.router.Run(c, a.updates)
	})

	target, _ := chatTarget(cfg)
	a.notifier = chatops.NewNotifier(a.bus, a.adapter, target, a.log.With(logx.String("comp", "notifier")))
	a.notifier.SetJobEvents(cfg.Telegram.NotifyJobs)
	a.sup.Go("telegram.notify", a.notifier.Run)
	return nil
}

func (a *App) startHTTP(ctx context.Context, cfg *config.Config) error {
	if !cfg.Control.Enabled {
		return nil
	}
	a.http = httpapi.New(mapControlConfig(cfg), httpapi.Deps{
		Runner:  a.mgr,
		History: a.historyOrNil(),
		Audit:   a.auditOrNil(),
		Metrics: a.metrics.Handler(),
		Autorun: func() any { return a.sched.Snapshot() },
		Prepare: a.Prepare,
	}, a.log.With(logx.String("comp", "httpapi")))
	return a.http.Start(ctx)
}

// The store may be nil; keep the interfaces nil too.
func (a *App) historyOrNil() chatops.History {
	if a.store == nil {
		return nil
	}
	return a.store
}

func (a *App) auditOrNil() chatops.Auditor {
	if a.store == nil {
		return nil
	}
	return a.store
}

func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(4)
	defer a.cfgm.Unsubscribe(sub)
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts.
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					drained = true
				}
			}
			a.applyConfig(last, next)
			last = next
		}
	}
}

func (a *App) applyConfig(prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if restart := config.RequiresRestart(sections); len(restart) > 0 {
		a.log.Warn("config sections changed that apply on restart", logx.Strs("sections", restart))
	}

	if t, ok := chatTarget(next); ok {
		a.logs.SetChatTarget(t.ChatID, t.ThreadID)
		if a.notifier != nil {
			a.notifier.SetTarget(t)
		}
	} else {
		a.logs.SetChatTarget(0, 0)
		if a.notifier != nil {
			a.notifier.SetTarget(kit.ChatTarget{})
		}
	}
	logCfg := mapLogConfig(next)
	if a.adapter == nil {
		logCfg.Chat.Enabled = false
	}
	a.logs.Apply(logCfg)

	if next.Telegram != nil {
		if a.router != nil {
			a.router.SetOwners(next.Telegram.OwnerUserIDs)
		}
		if a.notifier != nil {
			a.notifier.SetJobEvents(next.Telegram.NotifyJobs)
		}
	}

	prevAuto := a.sched.Enabled()
	applyAutorun(a.sched, next, a.mgr, a.Prepare, a.log.With(logx.String("comp", "autorun")))
	if !prevAuto && next.Autorun.Enabled {
		a.log.Info("autorun enabled via config")
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// Stop shuts components down in dependency order. The active run is stopped
// and given until ctx's deadline to reach a safe point.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	var errs []error
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		sctx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		if err := fn(sctx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		if took := time.Since(start); took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
	}

	step("autorun", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("httpapi", 3*time.Second, func(c context.Context) error {
		if a.http != nil {
			a.http.Stop(c)
		}
		return nil
	})
	step("runs", 30*time.Second, func(c context.Context) error {
		if a.mgr == nil {
			return nil
		}
		return a.mgr.Shutdown(c)
	})

	a.sup.Cancel()

	step("chat", 3*time.Second, func(c context.Context) error {
		if a.chat != nil {
			_ = a.chat.Close(c)
		}
		if a.adapter != nil {
			return a.adapter.Stop(c)
		}
		return nil
	})
	step("supervisor", 3*time.Second, func(c context.Context) error {
		err := a.sup.Wait(c)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	_ = a.logs.Close()
	return errors.Join(errs...)
}
