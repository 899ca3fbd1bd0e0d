package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Validate checks values the strict decoder cannot: durations, enums,
// autorun triggers and the control bind policy. All problems are joined.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	dur := func(path, raw string) {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}

	if t := cfg.Telegram; t != nil {
		if strings.TrimSpace(t.Token) == "" {
			errs = append(errs, errors.New("telegram.token is required when the telegram section is present"))
		}
		if g := strings.TrimSpace(t.GroupLog); g != "" {
			if _, err := strconv.ParseInt(g, 10, 64); err != nil {
				errs = append(errs, fmt.Errorf("telegram.group_log: not a chat id: %q", g))
			}
		}
		dur("telegram.poll_timeout", t.PollTimeout)
	}

	c := cfg.Control
	dur("control.read_timeout", c.ReadTimeout)
	dur("control.idle_timeout", c.IdleTimeout)
	dur("control.sync_timeout", c.SyncTimeout)
	if c.Enabled && !c.AllowInsecure && strings.TrimSpace(c.Token) == "" && !isLoopback(c.Addr) {
		errs = append(errs, fmt.Errorf("control.addr %q is not loopback: set control.token or control.allow_insecure", c.Addr))
	}

	a := cfg.AdsPower
	dur("adspower.request_timeout", a.RequestTimeout)
	dur("adspower.ready_timeout", a.ReadyTimeout)
	dur("adspower.ready_interval", a.ReadyInterval)

	b := cfg.Browser
	switch strings.ToLower(strings.TrimSpace(b.Driver)) {
	case "", "cdp", "dryrun":
	default:
		errs = append(errs, fmt.Errorf("browser.driver: unknown %q (use cdp or dryrun)", b.Driver))
	}
	dur("browser.element_timeout", b.ElementTimeout)
	dur("browser.poll_interval", b.PollInterval)
	dur("browser.open_settle", b.OpenSettle)
	dur("browser.media_settle", b.MediaSettle)
	dur("browser.schedule_settle", b.ScheduleSettle)
	dur("browser.post_settle", b.PostSettle)

	switch strings.ToLower(strings.TrimSpace(cfg.Content.Provider)) {
	case "", "gemini", "none":
	default:
		errs = append(errs, fmt.Errorf("content.provider: unknown %q (use gemini or none)", cfg.Content.Provider))
	}
	dur("content.timeout", cfg.Content.Timeout)

	dur("run.pacing_unit", cfg.Run.PacingUnit)
	dur("run.close_timeout", cfg.Run.CloseTimeout)

	if s := cfg.Storage; s != nil {
		dur("storage.busy_timeout", s.BusyTimeout)
	}

	names := map[string]bool{}
	for i, t := range cfg.Autorun.Triggers {
		name := strings.TrimSpace(t.Name)
		switch {
		case name == "":
			errs = append(errs, fmt.Errorf("autorun.triggers[%d].name is required", i))
		case names[name]:
			errs = append(errs, fmt.Errorf("autorun.triggers[%d]: duplicate name %q", i, name))
		}
		names[name] = true
		if strings.TrimSpace(t.At) == "" {
			errs = append(errs, fmt.Errorf("autorun.triggers[%d].at is required", i))
		}
	}
	return errors.Join(errs...)
}

func isLoopback(addr string) bool {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return true
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
