package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
logging:
  level: debug
  console: true
adspower:
  user_id: k1abc
  stop_on_finish: true
browser:
  driver: dryrun
content:
  model: gemini-2.5-flash
media:
  dir: ./media
run:
  pacing:
    images_min: 1
    images_max: 3
    delay_min: 30
    delay_max: 90
autorun:
  enabled: true
  timezone: Asia/Jakarta
  triggers:
    - name: morning
      at: "0 9 * * *"
      context: weekend sale
      posts:
        - {date: "2025-03-07", time: "21:05"}
`

func TestDecodeYAML(t *testing.T) {
	cfg, err := Decode("config.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.AdsPower.UserID != "k1abc" || !cfg.AdsPower.StopOnFinish {
		t.Fatalf("adspower = %+v", cfg.AdsPower)
	}
	if cfg.Run.Pacing.DelayMax != 90 || cfg.Media.Dir != "./media" {
		t.Fatalf("run = %+v media = %+v", cfg.Run, cfg.Media)
	}
	tr := cfg.Autorun.Triggers
	if len(tr) != 1 || tr[0].Posts[0].Time != "21:05" {
		t.Fatalf("triggers = %+v", tr)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestDecodeRejectsUnknownAndTrailing(t *testing.T) {
	tests := []struct {
		name string
		file string
		data string
	}{
		{"unknown yaml key", "c.yml", "run:\n  pacingg: {}\n"},
		{"unknown json key", "c.json", `{"adspower":{"profile":"x"}}`},
		{"trailing json", "c.json", `{} {}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.file, []byte(tt.data)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"bad duration", Config{Browser: BrowserConfig{ElementTimeout: "ten"}}, "browser.element_timeout"},
		{"negative duration", Config{Run: RunConfig{CloseTimeout: "-1s"}}, "run.close_timeout"},
		{"bad driver", Config{Browser: BrowserConfig{Driver: "selenium"}}, "browser.driver"},
		{"bad provider", Config{Content: ContentConfig{Provider: "openai"}}, "content.provider"},
		{"public control without token", Config{Control: ControlConfig{Enabled: true, Addr: "0.0.0.0:8765"}}, "control.addr"},
		{"telegram without token", Config{Telegram: &TelegramConfig{}}, "telegram.token"},
		{"duplicate trigger", Config{Autorun: AutorunConfig{Triggers: []AutorunTrigger{{Name: "a", At: "1h"}, {Name: "a", At: "2h"}}}}, "duplicate"},
		{"trigger without at", Config{Autorun: AutorunConfig{Triggers: []AutorunTrigger{{Name: "a"}}}}, "at is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.cfg)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate = %v, want mention of %q", err, tt.want)
			}
		})
	}

	ok := Config{Control: ControlConfig{Enabled: true, Addr: "127.0.0.1:8765"}}
	if err := Validate(&ok); err != nil {
		t.Fatalf("loopback control: %v", err)
	}
	ok.Control.Addr = "0.0.0.0:8765"
	ok.Control.Token = "s3cret"
	if err := Validate(&ok); err != nil {
		t.Fatalf("public control with token: %v", err)
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	oldCfg, _ := Decode("c.yaml", []byte(sampleYAML))
	newCfg, _ := Decode("c.yaml", []byte(sampleYAML))
	newCfg.Logging.Level = "info"
	newCfg.Autorun.Triggers = append(newCfg.Autorun.Triggers, AutorunTrigger{Name: "evening", At: "0 19 * * *"})
	newCfg.Content.APIKey = "secret-key"

	changed, _ := SummarizeConfigChange(oldCfg, newCfg)
	if got := strings.Join(changed, ","); got != "autorun,content,logging" {
		t.Fatalf("changed = %s", got)
	}
	if r := RequiresRestart(changed); len(r) != 1 || r[0] != "content" {
		t.Fatalf("RequiresRestart = %v", r)
	}
	if got := diffTriggers(oldCfg.Autorun.Triggers, newCfg.Autorun.Triggers); len(got) != 1 || got[0] != "evening" {
		t.Fatalf("diffTriggers = %v", got)
	}
}

func TestDurationOr(t *testing.T) {
	if d := DurationOr("", time.Second); d != time.Second {
		t.Fatalf("empty = %v", d)
	}
	if d := DurationOr("250ms", time.Second); d != 250*time.Millisecond {
		t.Fatalf("250ms = %v", d)
	}
	if d := DurationOr("bogus", time.Second); d != time.Second {
		t.Fatalf("bogus = %v", d)
	}
}

func TestWatchPublishesValidReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"logging":{"level":"info"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	m := NewConfigManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sub := m.Subscribe(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)

	// An invalid edit is never published.
	if err := os.WriteFile(path, []byte(`{"browser":{"driver":"nope"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	time.Sleep(600 * time.Millisecond)
	if err := os.WriteFile(path, []byte(`{"logging":{"level":"debug"}}`), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-sub:
		if cfg.Logging.Level != "debug" {
			t.Fatalf("published level = %q", cfg.Logging.Level)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no reload published")
	}
	if m.Get().Logging.Level != "debug" {
		t.Fatalf("Get not updated")
	}
}

func TestExampleConfigLoads(t *testing.T) {
	m := NewConfigManager(filepath.Join("..", "..", "config.example.yaml"))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram == nil || len(cfg.Autorun.Triggers) != 1 || cfg.Run.Pacing.ImagesMax != 3 {
		t.Fatalf("unexpected example config: %+v", cfg)
	}
}
