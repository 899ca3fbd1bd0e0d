package config

import (
	"encoding/json"
	"hash/fnv"
	"reflect"
	"sort"
	"strings"

	logx "adsposter/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections and safe
// attrs for logging. Secrets (tokens, API keys) are reported only as *_set flags.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	oT, nT := derefTelegram(oldCfg.Telegram), derefTelegram(newCfg.Telegram)
	if (oldCfg.Telegram == nil) != (newCfg.Telegram == nil) || !reflect.DeepEqual(oT, nT) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.enabled", newCfg.Telegram != nil),
			logx.Bool("telegram.token_changed", oT.Token != nT.Token),
			logx.Int("telegram.owner_count", len(nT.OwnerUserIDs)),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(nT.GroupLog) != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Control, newCfg.Control) {
		changed = append(changed, "control")
		attrs = append(attrs,
			logx.Bool("control.enabled", newCfg.Control.Enabled),
			logx.String("control.addr", strings.TrimSpace(newCfg.Control.Addr)),
			logx.Bool("control.token_set", strings.TrimSpace(newCfg.Control.Token) != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.AdsPower, newCfg.AdsPower) {
		changed = append(changed, "adspower")
		attrs = append(attrs,
			logx.String("adspower.base_url", newCfg.AdsPower.BaseURL),
			logx.Bool("adspower.user_id_set", newCfg.AdsPower.UserID != ""),
			logx.Bool("adspower.stop_on_finish", newCfg.AdsPower.StopOnFinish),
		)
	}

	if !reflect.DeepEqual(oldCfg.Browser, newCfg.Browser) {
		changed = append(changed, "browser")
		attrs = append(attrs, logx.String("browser.driver", newCfg.Browser.Driver))
	}

	if !reflect.DeepEqual(oldCfg.Content, newCfg.Content) {
		changed = append(changed, "content")
		attrs = append(attrs,
			logx.String("content.provider", newCfg.Content.Provider),
			logx.String("content.model", newCfg.Content.Model),
			logx.Bool("content.api_key_set", newCfg.Content.APIKey != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Media, newCfg.Media) {
		changed = append(changed, "media")
		attrs = append(attrs, logx.String("media.dir", newCfg.Media.Dir))
	}

	if !reflect.DeepEqual(oldCfg.Run, newCfg.Run) {
		changed = append(changed, "run")
		p := newCfg.Run.Pacing
		attrs = append(attrs,
			logx.Int("run.images_min", p.ImagesMin),
			logx.Int("run.images_max", p.ImagesMax),
			logx.Int("run.delay_min", p.DelayMin),
			logx.Int("run.delay_max", p.DelayMax),
		)
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		s := derefStorage(newCfg.Storage)
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(s.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(s.Path) != ""),
		)
	}

	if triggers := diffTriggers(oldCfg.Autorun.Triggers, newCfg.Autorun.Triggers); len(triggers) > 0 ||
		oldCfg.Autorun.Enabled != newCfg.Autorun.Enabled ||
		strings.TrimSpace(oldCfg.Autorun.Timezone) != strings.TrimSpace(newCfg.Autorun.Timezone) {
		changed = append(changed, "autorun")
		attrs = append(attrs,
			logx.Bool("autorun.enabled", newCfg.Autorun.Enabled),
			logx.String("autorun.timezone", newCfg.Autorun.Timezone),
			logx.Strs("autorun.changed", triggers),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// RequiresRestart reports sections that are only read at startup.
func RequiresRestart(changed []string) []string {
	var out []string
	for _, s := range changed {
		switch s {
		case "telegram", "control", "storage", "adspower", "browser", "content", "media":
			out = append(out, s)
		}
	}
	return out
}

func derefTelegram(t *TelegramConfig) TelegramConfig {
	if t == nil {
		return TelegramConfig{}
	}
	return *t
}

func derefStorage(s *StorageConfig) StorageConfig {
	if s == nil {
		return StorageConfig{}
	}
	return *s
}

// diffTriggers returns the names of triggers that were added, removed or edited.
func diffTriggers(oldT, newT []AutorunTrigger) []string {
	oldM := make(map[string]uint64, len(oldT))
	for _, t := range oldT {
		oldM[t.Name] = hashAny(t)
	}
	seen := map[string]bool{}
	var out []string
	for _, t := range newT {
		seen[t.Name] = true
		if h, ok := oldM[t.Name]; !ok || h != hashAny(t) {
			out = append(out, t.Name)
		}
	}
	for name := range oldM {
		if !seen[name] {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func hashAny(v any) uint64 {
	b, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return hashBytes(b)
}

// hashBytes returns a stable 64-bit hash of b. Empty input returns 0.
func hashBytes(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
