package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings ("500ms", "20s", "2m").
type Config struct {
	Logging  LoggingConfig   `json:"logging"`
	Telegram *TelegramConfig `json:"telegram,omitempty"`
	Control  ControlConfig   `json:"control"`
	AdsPower AdsPowerConfig  `json:"adspower"`
	Browser  BrowserConfig   `json:"browser"`
	Content  ContentConfig   `json:"content"`
	Media    MediaConfig     `json:"media"`
	Run      RunConfig       `json:"run"`
	Storage  *StorageConfig  `json:"storage,omitempty"`
	Autorun  AutorunConfig   `json:"autorun"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// TelegramConfig enables the operator chat. Omit the section to run without it.
type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// GroupLog is the chat id that receives run notices and forwarded logs.
	GroupLog    string `json:"group_log"`
	PollTimeout string `json:"poll_timeout"`
	// NotifyJobs also forwards per-job outcomes, not just run start/finish.
	NotifyJobs bool `json:"notify_jobs,omitempty"`
}

// ControlConfig is the local HTTP control surface.
//
// Prefer a loopback Addr. A non-loopback bind requires Token unless
// AllowInsecure is set.
type ControlConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:8765"
	Token         string `json:"token,omitempty"` // optional bearer token (never logged)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	ReadTimeout   string `json:"read_timeout,omitempty"`
	IdleTimeout   string `json:"idle_timeout,omitempty"`
	// SyncTimeout caps how long POST /v1/runs waits before answering 202.
	SyncTimeout string `json:"sync_timeout,omitempty"`
	// Pprof mounts /debug/pprof behind the same auth.
	Pprof bool `json:"pprof,omitempty"`
}

type AdsPowerConfig struct {
	BaseURL        string `json:"base_url,omitempty"` // default: "http://local.adspower.net:50325"
	UserID         string `json:"user_id,omitempty"`  // default profile; ADSPOWER_USER_ID overrides when empty
	DebugHost      string `json:"debug_host,omitempty"`
	RequestTimeout string `json:"request_timeout,omitempty"`
	ReadyTimeout   string `json:"ready_timeout,omitempty"`
	ReadyInterval  string `json:"ready_interval,omitempty"`
	StopOnFinish   bool   `json:"stop_on_finish,omitempty"`
}

type BrowserConfig struct {
	// Driver is "cdp" (default) or "dryrun".
	Driver         string          `json:"driver,omitempty"`
	HomeURL        string          `json:"home_url,omitempty"`
	ElementTimeout string          `json:"element_timeout,omitempty"`
	PollInterval   string          `json:"poll_interval,omitempty"`
	OpenSettle     string          `json:"open_settle,omitempty"`
	MediaSettle    string          `json:"media_settle,omitempty"`
	ScheduleSettle string          `json:"schedule_settle,omitempty"`
	PostSettle     string          `json:"post_settle,omitempty"`
	Selectors      SelectorsConfig `json:"selectors,omitempty"`
}

// SelectorsConfig overrides individual composer selectors. Empty keeps the default.
type SelectorsConfig struct {
	CreatePost     string `json:"create_post,omitempty"`
	PhotoInput     string `json:"photo_input,omitempty"`
	TextEditor     string `json:"text_editor,omitempty"`
	PublishButton  string `json:"publish_button,omitempty"`
	ScheduleToggle string `json:"schedule_toggle,omitempty"`
	DateInput      string `json:"date_input,omitempty"`
	ScheduleButton string `json:"schedule_button,omitempty"`
}

type ContentConfig struct {
	// Provider is "gemini" (default) or "none" (always use the placeholder).
	Provider     string `json:"provider,omitempty"`
	APIKey       string `json:"api_key,omitempty"` // GEMINI_API_KEY is used when empty
	BaseURL      string `json:"base_url,omitempty"`
	Model        string `json:"model,omitempty"`
	Language     string `json:"language,omitempty"`
	GoogleSearch bool   `json:"google_search,omitempty"`
	Timeout      string `json:"timeout,omitempty"`
}

type MediaConfig struct {
	Dir      string   `json:"dir"`
	Patterns []string `json:"patterns,omitempty"`
}

// PacingConfig mirrors the per-request pacing settings.
type PacingConfig struct {
	ImagesMin int `json:"images_min"`
	ImagesMax int `json:"images_max"`
	DelayMin  int `json:"delay_min"`
	DelayMax  int `json:"delay_max"`
}

// RunConfig holds defaults applied to requests that leave fields empty.
type RunConfig struct {
	Placeholder  string       `json:"placeholder,omitempty"` // default: "TEST 01"
	Pacing       PacingConfig `json:"pacing"`
	PacingUnit   string       `json:"pacing_unit,omitempty"`   // default: "1s"
	CloseTimeout string       `json:"close_timeout,omitempty"` // default: "15s"
}

// StorageConfig controls run history and audit persistence.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./data/adsposter" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite
	KeepRuns    int    `json:"keep_runs,omitempty"`
}

// AutorunConfig registers unattended runs.
type AutorunConfig struct {
	Enabled  bool             `json:"enabled"`
	Timezone string           `json:"timezone,omitempty"`
	Triggers []AutorunTrigger `json:"triggers,omitempty"`
}

// AutorunTrigger submits one run each time At fires.
// At accepts cron ("0 9 * * *"), "@every 6h", HH:MM intervals or Go durations.
type AutorunTrigger struct {
	Name     string          `json:"name"`
	At       string          `json:"at"`
	Identity string          `json:"identity,omitempty"`
	Context  string          `json:"context,omitempty"`
	Model    string          `json:"model,omitempty"`
	Posts    []ScheduledPost `json:"posts,omitempty"`
	Pacing   *PacingConfig   `json:"pacing,omitempty"`
}

// ScheduledPost is one deferred publish (composer date/time) of an autorun.
type ScheduledPost struct {
	Date string `json:"date"`
	Time string `json:"time"`
}
