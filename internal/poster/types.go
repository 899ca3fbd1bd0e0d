package poster

import (
	"context"
	"strings"
	"time"
)

// ScheduleEntry designates a deferred publish moment for one job.
// An entry with neither date nor time publishes immediately.
type ScheduleEntry struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

// Deferred reports whether the entry asks for a scheduled publish.
func (e ScheduleEntry) Deferred() bool {
	return strings.TrimSpace(e.Date) != "" || strings.TrimSpace(e.Time) != ""
}

// PacingSettings bounds media count per job and delay (in pacing units) between jobs.
type PacingSettings struct {
	ImagesMin int `json:"imagesMin"`
	ImagesMax int `json:"imagesMax"`
	DelayMin  int `json:"delayMin"`
	DelayMax  int `json:"delayMax"`
}

// Normalize clamps negatives to zero and raises each max to its min.
// Settings are never rejected.
func (p PacingSettings) Normalize() PacingSettings {
	p.ImagesMin = max(0, p.ImagesMin)
	p.ImagesMax = max(p.ImagesMin, p.ImagesMax)
	p.DelayMin = max(0, p.DelayMin)
	p.DelayMax = max(p.DelayMin, p.DelayMax)
	return p
}

// Request is one run admission request.
type Request struct {
	Identity   string          `json:"identity"`
	Context    string          `json:"context"`
	Credential string          `json:"credential"`
	Model      string          `json:"model"`
	Schedule   []ScheduleEntry `json:"schedule"`
	Settings   PacingSettings  `json:"settings"`

	// Source names the admission surface (http, telegram, autorun, cli).
	Source string `json:"source,omitempty"`
}

// Jobs returns the entries the run will execute, in order.
// An empty schedule yields a single immediate-publish job.
func (r Request) Jobs() []ScheduleEntry {
	if len(r.Schedule) == 0 {
		return []ScheduleEntry{{}}
	}
	return r.Schedule
}

// ScheduleTarget is a schedule entry encoded for the composer's date/time fields.
type ScheduleTarget struct {
	Date     string // M/D/YYYY
	Hour     string // zero-padded
	Minute   string // zero-padded
	Meridiem string // "a", "p" or "" when unknown
}

// ---- collaborators ----

// ContentGenerator turns a context string into post text.
type ContentGenerator interface {
	Generate(ctx context.Context, context, credential, model string) (string, error)
}

// MediaPool enumerates the media references available at run time.
type MediaPool interface {
	List(ctx context.Context) ([]string, error)
}

// Composer drives the post composer of an attached browser session.
type Composer interface {
	OpenComposer(ctx context.Context) error
	AttachMedia(ctx context.Context, path string) error
	SetText(ctx context.Context, text string) error
	Publish(ctx context.Context) error
	SchedulePublish(ctx context.Context, t ScheduleTarget) error
}

// BrowserSession is a remote browser session owned by one run.
type BrowserSession interface {
	Composer
	Close(ctx context.Context) error
}

// SessionProvider acquires the browser session for an identity.
type SessionProvider interface {
	Open(ctx context.Context, identity string) (BrowserSession, error)
}

// Metrics receives run and job outcomes.
type Metrics interface {
	RunAdmitted(source string)
	RunRejected(source string)
	RunFinished(state State, cancelled bool, took time.Duration)
	JobFinished(outcome JobOutcome)
}

type nopMetrics struct{}

func (nopMetrics) RunAdmitted(string)                     {}
func (nopMetrics) RunRejected(string)                     {}
func (nopMetrics) RunFinished(State, bool, time.Duration) {}
func (nopMetrics) JobFinished(JobOutcome)                 {}

// ---- results ----

type JobOutcome string

const (
	JobPublished JobOutcome = "published"
	JobScheduled JobOutcome = "scheduled"
	JobSkipped   JobOutcome = "skipped"
)

// JobResult is the transient record of one executed job.
type JobResult struct {
	Index       int        `json:"index"`
	Outcome     JobOutcome `json:"outcome"`
	Media       []string   `json:"media,omitempty"`
	Placeholder bool       `json:"placeholder,omitempty"`
	ScheduledAt string     `json:"scheduled_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Report summarizes an executed run.
type Report struct {
	Jobs      []JobResult `json:"jobs"`
	Published int         `json:"published"`
	Scheduled int         `json:"scheduled"`
	Skipped   int         `json:"skipped"`
	Cancelled bool        `json:"cancelled"`
}

func (r *Report) add(j JobResult) {
	r.Jobs = append(r.Jobs, j)
	switch j.Outcome {
	case JobPublished:
		r.Published++
	case JobScheduled:
		r.Scheduled++
	case JobSkipped:
		r.Skipped++
	}
}
