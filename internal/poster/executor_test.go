package poster

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func newExec(content ContentGenerator, media MediaPool) (*Executor, *[]time.Duration) {
	p, waits := recordingPacer(time.Second)
	return &Executor{Content: content, Media: media, Pacer: p}, waits
}

func countPrefix(calls []string, prefix string) int {
	n := 0
	for _, c := range calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func TestRunEmptyScheduleSingleImmediatePost(t *testing.T) {
	x, waits := newExec(fakeContent{text: "hello"}, pool(3))
	c := &fakeComposer{}
	rep, err := x.Run(context.Background(), Execution{
		Token:    NewCancelToken(),
		Rand:     seeded(),
		Request:  Request{Settings: PacingSettings{ImagesMin: 1, ImagesMax: 1, DelayMin: 5, DelayMax: 5}},
		Composer: c,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Published != 1 || len(rep.Jobs) != 1 || rep.Cancelled {
		t.Fatalf("report = %+v", rep)
	}
	calls := c.Calls()
	if calls[0] != "open" || calls[len(calls)-1] != "publish" {
		t.Fatalf("calls = %v", calls)
	}
	if countPrefix(calls, "attach:") != 1 {
		t.Fatalf("calls = %v", calls)
	}
	if len(*waits) != 0 {
		t.Fatalf("paced after the only job: %v", *waits)
	}
}

func TestRunScheduledJobsArePacedBetween(t *testing.T) {
	x, waits := newExec(fakeContent{text: "hello"}, pool(5))
	c := &fakeComposer{}
	req := Request{
		Schedule: []ScheduleEntry{
			{Date: "2025-03-07", Time: "9:00 AM"},
			{Date: "bad", Time: "9:00 AM"},
			{Date: "2025-03-09", Time: "9:00 PM"},
		},
		Settings: PacingSettings{ImagesMin: 1, ImagesMax: 2, DelayMin: 2, DelayMax: 2},
	}
	rep, err := x.Run(context.Background(), Execution{Token: NewCancelToken(), Rand: seeded(), Request: req, Composer: c})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Scheduled != 2 || rep.Skipped != 1 || rep.Published != 0 {
		t.Fatalf("report = %+v", rep)
	}
	if rep.Jobs[1].Outcome != JobSkipped || rep.Jobs[1].Error == "" {
		t.Fatalf("job 2 = %+v", rep.Jobs[1])
	}
	if rep.Jobs[0].ScheduledAt != "3/7/2025 09:00 AM" {
		t.Fatalf("job 1 scheduled at %q", rep.Jobs[0].ScheduledAt)
	}
	// Two gaps of 2s each, including after the skipped job.
	if len(*waits) != 4 {
		t.Fatalf("waits = %v, want 4 one-second steps", *waits)
	}
	if countPrefix(c.Calls(), "schedule:") != 2 {
		t.Fatalf("calls = %v", c.Calls())
	}
}

func TestRunScheduleSubmitFailureSkips(t *testing.T) {
	x, _ := newExec(fakeContent{text: "hi"}, pool(2))
	c := &fakeComposer{failSchedule: errBoom}
	req := Request{Schedule: []ScheduleEntry{{Date: "2025-01-02", Time: "10:00"}, {Date: "2025-01-03", Time: "10:00"}}}
	rep, err := x.Run(context.Background(), Execution{Token: NewCancelToken(), Rand: seeded(), Request: req, Composer: c})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Skipped != 2 || len(rep.Jobs) != 2 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestRunContentFailureUsesPlaceholder(t *testing.T) {
	tests := []struct {
		name    string
		content ContentGenerator
		holder  string
		want    string
	}{
		{"error", fakeContent{err: errBoom}, "", "text:" + DefaultPlaceholder},
		{"blank", fakeContent{text: "  \n"}, "", "text:" + DefaultPlaceholder},
		{"custom placeholder", fakeContent{err: errBoom}, "FALLBACK", "text:FALLBACK"},
		{"no generator", nil, "", "text:" + DefaultPlaceholder},
		{"trimmed", fakeContent{text: "  post body \n"}, "", "text:post body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, _ := newExec(tt.content, pool(1))
			x.Placeholder = tt.holder
			c := &fakeComposer{}
			rep, err := x.Run(context.Background(), Execution{Token: NewCancelToken(), Rand: seeded(), Composer: c})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if rep.Published != 1 {
				t.Fatalf("report = %+v", rep)
			}
			found := false
			for _, call := range c.Calls() {
				if call == tt.want {
					found = true
				}
			}
			if !found {
				t.Fatalf("calls = %v, want %q", c.Calls(), tt.want)
			}
		})
	}
}

func TestRunFatalErrors(t *testing.T) {
	tests := []struct {
		name  string
		media MediaPool
		comp  *fakeComposer
		want  error
	}{
		{"open composer", pool(1), &fakeComposer{failOpen: errBoom}, ErrComposer},
		{"attach", pool(1), &fakeComposer{failAttach: errBoom}, ErrComposer},
		{"set text", pool(1), &fakeComposer{failText: errBoom}, ErrComposer},
		{"publish", pool(1), &fakeComposer{failPublish: errBoom}, ErrComposer},
		{"empty pool", staticPool{}, &fakeComposer{}, ErrMediaUnavailable},
		{"no pool", nil, &fakeComposer{}, ErrMediaUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, _ := newExec(fakeContent{text: "x"}, tt.media)
			req := Request{
				Schedule: []ScheduleEntry{{}, {}},
				Settings: PacingSettings{ImagesMin: 1, ImagesMax: 1},
			}
			rep, err := x.Run(context.Background(), Execution{Token: NewCancelToken(), Rand: seeded(), Request: req, Composer: tt.comp})
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if len(rep.Jobs) != 0 {
				t.Fatalf("second job ran after fatal error: %+v", rep)
			}
		})
	}
}

func TestRunCancelledBeforeStart(t *testing.T) {
	x, _ := newExec(fakeContent{text: "x"}, pool(1))
	tok := NewCancelToken()
	tok.Cancel()
	c := &fakeComposer{}
	rep, err := x.Run(context.Background(), Execution{Token: tok, Rand: seeded(), Composer: c})
	if err != nil || !rep.Cancelled {
		t.Fatalf("Run = %+v, %v", rep, err)
	}
	if len(c.Calls()) != 0 {
		t.Fatalf("composer touched after cancel: %v", c.Calls())
	}
}

func TestRunCancelledDuringMediaAttach(t *testing.T) {
	x, _ := newExec(fakeContent{text: "x"}, pool(5))
	tok := NewCancelToken()
	c := &fakeComposer{onAttach: func(n int) {
		if n == 1 {
			tok.Cancel()
		}
	}}
	req := Request{Settings: PacingSettings{ImagesMin: 3, ImagesMax: 3}}
	rep, err := x.Run(context.Background(), Execution{Token: tok, Rand: seeded(), Request: req, Composer: c})
	if err != nil || !rep.Cancelled {
		t.Fatalf("Run = %+v, %v", rep, err)
	}
	calls := c.Calls()
	if countPrefix(calls, "attach:") != 1 {
		t.Fatalf("calls = %v, want one attach", calls)
	}
	if countPrefix(calls, "text:") != 0 || countPrefix(calls, "publish") != 0 {
		t.Fatalf("job continued after cancel: %v", calls)
	}
}

func TestRunCancelledDuringPacing(t *testing.T) {
	tok := NewCancelToken()
	p := &Pacer{Unit: time.Second, Step: time.Second}
	steps := 0
	p.wait = func(done <-chan struct{}, d time.Duration) bool {
		steps++
		if steps == 2 {
			tok.Cancel()
		}
		return true
	}
	x := &Executor{Content: fakeContent{text: "x"}, Media: pool(2), Pacer: p}
	c := &fakeComposer{}
	req := Request{
		Schedule: []ScheduleEntry{{}, {}, {}},
		Settings: PacingSettings{DelayMin: 60, DelayMax: 60},
	}
	rep, err := x.Run(context.Background(), Execution{Token: tok, Rand: seeded(), Request: req, Composer: c})
	if err != nil || !rep.Cancelled {
		t.Fatalf("Run = %+v, %v", rep, err)
	}
	if rep.Published != 1 {
		t.Fatalf("published = %d, want 1", rep.Published)
	}
	if steps != 2 {
		t.Fatalf("pacing steps = %d, want 2", steps)
	}
}

func TestRunObservesJobs(t *testing.T) {
	x, _ := newExec(fakeContent{text: "x"}, pool(2))
	var seen []JobResult
	_, err := x.Run(context.Background(), Execution{
		Token:    NewCancelToken(),
		Rand:     seeded(),
		Request:  Request{Schedule: []ScheduleEntry{{}, {Date: "2025-02-02", Time: "1:00 PM"}}},
		Composer: &fakeComposer{},
		OnJob:    func(j JobResult) { seen = append(seen, j) },
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(seen) != 2 || seen[0].Outcome != JobPublished || seen[1].Outcome != JobScheduled {
		t.Fatalf("seen = %+v", seen)
	}
	if seen[1].Index != 1 {
		t.Fatalf("index = %d", seen[1].Index)
	}
}
