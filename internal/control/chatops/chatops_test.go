package chatops

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"adsposter/internal/eventbus"
	"adsposter/internal/poster"
	"adsposter/internal/storage"
	kit "adsposter/internal/transport"
	"adsposter/internal/transport/telegram/router"
	logx "adsposter/pkg/logx"
)

func TestParsePost(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		body    string
		want    poster.Request
		wantErr string
	}{
		{
			name: "context only",
			body: "Big sale today\nall shoes 50% off",
			want: poster.Request{Context: "Big sale today\nall shoes 50% off"},
		},
		{
			name: "options and schedule",
			args: []string{"identity=k1", "images=1-3"},
			body: "delay=5-10\nmodel=gemini-pro\nspring promo\n@ 2025-03-07 9:30 PM\n@ now",
			want: poster.Request{
				Identity: "k1",
				Model:    "gemini-pro",
				Context:  "spring promo",
				Settings: poster.PacingSettings{ImagesMin: 1, ImagesMax: 3, DelayMin: 5, DelayMax: 10},
				Schedule: []poster.ScheduleEntry{{Date: "2025-03-07", Time: "9:30 PM"}, {}},
			},
		},
		{
			name: "unknown key stays context",
			body: "price=cheap",
			want: poster.Request{Context: "price=cheap"},
		},
		{name: "bad arg", args: []string{"colour=red"}, wantErr: "unknown option"},
		{name: "bad range", args: []string{"images=a-2"}, wantErr: "option images"},
		{name: "bad schedule", body: "@ 2025-13-01 9:00", wantErr: "schedule line"},
		{name: "schedule without time", body: "@ 2025-03-01", wantErr: "want"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePost(tt.args, tt.body)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePost: %v", err)
			}
			if got.Identity != tt.want.Identity || got.Model != tt.want.Model || got.Context != tt.want.Context || got.Settings != tt.want.Settings {
				t.Fatalf("got %+v\nwant %+v", got, tt.want)
			}
			if len(got.Schedule) != len(tt.want.Schedule) {
				t.Fatalf("schedule = %+v", got.Schedule)
			}
			for i := range got.Schedule {
				if got.Schedule[i] != tt.want.Schedule[i] {
					t.Fatalf("schedule[%d] = %+v", i, got.Schedule[i])
				}
			}
		})
	}
}

type chatAdapter struct {
	mu   sync.Mutex
	msgs chan string
}

func (a *chatAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (a *chatAdapter) Stop(context.Context) error                     { return nil }
func (a *chatAdapter) SendText(_ context.Context, _ kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	a.msgs <- text
	return kit.MessageRef{}, nil
}

func (a *chatAdapter) next(t *testing.T) string {
	t.Helper()
	select {
	case s := <-a.msgs:
		return s
	case <-time.After(3 * time.Second):
		t.Fatalf("no message")
		return ""
	}
}

type session struct{ gate chan struct{} }

func (s *session) OpenComposer(ctx context.Context) error {
	if s.gate == nil {
		return nil
	}
	select {
	case <-s.gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
func (s *session) AttachMedia(context.Context, string) error                    { return nil }
func (s *session) SetText(context.Context, string) error                        { return nil }
func (s *session) Publish(context.Context) error                                { return nil }
func (s *session) SchedulePublish(context.Context, poster.ScheduleTarget) error { return nil }
func (s *session) Close(context.Context) error                                  { return nil }

type sessions struct{ s *session }

func (p sessions) Open(context.Context, string) (poster.BrowserSession, error) { return p.s, nil }

type media struct{}

func (media) List(context.Context) ([]string, error) { return []string{"/m/1.jpg"}, nil }

type records struct {
	runs  []storage.RunRecord
	err   error
	audit []storage.AuditEntry
}

func (r *records) RecentRuns(_ context.Context, limit int) ([]storage.RunRecord, error) {
	return r.runs[:min(limit, len(r.runs))], r.err
}

func (r *records) AppendAudit(_ context.Context, e storage.AuditEntry) error {
	r.audit = append(r.audit, e)
	return nil
}

func newService(t *testing.T, sess *session, hist *records) (*Service, *poster.Manager) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	m := poster.NewManager(ctx, poster.ManagerOptions{
		Sessions:        sessions{sess},
		Executor:        &poster.Executor{Media: media{}},
		DefaultIdentity: "p1",
	})
	deps := Deps{Runner: m}
	if hist != nil {
		deps.History, deps.Audit = hist, hist
	}
	s := New(ctx, deps, logx.Nop())
	t.Cleanup(func() {
		sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer scancel()
		_ = m.Shutdown(sctx)
		_ = s.Close(sctx)
		cancel()
	})
	return s, m
}

func command(s *Service, name string) router.HandlerFunc {
	for _, c := range s.Commands() {
		if c.Name == name {
			return c.Handle
		}
	}
	return nil
}

func request(a kit.Adapter, args []string, body string) *router.Request {
	return &router.Request{
		Message: &kit.Message{ChatID: 5, FromID: 9, FromUsername: "op"},
		Chat:    kit.ChatTarget{ChatID: 5},
		FromID:  9,
		Args:    args,
		Body:    body,
		Adapter: a,
		Logger:  logx.Nop(),
	}
}

func TestPostRepliesAdmissionThenSummary(t *testing.T) {
	hist := &records{}
	s, _ := newService(t, &session{}, hist)
	a := &chatAdapter{msgs: make(chan string, 4)}

	if err := command(s, "post")(context.Background(), request(a, []string{"images=1"}, "hello")); err != nil {
		t.Fatalf("post: %v", err)
	}
	got := []string{a.next(t), a.next(t)}
	joined := strings.Join(got, "\n")
	if !strings.Contains(joined, "admitted: 1 job(s) on p1") || !strings.Contains(joined, "completed") || !strings.Contains(joined, "1 published") {
		t.Fatalf("messages = %q", got)
	}
	if len(hist.audit) != 1 || hist.audit[0].ActorUsername != "op" || !hist.audit[0].OK {
		t.Fatalf("audit = %+v", hist.audit)
	}
}

func TestPostRejectedWhileRunning(t *testing.T) {
	sess := &session{gate: make(chan struct{})}
	s, m := newService(t, sess, nil)
	if _, err := m.Submit(poster.Request{}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	a := &chatAdapter{msgs: make(chan string, 4)}
	if err := command(s, "post")(context.Background(), request(a, nil, "x")); err != nil {
		t.Fatalf("post: %v", err)
	}
	if got := a.next(t); !strings.Contains(got, "rejected") {
		t.Fatalf("reply = %q", got)
	}

	if err := command(s, "status")(context.Background(), request(a, nil, "")); err != nil {
		t.Fatal(err)
	}
	if got := a.next(t); !strings.Contains(got, "state: running") || !strings.Contains(got, "on p1") {
		t.Fatalf("status = %q", got)
	}

	if err := command(s, "stop")(context.Background(), request(a, nil, "")); err != nil {
		t.Fatal(err)
	}
	if got := a.next(t); !strings.Contains(got, "stop requested") {
		t.Fatalf("stop = %q", got)
	}
	close(sess.gate)
}

func TestPostInvalidShowsUsage(t *testing.T) {
	s, _ := newService(t, &session{}, nil)
	a := &chatAdapter{msgs: make(chan string, 4)}
	if err := command(s, "post")(context.Background(), request(a, []string{"nope"}, "")); err != nil {
		t.Fatal(err)
	}
	if got := a.next(t); !strings.HasPrefix(got, "invalid /post") || !strings.Contains(got, "usage:") {
		t.Fatalf("reply = %q", got)
	}
}

func TestHistory(t *testing.T) {
	at := time.Date(2025, 3, 7, 10, 0, 0, 0, time.UTC)
	hist := &records{runs: []storage.RunRecord{
		{ID: "aaaaaaaa-1", State: "completed", Published: 2, FinishedAt: at},
		{ID: "bbbbbbbb-2", State: "failed", Error: "browser <x>", FinishedAt: at},
	}}
	s, _ := newService(t, &session{}, hist)
	a := &chatAdapter{msgs: make(chan string, 4)}

	if err := command(s, "history")(context.Background(), request(a, []string{"1"}, "")); err != nil {
		t.Fatal(err)
	}
	got := a.next(t)
	if !strings.Contains(got, "aaaaaaaa") || strings.Contains(got, "bbbbbbbb") || !strings.Contains(got, "2 published") {
		t.Fatalf("history = %q", got)
	}

	if err := command(s, "history")(context.Background(), request(a, nil, "")); err != nil {
		t.Fatal(err)
	}
	if got := a.next(t); !strings.Contains(got, "browser &lt;x&gt;") {
		t.Fatalf("error not escaped: %q", got)
	}

	hist.err = errors.New("disk gone")
	if err := command(s, "history")(context.Background(), request(a, nil, "")); err == nil {
		t.Fatalf("expected store error")
	}
}

func TestNotifierRender(t *testing.T) {
	n := NewNotifier(eventbus.Nop(), nil, kit.ChatTarget{}, logx.Nop())
	start := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	info := poster.RunInfo{ID: "0123456789", Identity: "p1", Source: "autorun", Jobs: 2, StartedAt: start}

	if got := n.render(eventbus.Event{Type: eventbus.RunStarted, Data: info}, false); got != "▶️ run 01234567 started on p1: 2 job(s), source autorun" {
		t.Fatalf("started = %q", got)
	}
	sum := poster.RunSummary{RunInfo: info, State: poster.StateFailed, FinishedAt: start.Add(90 * time.Second), Published: 1, Error: "boom"}
	got := n.render(eventbus.Event{Type: eventbus.RunFinished, Data: sum}, false)
	if !strings.Contains(got, "❌ run 01234567 failed in 1m30s") || !strings.Contains(got, "error: boom") {
		t.Fatalf("finished = %q", got)
	}
	job := poster.JobEvent{RunID: "0123456789", Job: poster.JobResult{Index: 0, Outcome: poster.JobScheduled, ScheduledAt: "3/7/2025 09:30 PM"}}
	if got := n.render(eventbus.Event{Type: eventbus.JobFinished, Data: job}, false); got != "" {
		t.Fatalf("job events should be muted: %q", got)
	}
	if got := n.render(eventbus.Event{Type: eventbus.JobFinished, Data: job}, true); got != "• run 01234567 job 1: scheduled for 3/7/2025 09:30 PM" {
		t.Fatalf("job = %q", got)
	}
}

func TestNotifierForwardsBusEvents(t *testing.T) {
	bus := eventbus.New()
	a := &chatAdapter{msgs: make(chan string, 4)}
	n := NewNotifier(bus, a, kit.ChatTarget{ChatID: -1}, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = n.Run(ctx) }()

	// Subscription happens inside Run; retry until it is live.
	deadline := time.Now().Add(2 * time.Second)
	for {
		bus.Publish(eventbus.Event{Type: eventbus.RunRejected, Data: "http"})
		select {
		case got := <-a.msgs:
			if !strings.Contains(got, "from http rejected") {
				t.Fatalf("got %q", got)
			}
			return
		case <-time.After(20 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			t.Fatalf("no notice delivered")
		}
	}
}
