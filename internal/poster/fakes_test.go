package poster

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

type fakeComposer struct {
	mu    sync.Mutex
	calls []string

	// gate, if set, blocks OpenComposer until closed.
	gate chan struct{}

	failOpen     error
	failAttach   error
	failText     error
	failPublish  error
	failSchedule error

	onAttach func(n int)
	attached int
	closed   bool
}

func (f *fakeComposer) record(s string) {
	f.mu.Lock()
	f.calls = append(f.calls, s)
	f.mu.Unlock()
}

func (f *fakeComposer) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeComposer) OpenComposer(ctx context.Context) error {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.record("open")
	return f.failOpen
}

func (f *fakeComposer) AttachMedia(_ context.Context, path string) error {
	f.record("attach:" + path)
	f.mu.Lock()
	f.attached++
	n := f.attached
	f.mu.Unlock()
	if f.onAttach != nil {
		f.onAttach(n)
	}
	return f.failAttach
}

func (f *fakeComposer) SetText(_ context.Context, text string) error {
	f.record("text:" + text)
	return f.failText
}

func (f *fakeComposer) Publish(context.Context) error {
	f.record("publish")
	return f.failPublish
}

func (f *fakeComposer) SchedulePublish(_ context.Context, t ScheduleTarget) error {
	f.record("schedule:" + t.String())
	return f.failSchedule
}

func (f *fakeComposer) Close(context.Context) error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.record("close")
	return nil
}

func (f *fakeComposer) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeProvider struct {
	mu       sync.Mutex
	sessions []*fakeComposer
	next     func() (*fakeComposer, error)
	opened   []string
}

func (p *fakeProvider) Open(_ context.Context, identity string) (BrowserSession, error) {
	p.mu.Lock()
	p.opened = append(p.opened, identity)
	p.mu.Unlock()
	s, err := p.next()
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.sessions = append(p.sessions, s)
	p.mu.Unlock()
	return s, nil
}

type staticPool []string

func (p staticPool) List(context.Context) ([]string, error) { return p, nil }

type fakeContent struct {
	text string
	err  error
}

func (c fakeContent) Generate(context.Context, string, string, string) (string, error) {
	return c.text, c.err
}

type panicComposer struct{ fakeComposer }

func (p *panicComposer) OpenComposer(context.Context) error { panic("boom") }

// recordingPacer returns a pacer whose waits complete instantly and are recorded.
func recordingPacer(unit time.Duration) (*Pacer, *[]time.Duration) {
	var waits []time.Duration
	p := &Pacer{Unit: unit, Step: unit}
	p.wait = func(done <-chan struct{}, d time.Duration) bool {
		select {
		case <-done:
			return false
		default:
		}
		waits = append(waits, d)
		return true
	}
	return p, &waits
}

func seeded() *rand.Rand { return rand.New(rand.NewSource(42)) }

func pool(n int) staticPool {
	out := make(staticPool, n)
	for i := range out {
		out[i] = fmt.Sprintf("/media/%02d.jpg", i)
	}
	return out
}

var errBoom = errors.New("boom")

func waitFor(ch <-chan struct{}, d time.Duration) bool {
	select {
	case <-ch:
		return true
	case <-time.After(d):
		return false
	}
}
