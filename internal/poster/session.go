package poster

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"adsposter/internal/eventbus"
	"adsposter/internal/runtime/supervisor"
	logx "adsposter/pkg/logx"
)

// State is the lifecycle position of a run.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// RunInfo describes an admitted run.
type RunInfo struct {
	ID        string    `json:"id"`
	Identity  string    `json:"identity"`
	Source    string    `json:"source,omitempty"`
	Jobs      int       `json:"jobs"`
	StartedAt time.Time `json:"started_at"`
}

// RunSummary is the terminal record of a run.
type RunSummary struct {
	RunInfo
	State      State     `json:"state"`
	FinishedAt time.Time `json:"finished_at"`
	Published  int       `json:"published"`
	Scheduled  int       `json:"scheduled"`
	Skipped    int       `json:"skipped"`
	Cancelled  bool      `json:"cancelled"`
	Error      string    `json:"error,omitempty"`
}

// JobEvent is the payload of eventbus.JobFinished.
type JobEvent struct {
	RunID string    `json:"run_id"`
	Job   JobResult `json:"job"`
}

// Status is a point-in-time view of the manager.
type Status struct {
	State    State       `json:"state"`
	Run      *RunInfo    `json:"run,omitempty"`
	Draining bool        `json:"draining"`
	Last     *RunSummary `json:"last,omitempty"`
}

// StopResult is the outcome of a stop request.
type StopResult struct {
	Success bool   `json:"success"`
	RunID   string `json:"run_id,omitempty"`
	Message string `json:"message"`
}

// Handle tracks one admitted run.
type Handle struct {
	Info RunInfo

	done   chan struct{}
	report Report
	err    error
	sum    RunSummary
}

func (h *Handle) Done() <-chan struct{} { return h.done }

// Result is valid once Done is closed.
func (h *Handle) Result() (Report, error) { return h.report, h.err }

// Summary is valid once Done is closed.
func (h *Handle) Summary() RunSummary { return h.sum }

type run struct {
	info   RunInfo
	req    Request
	tok    *CancelToken
	state  State
	prev   <-chan struct{}
	handle *Handle
}

// ManagerOptions wires a Manager. Zero values fall back to no-op collaborators.
type ManagerOptions struct {
	Sessions        SessionProvider
	Executor        *Executor
	DefaultIdentity string
	CloseTimeout    time.Duration

	Bus     eventbus.Bus
	Log     logx.Logger
	Metrics Metrics

	// NewRand returns the random source for one run.
	NewRand func() *rand.Rand
}

// Manager enforces single-flight execution of runs.
type Manager struct {
	mu       sync.Mutex
	active   *run
	lastDone <-chan struct{}
	last     *RunSummary

	sessions        SessionProvider
	exec            *Executor
	defaultIdentity string
	closeTimeout    time.Duration
	bus             eventbus.Bus
	log             logx.Logger
	metrics         Metrics
	newRand         func() *rand.Rand
	sup             *supervisor.Supervisor
}

// NewManager creates a manager whose workers live under ctx.
// Cancelling ctx is process shutdown; stop requests use the run token instead.
func NewManager(ctx context.Context, opt ManagerOptions) *Manager {
	log := opt.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	bus := opt.Bus
	if bus == nil {
		bus = eventbus.Nop()
	}
	metrics := opt.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}
	newRand := opt.NewRand
	if newRand == nil {
		newRand = func() *rand.Rand { return rand.New(rand.NewSource(time.Now().UnixNano())) }
	}
	exec := opt.Executor
	if exec == nil {
		exec = &Executor{}
	}
	if exec.Log.IsZero() {
		exec.Log = log
	}
	if exec.Metrics == nil {
		exec.Metrics = metrics
	}
	closeTimeout := opt.CloseTimeout
	if closeTimeout <= 0 {
		closeTimeout = 15 * time.Second
	}
	return &Manager{
		sessions:        opt.Sessions,
		exec:            exec,
		defaultIdentity: strings.TrimSpace(opt.DefaultIdentity),
		closeTimeout:    closeTimeout,
		bus:             bus,
		log:             log,
		metrics:         metrics,
		newRand:         newRand,
		sup:             supervisor.New(ctx, supervisor.WithLogger(log)),
	}
}

// admit is the only transition into Running. It fails while a run is Running;
// a Stopping run no longer blocks admission.
func (m *Manager) admit(req Request) (*run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil && m.active.state == StateRunning {
		return nil, ErrRunAlreadyActive
	}
	identity := strings.TrimSpace(req.Identity)
	if identity == "" {
		identity = m.defaultIdentity
	}
	req.Identity = identity

	r := &run{
		info: RunInfo{
			ID:        uuid.NewString(),
			Identity:  identity,
			Source:    req.Source,
			Jobs:      len(req.Jobs()),
			StartedAt: time.Now(),
		},
		req:   req,
		tok:   NewCancelToken(),
		state: StateRunning,
		prev:  m.lastDone,
	}
	r.handle = &Handle{Info: r.info, done: make(chan struct{})}
	m.active = r
	m.lastDone = r.handle.done
	return r, nil
}

// Submit admits req and starts its worker without waiting for it.
func (m *Manager) Submit(req Request) (*Handle, error) {
	r, err := m.admit(req)
	if err != nil {
		m.metrics.RunRejected(req.Source)
		m.bus.Publish(eventbus.Event{Type: eventbus.RunRejected, Data: req.Source})
		m.log.Warn("run rejected", logx.String("source", req.Source), logx.Err(err))
		return nil, err
	}
	m.metrics.RunAdmitted(req.Source)
	m.bus.Publish(eventbus.Event{Type: eventbus.RunStarted, Data: r.info})
	m.log.Info("run admitted",
		logx.String("run", r.info.ID),
		logx.String("identity", r.info.Identity),
		logx.String("source", r.info.Source),
		logx.Int("jobs", r.info.Jobs),
	)
	m.sup.Go("run."+r.info.ID[:8], func(ctx context.Context) error {
		m.work(ctx, r)
		return nil
	})
	return r.handle, nil
}

// Start admits req and blocks until the run terminates or ctx ends.
// The run keeps going if ctx ends first.
func (m *Manager) Start(ctx context.Context, req Request) (Report, error) {
	h, err := m.Submit(req)
	if err != nil {
		return Report{}, err
	}
	select {
	case <-h.Done():
		return h.Result()
	case <-ctx.Done():
		return Report{}, ctx.Err()
	}
}

// Stop signals the active run and releases admission. It succeeds when idle.
func (m *Manager) Stop() StopResult {
	m.mu.Lock()
	r := m.active
	if r == nil || r.state != StateRunning {
		m.mu.Unlock()
		return StopResult{Success: true, Message: "no run in progress"}
	}
	r.state = StateStopping
	m.mu.Unlock()

	r.tok.Cancel()
	m.bus.Publish(eventbus.Event{Type: eventbus.RunStopRequested, Data: r.info})
	m.log.Info("stop requested", logx.String("run", r.info.ID))
	return StopResult{Success: true, RunID: r.info.ID, Message: "stop requested"}
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{State: StateIdle}
	if r := m.active; r != nil {
		info := r.info
		st.Run = &info
		st.State = r.state
		st.Draining = r.state == StateStopping
	}
	if m.last != nil {
		last := *m.last
		st.Last = &last
	}
	return st
}

// Wait blocks until every worker has exited or ctx ends.
func (m *Manager) Wait(ctx context.Context) error {
	m.mu.Lock()
	done := m.lastDone
	m.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops the active run and cancels in-flight collaborator calls.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.Stop()
	return m.sup.Stop(ctx)
}

// Goroutines exposes the worker supervisor snapshot.
func (m *Manager) Goroutines() supervisor.Snapshot { return m.sup.Snapshot() }

func (m *Manager) work(ctx context.Context, r *run) {
	var (
		rep Report
		err error
	)
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("run worker panic: %v", p)
		}
		m.finish(r, rep, err)
	}()

	// The previous run may still own the browser after it was stopped.
	if r.prev != nil {
		select {
		case <-r.prev:
		case <-ctx.Done():
			err = ctx.Err()
			return
		}
	}
	if r.tok.Cancelled() {
		rep.Cancelled = true
		return
	}

	rep, err = m.execute(ctx, r)
}

func (m *Manager) execute(ctx context.Context, r *run) (Report, error) {
	log := m.log.With(logx.String("run", r.info.ID))
	if m.sessions == nil {
		return Report{}, fmt.Errorf("%w: no session provider configured", ErrSessionAcquisition)
	}
	sess, err := m.sessions.Open(ctx, r.info.Identity)
	if err != nil {
		if !errors.Is(err, ErrSessionAcquisition) {
			err = fmt.Errorf("%w: %w", ErrSessionAcquisition, err)
		}
		return Report{}, err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.closeTimeout)
		defer cancel()
		if cerr := sess.Close(cctx); cerr != nil {
			log.Warn("browser session close failed", logx.Err(cerr))
		}
	}()

	exec := *m.exec
	exec.Log = log
	return exec.Run(ctx, Execution{
		Token:    r.tok,
		Rand:     m.newRand(),
		Request:  r.req,
		Composer: sess,
		OnJob: func(j JobResult) {
			m.bus.Publish(eventbus.Event{Type: eventbus.JobFinished, Data: JobEvent{RunID: r.info.ID, Job: j}})
		},
	})
}

// finish resets admission before the outcome is reported.
func (m *Manager) finish(r *run, rep Report, err error) {
	sum := RunSummary{
		RunInfo:    r.info,
		State:      StateCompleted,
		FinishedAt: time.Now(),
		Published:  rep.Published,
		Scheduled:  rep.Scheduled,
		Skipped:    rep.Skipped,
		Cancelled:  rep.Cancelled,
	}
	if err != nil {
		sum.State = StateFailed
		sum.Error = err.Error()
	}

	m.mu.Lock()
	r.state = sum.State
	if m.active == r {
		m.active = nil
	}
	m.last = &sum
	m.mu.Unlock()

	r.handle.report, r.handle.err, r.handle.sum = rep, err, sum
	defer close(r.handle.done)

	took := sum.FinishedAt.Sub(r.info.StartedAt)
	m.metrics.RunFinished(sum.State, sum.Cancelled, took)
	m.bus.Publish(eventbus.Event{Type: eventbus.RunFinished, Data: sum})

	fields := []logx.Field{
		logx.String("run", r.info.ID),
		logx.String("state", sum.State.String()),
		logx.Int("published", sum.Published),
		logx.Int("scheduled", sum.Scheduled),
		logx.Int("skipped", sum.Skipped),
		logx.Bool("cancelled", sum.Cancelled),
		logx.Duration("took", took),
	}
	if err != nil {
		m.log.Error("run failed", append(fields, logx.Err(err))...)
		return
	}
	m.log.Info("run finished", fields...)
}
