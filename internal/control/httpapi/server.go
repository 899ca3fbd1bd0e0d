// Package httpapi is the local HTTP control surface: run admission, stop,
// status and history, plus health, metrics and optional pprof routes.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"adsposter/internal/poster"
	rtsup "adsposter/internal/runtime/supervisor"
	"adsposter/internal/storage"
	logx "adsposter/pkg/logx"
)

const DefaultAddr = "127.0.0.1:8765"

type Config struct {
	Addr          string
	Token         string
	AllowInsecure bool
	ReadTimeout   time.Duration
	IdleTimeout   time.Duration
	// SyncTimeout bounds a synchronous POST /v1/runs; 0 waits for the run.
	SyncTimeout time.Duration
	Pprof       bool
}

// Runner is the run manager as seen by the API.
type Runner interface {
	Submit(req poster.Request) (*poster.Handle, error)
	Stop() poster.StopResult
	Status() poster.Status
}

type History interface {
	RecentRuns(ctx context.Context, limit int) ([]storage.RunRecord, error)
}

type Auditor interface {
	AppendAudit(ctx context.Context, e storage.AuditEntry) error
}

// Deps are the collaborators behind the routes. Only Runner is required.
type Deps struct {
	Runner  Runner
	History History
	Audit   Auditor
	Metrics http.Handler
	// Autorun returns a JSON-encodable snapshot of autorun triggers.
	Autorun func() any
	// Prepare fills request defaults before admission.
	Prepare func(poster.Request) poster.Request
}

type Server struct {
	log  logx.Logger
	cfg  Config
	deps Deps

	mu   sync.Mutex
	srv  *http.Server
	ln   net.Listener
	sup  *rtsup.Supervisor
	addr string
}

func New(cfg Config, deps Deps, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = DefaultAddr
	}
	return &Server{cfg: cfg, deps: deps, log: log}
}

// Addr is the bound address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Start binds the listener and serves in the background until Stop or ctx ends.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return nil
	}
	cfg := s.cfg
	if !cfg.AllowInsecure && cfg.Token == "" && !isLoopbackAddr(cfg.Addr) {
		return errors.New("control api refused to start: non-loopback addr requires token or allow_insecure")
	}
	if cfg.AllowInsecure && cfg.Token == "" && !isLoopbackAddr(cfg.Addr) {
		s.log.Warn("control api running without token on non-loopback addr (insecure)", logx.String("addr", cfg.Addr))
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
	s.srv, s.ln, s.addr = srv, ln, ln.Addr().String()
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log))
	s.sup.Go("http.serve", func(context.Context) error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("control api stopped", logx.Err(err))
			return err
		}
		return nil
	})
	s.sup.Go0("http.shutdown", func(c context.Context) {
		<-c.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	})
	s.log.Info("control api started",
		logx.String("addr", s.addr),
		logx.Bool("token_set", cfg.Token != ""),
		logx.Bool("pprof", cfg.Pprof),
	)
	return nil
}

// Stop shuts the server down. In-flight synchronous run requests are cut off;
// their runs keep going.
func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	srv, sup := s.srv, s.sup
	s.srv, s.ln, s.sup = nil, nil, nil
	s.mu.Unlock()
	if srv == nil {
		return
	}
	_ = srv.Shutdown(ctx)
	_ = srv.Close()
	if sup != nil {
		_ = sup.Stop(ctx)
	}
	s.log.Info("control api stopped")
}

func isLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
