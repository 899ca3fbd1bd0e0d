package adspower

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"adsposter/internal/poster"
	logx "adsposter/pkg/logx"
)

// EnvUserID overrides the configured default profile when a request names none.
const EnvUserID = "ADSPOWER_USER_ID"

// AttachFunc connects a composer to the DevTools endpoint at addr (host:port).
type AttachFunc func(ctx context.Context, addr string) (poster.BrowserSession, error)

type ProviderOptions struct {
	Client        *Client
	Attach        AttachFunc
	DefaultUserID string
	DebugHost     string
	ReadyTimeout  time.Duration
	ReadyInterval time.Duration
	StopOnFinish  bool
	Log           logx.Logger
}

// Provider acquires browser sessions from AdsPower profiles.
type Provider struct {
	opt ProviderOptions
	log logx.Logger
}

func NewProvider(opt ProviderOptions) *Provider {
	if opt.Client == nil {
		opt.Client = NewClient("", 0)
	}
	if opt.DebugHost == "" {
		opt.DebugHost = "127.0.0.1"
	}
	log := opt.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Provider{opt: opt, log: log}
}

// ResolveUserID picks identity, then $ADSPOWER_USER_ID, then the configured default.
func (p *Provider) ResolveUserID(identity string) string {
	if id := strings.TrimSpace(identity); id != "" {
		return id
	}
	if id := strings.TrimSpace(os.Getenv(EnvUserID)); id != "" {
		return id
	}
	return p.opt.DefaultUserID
}

// Open starts the profile, waits for DevTools and attaches a composer.
// Every failure wraps poster.ErrSessionAcquisition.
func (p *Provider) Open(ctx context.Context, identity string) (poster.BrowserSession, error) {
	userID := p.ResolveUserID(identity)
	if userID == "" {
		return nil, fmt.Errorf("%w: no profile id", poster.ErrSessionAcquisition)
	}
	if p.opt.Attach == nil {
		return nil, fmt.Errorf("%w: no browser driver configured", poster.ErrSessionAcquisition)
	}
	log := p.log.With(logx.String("profile", userID))

	prof, err := p.opt.Client.StartProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", poster.ErrSessionAcquisition, err)
	}
	log.Info("profile started", logx.String("debug_port", prof.DebugPort))

	if err := WaitReady(ctx, p.opt.DebugHost, prof.DebugPort, p.opt.ReadyTimeout, p.opt.ReadyInterval); err != nil {
		p.stopQuietly(ctx, log, userID)
		return nil, fmt.Errorf("%w: %w", poster.ErrSessionAcquisition, err)
	}

	addr := net.JoinHostPort(p.opt.DebugHost, prof.DebugPort)
	sess, err := p.opt.Attach(ctx, addr)
	if err != nil {
		p.stopQuietly(ctx, log, userID)
		return nil, fmt.Errorf("%w: attach %s: %w", poster.ErrSessionAcquisition, addr, err)
	}
	log.Debug("browser attached", logx.String("addr", addr))

	return &session{BrowserSession: sess, p: p, userID: userID, log: log}, nil
}

func (p *Provider) stopQuietly(ctx context.Context, log logx.Logger, userID string) {
	if !p.opt.StopOnFinish {
		return
	}
	if err := p.opt.Client.StopProfile(ctx, userID); err != nil {
		log.Warn("profile stop failed", logx.Err(err))
	}
}

// session stops the profile after detaching, when configured to.
type session struct {
	poster.BrowserSession
	p      *Provider
	userID string
	log    logx.Logger
}

func (s *session) Close(ctx context.Context) error {
	err := s.BrowserSession.Close(ctx)
	if s.p.opt.StopOnFinish {
		if serr := s.p.opt.Client.StopProfile(ctx, s.userID); serr != nil {
			err = errors.Join(err, serr)
		} else {
			s.log.Info("profile stopped")
		}
	}
	return err
}
