// Package router dispatches operator chat commands to handlers on a bounded worker pool.
package router

import (
	"context"
	"runtime"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"adsposter/internal/runtime/supervisor"
	kit "adsposter/internal/transport"
	logx "adsposter/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Access      Access
	Timeout     time.Duration
	Handle      HandlerFunc
}

// Request is one routed command message.
type Request struct {
	Message *kit.Message
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	Args    []string // positionals from the command line
	Flags   map[string]string
	Bools   map[string]bool
	Body    string // text after the first line
	ReqID   string
	Adapter kit.Adapter
	Logger  logx.Logger
}

// Reply sends text back to the chat the command came from.
func (r *Request) Reply(ctx context.Context, text string, opt *kit.SendOptions) error {
	_, err := r.Adapter.SendText(ctx, r.Chat, text, opt)
	return err
}

type Router struct {
	mu     sync.RWMutex
	cmds   map[string]Command
	alias  map[string]string
	owners []int64

	log     logx.Logger
	adapter kit.Adapter
	jobs    chan func()
}

func New(log logx.Logger, adapter kit.Adapter, owners []int64) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		cmds:    map[string]Command{},
		alias:   map[string]string{},
		owners:  slices.Clone(owners),
		log:     log,
		adapter: adapter,
		jobs:    make(chan func(), 64),
	}
}

// SetOwners replaces the owner list; safe during hot reload.
func (m *Router) SetOwners(owners []int64) {
	m.mu.Lock()
	m.owners = slices.Clone(owners)
	m.mu.Unlock()
}

// SetCommands installs the command registry, adds /help, and refreshes the
// chat client's command menu when the adapter supports it.
func (m *Router) SetCommands(ctx context.Context, cmds []Command) {
	cmds = append(slices.Clone(cmds), Command{
		Name:        "help",
		Aliases:     []string{"start"},
		Description: "list commands",
		Usage:       "/help [command]",
		Handle: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, m.helpText(req.Args), &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
		},
	})

	byName := make(map[string]Command, len(cmds))
	alias := map[string]string{}
	for _, c := range cmds {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		byName[name] = c
		for _, a := range c.Aliases {
			if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
				alias[a] = name
			}
		}
	}

	m.mu.Lock()
	m.cmds = byName
	m.alias = alias
	m.mu.Unlock()

	if up, ok := m.adapter.(kit.CommandMenuUpdater); ok {
		go func() {
			cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := up.UpdateMenuCommands(cctx, menuCommands(cmds)); err != nil {
				m.log.Debug("menu update failed", logx.Err(err))
			}
		}()
	}
}

// Run consumes updates until ctx ends or the channel closes.
func (m *Router) Run(ctx context.Context, updates <-chan kit.Update) error {
	workers := max(2, min(runtime.NumCPU(), 4))
	sup := supervisor.New(ctx,
		supervisor.WithLogger(m.log.With(logx.String("comp", "telegram.router"))),
		supervisor.WithCancelOnError(false),
	)
	for i := 0; i < workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job := <-m.jobs:
					m.runJob(idx, job)
				}
			}
		}, 200*time.Millisecond, 5*time.Second)
	}
	m.log.Info("command dispatcher started", logx.Int("workers", workers))

	defer func() {
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
		defer cancel()
		_ = sup.Stop(wctx)
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			if up.Kind == kit.UpdateMessage && up.Message != nil {
				m.route(ctx, up.Message)
			}
		}
	}
}

func (m *Router) runJob(worker int, job func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("panic in command job", logx.Int("worker", worker), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()
	job()
}

func (m *Router) route(ctx context.Context, msg *kit.Message) {
	req, cmd, ok := m.match(msg)
	if !ok {
		return
	}
	if cmd.Handle == nil {
		_ = req.Reply(ctx, "unknown command, try /help", nil)
		return
	}
	if cmd.Access == AccessOwnerOnly && !m.isOwner(msg.FromID) {
		m.log.Warn("unauthorized command", logx.Int64("from_id", msg.FromID), logx.String("cmd", cmd.Name))
		_ = req.Reply(ctx, "unauthorized", nil)
		return
	}
	req.Logger = m.log.With(
		logx.String("rid", req.ReqID),
		logx.Int64("chat_id", msg.ChatID),
		logx.Int64("from_id", msg.FromID),
		logx.String("cmd", cmd.Name),
	)

	final := Chain(cmd.Handle, MWPanicRecover(m.log), MWRequestLog(m.log), MWTimeout(cmd.Timeout))
	select {
	case m.jobs <- func() {
		if err := final(ctx, req); err != nil {
			_ = req.Reply(ctx, "error: "+err.Error(), nil)
		}
	}:
	default:
		_ = req.Reply(ctx, "busy, try again", nil)
	}
}

// match parses a command message. ok is false for non-command text; an
// unknown command yields ok with a zero Command.
func (m *Router) match(msg *kit.Message) (*Request, Command, bool) {
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return nil, Command{}, false
	}
	head, body, _ := strings.Cut(text, "\n")
	parts := tokenize(head)
	if len(parts) == 0 {
		return nil, Command{}, false
	}
	word := strings.ToLower(strings.TrimPrefix(parts[0], "/"))
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}

	m.mu.RLock()
	if name, ok := m.alias[word]; ok {
		word = name
	}
	cmd := m.cmds[word]
	m.mu.RUnlock()

	pos, flags, bools := parseFlags(parts[1:])
	return &Request{
		Message: msg,
		Chat:    kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID},
		FromID:  msg.FromID,
		Command: word,
		Args:    pos,
		Flags:   flags,
		Bools:   bools,
		Body:    strings.TrimSpace(body),
		ReqID:   newReqID(),
		Adapter: m.adapter,
		Logger:  m.log,
	}, cmd, true
}

func (m *Router) isOwner(id int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Contains(m.owners, id)
}
