// Package browser drives the Meta Business Suite post composer inside an
// attached browser session.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"adsposter/internal/browser/cdp"
	"adsposter/internal/poster"
	logx "adsposter/pkg/logx"
)

const DefaultHomeURL = "https://business.facebook.com/latest/home"

// Selectors locate composer elements. XPath unless noted.
type Selectors struct {
	CreatePost     string
	PhotoInput     string // CSS
	TextEditor     string // CSS
	PublishButton  string
	ScheduleToggle string
	DateInput      string
	ScheduleButton string
}

func DefaultSelectors() Selectors {
	return Selectors{
		CreatePost:     `//div[@role='button' and contains(., 'Create post')]`,
		PhotoInput:     `input[type="file"][accept*="image"]`,
		TextEditor:     `div[contenteditable="true"][role="combobox"]`,
		PublishButton:  `//div[@role='button' and .//text()='Publish']`,
		ScheduleToggle: `//input[@aria-label='Set date and time']`,
		DateInput:      `//input[@placeholder="mm/dd/yyyy"]`,
		ScheduleButton: `//div[@role='button' and .//text()='Schedule']`,
	}
}

// Config tunes the composer. Zero settle durations mean no pause.
type Config struct {
	HomeURL        string
	ElementTimeout time.Duration
	PollInterval   time.Duration

	OpenSettle     time.Duration
	MediaSettle    time.Duration
	ScheduleSettle time.Duration
	PostSettle     time.Duration

	Selectors Selectors
}

// DefaultConfig mirrors the pauses the composer UI needs in practice.
func DefaultConfig() Config {
	return Config{
		HomeURL:        DefaultHomeURL,
		ElementTimeout: 10 * time.Second,
		PollInterval:   250 * time.Millisecond,
		OpenSettle:     5 * time.Second,
		MediaSettle:    800 * time.Millisecond,
		ScheduleSettle: 2 * time.Second,
		PostSettle:     3 * time.Second,
		Selectors:      DefaultSelectors(),
	}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.HomeURL == "" {
		c.HomeURL = d.HomeURL
	}
	if c.ElementTimeout <= 0 {
		c.ElementTimeout = d.ElementTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	s, ds := &c.Selectors, d.Selectors
	orDefault(&s.CreatePost, ds.CreatePost)
	orDefault(&s.PhotoInput, ds.PhotoInput)
	orDefault(&s.TextEditor, ds.TextEditor)
	orDefault(&s.PublishButton, ds.PublishButton)
	orDefault(&s.ScheduleToggle, ds.ScheduleToggle)
	orDefault(&s.DateInput, ds.DateInput)
	orDefault(&s.ScheduleButton, ds.ScheduleButton)
	return c
}

func orDefault(v *string, def string) {
	if *v == "" {
		*v = def
	}
}

// page is the slice of the DevTools client the composer uses.
type page interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	Poll(ctx context.Context, timeout, every time.Duration, expr string) error
	Evaluate(ctx context.Context, expr string, out any) error
	InsertText(ctx context.Context, text string) error
	PressKey(ctx context.Context, k cdp.Key) error
	SelectAll(ctx context.Context) error
	SetFileInputFiles(ctx context.Context, selector string, files []string) error
	Close(ctx context.Context) error
}

// BusinessComposer implements poster.BrowserSession.
type BusinessComposer struct {
	p   page
	cfg Config
	log logx.Logger
}

func newComposer(p page, cfg Config, log logx.Logger) *BusinessComposer {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &BusinessComposer{p: p, cfg: cfg.normalized(), log: log}
}

// Attacher returns an attach function that opens a fresh tab on the browser
// at addr and drives it with a BusinessComposer.
func Attacher(cfg Config, log logx.Logger) func(ctx context.Context, addr string) (poster.BrowserSession, error) {
	return func(ctx context.Context, addr string) (poster.BrowserSession, error) {
		tab, err := cdp.NewTab(ctx, addr)
		if err != nil {
			return nil, err
		}
		conn, err := cdp.Dial(ctx, tab.WebSocketDebuggerURL)
		if err != nil {
			_ = cdp.CloseTab(ctx, addr, tab.ID)
			return nil, err
		}
		return newComposer(&tabPage{Conn: conn, addr: addr, id: tab.ID}, cfg, log), nil
	}
}

func (b *BusinessComposer) OpenComposer(ctx context.Context) error {
	if err := b.p.Navigate(ctx, b.cfg.HomeURL, 3*b.cfg.ElementTimeout); err != nil {
		return err
	}
	if err := b.clickXPath(ctx, b.cfg.Selectors.CreatePost); err != nil {
		return fmt.Errorf("create post: %w", err)
	}
	b.log.Debug("composer opened")
	return settle(ctx, b.cfg.OpenSettle)
}

func (b *BusinessComposer) AttachMedia(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	sel := b.cfg.Selectors.PhotoInput
	if err := b.p.Poll(ctx, b.cfg.ElementTimeout, b.cfg.PollInterval, "document.querySelector("+jsString(sel)+") !== null"); err != nil {
		return fmt.Errorf("photo input: %w", err)
	}
	if err := b.p.SetFileInputFiles(ctx, sel, []string{abs}); err != nil {
		return fmt.Errorf("attach %s: %w", filepath.Base(abs), err)
	}
	b.log.Debug("media attached", logx.String("file", filepath.Base(abs)))
	return settle(ctx, b.cfg.MediaSettle)
}

func (b *BusinessComposer) SetText(ctx context.Context, text string) error {
	sel := b.cfg.Selectors.TextEditor
	if err := b.waitTrue(ctx, focusCSS(sel)); err != nil {
		return fmt.Errorf("text editor: %w", err)
	}
	if err := b.clearFocused(ctx); err != nil {
		return err
	}
	return b.p.InsertText(ctx, text)
}

func (b *BusinessComposer) Publish(ctx context.Context) error {
	if err := settle(ctx, b.cfg.ScheduleSettle); err != nil {
		return err
	}
	if err := b.clickXPath(ctx, b.cfg.Selectors.PublishButton); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return settle(ctx, b.cfg.PostSettle)
}

// SchedulePublish fills the date, hour, minute and meridiem fields in tab
// order and submits. An empty meridiem leaves the field untouched.
func (b *BusinessComposer) SchedulePublish(ctx context.Context, t poster.ScheduleTarget) error {
	sel := b.cfg.Selectors
	if err := b.clickXPath(ctx, sel.ScheduleToggle); err != nil {
		return fmt.Errorf("schedule toggle: %w", err)
	}
	if err := settle(ctx, b.cfg.ScheduleSettle); err != nil {
		return err
	}
	if err := b.waitTrue(ctx, focusXPath(sel.DateInput)); err != nil {
		return fmt.Errorf("date input: %w", err)
	}
	if err := b.clearFocused(ctx); err != nil {
		return err
	}

	fields := []string{t.Date, t.Hour, t.Minute}
	if t.Meridiem != "" {
		fields = append(fields, t.Meridiem)
	}
	for _, v := range fields {
		if err := b.p.InsertText(ctx, v); err != nil {
			return err
		}
		if err := b.p.PressKey(ctx, cdp.KeyTab); err != nil {
			return err
		}
	}
	if t.Meridiem == "" {
		if err := b.p.PressKey(ctx, cdp.KeyTab); err != nil {
			return err
		}
	}

	if err := settle(ctx, b.cfg.ScheduleSettle); err != nil {
		return err
	}
	if err := b.clickXPath(ctx, sel.ScheduleButton); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	b.log.Debug("schedule submitted", logx.String("at", t.String()))
	return settle(ctx, b.cfg.PostSettle)
}

func (b *BusinessComposer) Close(ctx context.Context) error { return b.p.Close(ctx) }

func (b *BusinessComposer) clickXPath(ctx context.Context, xpath string) error {
	return b.waitTrue(ctx, clickXPath(xpath))
}

func (b *BusinessComposer) waitTrue(ctx context.Context, expr string) error {
	return b.p.Poll(ctx, b.cfg.ElementTimeout, b.cfg.PollInterval, expr)
}

func (b *BusinessComposer) clearFocused(ctx context.Context) error {
	if err := b.p.SelectAll(ctx); err != nil {
		return err
	}
	return b.p.PressKey(ctx, cdp.KeyBackspace)
}

// ---- page scripts ----

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func xpathNode(xpath string) string {
	return "document.evaluate(" + jsString(xpath) + ", document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue"
}

func clickXPath(xpath string) string {
	return `(() => { const n = ` + xpathNode(xpath) + `; if (!n) return false; n.scrollIntoView({block: "center"}); n.click(); return true; })()`
}

func focusXPath(xpath string) string {
	return `(() => { const n = ` + xpathNode(xpath) + `; if (!n) return false; n.click(); n.focus(); return true; })()`
}

func focusCSS(sel string) string {
	return `(() => { const n = document.querySelector(` + jsString(sel) + `); if (!n) return false; n.click(); n.focus(); return true; })()`
}

func settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// tabPage closes its tab when the session ends.
type tabPage struct {
	*cdp.Conn
	addr string
	id   string
}

func (t *tabPage) Close(ctx context.Context) error {
	err := t.Conn.Close()
	if cerr := cdp.CloseTab(ctx, t.addr, t.id); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
