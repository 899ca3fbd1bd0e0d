package browser

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"adsposter/internal/browser/cdp"
	"adsposter/internal/poster"
	logx "adsposter/pkg/logx"
)

type fakePage struct {
	ops     []string
	failOn  string
	missing string // selector fragment that never appears
}

func (f *fakePage) add(op string) error {
	f.ops = append(f.ops, op)
	if f.failOn != "" && strings.HasPrefix(op, f.failOn) {
		return errors.New("failed: " + op)
	}
	return nil
}

func (f *fakePage) Navigate(_ context.Context, url string, _ time.Duration) error {
	return f.add("navigate " + url)
}

func (f *fakePage) Poll(_ context.Context, _, _ time.Duration, expr string) error {
	if f.missing != "" && strings.Contains(expr, f.missing) {
		f.ops = append(f.ops, "poll-timeout")
		return errors.New("timed out")
	}
	return f.add("poll")
}

func (f *fakePage) Evaluate(context.Context, string, any) error { return f.add("eval") }
func (f *fakePage) InsertText(_ context.Context, text string) error {
	return f.add("text " + text)
}
func (f *fakePage) PressKey(_ context.Context, k cdp.Key) error { return f.add("key " + k.Key) }
func (f *fakePage) SelectAll(context.Context) error             { return f.add("selectall") }
func (f *fakePage) SetFileInputFiles(_ context.Context, _ string, files []string) error {
	return f.add("files " + strings.Join(files, ","))
}
func (f *fakePage) Close(context.Context) error { return f.add("close") }

func quickConfig() Config {
	return Config{HomeURL: "https://example.test/home"}
}

func TestOpenComposer(t *testing.T) {
	p := &fakePage{}
	c := newComposer(p, quickConfig(), logx.Nop())
	if err := c.OpenComposer(context.Background()); err != nil {
		t.Fatalf("OpenComposer: %v", err)
	}
	want := "navigate https://example.test/home,poll"
	if got := strings.Join(p.ops, ","); got != want {
		t.Fatalf("ops = %q, want %q", got, want)
	}
}

func TestOpenComposerMissingButton(t *testing.T) {
	p := &fakePage{missing: "Create post"}
	c := newComposer(p, quickConfig(), logx.Nop())
	if err := c.OpenComposer(context.Background()); err == nil || !strings.Contains(err.Error(), "create post") {
		t.Fatalf("err = %v", err)
	}
}

func TestAttachMediaAndText(t *testing.T) {
	p := &fakePage{}
	c := newComposer(p, quickConfig(), logx.Nop())
	ctx := context.Background()
	if err := c.AttachMedia(ctx, "/media/a.jpg"); err != nil {
		t.Fatalf("AttachMedia: %v", err)
	}
	if err := c.SetText(ctx, "hello #world"); err != nil {
		t.Fatalf("SetText: %v", err)
	}
	want := "poll,files /media/a.jpg,poll,selectall,key Backspace,text hello #world"
	if got := strings.Join(p.ops, ","); got != want {
		t.Fatalf("ops = %q\nwant %q", got, want)
	}
}

func TestSchedulePublishFieldOrder(t *testing.T) {
	tests := []struct {
		name   string
		target poster.ScheduleTarget
		want   string
	}{
		{
			name:   "with meridiem",
			target: poster.ScheduleTarget{Date: "3/7/2025", Hour: "09", Minute: "05", Meridiem: "p"},
			want: "poll,poll,selectall,key Backspace," +
				"text 3/7/2025,key Tab,text 09,key Tab,text 05,key Tab,text p,key Tab,poll",
		},
		{
			name:   "without meridiem",
			target: poster.ScheduleTarget{Date: "3/7/2025", Hour: "14", Minute: "30"},
			want: "poll,poll,selectall,key Backspace," +
				"text 3/7/2025,key Tab,text 14,key Tab,text 30,key Tab,key Tab,poll",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePage{}
			c := newComposer(p, quickConfig(), logx.Nop())
			if err := c.SchedulePublish(context.Background(), tt.target); err != nil {
				t.Fatalf("SchedulePublish: %v", err)
			}
			if got := strings.Join(p.ops, ","); got != tt.want {
				t.Fatalf("ops = %q\nwant %q", got, tt.want)
			}
		})
	}
}

func TestPublishFailure(t *testing.T) {
	p := &fakePage{missing: "Publish"}
	c := newComposer(p, quickConfig(), logx.Nop())
	if err := c.Publish(context.Background()); err == nil || !strings.Contains(err.Error(), "publish") {
		t.Fatalf("err = %v", err)
	}
}

func TestScriptsQuoteSelectors(t *testing.T) {
	js := clickXPath(`//div[@role='button' and .//text()="Publish"]`)
	if !strings.Contains(js, `"//div[@role='button' and .//text()=\"Publish\"]"`) {
		t.Fatalf("script = %s", js)
	}
}

func TestSettleHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := settle(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if err := settle(context.Background(), 0); err != nil {
		t.Fatalf("err = %v", err)
	}
}

func TestDryRunLogsSteps(t *testing.T) {
	var buf bytes.Buffer
	d := DryRun{Log: logx.NewWriter(&buf, "debug")}
	s, err := d.Open(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()
	_ = s.OpenComposer(ctx)
	_ = s.AttachMedia(ctx, "/x/a.png")
	_ = s.SetText(ctx, "hi")
	_ = s.SchedulePublish(ctx, poster.ScheduleTarget{Date: "1/2/2025", Hour: "10", Minute: "00", Meridiem: "a"})
	_ = s.Close(ctx)

	out := buf.String()
	for _, want := range []string{"dry-run: open composer", "a.png", "1/2/2025 10:00 AM", `"profile":"p1"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("log missing %q:\n%s", want, out)
		}
	}
}
