package adspower

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"adsposter/internal/poster"
)

func splitHostPort(t *testing.T, rawURL string) (string, string) {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatal(err)
	}
	host, port, err := net.SplitHostPort(u.Host)
	if err != nil {
		t.Fatal(err)
	}
	return host, port
}

func TestStartProfile(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    Profile
		wantErr error
	}{
		{
			name: "string port",
			body: `{"code":0,"msg":"success","data":{"debug_port":"9222","webdriver":"/bin/chromedriver","ws":{"selenium":"127.0.0.1:9222","puppeteer":"ws://127.0.0.1:9222/devtools/browser/x"}}}`,
			want: Profile{DebugPort: "9222", WebDriver: "/bin/chromedriver", WSSelenium: "127.0.0.1:9222", WSPuppeteer: "ws://127.0.0.1:9222/devtools/browser/x"},
		},
		{
			name: "numeric port",
			body: `{"code":0,"data":{"debug_port":9333}}`,
			want: Profile{DebugPort: "9333"},
		},
		{name: "api code", body: `{"code":-1,"msg":"user_id is not exists"}`, wantErr: ErrAPI},
		{name: "missing port", body: `{"code":0,"data":{}}`, wantErr: ErrAPI},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/v1/browser/start" || r.URL.Query().Get("user_id") != "u1" {
					t.Errorf("request = %s", r.URL)
				}
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			got, err := NewClient(srv.URL, time.Second).StartProfile(context.Background(), "u1")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("StartProfile: %v", err)
			}
			if got != tt.want {
				t.Fatalf("profile = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestStopProfileHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()
	if err := NewClient(srv.URL, time.Second).StopProfile(context.Background(), "u1"); !errors.Is(err, ErrAPI) {
		t.Fatalf("err = %v", err)
	}
}

func TestWaitReadyAfterRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/json/version" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"Browser":"Chrome"}`))
	}))
	defer srv.Close()
	host, port := splitHostPort(t, srv.URL)

	if err := WaitReady(context.Background(), host, port, 2*time.Second, 10*time.Millisecond); err != nil {
		t.Fatalf("WaitReady: %v", err)
	}
	if hits.Load() != 3 {
		t.Fatalf("hits = %d, want 3", hits.Load())
	}
}

func TestWaitReadyTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	host, port := splitHostPort(t, srv.URL)

	err := WaitReady(context.Background(), host, port, 60*time.Millisecond, 10*time.Millisecond)
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("err = %v, want ErrNotReady", err)
	}
}

type nopSession struct{ closed bool }

func (*nopSession) OpenComposer(context.Context) error                           { return nil }
func (*nopSession) AttachMedia(context.Context, string) error                    { return nil }
func (*nopSession) SetText(context.Context, string) error                        { return nil }
func (*nopSession) Publish(context.Context) error                                { return nil }
func (*nopSession) SchedulePublish(context.Context, poster.ScheduleTarget) error { return nil }
func (s *nopSession) Close(context.Context) error                                { s.closed = true; return nil }

func TestProviderOpenAndClose(t *testing.T) {
	var stops atomic.Int32
	var devtoolsPort string
	devtools := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer devtools.Close()
	_, devtoolsPort = splitHostPort(t, devtools.URL)

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/browser/start":
			_, _ = w.Write([]byte(`{"code":0,"data":{"debug_port":"` + devtoolsPort + `"}}`))
		case "/api/v1/browser/stop":
			stops.Add(1)
			_, _ = w.Write([]byte(`{"code":0}`))
		}
	}))
	defer api.Close()

	inner := &nopSession{}
	var attachedTo string
	p := NewProvider(ProviderOptions{
		Client: NewClient(api.URL, time.Second),
		Attach: func(_ context.Context, addr string) (poster.BrowserSession, error) {
			attachedTo = addr
			return inner, nil
		},
		DefaultUserID: "cfg-user",
		ReadyTimeout:  time.Second,
		StopOnFinish:  true,
	})

	sess, err := p.Open(context.Background(), "u7")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if attachedTo != net.JoinHostPort("127.0.0.1", devtoolsPort) {
		t.Fatalf("attached to %q", attachedTo)
	}
	if err := sess.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !inner.closed || stops.Load() != 1 {
		t.Fatalf("closed=%v stops=%d", inner.closed, stops.Load())
	}
}

func TestProviderOpenFailureWrapsAcquisition(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":-1,"msg":"profile busy"}`))
	}))
	defer api.Close()

	p := NewProvider(ProviderOptions{
		Client: NewClient(api.URL, time.Second),
		Attach: func(context.Context, string) (poster.BrowserSession, error) { return &nopSession{}, nil },
	})
	_, err := p.Open(context.Background(), "u1")
	if !errors.Is(err, poster.ErrSessionAcquisition) || !errors.Is(err, ErrAPI) {
		t.Fatalf("err = %v", err)
	}
}

func TestResolveUserID(t *testing.T) {
	p := NewProvider(ProviderOptions{DefaultUserID: "cfg"})

	t.Setenv(EnvUserID, "")
	if got := p.ResolveUserID(""); got != "cfg" {
		t.Fatalf("ResolveUserID = %q, want cfg", got)
	}
	t.Setenv(EnvUserID, "env-user")
	if got := p.ResolveUserID("  "); got != "env-user" {
		t.Fatalf("ResolveUserID = %q, want env-user", got)
	}
	if got := p.ResolveUserID("explicit"); got != "explicit" {
		t.Fatalf("ResolveUserID = %q, want explicit", got)
	}
}
