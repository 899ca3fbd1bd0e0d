package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// fakeBrowser answers DevTools HTTP and websocket traffic.
type fakeBrowser struct {
	mu      sync.Mutex
	methods []string
	closed  []string
}

func (f *fakeBrowser) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.methods...)
}

func (f *fakeBrowser) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/json/new", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("/json/new method = %s", r.Method)
		}
		_ = json.NewEncoder(w).Encode(Target{
			ID:                   "T1",
			Type:                 "page",
			WebSocketDebuggerURL: "ws://" + r.Host + "/devtools/page/T1",
		})
	})
	mux.HandleFunc("/json/close/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.closed = append(f.closed, strings.TrimPrefix(r.URL.Path, "/json/close/"))
		f.mu.Unlock()
		_, _ = w.Write([]byte("Target is closing"))
	})
	mux.HandleFunc("/devtools/page/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()
		ctx := r.Context()
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var req struct {
				ID     int64          `json:"id"`
				Method string         `json:"method"`
				Params map[string]any `json:"params"`
			}
			if err := json.Unmarshal(data, &req); err != nil {
				t.Errorf("bad request: %v", err)
				return
			}
			f.mu.Lock()
			f.methods = append(f.methods, req.Method)
			f.mu.Unlock()

			// Unsolicited events must be ignored by the client.
			_ = conn.Write(ctx, websocket.MessageText, []byte(`{"method":"Page.frameNavigated","params":{}}`))

			var resp map[string]any
			switch req.Method {
			case "Runtime.evaluate":
				expr, _ := req.Params["expression"].(string)
				switch expr {
				case "boom()":
					resp = map[string]any{"id": req.ID, "result": map[string]any{
						"result":           map[string]any{"type": "object"},
						"exceptionDetails": map[string]any{"text": "Uncaught", "exception": map[string]any{"description": "ReferenceError: boom is not defined"}},
					}}
				case "false":
					resp = map[string]any{"id": req.ID, "result": map[string]any{"result": map[string]any{"type": "boolean", "value": false}}}
				default:
					resp = map[string]any{"id": req.ID, "result": map[string]any{"result": map[string]any{"type": "boolean", "value": true}}}
				}
			case "DOM.getDocument":
				resp = map[string]any{"id": req.ID, "result": map[string]any{"root": map[string]any{"nodeId": 1}}}
			case "DOM.querySelector":
				node := 7
				if req.Params["selector"] == "#missing" {
					node = 0
				}
				resp = map[string]any{"id": req.ID, "result": map[string]any{"nodeId": node}}
			case "Broken.method":
				resp = map[string]any{"id": req.ID, "error": map[string]any{"code": -32601, "message": "method not found"}}
			default:
				resp = map[string]any{"id": req.ID, "result": map[string]any{}}
			}
			out, _ := json.Marshal(resp)
			if err := conn.Write(ctx, websocket.MessageText, out); err != nil {
				return
			}
		}
	})
	return mux
}

func openTestConn(t *testing.T) (*Conn, *fakeBrowser, string) {
	t.Helper()
	fb := &fakeBrowser{}
	srv := httptest.NewServer(fb.handler(t))
	t.Cleanup(srv.Close)
	addr := strings.TrimPrefix(srv.URL, "http://")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	tab, err := NewTab(ctx, addr)
	if err != nil {
		t.Fatalf("NewTab: %v", err)
	}
	conn, err := Dial(ctx, tab.WebSocketDebuggerURL)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn, fb, addr
}

func TestEvaluate(t *testing.T) {
	conn, _, _ := openTestConn(t)
	ctx := context.Background()

	var ok bool
	if err := conn.Evaluate(ctx, "1 === 1", &ok); err != nil || !ok {
		t.Fatalf("Evaluate = %v, %v", ok, err)
	}
	err := conn.Evaluate(ctx, "boom()", nil)
	if !errors.Is(err, ErrJS) || !strings.Contains(err.Error(), "ReferenceError") {
		t.Fatalf("err = %v", err)
	}
}

func TestCallProtocolError(t *testing.T) {
	conn, _, _ := openTestConn(t)
	err := conn.Call(context.Background(), "Broken.method", nil, nil)
	var cerr *Error
	if !errors.As(err, &cerr) || cerr.Code != -32601 || cerr.Method != "Broken.method" {
		t.Fatalf("err = %v", err)
	}
}

func TestPollTimesOut(t *testing.T) {
	conn, _, _ := openTestConn(t)
	err := conn.Poll(context.Background(), 30*time.Millisecond, 10*time.Millisecond, "false")
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("err = %v", err)
	}
}

func TestInputHelpers(t *testing.T) {
	conn, fb, addr := openTestConn(t)
	ctx := context.Background()

	if err := conn.SelectAll(ctx); err != nil {
		t.Fatalf("SelectAll: %v", err)
	}
	if err := conn.PressKey(ctx, KeyBackspace); err != nil {
		t.Fatalf("PressKey: %v", err)
	}
	if err := conn.InsertText(ctx, "hello"); err != nil {
		t.Fatalf("InsertText: %v", err)
	}
	if err := conn.SetFileInputFiles(ctx, "input[type=file]", []string{"/tmp/a.jpg"}); err != nil {
		t.Fatalf("SetFileInputFiles: %v", err)
	}
	if err := conn.SetFileInputFiles(ctx, "#missing", []string{"/tmp/a.jpg"}); err == nil {
		t.Fatalf("expected error for missing element")
	}
	if err := CloseTab(ctx, addr, "T1"); err != nil {
		t.Fatalf("CloseTab: %v", err)
	}

	want := []string{
		"Input.dispatchKeyEvent", "Input.dispatchKeyEvent",
		"Input.dispatchKeyEvent", "Input.dispatchKeyEvent",
		"Input.insertText",
		"DOM.getDocument", "DOM.querySelector", "DOM.setFileInputFiles",
		"DOM.getDocument", "DOM.querySelector",
	}
	got := fb.seen()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("methods = %v\nwant %v", got, want)
	}
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if len(fb.closed) != 1 || fb.closed[0] != "T1" {
		t.Fatalf("closed = %v", fb.closed)
	}
}

func TestCallAfterClose(t *testing.T) {
	conn, _, _ := openTestConn(t)
	_ = conn.Close()
	if err := conn.Call(context.Background(), "Page.enable", nil, nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
}
