package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Target is a DevTools page target as listed by /json.
type Target struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	URL                  string `json:"url"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

var httpClient = &http.Client{Timeout: 10 * time.Second}

// NewTab opens a blank tab on the browser listening at addr (host:port).
func NewTab(ctx context.Context, addr string) (Target, error) {
	var t Target
	if err := devtoolsHTTP(ctx, http.MethodPut, "http://"+addr+"/json/new?"+url.QueryEscape("about:blank"), &t); err != nil {
		return Target{}, err
	}
	if t.WebSocketDebuggerURL == "" {
		return Target{}, fmt.Errorf("cdp: new tab %s: no websocket url", t.ID)
	}
	return t, nil
}

// CloseTab closes the target with the given id.
func CloseTab(ctx context.Context, addr, id string) error {
	return devtoolsHTTP(ctx, http.MethodGet, "http://"+addr+"/json/close/"+url.PathEscape(id), nil)
}

func devtoolsHTTP(ctx context.Context, method, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return fmt.Errorf("cdp: create request: %w", err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("cdp: %s %s: %w", method, u, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("cdp: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("cdp: %s %s: HTTP %d: %s", method, u, resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("cdp: decode %s: %w", u, err)
	}
	return nil
}
