// Package adspower talks to the AdsPower local API: it starts and stops
// browser profiles and waits for their DevTools endpoint to come up.
package adspower

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "http://local.adspower.net:50325"

	maxResponseSize = 1 << 20
)

var (
	ErrAPI      = errors.New("adspower: api error")
	ErrNotReady = errors.New("adspower: devtools endpoint not ready")
)

// Profile is the launch information of a started browser profile.
type Profile struct {
	DebugPort   string `json:"debug_port"`
	WebDriver   string `json:"webdriver"`
	WSSelenium  string `json:"ws_selenium,omitempty"`
	WSPuppeteer string `json:"ws_puppeteer,omitempty"`
}

type Client struct {
	base string
	http *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type startData struct {
	DebugPort flexString `json:"debug_port"`
	WebDriver string     `json:"webdriver"`
	WS        struct {
		Selenium  string `json:"selenium"`
		Puppeteer string `json:"puppeteer"`
	} `json:"ws"`
}

// StartProfile launches (or reuses) the browser of userID.
func (c *Client) StartProfile(ctx context.Context, userID string) (Profile, error) {
	var data startData
	if err := c.get(ctx, "/api/v1/browser/start", userID, &data); err != nil {
		return Profile{}, err
	}
	p := Profile{
		DebugPort:   string(data.DebugPort),
		WebDriver:   data.WebDriver,
		WSSelenium:  data.WS.Selenium,
		WSPuppeteer: data.WS.Puppeteer,
	}
	if p.DebugPort == "" {
		return p, fmt.Errorf("%w: start %s: response has no debug_port", ErrAPI, userID)
	}
	return p, nil
}

// StopProfile closes the browser of userID.
func (c *Client) StopProfile(ctx context.Context, userID string) error {
	return c.get(ctx, "/api/v1/browser/stop", userID, nil)
}

func (c *Client) get(ctx context.Context, path, userID string, out any) error {
	u := c.base + path + "?" + url.Values{"user_id": {userID}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("adspower: create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("adspower: %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("adspower: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s: HTTP %d: %s", ErrAPI, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("adspower: decode response: %w", err)
	}
	if env.Code != 0 {
		return fmt.Errorf("%w: %s: code %d: %s", ErrAPI, path, env.Code, env.Msg)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("adspower: decode data: %w", err)
	}
	return nil
}

// flexString accepts both JSON strings and numbers.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	if string(b) == "null" {
		*f = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("debug_port: %w", err)
	}
	*f = flexString(n.String())
	return nil
}
