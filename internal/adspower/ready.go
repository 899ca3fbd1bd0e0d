package adspower

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

const (
	DefaultReadyTimeout  = 20 * time.Second
	DefaultReadyInterval = 500 * time.Millisecond

	probeTimeout = 3 * time.Second
)

// WaitReady polls http://host:port/json/version until it answers 2xx,
// the timeout passes or ctx ends. The interval is clamped to one second.
func WaitReady(ctx context.Context, host, port string, timeout, interval time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}
	if interval <= 0 {
		interval = DefaultReadyInterval
	}
	interval = min(interval, time.Second)

	endpoint := "http://" + net.JoinHostPort(host, port) + "/json/version"
	client := &http.Client{Timeout: probeTimeout}
	deadline := time.Now().Add(timeout)

	var lastErr error
	for {
		err := probe(ctx, client, endpoint)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Now().Add(interval).After(deadline) {
			return fmt.Errorf("%w: %s:%s after %s: %v", ErrNotReady, host, port, timeout, lastErr)
		}
		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

func probe(ctx context.Context, client *http.Client, endpoint string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}
