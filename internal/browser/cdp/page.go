package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrJS is returned when an evaluated expression throws.
var ErrJS = errors.New("cdp: javascript exception")

type remoteObject struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value,omitempty"`
}

type evaluateResult struct {
	Result           remoteObject `json:"result"`
	ExceptionDetails *struct {
		Text      string `json:"text"`
		Exception *struct {
			Description string `json:"description"`
		} `json:"exception,omitempty"`
	} `json:"exceptionDetails,omitempty"`
}

// Evaluate runs expr in the page and decodes its JSON value into out (which may be nil).
// Promises are awaited.
func (c *Conn) Evaluate(ctx context.Context, expr string, out any) error {
	var res evaluateResult
	err := c.Call(ctx, "Runtime.evaluate", map[string]any{
		"expression":    expr,
		"returnByValue": true,
		"awaitPromise":  true,
	}, &res)
	if err != nil {
		return err
	}
	if d := res.ExceptionDetails; d != nil {
		msg := d.Text
		if d.Exception != nil && d.Exception.Description != "" {
			msg = d.Exception.Description
		}
		return fmt.Errorf("%w: %s", ErrJS, msg)
	}
	if out == nil || len(res.Result.Value) == 0 {
		return nil
	}
	return json.Unmarshal(res.Result.Value, out)
}

// Navigate loads url and waits until document.readyState is complete.
func (c *Conn) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	var nav struct {
		ErrorText string `json:"errorText"`
	}
	if err := c.Call(ctx, "Page.navigate", map[string]any{"url": url}, &nav); err != nil {
		return err
	}
	if nav.ErrorText != "" {
		return fmt.Errorf("cdp: navigate %s: %s", url, nav.ErrorText)
	}
	return c.Poll(ctx, timeout, 250*time.Millisecond, `document.readyState === "complete"`)
}

// Poll evaluates a boolean expression until it is true or timeout passes.
func (c *Conn) Poll(ctx context.Context, timeout, every time.Duration, expr string) error {
	deadline := time.Now().Add(timeout)
	for {
		var ok bool
		if err := c.Evaluate(ctx, expr, &ok); err != nil && !errors.Is(err, ErrJS) {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("cdp: timed out after %s waiting for %s", timeout, expr)
		}
		t := time.NewTimer(every)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// InsertText types text into the focused element as a single input event.
func (c *Conn) InsertText(ctx context.Context, text string) error {
	return c.Call(ctx, "Input.insertText", map[string]any{"text": text}, nil)
}

// Key is a non-printable key understood by PressKey.
type Key struct {
	Key  string
	Code string
	VK   int
}

var (
	KeyTab       = Key{Key: "Tab", Code: "Tab", VK: 9}
	KeyBackspace = Key{Key: "Backspace", Code: "Backspace", VK: 8}
	KeyEnter     = Key{Key: "Enter", Code: "Enter", VK: 13}
)

// PressKey dispatches a keyDown/keyUp pair.
func (c *Conn) PressKey(ctx context.Context, k Key) error {
	for _, typ := range []string{"rawKeyDown", "keyUp"} {
		if err := c.Call(ctx, "Input.dispatchKeyEvent", map[string]any{
			"type":                  typ,
			"key":                   k.Key,
			"code":                  k.Code,
			"windowsVirtualKeyCode": k.VK,
			"nativeVirtualKeyCode":  k.VK,
		}, nil); err != nil {
			return err
		}
	}
	return nil
}

// SelectAll selects the content of the focused editable element.
func (c *Conn) SelectAll(ctx context.Context) error {
	const ctrl = 2
	for _, typ := range []string{"rawKeyDown", "keyUp"} {
		if err := c.Call(ctx, "Input.dispatchKeyEvent", map[string]any{
			"type":                  typ,
			"key":                   "a",
			"code":                  "KeyA",
			"windowsVirtualKeyCode": 65,
			"modifiers":             ctrl,
			"commands":              []string{"selectAll"},
		}, nil); err != nil {
			return err
		}
	}
	return nil
}

// SetFileInputFiles assigns files to the first <input type=file> matching selector.
func (c *Conn) SetFileInputFiles(ctx context.Context, selector string, files []string) error {
	var doc struct {
		Root struct {
			NodeID int64 `json:"nodeId"`
		} `json:"root"`
	}
	if err := c.Call(ctx, "DOM.getDocument", map[string]any{"depth": 0}, &doc); err != nil {
		return err
	}
	var q struct {
		NodeID int64 `json:"nodeId"`
	}
	if err := c.Call(ctx, "DOM.querySelector", map[string]any{"nodeId": doc.Root.NodeID, "selector": selector}, &q); err != nil {
		return err
	}
	if q.NodeID == 0 {
		return fmt.Errorf("cdp: no element matches %q", selector)
	}
	return c.Call(ctx, "DOM.setFileInputFiles", map[string]any{"files": files, "nodeId": q.NodeID}, nil)
}
