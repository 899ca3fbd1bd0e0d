package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
)

var (
	ErrMissingKey    = errors.New("gemini: missing API key")
	ErrAuth          = errors.New("gemini: authentication failed")
	ErrRateLimit     = errors.New("gemini: rate limited")
	ErrUnavailable   = errors.New("gemini: service unavailable")
	ErrEmptyResponse = errors.New("gemini: empty response")
)

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// mapHTTPError returns nil for 2xx statuses.
func mapHTTPError(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	var msg string
	var apiErr apiError
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
		msg = apiErr.Error.Message
	} else {
		msg = string(body)
	}

	switch {
	case statusCode == 429:
		return fmt.Errorf("%w: %s", ErrRateLimit, msg)
	case statusCode == 401 || statusCode == 403:
		return fmt.Errorf("%w: %s", ErrAuth, msg)
	case statusCode >= 500:
		return fmt.Errorf("%w: %s", ErrUnavailable, msg)
	default:
		return fmt.Errorf("gemini: HTTP %d: %s", statusCode, msg)
	}
}

func mapConnectionError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return fmt.Errorf("gemini: %w", err)
}
