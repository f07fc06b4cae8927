package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/cuppalabs/cuppa/internal/embedding"
)

// errAuth is a non-retryable authentication error.
var errAuth = errors.New("openai: authentication failed")

// apiError is the error envelope the OpenAI API returns.
type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// mapHTTPError maps an HTTP status code and response body to a sentinel
// error. Returns nil for 2xx status codes. Rate limits and server errors
// wrap embedding.ErrProviderUnavailable so callers know they may retry.
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
	case statusCode == 429 || statusCode >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", embedding.ErrProviderUnavailable, statusCode, msg)
	case statusCode == 401 || statusCode == 403:
		return fmt.Errorf("%w: %s", errAuth, msg)
	default:
		return fmt.Errorf("openai: HTTP %d: %s", statusCode, msg)
	}
}

// mapConnectionError maps network-level errors to the provider-unavailable
// sentinel. Context errors pass through unchanged.
func mapConnectionError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", embedding.ErrProviderUnavailable, err)
	}
	return fmt.Errorf("openai: %w", err)
}
