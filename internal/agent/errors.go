package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrProviderTimeout means the call did not finish within its deadline.
	ErrProviderTimeout = errors.New("provider timeout")
	// ErrProviderError means the provider answered with a failure or an unusable payload.
	ErrProviderError = errors.New("provider error")
)

// IsTimeout reports whether err is, or wraps, a provider timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrProviderTimeout)
}

func transportError(provider string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%s: %w: %w", provider, ErrProviderTimeout, err)
	}
	return fmt.Errorf("%s: %w: %w", provider, ErrProviderError, err)
}

func apiError(provider, status string, body []byte) error {
	return fmt.Errorf("%s: %w: %s - %s", provider, ErrProviderError, status, string(body))
}
