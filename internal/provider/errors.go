package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

// MaxErrorBody caps how much of an upstream error body is retained.
const MaxErrorBody = 64 * 1024

var (
	// ErrCredentialMissing indicates no API key could be resolved for the provider.
	ErrCredentialMissing = errors.New("provider credential missing")
	// ErrTimeout indicates the upstream call exceeded its deadline.
	ErrTimeout = errors.New("provider request timed out")
	// ErrResponseFormat indicates the upstream body could not be interpreted.
	ErrResponseFormat = errors.New("provider response format invalid")
)

// UpstreamError reports a non-2xx answer from a provider.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error status %d: %s", e.Status, e.Body)
}

// WrapTransportError classifies an error returned by http.Client.Do or a body read.
// Deadline expiry maps to ErrTimeout; cancellation by the caller is returned as is.
// Query strings are dropped from request URLs so credentials passed as query
// parameters never reach messages or logs.
func WrapTransportError(ctx context.Context, name string, err error) error {
	if err == nil {
		return nil
	}
	err = redactURL(err)
	switch ctx.Err() {
	case context.Canceled:
		return fmt.Errorf("%s request: %w", name, ctx.Err())
	case context.DeadlineExceeded:
		return fmt.Errorf("%s request: %w", name, ErrTimeout)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s request: %w", name, ErrTimeout)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%s request: %w", name, ErrTimeout)
	}
	return fmt.Errorf("%s request failed: %w", name, err)
}

func redactURL(err error) error {
	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		return err
	}
	u, parseErr := url.Parse(urlErr.URL)
	if parseErr != nil {
		urlErr.URL = "<redacted>"
		return err
	}
	if u.RawQuery != "" {
		u.RawQuery = ""
		u.ForceQuery = false
		urlErr.URL = u.String()
	}
	return err
}
