package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/zen-systems/mediagate/pkg/payload"
	"github.com/zen-systems/mediagate/pkg/poll"
	"github.com/zen-systems/mediagate/pkg/provider"
)

// ConfigurationError is returned at construction time for a missing
// credential or an unsupported (provider, model, capability) combination.
type ConfigurationError struct {
	Provider   provider.Provider
	Model      string
	Capability provider.Capability
	Reason     string
	Err        error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("%s: configuration error", e.Provider)
	if e.Model != "" {
		msg = fmt.Sprintf("%s/%s: configuration error", e.Provider, e.Model)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// UnsupportedProviderError is returned by the factory for an identifier that
// is not a provider, or a provider with no adapter for the capability.
type UnsupportedProviderError struct {
	Value      string
	Capability provider.Capability
	Supported  []provider.Provider
}

func (e *UnsupportedProviderError) Error() string {
	return fmt.Sprintf("unsupported provider %q for %s (supported: %s)",
		e.Value, e.Capability, strings.Join(provider.Strings(e.Supported), ", "))
}

// MalformedResponseError means the vendor response lacked an expected field
// or shape. Payload holds the offending response, truncated.
type MalformedResponseError struct {
	Provider provider.Provider
	Reason   string
	Payload  string
}

func (e *MalformedResponseError) Error() string {
	if e.Payload == "" {
		return fmt.Sprintf("%s: malformed response: %s", e.Provider, e.Reason)
	}
	return fmt.Sprintf("%s: malformed response: %s: %s", e.Provider, e.Reason, e.Payload)
}

// ContentRejectedError means the vendor's moderation refused the prompt or
// the output.
type ContentRejectedError struct {
	Provider provider.Provider
	Reason   string
}

func (e *ContentRejectedError) Error() string {
	return fmt.Sprintf("%s: content rejected by moderation: %s", e.Provider, e.Reason)
}

// GenerationFailedError means the vendor reported a terminal job failure.
type GenerationFailedError struct {
	Provider provider.Provider
	JobID    string
	Reason   string
}

func (e *GenerationFailedError) Error() string {
	if e.JobID == "" {
		return fmt.Sprintf("%s: generation failed: %s", e.Provider, e.Reason)
	}
	return fmt.Sprintf("%s: generation %s failed: %s", e.Provider, e.JobID, e.Reason)
}

// TimeoutError means a job did not reach a terminal state within the poll
// attempt ceiling.
type TimeoutError struct {
	Provider provider.Provider
	JobID    string
	Attempts int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: generation %s did not finish after %d status checks", e.Provider, e.JobID, e.Attempts)
}

// APIError wraps a transport-level failure: a non-2xx response from an
// ordinary vendor call, or an SDK error carrying a status.
type APIError struct {
	Provider  provider.Provider
	Status    int
	Body      string
	Temporary bool
	Err       error
}

func (e *APIError) Error() string {
	if e == nil {
		return "api error"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Provider, e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("%s: API returned status %d: %s", e.Provider, e.Status, e.Body)
	}
	return fmt.Sprintf("%s: API returned status %d", e.Provider, e.Status)
}

func (e *APIError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsTransient reports whether an error is safe to retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Temporary {
			return true
		}
		if apiErr.Status == http.StatusTooManyRequests || (apiErr.Status >= 500 && apiErr.Status <= 599) {
			return true
		}
	}
	return false
}

// translate maps payload and poll errors onto the adapter taxonomy. Errors
// already in the taxonomy pass through.
func (b *base) translate(err error) error {
	if err == nil {
		return nil
	}

	var malformed *payload.MalformedError
	if errors.As(err, &malformed) {
		return &MalformedResponseError{Provider: b.provider, Reason: malformed.Reason, Payload: malformed.Payload}
	}
	var fetch *payload.FetchError
	if errors.As(err, &fetch) {
		return &APIError{Provider: b.provider, Status: fetch.Status, Body: fetch.Body, Err: err}
	}
	var failed *poll.FailedError
	if errors.As(err, &failed) {
		return &GenerationFailedError{Provider: b.provider, JobID: failed.JobID, Reason: failed.Reason}
	}
	var timeout *poll.TimeoutError
	if errors.As(err, &timeout) {
		return &TimeoutError{Provider: b.provider, JobID: timeout.JobID, Attempts: timeout.Attempts}
	}
	return err
}

// malformed builds a MalformedResponseError from any response value.
func (b *base) malformed(reason string, v any) *MalformedResponseError {
	return &MalformedResponseError{Provider: b.provider, Reason: reason, Payload: payload.Describe(v)}
}
