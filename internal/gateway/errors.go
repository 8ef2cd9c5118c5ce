// internal/gateway/errors.go
package gateway

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for retry decisions and reporting.
type Kind string

const (
	// KindInvalidConfig marks a malformed strategy or fusion parameter.
	// Detected before the run starts and fatal for the whole run.
	KindInvalidConfig Kind = "invalid_config"
	// KindGatewayTimeout marks a backend call that exceeded its deadline.
	KindGatewayTimeout Kind = "gateway_timeout"
	// KindGatewayUnavailable marks an unreachable backend or a non-success status.
	KindGatewayUnavailable Kind = "gateway_unavailable"
	// KindGatewayBadResponse marks a success status with an unparsable or
	// structurally invalid body. Never retried.
	KindGatewayBadResponse Kind = "gateway_bad_response"
	// KindEvaluationError marks a scorer failure for a single pair.
	KindEvaluationError Kind = "evaluation_error"
	// KindCancelled marks a pair that the run-level cancellation reached
	// before it completed.
	KindCancelled Kind = "cancelled"
)

// KindError carries a failure kind alongside a human-readable cause.
type KindError struct {
	Kind  Kind
	Cause string
	Err   error
}

func (e *KindError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Cause, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Cause)
}

func (e *KindError) Unwrap() error { return e.Err }

// Errorf builds a KindError with a formatted cause.
func Errorf(kind Kind, format string, args ...any) error {
	return &KindError{Kind: kind, Cause: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and cause to an underlying error.
func Wrap(kind Kind, err error, format string, args ...any) error {
	return &KindError{Kind: kind, Cause: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the failure kind from err. Unclassified errors map to
// KindGatewayUnavailable so the retry policy treats them as transient.
func KindOf(err error) Kind {
	var ke *KindError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return KindGatewayUnavailable
}

// CauseOf returns the human-readable cause string for err.
func CauseOf(err error) string {
	var ke *KindError
	if errors.As(err, &ke) {
		if ke.Err != nil {
			return fmt.Sprintf("%s: %v", ke.Cause, ke.Err)
		}
		return ke.Cause
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// Retryable reports whether the retry policy may re-attempt a call that
// failed with err. Only transient backend failures qualify.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindGatewayTimeout, KindGatewayUnavailable:
		return true
	default:
		return false
	}
}
