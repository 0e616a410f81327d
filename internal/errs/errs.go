// Package errs defines the engine's typed error-kind hierarchy. Components
// classify failures by type (via errors.As), never by matching message
// strings.
package errs

import (
	"errors"
	"fmt"
)

// TransportError wraps a failure in the exchange connection: lost
// connection, timeout, or send failure. Retried with backoff by the
// transport; only surfaced once retry caps are exceeded.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport: %s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }
func (e *TransportError) Retryable() bool { return true }

// AuthError wraps a failure authorizing with the exchange. InvalidToken is
// fatal for that account; other forms are retried up to 3 times.
type AuthError struct {
	InvalidToken bool
	Err          error
}

func (e *AuthError) Error() string {
	if e.InvalidToken {
		return fmt.Sprintf("auth: invalid token: %v", e.Err)
	}
	return fmt.Sprintf("auth: %v", e.Err)
}
func (e *AuthError) Unwrap() error   { return e.Err }
func (e *AuthError) Retryable() bool { return !e.InvalidToken }

// ExchangeError wraps an error response from the exchange: parameter
// validation, insufficient balance, or rate limiting.
type ExchangeError struct {
	Code      string
	Message   string
	RateLimit bool
	RetryIn   int // seconds, when RateLimit is true and the exchange advised one
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("exchange: %s: %s", e.Code, e.Message)
}
func (e *ExchangeError) Retryable() bool { return e.RateLimit }

// ConfigError wraps an invalid configuration: bad symbol/duration pairing,
// stake below minimum. Rejected synchronously at configure time.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string { return fmt.Sprintf("config: %s: %v", e.Field, e.Err) }
func (e *ConfigError) Unwrap() error { return e.Err }

// RiskAbort wraps a clean session stop triggered by a risk rule: balance
// too low, consecutive losses reached, daily cap reached, martingale level
// exceeded.
type RiskAbort struct {
	Reason string
}

func (e *RiskAbort) Error() string { return fmt.Sprintf("risk abort: %s", e.Reason) }

// IntegrityError wraps a corrupt durable artifact: a malformed recovery
// record or a CSV journal with a missing header. The caller deletes or
// repairs the artifact and falls back to fresh state.
type IntegrityError struct {
	Artifact string
	Err      error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity: %s: %v", e.Artifact, e.Err)
}
func (e *IntegrityError) Unwrap() error { return e.Err }

// InternalTimeout wraps a stuck internal operation: signal processing
// exceeding its bound, or a buy awaiting response past its deadline. The
// offending state is reset and logged as a failure for the circuit
// breaker.
type InternalTimeout struct {
	Op      string
	Elapsed string
}

func (e *InternalTimeout) Error() string {
	return fmt.Sprintf("internal timeout: %s exceeded (%s)", e.Op, e.Elapsed)
}

// Retryable reports whether err should be retried, honoring any type that
// exposes a Retryable() bool method; unclassified errors default to true.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return true
}
