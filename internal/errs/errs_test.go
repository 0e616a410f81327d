package errs_test

import (
	"errors"
	"testing"

	"github.com/dzakiart/derivengine/internal/errs"
)

func TestTransportErrorRetryable(t *testing.T) {
	err := &errs.TransportError{Op: "dial", Err: errors.New("connection refused")}
	if !err.Retryable() {
		t.Error("TransportError should always be retryable")
	}
	if !errs.Retryable(err) {
		t.Error("Retryable(err) should defer to the typed Retryable() method")
	}
	if errors.Unwrap(err) == nil {
		t.Error("TransportError should unwrap to its underlying error")
	}
}

func TestAuthErrorInvalidTokenIsNotRetryable(t *testing.T) {
	err := &errs.AuthError{InvalidToken: true, Err: errors.New("rejected")}
	if err.Retryable() {
		t.Error("an invalid-token AuthError should not be retryable")
	}

	recoverable := &errs.AuthError{InvalidToken: false, Err: errors.New("timeout")}
	if !recoverable.Retryable() {
		t.Error("a non-invalid-token AuthError should be retryable")
	}
}

func TestExchangeErrorRetryableOnlyWhenRateLimited(t *testing.T) {
	rateLimited := &errs.ExchangeError{Code: "RateLimit", RateLimit: true}
	if !rateLimited.Retryable() {
		t.Error("rate-limited ExchangeError should be retryable")
	}

	rejected := &errs.ExchangeError{Code: "InvalidParam"}
	if rejected.Retryable() {
		t.Error("a non-rate-limit ExchangeError should not be retryable")
	}
}

func TestRetryableDefaultsTrueForUnclassifiedErrors(t *testing.T) {
	if !errs.Retryable(errors.New("plain error")) {
		t.Error("an unclassified error should default to retryable")
	}
	if errs.Retryable(nil) {
		t.Error("a nil error should not be retryable")
	}
}

func TestConfigErrorUnwraps(t *testing.T) {
	underlying := errors.New("below minimum")
	err := &errs.ConfigError{Field: "stake", Err: underlying}
	if !errors.Is(err, underlying) {
		t.Error("ConfigError should unwrap to its underlying error via errors.Is")
	}
}

func TestIntegrityErrorMessage(t *testing.T) {
	err := &errs.IntegrityError{Artifact: "session.json", Err: errors.New("bad json")}
	if err.Error() == "" {
		t.Error("IntegrityError should produce a non-empty message")
	}
}
