package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestError(t *testing.T) {
	baseErr := errors.New("connection refused")

	t.Run("transport error", func(t *testing.T) {
		err := NewError(KindTransport, "connect", baseErr)

		if !err.IsRetriable() {
			t.Error("Expected transport error to be retriable")
		}

		if err.Error() != "transport connect: connection refused" {
			t.Errorf("Error message = %q, want %q", err.Error(), "transport connect: connection refused")
		}

		if !errors.Is(err, baseErr) {
			t.Error("Expected error to wrap baseErr")
		}
	})

	t.Run("parse error", func(t *testing.T) {
		err := NewError(KindParse, "decode", baseErr)

		if err.IsRetriable() {
			t.Error("Expected parse error to not be retriable")
		}
	})

	t.Run("KindOf through wrapping", func(t *testing.T) {
		err := fmt.Errorf("loop: %w", NewError(KindAuth, "handshake", baseErr))

		if KindOf(err) != KindAuth {
			t.Errorf("KindOf = %v, want auth", KindOf(err))
		}
		if KindOf(baseErr) != KindUnknown {
			t.Errorf("KindOf(plain) = %v, want unknown", KindOf(baseErr))
		}
	})

	t.Run("IsRetriable helper", func(t *testing.T) {
		retriable := NewError(KindPersistence, "scan", baseErr)
		fatal := NewError(KindDelivery, "post", baseErr)
		plain := errors.New("plain error")

		if !IsRetriable(retriable) {
			t.Error("IsRetriable should return true for persistence error")
		}

		if IsRetriable(fatal) {
			t.Error("IsRetriable should return false for delivery error")
		}

		if IsRetriable(plain) {
			t.Error("IsRetriable should return false for plain error")
		}
	})
}

func TestConfigError(t *testing.T) {
	baseErr := ErrMissingCredentials
	err := &ConfigError{Field: "api_key", Err: baseErr}

	if err.IsRetriable() {
		t.Error("ConfigError should never be retriable")
	}

	expected := "config error [api_key]: missing credentials"
	if err.Error() != expected {
		t.Errorf("Error message = %q, want %q", err.Error(), expected)
	}
	if !errors.Is(err, ErrMissingCredentials) {
		t.Error("Expected ConfigError to wrap ErrMissingCredentials")
	}
	if got := KindOf(fmt.Errorf("load: %w", err)); got != KindConfig {
		t.Errorf("KindOf = %v, want %v", got, KindConfig)
	}
}
