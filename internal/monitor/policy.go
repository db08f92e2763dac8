package monitor

import (
	"log/slog"

	"order_monitor/internal/domain"
)

// Policy names what a call site does with an error it will not propagate.
type Policy int

const (
	// PolicyDropMessage discards the single inbound message.
	PolicyDropMessage Policy = iota
	// PolicyKeepStale keeps serving the previous monitored set.
	PolicyKeepStale
	// PolicySkipOperation abandons one per-order store read or write.
	PolicySkipOperation
	// PolicyCountAndDrop counts a failed delivery and forgets it.
	PolicyCountAndDrop
	// PolicyReconnect marks the stream down and retries after the backoff.
	PolicyReconnect
	// PolicyFailFast stops the loop.
	PolicyFailFast
)

func (p Policy) String() string {
	switch p {
	case PolicyDropMessage:
		return "drop_message"
	case PolicyKeepStale:
		return "keep_stale"
	case PolicySkipOperation:
		return "skip_operation"
	case PolicyCountAndDrop:
		return "count_and_drop"
	case PolicyReconnect:
		return "reconnect_after_backoff"
	case PolicyFailFast:
		return "fail_fast"
	default:
		return "unknown"
	}
}

// PolicyFor is the default handling for an error kind. Call sites with a
// more specific rule (monitored-set refresh, auth fail-fast) override it.
func PolicyFor(kind domain.ErrorKind) Policy {
	switch kind {
	case domain.KindParse:
		return PolicyDropMessage
	case domain.KindPersistence:
		return PolicySkipOperation
	case domain.KindDelivery:
		return PolicyCountAndDrop
	case domain.KindConfig:
		return PolicyFailFast
	default:
		return PolicyReconnect
	}
}

// Log records err under the policy's name.
func (p Policy) Log(logger *slog.Logger, msg string, err error, attrs ...any) {
	args := append([]any{slog.String("policy", p.String()), slog.Any("error", err)}, attrs...)
	switch p {
	case PolicyDropMessage, PolicySkipOperation, PolicyKeepStale:
		logger.Warn(msg, args...)
	default:
		logger.Error(msg, args...)
	}
}
