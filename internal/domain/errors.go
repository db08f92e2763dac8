package domain

import "errors"

// ErrorKind classifies failures by what the caller can do about them.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindTransport
	KindAuth
	KindParse
	KindPersistence
	KindDelivery
	KindConfig
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindAuth:
		return "auth"
	case KindParse:
		return "parse"
	case KindPersistence:
		return "persistence"
	case KindDelivery:
		return "delivery"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// Error carries the kind of failure and the operation that produced it.
type Error struct {
	Kind ErrorKind
	Op   string // Operation that failed (e.g., "connect", "scan", "post")
	Err  error
}

func (e *Error) Error() string {
	return e.Kind.String() + " " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetriable reports whether the operation may succeed if attempted again.
// Auth failures are retried the same way transport failures are; the loop
// decides separately whether to give up on repeated auth errors.
func (e *Error) IsRetriable() bool {
	switch e.Kind {
	case KindTransport, KindAuth, KindPersistence:
		return true
	default:
		return false
	}
}

// NewError wraps err with a kind and operation name.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain. A
// *ConfigError anywhere in the chain is KindConfig.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var ce *ConfigError
	if errors.As(err, &ce) {
		return KindConfig
	}
	return KindUnknown
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

var (
	// ErrReceiveTimeout is returned by a stream receive that saw no message in time. Not fatal.
	ErrReceiveTimeout = errors.New("receive timeout")

	// ErrConnectionLost is returned when the stream transport dropped. Triggers reconnect.
	ErrConnectionLost = errors.New("connection lost")

	// ErrNotConnected is returned when an operation needs an open stream.
	ErrNotConnected = errors.New("not connected")

	// ErrSubscriptionNotFound is returned when no subscription exists for an order.
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrMissingCredentials is returned when API or chat credentials are absent.
	ErrMissingCredentials = errors.New("missing credentials")

	// ErrChannelNotAllowed is returned when a channel may not register orders.
	ErrChannelNotAllowed = errors.New("channel not allowed")
)
