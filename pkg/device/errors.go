package device

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a TrackingError.
type ErrorKind int

const (
	// SetupFailure means the event source could not be opened.
	SetupFailure ErrorKind = iota + 1
	// InvalidIdentity means a configured vendor/product id was malformed.
	InvalidIdentity
	// SourceLost means the event source terminated mid-stream.
	SourceLost
	// ChannelClosed means an internal delivery channel was dropped.
	ChannelClosed
)

func (k ErrorKind) String() string {
	switch k {
	case SetupFailure:
		return "setup failure"
	case InvalidIdentity:
		return "invalid identity"
	case SourceLost:
		return "source lost"
	case ChannelClosed:
		return "channel closed"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// TrackingError is the error type produced by the device pipeline.
type TrackingError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *TrackingError) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TrackingError) Unwrap() error {
	return e.Err
}

// Is matches any TrackingError of the same kind, so the sentinels below work
// with errors.Is regardless of Op and Err.
func (e *TrackingError) Is(target error) bool {
	t, ok := target.(*TrackingError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrSetupFailure    = &TrackingError{Kind: SetupFailure}
	ErrInvalidIdentity = &TrackingError{Kind: InvalidIdentity}
	ErrSourceLost      = &TrackingError{Kind: SourceLost}
	ErrChannelClosed   = &TrackingError{Kind: ChannelClosed}
)

func newError(kind ErrorKind, op string, err error) *TrackingError {
	return &TrackingError{Kind: kind, Op: op, Err: err}
}

// IsTerminal reports whether err ends a notification stream. Anything else
// is per-event noise.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrSourceLost) || errors.Is(err, ErrChannelClosed)
}
