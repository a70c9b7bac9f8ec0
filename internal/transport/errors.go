package transport

import (
	"errors"
	"fmt"
)

// Kind classifies a failed exchange with a collaborator.
type Kind string

const (
	KindNetwork Kind = "network" // request never produced a response
	KindStatus  Kind = "status"  // response outside 2xx
	KindDecode  Kind = "decode"  // body unreadable or missing required fields
)

// Error wraps a failed exchange. The wrapped cause is for logs only;
// Message is safe to show an operator.
type Error struct {
	Kind       Kind
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindStatus:
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// UserMessage returns the operator-facing description of the failure.
func (e *Error) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	switch e.Kind {
	case KindNetwork:
		return "Could not reach the service"
	case KindStatus:
		return fmt.Sprintf("Service responded with status %d", e.StatusCode)
	case KindDecode:
		return "Service returned an unreadable response"
	}
	return ""
}

// Describe returns the user-safe description carried by err, or fallback
// when err carries none.
func Describe(err error, fallback string) string {
	var te *Error
	if errors.As(err, &te) {
		if msg := te.UserMessage(); msg != "" {
			return msg
		}
	}
	return fallback
}

// IsKind reports whether err is a transport error of the given kind.
func IsKind(err error, kind Kind) bool {
	var te *Error
	return errors.As(err, &te) && te.Kind == kind
}
