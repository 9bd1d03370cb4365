package research

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Sentinel errors for research backend failures. Every transport failure
// matches ErrTransport plus exactly one of the more specific sentinels.
var (
	ErrTransport          = errors.New("research backend transport error")
	ErrBackendUnreachable = errors.New("research backend unreachable")
	ErrBackendTimeout     = errors.New("research backend timeout")
	ErrBackendStatus      = errors.New("research backend returned non-success status")
	ErrMalformedResponse  = errors.New("malformed research backend response")
)

// TransportError describes a failed call to the research backend: a network
// failure, a non-2xx response, or an undecodable body.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error // one of the sentinels above
	Cause      error
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("research %s: %v", e.Op, e.Err)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *TransportError) Unwrap() []error {
	errs := []error{ErrTransport}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// IsNotFound reports whether the backend answered 404 for the request.
func IsNotFound(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.StatusCode == http.StatusNotFound
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &TransportError{Op: op, Err: ErrBackendTimeout, Cause: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TransportError{Op: op, Err: ErrBackendTimeout, Cause: err}
	}

	return &TransportError{Op: op, Err: ErrBackendUnreachable, Cause: err}
}
