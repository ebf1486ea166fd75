package backend

import (
	"errors"
	"fmt"

	"github.com/fabfab/ragconsole/session"
)

// ResponseError reports a completed exchange in which the backend signalled
// failure. Message already carries the "unknown" fallback.
type ResponseError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s: backend returned %d: %s", e.Op, e.StatusCode, e.Message)
}

// TransportError reports an exchange that did not complete, or whose
// response body could not be interpreted.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Failure classifies an exchange error for the session: backend-reported
// errors keep the backend's message, anything else is a transport failure.
func Failure(err error) *session.Failure {
	if err == nil {
		return nil
	}
	var respErr *ResponseError
	if errors.As(err, &respErr) {
		return session.BackendFailure(respErr.Message)
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) && transportErr.Err != nil {
		return session.TransportFailure(transportErr.Err)
	}
	return session.TransportFailure(err)
}
