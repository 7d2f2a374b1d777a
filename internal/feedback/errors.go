package feedback

import (
	"errors"
	"fmt"
)

var (
	// ErrSubmissionInFlight is returned when a tap arrives while another is still being sent.
	ErrSubmissionInFlight = errors.New("feedback: submission already in flight")

	errMissingRemote = errors.New("remote inserter is required")
	errMissingStore  = errors.New("local store is required")
	errMissingTable  = errors.New("table name is required")
)

const (
	opServiceNew = "feedback.service.new"
	opSubmit     = "feedback.submit"
	opFlush      = "feedback.flush"
)

type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}
