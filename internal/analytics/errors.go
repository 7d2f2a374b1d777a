package analytics

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDate indicates a date parameter that is not YYYY-MM-DD.
	ErrInvalidDate = errors.New("analytics: invalid date")

	errMissingQuerier = errors.New("querier is required")
	errMissingTable   = errors.New("table name is required")
)

const (
	opServiceNew   = "analytics.service.new"
	opSummary      = "analytics.summary"
	opTotals       = "analytics.totals"
	opTotalsDay    = "analytics.totals_day"
	opTotalsRange  = "analytics.totals_range"
	opCompare      = "analytics.compare"
	opRecent       = "analytics.recent"
	opLast         = "analytics.last"
	opByID         = "analytics.by_id"
	opDates        = "analytics.dates"
	opTV           = "analytics.tv"
	reasonQuery    = "query_failed"
	reasonArgument = "invalid_argument"
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
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}
