// Package remote talks to the hosted store that owns the canonical feedback rows.
package remote

import (
	"context"
	"fmt"
	"strconv"
)

// Row is the feedback table shape shared by every backend.
type Row struct {
	ID              int64  `json:"id"`
	RowID           string `json:"row_id,omitempty"`
	Grade           string `json:"grau_satisfacao"`
	Date            string `json:"data"`
	Time            string `json:"hora"`
	Weekday         string `json:"dia_semana"`
	CreatedAt       string `json:"created_at"`
	ClientTimestamp string `json:"client_timestamp"`
}

// DocID returns the server-assigned row id when present, else the numeric id.
func (r Row) DocID() string {
	if r.RowID != "" {
		return r.RowID
	}
	return strconv.FormatInt(r.ID, 10)
}

// Operator is a comparison supported by Filter.
type Operator string

const (
	OpEq  Operator = "eq"
	OpGte Operator = "gte"
	OpLte Operator = "lte"
)

// Filter restricts a query to rows where Column Op Value.
type Filter struct {
	Column string
	Op     Operator
	Value  string
}

func Eq(column, value string) Filter  { return Filter{Column: column, Op: OpEq, Value: value} }
func Gte(column, value string) Filter { return Filter{Column: column, Op: OpGte, Value: value} }
func Lte(column, value string) Filter { return Filter{Column: column, Op: OpLte, Value: value} }

// Order sorts query results by Column.
type Order struct {
	Column     string
	Descending bool
}

// Query describes a read against a table. Zero Limit means no limit.
type Query struct {
	Columns []string
	Filters []Filter
	Order   []Order
	Limit   int
	Offset  int
}

// Inserter persists one row and returns the stored representation.
type Inserter interface {
	Insert(ctx context.Context, table string, row Row) (Row, error)
}

// Querier reads rows and counts.
type Querier interface {
	Select(ctx context.Context, table string, query Query) ([]Row, error)
	Count(ctx context.Context, table string, filters []Filter) (int64, error)
}

// Pinger reports whether the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Service is the full capability the kiosk and dashboard consume.
type Service interface {
	Inserter
	Querier
	Pinger
}

// Error is a failure reported by the remote store. Status is the HTTP status when the
// backend speaks HTTP; Code is the backend error code (a SQLSTATE for Postgres).
type Error struct {
	Status  int
	Code    string
	Message string
	Details string
	Hint    string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Status != 0 && e.Code != "":
		return fmt.Sprintf("remote: status %d code %s: %s", e.Status, e.Code, e.Message)
	case e.Status != 0:
		return fmt.Sprintf("remote: status %d: %s", e.Status, e.Message)
	case e.Code != "":
		return fmt.Sprintf("remote: code %s: %s", e.Code, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("remote: %v", e.Err)
	default:
		return "remote: " + e.Message
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode exposes the HTTP status carried by the failure.
func (e *Error) StatusCode() int {
	return e.Status
}

// ErrorCode exposes the backend error code carried by the failure.
func (e *Error) ErrorCode() string {
	return e.Code
}

var knownColumns = map[string]struct{}{
	"id":               {},
	"row_id":           {},
	"grau_satisfacao":  {},
	"data":             {},
	"hora":             {},
	"dia_semana":       {},
	"created_at":       {},
	"client_timestamp": {},
}

func validateColumn(column string) error {
	if _, ok := knownColumns[column]; !ok {
		return fmt.Errorf("remote: unknown column %q", column)
	}
	return nil
}
