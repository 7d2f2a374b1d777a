// Package remotetest provides an in-memory remote.Service with scriptable failures.
package remotetest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/satisfaction/internal/remote"
)

// Failures commonly injected by tests.
var (
	ErrPermissionDenied = &remote.Error{Status: http.StatusForbidden, Code: "42501", Message: "new row violates row-level security policy"}
	ErrUnauthorized     = &remote.Error{Status: http.StatusUnauthorized, Code: "PGRST301", Message: "JWT expired"}
	ErrUnavailable      = &remote.Error{Status: http.StatusServiceUnavailable, Message: "Service Unavailable"}
	ErrNetwork          = &remote.Error{Message: "request failed", Err: errors.New("dial tcp: connection refused")}
)

// InsertHook decides the outcome of the n-th insert call (1-based). Returning nil lets
// the insert proceed.
type InsertHook func(call int, row remote.Row) error

// Fake is a concurrency-safe in-memory feedback table.
type Fake struct {
	mu          sync.Mutex
	rows        []remote.Row
	hook        InsertHook
	queued      []error
	pingErr     error
	queryErr    error
	insertCalls int
	selectCalls int
	countCalls  int
	nextRowID   int
}

func NewFake() *Fake {
	return &Fake{}
}

// FailNextInserts makes the next len(errs) inserts return the given errors in order.
// A nil entry lets that insert succeed.
func (f *Fake) FailNextInserts(errs ...error) {
	f.mu.Lock()
	f.queued = append(f.queued, errs...)
	f.mu.Unlock()
}

func (f *Fake) SetInsertHook(hook InsertHook) {
	f.mu.Lock()
	f.hook = hook
	f.mu.Unlock()
}

func (f *Fake) SetPingError(err error) {
	f.mu.Lock()
	f.pingErr = err
	f.mu.Unlock()
}

// SetQueryError makes every Select and Count fail with err.
func (f *Fake) SetQueryError(err error) {
	f.mu.Lock()
	f.queryErr = err
	f.mu.Unlock()
}

// Seed stores rows without counting them as insert calls.
func (f *Fake) Seed(rows ...remote.Row) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range rows {
		f.rows = append(f.rows, f.withRowID(row))
	}
}

func (f *Fake) Rows() []remote.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]remote.Row(nil), f.rows...)
}

func (f *Fake) InsertCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insertCalls
}

// QueryCalls returns the number of Select plus Count calls.
func (f *Fake) QueryCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.selectCalls + f.countCalls
}

func (f *Fake) Insert(_ context.Context, _ string, row remote.Row) (remote.Row, error) {
	f.mu.Lock()
	f.insertCalls++
	call := f.insertCalls
	hook := f.hook
	var scripted error
	hasScripted := len(f.queued) > 0
	if hasScripted {
		scripted = f.queued[0]
		f.queued = f.queued[1:]
	}
	f.mu.Unlock()

	if hasScripted && scripted != nil {
		return remote.Row{}, scripted
	}
	if !hasScripted && hook != nil {
		if err := hook(call, row); err != nil {
			return remote.Row{}, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.rows {
		if existing.ID == row.ID {
			return remote.Row{}, &remote.Error{
				Status:  http.StatusConflict,
				Code:    "23505",
				Message: fmt.Sprintf("duplicate key value violates unique constraint (id)=(%d)", row.ID),
			}
		}
	}
	stored := f.withRowID(row)
	f.rows = append(f.rows, stored)
	return stored, nil
}

func (f *Fake) Select(_ context.Context, _ string, query remote.Query) ([]remote.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selectCalls++
	if f.queryErr != nil {
		return nil, f.queryErr
	}

	matched := f.filter(query.Filters)
	for index := len(query.Order) - 1; index >= 0; index-- {
		order := query.Order[index]
		sort.SliceStable(matched, func(i, j int) bool {
			less := compare(column(matched[i], order.Column), column(matched[j], order.Column), order.Column) < 0
			if order.Descending {
				return compare(column(matched[j], order.Column), column(matched[i], order.Column), order.Column) < 0
			}
			return less
		})
	}
	if query.Offset > 0 {
		if query.Offset >= len(matched) {
			return []remote.Row{}, nil
		}
		matched = matched[query.Offset:]
	}
	if query.Limit > 0 && len(matched) > query.Limit {
		matched = matched[:query.Limit]
	}
	return matched, nil
}

func (f *Fake) Count(_ context.Context, _ string, filters []remote.Filter) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.countCalls++
	if f.queryErr != nil {
		return 0, f.queryErr
	}
	return int64(len(f.filter(filters))), nil
}

func (f *Fake) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pingErr
}

func (f *Fake) withRowID(row remote.Row) remote.Row {
	if row.RowID == "" {
		f.nextRowID++
		row.RowID = "row-" + strconv.Itoa(f.nextRowID)
	}
	return row
}

func (f *Fake) filter(filters []remote.Filter) []remote.Row {
	matched := make([]remote.Row, 0, len(f.rows))
	for _, row := range f.rows {
		keep := true
		for _, filter := range filters {
			result := compare(column(row, filter.Column), filter.Value, filter.Column)
			switch filter.Op {
			case remote.OpEq:
				keep = result == 0
			case remote.OpGte:
				keep = result >= 0
			case remote.OpLte:
				keep = result <= 0
			default:
				keep = false
			}
			if !keep {
				break
			}
		}
		if keep {
			matched = append(matched, row)
		}
	}
	return matched
}

func column(row remote.Row, name string) string {
	switch name {
	case "id":
		return strconv.FormatInt(row.ID, 10)
	case "row_id":
		return row.RowID
	case "grau_satisfacao":
		return row.Grade
	case "data":
		return row.Date
	case "hora":
		return row.Time
	case "dia_semana":
		return row.Weekday
	case "created_at":
		return row.CreatedAt
	case "client_timestamp":
		return row.ClientTimestamp
	default:
		return ""
	}
}

func compare(left, right, columnName string) int {
	switch columnName {
	case "created_at", "client_timestamp":
		leftTime, leftErr := time.Parse(time.RFC3339Nano, left)
		rightTime, rightErr := time.Parse(time.RFC3339Nano, right)
		if leftErr == nil && rightErr == nil {
			return leftTime.Compare(rightTime)
		}
	case "id":
		leftValue, leftErr := strconv.ParseInt(left, 10, 64)
		rightValue, rightErr := strconv.ParseInt(right, 10, 64)
		if leftErr == nil && rightErr == nil {
			switch {
			case leftValue < rightValue:
				return -1
			case leftValue > rightValue:
				return 1
			default:
				return 0
			}
		}
	}
	switch {
	case left < right:
		return -1
	case left > right:
		return 1
	default:
		return 0
	}
}
