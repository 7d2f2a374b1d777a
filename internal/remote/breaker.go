package remote

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerConfig tunes when the breaker opens and how long it stays open.
type BreakerConfig struct {
	Name                string
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
	Logger              *zap.Logger
}

// Breaker guards a Service with a circuit breaker. Only outage-shaped failures
// (transport errors, 5xx, timeouts) count against it; policy and validation
// rejections prove the store is up and pass through untouched.
type Breaker struct {
	next    Service
	breaker *gobreaker.CircuitBreaker
}

func NewBreaker(next Service, cfg BreakerConfig) *Breaker {
	failures := cfg.ConsecutiveFailures
	if failures == 0 {
		failures = 5
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	name := cfg.Name
	if name == "" {
		name = "remote"
	}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !isOutage(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("remote circuit state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}
	return &Breaker{next: next, breaker: gobreaker.NewCircuitBreaker(settings)}
}

func (b *Breaker) Insert(ctx context.Context, table string, row Row) (Row, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		return b.next.Insert(ctx, table, row)
	})
	if err != nil {
		return Row{}, b.wrap(err)
	}
	return result.(Row), nil
}

func (b *Breaker) Select(ctx context.Context, table string, query Query) ([]Row, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		return b.next.Select(ctx, table, query)
	})
	if err != nil {
		return nil, b.wrap(err)
	}
	return result.([]Row), nil
}

func (b *Breaker) Count(ctx context.Context, table string, filters []Filter) (int64, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		return b.next.Count(ctx, table, filters)
	})
	if err != nil {
		return 0, b.wrap(err)
	}
	return result.(int64), nil
}

// Ping bypasses the breaker so connectivity probes can observe recovery.
func (b *Breaker) Ping(ctx context.Context) error {
	return b.next.Ping(ctx)
}

// State reports the breaker state name (closed, half-open, open).
func (b *Breaker) State() string {
	return b.breaker.State().String()
}

func (b *Breaker) wrap(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &Error{Code: "circuit_open", Message: "remote store temporarily unavailable", Err: err}
	}
	return err
}

func isOutage(err error) bool {
	var remoteErr *Error
	if !errors.As(err, &remoteErr) {
		return true
	}
	if remoteErr.Status >= http.StatusInternalServerError {
		return true
	}
	if strings.HasPrefix(remoteErr.Code, "08") || strings.HasPrefix(remoteErr.Code, "57P") {
		return true
	}
	return remoteErr.Status == 0 && remoteErr.Code == ""
}
