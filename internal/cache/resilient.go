package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// ErrUnavailable is returned while the circuit breaker is open.
var ErrUnavailable = errors.New("report cache unavailable (circuit breaker open)")

// ResilientCache guards a remote cache with a circuit breaker so that a failing Redis
// does not add latency to every validation.
type ResilientCache struct {
	next    ReportCache
	breaker *gobreaker.CircuitBreaker
}

// NewResilientCache wraps next. timeout is how long the breaker stays open.
func NewResilientCache(next ReportCache, timeout time.Duration, logger *logrus.Logger) *ResilientCache {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "report-cache",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker changed state")
		},
	})
	return &ResilientCache{next: next, breaker: breaker}
}

type lookup struct {
	entry *Entry
	found bool
}

// Get reads through the breaker.
func (r *ResilientCache) Get(ctx context.Context, key string) (*Entry, bool, error) {
	result, err := r.breaker.Execute(func() (interface{}, error) {
		entry, found, err := r.next.Get(ctx, key)
		return lookup{entry: entry, found: found}, err
	})
	if err != nil {
		return nil, false, r.wrap(err)
	}
	l := result.(lookup)
	return l.entry, l.found, nil
}

// Set writes through the breaker.
func (r *ResilientCache) Set(ctx context.Context, key string, entry *Entry) error {
	_, err := r.breaker.Execute(func() (interface{}, error) {
		return nil, r.next.Set(ctx, key, entry)
	})
	return r.wrap(err)
}

// Delete removes through the breaker.
func (r *ResilientCache) Delete(ctx context.Context, key string) error {
	_, err := r.breaker.Execute(func() (interface{}, error) {
		return nil, r.next.Delete(ctx, key)
	})
	return r.wrap(err)
}

// State returns the breaker state.
func (r *ResilientCache) State() gobreaker.State {
	return r.breaker.State()
}

// Counts returns the breaker counters for the current interval.
func (r *ResilientCache) Counts() gobreaker.Counts {
	return r.breaker.Counts()
}

// Close closes the wrapped cache.
func (r *ResilientCache) Close() error {
	return r.next.Close()
}

func (r *ResilientCache) wrap(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrUnavailable
	}
	return fmt.Errorf("report cache: %w", err)
}
