package remote

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/neogan74/tracelog/internal/event"
	"github.com/neogan74/tracelog/internal/logger"
	"github.com/neogan74/tracelog/internal/metrics"
)

const (
	DefaultInsertTimeout   = 10 * time.Second
	DefaultBreakerFailures = 5
	DefaultBreakerCooldown = 30 * time.Second
)

// SinkConfig tunes delivery to a Store.
type SinkConfig struct {
	InsertTimeout   time.Duration
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// Sink turns event batches into rows and hands them to a Store. Every
// insert gets its own deadline; consecutive failures trip a breaker so a
// dead store is not hammered by every batch.
//
// The logger must write to the process diagnostic output, never back into
// the pipeline, or a failing store would feed itself.
type Sink struct {
	store   Store
	log     logger.Logger
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker[struct{}]

	delivered atomic.Int64
	failures  atomic.Int64
}

// NewSink wraps store.
func NewSink(store Store, cfg SinkConfig, log logger.Logger) *Sink {
	if cfg.InsertTimeout <= 0 {
		cfg.InsertTimeout = DefaultInsertTimeout
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = DefaultBreakerFailures
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = DefaultBreakerCooldown
	}

	const name = "remote-store"
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	s := &Sink{
		store:   store,
		log:     log,
		timeout: cfg.InsertTimeout,
	}
	s.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Remote store circuit breaker state changed",
				logger.String("from", from.String()),
				logger.String("to", to.String()))
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})
	return s
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// Deliver inserts events into the table of stream as one batch. The error
// is informational; the caller has nothing to retry.
func (s *Sink) Deliver(ctx context.Context, stream event.Stream, events []*event.Envelope) error {
	if len(events) == 0 {
		return nil
	}
	table := stream.Table()
	rows := make([]Row, 0, len(events))
	for _, e := range events {
		rows = append(rows, RowFromEnvelope(table, e))
	}

	start := time.Now()
	_, err := s.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, s.insert(ctx, table, rows)
	})
	metrics.RemoteInsertDuration.WithLabelValues(table).Observe(time.Since(start).Seconds())

	if err != nil {
		reason := "error"
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			reason = "breaker_open"
			err = errors.Join(ErrBreakerOpen, err)
		case errors.Is(err, ErrInsertTimeout):
			reason = "timeout"
		}
		s.failures.Add(1)
		metrics.RemoteFailuresTotal.WithLabelValues(table, reason).Inc()
		metrics.RemoteRowsTotal.WithLabelValues(table, "failed").Add(float64(len(rows)))
		s.log.Warn("Remote log insert failed",
			logger.String("table", table),
			logger.Int("rows", len(rows)),
			logger.String("reason", reason),
			logger.Error(err))
		return err
	}

	s.delivered.Add(int64(len(rows)))
	metrics.RemoteRowsTotal.WithLabelValues(table, "ok").Add(float64(len(rows)))
	return nil
}

// insert bounds the store call by the configured deadline even when the
// store ignores its context.
func (s *Sink) insert(ctx context.Context, table string, rows []Row) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.store.Insert(ctx, table, rows) }()

	select {
	case err := <-done:
		if err != nil && errors.Is(err, context.DeadlineExceeded) {
			return errors.Join(ErrInsertTimeout, err)
		}
		return err
	case <-ctx.Done():
		return ErrInsertTimeout
	}
}

// Delivered is the number of rows successfully inserted.
func (s *Sink) Delivered() int64 { return s.delivered.Load() }

// Failures is the number of failed batch inserts.
func (s *Sink) Failures() int64 { return s.failures.Load() }

// BreakerState reports the circuit breaker state.
func (s *Sink) BreakerState() string { return s.breaker.State().String() }

// Store returns the wrapped store.
func (s *Sink) Store() Store { return s.store }

func (s *Sink) Close() error { return s.store.Close() }
