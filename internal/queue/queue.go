// Package queue buffers events per stream and hands them to the remote
// sink in batches. Enqueue never blocks; a full queue drops the event.
package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/neogan74/tracelog/internal/event"
	"github.com/neogan74/tracelog/internal/logger"
	"github.com/neogan74/tracelog/internal/metrics"
)

const (
	DefaultCapacity  = 10000
	DefaultBatchSize = 50
	DefaultInterval  = 5 * time.Second
	DefaultGrace     = 10 * time.Second
)

// ErrClosed is reported by Shutdown when called twice.
var ErrClosed = errors.New("log queue closed")

// Deliverer receives flushed batches. Failures are counted and reported by
// the deliverer; the queue moves on to the next batch.
type Deliverer interface {
	Deliver(ctx context.Context, stream event.Stream, events []*event.Envelope) error
}

// Config sizes a Queue.
type Config struct {
	Capacity  int
	BatchSize int
	Interval  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Capacity <= 0 {
		c.Capacity = DefaultCapacity
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	return c
}

// Queue is a bounded FIFO with a single worker for one stream.
type Queue struct {
	stream event.Stream
	cfg    Config
	sink   Deliverer
	log    logger.Logger

	events chan *event.Envelope
	stop   chan struct{}
	done   chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool

	mu     sync.RWMutex
	closed bool

	enqueued  atomic.Int64
	dropped   atomic.Int64
	delivered atomic.Int64
	batches   atomic.Int64

	overflowWarn rate.Sometimes
}

// New creates a queue for stream. The worker does not run until Start.
func New(stream event.Stream, cfg Config, sink Deliverer, log logger.Logger) *Queue {
	if log == nil {
		log = logger.GetDefault()
	}
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		stream:       stream,
		cfg:          cfg,
		sink:         sink,
		log:          log,
		events:       make(chan *event.Envelope, cfg.Capacity),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
		ctx:          ctx,
		cancel:       cancel,
		overflowWarn: rate.Sometimes{Interval: time.Second},
	}
}

// Start launches the worker. Calling it more than once has no effect.
func (q *Queue) Start() {
	q.startOnce.Do(func() {
		q.started.Store(true)
		go q.run()
	})
}

// Enqueue adds e without blocking. It returns false when the event was
// dropped because the queue is full or shut down.
func (q *Queue) Enqueue(e *event.Envelope) bool {
	if e == nil {
		return false
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.drop("closed")
		return false
	}

	select {
	case q.events <- e:
		q.enqueued.Add(1)
		metrics.QueueDepth.WithLabelValues(string(q.stream)).Set(float64(len(q.events)))
		return true
	default:
		q.drop("queue_full")
		q.overflowWarn.Do(func() {
			q.log.Warn("Log queue full, dropping events",
				logger.String("stream", string(q.stream)),
				logger.Int("capacity", q.cfg.Capacity),
				logger.Int64("dropped_total", q.dropped.Load()))
		})
		return false
	}
}

func (q *Queue) drop(reason string) {
	q.dropped.Add(1)
	metrics.QueueDroppedTotal.WithLabelValues(string(q.stream), reason).Inc()
}

func (q *Queue) run() {
	defer close(q.done)

	batch := make([]*event.Envelope, 0, q.cfg.BatchSize)
	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
			timer, timerC = nil, nil
		}
	}
	flush := func() {
		stopTimer()
		if len(batch) == 0 {
			return
		}
		q.deliver(q.ctx, batch)
		batch = make([]*event.Envelope, 0, q.cfg.BatchSize)
	}

	for {
		select {
		case <-q.stop:
			stopTimer()
			q.drain(batch)
			return
		default:
		}

		select {
		case e := <-q.events:
			batch = append(batch, e)
			if len(batch) == 1 {
				timer = time.NewTimer(q.cfg.Interval)
				timerC = timer.C
			}
			if len(batch) >= q.cfg.BatchSize {
				flush()
			}
		case <-timerC:
			flush()
		case <-q.stop:
			stopTimer()
			q.drain(batch)
			return
		}
	}
}

// drain delivers the pending batch and whatever is still buffered until the
// queue is empty or the shutdown context expires.
func (q *Queue) drain(pending []*event.Envelope) {
	batch := pending
	for {
	fill:
		for len(batch) < q.cfg.BatchSize {
			select {
			case e := <-q.events:
				batch = append(batch, e)
			default:
				break fill
			}
		}
		if len(batch) == 0 {
			return
		}
		if q.ctx.Err() != nil {
			q.abandon(len(batch))
			return
		}
		q.deliver(q.ctx, batch)
		batch = make([]*event.Envelope, 0, q.cfg.BatchSize)
	}
}

func (q *Queue) abandon(n int) {
	n += len(q.events)
	for i := 0; i < n; i++ {
		q.drop("shutdown")
	}
}

func (q *Queue) deliver(ctx context.Context, batch []*event.Envelope) {
	stream := string(q.stream)
	metrics.BatchSize.WithLabelValues(stream).Observe(float64(len(batch)))
	metrics.QueueDepth.WithLabelValues(stream).Set(float64(len(q.events)))
	q.batches.Add(1)
	if err := q.sink.Deliver(ctx, q.stream, batch); err == nil {
		q.delivered.Add(int64(len(batch)))
	}
}

// Shutdown stops accepting events and lets the worker drain for at most
// grace. Events still queued afterwards are dropped. It returns the number
// of events dropped during shutdown.
func (q *Queue) Shutdown(grace time.Duration) (int64, error) {
	first := false
	q.stopOnce.Do(func() { first = true })
	if !first {
		return 0, ErrClosed
	}
	if grace <= 0 {
		grace = DefaultGrace
	}

	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	before := q.dropped.Load()
	close(q.stop)
	// A queue that never started still gets its drain.
	q.Start()

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-q.done:
	case <-timer.C:
		q.cancel()
		<-q.done
	}
	q.cancel()

	lost := q.dropped.Load() - before
	q.log.Info("Log queue shut down",
		logger.String("stream", string(q.stream)),
		logger.Int64("delivered", q.delivered.Load()),
		logger.Int64("dropped", lost))
	metrics.QueueDepth.WithLabelValues(string(q.stream)).Set(0)
	return lost, nil
}

// Stats is a point-in-time view of a queue.
type Stats struct {
	Stream    event.Stream `json:"stream"`
	Depth     int          `json:"depth"`
	Capacity  int          `json:"capacity"`
	Enqueued  int64        `json:"enqueued"`
	Dropped   int64        `json:"dropped"`
	Delivered int64        `json:"delivered"`
	Batches   int64        `json:"batches"`
}

func (q *Queue) Stats() Stats {
	return Stats{
		Stream:    q.stream,
		Depth:     len(q.events),
		Capacity:  q.cfg.Capacity,
		Enqueued:  q.enqueued.Load(),
		Dropped:   q.dropped.Load(),
		Delivered: q.delivered.Load(),
		Batches:   q.batches.Load(),
	}
}

func (q *Queue) Dropped() int64   { return q.dropped.Load() }
func (q *Queue) Delivered() int64 { return q.delivered.Load() }
func (q *Queue) Depth() int       { return len(q.events) }
