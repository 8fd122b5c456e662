package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/neogan74/tracelog/internal/event"
	"github.com/neogan74/tracelog/internal/logger"
)

type batchCall struct {
	stream event.Stream
	msgs   []string
	at     time.Time
}

type recordingSink struct {
	mu    sync.Mutex
	calls []batchCall
	block chan struct{}
}

func (r *recordingSink) Deliver(ctx context.Context, stream event.Stream, events []*event.Envelope) error {
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	msgs := make([]string, len(events))
	for i, e := range events {
		msgs[i] = e.Message
	}
	r.mu.Lock()
	r.calls = append(r.calls, batchCall{stream: stream, msgs: msgs, at: time.Now()})
	r.mu.Unlock()
	return nil
}

func (r *recordingSink) Calls() []batchCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]batchCall(nil), r.calls...)
}

func (r *recordingSink) messages() []string {
	var out []string
	for _, c := range r.Calls() {
		out = append(out, c.msgs...)
	}
	return out
}

func ev(i int) *event.Envelope {
	return &event.Envelope{Level: event.LevelError, Message: fmt.Sprintf("m%d", i)}
}

func TestFlushOnInterval(t *testing.T) {
	sink := &recordingSink{}
	q := New(event.StreamApplication, Config{BatchSize: 50, Interval: 200 * time.Millisecond}, sink, logger.NewNop())
	q.Start()
	defer q.Shutdown(time.Second)

	start := time.Now()
	for i := 0; i < 49; i++ {
		require.True(t, q.Enqueue(ev(i)))
	}

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, sink.Calls(), "batch below threshold must wait for the interval")

	require.Eventually(t, func() bool { return len(sink.Calls()) == 1 }, 2*time.Second, 10*time.Millisecond)
	call := sink.Calls()[0]
	assert.Len(t, call.msgs, 49)
	assert.Equal(t, event.StreamApplication, call.stream)
	assert.GreaterOrEqual(t, call.at.Sub(start), 190*time.Millisecond)
}

func TestFlushOnBatchSize(t *testing.T) {
	sink := &recordingSink{}
	q := New(event.StreamError, Config{BatchSize: 5, Interval: time.Hour}, sink, logger.NewNop())
	q.Start()

	for i := 0; i < 12; i++ {
		q.Enqueue(ev(i))
	}
	require.Eventually(t, func() bool { return len(sink.Calls()) == 2 }, 2*time.Second, 10*time.Millisecond)
	for _, c := range sink.Calls() {
		assert.Len(t, c.msgs, 5)
	}

	_, err := q.Shutdown(time.Second)
	require.NoError(t, err)
	calls := sink.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, []string{"m10", "m11"}, calls[2].msgs)
}

func TestOverflowDropsWithoutBlocking(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	q := New(event.StreamApplication, Config{Capacity: 10}, &recordingSink{}, logger.NewFromZap(zap.New(core)))

	accepted := 0
	for i := 0; i < 25; i++ {
		if q.Enqueue(ev(i)) {
			accepted++
		}
	}
	assert.Equal(t, 10, accepted)
	assert.Equal(t, int64(15), q.Dropped())
	assert.Equal(t, 10, q.Depth())
	assert.Equal(t, 1, logs.FilterMessage("Log queue full, dropping events").Len())
}

func TestOverflowDropCountsExactlyOne(t *testing.T) {
	q := New(event.StreamSystem, Config{Capacity: 3}, &recordingSink{}, logger.NewNop())
	for i := 0; i < 3; i++ {
		require.True(t, q.Enqueue(ev(i)))
	}
	before := q.Dropped()
	assert.False(t, q.Enqueue(ev(99)))
	assert.Equal(t, before+1, q.Dropped())
}

func TestOrderPreservedWithinStream(t *testing.T) {
	sink := &recordingSink{}
	q := New(event.StreamAudit, Config{BatchSize: 7, Interval: 20 * time.Millisecond}, sink, logger.NewNop())
	q.Start()

	var want []string
	for i := 0; i < 100; i++ {
		want = append(want, fmt.Sprintf("m%d", i))
		q.Enqueue(ev(i))
	}
	dropped, err := q.Shutdown(2 * time.Second)
	require.NoError(t, err)
	assert.Zero(t, dropped)
	assert.Equal(t, want, sink.messages())
}

func TestShutdownDrainsUnstartedQueue(t *testing.T) {
	sink := &recordingSink{}
	q := New(event.StreamApplication, Config{BatchSize: 4}, sink, logger.NewNop())
	for i := 0; i < 10; i++ {
		q.Enqueue(ev(i))
	}

	dropped, err := q.Shutdown(time.Second)
	require.NoError(t, err)
	assert.Zero(t, dropped)
	assert.Len(t, sink.messages(), 10)
	assert.Equal(t, int64(10), q.Delivered())

	assert.False(t, q.Enqueue(ev(11)), "closed queue rejects events")
	_, err = q.Shutdown(time.Second)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestShutdownGraceDropsResidual(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := &recordingSink{block: make(chan struct{})}
	defer close(sink.block)
	q := New(event.StreamApplication, Config{BatchSize: 2}, sink, logger.NewFromZap(zap.New(core)))
	for i := 0; i < 6; i++ {
		q.Enqueue(ev(i))
	}

	start := time.Now()
	dropped, err := q.Shutdown(100 * time.Millisecond)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, int64(4), dropped)
	assert.Empty(t, sink.messages())

	entries := logs.FilterMessage("Log queue shut down").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(4), entries[0].ContextMap()["dropped"])
}

func TestGroupRoutesByStream(t *testing.T) {
	sink := &recordingSink{}
	g := NewGroup(Config{BatchSize: 10, Interval: time.Hour}, sink, logger.NewNop())
	g.Start()

	g.Enqueue(event.StreamAudit, ev(1))
	g.Enqueue(event.StreamError, ev(2))
	g.Enqueue(event.StreamError, ev(3))
	assert.False(t, g.Enqueue(event.Stream("bogus"), ev(4)))

	assert.Zero(t, g.Shutdown(time.Second))

	byStream := map[event.Stream][]string{}
	for _, c := range sink.Calls() {
		byStream[c.stream] = append(byStream[c.stream], c.msgs...)
	}
	assert.Equal(t, []string{"m1"}, byStream[event.StreamAudit])
	assert.Equal(t, []string{"m2", "m3"}, byStream[event.StreamError])

	stats := g.Stats()
	require.Len(t, stats, 4)
	assert.Equal(t, event.StreamApplication, stats[0].Stream)
	assert.Equal(t, int64(2), stats[1].Delivered)
}
