package queue

import (
	"sync"
	"time"

	"github.com/neogan74/tracelog/internal/event"
	"github.com/neogan74/tracelog/internal/logger"
)

// Group holds one Queue per stream.
type Group struct {
	queues map[event.Stream]*Queue
}

// NewGroup creates a queue for every stream, all sharing sink and cfg.
func NewGroup(cfg Config, sink Deliverer, log logger.Logger) *Group {
	g := &Group{queues: make(map[event.Stream]*Queue, len(event.Streams))}
	for _, s := range event.Streams {
		g.queues[s] = New(s, cfg, sink, log)
	}
	return g
}

// Start launches every worker.
func (g *Group) Start() {
	for _, q := range g.queues {
		q.Start()
	}
}

// Enqueue routes e to the queue of stream.
func (g *Group) Enqueue(stream event.Stream, e *event.Envelope) bool {
	q, ok := g.queues[stream]
	if !ok {
		return false
	}
	return q.Enqueue(e)
}

// Queue returns the queue of stream, or nil.
func (g *Group) Queue(stream event.Stream) *Queue {
	return g.queues[stream]
}

// Shutdown drains all queues in parallel so the whole group finishes within
// one grace period. It returns the total number of dropped events.
func (g *Group) Shutdown(grace time.Duration) int64 {
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int64
	)
	for _, q := range g.queues {
		wg.Add(1)
		go func(q *Queue) {
			defer wg.Done()
			n, err := q.Shutdown(grace)
			if err != nil {
				return
			}
			mu.Lock()
			total += n
			mu.Unlock()
		}(q)
	}
	wg.Wait()
	return total
}

// Stats returns per-stream stats in stream order.
func (g *Group) Stats() []Stats {
	out := make([]Stats, 0, len(g.queues))
	for _, s := range event.Streams {
		if q, ok := g.queues[s]; ok {
			out = append(out, q.Stats())
		}
	}
	return out
}
