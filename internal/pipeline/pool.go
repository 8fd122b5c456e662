package pipeline

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"time"

	"github.com/neogan74/tracelog/internal/event"
	"github.com/neogan74/tracelog/internal/metrics"
)

// PoolStatter reports connection pool statistics, as *sql.DB does.
type PoolStatter interface {
	Stats() sql.DBStats
}

// PoolMonitor samples a connection pool and records a pool event whenever
// the numbers change. Waiting for a connection is reported as a warning.
type PoolMonitor struct {
	p        *Pipeline
	src      PoolStatter
	interval time.Duration

	last    sql.DBStats
	sampled bool

	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewPoolMonitor creates a monitor; call Start to begin sampling.
func NewPoolMonitor(p *Pipeline, src PoolStatter, interval time.Duration) *PoolMonitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &PoolMonitor{
		p:        p,
		src:      src,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (m *PoolMonitor) Start() {
	if m.started.CompareAndSwap(false, true) {
		go m.run()
	}
}

func (m *PoolMonitor) run() {
	defer close(m.done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Sample()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.Sample()
		}
	}
}

// Sample takes one reading and records it if anything changed.
func (m *PoolMonitor) Sample() {
	s := m.src.Stats()
	metrics.DBPoolOpenConnections.Set(float64(s.OpenConnections))

	if m.sampled && sameStats(s, m.last) {
		return
	}
	prev := m.last
	m.last, m.sampled = s, true

	level := event.LevelInfo
	msg := "connection pool stats"
	if s.WaitCount > prev.WaitCount {
		level = event.LevelWarning
		msg = "connection pool saturated"
	}

	m.p.System(context.Background(), &event.Envelope{
		Level:      level,
		Message:    msg,
		LoggerName: PoolLoggerName,
		ExtraData: map[string]any{
			"max_open":            s.MaxOpenConnections,
			"open":                s.OpenConnections,
			"in_use":              s.InUse,
			"idle":                s.Idle,
			"wait_count":          s.WaitCount,
			"wait_duration_ms":    s.WaitDuration.Milliseconds(),
			"max_idle_closed":     s.MaxIdleClosed,
			"max_lifetime_closed": s.MaxLifetimeClosed,
		},
	})
}

func sameStats(a, b sql.DBStats) bool {
	return a.OpenConnections == b.OpenConnections &&
		a.InUse == b.InUse &&
		a.Idle == b.Idle &&
		a.WaitCount == b.WaitCount &&
		a.MaxIdleClosed == b.MaxIdleClosed &&
		a.MaxLifetimeClosed == b.MaxLifetimeClosed
}

// Stop ends sampling and waits for the goroutine to exit.
func (m *PoolMonitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
	})
	if m.started.Load() {
		<-m.done
	}
}
