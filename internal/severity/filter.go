// Package severity decides which events are forwarded to the remote store.
// File output is never filtered here.
package severity

import (
	"sync/atomic"

	"github.com/neogan74/tracelog/internal/event"
)

// Levels holds the minimum level per stream for remote delivery.
type Levels struct {
	App    event.Level `yaml:"app" json:"app"`
	Error  event.Level `yaml:"error" json:"error"`
	System event.Level `yaml:"system" json:"system"`
}

// Defaults returns the production defaults, or the development ones when
// debug is set.
func Defaults(debug bool) Levels {
	if debug {
		return Levels{App: event.LevelDebug, Error: event.LevelDebug, System: event.LevelInfo}
	}
	return Levels{App: event.LevelWarning, Error: event.LevelDebug, System: event.LevelWarning}
}

// Filter gates enqueue by stream and level. It is safe for concurrent use
// and can be reconfigured while running.
type Filter struct {
	levels atomic.Pointer[Levels]
}

// New creates a filter. Zero levels fall back to DEBUG (allow everything).
func New(l Levels) *Filter {
	f := &Filter{}
	f.Set(l)
	return f
}

// Set replaces the levels.
func (f *Filter) Set(l Levels) {
	l.App = orDebug(l.App)
	l.Error = orDebug(l.Error)
	l.System = orDebug(l.System)
	f.levels.Store(&l)
}

func orDebug(l event.Level) event.Level {
	if !l.Valid() {
		return event.LevelDebug
	}
	return l
}

// Levels returns the current levels.
func (f *Filter) Levels() Levels {
	return *f.levels.Load()
}

// Allow reports whether an event of level on stream should be enqueued.
// Audit events are always allowed.
func (f *Filter) Allow(stream event.Stream, level event.Level) bool {
	l := f.levels.Load()
	switch stream {
	case event.StreamAudit:
		return true
	case event.StreamApplication:
		return level >= l.App
	case event.StreamError:
		return level >= l.Error
	case event.StreamSystem:
		return level >= l.System
	default:
		return false
	}
}
