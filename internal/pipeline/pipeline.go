// Package pipeline is the logging facade. Every event is merged with the
// request context, redacted, rendered, appended to its stream file and,
// when the severity filter allows it, queued for the remote store.
//
// Facade methods never return errors and never panic into the caller;
// problems are reported on the diagnostic logger.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/neogan74/tracelog/internal/correlation"
	"github.com/neogan74/tracelog/internal/event"
	"github.com/neogan74/tracelog/internal/filesink"
	"github.com/neogan74/tracelog/internal/format"
	"github.com/neogan74/tracelog/internal/logger"
	"github.com/neogan74/tracelog/internal/metrics"
	"github.com/neogan74/tracelog/internal/queue"
	"github.com/neogan74/tracelog/internal/redact"
	"github.com/neogan74/tracelog/internal/remote"
	"github.com/neogan74/tracelog/internal/severity"
)

const (
	// PoolLoggerName prefixes connection pool events, which go to their own file.
	PoolLoggerName = "db.pool"
	// LoggerName names events the pipeline emits about itself.
	LoggerName = "tracelog.pipeline"

	performanceLayer = "performance"
)

// Config holds the facade level settings.
type Config struct {
	// AppLevel is the minimum level for app and performance events to be
	// recorded at all.
	AppLevel event.Level
	Queue    queue.Config
	Grace    time.Duration
}

// Options are the collaborators of a Pipeline. Files, Redactor and Filter
// default to disabled or built-in values; a nil Sink disables remote delivery.
type Options struct {
	Files    *filesink.Set
	Redactor *redact.Redactor
	Filter   *severity.Filter
	Sink     *remote.Sink
	// Logger is the diagnostic logger. It must not feed back into the
	// pipeline.
	Logger logger.Logger
}

// Pipeline is the process-wide logging service.
type Pipeline struct {
	cfg      Config
	log      logger.Logger
	files    *filesink.Set
	redactor *redact.Redactor
	filter   *severity.Filter
	sink     *remote.Sink
	queues   *queue.Group
	pid      int

	appLevel atomic.Int32
	closed   atomic.Bool
}

// New assembles a pipeline. Call Start to run the remote workers.
func New(cfg Config, opts Options) *Pipeline {
	log := opts.Logger
	if log == nil {
		log = logger.GetDefault()
	}
	if opts.Files == nil {
		opts.Files = filesink.NewSet(filesink.Config{}, log)
	}
	if opts.Redactor == nil {
		opts.Redactor = redact.New(nil, log)
	}
	if opts.Filter == nil {
		opts.Filter = severity.New(severity.Defaults(false))
	}
	if cfg.Grace <= 0 {
		cfg.Grace = queue.DefaultGrace
	}

	p := &Pipeline{
		cfg:      cfg,
		log:      log,
		files:    opts.Files,
		redactor: opts.Redactor,
		filter:   opts.Filter,
		sink:     opts.Sink,
		pid:      os.Getpid(),
	}
	if opts.Sink != nil {
		p.queues = queue.NewGroup(cfg.Queue, opts.Sink, log)
	}
	p.SetAppLevel(cfg.AppLevel)
	return p
}

// Start launches the remote delivery workers.
func (p *Pipeline) Start() {
	if p.queues != nil {
		p.queues.Start()
	}
}

// SetAppLevel changes the minimum level for app and performance events.
func (p *Pipeline) SetAppLevel(l event.Level) {
	if !l.Valid() {
		l = event.LevelDebug
	}
	p.appLevel.Store(int32(l))
}

// AppLevel returns the current app minimum level.
func (p *Pipeline) AppLevel() event.Level {
	return event.Level(p.appLevel.Load())
}

// Filter exposes the severity filter for reconfiguration.
func (p *Pipeline) Filter() *severity.Filter { return p.filter }

// Redactor exposes the redactor.
func (p *Pipeline) Redactor() *redact.Redactor { return p.redactor }

// App records an application event. Level and message are required.
func (p *Pipeline) App(ctx context.Context, e *event.Envelope) {
	defer p.recover("app")
	if !p.validate(ctx, "app", e, requireLevel, requireMessage) {
		return
	}
	if e.Level < p.AppLevel() {
		return
	}
	p.emit(ctx, event.StreamApplication, filesink.TargetApplication, e, nil)
}

// Performance records a timing event on the application stream, tagged
// with layer "performance". Level, message and duration are required.
func (p *Pipeline) Performance(ctx context.Context, e *event.Envelope) {
	defer p.recover("performance")
	if !p.validate(ctx, "performance", e, requireLevel, requireMessage, requireDuration) {
		return
	}
	if e.Level < p.AppLevel() {
		return
	}
	p.emit(ctx, event.StreamApplication, filesink.TargetApplication, e, func(ev *event.Envelope) {
		ev.Layer = performanceLayer
	})
}

// Error records an error event. Level, message, exception type and
// exception message are required.
func (p *Pipeline) Error(ctx context.Context, e *event.Envelope) {
	defer p.recover("error")
	if !p.validate(ctx, "error", e, requireLevel, requireMessage, requireExceptionType, requireExceptionMessage) {
		return
	}
	p.emit(ctx, event.StreamError, filesink.TargetExceptions, e, nil)
}

// Exception records err on the error stream. Fields left empty on e are
// derived from err; e may be nil.
func (p *Pipeline) Exception(ctx context.Context, err error, e *event.Envelope) {
	defer p.recover("exception")
	if err == nil {
		p.Error(ctx, e)
		return
	}
	ev := e.Clone()
	exc := event.FromError(err, 1)
	if ev.ExceptionType == "" {
		ev.ExceptionType = exc.Type
	}
	if ev.ExceptionMessage == "" {
		ev.ExceptionMessage = exc.Message
	}
	if ev.ErrorCode == "" {
		ev.ErrorCode = exc.Code
	}
	if ev.StackTrace == "" {
		ev.StackTrace = exc.Stack
	}
	if !ev.Level.Valid() {
		ev.Level = event.LevelError
	}
	if ev.Message == "" {
		ev.Message = exc.Message
	}
	p.Error(ctx, ev)
}

// Audit records a business action. Action is required; an authenticated
// action without a user is still recorded, with a warning.
func (p *Pipeline) Audit(ctx context.Context, e *event.Envelope) {
	defer p.recover("audit")
	if !p.validate(ctx, "audit", e, requireAction) {
		return
	}
	p.emit(ctx, event.StreamAudit, filesink.TargetAudit, e, func(ev *event.Envelope) {
		if !ev.Level.Valid() {
			ev.Level = event.LevelInfo
		}
		if ev.Message == "" {
			ev.Message = strings.TrimSpace(ev.Action + " " + ev.ResourceType)
		}
		if ev.Authenticated && ev.UserID == "" {
			p.invalid(ctx, "audit", ev, []string{"user_id"})
		}
	})
}

// System records a framework or infrastructure event. Level, message and
// logger name are required. Logger names under "db.pool" go to the pool file.
func (p *Pipeline) System(ctx context.Context, e *event.Envelope) {
	defer p.recover("system")
	if !p.validate(ctx, "system", e, requireLevel, requireMessage, requireLoggerName) {
		return
	}
	target := filesink.TargetSystem
	if strings.HasPrefix(e.LoggerName, PoolLoggerName) {
		target = filesink.TargetPool
	}
	p.emit(ctx, event.StreamSystem, target, e, func(ev *event.Envelope) {
		if ev.Source == "" {
			ev.Source = event.SourceSystem
		}
		if ev.ProcessID == nil {
			ev.ProcessID = event.Int(p.pid)
		}
	})
}

func (p *Pipeline) emit(ctx context.Context, stream event.Stream, target filesink.Target, e *event.Envelope, adjust func(*event.Envelope)) {
	if p.closed.Load() {
		p.log.Debug("Event after shutdown ignored", logger.String("stream", string(stream)))
		return
	}

	ev := e.Clone()
	correlation.From(ctx).Fill(ev)
	if ev.Timestamp.IsZero() {
		ev.Timestamp = event.Now()
	} else {
		ev.Timestamp = ev.Timestamp.In(event.KST)
	}
	if adjust != nil {
		adjust(ev)
	}
	if ev.Source == "" {
		ev.Source = event.SourceBackend
	}

	clean := p.redactor.Envelope(ev)
	_ = p.files.Write(target, format.Line(clean))
	metrics.EventsTotal.WithLabelValues(string(stream), clean.Level.String()).Inc()

	if p.queues != nil && p.filter.Allow(stream, clean.Level) {
		p.queues.Enqueue(stream, clean)
	}
}

func (p *Pipeline) recover(kind string) {
	if r := recover(); r != nil {
		p.log.Error("Logging call panicked",
			logger.String("kind", kind),
			logger.String("panic", panicString(r)))
	}
}

func panicString(r any) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	return fmt.Sprint(r)
}

// Shutdown stops accepting events, drains the remote queues within the
// grace period (shortened by ctx's deadline) and closes the files.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	grace := p.cfg.Grace
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < grace {
			grace = max(left, time.Millisecond)
		}
	}

	var dropped int64
	if p.queues != nil {
		dropped = p.queues.Shutdown(grace)
	}
	p.log.Info("Logging pipeline stopped", logger.Int64("dropped", dropped))
	return p.files.Close()
}

// Stats summarises queue and remote delivery counters.
type Stats struct {
	RemoteEnabled   bool          `json:"remote_enabled"`
	Streams         []queue.Stats `json:"streams"`
	RemoteDelivered int64         `json:"remote_delivered"`
	RemoteFailures  int64         `json:"remote_failures"`
	BreakerState    string        `json:"breaker_state,omitempty"`
	AppLevel        string        `json:"app_level"`
	RemoteLevels    struct {
		App    string `json:"app"`
		Error  string `json:"error"`
		System string `json:"system"`
	} `json:"remote_levels"`
}

func (p *Pipeline) Stats() Stats {
	var s Stats
	s.AppLevel = p.AppLevel().String()
	lv := p.filter.Levels()
	s.RemoteLevels.App = lv.App.String()
	s.RemoteLevels.Error = lv.Error.String()
	s.RemoteLevels.System = lv.System.String()
	if p.queues == nil {
		return s
	}
	s.RemoteEnabled = true
	s.Streams = p.queues.Stats()
	s.RemoteDelivered = p.sink.Delivered()
	s.RemoteFailures = p.sink.Failures()
	s.BreakerState = p.sink.BreakerState()
	return s
}
