package pipeline

import (
	"context"
	"strings"

	"github.com/neogan74/tracelog/internal/event"
	"github.com/neogan74/tracelog/internal/filesink"
	"github.com/neogan74/tracelog/internal/metrics"
)

type requirement struct {
	field   string
	present func(*event.Envelope) bool
}

var (
	requireLevel            = requirement{"level", func(e *event.Envelope) bool { return e.Level.Valid() }}
	requireMessage          = requirement{"message", func(e *event.Envelope) bool { return e.Message != "" }}
	requireDuration         = requirement{"duration_ms", func(e *event.Envelope) bool { return e.DurationMS != nil }}
	requireExceptionType    = requirement{"exception_type", func(e *event.Envelope) bool { return e.ExceptionType != "" }}
	requireExceptionMessage = requirement{"exception_message", func(e *event.Envelope) bool { return e.ExceptionMessage != "" }}
	requireAction           = requirement{"action", func(e *event.Envelope) bool { return e.Action != "" }}
	requireLoggerName       = requirement{"logger_name", func(e *event.Envelope) bool { return e.LoggerName != "" }}
)

// validate reports whether e carries every required field. An invalid
// event is replaced by a warning on the system stream.
func (p *Pipeline) validate(ctx context.Context, kind string, e *event.Envelope, reqs ...requirement) bool {
	if e == nil {
		p.invalid(ctx, kind, nil, []string{"event"})
		return false
	}
	var missing []string
	for _, r := range reqs {
		if !r.present(e) {
			missing = append(missing, r.field)
		}
	}
	if len(missing) == 0 {
		return true
	}
	p.invalid(ctx, kind, e, missing)
	return false
}

func (p *Pipeline) invalid(ctx context.Context, kind string, e *event.Envelope, missing []string) {
	metrics.InvalidEventsTotal.WithLabelValues(kind).Inc()

	warning := &event.Envelope{
		Source:     event.SourceSystem,
		Level:      event.LevelWarning,
		Message:    "invalid " + kind + " log call: missing " + strings.Join(missing, ", "),
		LoggerName: LoggerName,
		ProcessID:  event.Int(p.pid),
		ExtraData: map[string]any{
			"kind":    kind,
			"missing": missing,
		},
	}
	if e != nil && e.Message != "" {
		warning.ExtraData["original_message"] = e.Message
	}
	p.emit(ctx, event.StreamSystem, filesink.TargetSystem, warning, nil)
}
