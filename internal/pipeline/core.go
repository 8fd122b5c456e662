package pipeline

import (
	"context"

	"go.uber.org/zap/zapcore"

	"github.com/neogan74/tracelog/internal/event"
)

// frameworkLogger names system events whose zap logger is unnamed.
const frameworkLogger = "tracelog"

// NewCore returns a zapcore.Core that turns zap entries at or above level
// into system events. Tee it with a standard-error core for framework
// logging; never hand it to the pipeline's own diagnostic logger.
func NewCore(p *Pipeline, level zapcore.LevelEnabler) zapcore.Core {
	return &systemCore{LevelEnabler: level, p: p}
}

type systemCore struct {
	zapcore.LevelEnabler
	p      *Pipeline
	fields []zapcore.Field
}

func (c *systemCore) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.fields = append(append([]zapcore.Field(nil), c.fields...), fields...)
	return &clone
}

func (c *systemCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *systemCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}

	name := ent.LoggerName
	if name == "" {
		name = frameworkLogger
	}
	e := &event.Envelope{
		Timestamp:  ent.Time,
		Source:     event.SourceSystem,
		Level:      levelFromZap(ent.Level),
		Message:    ent.Message,
		LoggerName: name,
		StackTrace: ent.Stack,
	}
	if ent.Caller.Defined {
		e.FilePath = ent.Caller.File
		e.LineNumber = event.Int(ent.Caller.Line)
		e.Function = ent.Caller.Function
	}
	if len(enc.Fields) > 0 {
		e.ExtraData = enc.Fields
	}
	c.p.System(context.Background(), e)
	return nil
}

func (c *systemCore) Sync() error { return nil }

func levelFromZap(l zapcore.Level) event.Level {
	switch {
	case l <= zapcore.DebugLevel:
		return event.LevelDebug
	case l == zapcore.InfoLevel:
		return event.LevelInfo
	case l == zapcore.WarnLevel:
		return event.LevelWarning
	case l == zapcore.ErrorLevel:
		return event.LevelError
	default:
		return event.LevelCritical
	}
}
