package logger

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		input    string
		expected zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"DEBUG", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"WARNING", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"critical", zapcore.DPanicLevel},
		{"invalid", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
	}

	for _, tc := range testCases {
		result := ParseLevel(tc.input)
		if result != tc.expected {
			t.Errorf("ParseLevel(%q) = %v, expected %v", tc.input, result, tc.expected)
		}
	}
}

func TestNewFromConfig(t *testing.T) {
	jsonLogger := NewFromConfig("info", "json")
	textLogger := NewFromConfig("debug", "text")

	assert.NotNil(t, jsonLogger)
	assert.NotNil(t, textLogger)

	// Should not panic
	jsonLogger.Info("test message", String("key1", "value1"), Int("key2", 42))
	textLogger.Debug("debug message", String("component", "test"))
}

func TestNamedAndWithFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewFromZap(zap.New(core)).Named("queue").WithFields(String("stream", "audit"))

	log.Warn("queue full", Int64("dropped", 3), Duration("elapsed", time.Second), Error(errors.New("boom")))

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "queue", entries[0].LoggerName)
		assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
		ctx := entries[0].ContextMap()
		assert.Equal(t, "audit", ctx["stream"])
		assert.Equal(t, int64(3), ctx["dropped"])
		assert.Equal(t, "boom", ctx["error"])
	}
}

func TestNopLogger(t *testing.T) {
	log := NewNop()
	log.Error("discarded")
	assert.NotNil(t, log.Zap())
}

func TestGlobalLogger(t *testing.T) {
	originalDefault := defaultLogger
	defer func() { SetDefault(originalDefault) }()

	testLogger := NewNop()
	SetDefault(testLogger)
	assert.Equal(t, testLogger, GetDefault())
}
