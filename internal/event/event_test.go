package event

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		input    string
		expected Level
		wantErr  bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"warn", LevelWarning, false},
		{"Warning", LevelWarning, false},
		{"error", LevelError, false},
		{"critical", LevelCritical, false},
		{"fatal", LevelCritical, false},
		{"verbose", 0, true},
		{"", 0, true},
	}

	for _, tc := range testCases {
		got, err := ParseLevel(tc.input)
		if tc.wantErr {
			assert.Error(t, err, tc.input)
			continue
		}
		require.NoError(t, err, tc.input)
		assert.Equal(t, tc.expected, got, tc.input)
	}
}

func TestLevelTextRoundTrip(t *testing.T) {
	var l Level
	require.NoError(t, l.UnmarshalText([]byte("warning")))
	assert.Equal(t, LevelWarning, l)

	text, err := l.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "WARNING", string(text))

	_, err = Level(42).MarshalText()
	assert.Error(t, err)
}

func TestStreamTable(t *testing.T) {
	assert.Equal(t, "app_logs", StreamApplication.Table())
	assert.Equal(t, "error_logs", StreamError.Table())
	assert.Equal(t, "audit_logs", StreamAudit.Table())
	assert.Equal(t, "system_logs", StreamSystem.Table())
	assert.Equal(t, "", Stream("bogus").Table())
}

func TestFormatTimeUsesKST(t *testing.T) {
	utc := time.Date(2026, 1, 2, 15, 4, 5, 678_000_000, time.UTC)
	s := FormatTime(utc)
	assert.Equal(t, "2026-01-03 00:04:05.678", s)

	parsed, err := ParseTime(s)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(utc))
}

func TestCloneIsIndependent(t *testing.T) {
	orig := &Envelope{
		Message:    "hello",
		LineNumber: Int(10),
		ExtraData:  map[string]any{"k": "v"},
	}
	c := orig.Clone()
	*c.LineNumber = 11
	c.ExtraData["k"] = "changed"
	c.SetExtra("new", 1)

	assert.Equal(t, 10, *orig.LineNumber)
	assert.Equal(t, "v", orig.ExtraData["k"])
	assert.NotContains(t, orig.ExtraData, "new")
}

type codedError struct{}

func (codedError) Error() string     { return "coded" }
func (codedError) ErrorCode() string { return "E42" }

type ValidationError struct{ msg string }

func (e *ValidationError) Error() string { return e.msg }

func TestFromError(t *testing.T) {
	exc := FromError(&ValidationError{msg: "bad"}, 0)
	assert.Equal(t, "event.ValidationError", exc.Type)
	assert.Equal(t, "bad", exc.Message)
	assert.Contains(t, exc.Stack, "TestFromError")

	wrapped := fmt.Errorf("saving member: %w", codedError{})
	exc = FromError(wrapped, 0)
	assert.Equal(t, "event.codedError", exc.Type)
	assert.Equal(t, "saving member: coded", exc.Message)
	assert.Equal(t, "E42", exc.Code)

	assert.Equal(t, Exception{}, FromError(nil, 0))
}

func TestTypeNameJoin(t *testing.T) {
	err := errors.Join(&ValidationError{msg: "a"}, errors.New("b"))
	assert.Equal(t, "event.ValidationError", TypeName(err))
}
