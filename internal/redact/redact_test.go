package redact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/neogan74/tracelog/internal/event"
	"github.com/neogan74/tracelog/internal/logger"
)

func TestRedactNestedPayload(t *testing.T) {
	r := New(nil, logger.NewNop())

	in := map[string]any{
		"password": "p@ss",
		"nested":   map[string]any{"reset_token": "rt", "depth": 2},
		"ok":       "v",
		"list": []any{
			map[string]any{"API_KEY": "k1"},
			"plain",
		},
	}

	out, ok := r.Redact(in).(map[string]any)
	require.True(t, ok)

	assert.Equal(t, Mask, out["password"])
	assert.Equal(t, "v", out["ok"])
	nested := out["nested"].(map[string]any)
	assert.Equal(t, Mask, nested["reset_token"])
	assert.Equal(t, 2, nested["depth"])
	list := out["list"].([]any)
	assert.Equal(t, Mask, list[0].(map[string]any)["API_KEY"])
	assert.Equal(t, "plain", list[1])

	// The input is untouched.
	assert.Equal(t, "p@ss", in["password"])
}

func TestRedactIsIdempotent(t *testing.T) {
	r := New([]string{"ssn"}, logger.NewNop())
	in := map[string]any{
		"ssn":    "123",
		"cookie": map[string]any{"session": "abc"},
		"inner":  []any{map[string]any{"secret": 1}},
	}

	once := r.Redact(in)
	twice := r.Redact(once)
	assert.Equal(t, once, twice)
}

func TestRedactConfiguredFieldsAreCaseInsensitive(t *testing.T) {
	r := New([]string{" National_ID "}, logger.NewNop())
	assert.True(t, r.IsSensitive("national_id"))
	assert.True(t, r.IsSensitive("NATIONAL_ID"))
	assert.True(t, r.IsSensitive("Set-Cookie"))
	assert.False(t, r.IsSensitive("username"))
	assert.Contains(t, r.Fields(), "national_id")
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func TestRedactStructsAreNormalized(t *testing.T) {
	r := New(nil, logger.NewNop())
	out := r.Redact(credentials{Username: "kim", Password: "hunter2"})

	assert.Equal(t, map[string]any{"username": "kim", "password": Mask}, out)
}

func TestRedactTypedMaps(t *testing.T) {
	r := New(nil, logger.NewNop())
	out := r.Redact(map[string]string{"Authorization": "Bearer x", "accept": "json"})

	assert.Equal(t, map[string]any{"Authorization": Mask, "accept": "json"}, out)
}

func TestRedactTruncatesDeepValues(t *testing.T) {
	r := New(nil, logger.NewNop())

	root := map[string]any{}
	cur := root
	for i := 0; i < MaxDepth+4; i++ {
		next := map[string]any{}
		cur["child"] = next
		cur = next
	}
	cur["leaf"] = "deep"

	out := r.Redact(root).(map[string]any)
	depth := 0
	var node any = out
	for {
		m, ok := node.(map[string]any)
		if !ok {
			break
		}
		node = m["child"]
		depth++
	}
	assert.Equal(t, Truncated, node)
	assert.Equal(t, MaxDepth+1, depth)
}

func TestRedactUnserializableValue(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	r := New(nil, logger.NewFromZap(zap.New(core)))

	out := r.Redact(map[string]any{
		"ch":  make(chan int),
		"fn":  func() {},
		"num": 1.5,
	}).(map[string]any)

	assert.Equal(t, Unserializable, out["ch"])
	assert.Equal(t, Unserializable, out["fn"])
	assert.Equal(t, 1.5, out["num"])
	assert.Equal(t, 1, logs.Len(), "the warning is emitted once")
}

func TestRedactEnvelope(t *testing.T) {
	r := New(nil, logger.NewNop())
	e := &event.Envelope{
		Message:          "login",
		RequestData:      map[string]any{"email": "a@b.c", "password": "x"},
		ExceptionDetails: map[string]any{"authorization": "Bearer y"},
		ExtraData:        map[string]any{"nested": map[string]any{"reset_token": "rt"}, "ok": "v"},
	}

	out := r.Envelope(e)

	assert.Equal(t, Mask, out.RequestData.(map[string]any)["password"])
	assert.Equal(t, Mask, out.ExceptionDetails["authorization"])
	assert.Equal(t, Mask, out.ExtraData["nested"].(map[string]any)["reset_token"])
	assert.Equal(t, "v", out.ExtraData["ok"])
	assert.Equal(t, "x", e.RequestData.(map[string]any)["password"], "original envelope is not mutated")
}
