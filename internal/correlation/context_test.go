package correlation

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neogan74/tracelog/internal/event"
)

func TestEmptyOutsideRequest(t *testing.T) {
	assert.Equal(t, Fields{}, From(context.Background()))
	assert.Equal(t, "", TraceID(context.Background()))
}

func TestNewTraceIDIsUUIDv4(t *testing.T) {
	id, err := uuid.Parse(NewTraceID())
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(4), id.Version())
}

func TestChildInheritsAndClearDetaches(t *testing.T) {
	ctx := With(context.Background(), Fields{TraceID: "t1", RequestPath: "/x"})
	child, cancel := context.WithCancel(ctx)
	defer cancel()

	assert.Equal(t, "t1", TraceID(child))
	assert.Equal(t, "", TraceID(Clear(child)))

	withUser := WithUserID(child, "u1")
	assert.Equal(t, "u1", From(withUser).UserID)
	assert.Equal(t, "t1", From(withUser).TraceID)
	assert.Equal(t, "", From(child).UserID, "parent is not modified")
}

func TestConcurrentRequestsAreIndependent(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := NewTraceID()
			ctx := With(context.Background(), Fields{TraceID: id})
			done := make(chan string)
			go func() { done <- TraceID(ctx) }()
			assert.Equal(t, id, <-done)
		}()
	}
	wg.Wait()
}

func TestFillKeepsCallerValues(t *testing.T) {
	f := Fields{TraceID: "ctx-trace", UserID: "ctx-user", IPAddress: "10.0.0.1"}
	e := &event.Envelope{TraceID: "explicit"}
	f.Fill(e)

	assert.Equal(t, "explicit", e.TraceID)
	assert.Equal(t, "ctx-user", e.UserID)
	assert.Equal(t, "10.0.0.1", e.IPAddress)
	assert.Equal(t, "", e.RequestMethod)
}
