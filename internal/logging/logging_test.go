package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capture redirects the package output into a buffer for the duration of a
// test. The buffer is guarded because SafeGo writes from other goroutines.
type capture struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (c *capture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

func (c *capture) events(t *testing.T) []Event {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var events []Event
	for _, line := range strings.Split(strings.TrimSpace(c.buf.String()), "\n") {
		if line == "" {
			continue
		}
		var e Event
		require.NoError(t, json.Unmarshal([]byte(line), &e))
		events = append(events, e)
	}
	return events
}

func withCapture(t *testing.T) *capture {
	t.Helper()
	c := &capture{}
	SetOutput(c)
	t.Cleanup(func() { SetOutput(os.Stderr) })
	return c
}

func TestStructuredEvents(t *testing.T) {
	c := withCapture(t)

	log := New("store").WithSession("sess-1").WithUnit("unit-1")
	log.Info("migrated", map[string]interface{}{"tables": 2})
	log.Warn("slow_query", nil, errors.New("took too long"))

	events := c.events(t)
	require.Len(t, events, 2)

	assert.Equal(t, LevelInfo, events[0].Level)
	assert.Equal(t, "store", events[0].Component)
	assert.Equal(t, "migrated", events[0].Event)
	assert.Equal(t, "sess-1", events[0].Session)
	assert.Equal(t, "unit-1", events[0].Unit)
	assert.EqualValues(t, 2, events[0].Extra["tables"])

	assert.Equal(t, LevelWarn, events[1].Level)
	assert.Equal(t, "took too long", events[1].Error)
}

func TestWithSessionDoesNotMutateParent(t *testing.T) {
	c := withCapture(t)

	base := New("orchestrator")
	base.WithSession("child")
	base.Info("plain", nil)

	events := c.events(t)
	require.Len(t, events, 1)
	assert.Empty(t, events[0].Session)
}

func TestTimedEvent(t *testing.T) {
	c := withCapture(t)

	start := time.Now().Add(-50 * time.Millisecond)
	New("orchestrator").TimedEvent("unit_done", start, nil)

	events := c.events(t)
	require.Len(t, events, 1)
	assert.GreaterOrEqual(t, events[0].Duration, int64(50))
}

func TestSafeGoRecoversPanic(t *testing.T) {
	c := withCapture(t)

	done := make(chan struct{})
	SafeGo("worker", func() {
		defer close(done)
		panic("boom")
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("goroutine did not finish")
	}

	events := c.events(t)
	require.Len(t, events, 1)
	assert.Equal(t, "panic_recovered", events[0].Event)
	assert.Equal(t, "worker", events[0].Component)
	assert.Equal(t, "boom", events[0].Error)
	assert.Contains(t, events[0].Extra, "stack")
}

func TestWrapErrorReturnsPanicAsError(t *testing.T) {
	withCapture(t)

	h := NewRecoveryHandler("worker")

	err := h.WrapError(func() error { panic("kaboom") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")

	assert.NoError(t, h.WrapError(func() error { return nil }))

	sentinel := errors.New("plain failure")
	assert.ErrorIs(t, h.WrapError(func() error { return sentinel }), sentinel)
}

func TestOnPanicCallback(t *testing.T) {
	withCapture(t)

	var got interface{}
	h := NewRecoveryHandler("worker")
	h.OnPanic = func(err interface{}, stack string) { got = err }

	h.Wrap(func() { panic("observed") })
	assert.Equal(t, "observed", got)
}
