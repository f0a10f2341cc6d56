package orchestrator

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// UnitKind names the two long-running background operations the
// orchestrator owns.
type UnitKind string

const (
	UnitGeneration UnitKind = "generation"
	UnitExecution  UnitKind = "execution"
)

// WorkUnit is the handle to one detached background operation. The contract
// is deliberate: no cancellation, no result propagation to the triggering
// caller. The handle exists so in-flight work stays observable and so tests
// can wait for completion.
type WorkUnit struct {
	ID        string
	Kind      UnitKind
	SessionID string
	StartedAt time.Time

	mu       sync.Mutex
	err      error
	finished time.Time
	done     chan struct{}
}

func newWorkUnit(kind UnitKind, sessionID string) *WorkUnit {
	return &WorkUnit{
		ID:        ulid.Make().String(),
		Kind:      kind,
		SessionID: sessionID,
		StartedAt: time.Now(),
		done:      make(chan struct{}),
	}
}

// Done is closed when the unit has terminated, successfully or not.
func (u *WorkUnit) Done() <-chan struct{} {
	return u.done
}

// Err returns the terminal error of the unit, if any. Only meaningful after
// Done is closed.
func (u *WorkUnit) Err() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.err
}

// Running reports whether the unit is still in flight.
func (u *WorkUnit) Running() bool {
	select {
	case <-u.done:
		return false
	default:
		return true
	}
}

func (u *WorkUnit) finish(err error) {
	u.mu.Lock()
	u.err = err
	u.finished = time.Now()
	u.mu.Unlock()
	close(u.done)
}
