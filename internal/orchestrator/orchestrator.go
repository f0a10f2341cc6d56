// Package orchestrator schedules and runs the two long background work
// units of a test session: generation and execution. Work units are
// fire-and-forget relative to the request that triggers them; the caller
// gets an immediate acknowledgement and a handle, never a result. Errors
// inside a unit are terminal to that unit only.
package orchestrator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/voss/testflow/internal/agent"
	"github.com/voss/testflow/internal/domain"
	"github.com/voss/testflow/internal/logging"
	"github.com/voss/testflow/internal/metrics"
	"github.com/voss/testflow/internal/store"
)

// Store is the slice of the persistence contract the orchestrator needs.
type Store interface {
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	ListTestCases(ctx context.Context, sessionID string) ([]domain.TestCase, error)
	CaseOutcome(ctx context.Context, sessionID string, testID int) (domain.CaseStatus, string, error)
	SetSessionStatus(ctx context.Context, sessionID string, status domain.SessionStatus) error
	Summary(ctx context.Context, sessionID string) (*domain.Summary, error)
	ListSessions(ctx context.Context) ([]domain.SessionWithCases, error)
}

// Recorder is the slice of the report adapter the orchestrator needs.
type Recorder interface {
	RecordResult(sessionID string, tc domain.TestCase, status domain.CaseStatus, errorMessage string) (string, error)
	Generate(ctx context.Context) bool
}

// Orchestrator owns the work-unit registry and drives the agent.
type Orchestrator struct {
	store    Store
	agent    agent.Agent
	reporter Recorder

	// Probe, when set, checks URL reachability before generation.
	// Failures are logged and generation proceeds.
	Probe agent.Probe

	log *logging.Logger

	mu    sync.RWMutex
	units map[string]*WorkUnit
}

// New creates an Orchestrator.
func New(st Store, ag agent.Agent, rec Recorder) *Orchestrator {
	return &Orchestrator{
		store:    st,
		agent:    ag,
		reporter: rec,
		log:      logging.New("orchestrator"),
		units:    make(map[string]*WorkUnit),
	}
}

// NewSessionID derives a session identifier from the current time.
func NewSessionID() string {
	return time.Now().Format("20060102_150405")
}

// RequestGeneration accepts a generation request and schedules the
// generation work unit. It returns immediately with the new session ID and
// the unit handle.
func (o *Orchestrator) RequestGeneration(url string, numCases int) (string, *WorkUnit) {
	sessionID := NewSessionID()
	unit := o.spawn(UnitGeneration, sessionID, func(ctx context.Context) error {
		return o.runGeneration(ctx, sessionID, url, numCases)
	})
	return sessionID, unit
}

// RequestExecution accepts an execution request for an existing session and
// schedules the execution work unit. Returns store.ErrNotFound if the
// session does not exist. Re-running a Completed session is permitted.
func (o *Orchestrator) RequestExecution(ctx context.Context, sessionID string) (*WorkUnit, error) {
	if _, err := o.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	unit := o.spawn(UnitExecution, sessionID, func(ctx context.Context) error {
		return o.runExecution(ctx, sessionID)
	})
	return unit, nil
}

// GetSummary returns the session summary or store.ErrNotFound.
func (o *Orchestrator) GetSummary(ctx context.Context, sessionID string) (*domain.Summary, error) {
	return o.store.Summary(ctx, sessionID)
}

// ListSessions returns all sessions with their cases, newest first.
func (o *Orchestrator) ListSessions(ctx context.Context) ([]domain.SessionWithCases, error) {
	return o.store.ListSessions(ctx)
}

// TriggerReport renders the accumulated result records. Best-effort.
func (o *Orchestrator) TriggerReport(ctx context.Context) bool {
	return o.reporter.Generate(ctx)
}

// Units returns all work-unit handles ordered by start time, newest first.
func (o *Orchestrator) Units() []*WorkUnit {
	o.mu.RLock()
	defer o.mu.RUnlock()
	units := make([]*WorkUnit, 0, len(o.units))
	for _, u := range o.units {
		units = append(units, u)
	}
	sort.Slice(units, func(i, j int) bool {
		return units[i].StartedAt.After(units[j].StartedAt)
	})
	return units
}

// spawn registers a unit and launches it on a recovered goroutine. Units
// run under a background context: once started there is no cancellation
// and no timeout beyond whatever bounds the agent invocation itself.
func (o *Orchestrator) spawn(kind UnitKind, sessionID string, run func(ctx context.Context) error) *WorkUnit {
	unit := newWorkUnit(kind, sessionID)

	o.mu.Lock()
	o.units[unit.ID] = unit
	o.mu.Unlock()

	log := o.log.WithSession(sessionID).WithUnit(unit.ID)
	log.Info("unit_started", map[string]interface{}{"kind": string(kind)})

	logging.SafeGo("orchestrator."+string(kind), func() {
		err := run(context.Background())
		metrics.Global().RecordUnit(string(kind), err == nil)
		if err != nil {
			log.Error("unit_failed", map[string]interface{}{"kind": string(kind)}, err)
		} else {
			log.TimedEvent("unit_done", unit.StartedAt, map[string]interface{}{"kind": string(kind)})
		}
		unit.finish(err)
	})

	return unit
}

// runGeneration drives the agent through the two generation instructions:
// register the session, then produce and save the cases. No rollback on
// partial failure: a registered session with zero cases is accepted,
// observable state.
func (o *Orchestrator) runGeneration(ctx context.Context, sessionID, url string, numCases int) error {
	log := o.log.WithSession(sessionID)

	if o.Probe != nil {
		if err := o.Probe.Check(ctx, url); err != nil {
			log.Warn("preflight_failed", map[string]interface{}{"url": url}, err)
		}
	}

	if err := o.agent.RunInstruction(ctx, registerSessionInstruction(sessionID, url, numCases)); err != nil {
		return err
	}
	log.Info("session_registered", nil)

	if err := o.agent.RunInstruction(ctx, generateCasesInstruction(sessionID, url, numCases)); err != nil {
		return err
	}
	log.Info("cases_saved", nil)
	return nil
}

// runExecution runs every case of the session strictly sequentially: one
// agent invocation in flight at a time, the store re-read after each as the
// single source of truth. Cases added after the run starts are not picked
// up.
func (o *Orchestrator) runExecution(ctx context.Context, sessionID string) error {
	log := o.log.WithSession(sessionID)

	sess, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		log.Warn("session_missing", nil, err)
		return nil
	}

	cases, err := o.store.ListTestCases(ctx, sessionID)
	if err != nil {
		log.Warn("list_cases_failed", nil, err)
		return nil
	}
	if len(cases) == 0 {
		log.Info("no_cases", nil)
		return nil
	}

	log.Info("executing", map[string]interface{}{"cases": len(cases)})

	for _, tc := range cases {
		log.Info("case_started", map[string]interface{}{
			"test_id": tc.TestID,
			"title":   tc.Title,
		})

		if err := o.agent.RunInstruction(ctx, executeCaseInstruction(sessionID, sess.URL, tc)); err != nil {
			// Agent failure halts the run at this case; earlier verdicts keep.
			return err
		}

		// The agent's status write and this read are not transactionally
		// linked. If the agent never reported, the pre-existing status is
		// what gets recorded.
		status, comment, err := o.store.CaseOutcome(ctx, sessionID, tc.TestID)
		if err != nil {
			if !store.IsNotFound(err) {
				log.Warn("outcome_read_failed", map[string]interface{}{"test_id": tc.TestID}, err)
			}
			status, comment = "unknown", ""
		}

		log.Info("case_finished", map[string]interface{}{
			"test_id": tc.TestID,
			"status":  string(status),
		})

		if _, err := o.reporter.RecordResult(sessionID, tc, status, comment); err != nil {
			log.Warn("record_result_failed", map[string]interface{}{"test_id": tc.TestID}, err)
		}
	}

	if err := o.store.SetSessionStatus(ctx, sessionID, domain.SessionCompleted); err != nil {
		log.Error("complete_failed", nil, err)
	} else {
		log.Info("session_completed", nil)
	}

	if o.reporter.Generate(ctx) {
		log.Info("report_generated", nil)
	} else {
		log.Warn("report_failed", nil, nil)
	}
	return nil
}
