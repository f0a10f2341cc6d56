package orchestrator

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voss/testflow/internal/domain"
	"github.com/voss/testflow/internal/store"
)

var (
	sessionIDRe = regexp.MustCompile(`session_id:? "([^"]+)"`)
	testIDRe    = regexp.MustCompile(`Test ID: (\d+)`)
)

// scriptedAgent routes each instruction to a handler, standing in for the
// external automation capability. Like the real agent, it reports results
// only by writing through the store.
type scriptedAgent struct {
	mu     sync.Mutex
	tasks  []string
	handle func(ctx context.Context, task string) error
}

func (a *scriptedAgent) RunInstruction(ctx context.Context, task string) error {
	a.mu.Lock()
	a.tasks = append(a.tasks, task)
	a.mu.Unlock()
	if a.handle == nil {
		return nil
	}
	return a.handle(ctx, task)
}

func (a *scriptedAgent) taskCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.tasks)
}

type recordedResult struct {
	sessionID string
	testID    int
	status    domain.CaseStatus
	message   string
}

type fakeRecorder struct {
	mu        sync.Mutex
	records   []recordedResult
	generated int
}

func (r *fakeRecorder) RecordResult(sessionID string, tc domain.TestCase, status domain.CaseStatus, errorMessage string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, recordedResult{sessionID, tc.TestID, status, errorMessage})
	return "fake-uuid", nil
}

func (r *fakeRecorder) Generate(ctx context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generated++
	return true
}

func (r *fakeRecorder) snapshot() ([]recordedResult, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedResult(nil), r.records...), r.generated
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func waitForUnit(t *testing.T, u *WorkUnit) {
	t.Helper()
	select {
	case <-u.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("work unit did not finish")
	}
}

func TestGenerationFlow(t *testing.T) {
	st := newTestStore(t)
	rec := &fakeRecorder{}

	ag := &scriptedAgent{}
	ag.handle = func(ctx context.Context, task string) error {
		m := sessionIDRe.FindStringSubmatch(task)
		if m == nil {
			return errors.New("instruction carries no session id")
		}
		sessionID := m[1]

		if strings.Contains(task, "Create Test Session") {
			return st.CreateSession(ctx, sessionID, "https://example.com", 2)
		}
		return st.SaveTestCases(ctx, sessionID, []domain.NewTestCase{
			{TestID: 1, Title: "First", Steps: []string{"Open page"}},
			{TestID: 2, Title: "Second", Steps: []string{"Click button"}},
		})
	}

	orch := New(st, ag, rec)
	sessionID, unit := orch.RequestGeneration("https://example.com", 2)
	assert.NotEmpty(t, sessionID)
	assert.Equal(t, UnitGeneration, unit.Kind)

	waitForUnit(t, unit)
	require.NoError(t, unit.Err())
	assert.Equal(t, 2, ag.taskCount())

	summary, err := orch.GetSummary(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionInProgress, summary.Session.Status)
	require.Len(t, summary.TestCases, 2)
	for _, tc := range summary.TestCases {
		assert.Equal(t, domain.CasePending, tc.Status)
		assert.Nil(t, tc.ExecutedAt)
	}
	assert.Equal(t, 2, summary.Stats["Pending"])
}

func TestGenerationPartialFailureKeepsSession(t *testing.T) {
	st := newTestStore(t)

	ag := &scriptedAgent{}
	ag.handle = func(ctx context.Context, task string) error {
		m := sessionIDRe.FindStringSubmatch(task)
		if m == nil {
			return errors.New("instruction carries no session id")
		}
		if strings.Contains(task, "Create Test Session") {
			return st.CreateSession(ctx, m[1], "https://example.com", 3)
		}
		return errors.New("agent lost the browser")
	}

	orch := New(st, ag, &fakeRecorder{})
	sessionID, unit := orch.RequestGeneration("https://example.com", 3)
	waitForUnit(t, unit)

	require.Error(t, unit.Err())

	// No rollback: the session exists with zero cases, observable via the
	// all-zero histogram.
	summary, err := orch.GetSummary(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Empty(t, summary.TestCases)
	assert.Empty(t, summary.Stats)
}

func TestGenerationAgentFailureIsTerminalToUnit(t *testing.T) {
	st := newTestStore(t)

	ag := &scriptedAgent{handle: func(ctx context.Context, task string) error {
		return errors.New("no such binary")
	}}

	orch := New(st, ag, &fakeRecorder{})
	sessionID, unit := orch.RequestGeneration("https://example.com", 1)
	waitForUnit(t, unit)

	require.Error(t, unit.Err())
	assert.Equal(t, 1, ag.taskCount(), "second instruction never sent")

	_, err := orch.GetSummary(context.Background(), sessionID)
	assert.True(t, store.IsNotFound(err))
}

func seedSession(t *testing.T, st *store.Store, sessionID string, n int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.CreateSession(ctx, sessionID, "https://example.com", n))
	cases := make([]domain.NewTestCase, 0, n)
	for i := 1; i <= n; i++ {
		cases = append(cases, domain.NewTestCase{
			TestID: i,
			Title:  "Case " + strconv.Itoa(i),
			Steps:  []string{"Open page", "Do the thing"},
		})
	}
	require.NoError(t, st.SaveTestCases(ctx, sessionID, cases))
}

func TestExecutionFlow(t *testing.T) {
	st := newTestStore(t)
	rec := &fakeRecorder{}
	ctx := context.Background()

	var order []int
	var orderMu sync.Mutex

	ag := &scriptedAgent{}
	ag.handle = func(ctx context.Context, task string) error {
		m := testIDRe.FindStringSubmatch(task)
		if m == nil {
			return errors.New("instruction carries no test id")
		}
		testID, _ := strconv.Atoi(m[1])

		orderMu.Lock()
		order = append(order, testID)
		orderMu.Unlock()

		status := domain.CasePassed
		comment := ""
		if testID == 2 {
			status, comment = domain.CaseFailed, "button missing"
		}
		_, err := st.UpdateTestCaseStatus(ctx, "sess", testID, status, comment)
		return err
	}

	seedSession(t, st, "sess", 3)
	orch := New(st, ag, rec)

	unit, err := orch.RequestExecution(ctx, "sess")
	require.NoError(t, err)
	assert.Equal(t, UnitExecution, unit.Kind)
	waitForUnit(t, unit)
	require.NoError(t, unit.Err())

	// Strictly sequential, in test_id order.
	assert.Equal(t, []int{1, 2, 3}, order)

	summary, err := orch.GetSummary(ctx, "sess")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionCompleted, summary.Session.Status)
	for _, tc := range summary.TestCases {
		assert.NotNil(t, tc.ExecutedAt, "case %d has no executed_at", tc.TestID)
	}

	records, generated := rec.snapshot()
	require.Len(t, records, 3)
	assert.Equal(t, domain.CasePassed, records[0].status)
	assert.Equal(t, domain.CaseFailed, records[1].status)
	assert.Equal(t, "button missing", records[1].message)
	assert.Equal(t, 1, generated)
}

func TestExecutionZeroCasesIsNoOp(t *testing.T) {
	st := newTestStore(t)
	rec := &fakeRecorder{}
	ctx := context.Background()

	require.NoError(t, st.CreateSession(ctx, "empty", "https://example.com", 2))

	orch := New(st, &scriptedAgent{}, rec)
	unit, err := orch.RequestExecution(ctx, "empty")
	require.NoError(t, err)
	waitForUnit(t, unit)
	require.NoError(t, unit.Err())

	sess, err := st.GetSession(ctx, "empty")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionInProgress, sess.Status, "status must not be forced to Completed")

	records, generated := rec.snapshot()
	assert.Empty(t, records)
	assert.Zero(t, generated)
}

func TestExecutionUnknownSession(t *testing.T) {
	st := newTestStore(t)
	orch := New(st, &scriptedAgent{}, &fakeRecorder{})

	_, err := orch.RequestExecution(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, store.IsNotFound(err))
}

func TestExecutionSilentAgentRecordsPriorStatus(t *testing.T) {
	st := newTestStore(t)
	rec := &fakeRecorder{}
	ctx := context.Background()

	// Agent runs but never calls the status-update operation.
	ag := &scriptedAgent{handle: func(ctx context.Context, task string) error { return nil }}

	seedSession(t, st, "sess", 1)
	orch := New(st, ag, rec)

	unit, err := orch.RequestExecution(ctx, "sess")
	require.NoError(t, err)
	waitForUnit(t, unit)

	// The store is the source of truth: with no verdict written, the
	// pre-existing Pending status is what gets reported.
	records, _ := rec.snapshot()
	require.Len(t, records, 1)
	assert.Equal(t, domain.CasePending, records[0].status)

	sess, err := st.GetSession(ctx, "sess")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionCompleted, sess.Status)
}

func TestExecutionHaltsOnAgentFailure(t *testing.T) {
	st := newTestStore(t)
	rec := &fakeRecorder{}
	ctx := context.Background()

	ag := &scriptedAgent{}
	ag.handle = func(ctx context.Context, task string) error {
		m := testIDRe.FindStringSubmatch(task)
		testID, _ := strconv.Atoi(m[1])
		if testID == 2 {
			return errors.New("browser crashed")
		}
		_, err := st.UpdateTestCaseStatus(ctx, "sess", testID, domain.CasePassed, "")
		return err
	}

	seedSession(t, st, "sess", 3)
	orch := New(st, ag, rec)

	unit, err := orch.RequestExecution(ctx, "sess")
	require.NoError(t, err)
	waitForUnit(t, unit)
	require.Error(t, unit.Err())

	// Halted at case 2: case 3 was never attempted, earlier verdicts keep.
	assert.Equal(t, 2, ag.taskCount())

	sess, err := st.GetSession(ctx, "sess")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionInProgress, sess.Status)

	status, _, err := st.CaseOutcome(ctx, "sess", 1)
	require.NoError(t, err)
	assert.Equal(t, domain.CasePassed, status)

	records, generated := rec.snapshot()
	assert.Len(t, records, 1)
	assert.Zero(t, generated, "no report render after a halted run")
}

func TestReExecutionOfCompletedSession(t *testing.T) {
	st := newTestStore(t)
	rec := &fakeRecorder{}
	ctx := context.Background()

	ag := &scriptedAgent{}
	ag.handle = func(ctx context.Context, task string) error {
		m := testIDRe.FindStringSubmatch(task)
		testID, _ := strconv.Atoi(m[1])
		_, err := st.UpdateTestCaseStatus(ctx, "sess", testID, domain.CasePassed, "")
		return err
	}

	seedSession(t, st, "sess", 1)
	orch := New(st, ag, rec)

	unit, err := orch.RequestExecution(ctx, "sess")
	require.NoError(t, err)
	waitForUnit(t, unit)

	// Completed sessions may re-enter execution; it simply re-runs.
	unit, err = orch.RequestExecution(ctx, "sess")
	require.NoError(t, err)
	waitForUnit(t, unit)
	require.NoError(t, unit.Err())

	assert.Equal(t, 2, ag.taskCount())
	records, generated := rec.snapshot()
	assert.Len(t, records, 2)
	assert.Equal(t, 2, generated)
}

func TestUnitsRegistry(t *testing.T) {
	st := newTestStore(t)
	orch := New(st, &scriptedAgent{handle: func(ctx context.Context, task string) error {
		return errors.New("nope")
	}}, &fakeRecorder{})

	_, unit := orch.RequestGeneration("https://example.com", 1)
	waitForUnit(t, unit)

	units := orch.Units()
	require.Len(t, units, 1)
	assert.Equal(t, unit.ID, units[0].ID)
	assert.False(t, units[0].Running())
	assert.Error(t, units[0].Err())
}

func TestNewSessionID(t *testing.T) {
	id := NewSessionID()
	_, err := time.Parse("20060102_150405", id)
	assert.NoError(t, err)
}
