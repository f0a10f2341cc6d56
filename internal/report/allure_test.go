package report

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voss/testflow/internal/domain"
	"github.com/voss/testflow/internal/exec"
)

func newTestReporter(t *testing.T, runner exec.Runner) *Reporter {
	t.Helper()
	dir := t.TempDir()
	r, err := New(filepath.Join(dir, "results"), filepath.Join(dir, "reports"), "allure", runner)
	require.NoError(t, err)
	return r
}

func TestMapStatus(t *testing.T) {
	cases := map[domain.CaseStatus]string{
		"Pass":    "passed",
		"Passed":  "passed",
		"Fail":    "failed",
		"Failed":  "failed",
		"Blocked": "skipped",
		"Skipped": "skipped",
		"Pending": "unknown",
		"Weird":   "weird",
		"unknown": "unknown",
	}
	for in, want := range cases {
		assert.Equal(t, want, MapStatus(in), "MapStatus(%q)", in)
	}
}

func TestRecordResult(t *testing.T) {
	r := newTestReporter(t, exec.NewMockRunner())

	tc := domain.TestCase{
		TestID: 3,
		Title:  "Checkout flow",
		Steps:  "1. Open page\n2. Click button",
	}

	id, err := r.RecordResult("20240101_120000", tc, domain.CaseFailed, "button missing")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	data, err := os.ReadFile(filepath.Join(r.ResultsDir(), id+"-result.json"))
	require.NoError(t, err)

	var result Result
	require.NoError(t, json.Unmarshal(data, &result))

	assert.Equal(t, "3: Checkout flow", result.Name)
	assert.Equal(t, "failed", result.Status)
	assert.Equal(t, id, result.UUID)
	assert.Equal(t, "20240101_120000_3", result.HistoryID)
	assert.Equal(t, "20240101_120000.test_case_3", result.FullName)
	assert.Equal(t, result.Start, result.Stop, "duration is not measured")

	require.Len(t, result.Steps, 2)
	assert.Equal(t, "1. Open page", result.Steps[0].Name)
	for _, step := range result.Steps {
		// Every step is marked passed regardless of the case outcome.
		assert.Equal(t, "passed", step.Status)
	}

	require.NotNil(t, result.StatusDetails)
	assert.Equal(t, "button missing", result.StatusDetails.Message)
	assert.Equal(t, "button missing", result.StatusDetails.Trace)

	labels := map[string]string{}
	for _, l := range result.Labels {
		labels[l.Name] = l.Value
	}
	assert.Equal(t, "Session_20240101_120000", labels["suite"])
}

func TestRecordResultNoErrorDetail(t *testing.T) {
	r := newTestReporter(t, exec.NewMockRunner())

	id, err := r.RecordResult("s", domain.TestCase{TestID: 1, Title: "t"}, domain.CasePassed, "")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(r.ResultsDir(), id+"-result.json"))
	require.NoError(t, err)

	var result Result
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Nil(t, result.StatusDetails)
	assert.Empty(t, result.Steps)
}

func TestListResults(t *testing.T) {
	r := newTestReporter(t, exec.NewMockRunner())

	files, err := r.ListResults()
	require.NoError(t, err)
	assert.Empty(t, files)

	id1, err := r.RecordResult("s", domain.TestCase{TestID: 1, Title: "a"}, domain.CasePassed, "")
	require.NoError(t, err)
	id2, err := r.RecordResult("s", domain.TestCase{TestID: 2, Title: "b"}, domain.CaseFailed, "boom")
	require.NoError(t, err)

	files, err = r.ListResults()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{id1 + "-result.json", id2 + "-result.json"}, files)
}

func TestGenerate(t *testing.T) {
	runner := exec.NewMockRunner()
	r := newTestReporter(t, runner)

	assert.True(t, r.Generate(context.Background()))
	require.Len(t, runner.Calls, 1)
	assert.Equal(t, "allure", runner.Calls[0].Name)
	assert.Equal(t, []string{"generate", r.ResultsDir(), "-o", r.ReportsDir(), "--clean"}, runner.Calls[0].Args)

	// Re-running with no new results behaves the same.
	assert.True(t, r.Generate(context.Background()))
}

func TestGenerateToolMissing(t *testing.T) {
	runner := exec.NewMockRunner()
	runner.Missing["allure"] = true
	r := newTestReporter(t, runner)

	assert.False(t, r.Generate(context.Background()))
	assert.Empty(t, runner.Calls, "missing tool short-circuits before invocation")
}

func TestGenerateToolFails(t *testing.T) {
	runner := exec.NewMockRunner()
	runner.AddResponse("allure", exec.MockResponse{Err: errors.New("exit status 1")})
	r := newTestReporter(t, runner)

	assert.False(t, r.Generate(context.Background()))
	assert.False(t, r.Generate(context.Background()), "failure is stable across retries")
}
