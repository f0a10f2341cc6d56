// Package report converts executed test cases into Allure result records
// and triggers the external Allure CLI to render them. Report generation is
// best-effort: failures surface as a boolean and a log line, never as an
// error that could abort an execution run.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"

	"github.com/voss/testflow/internal/domain"
	"github.com/voss/testflow/internal/exec"
	"github.com/voss/testflow/internal/logging"
	"github.com/voss/testflow/internal/metrics"
)

// Result is one immutable Allure result record, persisted as a single JSON
// file named by its UUID.
type Result struct {
	Name          string         `json:"name"`
	Status        string         `json:"status"`
	Start         int64          `json:"start"`
	Stop          int64          `json:"stop"`
	UUID          string         `json:"uuid"`
	HistoryID     string         `json:"historyId"`
	FullName      string         `json:"fullName"`
	Labels        []Label        `json:"labels"`
	Steps         []Step         `json:"steps"`
	StatusDetails *StatusDetails `json:"statusDetails,omitempty"`
}

// Label is an Allure metadata label.
type Label struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Step is one sub-entry of a result record.
type Step struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Start  int64  `json:"start"`
	Stop   int64  `json:"stop"`
}

// StatusDetails carries failure detail.
type StatusDetails struct {
	Message string `json:"message"`
	Trace   string `json:"trace"`
}

// MapStatus maps the open internal status vocabulary to Allure's closed
// one. Unrecognized literals pass through lowercased.
func MapStatus(status domain.CaseStatus) string {
	switch status {
	case "Pass", "Passed":
		return "passed"
	case "Fail", "Failed":
		return "failed"
	case "Blocked", "Skipped":
		return "skipped"
	case "Pending":
		return "unknown"
	}
	return strings.ToLower(string(status))
}

// Reporter writes result records and invokes the Allure CLI.
type Reporter struct {
	resultsDir string
	reportsDir string
	allureCmd  string
	runner     exec.Runner
	log        *logging.Logger
}

// New creates a Reporter, ensuring both directories exist.
func New(resultsDir, reportsDir, allureCmd string, runner exec.Runner) (*Reporter, error) {
	for _, dir := range []string{resultsDir, reportsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create report dir: %w", err)
		}
	}
	return &Reporter{
		resultsDir: resultsDir,
		reportsDir: reportsDir,
		allureCmd:  allureCmd,
		runner:     runner,
		log:        logging.New("report"),
	}, nil
}

// ResultsDir returns where result records accumulate.
func (r *Reporter) ResultsDir() string { return r.resultsDir }

// ReportsDir returns where rendered reports land.
func (r *Reporter) ReportsDir() string { return r.reportsDir }

// RecordResult produces one result record for an executed case and persists
// it. Start and stop are both the invocation time; the system does not
// measure wall-clock duration. Every step line is marked passed regardless
// of the case outcome.
func (r *Reporter) RecordResult(sessionID string, tc domain.TestCase, status domain.CaseStatus, errorMessage string) (string, error) {
	ts := time.Now().UnixMilli()
	id := uuid.New().String()

	result := Result{
		Name:      fmt.Sprintf("%d: %s", tc.TestID, tc.Title),
		Status:    MapStatus(status),
		Start:     ts,
		Stop:      ts,
		UUID:      id,
		HistoryID: fmt.Sprintf("%s_%d", sessionID, tc.TestID),
		FullName:  fmt.Sprintf("%s.test_case_%d", sessionID, tc.TestID),
		Labels: []Label{
			{Name: "suite", Value: "Session_" + sessionID},
			{Name: "feature", Value: "LLM_Test_Generation"},
			{Name: "framework", Value: "testflow"},
		},
	}

	for _, line := range domain.SplitSteps(tc.Steps) {
		result.Steps = append(result.Steps, Step{
			Name:   line,
			Status: "passed",
			Start:  ts,
			Stop:   ts,
		})
	}

	if errorMessage != "" {
		result.StatusDetails = &StatusDetails{
			Message: errorMessage,
			Trace:   errorMessage,
		}
	}

	data, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}

	path := filepath.Join(r.resultsDir, id+"-result.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write result: %w", err)
	}

	metrics.Global().RecordResult()
	return id, nil
}

// ListResults returns the file names of all accumulated result records.
func (r *Reporter) ListResults() ([]string, error) {
	matches, err := doublestar.FilepathGlob(filepath.Join(r.resultsDir, "*-result.json"))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, filepath.Base(m))
	}
	return names, nil
}

// Generate invokes the Allure CLI over the accumulated records. Returns
// whether the tool was found and completed successfully.
func (r *Reporter) Generate(ctx context.Context) bool {
	if !r.runner.LookPath(r.allureCmd) {
		r.log.Warn("allure_missing", map[string]interface{}{"cmd": r.allureCmd}, nil)
		metrics.Global().RecordReportRender(false)
		return false
	}

	start := time.Now()
	out, err := r.runner.Run(ctx, r.allureCmd, "generate", r.resultsDir, "-o", r.reportsDir, "--clean")
	if err != nil {
		r.log.Error("allure_generate_failed", map[string]interface{}{
			"output": string(out),
		}, err)
		metrics.Global().RecordReportRender(false)
		return false
	}

	r.log.TimedEvent("allure_generate", start, nil)
	metrics.Global().RecordReportRender(true)
	return true
}
