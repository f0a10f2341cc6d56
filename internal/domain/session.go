// Package domain defines the session and test-case model shared by the
// store, orchestrator and report adapter.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// SessionStatus tracks a session through its lifecycle. A session is
// persisted as InProgress from the moment it is created; Created is a
// conceptual instant, never a stored value.
type SessionStatus string

const (
	SessionInProgress SessionStatus = "In Progress"
	SessionCompleted  SessionStatus = "Completed"
)

// Session is one request to generate and execute a batch of test cases
// against a target URL.
type Session struct {
	SessionID    string        `json:"session_id"`
	URL          string        `json:"url"`
	NumTestCases int           `json:"num_test_cases"`
	CreatedAt    time.Time     `json:"created_at"`
	Status       SessionStatus `json:"status"`
}

// TestCase is one independently executable unit of verification within a
// session. TestID is unique only within the session; ID is the store
// surrogate key.
type TestCase struct {
	ID          int64      `json:"id"`
	SessionID   string     `json:"session_id"`
	TestID      int        `json:"test_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Steps       string     `json:"steps"`
	Status      CaseStatus `json:"status"`
	Comment     string     `json:"comment"`
	ExecutedAt  *time.Time `json:"executed_at"`
}

// NewTestCase carries the agent-supplied fields of a case before the store
// assigns its surrogate ID and defaults its status.
type NewTestCase struct {
	TestID      int      `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Steps       []string `json:"steps"`
}

// Summary is the per-session view returned to callers: the session row, a
// status histogram over its cases and the ordered case list.
type Summary struct {
	Session   Session        `json:"session"`
	Stats     map[string]int `json:"stats"`
	TestCases []TestCase     `json:"test_cases"`
}

// SessionWithCases pairs a session with its full case list.
type SessionWithCases struct {
	Session
	TestCases []TestCase `json:"test_cases"`
}

// FormatSteps serializes an ordered step list into the newline-delimited
// text blob stored with the case, with 1-based numbering baked in.
func FormatSteps(steps []string) string {
	var b strings.Builder
	for i, s := range steps {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s", i+1, s)
	}
	return b.String()
}

// SplitSteps returns the non-blank lines of a serialized steps blob.
func SplitSteps(steps string) []string {
	var out []string
	for _, line := range strings.Split(steps, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}
