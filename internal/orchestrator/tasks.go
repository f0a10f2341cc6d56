package orchestrator

import (
	"fmt"

	"github.com/voss/testflow/internal/domain"
)

// Instruction builders. The agent receives free text; the callback
// operations named here are the only channel it reports through.

func registerSessionInstruction(sessionID, url string, numCases int) string {
	return fmt.Sprintf(`Call the 'Create Test Session' operation with:
- session_id: %q
- url: %q
- num_test_cases: %d
`, sessionID, url, numCases)
}

func generateCasesInstruction(sessionID, url string, numCases int) string {
	return fmt.Sprintf(`Generate %d test cases for %s.
Call 'Save Test Cases' with session_id %q and the JSON array of cases.
Each case needs a unique integer id in [1..%d], a title, a description and a
list of step instructions.
`, numCases, url, sessionID, numCases)
}

func executeCaseInstruction(sessionID, url string, tc domain.TestCase) string {
	return fmt.Sprintf(`Execute THIS SINGLE TEST CASE and report the verdict.

Session ID: %s
Test ID: %d
Title: %s
Description: %s
Steps: %s
Target URL: %s

Instructions:
1. Navigate to %s
2. Execute the steps
3. Call 'Update Test Case Status' ONCE with the result
`, sessionID, tc.TestID, tc.Title, tc.Description, tc.Steps, url, url)
}
