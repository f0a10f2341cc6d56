// Package agent defines the boundary to the external automation capability:
// a black box that can browse a URL and carry out free-text instructions.
// The agent reports results only by calling back into the store through the
// service's callback endpoints; its own return value is never trusted for
// correctness.
package agent

import (
	"fmt"
	"strings"
	"time"

	"context"

	"github.com/voss/testflow/internal/exec"
	"github.com/voss/testflow/internal/logging"
	"github.com/voss/testflow/internal/metrics"
)

// Agent runs one free-text instruction to completion. The outcome is
// opaque; a nil error only means the invocation itself finished.
type Agent interface {
	RunInstruction(ctx context.Context, task string) error
}

// CLIAgent invokes an external agent binary, feeding the instruction on
// stdin. The callback base URL tells the agent where to report results.
type CLIAgent struct {
	cmd         string
	callbackURL string
	runner      exec.Runner
	log         *logging.Logger
}

// NewCLIAgent creates an agent bound to the given binary and callback URL.
func NewCLIAgent(cmd, callbackURL string, runner exec.Runner) *CLIAgent {
	return &CLIAgent{
		cmd:         cmd,
		callbackURL: callbackURL,
		runner:      runner,
		log:         logging.New("agent"),
	}
}

// RunInstruction executes one instruction. Output is logged, not parsed.
func (a *CLIAgent) RunInstruction(ctx context.Context, task string) error {
	start := time.Now()
	out, err := a.runner.RunWithStdin(ctx, strings.NewReader(task), a.cmd,
		"run", "--callback-url", a.callbackURL)
	metrics.Global().RecordAgentInvocation(err == nil, time.Since(start).Milliseconds())
	if err != nil {
		return fmt.Errorf("agent invocation: %w: %s", err, truncate(string(out), 500))
	}

	a.log.Debug("instruction_done", map[string]interface{}{
		"output_bytes": len(out),
	})
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
