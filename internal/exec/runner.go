// Package exec provides a testable command execution abstraction for the
// two external CLIs the service shells out to: the automation agent and the
// Allure report generator.
package exec

import (
	"context"
	"io"
	osexec "os/exec"
	"strings"
)

// Runner defines the interface for executing external commands. Inject this
// instead of calling exec.Command directly.
type Runner interface {
	// Run executes a command and returns combined stdout/stderr.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)

	// RunWithStdin executes a command with stdin input.
	RunWithStdin(ctx context.Context, stdin io.Reader, name string, args ...string) ([]byte, error)

	// LookPath reports whether the named binary is on PATH.
	LookPath(name string) bool
}

// OSRunner implements Runner using os/exec.
type OSRunner struct {
	// Env overrides environment variables (nil = inherit from parent)
	Env []string
}

// NewOSRunner creates a new OS-based command runner.
func NewOSRunner() *OSRunner {
	return &OSRunner{}
}

func (r *OSRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := osexec.CommandContext(ctx, name, args...)
	if r.Env != nil {
		cmd.Env = r.Env
	}
	return cmd.CombinedOutput()
}

func (r *OSRunner) RunWithStdin(ctx context.Context, stdin io.Reader, name string, args ...string) ([]byte, error) {
	cmd := osexec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin
	if r.Env != nil {
		cmd.Env = r.Env
	}
	return cmd.CombinedOutput()
}

func (r *OSRunner) LookPath(name string) bool {
	_, err := osexec.LookPath(name)
	return err == nil
}

// MockRunner implements Runner for testing.
type MockRunner struct {
	// Calls records all command invocations.
	Calls []MockCall

	// Responses maps command name to response.
	Responses map[string]MockResponse

	// Missing lists binaries LookPath should report as absent.
	Missing map[string]bool
}

// MockCall records a single command invocation.
type MockCall struct {
	Name  string
	Args  []string
	Stdin string
}

// MockResponse defines the response for a mocked command.
type MockResponse struct {
	Output []byte
	Err    error
}

// NewMockRunner creates a new mock runner.
func NewMockRunner() *MockRunner {
	return &MockRunner{
		Responses: make(map[string]MockResponse),
		Missing:   make(map[string]bool),
	}
}

// AddResponse sets the response for a command name.
func (m *MockRunner) AddResponse(name string, resp MockResponse) {
	m.Responses[name] = resp
}

func (m *MockRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	m.Calls = append(m.Calls, MockCall{Name: name, Args: args})
	resp := m.Responses[name]
	return resp.Output, resp.Err
}

func (m *MockRunner) RunWithStdin(ctx context.Context, stdin io.Reader, name string, args ...string) ([]byte, error) {
	var in strings.Builder
	if stdin != nil {
		io.Copy(&in, stdin)
	}
	m.Calls = append(m.Calls, MockCall{Name: name, Args: args, Stdin: in.String()})
	resp := m.Responses[name]
	return resp.Output, resp.Err
}

func (m *MockRunner) LookPath(name string) bool {
	return !m.Missing[name]
}
