// Package config provides centralized configuration management.
// All TESTFLOW_* environment variables are read in one place.
package config

import (
	"os"
	"path/filepath"
	"sync"
)

// Env holds all testflow environment variables.
type Env struct {
	// ListenAddr is the HTTP listen address (TESTFLOW_ADDR)
	ListenAddr string

	// AgentCmd is the external automation agent binary (TESTFLOW_AGENT_CMD)
	AgentCmd string

	// CallbackURL is the base URL the agent reports back through
	// (TESTFLOW_CALLBACK_URL); defaults to the local listen address.
	CallbackURL string

	// AllureCmd is the report rendering tool (TESTFLOW_ALLURE_CMD)
	AllureCmd string

	// Preflight enables the headless-browser URL probe before generation
	// (TESTFLOW_PREFLIGHT)
	Preflight bool
}

var (
	env     *Env
	envOnce sync.Once
)

// Get returns the singleton environment configuration.
// Thread-safe, loads once on first call.
func Get() *Env {
	envOnce.Do(func() {
		addr := getEnvDefault("TESTFLOW_ADDR", ":8000")
		env = &Env{
			ListenAddr:  addr,
			AgentCmd:    getEnvDefault("TESTFLOW_AGENT_CMD", "browser-agent"),
			CallbackURL: getEnvDefault("TESTFLOW_CALLBACK_URL", callbackFor(addr)),
			AllureCmd:   getEnvDefault("TESTFLOW_ALLURE_CMD", "allure"),
			Preflight:   os.Getenv("TESTFLOW_PREFLIGHT") == "1",
		}
	})
	return env
}

// Reset resets the cached environment (for testing).
func Reset() {
	envOnce = sync.Once{}
	env = nil
	paths = nil
	pathsOnce = sync.Once{}
}

func getEnvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// callbackFor derives the local callback base URL from a listen address.
func callbackFor(addr string) string {
	if addr != "" && addr[0] == ':' {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

// Paths holds standard testflow directory paths.
type Paths struct {
	// Home is the testflow home directory (~/.testflow or TESTFLOW_HOME)
	Home string

	// Data is the database directory
	Data string

	// AllureResults is where result records accumulate
	AllureResults string

	// AllureReports is where rendered reports land
	AllureReports string
}

var (
	paths     *Paths
	pathsOnce sync.Once
)

// GetPaths returns the singleton paths configuration.
func GetPaths() *Paths {
	pathsOnce.Do(func() {
		home := os.Getenv("TESTFLOW_HOME")
		if home == "" {
			userHome, err := os.UserHomeDir()
			if err != nil {
				userHome = "."
			}
			home = filepath.Join(userHome, ".testflow")
		}

		paths = &Paths{
			Home:          home,
			Data:          filepath.Join(home, "data"),
			AllureResults: filepath.Join(home, "allure-results"),
			AllureReports: filepath.Join(home, "allure-reports"),
		}
	})
	return paths
}

// EnsureDir creates a directory if it doesn't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}
