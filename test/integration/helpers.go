//go:build integration

package integration

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"testing"
)

// TestConfig holds configuration for integration tests
type TestConfig struct {
	Token      string
	ProjectID  int64
	AccountID  int64
	OptlyPath  string
	ConfigPath string
	Verbose    bool
}

// LoadTestConfig loads configuration from environment variables
func LoadTestConfig(t *testing.T) *TestConfig {
	t.Helper()

	projectID, _ := strconv.ParseInt(os.Getenv("OPTLY_TEST_PROJECT_ID"), 10, 64)
	accountID, _ := strconv.ParseInt(os.Getenv("OPTLY_TEST_ACCOUNT_ID"), 10, 64)

	return &TestConfig{
		Token:      os.Getenv("OPTLY_TEST_TOKEN"),
		ProjectID:  projectID,
		AccountID:  accountID,
		OptlyPath:  getOptlyPath(),
		ConfigPath: t.TempDir() + "/config.yml",
		Verbose:    os.Getenv("OPTLY_TEST_VERBOSE") == "true",
	}
}

// getOptlyPath determines the path to the optly binary
func getOptlyPath() string {
	if path := os.Getenv("OPTLY_BINARY_PATH"); path != "" {
		return path
	}

	// Try common locations
	candidates := []string{
		"../../optly",
		"./optly",
		"../optly",
	}

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	return "optly" // Fallback to PATH
}

// SkipIfMissingBinary skips the test when the optly binary is not built
func (config *TestConfig) SkipIfMissingBinary(t *testing.T) {
	t.Helper()

	if _, err := exec.LookPath(config.OptlyPath); err != nil {
		t.Skipf("optly binary not found at %s, skipping integration test", config.OptlyPath)
	}
}

// SkipIfMissingCredentials skips tests that talk to the real API
func (config *TestConfig) SkipIfMissingCredentials(t *testing.T) {
	t.Helper()

	if config.Token == "" || config.ProjectID == 0 {
		t.Skip("OPTLY_TEST_TOKEN or OPTLY_TEST_PROJECT_ID not set, skipping live test")
	}
}

// CommandRunner provides utilities for running optly commands
type CommandRunner struct {
	config *TestConfig
	t      *testing.T
	env    []string
}

// NewCommandRunner creates a new command runner with an isolated config file
func NewCommandRunner(config *TestConfig, t *testing.T) *CommandRunner {
	return &CommandRunner{
		config: config,
		t:      t,
	}
}

// WithEnv adds environment variables, e.g. OPTLY_API=http://127.0.0.1:1234
func (runner *CommandRunner) WithEnv(env ...string) *CommandRunner {
	runner.env = append(runner.env, env...)

	return runner
}

// Run executes an optly command and returns output
func (runner *CommandRunner) Run(args ...string) (stdout, stderr string, err error) {
	return runner.RunWithInput("", args...)
}

// RunWithInput executes an optly command with stdin input
func (runner *CommandRunner) RunWithInput(input string, args ...string) (stdout, stderr string, err error) {
	args = append([]string{"--config", runner.config.ConfigPath}, args...)

	cmd := exec.Command(runner.config.OptlyPath, args...) // #nosec G204 -- test binary path
	cmd.Env = append(os.Environ(), runner.env...)

	var stdoutBuf, stderrBuf bytes.Buffer

	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf
	cmd.Stdin = strings.NewReader(input)

	if runner.config.Verbose {
		runner.t.Logf("Running: %s %s", runner.config.OptlyPath, strings.Join(args, " "))
	}

	err = cmd.Run()
	stdout = stdoutBuf.String()
	stderr = stderrBuf.String()

	if runner.config.Verbose && err != nil {
		runner.t.Logf("Command failed: %v\nStdout: %s\nStderr: %s", err, stdout, stderr)
	}

	if err != nil {
		err = fmt.Errorf("optly %s: %w", strings.Join(args, " "), err)
	}

	return stdout, stderr, err
}
