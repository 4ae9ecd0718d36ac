// Package exec runs external check tools (interpreters, linters, type
// checkers, test runners) and captures their output for validation records.
package exec

import (
	"context"
	"errors"
	osexec "os/exec"
	"time"
)

// Executor runs a command and reports its outcome. Implementations must
// return a Result for non-zero exits; an error means the command could not
// be run at all.
type Executor interface {
	// Run executes a command with the given options and returns the result.
	Run(ctx context.Context, cmd []string, opts Opts) (Result, error)

	// Name returns the executor name for logging.
	Name() string

	// Available reports whether this executor can be used here.
	Available() bool
}

// Opts contains options for command execution.
type Opts struct {
	// Env contains extra environment variables (KEY=VALUE format),
	// appended to the current environment.
	Env []string

	// Timeout is the maximum duration for command execution.
	Timeout time.Duration

	// WorkDir is the working directory for the command.
	WorkDir string

	// Stdin is fed to the command's standard input when non-empty.
	Stdin string
}

// DefaultOpts returns default execution options.
func DefaultOpts() Opts {
	return Opts{
		Timeout: 30 * time.Second,
	}
}

// Result contains the outcome of one command execution.
type Result struct {
	// Stdout contains the standard output.
	Stdout string

	// Stderr contains the standard error output.
	Stderr string

	// ExecutorUsed indicates which executor ran the command.
	ExecutorUsed string

	// Duration is how long the command took.
	Duration time.Duration

	// ExitCode is the exit code of the command. -1 when the process was
	// killed or never produced one.
	ExitCode int

	// TimedOut is set when the command was killed by its timeout.
	TimedOut bool
}

// IsToolMissing reports whether err means the command binary was not found
// on PATH, so the caller can skip the stage instead of failing it.
func IsToolMissing(err error) bool {
	return errors.Is(err, osexec.ErrNotFound)
}
