package sshutil

import "context"

// Runner is the command execution contract the collector depends on.
// The real Client and test fakes both satisfy it.
type Runner interface {
	// Run executes a command, connecting first if needed. Returns stdout
	// and the exit code; the error carries a category code from
	// internal/errors.
	Run(ctx context.Context, cmd string) (stdout string, exitCode int, err error)

	// Target returns the remote target for display purposes.
	Target() Target

	// Reset drops any existing connection so the next Run reconnects.
	Reset()

	// Close releases the connection. Idempotent; unblocks in-flight reads.
	Close() error
}

var _ Runner = (*Client)(nil)
