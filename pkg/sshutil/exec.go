package sshutil

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"gpuwatch/internal/errors"
)

// Run executes a command on the remote host, connecting first if needed.
// Returns stdout and the exit code. A non-zero exit is reported as an EXEC
// error carrying the remote stderr. The command timeout applies regardless
// of connection health; a hung command is cut off by closing its session.
func (c *Client) Run(ctx context.Context, cmd string) (string, int, error) {
	if err := c.Connect(ctx); err != nil {
		return "", -1, err
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return "", -1, errors.New(errors.ErrNetwork,
			"Not connected to "+c.target.Addr(), "")
	}

	session, err := conn.NewSession()
	if err != nil {
		// Session creation failing on an established connection means the
		// channel died underneath us.
		c.markDisconnected()
		return "", -1, errors.WrapWithCode(err, errors.ErrNetwork,
			"Failed to open SSH session on "+c.target.Addr(),
			"Connection was lost; it will be re-established on the next poll")
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	if err := session.Start(cmd); err != nil {
		c.markDisconnected()
		return "", -1, errors.WrapWithCode(err, errors.ErrExec,
			"Failed to start remote command",
			"Check the command exists on the remote host")
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	timer := time.NewTimer(c.target.CommandTimeout)
	defer timer.Stop()

	select {
	case err = <-done:
	case <-timer.C:
		// Closing the session unblocks Wait; the connection is dropped too
		// since the remote side may still be wedged.
		_ = session.Close()
		c.markDisconnected()
		return "", -1, errors.New(errors.ErrTimeout,
			fmt.Sprintf("Remote command exceeded %s timeout", c.target.CommandTimeout),
			"The remote host may be overloaded; consider raising ssh_command_timeout")
	case <-ctx.Done():
		_ = session.Close()
		c.markDisconnected()
		return "", -1, errors.WrapWithCode(ctx.Err(), errors.ErrTimeout,
			"Remote command canceled", "")
	}

	if err != nil {
		var exitErr *ssh.ExitError
		if stderrors.As(err, &exitErr) {
			code := exitErr.ExitStatus()
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = fmt.Sprintf("Command failed with exit code %d", code)
			}
			return stdout.String(), code, errors.New(errors.ErrExec, msg,
				"Check nvidia-smi works on the remote host")
		}
		if isConnectionDead(err) {
			c.markDisconnected()
			return "", -1, errors.WrapWithCode(err, errors.ErrNetwork,
				"Connection lost while running remote command",
				"It will be re-established on the next poll")
		}
		return "", -1, errors.WrapWithCode(err, errors.ErrExec,
			"Remote command failed", "")
	}

	return stdout.String(), 0, nil
}
