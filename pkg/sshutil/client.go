// Package sshutil maintains an SSH connection to one remote host and runs
// single commands over it. Connection setup is lazy: the first Run dials,
// and a broken connection is redialed on the next call.
package sshutil

import (
	"context"
	stderrors "errors"
	"net"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"gpuwatch/internal/logger"
)

// keepaliveInterval is how often a keepalive request is sent on an idle
// connection, matching OpenSSH's ServerAliveInterval-style probing.
const keepaliveInterval = 10 * time.Second

// Client is a reconnecting SSH client for a single target.
// Safe for use by one goroutine at a time; the collector is the only caller.
type Client struct {
	target Target
	log    logger.Logger

	mu        sync.Mutex
	conn      *ssh.Client
	keepalive chan struct{}

	// pinnedKey is the host key accepted on first use under HostKeyAccept.
	pinMu     sync.Mutex
	pinnedKey ssh.PublicKey
}

// NewClient creates a client for the target. No connection is made until
// the first Connect or Run call.
func NewClient(target Target, log logger.Logger) *Client {
	if log == nil {
		log = logger.Noop()
	}
	if target.ConnectTimeout <= 0 {
		target.ConnectTimeout = 10 * time.Second
	}
	if target.CommandTimeout <= 0 {
		target.CommandTimeout = 10 * time.Second
	}
	return &Client{target: target, log: log}
}

// Target returns the target this client connects to.
func (c *Client) Target() Target {
	return c.target
}

// Connected reports whether a connection is currently established. It does
// not probe liveness; a dead connection is detected on the next Run.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Connect establishes the SSH connection if one is not already open.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	cfg, err := c.buildClientConfig()
	if err != nil {
		return err
	}

	addr := c.target.Addr()
	c.log.Debug("dialing %s", addr)

	dialer := net.Dialer{Timeout: c.target.ConnectTimeout}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return classifyDialError(err, addr)
	}

	// Bound the handshake too; a TCP connect can succeed against a host
	// whose sshd never answers.
	deadline := time.Now().Add(c.target.ConnectTimeout)
	_ = netConn.SetDeadline(deadline)

	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, cfg)
	if err != nil {
		netConn.Close()
		return classifyHandshakeError(err, addr)
	}
	_ = netConn.SetDeadline(time.Time{})

	c.conn = ssh.NewClient(sshConn, chans, reqs)
	c.keepalive = make(chan struct{})
	go c.keepaliveLoop(c.conn, c.keepalive)
	c.log.Debug("connected to %s", addr)
	return nil
}

// keepaliveLoop sends periodic keepalive requests until the connection is
// torn down or a request fails.
func (c *Client) keepaliveLoop(conn *ssh.Client, stop chan struct{}) {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if _, _, err := conn.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				c.log.Debug("keepalive failed: %v", err)
				return
			}
		}
	}
}

// markDisconnected drops the current connection so the next call redials.
// Called after failures that indicate the channel is no longer usable.
func (c *Client) markDisconnected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownLocked()
}

func (c *Client) teardownLocked() {
	if c.keepalive != nil {
		close(c.keepalive)
		c.keepalive = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// Reset drops any existing connection; the next Run will reconnect.
func (c *Client) Reset() {
	c.markDisconnected()
}

// Close releases the connection. Idempotent and safe to call from error
// paths or while a command is in flight (the pending read unblocks).
func (c *Client) Close() error {
	c.markDisconnected()
	return nil
}

// isConnectionDead reports whether an exec failure means the underlying
// connection is gone rather than the command misbehaving.
func isConnectionDead(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, net.ErrClosed) {
		return true
	}
	var exitErr *ssh.ExitError
	if stderrors.As(err, &exitErr) {
		return false
	}
	var missingErr *ssh.ExitMissingError
	if stderrors.As(err, &missingErr) {
		// Session ended without an exit status: connection dropped mid-command.
		return true
	}
	var netErr net.Error
	return stderrors.As(err, &netErr)
}
