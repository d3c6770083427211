package sshutil

import (
	stderrors "errors"
	"net"
	"strings"

	"golang.org/x/crypto/ssh/knownhosts"

	"gpuwatch/internal/errors"
)

// classifyDialError maps a TCP dial failure to a structured error.
func classifyDialError(err error, addr string) error {
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return errors.WrapWithCode(err, errors.ErrTimeout,
			"Connection to "+addr+" timed out",
			"Host might be offline or blocked by a firewall")
	}

	errStr := err.Error()
	suggestion := "Make sure the host is reachable: ping <host>"
	switch {
	case strings.Contains(errStr, "connection refused"):
		suggestion = "Is sshd running on that box? Try: ssh <host>"
	case strings.Contains(errStr, "no route to host"),
		strings.Contains(errStr, "network is unreachable"):
		suggestion = "Can't route to the host. Check your network connection."
	case strings.Contains(errStr, "no such host"):
		suggestion = "Hostname doesn't resolve. Check server_host for typos."
	}
	return errors.WrapWithCode(err, errors.ErrNetwork,
		"Can't reach "+addr, suggestion)
}

// classifyHandshakeError maps an SSH handshake failure to a structured error.
func classifyHandshakeError(err error, addr string) error {
	// Our own host key errors pass through unchanged.
	var serr *errors.Error
	if stderrors.As(err, &serr) && serr.Code == errors.ErrHostKey {
		return serr
	}

	var keyErr *knownhosts.KeyError
	if stderrors.As(err, &keyErr) {
		if len(keyErr.Want) > 0 {
			return errors.WrapWithCode(err, errors.ErrHostKey,
				"Host key for "+addr+" does not match known_hosts",
				"If the host was reinstalled, update it: ssh-keygen -R <host>")
		}
		return errors.WrapWithCode(err, errors.ErrHostKey,
			"Host "+addr+" is not in known_hosts",
			"Record it: ssh-keyscan <host> >> ~/.ssh/known_hosts, or use host_key_policy: accept")
	}

	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "unable to authenticate"),
		strings.Contains(errStr, "no supported methods remain"),
		strings.Contains(errStr, "permission denied"):
		return errors.WrapWithCode(err, errors.ErrAuth,
			"SSH auth to "+addr+" failed",
			"Check server_user and the configured credential")
	case strings.Contains(errStr, "host key"), strings.Contains(errStr, "knownhosts"):
		return errors.WrapWithCode(err, errors.ErrHostKey,
			"Host key verification for "+addr+" failed",
			"Try connecting manually first: ssh <host>")
	case strings.Contains(errStr, "timeout"), strings.Contains(errStr, "i/o timeout"),
		strings.Contains(errStr, "deadline exceeded"):
		return errors.WrapWithCode(err, errors.ErrTimeout,
			"SSH handshake with "+addr+" timed out",
			"Host might be overloaded, or sshd is not answering")
	}
	return errors.WrapWithCode(err, errors.ErrNetwork,
		"SSH handshake with "+addr+" failed",
		"Something went wrong during SSH setup. Try: ssh <host>")
}
