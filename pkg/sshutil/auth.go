package sshutil

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"gpuwatch/internal/errors"
)

// buildClientConfig assembles auth methods and the host key callback for
// the target. Auth order: SSH agent, key file, password. The key file takes
// precedence over the password by being tried first.
func (c *Client) buildClientConfig() (*ssh.ClientConfig, error) {
	var authMethods []ssh.AuthMethod

	if agentAuth := sshAgentAuth(); agentAuth != nil {
		authMethods = append(authMethods, agentAuth)
	}

	if c.target.KeyPath != "" {
		keyAuth, err := keyFileAuth(c.target.KeyPath)
		if err != nil {
			return nil, err
		}
		authMethods = append(authMethods, keyAuth)
	}

	if c.target.Password != "" {
		authMethods = append(authMethods, ssh.Password(c.target.Password))
	}

	if len(authMethods) == 0 {
		return nil, errors.New(errors.ErrAuth,
			"No SSH auth methods available for "+c.target.String(),
			"Set server_password or server_key_path, or load a key: ssh-add -l")
	}

	hostKeyCallback, err := c.hostKeyCallback()
	if err != nil {
		return nil, err
	}

	return &ssh.ClientConfig{
		User:            c.target.User,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.target.ConnectTimeout,
	}, nil
}

// hostKeyCallback returns the verification callback for the configured policy.
func (c *Client) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if c.target.HostKeys == HostKeyStrict {
		knownHostsPath := filepath.Join(homeDir(), ".ssh", "known_hosts")
		callback, err := knownhosts.New(knownHostsPath)
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrHostKey,
				"Failed to load known_hosts from "+knownHostsPath,
				"Connect once with plain ssh to record the host key, or use host_key_policy: accept")
		}
		return callback, nil
	}
	return c.acceptOnFirstUse, nil
}

// acceptOnFirstUse pins the first host key seen during this process and
// rejects any subsequent key that differs. Accepting unknown hosts trades
// man-in-the-middle protection on first contact for zero-setup operation;
// a key that changes underneath us is still refused.
func (c *Client) acceptOnFirstUse(hostname string, remote net.Addr, key ssh.PublicKey) error {
	c.pinMu.Lock()
	defer c.pinMu.Unlock()

	if c.pinnedKey == nil {
		c.pinnedKey = key
		c.log.Debug("pinned %s host key for %s", key.Type(), hostname)
		return nil
	}
	if bytes.Equal(c.pinnedKey.Marshal(), key.Marshal()) {
		return nil
	}
	return errors.New(errors.ErrHostKey,
		fmt.Sprintf("Host key for %s changed: had %s, server now sends %s",
			hostname, c.pinnedKey.Type(), key.Type()),
		"If the host was legitimately reinstalled, restart gpuwatch to re-pin")
}

// sshAgentAuth returns an auth method backed by the SSH agent, or nil when
// no agent is reachable or it holds no keys.
func sshAgentAuth() ssh.AuthMethod {
	socket := os.Getenv("SSH_AUTH_SOCK")
	if socket == "" {
		return nil
	}
	conn, err := net.Dial("unix", socket)
	if err != nil {
		return nil
	}
	client := agent.NewClient(conn)
	signers, err := client.Signers()
	if err != nil || len(signers) == 0 {
		conn.Close()
		return nil
	}
	return ssh.PublicKeysCallback(client.Signers)
}

// keyFileAuth returns an auth method using a private key file.
func keyFileAuth(keyPath string) (ssh.AuthMethod, error) {
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrAuth,
			"Cannot read SSH key: "+keyPath,
			"Check the path and file permissions")
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		var passErr *ssh.PassphraseMissingError
		if stderrors.As(err, &passErr) {
			return nil, errors.WrapWithCode(err, errors.ErrAuth,
				"SSH key is passphrase protected: "+keyPath,
				"Add it to your agent: ssh-add "+keyPath)
		}
		return nil, errors.WrapWithCode(err, errors.ErrAuth,
			"Cannot parse SSH key: "+keyPath,
			"Check the file is a valid private key")
	}

	return ssh.PublicKeys(signer), nil
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.Getenv("HOME")
	}
	return home
}
