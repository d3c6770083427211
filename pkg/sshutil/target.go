package sshutil

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kevinburke/ssh_config"
)

// HostKeyPolicy controls how the remote host's key is verified.
type HostKeyPolicy int

const (
	// HostKeyStrict verifies against ~/.ssh/known_hosts. Unknown or changed
	// keys fail the connect.
	HostKeyStrict HostKeyPolicy = iota
	// HostKeyAccept trusts unknown keys on first use. A key that changes
	// after being seen once in this process still fails.
	HostKeyAccept
)

// ParseHostKeyPolicy converts a config string to a HostKeyPolicy.
func ParseHostKeyPolicy(s string) (HostKeyPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict":
		return HostKeyStrict, nil
	case "accept", "accept-new", "":
		return HostKeyAccept, nil
	default:
		return HostKeyAccept, fmt.Errorf("unknown host key policy %q", s)
	}
}

func (p HostKeyPolicy) String() string {
	if p == HostKeyStrict {
		return "strict"
	}
	return "accept"
}

// Target identifies the remote host and how to reach it. Immutable for the
// lifetime of a Client.
type Target struct {
	Host     string
	Port     int
	User     string
	Password string
	// KeyPath takes precedence over Password when both are set.
	KeyPath        string
	ConnectTimeout time.Duration
	CommandTimeout time.Duration
	HostKeys       HostKeyPolicy
}

// Addr returns the host:port string for dialing.
func (t Target) Addr() string {
	port := t.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(t.Host, strconv.Itoa(port))
}

// String returns user@host:port for display.
func (t Target) String() string {
	return fmt.Sprintf("%s@%s", t.User, t.Addr())
}

// ApplySSHConfigDefaults fills unset fields from ~/.ssh/config, the way a
// plain ssh invocation would resolve them. Explicit config always wins.
func (t *Target) ApplySSHConfigDefaults() {
	if t.Host == "" {
		return
	}
	if hostname := ssh_config.Get(t.Host, "HostName"); hostname != "" && hostname != t.Host {
		t.Host = hostname
	}
	if t.Port == 0 {
		if port := ssh_config.Get(t.Host, "Port"); port != "" {
			if n, err := strconv.Atoi(port); err == nil {
				t.Port = n
			}
		}
	}
	if t.User == "" {
		t.User = ssh_config.Get(t.Host, "User")
	}
	if t.KeyPath == "" && t.Password == "" {
		if identity := ssh_config.Get(t.Host, "IdentityFile"); identity != "" {
			expanded := expandPath(identity)
			if _, err := os.Stat(expanded); err == nil {
				t.KeyPath = expanded
			}
		}
	}
}

func expandPath(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
