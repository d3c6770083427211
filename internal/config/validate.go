package config

import (
	"fmt"
	"os"
)

// Problems returns the list of configuration problems that prevent the
// collector from polling. An empty result means the target is usable.
//
// These surface in the status API as config_errors rather than crashing the
// process, so the dashboard can tell the operator what to fix.
func (c *Config) Problems() []string {
	var problems []string

	if c.ServerHost == "" {
		problems = append(problems, "server_host is not set")
	}
	if c.ServerUser == "" {
		problems = append(problems, "server_user is not set")
	}
	if c.ServerPassword == "" && c.ServerKeyPath == "" {
		problems = append(problems, "no credential: set server_password or server_key_path")
	}
	if c.ServerKeyPath != "" {
		if _, err := os.Stat(c.ServerKeyPath); err != nil {
			problems = append(problems, fmt.Sprintf("SSH key not found: %s", c.ServerKeyPath))
		}
	}
	if c.HostKeyPolicy != HostKeyStrict && c.HostKeyPolicy != HostKeyAccept {
		problems = append(problems, fmt.Sprintf(
			"host_key_policy must be %q or %q, got %q", HostKeyStrict, HostKeyAccept, c.HostKeyPolicy))
	}

	return problems
}
