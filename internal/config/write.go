package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"gpuwatch/internal/errors"
)

const fileHeader = `# gpuwatch configuration.
# Every key can be overridden with a GPUWATCH_* environment variable,
# e.g. GPUWATCH_SERVER_HOST or GPUWATCH_POLL_INTERVAL.
`

// starterConfig mirrors Config with durations as strings, so the generated
// file reads "1s" instead of nanosecond integers.
type starterConfig struct {
	ServerHost     string `yaml:"server_host"`
	ServerPort     int    `yaml:"server_port"`
	ServerUser     string `yaml:"server_user"`
	ServerKeyPath  string `yaml:"server_key_path"`
	HostKeyPolicy  string `yaml:"host_key_policy"`
	PollInterval   string `yaml:"poll_interval"`
	ConnectTimeout string `yaml:"ssh_connect_timeout"`
	CommandTimeout string `yaml:"ssh_command_timeout"`
	ListenHost     string `yaml:"local_host"`
	ListenPort     int    `yaml:"local_port"`
}

// WriteStarter writes a starter config file at path, refusing to overwrite
// an existing file. Used by 'gpuwatch serve --init'.
func WriteStarter(path string) error {
	if _, err := os.Stat(path); err == nil {
		return errors.New(errors.ErrConfig,
			"Config file already exists: "+path,
			"Edit it directly, or remove it first")
	}

	d := Default()
	starter := starterConfig{
		ServerHost:     "gpu-box.example.com",
		ServerPort:     d.ServerPort,
		ServerUser:     "ubuntu",
		ServerKeyPath:  "~/.ssh/id_ed25519",
		HostKeyPolicy:  d.HostKeyPolicy,
		PollInterval:   d.PollInterval.String(),
		ConnectTimeout: d.ConnectTimeout.String(),
		CommandTimeout: d.CommandTimeout.String(),
		ListenHost:     d.ListenHost,
		ListenPort:     d.ListenPort,
	}

	body, err := yaml.Marshal(starter)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to render starter config", "")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig,
				"Failed to create config directory: "+dir,
				"Check directory permissions")
		}
	}

	// 0600: the file may hold a password.
	if err := os.WriteFile(path, append([]byte(fileHeader), body...), 0o600); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to write config file: "+path,
			"Check directory permissions")
	}
	return nil
}
