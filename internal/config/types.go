package config

import "time"

// Host key verification policies.
const (
	// HostKeyStrict verifies the remote host key against ~/.ssh/known_hosts
	// and fails on unknown or changed keys.
	HostKeyStrict = "strict"
	// HostKeyAccept accepts unknown host keys (trust on first use) but still
	// rejects a key that changes during the process lifetime.
	HostKeyAccept = "accept"
)

// MinPollInterval is the floor enforced on poll_interval. Anything faster
// would hammer the remote host with SSH execs for no visible benefit.
const MinPollInterval = 500 * time.Millisecond

// Config holds everything gpuwatch needs: the remote target, SSH behavior,
// the poll cadence, and the local HTTP listener.
type Config struct {
	// ServerHost is the remote host running nvidia-smi.
	ServerHost string `yaml:"server_host" mapstructure:"server_host"`

	// ServerPort is the SSH port on the remote host.
	ServerPort int `yaml:"server_port" mapstructure:"server_port"`

	// ServerUser is the SSH username.
	ServerUser string `yaml:"server_user" mapstructure:"server_user"`

	// ServerPassword authenticates when no key is configured.
	ServerPassword string `yaml:"server_password,omitempty" mapstructure:"server_password"`

	// ServerKeyPath is a private key file; takes precedence over the
	// password when both are set. Supports ~ expansion.
	ServerKeyPath string `yaml:"server_key_path,omitempty" mapstructure:"server_key_path"`

	// HostKeyPolicy is "strict" or "accept".
	HostKeyPolicy string `yaml:"host_key_policy" mapstructure:"host_key_policy"`

	// PollInterval is how often the collector runs the diagnostic command.
	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`

	// ConnectTimeout bounds the SSH dial + handshake.
	ConnectTimeout time.Duration `yaml:"ssh_connect_timeout" mapstructure:"ssh_connect_timeout"`

	// CommandTimeout bounds a single remote command execution.
	CommandTimeout time.Duration `yaml:"ssh_command_timeout" mapstructure:"ssh_command_timeout"`

	// ListenHost and ListenPort are where the local dashboard is served.
	ListenHost string `yaml:"local_host" mapstructure:"local_host"`
	ListenPort int    `yaml:"local_port" mapstructure:"local_port"`
}

// Default returns a Config with sensible defaults. The remote target fields
// are intentionally empty; validation reports them as config problems until
// the user fills them in.
func Default() *Config {
	return &Config{
		ServerPort:     22,
		HostKeyPolicy:  HostKeyAccept,
		PollInterval:   time.Second,
		ConnectTimeout: 5 * time.Second,
		CommandTimeout: 5 * time.Second,
		ListenHost:     "127.0.0.1",
		ListenPort:     8787,
	}
}
