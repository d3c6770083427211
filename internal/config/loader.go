// Package config loads the gpuwatch configuration from a YAML file with
// GPUWATCH_* environment variable overrides, and validates the remote
// target fields the collector depends on.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"gpuwatch/internal/errors"
)

const (
	// ConfigFileName is the default config file name.
	ConfigFileName = "gpuwatch.yaml"
	// GlobalConfigDir is the directory for global config, under $HOME.
	GlobalConfigDir = ".config/gpuwatch"
	// EnvPrefix is the prefix for environment variable overrides,
	// e.g. GPUWATCH_SERVER_HOST.
	EnvPrefix = "GPUWATCH"
)

// Load reads config from the specified path, applying environment overrides
// on top. An empty path loads defaults plus environment only.
func Load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if os.IsNotExist(err) {
				return nil, errors.WrapWithCode(err, errors.ErrConfig,
					"Config file not found: "+path,
					"Run 'gpuwatch serve --init' to create one")
			}
			return nil, errors.WrapWithCode(err, errors.ErrConfig,
				"Failed to read config file: "+path,
				"Check the file is valid YAML")
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid config values in "+path,
			"Durations take forms like 1s or 500ms")
	}

	normalize(cfg)
	return cfg, nil
}

// Find locates the config file using the search order:
//  1. Explicit path (from --config flag)
//  2. gpuwatch.yaml in the current directory
//  3. ~/.config/gpuwatch/gpuwatch.yaml
//
// Returns the path, or empty string if no config file exists. An empty
// result is not an error; gpuwatch can run from environment variables alone.
func Find(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			if os.IsNotExist(err) {
				return "", errors.WrapWithCode(err, errors.ErrConfig,
					"Specified config file not found: "+explicit,
					"Check the path is correct")
			}
			return "", errors.WrapWithCode(err, errors.ErrConfig,
				"Cannot access config file: "+explicit,
				"Check file permissions")
		}
		return explicit, nil
	}

	cwd, err := os.Getwd()
	if err == nil {
		local := filepath.Join(cwd, ConfigFileName)
		if _, err := os.Stat(local); err == nil {
			return local, nil
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		global := filepath.Join(home, GlobalConfigDir, ConfigFileName)
		if _, err := os.Stat(global); err == nil {
			return global, nil
		}
	}

	return "", nil
}

// LoadOrDefault finds and loads the config, falling back to defaults plus
// environment overrides when no config file exists.
func LoadOrDefault(explicit string) (*Config, error) {
	path, err := Find(explicit)
	if err != nil {
		return nil, err
	}
	return Load(path)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults registered here so AutomaticEnv picks up every key.
	d := Default()
	v.SetDefault("server_host", d.ServerHost)
	v.SetDefault("server_port", d.ServerPort)
	v.SetDefault("server_user", d.ServerUser)
	v.SetDefault("server_password", d.ServerPassword)
	v.SetDefault("server_key_path", d.ServerKeyPath)
	v.SetDefault("host_key_policy", d.HostKeyPolicy)
	v.SetDefault("poll_interval", d.PollInterval)
	v.SetDefault("ssh_connect_timeout", d.ConnectTimeout)
	v.SetDefault("ssh_command_timeout", d.CommandTimeout)
	v.SetDefault("local_host", d.ListenHost)
	v.SetDefault("local_port", d.ListenPort)
	return v
}

// normalize clamps and expands values after unmarshaling.
func normalize(cfg *Config) {
	if cfg.PollInterval < MinPollInterval {
		cfg.PollInterval = MinPollInterval
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = Default().ConnectTimeout
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = Default().CommandTimeout
	}
	if cfg.ServerPort <= 0 {
		cfg.ServerPort = 22
	}
	cfg.ServerKeyPath = expandPath(cfg.ServerKeyPath)
}

// expandPath expands a leading ~/ to the user's home directory.
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

// ListenAddr returns the host:port the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ListenHost, c.ListenPort)
}
