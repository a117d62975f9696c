package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file and returns the resulting
// Config. Unknown keys are fatal: silently ignoring a typo in a config
// file leads to hard-to-debug behavior.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s: unknown key %q", path, undecoded[0].String())
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns a
// Config populated with all default values. This supports the env-only
// deployment: the server starts without any config file.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment variables -> CLI flags.
// The result is validated before it is returned.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Config, error) {
	// Config path: CLI > env > default.
	cfgPath := DefaultConfigPath
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	if err := applyEnv(cfg, env); err != nil {
		return nil, err
	}

	// CLI overrides (pointer fields: nil = not specified).
	if cli.Port != nil {
		cfg.Server.Port = *cli.Port
	}

	if cli.Verbose {
		cfg.Logging.Level = "debug"
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyEnv copies non-empty environment overrides into cfg.
func applyEnv(cfg *Config, env EnvOverrides) error {
	if env.APISecret != "" {
		cfg.Server.APISecret = env.APISecret
	}

	if env.BotToken != "" {
		cfg.Discord.BotToken = env.BotToken
	}

	if env.ChannelID != "" {
		cfg.Discord.ChannelID = env.ChannelID
	}

	if env.BackupChannelID != "" {
		cfg.Discord.BackupChannelID = env.BackupChannelID
	}

	if env.IndexPath != "" {
		cfg.Index.Path = env.IndexPath
	}

	if env.Port != "" {
		port, err := strconv.Atoi(env.Port)
		if err != nil {
			return fmt.Errorf("config: invalid %s value %q: %w", EnvPort, env.Port, err)
		}

		cfg.Server.Port = port
	}

	if isTruthy(env.Debug) {
		cfg.Logging.Level = "debug"
	}

	return nil
}

// isTruthy reports whether an environment flag value means "enabled".
func isTruthy(s string) bool {
	switch s {
	case "1", "true", "TRUE", "True", "yes", "on":
		return true
	default:
		return false
	}
}
