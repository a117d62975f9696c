package config

import (
	"errors"
	"fmt"
)

// Port bounds for the listener.
const (
	minPort = 1
	maxPort = 65535
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.Port < minPort || cfg.Server.Port > maxPort {
		errs = append(errs, fmt.Errorf("server.port: must be between %d and %d, got %d", minPort, maxPort, cfg.Server.Port))
	}

	if cfg.Server.IdleTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("server.idle_timeout_seconds: must be positive, got %d", cfg.Server.IdleTimeoutSeconds))
	}

	if cfg.Server.ShutdownTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout_seconds: must be positive, got %d", cfg.Server.ShutdownTimeoutSeconds))
	}

	if cfg.Discord.BotToken == "" {
		errs = append(errs, errors.New("discord.bot_token: required (set DISCORD_BOT_TOKEN)"))
	}

	if cfg.Discord.ChannelID == "" {
		errs = append(errs, errors.New("discord.channel_id: required (set DISCORD_CHANNEL_ID)"))
	}

	if cfg.Index.Path == "" {
		errs = append(errs, errors.New("index.path: required"))
	}

	switch cfg.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level))
	}

	switch cfg.Logging.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format: unknown format %q", cfg.Logging.Format))
	}

	return errors.Join(errs...)
}
