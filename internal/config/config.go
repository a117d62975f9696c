// Package config implements TOML configuration loading, environment
// overrides, and validation for nekodrive. The override chain is
// defaults -> config file -> environment -> CLI flags; environment names
// match the deployment contract (API_SECRET, DISCORD_BOT_TOKEN, ...) so the
// server runs with no config file at all.
package config

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Discord DiscordConfig `toml:"discord"`
	Index   IndexConfig   `toml:"index"`
	Logging LoggingConfig `toml:"logging"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	// Port the API listens on.
	Port int `toml:"port"`

	// APISecret is the shared bearer secret. Empty disables authentication.
	APISecret string `toml:"api_secret"`

	// IdleTimeout in seconds. Raised above typical defaults because
	// full-file streams can stay open for minutes.
	IdleTimeoutSeconds int `toml:"idle_timeout_seconds"`

	// ShutdownTimeout in seconds for graceful shutdown.
	ShutdownTimeoutSeconds int `toml:"shutdown_timeout_seconds"`
}

// DiscordConfig identifies the bot and the storage channels.
type DiscordConfig struct {
	// BotToken authenticates against the Discord REST API.
	BotToken string `toml:"bot_token"`

	// ChannelID is the primary channel: all chunk attachments go here.
	ChannelID string `toml:"channel_id"`

	// BackupChannelID optionally holds index snapshots and serves as a
	// fallback for URL refresh. Empty disables both.
	BackupChannelID string `toml:"backup_channel_id"`
}

// IndexConfig locates the metadata index.
type IndexConfig struct {
	// Path of the SQLite index file.
	Path string `toml:"path"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `toml:"level"`

	// Format is "text" or "json". Empty picks text on terminals and
	// JSON otherwise.
	Format string `toml:"format"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to zero value".
type CLIOverrides struct {
	ConfigPath string // --config flag (empty = use default)
	Port       *int   // --port flag
	Verbose    bool   // --verbose flag
}
