package config

import "os"

// Environment variable names. These are the deployment contract and take
// precedence over the config file.
const (
	EnvAPISecret       = "API_SECRET"
	EnvBotToken        = "DISCORD_BOT_TOKEN"
	EnvChannelID       = "DISCORD_CHANNEL_ID"
	EnvBackupChannelID = "DISCORD_BACKUP_CHANNEL_ID"
	EnvPort            = "PORT"
	EnvDebug           = "DEBUG"
	EnvConfig          = "NEKODRIVE_CONFIG"
	EnvIndexPath       = "NEKODRIVE_INDEX"
)

// EnvOverrides holds values derived from environment variables.
// These are resolved by ReadEnvOverrides and applied by Resolve.
type EnvOverrides struct {
	APISecret       string
	BotToken        string
	ChannelID       string
	BackupChannelID string
	Port            string
	Debug           string
	ConfigPath      string
	IndexPath       string
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. This does not modify the Config; Resolve applies the fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		APISecret:       os.Getenv(EnvAPISecret),
		BotToken:        os.Getenv(EnvBotToken),
		ChannelID:       os.Getenv(EnvChannelID),
		BackupChannelID: os.Getenv(EnvBackupChannelID),
		Port:            os.Getenv(EnvPort),
		Debug:           os.Getenv(EnvDebug),
		ConfigPath:      os.Getenv(EnvConfig),
		IndexPath:       os.Getenv(EnvIndexPath),
	}
}
